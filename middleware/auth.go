// middleware/auth.go
package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"rps-arena/services"
)

// AgentLocalsKey holds the *models.Agent resolved from the bearer key.
const AgentLocalsKey = "agent"

// AgentAuthMiddleware resolves "Authorization: Bearer <api key>" to an agent.
// A missing header passes through so clients can authenticate over the socket
// instead; an invalid key is rejected.
func AgentAuthMiddleware(auth *services.AuthService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return c.Next()
		}

		key := strings.TrimPrefix(header, "Bearer ")
		agent, err := auth.Authenticate(c.UserContext(), key)
		if errors.Is(err, services.ErrInvalidAPIKey) {
			log.Printf("🚫 [AGENT_AUTH] Invalid API key for %s", c.Path())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid API key",
			})
		}
		if err != nil {
			log.Printf("❌ [AGENT_AUTH] Lookup failed for %s: %v", c.Path(), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "authentication unavailable",
			})
		}

		c.Locals(AgentLocalsKey, agent)
		return c.Next()
	}
}
