// handlers/match.go
package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"rps-arena/middleware"
	"rps-arena/services"
)

// SetupRoutes mounts the read endpoints and the event socket.
func SetupRoutes(app *fiber.App, hub *Hub, auth *services.AuthService, matches *services.MatchService, ws *WSHandler) {
	app.Get("/health", healthHandler(hub, matches))
	app.Get("/matches/:id", matchHandler(matches))

	// 🔌 Event socket; a bearer key pre-authenticates the session
	app.Get("/ws", middleware.UpgradeRequired(), middleware.AgentAuthMiddleware(auth), ws.Upgrade())
}

func healthHandler(hub *Hub, matches *services.MatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":       "ok",
			"connections":  hub.Connections(),
			"live_matches": matches.LiveMatches(),
		})
	}
}

func matchHandler(matches *services.MatchService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		m, rounds, err := matches.Details(c.UserContext(), c.Params("id"))
		if errors.Is(err, services.ErrMatchNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "match not found"})
		}
		if err != nil {
			log.Printf("❌ [MATCHES] Load %s: %v", c.Params("id"), err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load match"})
		}
		return c.JSON(fiber.Map{
			"match":  m,
			"rounds": rounds,
		})
	}
}
