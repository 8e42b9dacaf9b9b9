// middleware/gateway.go
package middleware

import (
	"log"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

// UpgradeRequired lets only websocket upgrade requests through to the socket route.
func UpgradeRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			log.Printf("🚫 [WS] Plain HTTP request to %s from %s", c.Path(), c.IP())
			return c.Status(fiber.StatusUpgradeRequired).JSON(fiber.Map{
				"error": "websocket upgrade required",
			})
		}
		return c.Next()
	}
}
