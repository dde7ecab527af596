package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"
)

// APIKey guards the store façade. An empty key leaves the routes open.
func APIKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key == "" {
			return c.Next()
		}
		if subtle.ConstantTimeCompare([]byte(c.Get("X-API-Key")), []byte(key)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid API key"})
		}
		return c.Next()
	}
}
