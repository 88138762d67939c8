package handlers

import (
	"github.com/gofiber/fiber/v2"
)

// StatusSource is what readiness is derived from; subscription.Manager
// satisfies it.
type StatusSource interface {
	Active() bool
}

func Health() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
	}
}

func Ready(src StatusSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if src == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ok":     false,
				"reason": "subscription_not_configured",
			})
		}
		if !src.Active() {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"ok":     false,
				"reason": "subscription_inactive",
			})
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"ok": true,
		})
	}
}
