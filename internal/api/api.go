package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/BriceLerendu/TuyaRealtimeVB/internal/handlers"
	"github.com/BriceLerendu/TuyaRealtimeVB/internal/metrics"
)

type Deps struct {
	Subscription handlers.StatusSource
	Metrics      *metrics.Prom
}

// New builds the status server. It is read-only; nothing here can affect
// the subscription.
func New(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "tuya-bridge",
		DisableStartupMessage: true,
		IdleTimeout:           60 * time.Second,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          5 * time.Second,
	})

	app.Use(requestid.New())
	app.Use(recover.New())

	app.Get("/health", handlers.Health())
	app.Get("/ready", handlers.Ready(deps.Subscription))
	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))
	}

	return app
}
