// Package main provides the casework command line and API server.
package main

import (
	"log/slog"
	"runtime/debug"
	"strconv"

	"github.com/dukex/casework/pkg/registry"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

type API struct {
	logger   *slog.Logger
	engine   *services.Engine
	registry *registry.Registry
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	engine *services.Engine,
	registry *registry.Registry,
) *API {
	return &API{
		logger:   logger,
		engine:   engine,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(a.engine, a.registry, a.validate)

	app := fiber.New(fiber.Config{
		ErrorHandler: web.ErrorHandler,
	})
	app.Use(recoverer.New(recoverer.Config{
		EnableStackTrace:  true,
		StackTraceHandler: a.logPanic,
	}))
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker(healthcheck.Config{
		Probe: func(c fiber.Ctx) bool {
			_, ok := a.engine.HealthCheck(c.Context())
			return ok
		},
	}))

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Casework API")
	})

	handlers.Register(app)

	return app
}

func (a *API) logPanic(c fiber.Ctx, e any) {
	a.logger.Error("Recovered from panic", "path", c.Path(), "panic", e, "stack", string(debug.Stack()))
}

func (a *API) Start(port int) error {
	app := a.App()

	a.logger.Info("Starting API", "port", port)

	return app.Listen(":" + strconv.Itoa(port))
}
