package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/codemeet-api/internal/config"
	"github.com/noah-isme/codemeet-api/internal/handler"
	"github.com/noah-isme/codemeet-api/internal/middleware"
	"github.com/noah-isme/codemeet-api/internal/models"
	"github.com/noah-isme/codemeet-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AccountHandler   *handler.AccountHandler
	RoomHandler      *handler.RoomHandler
	QuestionHandler  *handler.QuestionHandler
	DashboardHandler *handler.DashboardHandler
	CodeRunHandler   *handler.CodeRunHandler
	JWTMiddleware    fiber.Handler
	// RoleMiddleware runs after JWTMiddleware on every protected group.
	RoleMiddleware fiber.Handler
	// RunLimiter throttles graded runs per caller.
	RunLimiter fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	protected := []fiber.Handler{orNoop(deps.JWTMiddleware), orNoop(deps.RoleMiddleware)}
	runLimiter := orNoop(deps.RunLimiter)

	if deps.AccountHandler != nil {
		deps.AccountHandler.Register(api.Group("/accounts", protected...))
	}

	if deps.RoomHandler != nil {
		deps.RoomHandler.Register(api.Group("/rooms", protected...))
	}

	if deps.QuestionHandler != nil {
		questions := api.Group("/questions", protected...)
		if deps.CodeRunHandler != nil {
			deps.CodeRunHandler.RegisterSubmit(questions, runLimiter)
		}
		deps.QuestionHandler.Register(questions)
	}

	if deps.DashboardHandler != nil {
		dashboard := api.Group("/dashboard", append(protected, middleware.RequireRole(models.RoleTeacher))...)
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.CodeRunHandler != nil {
		code := api.Group("/code", append(protected, runLimiter)...)
		deps.CodeRunHandler.Register(code)
	}
}

func orNoop(handler fiber.Handler) fiber.Handler {
	if handler == nil {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	return handler
}
