package handlers

import (
	"time"

	"kedai/internal/middleware"
	"kedai/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// Dependencies are the services the HTTP API is built from.
type Dependencies struct {
	Orders          *services.OrderService
	Reconciler      *services.Reconciler
	Auth            *services.AuthService
	CallbackBaseURL string
	// Health reports the state of backing services for /health.
	Health func() fiber.Map
	// RequestTimeout bounds reading a request; zero keeps the default.
	RequestTimeout time.Duration
	// DisableLogger turns off request logging, e.g. in tests.
	DisableLogger bool
}

// NewApp builds the Fiber app with every route under /api/v1.
func NewApp(deps Dependencies) *fiber.App {
	readTimeout := deps.RequestTimeout
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	app := fiber.New(fiber.Config{
		AppName:      "kedai",
		ReadTimeout:  readTimeout,
		WriteTimeout: 90 * time.Second, // await polls the gateway for up to a minute
	})

	app.Use(recover.New())
	if !deps.DisableLogger {
		app.Use(logger.New())
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		}
		if deps.Health != nil {
			for k, v := range deps.Health() {
				body[k] = v
			}
		}
		return c.Status(fiber.StatusOK).JSON(body)
	})

	apiV1 := app.Group("/api/v1")

	NewAuthHandler(deps.Auth).RegisterRoutes(apiV1)
	NewCheckoutHandler(deps.Orders, deps.CallbackBaseURL).RegisterRoutes(apiV1)
	NewOrderHandler(deps.Orders, deps.Reconciler).RegisterRoutes(apiV1)
	NewPaymentHandler(deps.Orders).RegisterRoutes(apiV1)

	// Protected routes (require staff JWT)
	kitchenRoutes := apiV1.Group("/kitchen", middleware.AuthRequired(deps.Auth))
	NewKitchenHandler(deps.Orders).RegisterRoutes(kitchenRoutes)

	return app
}
