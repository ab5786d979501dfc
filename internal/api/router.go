package api

import (
	"jarvis/docs"
	"jarvis/internal/api/handlers"
	"jarvis/pkg/auth"
	"jarvis/pkg/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/swagger"
	"go.uber.org/zap"
)

func SetupRouter(
	chatHandler *handlers.ChatHandler,
	feedbackHandler *handlers.FeedbackHandler,
	systemHandler *handlers.SystemHandler,
	adminHandler *handlers.AdminHandler,
	jwtManager *auth.JWTManager,
	appLogger *zap.Logger,
) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	// Middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))
	app.Use(logger.New())

	// Swagger; importing docs registers the spec
	_ = docs.SwaggerInfo
	app.Get("/swagger/*", swagger.HandlerDefault)

	app.Get("/health", systemHandler.Health)

	// Streaming chat
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(chatHandler.Stream))

	api := app.Group("/api/v1")
	api.Get("/health", systemHandler.Health)
	api.Post("/chat", chatHandler.Chat)
	api.Post("/feedback", feedbackHandler.Submit)
	api.Get("/stats", systemHandler.Stats)
	api.Get("/sessions/:id", systemHandler.Session)

	// Admin routes; login is public, the rest need an admin token
	admin := api.Group("/admin")
	requireAdmin := middleware.AdminMiddleware(jwtManager, appLogger)
	admin.Post("/login", adminHandler.Login)
	admin.Post("/improve", requireAdmin, adminHandler.Improve)
	admin.Get("/knowledge", requireAdmin, adminHandler.Knowledge)

	appLogger.Info("Routes registered")
	return app
}
