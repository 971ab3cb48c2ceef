package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"

	"ledgemail/config"
	controller "ledgemail/controllers"
	"ledgemail/metrics"
	"ledgemail/middleware"
	"ledgemail/plans"
	"ledgemail/utils"
)

// SetupRoutes wires every endpoint onto the app. Controllers get their own
// prefixed loggers so log lines can be traced back to the handler that
// produced them.
func SetupRoutes(app *fiber.App, db *gorm.DB, catalog plans.Catalog, mailer utils.Mailer) {
	userController := controller.NewUserController(db, catalog,
		log.New(os.Stdout, "USER: ", log.Ldate|log.Ltime))
	emailController := controller.NewEmailController(db, catalog, mailer,
		log.New(os.Stdout, "EMAIL: ", log.Ldate|log.Ltime))
	subscriberController := controller.NewSubscriberController(db, catalog,
		log.New(os.Stdout, "SUBSCRIBER: ", log.Ldate|log.Ltime))
	webhookController := controller.NewWebhookController(db, catalog,
		log.New(os.Stdout, "WEBHOOK: ", log.Ldate|log.Ltime))

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"service": "ledgemail",
			"status":  "ok",
			"endpoints": []string{
				"GET  /api/health",
				"GET  /api/user/:tenantId/verify",
				"POST /api/user/update",
				"GET  /api/analytics",
				"POST /api/send-email",
				"GET  /api/subscribers",
				"POST /api/subscribers",
				"POST /api/subscribers/bulk",
				"PUT  /api/subscribers/:id",
				"DELETE /api/subscribers/:id",
				"PUT  /api/subscribers/:id/vip",
				"POST /api/webhooks/whop",
			},
		})
	})
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", metrics.Handler())

	api := app.Group("/api", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${method} ${path} (${latency})\n",
	}))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":      "ok",
			"environment": config.AppConfig.Environment,
			"email":       mailer.Name(),
			"plans":       len(catalog.All()),
		})
	})

	api.Get("/user/:tenantId/verify", userController.VerifyUser)
	api.Post("/user/update", userController.UpdateProfile)
	api.Get("/analytics", userController.GetAnalytics)

	api.Post("/send-email", middleware.SendRateLimiter(), emailController.SendEmail)

	api.Get("/subscribers", subscriberController.GetSubscribers)
	api.Post("/subscribers", subscriberController.AddSubscriber)
	api.Post("/subscribers/bulk", subscriberController.BulkAddSubscribers)
	api.Put("/subscribers/:id", subscriberController.UpdateSubscriber)
	api.Delete("/subscribers/:id", subscriberController.DeleteSubscriber)
	api.Put("/subscribers/:id/vip", subscriberController.ToggleVIP)

	api.Post("/webhooks/whop", webhookController.HandleWhopWebhook)

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Route not found",
		})
	})
}
