package main

import (
	"log"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"ledgemail/config"
	"ledgemail/metrics"
	"ledgemail/middleware"
	"ledgemail/plans"
	"ledgemail/routes"
	"ledgemail/utils"
)

func main() {
	logger := log.New(os.Stdout, "MAIN: ", log.Ldate|log.Ltime)

	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("failed to load configuration: %v", err)
	}

	if dsn := config.AppConfig.SentryDSN; dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Environment:      config.AppConfig.Environment,
			TracesSampleRate: 0.1,
		}); err != nil {
			logger.Printf("sentry init failed: %v", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}

	metrics.InitMetrics()
	catalog := plans.Load()
	mailer := utils.NewMailer(log.New(os.Stdout, "MAILER: ", log.Ldate|log.Ltime))
	logger.Printf("email provider: %s", mailer.Name())

	app := fiber.New(fiber.Config{
		AppName:   "ledgemail",
		BodyLimit: 2 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return utils.ErrorResponse(c, code, "Internal server error", err)
		},
	})

	app.Use(middleware.CORS())
	app.Use(metrics.Middleware())

	routes.SetupRoutes(app, config.DB, catalog, mailer)

	addr := ":" + config.AppConfig.ServerPort
	logger.Printf("listening on %s (%s)", addr, config.AppConfig.Environment)
	if err := app.Listen(addr); err != nil {
		logger.Fatalf("server stopped: %v", err)
	}
}
