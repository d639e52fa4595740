package main

import (
	"fmt"
	"log"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/shopflux/shopflux/internal/pkg/cache"
	"github.com/shopflux/shopflux/internal/pkg/database"
	"github.com/shopflux/shopflux/internal/pkg/env"
	"github.com/shopflux/shopflux/internal/pkg/router"
	"github.com/shopflux/shopflux/internal/pkg/sessionstore"
	"github.com/shopflux/shopflux/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()
	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	app := fiber.New(fiber.Config{
		AppName: "shopflux",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	// Background reconciliation: durable expiry + cache repair.
	db := database.GetDB()
	sw := sweeper.New(
		sessionstore.New(cache.GetClient(), db),
		sessionstore.NewRepository(db),
		time.Minute,
	)
	sw.Start()
	app.Hooks().OnShutdown(func() error {
		sw.Stop()
		return nil
	})

	return app
}
