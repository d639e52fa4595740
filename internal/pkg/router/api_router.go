package router

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shopflux/shopflux/app/controllers"
	"github.com/shopflux/shopflux/internal/pkg/cache"
	"github.com/shopflux/shopflux/internal/pkg/checkout"
	"github.com/shopflux/shopflux/internal/pkg/database"
	"github.com/shopflux/shopflux/internal/pkg/env"
	"github.com/shopflux/shopflux/internal/pkg/middleware"
	"github.com/shopflux/shopflux/internal/pkg/payment"
	"github.com/shopflux/shopflux/internal/pkg/ratelimit"
	"github.com/shopflux/shopflux/internal/pkg/sessionstore"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	db := database.GetDB()
	rdb := cache.GetClient()

	store := sessionstore.New(rdb, db)
	orders := sessionstore.NewOrderRecorder(db)
	gateway := payment.NewGateway(payment.NewFlowPayClientFromEnv())
	svc := checkout.NewService(store, gateway, orders)
	ctl := controllers.NewCheckoutController(svc)

	limiter := ratelimit.New(
		envInt("RATE_LIMIT_MAX_REQUESTS", ratelimit.DefaultMaxRequests),
		time.Duration(envInt("RATE_LIMIT_WINDOW_MS", int(ratelimit.DefaultWindow/time.Millisecond)))*time.Millisecond,
	)

	api := app.Group("/api")
	v1 := api.Group("/v1")

	v1.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ping": "pong"})
	})

	sessions := v1.Group("/checkout/sessions", middleware.RateLimitMiddleware(limiter))
	sessions.Post("/", ctl.HandleCreateSession)
	sessions.Get("/:id", ctl.HandleGetSession)
	sessions.Patch("/:id", ctl.HandleUpdateSession)
	sessions.Post("/:id/complete", ctl.HandleCompleteSession)

	// The processor's delivery path is authenticated by signature, not
	// rate limited.
	v1.Post("/webhooks/flowpay", controllers.HandleFlowPayWebhook)
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return def
}
