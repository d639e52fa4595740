package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shopflux/shopflux/internal/pkg/ratelimit"
)

// RateLimitMiddleware gates checkout requests through the sliding-window
// limiter, keyed by client IP. Denial is explicit: 429 with a machine
// code, never a silent pass-through.
func RateLimitMiddleware(limiter *ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !limiter.Admit(c.IP(), time.Now()) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, back off and retry",
				"code":  "RATE_LIMITED",
			})
		}
		return c.Next()
	}
}
