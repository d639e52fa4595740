package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/shopflux/shopflux/internal/pkg/checkout"
)

// jsonError writes the uniform API error envelope.
func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": message, "code": code})
}

// checkoutError maps orchestrator errors onto HTTP responses. Anything
// without a machine code is an internal failure.
func checkoutError(c *fiber.Ctx, err error) error {
	if ce, ok := checkout.AsError(err); ok {
		return jsonError(c, ce.HTTPStatus, ce.Code, ce.Message)
	}
	return jsonError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}
