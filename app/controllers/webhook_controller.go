package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shopflux/shopflux/app/models"
	"github.com/shopflux/shopflux/internal/pkg/billing"
	"github.com/shopflux/shopflux/internal/pkg/database"
	"github.com/shopflux/shopflux/internal/pkg/env"
	"github.com/shopflux/shopflux/internal/pkg/payment"
)

// HandleFlowPayWebhook ingests signed processor events. Signature
// verification happens before anything else; a processing failure is
// answered 5xx so FlowPay redelivers, which the id-keyed dedup makes
// safe.
func HandleFlowPayWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("X-FlowPay-Signature")
	secret := env.GetEnv("FLOWPAY_WEBHOOK_SECRET", "")

	if !billing.VerifyWebhookSignature(rawBody, signature, secret) {
		return jsonError(c, fiber.StatusUnauthorized, "INVALID_SIGNATURE", "webhook signature verification failed")
	}

	ev, err := billing.ParseEvent(rawBody)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "INVALID_PAYLOAD", "webhook payload could not be decoded")
	}

	svc := billing.NewServiceFromDB(database.GetDB(), payment.NewFlowPayClientFromEnv())
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        models.PaymentProviderFlowPay,
		ProviderEventID: ev.ID,
		EventType:       ev.Type,
		PayloadJSON:     string(rawBody),
		SignatureValid:  true,
	})
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "WEBHOOK_PERSIST_FAILED", "webhook event could not be recorded")
	}
	// A redelivery of a successfully applied event is a pure no-op; one
	// that previously failed gets reprocessed.
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "duplicate": true})
	}

	outcome, procErr := svc.Process(ctx, rawBody)
	_ = svc.MarkWebhookProcessed(ctx, stored.ID, procErr)
	if procErr != nil {
		return jsonError(c, fiber.StatusInternalServerError, "WEBHOOK_PROCESSING_FAILED", "webhook processing failed, will be redelivered")
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": true,
		"ignored":  outcome == billing.OutcomeIgnored,
	})
}
