package controllers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/shopflux/shopflux/internal/pkg/checkout"
	"github.com/shopflux/shopflux/internal/pkg/env"
)

// CheckoutController exposes the checkout session lifecycle over HTTP.
type CheckoutController struct {
	svc *checkout.Service
}

func NewCheckoutController(svc *checkout.Service) *CheckoutController {
	return &CheckoutController{svc: svc}
}

type sessionLinks struct {
	Update   string `json:"update"`
	Complete string `json:"complete"`
}

type sessionResponse struct {
	*checkout.Session
	Links *sessionLinks `json:"links,omitempty"`
}

type completeRequest struct {
	PaymentToken  string `json:"paymentToken"`
	PaymentMethod string `json:"paymentMethod,omitempty"`
}

type subscriptionSummary struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

type completeResponse struct {
	*checkout.Session
	Subscription *subscriptionSummary `json:"subscription,omitempty"`
}

// HandleCreateSession opens a new checkout session in pending state.
func (ctl *CheckoutController) HandleCreateSession(c *fiber.Ctx) error {
	var in checkout.CreateInput
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
	}

	session, err := ctl.svc.Create(c.UserContext(), in)
	if err != nil {
		return checkoutError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(sessionResponse{
		Session: session,
		Links:   linksFor(session.ID),
	})
}

// HandleGetSession returns the current snapshot; its only side effect is
// the lazy expiry transition.
func (ctl *CheckoutController) HandleGetSession(c *fiber.Ctx) error {
	session, err := ctl.svc.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(sessionResponse{Session: session})
}

// HandleUpdateSession applies shipping/items/metadata changes.
func (ctl *CheckoutController) HandleUpdateSession(c *fiber.Ctx) error {
	var in checkout.UpdateInput
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
	}

	session, err := ctl.svc.Update(c.UserContext(), c.Params("id"), in)
	if err != nil {
		return checkoutError(c, err)
	}
	return c.JSON(sessionResponse{
		Session: session,
		Links:   linksFor(session.ID),
	})
}

// HandleCompleteSession runs the payment flow for a session.
func (ctl *CheckoutController) HandleCompleteSession(c *fiber.Ctx) error {
	var in completeRequest
	if err := c.BodyParser(&in); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", "malformed JSON body")
	}

	session, err := ctl.svc.Complete(c.UserContext(), c.Params("id"), in.PaymentToken, in.PaymentMethod)
	if err != nil {
		return checkoutError(c, err)
	}

	resp := completeResponse{Session: session}
	if session.Payment != nil && session.Payment.SubscriptionID != "" {
		resp.Subscription = &subscriptionSummary{
			ID:               session.Payment.SubscriptionID,
			Status:           session.Payment.Status,
			CurrentPeriodEnd: session.Payment.CurrentPeriodEnd,
		}
	}
	return c.JSON(resp)
}

func linksFor(sessionID string) *sessionLinks {
	base := strings.TrimRight(env.GetEnv("PUBLIC_DOMAIN", ""), "/")
	prefix := base + "/api/v1/checkout/sessions/" + sessionID
	return &sessionLinks{
		Update:   prefix,
		Complete: prefix + "/complete",
	}
}
