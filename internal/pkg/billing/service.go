package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/shopflux/shopflux/app/models"
	"github.com/shopflux/shopflux/internal/pkg/payment"
)

// Outcome classifies webhook handling for the HTTP response.
type Outcome string

const (
	OutcomeApplied   Outcome = "ok"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
)

// SubscriptionFetcher is the slice of the FlowPay client the reconciler
// needs to resolve a checkout-completed event to subscription state.
type SubscriptionFetcher interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*payment.Subscription, error)
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Service reconciles asynchronous processor events into local
// subscription state. All handling is idempotent, keyed off the event id:
// redelivery finds the stored event row and becomes a no-op.
type Service struct {
	repo Repository
	flow SubscriptionFetcher
}

// NewService creates a reconciler from an injected repository and FlowPay
// client slice.
func NewService(repo Repository, flow SubscriptionFetcher) *Service {
	return &Service{repo: repo, flow: flow}
}

// NewServiceFromDB creates a reconciler from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, flow SubscriptionFetcher) *Service {
	return NewService(NewRepository(db), flow)
}

// RecordWebhookEvent persists webhook payloads idempotently. The returned
// bool is false when the event id was seen before.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	eventID := strings.TrimSpace(in.ProviderEventID)
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        provider,
		ProviderEventID: eventID,
		EventType:       strings.TrimSpace(in.EventType),
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional
// error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	_ = ctx
	if webhookEventID == 0 {
		return errors.New("webhook_event_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkWebhookProcessed(webhookEventID, errMsg)
}

// Process applies one already-deduplicated event payload. An error return
// means the caller must not acknowledge the delivery, so the processor
// redelivers and idempotent handling absorbs the retry.
func (s *Service) Process(ctx context.Context, raw []byte) (Outcome, error) {
	ev, err := ParseEvent(raw)
	if err != nil {
		return OutcomeIgnored, err
	}

	switch KindOf(ev.Type) {
	case KindCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, ev, raw)
	case KindSubscriptionCreated, KindSubscriptionUpdated:
		return s.applySubscriptionUpsert(ev, raw)
	case KindSubscriptionDeleted:
		return s.applyStatus(ev, models.SubscriptionStatusCanceled)
	case KindInvoicePaymentFailed:
		return s.applyInvoiceFailure(ev)
	case KindTrialWillEnd:
		return s.applyTrialEnding(ev)
	default:
		// Forward compatible: unknown kinds are accepted and ignored.
		return OutcomeIgnored, nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, ev *Event, raw []byte) (Outcome, error) {
	subID := strings.TrimSpace(ev.Data.SubscriptionID)
	if subID == "" {
		// One-time purchase: no subscription state to reconcile.
		return OutcomeIgnored, nil
	}

	sub, err := s.flow.GetSubscription(ctx, subID)
	if err != nil {
		return OutcomeIgnored, err
	}

	customerID := strings.TrimSpace(ev.Data.CustomerID)
	if customerID == "" {
		customerID = sub.CustomerID
	}
	row := &models.Subscription{
		Provider:               models.PaymentProviderFlowPay,
		ProviderSubscriptionID: sub.ID,
		ProviderCustomerID:     customerID,
		PlanRef:                sub.PlanRef,
		Status:                 normalizeStatus(sub.Status),
		CurrentPeriodStart:     unixTimePtr(sub.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTimePtr(sub.CurrentPeriodEnd),
		CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		RawPayloadJSON:         string(raw),
	}
	if err := s.repo.UpsertSubscription(row); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (s *Service) applySubscriptionUpsert(ev *Event, raw []byte) (Outcome, error) {
	subID := strings.TrimSpace(ev.Data.SubscriptionID)
	if subID == "" {
		return OutcomeIgnored, errors.New("subscription event missing subscription id")
	}
	row := &models.Subscription{
		Provider:               models.PaymentProviderFlowPay,
		ProviderSubscriptionID: subID,
		ProviderCustomerID:     strings.TrimSpace(ev.Data.CustomerID),
		PlanRef:                strings.TrimSpace(ev.Data.PlanRef),
		Status:                 normalizeStatus(ev.Data.Status),
		CurrentPeriodStart:     unixTimePtr(ev.Data.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTimePtr(ev.Data.CurrentPeriodEnd),
		CancelAtPeriodEnd:      ev.Data.CancelAtPeriodEnd,
		RawPayloadJSON:         string(raw),
	}
	if err := s.repo.UpsertSubscription(row); err != nil {
		return OutcomeIgnored, err
	}
	return OutcomeApplied, nil
}

func (s *Service) applyStatus(ev *Event, status string) (Outcome, error) {
	found, err := s.repo.UpdateSubscriptionStatus(models.PaymentProviderFlowPay, strings.TrimSpace(ev.Data.SubscriptionID), status)
	if err != nil {
		return OutcomeIgnored, err
	}
	if !found {
		// The subscription may not exist locally yet; the create/update
		// event will arrive on its own path.
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}

func (s *Service) applyInvoiceFailure(ev *Event) (Outcome, error) {
	found, err := s.repo.RecordInvoiceFailure(models.PaymentProviderFlowPay, strings.TrimSpace(ev.Data.SubscriptionID), time.Now().UTC())
	if err != nil {
		return OutcomeIgnored, err
	}
	if !found {
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}

func (s *Service) applyTrialEnding(ev *Event) (Outcome, error) {
	found, err := s.repo.FlagTrialEndingSoon(models.PaymentProviderFlowPay, strings.TrimSpace(ev.Data.SubscriptionID))
	if err != nil {
		return OutcomeIgnored, err
	}
	if !found {
		return OutcomeIgnored, nil
	}
	return OutcomeApplied, nil
}

func normalizeStatus(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case models.SubscriptionStatusActive, models.SubscriptionStatusTrialing,
		models.SubscriptionStatusPastDue, models.SubscriptionStatusCanceled:
		return strings.ToLower(strings.TrimSpace(status))
	case "":
		return models.SubscriptionStatusActive
	default:
		return models.SubscriptionStatusIncomplete
	}
}

func unixTimePtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}
