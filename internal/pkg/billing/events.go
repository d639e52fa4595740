package billing

import (
	"encoding/json"
	"errors"
	"strings"
)

// EventKind is the closed set of processor event kinds this service
// reconciles. Anything else maps to KindUnknown, which is accepted and
// ignored so new processor event types never break the endpoint.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCheckoutCompleted
	KindSubscriptionCreated
	KindSubscriptionUpdated
	KindSubscriptionDeleted
	KindInvoicePaymentFailed
	KindTrialWillEnd
)

// KindOf maps a wire event type string onto the closed enum.
func KindOf(eventType string) EventKind {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case "checkout_completed":
		return KindCheckoutCompleted
	case "subscription_created":
		return KindSubscriptionCreated
	case "subscription_updated":
		return KindSubscriptionUpdated
	case "subscription_deleted":
		return KindSubscriptionDeleted
	case "invoice_payment_failed":
		return KindInvoicePaymentFailed
	case "subscription_trial_will_end":
		return KindTrialWillEnd
	default:
		return KindUnknown
	}
}

// Event is the decoded FlowPay webhook envelope.
type Event struct {
	ID   string    `json:"id"`
	Type string    `json:"type"`
	Data EventData `json:"data"`
}

// EventData carries the union of fields the handled kinds use; absent
// fields decode to zero values.
type EventData struct {
	SessionID          string `json:"session_id"`
	CustomerID         string `json:"customer"`
	SubscriptionID     string `json:"subscription"`
	PlanRef            string `json:"plan"`
	Status             string `json:"status"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
}

// ParseEvent decodes a webhook payload.
func ParseEvent(raw []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.Type) == "" {
		return nil, errors.New("webhook event missing type")
	}
	return &ev, nil
}
