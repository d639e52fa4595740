package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// ErrInvalidToken means the processor rejected the payment token. The
// caller can retry the completion with a corrected token; the session is
// left untouched upstream.
var ErrInvalidToken = errors.New("invalid payment token")

// GatewayError is a communication or processing failure at the processor,
// distinct from a rejected token. The orchestrator maps it to a failed
// session.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// ChargeItem is one cart line as the gateway sees it.
type ChargeItem struct {
	PlanRef   string
	Quantity  int
	Recurring bool
	TrialDays int
}

// ChargeInput carries everything the gateway needs for one completion
// attempt. TotalAmount is in major currency units.
type ChargeInput struct {
	BuyerEmail  string
	BuyerName   string
	Items       []ChargeItem
	TotalAmount int64
	Currency    string
	Token       string
	Method      string
}

// Result references exactly one of SubscriptionID / PaymentIntentID.
type Result struct {
	CustomerID       string
	SubscriptionID   string
	PaymentIntentID  string
	Status           string
	Amount           int64
	Currency         string
	CurrentPeriodEnd *time.Time
}

// Gateway performs the blocking charge flow against the external
// processor.
type Gateway interface {
	Charge(ctx context.Context, in ChargeInput) (*Result, error)
}

// flowAPI is the slice of the FlowPay client the gateway depends on.
type flowAPI interface {
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	CreateCustomer(ctx context.Context, email, name string) (*Customer, error)
	AttachPaymentMethod(ctx context.Context, customerID, token string) error
	CreateSubscription(ctx context.Context, customerID string, items []SubscriptionItem, trialDays int) (*Subscription, error)
	CreateCharge(ctx context.Context, customerID string, amount int64, currency string) (*PaymentIntent, error)
}

type flowPayGateway struct {
	api flowAPI
}

// NewGateway wraps a FlowPay client in the charge orchestration.
func NewGateway(client *FlowPayClient) Gateway {
	return &flowPayGateway{api: client}
}

func newGatewayForAPI(api flowAPI) Gateway {
	return &flowPayGateway{api: api}
}

func (g *flowPayGateway) Charge(ctx context.Context, in ChargeInput) (*Result, error) {
	customer, err := g.ensureCustomer(ctx, in.BuyerEmail, in.BuyerName)
	if err != nil {
		return nil, &GatewayError{Op: "ensure_customer", Err: err}
	}

	if err := g.api.AttachPaymentMethod(ctx, customer.ID, in.Token); err != nil {
		var re *requestError
		if errors.As(err, &re) && re.StatusCode >= 400 && re.StatusCode < 500 {
			return nil, ErrInvalidToken
		}
		return nil, &GatewayError{Op: "attach_payment_method", Err: err}
	}

	method := in.Method
	if method == "" {
		method = "card"
	}

	// Any recurring line forces subscription mode for the whole cart;
	// non-recurring lines ride along instead of being settled separately.
	if recurring, trialDays := subscriptionShape(in.Items); recurring {
		if hasOneTimeItems(in.Items) {
			log.Warnf("mixed cart for %s charged in subscription mode", in.BuyerEmail)
		}
		items := make([]SubscriptionItem, 0, len(in.Items))
		for _, it := range in.Items {
			items = append(items, SubscriptionItem{PlanRef: it.PlanRef, Quantity: it.Quantity})
		}
		sub, err := g.api.CreateSubscription(ctx, customer.ID, items, trialDays)
		if err != nil {
			return nil, &GatewayError{Op: "create_subscription", Err: err}
		}
		res := &Result{
			CustomerID:     customer.ID,
			SubscriptionID: sub.ID,
			Status:         sub.Status,
			Amount:         in.TotalAmount,
			Currency:       in.Currency,
		}
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			res.CurrentPeriodEnd = &end
		}
		return res, nil
	}

	intent, err := g.api.CreateCharge(ctx, customer.ID, in.TotalAmount*100, in.Currency)
	if err != nil {
		return nil, &GatewayError{Op: "create_charge", Err: err}
	}
	if intent.Status != "succeeded" {
		return nil, &GatewayError{Op: "create_charge", Err: fmt.Errorf("unexpected intent status %q", intent.Status)}
	}
	return &Result{
		CustomerID:      customer.ID,
		PaymentIntentID: intent.ID,
		Status:          intent.Status,
		Amount:          in.TotalAmount,
		Currency:        in.Currency,
	}, nil
}

// ensureCustomer looks a customer up by email and creates one if absent.
// A concurrent duplicate create resolves to the existing customer, so the
// call is idempotent per email.
func (g *flowPayGateway) ensureCustomer(ctx context.Context, email, name string) (*Customer, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, errors.New("buyer email is required")
	}

	customer, err := g.api.FindCustomerByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if customer != nil {
		return customer, nil
	}

	customer, err = g.api.CreateCustomer(ctx, email, name)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, errors.New("customer create returned no customer")
	}
	return customer, nil
}

func subscriptionShape(items []ChargeItem) (bool, int) {
	recurring := false
	trialDays := 0
	for _, it := range items {
		if !it.Recurring {
			continue
		}
		recurring = true
		if it.TrialDays > trialDays {
			trialDays = it.TrialDays
		}
	}
	return recurring, trialDays
}

func hasOneTimeItems(items []ChargeItem) bool {
	for _, it := range items {
		if !it.Recurring {
			return true
		}
	}
	return false
}
