package checkout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/shopflux/shopflux/internal/pkg/catalog"
	"github.com/shopflux/shopflux/internal/pkg/payment"
)

// SessionTTL is the fixed lifetime of a checkout session.
const SessionTTL = 24 * time.Hour

// Store is the two-tier session store seen from the orchestrator. Get
// returns (nil, nil) when no session exists under id.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	// Put writes the cache synchronously and the durable record
	// best-effort.
	Put(ctx context.Context, s *Session) error
	// PutDurable is Put with the durable write on the critical path.
	PutDurable(ctx context.Context, s *Session) error
}

// OrderRecorder persists the durable order row created by a successful
// completion.
type OrderRecorder interface {
	RecordOrder(ctx context.Context, s *Session) error
}

// ItemInput is an unpriced cart line as submitted by the client.
type ItemInput struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gte=0,lte=100"`
	VariantID string `json:"variantId,omitempty"`
}

// CreateInput opens a new session.
type CreateInput struct {
	Buyer    Buyer             `json:"buyer"`
	Items    []ItemInput       `json:"items" validate:"required,min=1,dive"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// UpdateInput mutates an existing session. Items and shipping replace
// wholesale; metadata merges.
type UpdateInput struct {
	Shipping *ShippingAddress  `json:"shipping,omitempty"`
	Items    []ItemInput       `json:"items,omitempty" validate:"omitempty,min=1,dive"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Service owns the checkout session state machine.
type Service struct {
	store    Store
	gateway  payment.Gateway
	orders   OrderRecorder
	validate *validator.Validate
	now      func() time.Time
}

// NewService wires the orchestrator.
func NewService(store Store, gateway payment.Gateway, orders OrderRecorder) *Service {
	return &Service{
		store:    store,
		gateway:  gateway,
		orders:   orders,
		validate: validator.New(),
		now:      time.Now,
	}
}

// SetClock overrides the service clock. Tests use this to drive expiry.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Create validates buyer and items, prices the cart against the catalog
// and persists a pending session with a fixed 24h expiry.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationError(err.Error())
	}

	items, total, err := s.priceItems(in.Items)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &Session{
		ID:          uuid.NewString(),
		Status:      StatusPending,
		Buyer:       normalizeBuyer(in.Buyer),
		Items:       items,
		TotalAmount: total,
		Currency:    "usd",
		Metadata:    copyMetadata(in.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(SessionTTL),
	}

	if err := s.store.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns the current snapshot. Its only side effect is the lazy
// expiry transition performed while loading.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.load(ctx, id)
}

// Update applies shipping/items/metadata changes to a live session.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*Session, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, ValidationError(err.Error())
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	// Terminal check runs before any field is touched.
	if session.Terminal() {
		return nil, ErrSessionAlreadyCompleted
	}

	if in.Items != nil {
		items, total, err := s.priceItems(in.Items)
		if err != nil {
			return nil, err
		}
		session.Items = items
		session.TotalAmount = total
	}
	if in.Shipping != nil {
		shipping := *in.Shipping
		session.Shipping = &shipping
	}
	if len(in.Metadata) > 0 {
		if session.Metadata == nil {
			session.Metadata = make(map[string]string, len(in.Metadata))
		}
		for k, v := range in.Metadata {
			session.Metadata[k] = v
		}
	}

	session.Status = StatusUpdated
	session.UpdatedAt = s.now().UTC()

	if err := s.store.Put(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Complete runs the charge flow. A rejected token leaves the session in
// its prior state; a gateway failure durably moves it to failed; success
// durably records payment, completion time and an order row.
func (s *Service) Complete(ctx context.Context, id, token, method string) (*Session, error) {
	if strings.TrimSpace(token) == "" {
		return nil, ValidationError("paymentToken is required")
	}

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return nil, ErrSessionAlreadyCompleted
	}

	result, err := s.gateway.Charge(ctx, chargeInput(session, token, method))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidToken) {
			// Caller's mistake, not a system failure: state preserved.
			return nil, ErrInvalidPaymentToken
		}

		session.Status = StatusFailed
		session.Error = err.Error()
		session.UpdatedAt = s.now().UTC()
		// The failed transition is still a successful write so the
		// failure stays auditable.
		if perr := s.store.PutDurable(ctx, session); perr != nil {
			log.Errorf("persisting failed session %s: %v", session.ID, perr)
		}
		return nil, PaymentFailedError(err.Error())
	}

	now := s.now().UTC()
	session.Payment = &PaymentRecord{
		Method:           paymentMethod(method),
		Status:           result.Status,
		SubscriptionID:   result.SubscriptionID,
		PaymentIntentID:  result.PaymentIntentID,
		Amount:           session.TotalAmount,
		Currency:         session.Currency,
		Timestamp:        now,
		CurrentPeriodEnd: result.CurrentPeriodEnd,
	}
	session.Status = StatusCompleted
	session.CompletedAt = &now
	session.UpdatedAt = now

	if err := s.store.PutDurable(ctx, session); err != nil {
		return nil, err
	}
	if err := s.orders.RecordOrder(ctx, session); err != nil {
		// The charge already happened; the webhook reconciler repairs
		// the order record on the processor's completion event.
		log.Errorf("recording order for session %s: %v", session.ID, err)
	}
	return session, nil
}

// load fetches a session and applies the lazy expiry transition: any
// access to a non-terminal session past its expiresAt first flips it to
// expired, then rejects.
func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrSessionNotFound
	}
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	if !session.Terminal() && s.now().After(session.ExpiresAt) {
		session.Status = StatusExpired
		session.UpdatedAt = s.now().UTC()
		if perr := s.store.Put(ctx, session); perr != nil {
			log.Errorf("persisting expired session %s: %v", session.ID, perr)
		}
		return nil, ErrSessionExpired
	}
	if session.Status == StatusExpired {
		return nil, ErrSessionExpired
	}
	return session, nil
}

func (s *Service) priceItems(inputs []ItemInput) ([]LineItem, int64, error) {
	items := make([]LineItem, 0, len(inputs))
	var total int64
	for _, in := range inputs {
		tier, ok := catalog.Lookup(in.ProductID)
		if !ok {
			return nil, 0, InvalidProductError(in.ProductID)
		}
		qty := in.Quantity
		if qty < 1 {
			qty = 1
		}
		item := LineItem{
			ProductTier: tier.ID,
			ProductName: tier.Name,
			Quantity:    qty,
			UnitPrice:   tier.UnitPrice,
			TotalPrice:  tier.UnitPrice * int64(qty),
			VariantID:   in.VariantID,
			Features:    tier.Snapshot(),
			Recurring:   tier.Recurring,
			PlanRef:     tier.PlanRef,
			TrialDays:   tier.TrialDays,
		}
		items = append(items, item)
		total += item.TotalPrice
	}
	return items, total, nil
}

func chargeInput(s *Session, token, method string) payment.ChargeInput {
	items := make([]payment.ChargeItem, 0, len(s.Items))
	for _, it := range s.Items {
		items = append(items, payment.ChargeItem{
			PlanRef:   it.PlanRef,
			Quantity:  it.Quantity,
			Recurring: it.Recurring,
			TrialDays: it.TrialDays,
		})
	}
	return payment.ChargeInput{
		BuyerEmail:  s.Buyer.Email,
		BuyerName:   s.Buyer.Name,
		Items:       items,
		TotalAmount: s.TotalAmount,
		Currency:    s.Currency,
		Token:       token,
		Method:      paymentMethod(method),
	}
}

func paymentMethod(method string) string {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		return "card"
	}
	return method
}

func normalizeBuyer(b Buyer) Buyer {
	b.Email = strings.ToLower(strings.TrimSpace(b.Email))
	b.Name = strings.TrimSpace(b.Name)
	b.Phone = strings.TrimSpace(b.Phone)
	b.UserID = strings.TrimSpace(b.UserID)
	return b
}

func copyMetadata(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
