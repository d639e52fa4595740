package checkout

import "time"

// Buyer identifies who is checking out. UserID links an internal account
// when the caller is authenticated; identity itself lives outside this
// service.
type Buyer struct {
	Email  string `json:"email" validate:"required,email"`
	Name   string `json:"name,omitempty" validate:"max=150"`
	Phone  string `json:"phone,omitempty" validate:"max=50"`
	UserID string `json:"userId,omitempty" validate:"max=64"`
}

// LineItem is one priced cart line. Pricing fields and the feature
// snapshot are fixed at creation time so later catalog changes never
// retroactively alter a quoted session.
type LineItem struct {
	ProductTier string   `json:"productTier"`
	ProductName string   `json:"productName"`
	Quantity    int      `json:"quantity"`
	UnitPrice   int64    `json:"unitPrice"`
	TotalPrice  int64    `json:"totalPrice"`
	VariantID   string   `json:"variantId,omitempty"`
	Features    []string `json:"features"`
	Recurring   bool     `json:"recurring"`
	PlanRef     string   `json:"planRef"`
	TrialDays   int      `json:"trialDays,omitempty"`
}

// ShippingAddress is replaced wholesale on update, never patched.
type ShippingAddress struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

// PaymentRecord is present only once a completion was attempted. Exactly
// one of SubscriptionID / PaymentIntentID is set.
type PaymentRecord struct {
	Method          string    `json:"method"`
	Status          string    `json:"status"`
	SubscriptionID  string    `json:"subscriptionId,omitempty"`
	PaymentIntentID string    `json:"paymentIntentId,omitempty"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Timestamp       time.Time `json:"timestamp"`
	// CurrentPeriodEnd is set only in subscription mode.
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

// Session is the checkout aggregate root. The JSON shape doubles as the
// cache encoding and the API snapshot.
type Session struct {
	ID          string            `json:"sessionId"`
	Status      string            `json:"status"`
	Buyer       Buyer             `json:"buyer"`
	Items       []LineItem        `json:"items"`
	TotalAmount int64             `json:"totalAmount"`
	Currency    string            `json:"currency"`
	Shipping    *ShippingAddress  `json:"shipping,omitempty"`
	Payment     *PaymentRecord    `json:"payment,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	ExpiresAt   time.Time         `json:"expiresAt"`
	CompletedAt *time.Time        `json:"completedAt,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Terminal reports whether the session permits further transitions.
func (s *Session) Terminal() bool {
	switch s.Status {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}

const (
	StatusPending   = "pending"
	StatusUpdated   = "updated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusExpired   = "expired"
)
