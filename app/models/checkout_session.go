package models

import "time"

// Checkout session lifecycle states. Completed, failed and expired are
// terminal: no row ever leaves them again.
const (
	SessionStatusPending   = "pending"
	SessionStatusUpdated   = "updated"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
	SessionStatusExpired   = "expired"
)

// CheckoutSession is the durable record of a checkout session. The
// structured parts (items, shipping, metadata, payment) are stored as JSON
// columns; the session cache holds the same JSON shape, so a cache miss can
// be reconstructed from this row alone.
type CheckoutSession struct {
	ID           string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	Status       string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	BuyerEmail   string     `gorm:"type:varchar(200);not null;index" json:"buyer_email"`
	BuyerName    string     `gorm:"type:varchar(150);default:''" json:"buyer_name"`
	BuyerPhone   string     `gorm:"type:varchar(50);default:''" json:"buyer_phone"`
	BuyerUserID  string     `gorm:"type:varchar(64);default:'';index" json:"buyer_user_id"`
	ItemsJSON    string     `gorm:"type:longtext;not null" json:"items_json"`
	TotalAmount  int64      `gorm:"not null" json:"total_amount"`
	Currency     string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	ShippingJSON string     `gorm:"type:text" json:"shipping_json"`
	MetadataJSON string     `gorm:"type:text" json:"metadata_json"`
	PaymentJSON  string     `gorm:"type:text" json:"payment_json"`
	LastError    string     `gorm:"type:text" json:"last_error"`
	CreatedAt    time.Time  `gorm:"type:timestamp;not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"type:timestamp;not null" json:"updated_at"`
	ExpiresAt    time.Time  `gorm:"type:timestamp;not null;index" json:"expires_at"`
	CompletedAt  *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// IsTerminalSessionStatus reports whether a status permits no further
// transitions.
func IsTerminalSessionStatus(status string) bool {
	switch status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusExpired:
		return true
	default:
		return false
	}
}
