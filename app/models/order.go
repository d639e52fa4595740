package models

import "time"

// Order is the durable record written when a checkout session completes.
// The unique index on SessionID guarantees at most one order per session,
// even under webhook redelivery.
type Order struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	SessionID       string    `gorm:"type:varchar(36);not null;uniqueIndex" json:"session_id"`
	BuyerEmail      string    `gorm:"type:varchar(200);not null;index" json:"buyer_email"`
	Amount          int64     `gorm:"not null" json:"amount"`
	Currency        string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	PaymentMethod   string    `gorm:"type:varchar(32);default:'card'" json:"payment_method"`
	SubscriptionID  string    `gorm:"type:varchar(191);default:'';index" json:"subscription_id"`
	PaymentIntentID string    `gorm:"type:varchar(191);default:''" json:"payment_intent_id"`
	Status          string    `gorm:"type:varchar(32);not null;default:'paid'" json:"status"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
