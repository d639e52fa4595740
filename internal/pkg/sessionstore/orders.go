package sessionstore

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopflux/shopflux/app/models"
	"github.com/shopflux/shopflux/internal/pkg/checkout"
)

// OrderRecorder writes the durable order row on completion. The unique
// session id column plus ON CONFLICT DO NOTHING keeps it idempotent, so a
// second completion attempt or a webhook replay never duplicates an order.
type OrderRecorder struct {
	db *gorm.DB
}

func NewOrderRecorder(db *gorm.DB) *OrderRecorder {
	return &OrderRecorder{db: db}
}

func (r *OrderRecorder) RecordOrder(ctx context.Context, s *checkout.Session) error {
	if s.Payment == nil {
		return errors.New("session has no payment record")
	}
	order := &models.Order{
		SessionID:       s.ID,
		BuyerEmail:      s.Buyer.Email,
		Amount:          s.TotalAmount,
		Currency:        s.Currency,
		PaymentMethod:   s.Payment.Method,
		SubscriptionID:  s.Payment.SubscriptionID,
		PaymentIntentID: s.Payment.PaymentIntentID,
		Status:          "paid",
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}},
		DoNothing: true,
	}).Create(order).Error
}
