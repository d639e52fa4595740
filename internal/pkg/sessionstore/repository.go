package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopflux/shopflux/app/models"
	"github.com/shopflux/shopflux/internal/pkg/checkout"
)

// Repository maps checkout sessions onto their durable MySQL rows.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Find loads the durable record, returning (nil, nil) when absent.
func (r *Repository) Find(ctx context.Context, id string) (*checkout.Session, error) {
	var row models.CheckoutSession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return fromRow(&row)
}

// Save upserts the durable record for the session.
func (r *Repository) Save(ctx context.Context, session *checkout.Session) error {
	row, err := toRow(session)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(row).Error
}

// FindOverdue returns non-terminal sessions whose expiry has passed.
func (r *Repository) FindOverdue(ctx context.Context, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("status IN ? AND expires_at < ?", []string{models.SessionStatusPending, models.SessionStatusUpdated}, now).
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkExpired durably flips a session to expired without touching other
// fields.
func (r *Repository) MarkExpired(ctx context.Context, id string, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("id = ? AND status IN ?", id, []string{models.SessionStatusPending, models.SessionStatusUpdated}).
		Updates(map[string]interface{}{"status": models.SessionStatusExpired, "updated_at": now}).Error
}

// FindRecentlyUpdated lists sessions written durably since the cutoff;
// the sweeper re-caches them.
func (r *Repository) FindRecentlyUpdated(ctx context.Context, since time.Time, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&models.CheckoutSession{}).
		Where("updated_at >= ?", since).
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func toRow(s *checkout.Session) (*models.CheckoutSession, error) {
	itemsJSON, err := json.Marshal(s.Items)
	if err != nil {
		return nil, err
	}
	row := &models.CheckoutSession{
		ID:          s.ID,
		Status:      s.Status,
		BuyerEmail:  s.Buyer.Email,
		BuyerName:   s.Buyer.Name,
		BuyerPhone:  s.Buyer.Phone,
		BuyerUserID: s.Buyer.UserID,
		ItemsJSON:   string(itemsJSON),
		TotalAmount: s.TotalAmount,
		Currency:    s.Currency,
		LastError:   s.Error,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
		ExpiresAt:   s.ExpiresAt,
		CompletedAt: s.CompletedAt,
	}
	if s.Shipping != nil {
		buf, err := json.Marshal(s.Shipping)
		if err != nil {
			return nil, err
		}
		row.ShippingJSON = string(buf)
	}
	if len(s.Metadata) > 0 {
		buf, err := json.Marshal(s.Metadata)
		if err != nil {
			return nil, err
		}
		row.MetadataJSON = string(buf)
	}
	if s.Payment != nil {
		buf, err := json.Marshal(s.Payment)
		if err != nil {
			return nil, err
		}
		row.PaymentJSON = string(buf)
	}
	return row, nil
}

func fromRow(row *models.CheckoutSession) (*checkout.Session, error) {
	s := &checkout.Session{
		ID: row.ID,
		Buyer: checkout.Buyer{
			Email:  row.BuyerEmail,
			Name:   row.BuyerName,
			Phone:  row.BuyerPhone,
			UserID: row.BuyerUserID,
		},
		Status:      row.Status,
		TotalAmount: row.TotalAmount,
		Currency:    row.Currency,
		Error:       row.LastError,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
		ExpiresAt:   row.ExpiresAt,
		CompletedAt: row.CompletedAt,
	}
	if err := json.Unmarshal([]byte(row.ItemsJSON), &s.Items); err != nil {
		return nil, err
	}
	if row.ShippingJSON != "" {
		s.Shipping = &checkout.ShippingAddress{}
		if err := json.Unmarshal([]byte(row.ShippingJSON), s.Shipping); err != nil {
			return nil, err
		}
	}
	if row.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(row.MetadataJSON), &s.Metadata); err != nil {
			return nil, err
		}
	}
	if row.PaymentJSON != "" {
		s.Payment = &checkout.PaymentRecord{}
		if err := json.Unmarshal([]byte(row.PaymentJSON), s.Payment); err != nil {
			return nil, err
		}
	}
	return s, nil
}
