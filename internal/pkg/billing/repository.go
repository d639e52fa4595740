package billing

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shopflux/shopflux/app/models"
)

// Repository provides the DB operations used by the reconciler.
type Repository interface {
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	UpsertSubscription(sub *models.Subscription) error
	UpdateSubscriptionStatus(provider, providerSubscriptionID, status string) (bool, error)
	RecordInvoiceFailure(provider, providerSubscriptionID string, at time.Time) (bool, error)
	FlagTrialEndingSoon(provider, providerSubscriptionID string) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a reconciler repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"provider_customer_id",
			"plan_ref",
			"status",
			"current_period_start",
			"current_period_end",
			"cancel_at_period_end",
			"raw_payload_json",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) UpdateSubscriptionStatus(provider, providerSubscriptionID, status string) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		Updates(map[string]interface{}{"status": status})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) RecordInvoiceFailure(provider, providerSubscriptionID string, at time.Time) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		Updates(map[string]interface{}{"last_invoice_failed_at": &at})
	return tx.RowsAffected > 0, tx.Error
}

func (r *gormRepository) FlagTrialEndingSoon(provider, providerSubscriptionID string) (bool, error) {
	tx := r.db.Model(&models.Subscription{}).
		Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		Updates(map[string]interface{}{"trial_ends_soon": true})
	return tx.RowsAffected > 0, tx.Error
}
