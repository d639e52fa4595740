package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflux/shopflux/app/models"
	"github.com/shopflux/shopflux/internal/pkg/checkout"
)

func sampleSession() *checkout.Session {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	completed := now.Add(5 * time.Minute)
	periodEnd := now.AddDate(0, 1, 0)
	return &checkout.Session{
		ID:     "11111111-2222-3333-4444-555555555555",
		Status: checkout.StatusCompleted,
		Buyer: checkout.Buyer{
			Email:  "buyer@example.com",
			Name:   "Jane Doe",
			Phone:  "+1 555 0100",
			UserID: "usr_7",
		},
		Items: []checkout.LineItem{{
			ProductTier: "pro",
			ProductName: "Pro",
			Quantity:    1,
			UnitPrice:   499,
			TotalPrice:  499,
			Features:    []string{"unlimited-projects", "api-access"},
			Recurring:   true,
			PlanRef:     "price_pro_monthly",
			TrialDays:   14,
		}},
		TotalAmount: 499,
		Currency:    "usd",
		Shipping: &checkout.ShippingAddress{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		Payment: &checkout.PaymentRecord{
			Method:           "card",
			Status:           "trialing",
			SubscriptionID:   "sub_1",
			Amount:           499,
			Currency:         "usd",
			Timestamp:        completed,
			CurrentPeriodEnd: &periodEnd,
		},
		Metadata:    map[string]string{"campaign": "spring"},
		CreatedAt:   now,
		UpdatedAt:   completed,
		ExpiresAt:   now.Add(24 * time.Hour),
		CompletedAt: &completed,
	}
}

func TestRowMappingRoundTrip(t *testing.T) {
	original := sampleSession()

	row, err := toRow(original)
	require.NoError(t, err)

	assert.Equal(t, original.ID, row.ID)
	assert.Equal(t, models.SessionStatusCompleted, row.Status)
	assert.Equal(t, "buyer@example.com", row.BuyerEmail)
	assert.Equal(t, int64(499), row.TotalAmount)
	assert.NotEmpty(t, row.ItemsJSON)
	assert.NotEmpty(t, row.ShippingJSON)
	assert.NotEmpty(t, row.PaymentJSON)

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestRowMappingMinimalSession(t *testing.T) {
	now := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	original := &checkout.Session{
		ID:     "aaaaaaaa-bbbb-cccc-dddd-eeeeeeeeeeee",
		Status: checkout.StatusPending,
		Buyer:  checkout.Buyer{Email: "buyer@example.com"},
		Items: []checkout.LineItem{{
			ProductTier: "starter",
			ProductName: "Starter",
			Quantity:    1,
			UnitPrice:   199,
			TotalPrice:  199,
			Features:    []string{"single-project"},
			PlanRef:     "price_starter_onetime",
		}},
		TotalAmount: 199,
		Currency:    "usd",
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}

	row, err := toRow(original)
	require.NoError(t, err)
	// Optional sections stay empty, not "null".
	assert.Empty(t, row.ShippingJSON)
	assert.Empty(t, row.MetadataJSON)
	assert.Empty(t, row.PaymentJSON)
	assert.Nil(t, row.CompletedAt)

	back, err := fromRow(row)
	require.NoError(t, err)
	assert.Equal(t, original, back)
}

func TestFromRowRejectsCorruptItems(t *testing.T) {
	row := &models.CheckoutSession{
		ID:        "corrupt",
		Status:    models.SessionStatusPending,
		ItemsJSON: "{not json",
	}
	_, err := fromRow(row)
	assert.Error(t, err)
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "checkout:session:abc", cacheKey("abc"))
}
