package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopflux/shopflux/internal/pkg/payment"
)

// memStore keeps sessions in a map and counts durable writes so tests can
// assert which write path a transition used.
type memStore struct {
	sessions     map[string]*Session
	durableSaves int
	putErr       error
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]*Session)}
}

func (m *memStore) Get(_ context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	clone := *s
	return &clone, nil
}

func (m *memStore) Put(_ context.Context, s *Session) error {
	if m.putErr != nil {
		return m.putErr
	}
	clone := *s
	m.sessions[s.ID] = &clone
	return nil
}

func (m *memStore) PutDurable(ctx context.Context, s *Session) error {
	m.durableSaves++
	return m.Put(ctx, s)
}

type fakeGateway struct {
	result *payment.Result
	err    error
	calls  []payment.ChargeInput
}

func (g *fakeGateway) Charge(_ context.Context, in payment.ChargeInput) (*payment.Result, error) {
	g.calls = append(g.calls, in)
	if g.err != nil {
		return nil, g.err
	}
	return g.result, nil
}

type fakeOrders struct {
	recorded []*Session
	err      error
}

func (o *fakeOrders) RecordOrder(_ context.Context, s *Session) error {
	if o.err != nil {
		return o.err
	}
	clone := *s
	o.recorded = append(o.recorded, &clone)
	return nil
}

func newTestService(store Store, gw payment.Gateway, orders OrderRecorder) *Service {
	if store == nil {
		store = newMemStore()
	}
	if gw == nil {
		gw = &fakeGateway{result: &payment.Result{Status: "succeeded", PaymentIntentID: "pi_1"}}
	}
	if orders == nil {
		orders = &fakeOrders{}
	}
	return NewService(store, gw, orders)
}

func proCreateInput() CreateInput {
	return CreateInput{
		Buyer: Buyer{Email: "Jane@Example.com", Name: "Jane Doe"},
		Items: []ItemInput{{ProductID: "pro", Quantity: 1}},
	}
}

func TestCreatePricesCartAndStartsPending(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	session, err := svc.Create(context.Background(), CreateInput{
		Buyer: Buyer{Email: "buyer@example.com"},
		Items: []ItemInput{
			{ProductID: "starter", Quantity: 2},
			{ProductID: "onboarding"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, session.Status)
	assert.NotEmpty(t, session.ID)
	require.Len(t, session.Items, 2)
	assert.Equal(t, int64(199), session.Items[0].UnitPrice)
	assert.Equal(t, int64(398), session.Items[0].TotalPrice)
	// Quantity zero defaults to one.
	assert.Equal(t, 1, session.Items[1].Quantity)
	assert.Equal(t, int64(398+299), session.TotalAmount)
	assert.Equal(t, "usd", session.Currency)
	assert.Equal(t, session.CreatedAt.Add(SessionTTL), session.ExpiresAt)
	assert.NotEmpty(t, session.Items[0].Features)

	stored, ok := store.sessions[session.ID]
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCreateNormalizesBuyerEmail(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", session.Buyer.Email)
}

func TestCreateRejectsUnknownTier(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Buyer: Buyer{Email: "buyer@example.com"},
		Items: []ItemInput{{ProductID: "platinum"}},
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_PRODUCT", ce.Code)
}

func TestCreateRejectsMissingEmail(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Items: []ItemInput{{ProductID: "pro"}},
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", ce.Code)
}

func TestCreateRejectsEmptyCart(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		Buyer: Buyer{Email: "buyer@example.com"},
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", ce.Code)
}

func TestGetUnknownSession(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.Get(context.Background(), "nope")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "SESSION_NOT_FOUND", ce.Code)
	assert.Equal(t, 404, ce.HTTPStatus)
}

func TestUpdateReplacesItemsAndRecomputesTotal(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)
	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), session.ID, UpdateInput{
		Items: []ItemInput{{ProductID: "enterprise", Quantity: 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusUpdated, updated.Status)
	require.Len(t, updated.Items, 1)
	assert.Equal(t, "enterprise", updated.Items[0].ProductTier)
	assert.Equal(t, int64(1999), updated.TotalAmount)
}

func TestUpdateMergesMetadataAndReplacesShipping(t *testing.T) {
	svc := newTestService(nil, nil, nil)
	session, err := svc.Create(context.Background(), CreateInput{
		Buyer:    Buyer{Email: "buyer@example.com"},
		Items:    []ItemInput{{ProductID: "starter"}},
		Metadata: map[string]string{"campaign": "spring", "ref": "ad"},
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), session.ID, UpdateInput{
		Shipping: &ShippingAddress{Line1: "1 Main St", City: "Springfield", PostalCode: "12345", Country: "US"},
		Metadata: map[string]string{"ref": "newsletter", "coupon": "SAVE10"},
	})
	require.NoError(t, err)

	require.NotNil(t, updated.Shipping)
	assert.Equal(t, "Springfield", updated.Shipping.City)
	// Merge keeps untouched keys and overwrites colliding ones.
	assert.Equal(t, "spring", updated.Metadata["campaign"])
	assert.Equal(t, "newsletter", updated.Metadata["ref"])
	assert.Equal(t, "SAVE10", updated.Metadata["coupon"])
	// Items untouched when the update omits them.
	assert.Equal(t, int64(199), updated.TotalAmount)
}

func TestUpdateRejectsCompletedSession(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)
	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	store.sessions[session.ID].Status = StatusCompleted

	_, err = svc.Update(context.Background(), session.ID, UpdateInput{
		Metadata: map[string]string{"late": "edit"},
	})
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "SESSION_ALREADY_COMPLETED", ce.Code)

	// No field was touched.
	assert.Empty(t, store.sessions[session.ID].Metadata["late"])
}

func TestCompleteOneTimePurchase(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{result: &payment.Result{
		Status:          "succeeded",
		PaymentIntentID: "pi_42",
		CustomerID:      "cus_1",
	}}
	orders := &fakeOrders{}
	svc := newTestService(store, gw, orders)

	session, err := svc.Create(context.Background(), CreateInput{
		Buyer: Buyer{Email: "buyer@example.com"},
		Items: []ItemInput{{ProductID: "starter"}},
	})
	require.NoError(t, err)

	done, err := svc.Complete(context.Background(), session.ID, "tok_visa", "")
	require.NoError(t, err)

	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Payment)
	assert.Equal(t, "card", done.Payment.Method)
	assert.Equal(t, "pi_42", done.Payment.PaymentIntentID)
	assert.Empty(t, done.Payment.SubscriptionID)
	assert.Equal(t, int64(199), done.Payment.Amount)
	require.NotNil(t, done.CompletedAt)

	// Completion is a durable write plus an order row.
	assert.Equal(t, 1, store.durableSaves)
	require.Len(t, orders.recorded, 1)
	assert.Equal(t, session.ID, orders.recorded[0].ID)

	// The gateway saw major units; conversion happens below this seam.
	require.Len(t, gw.calls, 1)
	assert.Equal(t, int64(199), gw.calls[0].TotalAmount)
	assert.Equal(t, "tok_visa", gw.calls[0].Token)
}

func TestCompleteSubscriptionCarriesPeriodEnd(t *testing.T) {
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	gw := &fakeGateway{result: &payment.Result{
		Status:           "trialing",
		SubscriptionID:   "sub_9",
		CurrentPeriodEnd: &periodEnd,
	}}
	svc := newTestService(nil, gw, nil)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	done, err := svc.Complete(context.Background(), session.ID, "tok_visa", "card")
	require.NoError(t, err)

	require.NotNil(t, done.Payment)
	assert.Equal(t, "sub_9", done.Payment.SubscriptionID)
	assert.Empty(t, done.Payment.PaymentIntentID)
	require.NotNil(t, done.Payment.CurrentPeriodEnd)
	assert.Equal(t, periodEnd, *done.Payment.CurrentPeriodEnd)
}

func TestCompleteRequiresToken(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.Complete(context.Background(), "some-id", "   ", "")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "VALIDATION_ERROR", ce.Code)
}

func TestCompleteInvalidTokenPreservesSession(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{err: payment.ErrInvalidToken}
	svc := newTestService(store, gw, nil)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.ID, "tok_bad", "")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "INVALID_PAYMENT_TOKEN", ce.Code)
	assert.Equal(t, 400, ce.HTTPStatus)

	// A rejected token is the caller's problem. The session stays open
	// so the same session can be retried with a fresh token.
	stored := store.sessions[session.ID]
	assert.Equal(t, StatusPending, stored.Status)
	assert.Equal(t, 0, store.durableSaves)

	gw.err = nil
	gw.result = &payment.Result{Status: "active", SubscriptionID: "sub_1"}
	done, err := svc.Complete(context.Background(), session.ID, "tok_good", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}

func TestCompleteGatewayFailureMovesSessionToFailed(t *testing.T) {
	store := newMemStore()
	gw := &fakeGateway{err: &payment.GatewayError{Op: "create_charge", Err: errors.New("connection reset")}}
	svc := newTestService(store, gw, nil)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.ID, "tok_visa", "")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "PAYMENT_FAILED", ce.Code)
	assert.Equal(t, 500, ce.HTTPStatus)

	stored := store.sessions[session.ID]
	assert.Equal(t, StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "connection reset")
	// The failed transition itself is written durably.
	assert.Equal(t, 1, store.durableSaves)
}

func TestCompleteTwiceIsRejected(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.ID, "tok_visa", "")
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), session.ID, "tok_visa", "")
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "SESSION_ALREADY_COMPLETED", ce.Code)
	// No second charge was attempted.
	assert.Len(t, store.sessions[session.ID].Items, 1)
	assert.Equal(t, 1, store.durableSaves)
}

func TestAccessAfterExpiryFlipsSessionExpired(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil, nil)

	base := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return base })

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	// 25 hours later, any access expires the session first.
	svc.SetClock(func() time.Time { return base.Add(25 * time.Hour) })

	_, err = svc.Get(context.Background(), session.ID)
	ce, ok := AsError(err)
	require.True(t, ok)
	assert.Equal(t, "SESSION_EXPIRED", ce.Code)
	assert.Equal(t, StatusExpired, store.sessions[session.ID].Status)

	// Expired is terminal: completion is refused too.
	_, err = svc.Complete(context.Background(), session.ID, "tok_visa", "")
	ce, ok = AsError(err)
	require.True(t, ok)
	assert.Equal(t, "SESSION_EXPIRED", ce.Code)
}

func TestCompleteSurvivesOrderRecordFailure(t *testing.T) {
	store := newMemStore()
	orders := &fakeOrders{err: errors.New("db gone")}
	svc := newTestService(store, nil, orders)

	session, err := svc.Create(context.Background(), proCreateInput())
	require.NoError(t, err)

	// The charge succeeded, so the completion must not be rolled back by
	// a missing order row.
	done, err := svc.Complete(context.Background(), session.ID, "tok_visa", "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
}
