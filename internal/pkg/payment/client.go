package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopflux/shopflux/internal/pkg/env"
)

const defaultFlowPayAPIBaseURL = "https://api.flowpay.dev/v1"

// FlowPayClient is a thin typed client for the FlowPay REST API. Every
// request is bounded by the HTTP client timeout; a timed-out charge is
// reported as an error and never left pending.
type FlowPayClient struct {
	SecretKey  string
	APIBaseURL string

	HTTPClient *http.Client
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type SubscriptionItem struct {
	PlanRef  string `json:"plan"`
	Quantity int    `json:"quantity"`
}

type Subscription struct {
	ID                 string `json:"id"`
	CustomerID         string `json:"customer"`
	Status             string `json:"status"`
	PlanRef            string `json:"plan"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	TrialEnd           int64  `json:"trial_end"`
}

type PaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// NewFlowPayClientFromEnv builds a client from FLOWPAY_* environment
// configuration.
func NewFlowPayClientFromEnv() *FlowPayClient {
	return &FlowPayClient{
		SecretKey:  strings.TrimSpace(env.GetEnv("FLOWPAY_SECRET_KEY", "")),
		APIBaseURL: strings.TrimRight(env.GetEnv("FLOWPAY_API_BASE_URL", defaultFlowPayAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// FindCustomerByEmail returns the first customer matching email, or nil
// when none exists.
func (c *FlowPayClient) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	u, err := url.Parse(c.APIBaseURL + "/customers")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("email", email)
	q.Set("limit", "1")
	u.RawQuery = q.Encode()

	var out struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, u.String(), nil, &out); err != nil {
		return nil, err
	}
	if len(out.Data) == 0 {
		return nil, nil
	}
	return &out.Data[0], nil
}

// CreateCustomer creates a customer. A "customer_exists" rejection is not
// an error at this level; callers re-resolve by email to tolerate the
// concurrent-create race.
func (c *FlowPayClient) CreateCustomer(ctx context.Context, email, name string) (*Customer, error) {
	body := map[string]string{"email": strings.TrimSpace(email), "name": strings.TrimSpace(name)}
	var out Customer
	err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/customers", body, &out)
	if err != nil {
		var re *requestError
		if errors.As(err, &re) && re.Type == "customer_exists" {
			return c.FindCustomerByEmail(ctx, email)
		}
		return nil, err
	}
	return &out, nil
}

// AttachPaymentMethod attaches a tokenized payment method to the customer
// and marks it the default for future invoices.
func (c *FlowPayClient) AttachPaymentMethod(ctx context.Context, customerID, token string) error {
	if strings.TrimSpace(customerID) == "" || strings.TrimSpace(token) == "" {
		return &requestError{StatusCode: http.StatusBadRequest, Type: "invalid_request", Message: "customer and token are required"}
	}
	body := map[string]interface{}{
		"customer":    customerID,
		"set_default": true,
	}
	return c.do(ctx, http.MethodPost, c.APIBaseURL+"/payment_methods/"+url.PathEscape(token)+"/attach", body, nil)
}

// CreateSubscription opens a subscription covering items, with an optional
// trial period in days.
func (c *FlowPayClient) CreateSubscription(ctx context.Context, customerID string, items []SubscriptionItem, trialDays int) (*Subscription, error) {
	body := map[string]interface{}{
		"customer": customerID,
		"items":    items,
	}
	if trialDays > 0 {
		body["trial_period_days"] = trialDays
	}
	var out Subscription
	if err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/subscriptions", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateCharge creates and immediately confirms a one-time charge. Amount
// is in minor currency units.
func (c *FlowPayClient) CreateCharge(ctx context.Context, customerID string, amount int64, currency string) (*PaymentIntent, error) {
	body := map[string]interface{}{
		"customer": customerID,
		"amount":   amount,
		"currency": strings.ToLower(currency),
		"confirm":  true,
	}
	var out PaymentIntent
	if err := c.do(ctx, http.MethodPost, c.APIBaseURL+"/charges", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetSubscription fetches current subscription state by id.
func (c *FlowPayClient) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if strings.TrimSpace(subscriptionID) == "" {
		return nil, errors.New("subscription id is required")
	}
	var out Subscription
	if err := c.do(ctx, http.MethodGet, c.APIBaseURL+"/subscriptions/"+url.PathEscape(subscriptionID), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// requestError is a non-2xx API response. Transport failures surface as
// plain errors from the HTTP client instead.
type requestError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *requestError) Error() string {
	return fmt.Sprintf("flowpay request failed: status=%d type=%s message=%s", e.StatusCode, e.Type, e.Message)
}

func (c *FlowPayClient) do(ctx context.Context, method, rawURL string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envlp errorEnvelope
		_ = json.Unmarshal(respBody, &envlp)
		return &requestError{
			StatusCode: resp.StatusCode,
			Type:       envlp.Error.Type,
			Message:    envlp.Error.Message,
		}
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}
