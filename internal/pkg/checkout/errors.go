package checkout

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a machine-coded checkout failure. Code and HTTPStatus map
// directly onto the API error contract.
type Error struct {
	Code       string
	HTTPStatus int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newError(code string, status int, message string) *Error {
	return &Error{Code: code, HTTPStatus: status, Message: message}
}

var (
	ErrSessionNotFound         = newError("SESSION_NOT_FOUND", http.StatusNotFound, "checkout session not found")
	ErrSessionExpired          = newError("SESSION_EXPIRED", http.StatusBadRequest, "checkout session has expired")
	ErrSessionAlreadyCompleted = newError("SESSION_ALREADY_COMPLETED", http.StatusBadRequest, "checkout session is already finalized")
	ErrInvalidPaymentToken     = newError("INVALID_PAYMENT_TOKEN", http.StatusBadRequest, "payment token was rejected, retry with a new token")
)

// ValidationError wraps a local input problem as a 400.
func ValidationError(message string) *Error {
	return newError("VALIDATION_ERROR", http.StatusBadRequest, message)
}

// InvalidProductError flags an unknown product tier.
func InvalidProductError(tier string) *Error {
	return newError("INVALID_PRODUCT", http.StatusBadRequest, fmt.Sprintf("unknown product tier %q", tier))
}

// PaymentFailedError reports a gateway failure that moved the session to
// failed.
func PaymentFailedError(cause string) *Error {
	return newError("PAYMENT_FAILED", http.StatusInternalServerError, cause)
}

// AsError extracts a coded checkout error from an error chain.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
