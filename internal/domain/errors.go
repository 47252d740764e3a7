package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation           = errors.New("validation error")
	ErrUnauthorized         = errors.New("caller does not own this resource")
	ErrOrderNotFound        = errors.New("order not found")
	ErrAlreadyPaid          = errors.New("order already has a completed payment")
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrSignatureInvalid     = errors.New("webhook signature invalid")
	ErrUnsupportedOperation = errors.New("operation not supported by this gateway")
	ErrUnknownEvent         = errors.New("gateway event does not match any known payment")
	// ErrUnhandledEvent marks a verified, well-formed webhook whose event type
	// carries no payment transition. It must be acknowledged, not rejected:
	// the provider would otherwise retry it forever.
	ErrUnhandledEvent = errors.New("gateway event type not handled")
)

// GatewayError describes a network or provider-side failure, carrying the
// provider error code when one was returned.
type GatewayError struct {
	Provider PaymentMethod
	Code     string
	Message  string
	Err      error
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s error [%s]: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s error: %s", e.Provider, e.Message)
}

func (e *GatewayError) Unwrap() error { return e.Err }
