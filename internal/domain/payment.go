package domain

import (
	"fmt"
	"time"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

type PaymentMethod string

const (
	MethodCardProcessor   PaymentMethod = "card-processor"
	MethodWalletProcessor PaymentMethod = "wallet-processor"
	MethodHashProcessor   PaymentMethod = "hash-processor"
)

// ParseMethod validates a client-supplied payment method string.
func ParseMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(s) {
	case MethodCardProcessor, MethodWalletProcessor, MethodHashProcessor:
		return PaymentMethod(s), nil
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrValidation, s)
}

// Payment is the current-state view of one payment attempt on an order.
// It is created by the orchestrator in state pending and afterwards mutated
// only through the reconciler's compare-and-set transition.
type Payment struct {
	ID                   string
	OrderID              string
	UserID               int64
	Amount               float64
	Currency             string
	Method               PaymentMethod
	Status               PaymentStatus
	GatewayTransactionID string
	GatewayResponse      []byte
	PaidAt               *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Terminal reports whether no further transition except completed→refunded
// is permitted out of the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusFailed || s == PaymentStatusRefunded
}
