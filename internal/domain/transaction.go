package domain

import "time"

type TransactionType string

const (
	TransactionTypeAuthorize TransactionType = "authorize"
	TransactionTypeCapture   TransactionType = "capture"
	TransactionTypeRefund    TransactionType = "refund"
	TransactionTypeVoid      TransactionType = "void"
)

type TransactionStatus string

const (
	TransactionStatusSuccess TransactionStatus = "success"
	TransactionStatusFailed  TransactionStatus = "failed"
	TransactionStatusPending TransactionStatus = "pending"
	// TransactionStatusDuplicate flags a ledger entry written for an event
	// that was delivered again after it had already taken effect. The row is
	// kept so the audit trail covers every delivery, including no-ops.
	TransactionStatusDuplicate TransactionStatus = "duplicate"
)

// PaymentTransaction is an append-only ledger entry, one per gateway event
// processed. Rows are never mutated or deleted.
type PaymentTransaction struct {
	ID                   string
	PaymentID            string
	Type                 TransactionType
	Amount               float64
	Currency             string
	Status               TransactionStatus
	GatewayTransactionID string
	GatewayResponse      []byte
	ErrorMessage         string
	CreatedAt            time.Time
}
