package transactions_repo

import (
	"context"

	"payments/internal/domain"
)

// TransactionRepository is the append-only ledger. There is deliberately no
// update or delete: rows written here are the audit trail.
type TransactionRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, transaction *domain.PaymentTransaction) error
	ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) ([]domain.PaymentTransaction, error)
}
