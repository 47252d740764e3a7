package payments_repo

import (
	"context"
	"time"

	"payments/internal/domain"
)

type PaymentRepository interface {
	CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error
	GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error)
	// GetByGatewayTransactionIDTx looks a payment up the way a webhook sees
	// it: by the provider's own transaction id, scoped to the provider.
	GetByGatewayTransactionIDTx(ctx context.Context, querier domain.Querier, method domain.PaymentMethod, gatewayTxID string) (*domain.Payment, error)
	GetCompletedByOrderIDTx(ctx context.Context, querier domain.Querier, orderID string) (*domain.Payment, error)
	ListByUserTx(ctx context.Context, querier domain.Querier, userID int64, limit, offset int) ([]domain.Payment, error)
	// SetGatewayTransactionTx records the adapter's createPayment response on
	// a freshly initiated payment.
	SetGatewayTransactionTx(ctx context.Context, querier domain.Querier, id, gatewayTxID string, response []byte, status domain.PaymentStatus) error
	// CompareAndSetStatusTx performs the atomic single-row transition:
	// UPDATE ... WHERE id = $id AND status = $from. It returns false when the
	// row was not in the expected status, which is how a concurrent duplicate
	// delivery loses the race.
	CompareAndSetStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.PaymentStatus, paidAt *time.Time, response []byte) (bool, error)
}
