package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"payments/internal/domain"
)

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, order_id, user_id, amount, currency, method, status, gateway_transaction_id, gateway_response, paid_at, created_at, updated_at`

func scanPayment(row interface {
	Scan(dest ...interface{}) error
}) (*domain.Payment, error) {
	payment := &domain.Payment{}
	var gatewayTxID sql.NullString
	var gatewayResponse []byte
	var paidAt sql.NullTime
	err := row.Scan(
		&payment.ID,
		&payment.OrderID,
		&payment.UserID,
		&payment.Amount,
		&payment.Currency,
		&payment.Method,
		&payment.Status,
		&gatewayTxID,
		&gatewayResponse,
		&paidAt,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if gatewayTxID.Valid {
		payment.GatewayTransactionID = gatewayTxID.String
	}
	payment.GatewayResponse = gatewayResponse
	if paidAt.Valid {
		payment.PaidAt = &paidAt.Time
	}
	return payment, nil
}

func (r *PaymentRepository) CreateTx(ctx context.Context, querier domain.Querier, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (id, order_id, user_id, amount, currency, method, status, gateway_transaction_id, gateway_response, paid_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	var gatewayTxID sql.NullString
	if payment.GatewayTransactionID != "" {
		gatewayTxID = sql.NullString{String: payment.GatewayTransactionID, Valid: true}
	}
	var paidAt sql.NullTime
	if payment.PaidAt != nil {
		paidAt = sql.NullTime{Time: *payment.PaidAt, Valid: true}
	}
	_, err := querier.ExecContext(ctx, query,
		payment.ID,
		payment.OrderID,
		payment.UserID,
		payment.Amount,
		payment.Currency,
		payment.Method,
		payment.Status,
		gatewayTxID,
		payment.GatewayResponse,
		paidAt,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByIDTx(ctx context.Context, querier domain.Querier, id string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by id %s: %w", id, err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetByGatewayTransactionIDTx(ctx context.Context, querier domain.Querier, method domain.PaymentMethod, gatewayTxID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE method = $1 AND gateway_transaction_id = $2`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, method, gatewayTxID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by gateway transaction id %s: %w", gatewayTxID, err)
	}
	return payment, nil
}

func (r *PaymentRepository) GetCompletedByOrderIDTx(ctx context.Context, querier domain.Querier, orderID string) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE order_id = $1 AND status = $2`
	payment, err := scanPayment(querier.QueryRowContext(ctx, query, orderID, domain.PaymentStatusCompleted))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get completed payment for order %s: %w", orderID, err)
	}
	return payment, nil
}

func (r *PaymentRepository) ListByUserTx(ctx context.Context, querier domain.Querier, userID int64, limit, offset int) ([]domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := querier.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments for user %d: %w", userID, err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *payment)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payments: %w", err)
	}
	return payments, nil
}

func (r *PaymentRepository) SetGatewayTransactionTx(ctx context.Context, querier domain.Querier, id, gatewayTxID string, response []byte, status domain.PaymentStatus) error {
	query := `
		UPDATE payments
		SET gateway_transaction_id = $1, gateway_response = $2, status = $3, updated_at = $4
		WHERE id = $5
	`
	var txID sql.NullString
	if gatewayTxID != "" {
		txID = sql.NullString{String: gatewayTxID, Valid: true}
	}
	res, err := querier.ExecContext(ctx, query, txID, response, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set gateway transaction for payment %s: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for payment %s: %w", id, err)
	}
	if rowsAffected == 0 {
		return domain.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) CompareAndSetStatusTx(ctx context.Context, querier domain.Querier, id string, from, to domain.PaymentStatus, paidAt *time.Time, response []byte) (bool, error) {
	// paid_at is set exactly once: COALESCE keeps the first value on any
	// later update that happens to pass one in.
	query := `
		UPDATE payments
		SET status = $1,
		    paid_at = COALESCE(paid_at, $2),
		    gateway_response = COALESCE($3, gateway_response),
		    updated_at = $4
		WHERE id = $5 AND status = $6
	`
	var paid sql.NullTime
	if paidAt != nil {
		paid = sql.NullTime{Time: *paidAt, Valid: true}
	}
	res, err := querier.ExecContext(ctx, query, to, paid, response, time.Now(), id, from)
	if err != nil {
		return false, fmt.Errorf("failed to transition payment %s from %s to %s: %w", id, from, to, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected for payment transition: %w", err)
	}
	return rowsAffected == 1, nil
}
