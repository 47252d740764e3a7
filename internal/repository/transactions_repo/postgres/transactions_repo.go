package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"payments/internal/domain"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) CreateTx(ctx context.Context, querier domain.Querier, transaction *domain.PaymentTransaction) error {
	query := `
		INSERT INTO payment_transactions (id, payment_id, transaction_type, amount, currency, status, gateway_transaction_id, gateway_response, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var errMsg sql.NullString
	if transaction.ErrorMessage != "" {
		errMsg = sql.NullString{String: transaction.ErrorMessage, Valid: true}
	}
	var gatewayTxID sql.NullString
	if transaction.GatewayTransactionID != "" {
		gatewayTxID = sql.NullString{String: transaction.GatewayTransactionID, Valid: true}
	}
	_, err := querier.ExecContext(ctx, query,
		transaction.ID,
		transaction.PaymentID,
		transaction.Type,
		transaction.Amount,
		transaction.Currency,
		transaction.Status,
		gatewayTxID,
		transaction.GatewayResponse,
		errMsg,
		transaction.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment transaction: %w", err)
	}
	return nil
}

func (r *TransactionRepository) ListByPaymentTx(ctx context.Context, querier domain.Querier, paymentID string) ([]domain.PaymentTransaction, error) {
	query := `
		SELECT id, payment_id, transaction_type, amount, currency, status, gateway_transaction_id, gateway_response, error_message, created_at
		FROM payment_transactions
		WHERE payment_id = $1
		ORDER BY created_at ASC
	`
	rows, err := querier.QueryContext(ctx, query, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for payment %s: %w", paymentID, err)
	}
	defer rows.Close()

	var transactions []domain.PaymentTransaction
	for rows.Next() {
		t := domain.PaymentTransaction{}
		var gatewayTxID, errMsg sql.NullString
		err := rows.Scan(
			&t.ID,
			&t.PaymentID,
			&t.Type,
			&t.Amount,
			&t.Currency,
			&t.Status,
			&gatewayTxID,
			&t.GatewayResponse,
			&errMsg,
			&t.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment transaction: %w", err)
		}
		if gatewayTxID.Valid {
			t.GatewayTransactionID = gatewayTxID.String
		}
		if errMsg.Valid {
			t.ErrorMessage = errMsg.String
		}
		transactions = append(transactions, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating payment transactions: %w", err)
	}
	return transactions, nil
}
