package domain

import "time"

// PaymentStatusEvent is published to Kafka through the outbox on every
// effective payment transition. Downstream consumers (notifications,
// analytics) are external to this service.
type PaymentStatusEvent struct {
	PaymentID            string    `json:"payment_id"`
	OrderID              string    `json:"order_id"`
	UserID               int64     `json:"user_id"`
	Amount               float64   `json:"amount"`
	Currency             string    `json:"currency"`
	Status               string    `json:"status"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	Timestamp            time.Time `json:"timestamp"`
}
