package domain

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_succeeded"
	EventPaymentFailed    EventType = "payment_failed"
	EventRefunded         EventType = "refunded"
)

// GatewayEvent is the canonical form of a provider notification after
// signature verification and payload normalization. A gateway event only ever
// references its own transaction, never an order.
type GatewayEvent struct {
	Type                 EventType
	GatewayTransactionID string
	RawPayload           []byte
}

// GatewayStatus is the canonical status vocabulary adapters map each
// provider's own vocabulary into.
type GatewayStatus string

const (
	GatewayStatusPending    GatewayStatus = "pending"
	GatewayStatusProcessing GatewayStatus = "processing"
	GatewayStatusCompleted  GatewayStatus = "completed"
	GatewayStatusFailed     GatewayStatus = "failed"
	GatewayStatusUnknown    GatewayStatus = "unknown"
)

// EventForStatus converts a polled gateway status into the event the shared
// transition function understands. The second return is false when the status
// carries no transition (still pending, or the provider could not say).
func EventForStatus(s GatewayStatus) (EventType, bool) {
	switch s {
	case GatewayStatusCompleted:
		return EventPaymentSucceeded, true
	case GatewayStatusFailed:
		return EventPaymentFailed, true
	}
	return "", false
}
