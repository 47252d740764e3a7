package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/util"
)

const outboxMessageTypePaymentStatus = "payment.status_changed"

// ProcessGatewayEvent is the reconciliation entry point shared by the webhook
// path and (through applyEvent) the client-driven confirm path. A gateway
// event only references its own transaction id, so that is the lookup key.
func (s *paymentService) ProcessGatewayEvent(ctx context.Context, method domain.PaymentMethod, event *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	payment, err := s.paymentRepo.GetByGatewayTransactionIDTx(ctx, s.db, method, event.GatewayTransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrPaymentNotFound) {
			// Stale or replayed test events land here; an operational
			// anomaly, not a hard error.
			s.logger.Warn("Gateway event does not match any payment",
				zap.String("method", string(method)),
				zap.String("gateway_transaction_id", event.GatewayTransactionID),
				zap.String("event_type", string(event.Type)))
			return domain.OutcomeIgnored, domain.ErrUnknownEvent
		}
		return domain.OutcomeIgnored, fmt.Errorf("failed to look up payment for gateway transaction %s: %w", event.GatewayTransactionID, err)
	}
	return s.applyEvent(ctx, payment, event)
}

// applyEvent performs the idempotent state transition: a pure transition
// computation, a single-row compare-and-set, one ledger row per delivery
// (duplicates and no-ops included), and the order notification exactly once.
func (s *paymentService) applyEvent(ctx context.Context, payment *domain.Payment, event *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	var (
		outcome domain.TransitionOutcome
		next    domain.PaymentStatus
		paidAt  *time.Time
	)

	err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		// Two attempts: if the compare-and-set loses to a concurrent
		// delivery, re-read and re-derive once. A second loss means the
		// event has already fully taken effect elsewhere.
		outcome = domain.OutcomeDuplicate
		next = payment.Status
		for attempt := 0; attempt < 2; attempt++ {
			candidate, o := domain.Transition(payment.Status, event.Type)
			if o != domain.OutcomeApplied {
				outcome = o
				next = payment.Status
				break
			}
			paidAt = nil
			if candidate == domain.PaymentStatusCompleted {
				now := time.Now()
				paidAt = &now
			}
			applied, err := s.paymentRepo.CompareAndSetStatusTx(ctx, q, payment.ID, payment.Status, candidate, paidAt, event.RawPayload)
			if err != nil {
				return err
			}
			if applied {
				outcome = domain.OutcomeApplied
				next = candidate
				break
			}
			current, err := s.paymentRepo.GetByIDTx(ctx, q, payment.ID)
			if err != nil {
				return err
			}
			payment = current
		}

		ledger := &domain.PaymentTransaction{
			ID:                   util.GenerateUUID(),
			PaymentID:            payment.ID,
			Type:                 ledgerType(event.Type),
			Amount:               payment.Amount,
			Currency:             payment.Currency,
			Status:               ledgerStatus(event.Type, outcome),
			GatewayTransactionID: event.GatewayTransactionID,
			GatewayResponse:      event.RawPayload,
			CreatedAt:            time.Now(),
		}
		if outcome != domain.OutcomeApplied {
			ledger.ErrorMessage = fmt.Sprintf("event %s %s for payment in status %s", event.Type, outcome, payment.Status)
		}
		if err := s.transactionRepo.CreateTx(ctx, q, ledger); err != nil {
			return err
		}

		if outcome == domain.OutcomeApplied {
			payload, err := json.Marshal(domain.PaymentStatusEvent{
				PaymentID:            payment.ID,
				OrderID:              payment.OrderID,
				UserID:               payment.UserID,
				Amount:               payment.Amount,
				Currency:             payment.Currency,
				Status:               string(next),
				GatewayTransactionID: event.GatewayTransactionID,
				Timestamp:            time.Now(),
			})
			if err != nil {
				return fmt.Errorf("failed to encode payment status event: %w", err)
			}
			if err := s.outboxRepo.CreateMessageTx(ctx, q, &domain.OutboxMessage{
				ID:            util.GenerateUUID(),
				AggregateID:   payment.ID,
				AggregateType: "payment",
				MessageType:   outboxMessageTypePaymentStatus,
				Key:           payment.OrderID,
				Payload:       payload,
				Status:        domain.OutboxStatusPending,
				CreatedAt:     time.Now(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.OutcomeIgnored, fmt.Errorf("failed to apply gateway event for payment %s: %w", payment.ID, err)
	}

	s.logger.Info("Gateway event reconciled",
		zap.String("payment_id", payment.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("outcome", outcome.String()),
		zap.String("status", string(next)))

	if outcome == domain.OutcomeApplied {
		s.notifyOrder(ctx, payment, next)
	}
	return outcome, nil
}

// notifyOrder pushes the order-status side effect after the transition has
// committed. The compare-and-set guarantees only the winning delivery gets
// here, so the order is never re-notified for duplicates. Failures are
// logged, not surfaced: the outbox event remains the reliable channel.
func (s *paymentService) notifyOrder(ctx context.Context, payment *domain.Payment, status domain.PaymentStatus) {
	switch status {
	case domain.PaymentStatusCompleted:
		if err := s.orderClient.UpdateStatus(ctx, payment.OrderID, orderStatusProcessing); err != nil {
			s.logger.Error("Failed to update order status after payment completion",
				zap.String("order_id", payment.OrderID),
				zap.String("payment_id", payment.ID),
				zap.Error(err))
		}
	case domain.PaymentStatusFailed:
		// Only propagate failure if no other payment attempt has already
		// paid for this order.
		if _, err := s.paymentRepo.GetCompletedByOrderIDTx(ctx, s.db, payment.OrderID); err == nil {
			return
		} else if !errors.Is(err, domain.ErrPaymentNotFound) {
			s.logger.Error("Failed to check completed payments before failure propagation",
				zap.String("order_id", payment.OrderID),
				zap.Error(err))
			return
		}
		if err := s.orderClient.UpdateStatus(ctx, payment.OrderID, orderStatusPaymentFailed); err != nil {
			s.logger.Error("Failed to update order status after payment failure",
				zap.String("order_id", payment.OrderID),
				zap.String("payment_id", payment.ID),
				zap.Error(err))
		}
	}
}

func ledgerType(event domain.EventType) domain.TransactionType {
	if event == domain.EventRefunded {
		return domain.TransactionTypeRefund
	}
	return domain.TransactionTypeCapture
}

func ledgerStatus(event domain.EventType, outcome domain.TransitionOutcome) domain.TransactionStatus {
	if outcome != domain.OutcomeApplied {
		return domain.TransactionStatusDuplicate
	}
	if event == domain.EventPaymentFailed {
		return domain.TransactionStatusFailed
	}
	return domain.TransactionStatusSuccess
}
