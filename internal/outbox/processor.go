// Package outbox publishes committed payment-status events to Kafka. Events
// are written to the outbox_messages table inside the same transaction as the
// payment transition, so the poller here can never publish a transition that
// did not happen.
package outbox

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/infrastructure/database"
	kafka_infra "payments/internal/infrastructure/kafka"
	"payments/internal/repository/outbox_repo"
)

const batchSize = 10

type Processor struct {
	tx           database.TxRunner
	outboxRepo   outbox_repo.OutboxRepository
	producer     kafka_infra.Producer
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       *zap.Logger
}

func NewProcessor(
	tx database.TxRunner,
	outboxRepo outbox_repo.OutboxRepository,
	producer kafka_infra.Producer,
	pollInterval time.Duration,
	pollTimeout time.Duration,
	logger *zap.Logger,
) *Processor {
	return &Processor{
		tx:           tx,
		outboxRepo:   outboxRepo,
		producer:     producer,
		pollInterval: pollInterval,
		pollTimeout:  pollTimeout,
		logger:       logger,
	}
}

// Start polls until the context is cancelled. It blocks; run it in its own
// goroutine.
func (p *Processor) Start(ctx context.Context) {
	p.logger.Info("Starting outbox processor", zap.Duration("poll_interval", p.pollInterval))
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopping")
			return
		case <-ticker.C:
			p.processPending(ctx)
		}
	}
}

func (p *Processor) processPending(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, p.pollTimeout)
	defer cancel()

	// Fetch and publish inside one transaction so the SKIP LOCKED row locks
	// taken by the fetch are still held while the messages are marked sent.
	err := p.tx.WithinTx(pollCtx, func(q domain.Querier) error {
		messages, err := p.outboxRepo.GetPendingMessages(pollCtx, q, batchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending outbox messages: %w", err)
		}
		if len(messages) == 0 {
			return nil
		}

		p.logger.Debug("Found pending outbox messages", zap.Int("count", len(messages)))

		for _, msg := range messages {
			if err := p.producer.Produce(pollCtx, msg.Key, msg.Payload); err != nil {
				return fmt.Errorf("failed to publish outbox message %s: %w", msg.ID, err)
			}
			if err := p.outboxRepo.UpdateMessageStatusTx(pollCtx, q, msg.ID, domain.OutboxStatusSent); err != nil {
				return err
			}
			p.logger.Info("Outbox message published",
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.MessageType))
		}
		return nil
	})
	if err != nil {
		p.logger.Error("Outbox publish batch failed", zap.Error(err))
	}
}
