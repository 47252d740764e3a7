package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"payments/internal/client/orders"
	"payments/internal/domain"
	"payments/internal/gateway"
	"payments/internal/infrastructure/database"
	"payments/internal/repository/outbox_repo"
	"payments/internal/repository/payments_repo"
	"payments/internal/repository/transactions_repo"
	"payments/internal/util"
)

// OrderClient is the order-service collaborator contract: fetch by id and
// set the status field. Order lifecycle is owned elsewhere.
type OrderClient interface {
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	UpdateStatus(ctx context.Context, orderID, status string) error
}

// Order statuses pushed to the collaborator on payment transitions.
const (
	orderStatusProcessing    = "processing"
	orderStatusPaymentFailed = "payment_failed"
)

// InitiateResult is returned to the client exactly as the gateway shaped it:
// a client secret, an approval URL, or an action URL with form fields.
type InitiateResult struct {
	PaymentID     string
	TransactionID string
	Status        domain.PaymentStatus
	ClientSecret  string
	ApprovalURL   string
	ActionURL     string
	PaymentData   map[string]string
}

// RefundResult reports how a refund request ended. ManualActionRequired is
// set for gateways without an API refund; nothing transitions in that case.
type RefundResult struct {
	Outcome              domain.TransitionOutcome
	ManualActionRequired bool
	RefundID             string
	Payment              *domain.Payment
}

type PaymentService interface {
	Initiate(ctx context.Context, orderID string, userID int64, method domain.PaymentMethod, currency string) (*InitiateResult, error)
	Confirm(ctx context.Context, paymentID string, userID int64, transactionID string) (*domain.Payment, error)
	Status(ctx context.Context, paymentID string, userID int64) (*domain.Payment, error)
	History(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error)
	Refund(ctx context.Context, paymentID string, userID int64, amount float64) (*RefundResult, error)
	ProcessGatewayEvent(ctx context.Context, method domain.PaymentMethod, event *domain.GatewayEvent) (domain.TransitionOutcome, error)
}

type paymentService struct {
	db              domain.Querier
	tx              database.TxRunner
	paymentRepo     payments_repo.PaymentRepository
	transactionRepo transactions_repo.TransactionRepository
	outboxRepo      outbox_repo.OutboxRepository
	registry        *gateway.Registry
	orderClient     OrderClient
	gatewayTimeout  time.Duration
	logger          *zap.Logger
}

func NewPaymentService(
	db domain.Querier,
	tx database.TxRunner,
	paymentRepo payments_repo.PaymentRepository,
	transactionRepo transactions_repo.TransactionRepository,
	outboxRepo outbox_repo.OutboxRepository,
	registry *gateway.Registry,
	orderClient OrderClient,
	gatewayTimeout time.Duration,
	logger *zap.Logger,
) PaymentService {
	return &paymentService{
		db:              db,
		tx:              tx,
		paymentRepo:     paymentRepo,
		transactionRepo: transactionRepo,
		outboxRepo:      outboxRepo,
		registry:        registry,
		orderClient:     orderClient,
		gatewayTimeout:  gatewayTimeout,
		logger:          logger,
	}
}

func (s *paymentService) Initiate(ctx context.Context, orderID string, userID int64, method domain.PaymentMethod, currency string) (*InitiateResult, error) {
	if orderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}

	order, err := s.orderClient.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to resolve order %s: %w", orderID, err)
	}
	if order.UserID != userID {
		s.logger.Warn("Initiate rejected: caller does not own the order",
			zap.String("order_id", orderID),
			zap.Int64("caller_id", userID))
		return nil, domain.ErrUnauthorized
	}

	// Idempotent guard at initiation time, not just at reconciliation time.
	if _, err := s.paymentRepo.GetCompletedByOrderIDTx(ctx, s.db, orderID); err == nil {
		return nil, domain.ErrAlreadyPaid
	} else if !errors.Is(err, domain.ErrPaymentNotFound) {
		return nil, fmt.Errorf("failed to check existing payments for order %s: %w", orderID, err)
	}

	adapter, ok := s.registry.Adapter(method)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for method %q", domain.ErrValidation, method)
	}

	if currency == "" {
		currency = order.Currency
	} else if currency != order.Currency {
		return nil, fmt.Errorf("%w: requested currency %s does not match order currency %s", domain.ErrValidation, currency, order.Currency)
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:        util.GenerateUUID(),
		OrderID:   orderID,
		UserID:    userID,
		Amount:    order.Amount,
		Currency:  currency,
		Method:    method,
		Status:    domain.PaymentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.paymentRepo.CreateTx(ctx, s.db, payment); err != nil {
		return nil, fmt.Errorf("failed to create payment for order %s: %w", orderID, err)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, gwErr := adapter.CreatePayment(gwCtx, gateway.CreateRequest{
		OrderID:     orderID,
		PaymentID:   payment.ID,
		Amount:      payment.Amount,
		Currency:    currency,
		Description: "Payment for order " + orderID,
	})
	if gwErr != nil {
		s.logger.Error("Gateway rejected payment initiation",
			zap.String("payment_id", payment.ID),
			zap.String("method", string(method)),
			zap.Error(gwErr))
		if txErr := s.tx.WithinTx(ctx, func(q domain.Querier) error {
			if _, err := s.paymentRepo.CompareAndSetStatusTx(ctx, q, payment.ID, domain.PaymentStatusPending, domain.PaymentStatusFailed, nil, nil); err != nil {
				return err
			}
			return s.transactionRepo.CreateTx(ctx, q, &domain.PaymentTransaction{
				ID:           util.GenerateUUID(),
				PaymentID:    payment.ID,
				Type:         domain.TransactionTypeAuthorize,
				Amount:       payment.Amount,
				Currency:     currency,
				Status:       domain.TransactionStatusFailed,
				ErrorMessage: gwErr.Error(),
				CreatedAt:    time.Now(),
			})
		}); txErr != nil {
			s.logger.Error("Failed to record initiation failure", zap.String("payment_id", payment.ID), zap.Error(txErr))
		}
		return nil, fmt.Errorf("payment initiation failed: %w", gwErr)
	}

	if err := s.tx.WithinTx(ctx, func(q domain.Querier) error {
		if err := s.paymentRepo.SetGatewayTransactionTx(ctx, q, payment.ID, result.TransactionID, result.Raw, domain.PaymentStatusProcessing); err != nil {
			return err
		}
		return s.transactionRepo.CreateTx(ctx, q, &domain.PaymentTransaction{
			ID:                   util.GenerateUUID(),
			PaymentID:            payment.ID,
			Type:                 domain.TransactionTypeAuthorize,
			Amount:               payment.Amount,
			Currency:             currency,
			Status:               domain.TransactionStatusPending,
			GatewayTransactionID: result.TransactionID,
			GatewayResponse:      result.Raw,
			CreatedAt:            time.Now(),
		})
	}); err != nil {
		return nil, fmt.Errorf("failed to persist gateway response for payment %s: %w", payment.ID, err)
	}

	s.logger.Info("Payment initiated",
		zap.String("payment_id", payment.ID),
		zap.String("order_id", orderID),
		zap.String("method", string(method)),
		zap.String("gateway_transaction_id", result.TransactionID))

	return &InitiateResult{
		PaymentID:     payment.ID,
		TransactionID: result.TransactionID,
		Status:        domain.PaymentStatusProcessing,
		ClientSecret:  result.ClientSecret,
		ApprovalURL:   result.ApprovalURL,
		ActionURL:     result.ActionURL,
		PaymentData:   result.PaymentData,
	}, nil
}

// Confirm is the client-driven confirmation path (redirect return). It polls
// the gateway and applies the same transition function as the webhook path,
// so whichever arrives first wins and the other becomes a no-op.
func (s *paymentService) Confirm(ctx context.Context, paymentID string, userID int64, transactionID string) (*domain.Payment, error) {
	payment, err := s.ownedPayment(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}
	if transactionID != "" && payment.GatewayTransactionID != transactionID {
		return nil, fmt.Errorf("%w: transaction id does not belong to this payment", domain.ErrValidation)
	}
	if payment.Status == domain.PaymentStatusCompleted {
		return payment, nil
	}

	adapter, ok := s.registry.Adapter(payment.Method)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for method %q", domain.ErrValidation, payment.Method)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	status, err := adapter.GetPaymentStatus(gwCtx, payment.GatewayTransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to poll gateway status for payment %s: %w", paymentID, err)
	}

	eventType, ok := domain.EventForStatus(status)
	if !ok {
		// Still pending on the gateway side, or the provider cannot say.
		return payment, nil
	}

	if _, err := s.applyEvent(ctx, payment, &domain.GatewayEvent{
		Type:                 eventType,
		GatewayTransactionID: payment.GatewayTransactionID,
	}); err != nil {
		return nil, err
	}
	return s.paymentRepo.GetByIDTx(ctx, s.db, paymentID)
}

func (s *paymentService) Status(ctx context.Context, paymentID string, userID int64) (*domain.Payment, error) {
	return s.ownedPayment(ctx, paymentID, userID)
}

func (s *paymentService) History(ctx context.Context, userID int64, limit, offset int) ([]domain.Payment, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return s.paymentRepo.ListByUserTx(ctx, s.db, userID, limit, offset)
}

func (s *paymentService) Refund(ctx context.Context, paymentID string, userID int64, amount float64) (*RefundResult, error) {
	payment, err := s.ownedPayment(ctx, paymentID, userID)
	if err != nil {
		return nil, err
	}
	if payment.Status != domain.PaymentStatusCompleted {
		return nil, fmt.Errorf("%w: refund requires a completed payment, current status is %s", domain.ErrValidation, payment.Status)
	}
	if amount <= 0 {
		amount = payment.Amount
	}
	if amount > payment.Amount {
		return nil, fmt.Errorf("%w: refund amount exceeds payment amount", domain.ErrValidation)
	}

	adapter, ok := s.registry.Adapter(payment.Method)
	if !ok {
		return nil, fmt.Errorf("%w: no adapter for method %q", domain.ErrValidation, payment.Method)
	}

	gwCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	result, gwErr := adapter.RefundPayment(gwCtx, payment.GatewayTransactionID, amount)
	if gwErr != nil {
		if txErr := s.transactionRepo.CreateTx(ctx, s.db, &domain.PaymentTransaction{
			ID:                   util.GenerateUUID(),
			PaymentID:            payment.ID,
			Type:                 domain.TransactionTypeRefund,
			Amount:               amount,
			Currency:             payment.Currency,
			Status:               domain.TransactionStatusFailed,
			GatewayTransactionID: payment.GatewayTransactionID,
			ErrorMessage:         gwErr.Error(),
			CreatedAt:            time.Now(),
		}); txErr != nil {
			s.logger.Error("Failed to record refund failure", zap.String("payment_id", payment.ID), zap.Error(txErr))
		}
		return nil, fmt.Errorf("refund failed: %w", gwErr)
	}

	if result.ManualActionRequired {
		s.logger.Info("Refund requires manual action at the provider",
			zap.String("payment_id", payment.ID),
			zap.String("method", string(payment.Method)))
		if txErr := s.transactionRepo.CreateTx(ctx, s.db, &domain.PaymentTransaction{
			ID:                   util.GenerateUUID(),
			PaymentID:            payment.ID,
			Type:                 domain.TransactionTypeRefund,
			Amount:               amount,
			Currency:             payment.Currency,
			Status:               domain.TransactionStatusPending,
			GatewayTransactionID: payment.GatewayTransactionID,
			ErrorMessage:         "manual refund required: gateway has no refund API",
			CreatedAt:            time.Now(),
		}); txErr != nil {
			s.logger.Error("Failed to record manual refund request", zap.String("payment_id", payment.ID), zap.Error(txErr))
		}
		return &RefundResult{ManualActionRequired: true, Payment: payment}, nil
	}

	outcome, err := s.applyEvent(ctx, payment, &domain.GatewayEvent{
		Type:                 domain.EventRefunded,
		GatewayTransactionID: payment.GatewayTransactionID,
		RawPayload:           result.Raw,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.paymentRepo.GetByIDTx(ctx, s.db, payment.ID)
	if err != nil {
		return nil, err
	}
	return &RefundResult{Outcome: outcome, RefundID: result.RefundID, Payment: updated}, nil
}

func (s *paymentService) ownedPayment(ctx context.Context, paymentID string, userID int64) (*domain.Payment, error) {
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrValidation)
	}
	payment, err := s.paymentRepo.GetByIDTx(ctx, s.db, paymentID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return payment, nil
}
