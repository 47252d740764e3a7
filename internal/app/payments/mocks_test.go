package payments

import (
	"context"
	"net/http"
	"sync"
	"time"

	"payments/internal/client/orders"
	"payments/internal/domain"
	"payments/internal/gateway"
)

// fakeTxRunner runs the callback directly; the in-memory fakes below do not
// need a real transaction boundary.
type fakeTxRunner struct{}

func (fakeTxRunner) WithinTx(_ context.Context, fn func(domain.Querier) error) error {
	return fn(nil)
}

// memPaymentRepo is an in-memory PaymentRepository with real compare-and-set
// semantics, so idempotency and race behavior can be exercised without a
// database.
type memPaymentRepo struct {
	mu       sync.Mutex
	payments map[string]*domain.Payment
}

func newMemPaymentRepo(seed ...*domain.Payment) *memPaymentRepo {
	r := &memPaymentRepo{payments: make(map[string]*domain.Payment)}
	for _, p := range seed {
		cp := *p
		r.payments[p.ID] = &cp
	}
	return r
}

func (r *memPaymentRepo) CreateTx(_ context.Context, _ domain.Querier, payment *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *payment
	r.payments[payment.ID] = &cp
	return nil
}

func (r *memPaymentRepo) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return nil, domain.ErrPaymentNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *memPaymentRepo) GetByGatewayTransactionIDTx(_ context.Context, _ domain.Querier, method domain.PaymentMethod, gatewayTxID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.Method == method && p.GatewayTransactionID == gatewayTxID && gatewayTxID != "" {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *memPaymentRepo) GetCompletedByOrderIDTx(_ context.Context, _ domain.Querier, orderID string) (*domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.OrderID == orderID && p.Status == domain.PaymentStatusCompleted {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrPaymentNotFound
}

func (r *memPaymentRepo) ListByUserTx(_ context.Context, _ domain.Querier, userID int64, limit, offset int) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Payment
	for _, p := range r.payments {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memPaymentRepo) SetGatewayTransactionTx(_ context.Context, _ domain.Querier, id, gatewayTxID string, response []byte, status domain.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return domain.ErrPaymentNotFound
	}
	p.GatewayTransactionID = gatewayTxID
	p.GatewayResponse = response
	p.Status = status
	p.UpdatedAt = time.Now()
	return nil
}

func (r *memPaymentRepo) CompareAndSetStatusTx(_ context.Context, _ domain.Querier, id string, from, to domain.PaymentStatus, paidAt *time.Time, response []byte) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok {
		return false, domain.ErrPaymentNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	if p.PaidAt == nil && paidAt != nil {
		p.PaidAt = paidAt
	}
	if response != nil {
		p.GatewayResponse = response
	}
	p.UpdatedAt = time.Now()
	return true, nil
}

// fakePaymentRepo is a func-field fake for tests that need to script exact
// repository behavior (such as losing the compare-and-set race).
type fakePaymentRepo struct {
	createFn       func(payment *domain.Payment) error
	getByIDFn      func(id string) (*domain.Payment, error)
	getByGatewayFn func(method domain.PaymentMethod, gatewayTxID string) (*domain.Payment, error)
	getCompletedFn func(orderID string) (*domain.Payment, error)
	listByUserFn   func(userID int64, limit, offset int) ([]domain.Payment, error)
	setGatewayFn   func(id, gatewayTxID string, response []byte, status domain.PaymentStatus) error
	casFn          func(id string, from, to domain.PaymentStatus) (bool, error)
}

func (f *fakePaymentRepo) CreateTx(_ context.Context, _ domain.Querier, payment *domain.Payment) error {
	if f.createFn == nil {
		return nil
	}
	return f.createFn(payment)
}

func (f *fakePaymentRepo) GetByIDTx(_ context.Context, _ domain.Querier, id string) (*domain.Payment, error) {
	if f.getByIDFn == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return f.getByIDFn(id)
}

func (f *fakePaymentRepo) GetByGatewayTransactionIDTx(_ context.Context, _ domain.Querier, method domain.PaymentMethod, gatewayTxID string) (*domain.Payment, error) {
	if f.getByGatewayFn == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return f.getByGatewayFn(method, gatewayTxID)
}

func (f *fakePaymentRepo) GetCompletedByOrderIDTx(_ context.Context, _ domain.Querier, orderID string) (*domain.Payment, error) {
	if f.getCompletedFn == nil {
		return nil, domain.ErrPaymentNotFound
	}
	return f.getCompletedFn(orderID)
}

func (f *fakePaymentRepo) ListByUserTx(_ context.Context, _ domain.Querier, userID int64, limit, offset int) ([]domain.Payment, error) {
	if f.listByUserFn == nil {
		return nil, nil
	}
	return f.listByUserFn(userID, limit, offset)
}

func (f *fakePaymentRepo) SetGatewayTransactionTx(_ context.Context, _ domain.Querier, id, gatewayTxID string, response []byte, status domain.PaymentStatus) error {
	if f.setGatewayFn == nil {
		return nil
	}
	return f.setGatewayFn(id, gatewayTxID, response, status)
}

func (f *fakePaymentRepo) CompareAndSetStatusTx(_ context.Context, _ domain.Querier, id string, from, to domain.PaymentStatus, _ *time.Time, _ []byte) (bool, error) {
	if f.casFn == nil {
		return true, nil
	}
	return f.casFn(id, from, to)
}

// recordingTransactionRepo captures every ledger row written.
type recordingTransactionRepo struct {
	mu   sync.Mutex
	rows []*domain.PaymentTransaction
}

func (r *recordingTransactionRepo) CreateTx(_ context.Context, _ domain.Querier, transaction *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *transaction
	r.rows = append(r.rows, &cp)
	return nil
}

func (r *recordingTransactionRepo) ListByPaymentTx(_ context.Context, _ domain.Querier, paymentID string) ([]domain.PaymentTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentTransaction
	for _, row := range r.rows {
		if row.PaymentID == paymentID {
			out = append(out, *row)
		}
	}
	return out, nil
}

type recordingOutboxRepo struct {
	mu       sync.Mutex
	messages []*domain.OutboxMessage
}

func (r *recordingOutboxRepo) CreateMessageTx(_ context.Context, _ domain.Querier, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages = append(r.messages, &cp)
	return nil
}

func (r *recordingOutboxRepo) GetPendingMessages(_ context.Context, _ domain.Querier, limit int) ([]domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.OutboxMessage
	for _, msg := range r.messages {
		if msg.Status == domain.OutboxStatusPending && len(out) < limit {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (r *recordingOutboxRepo) UpdateMessageStatusTx(_ context.Context, _ domain.Querier, id string, status domain.OutboxMessageStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.messages {
		if msg.ID == id {
			msg.Status = status
		}
	}
	return nil
}

type statusUpdate struct {
	OrderID string
	Status  string
}

type fakeOrderClient struct {
	mu        sync.Mutex
	getOrder  func(orderID string) (*orders.Order, error)
	updateErr error
	updates   []statusUpdate
}

func (f *fakeOrderClient) GetOrder(_ context.Context, orderID string) (*orders.Order, error) {
	if f.getOrder == nil {
		return nil, domain.ErrOrderNotFound
	}
	return f.getOrder(orderID)
}

func (f *fakeOrderClient) UpdateStatus(_ context.Context, orderID, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{OrderID: orderID, Status: status})
	return f.updateErr
}

func (f *fakeOrderClient) statusUpdates() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.updates...)
}

// fakeAdapter is a scriptable gateway.Adapter.
type fakeAdapter struct {
	method      domain.PaymentMethod
	createFn    func(req gateway.CreateRequest) (*gateway.CreateResult, error)
	captureFn   func(transactionID string) (*gateway.CaptureResult, error)
	refundFn    func(transactionID string, amount float64) (*gateway.RefundResult, error)
	verifyFn    func(payload []byte, header http.Header) error
	parseFn     func(payload []byte) (*domain.GatewayEvent, error)
	getStatusFn func(transactionID string) (domain.GatewayStatus, error)

	mu          sync.Mutex
	createCalls int
}

func (f *fakeAdapter) Method() domain.PaymentMethod { return f.method }

func (f *fakeAdapter) CreatePayment(_ context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	f.mu.Lock()
	f.createCalls++
	f.mu.Unlock()
	if f.createFn == nil {
		return &gateway.CreateResult{TransactionID: "txn-default", Status: domain.GatewayStatusPending}, nil
	}
	return f.createFn(req)
}

func (f *fakeAdapter) CapturePayment(_ context.Context, transactionID string) (*gateway.CaptureResult, error) {
	if f.captureFn == nil {
		return &gateway.CaptureResult{Status: domain.GatewayStatusUnknown}, nil
	}
	return f.captureFn(transactionID)
}

func (f *fakeAdapter) RefundPayment(_ context.Context, transactionID string, amount float64) (*gateway.RefundResult, error) {
	if f.refundFn == nil {
		return &gateway.RefundResult{Status: domain.GatewayStatusCompleted}, nil
	}
	return f.refundFn(transactionID, amount)
}

func (f *fakeAdapter) VerifyWebhook(_ context.Context, payload []byte, header http.Header) error {
	if f.verifyFn == nil {
		return nil
	}
	return f.verifyFn(payload, header)
}

func (f *fakeAdapter) ParseWebhook(payload []byte) (*domain.GatewayEvent, error) {
	if f.parseFn == nil {
		return nil, domain.ErrValidation
	}
	return f.parseFn(payload)
}

func (f *fakeAdapter) GetPaymentStatus(_ context.Context, transactionID string) (domain.GatewayStatus, error) {
	if f.getStatusFn == nil {
		return domain.GatewayStatusUnknown, nil
	}
	return f.getStatusFn(transactionID)
}

func (f *fakeAdapter) createCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls
}
