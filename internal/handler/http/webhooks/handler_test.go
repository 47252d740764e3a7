package webhooks_http

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/gateway"
)

type stubAdapter struct {
	method    domain.PaymentMethod
	verifyErr error
	event     *domain.GatewayEvent
	parseErr  error
}

func (s *stubAdapter) Method() domain.PaymentMethod { return s.method }

func (s *stubAdapter) CreatePayment(context.Context, gateway.CreateRequest) (*gateway.CreateResult, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (s *stubAdapter) CapturePayment(context.Context, string) (*gateway.CaptureResult, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (s *stubAdapter) RefundPayment(context.Context, string, float64) (*gateway.RefundResult, error) {
	return nil, domain.ErrUnsupportedOperation
}

func (s *stubAdapter) VerifyWebhook(context.Context, []byte, http.Header) error {
	return s.verifyErr
}

func (s *stubAdapter) ParseWebhook([]byte) (*domain.GatewayEvent, error) {
	if s.parseErr != nil {
		return nil, s.parseErr
	}
	return s.event, nil
}

func (s *stubAdapter) GetPaymentStatus(context.Context, string) (domain.GatewayStatus, error) {
	return domain.GatewayStatusUnknown, nil
}

type stubProcessor struct {
	outcome domain.TransitionOutcome
	err     error
	calls   int
}

func (s *stubProcessor) ProcessGatewayEvent(_ context.Context, _ domain.PaymentMethod, _ *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	s.calls++
	return s.outcome, s.err
}

func newTestRouter(adapter gateway.Adapter, processor EventProcessor) *chi.Mux {
	router := chi.NewRouter()
	RegisterRoutes(router, gateway.NewRegistry(adapter), processor, zap.NewNop())
	return router
}

func postWebhook(t *testing.T, router http.Handler, provider string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleWebhookUnknownProvider(t *testing.T) {
	processor := &stubProcessor{}
	router := newTestRouter(&stubAdapter{method: domain.MethodCardProcessor}, processor)

	rec := postWebhook(t, router, "fax-machine", []byte(`{}`))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	if processor.calls != 0 {
		t.Error("processor called for an unknown provider")
	}
}

func TestHandleWebhookBadSignature(t *testing.T) {
	processor := &stubProcessor{}
	router := newTestRouter(&stubAdapter{method: domain.MethodCardProcessor, verifyErr: domain.ErrSignatureInvalid}, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`{"type":"payment_intent.succeeded"}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if processor.calls != 0 {
		t.Error("unverified payload reached the processor")
	}
}

func TestHandleWebhookMalformedPayload(t *testing.T) {
	processor := &stubProcessor{}
	adapter := &stubAdapter{method: domain.MethodCardProcessor, parseErr: domain.ErrValidation}
	router := newTestRouter(adapter, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`garbage`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if processor.calls != 0 {
		t.Error("unparseable payload reached the processor")
	}
}

// A correctly signed, well-formed delivery of an event type that carries no
// payment transition (a provider ships many besides the ones we act on) must
// be acknowledged, not rejected as malformed.
func TestHandleWebhookUnhandledEventTypeAcknowledged(t *testing.T) {
	processor := &stubProcessor{}
	adapter := &stubAdapter{
		method:   domain.MethodCardProcessor,
		parseErr: fmt.Errorf("%w: card-processor event type %q", domain.ErrUnhandledEvent, "payment_intent.created"),
	}
	router := newTestRouter(adapter, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`{"type":"payment_intent.created","data":{"object":{"id":"pi_123"}}}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if processor.calls != 0 {
		t.Error("unhandled event type reached the processor")
	}
}

func TestHandleWebhookApplied(t *testing.T) {
	processor := &stubProcessor{outcome: domain.OutcomeApplied}
	adapter := &stubAdapter{
		method: domain.MethodCardProcessor,
		event:  &domain.GatewayEvent{Type: domain.EventPaymentSucceeded, GatewayTransactionID: "pi_123"},
	}
	router := newTestRouter(adapter, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`{"type":"payment_intent.succeeded"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if processor.calls != 1 {
		t.Errorf("processor calls = %d, want 1", processor.calls)
	}
}

// An event that matches no payment is still acknowledged: the provider must
// not keep retrying a delivery we can never reconcile.
func TestHandleWebhookUnmatchedEventAcknowledged(t *testing.T) {
	processor := &stubProcessor{outcome: domain.OutcomeIgnored, err: domain.ErrUnknownEvent}
	adapter := &stubAdapter{
		method: domain.MethodCardProcessor,
		event:  &domain.GatewayEvent{Type: domain.EventPaymentSucceeded, GatewayTransactionID: "pi_stale"},
	}
	router := newTestRouter(adapter, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`{"type":"payment_intent.succeeded"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

// Internal reconciliation failures are acknowledged too; verified events must
// not surface our errors as provider-visible 5xx.
func TestHandleWebhookProcessorErrorAcknowledged(t *testing.T) {
	processor := &stubProcessor{outcome: domain.OutcomeIgnored, err: context.DeadlineExceeded}
	adapter := &stubAdapter{
		method: domain.MethodCardProcessor,
		event:  &domain.GatewayEvent{Type: domain.EventPaymentSucceeded, GatewayTransactionID: "pi_123"},
	}
	router := newTestRouter(adapter, processor)

	rec := postWebhook(t, router, "card-processor", []byte(`{"type":"payment_intent.succeeded"}`))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
