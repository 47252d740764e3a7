package payments_http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/app/payments"
	"payments/internal/domain"
)

type stubService struct {
	initiateFn func(orderID string, userID int64, method domain.PaymentMethod, currency string) (*payments.InitiateResult, error)
	confirmFn  func(paymentID string, userID int64, transactionID string) (*domain.Payment, error)
	statusFn   func(paymentID string, userID int64) (*domain.Payment, error)
	historyFn  func(userID int64, limit, offset int) ([]domain.Payment, error)
	refundFn   func(paymentID string, userID int64, amount float64) (*payments.RefundResult, error)
}

func (s *stubService) Initiate(_ context.Context, orderID string, userID int64, method domain.PaymentMethod, currency string) (*payments.InitiateResult, error) {
	return s.initiateFn(orderID, userID, method, currency)
}

func (s *stubService) Confirm(_ context.Context, paymentID string, userID int64, transactionID string) (*domain.Payment, error) {
	return s.confirmFn(paymentID, userID, transactionID)
}

func (s *stubService) Status(_ context.Context, paymentID string, userID int64) (*domain.Payment, error) {
	return s.statusFn(paymentID, userID)
}

func (s *stubService) History(_ context.Context, userID int64, limit, offset int) ([]domain.Payment, error) {
	return s.historyFn(userID, limit, offset)
}

func (s *stubService) Refund(_ context.Context, paymentID string, userID int64, amount float64) (*payments.RefundResult, error) {
	return s.refundFn(paymentID, userID, amount)
}

func (s *stubService) ProcessGatewayEvent(_ context.Context, _ domain.PaymentMethod, _ *domain.GatewayEvent) (domain.TransitionOutcome, error) {
	return domain.OutcomeIgnored, nil
}

type stubResolver struct {
	userID int64
	err    error
}

func (s *stubResolver) Resolve(_ context.Context, authorization string) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.userID, nil
}

func newTestRouter(service payments.PaymentService, resolver *stubResolver) *chi.Mux {
	router := chi.NewRouter()
	RegisterRoutes(router, service, resolver, zap.NewNop())
	return router
}

func doRequest(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reqBody *strings.Reader
	if body == "" {
		reqBody = strings.NewReader("{}")
	} else {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInitiateRejectsUnauthenticatedRequest(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubResolver{err: domain.ErrUnauthorized})

	rec := doRequest(router, http.MethodPost, "/payment/initiate", `{"order_id":"order-1","payment_method":"card-processor"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestInitiateRejectsUnknownMethod(t *testing.T) {
	router := newTestRouter(&stubService{}, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodPost, "/payment/initiate", `{"order_id":"order-1","payment_method":"cash-on-delivery"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInitiateSuccess(t *testing.T) {
	service := &stubService{
		initiateFn: func(orderID string, userID int64, method domain.PaymentMethod, currency string) (*payments.InitiateResult, error) {
			if orderID != "order-1" || userID != 1 || method != domain.MethodCardProcessor {
				t.Errorf("Initiate called with (%s, %d, %s)", orderID, userID, method)
			}
			return &payments.InitiateResult{
				PaymentID:     "pay-1",
				TransactionID: "pi_123",
				Status:        domain.PaymentStatusProcessing,
				ClientSecret:  "pi_123_secret",
			}, nil
		},
	}
	router := newTestRouter(service, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodPost, "/payment/initiate", `{"order_id":"order-1","payment_method":"card-processor","currency":"USD"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	var resp InitiateResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.PaymentID != "pay-1" || resp.ClientSecret != "pi_123_secret" || resp.Status != "processing" {
		t.Errorf("response = %+v", resp)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"foreign payment", domain.ErrUnauthorized, http.StatusForbidden},
		{"order missing", domain.ErrOrderNotFound, http.StatusNotFound},
		{"payment missing", domain.ErrPaymentNotFound, http.StatusNotFound},
		{"already paid", domain.ErrAlreadyPaid, http.StatusConflict},
		{"gateway failure", &domain.GatewayError{Provider: domain.MethodCardProcessor, Message: "declined"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &stubService{
				initiateFn: func(string, int64, domain.PaymentMethod, string) (*payments.InitiateResult, error) {
					return nil, tt.err
				},
			}
			router := newTestRouter(service, &stubResolver{userID: 1})
			rec := doRequest(router, http.MethodPost, "/payment/initiate", `{"order_id":"order-1","payment_method":"card-processor"}`)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatusReturnsPayment(t *testing.T) {
	service := &stubService{
		statusFn: func(paymentID string, userID int64) (*domain.Payment, error) {
			if paymentID != "pay-1" {
				t.Errorf("Status called with %q", paymentID)
			}
			return &domain.Payment{
				ID:      "pay-1",
				OrderID: "order-1",
				UserID:  userID,
				Status:  domain.PaymentStatusCompleted,
				Method:  domain.MethodCardProcessor,
			}, nil
		},
	}
	router := newTestRouter(service, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodGet, "/payment/status/pay-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp PaymentResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.ID != "pay-1" || resp.Status != "completed" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRefundManualActionReturnsAccepted(t *testing.T) {
	service := &stubService{
		refundFn: func(paymentID string, userID int64, amount float64) (*payments.RefundResult, error) {
			return &payments.RefundResult{
				ManualActionRequired: true,
				Payment:              &domain.Payment{ID: paymentID, Status: domain.PaymentStatusCompleted},
			}, nil
		},
	}
	router := newTestRouter(service, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodPost, "/payment/refund", `{"payment_id":"pay-1"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	var resp RefundResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.ManualActionRequired {
		t.Error("manual action flag not surfaced")
	}
}

func TestRefundSuccess(t *testing.T) {
	service := &stubService{
		refundFn: func(string, int64, float64) (*payments.RefundResult, error) {
			return &payments.RefundResult{
				RefundID: "re_1",
				Payment:  &domain.Payment{ID: "pay-1", Status: domain.PaymentStatusRefunded},
			}, nil
		},
	}
	router := newTestRouter(service, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodPost, "/payment/refund", `{"payment_id":"pay-1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp RefundResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.RefundID != "re_1" || resp.PaymentStatus != "refunded" {
		t.Errorf("response = %+v", resp)
	}
}

func TestHistoryPassesPagination(t *testing.T) {
	var gotLimit, gotOffset int
	service := &stubService{
		historyFn: func(userID int64, limit, offset int) ([]domain.Payment, error) {
			gotLimit, gotOffset = limit, offset
			return []domain.Payment{{ID: "pay-1", UserID: userID}}, nil
		},
	}
	router := newTestRouter(service, &stubResolver{userID: 1})

	rec := doRequest(router, http.MethodGet, "/payment/history?limit=5&offset=10", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotLimit != 5 || gotOffset != 10 {
		t.Errorf("pagination = (%d, %d), want (5, 10)", gotLimit, gotOffset)
	}
}
