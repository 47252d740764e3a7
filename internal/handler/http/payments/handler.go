package payments_http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/app/payments"
	"payments/internal/domain"
	"payments/internal/handler/http/middleware"
)

type PaymentHandler struct {
	service payments.PaymentService
	logger  *zap.Logger
}

func NewPaymentHandler(s payments.PaymentService, l *zap.Logger) *PaymentHandler {
	return &PaymentHandler{service: s, logger: l}
}

type InitiateRequest struct {
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	Currency      string `json:"currency"`
}

type InitiateResponse struct {
	PaymentID     string            `json:"payment_id"`
	TransactionID string            `json:"transaction_id"`
	Status        string            `json:"status"`
	ClientSecret  string            `json:"client_secret,omitempty"`
	ApprovalURL   string            `json:"approval_url,omitempty"`
	ActionURL     string            `json:"action_url,omitempty"`
	PaymentData   map[string]string `json:"payment_data,omitempty"`
}

type ConfirmRequest struct {
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id"`
}

type ConfirmResponse struct {
	PaymentStatus string `json:"payment_status"`
}

type RefundRequest struct {
	PaymentID string  `json:"payment_id"`
	Amount    float64 `json:"amount"`
}

type RefundResponse struct {
	PaymentStatus        string `json:"payment_status"`
	RefundID             string `json:"refund_id,omitempty"`
	ManualActionRequired bool   `json:"manual_action_required,omitempty"`
	Message              string `json:"message,omitempty"`
}

type PaymentResponse struct {
	ID                   string  `json:"id"`
	OrderID              string  `json:"order_id"`
	Amount               float64 `json:"amount"`
	Currency             string  `json:"currency"`
	Method               string  `json:"method"`
	Status               string  `json:"status"`
	GatewayTransactionID string  `json:"gateway_transaction_id,omitempty"`
	PaidAt               string  `json:"paid_at,omitempty"`
	CreatedAt            string  `json:"created_at"`
	UpdatedAt            string  `json:"updated_at"`
}

func toPaymentResponse(p *domain.Payment) PaymentResponse {
	resp := PaymentResponse{
		ID:                   p.ID,
		OrderID:              p.OrderID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Method:               string(p.Method),
		Status:               string(p.Status),
		GatewayTransactionID: p.GatewayTransactionID,
		CreatedAt:            p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            p.UpdatedAt.Format(time.RFC3339),
	}
	if p.PaidAt != nil {
		resp.PaidAt = p.PaidAt.Format(time.RFC3339)
	}
	return resp
}

func (h *PaymentHandler) InitiateHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req InitiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	method, err := domain.ParseMethod(req.PaymentMethod)
	if err != nil {
		http.Error(w, "Unknown payment method", http.StatusBadRequest)
		return
	}

	result, err := h.service.Initiate(r.Context(), req.OrderID, userID, method, req.Currency)
	if err != nil {
		h.writeServiceError(w, err, "initiate")
		return
	}

	writeJSON(w, http.StatusCreated, InitiateResponse{
		PaymentID:     result.PaymentID,
		TransactionID: result.TransactionID,
		Status:        string(result.Status),
		ClientSecret:  result.ClientSecret,
		ApprovalURL:   result.ApprovalURL,
		ActionURL:     result.ActionURL,
		PaymentData:   result.PaymentData,
	}, h.logger)
}

func (h *PaymentHandler) ConfirmHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req ConfirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	payment, err := h.service.Confirm(r.Context(), req.PaymentID, userID, req.TransactionID)
	if err != nil {
		h.writeServiceError(w, err, "confirm")
		return
	}

	writeJSON(w, http.StatusOK, ConfirmResponse{PaymentStatus: string(payment.Status)}, h.logger)
}

func (h *PaymentHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	paymentID := chi.URLParam(r, "id")
	payment, err := h.service.Status(r.Context(), paymentID, userID)
	if err != nil {
		h.writeServiceError(w, err, "status")
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment), h.logger)
}

func (h *PaymentHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	history, err := h.service.History(r.Context(), userID, limit, offset)
	if err != nil {
		h.writeServiceError(w, err, "history")
		return
	}

	responses := make([]PaymentResponse, 0, len(history))
	for i := range history {
		responses = append(responses, toPaymentResponse(&history[i]))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"payments": responses,
		"limit":    limit,
		"offset":   offset,
	}, h.logger)
}

func (h *PaymentHandler) RefundHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req RefundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	result, err := h.service.Refund(r.Context(), req.PaymentID, userID, req.Amount)
	if err != nil {
		h.writeServiceError(w, err, "refund")
		return
	}

	if result.ManualActionRequired {
		writeJSON(w, http.StatusAccepted, RefundResponse{
			PaymentStatus:        string(result.Payment.Status),
			ManualActionRequired: true,
			Message:              "refund recorded; this gateway requires a manual refund at the provider",
		}, h.logger)
		return
	}

	writeJSON(w, http.StatusOK, RefundResponse{
		PaymentStatus: string(result.Payment.Status),
		RefundID:      result.RefundID,
	}, h.logger)
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
// Gateway failures surface an actionable message without leaking provider
// internals.
func (h *PaymentHandler) writeServiceError(w http.ResponseWriter, err error, operation string) {
	var gatewayErr *domain.GatewayError
	switch {
	case errors.Is(err, domain.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, domain.ErrOrderNotFound):
		http.Error(w, "Order not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrPaymentNotFound):
		http.Error(w, "Payment not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrAlreadyPaid):
		http.Error(w, "Order already has a completed payment", http.StatusConflict)
	case errors.As(err, &gatewayErr):
		h.logger.Error("Gateway error", zap.String("operation", operation), zap.Error(err))
		http.Error(w, "Payment could not be processed, please try again", http.StatusBadGateway)
	default:
		h.logger.Error("Internal error", zap.String("operation", operation), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
