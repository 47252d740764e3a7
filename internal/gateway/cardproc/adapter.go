// Package cardproc implements the card-processor gateway adapter: a JSON API
// with bearer-key auth, amounts in integer minor units, asynchronous webhooks
// signed with an HMAC-SHA256 scheme, and full API support for capture,
// refund and status lookup.
package cardproc

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/gateway"
)

// SignatureHeader carries "t=<unix ts>,v1=<hex hmac>" over "<ts>.<raw body>".
const SignatureHeader = "Card-Signature"

// signatureTolerance bounds how stale a signed webhook may be before it is
// rejected as a replay.
const signatureTolerance = 5 * time.Minute

var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
}

type Config struct {
	BaseURL       string
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

func (a *Adapter) Method() domain.PaymentMethod { return domain.MethodCardProcessor }

type intentResponse struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// minorUnits converts a decimal amount to the provider's integer encoding.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func (a *Adapter) CreatePayment(ctx context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	currency := strings.ToUpper(req.Currency)
	if !supportedCurrencies[currency] {
		return nil, fmt.Errorf("%w: currency %s is not supported by card-processor", domain.ErrValidation, req.Currency)
	}

	body := map[string]interface{}{
		"amount":         minorUnits(req.Amount),
		"currency":       strings.ToLower(currency),
		"capture_method": "automatic",
		"description":    req.Description,
		"metadata": map[string]string{
			"order_id":   req.OrderID,
			"payment_id": req.PaymentID,
		},
	}
	var intent intentResponse
	raw, err := a.do(ctx, http.MethodPost, "/v1/payment_intents", body, &intent)
	if err != nil {
		return nil, err
	}

	a.logger.Info("Card payment intent created",
		zap.String("transaction_id", intent.ID),
		zap.String("order_id", req.OrderID),
		zap.String("provider_status", intent.Status))

	return &gateway.CreateResult{
		TransactionID: intent.ID,
		Status:        mapStatus(intent.Status),
		ClientSecret:  intent.ClientSecret,
		Raw:           raw,
	}, nil
}

func (a *Adapter) CapturePayment(ctx context.Context, transactionID string) (*gateway.CaptureResult, error) {
	var intent intentResponse
	raw, err := a.do(ctx, http.MethodPost, "/v1/payment_intents/"+transactionID+"/capture", nil, &intent)
	if err != nil {
		return nil, err
	}
	return &gateway.CaptureResult{
		Status: mapStatus(intent.Status),
		Amount: float64(intent.Amount) / 100,
		Raw:    raw,
	}, nil
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount float64) (*gateway.RefundResult, error) {
	body := map[string]interface{}{
		"payment_intent": transactionID,
		"amount":         minorUnits(amount),
	}
	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := a.do(ctx, http.MethodPost, "/v1/refunds", body, &refund)
	if err != nil {
		return nil, err
	}
	status := domain.GatewayStatusCompleted
	if refund.Status == "pending" {
		status = domain.GatewayStatusProcessing
	}
	return &gateway.RefundResult{RefundID: refund.ID, Status: status, Raw: raw}, nil
}

// VerifyWebhook recomputes the keyed HMAC over "<ts>.<raw body>" and compares
// in constant time. The timestamp bound rejects replays of old deliveries.
func (a *Adapter) VerifyWebhook(_ context.Context, payload []byte, header http.Header) error {
	ts, signature, ok := parseSignatureHeader(header.Get(SignatureHeader))
	if !ok {
		return fmt.Errorf("%w: missing or malformed %s header", domain.ErrSignatureInvalid, SignatureHeader)
	}
	age := a.now().Sub(time.Unix(ts, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return fmt.Errorf("%w: signature timestamp outside the tolerance window", domain.ErrSignatureInvalid)
	}

	mac := hmac.New(sha256.New, []byte(a.cfg.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := mac.Sum(nil)

	got, err := hex.DecodeString(signature)
	if err != nil || !hmac.Equal(expected, got) {
		return fmt.Errorf("%w: digest mismatch", domain.ErrSignatureInvalid)
	}
	return nil
}

func parseSignatureHeader(value string) (ts int64, signature string, ok bool) {
	if value == "" {
		return 0, "", false
	}
	for _, part := range strings.Split(value, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, "", false
			}
			ts = parsed
		case "v1":
			signature = kv[1]
		}
	}
	if ts == 0 || signature == "" {
		return 0, "", false
	}
	return ts, signature, true
}

type webhookPayload struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID string `json:"id"`
		} `json:"object"`
	} `json:"data"`
}

func (a *Adapter) ParseWebhook(payload []byte) (*domain.GatewayEvent, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed card-processor webhook: %v", domain.ErrValidation, err)
	}
	if event.Data.Object.ID == "" {
		return nil, fmt.Errorf("%w: card-processor webhook without object id", domain.ErrValidation)
	}

	var eventType domain.EventType
	switch event.Type {
	case "payment_intent.succeeded":
		eventType = domain.EventPaymentSucceeded
	case "payment_intent.payment_failed", "payment_intent.canceled":
		eventType = domain.EventPaymentFailed
	case "charge.refunded":
		eventType = domain.EventRefunded
	default:
		return nil, fmt.Errorf("%w: card-processor event type %q", domain.ErrUnhandledEvent, event.Type)
	}

	return &domain.GatewayEvent{
		Type:                 eventType,
		GatewayTransactionID: event.Data.Object.ID,
		RawPayload:           payload,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (domain.GatewayStatus, error) {
	var intent intentResponse
	if _, err := a.do(ctx, http.MethodGet, "/v1/payment_intents/"+transactionID, nil, &intent); err != nil {
		return domain.GatewayStatusUnknown, err
	}
	return mapStatus(intent.Status), nil
}

func mapStatus(providerStatus string) domain.GatewayStatus {
	switch providerStatus {
	case "requires_payment_method", "requires_confirmation", "requires_action":
		return domain.GatewayStatusPending
	case "processing":
		return domain.GatewayStatusProcessing
	case "succeeded":
		return domain.GatewayStatusCompleted
	case "canceled", "failed":
		return domain.GatewayStatusFailed
	}
	return domain.GatewayStatusUnknown
}

func (a *Adapter) do(ctx context.Context, method, path string, body interface{}, out interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode card-processor request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build card-processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{
			Provider: domain.MethodCardProcessor,
			Message:  "request to card-processor failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read card-processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr errorResponse
		_ = json.Unmarshal(raw, &apiErr)
		a.logger.Warn("Card-processor returned an error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("error_code", apiErr.Error.Code))
		return raw, &domain.GatewayError{
			Provider: domain.MethodCardProcessor,
			Code:     apiErr.Error.Code,
			Message:  apiErr.Error.Message,
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("failed to decode card-processor response: %w", err)
		}
	}
	return raw, nil
}
