// Package walletproc implements the wallet-processor gateway adapter: an
// OAuth2 client-credentials API with a checkout-order model (create order →
// payer approval URL → capture), decimal-string amounts, and webhook
// verification performed by a remote call to the provider's verify endpoint.
package walletproc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/gateway"
)

// Webhook transmission headers, all required for remote verification.
const (
	HeaderTransmissionID   = "Wallet-Transmission-Id"
	HeaderTransmissionTime = "Wallet-Transmission-Time"
	HeaderTransmissionSig  = "Wallet-Transmission-Sig"
	HeaderCertURL          = "Wallet-Cert-Url"
	HeaderAuthAlgo         = "Wallet-Auth-Algo"
)

var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"AUD": true,
}

type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	WebhookID    string
	ReturnURL    string
	CancelURL    string
	Timeout      time.Duration
}

type Adapter struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

func (a *Adapter) Method() domain.PaymentMethod { return domain.MethodWalletProcessor }

type orderResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Links  []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
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
		return nil, fmt.Errorf("%w: currency %s is not supported by wallet-processor", domain.ErrValidation, req.Currency)
	}

	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{
			{
				"reference_id": req.OrderID,
				"custom_id":    req.PaymentID,
				"description":  req.Description,
				"amount": map[string]string{
					"currency_code": currency,
					"value":         strconv.FormatFloat(req.Amount, 'f', 2, 64),
				},
			},
		},
		"application_context": map[string]string{
			"return_url": a.cfg.ReturnURL,
			"cancel_url": a.cfg.CancelURL,
		},
	}

	var order orderResponse
	raw, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders", body, &order)
	if err != nil {
		return nil, err
	}

	approvalURL := ""
	for _, link := range order.Links {
		if link.Rel == "approve" {
			approvalURL = link.Href
			break
		}
	}

	a.logger.Info("Wallet checkout order created",
		zap.String("transaction_id", order.ID),
		zap.String("order_id", req.OrderID),
		zap.String("provider_status", order.Status))

	return &gateway.CreateResult{
		TransactionID: order.ID,
		Status:        mapStatus(order.Status),
		ApprovalURL:   approvalURL,
		Raw:           raw,
	}, nil
}

func (a *Adapter) CapturePayment(ctx context.Context, transactionID string) (*gateway.CaptureResult, error) {
	var order orderResponse
	raw, err := a.do(ctx, http.MethodPost, "/v2/checkout/orders/"+transactionID+"/capture", struct{}{}, &order)
	if err != nil {
		return nil, err
	}
	return &gateway.CaptureResult{Status: mapStatus(order.Status), Raw: raw}, nil
}

func (a *Adapter) RefundPayment(ctx context.Context, transactionID string, amount float64) (*gateway.RefundResult, error) {
	body := map[string]interface{}{
		"amount": map[string]string{
			"value": strconv.FormatFloat(amount, 'f', 2, 64),
		},
	}
	var refund struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	raw, err := a.do(ctx, http.MethodPost, "/v2/payments/captures/"+transactionID+"/refund", body, &refund)
	if err != nil {
		return nil, err
	}
	status := domain.GatewayStatusCompleted
	if refund.Status == "PENDING" {
		status = domain.GatewayStatusProcessing
	}
	return &gateway.RefundResult{RefundID: refund.ID, Status: status, Raw: raw}, nil
}

// VerifyWebhook delegates signature verification to the provider: the
// transmission headers and the exact raw body are posted to the verify
// endpoint, which answers SUCCESS or FAILURE.
func (a *Adapter) VerifyWebhook(ctx context.Context, payload []byte, header http.Header) error {
	transmissionID := header.Get(HeaderTransmissionID)
	transmissionTime := header.Get(HeaderTransmissionTime)
	transmissionSig := header.Get(HeaderTransmissionSig)
	certURL := header.Get(HeaderCertURL)
	authAlgo := header.Get(HeaderAuthAlgo)
	if transmissionID == "" || transmissionTime == "" || transmissionSig == "" {
		return fmt.Errorf("%w: missing transmission headers", domain.ErrSignatureInvalid)
	}

	body := map[string]interface{}{
		"auth_algo":         authAlgo,
		"cert_url":          certURL,
		"transmission_id":   transmissionID,
		"transmission_sig":  transmissionSig,
		"transmission_time": transmissionTime,
		"webhook_id":        a.cfg.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	var result struct {
		VerificationStatus string `json:"verification_status"`
	}
	if _, err := a.do(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", body, &result); err != nil {
		return fmt.Errorf("%w: verification call failed: %v", domain.ErrSignatureInvalid, err)
	}
	if result.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: provider reported %s", domain.ErrSignatureInvalid, result.VerificationStatus)
	}
	return nil
}

type webhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID string `json:"id"`
	} `json:"resource"`
}

func (a *Adapter) ParseWebhook(payload []byte) (*domain.GatewayEvent, error) {
	var event webhookPayload
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%w: malformed wallet-processor webhook: %v", domain.ErrValidation, err)
	}
	if event.Resource.ID == "" {
		return nil, fmt.Errorf("%w: wallet-processor webhook without resource id", domain.ErrValidation)
	}

	var eventType domain.EventType
	switch event.EventType {
	case "CHECKOUT.ORDER.COMPLETED", "PAYMENT.CAPTURE.COMPLETED":
		eventType = domain.EventPaymentSucceeded
	case "PAYMENT.CAPTURE.DENIED", "CHECKOUT.ORDER.VOIDED":
		eventType = domain.EventPaymentFailed
	case "PAYMENT.CAPTURE.REFUNDED":
		eventType = domain.EventRefunded
	default:
		return nil, fmt.Errorf("%w: wallet-processor event type %q", domain.ErrUnhandledEvent, event.EventType)
	}

	return &domain.GatewayEvent{
		Type:                 eventType,
		GatewayTransactionID: event.Resource.ID,
		RawPayload:           payload,
	}, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, transactionID string) (domain.GatewayStatus, error) {
	var order orderResponse
	if _, err := a.do(ctx, http.MethodGet, "/v2/checkout/orders/"+transactionID, nil, &order); err != nil {
		return domain.GatewayStatusUnknown, err
	}
	return mapStatus(order.Status), nil
}

func mapStatus(providerStatus string) domain.GatewayStatus {
	switch providerStatus {
	case "CREATED", "SAVED", "PAYER_ACTION_REQUIRED":
		return domain.GatewayStatusPending
	case "APPROVED":
		return domain.GatewayStatusProcessing
	case "COMPLETED":
		return domain.GatewayStatusCompleted
	case "VOIDED", "DECLINED":
		return domain.GatewayStatusFailed
	}
	return domain.GatewayStatusUnknown
}

// token returns a cached OAuth2 access token, refreshing it through the
// client-credentials grant shortly before expiry.
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry.Add(-30*time.Second)) {
		return a.accessToken, nil
	}

	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build wallet-processor token request: %w", err)
	}
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", &domain.GatewayError{
			Provider: domain.MethodWalletProcessor,
			Message:  "token request to wallet-processor failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", &domain.GatewayError{
			Provider: domain.MethodWalletProcessor,
			Code:     strconv.Itoa(resp.StatusCode),
			Message:  "wallet-processor rejected token request: " + string(raw),
		}
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("failed to decode wallet-processor token response: %w", err)
	}

	a.accessToken = token.AccessToken
	a.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

func (a *Adapter) do(ctx context.Context, method, path string, body interface{}, out interface{}) ([]byte, error) {
	accessToken, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode wallet-processor request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build wallet-processor request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{
			Provider: domain.MethodWalletProcessor,
			Message:  "request to wallet-processor failed",
			Err:      err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet-processor response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Name    string `json:"name"`
			Message string `json:"message"`
		}
		_ = json.Unmarshal(raw, &apiErr)
		a.logger.Warn("Wallet-processor returned an error",
			zap.Int("status_code", resp.StatusCode),
			zap.String("error_name", apiErr.Name))
		return raw, &domain.GatewayError{
			Provider: domain.MethodWalletProcessor,
			Code:     apiErr.Name,
			Message:  apiErr.Message,
		}
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return raw, fmt.Errorf("failed to decode wallet-processor response: %w", err)
		}
	}
	return raw, nil
}
