// Package hashproc implements the hash-processor gateway adapter: a regional
// redirect gateway confirmed synchronously through a signed result callback.
// createPayment builds a form the client posts to the provider; there is no
// outbound API call. The request form is signed with one shared secret and
// the result callback with a second. The provider has no status API and no
// API refund.
package hashproc

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/gateway"
	"payments/internal/util"
)

var supportedCurrencies = map[string]bool{
	"USD": true,
	"RUB": true,
	"KZT": true,
}

type Config struct {
	ActionURL     string
	MerchantLogin string
	// RequestSecret signs the outgoing payment form, ResultSecret the
	// provider's result callback. The provider issues them separately.
	RequestSecret string
	ResultSecret  string
}

type Adapter struct {
	cfg    Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Adapter {
	return &Adapter{cfg: cfg, logger: logger}
}

func (a *Adapter) Method() domain.PaymentMethod { return domain.MethodHashProcessor }

func formatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}

func signedHash(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

// CreatePayment assigns an invoice id and returns the provider form. The
// transaction id is ours, not the provider's: the result callback echoes it
// back as InvId, which is what reconciliation matches on.
func (a *Adapter) CreatePayment(_ context.Context, req gateway.CreateRequest) (*gateway.CreateResult, error) {
	if req.OrderID == "" {
		return nil, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrValidation)
	}
	currency := strings.ToUpper(req.Currency)
	if !supportedCurrencies[currency] {
		return nil, fmt.Errorf("%w: currency %s is not supported by hash-processor", domain.ErrValidation, req.Currency)
	}

	invoiceID := util.GenerateUUID()
	outSum := formatAmount(req.Amount)
	signature := signedHash(a.cfg.MerchantLogin, outSum, invoiceID, a.cfg.RequestSecret)

	a.logger.Info("Hash payment form prepared",
		zap.String("transaction_id", invoiceID),
		zap.String("order_id", req.OrderID))

	return &gateway.CreateResult{
		TransactionID: invoiceID,
		Status:        domain.GatewayStatusPending,
		ActionURL:     a.cfg.ActionURL,
		PaymentData: map[string]string{
			"MerchantLogin":  a.cfg.MerchantLogin,
			"OutSum":         outSum,
			"InvId":          invoiceID,
			"Description":    req.Description,
			"SignatureValue": signature,
		},
	}, nil
}

// CapturePayment is a logical no-op: the gateway auto-captures on the payer's
// side and offers no API to ask about it.
func (a *Adapter) CapturePayment(_ context.Context, _ string) (*gateway.CaptureResult, error) {
	return &gateway.CaptureResult{Status: domain.GatewayStatusUnknown}, nil
}

// RefundPayment reports the provider's limitation explicitly: refunds go
// through the merchant back office by hand.
func (a *Adapter) RefundPayment(_ context.Context, _ string, _ float64) (*gateway.RefundResult, error) {
	return &gateway.RefundResult{
		Status:               domain.GatewayStatusUnknown,
		ManualActionRequired: true,
	}, nil
}

// VerifyWebhook recomputes the result-callback hash over OutSum:InvId with
// the result secret and compares in constant time.
func (a *Adapter) VerifyWebhook(_ context.Context, payload []byte, _ http.Header) error {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return fmt.Errorf("%w: unparseable callback form", domain.ErrSignatureInvalid)
	}
	outSum := values.Get("OutSum")
	invoiceID := values.Get("InvId")
	signature := strings.ToLower(values.Get("SignatureValue"))
	if outSum == "" || invoiceID == "" || signature == "" {
		return fmt.Errorf("%w: callback missing signed fields", domain.ErrSignatureInvalid)
	}
	expected := signedHash(outSum, invoiceID, a.cfg.ResultSecret)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) != 1 {
		return fmt.Errorf("%w: hash mismatch", domain.ErrSignatureInvalid)
	}
	return nil
}

func (a *Adapter) ParseWebhook(payload []byte) (*domain.GatewayEvent, error) {
	values, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed hash-processor callback: %v", domain.ErrValidation, err)
	}
	invoiceID := values.Get("InvId")
	if invoiceID == "" {
		return nil, fmt.Errorf("%w: hash-processor callback without InvId", domain.ErrValidation)
	}

	// The provider only calls the result URL for settled invoices; a
	// Status=fail form is sent for explicitly declined ones.
	eventType := domain.EventPaymentSucceeded
	if values.Get("Status") == "fail" {
		eventType = domain.EventPaymentFailed
	}

	return &domain.GatewayEvent{
		Type:                 eventType,
		GatewayTransactionID: invoiceID,
		RawPayload:           payload,
	}, nil
}

// GetPaymentStatus: the provider has no status API, so the honest answer is
// unknown rather than a guess.
func (a *Adapter) GetPaymentStatus(_ context.Context, _ string) (domain.GatewayStatus, error) {
	return domain.GatewayStatusUnknown, nil
}
