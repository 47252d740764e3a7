package gateway

import (
	"context"
	"net/http"

	"payments/internal/domain"
)

// CreateRequest carries everything an adapter needs to open a payment with
// its provider. PaymentID is our own id, handed to the provider as metadata
// so redirects and callbacks can be tied back.
type CreateRequest struct {
	OrderID     string
	PaymentID   string
	Amount      float64
	Currency    string
	Description string
	PayerEmail  string
}

// CreateResult is the provider's answer to createPayment. Which of the
// client-facing fields is populated depends on the gateway's confirmation
// model: a client secret (card), an approval URL (wallet), or an action URL
// plus form fields (hash). The orchestrator passes them through untouched.
type CreateResult struct {
	TransactionID string
	Status        domain.GatewayStatus
	ClientSecret  string
	ApprovalURL   string
	ActionURL     string
	PaymentData   map[string]string
	Raw           []byte
}

type CaptureResult struct {
	Status domain.GatewayStatus
	Amount float64
	Raw    []byte
}

type RefundResult struct {
	RefundID string
	Status   domain.GatewayStatus
	// ManualActionRequired is set by providers without an API refund. The
	// caller must be told rather than the adapter silently failing.
	ManualActionRequired bool
	Raw                  []byte
}

// Adapter is the uniform interface over one payment provider. The
// orchestrator and reconciler never branch on provider identity except to
// select the adapter instance.
type Adapter interface {
	Method() domain.PaymentMethod
	CreatePayment(ctx context.Context, req CreateRequest) (*CreateResult, error)
	CapturePayment(ctx context.Context, transactionID string) (*CaptureResult, error)
	RefundPayment(ctx context.Context, transactionID string, amount float64) (*RefundResult, error)
	// VerifyWebhook checks the provider signature over the exact raw bytes.
	// It must run before any payload decoding. A failed check is reported as
	// domain.ErrSignatureInvalid.
	VerifyWebhook(ctx context.Context, payload []byte, header http.Header) error
	// ParseWebhook maps a verified provider payload to the canonical event.
	// Event types that carry no payment transition are reported as
	// domain.ErrUnhandledEvent, distinct from a malformed payload.
	ParseWebhook(payload []byte) (*domain.GatewayEvent, error)
	GetPaymentStatus(ctx context.Context, transactionID string) (domain.GatewayStatus, error)
}

// Registry selects adapters via the typed method enum, never via string
// dispatch in business code.
type Registry struct {
	adapters map[domain.PaymentMethod]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.PaymentMethod]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Method()] = a
	}
	return r
}

func (r *Registry) Adapter(method domain.PaymentMethod) (Adapter, bool) {
	a, ok := r.adapters[method]
	return a, ok
}
