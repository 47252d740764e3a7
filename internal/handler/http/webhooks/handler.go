// Package webhooks_http is the per-provider webhook ingestion boundary. Its
// job ends at: read the exact raw bytes, verify the provider signature, map
// the payload to a canonical event, hand off to reconciliation. Once a
// verified event is accepted the response is always 2xx — returning an error
// for our own bugs would only trigger the provider's retry storm.
package webhooks_http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/domain"
	"payments/internal/gateway"
)

// EventProcessor is the reconciliation entry point the handler hands
// verified events to.
type EventProcessor interface {
	ProcessGatewayEvent(ctx context.Context, method domain.PaymentMethod, event *domain.GatewayEvent) (domain.TransitionOutcome, error)
}

type WebhookHandler struct {
	registry  *gateway.Registry
	processor EventProcessor
	logger    *zap.Logger
}

func NewWebhookHandler(registry *gateway.Registry, processor EventProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{registry: registry, processor: processor, logger: logger}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	method, err := domain.ParseMethod(provider)
	if err != nil {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}
	adapter, ok := h.registry.Adapter(method)
	if !ok {
		http.Error(w, "Unknown provider", http.StatusNotFound)
		return
	}

	// The body must be consumed unparsed: signature schemes sign the exact
	// bytes, not a re-serialization.
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if err := adapter.VerifyWebhook(r.Context(), payload, r.Header); err != nil {
		h.logger.Warn("Webhook signature verification failed",
			zap.String("provider", provider),
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err))
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}

	event, err := adapter.ParseWebhook(payload)
	if err != nil {
		if errors.Is(err, domain.ErrUnhandledEvent) {
			// A verified delivery of an event type we don't act on. Still
			// acknowledged: a 4xx here would have the provider retry it.
			h.logger.Info("Webhook event type not handled",
				zap.String("provider", provider),
				zap.Error(err))
			h.writeAck(w, "unhandled")
			return
		}
		h.logger.Warn("Webhook payload could not be normalized",
			zap.String("provider", provider),
			zap.Error(err))
		http.Error(w, "Malformed payload", http.StatusBadRequest)
		return
	}

	outcome, err := h.processor.ProcessGatewayEvent(r.Context(), method, event)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownEvent) {
			// Logged upstream; acknowledged so the provider stops retrying
			// an event we can never match.
			h.writeAck(w, "unmatched")
			return
		}
		h.logger.Error("Webhook reconciliation failed",
			zap.String("provider", provider),
			zap.String("gateway_transaction_id", event.GatewayTransactionID),
			zap.Error(err))
		h.writeAck(w, "error")
		return
	}

	h.writeAck(w, outcome.String())
}

func (h *WebhookHandler) writeAck(w http.ResponseWriter, result string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(map[string]string{"received": "true", "result": result}); err != nil {
		h.logger.Error("Failed to write webhook acknowledgement", zap.Error(err))
	}
}
