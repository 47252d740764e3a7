package webhooks_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/gateway"
)

func RegisterRoutes(r chi.Router, registry *gateway.Registry, processor EventProcessor, l *zap.Logger) {
	handler := NewWebhookHandler(registry, processor, l.With(zap.String("component", "WebhookHandler")))
	r.Post("/webhooks/{provider}", handler.HandleWebhook)
}
