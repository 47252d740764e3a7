package payments_http

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"payments/internal/app/payments"
	"payments/internal/handler/http/middleware"
)

func RegisterRoutes(r chi.Router, s payments.PaymentService, resolver middleware.IdentityResolver, l *zap.Logger) {
	handler := NewPaymentHandler(s, l.With(zap.String("component", "PaymentHTTPHandler")))

	r.Route("/payment", func(r chi.Router) {
		r.Use(middleware.AuthRequired(resolver, l.With(zap.String("component", "AuthMiddleware"))))
		r.Post("/initiate", handler.InitiateHandler)
		r.Post("/confirm", handler.ConfirmHandler)
		r.Post("/refund", handler.RefundHandler)
		r.Get("/status/{id}", handler.StatusHandler)
		r.Get("/history", handler.HistoryHandler)
	})
}
