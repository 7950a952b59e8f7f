package v1

import (
	"database/sql"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/handler"
)

// Dependencies carries the wired services the routes dispatch to.
type Dependencies struct {
	Checkout handler.CheckoutService
	Banks    bank.Directory
	Registry *gateway.Registry
	DB       *sql.DB
	Logs     handler.LogQuerier
}

// Routes registers all API routes
func Routes(r chi.Router, deps Dependencies) {
	validate := validator.New()
	paymentHandler := handler.NewPaymentHandler(deps.Checkout, validate)
	healthHandler := handler.NewHealthHandler(deps.DB, deps.Banks, deps.Registry, deps.Checkout)

	// Payment routes
	r.Route("/payments", func(r chi.Router) {
		r.Post("/", paymentHandler.ProcessPayment)
		r.Get("/{txnID}", paymentHandler.GetPaymentStatus)
		r.Delete("/{txnID}", paymentHandler.CancelPayment)
		r.Post("/{txnID}/refund", paymentHandler.RefundPayment)
	})

	// Callback routes for 3D Secure payments. Banks post the browser
	// back here, so both GET and POST must resolve.
	r.Route("/callback", func(r chi.Router) {
		r.HandleFunc("/{txnID}", paymentHandler.HandleCallback)
	})

	// Installment pricing
	r.Post("/installments", paymentHandler.GetInstallments)

	// Audit log readback for operations
	logsHandler := handler.NewLogsHandler(deps.Logs, deps.Registry)
	r.Route("/logs", func(r chi.Router) {
		r.Get("/{kind}/transaction/{txnID}", logsHandler.GetTransactionLogs)
		r.Get("/{kind}/errors", logsHandler.GetErrorLogs)
	})
	r.Get("/stats/{kind}", logsHandler.GetGatewayStats)

	// Health endpoint under the versioned prefix as well
	r.Get("/health", healthHandler.CheckHealth)
}
