package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/mewspay/vpos/bank"
	"github.com/mewspay/vpos/checkout"
	"github.com/mewspay/vpos/gateway"
	"github.com/mewspay/vpos/infra/middle"
	"github.com/mewspay/vpos/infra/response"
	"github.com/mewspay/vpos/transaction"
)

// CheckoutService defines the interface for payment operations
type CheckoutService interface {
	StartPayment(ctx context.Context, req checkout.PaymentRequest) (*checkout.PaymentOutcome, error)
	HandleCallback(ctx context.Context, txnID string, fields map[string]string) (*checkout.PaymentOutcome, error)
	Cancel(ctx context.Context, txnID string) (*checkout.PaymentOutcome, error)
	Refund(ctx context.Context, txnID string, amount float64) (*checkout.PaymentOutcome, error)
	Status(ctx context.Context, txnID string) (*gateway.NormalizedResult, error)
	ListInstallments(req checkout.InstallmentRequest) (*checkout.InstallmentOffer, error)
}

// PaymentHandler handles payment related HTTP requests
type PaymentHandler struct {
	checkout CheckoutService
	validate *validator.Validate
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(checkout CheckoutService, validate *validator.Validate) *PaymentHandler {
	return &PaymentHandler{
		checkout: checkout,
		validate: validate,
	}
}

// httpStatusFor maps service errors to HTTP status codes
func httpStatusFor(err error) int {
	var declined *gateway.DeclinedError
	var transport *gateway.TransportError
	var protocol *gateway.ProtocolError
	var unsupported *gateway.UnsupportedOperationError
	var state *transaction.StateError

	switch {
	case bank.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &state):
		return http.StatusConflict
	case errors.As(err, &declined):
		return http.StatusPaymentRequired
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.As(err, &protocol):
		return http.StatusBadGateway
	case errors.As(err, &unsupported):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// ProcessPayment handles payment requests
func (h *PaymentHandler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	// Parse the payment request
	var req checkout.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.CustomerIP == "" {
		req.CustomerIP = middle.GetClientIP(r)
	}

	// Validate the request
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	// Process the payment
	outcome, err := h.checkout.StartPayment(ctx, req)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Payment failed", err)
		return
	}

	// A declined payment is a completed exchange, not a handler error
	if outcome.State == transaction.StateFailed {
		response.Success(w, http.StatusOK, "Payment declined", outcome)
		return
	}

	response.Success(w, http.StatusOK, "Payment processed", outcome)
}

// HandleCallback completes a 3D payment when the bank posts the browser back
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	txnID := chi.URLParam(r, "txnID")
	if txnID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	// Banks post form-urlencoded; merge form fields and query parameters
	fields := make(map[string]string)
	contentType := r.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid form data", err)
			return
		}
		for key, values := range r.Form {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	} else if strings.Contains(contentType, "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid JSON callback data", err)
			return
		}
	}
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	outcome, err := h.checkout.HandleCallback(ctx, txnID, fields)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to complete payment", err)
		return
	}

	if outcome.State == transaction.StateFailed {
		response.Success(w, http.StatusOK, "Payment declined", outcome)
		return
	}

	response.Success(w, http.StatusOK, "Payment completed", outcome)
}

// CancelPayment voids a same-day payment
func (h *PaymentHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	txnID := chi.URLParam(r, "txnID")
	if txnID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	outcome, err := h.checkout.Cancel(ctx, txnID)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to cancel payment", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment cancelled", outcome)
}

// RefundPayment refunds a settled payment, partially or in full
func (h *PaymentHandler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	txnID := chi.URLParam(r, "txnID")
	if txnID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	var req struct {
		Amount float64 `json:"amount" validate:"required,gt=0"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}

	outcome, err := h.checkout.Refund(ctx, txnID, req.Amount)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to refund payment", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment refunded", outcome)
}

// GetPaymentStatus queries the bank for the current state of a payment
func (h *PaymentHandler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	txnID := chi.URLParam(r, "txnID")
	if txnID == "" {
		response.Error(w, http.StatusBadRequest, "Missing transaction ID", nil)
		return
	}

	result, err := h.checkout.Status(ctx, txnID)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to get payment status", err)
		return
	}

	response.Success(w, http.StatusOK, "Payment status retrieved", result)
}

// GetInstallments prices the installment options for a bank or card prefix
func (h *PaymentHandler) GetInstallments(w http.ResponseWriter, r *http.Request) {
	var req checkout.InstallmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(w, http.StatusBadRequest, "Validation error", err)
		return
	}
	if req.BankCode == "" && req.BIN == "" {
		response.Error(w, http.StatusBadRequest, "Either bankCode or bin is required", nil)
		return
	}

	offer, err := h.checkout.ListInstallments(req)
	if err != nil {
		response.Error(w, httpStatusFor(err), "Failed to list installments", err)
		return
	}

	response.Success(w, http.StatusOK, "Installment options retrieved", offer)
}
