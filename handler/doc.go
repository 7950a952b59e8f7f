// Package handler provides the HTTP request handlers for the virtual
// POS gateway.
//
// The handlers bridge the HTTP layer with the checkout orchestration
// service. Every endpoint returns the standard response envelope from
// the infra/response package.
//
// # Payment Handler
//
// The PaymentHandler manages all payment-related HTTP requests:
//
//	paymentHandler := handler.NewPaymentHandler(checkoutService, validator)
//
//	// Routes
//	r.Post("/v1/payments", paymentHandler.ProcessPayment)
//	r.Get("/v1/payments/{txnID}", paymentHandler.GetPaymentStatus)
//	r.Delete("/v1/payments/{txnID}", paymentHandler.CancelPayment)
//	r.Post("/v1/payments/{txnID}/refund", paymentHandler.RefundPayment)
//	r.Post("/v1/installments", paymentHandler.GetInstallments)
//
// # Callback Handling
//
// Banks post the browser back to the callback endpoint after the 3D
// Secure challenge. The endpoint accepts form-urlencoded and JSON
// bodies and merges query parameters into the callback fields:
//
//	r.HandleFunc("/v1/callback/{txnID}", paymentHandler.HandleCallback)
//
// # Error Mapping
//
// Service errors map to HTTP status codes by type: unknown banks and
// transactions return 404, illegal state transitions return 409, bank
// declines on cancel and refund return 402, transport and protocol
// failures against the bank return 502. A declined payment attempt is
// a completed exchange and returns 200 with the failed outcome in the
// response body.
package handler
