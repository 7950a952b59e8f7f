// Package gateway defines the common contract every bank virtual POS
// integration implements, together with the shared wire, hashing and
// formatting helpers the adapters are built on.
//
// An adapter never talks to the bank on its own for the simple flows:
// it prepares requests and parses responses, and the orchestration
// layer owns the HTTP round-trip. Two-phase protocols (PosNet OOS,
// Kuveyt SOAP) are the exception, they drive their extra legs through
// their own client during Prepare3D / Parse3DResponse.
package gateway

import "context"

// Kind identifies a supported bank protocol family. The set is closed:
// a bank profile referencing an unregistered kind is rejected at
// configuration load, not at payment time.
type Kind string

const (
	KindEstPOS   Kind = "estpos"
	KindGaranti  Kind = "garanti"
	KindPayFor   Kind = "payfor"
	KindPayFlex  Kind = "payflex"
	KindInterPOS Kind = "interpos"
	KindPosNet   Kind = "posnet"
	KindKuveyt   Kind = "kuveyt"
	KindTosla    Kind = "tosla"
	KindAkbank   Kind = "akbank"
)

// PaymentModel selects how a payment is authenticated.
type PaymentModel string

const (
	Model3DSecure PaymentModel = "3d_secure"
	Model3DPay    PaymentModel = "3d_pay"
	Model3DHost   PaymentModel = "3d_host"
	ModelNonSecure PaymentModel = "non_secure"
)

// Environment selects the bank endpoint set an adapter targets.
const (
	EnvironmentTest       = "test"
	EnvironmentProduction = "production"
)

// Gateway is the contract every bank adapter implements.
type Gateway interface {
	// Kind returns the protocol family this adapter speaks.
	Kind() Kind

	// Initialize configures the adapter with merchant credentials and
	// endpoint URLs. It must be called before any other operation.
	Initialize(cfg Config) error

	// RequiredConfig describes the configuration fields this adapter
	// needs, for validation and for building configuration UIs.
	RequiredConfig() []ConfigField

	// ValidateConfig checks cfg against RequiredConfig and reports
	// every missing or malformed field in a single error.
	ValidateConfig(cfg Config) error

	// PreparePayment builds the direct (non-3D) authorization request.
	PreparePayment(order Order, card Card) (*Request, error)

	// Prepare3D starts 3D Secure authentication and yields whatever the
	// shopper's browser must be sent to: an auto-submit form or a plain
	// redirect URL.
	Prepare3D(ctx context.Context, order Order, card Card) (*ThreeDSession, error)

	// ParsePaymentResponse interprets the bank's reply to a request
	// built by PreparePayment, PrepareCancel, PrepareRefund or
	// PrepareStatus.
	ParsePaymentResponse(resp *HTTPResponse) (*Result, error)

	// Parse3DResponse interprets the form fields the ACS posted back to
	// the callback URL and resolves the final outcome. Protocols with a
	// separate provisioning leg complete it here.
	Parse3DResponse(ctx context.Context, fields map[string]string) (*Result, error)

	// PrepareCancel builds the void request for a same-day transaction.
	PrepareCancel(order Order) (*Request, error)

	// PrepareRefund builds the full or partial refund request.
	PrepareRefund(order Order, amount float64) (*Request, error)

	// PrepareStatus builds the transaction inquiry request.
	PrepareStatus(order Order) (*Request, error)
}

// Config carries the per-bank credentials and endpoints handed to
// Initialize. Adapters document their keys via RequiredConfig.
type Config map[string]string

// Common Config keys. Not every adapter uses every key.
const (
	CfgMerchantID      = "merchantId"
	CfgTerminalID      = "terminalId"
	CfgClientID        = "clientId"
	CfgUsername        = "username"
	CfgPassword        = "password"
	CfgStoreKey        = "storeKey"
	CfgPosNetID        = "posnetId"
	CfgAPIURL          = "paymentApiUrl"
	Cfg3DGatewayURL    = "gateway3dUrl"
	Cfg3DHostURL       = "gateway3dHostUrl"
	CfgEnvironment     = "environment"
)
