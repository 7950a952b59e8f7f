// Package bank holds the merchant-side view of the banks: credential
// profiles, the BIN directory used to route cards to their issuing
// bank, and a read-through cache in front of the directory.
package bank

import (
	"errors"

	"github.com/mewspay/vpos/gateway"
)

// Profile is one configured bank terminal. Immutable while payments
// are in flight; referenced read-only by many transactions.
type Profile struct {
	Code            string               `json:"code"`
	Name            string               `json:"name"`
	Kind            gateway.Kind         `json:"kind"`
	PaymentModel    gateway.PaymentModel `json:"paymentModel"`
	MerchantID      string               `json:"-"`
	TerminalID      string               `json:"-"`
	ClientID        string               `json:"-"`
	Username        string               `json:"-"`
	Password        string               `json:"-"`
	StoreKey        string               `json:"-"`
	PosNetID        string               `json:"-"`
	PaymentAPIURL   string               `json:"-"`
	Gateway3DURL    string               `json:"-"`
	Gateway3DHostURL string              `json:"-"`
	Environment     string               `json:"environment"`
	Active          bool                 `json:"active"`
}

// GatewayConfig renders the profile into the configuration map the
// adapter's Initialize expects.
func (p *Profile) GatewayConfig() gateway.Config {
	cfg := gateway.Config{
		gateway.CfgEnvironment: p.Environment,
	}
	set := func(key, value string) {
		if value != "" {
			cfg[key] = value
		}
	}
	set(gateway.CfgMerchantID, p.MerchantID)
	set(gateway.CfgTerminalID, p.TerminalID)
	set(gateway.CfgClientID, p.ClientID)
	set(gateway.CfgUsername, p.Username)
	set(gateway.CfgPassword, p.Password)
	set(gateway.CfgStoreKey, p.StoreKey)
	set(gateway.CfgPosNetID, p.PosNetID)
	set(gateway.CfgAPIURL, p.PaymentAPIURL)
	set(gateway.Cfg3DGatewayURL, p.Gateway3DURL)
	set(gateway.Cfg3DHostURL, p.Gateway3DHostURL)
	return cfg
}

// BinEntry routes a six digit card prefix to a bank profile. Prefixes
// are globally unique.
type BinEntry struct {
	Prefix   string `json:"prefix"`
	BankCode string `json:"bankCode"`
	Brand    string `json:"brand,omitempty"`
}

// Directory is the lookup surface the payment path needs. The sqlite
// store implements it; the cache wraps it.
type Directory interface {
	BankByCode(code string) (*Profile, error)
	BankByPrefix(prefix string) (*Profile, error)
	DefaultBank() (*Profile, error)
}

// ErrNotFound is returned by Directory lookups that match nothing.
// The installment engine treats a missing BIN as "single payment on
// the default bank", so callers must be able to tell this apart from
// an infrastructure failure.
type notFoundError struct{ what string }

func (e *notFoundError) Error() string { return e.what + " not found" }

// NewNotFound builds a not-found error for a lookup subject.
func NewNotFound(what string) error { return &notFoundError{what: what} }

// IsNotFound reports whether err marks an absent record rather than a
// storage failure.
func IsNotFound(err error) bool {
	var nf *notFoundError
	return errors.As(err, &nf)
}
