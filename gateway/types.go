package gateway

import (
	"net/url"
	"strings"
)

// Order is a single payment attempt as the adapters see it. Amount is
// in major currency units; Installment <= 1 means single payment.
type Order struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	Installment int     `json:"installment"`
	SuccessURL  string  `json:"successUrl"`
	FailURL     string  `json:"failUrl"`
	CustomerIP  string  `json:"customerIp"`
	Email       string  `json:"email,omitempty"`
	Lang        string  `json:"lang,omitempty"`
	Description string  `json:"description,omitempty"`

	// Bank references captured from an earlier authorization, required
	// by cancel, refund and status requests on most protocols.
	HostRefNum string `json:"hostRefNum,omitempty"`
	AuthCode   string `json:"authCode,omitempty"`
	BankTxnID  string `json:"bankTxnId,omitempty"`
}

// Card holds the shopper's card data. It is never persisted; only the
// masked form and the detected brand leave the payment path.
type Card struct {
	Number      string `json:"number"`
	Holder      string `json:"holder"`
	ExpireMonth string `json:"expireMonth"` // MM
	ExpireYear  string `json:"expireYear"`  // YY
	CVV         string `json:"cvv"`
}

// BIN returns the first six digits of the card number.
func (c Card) BIN() string {
	n := digitsOnly(c.Number)
	if len(n) < 6 {
		return n
	}
	return n[:6]
}

// Masked returns the card number with only the first six and last four
// digits visible, e.g. "454360******7894".
func (c Card) Masked() string {
	n := digitsOnly(c.Number)
	if len(n) < 10 {
		return strings.Repeat("*", len(n))
	}
	return n[:6] + strings.Repeat("*", len(n)-10) + n[len(n)-4:]
}

// Brand detects the card scheme from the number prefix.
func (c Card) Brand() string {
	n := digitsOnly(c.Number)
	switch {
	case len(n) == 0:
		return ""
	case strings.HasPrefix(n, "4"):
		return "visa"
	case hasPrefixInRange(n, 51, 55) || hasPrefixInRange(n, 2221, 2720):
		return "mastercard"
	case strings.HasPrefix(n, "34") || strings.HasPrefix(n, "37"):
		return "amex"
	case strings.HasPrefix(n, "9792") || strings.HasPrefix(n, "65"):
		return "troy"
	default:
		return "unknown"
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func hasPrefixInRange(n string, lo, hi int) bool {
	width := len(itoa(lo))
	if len(n) < width {
		return false
	}
	v := 0
	for _, r := range n[:width] {
		v = v*10 + int(r-'0')
	}
	return v >= lo && v <= hi
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	var b [8]byte
	i := len(b)
	for v > 0 {
		i--
		b[i] = byte('0' + v%10)
		v /= 10
	}
	return string(b[i:])
}

// Request is an outgoing bank API call built by an adapter. Exactly one
// of Form or Body is set.
type Request struct {
	URL         string
	Method      string
	ContentType string
	Form        url.Values
	Body        []byte
	Headers     map[string]string
	SOAPAction  string
}

// RedirectForm is a browser-side auto-submit POST to the bank's 3D
// authentication page.
type RedirectForm struct {
	URL    string
	Method string
	Fields map[string]string
}

// ThreeDSession is what Prepare3D yields. Either Form or RedirectURL is
// set, never both.
type ThreeDSession struct {
	Form        *RedirectForm
	RedirectURL string
	// BankTxnID carries a bank-issued session reference that must
	// survive until the provisioning leg (PosNet data1, Kuveyt MD).
	BankTxnID string
}

// Result is the adapter-level outcome of a bank exchange, before
// normalization. Raw keeps the flattened bank payload for audit.
type Result struct {
	Approved       bool
	OrderID        string
	TransactionID  string
	AuthCode       string
	HostRefNum     string
	RRN            string
	ProcReturnCode string
	MDStatus       string
	ECI            string
	CAVV           string
	XID            string
	ErrorCode      string
	ErrorMessage   string
	Raw            map[string]string
}

// NormalizedResult is the fixed output shape handed to callers,
// independent of which bank produced it.
type NormalizedResult struct {
	Approved      bool   `json:"approved"`
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId,omitempty"`
	AuthCode      string `json:"authCode,omitempty"`
	HostRefNum    string `json:"hostRefNum,omitempty"`
	RRN           string `json:"rrn,omitempty"`
	MDStatus      string `json:"mdStatus,omitempty"`
	ECI           string `json:"eci,omitempty"`
	CAVV          string `json:"cavv,omitempty"`
	XID           string `json:"xid,omitempty"`
	ErrorCode     string `json:"errorCode,omitempty"`
	ErrorMessage  string `json:"errorMessage,omitempty"`
}

// Normalize maps an adapter Result onto the fixed output shape. The
// adapters already translate bank field names while parsing, so this
// mapping is uniform across protocols.
func Normalize(r *Result) *NormalizedResult {
	if r == nil {
		return &NormalizedResult{}
	}
	return &NormalizedResult{
		Approved:      r.Approved,
		OrderID:       r.OrderID,
		TransactionID: r.TransactionID,
		AuthCode:      r.AuthCode,
		HostRefNum:    r.HostRefNum,
		RRN:           r.RRN,
		MDStatus:      r.MDStatus,
		ECI:           r.ECI,
		CAVV:          r.CAVV,
		XID:           r.XID,
		ErrorCode:     r.ErrorCode,
		ErrorMessage:  r.ErrorMessage,
	}
}
