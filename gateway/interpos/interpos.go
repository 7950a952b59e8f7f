// Package interpos implements the Denizbank InterPOS protocol. The 3D
// leg is a posted form; the direct API is form-encoded and may answer
// either JSON or URL-encoded pairs, so the parser accepts both.
package interpos

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	"github.com/mewspay/vpos/gateway"
)

const (
	txnTypeAuth   = "Auth"
	txnTypeVoid   = "Void"
	txnTypeRefund = "Refund"
)

type InterPOS struct {
	shopCode     string
	username     string
	password     string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

func New() gateway.Gateway {
	return &InterPOS{}
}

func (p *InterPOS) Kind() gateway.Kind { return gateway.KindInterPOS }

func (p *InterPOS) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgClientID,
			Required:    true,
			Type:        "string",
			Description: "InterPOS shop code",
		},
		{
			Key:         gateway.CfgUsername,
			Required:    true,
			Type:        "string",
			Description: "API user code",
		},
		{
			Key:         gateway.CfgPassword,
			Required:    true,
			Type:        "string",
			Description: "API user password",
		},
		{
			Key:         gateway.CfgAPIURL,
			Required:    true,
			Type:        "url",
			Description: "InterPOS API endpoint",
		},
		{
			Key:         gateway.Cfg3DGatewayURL,
			Required:    true,
			Type:        "url",
			Description: "InterPOS 3D gate endpoint",
		},
		{
			Key:         gateway.CfgEnvironment,
			Required:    true,
			Type:        "string",
			Description: "Environment setting (test or production)",
			Pattern:     "^(test|production)$",
		},
	}
}

func (p *InterPOS) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *InterPOS) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.shopCode = cfg[gateway.CfgClientID]
	p.username = cfg[gateway.CfgUsername]
	p.password = cfg[gateway.CfgPassword]
	p.apiURL = cfg[gateway.CfgAPIURL]
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	p.isProduction = cfg.IsProduction()

	return nil
}

func (p *InterPOS) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	amount := gateway.FormatDecimal(order.Amount)

	// The Rnd field is the first ten characters of the hash input. An
	// InterPOS quirk, but the bank validates against it.
	plain := p.shopCode + order.ID + amount + order.SuccessURL + order.FailURL + p.username + p.password
	rnd := plain
	if len(rnd) > 10 {
		rnd = rnd[:10]
	}

	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := map[string]string{
		"ShopCode":         p.shopCode,
		"TxnType":          txnTypeAuth,
		"SecureType":       "3DPay",
		"PurchAmount":      amount,
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"InstallmentCount": gateway.FormatInstallment(order.Installment),
		"OrderId":          order.ID,
		"OkUrl":            order.SuccessURL,
		"FailUrl":          order.FailURL,
		"Rnd":              rnd,
		"Hash":             gateway.SHA256HexUpper(plain),
		"Lang":             lang,
		"Pan":              card.Number,
		"ExpiryDate":       card.ExpireMonth + card.ExpireYear,
		"Cvv2":             card.CVV,
		"CardHolderName":   card.Holder,
		"UserCode":         p.username,
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse requires TRANSTAT "Success" together with
// ProcReturnCode "00".
func (p *InterPOS) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	procReturnCode := fields["ProcReturnCode"]
	transStat := fields["TRANSTAT"]
	approved := transStat == "Success" && procReturnCode == "00"

	mdStatus := "0"
	if approved {
		mdStatus = "1"
	}

	return &gateway.Result{
		Approved:       approved,
		OrderID:        fields["OrderId"],
		TransactionID:  fields["TransId"],
		AuthCode:       fields["AuthCode"],
		HostRefNum:     fields["HostRefNum"],
		RRN:            fields["RetrefNum"],
		ProcReturnCode: procReturnCode,
		MDStatus:       mdStatus,
		ErrorCode:      procReturnCode,
		ErrorMessage:   fields["ErrMsg"],
		Raw:            fields,
	}, nil
}

func (p *InterPOS) apiForm(extra map[string]string) *gateway.Request {
	form := url.Values{}
	form.Set("ShopCode", p.shopCode)
	form.Set("UserCode", p.username)
	form.Set("UserPass", p.password)
	form.Set("SecureType", "NonSecure")
	for k, v := range extra {
		form.Set(k, v)
	}
	return &gateway.Request{
		URL:    p.apiURL,
		Method: "POST",
		Form:   form,
	}
}

func (p *InterPOS) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	return p.apiForm(map[string]string{
		"TxnType":          txnTypeAuth,
		"PurchAmount":      gateway.FormatDecimal(order.Amount),
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"InstallmentCount": gateway.FormatInstallment(order.Installment),
		"OrderId":          order.ID,
		"Pan":              card.Number,
		"ExpiryDate":       card.ExpireMonth + card.ExpireYear,
		"Cvv2":             card.CVV,
		"MOTO":             "0",
	}), nil
}

func (p *InterPOS) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.apiForm(map[string]string{
		"TxnType":    txnTypeVoid,
		"OrderId":    order.ID,
		"OrgOrderId": order.ID,
		"TransId":    order.BankTxnID,
	}), nil
}

func (p *InterPOS) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.apiForm(map[string]string{
		"TxnType":     txnTypeRefund,
		"PurchAmount": gateway.FormatDecimal(amount),
		"Currency":    gateway.CurrencyNumeric(order.Currency),
		"OrderId":     order.ID,
		"OrgOrderId":  order.ID,
		"TransId":     order.BankTxnID,
	}), nil
}

func (p *InterPOS) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	return p.apiForm(map[string]string{
		"TxnType":    "StatusHistory",
		"OrderId":    order.ID,
		"OrgOrderId": order.ID,
	}), nil
}

// ParsePaymentResponse tolerates both reply encodings of the direct
// API: a JSON object, or URL-encoded pairs.
func (p *InterPOS) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	raw := map[string]string{}

	trimmed := strings.TrimSpace(string(resp.Body))
	if strings.HasPrefix(trimmed, "{") {
		var fields map[string]any
		if err := json.Unmarshal(resp.Body, &fields); err != nil {
			return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode JSON response", Raw: resp.Body, Err: err}
		}
		for k, v := range fields {
			if s, ok := v.(string); ok {
				raw[k] = s
			}
		}
	} else {
		values, err := url.ParseQuery(trimmed)
		if err != nil {
			return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode url-encoded response", Raw: resp.Body, Err: err}
		}
		for k := range values {
			raw[k] = values.Get(k)
		}
	}

	procReturnCode := raw["ProcReturnCode"]

	return &gateway.Result{
		Approved:       procReturnCode == "00",
		OrderID:        raw["OrderId"],
		TransactionID:  raw["TransId"],
		AuthCode:       raw["AuthCode"],
		HostRefNum:     raw["HostRefNum"],
		RRN:            raw["RetrefNum"],
		ProcReturnCode: procReturnCode,
		ErrorCode:      procReturnCode,
		ErrorMessage:   raw["ErrMsg"],
		Raw:            raw,
	}, nil
}
