// Package akbank implements the newer Akbank JSON API. Requests carry
// a bearer token plus an uppercase SHA-256 hash over merchant,
// terminal, order, amount, currency, installment and the store key.
package akbank

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mewspay/vpos/gateway"
)

type Akbank struct {
	merchantID   string
	terminalID   string
	storeKey     string
	bearerToken  string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

func New() gateway.Gateway {
	return &Akbank{}
}

func (p *Akbank) Kind() gateway.Kind { return gateway.KindAkbank }

func (p *Akbank) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "Akbank merchant number",
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "Akbank terminal number",
		},
		{
			Key:         gateway.CfgStoreKey,
			Required:    true,
			Type:        "string",
			Description: "Secret key used in hash input",
		},
		{
			Key:         gateway.CfgClientID,
			Required:    false,
			Type:        "string",
			Description: "Bearer token for the JSON API",
		},
		{
			Key:         gateway.CfgAPIURL,
			Required:    true,
			Type:        "url",
			Description: "Akbank JSON API endpoint",
		},
		{
			Key:         gateway.Cfg3DGatewayURL,
			Required:    true,
			Type:        "url",
			Description: "Akbank 3D payment endpoint",
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

func (p *Akbank) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *Akbank) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalID = cfg[gateway.CfgTerminalID]
	p.storeKey = cfg[gateway.CfgStoreKey]
	p.bearerToken = cfg[gateway.CfgClientID]
	p.apiURL = cfg[gateway.CfgAPIURL]
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	p.isProduction = cfg.IsProduction()

	return nil
}

func (p *Akbank) hash(orderID string, amount float64, currency string, installment int) string {
	if installment < 1 {
		installment = 1
	}
	plain := p.merchantID + p.terminalID + orderID + gateway.FormatDecimal(amount) +
		currency + strconv.Itoa(installment) + p.storeKey
	return gateway.SHA256HexUpper(plain)
}

func (p *Akbank) jsonRequest(body map[string]string) (*gateway.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal payment document", Err: err}
	}
	headers := map[string]string{}
	if p.bearerToken != "" {
		headers["Authorization"] = "Bearer " + p.bearerToken
	}
	return &gateway.Request{
		URL:         p.apiURL,
		Method:      "POST",
		ContentType: "application/json",
		Body:        raw,
		Headers:     headers,
	}, nil
}

func (p *Akbank) cardDocument(order gateway.Order, card gateway.Card, secureOption string) map[string]string {
	installment := order.Installment
	if installment < 1 {
		installment = 1
	}
	return map[string]string{
		"version":         "1.0.0",
		"merchantId":      p.merchantID,
		"terminalId":      p.terminalID,
		"orderId":         order.ID,
		"amount":          gateway.FormatDecimal(order.Amount),
		"currency":        gateway.CurrencyNumeric(order.Currency),
		"installment":     strconv.Itoa(installment),
		"transactionType": "Sale",
		"cardOwner":       card.Holder,
		"cardNumber":      card.Number,
		"cardExpireMonth": card.ExpireMonth,
		"cardExpireYear":  card.ExpireYear,
		"cardCvv":         card.CVV,
		"hash":            p.hash(order.ID, order.Amount, order.Currency, order.Installment),
		"secureOption":    secureOption,
	}
}

func (p *Akbank) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := p.cardDocument(order, card, "3d")
	fields["successUrl"] = order.SuccessURL
	fields["failureUrl"] = order.FailURL
	fields["language"] = strings.ToUpper(lang)

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse applies the Akbank rule: status "success" together
// with resultCode "0000".
func (p *Akbank) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	status := fields["status"]
	resultCode := fields["resultCode"]
	approved := status == "success" && resultCode == "0000"

	mdStatus := "0"
	if approved {
		mdStatus = "1"
	}

	return &gateway.Result{
		Approved:      approved,
		OrderID:       fields["orderId"],
		TransactionID: fields["transactionId"],
		AuthCode:      fields["authCode"],
		HostRefNum:    fields["hostReferenceNumber"],
		RRN:           fields["rrn"],
		MDStatus:      mdStatus,
		ECI:           fields["eci"],
		CAVV:          fields["cavv"],
		XID:           fields["xid"],
		ErrorCode:     resultCode,
		ErrorMessage:  fields["resultMessage"],
		Raw:           fields,
	}, nil
}

func (p *Akbank) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	return p.jsonRequest(p.cardDocument(order, card, "NonSecure"))
}

func (p *Akbank) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.jsonRequest(map[string]string{
		"version":         "1.0.0",
		"merchantId":      p.merchantID,
		"terminalId":      p.terminalID,
		"orderId":         order.ID,
		"transactionType": "Void",
		"transactionId":   order.BankTxnID,
		"hash":            p.hash(order.ID, order.Amount, order.Currency, 1),
	})
}

func (p *Akbank) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.jsonRequest(map[string]string{
		"version":         "1.0.0",
		"merchantId":      p.merchantID,
		"terminalId":      p.terminalID,
		"orderId":         order.ID,
		"amount":          gateway.FormatDecimal(amount),
		"currency":        gateway.CurrencyNumeric(order.Currency),
		"transactionType": "Refund",
		"transactionId":   order.BankTxnID,
		"hash":            p.hash(order.ID, amount, order.Currency, 1),
	})
}

// PrepareStatus is not part of the Akbank JSON API capability set.
func (p *Akbank) PrepareStatus(gateway.Order) (*gateway.Request, error) {
	return nil, &gateway.UnsupportedOperationError{Gateway: p.Kind(), Operation: "status"}
}

func (p *Akbank) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var doc struct {
		Status              string `json:"status"`
		ResultCode          string `json:"resultCode"`
		ResultMessage       string `json:"resultMessage"`
		OrderID             string `json:"orderId"`
		TransactionID       string `json:"transactionId"`
		AuthCode            string `json:"authCode"`
		HostReferenceNumber string `json:"hostReferenceNumber"`
		RRN                 string `json:"rrn"`
	}
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode JSON response", Raw: resp.Body, Err: err}
	}

	return &gateway.Result{
		Approved:      doc.Status == "success" && doc.ResultCode == "0000",
		OrderID:       doc.OrderID,
		TransactionID: doc.TransactionID,
		AuthCode:      doc.AuthCode,
		HostRefNum:    doc.HostReferenceNumber,
		RRN:           doc.RRN,
		ErrorCode:     doc.ResultCode,
		ErrorMessage:  doc.ResultMessage,
		Raw: map[string]string{
			"status":              doc.Status,
			"resultCode":          doc.ResultCode,
			"resultMessage":       doc.ResultMessage,
			"orderId":             doc.OrderID,
			"transactionId":       doc.TransactionID,
			"authCode":            doc.AuthCode,
			"hostReferenceNumber": doc.HostReferenceNumber,
			"rrn":                 doc.RRN,
		},
	}, nil
}
