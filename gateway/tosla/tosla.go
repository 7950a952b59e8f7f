// Package tosla implements the Tosla (formerly AKÖde) REST protocol.
// Requests are JSON documents signed with an uppercase SHA-256 hash
// over merchant, terminal, order, amount and the store key.
package tosla

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/mewspay/vpos/gateway"
)

type Tosla struct {
	merchantID   string
	terminalID   string
	storeKey     string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

func New() gateway.Gateway {
	return &Tosla{}
}

func (p *Tosla) Kind() gateway.Kind { return gateway.KindTosla }

func (p *Tosla) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "Tosla merchant number",
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "Tosla terminal number",
		},
		{
			Key:         gateway.CfgStoreKey,
			Required:    true,
			Type:        "string",
			Description: "API key used in hash input",
		},
		{
			Key:         gateway.CfgAPIURL,
			Required:    true,
			Type:        "url",
			Description: "Tosla payment API endpoint",
		},
		{
			Key:         gateway.Cfg3DGatewayURL,
			Required:    true,
			Type:        "url",
			Description: "Tosla 3D payment endpoint",
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

func (p *Tosla) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *Tosla) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalID = cfg[gateway.CfgTerminalID]
	p.storeKey = cfg[gateway.CfgStoreKey]
	p.apiURL = cfg[gateway.CfgAPIURL]
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	p.isProduction = cfg.IsProduction()

	return nil
}

func (p *Tosla) hash(orderID, amount string) string {
	return gateway.SHA256HexUpper(p.merchantID + p.terminalID + orderID + amount + p.storeKey)
}

type paymentDocument struct {
	APIVersion       string `json:"ApiVersion"`
	MerchantID       string `json:"MerchantId"`
	TerminalID       string `json:"TerminalId"`
	OrderID          string `json:"OrderId"`
	Amount           string `json:"Amount,omitempty"`
	Currency         string `json:"Currency,omitempty"`
	InstallmentCount string `json:"InstallmentCount,omitempty"`
	TransactionType  string `json:"TransactionType"`
	TransactionID    string `json:"TransactionId,omitempty"`
	CardOwner        string `json:"CardOwner,omitempty"`
	CardNumber       string `json:"CardNumber,omitempty"`
	CardExpireMonth  string `json:"CardExpireMonth,omitempty"`
	CardExpireYear   string `json:"CardExpireYear,omitempty"`
	CardCvv          string `json:"CardCvv,omitempty"`
	SuccessURL       string `json:"SuccessUrl,omitempty"`
	ErrorURL         string `json:"ErrorUrl,omitempty"`
	SecureType       string `json:"SecureType,omitempty"`
	Language         string `json:"Language,omitempty"`
	Hash             string `json:"Hash"`
}

type paymentResponse struct {
	ResultCode          string `json:"ResultCode"`
	ResultStatus        string `json:"ResultStatus"`
	ResultMessage       string `json:"ResultMessage"`
	OrderID             string `json:"OrderId"`
	TransactionID       string `json:"TransactionId"`
	AuthCode            string `json:"AuthCode"`
	HostReferenceNumber string `json:"HostReferenceNumber"`
	Rrn                 string `json:"Rrn"`
	Eci                 string `json:"Eci"`
	Cavv                string `json:"Cavv"`
	Xid                 string `json:"Xid"`
}

func (p *Tosla) jsonRequest(endpoint string, doc paymentDocument) (*gateway.Request, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal payment document", Err: err}
	}
	return &gateway.Request{
		URL:         endpoint,
		Method:      "POST",
		ContentType: "application/json",
		Body:        body,
	}, nil
}

func (p *Tosla) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	amount := gateway.FormatDecimal(order.Amount)

	installment := order.Installment
	if installment < 1 {
		installment = 1
	}
	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := map[string]string{
		"ApiVersion":       "1.0.0",
		"MerchantId":       p.merchantID,
		"TerminalId":       p.terminalID,
		"OrderId":          order.ID,
		"Amount":           amount,
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"InstallmentCount": strconv.Itoa(installment),
		"TransactionType":  "Sale",
		"CardOwner":        card.Holder,
		"CardNumber":       card.Number,
		"CardExpireMonth":  card.ExpireMonth,
		"CardExpireYear":   card.ExpireYear,
		"CardCvv":          card.CVV,
		"SuccessUrl":       order.SuccessURL,
		"ErrorUrl":         order.FailURL,
		"SecureType":       "3DPay",
		"Language":         lang,
		"Hash":             p.hash(order.ID, amount),
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse applies the Tosla rule: ResultCode "0000" together
// with ResultStatus "Success".
func (p *Tosla) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	resultCode := fields["ResultCode"]
	resultStatus := fields["ResultStatus"]
	approved := resultCode == "0000" && resultStatus == "Success"

	mdStatus := "0"
	if approved {
		mdStatus = "1"
	}

	return &gateway.Result{
		Approved:      approved,
		OrderID:       fields["OrderId"],
		TransactionID: fields["TransactionId"],
		AuthCode:      fields["AuthCode"],
		HostRefNum:    fields["HostReferenceNumber"],
		RRN:           fields["Rrn"],
		MDStatus:      mdStatus,
		ECI:           fields["Eci"],
		CAVV:          fields["Cavv"],
		XID:           fields["Xid"],
		ErrorCode:     resultCode,
		ErrorMessage:  fields["ResultMessage"],
		Raw:           fields,
	}, nil
}

func (p *Tosla) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	amount := gateway.FormatDecimal(order.Amount)
	installment := order.Installment
	if installment < 1 {
		installment = 1
	}
	return p.jsonRequest(p.apiURL, paymentDocument{
		APIVersion:       "1.0.0",
		MerchantID:       p.merchantID,
		TerminalID:       p.terminalID,
		OrderID:          order.ID,
		Amount:           amount,
		Currency:         gateway.CurrencyNumeric(order.Currency),
		InstallmentCount: strconv.Itoa(installment),
		TransactionType:  "Sale",
		CardOwner:        card.Holder,
		CardNumber:       card.Number,
		CardExpireMonth:  card.ExpireMonth,
		CardExpireYear:   card.ExpireYear,
		CardCvv:          card.CVV,
		SecureType:       "NonSecure",
		Hash:             p.hash(order.ID, amount),
	})
}

func (p *Tosla) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.jsonRequest(p.apiURL, paymentDocument{
		APIVersion:      "1.0.0",
		MerchantID:      p.merchantID,
		TerminalID:      p.terminalID,
		OrderID:         order.ID,
		TransactionType: "Void",
		TransactionID:   order.BankTxnID,
		Hash:            gateway.SHA256HexUpper(p.merchantID + p.terminalID + order.ID + p.storeKey),
	})
}

func (p *Tosla) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	formatted := gateway.FormatDecimal(amount)
	return p.jsonRequest(p.apiURL, paymentDocument{
		APIVersion:      "1.0.0",
		MerchantID:      p.merchantID,
		TerminalID:      p.terminalID,
		OrderID:         order.ID,
		Amount:          formatted,
		Currency:        gateway.CurrencyNumeric(order.Currency),
		TransactionType: "Refund",
		TransactionID:   order.BankTxnID,
		Hash:            p.hash(order.ID, formatted),
	})
}

// PrepareStatus is not part of the Tosla capability set.
func (p *Tosla) PrepareStatus(gateway.Order) (*gateway.Request, error) {
	return nil, &gateway.UnsupportedOperationError{Gateway: p.Kind(), Operation: "status"}
}

func (p *Tosla) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var doc paymentResponse
	if err := json.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode JSON response", Raw: resp.Body, Err: err}
	}

	return &gateway.Result{
		Approved:      doc.ResultCode == "0000" && doc.ResultStatus == "Success",
		OrderID:       doc.OrderID,
		TransactionID: doc.TransactionID,
		AuthCode:      doc.AuthCode,
		HostRefNum:    doc.HostReferenceNumber,
		RRN:           doc.Rrn,
		ErrorCode:     doc.ResultCode,
		ErrorMessage:  doc.ResultMessage,
		Raw: map[string]string{
			"ResultCode":          doc.ResultCode,
			"ResultStatus":        doc.ResultStatus,
			"ResultMessage":       doc.ResultMessage,
			"OrderId":             doc.OrderID,
			"TransactionId":       doc.TransactionID,
			"AuthCode":            doc.AuthCode,
			"HostReferenceNumber": doc.HostReferenceNumber,
			"Rrn":                 doc.Rrn,
		},
	}, nil
}
