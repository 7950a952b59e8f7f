// Package payflex implements the PayFlex protocol used by Vakıfbank
// and Ziraat PayFlex terminals. Amounts travel as two-decimal strings
// and every request carries an uppercase SHA-256 HashData.
package payflex

import (
	"context"
	"encoding/xml"
	"strconv"

	"github.com/mewspay/vpos/gateway"
)

const (
	txnTypeSale   = "Sale"
	txnTypeVoid   = "Void"
	txnTypeRefund = "Refund"
)

type PayFlex struct {
	merchantID   string
	terminalNo   string
	password     string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

func New() gateway.Gateway {
	return &PayFlex{}
}

func (p *PayFlex) Kind() gateway.Kind { return gateway.KindPayFlex }

func (p *PayFlex) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "PayFlex merchant number",
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "PayFlex terminal number (TerminalNo)",
		},
		{
			Key:         gateway.CfgPassword,
			Required:    true,
			Type:        "string",
			Description: "Merchant password, used in hash input",
		},
		{
			Key:         gateway.CfgAPIURL,
			Required:    true,
			Type:        "url",
			Description: "PayFlex XML API endpoint",
		},
		{
			Key:         gateway.Cfg3DGatewayURL,
			Required:    true,
			Type:        "url",
			Description: "PayFlex 3D enrollment endpoint",
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

func (p *PayFlex) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *PayFlex) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalNo = cfg[gateway.CfgTerminalID]
	p.password = cfg[gateway.CfgPassword]
	p.apiURL = cfg[gateway.CfgAPIURL]
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	p.isProduction = cfg.IsProduction()

	return nil
}

func (p *PayFlex) hash(orderID string, amount float64) string {
	return gateway.SHA256HexUpper(p.merchantID + p.terminalNo + orderID + gateway.FormatDecimal(amount) + p.password)
}

func (p *PayFlex) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	installment := order.Installment
	if installment < 1 {
		installment = 1
	}
	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := map[string]string{
		"MerchantId":       p.merchantID,
		"TerminalNo":       p.terminalNo,
		"OrderId":          order.ID,
		"Amount":           gateway.FormatDecimal(order.Amount),
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"InstallmentCount": strconv.Itoa(installment),
		"TxnType":          txnTypeSale,
		"SecureType":       "3DPay",
		"Lang":             lang,
		"SuccessUrl":       order.SuccessURL,
		"FailUrl":          order.FailURL,
		"Pan":              card.Number,
		"ExpiryDate":       card.ExpireMonth + card.ExpireYear,
		"Cvv":              card.CVV,
		"CardHolderName":   card.Holder,
		"HashData":         p.hash(order.ID, order.Amount),
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse needs both markers: ResultCode "Success" and
// ResponseCode "00". Either alone is not an approval.
func (p *PayFlex) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	resultCode := fields["ResultCode"]
	responseCode := fields["ResponseCode"]
	approved := resultCode == "Success" && responseCode == "00"

	mdStatus := "0"
	if approved {
		mdStatus = "1"
	}

	errorMessage := fields["ErrorMessage"]
	if errorMessage == "" {
		errorMessage = fields["ResultDetail"]
	}

	return &gateway.Result{
		Approved:       approved,
		OrderID:        fields["OrderId"],
		TransactionID:  fields["TransactionId"],
		AuthCode:       fields["AuthCode"],
		HostRefNum:     fields["HostRefNum"],
		RRN:            fields["Rrn"],
		ProcReturnCode: responseCode,
		MDStatus:       mdStatus,
		ECI:            fields["Eci"],
		CAVV:           fields["Cavv"],
		ErrorCode:      responseCode,
		ErrorMessage:   errorMessage,
		Raw:            fields,
	}, nil
}

type payflexRequest struct {
	XMLName                xml.Name `xml:"PayforRequest"`
	MerchantID             string   `xml:"MerchantId"`
	TerminalNo             string   `xml:"TerminalNo"`
	OrderID                string   `xml:"OrderId"`
	Amount                 string   `xml:"Amount,omitempty"`
	Currency               string   `xml:"Currency,omitempty"`
	InstallmentCount       string   `xml:"InstallmentCount,omitempty"`
	TxnType                string   `xml:"TxnType"`
	SecureType             string   `xml:"SecureType,omitempty"`
	Pan                    string   `xml:"Pan,omitempty"`
	ExpiryDate             string   `xml:"ExpiryDate,omitempty"`
	CVV                    string   `xml:"Cvv,omitempty"`
	ReferenceTransactionID string   `xml:"ReferenceTransactionId,omitempty"`
	HashData               string   `xml:"HashData"`
}

type payflexResponse struct {
	XMLName       xml.Name `xml:"PayforResponse"`
	ResultCode    string   `xml:"ResultCode"`
	ResultDetail  string   `xml:"ResultDetail"`
	ResponseCode  string   `xml:"ResponseCode"`
	ErrorMessage  string   `xml:"ErrorMessage"`
	OrderID       string   `xml:"OrderId"`
	TransactionID string   `xml:"TransactionId"`
	AuthCode      string   `xml:"AuthCode"`
	HostRefNum    string   `xml:"HostRefNum"`
	Rrn           string   `xml:"Rrn"`
}

func (p *PayFlex) xmlRequest(doc payflexRequest) (*gateway.Request, error) {
	raw, err := xml.Marshal(doc)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal PayforRequest", Err: err}
	}
	return &gateway.Request{
		URL:         p.apiURL,
		Method:      "POST",
		ContentType: "application/xml",
		Body:        []byte(xml.Header + string(raw)),
	}, nil
}

func (p *PayFlex) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	installment := order.Installment
	if installment < 1 {
		installment = 1
	}
	return p.xmlRequest(payflexRequest{
		MerchantID:       p.merchantID,
		TerminalNo:       p.terminalNo,
		OrderID:          order.ID,
		Amount:           gateway.FormatDecimal(order.Amount),
		Currency:         gateway.CurrencyNumeric(order.Currency),
		InstallmentCount: strconv.Itoa(installment),
		TxnType:          txnTypeSale,
		SecureType:       "NonSecure",
		Pan:              card.Number,
		ExpiryDate:       card.ExpireMonth + card.ExpireYear,
		CVV:              card.CVV,
		HashData:         p.hash(order.ID, order.Amount),
	})
}

func (p *PayFlex) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.xmlRequest(payflexRequest{
		MerchantID:             p.merchantID,
		TerminalNo:             p.terminalNo,
		OrderID:                order.ID,
		TxnType:                txnTypeVoid,
		ReferenceTransactionID: order.HostRefNum,
		HashData:               p.hash(order.ID, order.Amount),
	})
}

func (p *PayFlex) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.xmlRequest(payflexRequest{
		MerchantID:             p.merchantID,
		TerminalNo:             p.terminalNo,
		OrderID:                order.ID,
		Amount:                 gateway.FormatDecimal(amount),
		Currency:               gateway.CurrencyNumeric(order.Currency),
		TxnType:                txnTypeRefund,
		ReferenceTransactionID: order.HostRefNum,
		HashData:               p.hash(order.ID, amount),
	})
}

// PrepareStatus is not part of the PayFlex capability set.
func (p *PayFlex) PrepareStatus(gateway.Order) (*gateway.Request, error) {
	return nil, &gateway.UnsupportedOperationError{Gateway: p.Kind(), Operation: "status"}
}

func (p *PayFlex) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var doc payflexResponse
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode PayforResponse", Raw: resp.Body, Err: err}
	}

	errorMessage := doc.ErrorMessage
	if errorMessage == "" {
		errorMessage = doc.ResultDetail
	}

	return &gateway.Result{
		Approved:       doc.ResultCode == "Success" && doc.ResponseCode == "00",
		OrderID:        doc.OrderID,
		TransactionID:  doc.TransactionID,
		AuthCode:       doc.AuthCode,
		HostRefNum:     doc.HostRefNum,
		RRN:            doc.Rrn,
		ProcReturnCode: doc.ResponseCode,
		ErrorCode:      doc.ResponseCode,
		ErrorMessage:   errorMessage,
		Raw: map[string]string{
			"ResultCode":   doc.ResultCode,
			"ResponseCode": doc.ResponseCode,
			"OrderId":      doc.OrderID,
			"AuthCode":     doc.AuthCode,
			"HostRefNum":   doc.HostRefNum,
			"Rrn":          doc.Rrn,
			"ErrorMessage": errorMessage,
		},
	}, nil
}
