// Package garanti implements the Garanti BBVA GVPS protocol: a
// form-posted 3D_PAY flow and a GVPSRequest XML API for direct
// authorization, void and refund. Terminal IDs are zero-padded to nine
// digits everywhere, including hash input.
package garanti

import (
	"context"
	"encoding/xml"
	"strings"

	"github.com/mewspay/vpos/gateway"
)

const (
	apiTestURL       = "https://sanalposprovtest.garantibbva.com.tr/VPServlet"
	apiProductionURL = "https://sanalposprov.garanti.com.tr/VPServlet"

	gateway3DTestURL       = "https://sanalposprovtest.garantibbva.com.tr/servlet/gt3dengine"
	gateway3DProductionURL = "https://sanalposprov.garanti.com.tr/servlet/gt3dengine"

	apiVersion = "v0.01"

	txnTypeSales  = "sales"
	txnTypeVoid   = "void"
	txnTypeRefund = "refund"
)

type Garanti struct {
	merchantID   string
	terminalID   string
	username     string
	password     string
	storeKey     string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

func New() gateway.Gateway {
	return &Garanti{}
}

func (p *Garanti) Kind() gateway.Kind { return gateway.KindGaranti }

func (p *Garanti) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "Garanti merchant number",
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "Terminal ID; padded to 9 digits on the wire",
			MaxLength:   9,
		},
		{
			Key:         gateway.CfgUsername,
			Required:    true,
			Type:        "string",
			Description: "Provisioning user (PROVAUT)",
		},
		{
			Key:         gateway.CfgPassword,
			Required:    true,
			Type:        "string",
			Description: "Provisioning user password",
		},
		{
			Key:         gateway.CfgStoreKey,
			Required:    true,
			Type:        "string",
			Description: "3D Secure store key",
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

func (p *Garanti) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *Garanti) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalID = padTerminalID(cfg[gateway.CfgTerminalID])
	p.username = cfg[gateway.CfgUsername]
	p.password = cfg[gateway.CfgPassword]
	p.storeKey = cfg[gateway.CfgStoreKey]
	p.isProduction = cfg.IsProduction()

	p.apiURL = cfg[gateway.CfgAPIURL]
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	if p.apiURL == "" {
		p.apiURL = apiTestURL
		if p.isProduction {
			p.apiURL = apiProductionURL
		}
	}
	if p.gateway3DURL == "" {
		p.gateway3DURL = gateway3DTestURL
		if p.isProduction {
			p.gateway3DURL = gateway3DProductionURL
		}
	}

	return nil
}

func padTerminalID(id string) string {
	if len(id) >= 9 {
		return id
	}
	return strings.Repeat("0", 9-len(id)) + id
}

func (p *Garanti) mode() string {
	if p.isProduction {
		return "PROD"
	}
	return "TEST"
}

// securityData is SHA-1 of the provisioning password and the padded
// terminal ID, uppercase hex. It feeds every request hash.
func (p *Garanti) securityData() string {
	return gateway.SHA1HexUpper(p.password + p.terminalID)
}

func (p *Garanti) hash3D(orderID, amount, successURL, failURL, installment string) string {
	plain := p.terminalID + orderID + amount + successURL + failURL + txnTypeSales + installment + p.storeKey + p.securityData()
	return gateway.SHA1HexUpper(plain)
}

func (p *Garanti) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	amount := gateway.FormatMinorUnits(order.Amount)
	installment := gateway.FormatInstallment(order.Installment)

	// Single payment is "0" inside the hash but empty on the form.
	hashInstallment := installment
	if hashInstallment == "" {
		hashInstallment = "0"
	}

	ip := order.CustomerIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := map[string]string{
		"mode":                  p.mode(),
		"secure3dsecuritylevel": "3D_PAY",
		"apiversion":            apiVersion,
		"terminalprovuserid":    p.username,
		"terminaluserid":        p.username,
		"terminalmerchantid":    p.merchantID,
		"terminalid":            p.terminalID,
		"txntype":               txnTypeSales,
		"txnamount":             amount,
		"txncurrencycode":       gateway.CurrencyNumeric(order.Currency),
		"txninstallmentcount":   installment,
		"orderid":               order.ID,
		"successurl":            order.SuccessURL,
		"errorurl":              order.FailURL,
		"customeripaddress":     ip,
		"customeremailaddress":  order.Email,
		"secure3dhash":          p.hash3D(order.ID, amount, order.SuccessURL, order.FailURL, hashInstallment),
		"cardnumber":            card.Number,
		"cardexpiredatemonth":   card.ExpireMonth,
		"cardexpiredateyear":    card.ExpireYear,
		"cardcvv2":              card.CVV,
		"cardholdername":        card.Holder,
		"lang":                  lang,
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse applies the Garanti rule: mdstatus 1 through 4 is an
// authenticated session, but txnstatus "N" overrides it because the
// sale leg still needs a second provision that did not happen.
func (p *Garanti) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	mdStatus := fields["mdstatus"]
	if mdStatus == "" {
		mdStatus = "0"
	}

	approved := mdStatus == "1" || mdStatus == "2" || mdStatus == "3" || mdStatus == "4"
	if approved && fields["txnstatus"] == "N" {
		approved = false
	}

	errorMessage := fields["errmsg"]
	if errorMessage == "" {
		errorMessage = fields["mderrormessage"]
	}

	return &gateway.Result{
		Approved:       approved,
		OrderID:        fields["orderid"],
		TransactionID:  fields["transid"],
		AuthCode:       fields["authcode"],
		HostRefNum:     fields["hostrefnum"],
		RRN:            fields["rrn"],
		ProcReturnCode: fields["procreturncode"],
		MDStatus:       mdStatus,
		ECI:            fields["eci"],
		CAVV:           fields["cavv"],
		XID:            fields["xid"],
		ErrorCode:      fields["responsecode"],
		ErrorMessage:   errorMessage,
		Raw:            fields,
	}, nil
}

type gvpsTerminal struct {
	ProvUserID string `xml:"ProvUserID"`
	HashData   string `xml:"HashData,omitempty"`
	UserID     string `xml:"UserID"`
	ID         string `xml:"ID"`
	MerchantID string `xml:"MerchantID"`
}

type gvpsCustomer struct {
	IPAddress    string `xml:"IPAddress"`
	EmailAddress string `xml:"EmailAddress,omitempty"`
}

type gvpsCard struct {
	Number     string `xml:"Number"`
	ExpireDate string `xml:"ExpireDate"`
	CVV2       string `xml:"CVV2"`
}

type gvpsOrder struct {
	OrderID string `xml:"OrderID"`
	GroupID string `xml:"GroupID"`
}

type gvpsTransaction struct {
	Type                  string `xml:"Type"`
	InstallmentCnt        string `xml:"InstallmentCnt"`
	Amount                string `xml:"Amount"`
	CurrencyCode          string `xml:"CurrencyCode"`
	CardholderPresentCode string `xml:"CardholderPresentCode"`
	MotoInd               string `xml:"MotoInd"`
	OriginalRetrefNum     string `xml:"OriginalRetrefNum,omitempty"`
}

type gvpsRequest struct {
	XMLName     xml.Name        `xml:"GVPSRequest"`
	Mode        string          `xml:"Mode"`
	Version     string          `xml:"Version"`
	Terminal    gvpsTerminal    `xml:"Terminal"`
	Customer    gvpsCustomer    `xml:"Customer"`
	Card        *gvpsCard       `xml:"Card,omitempty"`
	Order       gvpsOrder       `xml:"Order"`
	Transaction gvpsTransaction `xml:"Transaction"`
}

type gvpsResponse struct {
	XMLName xml.Name `xml:"GVPSResponse"`
	Order   struct {
		OrderID string `xml:"OrderID"`
	} `xml:"Order"`
	Transaction struct {
		AuthCode  string `xml:"AuthCode"`
		RetrefNum string `xml:"RetrefNum"`
		RRN       string `xml:"RRN"`
		Response  struct {
			Code       string `xml:"Code"`
			ReasonCode string `xml:"ReasonCode"`
			Message    string `xml:"Message"`
			ErrorMsg   string `xml:"ErrorMsg"`
		} `xml:"Response"`
	} `xml:"Transaction"`
}

func (p *Garanti) xmlRequest(doc gvpsRequest) (*gateway.Request, error) {
	raw, err := xml.Marshal(doc)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal GVPSRequest", Err: err}
	}
	return &gateway.Request{
		URL:         p.apiURL,
		Method:      "POST",
		ContentType: "application/xml",
		Body:        []byte(xml.Header + string(raw)),
	}, nil
}

func (p *Garanti) baseRequest(order gateway.Order) gvpsRequest {
	ip := order.CustomerIP
	if ip == "" {
		ip = "127.0.0.1"
	}
	return gvpsRequest{
		Mode:    p.mode(),
		Version: apiVersion,
		Terminal: gvpsTerminal{
			ProvUserID: p.username,
			UserID:     p.username,
			ID:         p.terminalID,
			MerchantID: p.merchantID,
		},
		Customer: gvpsCustomer{IPAddress: ip, EmailAddress: order.Email},
		Order:    gvpsOrder{OrderID: order.ID},
	}
}

func (p *Garanti) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	amount := gateway.FormatMinorUnits(order.Amount)

	doc := p.baseRequest(order)
	doc.Terminal.HashData = gateway.SHA1HexUpper(order.ID + p.terminalID + card.Number + amount + p.securityData())
	doc.Card = &gvpsCard{
		Number:     card.Number,
		ExpireDate: card.ExpireMonth + card.ExpireYear,
		CVV2:       card.CVV,
	}
	doc.Transaction = gvpsTransaction{
		Type:                  txnTypeSales,
		InstallmentCnt:        gateway.FormatInstallment(order.Installment),
		Amount:                amount,
		CurrencyCode:          gateway.CurrencyNumeric(order.Currency),
		CardholderPresentCode: "0",
		MotoInd:               "N",
	}
	return p.xmlRequest(doc)
}

func (p *Garanti) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	doc := p.baseRequest(order)
	doc.Terminal.HashData = gateway.SHA1HexUpper(order.ID + p.terminalID + gateway.FormatMinorUnits(order.Amount) + p.securityData())
	doc.Transaction = gvpsTransaction{
		Type:                  txnTypeVoid,
		Amount:                gateway.FormatMinorUnits(order.Amount),
		CurrencyCode:          gateway.CurrencyNumeric(order.Currency),
		CardholderPresentCode: "0",
		MotoInd:               "N",
		OriginalRetrefNum:     order.HostRefNum,
	}
	return p.xmlRequest(doc)
}

func (p *Garanti) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	formatted := gateway.FormatMinorUnits(amount)

	doc := p.baseRequest(order)
	doc.Terminal.HashData = gateway.SHA1HexUpper(order.ID + p.terminalID + formatted + p.securityData())
	doc.Transaction = gvpsTransaction{
		Type:                  txnTypeRefund,
		Amount:                formatted,
		CurrencyCode:          gateway.CurrencyNumeric(order.Currency),
		CardholderPresentCode: "0",
		MotoInd:               "N",
		OriginalRetrefNum:     order.HostRefNum,
	}
	return p.xmlRequest(doc)
}

func (p *Garanti) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	doc := p.baseRequest(order)
	doc.Transaction = gvpsTransaction{
		Type:                  "orderinq",
		Amount:                gateway.FormatMinorUnits(order.Amount),
		CurrencyCode:          gateway.CurrencyNumeric(order.Currency),
		CardholderPresentCode: "0",
		MotoInd:               "N",
	}
	return p.xmlRequest(doc)
}

func (p *Garanti) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var doc gvpsResponse
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode GVPSResponse", Raw: resp.Body, Err: err}
	}

	code := doc.Transaction.Response.Code
	message := doc.Transaction.Response.ErrorMsg
	if message == "" {
		message = doc.Transaction.Response.Message
	}

	return &gateway.Result{
		Approved:       code == "00",
		OrderID:        doc.Order.OrderID,
		AuthCode:       doc.Transaction.AuthCode,
		HostRefNum:     doc.Transaction.RetrefNum,
		RRN:            doc.Transaction.RRN,
		ProcReturnCode: code,
		ErrorCode:      code,
		ErrorMessage:   message,
		Raw: map[string]string{
			"OrderID":   doc.Order.OrderID,
			"AuthCode":  doc.Transaction.AuthCode,
			"RetrefNum": doc.Transaction.RetrefNum,
			"RRN":       doc.Transaction.RRN,
			"Code":      code,
			"Message":   message,
		},
	}, nil
}
