// Package estpos implements the EST / Payten virtual POS protocol used
// by Ziraat, İşbank, Akbank (legacy), TEB and Şekerbank terminals:
// a form-posted 3D flow hashed with SHA-512 and a CC5Request XML API
// for direct authorization, void and refund.
package estpos

import (
	"context"
	"encoding/xml"
	"net/url"

	"github.com/mewspay/vpos/gateway"
)

const (
	apiTestURL       = "https://entegrasyon.asseco-see.com.tr/fim/api"
	gateway3DTestURL = "https://entegrasyon.asseco-see.com.tr/fim/est3Dgate"

	transTypeAuth   = "Auth"
	transTypeVoid   = "Void"
	transTypeCredit = "Credit"

	defaultStoreType = "3d_pay"
)

// EstPOS is the EST protocol adapter.
type EstPOS struct {
	clientID     string
	username     string
	password     string
	storeKey     string
	storeType    string
	apiURL       string
	gateway3DURL string
	isProduction bool
}

// New creates an uninitialized EST adapter.
func New() gateway.Gateway {
	return &EstPOS{}
}

func (p *EstPOS) Kind() gateway.Kind { return gateway.KindEstPOS }

func (p *EstPOS) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgClientID,
			Required:    true,
			Type:        "string",
			Description: "Merchant number assigned by the bank (clientid)",
			Example:     "100100000",
		},
		{
			Key:         gateway.CfgUsername,
			Required:    true,
			Type:        "string",
			Description: "API user for the XML services",
		},
		{
			Key:         gateway.CfgPassword,
			Required:    true,
			Type:        "string",
			Description: "API user password",
		},
		{
			Key:         gateway.CfgStoreKey,
			Required:    true,
			Type:        "string",
			Description: "3D Secure store key used in hash construction",
			MinLength:   6,
		},
		{
			Key:         gateway.CfgEnvironment,
			Required:    true,
			Type:        "string",
			Description: "Environment setting (test or production)",
			Example:     "test",
			Pattern:     "^(test|production)$",
		},
		{
			Key:         gateway.CfgAPIURL,
			Required:    false,
			Type:        "url",
			Description: "Bank XML API endpoint; each bank runs its own host",
		},
		{
			Key:         gateway.Cfg3DGatewayURL,
			Required:    false,
			Type:        "url",
			Description: "Bank 3D gate endpoint (est3Dgate)",
		},
	}
}

func (p *EstPOS) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *EstPOS) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.clientID = cfg[gateway.CfgClientID]
	p.username = cfg[gateway.CfgUsername]
	p.password = cfg[gateway.CfgPassword]
	p.storeKey = cfg[gateway.CfgStoreKey]
	p.isProduction = cfg.IsProduction()

	p.storeType = cfg["storeType"]
	if p.storeType == "" {
		p.storeType = defaultStoreType
	}

	p.apiURL = cfg[gateway.CfgAPIURL]
	if p.apiURL == "" {
		p.apiURL = apiTestURL
	}
	p.gateway3DURL = cfg[gateway.Cfg3DGatewayURL]
	if p.gateway3DURL == "" {
		p.gateway3DURL = gateway3DTestURL
	}

	return nil
}

// hash3D computes the EST ver3 signature: the ordered concatenation of
// form fields plus the store key, SHA-512, base64. Field order must
// match the bank's published sequence exactly.
func (p *EstPOS) hash3D(orderID, amount, okURL, failURL, installment, rnd string) string {
	plain := p.clientID + orderID + amount + okURL + failURL + transTypeAuth + installment + rnd + p.storeKey
	return gateway.SHA512Base64(plain)
}

func (p *EstPOS) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	rnd := gateway.Nonce(6)
	amount := gateway.FormatMinorUnits(order.Amount)
	installment := gateway.FormatInstallment(order.Installment)

	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	fields := map[string]string{
		"clientid":                       p.clientID,
		"storetype":                      p.storeType,
		"hash":                           p.hash3D(order.ID, amount, order.SuccessURL, order.FailURL, installment, rnd),
		"hashAlgorithm":                  "ver3",
		"lang":                           lang,
		"TranType":                       transTypeAuth,
		"currency":                       gateway.CurrencyNumeric(order.Currency),
		"oid":                            order.ID,
		"amount":                         amount,
		"okUrl":                          order.SuccessURL,
		"failUrl":                        order.FailURL,
		"rnd":                            rnd,
		"pan":                            card.Number,
		"Ecom_Payment_Card_ExpDate_Year": card.ExpireYear,
		"Ecom_Payment_Card_ExpDate_Month": card.ExpireMonth,
		"cv2":                            card.CVV,
		"cardHolderName":                 card.Holder,
	}
	if installment != "" {
		fields["taksit"] = installment
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse applies the EST approval rule: mdStatus 1 through 4
// means the 3D authentication (full or half) succeeded.
func (p *EstPOS) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	mdStatus := fields["mdStatus"]
	if mdStatus == "" {
		mdStatus = "0"
	}

	errMsg := fields["ErrMsg"]
	if errMsg == "" {
		errMsg = fields["mdErrorMsg"]
	}

	return &gateway.Result{
		Approved:       mdStatus == "1" || mdStatus == "2" || mdStatus == "3" || mdStatus == "4",
		OrderID:        fields["oid"],
		TransactionID:  fields["TransId"],
		AuthCode:       fields["AuthCode"],
		HostRefNum:     fields["HostRefNum"],
		ProcReturnCode: fields["ProcReturnCode"],
		MDStatus:       mdStatus,
		ECI:            fields["eci"],
		CAVV:           fields["cavv"],
		XID:            fields["xid"],
		ErrorCode:      fields["ErrCode"],
		ErrorMessage:   errMsg,
		Raw:            fields,
	}, nil
}

type cc5Request struct {
	XMLName   xml.Name `xml:"CC5Request"`
	Name      string   `xml:"Name"`
	Password  string   `xml:"Password"`
	ClientID  string   `xml:"ClientId"`
	Type      string   `xml:"Type"`
	IPAddress string   `xml:"IPAddress,omitempty"`
	Email     string   `xml:"Email,omitempty"`
	OrderID   string   `xml:"OrderId"`
	Total     string   `xml:"Total,omitempty"`
	Currency  string   `xml:"Currency,omitempty"`
	Taksit    string   `xml:"Taksit,omitempty"`
	Number    string   `xml:"Number,omitempty"`
	Expires   string   `xml:"Expires,omitempty"`
	Cvv2Val   string   `xml:"Cvv2Val,omitempty"`
	Extra     *cc5Extra `xml:"Extra,omitempty"`
}

type cc5Extra struct {
	OrderStatus string `xml:"ORDERSTATUS,omitempty"`
}

type cc5Response struct {
	XMLName        xml.Name `xml:"CC5Response"`
	OrderID        string   `xml:"OrderId"`
	GroupID        string   `xml:"GroupId"`
	Response       string   `xml:"Response"`
	AuthCode       string   `xml:"AuthCode"`
	HostRefNum     string   `xml:"HostRefNum"`
	ProcReturnCode string   `xml:"ProcReturnCode"`
	TransID        string   `xml:"TransId"`
	ErrCode        string   `xml:"Extra>ERRORCODE"`
	ErrMsg         string   `xml:"ErrMsg"`
}

// formRequest wraps a CC5Request document into the DATA form field the
// EST API expects.
func (p *EstPOS) formRequest(doc cc5Request) (*gateway.Request, error) {
	raw, err := xml.Marshal(doc)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal CC5Request", Err: err}
	}

	form := url.Values{}
	form.Set("DATA", xml.Header+string(raw))

	return &gateway.Request{
		URL:    p.apiURL,
		Method: "POST",
		Form:   form,
	}, nil
}

func (p *EstPOS) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	ip := order.CustomerIP
	if ip == "" {
		ip = "127.0.0.1"
	}

	return p.formRequest(cc5Request{
		Name:      p.username,
		Password:  p.password,
		ClientID:  p.clientID,
		Type:      transTypeAuth,
		IPAddress: ip,
		Email:     order.Email,
		OrderID:   order.ID,
		Total:     gateway.FormatMinorUnits(order.Amount),
		Currency:  gateway.CurrencyNumeric(order.Currency),
		Taksit:    gateway.FormatInstallment(order.Installment),
		Number:    card.Number,
		Expires:   card.ExpireMonth + "/" + card.ExpireYear,
		Cvv2Val:   card.CVV,
	})
}

func (p *EstPOS) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.formRequest(cc5Request{
		Name:     p.username,
		Password: p.password,
		ClientID: p.clientID,
		Type:     transTypeVoid,
		OrderID:  order.ID,
	})
}

func (p *EstPOS) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.formRequest(cc5Request{
		Name:     p.username,
		Password: p.password,
		ClientID: p.clientID,
		Type:     transTypeCredit,
		OrderID:  order.ID,
		Total:    gateway.FormatMinorUnits(amount),
		Currency: gateway.CurrencyNumeric(order.Currency),
	})
}

func (p *EstPOS) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	return p.formRequest(cc5Request{
		Name:     p.username,
		Password: p.password,
		ClientID: p.clientID,
		OrderID:  order.ID,
		Extra:    &cc5Extra{OrderStatus: "QUERY"},
	})
}

// ParsePaymentResponse decodes a CC5Response document. Approval is
// ProcReturnCode "00"; everything else is a decline with the bank's
// message kept verbatim.
func (p *EstPOS) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	var doc cc5Response
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode CC5Response", Raw: resp.Body, Err: err}
	}

	return &gateway.Result{
		Approved:       doc.ProcReturnCode == "00",
		OrderID:        doc.OrderID,
		TransactionID:  doc.TransID,
		AuthCode:       doc.AuthCode,
		HostRefNum:     doc.HostRefNum,
		ProcReturnCode: doc.ProcReturnCode,
		ErrorCode:      doc.ErrCode,
		ErrorMessage:   doc.ErrMsg,
		Raw: map[string]string{
			"OrderId":        doc.OrderID,
			"Response":       doc.Response,
			"AuthCode":       doc.AuthCode,
			"HostRefNum":     doc.HostRefNum,
			"ProcReturnCode": doc.ProcReturnCode,
			"TransId":        doc.TransID,
			"ErrMsg":         doc.ErrMsg,
		},
	}, nil
}
