// Package posnet implements the YapıKredi PosNet protocol. 3D payments
// are two-phase: an OOS enrollment call yields the packet the browser
// posts to the bank, and after the callback a separate provisioning
// call resolves the merchant data. Both phases must report approved
// "1" before a payment counts as successful.
package posnet

import (
	"context"
	"encoding/xml"
	"net/url"
	"time"

	"github.com/mewspay/vpos/gateway"
)

const (
	apiTestURL       = "https://setmpos.ykb.com/PosnetWebService/XML"
	apiProductionURL = "https://posnet.yapikredi.com.tr/PosnetWebService/XML"

	gateway3DTestURL       = "https://setmpos.ykb.com/3DSWebService/YKBPaymentService"
	gateway3DProductionURL = "https://posnet.yapikredi.com.tr/3DSWebService/YKBPaymentService"
)

type PosNet struct {
	merchantID   string
	terminalID   string
	posnetID     string
	apiURL       string
	gateway3DURL string
	isProduction bool
	client       *gateway.HTTPClient
}

func New() gateway.Gateway {
	return &PosNet{}
}

func (p *PosNet) Kind() gateway.Kind { return gateway.KindPosNet }

// SetHTTPClient replaces the client used for the OOS and provisioning
// legs. Tests point it at a local server.
func (p *PosNet) SetHTTPClient(client *gateway.HTTPClient) {
	p.client = client
}

func (p *PosNet) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "PosNet merchant number (mid)",
			MinLength:   10,
			MaxLength:   10,
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "PosNet terminal number (tid)",
			MinLength:   8,
			MaxLength:   8,
		},
		{
			Key:         gateway.CfgPosNetID,
			Required:    true,
			Type:        "string",
			Description: "PosNet ID assigned for OOS transactions",
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

func (p *PosNet) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *PosNet) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalID = cfg[gateway.CfgTerminalID]
	p.posnetID = cfg[gateway.CfgPosNetID]
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

	if p.client == nil {
		p.client = gateway.NewHTTPClient(gateway.CreateHTTPClientConfig(p.isProduction, 30*time.Second))
	}

	return nil
}

// mac signs the provisioning leg: base64 over the hex SHA-256 of
// "posnetID;terminalID".
func (p *PosNet) mac() string {
	return gateway.SHA256Base64(p.posnetID + ";" + p.terminalID)
}

func installmentCode(n int) string {
	if n <= 1 {
		return "00"
	}
	s := gateway.FormatInstallment(n)
	if len(s) == 1 {
		s = "0" + s
	}
	return s
}

type oosRequestData struct {
	PosnetID       string `xml:"posnetid"`
	XID            string `xml:"XID"`
	Amount         string `xml:"amount"`
	CurrencyCode   string `xml:"currencyCode"`
	Installment    string `xml:"installment"`
	TranType       string `xml:"tranType"`
	CardHolderName string `xml:"cardHolderName"`
	CCNo           string `xml:"ccno"`
	ExpDate        string `xml:"expDate"`
	CVC            string `xml:"cvc"`
}

type oosResolveMerchantData struct {
	BankData     string `xml:"bankData"`
	MerchantData string `xml:"merchantData"`
	Sign         string `xml:"sign"`
	MAC          string `xml:"mac"`
}

type saleData struct {
	OrderID      string `xml:"orderID"`
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	Installment  string `xml:"installment"`
	CCNo         string `xml:"ccno"`
	ExpDate      string `xml:"expDate"`
	CVC          string `xml:"cvc"`
}

type reverseData struct {
	Transaction string `xml:"transaction"`
	HostLogKey  string `xml:"hostLogKey"`
	AuthCode    string `xml:"authCode,omitempty"`
}

type returnData struct {
	Amount       string `xml:"amount"`
	CurrencyCode string `xml:"currencyCode"`
	HostLogKey   string `xml:"hostLogKey"`
}

type agreementData struct {
	OrderID string `xml:"orderID"`
}

type posnetRequest struct {
	XMLName    xml.Name                `xml:"posnetRequest"`
	MID        string                  `xml:"mid"`
	TID        string                  `xml:"tid"`
	OOSRequest *oosRequestData         `xml:"oosRequestData,omitempty"`
	OOSResolve *oosResolveMerchantData `xml:"oosResolveMerchantData,omitempty"`
	Sale       *saleData               `xml:"sale,omitempty"`
	Reverse    *reverseData            `xml:"reverse,omitempty"`
	Return     *returnData             `xml:"return,omitempty"`
	Agreement  *agreementData          `xml:"agreement,omitempty"`
}

type posnetResponse struct {
	XMLName     xml.Name `xml:"posnetResponse"`
	Approved    string   `xml:"approved"`
	RespCode    string   `xml:"respCode"`
	RespText    string   `xml:"respText"`
	AuthCode    string   `xml:"authCode"`
	HostLogKey  string   `xml:"hostlogkey"`
	OOSResponse struct {
		Data1 string `xml:"data1"`
		Data2 string `xml:"data2"`
		Sign  string `xml:"sign"`
	} `xml:"oosRequestDataResponse"`
	OOSResolveResponse struct {
		XID        string `xml:"xid"`
		Amount     string `xml:"amount"`
		AuthCode   string `xml:"authCode"`
		HostLogKey string `xml:"hostlogkey"`
		MDStatus   string `xml:"mdStatus"`
	} `xml:"oosResolveMerchantDataResponse"`
}

// xmlRequest wraps a posnetRequest document into the xmldata form
// field the PosNet endpoint expects.
func (p *PosNet) xmlRequest(doc posnetRequest) (*gateway.Request, error) {
	raw, err := xml.Marshal(doc)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal posnetRequest", Err: err}
	}
	form := url.Values{}
	form.Set("xmldata", xml.Header+string(raw))
	return &gateway.Request{
		URL:    p.apiURL,
		Method: "POST",
		Form:   form,
	}, nil
}

func (p *PosNet) decode(resp *gateway.HTTPResponse) (*posnetResponse, error) {
	var doc posnetResponse
	if err := xml.Unmarshal(resp.Body, &doc); err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode posnetResponse", Raw: resp.Body, Err: err}
	}
	return &doc, nil
}

// Prepare3D runs the OOS enrollment call. Only an approved "1" reply
// carries the data packets the 3D form needs; anything else is a
// decline before the shopper ever leaves the checkout.
func (p *PosNet) Prepare3D(ctx context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	req, err := p.xmlRequest(posnetRequest{
		MID: p.merchantID,
		TID: p.terminalID,
		OOSRequest: &oosRequestData{
			PosnetID:       p.posnetID,
			XID:            order.ID,
			Amount:         gateway.FormatMinorUnits(order.Amount),
			CurrencyCode:   gateway.CurrencyNumeric(order.Currency),
			Installment:    installmentCode(order.Installment),
			TranType:       "Sale",
			CardHolderName: card.Holder,
			CCNo:           card.Number,
			ExpDate:        card.ExpireYear + card.ExpireMonth,
			CVC:            card.CVV,
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(ctx, p.Kind(), req)
	if err != nil {
		return nil, err
	}

	doc, err := p.decode(resp)
	if err != nil {
		return nil, err
	}
	if doc.Approved != "1" {
		return nil, &gateway.DeclinedError{Gateway: p.Kind(), Code: doc.RespCode, Message: doc.RespText}
	}

	lang := order.Lang
	if lang == "" {
		lang = "tr"
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: map[string]string{
				"mid":               p.merchantID,
				"posnetID":          p.posnetID,
				"posnetData":        doc.OOSResponse.Data1,
				"posnetData2":       doc.OOSResponse.Data2,
				"digest":            doc.OOSResponse.Sign,
				"merchantReturnURL": order.SuccessURL,
				"lang":              lang,
				"url":               "",
			},
		},
		BankTxnID: doc.OOSResponse.Data1,
	}, nil
}

// Parse3DResponse runs the provisioning leg: the packets the bank
// posted back are resolved with a signed oosResolveMerchantData call,
// and only that second approved "1" finishes the payment.
func (p *PosNet) Parse3DResponse(ctx context.Context, fields map[string]string) (*gateway.Result, error) {
	req, err := p.xmlRequest(posnetRequest{
		MID: p.merchantID,
		TID: p.terminalID,
		OOSResolve: &oosResolveMerchantData{
			BankData:     fields["BankPacket"],
			MerchantData: fields["MerchantPacket"],
			Sign:         fields["Sign"],
			MAC:          p.mac(),
		},
	})
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(ctx, p.Kind(), req)
	if err != nil {
		return nil, err
	}

	doc, err := p.decode(resp)
	if err != nil {
		return nil, err
	}

	approved := doc.Approved == "1"
	mdStatus := "0"
	if approved {
		mdStatus = "1"
	}

	return &gateway.Result{
		Approved:     approved,
		OrderID:      doc.OOSResolveResponse.XID,
		AuthCode:     doc.OOSResolveResponse.AuthCode,
		HostRefNum:   doc.OOSResolveResponse.HostLogKey,
		MDStatus:     mdStatus,
		ErrorCode:    doc.RespCode,
		ErrorMessage: doc.RespText,
		Raw: map[string]string{
			"approved":   doc.Approved,
			"respCode":   doc.RespCode,
			"respText":   doc.RespText,
			"xid":        doc.OOSResolveResponse.XID,
			"authCode":   doc.OOSResolveResponse.AuthCode,
			"hostlogkey": doc.OOSResolveResponse.HostLogKey,
		},
	}, nil
}

func (p *PosNet) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	return p.xmlRequest(posnetRequest{
		MID: p.merchantID,
		TID: p.terminalID,
		Sale: &saleData{
			OrderID:      order.ID,
			Amount:       gateway.FormatMinorUnits(order.Amount),
			CurrencyCode: gateway.CurrencyNumeric(order.Currency),
			Installment:  installmentCode(order.Installment),
			CCNo:         card.Number,
			ExpDate:      card.ExpireYear + card.ExpireMonth,
			CVC:          card.CVV,
		},
	})
}

// PrepareCancel reverses by host log key and auth code; PosNet voids
// do not reference the order number.
func (p *PosNet) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.xmlRequest(posnetRequest{
		MID: p.merchantID,
		TID: p.terminalID,
		Reverse: &reverseData{
			Transaction: "sale",
			HostLogKey:  order.HostRefNum,
			AuthCode:    order.AuthCode,
		},
	})
}

func (p *PosNet) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.xmlRequest(posnetRequest{
		MID: p.merchantID,
		TID: p.terminalID,
		Return: &returnData{
			Amount:       gateway.FormatMinorUnits(amount),
			CurrencyCode: gateway.CurrencyNumeric(order.Currency),
			HostLogKey:   order.HostRefNum,
		},
	})
}

func (p *PosNet) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	return p.xmlRequest(posnetRequest{
		MID:       p.merchantID,
		TID:       p.terminalID,
		Agreement: &agreementData{OrderID: order.ID},
	})
}

func (p *PosNet) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	doc, err := p.decode(resp)
	if err != nil {
		return nil, err
	}

	return &gateway.Result{
		Approved:     doc.Approved == "1",
		AuthCode:     doc.AuthCode,
		HostRefNum:   doc.HostLogKey,
		ErrorCode:    doc.RespCode,
		ErrorMessage: doc.RespText,
		Raw: map[string]string{
			"approved":   doc.Approved,
			"respCode":   doc.RespCode,
			"respText":   doc.RespText,
			"authCode":   doc.AuthCode,
			"hostlogkey": doc.HostLogKey,
		},
	}, nil
}
