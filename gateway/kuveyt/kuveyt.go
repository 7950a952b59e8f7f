// Package kuveyt implements the Kuveyt Türk virtual POS, a SOAP
// service. The 3D enrollment is a posted form; the bank's callback
// carries the "MD Status" field (with the space), and only status "1"
// gates the provisioning SOAP call whose ResponseCode "00" finishes
// the payment.
package kuveyt

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mewspay/vpos/gateway"
)

const (
	apiTestURL       = "https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelProvisionGate"
	apiProductionURL = "https://boa.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelProvisionGate"

	gateway3DTestURL       = "https://boatest.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelPayGate"
	gateway3DProductionURL = "https://boa.kuveytturk.com.tr/boa.virtualpos.services/Home/ThreeDModelPayGate"

	soapNamespace = "http://boa.net/BOA.Integration.VirtualPos/Service"
)

type Kuveyt struct {
	merchantID   string
	customerID   string
	username     string
	password     string
	apiURL       string
	gateway3DURL string
	isProduction bool
	client       *gateway.HTTPClient
}

func New() gateway.Gateway {
	return &Kuveyt{}
}

func (p *Kuveyt) Kind() gateway.Kind { return gateway.KindKuveyt }

// SetHTTPClient replaces the SOAP client used for the provisioning
// leg. Tests point it at a local server.
func (p *Kuveyt) SetHTTPClient(client *gateway.HTTPClient) {
	p.client = client
}

func (p *Kuveyt) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "Kuveyt Türk merchant number",
		},
		{
			Key:         gateway.CfgClientID,
			Required:    true,
			Type:        "string",
			Description: "Customer number (CustomerId)",
		},
		{
			Key:         gateway.CfgUsername,
			Required:    true,
			Type:        "string",
			Description: "API user name",
		},
		{
			Key:         gateway.CfgPassword,
			Required:    true,
			Type:        "string",
			Description: "API user password",
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

func (p *Kuveyt) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *Kuveyt) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.customerID = cfg[gateway.CfgClientID]
	p.username = cfg[gateway.CfgUsername]
	p.password = cfg[gateway.CfgPassword]
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

func (p *Kuveyt) hash3D(orderID, amount, okURL, failURL string) string {
	return gateway.SHA256HexUpper(p.merchantID + orderID + amount + okURL + failURL + p.username + p.password)
}

func (p *Kuveyt) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	amount := gateway.FormatDecimal(order.Amount)

	installment := 0
	if order.Installment > 1 {
		installment = order.Installment
	}

	fields := map[string]string{
		"MerchantId":          p.merchantID,
		"CustomerId":          p.customerID,
		"UserName":            p.username,
		"CardNumber":          card.Number,
		"CardExpireDateYear":  card.ExpireYear,
		"CardExpireDateMonth": card.ExpireMonth,
		"CardCVV2":            card.CVV,
		"CardHolderName":      card.Holder,
		"OrderId":             order.ID,
		"Amount":              amount,
		"Currency":            gateway.CurrencyNumeric(order.Currency),
		"InstallmentCount":    strconv.Itoa(installment),
		"OkUrl":               order.SuccessURL,
		"FailUrl":             order.FailURL,
		"HashData":            p.hash3D(order.ID, amount, order.SuccessURL, order.FailURL),
		"MerchantOrderId":     order.ID,
		"TransactionType":     "Sale",
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// soapParam is one element inside a SOAP operation body.
type soapParam struct {
	XMLName xml.Name
	Value   string `xml:",chardata"`
}

type soapOperation struct {
	XMLName xml.Name
	NS      string `xml:"xmlns,attr"`
	Params  []soapParam
}

type soapBody struct {
	Operation soapOperation
}

type soapEnvelope struct {
	XMLName xml.Name `xml:"soap:Envelope"`
	NS      string   `xml:"xmlns:soap,attr"`
	Body    soapBody `xml:"soap:Body"`
}

func param(name, value string) soapParam {
	return soapParam{XMLName: xml.Name{Local: name}, Value: value}
}

// soapRequest builds a SOAP 1.1 envelope for one named operation.
func (p *Kuveyt) soapRequest(operation string, params []soapParam) (*gateway.Request, error) {
	env := soapEnvelope{
		NS: "http://schemas.xmlsoap.org/soap/envelope/",
		Body: soapBody{
			Operation: soapOperation{
				XMLName: xml.Name{Local: operation},
				NS:      soapNamespace,
				Params:  params,
			},
		},
	}

	raw, err := xml.Marshal(env)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "marshal SOAP envelope", Err: err}
	}

	return &gateway.Request{
		URL:         p.apiURL,
		Method:      "POST",
		ContentType: "text/xml; charset=utf-8",
		Body:        []byte(xml.Header + string(raw)),
		SOAPAction:  soapNamespace + "/" + operation,
	}, nil
}

func (p *Kuveyt) credentialParams() []soapParam {
	return []soapParam{
		param("MerchantId", p.merchantID),
		param("CustomerId", p.customerID),
		param("UserName", p.username),
		param("Password", p.password),
	}
}

// Parse3DResponse gates the GetResult SOAP call on "MD Status" being
// exactly "1". An unauthenticated callback never reaches the bank
// again; the decline is final from the posted fields alone.
func (p *Kuveyt) Parse3DResponse(ctx context.Context, fields map[string]string) (*gateway.Result, error) {
	mdStatus := fields["MD Status"]
	if mdStatus == "" {
		mdStatus = "0"
	}

	if mdStatus != "1" {
		errorMessage := fields["ErrMsg"]
		if errorMessage == "" {
			errorMessage = fields["mdErrorMsg"]
		}
		return &gateway.Result{
			Approved:     false,
			OrderID:      fields["OrderId"],
			MDStatus:     mdStatus,
			ErrorCode:    fields["mdErrorMsg"],
			ErrorMessage: errorMessage,
			Raw:          fields,
		}, nil
	}

	params := append(p.credentialParams(), param("MD", fields["MD"]))
	req, err := p.soapRequest("GetResult", params)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(ctx, p.Kind(), req)
	if err != nil {
		return nil, err
	}

	result, err := p.parseSOAP(resp)
	if err != nil {
		return nil, err
	}
	if result.OrderID == "" {
		result.OrderID = fields["OrderId"]
	}
	result.MDStatus = mdStatus
	return result, nil
}

func (p *Kuveyt) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	installment := 0
	if order.Installment > 1 {
		installment = order.Installment
	}

	params := append(p.credentialParams(),
		param("CardNumber", card.Number),
		param("CardExpireDateYear", card.ExpireYear),
		param("CardExpireDateMonth", card.ExpireMonth),
		param("CardCVV2", card.CVV),
		param("CardHolderName", card.Holder),
		param("OrderId", order.ID),
		param("Amount", gateway.FormatDecimal(order.Amount)),
		param("Currency", gateway.CurrencyNumeric(order.Currency)),
		param("InstallmentCount", strconv.Itoa(installment)),
	)
	return p.soapRequest("Sale", params)
}

func (p *Kuveyt) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	params := append(p.credentialParams(),
		param("OrderId", order.ID),
		param("ProvisionNumber", order.HostRefNum),
	)
	return p.soapRequest("Reverse", params)
}

func (p *Kuveyt) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	params := append(p.credentialParams(),
		param("OrderId", order.ID),
		param("Amount", gateway.FormatDecimal(amount)),
		param("ProvisionNumber", order.HostRefNum),
	)
	return p.soapRequest("PartialRefund", params)
}

// PrepareStatus is not part of the Kuveyt SOAP capability set.
func (p *Kuveyt) PrepareStatus(gateway.Order) (*gateway.Request, error) {
	return nil, &gateway.UnsupportedOperationError{Gateway: p.Kind(), Operation: "status"}
}

func (p *Kuveyt) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	return p.parseSOAP(resp)
}

// parseSOAP flattens the leaf elements of a SOAP reply into a field
// map. Kuveyt wraps every operation result differently, but the field
// names inside are stable.
func (p *Kuveyt) parseSOAP(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	fields, err := flattenXML(resp.Body)
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode SOAP response", Raw: resp.Body, Err: err}
	}

	responseCode := fields["ResponseCode"]

	return &gateway.Result{
		Approved:     responseCode == "00",
		OrderID:      fields["OrderId"],
		AuthCode:     fields["AuthCode"],
		HostRefNum:   fields["ProvisionNumber"],
		RRN:          fields["RRN"],
		ErrorCode:    responseCode,
		ErrorMessage: fields["ResponseMessage"],
		Raw:          fields,
	}, nil
}

// flattenXML collects every leaf element's text content keyed by its
// local element name.
func flattenXML(raw []byte) (map[string]string, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(raw)))
	fields := make(map[string]string)

	var current string
	var text strings.Builder
	sawElement := false

	for {
		tok, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("flatten xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			sawElement = true
			current = t.Name.Local
			text.Reset()
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if t.Name.Local == current {
				value := strings.TrimSpace(text.String())
				if value != "" {
					fields[current] = value
				}
			}
			current = ""
		}
	}

	if !sawElement {
		return nil, fmt.Errorf("flatten xml: no elements")
	}
	return fields, nil
}
