// Package payfor implements the QNB Finansbank PayFor protocol. Both
// the 3D redirect and the direct API are form-encoded; the direct API
// answers with a URL-encoded name/value body rather than XML.
package payfor

import (
	"context"
	"net/url"

	"github.com/mewspay/vpos/gateway"
)

const (
	apiTestURL       = "https://vpostest.qnbfinansbank.com/Gateway/XmlGate.aspx"
	apiProductionURL = "https://vpos.qnbfinansbank.com/Gateway/XmlGate.aspx"

	gateway3DTestURL       = "https://vpostest.qnbfinansbank.com/Gateway/Default.aspx"
	gateway3DProductionURL = "https://vpos.qnbfinansbank.com/Gateway/Default.aspx"

	// MbrId discriminates institutions on the shared PayFor platform.
	// 5 is QNB Finansbank.
	defaultMbrID = "5"

	txnTypeAuth   = "Auth"
	txnTypeVoid   = "Void"
	txnTypeRefund = "Refund"
)

type PayFor struct {
	mbrID        string
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
	return &PayFor{}
}

func (p *PayFor) Kind() gateway.Kind { return gateway.KindPayFor }

func (p *PayFor) RequiredConfig() []gateway.ConfigField {
	return []gateway.ConfigField{
		{
			Key:         gateway.CfgMerchantID,
			Required:    true,
			Type:        "string",
			Description: "PayFor merchant number",
		},
		{
			Key:         gateway.CfgTerminalID,
			Required:    true,
			Type:        "string",
			Description: "PayFor terminal number, used in hash input",
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
			Key:         gateway.CfgStoreKey,
			Required:    true,
			Type:        "string",
			Description: "3D Secure merchant pass",
		},
		{
			Key:         gateway.CfgEnvironment,
			Required:    true,
			Type:        "string",
			Description: "Environment setting (test or production)",
			Pattern:     "^(test|production)$",
		},
		{
			Key:         "mbrId",
			Required:    false,
			Type:        "string",
			Description: "Institution code on the PayFor platform, defaults to 5 (QNB Finansbank)",
		},
	}
}

func (p *PayFor) ValidateConfig(cfg gateway.Config) error {
	return gateway.ValidateConfigFields(p.Kind(), cfg, p.RequiredConfig())
}

func (p *PayFor) Initialize(cfg gateway.Config) error {
	if err := p.ValidateConfig(cfg); err != nil {
		return err
	}

	p.merchantID = cfg[gateway.CfgMerchantID]
	p.terminalID = cfg[gateway.CfgTerminalID]
	p.username = cfg[gateway.CfgUsername]
	p.password = cfg[gateway.CfgPassword]
	p.storeKey = cfg[gateway.CfgStoreKey]
	p.isProduction = cfg.IsProduction()

	p.mbrID = cfg["mbrId"]
	if p.mbrID == "" {
		p.mbrID = defaultMbrID
	}

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

// hash3D follows the PayFor ordering: merchant, terminal, amount,
// order, URLs, nonce, then the merchant pass. SHA-1, base64.
func (p *PayFor) hash3D(amount, orderID, successURL, failURL, rnd string) string {
	plain := p.merchantID + p.terminalID + amount + orderID + successURL + failURL + rnd + p.storeKey
	return gateway.SHA1Base64(plain)
}

func (p *PayFor) Prepare3D(_ context.Context, order gateway.Order, card gateway.Card) (*gateway.ThreeDSession, error) {
	rnd := gateway.Nonce(6)
	amount := gateway.FormatMinorUnits(order.Amount)

	installment := gateway.FormatInstallment(order.Installment)
	if installment == "" {
		installment = "0"
	}

	lang := order.Lang
	if lang == "" {
		lang = "TR"
	}

	fields := map[string]string{
		"MbrId":            p.mbrID,
		"MerchantID":       p.merchantID,
		"UserCode":         p.username,
		"OrderId":          order.ID,
		"Lang":             lang,
		"SecureType":       "3DPay",
		"TxnType":          txnTypeAuth,
		"InstallmentCount": installment,
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"OkUrl":            order.SuccessURL,
		"FailUrl":          order.FailURL,
		"Rnd":              rnd,
		"Hash":             p.hash3D(amount, order.ID, order.SuccessURL, order.FailURL, rnd),
		"CardNumber":       card.Number,
		"ExpireDate":       card.ExpireMonth + card.ExpireYear,
		"Cvv":              card.CVV,
		"CardHolderName":   card.Holder,
		"TotalAmount":      amount,
	}

	return &gateway.ThreeDSession{
		Form: &gateway.RedirectForm{
			URL:    p.gateway3DURL,
			Method: "POST",
			Fields: fields,
		},
	}, nil
}

// Parse3DResponse requires both conditions: an authenticated mdStatus
// and ProcReturnCode "00". PayFor posts both on the same callback.
func (p *PayFor) Parse3DResponse(_ context.Context, fields map[string]string) (*gateway.Result, error) {
	mdStatus := fields["mdStatus"]
	if mdStatus == "" {
		mdStatus = "0"
	}
	procReturnCode := fields["ProcReturnCode"]

	mdOK := mdStatus == "1" || mdStatus == "2" || mdStatus == "3" || mdStatus == "4"

	return &gateway.Result{
		Approved:       mdOK && procReturnCode == "00",
		OrderID:        fields["OrderId"],
		TransactionID:  fields["TransId"],
		AuthCode:       fields["AuthCode"],
		HostRefNum:     fields["HostRefNum"],
		RRN:            fields["RetrefNum"],
		ProcReturnCode: procReturnCode,
		MDStatus:       mdStatus,
		ECI:            fields["eci"],
		CAVV:           fields["cavv"],
		ErrorCode:      procReturnCode,
		ErrorMessage:   fields["ErrMsg"],
		Raw:            fields,
	}, nil
}

func (p *PayFor) apiForm(extra map[string]string) *gateway.Request {
	form := url.Values{}
	form.Set("MbrId", p.mbrID)
	form.Set("MerchantID", p.merchantID)
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

func (p *PayFor) PreparePayment(order gateway.Order, card gateway.Card) (*gateway.Request, error) {
	installment := gateway.FormatInstallment(order.Installment)
	if installment == "" {
		installment = "0"
	}
	return p.apiForm(map[string]string{
		"OrderId":          order.ID,
		"TxnType":          txnTypeAuth,
		"InstallmentCount": installment,
		"Currency":         gateway.CurrencyNumeric(order.Currency),
		"CardNumber":       card.Number,
		"ExpireDate":       card.ExpireMonth + card.ExpireYear,
		"Cvv":              card.CVV,
		"CardHolderName":   card.Holder,
		"TotalAmount":      gateway.FormatMinorUnits(order.Amount),
	}), nil
}

func (p *PayFor) PrepareCancel(order gateway.Order) (*gateway.Request, error) {
	return p.apiForm(map[string]string{
		"OrderId":    order.ID,
		"TxnType":    txnTypeVoid,
		"OrgOrderId": order.ID,
	}), nil
}

func (p *PayFor) PrepareRefund(order gateway.Order, amount float64) (*gateway.Request, error) {
	if amount <= 0 {
		amount = order.Amount
	}
	return p.apiForm(map[string]string{
		"OrderId":     order.ID,
		"TxnType":     txnTypeRefund,
		"TotalAmount": gateway.FormatMinorUnits(amount),
		"Currency":    gateway.CurrencyNumeric(order.Currency),
		"OrgOrderId":  order.ID,
	}), nil
}

func (p *PayFor) PrepareStatus(order gateway.Order) (*gateway.Request, error) {
	return p.apiForm(map[string]string{
		"OrderId":    order.ID,
		"TxnType":    "OrderInquiry",
		"OrgOrderId": order.ID,
	}), nil
}

// ParsePaymentResponse decodes the URL-encoded reply of the direct API.
func (p *PayFor) ParsePaymentResponse(resp *gateway.HTTPResponse) (*gateway.Result, error) {
	values, err := url.ParseQuery(string(resp.Body))
	if err != nil {
		return nil, &gateway.ProtocolError{Gateway: p.Kind(), Reason: "decode url-encoded response", Raw: resp.Body, Err: err}
	}

	raw := make(map[string]string, len(values))
	for k := range values {
		raw[k] = values.Get(k)
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
