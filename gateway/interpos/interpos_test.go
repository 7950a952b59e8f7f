package interpos

import (
	"context"
	"net/url"
	"testing"

	"github.com/mewspay/vpos/gateway"
)

func testConfig() gateway.Config {
	return gateway.Config{
		gateway.CfgClientID:     "3123",
		gateway.CfgUsername:     "InterTestApi",
		gateway.CfgPassword:     "3",
		gateway.CfgAPIURL:       "https://test.inter-vpos.com.tr/mpi/Default.aspx",
		gateway.Cfg3DGatewayURL: "https://test.inter-vpos.com.tr/mpi/Default.aspx",
		gateway.CfgEnvironment:  "test",
	}
}

func newInitialized(t *testing.T) *InterPOS {
	t.Helper()
	p := New().(*InterPOS)
	if err := p.Initialize(testConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return p
}

func TestInterPOS_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(gateway.Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(gateway.Config) {}},
		{name: "missing shop code", mutate: func(c gateway.Config) { delete(c, gateway.CfgClientID) }, wantErr: true},
		{name: "missing user code", mutate: func(c gateway.Config) { delete(c, gateway.CfgUsername) }, wantErr: true},
		{name: "missing api url", mutate: func(c gateway.Config) { delete(c, gateway.CfgAPIURL) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			p := New().(*InterPOS)
			err := p.Initialize(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInterPOS_Prepare3D(t *testing.T) {
	p := newInitialized(t)

	order := gateway.Order{
		ID: "ORD-500", Amount: 60.25, Currency: "TRY", Installment: 2,
		SuccessURL: "https://merchant.example/ok",
		FailURL:    "https://merchant.example/fail",
	}
	session, err := p.Prepare3D(context.Background(), order, gateway.Card{
		Number: "4090700101174272", ExpireMonth: "12", ExpireYear: "28", CVV: "104",
	})
	if err != nil {
		t.Fatalf("Prepare3D() error = %v", err)
	}

	f := session.Form.Fields
	if f["PurchAmount"] != "60.25" {
		t.Errorf("PurchAmount = %s, want 60.25", f["PurchAmount"])
	}
	if f["InstallmentCount"] != "2" {
		t.Errorf("InstallmentCount = %s, want 2", f["InstallmentCount"])
	}

	plain := "3123" + "ORD-500" + "60.25" + order.SuccessURL + order.FailURL + "InterTestApi" + "3"
	if f["Hash"] != gateway.SHA256HexUpper(plain) {
		t.Errorf("Hash = %s", f["Hash"])
	}
	// Rnd mirrors the first ten characters of the hash input.
	if f["Rnd"] != plain[:10] {
		t.Errorf("Rnd = %s, want %s", f["Rnd"], plain[:10])
	}
}

func TestInterPOS_Parse3DResponse(t *testing.T) {
	p := newInitialized(t)

	tests := []struct {
		name     string
		fields   map[string]string
		approved bool
	}{
		{"success with approval code", map[string]string{"TRANSTAT": "Success", "ProcReturnCode": "00"}, true},
		{"success marker without approval code", map[string]string{"TRANSTAT": "Success", "ProcReturnCode": "99"}, false},
		{"approval code without success marker", map[string]string{"TRANSTAT": "Declined", "ProcReturnCode": "00"}, false},
		{"empty callback", map[string]string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse3DResponse(context.Background(), tt.fields)
			if err != nil {
				t.Fatalf("Parse3DResponse() error = %v", err)
			}
			if result.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", result.Approved, tt.approved)
			}
		})
	}
}

func TestInterPOS_ParsePaymentResponse(t *testing.T) {
	p := newInitialized(t)

	tests := []struct {
		name     string
		body     string
		approved bool
	}{
		{
			name:     "json approved",
			body:     `{"ProcReturnCode":"00","OrderId":"ORD-14","AuthCode":"123456","HostRefNum":"834"}`,
			approved: true,
		},
		{
			name:     "json declined",
			body:     `{"ProcReturnCode":"99","OrderId":"ORD-14","ErrMsg":"Genel hata"}`,
			approved: false,
		},
		{
			name: "url-encoded approved",
			body: url.Values{
				"ProcReturnCode": {"00"},
				"OrderId":        {"ORD-14"},
				"TransId":        {"T-1"},
			}.Encode(),
			approved: true,
		},
		{
			name: "url-encoded declined",
			body: url.Values{
				"ProcReturnCode": {"V014"},
				"ErrMsg":         {"Taksit sayisi hatali"},
			}.Encode(),
			approved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.ParsePaymentResponse(&gateway.HTTPResponse{StatusCode: 200, Body: []byte(tt.body)})
			if err != nil {
				t.Fatalf("ParsePaymentResponse() error = %v", err)
			}
			if result.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", result.Approved, tt.approved)
			}
		})
	}
}

func TestInterPOS_DirectAPIRequests(t *testing.T) {
	p := newInitialized(t)
	order := gateway.Order{ID: "ORD-60", Amount: 20, Currency: "TRY", BankTxnID: "T-9"}

	pay, err := p.PreparePayment(order, gateway.Card{Number: "4090700101174272", ExpireMonth: "12", ExpireYear: "28", CVV: "104"})
	if err != nil {
		t.Fatalf("PreparePayment() error = %v", err)
	}
	if pay.Form.Get("ShopCode") != "3123" || pay.Form.Get("UserPass") != "3" {
		t.Error("payment form missing credentials")
	}
	if pay.Form.Get("PurchAmount") != "20.00" {
		t.Errorf("PurchAmount = %s, want 20.00", pay.Form.Get("PurchAmount"))
	}
	if pay.Form.Get("MOTO") != "0" {
		t.Errorf("MOTO = %s", pay.Form.Get("MOTO"))
	}

	cancel, err := p.PrepareCancel(order)
	if err != nil {
		t.Fatalf("PrepareCancel() error = %v", err)
	}
	if cancel.Form.Get("TxnType") != "Void" || cancel.Form.Get("TransId") != "T-9" {
		t.Error("cancel form malformed")
	}

	refund, err := p.PrepareRefund(order, 0)
	if err != nil {
		t.Fatalf("PrepareRefund() error = %v", err)
	}
	// Zero refund amount falls back to the original order amount.
	if refund.Form.Get("PurchAmount") != "20.00" {
		t.Errorf("PurchAmount = %s, want 20.00", refund.Form.Get("PurchAmount"))
	}

	status, err := p.PrepareStatus(order)
	if err != nil {
		t.Fatalf("PrepareStatus() error = %v", err)
	}
	if status.Form.Get("TxnType") != "StatusHistory" {
		t.Errorf("status TxnType = %s", status.Form.Get("TxnType"))
	}
}
