package akbank

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mewspay/vpos/gateway"
)

func testConfig() gateway.Config {
	return gateway.Config{
		gateway.CfgMerchantID:   "2023090417500272654BD9A49CF07574",
		gateway.CfgTerminalID:   "2023090417500284633D137A249DBBEB",
		gateway.CfgStoreKey:     "3230323330393034313735303032373233",
		gateway.CfgAPIURL:       "https://apipre.akbank.com/api/v1/payment/virtualpos/transaction/process",
		gateway.Cfg3DGatewayURL: "https://virtualpospaymentgatewaypre.akbank.com/securepay",
		gateway.CfgEnvironment:  "test",
	}
}

func newInitialized(t *testing.T) *Akbank {
	t.Helper()
	p := New().(*Akbank)
	if err := p.Initialize(testConfig()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return p
}

func TestAkbank_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(gateway.Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(gateway.Config) {}},
		{name: "missing merchant id", mutate: func(c gateway.Config) { delete(c, gateway.CfgMerchantID) }, wantErr: true},
		{name: "missing terminal id", mutate: func(c gateway.Config) { delete(c, gateway.CfgTerminalID) }, wantErr: true},
		{name: "missing secret key", mutate: func(c gateway.Config) { delete(c, gateway.CfgStoreKey) }, wantErr: true},
		{name: "missing api url", mutate: func(c gateway.Config) { delete(c, gateway.CfgAPIURL) }, wantErr: true},
		{name: "bearer token optional", mutate: func(c gateway.Config) { delete(c, gateway.CfgClientID) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			p := New().(*Akbank)
			err := p.Initialize(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAkbank_Prepare3D(t *testing.T) {
	p := newInitialized(t)

	order := gateway.Order{
		ID: "ORD-950", Amount: 500, Currency: "TRY", Installment: 2,
		SuccessURL: "https://merchant.example/ok",
		FailURL:    "https://merchant.example/fail",
		Lang:       "en",
	}
	session, err := p.Prepare3D(context.Background(), order, gateway.Card{
		Number: "4355093000315232", Holder: "Jane Doe", ExpireMonth: "11", ExpireYear: "40", CVV: "471",
	})
	if err != nil {
		t.Fatalf("Prepare3D() error = %v", err)
	}

	f := session.Form.Fields
	if f["secureOption"] != "3d" {
		t.Errorf("secureOption = %s", f["secureOption"])
	}
	if f["amount"] != "500.00" {
		t.Errorf("amount = %s, want 500.00", f["amount"])
	}
	if f["installment"] != "2" {
		t.Errorf("installment = %s, want 2", f["installment"])
	}
	if f["language"] != "EN" {
		t.Errorf("language = %s, want EN", f["language"])
	}

	want := p.hash("ORD-950", 500, "TRY", 2)
	if f["hash"] != want {
		t.Errorf("hash = %s, want %s", f["hash"], want)
	}
}

func TestAkbank_Hash(t *testing.T) {
	p := newInitialized(t)

	// Installment below 1 normalizes to 1 inside the hash input.
	if p.hash("ORD-1", 10, "TRY", 0) != p.hash("ORD-1", 10, "TRY", 1) {
		t.Error("zero installment must hash as single payment")
	}
	if p.hash("ORD-1", 10, "TRY", 1) == p.hash("ORD-1", 10, "TRY", 2) {
		t.Error("installment count must change the hash")
	}
	if p.hash("ORD-1", 10, "TRY", 1) == p.hash("ORD-2", 10, "TRY", 1) {
		t.Error("order id must change the hash")
	}
}

func TestAkbank_Parse3DResponse(t *testing.T) {
	p := newInitialized(t)

	tests := []struct {
		name     string
		fields   map[string]string
		approved bool
	}{
		{"approved", map[string]string{"status": "success", "resultCode": "0000"}, true},
		{"success without result code", map[string]string{"status": "success", "resultCode": "9999"}, false},
		{"result code without success", map[string]string{"status": "error", "resultCode": "0000"}, false},
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

func TestAkbank_BearerToken(t *testing.T) {
	cfg := testConfig()
	cfg[gateway.CfgClientID] = "token-123"

	p := New().(*Akbank)
	if err := p.Initialize(cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	req, err := p.PreparePayment(gateway.Order{ID: "ORD-80", Amount: 10, Currency: "TRY"}, gateway.Card{Number: "4355093000315232"})
	if err != nil {
		t.Fatalf("PreparePayment() error = %v", err)
	}
	if req.Headers["Authorization"] != "Bearer token-123" {
		t.Errorf("Authorization = %s", req.Headers["Authorization"])
	}
}

func TestAkbank_PreparePayment(t *testing.T) {
	p := newInitialized(t)

	req, err := p.PreparePayment(gateway.Order{
		ID: "ORD-81", Amount: 25.50, Currency: "TRY",
	}, gateway.Card{Number: "4355093000315232", ExpireMonth: "11", ExpireYear: "40", CVV: "471"})
	if err != nil {
		t.Fatalf("PreparePayment() error = %v", err)
	}
	if _, ok := req.Headers["Authorization"]; ok {
		t.Error("no bearer header without a token")
	}

	var doc map[string]string
	if err := json.Unmarshal(req.Body, &doc); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if doc["secureOption"] != "NonSecure" {
		t.Errorf("secureOption = %s", doc["secureOption"])
	}
	if doc["amount"] != "25.50" {
		t.Errorf("amount = %s", doc["amount"])
	}
}

func TestAkbank_ParsePaymentResponse(t *testing.T) {
	p := newInitialized(t)

	tests := []struct {
		name     string
		body     string
		approved bool
		wantErr  bool
	}{
		{
			name: "approved",
			body: `{"status":"success","resultCode":"0000","orderId":"ORD-82",` +
				`"transactionId":"TX-5","authCode":"112233","rrn":"905"}`,
			approved: true,
		},
		{
			name:     "declined",
			body:     `{"status":"error","resultCode":"2200","resultMessage":"Kart limiti yetersiz"}`,
			approved: false,
		},
		{name: "malformed", body: `[[`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.ParsePaymentResponse(&gateway.HTTPResponse{StatusCode: 200, Body: []byte(tt.body)})
			if tt.wantErr {
				var protoErr *gateway.ProtocolError
				if !errors.As(err, &protoErr) {
					t.Fatalf("expected ProtocolError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePaymentResponse() error = %v", err)
			}
			if result.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", result.Approved, tt.approved)
			}
		})
	}
}

func TestAkbank_PrepareStatusUnsupported(t *testing.T) {
	p := newInitialized(t)
	_, err := p.PrepareStatus(gateway.Order{ID: "ORD-83"})
	var unsupported *gateway.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
}
