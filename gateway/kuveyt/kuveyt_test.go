package kuveyt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mewspay/vpos/gateway"
)

func testConfig() gateway.Config {
	return gateway.Config{
		gateway.CfgMerchantID:  "496",
		gateway.CfgClientID:    "400235",
		gateway.CfgUsername:    "apiuser",
		gateway.CfgPassword:    "api123",
		gateway.CfgEnvironment: "test",
	}
}

func newInitialized(t *testing.T, apiURL string) *Kuveyt {
	t.Helper()
	cfg := testConfig()
	if apiURL != "" {
		cfg[gateway.CfgAPIURL] = apiURL
	}
	p := New().(*Kuveyt)
	if err := p.Initialize(cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return p
}

func TestKuveyt_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(gateway.Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(gateway.Config) {}},
		{name: "missing merchant id", mutate: func(c gateway.Config) { delete(c, gateway.CfgMerchantID) }, wantErr: true},
		{name: "missing customer id", mutate: func(c gateway.Config) { delete(c, gateway.CfgClientID) }, wantErr: true},
		{name: "missing username", mutate: func(c gateway.Config) { delete(c, gateway.CfgUsername) }, wantErr: true},
		{name: "missing password", mutate: func(c gateway.Config) { delete(c, gateway.CfgPassword) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			p := New().(*Kuveyt)
			err := p.Initialize(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKuveyt_Prepare3D(t *testing.T) {
	p := newInitialized(t, "")

	order := gateway.Order{
		ID: "ORD-800", Amount: 200, Currency: "TRY", Installment: 1,
		SuccessURL: "https://merchant.example/ok",
		FailURL:    "https://merchant.example/fail",
	}
	session, err := p.Prepare3D(context.Background(), order, gateway.Card{
		Number: "4033602562020327", Holder: "Jane Doe", ExpireMonth: "01", ExpireYear: "30", CVV: "861",
	})
	if err != nil {
		t.Fatalf("Prepare3D() error = %v", err)
	}

	f := session.Form.Fields
	if f["Amount"] != "200.00" {
		t.Errorf("Amount = %s, want 200.00", f["Amount"])
	}
	if f["InstallmentCount"] != "0" {
		t.Errorf("InstallmentCount = %s, want 0 for single payment", f["InstallmentCount"])
	}
	if f["TransactionType"] != "Sale" {
		t.Errorf("TransactionType = %s", f["TransactionType"])
	}

	want := gateway.SHA256HexUpper("496" + "ORD-800" + "200.00" + order.SuccessURL + order.FailURL + "apiuser" + "api123")
	if f["HashData"] != want {
		t.Errorf("HashData = %s, want %s", f["HashData"], want)
	}
}

func TestKuveyt_Parse3DResponse_DeclinedWithoutProvisioning(t *testing.T) {
	// The provisioning endpoint must never be called when the MD status
	// is not 1; no server is configured, so a network call would fail
	// the test with a transport error.
	p := newInitialized(t, "http://127.0.0.1:1")

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"failed authentication", map[string]string{"MD Status": "0", "OrderId": "ORD-801", "mdErrorMsg": "Not authenticated"}},
		{"not enrolled", map[string]string{"MD Status": "5", "OrderId": "ORD-801"}},
		{"missing status", map[string]string{"OrderId": "ORD-801"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := p.Parse3DResponse(context.Background(), tt.fields)
			if err != nil {
				t.Fatalf("Parse3DResponse() error = %v", err)
			}
			if result.Approved {
				t.Error("unauthenticated callback must not approve")
			}
			if result.OrderID != "ORD-801" {
				t.Errorf("OrderID = %s", result.OrderID)
			}
		})
	}
}

func TestKuveyt_Parse3DResponse_Provisioning(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		approved bool
	}{
		{
			name: "provision approved",
			reply: `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
				`<GetResultResponse><GetResultResult><ResponseCode>00</ResponseCode><ResponseMessage>OK</ResponseMessage>` +
				`<OrderId>ORD-802</OrderId><ProvisionNumber>896626</ProvisionNumber><RRN>904115005554</RRN></GetResultResult></GetResultResponse>` +
				`</soap:Body></soap:Envelope>`,
			approved: true,
		},
		{
			name: "provision declined",
			reply: `<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
				`<GetResultResponse><GetResultResult><ResponseCode>51</ResponseCode><ResponseMessage>Limit yetersiz</ResponseMessage></GetResultResult></GetResultResponse>` +
				`</soap:Body></soap:Envelope>`,
			approved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get("SOAPAction"); !strings.HasSuffix(got, "/GetResult") {
					t.Errorf("SOAPAction = %s", got)
				}
				body, _ := io.ReadAll(r.Body)
				if !strings.Contains(string(body), "<MD>SESSION-MD</MD>") {
					t.Errorf("MD not forwarded: %s", body)
				}
				w.Header().Set("Content-Type", "text/xml")
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer server.Close()

			p := newInitialized(t, server.URL)

			result, err := p.Parse3DResponse(context.Background(), map[string]string{
				"MD Status": "1",
				"MD":        "SESSION-MD",
				"OrderId":   "ORD-802",
			})
			if err != nil {
				t.Fatalf("Parse3DResponse() error = %v", err)
			}
			if result.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", result.Approved, tt.approved)
			}
			if result.MDStatus != "1" {
				t.Errorf("MDStatus = %s", result.MDStatus)
			}
			if tt.approved && result.HostRefNum != "896626" {
				t.Errorf("HostRefNum = %s", result.HostRefNum)
			}
		})
	}
}

func TestKuveyt_PrepareStatusUnsupported(t *testing.T) {
	p := newInitialized(t, "")
	_, err := p.PrepareStatus(gateway.Order{ID: "ORD-803"})
	if _, ok := err.(*gateway.UnsupportedOperationError); !ok {
		t.Fatalf("expected UnsupportedOperationError, got %v", err)
	}
}

func TestFlattenXML(t *testing.T) {
	fields, err := flattenXML([]byte(`<a><b>1</b><c><d>x</d><e> spaced </e></c></a>`))
	if err != nil {
		t.Fatalf("flattenXML() error = %v", err)
	}
	if fields["b"] != "1" || fields["d"] != "x" {
		t.Errorf("fields = %v", fields)
	}
	if fields["e"] != "spaced" {
		t.Errorf("e = %q, want trimmed", fields["e"])
	}

	if _, err := flattenXML([]byte("   ")); err == nil {
		t.Error("expected error for empty document")
	}
}
