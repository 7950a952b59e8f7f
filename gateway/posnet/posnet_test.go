package posnet

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mewspay/vpos/gateway"
)

func testConfig() gateway.Config {
	return gateway.Config{
		gateway.CfgMerchantID:  "6706598320",
		gateway.CfgTerminalID:  "67005551",
		gateway.CfgPosNetID:    "9644",
		gateway.CfgEnvironment: "test",
	}
}

func newInitialized(t *testing.T, apiURL string) *PosNet {
	t.Helper()
	cfg := testConfig()
	if apiURL != "" {
		cfg[gateway.CfgAPIURL] = apiURL
	}
	p := New().(*PosNet)
	if err := p.Initialize(cfg); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return p
}

func TestPosNet_Initialize(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(gateway.Config)
		wantErr bool
	}{
		{name: "valid configuration", mutate: func(gateway.Config) {}},
		{name: "merchant id wrong length", mutate: func(c gateway.Config) { c[gateway.CfgMerchantID] = "123" }, wantErr: true},
		{name: "terminal id wrong length", mutate: func(c gateway.Config) { c[gateway.CfgTerminalID] = "123456789" }, wantErr: true},
		{name: "missing posnet id", mutate: func(c gateway.Config) { delete(c, gateway.CfgPosNetID) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			p := New().(*PosNet)
			err := p.Initialize(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("Initialize() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestInstallmentCode(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "00"},
		{1, "00"},
		{2, "02"},
		{9, "09"},
		{12, "12"},
	}
	for _, tt := range tests {
		if got := installmentCode(tt.in); got != tt.want {
			t.Errorf("installmentCode(%d) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestPosNet_MAC(t *testing.T) {
	p := newInitialized(t, "")
	want := gateway.SHA256Base64("9644;67005551")
	if got := p.mac(); got != want {
		t.Errorf("mac() = %s, want %s", got, want)
	}
}

// oosServer answers the enrollment leg with the given approval flag.
func oosServer(t *testing.T, approved string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		var doc posnetRequest
		if err := xml.Unmarshal([]byte(r.PostFormValue("xmldata")), &doc); err != nil {
			t.Errorf("decode xmldata: %v", err)
		}
		if doc.MID != "6706598320" || doc.TID != "67005551" {
			t.Errorf("unexpected terminal: mid=%s tid=%s", doc.MID, doc.TID)
		}
		if doc.OOSRequest == nil {
			t.Error("expected oosRequestData")
		}

		w.Header().Set("Content-Type", "application/xml")
		if approved == "1" {
			_, _ = w.Write([]byte(`<posnetResponse><approved>1</approved>` +
				`<oosRequestDataResponse><data1>D1PACKET</data1><data2>D2PACKET</data2><sign>SIGNVALUE</sign></oosRequestDataResponse>` +
				`</posnetResponse>`))
			return
		}
		_, _ = w.Write([]byte(`<posnetResponse><approved>0</approved>` +
			`<respCode>0148</respCode><respText>INVALID MID TID IP</respText></posnetResponse>`))
	}))
}

func TestPosNet_Prepare3D(t *testing.T) {
	server := oosServer(t, "1")
	defer server.Close()

	p := newInitialized(t, server.URL)

	session, err := p.Prepare3D(context.Background(), gateway.Order{
		ID: "ORD-600", Amount: 110.50, Currency: "TRY", Installment: 3,
		SuccessURL: "https://merchant.example/return",
	}, gateway.Card{Number: "4506349116608409", Holder: "Jane Doe", ExpireMonth: "02", ExpireYear: "40", CVV: "000"})
	if err != nil {
		t.Fatalf("Prepare3D() error = %v", err)
	}

	f := session.Form.Fields
	if f["posnetData"] != "D1PACKET" || f["posnetData2"] != "D2PACKET" {
		t.Errorf("data packets not carried: %v", f)
	}
	if f["digest"] != "SIGNVALUE" {
		t.Errorf("digest = %s", f["digest"])
	}
	if f["merchantReturnURL"] != "https://merchant.example/return" {
		t.Errorf("merchantReturnURL = %s", f["merchantReturnURL"])
	}
	if session.BankTxnID != "D1PACKET" {
		t.Errorf("BankTxnID = %s", session.BankTxnID)
	}
}

func TestPosNet_Prepare3D_Declined(t *testing.T) {
	server := oosServer(t, "0")
	defer server.Close()

	p := newInitialized(t, server.URL)

	_, err := p.Prepare3D(context.Background(), gateway.Order{
		ID: "ORD-601", Amount: 10, Currency: "TRY",
	}, gateway.Card{Number: "4506349116608409"})

	var declined *gateway.DeclinedError
	if !errors.As(err, &declined) {
		t.Fatalf("expected DeclinedError, got %v", err)
	}
	if declined.Code != "0148" {
		t.Errorf("Code = %s", declined.Code)
	}
}

func TestPosNet_Parse3DResponse(t *testing.T) {
	tests := []struct {
		name     string
		reply    string
		approved bool
	}{
		{
			name: "provision approved",
			reply: `<posnetResponse><approved>1</approved>` +
				`<oosResolveMerchantDataResponse><xid>ORD-700</xid><amount>11050</amount>` +
				`<authCode>901477</authCode><hostlogkey>00010551</hostlogkey><mdStatus>1</mdStatus></oosResolveMerchantDataResponse>` +
				`</posnetResponse>`,
			approved: true,
		},
		{
			name: "provision declined",
			reply: `<posnetResponse><approved>0</approved>` +
				`<respCode>0127</respCode><respText>ORIJINAL KAYIT BULUNAMADI</respText></posnetResponse>`,
			approved: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				var doc posnetRequest
				if err := r.ParseForm(); err != nil {
					t.Errorf("parse form: %v", err)
				}
				if err := xml.Unmarshal([]byte(r.PostFormValue("xmldata")), &doc); err != nil {
					t.Errorf("decode xmldata: %v", err)
				}
				if doc.OOSResolve == nil {
					t.Error("expected oosResolveMerchantData")
					return
				}
				if doc.OOSResolve.BankData != "BP" || doc.OOSResolve.MerchantData != "MP" {
					t.Errorf("packets not forwarded: %+v", doc.OOSResolve)
				}
				if doc.OOSResolve.MAC != gateway.SHA256Base64("9644;67005551") {
					t.Errorf("MAC = %s", doc.OOSResolve.MAC)
				}
				w.Header().Set("Content-Type", "application/xml")
				_, _ = w.Write([]byte(tt.reply))
			}))
			defer server.Close()

			p := newInitialized(t, server.URL)

			result, err := p.Parse3DResponse(context.Background(), map[string]string{
				"BankPacket":     "BP",
				"MerchantPacket": "MP",
				"Sign":           "SG",
			})
			if err != nil {
				t.Fatalf("Parse3DResponse() error = %v", err)
			}
			if result.Approved != tt.approved {
				t.Errorf("Approved = %v, want %v", result.Approved, tt.approved)
			}
			if tt.approved {
				if result.OrderID != "ORD-700" || result.AuthCode != "901477" || result.HostRefNum != "00010551" {
					t.Errorf("provision fields not mapped: %+v", result)
				}
			}
		})
	}
}

func TestPosNet_ParsePaymentResponse(t *testing.T) {
	p := newInitialized(t, "")

	result, err := p.ParsePaymentResponse(&gateway.HTTPResponse{
		StatusCode: 200,
		Body: []byte(`<posnetResponse><approved>1</approved><authCode>123456</authCode>` +
			`<hostlogkey>0000123456</hostlogkey></posnetResponse>`),
	})
	if err != nil {
		t.Fatalf("ParsePaymentResponse() error = %v", err)
	}
	if !result.Approved || result.AuthCode != "123456" || result.HostRefNum != "0000123456" {
		t.Errorf("unexpected result: %+v", result)
	}

	_, err = p.ParsePaymentResponse(&gateway.HTTPResponse{StatusCode: 200, Body: []byte("hurr")})
	var protoErr *gateway.ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("expected ProtocolError, got %v", err)
	}
}

func TestPosNet_PrepareCancel(t *testing.T) {
	p := newInitialized(t, "")

	req, err := p.PrepareCancel(gateway.Order{ID: "ORD-61", HostRefNum: "0001055", AuthCode: "901477"})
	if err != nil {
		t.Fatalf("PrepareCancel() error = %v", err)
	}

	var doc posnetRequest
	if err := xml.Unmarshal([]byte(req.Form.Get("xmldata")), &doc); err != nil {
		t.Fatalf("decode xmldata: %v", err)
	}
	if doc.Reverse == nil {
		t.Fatal("expected reverse block")
	}
	if doc.Reverse.HostLogKey != "0001055" || doc.Reverse.AuthCode != "901477" {
		t.Errorf("reverse references wrong keys: %+v", doc.Reverse)
	}
}
