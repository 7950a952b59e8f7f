package gateway

import "testing"

func TestCardBIN(t *testing.T) {
	tests := []struct {
		number, want string
	}{
		{"4111111111111111", "411111"},
		{"4111 1111 1111 1111", "411111"},
		{"4111", "4111"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (Card{Number: tt.number}).BIN(); got != tt.want {
			t.Errorf("BIN(%q) = %s, want %s", tt.number, got, tt.want)
		}
	}
}

func TestCardMasked(t *testing.T) {
	tests := []struct {
		number, want string
	}{
		{"4111111111111111", "411111******1111"},
		{"411111111111111", "411111*****1111"},
		{"41111", "*****"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (Card{Number: tt.number}).Masked(); got != tt.want {
			t.Errorf("Masked(%q) = %s, want %s", tt.number, got, tt.want)
		}
	}
}

func TestCardBrand(t *testing.T) {
	tests := []struct {
		number, want string
	}{
		{"4111111111111111", "visa"},
		{"5406697543211173", "mastercard"},
		{"2221001234567890", "mastercard"},
		{"2720991234567890", "mastercard"},
		{"371449635398431", "amex"},
		{"9792030000000000", "troy"},
		{"6501111111111111", "troy"},
		{"1234567890123456", "unknown"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := (Card{Number: tt.number}).Brand(); got != tt.want {
			t.Errorf("Brand(%q) = %s, want %s", tt.number, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	r := &Result{
		Approved:     true,
		OrderID:      "ORD-1",
		AuthCode:     "123456",
		HostRefNum:   "HR1",
		MDStatus:     "1",
		ErrorCode:    "00",
		ErrorMessage: "",
		Raw:          map[string]string{"internal": "never leaves"},
	}

	n := Normalize(r)
	if !n.Approved || n.OrderID != "ORD-1" || n.AuthCode != "123456" || n.MDStatus != "1" {
		t.Errorf("Normalize() = %+v", n)
	}
}

func TestNormalizeNil(t *testing.T) {
	n := Normalize(nil)
	if n == nil {
		t.Fatal("Normalize(nil) must not return nil")
	}
	if n.Approved {
		t.Error("empty result must not be approved")
	}
}
