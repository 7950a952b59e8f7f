package gateway

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestDigestHelpers(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(string) string
		length int
		base64 bool
	}{
		{"SHA1Hex", SHA1Hex, 40, false},
		{"SHA1HexUpper", SHA1HexUpper, 40, false},
		{"SHA1Base64", SHA1Base64, 28, true},
		{"SHA256Hex", SHA256Hex, 64, false},
		{"SHA256HexUpper", SHA256HexUpper, 64, false},
		{"SHA256Base64", SHA256Base64, 44, true},
		{"SHA512Hex", SHA512Hex, 128, false},
		{"SHA512Base64", SHA512Base64, 88, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.fn("merchant1order1100")
			if len(got) != tt.length {
				t.Errorf("length = %d, want %d", len(got), tt.length)
			}
			if got != tt.fn("merchant1order1100") {
				t.Error("digest must be deterministic")
			}
			if got == tt.fn("merchant1order1101") {
				t.Error("digest must change with input")
			}
			if tt.base64 {
				if _, err := base64.StdEncoding.DecodeString(got); err != nil {
					t.Errorf("not valid base64: %v", err)
				}
			}
		})
	}
}

func TestDigestHelpers_UpperVariants(t *testing.T) {
	in := "Test/Input+1"
	if SHA1HexUpper(in) != strings.ToUpper(SHA1Hex(in)) {
		t.Error("SHA1HexUpper must be the uppercase hex digest")
	}
	if SHA256HexUpper(in) != strings.ToUpper(SHA256Hex(in)) {
		t.Error("SHA256HexUpper must be the uppercase hex digest")
	}
}

func TestNonce(t *testing.T) {
	for _, n := range []int{1, 6, 20} {
		got := Nonce(n)
		if len(got) != n {
			t.Errorf("Nonce(%d) length = %d", n, len(got))
		}
		for _, r := range got {
			if r < '0' || r > '9' {
				t.Errorf("Nonce(%d) contains non-digit %q", n, r)
			}
		}
	}
}
