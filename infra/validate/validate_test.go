package validate

import (
	"testing"

	"github.com/mewspay/vpos/infra/config"
)

func TestLuhn(t *testing.T) {
	tests := []struct {
		name   string
		number string
		valid  bool
	}{
		{"valid visa", "4111111111111111", true},
		{"valid mastercard", "5571135571135575", true},
		{"valid with spaces", "4111 1111 1111 1111", true},
		{"valid with dashes", "4111-1111-1111-1111", true},
		{"checksum off by one", "4111111111111112", false},
		{"too short", "41111111111", false},
		{"too long", "41111111111111111234", false},
		{"letters", "411111111111111a", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Luhn(tt.number); got != tt.valid {
				t.Errorf("Luhn(%q) = %v, want %v", tt.number, got, tt.valid)
			}
		})
	}
}

func TestCustomValidators(t *testing.T) {
	CustomValidate()

	type card struct {
		Number      string `validate:"required,cardnumber"`
		ExpireMonth string `validate:"required,expmonth"`
	}

	tests := []struct {
		name    string
		card    card
		wantErr bool
	}{
		{"valid", card{Number: "5571135571135575", ExpireMonth: "12"}, false},
		{"bad checksum", card{Number: "5571135571135576", ExpireMonth: "12"}, true},
		{"month zero", card{Number: "5571135571135575", ExpireMonth: "00"}, true},
		{"month thirteen", card{Number: "5571135571135575", ExpireMonth: "13"}, true},
		{"month not two digits", card{Number: "5571135571135575", ExpireMonth: "1"}, true},
	}

	v := config.App().Validator
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Struct(tt.card)
			if (err != nil) != tt.wantErr {
				t.Errorf("Struct() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
