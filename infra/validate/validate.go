package validate

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mewspay/vpos/infra/config"
)

// CustomValidate registers the card-specific validators on the shared
// validator instance.
func CustomValidate() {
	v := config.App().Validator
	_ = v.RegisterValidation("cardnumber", cardNumber)
	_ = v.RegisterValidation("expmonth", expireMonth)
}

// cardNumber runs a Luhn check over the digits of the field value.
func cardNumber(fl validator.FieldLevel) bool {
	return Luhn(fl.Field().String())
}

// expireMonth accepts the two-digit months 01 through 12.
func expireMonth(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if len(value) != 2 {
		return false
	}
	month, err := strconv.Atoi(value)
	if err != nil {
		return false
	}
	return month >= 1 && month <= 12
}

// Luhn reports whether the number passes the Luhn checksum. Spaces and
// dashes are tolerated, any other non-digit fails.
func Luhn(number string) bool {
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	if len(number) < 12 || len(number) > 19 {
		return false
	}

	sum := 0
	double := false
	for i := len(number) - 1; i >= 0; i-- {
		c := number[i]
		if c < '0' || c > '9' {
			return false
		}
		digit := int(c - '0')
		if double {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		double = !double
	}
	return sum%10 == 0
}
