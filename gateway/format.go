package gateway

import (
	"fmt"
	"math"
	"strconv"
)

// currencyNumeric maps ISO 4217 alpha codes to the numeric codes the
// bank protocols expect. Unknown codes fall back to TRY.
var currencyNumeric = map[string]string{
	"TRY": "949",
	"TL":  "949",
	"USD": "840",
	"EUR": "978",
	"GBP": "826",
	"JPY": "392",
	"RUB": "643",
}

// CurrencyNumeric returns the ISO 4217 numeric code for an alpha code,
// defaulting to 949 (TRY).
func CurrencyNumeric(alpha string) string {
	if code, ok := currencyNumeric[alpha]; ok {
		return code
	}
	return "949"
}

// FormatMinorUnits renders an amount as an integer count of kurus,
// truncating sub-kurus precision. EST, Garanti and PosNet want this.
func FormatMinorUnits(amount float64) string {
	return strconv.FormatInt(int64(math.Trunc(amount*100)), 10)
}

// FormatDecimal renders an amount with exactly two decimals, as the
// JSON and SOAP protocols expect.
func FormatDecimal(amount float64) string {
	return fmt.Sprintf("%.2f", amount)
}

// FormatInstallment renders the installment count for form protocols:
// single payment is sent as an empty field.
func FormatInstallment(n int) string {
	if n <= 1 {
		return ""
	}
	return strconv.Itoa(n)
}
