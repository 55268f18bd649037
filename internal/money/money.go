// Package money formats ledger amounts for display.
package money

import (
	"math"
	"strings"

	gomoney "github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// maxMinor is the largest minor-unit count go-money can hold in an int64.
var maxMinor = decimal.NewFromInt(math.MaxInt64)

// CurrencyFor returns the ISO currency code displayed for a locale tag.
func CurrencyFor(locale string) string {
	if locale == "es-MX" {
		return gomoney.MXN
	}
	return gomoney.USD
}

// Format renders amount in the locale's currency with two fixed decimals.
func Format(amount decimal.Decimal, locale string) string {
	code := CurrencyFor(locale)
	cur := gomoney.GetCurrency(code)
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if minor.Abs().GreaterThan(maxMinor) {
		return display(minor, cur)
	}
	return gomoney.New(minor.IntPart(), code).Display()
}

// display mirrors go-money's formatter for minor counts beyond int64.
func display(minor decimal.Decimal, cur *gomoney.Currency) string {
	digits := minor.Abs().String()
	if len(digits) <= cur.Fraction {
		digits = strings.Repeat("0", cur.Fraction-len(digits)+1) + digits
	}
	if cur.Thousand != "" {
		for i := len(digits) - cur.Fraction - 3; i > 0; i -= 3 {
			digits = digits[:i] + cur.Thousand + digits[i:]
		}
	}
	if cur.Fraction > 0 {
		digits = digits[:len(digits)-cur.Fraction] + cur.Decimal + digits[len(digits)-cur.Fraction:]
	}
	out := strings.Replace(cur.Template, "1", digits, 1)
	out = strings.Replace(out, "$", cur.Grapheme, 1)
	if minor.IsNegative() {
		out = "-" + out
	}
	return out
}

// FormatFloat is Format for float figures; NaN and infinities render as zero.
func FormatFloat(amount float64, locale string) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		amount = 0
	}
	return Format(decimal.NewFromFloat(amount), locale)
}
