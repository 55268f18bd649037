package ledger

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Границы суммы одной операции: не больше триллиона и не точнее 12 знаков.
const (
	maxAmountExponent = 12
	maxAmountScale    = 12
)

var maxAmount = decimal.New(1, maxAmountExponent)

// ParseAmount приводит сумму из JSON/аргументов инструмента к decimal.
// Допускаются числа и строки; нечисловые, неположительные и слишком большие значения отклоняются.
func ParseAmount(value any) (decimal.Decimal, error) {
	var amount decimal.Decimal

	switch v := value.(type) {
	case nil:
		return decimal.Decimal{}, fmt.Errorf("%w: amount is required", ErrValidation)
	case decimal.Decimal:
		amount = v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Decimal{}, fmt.Errorf("%w: amount must be finite", ErrValidation)
		}
		amount = decimal.NewFromFloat(v)
	case float32:
		return ParseAmount(float64(v))
	case int:
		amount = decimal.NewFromInt(int64(v))
	case int64:
		amount = decimal.NewFromInt(v)
	case json.Number:
		parsed, err := decimal.NewFromString(v.String())
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: amount must be numeric", ErrValidation)
		}
		amount = parsed
	case string:
		parsed, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return decimal.Decimal{}, fmt.Errorf("%w: amount must be numeric", ErrValidation)
		}
		amount = parsed
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: unsupported amount type %T", ErrValidation, value)
	}

	if !amount.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
	}
	// Экспонента проверяется до сравнения, чтобы не масштабировать огромные значения.
	if amount.Exponent() > maxAmountExponent || amount.GreaterThan(maxAmount) {
		return decimal.Decimal{}, fmt.Errorf("%w: amount must not exceed %s", ErrValidation, maxAmount)
	}
	if amount.Exponent() < -maxAmountScale {
		if amount.NumDigits()+int(amount.Exponent()) < -maxAmountScale {
			return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
		}
		amount = amount.Round(maxAmountScale)
		if !amount.IsPositive() {
			return decimal.Decimal{}, fmt.Errorf("%w: amount must be positive", ErrValidation)
		}
	}
	return amount, nil
}
