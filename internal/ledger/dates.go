package ledger

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar-date wire format used across the ledger.
const DateLayout = "2006-01-02"

// DateOnly обрезает время до полуночи UTC того же календарного дня.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate разбирает дату в формате YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if len(value) > len(DateLayout) {
		value = value[:len(DateLayout)]
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrValidation, value)
	}
	return parsed, nil
}
