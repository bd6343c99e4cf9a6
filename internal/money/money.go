// Package money formats naira amounts for member-facing messages.
package money

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Symbol is the currency sign prefixed to every formatted amount.
const Symbol = "₦"

// Stored amounts are NUMERIC(18,2).
const (
	MaxScale       = 2
	MaxWholeDigits = 16
)

var (
	printer  = message.NewPrinter(language.English)
	wholeCap = decimal.New(1, MaxWholeDigits)
)

// CheckPrecision reports whether d fits the stored amount columns.
func CheckPrecision(d decimal.Decimal) error {
	if !d.Equal(d.Round(MaxScale)) {
		return fmt.Errorf("at most %d decimal places are allowed", MaxScale)
	}
	if d.Abs().Truncate(0).GreaterThanOrEqual(wholeCap) {
		return fmt.Errorf("at most %d whole digits are allowed", MaxWholeDigits)
	}
	return nil
}

// Format renders d with thousands separators and the currency sign, e.g.
// 50000 -> "₦50,000" and 1234.5 -> "₦1,234.5".
func Format(d decimal.Decimal) string {
	return Symbol + FormatPlain(d)
}

// FormatPlain renders d rounded to two places with thousands separators only.
func FormatPlain(d decimal.Decimal) string {
	r := d.Round(MaxScale)
	sign := ""
	if r.IsNegative() {
		sign = "-"
		r = r.Neg()
	}
	whole := r.Truncate(0)
	out := groupWhole(whole)
	if frac := r.Sub(whole); !frac.IsZero() {
		out += strings.TrimPrefix(frac.String(), "0")
	}
	return sign + out
}

func groupWhole(w decimal.Decimal) string {
	if b := w.BigInt(); b.IsUint64() {
		return printer.Sprintf("%v", number.Decimal(b.Uint64()))
	}
	digits := w.String()
	var sb strings.Builder
	for i, c := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
