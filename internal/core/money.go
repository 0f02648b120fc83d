package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts user input into a positive amount rounded to cents.
//
// Both "1234.56" and "1,234.56" are accepted, as is a lone decimal comma
// ("12,34"). Anything that is not a plain positive number returns
// ErrInvalidAmount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseMoney(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// ParseNonNegativeAmount is ParseAmount that also accepts zero, for budgets
// and caps. An empty string yields zero.
func ParseNonNegativeAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return parseMoney(s)
}

func parseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Contains(s, ".") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.Replace(s, ",", ".", 1)
	}

	dots := 0
	for _, r := range s {
		switch {
		case r == '.':
			dots++
		case !unicode.IsDigit(r):
			return decimal.Zero, ErrInvalidAmount
		}
	}
	if dots > 1 || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// ToCents converts an amount to integer cents for storage.
func ToCents(d decimal.Decimal) int64 {
	return d.Mul(hundred).Round(0).IntPart()
}

// FromCents is the inverse of ToCents.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

// SumAmounts adds up amounts.
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	return decimal.Sum(decimal.Zero, amounts...)
}

// FormatMoney renders an amount as "$1,234.56".
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	s := d.StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return sign + "$" + b.String() + "." + frac
}
