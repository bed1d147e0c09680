package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrBlankAmount is returned by ParseAmount when the cell carries no value.
var ErrBlankAmount = errors.New("blank amount")

var amountCleaner = strings.NewReplacer("$", "", ",", "", " ", "", "\u00a0", "", "USD", "")

// ParseAmount converts a statement amount into an exact decimal.
// Accepts "$12,345.67", "(1,234.00)", "-5" and "1,234.5-".
// Blank cells, "--" and "N/A" yield ErrBlankAmount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	switch strings.ToUpper(s) {
	case "", "-", "--", "N/A", "NA", "NONE":
		return decimal.Zero, ErrBlankAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = amountCleaner.Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = strings.TrimPrefix(s, "-")
	}
	if s == "" {
		return decimal.Zero, ErrBlankAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseNullableAmount keeps blank cells distinguishable from zero.
func ParseNullableAmount(raw string) (decimal.NullDecimal, error) {
	d, err := ParseAmount(raw)
	if errors.Is(err, ErrBlankAmount) {
		return decimal.NullDecimal{}, nil
	}
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
