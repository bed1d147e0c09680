package utils

import (
	"fmt"
	"strings"
	"time"
)

const DefaultDateFormat = "2006-01-02"

// Broker statements mix these layouts, sometimes within one file.
var statementDateFormats = []string{
	DefaultDateFormat,
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"1/2/06",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

// ParseStatementDate parses a date as printed on a 1099-B.
func ParseStatementDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range statementDateFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// NormalizeDate rewrites a statement date as YYYY-MM-DD. Values that are not
// dates ("VARIOUS", "INHERITED") are returned upper-cased so they survive
// into the 8949 description column.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, err := ParseStatementDate(s)
	if err != nil {
		return strings.ToUpper(s)
	}
	return t.Format(DefaultDateFormat)
}

// IsShortTermHolding reports whether a lot was held one year or less.
// ok is false when either date cannot be parsed.
func IsShortTermHolding(acquired, sold string) (shortTerm, ok bool) {
	a, errA := ParseStatementDate(acquired)
	s, errS := ParseStatementDate(sold)
	if errA != nil || errS != nil {
		return false, false
	}
	return !s.After(anniversary(a)), true
}

// anniversary is the same calendar day one year later; Feb 29 maps to Feb 28.
func anniversary(t time.Time) time.Time {
	y, m, d := t.Date()
	next := time.Date(y+1, m, d, 0, 0, 0, 0, t.Location())
	if next.Month() != m {
		next = time.Date(y+1, m+1, 0, 0, 0, 0, 0, t.Location())
	}
	return next
}
