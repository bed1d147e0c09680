package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDate(t *testing.T) {
	assert.Equal(t, "2024-03-05", NormalizeDate("03/05/2024"))
	assert.Equal(t, "2024-03-05", NormalizeDate("3/5/24"))
	assert.Equal(t, "2024-03-05", NormalizeDate("2024-03-05"))
	assert.Equal(t, "2024-03-05", NormalizeDate("Mar 5, 2024"))
	assert.Equal(t, "VARIOUS", NormalizeDate("Various"))
	assert.Equal(t, "", NormalizeDate("  "))
}

func TestIsShortTermHolding(t *testing.T) {
	short, ok := IsShortTermHolding("2023-06-01", "2024-06-01")
	assert.True(t, ok)
	assert.True(t, short, "exactly one year is still short-term")

	short, ok = IsShortTermHolding("2023-06-01", "2024-06-02")
	assert.True(t, ok)
	assert.False(t, short)

	_, ok = IsShortTermHolding("VARIOUS", "2024-06-02")
	assert.False(t, ok)
}

func TestIsShortTermHoldingAcrossLeapDay(t *testing.T) {
	for _, tc := range []struct {
		acquired, sold string
		short          bool
	}{
		{"02/29/2024", "02/28/2025", true},
		{"02/29/2024", "03/01/2025", false},
		{"02/28/2023", "02/28/2024", true},
		{"02/28/2023", "02/29/2024", false},
		{"12/31/2023", "12/31/2024", true},
	} {
		short, ok := IsShortTermHolding(tc.acquired, tc.sold)
		assert.True(t, ok)
		assert.Equal(t, tc.short, short, "%s -> %s", tc.acquired, tc.sold)
	}
}
