package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupState(t *testing.T) {
	s, ok := LookupState("illinois")
	require.True(t, ok)
	assert.Equal(t, "IL", s.Code)
	assert.True(t, s.HasIncomeTax)

	s, ok = LookupState("tx")
	require.True(t, ok)
	assert.False(t, s.HasIncomeTax)

	_, ok = LookupState("ZZ")
	assert.False(t, ok)
}

func TestNormalizeStateCode(t *testing.T) {
	assert.Equal(t, "CA", NormalizeStateCode(" ca "))
	assert.Equal(t, "DC", NormalizeStateCode("District of Columbia"))
	assert.Equal(t, "", NormalizeStateCode("Ontario"))
	assert.True(t, IsValidStateCode("ny"))
	assert.False(t, IsValidStateCode("New York"))
}
