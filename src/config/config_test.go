package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaultsAreValid(t *testing.T) {
	t.Setenv("LLM_PROVIDER", "none")
	t.Setenv("EMAIL_SERVICE_PROVIDER", "mock")
	t.Setenv("JWT_SECRET", "")
	cfg := FromEnv()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.8, cfg.ExtractionConfidenceThreshold)
}

func TestValidateConfidenceThreshold(t *testing.T) {
	for _, tc := range []struct {
		value string
		ok    bool
	}{
		{"0", true},
		{"0.5", true},
		{"1", true},
		{"-0.1", false},
		{"1.2", false},
		{"NaN", false},
	} {
		t.Run(tc.value, func(t *testing.T) {
			t.Setenv("LLM_PROVIDER", "none")
			t.Setenv("EMAIL_SERVICE_PROVIDER", "mock")
			t.Setenv("JWT_SECRET", "")
			t.Setenv("EXTRACTION_CONFIDENCE_THRESHOLD", tc.value)
			err := FromEnv().Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, "EXTRACTION_CONFIDENCE_THRESHOLD")
			}
		})
	}
}
