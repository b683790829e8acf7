package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadlive/livemap/pkg/core"
)

func TestCanonicalAccountNumber_ExactConversion(t *testing.T) {
	// 0x110000112345678 does not fit in a float64 mantissa; the decimal
	// form must come out digit-exact.
	got, err := CanonicalAccountNumber("110000112345678")
	require.NoError(t, err)
	assert.Equal(t, "76561198265685624", got)
}

func TestCanonicalAccountNumber_MoreValues(t *testing.T) {
	tests := []struct {
		hex  string
		want string
	}{
		{"11000010fedcba9", "76561198227508137"},
		{"1100001", "17825793"},
		{"0", "0"},
		{"f", "15"},
	}
	for _, tt := range tests {
		got, err := CanonicalAccountNumber(tt.hex)
		require.NoError(t, err, tt.hex)
		assert.Equal(t, tt.want, got, tt.hex)
	}
}

func TestCanonicalAccountNumber_Malformed(t *testing.T) {
	for _, bad := range []string{"", "xyz", "12g4", "-ff", "0x11"} {
		_, err := CanonicalAccountNumber(bad)
		assert.ErrorIs(t, err, ErrMalformedToken, "input %q", bad)
	}
}

func TestClassify_PlatformScheme(t *testing.T) {
	c, err := Classify([]string{"steam:110000112345678"})
	require.NoError(t, err)
	assert.Equal(t, core.SchemeSteam, c.Scheme)
	assert.Equal(t, "110000112345678", c.Raw)
	assert.Equal(t, "76561198265685624", c.Canonical)
}

func TestClassify_PrecedenceSteamFirst(t *testing.T) {
	c, err := Classify([]string{
		"discord:123456789012345678",
		"license:0123456789abcdef0123456789abcdef01234567",
		"steam:110000112345678",
	})
	require.NoError(t, err)
	assert.Equal(t, core.SchemeSteam, c.Scheme)
	assert.Equal(t, "76561198265685624", c.Canonical)
}

func TestClassify_FallsBackToLicense(t *testing.T) {
	c, err := Classify([]string{
		"discord:123456789012345678",
		"license:0123456789abcdef",
	})
	require.NoError(t, err)
	assert.Equal(t, core.SchemeLicense, c.Scheme)
	// licensing keys pass through unchanged
	assert.Equal(t, "0123456789abcdef", c.Canonical)
}

func TestClassify_MalformedPlatformTokenFallsThrough(t *testing.T) {
	c, err := Classify([]string{
		"steam:not-hex-at-all",
		"discord:987654321",
	})
	require.NoError(t, err)
	assert.Equal(t, core.SchemeDiscord, c.Scheme)
	assert.Equal(t, "987654321", c.Canonical)
}

func TestClassify_UnknownScheme(t *testing.T) {
	_, err := Classify([]string{"ip:127.0.0.1", "fivem:12345", "plain-string"})
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestClassify_Empty(t *testing.T) {
	_, err := Classify(nil)
	assert.ErrorIs(t, err, ErrUnknownScheme)
}

func TestClassify_CaseInsensitivePrefix(t *testing.T) {
	c, err := Classify([]string{"Steam:1100001"})
	require.NoError(t, err)
	assert.Equal(t, core.SchemeSteam, c.Scheme)
	assert.Equal(t, "17825793", c.Canonical)
}
