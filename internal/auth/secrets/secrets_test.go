package secrets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, ComparePassword(hash, "correct horse"))
	assert.False(t, ComparePassword(hash, "wrong horse"))
	assert.False(t, ComparePassword("not-a-hash", "correct horse"))
}

func TestGenerateOTP(t *testing.T) {
	for range 50 {
		code, err := GenerateOTP()
		require.NoError(t, err)
		require.Len(t, code, OTPDigits)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', "code %q", code)
		}
	}
}

func TestMatchOTP(t *testing.T) {
	hash := HashOTP("012345")

	assert.Len(t, hash, 64)
	assert.True(t, MatchOTP(hash, "012345"))
	assert.False(t, MatchOTP(hash, "012346"))
	assert.False(t, MatchOTP(hash, ""))
}
