package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"civicdesk/pkg/platform/sentinel"
)

func TestInMemoryTRL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	trl := NewInMemoryTRL().WithClock(func() time.Time { return now })

	require.NoError(t, trl.RevokeTokens(ctx, []string{"a", "", "b"}, time.Minute))

	revoked, err := trl.IsTokenRevoked(ctx, "a")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = trl.IsTokenRevoked(ctx, "c")
	require.NoError(t, err)
	assert.False(t, revoked)

	now = now.Add(time.Minute)
	revoked, err = trl.IsTokenRevoked(ctx, "b")
	require.NoError(t, err)
	assert.False(t, revoked, "revocation lapses with the token")
}

func TestInMemoryTRLRejectsNonPositiveTTL(t *testing.T) {
	err := NewInMemoryTRL().RevokeTokens(context.Background(), []string{"a"}, 0)
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}
