package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "civicdesk/pkg/domain"
	dErrors "civicdesk/pkg/domain-errors"
)

var subject = Subject{UserID: id.NewUserID(), Username: "agent1", Role: id.RoleAgent}

func newService(now time.Time) *Service {
	return NewService("test-signing-key", "test-issuer", 15*time.Minute, 24*time.Hour,
		WithClock(func() time.Time { return now }))
}

func Test_IssuePair(t *testing.T) {
	now := time.Now()
	svc := newService(now)

	pair, err := svc.IssuePair(subject)
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, 900, pair.ExpiresIn)

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, subject.UserID.String(), claims.UserID)
	assert.Equal(t, "agent1", claims.Username)
	assert.Equal(t, id.RoleAgent, claims.Role)
	assert.NotEmpty(t, claims.JTI)

	refresh, err := svc.Parse(pair.RefreshToken, TypeRefresh)
	require.NoError(t, err)
	assert.NotEqual(t, claims.JTI, refresh.ID)
	assert.WithinDuration(t, now.Add(24*time.Hour), refresh.ExpiresAt.Time, time.Second)
}

func Test_TokenTypesAreNotInterchangeable(t *testing.T) {
	svc := newService(time.Now())
	pair, err := svc.IssuePair(subject)
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = svc.Parse(pair.AccessToken, TypeRefresh)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_ExpiredToken(t *testing.T) {
	issued := time.Now().Add(-time.Hour)
	pair, err := newService(issued).IssuePair(subject)
	require.NoError(t, err)

	_, err = newService(time.Now()).ValidateAccessToken(pair.AccessToken)
	require.Error(t, err)
	var de *dErrors.Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "token has expired", de.Message)
}

func Test_RejectsForeignTokens(t *testing.T) {
	svc := newService(time.Now())

	_, err := svc.ValidateAccessToken("invalid-token-string")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	other := NewService("another-key", "test-issuer", time.Minute, time.Hour)
	pair, err := other.IssuePair(subject)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{Type: TypeAccess})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(unsigned)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func Test_Remaining(t *testing.T) {
	now := time.Now()
	svc := newService(now)
	pair, err := svc.IssuePair(subject)
	require.NoError(t, err)
	claims, err := svc.Parse(pair.AccessToken, TypeAccess)
	require.NoError(t, err)

	assert.InDelta(t, (15 * time.Minute).Seconds(), svc.Remaining(claims).Seconds(), 1)
	assert.Zero(t, newService(now.Add(time.Hour)).Remaining(claims))
}
