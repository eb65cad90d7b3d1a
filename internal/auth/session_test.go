package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IssueAndParse(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)

	s, err := m.Issue("user-1", RoleCustomer)
	require.NoError(t, err)
	assert.NotEmpty(t, s.Token)

	got, err := m.Parse(s.Token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, RoleCustomer, got.Role)
	assert.False(t, got.IsAdmin())
	assert.WithinDuration(t, s.ExpiresAt, got.ExpiresAt, time.Second)
}

func TestManager_ExpiredIsTyped(t *testing.T) {
	m, err := NewManager("test-secret", time.Minute)
	require.NoError(t, err)

	issuedAt := time.Now().Add(-time.Hour)
	m.nowFunc = func() time.Time { return issuedAt }
	s, err := m.Issue("admin-1", RoleAdmin)
	require.NoError(t, err)

	m.nowFunc = time.Now
	_, err = m.Parse(s.Token)
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestManager_RejectsTampering(t *testing.T) {
	m, err := NewManager("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewManager("other-secret", time.Hour)
	require.NoError(t, err)

	s, err := other.Issue("user-1", RoleAdmin)
	require.NoError(t, err)

	_, err = m.Parse(s.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Parse("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Tokens without an expiry are refused.
	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "user-1", Role: RoleAdmin})
	signed, err := noExp.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = m.Parse(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("", time.Hour)
	assert.ErrorIs(t, err, ErrMissingSecret)
}

func TestSessionContext(t *testing.T) {
	_, ok := SessionFrom(context.Background())
	assert.False(t, ok)

	ctx := WithSession(context.Background(), &Session{UserID: "admin-1", Role: RoleAdmin})
	s, ok := SessionFrom(ctx)
	require.True(t, ok)
	assert.True(t, s.IsAdmin())
}
