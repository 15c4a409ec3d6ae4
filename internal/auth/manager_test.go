package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smallbiznis/payflow/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	manager, err := NewManager(config.Config{AuthJWTSecret: "test-secret"})
	require.NoError(t, err)
	return manager
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(config.Config{})
	require.ErrorIs(t, err, ErrSecretMissing)
}

func TestIssueAndVerify(t *testing.T) {
	manager := newTestManager(t)

	token, err := manager.Issue(User{ID: "user-1", Email: "u@example.com", Name: "U"}, time.Hour)
	require.NoError(t, err)

	user, err := manager.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID)
	require.Equal(t, "u@example.com", user.Email)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	manager := newTestManager(t)

	token, err := manager.Issue(User{ID: "user-1"}, -time.Minute)
	require.NoError(t, err)

	_, err = manager.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	manager := newTestManager(t)
	other, err := NewManager(config.Config{AuthJWTSecret: "another-secret"})
	require.NoError(t, err)

	token, err := other.Issue(User{ID: "user-1"}, time.Hour)
	require.NoError(t, err)

	_, err = manager.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	manager := newTestManager(t)
	for _, token := range []string{"", "   ", "not.a.jwt"} {
		_, err := manager.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	}
}
