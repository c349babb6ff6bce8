package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("PROPDESK_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestIssueAndVerifyRoundTrip(t *testing.T) {
	setSecret(t)

	token, err := IssueToken("admin-1", RoleAdmin, "tenant-1", time.Hour)
	require.NoError(t, err)

	claims, err := VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "admin-1", claims.Subject)
	assert.Equal(t, RoleAdmin, claims.Role)
	assert.Equal(t, "tenant-1", claims.TenantID)

	actor := claims.Actor()
	assert.Equal(t, Actor{ID: "admin-1", Role: RoleAdmin, TenantID: "tenant-1"}, actor)
}

func TestIssueRejectsBadBindings(t *testing.T) {
	setSecret(t)

	_, err := IssueToken("root-1", RoleRoot, "tenant-1", time.Hour)
	assert.Error(t, err, "root tokens must not carry a tenant")

	_, err = IssueToken("u-1", RoleUser, "", time.Hour)
	assert.Error(t, err, "user tokens require a tenant")

	_, err = IssueToken("u-1", Role("superuser"), "tenant-1", time.Hour)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	setSecret(t)

	token, err := IssueToken("u-1", RoleUser, "tenant-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	_, err = VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsTampering(t *testing.T) {
	setSecret(t)

	token, err := IssueToken("u-1", RoleUser, "tenant-1", time.Hour)
	require.NoError(t, err)

	_, err = VerifyToken(token + "x")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = VerifyToken("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSecretRotationInvalidatesTokens(t *testing.T) {
	setSecret(t)
	token, err := IssueToken("u-1", RoleUser, "tenant-1", time.Hour)
	require.NoError(t, err)

	t.Setenv("PROPDESK_AUTH_SECRET", "rotated-secret")
	ResetSecretForTests()

	_, err = VerifyToken(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRoleMembership(t *testing.T) {
	assert.True(t, RoleAdmin.In(RoleAdmin, RoleRoot))
	assert.False(t, RoleRoot.In(RoleAdmin), "root does not satisfy an admin check")
	assert.False(t, RoleUser.In())
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret", 10)
	require.NoError(t, err)
	assert.NoError(t, VerifyPassword(hash, "s3cret"))
	assert.Error(t, VerifyPassword(hash, "wrong"))
}
