package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/besikta/inspection-server/internal/models"
	"github.com/besikta/inspection-server/internal/store"
)

func principal(t *testing.T, role models.Role, branch, company string) models.Principal {
	t.Helper()
	p, ok := models.NewPrincipal("u1", "Ada", role, branch, company)
	require.True(t, ok)
	return p
}

func TestTokenRoundTrip(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, "inspection-server")
	p := principal(t, models.RoleBranchAdmin, models.MainBranch, "")

	token, err := m.GenerateToken(p)
	require.NoError(t, err)
	claims, err := m.ValidateToken(token)
	require.NoError(t, err)

	got, err := claims.Principal()
	require.NoError(t, err)
	assert.Equal(t, p, got)
	assert.True(t, got.HasCrossBranchAccess)
}

func TestValidateTokenRejects(t *testing.T) {
	m := NewTokenManager("secret", time.Hour, "inspection-server")
	p := principal(t, models.RoleInspector, "b1", "")

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewTokenManager("other", time.Hour, "inspection-server").GenerateToken(p)
		require.NoError(t, err)
		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		old := NewTokenManager("secret", time.Minute, "inspection-server")
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := old.GenerateToken(p)
		require.NoError(t, err)
		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaimsRoleLevelMismatch(t *testing.T) {
	claims := &Claims{
		Role:             models.RoleInspector,
		PermissionLevel:  models.LevelSuperadmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
	}
	_, err := claims.Principal()
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims = &Claims{Role: "owner", RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"}}
	_, err = claims.Principal()
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	m := NewTokenManager("secret", time.Hour, "inspection-server")
	principals := store.NewMemory()
	r := NewResolver(m, principals)

	p := principal(t, models.RoleInspector, "b1", "")
	require.NoError(t, principals.SavePrincipal(ctx, p))
	token, err := m.GenerateToken(p)
	require.NoError(t, err)

	got, err := r.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, p, got)

	t.Run("branch moved since issue", func(t *testing.T) {
		moved := principal(t, models.RoleInspector, "b2", "")
		require.NoError(t, principals.SavePrincipal(ctx, moved))
		t.Cleanup(func() { _ = principals.SavePrincipal(ctx, p) })

		_, err := r.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrStaleAuthorization)
		var stale *StaleAuthorizationError
		require.ErrorAs(t, err, &stale)
		assert.Equal(t, "branch_id", stale.Field)
	})

	t.Run("principal removed", func(t *testing.T) {
		other := principal(t, models.RoleCustomer, "b1", "acme")
		other.ID = "ghost"
		ghost, err := m.GenerateToken(other)
		require.NoError(t, err)
		_, err = r.Resolve(ctx, ghost)
		assert.ErrorIs(t, err, ErrStaleAuthorization)
	})
}
