package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	jm, err := NewJWTManager("test-signing-key")
	require.NoError(t, err)

	t.Run("round trip preserves claims", func(t *testing.T) {
		ctx := context.Background()
		token, err := jm.GenerateToken(ctx, "op-123", "ops@example.com", []string{"operator"}, time.Hour)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		claims, err := jm.ValidateToken(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "op-123", claims.OperatorID)
		assert.Equal(t, "ops@example.com", claims.Email)
		assert.Equal(t, []string{"operator"}, claims.Roles)
		assert.Equal(t, "publication-governor", claims.Issuer)
	})

	t.Run("expired token is rejected", func(t *testing.T) {
		ctx := context.Background()
		token, err := jm.GenerateToken(ctx, "op-123", "ops@example.com", nil, -time.Minute)
		require.NoError(t, err)

		_, err = jm.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("token signed with another key is rejected", func(t *testing.T) {
		ctx := context.Background()
		other, err := NewJWTManager("a-different-key")
		require.NoError(t, err)

		token, err := other.GenerateToken(ctx, "op-123", "ops@example.com", nil, time.Hour)
		require.NoError(t, err)

		_, err = jm.ValidateToken(ctx, token)
		assert.Error(t, err)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		_, err := jm.ValidateToken(context.Background(), "not-a-token")
		assert.Error(t, err)
	})
}

func TestJWTManager_RefreshToken(t *testing.T) {
	jm, err := NewJWTManager("test-signing-key")
	require.NoError(t, err)

	ctx := context.Background()
	token, err := jm.GenerateToken(ctx, "op-9", "ops@example.com", []string{"operator"}, time.Hour)
	require.NoError(t, err)

	refreshed, err := jm.RefreshToken(ctx, token, 2*time.Hour)
	require.NoError(t, err)

	claims, err := jm.ValidateToken(ctx, refreshed)
	require.NoError(t, err)
	assert.Equal(t, "op-9", claims.OperatorID)
	assert.Equal(t, []string{"operator"}, claims.Roles)
}

func TestNewJWTManager_RequiresSecret(t *testing.T) {
	_, err := NewJWTManager("")
	assert.Error(t, err)
}
