package auth

import (
	"strings"
	"testing"
	"time"

	"aramaster/internal/model/system"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	manager := NewJWTManager("secret", "ara-test", time.Hour)

	token, expiresAt, err := manager.GenerateToken("ci-bot", RoleIndexer)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, time.Minute)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", claims.Subject)
	assert.Equal(t, RoleIndexer, claims.Role)
}

func TestJWTManager_Rejects(t *testing.T) {
	manager := NewJWTManager("secret", "ara-test", time.Hour)

	_, _, err := manager.GenerateToken("someone", "root")
	assert.True(t, system.IsValidationError(err))

	other, _, err := NewJWTManager("other-secret", "ara-test", time.Hour).GenerateToken("someone", RoleAdmin)
	require.NoError(t, err)
	_, err = manager.ValidateToken(other)
	assert.ErrorIs(t, err, system.ErrTokenInvalid)

	foreign, _, err := NewJWTManager("secret", "someone-else", time.Hour).GenerateToken("someone", RoleAdmin)
	require.NoError(t, err)
	_, err = manager.ValidateToken(foreign)
	assert.ErrorIs(t, err, system.ErrTokenInvalid)

	expired := &JWTManager{secretKey: []byte("secret"), issuer: "ara-test", ttl: -time.Minute}
	token, _, err := expired.GenerateToken("someone", RoleReader)
	require.NoError(t, err)
	_, err = manager.ValidateToken(token)
	assert.ErrorIs(t, err, system.ErrTokenExpired)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromHeader("Bearer abc"))
	assert.Empty(t, ExtractTokenFromHeader("Basic abc"))
	assert.Empty(t, ExtractTokenFromHeader("Bearer "))
}

func TestAPIKeyVerifier(t *testing.T) {
	hasher := NewKeyHasher(&KeyHashConfig{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	key, err := GenerateKey()
	require.NoError(t, err)
	hash, err := hasher.Hash(key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	verifier := NewAPIKeyVerifier([]string{"not-a-hash", hash})
	assert.True(t, verifier.Enabled())
	assert.True(t, verifier.Verify(key))
	assert.False(t, verifier.Verify(key+"x"))
	assert.False(t, verifier.Verify(""))

	assert.False(t, NewAPIKeyVerifier(nil).Enabled())
	assert.False(t, NewAPIKeyVerifier(nil).Verify(key))
}
