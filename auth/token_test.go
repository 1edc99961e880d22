package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTokenVerifier_Verify(t *testing.T) {
	const secret = "test-secret"

	t.Run("should accept a freshly minted token", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, "alice", time.Hour)
		req.NoError(err)

		identity, err := NewTokenVerifier(secret).Verify(token)
		req.NoError(err)
		req.Equal("alice", identity)
	})

	t.Run("should refuse a token signed with another secret", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken("other-secret", "alice", time.Hour)
		req.NoError(err)

		_, err = NewTokenVerifier(secret).Verify(token)
		req.Error(err)
	})

	t.Run("should refuse an expired token", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, "alice", -time.Minute)
		req.NoError(err)

		_, err = NewTokenVerifier(secret).Verify(token)
		req.Error(err)
	})

	t.Run("should refuse a token carrying no identity", func(t *testing.T) {
		req := require.New(t)
		token, err := GenerateToken(secret, "", time.Hour)
		req.NoError(err)

		_, err = NewTokenVerifier(secret).Verify(token)
		req.Error(err)
	})

	t.Run("should refuse garbage", func(t *testing.T) {
		req := require.New(t)
		_, err := NewTokenVerifier(secret).Verify("not-a-jwt")
		req.Error(err)
	})
}
