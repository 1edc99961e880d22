package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMapLimiter_Allow(t *testing.T) {
	t.Run("should exhaust the burst and then deny", func(t *testing.T) {
		req := require.New(t)
		limiter := NewMapLimiter(1, 3, time.Minute)
		now := time.Now()

		for i := 0; i < 3; i++ {
			req.True(limiter.Allow("10.0.0.1", now))
		}
		req.False(limiter.Allow("10.0.0.1", now))
	})

	t.Run("should refill at the sustained rate", func(t *testing.T) {
		req := require.New(t)
		limiter := NewMapLimiter(1, 1, time.Minute)
		now := time.Now()

		req.True(limiter.Allow("10.0.0.1", now))
		req.False(limiter.Allow("10.0.0.1", now))
		req.True(limiter.Allow("10.0.0.1", now.Add(time.Second)))
	})

	t.Run("should throttle keys independently", func(t *testing.T) {
		req := require.New(t)
		limiter := NewMapLimiter(1, 1, time.Minute)
		now := time.Now()

		req.True(limiter.Allow("10.0.0.1", now))
		req.False(limiter.Allow("10.0.0.1", now))
		req.True(limiter.Allow("10.0.0.2", now))
	})

	t.Run("should evict buckets idle past the TTL", func(t *testing.T) {
		req := require.New(t)
		limiter := NewMapLimiter(1, 1, time.Minute)
		now := time.Now()

		req.True(limiter.Allow("10.0.0.1", now))
		// Enough time for both the sweep and a fresh bucket.
		req.True(limiter.Allow("10.0.0.2", now.Add(2*time.Minute)))
		req.NotContains(limiter.buckets, "10.0.0.1")
	})

	t.Run("should allow everything when disabled", func(t *testing.T) {
		req := require.New(t)
		var limiter *MapLimiter
		req.True(limiter.Allow("10.0.0.1", time.Now()))
		req.Nil(NewMapLimiter(0, 5, time.Minute))
	})

	t.Run("should allow empty keys rather than collapsing them onto one bucket", func(t *testing.T) {
		req := require.New(t)
		limiter := NewMapLimiter(1, 1, time.Minute)
		now := time.Now()

		req.True(limiter.Allow("", now))
		req.True(limiter.Allow("", now))
	})
}
