package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuard_Allow(t *testing.T) {
	t.Run("should deny the event that exceeds the cap", func(t *testing.T) {
		req := require.New(t)
		guard := NewGuard(time.Minute, 50)

		for i := 0; i < 50; i++ {
			req.True(guard.Allow("conn-1"), "event %d should pass", i+1)
		}
		req.False(guard.Allow("conn-1"))
		req.False(guard.Allow("conn-1"))
	})

	t.Run("should count connections independently", func(t *testing.T) {
		req := require.New(t)
		guard := NewGuard(time.Minute, 1)

		req.True(guard.Allow("conn-1"))
		req.False(guard.Allow("conn-1"))
		req.True(guard.Allow("conn-2"))
	})

	t.Run("should reset the counter once a full window has elapsed", func(t *testing.T) {
		req := require.New(t)
		guard := NewGuard(time.Minute, 2)
		now := time.Now()
		guard.now = func() time.Time { return now }

		req.True(guard.Allow("conn-1"))
		req.True(guard.Allow("conn-1"))
		req.False(guard.Allow("conn-1"))

		now = now.Add(time.Minute + time.Second)
		req.True(guard.Allow("conn-1"))
	})

	t.Run("should keep denying within the same window", func(t *testing.T) {
		req := require.New(t)
		guard := NewGuard(time.Minute, 1)
		now := time.Now()
		guard.now = func() time.Time { return now }

		req.True(guard.Allow("conn-1"))
		now = now.Add(30 * time.Second)
		req.False(guard.Allow("conn-1"))
	})

	t.Run("should be safe under concurrent use", func(t *testing.T) {
		req := require.New(t)
		guard := NewGuard(time.Minute, 100)

		var wg sync.WaitGroup
		allowed := make(chan bool, 200)
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				allowed <- guard.Allow("conn-1")
			}()
		}
		wg.Wait()
		close(allowed)

		count := 0
		for ok := range allowed {
			if ok {
				count++
			}
		}
		req.Equal(100, count)
	})
}

func TestGuard_Forget(t *testing.T) {
	req := require.New(t)
	guard := NewGuard(time.Minute, 1)

	req.True(guard.Allow("conn-1"))
	req.False(guard.Allow("conn-1"))

	guard.Forget("conn-1")
	req.True(guard.Allow("conn-1"))
}

func TestGuard_Sweep(t *testing.T) {
	req := require.New(t)
	guard := NewGuard(time.Minute, 10)
	now := time.Now()
	guard.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		guard.Allow(fmt.Sprintf("conn-%d", i))
	}
	req.Zero(guard.Sweep())

	now = now.Add(2 * time.Minute)
	guard.Allow("conn-fresh")
	req.Equal(5, guard.Sweep())

	// The fresh counter survived and still counts.
	req.True(guard.Allow("conn-fresh"))
}

func TestNewGuard_Defaults(t *testing.T) {
	req := require.New(t)
	guard := NewGuard(0, -1)

	req.Equal(DefaultWindow, guard.window)
	req.Equal(DefaultCap, guard.cap)
}
