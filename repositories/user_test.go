package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"realtime-core/domain"
	"realtime-core/errors"
)

func TestUserRepository_SaveAndResolve(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	req.NoError(repo.Save(domain.Profile{Identity: "alice", DisplayName: "Alice"}))

	profile, err := repo.Resolve("alice")
	req.NoError(err)
	req.Equal("alice", profile.Identity)
	req.Equal("Alice", profile.DisplayName)
	req.False(profile.Online)

	_, err = repo.Resolve("ghost")
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestUserRepository_SetPresence(t *testing.T) {
	req := require.New(t)
	repo := NewUserRepository(openTestDB(t), slog.Default())

	req.NoError(repo.Save(domain.Profile{Identity: "alice", DisplayName: "Alice"}))
	seen := time.Now().UTC().Truncate(time.Millisecond)

	req.NoError(repo.SetPresence("alice", true, seen))
	profile, err := repo.Resolve("alice")
	req.NoError(err)
	req.True(profile.Online)
	req.True(seen.Equal(profile.LastSeen))
	// The display name must survive the presence update.
	req.Equal("Alice", profile.DisplayName)

	req.NoError(repo.SetPresence("alice", false, seen.Add(time.Minute)))
	profile, err = repo.Resolve("alice")
	req.NoError(err)
	req.False(profile.Online)

	req.ErrorIs(repo.SetPresence("ghost", true, seen), errors.ErrNotFound)
}
