package repositories

import (
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtime-core/domain"
	"realtime-core/errors"
)

func newCall(caller, recipient string, start time.Time, status domain.CallStatus) domain.Call {
	return domain.Call{
		ID:          uuid.New(),
		CallerID:    caller,
		RecipientID: recipient,
		StartTime:   start,
		Status:      status,
	}
}

func TestCallRepository_StoreAndGet(t *testing.T) {
	req := require.New(t)
	repo := NewCallRepository(openTestDB(t), slog.Default())

	call := newCall("alice", "bob", time.Now().UTC(), domain.CallRinging)
	req.NoError(repo.Store(call))

	fetched, err := repo.Get(call.ID)
	req.NoError(err)
	req.Equal(call.ID, fetched.ID)
	req.Equal("alice", fetched.CallerID)
	req.Equal(domain.CallRinging, fetched.Status)
	req.True(fetched.EndTime.IsZero())

	_, err = repo.Get(uuid.New())
	req.ErrorIs(err, errors.ErrNotFound)
}

func TestCallRepository_ActiveFor(t *testing.T) {
	req := require.New(t)
	repo := NewCallRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	ringing := newCall("alice", "bob", now, domain.CallRinging)
	req.NoError(repo.Store(ringing))
	// A call stored already terminal never enters the active index.
	missed := newCall("alice", "carol", now.Add(time.Second), domain.CallMissed)
	missed.EndTime = missed.StartTime
	req.NoError(repo.Store(missed))

	t.Run("should list the non-terminal calls of both participants", func(t *testing.T) {
		for _, identity := range []string{"alice", "bob"} {
			active, err := repo.ActiveFor(identity)
			req.NoError(err)
			req.Len(active, 1)
			req.Equal(ringing.ID, active[0].ID)
		}
		active, err := repo.ActiveFor("carol")
		req.NoError(err)
		req.Empty(active)
	})

	t.Run("should drop the active entries once the call is terminal", func(t *testing.T) {
		ended := ringing
		ended.Status = domain.CallEnded
		ended.TerminationReason = domain.ReasonCallerEnded
		ended.EndTime = now.Add(time.Minute)
		req.NoError(repo.Update(ended))

		for _, identity := range []string{"alice", "bob"} {
			active, err := repo.ActiveFor(identity)
			req.NoError(err)
			req.Empty(active)
		}

		fetched, err := repo.Get(ringing.ID)
		req.NoError(err)
		req.Equal(domain.CallEnded, fetched.Status)
		req.Equal(domain.ReasonCallerEnded, fetched.TerminationReason)
		req.True(ended.EndTime.Equal(fetched.EndTime))
	})
}

func TestCallRepository_HistoryFor(t *testing.T) {
	req := require.New(t)
	repo := NewCallRepository(openTestDB(t), slog.Default())
	base := time.Now().UTC()

	var calls []domain.Call
	for i := 0; i < 4; i++ {
		recipient := "bob"
		if i%2 == 1 {
			recipient = "carol"
		}
		call := newCall("alice", recipient, base.Add(time.Duration(i)*time.Minute), domain.CallEnded)
		call.TerminationReason = domain.ReasonCallerEnded
		call.EndTime = call.StartTime.Add(30 * time.Second)
		req.NoError(repo.Store(call))
		calls = append(calls, call)
	}

	t.Run("should return the requester's calls newest first", func(t *testing.T) {
		history, err := repo.HistoryFor("alice", 10)
		req.NoError(err)
		req.Len(history, 4)
		for i := range history {
			req.Equal(calls[len(calls)-1-i].ID, history[i].ID)
		}
	})

	t.Run("should include only calls involving the identity", func(t *testing.T) {
		history, err := repo.HistoryFor("bob", 10)
		req.NoError(err)
		req.Len(history, 2)
		history, err = repo.HistoryFor("ghost", 10)
		req.NoError(err)
		req.Empty(history)
	})

	t.Run("should cap the result at the limit", func(t *testing.T) {
		history, err := repo.HistoryFor("alice", 2)
		req.NoError(err)
		req.Len(history, 2)
		req.Equal(calls[3].ID, history[0].ID)
		req.Equal(calls[2].ID, history[1].ID)
	})
}
