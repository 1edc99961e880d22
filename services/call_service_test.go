package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/runtime"
)

// fakeCallRepo is an in-memory stand-in for the call store.
type fakeCallRepo struct {
	mu   sync.Mutex
	byID map[uuid.UUID]domain.Call
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{byID: make(map[uuid.UUID]domain.Call)}
}

func (r *fakeCallRepo) Store(c domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[c.ID] = c
	return nil
}

func (r *fakeCallRepo) Get(id uuid.UUID) (domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.byID[id]
	if !ok {
		return domain.Call{}, fmt.Errorf("%w: call %s", errors.ErrNotFound, id)
	}
	return c, nil
}

func (r *fakeCallRepo) Update(c domain.Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.ID]; !ok {
		return fmt.Errorf("%w: call %s", errors.ErrNotFound, c.ID)
	}
	r.byID[c.ID] = c
	return nil
}

func (r *fakeCallRepo) ActiveFor(identity string) ([]domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Call
	for _, c := range r.byID {
		if c.Involves(identity) && !c.Status.Terminal() {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeCallRepo) HistoryFor(identity string, limit int) ([]domain.Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Call
	for _, c := range r.byID {
		if c.Involves(identity) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type callFixture struct {
	svc      *CallService
	registry *runtime.Registry
	repo     *fakeCallRepo
}

func newCallFixture() *callFixture {
	registry := runtime.NewRegistry()
	repo := newFakeCallRepo()
	return &callFixture{
		svc:      NewCallService(slog.Default(), registry, repo),
		registry: registry,
		repo:     repo,
	}
}

func (f *callFixture) connect(identity string) *recorderSink {
	sink := &recorderSink{}
	f.registry.Register(domain.Connection{ID: "c-" + identity, Identity: identity}, sink)
	return sink
}

func TestCallService_Initiate(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice", DisplayName: "Alice"}

	t.Run("should ring a live recipient and leave the call ringing", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		bobSink := f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")

		req.NoError(err)
		req.Equal(domain.CallRinging, call.Status)

		incoming := bobSink.named("call:incoming")
		req.Len(incoming, 1)
		ring := incoming[0].(event.CallIncoming)
		req.Equal(call.ID.String(), ring.CallID)
		req.Equal("alice", ring.CallerID)
		req.Equal("Alice", ring.CallerName)

		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(domain.CallRinging, stored.Status)
	})

	t.Run("should record a missed call when the recipient is offline", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()

		call, err := f.svc.Initiate(ctx, alice, "bob")

		req.ErrorIs(err, errors.ErrRecipientOffline)
		req.Equal(domain.CallMissed, call.Status)
		req.False(call.EndTime.IsZero())

		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(domain.CallMissed, stored.Status)
	})

	t.Run("should record a missed call when the ring cannot be delivered", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.registry.Register(domain.Connection{ID: "c-bob", Identity: "bob"},
			&recorderSink{err: fmt.Errorf("sink closed")})

		call, err := f.svc.Initiate(ctx, alice, "bob")

		req.ErrorIs(err, errors.ErrRecipientOffline)
		req.Equal(domain.CallMissed, call.Status)
	})

	t.Run("should refuse a second call while one is in progress", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")
		f.connect("carol")

		_, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		_, err = f.svc.Initiate(ctx, alice, "carol")
		req.ErrorIs(err, errors.ErrInvalidCallState)
	})

	t.Run("should allow a new call once the previous one is terminal", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")
		f.connect("carol")

		first, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.End(ctx, alice, first.ID)
		req.NoError(err)

		_, err = f.svc.Initiate(ctx, alice, "carol")
		req.NoError(err)
	})

	t.Run("should refuse self-calls and empty recipients", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()

		_, err := f.svc.Initiate(ctx, alice, "alice")
		req.ErrorIs(err, errors.ErrInvalidRequest)
		_, err = f.svc.Initiate(ctx, alice, "")
		req.ErrorIs(err, errors.ErrInvalidRequest)
	})
}

func TestCallService_Accept(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}

	t.Run("should connect a ringing call and tell the caller", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		aliceSink := f.connect("alice")
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		connected, err := f.svc.Accept(ctx, bob, call.ID)

		req.NoError(err)
		req.Equal(domain.CallConnected, connected.Status)
		accepted := aliceSink.named("call:accepted")
		req.Len(accepted, 1)
		req.Equal(call.ID.String(), accepted[0].(event.CallAccepted).CallID)
	})

	t.Run("should refuse acceptance by anyone but the callee", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		_, err = f.svc.Accept(ctx, alice, call.ID)
		req.ErrorIs(err, errors.ErrForbidden)
		_, err = f.svc.Accept(ctx, domain.Connection{Identity: "mallory"}, call.ID)
		req.ErrorIs(err, errors.ErrForbidden)
	})

	t.Run("should refuse acceptance of a terminal call and leave it untouched", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		ended, err := f.svc.End(ctx, alice, call.ID)
		req.NoError(err)

		_, err = f.svc.Accept(ctx, bob, call.ID)
		req.ErrorIs(err, errors.ErrInvalidCallState)

		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(ended, stored)
	})

	t.Run("should report an unknown call id", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()

		_, err := f.svc.Accept(ctx, bob, uuid.New())
		req.ErrorIs(err, errors.ErrNotFound)
	})
}

func TestCallService_Reject(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}

	t.Run("should terminate a ringing call with reason rejected", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		aliceSink := f.connect("alice")
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		rejected, err := f.svc.Reject(ctx, bob, call.ID)

		req.NoError(err)
		req.Equal(domain.CallRejected, rejected.Status)
		req.Equal(domain.ReasonRejected, rejected.TerminationReason)
		req.False(rejected.EndTime.IsZero())
		req.Len(aliceSink.named("call:rejected"), 1)
	})

	t.Run("should refuse rejection of a connected call", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("alice")
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.Accept(ctx, bob, call.ID)
		req.NoError(err)

		_, err = f.svc.Reject(ctx, bob, call.ID)
		req.ErrorIs(err, errors.ErrInvalidCallState)
	})

	t.Run("should refuse rejection by the caller", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		_, err = f.svc.Reject(ctx, alice, call.ID)
		req.ErrorIs(err, errors.ErrForbidden)
	})
}

func TestCallService_End(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}

	t.Run("should record which party hung up", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("alice")
		bobSink := f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.Accept(ctx, bob, call.ID)
		req.NoError(err)

		ended, err := f.svc.End(ctx, alice, call.ID)

		req.NoError(err)
		req.Equal(domain.CallEnded, ended.Status)
		req.Equal(domain.ReasonCallerEnded, ended.TerminationReason)
		endedEvents := bobSink.named("call:ended")
		req.Len(endedEvents, 1)
		req.Equal(string(domain.ReasonCallerEnded), endedEvents[0].(event.CallEnded).Reason)
	})

	t.Run("should record recipient_ended when the callee hangs up", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		aliceSink := f.connect("alice")
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.Accept(ctx, bob, call.ID)
		req.NoError(err)

		ended, err := f.svc.End(ctx, bob, call.ID)

		req.NoError(err)
		req.Equal(domain.ReasonRecipientEnded, ended.TerminationReason)
		req.Len(aliceSink.named("call:ended"), 1)
	})

	t.Run("should allow ending a still-ringing call", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		ended, err := f.svc.End(ctx, alice, call.ID)
		req.NoError(err)
		req.Equal(domain.CallEnded, ended.Status)
	})

	t.Run("should refuse ending a missed call", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.ErrorIs(err, errors.ErrRecipientOffline)

		_, err = f.svc.End(ctx, alice, call.ID)
		req.ErrorIs(err, errors.ErrInvalidCallState)
	})

	t.Run("should refuse ending by a non-participant", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		_, err = f.svc.End(ctx, domain.Connection{Identity: "mallory"}, call.ID)
		req.ErrorIs(err, errors.ErrForbidden)
	})
}

func TestCallService_Relay(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}
	payload := json.RawMessage(`{"sdp":"v=0 fake offer"}`)

	t.Run("should forward the payload verbatim to the other party", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		bobSink := f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		req.NoError(f.svc.Relay(ctx, event.SignalOffer, alice, call.ID, payload))

		signals := bobSink.named(string(event.SignalOffer))
		req.Len(signals, 1)
		signal := signals[0].(event.Signal)
		req.Equal("alice", signal.SenderID)
		req.Equal(call.ID.String(), signal.CallID)
		req.JSONEq(string(payload), string(signal.Payload))

		// Relays never move the state machine.
		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(domain.CallRinging, stored.Status)
	})

	t.Run("should relay answers back to the caller", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		aliceSink := f.connect("alice")
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		req.NoError(f.svc.Relay(ctx, event.SignalAnswer, bob, call.ID, payload))
		req.Len(aliceSink.named(string(event.SignalAnswer)), 1)
	})

	t.Run("should reject an empty payload", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		err = f.svc.Relay(ctx, event.SignalCandidate, alice, call.ID, nil)
		req.ErrorIs(err, errors.ErrInvalidRequest)
	})

	t.Run("should refuse a relay from a non-participant", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)

		err = f.svc.Relay(ctx, event.SignalOffer, domain.Connection{Identity: "mallory"}, call.ID, payload)
		req.ErrorIs(err, errors.ErrForbidden)
	})

	t.Run("should report the other party going offline", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		f.registry.Unregister("bob", "c-bob")

		err = f.svc.Relay(ctx, event.SignalOffer, alice, call.ID, payload)
		req.ErrorIs(err, errors.ErrRecipientOffline)
	})
}

func TestCallService_HandleDisconnect(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}

	t.Run("should force-end active calls with reason network_error", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("alice")
		bobSink := f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.Accept(ctx, bob, call.ID)
		req.NoError(err)

		f.svc.HandleDisconnect(ctx, "alice")

		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(domain.CallEnded, stored.Status)
		req.Equal(domain.ReasonNetworkError, stored.TerminationReason)
		req.False(stored.EndTime.IsZero())

		endedEvents := bobSink.named("call:ended")
		req.Len(endedEvents, 1)
		req.Equal(string(domain.ReasonNetworkError), endedEvents[0].(event.CallEnded).Reason)
	})

	t.Run("should leave terminal calls untouched", func(t *testing.T) {
		req := require.New(t)
		f := newCallFixture()
		f.connect("bob")

		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		rejected, err := f.svc.Reject(ctx, bob, call.ID)
		req.NoError(err)

		f.svc.HandleDisconnect(ctx, "alice")

		stored, err := f.repo.Get(call.ID)
		req.NoError(err)
		req.Equal(rejected, stored)
	})

	t.Run("should do nothing for an identity with no calls", func(t *testing.T) {
		f := newCallFixture()
		f.svc.HandleDisconnect(ctx, "ghost")
	})
}

func TestCallService_History(t *testing.T) {
	ctx := context.Background()
	alice := domain.Connection{ID: "c-alice", Identity: "alice"}
	bob := domain.Connection{ID: "c-bob", Identity: "bob"}

	req := require.New(t)
	f := newCallFixture()
	f.connect("bob")
	base := time.Now().UTC()
	tick := 0
	f.svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	var last domain.Call
	for i := 0; i < 3; i++ {
		call, err := f.svc.Initiate(ctx, alice, "bob")
		req.NoError(err)
		_, err = f.svc.End(ctx, alice, call.ID)
		req.NoError(err)
		last = call
	}

	history, err := f.svc.History(alice, 2)
	req.NoError(err)
	req.Len(history, 2)
	req.Equal(last.ID, history[0].ID)
	req.True(history[0].StartTime.After(history[1].StartTime))

	history, err = f.svc.History(bob, 10)
	req.NoError(err)
	req.Len(history, 3)

	history, err = f.svc.History(domain.Connection{Identity: "ghost"}, 10)
	req.NoError(err)
	req.Empty(history)
}
