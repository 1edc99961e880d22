package runtime

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"realtime-core/domain"
	"realtime-core/domain/event"
)

func TestNotifier_BroadcastPresence(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	notifier := NewNotifier(slog.Default(), registry)
	ctx := context.Background()

	alice := &captureSink{}
	bob := &captureSink{}
	registry.Register(domain.Connection{ID: "c1", Identity: "alice", DisplayName: "Alice"}, alice)
	registry.Register(domain.Connection{ID: "c2", Identity: "bob", DisplayName: "Bob"}, bob)

	notifier.BroadcastPresence(ctx)

	for _, sink := range []*captureSink{alice, bob} {
		lists := sink.named("users_list")
		req.Len(lists, 1)
		list := lists[0].(event.UsersList)
		req.Len(list.Users, 2)
		req.Equal("alice", list.Users[0].Identity)
		req.Equal("bob", list.Users[1].Identity)
	}
}

func TestNotifier_BroadcastStatus(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	notifier := NewNotifier(slog.Default(), registry)
	ctx := context.Background()

	bob := &captureSink{}
	registry.Register(domain.Connection{ID: "c2", Identity: "bob"}, bob)

	notifier.BroadcastStatus(ctx, "alice", true)
	notifier.BroadcastStatus(ctx, "alice", false)

	statuses := bob.named("user_status")
	req.Len(statuses, 2)
	req.Equal(event.UserStatus{Identity: "alice", Status: "online"}, statuses[0])
	req.Equal(event.UserStatus{Identity: "alice", Status: "offline"}, statuses[1])
}

func TestNotifier_NotifyTyping(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	notifier := NewNotifier(slog.Default(), registry)
	ctx := context.Background()

	bob := &captureSink{}
	registry.Register(domain.Connection{ID: "c2", Identity: "bob"}, bob)

	notifier.NotifyTyping(ctx, "alice", "bob", true)
	notifier.NotifyTyping(ctx, "alice", "bob", false)
	// Fire and forget: an absent recipient is not an error.
	notifier.NotifyTyping(ctx, "alice", "ghost", true)

	typing := bob.named("user_typing")
	req.Len(typing, 1)
	req.Equal(event.UserTyping{Identity: "alice"}, typing[0])
	req.Len(bob.named("user_stop_typing"), 1)
}
