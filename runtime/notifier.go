package runtime

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
)

// Notifier pushes presence and typing events to live connections. It is
// stateless apart from reading the registry; delivery failures are
// logged and never propagate.
type Notifier struct {
	log      *slog.Logger
	registry contract.Registry
}

func NewNotifier(log *slog.Logger, registry contract.Registry) *Notifier {
	return &Notifier{log: log, registry: registry}
}

// BroadcastPresence pushes the full presence snapshot to every live
// connection.
func (n *Notifier) BroadcastPresence(ctx context.Context) {
	snapshot := n.registry.Snapshot()
	list := event.UsersList{
		Users: lo.Map(snapshot, func(e domain.PresenceEntry, _ int) event.PresencePayload {
			return event.PresencePayload{
				Identity:    e.Identity,
				DisplayName: e.DisplayName,
				Online:      e.Online,
			}
		}),
	}
	for _, sink := range n.registry.Sinks() {
		if err := sink.Consume(ctx, list); err != nil {
			n.log.Warn("presence broadcast dropped", "error", err)
		}
	}
}

// BroadcastStatus announces one identity's transition to every live
// connection.
func (n *Notifier) BroadcastStatus(ctx context.Context, identity string, online bool) {
	status := "offline"
	if online {
		status = "online"
	}
	evt := event.UserStatus{Identity: identity, Status: status}
	for _, sink := range n.registry.Sinks() {
		if err := sink.Consume(ctx, evt); err != nil {
			n.log.Warn("status broadcast dropped", "identity", identity, "error", err)
		}
	}
}

// NotifyTyping forwards a typing indicator to the recipient if live.
// Fire and forget: no persistence, no error when the recipient is
// absent.
func (n *Notifier) NotifyTyping(ctx context.Context, senderIdentity, recipientIdentity string, typing bool) {
	route, ok := n.registry.Lookup(recipientIdentity)
	if !ok {
		return
	}
	var evt event.Event
	if typing {
		evt = event.UserTyping{Identity: senderIdentity}
	} else {
		evt = event.UserStopTyping{Identity: senderIdentity}
	}
	if err := route.Sink.Consume(ctx, evt); err != nil {
		n.log.Warn("typing indicator dropped", "recipient", recipientIdentity, "error", err)
	}
}
