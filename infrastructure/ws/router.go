package ws

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/observability"
)

// HandlerFunc processes one inbound event for an authenticated session.
// A returned error is converted to an error event for that session; it
// never terminates the connection.
type HandlerFunc func(ctx context.Context, sess *Session, env Envelope) error

// Router maps inbound event names to handlers, keeping the state
// machine guards in the services instead of scattered across transport
// callbacks.
type Router struct {
	log      *slog.Logger
	validate *validator.Validate
	handlers map[string]HandlerFunc
}

func NewRouter(log *slog.Logger) *Router {
	return &Router{
		log:      log,
		validate: validator.New(),
		handlers: make(map[string]HandlerFunc),
	}
}

// Handle registers fn for the given event name.
func (r *Router) Handle(name string, fn HandlerFunc) {
	r.handlers[name] = fn
}

// Dispatch routes one inbound envelope. Recoverable failures are
// reported back on the session with a stable code; call-control
// failures use the call:error event so callers can bind them to their
// call UI.
func (r *Router) Dispatch(ctx context.Context, sess *Session, env Envelope) {
	observability.EventsTotal.WithLabelValues(env.Event).Inc()

	handler, ok := r.handlers[env.Event]
	if !ok {
		r.reply(ctx, sess, env.Event, errors.CodeInvalidRequest, "unknown event "+env.Event)
		return
	}

	err := handler(ctx, sess, env)
	if err == nil {
		return
	}

	code, message := errors.Public(err)
	if code == errors.CodeInternal {
		r.log.Error("handler failed",
			"event", env.Event,
			"identity", sess.Connection().Identity,
			"error", err)
	}
	r.reply(ctx, sess, env.Event, code, message)
}

func (r *Router) reply(ctx context.Context, sess *Session, eventName, code, message string) {
	var evt event.Event
	if strings.HasPrefix(eventName, "call:") {
		evt = event.CallError{Code: code, Message: message}
	} else {
		evt = event.Error{Code: code, Message: message}
	}
	if err := sess.Push(ctx, evt); err != nil {
		r.log.Warn("error reply dropped", "event", eventName, "error", err)
	}
}
