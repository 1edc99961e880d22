package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/errors"
	"realtime-core/observability"
)

// Gatekeeper admits inbound connections after credential verification
// and retires them on teardown. It is the only writer of the presence
// registry.
type Gatekeeper struct {
	log       *slog.Logger
	verifier  contract.CredentialVerifier
	accounts  contract.AccountDirectory
	registry  contract.Registry
	notifier  *Notifier
	observers []contract.DisconnectObserver
	now       func() time.Time
}

func NewGatekeeper(
	log *slog.Logger,
	verifier contract.CredentialVerifier,
	accounts contract.AccountDirectory,
	registry contract.Registry,
	notifier *Notifier,
) *Gatekeeper {
	return &Gatekeeper{
		log:      log,
		verifier: verifier,
		accounts: accounts,
		registry: registry,
		notifier: notifier,
		now:      time.Now,
	}
}

// AddDisconnectObserver registers a component to be told when an
// identity's connection is effectively torn down.
func (g *Gatekeeper) AddDisconnectObserver(obs ...contract.DisconnectObserver) {
	g.observers = append(g.observers, obs...)
}

// Admit verifies the presented credential, binds a new connection to
// the resolved identity and registers it. Any verification or
// resolution failure is an authentication error: the connection must be
// closed before a single event is accepted.
func (g *Gatekeeper) Admit(ctx context.Context, credential string, sink contract.EventSink) (domain.Connection, error) {
	if credential == "" {
		return domain.Connection{}, fmt.Errorf("%w: missing credential", errors.ErrAuthentication)
	}

	identity, err := g.verifier.Verify(credential)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: %v", errors.ErrAuthentication, err)
	}

	profile, err := g.accounts.Resolve(identity)
	if err != nil {
		return domain.Connection{}, fmt.Errorf("%w: unknown identity %q", errors.ErrAuthentication, identity)
	}

	conn := domain.Connection{
		ID:          uuid.NewString(),
		Identity:    identity,
		DisplayName: profile.DisplayName,
		CreatedAt:   g.now(),
	}

	if evicted, ok := g.registry.Register(conn, sink); ok {
		g.log.Info("connection evicted by newer admission",
			"identity", identity,
			"evicted_connection", evicted,
			"connection", conn.ID)
	}

	// Projection update is best effort: presence truth lives in the
	// registry, the stored flag is a convenience for offline readers.
	if err := g.accounts.SetPresence(identity, true, g.now()); err != nil {
		g.log.Warn("presence projection update failed", "identity", identity, "error", err)
	}

	observability.OnlineUsers.Set(float64(len(g.registry.Snapshot())))
	g.notifier.BroadcastPresence(ctx)
	g.notifier.BroadcastStatus(ctx, identity, true)

	g.log.Info("connection admitted", "identity", identity, "connection", conn.ID)
	return conn, nil
}

// Retire unregisters conn and broadcasts the updated snapshot. It is
// idempotent: a second call for the same connection, or a call for a
// connection already evicted by a newer admission, does nothing.
func (g *Gatekeeper) Retire(ctx context.Context, conn domain.Connection) {
	if !g.registry.Unregister(conn.Identity, conn.ID) {
		return
	}

	if err := g.accounts.SetPresence(conn.Identity, false, g.now()); err != nil {
		g.log.Warn("presence projection update failed", "identity", conn.Identity, "error", err)
	}

	observability.OnlineUsers.Set(float64(len(g.registry.Snapshot())))
	g.notifier.BroadcastPresence(ctx)
	g.notifier.BroadcastStatus(ctx, conn.Identity, false)

	for _, obs := range g.observers {
		obs.HandleDisconnect(ctx, conn.Identity)
	}

	g.log.Info("connection retired", "identity", conn.Identity, "connection", conn.ID)
}
