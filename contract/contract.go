//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"time"

	"github.com/google/uuid"

	"realtime-core/domain"
	"realtime-core/domain/event"
)

// EventSink is the outbound half of a live connection. Consume must be
// safe for concurrent use and should fail rather than block forever on
// a slow consumer.
type EventSink interface {
	Consume(ctx context.Context, e event.Event) error
}

// Route is the live delivery target for an identity.
type Route struct {
	ConnectionID string
	Sink         EventSink
}

// Registry tracks the single active connection per identity. All
// operations appear atomic with respect to concurrent admissions for
// the same identity.
type Registry interface {
	// Register binds a connection to its identity, evicting any prior
	// entry for the same identity (last connection wins). It returns
	// the evicted connection id, if any.
	Register(conn domain.Connection, sink EventSink) (evictedConnectionID string, evicted bool)
	// Unregister removes the entry for identity only if it still
	// belongs to connectionID, so a retired connection can never tear
	// down its successor's registration. It reports whether an entry
	// was removed.
	Unregister(identity, connectionID string) bool
	Lookup(identity string) (Route, bool)
	Snapshot() []domain.PresenceEntry
	Sinks() []EventSink
}

// RateGuard bounds how many chat events a connection may emit per
// interval.
type RateGuard interface {
	Allow(connectionID string) bool
	Forget(connectionID string)
}

// CredentialVerifier is the external collaborator checking bearer
// credentials presented at admission time.
type CredentialVerifier interface {
	Verify(credential string) (identity string, err error)
}

// AccountDirectory is the external account collaborator. Resolve is
// read-only; SetPresence updates the online/lastSeen projection.
type AccountDirectory interface {
	Resolve(identity string) (domain.Profile, error)
	SetPresence(identity string, online bool, lastSeen time.Time) error
}

// MessageRepository is the persistence contract for chat messages.
// UpdateStatus enforces the forward-only status order and fails on any
// attempted regression.
type MessageRepository interface {
	Store(message domain.Message) error
	Get(id uuid.UUID) (domain.Message, error)
	UpdateStatus(id uuid.UUID, status domain.MessageStatus) (domain.Message, error)
	Conversation(identityA, identityB string, limit int) ([]domain.Message, error)
	Delete(id uuid.UUID) error
}

// CallRepository is the persistence contract for call records.
type CallRepository interface {
	Store(call domain.Call) error
	Get(id uuid.UUID) (domain.Call, error)
	Update(call domain.Call) error
	// ActiveFor returns the non-terminal calls involving identity.
	ActiveFor(identity string) ([]domain.Call, error)
	// HistoryFor returns the most recent calls involving identity,
	// newest first.
	HistoryFor(identity string, limit int) ([]domain.Call, error)
}

// DisconnectObserver is notified after a connection is retired, once
// per effective teardown.
type DisconnectObserver interface {
	HandleDisconnect(ctx context.Context, identity string)
}
