package domain

import "time"

// Connection is the ephemeral handle for one live duplex session bound
// to an identity. It is never persisted. Exactly one Connection may be
// registered per identity at any instant; a newer admission evicts the
// older registry entry (last connection wins).
type Connection struct {
	ID          string
	Identity    string
	DisplayName string
	CreatedAt   time.Time
}

// PresenceEntry is the registry's record of one admitted identity.
type PresenceEntry struct {
	Identity     string
	ConnectionID string
	DisplayName  string
	Online       bool
}
