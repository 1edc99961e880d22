// Package domain contains core concepts of the realtime core.
// This file defines the account projection visible to this core.
// Accounts are owned by the external account collaborator; only the
// online/lastSeen projection is ever written from here.
package domain

import "time"

// Profile is the read-only view of a user account plus the presence
// projection this core maintains on its behalf.
type Profile struct {
	Identity    string
	DisplayName string
	Online      bool
	LastSeen    time.Time
}
