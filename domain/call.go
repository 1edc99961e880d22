// Package domain contains core concepts of the realtime core.
// This file defines Call records and the call-control state machine.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallRinging   CallStatus = "ringing"
	CallConnected CallStatus = "connected"
	CallEnded     CallStatus = "ended"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
)

// TerminationReason explains why a call reached a terminal state. It is
// required once the status is ended or rejected.
type TerminationReason string

const (
	ReasonCallerEnded    TerminationReason = "caller_ended"
	ReasonRecipientEnded TerminationReason = "recipient_ended"
	ReasonRejected       TerminationReason = "rejected"
	ReasonNetworkError   TerminationReason = "network_error"
)

// callTransitions is the only source of truth for legal call-control
// transitions. Signaling relays never appear here: they cannot move the
// state machine.
var callTransitions = map[CallStatus][]CallStatus{
	CallInitiated: {CallRinging, CallMissed},
	CallRinging:   {CallConnected, CallRejected, CallEnded},
	CallConnected: {CallEnded},
}

// CanTransition reports whether the state machine allows moving from s
// to next.
func (s CallStatus) CanTransition(next CallStatus) bool {
	for _, allowed := range callTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s CallStatus) Terminal() bool {
	return len(callTransitions[s]) == 0
}

// Call is one two-party call record.
type Call struct {
	ID                uuid.UUID
	CallerID          string
	RecipientID       string
	StartTime         time.Time
	EndTime           time.Time
	Status            CallStatus
	TerminationReason TerminationReason
}

// Involves reports whether identity is the caller or the recipient.
func (c Call) Involves(identity string) bool {
	return c.CallerID == identity || c.RecipientID == identity
}

// OtherParty returns the participant opposite to identity. The caller
// must ensure identity is a participant first.
func (c Call) OtherParty(identity string) string {
	if c.CallerID == identity {
		return c.RecipientID
	}
	return c.CallerID
}

// Duration is derived from the recorded boundaries, never authored.
func (c Call) Duration() time.Duration {
	if c.EndTime.IsZero() || c.EndTime.Before(c.StartTime) {
		return 0
	}
	return c.EndTime.Sub(c.StartTime)
}
