// Package domain contains core concepts of the realtime core.
// This file defines Message records and the delivery-status lifecycle.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageStatus is one milestone of the delivery lifecycle. Statuses
// are totally ordered and may only ever move forward.
type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

var statusRank = map[MessageStatus]int{
	StatusPending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Valid reports whether s is a known status.
func (s MessageStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanAdvance reports whether a transition from s to next moves strictly
// forward along pending -> sent -> delivered -> read. Skipping
// intermediate milestones is allowed (read implies delivered), going
// back never is.
func (s MessageStatus) CanAdvance(next MessageStatus) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to > from
}

// Message is one chat message between two identities.
type Message struct {
	ID          uuid.UUID
	SenderID    string
	RecipientID string
	Body        string
	CreatedAt   time.Time
	Status      MessageStatus
}
