package event

import (
	"encoding/json"
	"time"

	"github.com/samber/lo"

	"realtime-core/domain"
)

// PresencePayload is the wire shape of one presence entry.
type PresencePayload struct {
	Identity    string `json:"identity"`
	DisplayName string `json:"displayName"`
	Online      bool   `json:"online"`
}

// MessagePayload is the wire shape of one chat message.
type MessagePayload struct {
	ID          string    `json:"id"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Body        string    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
	Status      string    `json:"status"`
}

// CallPayload is the wire shape of one call record.
type CallPayload struct {
	ID                string    `json:"id"`
	CallerID          string    `json:"callerId"`
	RecipientID       string    `json:"recipientId"`
	StartTime         time.Time `json:"startTime"`
	EndTime           time.Time `json:"endTime,omitzero"`
	Status            string    `json:"status"`
	TerminationReason string    `json:"terminationReason,omitempty"`
	DurationSeconds   int64     `json:"durationSeconds"`
}

// FromMessage converts a domain message to its wire shape.
func FromMessage(m domain.Message) MessagePayload {
	return MessagePayload{
		ID:          m.ID.String(),
		SenderID:    m.SenderID,
		RecipientID: m.RecipientID,
		Body:        m.Body,
		CreatedAt:   m.CreatedAt,
		Status:      string(m.Status),
	}
}

// FromMessages converts a slice of domain messages, preserving order.
func FromMessages(messages []domain.Message) []MessagePayload {
	return lo.Map(messages, func(m domain.Message, _ int) MessagePayload {
		return FromMessage(m)
	})
}

// FromCall converts a domain call to its wire shape.
func FromCall(c domain.Call) CallPayload {
	return CallPayload{
		ID:                c.ID.String(),
		CallerID:          c.CallerID,
		RecipientID:       c.RecipientID,
		StartTime:         c.StartTime,
		EndTime:           c.EndTime,
		Status:            string(c.Status),
		TerminationReason: string(c.TerminationReason),
		DurationSeconds:   int64(c.Duration().Seconds()),
	}
}

// UsersList carries the full presence snapshot. It is broadcast on
// every admission and retirement and replied to get_users.
type UsersList struct {
	Users []PresencePayload `json:"users"`
}

func (UsersList) Name() string { return "users_list" }

// UserStatus announces a single identity going online or offline.
type UserStatus struct {
	Identity string `json:"identity"`
	Status   string `json:"status"`
}

func (UserStatus) Name() string { return "user_status" }

// ReceiveMessage carries chat messages in ascending chronological
// order. Send acknowledgments and live deliveries carry one element,
// history replies carry up to the requested limit.
type ReceiveMessage struct {
	Messages []MessagePayload `json:"messages"`
}

func (ReceiveMessage) Name() string { return "receive_message" }

// MessageStatus notifies a sender that one of its messages reached a
// new delivery milestone.
type MessageStatus struct {
	MessageID string `json:"messageId"`
	Status    string `json:"status"`
}

func (MessageStatus) Name() string { return "message_status" }

// MessageDeleted notifies both parties that a message was removed by
// its sender.
type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

func (MessageDeleted) Name() string { return "message_deleted" }

type UserTyping struct {
	Identity string `json:"identity"`
}

func (UserTyping) Name() string { return "user_typing" }

type UserStopTyping struct {
	Identity string `json:"identity"`
}

func (UserStopTyping) Name() string { return "user_stop_typing" }

// CallIncoming rings the recipient of a freshly initiated call.
type CallIncoming struct {
	CallID     string `json:"callId"`
	CallerID   string `json:"callerId"`
	CallerName string `json:"callerName"`
}

func (CallIncoming) Name() string { return "call:incoming" }

type CallAccepted struct {
	CallID string `json:"callId"`
}

func (CallAccepted) Name() string { return "call:accepted" }

type CallRejected struct {
	CallID string `json:"callId"`
}

func (CallRejected) Name() string { return "call:rejected" }

type CallEnded struct {
	CallID string `json:"callId"`
	Reason string `json:"reason"`
}

func (CallEnded) Name() string { return "call:ended" }

// CallError reports a recoverable call failure to the issuing party.
type CallError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (CallError) Name() string { return "call:error" }

// CallHistory carries the most recent calls involving the requester,
// newest first.
type CallHistory struct {
	Calls []CallPayload `json:"calls"`
}

func (CallHistory) Name() string { return "call_history" }

// SignalKind discriminates the three relayed signaling event names.
type SignalKind string

const (
	SignalOffer     SignalKind = "webrtc:offer"
	SignalAnswer    SignalKind = "webrtc:answer"
	SignalCandidate SignalKind = "webrtc:ice-candidate"
)

// Signal relays a call-setup payload verbatim to the other party. The
// payload is an opaque blob; this core never parses it.
type Signal struct {
	Kind     SignalKind      `json:"-"`
	CallID   string          `json:"callId"`
	SenderID string          `json:"senderId"`
	Payload  json.RawMessage `json:"payload"`
}

func (s Signal) Name() string { return string(s.Kind) }

// Error is the generic recoverable-failure event. The code is stable
// and machine readable, the message is for humans.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) Name() string { return "error" }
