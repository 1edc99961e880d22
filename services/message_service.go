// Package services implements the message delivery pipeline and the
// call signaling coordinator on top of the presence registry and the
// persistence contracts.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/moderation"
	"realtime-core/observability"
	"realtime-core/runtime"
)

// MessageService owns the message status lifecycle. Persistence always
// precedes routing: a message no store accepted is never emitted to the
// recipient.
type MessageService struct {
	log      *slog.Logger
	registry contract.Registry
	guard    contract.RateGuard
	messages contract.MessageRepository
	notifier *runtime.Notifier
	censor   *moderation.Censor
	now      func() time.Time
}

func NewMessageService(
	log *slog.Logger,
	registry contract.Registry,
	guard contract.RateGuard,
	messages contract.MessageRepository,
	notifier *runtime.Notifier,
	censor *moderation.Censor,
) *MessageService {
	return &MessageService{
		log:      log,
		registry: registry,
		guard:    guard,
		messages: messages,
		notifier: notifier,
		censor:   censor,
		now:      time.Now,
	}
}

// Send accepts one outbound message from sender. The returned message
// reflects the final status the pipeline reached (pending, sent or
// delivered); the acknowledgment is pushed to senderSink before any
// delivery attempt.
func (s *MessageService) Send(ctx context.Context, sender domain.Connection, senderSink contract.EventSink, recipientID, body string) (domain.Message, error) {
	if !s.guard.Allow(sender.ID) {
		observability.RateLimited.Inc()
		return domain.Message{}, fmt.Errorf("%w: connection %s", errors.ErrRateLimited, sender.ID)
	}
	if recipientID == "" || strings.TrimSpace(body) == "" {
		return domain.Message{}, fmt.Errorf("%w: recipient and body are required", errors.ErrInvalidRequest)
	}

	body = s.censor.Apply(body)

	route, live := s.registry.Lookup(recipientID)

	status := domain.StatusPending
	if live {
		status = domain.StatusSent
	}
	msg := domain.Message{
		ID:          uuid.New(),
		SenderID:    sender.Identity,
		RecipientID: recipientID,
		Body:        body,
		CreatedAt:   s.now().UTC(),
		Status:      status,
	}

	// Persist before any emission: an unrecorded message must never
	// reach a peer.
	if err := s.messages.Store(msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.MessagesTotal.WithLabelValues(string(status)).Inc()

	s.emit(ctx, senderSink, event.ReceiveMessage{Messages: []event.MessagePayload{event.FromMessage(msg)}})

	if !live {
		return msg, nil
	}

	if err := route.Sink.Consume(ctx, event.ReceiveMessage{Messages: []event.MessagePayload{event.FromMessage(msg)}}); err != nil {
		// Routing failed after a successful persist: the message simply
		// stays at sent and will surface through history.
		s.log.Warn("live delivery failed", "message", msg.ID, "recipient", recipientID, "error", err)
		return msg, nil
	}

	delivered, err := s.messages.UpdateStatus(msg.ID, domain.StatusDelivered)
	if err != nil {
		s.log.Error("failed to record delivery", "message", msg.ID, "error", err)
		return msg, nil
	}
	s.emit(ctx, senderSink, event.MessageStatus{MessageID: msg.ID.String(), Status: string(domain.StatusDelivered)})
	return delivered, nil
}

// MarkRead records the recipient's explicit read acknowledgment. Read
// implies delivered: a message still pending or sent moves directly to
// read. The original sender is notified if live.
func (s *MessageService) MarkRead(ctx context.Context, reader domain.Connection, messageID uuid.UUID) (domain.Message, error) {
	msg, err := s.messages.Get(messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.RecipientID != reader.Identity {
		return domain.Message{}, fmt.Errorf("%w: message %s is not addressed to %s", errors.ErrForbidden, messageID, reader.Identity)
	}
	if msg.Status == domain.StatusRead {
		return msg, nil
	}

	updated, err := s.messages.UpdateStatus(messageID, domain.StatusRead)
	if err != nil {
		return domain.Message{}, err
	}

	if route, ok := s.registry.Lookup(updated.SenderID); ok {
		s.emit(ctx, route.Sink, event.MessageStatus{MessageID: messageID.String(), Status: string(domain.StatusRead)})
	}
	return updated, nil
}

// History returns the most recent limit messages between the two
// identities in ascending chronological order. Retrieval is read-only;
// marking messages read requires an explicit acknowledgment.
func (s *MessageService) History(requester domain.Connection, peerIdentity string, limit int) ([]domain.Message, error) {
	if peerIdentity == "" {
		return nil, fmt.Errorf("%w: peer identity is required", errors.ErrInvalidRequest)
	}
	messages, err := s.messages.Conversation(requester.Identity, peerIdentity, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return messages, nil
}

// Delete removes a message on behalf of its sender and tells the
// recipient if live.
func (s *MessageService) Delete(ctx context.Context, requester domain.Connection, messageID uuid.UUID) error {
	msg, err := s.messages.Get(messageID)
	if err != nil {
		return err
	}
	if msg.SenderID != requester.Identity {
		return fmt.Errorf("%w: only the sender may delete message %s", errors.ErrForbidden, messageID)
	}
	if err := s.messages.Delete(messageID); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	if route, ok := s.registry.Lookup(msg.RecipientID); ok {
		s.emit(ctx, route.Sink, event.MessageDeleted{MessageID: messageID.String()})
	}
	return nil
}

// SetTyping forwards a typing indicator to the recipient if live.
func (s *MessageService) SetTyping(ctx context.Context, sender domain.Connection, recipientID string, typing bool) {
	s.notifier.NotifyTyping(ctx, sender.Identity, recipientID, typing)
}

func (s *MessageService) emit(ctx context.Context, sink contract.EventSink, e event.Event) {
	if err := sink.Consume(ctx, e); err != nil {
		s.log.Warn("event emission failed", "event", e.Name(), "error", err)
	}
}
