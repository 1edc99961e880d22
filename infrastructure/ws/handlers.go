package ws

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/services"
)

type chatHistoryRequest struct {
	PeerID string `json:"peerId" validate:"required"`
	Limit  int    `json:"limit" validate:"omitempty,gt=0"`
}

type sendMessageRequest struct {
	RecipientID string `json:"recipientId"`
	Body        string `json:"body"`
}

type messageRefRequest struct {
	MessageID string `json:"messageId" validate:"required,uuid"`
}

type typingRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type callInitiateRequest struct {
	RecipientID string `json:"recipientId" validate:"required"`
}

type callRefRequest struct {
	CallID string `json:"callId" validate:"required,uuid"`
}

type signalRequest struct {
	CallID  string          `json:"callId" validate:"required,uuid"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

type callHistoryRequest struct {
	Limit int `json:"limit" validate:"omitempty,gt=0"`
}

// RegisterHandlers binds every inbound session event to its service
// operation.
func RegisterHandlers(
	router *Router,
	registry contract.Registry,
	messages *services.MessageService,
	calls *services.CallService,
	historyLimit int,
) {
	router.Handle("get_users", func(ctx context.Context, sess *Session, _ Envelope) error {
		snapshot := registry.Snapshot()
		return sess.Push(ctx, event.UsersList{
			Users: lo.Map(snapshot, func(e domain.PresenceEntry, _ int) event.PresencePayload {
				return event.PresencePayload{
					Identity:    e.Identity,
					DisplayName: e.DisplayName,
					Online:      e.Online,
				}
			}),
		})
	})

	router.Handle("get_chat_history", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[chatHistoryRequest](router, env)
		if err != nil {
			return err
		}
		limit := req.Limit
		if limit <= 0 || limit > historyLimit {
			limit = historyLimit
		}
		history, err := messages.History(sess.Connection(), req.PeerID, limit)
		if err != nil {
			return err
		}
		return sess.Push(ctx, event.ReceiveMessage{Messages: event.FromMessages(history)})
	})

	// No payload validation up front: the pipeline itself checks the
	// rate guard before anything else, then rejects empty fields.
	router.Handle("send_message", func(ctx context.Context, sess *Session, env Envelope) error {
		var req sendMessageRequest
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &req); err != nil {
				return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
			}
		}
		_, err := messages.Send(ctx, sess.Connection(), sess.Sink(), req.RecipientID, req.Body)
		return err
	})

	router.Handle("message_seen", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[messageRefRequest](router, env)
		if err != nil {
			return err
		}
		_, err = messages.MarkRead(ctx, sess.Connection(), uuid.MustParse(req.MessageID))
		return err
	})

	router.Handle("delete_message", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[messageRefRequest](router, env)
		if err != nil {
			return err
		}
		id := uuid.MustParse(req.MessageID)
		if err := messages.Delete(ctx, sess.Connection(), id); err != nil {
			return err
		}
		return sess.Push(ctx, event.MessageDeleted{MessageID: id.String()})
	})

	router.Handle("typing", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[typingRequest](router, env)
		if err != nil {
			return err
		}
		messages.SetTyping(ctx, sess.Connection(), req.RecipientID, true)
		return nil
	})

	router.Handle("stop_typing", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[typingRequest](router, env)
		if err != nil {
			return err
		}
		messages.SetTyping(ctx, sess.Connection(), req.RecipientID, false)
		return nil
	})

	router.Handle("call:initiate", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[callInitiateRequest](router, env)
		if err != nil {
			return err
		}
		_, err = calls.Initiate(ctx, sess.Connection(), req.RecipientID)
		return err
	})

	router.Handle("call:accept", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[callRefRequest](router, env)
		if err != nil {
			return err
		}
		_, err = calls.Accept(ctx, sess.Connection(), uuid.MustParse(req.CallID))
		return err
	})

	router.Handle("call:reject", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[callRefRequest](router, env)
		if err != nil {
			return err
		}
		_, err = calls.Reject(ctx, sess.Connection(), uuid.MustParse(req.CallID))
		return err
	})

	router.Handle("call:end", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[callRefRequest](router, env)
		if err != nil {
			return err
		}
		_, err = calls.End(ctx, sess.Connection(), uuid.MustParse(req.CallID))
		return err
	})

	router.Handle("get_call_history", func(ctx context.Context, sess *Session, env Envelope) error {
		req, err := decode[callHistoryRequest](router, env)
		if err != nil {
			return err
		}
		limit := req.Limit
		if limit <= 0 || limit > historyLimit {
			limit = historyLimit
		}
		history, err := calls.History(sess.Connection(), limit)
		if err != nil {
			return err
		}
		return sess.Push(ctx, event.CallHistory{
			Calls: lo.Map(history, func(c domain.Call, _ int) event.CallPayload {
				return event.FromCall(c)
			}),
		})
	})

	for _, kind := range []event.SignalKind{event.SignalOffer, event.SignalAnswer, event.SignalCandidate} {
		kind := kind
		router.Handle(string(kind), func(ctx context.Context, sess *Session, env Envelope) error {
			req, err := decode[signalRequest](router, env)
			if err != nil {
				return err
			}
			return calls.Relay(ctx, kind, sess.Connection(), uuid.MustParse(req.CallID), req.Payload)
		})
	}
}

// decode unmarshals and validates an inbound payload.
func decode[T any](router *Router, env Envelope) (T, error) {
	var req T
	if len(env.Data) == 0 {
		// Zero-value payloads are fine for requests with no required
		// fields; validation below catches the rest.
		if err := router.validate.Struct(&req); err != nil {
			return req, fmt.Errorf("%w: missing payload", errors.ErrInvalidRequest)
		}
		return req, nil
	}
	if err := json.Unmarshal(env.Data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	if err := router.validate.Struct(&req); err != nil {
		return req, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return req, nil
}
