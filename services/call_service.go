package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"realtime-core/contract"
	"realtime-core/domain"
	"realtime-core/domain/event"
	"realtime-core/errors"
	"realtime-core/observability"
)

// CallService owns the call state machine and relays signaling payloads
// between the two participants. Transitions are serialized per call id;
// initiations are serialized per caller so the single-active-call guard
// cannot race with itself.
type CallService struct {
	log      *slog.Logger
	registry contract.Registry
	calls    contract.CallRepository
	now      func() time.Time

	byCall   keyedLock
	byCaller keyedLock
}

func NewCallService(log *slog.Logger, registry contract.Registry, calls contract.CallRepository) *CallService {
	return &CallService{
		log:      log,
		registry: registry,
		calls:    calls,
		now:      time.Now,
	}
}

// Initiate starts a call from caller to recipientID. If the recipient
// has no live connection the call is recorded as missed and the caller
// is told the recipient is offline. A caller already involved in a
// non-terminal call may not start another.
func (c *CallService) Initiate(ctx context.Context, caller domain.Connection, recipientID string) (domain.Call, error) {
	if recipientID == "" || recipientID == caller.Identity {
		return domain.Call{}, fmt.Errorf("%w: invalid call recipient", errors.ErrInvalidRequest)
	}

	unlock := c.byCaller.lock(caller.Identity)
	defer unlock()

	active, err := c.calls.ActiveFor(caller.Identity)
	if err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	if len(active) > 0 {
		return domain.Call{}, fmt.Errorf("%w: a call is already in progress", errors.ErrInvalidCallState)
	}

	call := domain.Call{
		ID:          uuid.New(),
		CallerID:    caller.Identity,
		RecipientID: recipientID,
		StartTime:   c.now().UTC(),
		Status:      domain.CallInitiated,
	}

	route, live := c.registry.Lookup(recipientID)
	if !live {
		call.Status = domain.CallMissed
		call.EndTime = call.StartTime
		if err := c.calls.Store(call); err != nil {
			return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
		}
		observability.CallsTotal.WithLabelValues(string(domain.CallMissed)).Inc()
		return call, fmt.Errorf("%w: %s has no live connection", errors.ErrRecipientOffline, recipientID)
	}

	if err := c.calls.Store(call); err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.CallsTotal.WithLabelValues(string(domain.CallInitiated)).Inc()

	incoming := event.CallIncoming{
		CallID:     call.ID.String(),
		CallerID:   caller.Identity,
		CallerName: caller.DisplayName,
	}
	if err := route.Sink.Consume(ctx, incoming); err != nil {
		// The recipient vanished between lookup and ring: treat as
		// missed, same as an offline recipient.
		c.log.Warn("ring delivery failed", "call", call.ID, "recipient", recipientID, "error", err)
		call.Status = domain.CallMissed
		call.EndTime = c.now().UTC()
		if uerr := c.calls.Update(call); uerr != nil {
			c.log.Error("failed to record missed call", "call", call.ID, "error", uerr)
		}
		return call, fmt.Errorf("%w: %s has no live connection", errors.ErrRecipientOffline, recipientID)
	}

	call.Status = domain.CallRinging
	if err := c.calls.Update(call); err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.CallsTotal.WithLabelValues(string(domain.CallRinging)).Inc()
	return call, nil
}

// Accept moves a ringing call to connected and tells the caller.
func (c *CallService) Accept(ctx context.Context, acceptor domain.Connection, callID uuid.UUID) (domain.Call, error) {
	unlock := c.byCall.lock(callID.String())
	defer unlock()

	call, err := c.calls.Get(callID)
	if err != nil {
		return domain.Call{}, err
	}
	if call.RecipientID != acceptor.Identity {
		return domain.Call{}, fmt.Errorf("%w: %s is not the callee of %s", errors.ErrForbidden, acceptor.Identity, callID)
	}
	if !call.Status.CanTransition(domain.CallConnected) {
		return domain.Call{}, fmt.Errorf("%w: cannot accept a call in state %q", errors.ErrInvalidCallState, call.Status)
	}

	call.Status = domain.CallConnected
	if err := c.calls.Update(call); err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.CallsTotal.WithLabelValues(string(domain.CallConnected)).Inc()

	c.notifyParty(ctx, call.CallerID, event.CallAccepted{CallID: callID.String()})
	return call, nil
}

// Reject terminates a ringing call with reason rejected and tells the
// caller.
func (c *CallService) Reject(ctx context.Context, rejector domain.Connection, callID uuid.UUID) (domain.Call, error) {
	unlock := c.byCall.lock(callID.String())
	defer unlock()

	call, err := c.calls.Get(callID)
	if err != nil {
		return domain.Call{}, err
	}
	if call.RecipientID != rejector.Identity {
		return domain.Call{}, fmt.Errorf("%w: %s is not the callee of %s", errors.ErrForbidden, rejector.Identity, callID)
	}
	if !call.Status.CanTransition(domain.CallRejected) {
		return domain.Call{}, fmt.Errorf("%w: cannot reject a call in state %q", errors.ErrInvalidCallState, call.Status)
	}

	call.Status = domain.CallRejected
	call.TerminationReason = domain.ReasonRejected
	call.EndTime = c.now().UTC()
	if err := c.calls.Update(call); err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.CallsTotal.WithLabelValues(string(domain.CallRejected)).Inc()

	c.notifyParty(ctx, call.CallerID, event.CallRejected{CallID: callID.String()})
	return call, nil
}

// End terminates a ringing or connected call. The termination reason
// records which party hung up; the other party is notified if live.
func (c *CallService) End(ctx context.Context, ender domain.Connection, callID uuid.UUID) (domain.Call, error) {
	unlock := c.byCall.lock(callID.String())
	defer unlock()

	call, err := c.calls.Get(callID)
	if err != nil {
		return domain.Call{}, err
	}
	if !call.Involves(ender.Identity) {
		return domain.Call{}, fmt.Errorf("%w: %s is not a participant of %s", errors.ErrForbidden, ender.Identity, callID)
	}
	if !call.Status.CanTransition(domain.CallEnded) {
		return domain.Call{}, fmt.Errorf("%w: cannot end a call in state %q", errors.ErrInvalidCallState, call.Status)
	}

	reason := domain.ReasonRecipientEnded
	if ender.Identity == call.CallerID {
		reason = domain.ReasonCallerEnded
	}
	call.Status = domain.CallEnded
	call.TerminationReason = reason
	call.EndTime = c.now().UTC()
	if err := c.calls.Update(call); err != nil {
		return domain.Call{}, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	observability.CallsTotal.WithLabelValues(string(domain.CallEnded)).Inc()

	c.notifyParty(ctx, call.OtherParty(ender.Identity), event.CallEnded{
		CallID: callID.String(),
		Reason: string(reason),
	})
	return call, nil
}

// Relay forwards a signaling payload verbatim to the call's other
// party. The payload is opaque: its structure belongs to the media
// negotiation layer and is never inspected here. A dropped relay never
// moves the call state machine.
func (c *CallService) Relay(ctx context.Context, kind event.SignalKind, from domain.Connection, callID uuid.UUID, payload json.RawMessage) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty signaling payload", errors.ErrInvalidRequest)
	}

	call, err := c.calls.Get(callID)
	if err != nil {
		return err
	}
	if !call.Involves(from.Identity) {
		return fmt.Errorf("%w: %s is not a participant of %s", errors.ErrForbidden, from.Identity, callID)
	}

	other := call.OtherParty(from.Identity)
	route, live := c.registry.Lookup(other)
	if !live {
		return fmt.Errorf("%w: %s has no live connection", errors.ErrRecipientOffline, other)
	}

	signal := event.Signal{
		Kind:     kind,
		CallID:   callID.String(),
		SenderID: from.Identity,
		Payload:  payload,
	}
	if err := route.Sink.Consume(ctx, signal); err != nil {
		return fmt.Errorf("%w: relay to %s failed", errors.ErrRecipientOffline, other)
	}
	return nil
}

// History returns the most recent limit calls involving the requester,
// newest first.
func (c *CallService) History(requester domain.Connection, limit int) ([]domain.Call, error) {
	calls, err := c.calls.HistoryFor(requester.Identity, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrPersistence, err)
	}
	return calls, nil
}

// HandleDisconnect implements contract.DisconnectObserver: every
// non-terminal call involving the identity is forced to ended with
// reason network_error and the other party is told if live. The scan is
// bounded by the calls actually involving that identity.
func (c *CallService) HandleDisconnect(ctx context.Context, identity string) {
	active, err := c.calls.ActiveFor(identity)
	if err != nil {
		c.log.Error("disconnect sweep failed", "identity", identity, "error", err)
		return
	}

	for _, call := range active {
		unlock := c.byCall.lock(call.ID.String())

		current, err := c.calls.Get(call.ID)
		if err != nil || current.Status.Terminal() {
			unlock()
			continue
		}
		current.Status = domain.CallEnded
		current.TerminationReason = domain.ReasonNetworkError
		current.EndTime = c.now().UTC()
		if err := c.calls.Update(current); err != nil {
			c.log.Error("failed to force-end call", "call", current.ID, "error", err)
			unlock()
			continue
		}
		unlock()

		observability.CallsTotal.WithLabelValues(string(domain.CallEnded)).Inc()
		c.notifyParty(ctx, current.OtherParty(identity), event.CallEnded{
			CallID: current.ID.String(),
			Reason: string(domain.ReasonNetworkError),
		})
		c.log.Info("call ended by disconnect", "call", current.ID, "identity", identity)
	}
}

func (c *CallService) notifyParty(ctx context.Context, identity string, e event.Event) {
	route, ok := c.registry.Lookup(identity)
	if !ok {
		return
	}
	if err := route.Sink.Consume(ctx, e); err != nil {
		c.log.Warn("call notification dropped", "identity", identity, "event", e.Name(), "error", err)
	}
}
