// Package ws carries the core's session events over websocket
// connections as JSON envelopes of the form {"event": ..., "data": ...}.
package ws

import (
	"encoding/json"
	"fmt"

	"realtime-core/domain/event"
)

// Envelope is the wire frame for both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// EncodeEvent wraps an outbound event in an envelope and serializes it.
func EncodeEvent(e event.Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("ws: encoding %q payload: %w", e.Name(), err)
	}
	return json.Marshal(Envelope{Event: e.Name(), Data: data})
}

// DecodeEnvelope parses one inbound frame.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("ws: malformed envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("ws: envelope carries no event name")
	}
	return env, nil
}
