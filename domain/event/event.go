// Package event defines the outbound events pushed to live connections.
// Every event knows its wire name; the transport layer only wraps it in
// an envelope and serializes it.
package event

// Event is anything that can be pushed to a connection's sink.
type Event interface {
	Name() string
}
