// Package sink provides EventSink implementations used to bridge the
// core to a connection's write loop.
package sink

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"realtime-core/domain/event"
)

// Buffered decouples event producers from a connection's write pump
// through a bounded channel. A consumer that stops draining makes
// Consume fail after the delivery timeout instead of blocking the
// producer forever.
type Buffered struct {
	log     *slog.Logger
	events  chan event.Event
	timeout time.Duration
}

func NewBuffered(log *slog.Logger, size int, timeout time.Duration) *Buffered {
	if size <= 0 {
		size = 1
	}
	return &Buffered{
		log:     log,
		events:  make(chan event.Event, size),
		timeout: timeout,
	}
}

// Consume implements contract.EventSink.
func (b *Buffered) Consume(ctx context.Context, e event.Event) error {
	select {
	case b.events <- e:
		return nil
	default:
	}

	// Buffer full: wait up to the delivery timeout before giving up.
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		b.log.Warn("event delivery timed out", "event", e.Name())
		return fmt.Errorf("sink: delivery of %q timed out after %s", e.Name(), b.timeout)
	}
}

// Events exposes the drain side for the connection's write pump.
func (b *Buffered) Events() <-chan event.Event {
	return b.events
}
