// Package events carries errors raised by background cache work to
// whoever presents them.
package events

import (
	"context"
	"sync/atomic"

	gnomecache "github.com/wolfeidau/gnome-cache"
	"github.com/wolfeidau/gnome-cache/telemetry"
)

// DefaultBuffer is the error channel capacity used by NewBus.
const DefaultBuffer = 64

// Reporter receives errors that a caller chose not to fail on.
type Reporter interface {
	Report(err error)
}

// Discard is a Reporter that drops everything.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Report(error) {}

// Bus is a buffered error channel. Report never blocks; when the buffer is
// full the error is dropped and counted.
type Bus struct {
	ch      chan error
	dropped atomic.Int64
}

var _ Reporter = (*Bus)(nil)

// NewBus creates a Bus holding up to size unread errors.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = DefaultBuffer
	}
	return &Bus{ch: make(chan error, size)}
}

// Report queues err. A nil err is ignored.
func (b *Bus) Report(err error) {
	if err == nil {
		return
	}
	select {
	case b.ch <- err:
		telemetry.RecordReportedError(context.Background(), gnomecache.Kind(err), false)
	default:
		b.dropped.Add(1)
		telemetry.RecordReportedError(context.Background(), gnomecache.Kind(err), true)
	}
}

// Errors returns the receive side of the bus.
func (b *Bus) Errors() <-chan error {
	return b.ch
}

// Dropped returns how many errors were discarded because the buffer was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Drain calls fn for each reported error until ctx is done.
func (b *Bus) Drain(ctx context.Context, fn func(error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case err := <-b.ch:
			fn(err)
		}
	}
}
