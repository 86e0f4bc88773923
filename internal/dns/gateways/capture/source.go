// Package capture feeds DNS query events into the detector. Sources handle
// sockets, framing, and wire decoding so the detector only sees domain events.
package capture

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/haukened/exfil-watch/internal/dns/domain"
)

// ErrAlreadyRunning is returned by Start on a source that is already started.
var ErrAlreadyRunning = errors.New("capture source already running")

// Source produces query events on a channel.
type Source interface {
	// Start begins capturing and returns once the source is listening.
	// Events are sent on out until Stop is called or ctx is cancelled.
	Start(ctx context.Context, out chan<- domain.QueryEvent) error

	// Stop halts capture and waits for in-flight sends to finish. After Stop
	// returns the source no longer touches out.
	Stop() error

	// Address describes where the source reads from.
	Address() string

	// Stats returns the source counters.
	Stats() Stats
}

// SourceType names a capture implementation.
type SourceType string

const (
	// SourceUDP listens for mirrored DNS query packets on a UDP socket.
	SourceUDP SourceType = "udp"
	// SourceDnstap accepts dnstap frame streams on a unix socket.
	SourceDnstap SourceType = "dnstap"
	// SourceReplay reads recorded events from a text file.
	SourceReplay SourceType = "replay"
)

// Stats are cumulative per-source counters.
type Stats struct {
	Received  uint64 // events delivered to the queue
	Dropped   uint64 // events discarded because the queue was full
	Malformed uint64 // inputs that could not be turned into an event
}

type counters struct {
	received  atomic.Uint64
	dropped   atomic.Uint64
	malformed atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Received:  c.received.Load(),
		Dropped:   c.dropped.Load(),
		Malformed: c.malformed.Load(),
	}
}

// offer hands ev to out without blocking; a full queue drops the event.
func (c *counters) offer(out chan<- domain.QueryEvent, ev domain.QueryEvent) bool {
	select {
	case out <- ev:
		c.received.Add(1)
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}
