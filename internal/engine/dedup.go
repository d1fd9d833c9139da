package engine

import (
	"time"

	"trade-mirror-bot/internal/types"
)

// DefaultAcceptWindow is how far an event time may sit from the cycle time and still be mirrored.
const DefaultAcceptWindow = 2 * time.Minute

// Deduplicator remembers every event key a task has acted on.
// It is owned by a single task goroutine and is not safe for concurrent use.
type Deduplicator struct {
	window    time.Duration
	retention time.Duration
	seen      map[types.EventKey]time.Time
}

type DedupOption func(*Deduplicator)

// WithRetention drops keys whose event time is older than cycleTime-d.
// Without it the key set only grows for the lifetime of the task.
func WithRetention(d time.Duration) DedupOption {
	return func(dd *Deduplicator) {
		dd.retention = d
	}
}

func NewDeduplicator(window time.Duration, opts ...DedupOption) *Deduplicator {
	if window <= 0 {
		window = DefaultAcceptWindow
	}
	d := &Deduplicator{
		window: window,
		seen:   make(map[types.EventKey]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Accept reports whether ev should be forwarded, recording its key if so.
// Events outside the window are dropped regardless of novelty.
func (d *Deduplicator) Accept(ev types.TradeEvent, cycleTime time.Time) bool {
	diff := cycleTime.Sub(ev.Time)
	if diff < 0 {
		diff = -diff
	}
	if diff > d.window {
		return false
	}

	key := ev.Key()
	if _, ok := d.seen[key]; ok {
		return false
	}
	d.seen[key] = ev.Time
	return true
}

// Evict applies the retention policy; it is a no-op when retention is unset.
func (d *Deduplicator) Evict(cycleTime time.Time) int {
	if d.retention <= 0 {
		return 0
	}
	cutoff := cycleTime.Add(-d.retention)
	n := 0
	for k, t := range d.seen {
		if t.Before(cutoff) {
			delete(d.seen, k)
			n++
		}
	}
	return n
}

func (d *Deduplicator) Len() int {
	return len(d.seen)
}
