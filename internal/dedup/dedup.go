// Package dedup suppresses repeat alerts for an opportunity that persists
// across scan cycles. An opportunity is identified by its fingerprint; a
// fingerprint already alerted within the window stays quiet.
package dedup

import (
	"sync"
	"time"
)

type entry struct {
	lastAlert  time.Time
	eventStart time.Time
}

// Deduplicator tracks recently alerted fingerprints. Safe for concurrent use.
type Deduplicator struct {
	mu      sync.Mutex
	window  time.Duration
	entries map[string]entry
}

// New creates a deduplicator with the given suppression window.
func New(window time.Duration) *Deduplicator {
	return &Deduplicator{
		window:  window,
		entries: make(map[string]entry),
	}
}

// ShouldAlert reports whether the fingerprint is eligible for an alert: not
// seen before, or last alerted at least one window ago.
func (d *Deduplicator) ShouldAlert(fingerprint string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[fingerprint]
	if !ok {
		return true
	}
	return now.Sub(e.lastAlert) >= d.window
}

// Record marks the fingerprint as alerted at now. eventStart lets Sweep drop
// the entry once the event has begun.
func (d *Deduplicator) Record(fingerprint string, now, eventStart time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[fingerprint] = entry{lastAlert: now, eventStart: eventStart}
}

// Sweep drops entries whose event has started, plus a backstop for entries
// idle for ten windows (events with no recorded start time).
func (d *Deduplicator) Sweep(now time.Time) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for fp, e := range d.entries {
		stale := (!e.eventStart.IsZero() && now.After(e.eventStart)) ||
			now.Sub(e.lastAlert) >= 10*d.window
		if stale {
			delete(d.entries, fp)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked fingerprints.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.entries)
}
