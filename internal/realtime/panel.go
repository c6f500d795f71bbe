package realtime

import (
	"sync"

	"clinic-queue/internal/models"
)

// PanelTracker remembers the newest call a panel reader has seen, so the
// flash and sound cue fire once per new call instead of on every
// redelivery of the same log.
type PanelTracker struct {
	mu     sync.Mutex
	lastID string
	primed bool
}

// Observe records calls (newest first) and reports whether the newest one
// is new to this reader. The first snapshot only primes the tracker: a
// panel that just connected did not witness that call being made.
func (p *PanelTracker) Observe(calls []models.CallRecord) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	newest := ""
	if len(calls) > 0 {
		newest = calls[0].ID
	}

	if !p.primed {
		p.primed = true
		p.lastID = newest
		return false
	}
	if newest == "" || newest == p.lastID {
		p.lastID = newest
		return false
	}
	p.lastID = newest
	return true
}

// LastID - id of the newest call seen so far.
func (p *PanelTracker) LastID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastID
}
