// Package clock abstracts wall-clock reads so that the store can stamp
// arrivals, calls and completions deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. Production code injects Real(); tests
// inject a Fake.
type Clock interface {
	Now() time.Time
}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fake is a Clock that only moves when told to. Safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
}

// NewFake returns a Fake frozen at initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.current = f.current.Add(d)
	f.mu.Unlock()
}

// Set jumps to t, which may be in the past. Used to simulate skew.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.current = t
	f.mu.Unlock()
}
