// SPDX-License-Identifier: MPL-2.0

// Package clock abstracts wall-clock reads so TTL decisions (cache entries,
// lock sentinels, wrapper freshness) can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

type (
	// Clock is the time source used for every staleness check.
	Clock interface {
		// Now returns the current time.
		Now() time.Time
		// Since returns the time elapsed since t.
		Since(t time.Time) time.Duration
	}

	// Real reads the system clock.
	Real struct{}

	// Fake is a manually advanced clock. Time only moves on Advance or Set.
	Fake struct {
		mu      sync.Mutex
		current time.Time
	}
)

// Now returns the current system time.
func (Real) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (Real) Since(t time.Time) time.Duration { return time.Since(t) }

// NewFake returns a Fake clock set to initial, or to a fixed reference time
// when initial is zero.
func NewFake(initial time.Time) *Fake {
	if initial.IsZero() {
		initial = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	return &Fake{current: initial}
}

// Now returns the fake time.
func (c *Fake) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Since returns the fake time elapsed since t.
func (c *Fake) Since(t time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Sub(t)
}

// Advance moves the fake time forward by d.
func (c *Fake) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Set moves the fake time to t.
func (c *Fake) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = t
}
