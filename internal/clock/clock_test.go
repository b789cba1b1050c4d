// SPDX-License-Identifier: MPL-2.0

package clock

import (
	"testing"
	"time"
)

func TestFake_DefaultsToReferenceTime(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	want := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !c.Now().Equal(want) {
		t.Fatalf("Now() = %v, want %v", c.Now(), want)
	}
}

func TestFake_AdvanceAndSince(t *testing.T) {
	t.Parallel()

	c := NewFake(time.Time{})
	start := c.Now()
	c.Advance(90 * time.Minute)

	if got := c.Since(start); got != 90*time.Minute {
		t.Errorf("Since() = %v, want 90m", got)
	}

	later := start.Add(24 * time.Hour)
	c.Set(later)
	if !c.Now().Equal(later) {
		t.Errorf("Now() after Set = %v, want %v", c.Now(), later)
	}
}

func TestReal_Since(t *testing.T) {
	t.Parallel()

	var c Clock = Real{}
	past := c.Now().Add(-time.Second)
	if c.Since(past) < time.Second {
		t.Errorf("Since() should be at least 1s")
	}
}
