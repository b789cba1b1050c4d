// SPDX-License-Identifier: MPL-2.0

package lock

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/i11/cosh/internal/clock"
)

func newTestMutex(t *testing.T, clk clock.Clock) *Mutex {
	t.Helper()
	return New(t.TempDir(), WithClock(clk), WithTTL(time.Hour))
}

func assertState(t *testing.T, m *Mutex, want State) {
	t.Helper()

	got, err := m.State()
	if err != nil {
		t.Fatalf("State() unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("State() = %s, want %s", got, want)
	}
}

func TestMutex_FreshInstallCreatesLockedSentinel(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	assertState(t, m, StateAbsent)

	if err := m.Lock(); err != nil {
		t.Fatalf("Lock() unexpected error: %v", err)
	}
	assertState(t, m, StateLocked)

	if err := m.Unlock(); err != nil {
		t.Fatalf("Unlock() unexpected error: %v", err)
	}
	assertState(t, m, StateUnlocked)

	if err := m.Lock(); err != nil {
		t.Fatalf("Lock() from unlocked: %v", err)
	}
	assertState(t, m, StateLocked)
}

func TestMutex_StampFailureReleasesLock(t *testing.T) {
	t.Parallel()

	stampErr := errors.New("read-only file system")
	tests := []struct {
		name  string
		setup func(t *testing.T, m *Mutex)
	}{
		{"fresh install", func(*testing.T, *Mutex) {}},
		{"from unlocked", func(t *testing.T, m *Mutex) {
			if err := m.Lock(); err != nil {
				t.Fatal(err)
			}
			if err := m.Unlock(); err != nil {
				t.Fatal(err)
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := newTestMutex(t, clock.NewFake(time.Time{}))
			tt.setup(t, m)
			m.chtimes = func(string, time.Time, time.Time) error { return stampErr }

			ran := false
			err := m.WithLock(context.Background(), func(context.Context) error {
				ran = true
				return nil
			})
			if !errors.Is(err, stampErr) {
				t.Fatalf("WithLock() error = %v, want %v", err, stampErr)
			}
			if ran {
				t.Error("fn ran without the lock")
			}
			assertState(t, m, StateUnlocked)

			m.chtimes = os.Chtimes
			if err := m.Lock(); err != nil {
				t.Errorf("Lock() after a failed stamp: %v", err)
			}
		})
	}
}

func TestMutex_SecondLockIsBusy(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Time{})
	m := newTestMutex(t, clk)
	if err := m.Lock(); err != nil {
		t.Fatal(err)
	}
	clk.Advance(59 * time.Minute)

	err := m.Lock()
	if !errors.Is(err, ErrBusy) {
		t.Fatalf("second Lock() error = %v, want ErrBusy", err)
	}
	var busy *BusyError
	if !errors.As(err, &busy) {
		t.Fatalf("second Lock() error = %T, want *BusyError", err)
	}
	if busy.Age != 59*time.Minute || busy.TTL != time.Hour {
		t.Errorf("BusyError = %+v", busy)
	}
	assertState(t, m, StateLocked)
}

func TestMutex_StaleLockIsTakenOver(t *testing.T) {
	t.Parallel()

	clk := clock.NewFake(time.Time{})
	dir := t.TempDir()
	holder := New(dir, WithClock(clk))
	if err := holder.Lock(); err != nil {
		t.Fatal(err)
	}

	clk.Advance(DefaultTTL + time.Minute)

	contender := New(dir, WithClock(clk))
	if err := contender.Lock(); err != nil {
		t.Fatalf("Lock() over stale holder: %v", err)
	}
	assertState(t, contender, StateLocked)

	info, err := os.Stat(contender.LockedPath())
	if err != nil {
		t.Fatal(err)
	}
	if age := clk.Since(info.ModTime()); age != 0 {
		t.Errorf("taken over lock has age %s, want a fresh stamp", age)
	}
}

func TestMutex_BothSentinelsAreCorrupt(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	for _, p := range []string{m.LockedPath(), m.UnlockedPath()} {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := m.State(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("State() error = %v, want ErrCorrupt", err)
	}
	if err := m.Lock(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Lock() error = %v, want ErrCorrupt", err)
	}
	if err := m.Unlock(); !errors.Is(err, ErrCorrupt) {
		t.Errorf("Unlock() error = %v, want ErrCorrupt", err)
	}

	// Corruption is never repaired implicitly.
	for _, p := range []string{m.LockedPath(), m.UnlockedPath()} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("sentinel %s disappeared: %v", filepath.Base(p), err)
		}
	}
}

func TestMutex_DoubleUnlockIsNoop(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	if err := m.Lock(); err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := m.Unlock(); err != nil {
			t.Fatalf("Unlock() unexpected error: %v", err)
		}
	}
	assertState(t, m, StateUnlocked)

	fresh := newTestMutex(t, clock.NewFake(time.Time{}))
	if err := fresh.Unlock(); err != nil {
		t.Errorf("Unlock() on fresh install: %v", err)
	}
	assertState(t, fresh, StateAbsent)
}

func TestMutex_WithLockReleasesOnError(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	boom := errors.New("provisioning failed")

	err := m.WithLock(context.Background(), func(context.Context) error {
		assertState(t, m, StateLocked)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("WithLock() error = %v, want %v", err, boom)
	}
	assertState(t, m, StateUnlocked)
}

func TestMutex_WithLockReleasesOnCancellation(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	ctx, cancel := context.WithCancel(context.Background())

	err := m.WithLock(ctx, func(ctx context.Context) error {
		cancel()
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WithLock() error = %v, want context.Canceled", err)
	}
	assertState(t, m, StateUnlocked)

	if err := m.WithLock(ctx, func(context.Context) error {
		t.Error("fn must not run with a canceled context")
		return nil
	}); !errors.Is(err, context.Canceled) {
		t.Errorf("WithLock() on canceled context = %v", err)
	}
}

func TestMutex_WithLockReleasesOnPanic(t *testing.T) {
	t.Parallel()

	m := newTestMutex(t, clock.NewFake(time.Time{}))
	func() {
		defer func() { _ = recover() }()
		_ = m.WithLock(context.Background(), func(context.Context) error {
			panic("interrupted")
		})
	}()
	assertState(t, m, StateUnlocked)
}

func TestRenameNoReplace(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	if err := os.WriteFile(src, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if err := renameNoReplace(src, dst); !errors.Is(err, fs.ErrExist) {
		t.Errorf("renameNoReplace() onto existing file = %v, want fs.ErrExist", err)
	}
	if err := renameNoReplace(filepath.Join(dir, "missing"), filepath.Join(dir, "other")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("renameNoReplace() of missing file = %v, want fs.ErrNotExist", err)
	}
	if err := os.Remove(dst); err != nil {
		t.Fatal(err)
	}
	if err := renameNoReplace(src, dst); err != nil {
		t.Errorf("renameNoReplace() unexpected error: %v", err)
	}
}
