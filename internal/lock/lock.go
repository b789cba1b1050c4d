// SPDX-License-Identifier: MPL-2.0

// Package lock serializes cosh invocations across processes with two
// zero-byte sentinel files.
//
// Exactly one of "locked" and "unlocked" exists in the lock directory once the
// mutex has been used. Acquiring renames "unlocked" to "locked" without
// replacing an existing file, and releasing renames it back. Neither file
// existing is a fresh install. Both existing is corruption and is never
// repaired automatically.
package lock

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/i11/cosh/internal/clock"
)

const (
	// LockedName is the sentinel present while the mutex is held.
	LockedName = "locked"
	// UnlockedName is the sentinel present while the mutex is free.
	UnlockedName = "unlocked"

	// DefaultTTL is the age after which a held lock is considered abandoned.
	DefaultTTL = time.Hour
)

const (
	// StateAbsent means neither sentinel exists.
	StateAbsent State = iota
	// StateUnlocked means only the unlocked sentinel exists.
	StateUnlocked
	// StateLocked means only the locked sentinel exists.
	StateLocked
)

var (
	// ErrBusy is returned when another live invocation holds the lock.
	ErrBusy = errors.New("execution lock is held by another invocation")

	// ErrCorrupt is returned when both sentinels exist.
	ErrCorrupt = errors.New("execution lock is corrupt")
)

type (
	// State is the observable state of the sentinel files.
	State int

	// BusyError reports a held, non-stale lock.
	BusyError struct {
		Path string
		Age  time.Duration
		TTL  time.Duration
	}

	// Mutex is a cross-process mutex over a directory. It is not safe for
	// concurrent use by multiple goroutines of one process.
	Mutex struct {
		dir     string
		ttl     time.Duration
		clock   clock.Clock
		logger  *slog.Logger
		// chtimes stamps the locked sentinel.
		chtimes func(name string, atime, mtime time.Time) error
	}

	// Option configures a Mutex.
	Option func(*Mutex)
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUnlocked:
		return "unlocked"
	case StateLocked:
		return "locked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	return fmt.Sprintf("execution lock %s held for %s (considered stale after %s)",
		e.Path, e.Age.Round(time.Second), e.TTL)
}

// Unwrap returns ErrBusy.
func (e *BusyError) Unwrap() error { return ErrBusy }

// WithTTL sets the takeover age.
func WithTTL(ttl time.Duration) Option {
	return func(m *Mutex) {
		m.ttl = ttl
	}
}

// WithClock sets the clock used to stamp and age the locked sentinel.
func WithClock(c clock.Clock) Option {
	return func(m *Mutex) {
		m.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Mutex) {
		m.logger = l
	}
}

// New returns a mutex whose sentinels live in dir.
func New(dir string, opts ...Option) *Mutex {
	m := &Mutex{
		dir:     dir,
		ttl:     DefaultTTL,
		clock:   clock.Real{},
		logger:  slog.Default(),
		chtimes: os.Chtimes,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LockedPath returns the path of the locked sentinel.
func (m *Mutex) LockedPath() string { return filepath.Join(m.dir, LockedName) }

// UnlockedPath returns the path of the unlocked sentinel.
func (m *Mutex) UnlockedPath() string { return filepath.Join(m.dir, UnlockedName) }

// State inspects the sentinels. Both present yields ErrCorrupt.
func (m *Mutex) State() (State, error) {
	locked, err := exists(m.LockedPath())
	if err != nil {
		return StateAbsent, err
	}
	unlocked, err := exists(m.UnlockedPath())
	if err != nil {
		return StateAbsent, err
	}

	switch {
	case locked && unlocked:
		return StateAbsent, m.corrupt()
	case locked:
		return StateLocked, nil
	case unlocked:
		return StateUnlocked, nil
	default:
		return StateAbsent, nil
	}
}

// Lock acquires the mutex. A lock held for longer than the TTL is taken over
// once. A live holder yields a *BusyError.
func (m *Mutex) Lock() error {
	return m.lock(true)
}

func (m *Mutex) lock(takeover bool) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("creating lock directory: %w", err)
	}

	err := renameNoReplace(m.UnlockedPath(), m.LockedPath())
	switch {
	case err == nil:
		return m.stamp()
	case errors.Is(err, fs.ErrExist):
		return m.corrupt()
	case !errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("acquiring execution lock: %w", err)
	}

	info, err := os.Stat(m.LockedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return m.create()
	}
	if err != nil {
		return fmt.Errorf("inspecting execution lock: %w", err)
	}

	age := m.clock.Since(info.ModTime())
	if takeover && age > m.ttl {
		m.logger.Warn("taking over stale execution lock", "path", m.LockedPath(), "age", age.Round(time.Second), "ttl", m.ttl)
		if err := m.Unlock(); err != nil {
			return err
		}
		return m.lock(false)
	}
	return &BusyError{Path: m.LockedPath(), Age: age, TTL: m.ttl}
}

// create makes the locked sentinel on a fresh install.
func (m *Mutex) create() error {
	f, err := os.OpenFile(m.LockedPath(), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return &BusyError{Path: m.LockedPath(), TTL: m.ttl}
	}
	if err != nil {
		return fmt.Errorf("creating execution lock: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("creating execution lock: %w", err)
	}
	return m.stamp()
}

// stamp records the acquisition time as the locked sentinel's mtime and
// releases the sentinel again when that fails.
func (m *Mutex) stamp() error {
	now := m.clock.Now()
	if err := m.chtimes(m.LockedPath(), now, now); err != nil {
		err = fmt.Errorf("stamping execution lock: %w", err)
		if uerr := m.Unlock(); uerr != nil {
			return errors.Join(err, uerr)
		}
		return err
	}
	return nil
}

// Unlock releases the mutex. Releasing a mutex that is not held only logs.
func (m *Mutex) Unlock() error {
	err := renameNoReplace(m.LockedPath(), m.UnlockedPath())
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return m.corrupt()
	case errors.Is(err, fs.ErrNotExist):
		m.logger.Warn("execution lock already unlocked", "path", m.LockedPath())
		return nil
	default:
		return fmt.Errorf("releasing execution lock: %w", err)
	}
}

// WithLock runs fn while holding the mutex and releases it on every return
// path, including cancellation of ctx and panics in fn.
func (m *Mutex) WithLock(ctx context.Context, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.Lock(); err != nil {
		return err
	}
	defer func() {
		if uerr := m.Unlock(); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()
	return fn(ctx)
}

func (m *Mutex) corrupt() error {
	return fmt.Errorf("%w: both %s and %s exist; remove one to recover", ErrCorrupt, m.LockedPath(), m.UnlockedPath())
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("inspecting %s: %w", path, err)
	}
}

// renamePortable emulates a no-replace rename with a check before the rename.
// The check and the rename are not atomic.
func renamePortable(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrExist}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldpath, newpath)
}
