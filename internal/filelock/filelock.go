// Package filelock provides a named reader/upgradable/writer lock shared by
// every process on the host that opens the same name in the same directory.
//
// The lock is emulated with three advisory flock(2) files:
//
//	<name>.gate  held exclusively by the upgradable or exclusive holder
//	<name>.rw    held shared by readers, exclusively by the writer
//	<name>.turn  held exclusively while a writer waits for rw
//
// Upgradable holders therefore exclude each other and writers, yet coexist
// with readers. Upgrading takes rw exclusively while the gate is still held,
// which blocks until current readers leave and keeps other upgraders out.
// Readers pass through turn before taking rw, so once an upgrade or a writer
// is waiting no new reader gets in ahead of it.
package filelock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	ErrInvalidTransition = errors.New("invalid lock transition")
	ErrWouldBlock        = errors.New("lock is held elsewhere")
	ErrClosed            = errors.New("lock is closed")
	ErrUnsupported       = errors.New("named locks are not supported on this platform")
)

// Mode is the access currently held through a Mutex.
type Mode int

const (
	Unlocked Mode = iota
	Shared
	Upgradable
	Exclusive
)

func (m Mode) String() string {
	switch m {
	case Unlocked:
		return "unlocked"
	case Shared:
		return "shared"
	case Upgradable:
		return "upgradable"
	case Exclusive:
		return "exclusive"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Mutex is one handle on a named lock. A handle holds at most one mode at a
// time and is not reentrant. Separate handles conflict with each other even
// inside one process, which is how tests model cooperating processes.
//
// Calls on one handle are serialized: while a blocking acquisition is pending,
// Mode and Close on the same handle wait for it to return.
type Mutex struct {
	name string

	mu     sync.Mutex
	mode   Mode
	gate   *os.File
	rw     *os.File
	turn   *os.File
	closed bool
}

// Open creates or opens the lock files for name inside dir. An empty dir
// means os.TempDir().
func Open(name, dir string) (*Mutex, error) {
	if !platformSupported {
		return nil, ErrUnsupported
	}
	if name == "" {
		return nil, errors.New("lock name is required")
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("lock dir %s: %w", dir, err)
	}

	gate, err := openLockFile(filepath.Join(dir, name+".gate"))
	if err != nil {
		return nil, err
	}
	rw, err := openLockFile(filepath.Join(dir, name+".rw"))
	if err != nil {
		_ = gate.Close()
		return nil, err
	}
	turn, err := openLockFile(filepath.Join(dir, name+".turn"))
	if err != nil {
		_ = errors.Join(rw.Close(), gate.Close())
		return nil, err
	}
	return &Mutex{name: name, gate: gate, rw: rw, turn: turn}, nil
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	return f, nil
}

func (m *Mutex) Name() string {
	return m.name
}

func (m *Mutex) Mode() Mode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mode
}

func (m *Mutex) LockShared() error {
	return m.transition(Unlocked, Shared, func() error {
		return m.takeRW(lockShared, true)
	})
}

func (m *Mutex) TryLockShared() error {
	return m.transition(Unlocked, Shared, func() error {
		return m.takeRW(lockShared, false)
	})
}

func (m *Mutex) UnlockShared() error {
	return m.transition(Shared, Unlocked, func() error {
		return unlockFile(m.rw)
	})
}

func (m *Mutex) LockUpgradable() error {
	return m.transition(Unlocked, Upgradable, func() error {
		return lockFile(m.gate, lockExclusive, true)
	})
}

func (m *Mutex) TryLockUpgradable() error {
	return m.transition(Unlocked, Upgradable, func() error {
		return lockFile(m.gate, lockExclusive, false)
	})
}

func (m *Mutex) UnlockUpgradable() error {
	return m.transition(Upgradable, Unlocked, func() error {
		return unlockFile(m.gate)
	})
}

// UpgradeToExclusive turns an upgradable hold into an exclusive one, waiting
// for all shared holders to release.
func (m *Mutex) UpgradeToExclusive() error {
	return m.transition(Upgradable, Exclusive, func() error {
		return m.takeRW(lockExclusive, true)
	})
}

func (m *Mutex) Lock() error {
	return m.transition(Unlocked, Exclusive, func() error {
		return m.lockBoth(true)
	})
}

func (m *Mutex) TryLock() error {
	return m.transition(Unlocked, Exclusive, func() error {
		return m.lockBoth(false)
	})
}

func (m *Mutex) Unlock() error {
	return m.transition(Exclusive, Unlocked, func() error {
		return errors.Join(unlockFile(m.rw), unlockFile(m.gate))
	})
}

// DowngradeToUpgradable keeps other writers out but readers may enter again.
func (m *Mutex) DowngradeToUpgradable() error {
	return m.transition(Exclusive, Upgradable, func() error {
		return unlockFile(m.rw)
	})
}

// DowngradeToShared converts an exclusive hold into a shared one. The gate is
// released only after the shared hold is in place, so no writer can slip in.
func (m *Mutex) DowngradeToShared() error {
	return m.transition(Exclusive, Shared, func() error {
		if err := lockFile(m.rw, lockShared, true); err != nil {
			return err
		}
		return unlockFile(m.gate)
	})
}

// Close releases whatever is held and closes the lock files.
func (m *Mutex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.mode = Unlocked
	// Closing the descriptors drops any flock held through them.
	return errors.Join(m.rw.Close(), m.turn.Close(), m.gate.Close())
}

func (m *Mutex) transition(from, to Mode, apply func() error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.mode != from {
		return fmt.Errorf("%w: %s -> %s while %s", ErrInvalidTransition, from, to, m.mode)
	}
	if err := apply(); err != nil {
		return err
	}
	m.mode = to
	return nil
}

func (m *Mutex) lockBoth(block bool) error {
	if err := lockFile(m.gate, lockExclusive, block); err != nil {
		return err
	}
	if err := m.takeRW(lockExclusive, block); err != nil {
		_ = unlockFile(m.gate)
		return err
	}
	return nil
}

// takeRW acquires rw through turn. Readers take turn shared and writers take
// it exclusively, and turn is released as soon as rw is held.
func (m *Mutex) takeRW(kind lockKind, block bool) error {
	if err := lockFile(m.turn, kind, block); err != nil {
		return err
	}
	err := lockFile(m.rw, kind, block)
	return errors.Join(err, unlockFile(m.turn))
}
