// internal/power/wakelock.go
package power

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Lock is one named CPU wake resource.
type Lock interface {
	Acquire() error
	Release() error
	Held() bool
}

// Locker hands out wake locks.
type Locker interface {
	NewLock(tag string) Lock
}

// ---- NO-OP ----

// Nop is a Locker for hosts without a wake lock facility.
// Its locks track the held flag only.
var Nop Locker = nopLocker{}

type nopLocker struct{}

func (nopLocker) NewLock(tag string) Lock { return &nopLock{} }

type nopLock struct {
	mu   sync.Mutex
	held bool
}

func (l *nopLock) Acquire() error {
	l.mu.Lock()
	l.held = true
	l.mu.Unlock()
	return nil
}

func (l *nopLock) Release() error {
	l.mu.Lock()
	l.held = false
	l.mu.Unlock()
	return nil
}

func (l *nopLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// ---- SYSFS ----

// DefaultSysfsDir is where the kernel exposes wake_lock and wake_unlock.
const DefaultSysfsDir = "/sys/power"

// Sysfs implements Locker on top of the Linux userspace wakelock
// interface (CONFIG_PM_WAKELOCKS).
type Sysfs struct {
	Dir string
}

// NewLock returns a lock named after tag. Whitespace is not allowed in
// wakelock names and is replaced.
func (s Sysfs) NewLock(tag string) Lock {
	dir := s.Dir
	if dir == "" {
		dir = DefaultSysfsDir
	}
	return &sysfsLock{
		dir:  dir,
		name: sanitizeName(tag),
	}
}

type sysfsLock struct {
	dir  string
	name string

	mu   sync.Mutex
	held bool
}

func (l *sysfsLock) Acquire() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return nil
	}
	if err := writeControl(filepath.Join(l.dir, "wake_lock"), l.name); err != nil {
		return fmt.Errorf("power: acquire %q: %w", l.name, err)
	}
	l.held = true
	return nil
}

func (l *sysfsLock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return nil
	}
	if err := writeControl(filepath.Join(l.dir, "wake_unlock"), l.name); err != nil {
		return fmt.Errorf("power: release %q: %w", l.name, err)
	}
	l.held = false
	return nil
}

func (l *sysfsLock) Held() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

func writeControl(path, name string) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	_, werr := f.WriteString(name)
	cerr := f.Close()
	return errors.Join(werr, cerr)
}

func sanitizeName(tag string) string {
	if tag == "" {
		return "probe"
	}
	return strings.Map(func(r rune) rune {
		if r <= ' ' || r == 0x7F {
			return '_'
		}
		return r
	}, tag)
}
