// internal/probe/guard.go
package probe

import "github.com/tamzrod/probe-runtime/internal/power"

// wakeGuard holds at most one wake lock for a running probe.
// Only used from the run loop.
type wakeGuard struct {
	lock power.Lock
}

// acquire takes a fresh lock tagged with tag. It reports whether the
// guard now holds a lock it did not hold before.
func (g *wakeGuard) acquire(locker power.Locker, tag string) (bool, error) {
	if g.lock != nil && g.lock.Held() {
		return false, nil
	}
	lock := locker.NewLock(tag)
	if err := lock.Acquire(); err != nil {
		return false, err
	}
	g.lock = lock
	return true, nil
}

// release is a no-op when nothing is held.
func (g *wakeGuard) release() (bool, error) {
	lock := g.lock
	if lock == nil {
		return false, nil
	}
	g.lock = nil
	if !lock.Held() {
		return false, nil
	}
	if err := lock.Release(); err != nil {
		return true, err
	}
	return true, nil
}

func (g *wakeGuard) held() bool {
	return g.lock != nil && g.lock.Held()
}
