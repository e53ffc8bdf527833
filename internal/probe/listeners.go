// internal/probe/listeners.go
package probe

import "sync"

// DataListener observes data emitted by a probe.
// Implementations must be comparable (typically pointers).
type DataListener interface {
	// OnDataReceived gets its own copy of every payload.
	OnDataReceived(addr Address, data Payload)
	// OnDataCompleted signals the end of a bounded data run.
	OnDataCompleted(addr Address)
}

// StateListener observes lifecycle transitions.
type StateListener interface {
	OnStateChanged(p Probe)
}

// listenerSet is an insertion-ordered set safe for concurrent use.
type listenerSet[T comparable] struct {
	mu    sync.Mutex
	items []T
}

// add returns true if at least one item was not yet present.
func (s *listenerSet[T]) add(items ...T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	added := false
	for _, it := range items {
		if s.indexLocked(it) < 0 {
			s.items = append(s.items, it)
			added = true
		}
	}
	return added
}

func (s *listenerSet[T]) remove(items ...T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		if i := s.indexLocked(it); i >= 0 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
	}
}

func (s *listenerSet[T]) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) == 0
}

func (s *listenerSet[T]) clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}

// snapshot returns a copy that can be iterated without the lock.
func (s *listenerSet[T]) snapshot() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s *listenerSet[T]) indexLocked(it T) int {
	for i, v := range s.items {
		if v == it {
			return i
		}
	}
	return -1
}

// ---- REGISTRY ----

// RegisterListener adds active listeners and starts the probe.
// Idempotent per listener; safe for concurrent use.
func (b *Base) RegisterListener(listeners ...DataListener) {
	if len(listeners) == 0 {
		return
	}
	b.active.add(listeners...)
	b.Start()
}

// UnregisterListener removes active listeners. The probe stops when no
// active listener is left and is disabled when no listener is left.
func (b *Base) UnregisterListener(listeners ...DataListener) {
	if len(listeners) == 0 {
		return
	}
	b.active.remove(listeners...)
	if b.active.empty() {
		b.Stop()
		if b.passive.empty() {
			b.Disable()
		}
	}
}

// RegisterPassiveListener adds listeners that only need the probe enabled.
func (b *Base) RegisterPassiveListener(listeners ...DataListener) {
	if len(listeners) == 0 {
		return
	}
	b.passive.add(listeners...)
	b.Enable()
}

// UnregisterPassiveListener removes passive listeners and disables the
// probe when no listener is left.
func (b *Base) UnregisterPassiveListener(listeners ...DataListener) {
	if len(listeners) == 0 {
		return
	}
	b.passive.remove(listeners...)
	if b.active.empty() && b.passive.empty() {
		b.Disable()
	}
}

// AddStateListener registers l for state change notifications.
func (b *Base) AddStateListener(l StateListener) {
	if l != nil {
		b.stateListeners.add(l)
	}
}

// RemoveStateListener unregisters l.
func (b *Base) RemoveStateListener(l StateListener) {
	if l != nil {
		b.stateListeners.remove(l)
	}
}

// notifyStateChange passes the concrete probe embedding b, not b itself.
func (b *Base) notifyStateChange() {
	for _, l := range b.stateListeners.snapshot() {
		l.OnStateChanged(b.self)
	}
}

// fanOut calls fn once per listener: every active listener, then every
// passive listener that is not also active.
func (b *Base) fanOut(fn func(DataListener)) int {
	active := b.active.snapshot()
	passive := b.passive.snapshot()

	seen := make(map[DataListener]struct{}, len(active))
	for _, l := range active {
		seen[l] = struct{}{}
		fn(l)
	}
	n := len(active)
	for _, l := range passive {
		if _, dup := seen[l]; dup {
			continue
		}
		fn(l)
		n++
	}
	return n
}
