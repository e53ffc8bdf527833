// internal/writer/tracker.go
package writer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/tamzrod/probe-runtime/internal/poller"
	"github.com/tamzrod/probe-runtime/internal/probe"
	"github.com/tamzrod/probe-runtime/internal/status"
)

// StatusTracker derives the device status block from poll payloads and
// probe state changes and hands every change to a StatusWriter.
type StatusTracker struct {
	mu  sync.Mutex
	sw  StatusWriter
	log *slog.Logger

	snap       status.Snapshot
	errorSince time.Time // zero while healthy
	polled     bool
}

// NewStatusTracker returns a tracker in the unknown state.
func NewStatusTracker(sw StatusWriter, log *slog.Logger) *StatusTracker {
	if log == nil {
		log = slog.Default()
	}
	return &StatusTracker{
		sw:  sw,
		log: log,
		snap: status.Snapshot{
			Health:     status.HealthUnknown,
			ProbeState: status.ProbeStateUnknown,
		},
	}
}

// Snapshot returns the last derived status.
func (t *StatusTracker) Snapshot() status.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *StatusTracker) OnDataReceived(addr probe.Address, data probe.Payload) {
	res, err := poller.DecodeResult(data)
	if err != nil {
		t.log.Error("status: undecodable payload", "probe", addr.String(), "error", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.polled = true
	if res.Err == nil {
		t.errorSince = time.Time{}
		t.snap.Health = status.HealthOK
		t.snap.LastErrorCode = 0
		t.snap.SecondsInError = 0
	} else {
		if t.errorSince.IsZero() {
			t.errorSince = res.At
		}
		t.snap.Health = status.HealthError
		t.snap.LastErrorCode = res.RawErrorCode
		t.snap.SecondsInError = secondsSince(t.errorSince, res.At)
	}
	t.flushLocked()
}

func (t *StatusTracker) OnDataCompleted(probe.Address) {}

func (t *StatusTracker) OnStateChanged(p probe.Probe) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch p.State() {
	case probe.Disabled:
		t.snap.ProbeState = status.ProbeStateDisabled
		t.snap.Health = status.HealthDisabled
	case probe.Enabled:
		t.snap.ProbeState = status.ProbeStateEnabled
		if t.polled {
			// No longer polling: whatever was last seen is now stale.
			t.snap.Health = status.HealthStale
		} else {
			t.snap.Health = status.HealthUnknown
		}
	case probe.Running:
		t.snap.ProbeState = status.ProbeStateRunning
		if t.snap.Health == status.HealthDisabled || t.snap.Health == status.HealthStale {
			t.snap.Health = status.HealthUnknown
		}
	}
	t.flushLocked()
}

func (t *StatusTracker) flushLocked() {
	if t.sw == nil {
		return
	}
	if err := t.sw.WriteStatus(t.snap); err != nil {
		t.log.Warn("status: write failed", "error", err)
	}
}

// secondsSince saturates at status.MaxSecondsInError.
func secondsSince(from, now time.Time) uint16 {
	d := now.Sub(from)
	if d <= 0 {
		return 0
	}
	sec := int64(d / time.Second)
	if sec > status.MaxSecondsInError {
		return status.MaxSecondsInError
	}
	return uint16(sec)
}
