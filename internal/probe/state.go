// internal/probe/state.go
package probe

import "fmt"

// State is the lifecycle state of a probe.
type State int32

const (
	// Disabled is the initial state. Nothing is allocated.
	Disabled State = iota
	// Enabled probes may listen passively but hold no wake lock.
	Enabled
	// Running probes actively produce data.
	Running
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Enabled:
		return "enabled"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// request is a transition request posted to the run loop.
type request int

const (
	reqEnable request = iota
	reqStart
	reqStop
	reqDisable
)

func (r request) String() string {
	switch r {
	case reqEnable:
		return "enable"
	case reqStart:
		return "start"
	case reqStop:
		return "stop"
	case reqDisable:
		return "disable"
	default:
		return fmt.Sprintf("request(%d)", int(r))
	}
}

type transition func(b *Base)

// edges holds the behavior of one state for each request.
type edges struct {
	enable  transition
	start   transition
	stop    transition
	disable transition
}

func (e edges) pick(r request) transition {
	switch r {
	case reqEnable:
		return e.enable
	case reqStart:
		return e.start
	case reqStop:
		return e.stop
	case reqDisable:
		return e.disable
	}
	panic(fmt.Sprintf("probe: unknown request %d", int(r)))
}

// machine is indexed by State. Requests that do not apply are no-ops.
var machine [3]edges

func init() {
	machine = [3]edges{
		Disabled: {
			enable:  enableFromDisabled,
			start:   startFromDisabled,
			stop:    nothing,
			disable: nothing,
		},
		Enabled: {
			enable:  nothing,
			start:   startFromEnabled,
			stop:    nothing,
			disable: disableFromEnabled,
		},
		Running: {
			enable:  nothing,
			start:   nothing,
			stop:    stopFromRunning,
			disable: disableFromRunning,
		},
	}
}

func nothing(*Base) {}

func enableFromDisabled(b *Base) {
	b.setState(Enabled)
	b.hooks.OnEnable()
	b.notifyStateChange()
}

func startFromDisabled(b *Base) {
	machine[Disabled].enable(b)
	if b.State() == Enabled {
		machine[Enabled].start(b)
	}
}

func startFromEnabled(b *Base) {
	if b.keepAwake {
		b.acquireWakeLock()
	}
	b.setState(Running)
	b.hooks.OnStart()
	b.notifyStateChange()
}

func stopFromRunning(b *Base) {
	b.setState(Enabled)
	b.hooks.OnStop()
	b.notifyStateChange()
	b.releaseWakeLock()
}

func disableFromEnabled(b *Base) {
	b.setState(Disabled)
	b.hooks.OnDisable()
	b.notifyStateChange()
	b.passive.clear()
	b.active.clear()
	// The run loop itself is drained by dispatch once this task returns.
}

// disableFromRunning cascades so that OnStop always precedes OnDisable.
func disableFromRunning(b *Base) {
	machine[Running].stop(b)
	if b.State() == Enabled {
		machine[Enabled].disable(b)
	}
}
