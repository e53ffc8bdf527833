// internal/poller/registers.go
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/probe-runtime/internal/probe"
)

// TypeName is the probe type of RegistersProbe.
const TypeName = "modbus.registers"

// RegistersProbe polls Modbus read blocks from one device and emits a
// PollResult payload per cycle.
type RegistersProbe struct {
	*probe.Base

	settings Settings
	dial     DialFunc

	// loop-owned
	cancel context.CancelFunc
}

// NewRegistersProbe returns an unconfigured probe. A nil dial uses DialTCP.
func NewRegistersProbe(dial DialFunc) *RegistersProbe {
	p := &RegistersProbe{
		settings: DefaultSettings(),
		dial:     dial,
	}
	p.Base = probe.New(TypeName, p, probe.WithFields(
		probe.Var("endpoint", &p.settings.Endpoint),
		probe.Var("unit_id", &p.settings.UnitID),
		probe.Var("timeout_ms", &p.settings.TimeoutMs),
		probe.Var("period", &p.settings.Period),
		probe.Var("reads", &p.settings.Reads),
	))
	return p
}

// Constructor adapts NewRegistersProbe to the probe factory.
func Constructor(dial DialFunc) probe.Constructor {
	return func() probe.Probe { return NewRegistersProbe(dial) }
}

func (p *RegistersProbe) OnEnable() {
	p.Logger().Debug("poller: enabled", "source", p.settings.SourceID())
}

// OnStart hands the blocking work to a goroutine; results come back
// through Emit.
func (p *RegistersProbe) OnStart() {
	s := p.settings

	poll, err := Build(s, p.dial)
	if err != nil {
		p.Logger().Error("poller: build failed", "error", err)
		p.Emit(PollResult{UnitID: s.SourceID(), At: time.Now(), Err: err, RawErrorCode: 1}.Payload())
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	if s.Period <= 0 {
		go func() {
			defer poll.Close()
			res := poll.PollOnce()
			if ctx.Err() != nil {
				return
			}
			p.Emit(res.Payload())
			p.Complete()
		}()
		return
	}

	go poll.Run(ctx, s.Interval(), func(res PollResult) {
		if res.Err != nil {
			p.Logger().Warn("poller: cycle failed", "source", res.UnitID, "error", res.Err)
		}
		p.Emit(res.Payload())
	})
}

// OnStop cancels polling without waiting for an in-flight cycle.
func (p *RegistersProbe) OnStop() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *RegistersProbe) OnDisable() {}
