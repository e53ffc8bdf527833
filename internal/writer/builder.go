// internal/writer/builder.go
package writer

import (
	"errors"
	"time"

	"github.com/tamzrod/probe-runtime/internal/config"
	wmodbus "github.com/tamzrod/probe-runtime/internal/writer/modbus"
)

// BuildPlan converts one probe config into a Writer Plan.
// Assumes config has already passed validation.
func BuildPlan(p config.ProbeConfig) (Plan, error) {
	if p.ID == "" {
		return Plan{}, errors.New("writer: probe.id required")
	}

	plan := Plan{ProbeID: p.ID}

	for _, t := range p.Targets {
		ep := TargetEndpoint{
			TargetID: t.ID,
			Endpoint: t.Endpoint,
			UnitID:   t.UnitID,
		}

		for _, m := range t.Memories {
			ep.Memories = append(ep.Memories, MemoryDest{
				MemoryID: m.MemoryID,
				Offsets:  m.Offsets,
			})
		}

		plan.Targets = append(plan.Targets, ep)
	}

	if st := p.Status; st != nil {
		plan.Status = &StatusPlan{
			Endpoint:   st.Endpoint,
			UnitID:     st.UnitID,
			BaseSlot:   st.Slot,
			DeviceName: st.DeviceName,
		}
	}

	return plan, nil
}

// Endpoints lists every unique endpoint the plan writes to, status included.
func (p Plan) Endpoints() []string {
	seen := map[string]bool{}
	var out []string
	add := func(ep string) {
		if ep != "" && !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}
	for _, t := range p.Targets {
		add(t.Endpoint)
	}
	if p.Status != nil {
		add(p.Status.Endpoint)
	}
	return out
}

// BuildEndpointClients creates one TCP client per unique endpoint.
// Connections are opened on first write.
func BuildEndpointClients(plan Plan, timeout time.Duration) (Clients, func() error, error) {
	clients := make(Clients)
	var closers []func() error

	for _, endpoint := range plan.Endpoints() {
		c, err := wmodbus.NewEndpointClient(wmodbus.Config{
			Endpoint: endpoint,
			Timeout:  timeout,
		})
		if err != nil {
			for _, fn := range closers {
				_ = fn()
			}
			return nil, nil, err
		}
		clients[endpoint] = c
		closers = append(closers, c.Close)
	}

	closeAll := func() error {
		var errs []error
		for _, fn := range closers {
			if err := fn(); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	return clients, closeAll, nil
}
