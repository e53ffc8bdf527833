// cmd/probed/agent.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/tamzrod/probe-runtime/internal/config"
	"github.com/tamzrod/probe-runtime/internal/journal"
	"github.com/tamzrod/probe-runtime/internal/poller"
	"github.com/tamzrod/probe-runtime/internal/power"
	"github.com/tamzrod/probe-runtime/internal/probe"
	"github.com/tamzrod/probe-runtime/internal/writer"
)

// agent owns everything start builds.
type agent struct {
	factory *probe.Factory
	journal *journal.Store
	closers []func() error
}

// start wires the factory, probes and sinks for a normalized config.
// A nil dial uses poller.DialTCP.
func start(cfg *config.Config, log *slog.Logger, dial poller.DialFunc) (*agent, error) {
	a := &agent{}

	host := &probe.Host{
		Locker: newLocker(cfg.Agent.WakeLock),
		Logger: log,
		Meter:  otel.Meter("github.com/tamzrod/probe-runtime/cmd/probed"),
	}
	a.factory = probe.NewFactory(host)

	if err := a.factory.Register(poller.TypeName, poller.Constructor(dial)); err != nil {
		return nil, err
	}

	if cfg.Agent.Journal != nil {
		j, err := journal.Open(cfg.Agent.Journal.Path, journal.WithLogger(log))
		if err != nil {
			return nil, err
		}
		a.journal = j
	}

	for _, pc := range cfg.Probes {
		if err := a.attach(pc, log); err != nil {
			_ = a.Close(context.Background())
			return nil, fmt.Errorf("probe %q: %w", pc.ID, err)
		}
	}

	return a, nil
}

func (a *agent) attach(pc config.ProbeConfig, log *slog.Logger) error {
	log = log.With("probe_id", pc.ID)

	p, err := a.factory.Get(pc.Type, probe.Config(pc.Config))
	if err != nil {
		return err
	}

	plan, err := writer.BuildPlan(pc)
	if err != nil {
		return err
	}

	var clients writer.Clients
	if len(plan.Endpoints()) > 0 {
		var closeAll func() error
		clients, closeAll, err = writer.BuildEndpointClients(plan, time.Duration(pc.WriteTimeoutMs)*time.Millisecond)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closeAll)
	}

	var sinks []probe.DataListener

	if len(plan.Targets) > 0 {
		sinks = append(sinks, writer.NewReplicator(writer.New(plan, clients), log))
	}

	if sw, ok := writer.NewDeviceStatusWriter(plan, clients); ok {
		tr := writer.NewStatusTracker(sw, log)
		// Registered first so the tracker sees the transitions its own
		// registration causes.
		p.AddStateListener(tr)
		sinks = append(sinks, tr)
	}

	if pc.Journal && a.journal != nil {
		sinks = append(sinks, a.journal)
	}

	if len(sinks) == 0 {
		log.Warn("probed: probe has no sinks", "address", p.Address().String())
		return nil
	}

	if pc.Passive {
		p.RegisterPassiveListener(sinks...)
	} else {
		p.RegisterListener(sinks...)
	}

	log.Info("probed: probe attached",
		"address", p.Address().String(),
		"passive", pc.Passive,
		"sinks", len(sinks),
	)
	return nil
}

// Close destroys every probe and waits for their queued work before
// releasing sinks. When ctx ends first, sinks are released anyway.
func (a *agent) Close(ctx context.Context) error {
	var errs []error
	if err := a.factory.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	for _, fn := range a.closers {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newLocker(c config.WakeLockConfig) power.Locker {
	if c.Mode == config.WakeLockSysfs {
		return power.Sysfs{Dir: c.Dir}
	}
	return power.Nop
}
