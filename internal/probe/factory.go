// internal/probe/factory.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownType is returned for a type name with no registered constructor.
var ErrUnknownType = errors.New("probe: unknown type")

// Constructor returns a new, unconfigured probe.
type Constructor func() Probe

// Factory creates probes by type name and shares one instance per
// canonical address. It is handed to every probe through its Host.
type Factory struct {
	host *Host

	mu        sync.Mutex
	ctors     map[string]Constructor
	instances map[string]Probe
}

// NewFactory binds a factory to host. The host's Factory field is set to
// the returned factory.
func NewFactory(host *Host) *Factory {
	if host == nil {
		host = &Host{}
	}
	f := &Factory{
		host:      host,
		ctors:     make(map[string]Constructor),
		instances: make(map[string]Probe),
	}
	host.Factory = f
	return f
}

// Host returns the host shared with every probe of the factory.
func (f *Factory) Host() *Host { return f.host }

// Register adds a constructor for typeName.
func (f *Factory) Register(typeName string, ctor Constructor) error {
	if err := validateTypeName(typeName); err != nil {
		return err
	}
	if ctor == nil {
		return fmt.Errorf("probe: nil constructor for %q", typeName)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, dup := f.ctors[typeName]; dup {
		return fmt.Errorf("probe: type %q already registered", typeName)
	}
	f.ctors[typeName] = ctor
	return nil
}

// Types returns the registered type names, sorted.
func (f *Factory) Types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.ctors))
	for name := range f.ctors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Get returns the probe for typeName configured with cfg. Calls with
// semantically equal configurations return the same instance.
func (f *Factory) Get(typeName string, cfg Config) (Probe, error) {
	if cfg == nil {
		cfg = Config{}
	}
	addr, err := NewAddress(typeName, cfg)
	if err != nil {
		return nil, err
	}
	key := addr.String()

	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.instances[key]; ok {
		return p, nil
	}
	p, err := f.newLocked(typeName)
	if err != nil {
		return nil, err
	}
	p.SetConfig(cfg)
	f.instances[key] = p
	return p, nil
}

// DefaultConfig returns the complete configuration of a fresh,
// unconfigured probe of typeName.
func (f *Factory) DefaultConfig(typeName string) (Config, error) {
	f.mu.Lock()
	p, err := f.newLocked(typeName)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return p.CompleteConfig(), nil
}

// Close destroys every instance handed out by Get and waits until each
// one has run the work queued before its disable, or until ctx ends.
// Sinks registered on the instances may be released once Close returns
// nil.
func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	instances := f.instances
	f.instances = make(map[string]Probe)
	f.mu.Unlock()

	for _, p := range instances {
		p.Destroy()
	}
	for _, p := range instances {
		if err := p.Flush(ctx); err != nil {
			return fmt.Errorf("probe: close %s: %w", p.Name(), err)
		}
	}
	return nil
}

func (f *Factory) newLocked(typeName string) (Probe, error) {
	ctor, ok := f.ctors[typeName]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typeName)
	}
	p := ctor()
	if p == nil {
		return nil, fmt.Errorf("probe: constructor for %q returned nil", typeName)
	}
	p.SetHost(f.host)
	return p, nil
}
