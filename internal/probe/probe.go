// internal/probe/probe.go

// Package probe runs long-lived data sources through a
// DISABLED / ENABLED / RUNNING lifecycle driven by their listeners.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/tamzrod/probe-runtime/internal/power"
	"github.com/tamzrod/probe-runtime/internal/runloop"
)

// DefaultPeriod is the conventional sampling period, in seconds, for
// probes that run on a schedule.
const DefaultPeriod = 3600.0

// Probe is the public surface of every probe instance.
type Probe interface {
	Name() string
	SetHost(h *Host)
	SetConfig(cfg Config)
	Config() Config
	CompleteConfig() Config
	Address() Address
	CompleteAddress() Address
	State() State

	Enable()
	Start()
	Stop()
	Disable()
	Destroy()
	Flush(ctx context.Context) error

	RegisterListener(listeners ...DataListener)
	UnregisterListener(listeners ...DataListener)
	RegisterPassiveListener(listeners ...DataListener)
	UnregisterPassiveListener(listeners ...DataListener)
	AddStateListener(l StateListener)
	RemoveStateListener(l StateListener)
}

// Hooks is what a concrete probe implements. Every hook runs on the
// probe's run loop and must return promptly.
type Hooks interface {
	OnEnable()
	OnStart()
	OnStop()
	OnDisable()
}

// HookFuncs adapts plain functions to Hooks. Nil functions are skipped.
type HookFuncs struct {
	Enable  func()
	Start   func()
	Stop    func()
	Disable func()
}

func (h HookFuncs) OnEnable() {
	if h.Enable != nil {
		h.Enable()
	}
}

func (h HookFuncs) OnStart() {
	if h.Start != nil {
		h.Start()
	}
}

func (h HookFuncs) OnStop() {
	if h.Stop != nil {
		h.Stop()
	}
}

func (h HookFuncs) OnDisable() {
	if h.Disable != nil {
		h.Disable()
	}
}

// Host gives probes access to device resources.
type Host struct {
	Locker  power.Locker
	Logger  *slog.Logger
	Meter   metric.Meter
	Factory *Factory
}

// Option configures a Base.
type Option func(*options)

type options struct {
	fields    []Field
	keepAwake bool
}

// WithFields declares the configurable fields of the probe type.
func WithFields(fields ...Field) Option {
	return func(o *options) {
		o.fields = append(o.fields, fields...)
	}
}

// WithKeepAwake controls whether a wake lock is held while running.
// The default is true.
func WithKeepAwake(keep bool) Option {
	return func(o *options) {
		o.keepAwake = keep
	}
}

// Base implements the probe lifecycle. Concrete probes embed *Base and
// pass themselves as Hooks.
type Base struct {
	name      string
	hooks     Hooks
	self      Probe // outermost probe value; b when hooks is not a Probe
	keepAwake bool

	hideSensitive bool

	logger atomic.Pointer[slog.Logger]
	inst   atomic.Pointer[instruments]

	state atomic.Int32

	// mu guards host, loop and the configuration/identity caches.
	mu              sync.Mutex
	host            *Host
	loop            *runloop.Loop
	binder          *binder
	address         *Address
	completeAddress *Address

	active         listenerSet[DataListener]
	passive        listenerSet[DataListener]
	stateListeners listenerSet[StateListener]

	// touched only on the run loop
	guard wakeGuard
}

// New builds a disabled probe. Field defaults are snapshotted here, so
// the backing variables must already hold their default values.
func New(name string, hooks Hooks, opts ...Option) *Base {
	if err := validateTypeName(name); err != nil {
		panic(err.Error())
	}
	if hooks == nil {
		hooks = HookFuncs{}
	}

	o := options{keepAwake: true}
	for _, opt := range opts {
		opt(&o)
	}

	b := &Base{
		name:          name,
		hooks:         hooks,
		keepAwake:     o.keepAwake,
		hideSensitive: true,
	}
	b.self = b
	if p, ok := hooks.(Probe); ok {
		b.self = p
	}
	logger := slog.Default().With("probe", name)
	b.logger.Store(logger)
	b.inst.Store(newInstruments(nil, name, logger))
	b.state.Store(int32(Disabled))

	fields := append([]Field{Var(HideSensitiveDataKey, &b.hideSensitive)}, o.fields...)
	b.binder = newBinder(fields, logger)
	return b
}

// Name returns the probe type name.
func (b *Base) Name() string { return b.name }

// KeepsAwake reports whether a wake lock is held while running.
func (b *Base) KeepsAwake() bool { return b.keepAwake }

// Logger returns the probe logger.
func (b *Base) Logger() *slog.Logger { return b.logger.Load() }

// ---- HOST ----

// SetHost attaches device resources. It must be called before the probe
// is first started; a nil host is a programming error.
func (b *Base) SetHost(h *Host) {
	if h == nil {
		panic(fmt.Sprintf("probe: attempted to set a nil host in probe %q", b.name))
	}

	b.mu.Lock()
	b.host = h
	b.mu.Unlock()

	if h.Logger != nil {
		b.logger.Store(h.Logger.With("probe", b.name))
	}
	if h.Meter != nil {
		b.inst.Store(newInstruments(h.Meter, b.name, b.Logger()))
	}
}

// Host returns the host. It panics if SetHost was never called.
func (b *Base) Host() *Host {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.host == nil {
		panic(fmt.Sprintf("probe: host was never set for probe %q", b.name))
	}
	return b.host
}

// ---- CONFIGURATION ----

// SetConfig disables the probe and replaces its configuration. Only
// declared fields are taken from cfg. Must not be called from a hook.
func (b *Base) SetConfig(cfg Config) {
	b.Disable()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.binder.bind(cfg, b.Logger())
	b.address = nil
	b.completeAddress = nil
}

// Config returns a copy of the explicitly specified configuration.
func (b *Base) Config() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binder.specifiedView()
}

// CompleteConfig returns a copy of every configurable value, defaults
// included.
func (b *Base) CompleteConfig() Config {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.binder.completeView(b.Logger())
}

// Address identifies the probe by type and specified configuration.
func (b *Base) Address() Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.address == nil {
		a := b.buildAddress(b.binder.specifiedView())
		b.address = &a
	}
	return *b.address
}

// CompleteAddress identifies the probe by type and complete
// configuration. Data listeners receive this address.
func (b *Base) CompleteAddress() Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.completeAddress == nil {
		a := b.buildAddress(b.binder.completeView(b.Logger()))
		b.completeAddress = &a
	}
	return *b.completeAddress
}

func (b *Base) buildAddress(cfg Config) Address {
	a, err := NewAddress(b.name, cfg)
	if err != nil {
		// Bound values are normalized JSON, so this only happens on a
		// broken field declaration.
		b.Logger().Error("probe: address without config", "error", err)
		return Address{TypeName: b.name}
	}
	return a
}

// ---- LIFECYCLE ----

// State returns the current state. The value may lag behind requests
// that are still queued.
func (b *Base) State() State { return State(b.state.Load()) }

func (b *Base) setState(s State) {
	b.state.Store(int32(s))
	b.inst.Load().transition(s)
	b.Logger().Debug("probe: state changed", "state", s.String())
}

// Enable requests DISABLED -> ENABLED.
func (b *Base) Enable() { b.post(reqEnable) }

// Start requests the RUNNING state, enabling first if needed.
func (b *Base) Start() { b.post(reqStart) }

// Stop requests RUNNING -> ENABLED.
func (b *Base) Stop() { b.postLive(reqStop) }

// Disable requests the DISABLED state.
func (b *Base) Disable() { b.postLive(reqDisable) }

// Destroy disables the probe.
func (b *Base) Destroy() { b.Disable() }

func (b *Base) post(r request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	task := b.transitionTask(r)
	if b.loop != nil && b.loop.Post(task) == nil {
		return
	}
	b.loop = runloop.New("Probe["+b.name+"]",
		runloop.WithLogger(b.Logger()),
		runloop.WithPanicHandler(b.taskPanicked),
	)
	_ = b.loop.Post(task)
}

// postLive never creates a run loop. A closed loop means the probe is
// already disabled.
func (b *Base) postLive(r request) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loop == nil {
		return
	}
	_ = b.loop.Post(b.transitionTask(r))
}

func (b *Base) transitionTask(r request) runloop.Task {
	return func() { b.dispatch(r) }
}

// dispatch runs on the loop. The loop is drained whenever the probe ends
// up DISABLED, including after a panicking hook.
func (b *Base) dispatch(r request) {
	defer b.settleLoop()
	machine[b.State()].pick(r)(b)
}

func (b *Base) settleLoop() {
	b.mu.Lock()
	l := b.loop
	b.mu.Unlock()
	if l == nil {
		return
	}
	if b.State() == Disabled {
		l.Drain()
	} else {
		l.Resume()
	}
}

func (b *Base) taskPanicked(v any) {
	b.inst.Load().failure()
	b.Logger().Error("probe: task failed; state left as is",
		"state", b.State().String(),
		"panic", fmt.Sprint(v),
	)
}

// Flush waits until every task posted before the call has run. It
// returns immediately when no run loop is live or when called from the
// loop itself.
func (b *Base) Flush(ctx context.Context) error {
	b.mu.Lock()
	l := b.loop
	b.mu.Unlock()
	if l == nil || l.Current() {
		return nil
	}
	done := make(chan struct{})
	if err := l.Post(func() { close(done) }); err != nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post runs task on the probe's run loop if one is live. Probes use it
// to split long work into short steps.
func (b *Base) Post(task func()) bool {
	b.mu.Lock()
	l := b.loop
	b.mu.Unlock()
	if l == nil {
		return false
	}
	return l.Post(task) == nil
}

// ---- DATA ----

// Emit sends data to every listener. It may be called from any
// goroutine. The payload is deep-copied on entry, keeping value types,
// and stamped with TimestampKey when missing. Payloads that cannot be
// encoded as JSON are dropped.
func (b *Base) Emit(data Payload) {
	if data == nil {
		return
	}
	if err := encodable(data); err != nil {
		b.Logger().Error("probe: payload dropped", "error", err)
		return
	}
	own := data.Clone()
	if _, ok := own[TimestampKey]; !ok {
		own[TimestampKey] = Timestamp(time.Now())
	}
	b.onLoop(func() { b.deliver(own) })
}

// Complete tells every listener that a bounded data run has ended.
func (b *Base) Complete() {
	b.onLoop(b.deliverCompleted)
}

// onLoop runs fn inline when already on the run loop, posts it
// otherwise. Without a live loop fn is dropped.
func (b *Base) onLoop(fn func()) {
	b.mu.Lock()
	l := b.loop
	b.mu.Unlock()
	if l == nil {
		return
	}
	if l.Current() {
		fn()
		return
	}
	if err := l.Post(fn); err != nil {
		b.Logger().Debug("probe: run loop gone, data dropped")
	}
}

func (b *Base) deliver(data Payload) {
	addr := b.CompleteAddress()
	n := b.fanOut(func(l DataListener) {
		l.OnDataReceived(addr, data.Clone())
	})
	b.inst.Load().emitted(n)
}

func (b *Base) deliverCompleted() {
	addr := b.CompleteAddress()
	b.fanOut(func(l DataListener) {
		l.OnDataCompleted(addr)
	})
}

// ---- WAKE LOCK ----

func (b *Base) acquireWakeLock() {
	locker := b.Host().Locker
	if locker == nil {
		locker = power.Nop
	}
	acquired, err := b.guard.acquire(locker, b.Address().String())
	if err != nil {
		b.Logger().Warn("probe: wake lock not acquired", "error", err)
		return
	}
	if acquired {
		b.inst.Load().wakeLock(1)
	}
}

func (b *Base) releaseWakeLock() {
	released, err := b.guard.release()
	if err != nil {
		b.Logger().Warn("probe: wake lock release failed", "error", err)
	}
	if released {
		b.inst.Load().wakeLock(-1)
	}
}
