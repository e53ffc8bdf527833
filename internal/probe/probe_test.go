// internal/probe/probe_test.go
package probe

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/probe-runtime/internal/power"
)

// ---- FAKES ----

type testProbe struct {
	*Base

	Period float64
	Label  string

	mu      sync.Mutex
	calls   []string
	onStart func()
}

func newTestProbe(t *testing.T, opts ...Option) (*testProbe, *fakeLocker) {
	t.Helper()
	p := &testProbe{Period: DefaultPeriod, Label: "x"}
	all := append([]Option{WithFields(
		Var("period", &p.Period),
		Var("label", &p.Label),
	)}, opts...)
	p.Base = New("test.probe", p, all...)

	locker := &fakeLocker{}
	p.SetHost(&Host{Locker: locker})
	t.Cleanup(func() {
		p.Destroy()
		flush(t, p.Base)
	})
	return p, locker
}

func (p *testProbe) record(name string) {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	p.mu.Unlock()
}

func (p *testProbe) hookCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *testProbe) OnEnable() { p.record("enable") }
func (p *testProbe) OnStart() {
	p.record("start")
	if p.onStart != nil {
		p.onStart()
	}
}
func (p *testProbe) OnStop()    { p.record("stop") }
func (p *testProbe) OnDisable() { p.record("disable") }

type recorder struct {
	mu        sync.Mutex
	addrs     []Address
	data      []Payload
	completed []Address
}

func (r *recorder) OnDataReceived(addr Address, data Payload) {
	r.mu.Lock()
	r.addrs = append(r.addrs, addr)
	r.data = append(r.data, data)
	r.mu.Unlock()
}

func (r *recorder) OnDataCompleted(addr Address) {
	r.mu.Lock()
	r.completed = append(r.completed, addr)
	r.mu.Unlock()
}

func (r *recorder) received() []Payload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Payload(nil), r.data...)
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (s *stateRecorder) OnStateChanged(p Probe) {
	s.mu.Lock()
	s.states = append(s.states, p.State())
	s.mu.Unlock()
}

func (s *stateRecorder) seen() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

type fakeLocker struct {
	mu       sync.Mutex
	tags     []string
	acquired int
	released int
	failWith error
}

func (f *fakeLocker) NewLock(tag string) power.Lock {
	f.mu.Lock()
	f.tags = append(f.tags, tag)
	f.mu.Unlock()
	return &fakeLock{owner: f}
}

func (f *fakeLocker) counts() (acquired, released int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquired, f.released
}

type fakeLock struct {
	owner *fakeLocker
	held  bool
}

func (l *fakeLock) Acquire() error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	if l.owner.failWith != nil {
		return l.owner.failWith
	}
	l.held = true
	l.owner.acquired++
	return nil
}

func (l *fakeLock) Release() error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	l.held = false
	l.owner.released++
	return nil
}

func (l *fakeLock) Held() bool {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()
	return l.held
}

func flush(t *testing.T, b *Base) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, b.Flush(ctx))
}

// ---- LIFECYCLE ----

func TestLifecycle_StartStopDisableSequence(t *testing.T) {
	p, _ := newTestProbe(t)
	sl := &stateRecorder{}
	p.AddStateListener(sl)

	assert.Equal(t, Disabled, p.State())

	p.Start()
	p.Stop()
	p.Disable()
	flush(t, p.Base)

	assert.Equal(t, []string{"enable", "start", "stop", "disable"}, p.hookCalls())
	assert.Equal(t, []State{Enabled, Running, Enabled, Disabled}, sl.seen())
	assert.Equal(t, Disabled, p.State())
}

func TestLifecycle_EnableIsIdempotent(t *testing.T) {
	p, _ := newTestProbe(t)
	sl := &stateRecorder{}
	p.AddStateListener(sl)

	p.Enable()
	p.Enable()
	flush(t, p.Base)

	assert.Equal(t, []string{"enable"}, p.hookCalls())
	assert.Equal(t, []State{Enabled}, sl.seen())
}

func TestLifecycle_DisableFromRunningStopsFirst(t *testing.T) {
	p, _ := newTestProbe(t)

	p.Start()
	p.Disable()
	flush(t, p.Base)

	assert.Equal(t, []string{"enable", "start", "stop", "disable"}, p.hookCalls())
}

func TestLifecycle_NoOpRequests(t *testing.T) {
	p, _ := newTestProbe(t)

	p.Stop()
	p.Disable()
	assert.Empty(t, p.hookCalls())
	assert.Equal(t, Disabled, p.State())

	p.Start()
	p.Start()
	p.Enable()
	flush(t, p.Base)
	assert.Equal(t, []string{"enable", "start"}, p.hookCalls())
}

func TestLifecycle_RestartAfterDisable(t *testing.T) {
	p, _ := newTestProbe(t)

	p.Start()
	p.Disable()
	flush(t, p.Base)

	p.Start()
	flush(t, p.Base)

	assert.Equal(t, Running, p.State())
	assert.Equal(t, []string{"enable", "start", "stop", "disable", "enable", "start"}, p.hookCalls())
}

func TestLifecycle_HookPanicKeepsLoopAlive(t *testing.T) {
	p, _ := newTestProbe(t)
	p.onStart = func() { panic("boom") }

	p.Start()
	flush(t, p.Base)
	assert.Equal(t, Running, p.State())

	p.Stop()
	flush(t, p.Base)
	assert.Equal(t, Enabled, p.State())
	assert.Equal(t, []string{"enable", "start", "stop"}, p.hookCalls())
}

func TestSetConfig_DisablesRunningProbe(t *testing.T) {
	p, _ := newTestProbe(t)
	r := &recorder{}
	p.RegisterListener(r)
	flush(t, p.Base)
	require.Equal(t, Running, p.State())

	p.SetConfig(Config{"period": 60})
	flush(t, p.Base)

	assert.Equal(t, Disabled, p.State())
	assert.Equal(t, 60.0, p.Period)

	p.Emit(Payload{"v": 1})
	flush(t, p.Base)
	assert.Empty(t, r.received())
}

// ---- HOST ----

func TestSetHost_NilPanics(t *testing.T) {
	p, _ := newTestProbe(t)
	assert.PanicsWithValue(t,
		`probe: attempted to set a nil host in probe "test.probe"`,
		func() { p.SetHost(nil) },
	)
}

func TestHost_UnsetPanics(t *testing.T) {
	b := New("bare", nil)
	assert.Panics(t, func() { b.Host() })
}

// ---- WAKE LOCK ----

func TestWakeLock_HeldOnlyWhileRunning(t *testing.T) {
	p, locker := newTestProbe(t)
	r := &recorder{}

	assert.Equal(t, Disabled, p.State())

	p.RegisterListener(r)
	flush(t, p.Base)

	assert.Equal(t, Running, p.State())
	assert.True(t, p.guard.held())
	acquired, released := locker.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 0, released)
	assert.Equal(t, []string{p.Address().String()}, locker.tags)

	p.UnregisterListener(r)
	flush(t, p.Base)

	assert.Equal(t, Disabled, p.State())
	assert.False(t, p.guard.held())
	acquired, released = locker.counts()
	assert.Equal(t, 1, acquired)
	assert.Equal(t, 1, released)
}

func TestWakeLock_NotDeclared(t *testing.T) {
	p, locker := newTestProbe(t, WithKeepAwake(false))

	p.Start()
	flush(t, p.Base)

	assert.Equal(t, Running, p.State())
	acquired, _ := locker.counts()
	assert.Zero(t, acquired)
}

func TestWakeLock_AcquireFailureStillRuns(t *testing.T) {
	p, locker := newTestProbe(t)
	locker.failWith = errors.New("no permission")

	p.Start()
	p.Stop()
	flush(t, p.Base)

	assert.Equal(t, Enabled, p.State())
	assert.Equal(t, []string{"enable", "start", "stop"}, p.hookCalls())
	_, released := locker.counts()
	assert.Zero(t, released)
}

func TestWakeLock_NilLockerFallsBackToNop(t *testing.T) {
	p, _ := newTestProbe(t)
	p.SetHost(&Host{})

	p.Start()
	flush(t, p.Base)

	assert.Equal(t, Running, p.State())
	assert.True(t, p.guard.held())
}

// ---- SENSITIVE DATA ----

func TestSensitiveData(t *testing.T) {
	p, _ := newTestProbe(t)

	hidden := p.SensitiveData("00:11:22:33:44:55")
	assert.Len(t, hidden, 64)
	assert.NotContains(t, hidden, "00:11")
	assert.Equal(t, hidden, p.SensitiveData("00:11:22:33:44:55"))

	assert.Equal(t,
		p.SensitiveData("AA:BB"),
		p.SensitiveData("aa:bb", strings.ToUpper),
	)

	p.SetConfig(Config{HideSensitiveDataKey: false})
	assert.Equal(t, "00:11:22:33:44:55", p.SensitiveData("00:11:22:33:44:55"))
}

type probeCapture struct {
	mu  sync.Mutex
	got []Probe
}

func (c *probeCapture) OnStateChanged(p Probe) {
	c.mu.Lock()
	c.got = append(c.got, p)
	c.mu.Unlock()
}

func TestStateListener_ReceivesEmbeddingValue(t *testing.T) {
	p, _ := newTestProbe(t)
	c := &probeCapture{}
	p.AddStateListener(c)

	p.Enable()
	flush(t, p.Base)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 1)
	concrete, ok := c.got[0].(*testProbe)
	require.True(t, ok, "got %T", c.got[0])
	assert.Same(t, p, concrete)
}

func TestStateListener_PlainBase(t *testing.T) {
	b := New("plain", nil)
	b.SetHost(&Host{Locker: &fakeLocker{}})
	t.Cleanup(b.Destroy)
	c := &probeCapture{}
	b.AddStateListener(c)

	b.Enable()
	flush(t, b)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 1)
	assert.Same(t, b, c.got[0])
}
