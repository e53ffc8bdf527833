// internal/poller/registers_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pmodbus "github.com/tamzrod/probe-runtime/internal/poller/modbus"
	"github.com/tamzrod/probe-runtime/internal/power"
	"github.com/tamzrod/probe-runtime/internal/probe"
)

type sink struct {
	mu        sync.Mutex
	results   []PollResult
	completed int
}

func (s *sink) OnDataReceived(addr probe.Address, data probe.Payload) {
	res, err := DecodeResult(data)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	s.results = append(s.results, res)
	s.mu.Unlock()
}

func (s *sink) OnDataCompleted(addr probe.Address) {
	s.mu.Lock()
	s.completed++
	s.mu.Unlock()
}

func (s *sink) snapshot() ([]PollResult, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PollResult(nil), s.results...), s.completed
}

type dialRecorder struct {
	mu      sync.Mutex
	configs []pmodbus.Config
	clients []*fakeClient
	err     error
}

func (d *dialRecorder) dial(cfg pmodbus.Config) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configs = append(d.configs, cfg)
	if d.err != nil {
		return nil, d.err
	}
	c := &fakeClient{}
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *dialRecorder) last() *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.clients) == 0 {
		return nil
	}
	return d.clients[len(d.clients)-1]
}

func newRegistersProbe(t *testing.T, cfg probe.Config) (*RegistersProbe, *dialRecorder) {
	t.Helper()
	d := &dialRecorder{}
	p := NewRegistersProbe(d.dial)
	p.SetHost(&probe.Host{Locker: power.Nop})
	p.SetConfig(cfg)
	t.Cleanup(p.Destroy)
	return p, d
}

func flushProbe(t *testing.T, p *RegistersProbe) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Flush(ctx))
}

func TestRegistersProbe_Defaults(t *testing.T) {
	p, _ := newRegistersProbe(t, nil)

	assert.Equal(t, probe.Config{
		"endpoint":                 "",
		"unit_id":                  1.0,
		"timeout_ms":               1000.0,
		"period":                   1.0,
		"reads":                    nil,
		probe.HideSensitiveDataKey: true,
	}, p.CompleteConfig())
}

func TestRegistersProbe_PollsWhileRunning(t *testing.T) {
	p, d := newRegistersProbe(t, probe.Config{
		"endpoint":   "10.0.0.5:502",
		"unit_id":    7,
		"timeout_ms": 250,
		"period":     0.005,
		"reads":      []any{map[string]any{"fc": 3, "address": 100, "quantity": 2}},
	})
	s := &sink{}

	p.RegisterListener(s)

	require.Eventually(t, func() bool {
		res, _ := s.snapshot()
		return len(res) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	res, _ := s.snapshot()
	assert.Equal(t, "10.0.0.5:502/7", res[0].UnitID)
	require.Len(t, res[0].Blocks, 1)
	assert.Equal(t, []uint16{100, 101}, res[0].Blocks[0].Registers)

	d.mu.Lock()
	assert.Equal(t, pmodbus.Config{Endpoint: "10.0.0.5:502", UnitID: 7, Timeout: 250 * time.Millisecond}, d.configs[0])
	d.mu.Unlock()

	p.UnregisterListener(s)
	flushProbe(t, p)
	assert.Equal(t, probe.Disabled, p.State())

	require.Eventually(t, func() bool {
		return d.last().isClosed()
	}, 2*time.Second, 5*time.Millisecond)
}

func TestRegistersProbe_SingleShotCompletes(t *testing.T) {
	p, _ := newRegistersProbe(t, probe.Config{
		"endpoint": "10.0.0.5:502",
		"period":   0,
		"reads":    []any{map[string]any{"fc": 1, "address": 0, "quantity": 4}},
	})
	s := &sink{}

	p.RegisterListener(s)

	require.Eventually(t, func() bool {
		_, completed := s.snapshot()
		return completed == 1
	}, 2*time.Second, 5*time.Millisecond)

	res, _ := s.snapshot()
	require.Len(t, res, 1)
	assert.NoError(t, res[0].Err)
	assert.Equal(t, []bool{false, false, false, false}, res[0].Blocks[0].Bits)
}

func TestRegistersProbe_DialFailureEmitsError(t *testing.T) {
	p, d := newRegistersProbe(t, probe.Config{
		"endpoint": "10.0.0.5:502",
		"period":   0,
		"reads":    []any{map[string]any{"fc": 3, "address": 0, "quantity": 1}},
	})
	d.err = errors.New("connection refused")
	s := &sink{}

	p.RegisterListener(s)

	require.Eventually(t, func() bool {
		res, _ := s.snapshot()
		return len(res) == 1
	}, 2*time.Second, 5*time.Millisecond)

	res, _ := s.snapshot()
	assert.ErrorContains(t, res[0].Err, "connection refused")
}

func TestRegistersProbe_MissingEndpointEmitsError(t *testing.T) {
	p, _ := newRegistersProbe(t, probe.Config{"period": 0})
	s := &sink{}

	p.RegisterListener(s)

	require.Eventually(t, func() bool {
		res, _ := s.snapshot()
		return len(res) == 1
	}, 2*time.Second, 5*time.Millisecond)

	res, _ := s.snapshot()
	assert.ErrorContains(t, res[0].Err, "endpoint required")
}

func TestRegistersProbe_SharedThroughFactory(t *testing.T) {
	f := probe.NewFactory(&probe.Host{Locker: power.Nop})
	require.NoError(t, f.Register(TypeName, Constructor((&dialRecorder{}).dial)))
	t.Cleanup(func() { _ = f.Close(context.Background()) })

	a, err := f.Get(TypeName, probe.Config{"endpoint": "h:502", "period": 5})
	require.NoError(t, err)
	b, err := f.Get(TypeName, probe.Config{"period": 5.0, "endpoint": "h:502"})
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, "probe://modbus.registers/%7B%22endpoint%22:%22h:502%22,%22period%22:5%7D", a.Address().String())
}

func TestSettings_IntervalHasFloor(t *testing.T) {
	assert.Equal(t, MinInterval, Settings{Period: 1e-12}.Interval())
	assert.Equal(t, MinInterval, Settings{Period: 0.0001}.Interval())
	assert.Equal(t, 250*time.Millisecond, Settings{Period: 0.25}.Interval())
}

type registersCapture struct {
	mu  sync.Mutex
	got []*RegistersProbe
}

func (c *registersCapture) OnStateChanged(p probe.Probe) {
	rp, _ := p.(*RegistersProbe)
	c.mu.Lock()
	c.got = append(c.got, rp)
	c.mu.Unlock()
}

func TestRegisters_StateListenerSeesConcreteType(t *testing.T) {
	p, _ := newRegistersProbe(t, probe.Config{"endpoint": "10.0.0.5:502"})
	c := &registersCapture{}
	p.AddStateListener(c)

	p.Enable()
	flushProbe(t, p)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.got, 1)
	assert.Same(t, p, c.got[0])
}
