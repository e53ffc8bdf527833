// internal/poller/poller_test.go
package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClient struct {
	mu     sync.Mutex
	failFC uint8
	closed bool
	reads  int
}

func (f *fakeClient) read(fc uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failFC == fc {
		return errors.New("fail")
	}
	return nil
}

func (f *fakeClient) ReadCoils(addr, qty uint16) ([]bool, error) {
	if err := f.read(1); err != nil {
		return nil, err
	}
	return make([]bool, qty), nil
}

func (f *fakeClient) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	if err := f.read(2); err != nil {
		return nil, err
	}
	return make([]bool, qty), nil
}

func (f *fakeClient) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	if err := f.read(3); err != nil {
		return nil, err
	}
	regs := make([]uint16, qty)
	for i := range regs {
		regs[i] = addr + uint16(i)
	}
	return regs, nil
}

func (f *fakeClient) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	if err := f.read(4); err != nil {
		return nil, err
	}
	return make([]uint16, qty), nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testConfig() Config {
	return Config{
		UnitID: "u1",
		Reads: []ReadBlock{
			{FC: 1, Address: 0, Quantity: 8},
			{FC: 3, Address: 0, Quantity: 10},
		},
	}
}

func TestPollOnce_Success(t *testing.T) {
	p, err := New(testConfig(), &fakeClient{}, nil)
	require.NoError(t, err)

	res := p.PollOnce()
	require.NoError(t, res.Err)
	require.Len(t, res.Blocks, 2)
	assert.Len(t, res.Blocks[0].Bits, 8)
	assert.Len(t, res.Blocks[1].Registers, 10)
	assert.Equal(t, "u1", res.UnitID)
}

func TestPollOnce_Failure(t *testing.T) {
	p, err := New(testConfig(), &fakeClient{failFC: 3}, nil)
	require.NoError(t, err)

	res := p.PollOnce()
	assert.Error(t, res.Err)
	assert.Nil(t, res.Blocks)
	assert.Equal(t, uint16(1), res.RawErrorCode)
}

func TestPollOnce_RedialsAfterFailure(t *testing.T) {
	first := &fakeClient{failFC: 3}
	second := &fakeClient{}
	clients := []*fakeClient{first, second}
	dials := 0

	p, err := New(testConfig(), nil, func() (Client, error) {
		c := clients[dials]
		dials++
		return c, nil
	})
	require.NoError(t, err)

	assert.Error(t, p.PollOnce().Err)
	assert.True(t, first.isClosed())

	assert.NoError(t, p.PollOnce().Err)
	assert.NoError(t, p.PollOnce().Err)
	assert.Equal(t, 2, dials)
}

func TestPollOnce_DialFailure(t *testing.T) {
	p, err := New(testConfig(), nil, func() (Client, error) {
		return nil, errors.New("connection refused")
	})
	require.NoError(t, err)

	res := p.PollOnce()
	assert.ErrorContains(t, res.Err, "connection refused")
	assert.Equal(t, uint16(1), res.RawErrorCode)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Reads: testConfig().Reads}, &fakeClient{}, nil)
	assert.Error(t, err)

	_, err = New(Config{UnitID: "u1"}, &fakeClient{}, nil)
	assert.Error(t, err)

	_, err = New(Config{UnitID: "u1", Reads: []ReadBlock{{FC: 5, Quantity: 1}}}, &fakeClient{}, nil)
	assert.Error(t, err)

	_, err = New(testConfig(), nil, nil)
	assert.Error(t, err)
}

func TestRun_EmitsUntilCancelled(t *testing.T) {
	client := &fakeClient{}
	p, err := New(testConfig(), client, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	n := 0
	done := make(chan struct{})

	go func() {
		defer close(done)
		p.Run(ctx, 5*time.Millisecond, func(PollResult) {
			mu.Lock()
			n++
			mu.Unlock()
		})
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return n >= 3
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.True(t, client.isClosed())
}

func TestPayload_RoundTrip(t *testing.T) {
	at := time.UnixMilli(1700000000123)
	res := PollResult{
		UnitID: "10.0.0.5:502/1",
		At:     at,
		Blocks: []BlockResult{
			{FC: 3, Address: 2, Quantity: 2, Registers: []uint16{7, 8}},
			{FC: 1, Address: 0, Quantity: 2, Bits: []bool{true, false}},
		},
	}

	back, err := DecodeResult(res.Payload())
	require.NoError(t, err)
	assert.Equal(t, res.UnitID, back.UnitID)
	assert.True(t, at.Equal(back.At))
	assert.Equal(t, res.Blocks, back.Blocks)
	assert.NoError(t, back.Err)

	failed := PollResult{UnitID: "x", At: at, Err: errors.New("timeout"), RawErrorCode: 11}
	back, err = DecodeResult(failed.Payload())
	require.NoError(t, err)
	assert.EqualError(t, back.Err, "timeout")
	assert.Equal(t, uint16(11), back.RawErrorCode)
	assert.Nil(t, back.Blocks)
}
