// internal/writer/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Protocol limits for one write request.
const (
	MaxCoilsPerWrite     = 1968
	MaxRegistersPerWrite = 123
)

// EndpointClient is a single TCP connection to one MMA endpoint.
// It serializes requests because it mutates SlaveId per write.
type EndpointClient struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// NewEndpointClient prepares a client. The TCP connection is opened by the
// first write and re-opened after the handler drops it.
func NewEndpointClient(cfg Config) (*EndpointClient, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("writer modbus: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	return &EndpointClient{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

func (c *EndpointClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

func (c *EndpointClient) WriteCoils(unitID uint8, addr uint16, bits []bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	for _, ch := range chunks(addr, len(bits), MaxCoilsPerWrite) {
		part := bits[ch.from:ch.to]
		if _, err := c.client.WriteMultipleCoils(ch.addr, uint16(len(part)), packBits(part)); err != nil {
			return fmt.Errorf("write coils at %d: %w", ch.addr, err)
		}
	}
	return nil
}

func (c *EndpointClient) WriteRegisters(unitID uint8, addr uint16, regs []uint16) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handler.SlaveId = unitID

	for _, ch := range chunks(addr, len(regs), MaxRegistersPerWrite) {
		part := regs[ch.from:ch.to]
		if _, err := c.client.WriteMultipleRegisters(ch.addr, uint16(len(part)), packRegisters(part)); err != nil {
			return fmt.Errorf("write registers at %d: %w", ch.addr, err)
		}
	}
	return nil
}

type chunk struct {
	addr     uint16
	from, to int
}

// chunks splits n items starting at addr into requests of at most max items.
func chunks(addr uint16, n, max int) []chunk {
	var out []chunk
	for from := 0; from < n; from += max {
		to := from + max
		if to > n {
			to = n
		}
		out = append(out, chunk{addr: addr + uint16(from), from: from, to: to})
	}
	return out
}

func packBits(bits []bool) []byte {
	n := (len(bits) + 7) / 8
	out := make([]byte, n)
	for i, v := range bits {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}
