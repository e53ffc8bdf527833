// internal/poller/modbus/client.go
package modbus

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goburrow/modbus"
)

// Client implements poller.Client using Modbus TCP.
// This adapter is geometry-only: it issues reads and unpacks raw responses.
type Client struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
}

// Config is minimal transport config.
type Config struct {
	Endpoint string
	UnitID   uint8
	Timeout  time.Duration
}

// New creates a connected Modbus TCP client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus client: endpoint required")
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout
	h.SlaveId = cfg.UnitID

	if err := h.Connect(); err != nil {
		return nil, err
	}

	return &Client{
		handler: h,
		client:  modbus.NewClient(h),
	}, nil
}

// Close closes the TCP connection.
func (c *Client) Close() error {
	if c == nil || c.handler == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler.Close()
}

// ---- poller.Client interface ----

func (c *Client) ReadCoils(addr, qty uint16) ([]bool, error) {
	return c.readBits(addr, qty, c.client.ReadCoils)
}

func (c *Client) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	return c.readBits(addr, qty, c.client.ReadDiscreteInputs)
}

func (c *Client) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return c.readRegisters(addr, qty, c.client.ReadHoldingRegisters)
}

func (c *Client) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return c.readRegisters(addr, qty, c.client.ReadInputRegisters)
}

type readFunc func(addr, qty uint16) ([]byte, error)

func (c *Client) readBits(addr, qty uint16, read readFunc) ([]bool, error) {
	if qty == 0 {
		return nil, nil
	}
	c.mu.Lock()
	data, err := read(addr, qty)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(data) < (int(qty)+7)/8 {
		return nil, errors.New("modbus: read-bits payload shorter than quantity")
	}
	return unpackBits(data, int(qty)), nil
}

func (c *Client) readRegisters(addr, qty uint16, read readFunc) ([]uint16, error) {
	if qty == 0 {
		return nil, nil
	}
	c.mu.Lock()
	data, err := read(addr, qty)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if len(data)%2 != 0 {
		return nil, errors.New("modbus: read-registers byte count not even")
	}
	if len(data) < 2*int(qty) {
		return nil, fmt.Errorf("modbus: read-registers got %d bytes, want %d", len(data), 2*int(qty))
	}
	return unpackRegisters(data), nil
}

// ErrorCode extracts the Modbus exception code carried by err.
// Transport and other failures map to 1 (generic error).
func ErrorCode(err error) uint16 {
	if err == nil {
		return 0
	}
	var me *modbus.ModbusError
	if errors.As(err, &me) {
		return uint16(me.ExceptionCode)
	}
	return 1
}

// ---- helpers (pure geometry) ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
