// internal/poller/poller.go
package poller

import (
	"errors"
	"fmt"
	"io"
	"time"

	pmodbus "github.com/tamzrod/probe-runtime/internal/poller/modbus"
)

// Client abstracts Modbus operations needed by the poller.
// The poller depends on geometry only.
type Client interface {
	ReadCoils(addr, qty uint16) ([]bool, error)              // FC 1
	ReadDiscreteInputs(addr, qty uint16) ([]bool, error)     // FC 2
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) // FC 3
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)   // FC 4
}

// Dialer makes ONE connection attempt per call.
type Dialer func() (Client, error)

// Config is the minimal runtime config the poller needs.
type Config struct {
	UnitID string
	Reads  []ReadBlock
}

// Poller is a dumb reader. The caller owns the clock.
// Poller is not safe for concurrent use.
type Poller struct {
	cfg    Config
	client Client
	dial   Dialer
}

// New creates a poller with immutable config. client may be nil, in
// which case dial is used on the first poll.
func New(cfg Config, client Client, dial Dialer) (*Poller, error) {
	if cfg.UnitID == "" {
		return nil, errors.New("poller: unit id required")
	}
	if len(cfg.Reads) == 0 {
		return nil, errors.New("poller: at least one read block required")
	}
	for _, rb := range cfg.Reads {
		if rb.FC < 1 || rb.FC > 4 {
			return nil, fmt.Errorf("poller: unsupported function code %d", rb.FC)
		}
	}
	if client == nil && dial == nil {
		return nil, errors.New("poller: client or dialer required")
	}
	return &Poller{cfg: cfg, client: client, dial: dial}, nil
}

// PollOnce performs exactly one poll cycle.
// All-or-nothing: any failure aborts the cycle. On failure the client is
// discarded and a fresh one is dialed on the next cycle.
func (p *Poller) PollOnce() PollResult {
	res := PollResult{
		UnitID: p.cfg.UnitID,
		At:     time.Now(),
	}

	if p.client == nil {
		if p.dial == nil {
			res.Err = errors.New("poller: no client")
			res.RawErrorCode = 1
			return res
		}
		c, err := p.dial()
		if err != nil {
			res.Err = fmt.Errorf("poller: connect: %w", err)
			res.RawErrorCode = pmodbus.ErrorCode(err)
			return res
		}
		p.client = c
	}

	blocks, err := p.readAll()
	if err != nil {
		res.Err = err
		res.RawErrorCode = pmodbus.ErrorCode(err)
		p.discard()
		return res
	}

	// Commit only if all reads succeeded
	res.Blocks = blocks
	return res
}

func (p *Poller) readAll() ([]BlockResult, error) {
	blocks := make([]BlockResult, 0, len(p.cfg.Reads))

	for _, rb := range p.cfg.Reads {
		b := BlockResult{FC: rb.FC, Address: rb.Address, Quantity: rb.Quantity}
		var err error

		switch rb.FC {
		case 1:
			b.Bits, err = p.client.ReadCoils(rb.Address, rb.Quantity)
		case 2:
			b.Bits, err = p.client.ReadDiscreteInputs(rb.Address, rb.Quantity)
		case 3:
			b.Registers, err = p.client.ReadHoldingRegisters(rb.Address, rb.Quantity)
		case 4:
			b.Registers, err = p.client.ReadInputRegisters(rb.Address, rb.Quantity)
		default:
			err = errors.New("poller: unsupported function code")
		}
		if err != nil {
			return nil, fmt.Errorf("poller: fc=%d addr=%d qty=%d: %w", rb.FC, rb.Address, rb.Quantity, err)
		}
		blocks = append(blocks, b)
	}

	return blocks, nil
}

// Close releases the current client, if any.
func (p *Poller) Close() error {
	c := p.client
	p.client = nil
	if closer, ok := c.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func (p *Poller) discard() {
	// Only pollers that can redial drop their client.
	if p.dial == nil {
		return
	}
	_ = p.Close()
}
