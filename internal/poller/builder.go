// internal/poller/builder.go
package poller

import (
	"errors"
	"fmt"
	"time"

	pmodbus "github.com/tamzrod/probe-runtime/internal/poller/modbus"
)

// DialFunc opens one client for the given transport config.
type DialFunc func(cfg pmodbus.Config) (Client, error)

// DialTCP is the production DialFunc.
func DialTCP(cfg pmodbus.Config) (Client, error) {
	c, err := pmodbus.New(cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Settings are the configurable fields of a register probe.
type Settings struct {
	Endpoint  string
	UnitID    uint8
	TimeoutMs int
	Period    float64 // seconds; <= 0 polls once
	Reads     []ReadBlock
}

// DefaultSettings are the values of an unconfigured probe.
func DefaultSettings() Settings {
	return Settings{
		UnitID:    1,
		TimeoutMs: 1000,
		Period:    1,
	}
}

// SourceID names the polled device in results.
func (s Settings) SourceID() string {
	return fmt.Sprintf("%s/%d", s.Endpoint, s.UnitID)
}

// MinInterval is the shortest polling interval. Shorter periods are
// raised to it so a tiny period cannot turn into an unthrottled loop.
const MinInterval = time.Millisecond

// Interval converts Period to a duration of at least MinInterval.
func (s Settings) Interval() time.Duration {
	d := time.Duration(s.Period * float64(time.Second))
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// Build constructs a Poller for s.
// The connection is NOT opened here: the poller dials on its first cycle,
// reuses the client while healthy and redials after transport death.
// One attempt per cycle. No retries, no loops, no semantics.
func Build(s Settings, dial DialFunc) (*Poller, error) {
	if s.Endpoint == "" {
		return nil, errors.New("poller: endpoint required")
	}
	if dial == nil {
		dial = DialTCP
	}

	transport := pmodbus.Config{
		Endpoint: s.Endpoint,
		UnitID:   s.UnitID,
		Timeout:  time.Duration(s.TimeoutMs) * time.Millisecond,
	}

	return New(
		Config{
			UnitID: s.SourceID(),
			Reads:  s.Reads,
		},
		nil,
		func() (Client, error) { return dial(transport) },
	)
}
