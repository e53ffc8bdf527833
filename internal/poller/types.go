// internal/poller/types.go
package poller

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/tamzrod/probe-runtime/internal/probe"
)

// ReadBlock describes one Modbus read geometry.
// Geometry only: no semantics.
type ReadBlock struct {
	FC       uint8  `json:"fc" yaml:"fc"`
	Address  uint16 `json:"address" yaml:"address"`
	Quantity uint16 `json:"quantity" yaml:"quantity"`
}

// BlockResult is the raw result of a single read.
type BlockResult struct {
	FC       uint8  `json:"fc"`
	Address  uint16 `json:"address"`
	Quantity uint16 `json:"quantity"`

	// Exactly one of these is used depending on FC.
	Bits      []bool   `json:"bits,omitempty"`      // FC 1,2
	Registers []uint16 `json:"registers,omitempty"` // FC 3,4
}

// PollResult is a snapshot produced by one poll cycle.
type PollResult struct {
	UnitID string
	At     time.Time

	// RawErrorCode is copied verbatim from the device.
	// 0 means success; non-zero is opaque and device-defined.
	RawErrorCode uint16

	Blocks []BlockResult
	Err    error // non-nil means the poll cycle failed
}

// ---- PAYLOAD FORM ----

// Payload keys.
const (
	KeyUnitID    = "unit_id"
	KeyOK        = "ok"
	KeyError     = "error"
	KeyErrorCode = "error_code"
	KeyBlocks    = "blocks"
)

type wireResult struct {
	UnitID    string        `json:"unit_id"`
	OK        bool          `json:"ok"`
	Error     string        `json:"error,omitempty"`
	ErrorCode uint16        `json:"error_code,omitempty"`
	Blocks    []BlockResult `json:"blocks,omitempty"`
	Timestamp float64       `json:"timestamp"`
}

// Payload renders the result as an emitted record.
func (r PollResult) Payload() probe.Payload {
	w := wireResult{
		UnitID:    r.UnitID,
		OK:        r.Err == nil,
		ErrorCode: r.RawErrorCode,
		Blocks:    r.Blocks,
		Timestamp: probe.Timestamp(r.At),
	}
	if r.Err != nil {
		w.Error = r.Err.Error()
		w.Blocks = nil
	}

	out := probe.Payload{
		KeyUnitID:          w.UnitID,
		KeyOK:              w.OK,
		probe.TimestampKey: w.Timestamp,
	}
	if w.Error != "" {
		out[KeyError] = w.Error
	}
	if w.ErrorCode != 0 {
		out[KeyErrorCode] = w.ErrorCode
	}
	if len(w.Blocks) > 0 {
		out[KeyBlocks] = w.Blocks
	}
	return out
}

// DecodeResult is the inverse of PollResult.Payload.
func DecodeResult(p probe.Payload) (PollResult, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return PollResult{}, fmt.Errorf("poller: encode payload: %w", err)
	}
	var w wireResult
	if err := json.Unmarshal(raw, &w); err != nil {
		return PollResult{}, fmt.Errorf("poller: decode payload: %w", err)
	}

	sec, frac := math.Modf(w.Timestamp)
	res := PollResult{
		UnitID:       w.UnitID,
		At:           time.Unix(int64(sec), int64(math.Round(frac*1000))*int64(time.Millisecond)),
		RawErrorCode: w.ErrorCode,
		Blocks:       w.Blocks,
	}
	if !w.OK {
		msg := w.Error
		if msg == "" {
			msg = "poll failed"
		}
		res.Err = errors.New(msg)
		res.Blocks = nil
	}
	return res, nil
}
