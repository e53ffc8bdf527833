// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tamzrod/probe-runtime/internal/poller"
)

// endpointClient is the exact contract the writer uses.
type endpointClient interface {
	WriteCoils(unitID uint8, addr uint16, bits []bool) error
	WriteRegisters(unitID uint8, addr uint16, regs []uint16) error
}

// Clients maps an endpoint to its connection.
type Clients map[string]endpointClient

type modbusWriter struct {
	plan    Plan
	clients Clients
}

// New returns the data writer for plan.
func New(plan Plan, clients Clients) Writer {
	return &modbusWriter{
		plan:    plan,
		clients: clients,
	}
}

// Write copies every block of a successful poll into every memory of
// every target. Failed polls write nothing.
func (w *modbusWriter) Write(res poller.PollResult) error {
	if res.Err != nil {
		return nil
	}

	var errs []string

	for _, tgt := range w.plan.Targets {
		cli := w.clients[tgt.Endpoint]
		if cli == nil {
			errs = append(errs, fmt.Sprintf(
				"writer: missing client for endpoint %s",
				tgt.Endpoint,
			))
			continue
		}

		for _, mem := range tgt.Memories {
			for _, b := range res.Blocks {
				dstAddr := offsetForFC(mem.Offsets, b.FC) + b.Address

				var err error
				switch b.FC {
				case 1, 2:
					err = cli.WriteCoils(tgt.UnitID, dstAddr, b.Bits)
				case 3, 4:
					err = cli.WriteRegisters(tgt.UnitID, dstAddr, b.Registers)
				default:
					errs = append(errs, fmt.Sprintf("writer: unsupported fc %d", b.FC))
					continue
				}
				if err != nil {
					errs = append(errs, fmt.Sprintf(
						"writer: ep=%s unit=%d mem=%d fc=%d addr=%d err=%v",
						tgt.Endpoint, tgt.UnitID, mem.MemoryID, b.FC, dstAddr, err,
					))
				}
			}
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, " | "))
	}

	return nil
}

func offsetForFC(offsets map[int]uint16, fc uint8) uint16 {
	if offsets == nil {
		return 0
	}
	if v, ok := offsets[int(fc)]; ok {
		return v
	}
	return 0
}
