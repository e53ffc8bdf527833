// internal/writer/types.go
package writer

import "github.com/tamzrod/probe-runtime/internal/poller"

// MemoryDest is one MMA memory destination inside an endpoint.
type MemoryDest struct {
	MemoryID uint16
	Offsets  map[int]uint16 // per-FC offset deltas; missing FC => 0
}

// TargetEndpoint is one target endpoint (TCP) with one or more memory destinations.
type TargetEndpoint struct {
	TargetID uint32
	Endpoint string
	UnitID   uint8
	Memories []MemoryDest
}

// StatusPlan locates the device status block of one probe.
type StatusPlan struct {
	Endpoint   string
	UnitID     uint8
	BaseSlot   uint16
	DeviceName string
}

// Plan is the fully-built write plan for one probe.
type Plan struct {
	ProbeID string
	Targets []TargetEndpoint
	Status  *StatusPlan // nil => status disabled
}

// Writer writes poll snapshots into targets.
type Writer interface {
	Write(res poller.PollResult) error
}
