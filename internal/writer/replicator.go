// internal/writer/replicator.go
package writer

import (
	"log/slog"

	"github.com/tamzrod/probe-runtime/internal/poller"
	"github.com/tamzrod/probe-runtime/internal/probe"
)

// Replicator feeds the payloads of a register probe into a Writer.
type Replicator struct {
	w   Writer
	log *slog.Logger
}

// NewReplicator returns a listener that writes every received poll.
func NewReplicator(w Writer, log *slog.Logger) *Replicator {
	if log == nil {
		log = slog.Default()
	}
	return &Replicator{w: w, log: log}
}

func (r *Replicator) OnDataReceived(addr probe.Address, data probe.Payload) {
	res, err := poller.DecodeResult(data)
	if err != nil {
		r.log.Error("writer: undecodable payload", "probe", addr.String(), "error", err)
		return
	}
	if err := r.w.Write(res); err != nil {
		r.log.Warn("writer: write failed", "source", res.UnitID, "error", err)
	}
}

func (r *Replicator) OnDataCompleted(addr probe.Address) {
	r.log.Debug("writer: source completed", "probe", addr.String())
}
