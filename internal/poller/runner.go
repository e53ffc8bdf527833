// internal/poller/runner.go
package poller

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Run polls once immediately, then at most once per interval, and hands
// every result to emit. One goroutine per unit. No overlap. No retries.
// The client is closed when ctx ends.
func (p *Poller) Run(ctx context.Context, interval time.Duration, emit func(PollResult)) {
	defer p.Close()

	if interval < MinInterval {
		interval = MinInterval
	}
	lim := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		res := p.PollOnce()
		if ctx.Err() != nil {
			return
		}
		emit(res)
	}
}
