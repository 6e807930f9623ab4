package registry

import (
	"context"
	"time"
)

// RunSweeper periodically expires idle sessions until ctx is canceled.
// Intended to run in its own goroutine for the lifetime of the server.
func (r *Registry) RunSweeper(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ttl)
		}
	}
}
