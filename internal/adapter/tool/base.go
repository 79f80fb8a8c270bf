package tool

import (
	"context"
	"time"
)

// settle pauses for d so the loading skeleton is visible before the card
// resolves. Returns early if the context is cancelled.
func settle(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
