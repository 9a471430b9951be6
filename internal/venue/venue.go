// Package venue holds the shared session machinery for exchange feeds.
//
// Each exchange gets its own sub-package with venue-specific decoding; both
// reuse RunLoop for the reconnect policy so the two sessions never share
// fate: a failure on one cannot disrupt the other.
package venue

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// KeepAliveInterval is how often sessions probe liveness (venue-appropriate:
// an application-level frame or a protocol-level ping).
const KeepAliveInterval = 20 * time.Second

// RunLoop runs connect until ctx is cancelled, sleeping between attempts
// with capped exponential backoff plus jitter:
//
//	delay = min(base * 2^attempt + jitter, max)
//
// connect must call onOpen once the session is established; that resets the
// attempt counter so a healthy session that later drops starts backoff from
// the base delay again.
func RunLoop(ctx context.Context, base, max time.Duration, logger *slog.Logger, connect func(ctx context.Context, onOpen func()) error) error {
	attempt := 0

	for {
		err := connect(ctx, func() { attempt = 0 })
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delay := backoffDelay(base, max, attempt)
		attempt++

		logger.Warn("session disconnected, reconnecting",
			"error", err,
			"attempt", attempt,
			"backoff", delay,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func backoffDelay(base, max time.Duration, attempt int) time.Duration {
	if attempt > 30 {
		attempt = 30 // avoid bit-shift overflow; max caps it anyway
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(base)))
	if delay+jitter > max {
		return max
	}
	return delay + jitter
}
