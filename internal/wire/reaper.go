package wire

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/alanyang/call-dispatch/internal/adapter/memory"
	portidem "github.com/alanyang/call-dispatch/internal/port/idempotency"
)

// RunReaper drops stored upload results once they are older than the
// idempotency TTL. It purges once at startup, then on every tick, and returns
// when ctx is done.
func RunReaper(ctx context.Context, purger portidem.Purger) error {
	ttl := envDuration("IDEMPOTENCY_TTL_SECONDS", memory.DefaultIdempotencyTTL)
	every := envDuration("IDEMPOTENCY_PURGE_INTERVAL_SECONDS", time.Hour)
	return runReaper(ctx, purger, ttl, every, time.Now)
}

func runReaper(ctx context.Context, purger portidem.Purger, ttl, every time.Duration, now func() time.Time) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		reap(ctx, purger, now().Add(-ttl))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func reap(ctx context.Context, purger portidem.Purger, cutoff time.Time) {
	n, err := purger.Purge(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			slog.ErrorContext(ctx, "reaper: purge failed", "error", err)
		}
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "reaper: purged idempotency keys", "count", n, "cutoff", cutoff)
	}
}

// envDuration reads an integer-seconds env var and returns a Duration.
// Falls back to defaultVal if the var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
