package locker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	portlocker "github.com/alanyang/call-dispatch/internal/port/locker"
)

// slowWait is how long a tenant may queue for its lock before it is logged.
const slowWait = 2 * time.Second

// Locker implements port/locker.AdvisoryLocker with Postgres session advisory
// locks. Lock and unlock run on the same acquired connection: pg_advisory_lock
// is session-level, so unlocking from another connection is a no-op.
type Locker struct {
	pool *pgxpool.Pool
	wait time.Duration
}

var _ portlocker.AdvisoryLocker = (*Locker)(nil)

type Option func(*Locker)

// WithWaitTimeout bounds how long WithLock queues behind another holder.
// Zero waits as long as ctx allows.
func WithWaitTimeout(d time.Duration) Option {
	return func(l *Locker) { l.wait = d }
}

func New(pool *pgxpool.Pool, opts ...Option) *Locker {
	l := &Locker{pool: pool}
	for _, o := range opts {
		o(l)
	}
	return l
}

func (l *Locker) WithLock(ctx context.Context, key int64, fn func(ctx context.Context) error) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection for advisory lock: %w", err)
	}
	defer conn.Release()

	if err := l.lock(ctx, conn, key); err != nil {
		return err
	}
	defer func() {
		// Background context so the unlock still runs after ctx is cancelled.
		if _, err := conn.Exec(context.Background(), "SELECT pg_advisory_unlock($1)", key); err != nil {
			slog.Error("releasing advisory lock failed", "key", key, "error", err)
		}
	}()

	return fn(ctx)
}

func (l *Locker) lock(ctx context.Context, conn *pgxpool.Conn, key int64) error {
	waitCtx := ctx
	if l.wait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, l.wait)
		defer cancel()
	}

	start := time.Now()
	_, err := conn.Exec(waitCtx, "SELECT pg_advisory_lock($1)", key)
	if waited := time.Since(start); waited > slowWait {
		slog.WarnContext(ctx, "slow advisory lock acquisition", "key", key, "waited", waited)
	}
	if err != nil {
		if ctx.Err() == nil && errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("advisory lock %d after %s: %w", key, l.wait, portlocker.ErrTimeout)
		}
		return fmt.Errorf("acquiring advisory lock %d: %w", key, err)
	}
	return nil
}
