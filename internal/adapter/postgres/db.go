package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// minFreeConns is the number of connections left for queries and advisory
// locks once every LISTEN subscriber holds its own.
const minFreeConns = 4

// PoolOptions sizes the pool. Listeners is the number of event bus channels
// that will each pin a connection for LISTEN.
type PoolOptions struct {
	MaxConns    int32
	Listeners   int32
	PingTimeout time.Duration
}

// Connect opens a pool sized so LISTEN subscribers cannot starve request
// traffic, and verifies it with a ping.
func Connect(ctx context.Context, connString string, opts PoolOptions) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	if floor := opts.Listeners + minFreeConns; config.MaxConns < floor {
		config.MaxConns = floor
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx := ctx
	if opts.PingTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, opts.PingTimeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}
