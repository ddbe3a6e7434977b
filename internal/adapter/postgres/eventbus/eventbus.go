package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyang/call-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
)

const (
	// channelPrefix namespaces NOTIFY channels so several services can share a database.
	channelPrefix = "call_dispatch_"

	// maxPayload is the Postgres NOTIFY payload ceiling (8000 bytes) less headroom.
	maxPayload = 7900

	relistenDelay = time.Second
)

var ErrPayloadTooLarge = errors.New("event payload exceeds NOTIFY limit")

// EventBus carries dispatch events between processes sharing one database.
// Each subscription pins a pooled connection in LISTEN mode and re-LISTENs on
// a fresh connection if that one drops.
type EventBus struct {
	pool *pgxpool.Pool

	mu   sync.Mutex
	subs map[event.Channel]map[*subscription]struct{}
}

var _ porteventbus.EventBus = (*EventBus)(nil)

func New(pool *pgxpool.Pool) *EventBus {
	return &EventBus{
		pool: pool,
		subs: make(map[event.Channel]map[*subscription]struct{}),
	}
}

// Publish sends e with pg_notify on the channel of its domain.
func (eb *EventBus) Publish(ctx context.Context, e event.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling event: %w", err)
	}
	if len(payload) > maxPayload {
		return fmt.Errorf("publishing %s (%d bytes): %w", e.Type, len(payload), ErrPayloadTooLarge)
	}

	channel := channelName(event.ChannelFor(e.Type))
	if _, err := eb.pool.Exec(ctx, "SELECT pg_notify($1, $2)", channel, string(payload)); err != nil {
		return fmt.Errorf("publishing event on channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe calls handler for every event on ch until ctx ends or the
// subscription is cancelled. The first LISTEN runs synchronously so a
// returned subscription is already receiving.
func (eb *EventBus) Subscribe(ctx context.Context, ch event.Channel, handler porteventbus.Handler) (porteventbus.Subscription, error) {
	channel := channelName(ch)
	conn, err := eb.listen(ctx, channel)
	if err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{bus: eb, ch: ch, cancel: cancel, done: make(chan struct{})}
	eb.track(sub)

	go func() {
		defer close(sub.done)
		for {
			eb.drain(subCtx, conn, channel, handler)
			if subCtx.Err() != nil {
				return
			}

			slog.Warn("LISTEN connection lost, reconnecting", "channel", channel)
			if conn = eb.relisten(subCtx, channel); conn == nil {
				return
			}
		}
	}()

	return sub, nil
}

// Subscribers reports the live subscriptions on ch.
func (eb *EventBus) Subscribers(ch event.Channel) int {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	return len(eb.subs[ch])
}

func (eb *EventBus) listen(ctx context.Context, channel string) (*pgxpool.Conn, error) {
	conn, err := eb.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection for LISTEN: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+channel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("executing LISTEN on channel %s: %w", channel, err)
	}
	return conn, nil
}

// relisten retries LISTEN on a fresh connection until it succeeds or ctx ends.
func (eb *EventBus) relisten(ctx context.Context, channel string) *pgxpool.Conn {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(relistenDelay):
		}
		conn, err := eb.listen(ctx, channel)
		if err == nil {
			return conn
		}
		slog.Warn("re-LISTEN failed", "channel", channel, "error", err)
	}
}

// drain delivers notifications until ctx ends or the connection breaks, then
// releases the connection.
func (eb *EventBus) drain(ctx context.Context, conn *pgxpool.Conn, channel string, handler porteventbus.Handler) {
	defer func() {
		if !conn.Conn().IsClosed() {
			conn.Exec(context.Background(), "UNLISTEN "+channel) //nolint:errcheck
		}
		conn.Release()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil || conn.Conn().IsClosed() {
				return
			}
			slog.Warn("waiting for notification failed", "channel", channel, "error", err)
			continue
		}

		var e event.Event
		if err := json.Unmarshal([]byte(n.Payload), &e); err != nil {
			slog.Warn("dropping malformed event payload", "channel", channel, "error", err)
			continue
		}
		handler(ctx, e)
	}
}

func (eb *EventBus) track(sub *subscription) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.subs[sub.ch] == nil {
		eb.subs[sub.ch] = make(map[*subscription]struct{})
	}
	eb.subs[sub.ch][sub] = struct{}{}
}

func channelName(ch event.Channel) string {
	return channelPrefix + string(ch)
}

type subscription struct {
	bus    *EventBus
	ch     event.Channel
	cancel context.CancelFunc
	done   chan struct{}
}

func (s *subscription) Unsubscribe() {
	s.cancel()
	<-s.done

	s.bus.mu.Lock()
	delete(s.bus.subs[s.ch], s)
	s.bus.mu.Unlock()
}
