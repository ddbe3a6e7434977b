package testutil

import (
	"context"
	"sync"

	"github.com/alanyang/call-dispatch/internal/domain/event"
	porteventbus "github.com/alanyang/call-dispatch/internal/port/eventbus"
)

// CaptureBus is a test double for port/eventbus.EventBus that records every
// published event. It is safe for concurrent use.
type CaptureBus struct {
	mu     sync.Mutex
	Events []event.Event
}

var _ porteventbus.EventBus = (*CaptureBus)(nil)

func (c *CaptureBus) Publish(_ context.Context, e event.Event) error {
	c.mu.Lock()
	c.Events = append(c.Events, e)
	c.mu.Unlock()
	return nil
}

func (c *CaptureBus) Subscribe(context.Context, event.Channel, porteventbus.Handler) (porteventbus.Subscription, error) {
	return nopSubscription{}, nil
}

// Types returns the published event types in order.
func (c *CaptureBus) Types() []event.Type {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Type, len(c.Events))
	for i, e := range c.Events {
		out[i] = e.Type
	}
	return out
}

type nopSubscription struct{}

func (nopSubscription) Unsubscribe() {}
