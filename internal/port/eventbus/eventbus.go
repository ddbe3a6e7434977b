package eventbus

import (
	"context"

	"github.com/alanyang/call-dispatch/internal/domain/event"
)

//go:generate mockgen -source=eventbus.go -destination=../../mocks/mock_eventbus.go -package=mocks

type Handler func(ctx context.Context, e event.Event)

type Subscription interface {
	Unsubscribe()
}

type EventBus interface {
	Publish(ctx context.Context, e event.Event) error
	Subscribe(ctx context.Context, ch event.Channel, handler Handler) (Subscription, error)
}
