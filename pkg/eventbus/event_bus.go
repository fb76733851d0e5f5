// Package eventbus publishes and consumes case lifecycle events.
package eventbus

import (
	"context"

	"github.com/dukex/casework/pkg/events"
)

type EventPublisher interface {
	Publish(ctx context.Context, key string, event events.Event) error
}

type EventSubscriber interface {
	Handle(eventType events.EventType, handler EventHandler) error
	Subscribe(ctx context.Context) error
}

type EventHandler func(ctx context.Context, event events.Event) error

type EventBus interface {
	EventPublisher
	EventSubscriber
	Close() error
	GenerateID() string
}

// NoopEventBus drops every event. It backs deployments without a message broker.
type NoopEventBus struct{}

func (NoopEventBus) Publish(context.Context, string, events.Event) error { return nil }

func (NoopEventBus) Handle(events.EventType, EventHandler) error { return nil }

func (NoopEventBus) Subscribe(context.Context) error { return nil }

func (NoopEventBus) Close() error { return nil }

func (NoopEventBus) GenerateID() string { return "" }
