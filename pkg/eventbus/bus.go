package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shuldan/eventbus/pkg/contracts"
)

type Bus struct {
	transport  Transport
	registry   *Registry
	dispatcher *Dispatcher
	resolver   NameResolver
	codec      Codec
	logger     contracts.Logger
	routes     *routeLocks

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New composes a bus over transport. Handlers are resolved from provider
// for every delivered message.
func New(transport Transport, provider HandlerProvider, opts ...Option) *Bus {
	cfg := newConfig(opts...)
	registry := NewRegistry()

	b := &Bus{
		transport:  transport,
		registry:   registry,
		dispatcher: newDispatcher(registry, provider, cfg),
		resolver:   cfg.resolver(),
		codec:      cfg.codec,
		logger:     cfg.logger,
		routes:     newRouteLocks(),
	}

	registry.OnEvicted(func(name string) {
		b.logger.Debug("event evicted from registry", "event", name)
	})
	transport.RegisterMessageCallback(b.dispatcher.ProcessEvent)

	return b
}

func (b *Bus) Registry() *Registry {
	return b.registry
}

func (b *Bus) Dispatcher() *Dispatcher {
	return b.dispatcher
}

func (b *Bus) NameResolver() NameResolver {
	return b.resolver
}

// Publish encodes event and hands it to the transport, connecting first if
// needed. Delivery is best effort.
func (b *Bus) Publish(ctx context.Context, event any) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name, payload, err := b.encode(event)
	if err != nil {
		return err
	}

	if !b.transport.IsConnected() {
		if err := b.transport.Connect(ctx); err != nil {
			return ErrPublish.WithDetail("event", name).WithCause(err)
		}
	}

	if err := b.transport.Publish(ctx, name, payload); err != nil {
		return ErrPublish.WithDetail("event", name).WithCause(err)
	}

	b.logger.Trace("event published", "event", name, "size", len(payload))
	return nil
}

func (b *Bus) encode(event any) (string, []byte, error) {
	if event == nil {
		return "", nil, ErrSerialization.WithDetail("event", "<nil>")
	}

	switch e := event.(type) {
	case DynamicEvent:
		return b.resolver.Normalize(e.Name), e.Payload, nil
	case *DynamicEvent:
		return b.resolver.Normalize(e.Name), e.Payload, nil
	}

	name := b.resolver.Normalize(eventNameOf(event))
	if name == "" {
		return "", nil, ErrSerialization.WithDetail("event", "<anonymous>")
	}

	payload, err := b.codec.Marshal(event)
	if err != nil {
		return "", nil, ErrSerialization.WithDetail("event", name).WithCause(err)
	}
	return name, payload, nil
}

// Subscribe registers handler id for eventType. The first subscription of
// an event provisions its route; if provisioning fails the registration is
// rolled back. Subscriptions to the same event wait for a pending
// provisioning or teardown to finish.
func (b *Bus) Subscribe(ctx context.Context, eventType EventType, id HandlerID) error {
	if b.closed.Load() {
		return ErrBusClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	name := b.resolver.Normalize(eventType.Name())
	unlock := b.routes.lock(name)
	defer unlock()

	created, err := b.registry.Add(name, id, eventType)
	if err != nil {
		return err
	}

	b.logger.Info("subscribed", "event", name, "handler", id, "dynamic", eventType.Dynamic())
	if !created {
		return nil
	}

	if err := b.transport.ProvisionRoute(ctx, name); err != nil {
		b.registry.Remove(name, id)
		return ErrProvisionRoute.WithDetail("event", name).WithCause(err)
	}

	b.logger.Debug("route provisioned", "event", name)
	return nil
}

func (b *Bus) SubscribeDynamic(ctx context.Context, eventName string, id HandlerID) error {
	return b.Subscribe(ctx, DynamicEventType(eventName), id)
}

// Unsubscribe removes handler id from eventType and tears down the route
// once the event has no handlers left. Unknown pairs are ignored.
func (b *Bus) Unsubscribe(ctx context.Context, eventType EventType, id HandlerID) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	name := b.resolver.Normalize(eventType.Name())
	unlock := b.routes.lock(name)
	defer unlock()

	if !b.registry.Remove(name, id) {
		return nil
	}

	b.logger.Info("unsubscribed", "event", name, "handler", id)
	if err := b.transport.TeardownRoute(ctx, name); err != nil {
		return ErrTeardownRoute.WithDetail("event", name).WithCause(err)
	}

	b.logger.Debug("route torn down", "event", name)
	return nil
}

func (b *Bus) UnsubscribeDynamic(ctx context.Context, eventName string, id HandlerID) error {
	return b.Unsubscribe(ctx, DynamicEventType(eventName), id)
}

// Close clears the registry and closes the transport. It is idempotent.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		b.registry.Clear()
		b.closeErr = b.transport.Close()
	})
	return b.closeErr
}

func Subscribe[T any](ctx context.Context, b *Bus, id HandlerID) error {
	return b.Subscribe(ctx, EventOf[T](), id)
}

func Unsubscribe[T any](ctx context.Context, b *Bus, id HandlerID) error {
	return b.Unsubscribe(ctx, EventOf[T](), id)
}
