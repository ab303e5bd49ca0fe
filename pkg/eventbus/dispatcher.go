package eventbus

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/errors"
)

// Dispatcher turns inbound wire messages into typed events and runs their
// handlers. Concurrent ProcessEvent calls are bounded; handlers of one
// message run sequentially in registration order.
type Dispatcher struct {
	registry     *Registry
	provider     HandlerProvider
	resolver     NameResolver
	codec        Codec
	policy       FailurePolicy
	counter      Counter
	logger       contracts.Logger
	panicHandler PanicHandler
	errorHandler ErrorHandler
	sem          chan struct{}
}

func NewDispatcher(registry *Registry, provider HandlerProvider, opts ...Option) *Dispatcher {
	return newDispatcher(registry, provider, newConfig(opts...))
}

func newDispatcher(registry *Registry, provider HandlerProvider, cfg *config) *Dispatcher {
	return &Dispatcher{
		registry:     registry,
		provider:     provider,
		resolver:     cfg.resolver(),
		codec:        cfg.codec,
		policy:       cfg.failurePolicy,
		counter:      cfg.counter,
		logger:       cfg.logger,
		panicHandler: cfg.panicHandler,
		errorHandler: cfg.errorHandler,
		sem:          make(chan struct{}, cfg.maxConcurrentDispatch),
	}
}

// ProcessEvent reports whether rawName had subscribers. A malformed payload
// fails with ErrDeserialization before any handler runs.
func (d *Dispatcher) ProcessEvent(ctx context.Context, rawName string, payload []byte) (bool, error) {
	name := d.resolver.Normalize(rawName)
	if !d.registry.HasSubscriptions(name) {
		d.counter.IncProcessed(name, StatusSkipped)
		return false, nil
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	defer func() { <-d.sem }()

	start := time.Now()
	defer func() {
		d.counter.ObserveProcessingTime(name, time.Since(start))
	}()

	subs, eventType, ok := d.registry.snapshot(name)
	if !ok {
		d.counter.IncProcessed(name, StatusSkipped)
		return false, nil
	}

	typed, dynamic, err := d.decode(name, eventType, subs, payload)
	if err != nil {
		d.counter.IncProcessed(name, StatusDropped)
		d.logger.Warn("dropping undecodable event", "event", name, "error", err)
		return false, err
	}

	var errs []error
	for _, sub := range subs {
		handler, ok := d.provider.Resolve(ctx, sub.HandlerID)
		if !ok {
			d.logger.Trace("handler not available, skipping", "event", name, "handler", sub.HandlerID)
			continue
		}

		event := typed
		if sub.Dynamic {
			event = dynamic
		}

		if err := d.invoke(ctx, name, sub.HandlerID, handler, event); err != nil {
			d.counter.IncError(name, string(sub.HandlerID))
			d.errorHandler.Handle(event, sub.HandlerID, err)
			if d.policy == FailFast {
				d.counter.IncProcessed(name, StatusError)
				return true, err
			}
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		d.counter.IncProcessed(name, StatusError)
		return true, errors.Join(errs...)
	}

	d.counter.IncProcessed(name, StatusSuccess)
	return true, nil
}

// decode builds the typed value for static handlers and the DynamicEvent for
// dynamic ones, each at most once per message.
func (d *Dispatcher) decode(
	name string,
	eventType EventType,
	subs []SubscriptionInfo,
	payload []byte,
) (typed any, dynamic any, err error) {
	var needTyped, needDynamic bool
	for _, sub := range subs {
		if sub.Dynamic {
			needDynamic = true
		} else {
			needTyped = true
		}
	}

	if needTyped {
		if typed, err = eventType.Decode(d.codec, name, payload); err != nil {
			return nil, nil, wrapDeserialization(name, err)
		}
	}
	if needDynamic {
		if dynamic, err = decodeDynamic(d.codec, name, payload); err != nil {
			return nil, nil, err
		}
	}
	return typed, dynamic, nil
}

func wrapDeserialization(name string, err error) error {
	if errors.Is(err, ErrDeserialization) {
		return err
	}
	return ErrDeserialization.
		WithDetail("event", name).
		WithCause(err)
}

func (d *Dispatcher) invoke(ctx context.Context, name string, id HandlerID, handler Handler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.panicHandler.Handle(event, id, r, debug.Stack())
			err = ErrHandler.
				WithDetail("event", name).
				WithDetail("handler", string(id)).
				WithCause(ErrHandlerPanic.WithDetail("panic", fmt.Sprint(r)))
		}
	}()

	if err := handler.Handle(ctx, event); err != nil {
		return ErrHandler.
			WithDetail("event", name).
			WithDetail("handler", string(id)).
			WithCause(err)
	}
	return nil
}
