package eventbus

import (
	"context"
	"fmt"
	"sync"
)

type HandlerID string

type Handler interface {
	Handle(ctx context.Context, event any) error
}

type HandlerFunc func(ctx context.Context, event any) error

func (f HandlerFunc) Handle(ctx context.Context, event any) error {
	return f(ctx, event)
}

// HandlerFor adapts a typed function to Handler.
func HandlerFor[T any](fn func(context.Context, T) error) Handler {
	return HandlerFunc(func(ctx context.Context, event any) error {
		typed, ok := event.(T)
		if !ok {
			var zero T
			return ErrInvalidEventType.
				WithDetail("expected", fmt.Sprintf("%T", zero)).
				WithDetail("got", fmt.Sprintf("%T", event))
		}
		return fn(ctx, typed)
	})
}

// HandlerProvider resolves a live handler for one dispatch. A false result
// means the handler is not available in this scope and is skipped.
type HandlerProvider interface {
	Resolve(ctx context.Context, id HandlerID) (Handler, bool)
}

type HandlerFactory func(ctx context.Context) (Handler, error)

// Handlers is a HandlerProvider backed by registered instances and
// per-dispatch factories.
type Handlers struct {
	mu        sync.RWMutex
	instances map[HandlerID]Handler
	factories map[HandlerID]HandlerFactory
}

func NewHandlers() *Handlers {
	return &Handlers{
		instances: make(map[HandlerID]Handler),
		factories: make(map[HandlerID]HandlerFactory),
	}
}

func (h *Handlers) Has(id HandlerID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, hasInstance := h.instances[id]
	_, hasFactory := h.factories[id]
	return hasInstance || hasFactory
}

func (h *Handlers) Instance(id HandlerID, handler Handler) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.instances[id]; exists {
		return ErrDuplicateHandler.WithDetail("handler", string(id))
	}
	h.instances[id] = handler
	return nil
}

func (h *Handlers) Factory(id HandlerID, factory HandlerFactory) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.factories[id]; exists {
		return ErrDuplicateHandler.WithDetail("handler", string(id))
	}
	h.factories[id] = factory
	return nil
}

func (h *Handlers) Remove(id HandlerID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.instances, id)
	delete(h.factories, id)
}

// Resolve prefers a registered instance and falls back to a fresh handler
// from the factory. Factory errors are treated as "not available".
func (h *Handlers) Resolve(ctx context.Context, id HandlerID) (Handler, bool) {
	h.mu.RLock()
	instance, ok := h.instances[id]
	factory, hasFactory := h.factories[id]
	h.mu.RUnlock()

	if ok {
		return instance, true
	}
	if !hasFactory {
		return nil, false
	}

	handler, err := factory(ctx)
	if err != nil || handler == nil {
		return nil, false
	}
	return handler, true
}
