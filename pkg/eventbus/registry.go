package eventbus

import (
	"slices"
	"sort"
	"sync"
)

type SubscriptionInfo struct {
	HandlerID HandlerID
	Dynamic   bool
}

type EvictionListener func(eventName string)

// Registry maps canonical event names to their handlers and payload types.
// It is safe for concurrent use; lookups return copies.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string][]SubscriptionInfo
	types     map[string]EventType
	listeners []EvictionListener
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string][]SubscriptionInfo),
		types:    make(map[string]EventType),
	}
}

// OnEvicted registers a listener called after the last handler of an event
// is removed. Listeners run outside the registry lock.
func (r *Registry) OnEvicted(listener EvictionListener) {
	if listener == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// Add registers id for name. created reports whether name had no handlers
// before this call.
func (r *Registry) Add(name string, id HandlerID, eventType EventType) (created bool, err error) {
	if name == "" || id == "" {
		return false, ErrInvalidSubscription
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.handlers[name]
	for _, sub := range subs {
		if sub.HandlerID == id {
			return false, ErrDuplicateSubscription.
				WithDetail("event", name).
				WithDetail("handler", string(id))
		}
	}

	existing, bound := r.types[name]
	switch {
	case !bound:
		r.types[name] = eventType
	case existing.dynamic && !eventType.dynamic:
		r.types[name] = eventType
	case !existing.dynamic && !eventType.dynamic && existing.goType != eventType.goType:
		return false, ErrEventTypeConflict.
			WithDetail("event", name).
			WithDetail("existing", existing.String()).
			WithDetail("requested", eventType.String())
	}

	r.handlers[name] = append(subs, SubscriptionInfo{HandlerID: id, Dynamic: eventType.dynamic})
	return len(subs) == 0, nil
}

// Remove unregisters id from name. It reports whether name was evicted.
func (r *Registry) Remove(name string, id HandlerID) bool {
	r.mu.Lock()

	subs := r.handlers[name]
	idx := slices.IndexFunc(subs, func(s SubscriptionInfo) bool { return s.HandlerID == id })
	if idx < 0 {
		r.mu.Unlock()
		return false
	}

	remaining := slices.Delete(slices.Clone(subs), idx, idx+1)
	if len(remaining) > 0 {
		r.handlers[name] = remaining
		if !slices.ContainsFunc(remaining, func(s SubscriptionInfo) bool { return !s.Dynamic }) {
			r.types[name] = DynamicEventType(name)
		}
		r.mu.Unlock()
		return false
	}

	delete(r.handlers, name)
	delete(r.types, name)
	listeners := slices.Clone(r.listeners)
	r.mu.Unlock()

	for _, listener := range listeners {
		listener(name)
	}
	return true
}

func (r *Registry) HandlersFor(name string) ([]SubscriptionInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.handlers[name]
	if !ok {
		return nil, ErrUnknownEvent.WithDetail("event", name)
	}
	return slices.Clone(subs), nil
}

func (r *Registry) TypeFor(name string) (EventType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eventType, ok := r.types[name]
	if !ok {
		return EventType{}, ErrUnknownEvent.WithDetail("event", name)
	}
	return eventType, nil
}

// snapshot returns the handlers and payload type of name under one read lock.
func (r *Registry) snapshot(name string) ([]SubscriptionInfo, EventType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs, ok := r.handlers[name]
	if !ok {
		return nil, EventType{}, false
	}
	return slices.Clone(subs), r.types[name], true
}

func (r *Registry) HasSubscriptions(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[name]) > 0
}

// Clear drops every subscription without notifying eviction listeners.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = make(map[string][]SubscriptionInfo)
	r.types = make(map[string]EventType)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Events returns the subscribed event names in sorted order.
func (r *Registry) Events() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}
