package eventbus

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
)

func TestRegistry_AddAndDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	created, err := r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if !created {
		t.Error("first Add must report creation")
	}
	if !r.HasSubscriptions("OrderCreated") {
		t.Error("expected subscriptions after Add")
	}

	_, err = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}

	created, err = r.Add("OrderCreated", "shipping", EventOf[OrderCreated]())
	if err != nil {
		t.Fatalf("second handler failed: %v", err)
	}
	if created {
		t.Error("second handler must not report creation")
	}
}

func TestRegistry_AddRejectsEmpty(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if _, err := r.Add("", "billing", EventOf[OrderCreated]()); !errors.Is(err, ErrInvalidSubscription) {
		t.Errorf("expected ErrInvalidSubscription for empty name, got %v", err)
	}
	if _, err := r.Add("OrderCreated", "", EventOf[OrderCreated]()); !errors.Is(err, ErrInvalidSubscription) {
		t.Errorf("expected ErrInvalidSubscription for empty handler, got %v", err)
	}
}

func TestRegistry_RemoveEvictsOnce(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var mu sync.Mutex
	evicted := map[string]int{}
	r.OnEvicted(func(name string) {
		mu.Lock()
		evicted[name]++
		mu.Unlock()
	})

	for i := 0; i < 3; i++ {
		if _, err := r.Add("OrderCreated", "billing", EventOf[OrderCreated]()); err != nil {
			t.Fatalf("Add failed: %v", err)
		}
		if !r.Remove("OrderCreated", "billing") {
			t.Fatal("expected eviction when removing the sole handler")
		}
		if r.HasSubscriptions("OrderCreated") {
			t.Fatal("expected no subscriptions after eviction")
		}
		if _, err := r.TypeFor("OrderCreated"); !errors.Is(err, ErrUnknownEvent) {
			t.Fatalf("expected descriptor eviction, got %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if evicted["OrderCreated"] != 3 {
		t.Errorf("expected one notification per eviction, got %d", evicted["OrderCreated"])
	}
}

func TestRegistry_RemoveNonLastHandler(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	notified := 0
	r.OnEvicted(func(string) { notified++ })

	_, _ = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	_, _ = r.Add("OrderCreated", "shipping", EventOf[OrderCreated]())

	if r.Remove("OrderCreated", "billing") {
		t.Error("removing one of two handlers must not evict")
	}
	if notified != 0 {
		t.Errorf("unexpected notifications: %d", notified)
	}

	subs, err := r.HandlersFor("OrderCreated")
	if err != nil {
		t.Fatalf("HandlersFor failed: %v", err)
	}
	if len(subs) != 1 || subs[0].HandlerID != "shipping" {
		t.Errorf("unexpected handlers %v", subs)
	}
}

func TestRegistry_RemoveAbsentIsNoop(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	notified := 0
	r.OnEvicted(func(string) { notified++ })

	if r.Remove("OrderCreated", "billing") {
		t.Error("removing from an unknown event must not evict")
	}

	_, _ = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	if r.Remove("OrderCreated", "shipping") {
		t.Error("removing an unknown handler must not evict")
	}
	if notified != 0 {
		t.Errorf("unexpected notifications: %d", notified)
	}
}

func TestRegistry_HandlersForPreservesOrder(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	ids := []HandlerID{"c", "a", "b", "d"}
	for _, id := range ids {
		if _, err := r.Add("OrderCreated", id, EventOf[OrderCreated]()); err != nil {
			t.Fatalf("Add(%s) failed: %v", id, err)
		}
	}

	subs, err := r.HandlersFor("OrderCreated")
	if err != nil {
		t.Fatalf("HandlersFor failed: %v", err)
	}
	for i, sub := range subs {
		if sub.HandlerID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], sub.HandlerID)
		}
	}

	subs[0].HandlerID = "mutated"
	again, _ := r.HandlersFor("OrderCreated")
	if again[0].HandlerID != "c" {
		t.Error("HandlersFor must return a copy")
	}
}

func TestRegistry_UnknownEvent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	if _, err := r.HandlersFor("Missing"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := r.TypeFor("Missing"); !errors.Is(err, ErrUnknownEvent) {
		t.Errorf("expected ErrUnknownEvent, got %v", err)
	}
	if r.HasSubscriptions("Missing") {
		t.Error("unexpected subscriptions")
	}
}

func TestRegistry_TypeFor(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, _ = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())

	eventType, err := r.TypeFor("OrderCreated")
	if err != nil {
		t.Fatalf("TypeFor failed: %v", err)
	}
	if eventType.Type() != reflect.TypeFor[OrderCreated]() {
		t.Errorf("unexpected type %v", eventType.Type())
	}
}

func TestRegistry_StaticUpgradesDynamic(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, _ = r.Add("OrderCreated", "audit", DynamicEventType("OrderCreated"))
	eventType, _ := r.TypeFor("OrderCreated")
	if !eventType.Dynamic() {
		t.Fatal("expected dynamic descriptor")
	}

	_, _ = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	eventType, _ = r.TypeFor("OrderCreated")
	if eventType.Dynamic() || eventType.Type() != reflect.TypeFor[OrderCreated]() {
		t.Fatalf("expected static descriptor, got %v", eventType)
	}

	subs, _ := r.HandlersFor("OrderCreated")
	if !subs[0].Dynamic || subs[1].Dynamic {
		t.Errorf("unexpected dynamic flags %v", subs)
	}

	r.Remove("OrderCreated", "billing")
	eventType, _ = r.TypeFor("OrderCreated")
	if !eventType.Dynamic() {
		t.Error("expected dynamic descriptor once the last static handler is gone")
	}
}

func TestRegistry_TypeConflict(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, _ = r.Add("Order", "billing", EventOf[OrderCreated]())
	_, err := r.Add("Order", "shipping", EventOf[OrderShipped]())
	if !errors.Is(err, ErrEventTypeConflict) {
		t.Fatalf("expected ErrEventTypeConflict, got %v", err)
	}

	subs, _ := r.HandlersFor("Order")
	if len(subs) != 1 {
		t.Errorf("conflicting Add must not register, got %v", subs)
	}
}

func TestRegistry_ClearDoesNotNotify(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	notified := 0
	r.OnEvicted(func(string) { notified++ })

	_, _ = r.Add("OrderCreated", "billing", EventOf[OrderCreated]())
	_, _ = r.Add("OrderShipped", "billing", EventOf[OrderShipped]())

	if r.Len() != 2 {
		t.Errorf("expected 2 events, got %d", r.Len())
	}

	r.Clear()

	if r.Len() != 0 || r.HasSubscriptions("OrderCreated") {
		t.Error("expected empty registry after Clear")
	}
	if notified != 0 {
		t.Errorf("Clear must not notify, got %d", notified)
	}
}

func TestRegistry_Events(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	_, _ = r.Add("OrderShipped", "a", EventOf[OrderShipped]())
	_, _ = r.Add("OrderCreated", "a", EventOf[OrderCreated]())

	if got := r.Events(); !reflect.DeepEqual(got, []string{"OrderCreated", "OrderShipped"}) {
		t.Errorf("unexpected events %v", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var evictions atomic.Int64
	r.OnEvicted(func(string) { evictions.Add(1) })

	const workers = 16
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			id := HandlerID(fmt.Sprintf("handler-%d", w))
			for i := 0; i < 200; i++ {
				name := fmt.Sprintf("Event%d", i%5)
				if _, err := r.Add(name, id, EventOf[OrderCreated]()); err != nil {
					t.Errorf("Add failed: %v", err)
					return
				}
				if subs, err := r.HandlersFor(name); err == nil && len(subs) == 0 {
					t.Error("observed empty handler list")
				}
				r.Remove(name, id)
			}
		}(w)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %v", r.Events())
	}
	if evictions.Load() == 0 {
		t.Error("expected eviction notifications")
	}
}
