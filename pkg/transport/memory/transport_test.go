package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
)

type silentLogger struct{}

func (silentLogger) Trace(string, ...any)           {}
func (silentLogger) Debug(string, ...any)           {}
func (silentLogger) Info(string, ...any)            {}
func (silentLogger) Warn(string, ...any)            {}
func (silentLogger) Error(string, ...any)           {}
func (silentLogger) Critical(string, ...any)        {}
func (l silentLogger) With(...any) contracts.Logger { return l }

type received struct {
	name    string
	payload string
}

type collector struct {
	mu   sync.Mutex
	msgs []received
	done chan struct{}
	want int
}

func newCollector(want int) *collector {
	return &collector{done: make(chan struct{}), want: want}
}

func (c *collector) callback(_ context.Context, name string, payload []byte) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, received{name: name, payload: string(payload)})
	if len(c.msgs) == c.want {
		close(c.done)
	}
	return true, nil
}

func (c *collector) wait(t *testing.T) []received {
	t.Helper()
	select {
	case <-c.done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for deliveries")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.msgs...)
}

func TestTransport_ProvisionedRouteDelivers(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}))
	defer tr.Close()

	c := newCollector(2)
	tr.RegisterMessageCallback(c.callback)

	ctx := context.Background()
	if err := tr.Connect(ctx); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !tr.IsConnected() {
		t.Fatal("expected connected")
	}
	if err := tr.ProvisionRoute(ctx, "OrderCreated"); err != nil {
		t.Fatalf("ProvisionRoute failed: %v", err)
	}
	if err := tr.ProvisionRoute(ctx, "OrderCreated"); err != nil {
		t.Fatalf("ProvisionRoute must be idempotent: %v", err)
	}

	_ = tr.Publish(ctx, "OrderCreated", []byte(`{"id":1}`))
	_ = tr.Publish(ctx, "OrderCreated", []byte(`{"id":2}`))

	msgs := c.wait(t)
	if msgs[0].payload != `{"id":1}` || msgs[1].payload != `{"id":2}` {
		t.Errorf("expected in-order delivery, got %v", msgs)
	}
	if msgs[0].name != "OrderCreated" {
		t.Errorf("unexpected name %q", msgs[0].name)
	}
}

func TestTransport_UnprovisionedRouteDrops(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}))
	defer tr.Close()

	called := make(chan struct{}, 1)
	tr.RegisterMessageCallback(func(context.Context, string, []byte) (bool, error) {
		called <- struct{}{}
		return true, nil
	})

	if err := tr.Publish(context.Background(), "Nobody", []byte(`{}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-called:
		t.Error("callback must not run without a route")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTransport_TeardownStopsDelivery(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}), WithBufferSize(1))
	defer tr.Close()

	called := make(chan string, 4)
	tr.RegisterMessageCallback(func(_ context.Context, name string, _ []byte) (bool, error) {
		called <- name
		return true, nil
	})

	ctx := context.Background()
	_ = tr.ProvisionRoute(ctx, "X")
	if err := tr.TeardownRoute(ctx, "X"); err != nil {
		t.Fatalf("TeardownRoute failed: %v", err)
	}
	if err := tr.TeardownRoute(ctx, "X"); err != nil {
		t.Fatalf("TeardownRoute must be idempotent: %v", err)
	}

	_ = tr.Publish(ctx, "X", []byte(`{}`))
	select {
	case <-called:
		t.Error("callback ran after teardown")
	case <-time.After(30 * time.Millisecond):
	}
}

func TestTransport_CallbackPanicIsContained(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}))
	defer tr.Close()

	var mu sync.Mutex
	calls := 0
	done := make(chan struct{})
	tr.RegisterMessageCallback(func(context.Context, string, []byte) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			panic("boom")
		}
		close(done)
		return true, nil
	})

	ctx := context.Background()
	_ = tr.ProvisionRoute(ctx, "OrderCreated")
	_ = tr.Publish(ctx, "OrderCreated", []byte(`1`))
	_ = tr.Publish(ctx, "OrderCreated", []byte(`2`))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("route stopped after a panicking callback")
	}
}

func TestTransport_PublishToFullRouteReturnsOnTeardown(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}), WithBufferSize(1))
	t.Cleanup(func() { _ = tr.Close() })

	gate := make(chan struct{})
	defer close(gate)
	entered := make(chan struct{}, 1)
	tr.RegisterMessageCallback(func(context.Context, string, []byte) (bool, error) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
		return true, nil
	})

	ctx := context.Background()
	_ = tr.ProvisionRoute(ctx, "OrderCreated")
	_ = tr.Publish(ctx, "OrderCreated", []byte(`{"id":1}`))
	<-entered
	_ = tr.Publish(ctx, "OrderCreated", []byte(`{"id":2}`))

	blocked := make(chan error, 1)
	go func() { blocked <- tr.Publish(ctx, "OrderCreated", []byte(`{"id":3}`)) }()

	select {
	case err := <-blocked:
		t.Fatalf("publish to a full route returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_ = tr.TeardownRoute(ctx, "OrderCreated")

	select {
	case err := <-blocked:
		if err != nil {
			t.Errorf("expected the message to be dropped, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("publish stayed blocked after teardown")
	}
}

func TestTransport_Close(t *testing.T) {
	t.Parallel()

	tr := New(WithLogger(silentLogger{}))
	ctx := context.Background()
	_ = tr.Connect(ctx)
	_ = tr.ProvisionRoute(ctx, "OrderCreated")

	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}
	if tr.IsConnected() {
		t.Error("closed transport must not report connected")
	}
	if err := tr.Publish(ctx, "OrderCreated", nil); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if err := tr.ProvisionRoute(ctx, "OrderCreated"); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
	if err := tr.Connect(ctx); !errors.Is(err, ErrTransportClosed) {
		t.Errorf("expected ErrTransportClosed, got %v", err)
	}
}

type OrderCreated struct {
	ID int `json:"id"`
}

func TestTransport_WithBus(t *testing.T) {
	t.Parallel()

	handlers := eventbus.NewHandlers()
	got := make(chan OrderCreated, 1)
	_ = handlers.Instance("billing", eventbus.HandlerFor(func(_ context.Context, e OrderCreated) error {
		got <- e
		return nil
	}))

	bus := eventbus.New(New(WithLogger(silentLogger{})), handlers, eventbus.WithLogger(silentLogger{}))
	defer bus.Close()

	ctx := context.Background()
	if err := eventbus.Subscribe[OrderCreated](ctx, bus, "billing"); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := bus.Publish(ctx, OrderCreated{ID: 42}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case e := <-got:
		if e.ID != 42 {
			t.Errorf("unexpected event %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
