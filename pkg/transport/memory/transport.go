package memory

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
	"github.com/shuldan/eventbus/pkg/logger"
)

type route struct {
	ch     chan []byte
	done   <-chan struct{}
	cancel context.CancelFunc
}

// Transport delivers events inside the process through one buffered
// channel per provisioned route. Events published to a route that was
// never provisioned are dropped.
type Transport struct {
	mu       sync.RWMutex
	routes   map[string]*route
	callback eventbus.MessageCallback
	closed   bool

	connected  atomic.Bool
	bufferSize int
	logger     contracts.Logger
	wg         sync.WaitGroup
}

var _ eventbus.Transport = (*Transport)(nil)

type Option func(*Transport)

func WithBufferSize(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.bufferSize = n
		}
	}
}

func WithLogger(l contracts.Logger) Option {
	return func(t *Transport) {
		t.logger = l
	}
}

func New(opts ...Option) *Transport {
	t := &Transport{
		routes:     make(map[string]*route),
		bufferSize: 100,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = logger.Default()
	}
	t.logger = t.logger.With("transport", "memory")
	return t
}

func (t *Transport) Connect(context.Context) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return ErrTransportClosed
	}
	t.connected.Store(true)
	return nil
}

func (t *Transport) IsConnected() bool {
	return t.connected.Load()
}

func (t *Transport) RegisterMessageCallback(callback eventbus.MessageCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = callback
}

func (t *Transport) Publish(ctx context.Context, eventName string, payload []byte) error {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return ErrTransportClosed
	}
	r, ok := t.routes[eventName]
	t.mu.RUnlock()

	if !ok {
		t.logger.Trace("no route for event, dropping", "event", eventName)
		return nil
	}

	data := make([]byte, len(payload))
	copy(data, payload)

	select {
	case r.ch <- data:
		return nil
	case <-r.done:
		t.logger.Trace("route torn down while publishing, dropping", "event", eventName)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Transport) ProvisionRoute(_ context.Context, eventName string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if _, exists := t.routes[eventName]; exists {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &route{ch: make(chan []byte, t.bufferSize), done: ctx.Done(), cancel: cancel}
	t.routes[eventName] = r

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.consume(ctx, eventName, r.ch)
	}()
	return nil
}

func (t *Transport) TeardownRoute(_ context.Context, eventName string) error {
	t.mu.Lock()
	r, ok := t.routes[eventName]
	delete(t.routes, eventName)
	t.mu.Unlock()

	if ok {
		r.cancel()
	}
	return nil
}

func (t *Transport) consume(ctx context.Context, eventName string, ch <-chan []byte) {
	for {
		select {
		case data := <-ch:
			t.deliver(ctx, eventName, data)
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) deliver(ctx context.Context, eventName string, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in message callback",
				"event", eventName,
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()

	t.mu.RLock()
	callback := t.callback
	t.mu.RUnlock()

	if callback == nil {
		return
	}

	handled, err := callback(ctx, eventName, data)
	if err != nil {
		t.logger.Error("event processing failed", "event", eventName, "error", err)
		return
	}
	if !handled {
		t.logger.Debug("event had no handlers", "event", eventName)
	}
}

// Close stops every route and waits for in-flight deliveries.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	for name, r := range t.routes {
		r.cancel()
		delete(t.routes, name)
	}
	t.mu.Unlock()

	t.connected.Store(false)
	t.wg.Wait()
	return nil
}
