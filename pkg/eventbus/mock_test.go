package eventbus

import (
	"context"
	"sync"
	"time"

	"github.com/shuldan/eventbus/pkg/contracts"
)

type publishedMessage struct {
	name    string
	payload []byte
}

type deliveryResult struct {
	name    string
	payload []byte
	handled bool
	err     error
}

type mockTransport struct {
	mu           sync.Mutex
	callback     MessageCallback
	connected    bool
	loopback     bool
	connectCalls int
	closeCalls   int
	published    []publishedMessage
	deliveries   []deliveryResult
	provisioned  []string
	tornDown     []string
	connectErr   error
	publishErr   error
	provisionErr error
	teardownErr  error

	// gate blocks ProvisionRoute and TeardownRoute until closed; entered
	// receives a value each time one of them starts waiting on it.
	gate    chan struct{}
	entered chan string
}

func newMockTransport() *mockTransport {
	return &mockTransport{connected: true, loopback: true}
}

func (m *mockTransport) Publish(ctx context.Context, name string, payload []byte) error {
	m.mu.Lock()
	if m.publishErr != nil {
		m.mu.Unlock()
		return m.publishErr
	}
	m.published = append(m.published, publishedMessage{name: name, payload: payload})
	callback, loopback := m.callback, m.loopback
	m.mu.Unlock()

	if !loopback || callback == nil {
		return nil
	}

	handled, err := callback(ctx, name, payload)

	m.mu.Lock()
	m.deliveries = append(m.deliveries, deliveryResult{name: name, payload: payload, handled: handled, err: err})
	m.mu.Unlock()
	return nil
}

func (m *mockTransport) wait(op string) {
	m.mu.Lock()
	gate, entered := m.gate, m.entered
	m.mu.Unlock()

	if entered != nil {
		entered <- op
	}
	if gate != nil {
		<-gate
	}
}

func (m *mockTransport) ProvisionRoute(_ context.Context, name string) error {
	m.wait("provision")
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.provisionErr != nil {
		return m.provisionErr
	}
	m.provisioned = append(m.provisioned, name)
	return nil
}

func (m *mockTransport) TeardownRoute(_ context.Context, name string) error {
	m.wait("teardown")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tornDown = append(m.tornDown, name)
	return m.teardownErr
}

func (m *mockTransport) RegisterMessageCallback(callback MessageCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callback = callback
}

func (m *mockTransport) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

func (m *mockTransport) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	m.connected = false
	return nil
}

func (m *mockTransport) routes() (provisioned, tornDown []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.provisioned...), append([]string(nil), m.tornDown...)
}

func (m *mockTransport) snapshotDeliveries() []deliveryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]deliveryResult(nil), m.deliveries...)
}

type recordingHandler struct {
	mu     sync.Mutex
	events []any
	err    error
	panic  any
}

func (h *recordingHandler) Handle(_ context.Context, event any) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	if h.panic != nil {
		panic(h.panic)
	}
	return h.err
}

func (h *recordingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

type countingCodec struct {
	mu        sync.Mutex
	unmarshal int
	inner     JSONCodec
}

func (c *countingCodec) Marshal(v any) ([]byte, error) {
	return c.inner.Marshal(v)
}

func (c *countingCodec) Unmarshal(data []byte, v any) error {
	c.mu.Lock()
	c.unmarshal++
	c.mu.Unlock()
	return c.inner.Unmarshal(data, v)
}

func (c *countingCodec) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.unmarshal
}

type recordingCounter struct {
	mu        sync.Mutex
	processed map[ProcessedStatus]int
	errors    map[string]int
	observed  int
}

func newRecordingCounter() *recordingCounter {
	return &recordingCounter{
		processed: make(map[ProcessedStatus]int),
		errors:    make(map[string]int),
	}
}

func (c *recordingCounter) IncProcessed(_ string, status ProcessedStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processed[status]++
}

func (c *recordingCounter) IncError(_ string, handler string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors[handler]++
}

func (c *recordingCounter) ObserveProcessingTime(string, time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observed++
}

type silentLogger struct{}

func (silentLogger) Trace(string, ...any)           {}
func (silentLogger) Debug(string, ...any)           {}
func (silentLogger) Info(string, ...any)            {}
func (silentLogger) Warn(string, ...any)            {}
func (silentLogger) Error(string, ...any)           {}
func (silentLogger) Critical(string, ...any)        {}
func (l silentLogger) With(...any) contracts.Logger { return l }

type OrderCreated struct {
	ID int `json:"id"`
}

type OrderShipped struct {
	IntegrationEvent
	OrderID int    `json:"order_id"`
	Carrier string `json:"carrier"`
}

type paymentCaptured struct {
	Amount int `json:"amount"`
}

func (paymentCaptured) EventName() string { return "PaymentCapturedIntegrationEvent" }
