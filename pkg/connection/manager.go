package connection

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/logger"
)

type Dialer[C any] func(ctx context.Context) (C, error)

type Closer[C any] func(conn C) error

// Manager keeps one connection of type C alive. Connect attempts and
// reconnects run under a single lock; faults reported through Fault
// trigger a reconnect in the background until the manager is closed.
type Manager[C any] struct {
	mu    sync.Mutex
	state atomic.Int32
	conn  atomic.Pointer[C]
	gen   atomic.Uint64

	dial   Dialer[C]
	closer Closer[C]
	cfg    *config

	hooksMu sync.RWMutex
	hooks   []func(C)

	lifeMu   sync.Mutex
	disposed bool
	life     context.Context
	stop     context.CancelFunc
	wg       sync.WaitGroup

	logger contracts.Logger
}

func NewManager[C any](dial Dialer[C], closer Closer[C], opts ...Option) *Manager[C] {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	l := cfg.logger
	if l == nil {
		l = logger.Default()
	}

	life, stop := context.WithCancel(context.Background())
	m := &Manager[C]{
		dial:   dial,
		closer: closer,
		cfg:    cfg,
		life:   life,
		stop:   stop,
		logger: l.With("connection", cfg.name),
	}
	m.state.Store(int32(Disconnected))
	return m
}

func (m *Manager[C]) State() State {
	return State(m.state.Load())
}

// IsConnected is a lock-free snapshot of the state.
func (m *Manager[C]) IsConnected() bool {
	return m.State() == Connected
}

// OnConnected registers a hook run after every successful (re)connect,
// typically to re-arm fault callbacks on the new connection.
func (m *Manager[C]) OnConnected(hook func(conn C)) {
	if hook == nil {
		return
	}
	m.hooksMu.Lock()
	defer m.hooksMu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Conn returns the live connection.
func (m *Manager[C]) Conn() (C, error) {
	var zero C
	if m.State() == Disposed {
		return zero, ErrDisposed
	}
	conn := m.conn.Load()
	if conn == nil || !m.IsConnected() {
		return zero, ErrNotConnected.WithDetail("name", m.cfg.name)
	}
	return *conn, nil
}

// Connect establishes the connection, retrying transient failures. Callers
// arriving while an attempt is in flight wait for it and share its outcome.
func (m *Manager[C]) Connect(ctx context.Context) error {
	if m.IsConnected() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.State() {
	case Disposed:
		return ErrDisposed
	case Connected:
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnDispose := context.AfterFunc(m.life, cancel)
	defer stopOnDispose()

	return m.connectLocked(ctx, Connecting)
}

// Fault reports that the current connection failed. It is ignored once the
// manager is closed.
func (m *Manager[C]) Fault(reason string, cause error) {
	m.lifeMu.Lock()
	defer m.lifeMu.Unlock()
	if m.disposed {
		return
	}

	gen := m.gen.Load()
	m.logger.Warn("connection fault", "reason", reason, "error", cause, "state", m.State().String())

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.reconnect(gen)
	}()
}

func (m *Manager[C]) reconnect(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() == Disposed || m.gen.Load() != gen {
		return
	}

	m.dropConn()
	if err := m.connectLocked(m.life, Reconnecting); err != nil {
		m.logger.Error("reconnect failed", "error", err)
	}
}

func (m *Manager[C]) connectLocked(ctx context.Context, entering State) error {
	if !m.setState(entering) {
		return ErrDisposed
	}
	m.logger.Debug("connecting", "state", entering.String(), "max_attempts", m.cfg.retryCount)

	var lastErr error
	for attempt := 1; attempt <= m.cfg.retryCount; attempt++ {
		conn, err := m.dial(ctx)
		if err == nil {
			return m.connected(conn, attempt)
		}
		lastErr = err

		if !m.cfg.isTransient(err) {
			m.setState(Disconnected)
			m.logger.Error("connection failed", "attempt", attempt, "error", err)
			return ErrNonTransient.WithDetail("name", m.cfg.name).WithCause(err)
		}

		delay := m.cfg.backoff.Delay(attempt)
		m.logger.Warn("connection attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", m.cfg.retryCount,
			"delay", delay,
			"error", err,
		)
		if err := m.cfg.sleep(ctx, delay); err != nil {
			m.setState(Disconnected)
			return err
		}
	}

	m.setState(Disconnected)
	m.logger.Error("connection retries exhausted", "attempts", m.cfg.retryCount, "error", lastErr)
	return ErrRetriesExhausted.
		WithDetail("name", m.cfg.name).
		WithDetail("attempts", m.cfg.retryCount).
		WithCause(lastErr)
}

func (m *Manager[C]) connected(conn C, attempt int) error {
	m.conn.Store(&conn)
	m.gen.Add(1)
	if !m.setState(Connected) {
		m.dropConn()
		return ErrDisposed
	}

	m.hooksMu.RLock()
	hooks := append([]func(C){}, m.hooks...)
	m.hooksMu.RUnlock()
	for _, hook := range hooks {
		hook(conn)
	}

	m.logger.Info("connected", "attempt", attempt)
	return nil
}

func (m *Manager[C]) dropConn() {
	conn := m.conn.Swap(nil)
	if conn == nil || m.closer == nil {
		return
	}
	if err := m.closer(*conn); err != nil {
		m.logger.Debug("closing stale connection failed", "error", err)
	}
}

// setState moves to s unless the manager is disposed.
func (m *Manager[C]) setState(s State) bool {
	for {
		cur := m.state.Load()
		if State(cur) == Disposed {
			return false
		}
		if m.state.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}

// Close disposes the manager and closes the connection. Pending retries
// are cancelled; later faults are ignored.
func (m *Manager[C]) Close() error {
	m.lifeMu.Lock()
	if m.disposed {
		m.lifeMu.Unlock()
		return nil
	}
	m.disposed = true
	m.state.Store(int32(Disposed))
	m.stop()
	m.lifeMu.Unlock()

	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()

	conn := m.conn.Swap(nil)
	if conn == nil || m.closer == nil {
		return nil
	}
	return m.closer(*conn)
}
