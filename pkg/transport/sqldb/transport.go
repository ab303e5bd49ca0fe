package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shuldan/eventbus/pkg/connection"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
	"github.com/shuldan/eventbus/pkg/logger"
)

type route struct {
	group  string
	cancel context.CancelFunc
	done   chan struct{}

	// owned by the poll loop
	failedID int64
	attempts int
}

func (r *route) recordFailure(id int64) int {
	if r.failedID != id {
		r.failedID = id
		r.attempts = 0
	}
	r.attempts++
	return r.attempts
}

type message struct {
	id        int64
	eventName string
	payload   []byte
}

// Transport stores events in a relational table and delivers them by
// polling. Every route keeps its own cursor, so each subscribing
// application sees every message published after it subscribed. A message
// whose handlers keep failing is moved to the dead letters table once it
// reaches the delivery limit.
type Transport struct {
	manager *connection.Manager[*sql.DB]
	config  *config
	queries queries
	logger  contracts.Logger

	mu       sync.RWMutex
	routes   map[string]*route
	callback eventbus.MessageCallback
	closed   bool
	wg       sync.WaitGroup
}

var _ eventbus.Transport = (*Transport)(nil)

// New builds a transport for one of the sqlite3, mysql or postgres drivers.
// No connection is opened until Connect or the first operation.
func New(driver, dsn string, opts ...Option) (*Transport, error) {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	d, ok := dialectFor(driver)
	if !ok {
		return nil, ErrUnsupportedDriver.WithDetail("driver", driver)
	}
	if err := validatePrefix(c.tablePrefix); err != nil {
		return nil, err
	}

	l := c.logger
	if l == nil {
		l = logger.Default()
	}
	l = l.With("transport", "sql", "driver", d.name, "topic", c.topic)

	t := &Transport{
		config:  c,
		queries: d.build(c.tablePrefix),
		logger:  l,
		routes:  make(map[string]*route),
	}

	connOpts := append([]connection.Option{
		connection.WithName("sql " + d.name),
		connection.WithLogger(l),
	}, c.connectionOptions...)
	t.manager = connection.NewManager(t.dialer(d.name, dsn), closeDB, connOpts...)
	return t, nil
}

func (t *Transport) dialer(driver, dsn string) connection.Dialer[*sql.DB] {
	return func(ctx context.Context) (*sql.DB, error) {
		db, err := sql.Open(driver, dsn)
		if err != nil {
			return nil, err
		}

		db.SetMaxOpenConns(t.config.maxOpenConns)
		db.SetMaxIdleConns(t.config.maxIdleConns)
		db.SetConnMaxLifetime(t.config.connMaxLifetime)
		if t.config.connMaxIdleTime > 0 {
			db.SetConnMaxIdleTime(t.config.connMaxIdleTime)
		}

		pingCtx, cancel := context.WithTimeout(ctx, t.config.pingTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return nil, err
		}

		if err := t.migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}
}

func (t *Transport) migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range t.queries.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return ErrMigrationFailed.WithCause(err)
		}
	}
	return nil
}

func closeDB(db *sql.DB) error {
	return db.Close()
}

func (t *Transport) Connect(ctx context.Context) error {
	return t.manager.Connect(ctx)
}

func (t *Transport) IsConnected() bool {
	return t.manager.IsConnected()
}

func (t *Transport) State() connection.State {
	return t.manager.State()
}

func (t *Transport) RegisterMessageCallback(callback eventbus.MessageCallback) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.callback = callback
}

func (t *Transport) db(ctx context.Context) (*sql.DB, error) {
	if !t.manager.IsConnected() {
		if err := t.manager.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return t.manager.Conn()
}

func (t *Transport) Publish(ctx context.Context, eventName string, payload []byte) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	db, err := t.db(ctx)
	if err != nil {
		return err
	}

	if payload == nil {
		payload = []byte{}
	}
	if _, err := db.ExecContext(ctx, t.queries.insertMessage,
		t.config.topic, eventName, payload, time.Now().UTC()); err != nil {
		t.reportFault("publish", err)
		return ErrPublishFailed.WithDetail("event", eventName).WithCause(err)
	}
	return nil
}

// ProvisionRoute registers the application's cursor for the event at the
// newest stored message and starts polling from there.
func (t *Transport) ProvisionRoute(ctx context.Context, eventName string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	db, err := t.db(ctx)
	if err != nil {
		return err
	}

	group := t.config.resolver.QualifiedSubscriberName(eventName)
	if err := t.registerRoute(ctx, db, eventName, group); err != nil {
		return ErrProvisionFailed.WithDetail("group", group).WithCause(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if _, exists := t.routes[eventName]; exists {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	r := &route{
		group:  group,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	t.routes[eventName] = r

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(r.done)
		t.pollLoop(loopCtx, eventName, r)
	}()

	t.logger.Debug("route provisioned", "event", eventName, "group", group)
	return nil
}

func (t *Transport) registerRoute(ctx context.Context, db *sql.DB, eventName, group string) error {
	var head int64
	if err := db.QueryRowContext(ctx, t.queries.maxID, t.config.topic, eventName).Scan(&head); err != nil {
		return err
	}
	_, err := db.ExecContext(ctx, t.queries.insertRoute, group, t.config.topic, eventName, head)
	return err
}

// TeardownRoute stops polling the event and removes the route's cursor.
func (t *Transport) TeardownRoute(ctx context.Context, eventName string) error {
	t.mu.Lock()
	r, ok := t.routes[eventName]
	delete(t.routes, eventName)
	t.mu.Unlock()

	group := t.config.resolver.QualifiedSubscriberName(eventName)
	if ok {
		r.cancel()
		<-r.done
	}

	db, err := t.db(ctx)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, t.queries.deleteRoute, group); err != nil {
		return ErrTeardownFailed.WithDetail("group", group).WithCause(err)
	}

	t.logger.Debug("route torn down", "event", eventName, "group", group)
	return nil
}

func (t *Transport) pollLoop(ctx context.Context, eventName string, r *route) {
	ticker := time.NewTicker(t.config.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.poll(ctx, eventName, r)
		}
	}
}

func (t *Transport) poll(ctx context.Context, eventName string, r *route) {
	db, err := t.manager.Conn()
	if err != nil {
		t.reconnectIdle(ctx)
		return
	}

	var cursor int64
	err = db.QueryRowContext(ctx, t.queries.cursor, r.group).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		t.logger.Warn("route cursor missing, re-registering", "event", eventName, "group", r.group)
		if err := t.registerRoute(ctx, db, eventName, r.group); err != nil && ctx.Err() == nil {
			t.logger.Error("failed to re-register route", "group", r.group, "error", err)
		}
		return
	}
	if err != nil {
		t.reportFault("poll", err)
		return
	}

	batch, err := t.fetch(ctx, db, eventName, cursor)
	if err != nil {
		t.reportFault("poll", err)
		return
	}

	for _, msg := range batch {
		if ctx.Err() != nil || !t.handleMessage(ctx, db, r, msg) {
			return
		}
		if _, err := db.ExecContext(ctx, t.queries.advance, msg.id, r.group, msg.id); err != nil {
			if ctx.Err() == nil {
				t.logger.Warn("cursor update failed", "group", r.group, "id", msg.id, "error", err)
			}
			return
		}
	}
}

func (t *Transport) fetch(ctx context.Context, db *sql.DB, eventName string, cursor int64) ([]message, error) {
	rows, err := db.QueryContext(ctx, t.queries.fetch, t.config.topic, eventName, cursor, t.config.batchSize)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batch []message
	for rows.Next() {
		var msg message
		if err := rows.Scan(&msg.id, &msg.eventName, &msg.payload); err != nil {
			return nil, err
		}
		batch = append(batch, msg)
	}
	return batch, rows.Err()
}

// handleMessage reports whether the cursor may move past msg. Handler
// failures hold the cursor so the message is retried on the next poll,
// until the delivery limit dead-letters it.
func (t *Transport) handleMessage(ctx context.Context, db *sql.DB, r *route, msg message) bool {
	handled, err := t.dispatch(ctx, msg.eventName, msg.payload)
	switch {
	case err == nil:
		if !handled {
			t.logger.Debug("event had no handlers", "event", msg.eventName, "id", msg.id)
		}
		return true
	case errors.Is(err, eventbus.ErrDeserialization):
		t.logger.Warn("dropping undecodable event", "event", msg.eventName, "id", msg.id, "error", err)
		return true
	}

	attempts := r.recordFailure(msg.id)
	if t.config.maxDeliveries > 0 && attempts >= t.config.maxDeliveries {
		return t.deadLetter(ctx, db, r, msg, attempts, err)
	}
	t.logger.Error("event processing failed, will retry",
		"event", msg.eventName,
		"id", msg.id,
		"attempt", attempts,
		"error", err)
	return false
}

// deadLetter copies msg to the dead letters table and moves the cursor past
// it in one transaction.
func (t *Transport) deadLetter(ctx context.Context, db *sql.DB, r *route, msg message, attempts int, cause error) bool {
	payload := msg.payload
	if payload == nil {
		payload = []byte{}
	}

	err := inTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, t.queries.deadLetter,
			msg.id, r.group, t.config.topic, msg.eventName, payload, attempts, cause.Error(), time.Now().UTC()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, t.queries.advance, msg.id, r.group, msg.id)
		return err
	})
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn("failed to dead-letter event", "event", msg.eventName, "id", msg.id, "error", err)
		}
		return false
	}

	t.logger.Error("event exceeded max deliveries, moved to dead letters",
		"event", msg.eventName,
		"id", msg.id,
		"group", r.group,
		"deliveries", attempts,
		"error", cause)
	return true
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (t *Transport) dispatch(ctx context.Context, eventName string, payload []byte) (handled bool, err error) {
	t.mu.RLock()
	callback := t.callback
	t.mu.RUnlock()

	if callback == nil {
		return false, nil
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Critical("panic in message callback",
				"event", eventName,
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("message callback panicked: %v", r)
		}
	}()

	return callback(ctx, eventName, payload)
}

// reconnectIdle connects again once a background reconnect has given up,
// so a process that only consumes recovers without a publish.
func (t *Transport) reconnectIdle(ctx context.Context) {
	if t.manager.State() != connection.Disconnected {
		return
	}
	if err := t.manager.Connect(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("poller could not reconnect", "error", err)
	}
}

func (t *Transport) reportFault(op string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, sql.ErrConnDone) {
		return
	}
	if !connection.IsTransient(err) {
		t.logger.Warn("sql operation failed", "op", op, "error", err)
		return
	}
	t.manager.Fault(op, err)
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Close stops all pollers and closes the database handle.
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

	t.wg.Wait()
	return t.manager.Close()
}
