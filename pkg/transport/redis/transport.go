package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/shuldan/eventbus/pkg/connection"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
	"github.com/shuldan/eventbus/pkg/logger"
)

type route struct {
	stream   string
	group    string
	consumer string
	cancel   context.CancelFunc
	done     chan struct{}
}

// Transport publishes events to one Redis stream per event and consumes
// them through a consumer group named after the subscribing application.
// Messages left pending by failing handlers are claimed again until they
// reach the delivery limit and move to <topic>:dlq:<event>.
type Transport struct {
	manager *connection.Manager[*redis.Client]
	config  *config
	logger  contracts.Logger

	mu       sync.RWMutex
	routes   map[string]*route
	callback eventbus.MessageCallback
	closed   bool
	wg       sync.WaitGroup
}

var _ eventbus.Transport = (*Transport)(nil)

func New(clientOptions *redis.Options, opts ...Option) *Transport {
	c := defaultConfig()
	for _, opt := range opts {
		opt(c)
	}

	l := c.logger
	if l == nil {
		l = logger.Default()
	}
	l = l.With("transport", "redis", "topic", c.topic)

	connOpts := append([]connection.Option{
		connection.WithName("redis " + clientOptions.Addr),
		connection.WithLogger(l),
	}, c.connectionOptions...)

	t := &Transport{
		config: c,
		logger: l,
		routes: make(map[string]*route),
	}
	t.manager = connection.NewManager(dialer(clientOptions), closeClient, connOpts...)
	t.manager.OnConnected(t.restoreGroups)
	return t
}

func dialer(options *redis.Options) connection.Dialer[*redis.Client] {
	return func(ctx context.Context) (*redis.Client, error) {
		client := redis.NewClient(options)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, err
		}
		return client, nil
	}
}

func closeClient(client *redis.Client) error {
	return client.Close()
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

func (t *Transport) client(ctx context.Context) (*redis.Client, error) {
	if !t.manager.IsConnected() {
		if err := t.manager.Connect(ctx); err != nil {
			return nil, err
		}
	}
	return t.manager.Conn()
}

func (t *Transport) streamKey(eventName string) string {
	return fmt.Sprintf("%s:%s", t.config.topic, eventName)
}

func (t *Transport) deadLetterKey(eventName string) string {
	return fmt.Sprintf("%s:dlq:%s", t.config.topic, eventName)
}

func (t *Transport) Publish(ctx context.Context, eventName string, payload []byte) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	values, err := encodeMessage(streamMessage{
		ID:         uuid.NewString(),
		EventName:  eventName,
		Data:       payload,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return ErrEncodeFailed.WithDetail("event", eventName).WithCause(err)
	}

	stream := t.streamKey(eventName)
	args := &redis.XAddArgs{
		Stream: stream,
		Values: values,
	}
	if t.config.maxStreamLength > 0 {
		args.MaxLen = t.config.maxStreamLength
		args.Approx = t.config.approximateTrim
	}

	if err := client.XAdd(ctx, args).Err(); err != nil {
		t.reportFault("publish", err)
		return ErrPublishFailed.
			WithDetail("event", eventName).
			WithDetail("stream", stream).
			WithCause(err)
	}
	return nil
}

// ProvisionRoute creates the consumer group of this application on the
// event's stream and starts consuming it.
func (t *Transport) ProvisionRoute(ctx context.Context, eventName string) error {
	if t.isClosed() {
		return ErrTransportClosed
	}

	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	stream := t.streamKey(eventName)
	group := t.config.resolver.QualifiedSubscriberName(eventName)
	if err := createGroup(ctx, client, stream, group); err != nil {
		return ErrProvisionFailed.
			WithDetail("group", group).
			WithDetail("stream", stream).
			WithCause(err)
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
		stream:   stream,
		group:    group,
		consumer: t.newConsumerID(eventName),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	t.routes[eventName] = r

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(r.done)
		t.consumeLoop(loopCtx, eventName, r)
	}()

	t.logger.Debug("route provisioned", "event", eventName, "stream", stream, "group", group)
	return nil
}

// TeardownRoute stops consuming the event and destroys the consumer group.
func (t *Transport) TeardownRoute(ctx context.Context, eventName string) error {
	t.mu.Lock()
	r, ok := t.routes[eventName]
	delete(t.routes, eventName)
	t.mu.Unlock()

	stream := t.streamKey(eventName)
	group := t.config.resolver.QualifiedSubscriberName(eventName)
	if ok {
		r.cancel()
		<-r.done
	}

	client, err := t.client(ctx)
	if err != nil {
		return err
	}

	if err := client.XGroupDestroy(ctx, stream, group).Err(); err != nil && !isMissingGroup(err) {
		return ErrTeardownFailed.
			WithDetail("group", group).
			WithDetail("stream", stream).
			WithCause(err)
	}

	t.logger.Debug("route torn down", "event", eventName, "stream", stream, "group", group)
	return nil
}

func (t *Transport) consumeLoop(ctx context.Context, eventName string, r *route) {
	var claim <-chan time.Time
	if t.config.enableClaim {
		ticker := time.NewTicker(t.config.claimInterval)
		defer ticker.Stop()
		claim = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-claim:
			t.claimStalledMessages(ctx, eventName, r)
		default:
			t.readNewMessage(ctx, eventName, r)
		}
	}
}

func (t *Transport) readNewMessage(ctx context.Context, eventName string, r *route) {
	client, err := t.manager.Conn()
	if err != nil {
		t.reconnectIdle(ctx)
		t.pause(ctx)
		return
	}

	result, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    1,
		Block:    t.config.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return
		}
		if isMissingGroup(err) {
			t.logger.Warn("consumer group missing, recreating", "stream", r.stream, "group", r.group)
			if err := createGroup(ctx, client, r.stream, r.group); err != nil {
				t.logger.Error("failed to recreate consumer group", "group", r.group, "error", err)
			}
		} else {
			t.reportFault("consume", err)
		}
		t.pause(ctx)
		return
	}

	for _, stream := range result {
		for _, msg := range stream.Messages {
			t.handleMessage(ctx, client, eventName, r, msg)
		}
	}
}

func (t *Transport) claimStalledMessages(ctx context.Context, eventName string, r *route) {
	client, err := t.manager.Conn()
	if err != nil {
		return
	}

	pending, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: r.stream,
		Group:  r.group,
		Start:  "-",
		End:    "+",
		Count:  int64(t.config.maxClaimBatch),
		Idle:   t.config.processingTimeout,
	}).Result()
	if err != nil || len(pending) == 0 {
		return
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		if t.config.maxDeliveries > 0 && p.RetryCount >= t.config.maxDeliveries {
			t.deadLetter(ctx, client, eventName, r, p.ID, p.RetryCount)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return
	}

	msgs, err := client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   r.stream,
		Group:    r.group,
		Consumer: r.consumer,
		MinIdle:  t.config.processingTimeout,
		Messages: ids,
	}).Result()
	if err != nil {
		t.logger.Debug("claim failed", "stream", r.stream, "error", err)
		return
	}

	for _, msg := range msgs {
		t.handleMessage(ctx, client, eventName, r, msg)
	}
}

// handleMessage acknowledges messages that were processed or can never be
// processed. Handler failures stay pending for a later claim.
func (t *Transport) handleMessage(ctx context.Context, client *redis.Client, eventName string, r *route, msg redis.XMessage) {
	var body streamMessage
	if err := decodeMessage(msg.Values, &body); err != nil {
		t.logger.Warn("dropping malformed stream entry", "stream", r.stream, "id", msg.ID, "error", err)
		t.ack(ctx, client, r, msg.ID)
		return
	}

	name := body.EventName
	if name == "" {
		name = eventName
	}

	handled, err := t.dispatch(ctx, name, body.Data)
	switch {
	case err == nil:
		if !handled {
			t.logger.Debug("event had no handlers", "event", name, "id", msg.ID)
		}
		t.ack(ctx, client, r, msg.ID)
	case errors.Is(err, eventbus.ErrDeserialization):
		t.logger.Warn("dropping undecodable event", "event", name, "id", msg.ID, "error", err)
		t.ack(ctx, client, r, msg.ID)
	default:
		t.logger.Error("event processing failed, leaving pending", "event", name, "id", msg.ID, "error", err)
	}
}

// deadLetter moves a message that reached the delivery limit to the dead
// letter stream and acknowledges it. The message stays pending when the copy
// fails.
func (t *Transport) deadLetter(ctx context.Context, client *redis.Client, eventName string, r *route, id string, deliveries int64) {
	if t.config.deadLetter {
		msgs, err := client.XRangeN(ctx, r.stream, id, id, 1).Result()
		if err != nil {
			t.logger.Warn("failed to read message for dead letter", "stream", r.stream, "id", id, "error", err)
			return
		}
		if len(msgs) > 0 {
			values := make(map[string]interface{}, len(msgs[0].Values)+4)
			for k, v := range msgs[0].Values {
				values[k] = v
			}
			values["source_stream"] = r.stream
			values["source_id"] = id
			values["group"] = r.group
			values["deliveries"] = deliveries

			if err := client.XAdd(ctx, &redis.XAddArgs{
				Stream: t.deadLetterKey(eventName),
				Values: values,
			}).Err(); err != nil {
				t.logger.Warn("failed to dead-letter message", "stream", r.stream, "id", id, "error", err)
				return
			}
		}
	}

	t.logger.Error("event exceeded max deliveries, dead-lettered",
		"event", eventName,
		"stream", r.stream,
		"group", r.group,
		"id", id,
		"deliveries", deliveries)
	t.ack(ctx, client, r, id)
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

func (t *Transport) ack(ctx context.Context, client *redis.Client, r *route, id string) {
	if err := client.XAck(ctx, r.stream, r.group, id).Err(); err != nil && ctx.Err() == nil {
		t.logger.Warn("ack failed", "stream", r.stream, "id", id, "error", err)
	}
}

// restoreGroups recreates consumer groups after a reconnect, in case the
// server lost them.
func (t *Transport) restoreGroups(client *redis.Client) {
	t.mu.RLock()
	routes := make([]*route, 0, len(t.routes))
	for _, r := range t.routes {
		routes = append(routes, r)
	}
	t.mu.RUnlock()

	if len(routes) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, r := range routes {
		if err := createGroup(ctx, client, r.stream, r.group); err != nil {
			t.logger.Warn("failed to restore consumer group", "group", r.group, "error", err)
		}
	}
}

// reconnectIdle connects again once a background reconnect has given up,
// so a consumer recovers without waiting for a publish.
func (t *Transport) reconnectIdle(ctx context.Context) {
	if t.manager.State() != connection.Disconnected {
		return
	}
	if err := t.manager.Connect(ctx); err != nil && ctx.Err() == nil {
		t.logger.Warn("consumer could not reconnect", "error", err)
	}
}

func (t *Transport) reportFault(op string, err error) {
	if errors.Is(err, redis.ErrClosed) || !connection.IsTransient(err) {
		return
	}
	t.manager.Fault(op, err)
}

func (t *Transport) pause(ctx context.Context) {
	select {
	case <-time.After(t.config.retryPause):
	case <-ctx.Done():
	}
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

func (t *Transport) newConsumerID(eventName string) string {
	prefix := t.config.consumerPrefix
	if prefix != "" {
		prefix = prefix + "-"
	}
	return fmt.Sprintf("consumer-%s%s-%s", prefix, eventName, uuid.New().String())
}

// Close stops all consumers and disposes the connection.
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

func createGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !isGroupExists(err) {
		return err
	}
	return nil
}

func isGroupExists(err error) bool {
	return err != nil && (strings.HasPrefix(err.Error(), "BUSYGROUP") ||
		strings.Contains(err.Error(), "already exists"))
}

func isMissingGroup(err error) bool {
	return err != nil && (strings.HasPrefix(err.Error(), "NOGROUP") ||
		strings.Contains(err.Error(), "no such key") ||
		strings.Contains(err.Error(), "requires the key to exist"))
}

type streamMessage struct {
	ID         string `json:"id"`
	EventName  string `json:"event"`
	Data       []byte `json:"data"`
	EnqueuedAt string `json:"enqueued_at"`
}

func encodeMessage(msg streamMessage) (map[string]interface{}, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"payload": string(data)}, nil
}

func decodeMessage(values map[string]interface{}, msg *streamMessage) error {
	if payload, ok := values["payload"].(string); ok {
		return json.Unmarshal([]byte(payload), msg)
	}
	return ErrInvalidPayload
}
