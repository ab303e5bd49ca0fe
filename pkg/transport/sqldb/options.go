package sqldb

import (
	"time"

	"github.com/shuldan/eventbus/pkg/connection"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
)

type Option func(*config)

type config struct {
	topic             string
	tablePrefix       string
	pollInterval      time.Duration
	batchSize         int
	maxDeliveries     int
	maxOpenConns      int
	maxIdleConns      int
	connMaxLifetime   time.Duration
	connMaxIdleTime   time.Duration
	pingTimeout       time.Duration
	resolver          eventbus.NameResolver
	connectionOptions []connection.Option
	logger            contracts.Logger
}

func defaultConfig() *config {
	return &config{
		topic:           "eventbus",
		tablePrefix:     "eventbus_",
		pollInterval:    time.Second,
		batchSize:       50,
		maxDeliveries:   10,
		maxOpenConns:    10,
		maxIdleConns:    5,
		connMaxLifetime: time.Hour,
		pingTimeout:     5 * time.Second,
		resolver:        eventbus.NewNameResolver(),
	}
}

// WithTopic sets the topic column stamped on every stored message.
func WithTopic(topic string) Option {
	return func(c *config) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithTablePrefix sets the prefix of the messages and routes tables.
func WithTablePrefix(prefix string) Option {
	return func(c *config) {
		c.tablePrefix = prefix
	}
}

// WithNameResolver sets the resolver that derives route names.
func WithNameResolver(r eventbus.NameResolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

func WithPollInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithMaxDeliveries caps how often a failing message is handed to the
// callback before it moves to the dead letters table. Zero or less retries
// forever.
func WithMaxDeliveries(n int) Option {
	return func(c *config) {
		c.maxDeliveries = n
	}
}

func WithConnectionPool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(c *config) {
		c.maxOpenConns = maxOpen
		c.maxIdleConns = maxIdle
		c.connMaxLifetime = maxLifetime
	}
}

func WithConnectionIdleTime(idle time.Duration) Option {
	return func(c *config) {
		c.connMaxIdleTime = idle
	}
}

func WithPingTimeout(timeout time.Duration) Option {
	return func(c *config) {
		if timeout > 0 {
			c.pingTimeout = timeout
		}
	}
}

func WithConnectionOptions(opts ...connection.Option) Option {
	return func(c *config) {
		c.connectionOptions = append(c.connectionOptions, opts...)
	}
}

func WithLogger(l contracts.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}
