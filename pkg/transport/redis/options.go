package redis

import (
	"time"

	"github.com/shuldan/eventbus/pkg/connection"
	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/eventbus"
)

type Option func(*config)

type config struct {
	topic             string
	processingTimeout time.Duration
	claimInterval     time.Duration
	maxClaimBatch     int
	maxDeliveries     int64
	deadLetter        bool
	blockTimeout      time.Duration
	retryPause        time.Duration
	maxStreamLength   int64
	approximateTrim   bool
	enableClaim       bool
	consumerPrefix    string
	resolver          eventbus.NameResolver
	connectionOptions []connection.Option
	logger            contracts.Logger
}

func defaultConfig() *config {
	return &config{
		topic:             "eventbus",
		processingTimeout: 30 * time.Second,
		claimInterval:     1 * time.Second,
		maxClaimBatch:     10,
		maxDeliveries:     10,
		deadLetter:        true,
		blockTimeout:      500 * time.Millisecond,
		retryPause:        100 * time.Millisecond,
		approximateTrim:   true,
		enableClaim:       true,
		resolver:          eventbus.NewNameResolver(),
	}
}

// WithTopic sets the namespace of stream keys: <topic>:<event>.
func WithTopic(topic string) Option {
	return func(c *config) {
		if topic != "" {
			c.topic = topic
		}
	}
}

// WithNameResolver sets the resolver that derives consumer group names.
func WithNameResolver(r eventbus.NameResolver) Option {
	return func(c *config) {
		c.resolver = r
	}
}

func WithProcessingTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.processingTimeout = timeout
	}
}

func WithClaimInterval(interval time.Duration) Option {
	return func(c *config) {
		if interval > 0 {
			c.claimInterval = interval
		}
	}
}

func WithMaxClaimBatch(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxClaimBatch = n
		}
	}
}

// WithMaxDeliveries caps how often a pending message is claimed before it
// is dead-lettered and acknowledged. Zero or less claims forever.
func WithMaxDeliveries(n int64) Option {
	return func(c *config) {
		c.maxDeliveries = n
	}
}

// WithDeadLetter controls whether messages over the delivery limit are
// copied to <topic>:dlq:<event> before they are acknowledged.
func WithDeadLetter(enabled bool) Option {
	return func(c *config) {
		c.deadLetter = enabled
	}
}

func WithBlockTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.blockTimeout = timeout
	}
}

func WithRetryPause(pause time.Duration) Option {
	return func(c *config) {
		if pause > 0 {
			c.retryPause = pause
		}
	}
}

func WithMaxStreamLength(maxLen int64) Option {
	return func(c *config) {
		c.maxStreamLength = maxLen
	}
}

func WithApproximateTrimming(enabled bool) Option {
	return func(c *config) {
		c.approximateTrim = enabled
	}
}

func WithClaim(enabled bool) Option {
	return func(c *config) {
		c.enableClaim = enabled
	}
}

func WithConsumerPrefix(prefix string) Option {
	return func(c *config) {
		c.consumerPrefix = prefix
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
