package eventbus

import (
	"strings"

	"github.com/shuldan/eventbus/pkg/contracts"
	"github.com/shuldan/eventbus/pkg/logger"
)

const (
	DefaultConnectionRetryCount  = 5
	DefaultMaxConcurrentDispatch = 10
)

type FailurePolicy int

const (
	// FailFast stops at the first failing handler of a message.
	FailFast FailurePolicy = iota
	// ContinueOnError invokes every handler and joins their errors.
	ContinueOnError
)

func (p FailurePolicy) String() string {
	if p == ContinueOnError {
		return "continue"
	}
	return "fail_fast"
}

func ParseFailurePolicy(s string) FailurePolicy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "continue", "continue_on_error", "collect":
		return ContinueOnError
	default:
		return FailFast
	}
}

type Option func(*config)

type config struct {
	eventNamePrefix       string
	eventNameSuffix       string
	stripPrefix           bool
	stripSuffix           bool
	subscriberAppName     string
	maxConcurrentDispatch int
	failurePolicy         FailurePolicy
	codec                 Codec
	logger                contracts.Logger
	counter               Counter
	panicHandler          PanicHandler
	errorHandler          ErrorHandler
}

func newConfig(opts ...Option) *config {
	c := &config{
		maxConcurrentDispatch: DefaultMaxConcurrentDispatch,
		failurePolicy:         FailFast,
		codec:                 JSONCodec{},
		counter:               NoOpCounter{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Default()
	}
	if c.panicHandler == nil {
		c.panicHandler = NewDefaultPanicHandler(c.logger)
	}
	if c.errorHandler == nil {
		c.errorHandler = NewDefaultErrorHandler(c.logger)
	}
	return c
}

func (c *config) resolver() NameResolver {
	return NameResolver{
		prefix:      c.eventNamePrefix,
		suffix:      c.eventNameSuffix,
		stripPrefix: c.stripPrefix,
		stripSuffix: c.stripSuffix,
		appName:     c.subscriberAppName,
	}
}

func WithEventNamePrefix(prefix string) Option {
	return func(c *config) {
		c.eventNamePrefix = prefix
	}
}

func WithEventNameSuffix(suffix string) Option {
	return func(c *config) {
		c.eventNameSuffix = suffix
	}
}

func WithStripPrefix(strip bool) Option {
	return func(c *config) {
		c.stripPrefix = strip
	}
}

func WithStripSuffix(strip bool) Option {
	return func(c *config) {
		c.stripSuffix = strip
	}
}

func WithSubscriberAppName(name string) Option {
	return func(c *config) {
		c.subscriberAppName = name
	}
}

func WithMaxConcurrentDispatch(n int) Option {
	return func(c *config) {
		if n < 1 {
			n = 1
		}
		c.maxConcurrentDispatch = n
	}
}

func WithFailurePolicy(policy FailurePolicy) Option {
	return func(c *config) {
		c.failurePolicy = policy
	}
}

func WithCodec(codec Codec) Option {
	return func(c *config) {
		if codec != nil {
			c.codec = codec
		}
	}
}

func WithLogger(l contracts.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func WithCounter(counter Counter) Option {
	return func(c *config) {
		if counter != nil {
			c.counter = counter
		}
	}
}

func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) {
		c.panicHandler = h
	}
}

func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) {
		c.errorHandler = h
	}
}

// OptionsFromConfig reads the eventbus section of cfg.
func OptionsFromConfig(cfg contracts.Config) []Option {
	if cfg == nil {
		return nil
	}
	sub, ok := cfg.GetSub("eventbus")
	if !ok {
		return nil
	}

	return []Option{
		WithEventNamePrefix(sub.GetString("event_name_prefix")),
		WithEventNameSuffix(sub.GetString("event_name_suffix")),
		WithStripPrefix(sub.GetBool("strip_prefix", false)),
		WithStripSuffix(sub.GetBool("strip_suffix", false)),
		WithSubscriberAppName(sub.GetString("subscriber_app_name")),
		WithMaxConcurrentDispatch(sub.GetInt("max_concurrent_dispatch", DefaultMaxConcurrentDispatch)),
		WithFailurePolicy(ParseFailurePolicy(sub.GetString("failure_policy", "fail_fast"))),
	}
}
