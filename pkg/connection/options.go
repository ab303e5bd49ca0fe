package connection

import (
	"context"
	"time"

	"github.com/shuldan/eventbus/pkg/contracts"
)

const DefaultRetryCount = 5

type Option func(*config)

type config struct {
	name        string
	retryCount  int
	backoff     BackoffStrategy
	isTransient func(error) bool
	sleep       func(ctx context.Context, d time.Duration) error
	logger      contracts.Logger
}

func defaultConfig() *config {
	return &config{
		name:        "connection",
		retryCount:  DefaultRetryCount,
		backoff:     DefaultBackoff(),
		isTransient: IsTransient,
		sleep:       sleepContext,
	}
}

func WithName(name string) Option {
	return func(c *config) {
		if name != "" {
			c.name = name
		}
	}
}

func WithRetryCount(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.retryCount = n
		}
	}
}

func WithBackoff(b BackoffStrategy) Option {
	return func(c *config) {
		if b != nil {
			c.backoff = b
		}
	}
}

func WithTransientClassifier(fn func(error) bool) Option {
	return func(c *config) {
		if fn != nil {
			c.isTransient = fn
		}
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

func WithLogger(l contracts.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
