package connection

import "time"

type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

type FixedBackoff struct {
	Duration time.Duration
}

func (f FixedBackoff) Delay(int) time.Duration {
	return f.Duration
}

// ExponentialBackoff waits Base << attempt, capped at MaxDelay when set.
type ExponentialBackoff struct {
	Base     time.Duration
	MaxDelay time.Duration
}

func (e ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return e.Base
	}
	if attempt > 62 {
		return e.cap()
	}
	delay := e.Base << uint(attempt)
	if delay < e.Base || delay>>uint(attempt) != e.Base {
		return e.cap()
	}
	if e.MaxDelay > 0 && delay > e.MaxDelay {
		return e.MaxDelay
	}
	return delay
}

func (e ExponentialBackoff) cap() time.Duration {
	if e.MaxDelay > 0 {
		return e.MaxDelay
	}
	return time.Duration(1<<63 - 1)
}

type NoBackoff struct{}

func (NoBackoff) Delay(int) time.Duration { return 0 }

// DefaultBackoff waits 2^attempt seconds after failed attempt number attempt.
func DefaultBackoff() BackoffStrategy {
	return ExponentialBackoff{Base: time.Second}
}
