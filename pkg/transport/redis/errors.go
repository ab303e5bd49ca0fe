package redis

import "github.com/shuldan/eventbus/pkg/errors"

var newRedisTransportCode = errors.WithPrefix("REDIS_TRANSPORT")

var (
	ErrInvalidPayload  = newRedisTransportCode().New("missing or invalid 'payload' field")
	ErrEncodeFailed    = newRedisTransportCode().New("failed to encode {{.event}} for Redis")
	ErrPublishFailed   = newRedisTransportCode().New("failed to append {{.event}} to stream {{.stream}}")
	ErrProvisionFailed = newRedisTransportCode().New("failed to create consumer group {{.group}} on {{.stream}}")
	ErrTeardownFailed  = newRedisTransportCode().New("failed to destroy consumer group {{.group}} on {{.stream}}")
	ErrTransportClosed = newRedisTransportCode().New("redis transport is closed")
)
