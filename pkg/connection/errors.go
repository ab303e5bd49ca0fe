package connection

import "github.com/shuldan/eventbus/pkg/errors"

var newConnectionCode = errors.WithPrefix("CONNECTION")

var (
	ErrTransient        = newConnectionCode().New("transient connection failure")
	ErrRetriesExhausted = newConnectionCode().New("{{.name}}: could not connect after {{.attempts}} attempts")
	ErrNonTransient     = newConnectionCode().New("{{.name}}: connection failed with a non-transient error")
	ErrDisposed         = newConnectionCode().New("connection manager is disposed")
	ErrNotConnected     = newConnectionCode().New("{{.name}}: not connected")
)
