package memory

import "github.com/shuldan/eventbus/pkg/errors"

var newMemoryTransportCode = errors.WithPrefix("MEMORY_TRANSPORT")

var (
	ErrTransportClosed = newMemoryTransportCode().New("memory transport is closed")
)
