package eventbus

import "context"

// MessageCallback is invoked by a Transport for every inbound message. The
// transport acknowledges the message when handled is true.
type MessageCallback func(ctx context.Context, eventName string, payload []byte) (handled bool, err error)

// Transport is the broker-specific half of the bus.
type Transport interface {
	Publish(ctx context.Context, eventName string, payload []byte) error
	ProvisionRoute(ctx context.Context, eventName string) error
	TeardownRoute(ctx context.Context, eventName string) error
	RegisterMessageCallback(callback MessageCallback)
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
}
