package eventbus

import "github.com/shuldan/eventbus/pkg/errors"

var newEventBusCode = errors.WithPrefix("EVENTBUS")

var (
	ErrDuplicateSubscription = newEventBusCode().New("handler {{.handler}} is already subscribed to {{.event}}")
	ErrUnknownEvent          = newEventBusCode().New("no subscriptions for event {{.event}}")
	ErrDeserialization       = newEventBusCode().New("failed to deserialize payload of {{.event}}")
	ErrSerialization         = newEventBusCode().New("failed to serialize event {{.event}}")
	ErrHandler               = newEventBusCode().New("handler {{.handler}} failed to handle {{.event}}")
	ErrHandlerPanic          = newEventBusCode().New("handler panicked: {{.panic}}")
	ErrInvalidEventType      = newEventBusCode().New("handler expects {{.expected}}, got {{.got}}")
	ErrInvalidSubscription   = newEventBusCode().New("event name and handler id must not be empty")
	ErrEventTypeConflict     = newEventBusCode().New("event {{.event}} is already bound to {{.existing}}, cannot bind {{.requested}}")
	ErrDuplicateHandler      = newEventBusCode().New("handler {{.handler}} is already registered")
	ErrBusClosed             = newEventBusCode().New("event bus is closed")
	ErrPublish               = newEventBusCode().New("failed to publish {{.event}}")
	ErrProvisionRoute        = newEventBusCode().New("failed to provision route for {{.event}}")
	ErrTeardownRoute         = newEventBusCode().New("failed to tear down route for {{.event}}")
)
