package eventbus

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Named lets an event choose its wire name instead of its Go type name.
type Named interface {
	EventName() string
}

// IntegrationEvent carries the identity every cross-service event shares.
// Embed it in concrete events.
type IntegrationEvent struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

func NewIntegrationEvent() IntegrationEvent {
	return IntegrationEvent{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
	}
}

// DynamicEvent is delivered to handlers subscribed by name only.
type DynamicEvent struct {
	Name    string
	Payload json.RawMessage
}

func (e DynamicEvent) EventName() string {
	return e.Name
}

func (e DynamicEvent) Decode(v any) error {
	return json.Unmarshal(e.Payload, v)
}

// EventType binds an event name to the Go type its payload decodes into.
type EventType struct {
	name    string
	goType  reflect.Type
	dynamic bool
	decode  func(codec Codec, name string, payload []byte) (any, error)
}

// EventOf describes T. The name comes from T's EventName method when it
// has one, otherwise from the type name.
func EventOf[T any]() EventType {
	typ := reflect.TypeFor[T]()
	return EventType{
		name:   typeEventName(typ),
		goType: typ,
		decode: func(codec Codec, _ string, payload []byte) (any, error) {
			var v T
			if err := codec.Unmarshal(payload, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

func DynamicEventType(name string) EventType {
	return EventType{
		name:    name,
		goType:  reflect.TypeFor[DynamicEvent](),
		dynamic: true,
		decode:  decodeDynamic,
	}
}

func (t EventType) Name() string {
	return t.name
}

func (t EventType) Type() reflect.Type {
	return t.goType
}

func (t EventType) Dynamic() bool {
	return t.dynamic
}

// WithName returns a copy of t registered under name.
func (t EventType) WithName(name string) EventType {
	t.name = name
	return t
}

func (t EventType) String() string {
	if t.goType == nil {
		return t.name
	}
	return t.goType.String()
}

func (t EventType) Decode(codec Codec, name string, payload []byte) (any, error) {
	if t.decode == nil {
		return nil, ErrDeserialization.WithDetail("event", name).WithDetail("reason", "unresolvable type")
	}
	return t.decode(codec, name, payload)
}

func decodeDynamic(_ Codec, name string, payload []byte) (any, error) {
	if !json.Valid(payload) {
		return nil, ErrDeserialization.WithDetail("event", name).WithDetail("reason", "invalid JSON")
	}
	raw := make(json.RawMessage, len(payload))
	copy(raw, payload)
	return DynamicEvent{Name: name, Payload: raw}, nil
}

var namedType = reflect.TypeFor[Named]()

func typeEventName(typ reflect.Type) string {
	if typ == nil {
		return ""
	}
	if typ.Implements(namedType) {
		if typ.Kind() == reflect.Ptr {
			return reflect.New(typ.Elem()).Interface().(Named).EventName()
		}
		return reflect.Zero(typ).Interface().(Named).EventName()
	}
	if typ.Kind() == reflect.Ptr {
		return typ.Elem().Name()
	}
	if reflect.PointerTo(typ).Implements(namedType) {
		return reflect.New(typ).Interface().(Named).EventName()
	}
	return typ.Name()
}

func eventNameOf(event any) string {
	if named, ok := event.(Named); ok {
		return named.EventName()
	}
	return typeEventName(reflect.TypeOf(event))
}
