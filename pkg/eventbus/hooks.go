package eventbus

import (
	"log/slog"

	"github.com/shuldan/eventbus/pkg/contracts"
)

type PanicHandler interface {
	Handle(event any, handler HandlerID, panicValue any, stack []byte)
}

type ErrorHandler interface {
	Handle(event any, handler HandlerID, err error)
}

type defaultPanicHandler struct{ logger contracts.Logger }

func NewDefaultPanicHandler(logger contracts.Logger) PanicHandler {
	return &defaultPanicHandler{logger: logger}
}

func (d *defaultPanicHandler) Handle(event any, handler HandlerID, panicValue any, stack []byte) {
	if d.logger == nil {
		slog.Error("event handler panic",
			"event", eventNameOf(event),
			"handler", handler,
			"panic", panicValue,
			"stack", string(stack),
		)
		return
	}
	d.logger.Critical("event handler panic",
		"event", eventNameOf(event),
		"handler", handler,
		"panic", panicValue,
		"stack", string(stack),
	)
}

type defaultErrorHandler struct{ logger contracts.Logger }

func NewDefaultErrorHandler(logger contracts.Logger) ErrorHandler {
	return &defaultErrorHandler{logger: logger}
}

func (d *defaultErrorHandler) Handle(event any, handler HandlerID, err error) {
	if d.logger == nil {
		slog.Error("event handler failed", "event", eventNameOf(event), "handler", handler, "error", err)
		return
	}
	d.logger.Error("event handler failed", "event", eventNameOf(event), "handler", handler, "error", err)
}
