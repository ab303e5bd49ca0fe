package transport

import "github.com/shuldan/eventbus/pkg/errors"

var newTransportCode = errors.WithPrefix("TRANSPORT")

var (
	ErrUnsupportedDriver    = newTransportCode().New("unsupported eventbus driver {{.driver}}")
	ErrDriverConfigNotFound = newTransportCode().New("config for driver {{.driver}} not found")
	ErrDSNNotConfigured     = newTransportCode().New("sql driver requires a dsn")
)
