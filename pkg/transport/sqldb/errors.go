package sqldb

import "github.com/shuldan/eventbus/pkg/errors"

var newSQLTransportCode = errors.WithPrefix("SQL_TRANSPORT")

var (
	ErrUnsupportedDriver = newSQLTransportCode().New("unsupported sql driver {{.driver}}")
	ErrInvalidTableName  = newSQLTransportCode().New("invalid table prefix {{.prefix}}")
	ErrMigrationFailed   = newSQLTransportCode().New("failed to create eventbus tables")
	ErrPublishFailed     = newSQLTransportCode().New("failed to insert {{.event}}")
	ErrProvisionFailed   = newSQLTransportCode().New("failed to register route {{.group}}")
	ErrTeardownFailed    = newSQLTransportCode().New("failed to remove route {{.group}}")
	ErrTransportClosed   = newSQLTransportCode().New("sql transport is closed")
)
