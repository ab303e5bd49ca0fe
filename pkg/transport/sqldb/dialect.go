package sqldb

import (
	"regexp"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type dialect struct {
	name         string
	schema       []string
	insertIgnore string
	numbered     bool
}

var validTablePrefix = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func dialectFor(driver string) (dialect, bool) {
	switch driver {
	case "sqlite3", "sqlite":
		return dialect{
			name: "sqlite3",
			schema: []string{
				`CREATE TABLE IF NOT EXISTS {messages} (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload BLOB NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_{messages}_lookup ON {messages} (topic, event_name, id)`,
				routesTableSQL,
				`CREATE TABLE IF NOT EXISTS {dead_letters} (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    message_id INTEGER NOT NULL,
    group_name VARCHAR(255) NOT NULL,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload BLOB NOT NULL,
    deliveries INTEGER NOT NULL,
    last_error TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
)`,
			},
			insertIgnore: `INSERT OR IGNORE INTO {routes} (group_name, topic, event_name, last_id) VALUES (?, ?, ?, ?)`,
		}, true
	case "mysql":
		return dialect{
			name: "mysql",
			schema: []string{
				`CREATE TABLE IF NOT EXISTS {messages} (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload LONGBLOB NOT NULL,
    created_at DATETIME(6) NOT NULL,
    INDEX idx_lookup (topic, event_name, id)
)`,
				routesTableSQL,
				`CREATE TABLE IF NOT EXISTS {dead_letters} (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    message_id BIGINT NOT NULL,
    group_name VARCHAR(255) NOT NULL,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload LONGBLOB NOT NULL,
    deliveries INT NOT NULL,
    last_error TEXT NOT NULL,
    created_at DATETIME(6) NOT NULL
)`,
			},
			insertIgnore: `INSERT IGNORE INTO {routes} (group_name, topic, event_name, last_id) VALUES (?, ?, ?, ?)`,
		}, true
	case "postgres", "pgx":
		return dialect{
			name: "postgres",
			schema: []string{
				`CREATE TABLE IF NOT EXISTS {messages} (
    id BIGSERIAL PRIMARY KEY,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload BYTEA NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`,
				`CREATE INDEX IF NOT EXISTS idx_{messages}_lookup ON {messages} (topic, event_name, id)`,
				routesTableSQL,
				`CREATE TABLE IF NOT EXISTS {dead_letters} (
    id BIGSERIAL PRIMARY KEY,
    message_id BIGINT NOT NULL,
    group_name VARCHAR(255) NOT NULL,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    payload BYTEA NOT NULL,
    deliveries INTEGER NOT NULL,
    last_error TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`,
			},
			insertIgnore: `INSERT INTO {routes} (group_name, topic, event_name, last_id) VALUES (?, ?, ?, ?) ON CONFLICT (group_name) DO NOTHING`,
			numbered:     true,
		}, true
	default:
		return dialect{}, false
	}
}

const routesTableSQL = `CREATE TABLE IF NOT EXISTS {routes} (
    group_name VARCHAR(255) PRIMARY KEY,
    topic VARCHAR(255) NOT NULL,
    event_name VARCHAR(255) NOT NULL,
    last_id BIGINT NOT NULL
)`

const (
	insertMessageSQL = `INSERT INTO {messages} (topic, event_name, payload, created_at) VALUES (?, ?, ?, ?)`
	maxIDSQL         = `SELECT COALESCE(MAX(id), 0) FROM {messages} WHERE topic = ? AND event_name = ?`
	cursorSQL        = `SELECT last_id FROM {routes} WHERE group_name = ?`
	fetchSQL         = `SELECT id, event_name, payload FROM {messages} WHERE topic = ? AND event_name = ? AND id > ? ORDER BY id LIMIT ?`
	advanceSQL       = `UPDATE {routes} SET last_id = ? WHERE group_name = ? AND last_id < ?`
	deleteRouteSQL   = `DELETE FROM {routes} WHERE group_name = ?`
	deadLetterSQL    = `INSERT INTO {dead_letters} (message_id, group_name, topic, event_name, payload, deliveries, last_error, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
)

type queries struct {
	schema        []string
	insertMessage string
	maxID         string
	insertRoute   string
	cursor        string
	fetch         string
	advance       string
	deleteRoute   string
	deadLetter    string
}

func (d dialect) build(prefix string) queries {
	r := strings.NewReplacer(
		"{messages}", prefix+"messages",
		"{routes}", prefix+"routes",
		"{dead_letters}", prefix+"dead_letters",
	)
	q := func(s string) string {
		s = r.Replace(s)
		if d.numbered {
			s = rebind(s)
		}
		return s
	}

	schema := make([]string, len(d.schema))
	for i, stmt := range d.schema {
		schema[i] = q(stmt)
	}

	return queries{
		schema:        schema,
		insertMessage: q(insertMessageSQL),
		maxID:         q(maxIDSQL),
		insertRoute:   q(d.insertIgnore),
		cursor:        q(cursorSQL),
		fetch:         q(fetchSQL),
		advance:       q(advanceSQL),
		deleteRoute:   q(deleteRouteSQL),
		deadLetter:    q(deadLetterSQL),
	}
}

// rebind turns ? placeholders into $1, $2, ...
func rebind(query string) string {
	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func validatePrefix(prefix string) error {
	if prefix != "" && !validTablePrefix.MatchString(prefix) {
		return ErrInvalidTableName.WithDetail("prefix", prefix)
	}
	return nil
}
