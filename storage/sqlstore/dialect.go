package sqlstore

import (
	"strconv"
	"strings"
)

// Dialect captures the differences between SQL backends. Queries in this package are
// written with '?' placeholders and rewritten through Rebind.
type Dialect struct {
	Name string
	// Numbered rewrites placeholders as $1, $2, ... (PostgreSQL).
	Numbered bool
	// Schema is executed statement by statement by Migrate. Every statement must be idempotent.
	Schema []string
}

// Rebind rewrites '?' placeholders for the dialect.
func (d Dialect) Rebind(query string) string {
	if !d.Numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// schema returns the shared table layout with the given timestamp column type.
func schema(timestampType string) []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS rules (
			id          TEXT PRIMARY KEY,
			entity_id   TEXT NOT NULL DEFAULT '',
			field       TEXT NOT NULL DEFAULT '',
			rrule       TEXT NOT NULL,
			start_at    ` + timestampType + ` NOT NULL,
			end_at      ` + timestampType + ` NOT NULL,
			tz          TEXT NOT NULL DEFAULT 'UTC',
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS overrides (
			rule_id   TEXT NOT NULL,
			idx       INTEGER NOT NULL,
			id        TEXT NOT NULL,
			start_at  ` + timestampType + `,
			end_at    ` + timestampType + `,
			entity_id TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (rule_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS entities (
			id TEXT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS entity_values (
			entity_id  TEXT NOT NULL REFERENCES entities (id) ON DELETE CASCADE,
			pos        INTEGER NOT NULL,
			start_at   ` + timestampType + ` NOT NULL,
			end_at     ` + timestampType + ` NOT NULL,
			rule_id    TEXT NOT NULL DEFAULT '',
			rule_index INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (entity_id, pos)
		)`,
		`CREATE INDEX IF NOT EXISTS entity_values_rule_id ON entity_values (rule_id)`,
	}
}

// Postgres is the PostgreSQL dialect.
var Postgres = Dialect{
	Name:     "postgres",
	Numbered: true,
	Schema:   schema("TIMESTAMPTZ"),
}

// SQLite is the SQLite dialect. TIMESTAMP columns let the driver scan into time.Time.
var SQLite = Dialect{
	Name:   "sqlite3",
	Schema: schema("TIMESTAMP"),
}
