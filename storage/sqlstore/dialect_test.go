package sqlstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDialect_Rebind(t *testing.T) {
	query := "SELECT a FROM t WHERE b = ? AND c = ?"

	assert.Equal(t, query, SQLite.Rebind(query))
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", Postgres.Rebind(query))
	assert.Equal(t, "SELECT 1", Postgres.Rebind("SELECT 1"))
}

func TestDialect_Schema(t *testing.T) {
	for _, d := range []Dialect{Postgres, SQLite} {
		t.Run(d.Name, func(t *testing.T) {
			assert.Len(t, d.Schema, 5)
			for _, stmt := range d.Schema {
				assert.Contains(t, stmt, "IF NOT EXISTS")
			}
		})
	}
	assert.True(t, strings.Contains(Postgres.Schema[0], "TIMESTAMPTZ"))
	assert.False(t, strings.Contains(SQLite.Schema[0], "TIMESTAMPTZ"))
}
