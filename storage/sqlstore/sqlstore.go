// Package sqlstore implements storage.Storage on database/sql. The postgres and sqlite
// packages open a connection and pick the dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/storage"
)

// Store implements storage.Storage over a SQL database
type Store struct {
	db      *sql.DB
	dialect Dialect
}

var _ storage.Storage = (*Store)(nil)

// New wraps an open database. Call Migrate before first use on a fresh database.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the tables if they do not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", s.dialect.Name, err)
		}
	}
	return nil
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// Rule operations

func (s *Store) LoadRule(ctx context.Context, id string) (*recurrence.Rule, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT id, entity_id, field, rrule, start_at, end_at, tz, description
		FROM rules
		WHERE id = ?`), id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("rule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", id, err)
	}
	return rule, nil
}

func (s *Store) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	if rule == nil || rule.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "rule has no ID",
		}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO rules (id, entity_id, field, rrule, start_at, end_at, tz, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			entity_id = excluded.entity_id,
			field = excluded.field,
			rrule = excluded.rrule,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			tz = excluded.tz,
			description = excluded.description`),
		rule.ID, rule.EntityID, rule.Field, rule.RRule(),
		rule.Start.UTC(), rule.End.UTC(), zoneName(rule.Start), rule.Text)
	if err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	return nil
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.q(`DELETE FROM rules WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule %s: %w", id, err)
	}
	if n == 0 {
		return storage.NotFound("rule not found")
	}
	return nil
}

func (s *Store) ListRules(ctx context.Context) ([]*recurrence.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, entity_id, field, rrule, start_at, end_at, tz, description
		FROM rules
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list rules query: %w", err)
	}
	defer rows.Close()

	var rules []*recurrence.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("list rules scan: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rules rows: %w", err)
	}
	return rules, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner) (*recurrence.Rule, error) {
	var (
		id, entityID, field, value, tz, text string
		start, end                           time.Time
	)
	if err := row.Scan(&id, &entityID, &field, &value, &start, &end, &tz, &text); err != nil {
		return nil, err
	}

	loc := parseZone(tz)

	rule, err := recurrence.ParseRRule(id, value, start.In(loc), end.In(loc))
	if err != nil {
		return nil, err
	}
	rule.EntityID = entityID
	rule.Field = field
	rule.Text = text
	return &rule, nil
}

// offsetLayout stores zones that have no loadable name as their UTC offset.
const offsetLayout = "-07:00"

// zoneName returns the IANA name of t's location, or its offset ("+05:30") when the
// location cannot be loaded back by name, as with time.FixedZone.
func zoneName(t time.Time) string {
	name := t.Location().String()
	if name != "" {
		if _, err := time.LoadLocation(name); err == nil {
			return name
		}
	}
	return t.Format(offsetLayout)
}

func parseZone(tz string) *time.Location {
	if off, err := time.ParseInLocation(offsetLayout, tz, time.UTC); err == nil {
		_, secs := off.Zone()
		return time.FixedZone("", secs)
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Override operations

func (s *Store) LoadOverrides(ctx context.Context, ruleID string) (map[int]override.Override, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT id, idx, start_at, end_at, entity_id
		FROM overrides
		WHERE rule_id = ?`), ruleID)
	if err != nil {
		return nil, fmt.Errorf("load overrides %s: %w", ruleID, err)
	}
	defer rows.Close()

	out := make(map[int]override.Override)
	for rows.Next() {
		ov := override.Override{RuleID: ruleID}
		var start, end sql.NullTime
		if err := rows.Scan(&ov.ID, &ov.Index, &start, &end, &ov.EntityID); err != nil {
			return nil, fmt.Errorf("load overrides %s: %w", ruleID, err)
		}
		if start.Valid {
			ov.Start = &start.Time
		}
		if end.Valid {
			ov.End = &end.Time
		}
		out[ov.Index] = ov
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load overrides %s: %w", ruleID, err)
	}
	return out, nil
}

func (s *Store) SaveOverride(ctx context.Context, ov override.Override) error {
	if err := ov.Validate(); err != nil {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "invalid override",
			Err:     err,
		}
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO overrides (rule_id, idx, id, start_at, end_at, entity_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (rule_id, idx) DO UPDATE SET
			id = excluded.id,
			start_at = excluded.start_at,
			end_at = excluded.end_at,
			entity_id = excluded.entity_id`),
		ov.RuleID, ov.Index, ov.ID.String(), nullTime(ov.Start), nullTime(ov.End), ov.EntityID)
	if err != nil {
		return fmt.Errorf("save override %s/%d: %w", ov.RuleID, ov.Index, err)
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, ruleID string, index int) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM overrides WHERE rule_id = ? AND idx = ?`), ruleID, index)
	if err != nil {
		return fmt.Errorf("delete override %s/%d: %w", ruleID, index, err)
	}
	return nil
}

func (s *Store) DeleteOverrides(ctx context.Context, ruleID string) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM overrides WHERE rule_id = ?`), ruleID)
	if err != nil {
		return fmt.Errorf("delete overrides %s: %w", ruleID, err)
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// Entity operations

func (s *Store) LoadEntity(ctx context.Context, id string) (*storage.Entity, error) {
	var found string
	err := s.db.QueryRowContext(ctx, s.q(`SELECT id FROM entities WHERE id = ?`), id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFound("entity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load entity %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT start_at, end_at, rule_id, rule_index
		FROM entity_values
		WHERE entity_id = ?
		ORDER BY pos`), id)
	if err != nil {
		return nil, fmt.Errorf("load entity %s values: %w", id, err)
	}
	defer rows.Close()

	entity := &storage.Entity{ID: id}
	for rows.Next() {
		var v storage.FieldValue
		if err := rows.Scan(&v.Start, &v.End, &v.RuleID, &v.RuleIndex); err != nil {
			return nil, fmt.Errorf("load entity %s values: %w", id, err)
		}
		entity.Values = append(entity.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load entity %s values: %w", id, err)
	}
	return entity, nil
}

// SaveEntity replaces the entity's values inside one transaction.
func (s *Store) SaveEntity(ctx context.Context, entity *storage.Entity) (err error) {
	if entity == nil || entity.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "entity has no ID",
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save entity %s: %w", entity.ID, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, s.q(`INSERT INTO entities (id) VALUES (?) ON CONFLICT (id) DO NOTHING`), entity.ID); err != nil {
		return fmt.Errorf("save entity %s: %w", entity.ID, err)
	}
	if _, err = tx.ExecContext(ctx, s.q(`DELETE FROM entity_values WHERE entity_id = ?`), entity.ID); err != nil {
		return fmt.Errorf("save entity %s: %w", entity.ID, err)
	}

	insert := s.q(`
		INSERT INTO entity_values (entity_id, pos, start_at, end_at, rule_id, rule_index)
		VALUES (?, ?, ?, ?, ?, ?)`)
	for pos, v := range entity.Values {
		if _, err = tx.ExecContext(ctx, insert, entity.ID, pos, v.Start.UTC(), v.End.UTC(), v.RuleID, v.RuleIndex); err != nil {
			return fmt.Errorf("save entity %s value %d: %w", entity.ID, pos, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("save entity %s: %w", entity.ID, err)
	}
	return nil
}
