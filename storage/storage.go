// Package storage defines the persistence boundary for rules, their overrides, and the
// owning entities that hold materialized instance values.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
)

// Error types
type ErrorType string

const (
	ErrNotFound      ErrorType = "not_found"
	ErrAlreadyExists ErrorType = "already_exists"
	ErrInvalidInput  ErrorType = "invalid_input"
)

// Error represents a storage-related error
type Error struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound builds the error a backend returns for a missing record
func NotFound(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// IsNotFound reports whether err is a storage error of type ErrNotFound
func IsNotFound(err error) bool {
	return IsType(err, ErrNotFound)
}

// IsType reports whether err is a storage error of the given type
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}

// FieldValue is one materialized instance stored on the owning entity.
// Values not produced by a rule have an empty RuleID.
type FieldValue struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	RuleID    string    `json:"rule_id,omitempty"`
	RuleIndex int       `json:"rule_index"`
}

// Entity is the content record that owns recurring field values.
type Entity struct {
	ID     string       `json:"id"`
	Values []FieldValue `json:"values"`
}

// RuleStore persists recurrence rules
type RuleStore interface {
	LoadRule(ctx context.Context, id string) (*recurrence.Rule, error)
	// SaveRule creates or replaces the rule with the same ID.
	SaveRule(ctx context.Context, rule *recurrence.Rule) error
	DeleteRule(ctx context.Context, id string) error
	// ListRules returns every rule ordered by ID.
	ListRules(ctx context.Context) ([]*recurrence.Rule, error)
}

// OverrideStore persists per-instance overrides. Every write is a single atomic
// operation keyed by (rule, index).
type OverrideStore interface {
	LoadOverrides(ctx context.Context, ruleID string) (map[int]override.Override, error)
	// SaveOverride replaces any override already stored for the same rule and index.
	SaveOverride(ctx context.Context, ov override.Override) error
	// DeleteOverride succeeds when nothing is stored for the index.
	DeleteOverride(ctx context.Context, ruleID string, index int) error
	DeleteOverrides(ctx context.Context, ruleID string) error
}

// EntityStore persists owning entities
type EntityStore interface {
	LoadEntity(ctx context.Context, id string) (*Entity, error)
	// SaveEntity replaces all values of the entity in one write.
	SaveEntity(ctx context.Context, entity *Entity) error
}

// Storage is the interface that must be implemented by storage backends
type Storage interface {
	RuleStore
	OverrideStore
	EntityStore
}
