// Package override layers sparse per-instance exceptions onto generated recurrence instances.
package override

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an effective instance.
type Kind int

const (
	None Kind = iota
	Rescheduled
	Cancelled
	Overridden
)

var kindNames = [...]string{
	None:        "none",
	Rescheduled: "rescheduled",
	Cancelled:   "cancelled",
	Overridden:  "overridden",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return None, fmt.Errorf("unknown override kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Override is a per-instance exception, keyed by (RuleID, Index).
//
// An override carrying a substitute entity is an Overridden instance. One carrying
// replacement Start and End is Rescheduled. One with neither is Cancelled.
type Override struct {
	ID       uuid.UUID  `json:"id"`
	RuleID   string     `json:"rule_id"`
	Index    int        `json:"index"`
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}

// Cancel returns an override that removes instance index of a rule.
func Cancel(ruleID string, index int) Override {
	return Override{ID: uuid.New(), RuleID: ruleID, Index: index}
}

// Reschedule returns an override that moves instance index to [start, end).
func Reschedule(ruleID string, index int, start, end time.Time) Override {
	return Override{ID: uuid.New(), RuleID: ruleID, Index: index, Start: &start, End: &end}
}

// Substitute returns an override that defers instance index to another entity.
func Substitute(ruleID string, index int, entityID string) Override {
	return Override{ID: uuid.New(), RuleID: ruleID, Index: index, EntityID: entityID}
}

// Kind classifies the override. The substitute entity takes precedence over replacement times.
func (o Override) Kind() Kind {
	switch {
	case o.EntityID != "":
		return Overridden
	case o.Start != nil && o.End != nil:
		return Rescheduled
	default:
		return Cancelled
	}
}

// Validation errors returned by Override.Validate
var (
	ErrMissingRule    = errors.New("override has no rule")
	ErrNegativeIndex  = errors.New("override index is negative")
	ErrPartialTimes   = errors.New("override must set both start and end, or neither")
	ErrEndBeforeStart = errors.New("override end must be after start")
)

// Validate rejects overrides that cannot be classified unambiguously.
func (o Override) Validate() error {
	if o.RuleID == "" {
		return ErrMissingRule
	}
	if o.Index < 0 {
		return ErrNegativeIndex
	}
	if (o.Start == nil) != (o.End == nil) {
		return ErrPartialTimes
	}
	if o.Start != nil && !o.End.After(*o.Start) {
		return ErrEndBeforeStart
	}
	return nil
}

// EffectiveInstance is a generated instance with its override, if any, applied.
type EffectiveInstance struct {
	Index    int       `json:"index"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Kind     Kind      `json:"kind"`
	Override *Override `json:"override,omitempty"`
}

// Materialized reports whether the instance still belongs to the owning entity's
// values: cancelled instances are gone and overridden ones live on the substitute.
func (e EffectiveInstance) Materialized() bool {
	return e.Kind == None || e.Kind == Rescheduled
}

// DataSkewWarning reports an override whose index is not part of the generated sequence,
// typically because the rule was shortened after the override was written.
type DataSkewWarning struct {
	RuleID    string `json:"rule_id"`
	Index     int    `json:"index"`
	Generated int    `json:"generated"`
}

func (w DataSkewWarning) Error() string {
	return fmt.Sprintf("rule %s: override for index %d ignored, %d instances generated", w.RuleID, w.Index, w.Generated)
}
