package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

// Frequency is the repeat unit of a rule. The zero value is not a valid frequency.
type Frequency int

const (
	Daily Frequency = iota + 1
	Weekly
	Monthly
	Yearly
	Hourly
	Minutely
)

// ParseFrequency converts an RFC 5545 FREQ value into a Frequency
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DAILY":
		return Daily, nil
	case "WEEKLY":
		return Weekly, nil
	case "MONTHLY":
		return Monthly, nil
	case "YEARLY":
		return Yearly, nil
	case "HOURLY":
		return Hourly, nil
	case "MINUTELY":
		return Minutely, nil
	}
	return 0, &InvalidRuleError{Reason: fmt.Sprintf("unsupported frequency %q", s)}
}

// String returns the RFC 5545 name of the frequency.
func (f Frequency) String() string {
	switch f {
	case Daily:
		return "DAILY"
	case Weekly:
		return "WEEKLY"
	case Monthly:
		return "MONTHLY"
	case Yearly:
		return "YEARLY"
	case Hourly:
		return "HOURLY"
	case Minutely:
		return "MINUTELY"
	}
	return fmt.Sprintf("Frequency(%d)", int(f))
}

// Valid reports whether f is one of the declared frequencies.
func (f Frequency) Valid() bool {
	_, err := f.rrule()
	return err == nil
}

// IntraDay reports whether the rule can produce several instances on the same calendar day.
func (f Frequency) IntraDay() bool {
	return f == Hourly || f == Minutely
}

func (f Frequency) rrule() (rrule.Frequency, error) {
	switch f {
	case Daily:
		return rrule.DAILY, nil
	case Weekly:
		return rrule.WEEKLY, nil
	case Monthly:
		return rrule.MONTHLY, nil
	case Yearly:
		return rrule.YEARLY, nil
	case Hourly:
		return rrule.HOURLY, nil
	case Minutely:
		return rrule.MINUTELY, nil
	}
	return 0, &InvalidRuleError{Reason: fmt.Sprintf("unsupported frequency %d", int(f))}
}

func frequencyFromRRule(f rrule.Frequency) (Frequency, error) {
	switch f {
	case rrule.DAILY:
		return Daily, nil
	case rrule.WEEKLY:
		return Weekly, nil
	case rrule.MONTHLY:
		return Monthly, nil
	case rrule.YEARLY:
		return Yearly, nil
	case rrule.HOURLY:
		return Hourly, nil
	case rrule.MINUTELY:
		return Minutely, nil
	}
	return 0, &InvalidRuleError{Reason: fmt.Sprintf("unsupported frequency %d", int(f))}
}

// Params holds the per-instance selectors of a rule (RFC 5545 BYxxx parts).
type Params struct {
	ByDay      []rrule.Weekday
	ByMonthDay []int
	ByMonth    []int
	BySetPos   []int

	// WeekStart is the RFC 5545 WKST day. The zero value is Monday, the RFC default.
	// It changes which weeks an interval skips but selects nothing on its own.
	WeekStart rrule.Weekday
}

// Empty reports whether no selector is set.
func (p Params) Empty() bool {
	return len(p.ByDay) == 0 && len(p.ByMonthDay) == 0 && len(p.ByMonth) == 0 && len(p.BySetPos) == 0
}

// Rule describes a repeating schedule attached to a field of an owning entity.
type Rule struct {
	ID       string // Stable identifier
	EntityID string // Owning entity
	Field    string // Owning field name on the entity

	Frequency Frequency
	Interval  int       // 0 is treated as 1
	Count     int       // Maximum number of instances, 0 = unset
	Until     time.Time // Last permitted start, zero = unset

	// Start and End describe the first instance; every instance has the same duration.
	Start time.Time
	End   time.Time

	Params Params

	// Text is the human-readable description shown to editors.
	Text string
}

// Bounded reports whether the rule limits itself by count or end date.
func (r Rule) Bounded() bool {
	return r.Count > 0 || !r.Until.IsZero()
}

// IsDailyRange reports whether the rule is a plain run of consecutive days,
// which display code can collapse into a single range.
func (r Rule) IsDailyRange() bool {
	return r.Frequency == Daily && r.interval() == 1 && r.Bounded() && r.Params.Empty()
}

// Duration is the length of each instance.
func (r Rule) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

func (r Rule) interval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// Validate checks the rule for malformed data.
func (r Rule) Validate() error {
	if !r.Frequency.Valid() {
		return &InvalidRuleError{RuleID: r.ID, Reason: "frequency is not set"}
	}
	if r.Interval < 0 {
		return &InvalidRuleError{RuleID: r.ID, Reason: "interval must not be negative"}
	}
	if r.Count < 0 {
		return &InvalidRuleError{RuleID: r.ID, Reason: "count must not be negative"}
	}
	if r.Count > 0 && !r.Until.IsZero() {
		return &InvalidRuleError{RuleID: r.ID, Reason: "count and until are mutually exclusive"}
	}
	if r.Start.IsZero() {
		return &InvalidRuleError{RuleID: r.ID, Reason: "start is not set"}
	}
	if r.End.Before(r.Start) {
		return &InvalidRuleError{RuleID: r.ID, Reason: "end is before start"}
	}
	if !r.Until.IsZero() && r.Until.Before(r.Start) {
		return &InvalidRuleError{RuleID: r.ID, Reason: "until is before start"}
	}
	return nil
}

// SameDefinition reports whether two rules generate the same instance sequence.
// Identity, ownership and text are ignored.
func (r Rule) SameDefinition(o Rule) bool {
	return r.Frequency == o.Frequency &&
		r.interval() == o.interval() &&
		r.Count == o.Count &&
		r.Until.Equal(o.Until) &&
		r.Start.Equal(o.Start) &&
		r.End.Equal(o.End) &&
		r.RRule() == o.RRule()
}

// Instance is one generated occurrence of a rule.
type Instance struct {
	Index int
	Start time.Time
	End   time.Time
}

// ExpandOptions controls how far expansion goes
type ExpandOptions struct {
	// Horizon is an upper bound on instance starts (inclusive). When absent and the
	// rule is unbounded, the engine falls back to its default horizon.
	Horizon mo.Option[time.Time]
	// MaxInstances caps the number of generated instances, 0 means the engine default.
	MaxInstances int
}

// Expansion is the result of expanding a rule.
type Expansion struct {
	Instances []Instance
	// Truncated is set when the rule would have produced more instances than returned.
	Truncated bool
}

// InvalidRuleError reports an unusable rule definition.
type InvalidRuleError struct {
	RuleID string
	Reason string
	Err    error
}

func (e *InvalidRuleError) Error() string {
	msg := "invalid recurrence rule"
	if e.RuleID != "" {
		msg += " " + e.RuleID
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRuleError) Unwrap() error {
	return e.Err
}
