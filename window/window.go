// Package window picks the slice of an effective instance sequence that is shown relative to a
// reference instant: a few past units, the next one, and a few upcoming ones.
//
// A unit is a single instance, except for hourly and minutely rules where all instances on the
// same calendar day form one unit. Plain runs of consecutive days collapse into one range.
package window

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/smartdate/override"
)

// DayLayout formats Group.Day
const DayLayout = "2006-01-02"

// Options configures a Selector
type Options struct {
	Past     int // Past units to keep, most recent first
	Upcoming int // Upcoming units to keep, including the next one
	ShowNext bool

	// CurrentAsUpcoming keeps an in-progress instance on the upcoming side: an instance
	// qualifies as upcoming when its end is at or after now. When false only instances
	// starting at or after now qualify.
	CurrentAsUpcoming bool

	// CollapseDailyRange renders bounded plain daily rules as one range.
	CollapseDailyRange bool

	// Location is used to bucket intra-day instances by calendar day. Nil means the
	// location of the rule start.
	Location *time.Location
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Past:               2,
		Upcoming:           2,
		CurrentAsUpcoming:  true,
		CollapseDailyRange: true,
	}
}

// Group is one display unit. It holds a single instance unless the rule recurs within a day.
type Group struct {
	Day       string
	Instances []override.EffectiveInstance
}

// Span returns the earliest start and latest end in the group.
func (g Group) Span() (start, end time.Time) {
	for i, inst := range g.Instances {
		if i == 0 || inst.Start.Before(start) {
			start = inst.Start
		}
		if i == 0 || inst.End.After(end) {
			end = inst.End
		}
	}
	return start, end
}

// Range is a collapsed daily rule.
type Range struct {
	Start time.Time
	End   time.Time
}

// Display is the selected window.
type Display struct {
	Past     []Group
	Next     mo.Option[Group] // Set only when Options.ShowNext is on
	Upcoming []Group

	// AllPast is set when no instance qualified as upcoming. The last unit is then
	// treated as next.
	AllPast bool

	// Range is set instead of the lists for collapsed daily rules.
	Range mo.Option[Range]
}

// Empty reports whether there is nothing to show.
func (d Display) Empty() bool {
	return len(d.Past) == 0 && len(d.Upcoming) == 0 && d.Next.IsAbsent() && d.Range.IsAbsent()
}
