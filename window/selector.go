package window

import (
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
)

// Selector computes display windows
type Selector struct {
	opts Options
}

// NewSelector creates a selector. Negative counts are treated as zero.
func NewSelector(opts Options) *Selector {
	opts.Past = max(opts.Past, 0)
	opts.Upcoming = max(opts.Upcoming, 0)
	return &Selector{opts: opts}
}

// Options returns the selector configuration
func (s *Selector) Options() Options {
	return s.opts
}

// Select picks the window of effective around now. effective must be in index order, as
// returned by the resolver. An empty sequence yields an empty display.
func (s *Selector) Select(rule recurrence.Rule, effective []override.EffectiveInstance, now time.Time) Display {
	if len(effective) == 0 {
		return Display{}
	}

	if s.opts.CollapseDailyRange && rule.IsDailyRange() {
		return s.collapse(effective, now)
	}

	units := s.units(rule, effective)

	next := -1
	for i, unit := range units {
		if s.qualifies(unit, now) {
			next = i
			break
		}
	}

	var d Display
	if next < 0 {
		d.AllPast = true
		next = len(units) - 1
	}

	past := units[:next]
	if len(past) > s.opts.Past {
		past = past[len(past)-s.opts.Past:]
	}
	upcoming := units[next:]
	if len(upcoming) > s.opts.Upcoming {
		upcoming = upcoming[:s.opts.Upcoming]
	}

	if s.opts.ShowNext && len(upcoming) > 0 {
		d.Next = mo.Some(upcoming[0])
		upcoming = upcoming[1:]
	}

	d.Past = past
	d.Upcoming = upcoming
	return d
}

// qualifies reports whether any member of the unit counts as upcoming at now.
func (s *Selector) qualifies(unit Group, now time.Time) bool {
	for _, inst := range unit.Instances {
		if s.opts.CurrentAsUpcoming {
			if !inst.End.Before(now) {
				return true
			}
		} else if !inst.Start.Before(now) {
			return true
		}
	}
	return false
}

// units splits the sequence into display units: calendar-day buckets for intra-day
// rules, single instances otherwise. Bucket order follows first appearance.
func (s *Selector) units(rule recurrence.Rule, effective []override.EffectiveInstance) []Group {
	loc := s.opts.Location
	if loc == nil {
		loc = rule.Start.Location()
	}

	if !rule.Frequency.IntraDay() {
		units := make([]Group, len(effective))
		for i, inst := range effective {
			units[i] = Group{
				Day:       inst.Start.In(loc).Format(DayLayout),
				Instances: []override.EffectiveInstance{inst},
			}
		}
		return units
	}

	var units []Group
	positions := make(map[string]int)
	for _, inst := range effective {
		day := inst.Start.In(loc).Format(DayLayout)
		pos, ok := positions[day]
		if !ok {
			pos = len(units)
			positions[day] = pos
			units = append(units, Group{Day: day})
		}
		units[pos].Instances = append(units[pos].Instances, inst)
	}
	return units
}

func (s *Selector) collapse(effective []override.EffectiveInstance, now time.Time) Display {
	start, end := Group{Instances: effective}.Span()
	return Display{
		Range:   mo.Some(Range{Start: start, End: end}),
		AllPast: end.Before(now),
	}
}
