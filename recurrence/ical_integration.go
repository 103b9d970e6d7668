package recurrence

import (
	"errors"
	"time"

	"github.com/emersion/go-ical"
)

// ErrNotRecurring is returned by RuleFromComponent for components without an RRULE.
var ErrNotRecurring = errors.New("component has no recurrence rule")

// RuleFromComponent extracts a rule from a VEVENT component. The component UID becomes the rule ID.
// loc is used for floating DTSTART/DTEND values; nil means UTC.
func RuleFromComponent(comp *ical.Component, loc *time.Location) (Rule, error) {
	rruleProp := comp.Props.Get(ical.PropRecurrenceRule)
	if rruleProp == nil || rruleProp.Value == "" {
		return Rule{}, ErrNotRecurring
	}

	var id string
	if uid := comp.Props.Get(ical.PropUID); uid != nil {
		id = uid.Value
	}

	start, end, ok := extractTimes(comp, loc)
	if !ok {
		return Rule{}, &InvalidRuleError{RuleID: id, Reason: "component has no usable DTSTART"}
	}

	rule, err := ParseRRule(id, rruleProp.Value, start, end)
	if err != nil {
		return Rule{}, err
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// RuleToEvent renders the rule as a master VEVENT carrying its RRULE.
func RuleToEvent(rule Rule) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, rule.ID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
	event.Props.SetDateTime(ical.PropDateTimeStart, rule.Start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, rule.End)

	// Raw value: SetText would escape the ';' separators.
	prop := ical.NewProp(ical.PropRecurrenceRule)
	prop.Value = rule.RRule()
	event.Props.Set(prop)

	if rule.Text != "" {
		event.Props.SetText(ical.PropDescription, rule.Text)
	}
	return event
}

// extractTimes reads start and end from DTSTART plus DTEND or DURATION
func extractTimes(comp *ical.Component, loc *time.Location) (start, end time.Time, ok bool) {
	if loc == nil {
		loc = time.UTC
	}

	start, err := comp.Props.DateTime(ical.PropDateTimeStart, loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}

	if dtend, err := comp.Props.DateTime(ical.PropDateTimeEnd, loc); err == nil {
		end = dtend
	} else if durationProp := comp.Props.Get(ical.PropDuration); durationProp != nil {
		duration, err := durationProp.Duration()
		if err != nil {
			return time.Time{}, time.Time{}, false
		}
		end = start.Add(duration)
	} else if isAllDayDate(start) {
		end = start.AddDate(0, 0, 1)
	} else {
		end = start
	}

	// All-day events stored with DTEND equal to DTSTART span the whole day.
	if isAllDayDate(start) && end.Equal(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end, true
}

func isAllDayDate(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0
}
