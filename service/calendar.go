package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
)

const productID = "-//smartdate//Recurring Dates//EN"

// ImportCalendar saves one rule per recurring VEVENT in r, owned by entityID. Events without
// an RRULE are skipped. Events without a UID get a generated rule ID.
func (s *Service) ImportCalendar(ctx context.Context, entityID string, r io.Reader) ([]*recurrence.Rule, error) {
	dec := ical.NewDecoder(r)

	var rules []*recurrence.Rule
	for {
		cal, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rules, fmt.Errorf("%w: %w", ErrInvalidCalendar, err)
		}

		for _, event := range cal.Events() {
			rule, err := recurrence.RuleFromComponent(event.Component, s.location)
			if errors.Is(err, recurrence.ErrNotRecurring) {
				continue
			}
			if err != nil {
				return rules, err
			}
			if rule.ID == "" {
				rule.ID = uuid.New().String()
			}
			rule.EntityID = entityID
			if summary, err := event.Props.Text(ical.PropSummary); err == nil && summary != "" {
				rule.Field = summary
			}

			if err := s.SaveRule(ctx, &rule); err != nil {
				return rules, err
			}
			rules = append(rules, &rule)
		}
	}

	s.logger.Info("calendar imported", "entity_id", entityID, "rules", len(rules))
	return rules, nil
}

// ExportCalendar writes the rule as a master VEVENT followed by one VEVENT per effective
// instance, each identified by the RECURRENCE-ID of its generated start.
func (s *Service) ExportCalendar(ctx context.Context, ruleID string, w io.Writer) error {
	rule, err := s.store.LoadRule(ctx, ruleID)
	if err != nil {
		return err
	}
	exp, err := s.expand(rule, mo.None[time.Time]())
	if err != nil {
		return err
	}
	res, err := s.resolve(ctx, rule, exp)
	if err != nil {
		return err
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, recurrence.RuleToEvent(*rule).Component)

	stamp := s.now().UTC()
	for i, inst := range res.Instances {
		cal.Children = append(cal.Children, instanceEvent(rule.ID, exp.Instances[i].Start, inst, stamp).Component)
	}

	if err := ical.NewEncoder(w).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode calendar: %w", err)
	}
	return nil
}

func instanceEvent(ruleID string, generated time.Time, inst override.EffectiveInstance, stamp time.Time) *ical.Event {
	event := ical.NewEvent()
	event.Props.SetText(ical.PropUID, ruleID)
	event.Props.SetDateTime(ical.PropDateTimeStamp, stamp)
	event.Props.SetDateTime(ical.PropRecurrenceID, generated)
	event.Props.SetDateTime(ical.PropDateTimeStart, inst.Start)
	event.Props.SetDateTime(ical.PropDateTimeEnd, inst.End)

	switch inst.Kind {
	case override.Cancelled:
		event.Props.SetText(ical.PropStatus, "CANCELLED")
	case override.Overridden:
		event.Props.SetText(ical.PropRelatedTo, inst.Override.EntityID)
	}
	return event
}
