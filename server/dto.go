package server

import (
	"time"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/window"
)

// ruleDTO is the wire form of a rule. The recurrence itself travels as an RRULE value.
type ruleDTO struct {
	ID       string    `json:"id"`
	EntityID string    `json:"entity_id"`
	Field    string    `json:"field,omitempty"`
	RRule    string    `json:"rrule"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Timezone string    `json:"timezone,omitempty"`
	Text     string    `json:"text,omitempty"`
}

func ruleToDTO(rule *recurrence.Rule) ruleDTO {
	return ruleDTO{
		ID:       rule.ID,
		EntityID: rule.EntityID,
		Field:    rule.Field,
		RRule:    rule.RRule(),
		Start:    rule.Start,
		End:      rule.End,
		Timezone: rule.Start.Location().String(),
		Text:     rule.Text,
	}
}

// toRule builds the rule stored under id. Start and End are moved into Timezone so that
// weekly and monthly selectors follow local days across DST changes.
func (d ruleDTO) toRule(id string) (*recurrence.Rule, error) {
	loc := time.UTC
	if d.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(d.Timezone)
		if err != nil {
			return nil, &recurrence.InvalidRuleError{RuleID: id, Reason: "unknown timezone", Err: err}
		}
	}

	rule, err := recurrence.ParseRRule(id, d.RRule, d.Start.In(loc), d.End.In(loc))
	if err != nil {
		return nil, err
	}
	rule.EntityID = d.EntityID
	rule.Field = d.Field
	rule.Text = d.Text
	return &rule, nil
}

// instanceRequest is the body of PUT /rules/{id}/instances/{index}. A substitute entity
// wins over replacement times.
type instanceRequest struct {
	Start    *time.Time `json:"start,omitempty"`
	End      *time.Time `json:"end,omitempty"`
	EntityID string     `json:"entity_id,omitempty"`
}

type groupDTO struct {
	Day       string                       `json:"day"`
	Start     time.Time                    `json:"start"`
	End       time.Time                    `json:"end"`
	Instances []override.EffectiveInstance `json:"instances"`
}

type rangeDTO struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type windowDTO struct {
	Past     []groupDTO `json:"past"`
	Next     *groupDTO  `json:"next,omitempty"`
	Upcoming []groupDTO `json:"upcoming"`
	AllPast  bool       `json:"all_past"`
	Range    *rangeDTO  `json:"range,omitempty"`
	Empty    bool       `json:"empty"`
}

func groupToDTO(g window.Group) groupDTO {
	start, end := g.Span()
	return groupDTO{Day: g.Day, Start: start, End: end, Instances: g.Instances}
}

func groupsToDTO(groups []window.Group) []groupDTO {
	out := make([]groupDTO, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupToDTO(g))
	}
	return out
}

func windowToDTO(d window.Display) windowDTO {
	dto := windowDTO{
		Past:     groupsToDTO(d.Past),
		Upcoming: groupsToDTO(d.Upcoming),
		AllPast:  d.AllPast,
		Empty:    d.Empty(),
	}
	if next, ok := d.Next.Get(); ok {
		g := groupToDTO(next)
		dto.Next = &g
	}
	if r, ok := d.Range.Get(); ok {
		dto.Range = &rangeDTO{Start: r.Start, End: r.End}
	}
	return dto
}

type applyDTO struct {
	RuleID string `json:"rule_id"`
	Values int    `json:"values"`
}
