package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

const untilLayout = "20060102T150405Z"

var weekdayCodes = [...]string{"MO", "TU", "WE", "TH", "FR", "SA", "SU"}

// ParseRRule builds a Rule from an RFC 5545 RRULE value (with or without the "RRULE:" prefix)
// and the bounds of its first instance.
func ParseRRule(id, value string, start, end time.Time) (Rule, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "RRULE:")
	if value == "" {
		return Rule{}, &InvalidRuleError{RuleID: id, Reason: "empty RRULE"}
	}

	opt, err := rrule.StrToROption(value)
	if err != nil {
		return Rule{}, &InvalidRuleError{RuleID: id, Reason: fmt.Sprintf("cannot parse %q", value), Err: err}
	}

	freq, err := frequencyFromRRule(opt.Freq)
	if err != nil {
		return Rule{}, &InvalidRuleError{RuleID: id, Reason: fmt.Sprintf("cannot parse %q", value), Err: err}
	}

	// Only the selectors that Params models are accepted, so that RRule() round-trips.
	if len(opt.Byyearday) > 0 || len(opt.Byweekno) > 0 || len(opt.Byhour) > 0 ||
		len(opt.Byminute) > 0 || len(opt.Bysecond) > 0 || len(opt.Byeaster) > 0 {
		return Rule{}, &InvalidRuleError{RuleID: id, Reason: fmt.Sprintf("unsupported selector in %q", value)}
	}

	r := Rule{
		ID:        id,
		Frequency: freq,
		Interval:  opt.Interval,
		Count:     opt.Count,
		Until:     opt.Until,
		Start:     start,
		End:       end,
		Params: Params{
			ByDay:      opt.Byweekday,
			ByMonthDay: opt.Bymonthday,
			ByMonth:    opt.Bymonth,
			BySetPos:   opt.Bysetpos,
			WeekStart:  opt.Wkst,
		},
	}
	if r.Interval == 1 {
		r.Interval = 0
	}
	return r, nil
}

// RRule renders the rule as an RFC 5545 RRULE value without DTSTART.
// Parts are emitted in a fixed order so the output can be compared.
func (r Rule) RRule() string {
	parts := []string{"FREQ=" + r.Frequency.String()}
	if r.interval() > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(r.interval()))
	}
	if r.Count > 0 {
		parts = append(parts, "COUNT="+strconv.Itoa(r.Count))
	}
	if !r.Until.IsZero() {
		parts = append(parts, "UNTIL="+r.Until.UTC().Format(untilLayout))
	}
	if len(r.Params.ByDay) > 0 {
		days := make([]string, 0, len(r.Params.ByDay))
		for _, wd := range r.Params.ByDay {
			days = append(days, formatWeekday(wd))
		}
		parts = append(parts, "BYDAY="+strings.Join(days, ","))
	}
	if len(r.Params.ByMonthDay) > 0 {
		parts = append(parts, "BYMONTHDAY="+joinInts(r.Params.ByMonthDay))
	}
	if len(r.Params.ByMonth) > 0 {
		parts = append(parts, "BYMONTH="+joinInts(r.Params.ByMonth))
	}
	if len(r.Params.BySetPos) > 0 {
		parts = append(parts, "BYSETPOS="+joinInts(r.Params.BySetPos))
	}
	if r.Params.WeekStart.Day() != rrule.MO.Day() {
		parts = append(parts, "WKST="+weekdayCodes[r.Params.WeekStart.Day()])
	}
	return strings.Join(parts, ";")
}

// ROption converts the rule into rrule-go options anchored at the rule start.
func (r Rule) ROption() (rrule.ROption, error) {
	freq, err := r.Frequency.rrule()
	if err != nil {
		return rrule.ROption{}, err
	}
	return rrule.ROption{
		Freq:       freq,
		Dtstart:    r.Start,
		Interval:   r.interval(),
		Count:      r.Count,
		Until:      r.Until,
		Byweekday:  r.Params.ByDay,
		Bymonthday: r.Params.ByMonthDay,
		Bymonth:    r.Params.ByMonth,
		Bysetpos:   r.Params.BySetPos,
		Wkst:       r.Params.WeekStart,
	}, nil
}

func formatWeekday(wd rrule.Weekday) string {
	code := weekdayCodes[wd.Day()]
	if n := wd.N(); n != 0 {
		return strconv.Itoa(n) + code
	}
	return code
}

func joinInts(values []int) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}
