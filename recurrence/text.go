package recurrence

import (
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

var weekdayNames = [...]string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var ordinalWords = map[int]string{
	1: "first", 2: "second", 3: "third", 4: "fourth", 5: "fifth",
	-1: "last", -2: "second to last", -3: "third to last",
}

// Describe renders the rule as English text, e.g. "Every 2 weeks on Monday, Friday, 10 times".
func (r Rule) Describe() string {
	var b strings.Builder

	b.WriteString("Every ")
	unit := unitName(r.Frequency)
	if n := r.interval(); n > 1 {
		b.WriteString(strconv.Itoa(n))
		b.WriteString(" ")
		b.WriteString(unit)
		b.WriteString("s")
	} else {
		b.WriteString(unit)
	}

	if len(r.Params.ByDay) > 0 {
		b.WriteString(" on ")
		if len(r.Params.BySetPos) > 0 {
			b.WriteString("the ")
			b.WriteString(joinWords(ordinals(r.Params.BySetPos), "and"))
			b.WriteString(" ")
			b.WriteString(joinWords(dayNames(r.Params.ByDay), "or"))
		} else {
			b.WriteString(joinWords(dayNames(r.Params.ByDay), "and"))
		}
	}

	if len(r.Params.ByMonthDay) > 0 {
		b.WriteString(" on ")
		b.WriteString(joinWords(monthDays(r.Params.ByMonthDay), "and"))
	}

	if len(r.Params.ByMonth) > 0 {
		names := make([]string, 0, len(r.Params.ByMonth))
		for _, m := range r.Params.ByMonth {
			if m >= 1 && m <= 12 {
				names = append(names, time.Month(m).String())
			}
		}
		b.WriteString(" in ")
		b.WriteString(joinWords(names, "and"))
	}

	switch {
	case r.Count == 1:
		b.WriteString(", once")
	case r.Count > 1:
		b.WriteString(", ")
		b.WriteString(strconv.Itoa(r.Count))
		b.WriteString(" times")
	case !r.Until.IsZero():
		b.WriteString(", until ")
		b.WriteString(r.Until.In(r.Start.Location()).Format("January 2, 2006"))
	}

	return b.String()
}

func unitName(f Frequency) string {
	switch f {
	case Daily:
		return "day"
	case Weekly:
		return "week"
	case Monthly:
		return "month"
	case Yearly:
		return "year"
	case Hourly:
		return "hour"
	case Minutely:
		return "minute"
	}
	return "period"
}

func dayNames(days []rrule.Weekday) []string {
	out := make([]string, 0, len(days))
	for _, wd := range days {
		name := weekdayNames[wd.Day()]
		if n := wd.N(); n != 0 {
			name = "the " + ordinal(n) + " " + name
		}
		out = append(out, name)
	}
	return out
}

func monthDays(days []int) []string {
	out := make([]string, 0, len(days))
	for _, d := range days {
		if d < 0 {
			out = append(out, "the "+ordinal(d)+" day")
			continue
		}
		out = append(out, "day "+strconv.Itoa(d))
	}
	return out
}

func ordinals(positions []int) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, ordinal(p))
	}
	return out
}

func ordinal(n int) string {
	if w, ok := ordinalWords[n]; ok {
		return w
	}
	if n < 0 {
		return "#" + strconv.Itoa(-n) + " to last"
	}
	return "#" + strconv.Itoa(n)
}

// joinWords joins with commas and the conjunction before the final item.
func joinWords(words []string, conj string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	}
	return strings.Join(words[:len(words)-1], ", ") + " " + conj + " " + words[len(words)-1]
}
