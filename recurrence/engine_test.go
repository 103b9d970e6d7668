package recurrence

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func dailyMeeting() Rule {
	return Rule{
		ID:        "rule-1",
		Frequency: Daily,
		Interval:  1,
		Count:     5,
		Start:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestEngine_ExpandDailyCount(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)

	result, err := engine.Expand(dailyMeeting(), ExpandOptions{})
	require.NoError(t, err)
	require.Len(t, result.Instances, 5)
	assert.False(t, result.Truncated)

	for i, inst := range result.Instances {
		assert.Equal(t, i, inst.Index)
		assert.Equal(t, time.Date(2024, 1, 1+i, 9, 0, 0, 0, time.UTC), inst.Start)
		assert.Equal(t, time.Date(2024, 1, 1+i, 10, 0, 0, 0, time.UTC), inst.End)
	}
}

func TestEngine_ExpandBounds(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name          string
		rule          Rule
		opts          ExpandOptions
		expectedCount int
		truncated     bool
		last          time.Time
	}{
		{
			name:          "Horizon tighter than count",
			rule:          Rule{Frequency: Daily, Count: 10, Start: start, End: start.Add(time.Hour)},
			opts:          ExpandOptions{Horizon: mo.Some(time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC))},
			expectedCount: 3,
			truncated:     true,
			last:          time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC),
		},
		{
			name:          "Count tighter than horizon",
			rule:          Rule{Frequency: Daily, Count: 2, Start: start, End: start.Add(time.Hour)},
			opts:          ExpandOptions{Horizon: mo.Some(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC))},
			expectedCount: 2,
			last:          time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC),
		},
		{
			name:          "Until is inclusive",
			rule:          Rule{Frequency: Weekly, Until: time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC), Start: start, End: start.Add(time.Hour)},
			expectedCount: 5,
			last:          time.Date(2024, 1, 29, 9, 0, 0, 0, time.UTC),
		},
		{
			name:          "Unbounded rule gets the default horizon",
			rule:          Rule{Frequency: Daily, Start: start, End: start.Add(time.Hour)},
			expectedCount: 367,
			truncated:     true,
			last:          time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			name:          "Instance cap",
			rule:          Rule{Frequency: Hourly, Start: start, End: start.Add(30 * time.Minute)},
			opts:          ExpandOptions{MaxInstances: 10},
			expectedCount: 10,
			truncated:     true,
			last:          time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC),
		},
		{
			name:          "Minutely with interval",
			rule:          Rule{Frequency: Minutely, Interval: 15, Start: start, End: start.Add(10 * time.Minute)},
			opts:          ExpandOptions{Horizon: mo.Some(time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC))},
			expectedCount: 5,
			truncated:     true,
			last:          time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "Monthly on the last Friday",
			rule: Rule{
				Frequency: Monthly,
				Count:     3,
				Start:     time.Date(2024, 1, 26, 18, 0, 0, 0, time.UTC),
				End:       time.Date(2024, 1, 26, 20, 0, 0, 0, time.UTC),
				Params:    Params{ByDay: []rrule.Weekday{rrule.FR.Nth(-1)}},
			},
			expectedCount: 3,
			last:          time.Date(2024, 3, 29, 18, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := engine.Expand(tt.rule, tt.opts)
			require.NoError(t, err)
			require.Len(t, result.Instances, tt.expectedCount)
			assert.Equal(t, tt.truncated, result.Truncated)
			assert.Equal(t, tt.last, result.Instances[len(result.Instances)-1].Start)
		})
	}
}

func TestEngine_ExpandOrdering(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	rules := []Rule{
		{Frequency: Weekly, Count: 12, Start: start, End: start.Add(time.Hour),
			Params: Params{ByDay: []rrule.Weekday{rrule.MO, rrule.WE, rrule.FR}}},
		{Frequency: Monthly, Count: 12, Start: start, End: start.Add(2 * time.Hour),
			Params: Params{ByMonthDay: []int{1, 15}}},
		{Frequency: Yearly, Interval: 2, Count: 4, Start: start, End: start.Add(24 * time.Hour)},
		{Frequency: Hourly, Interval: 3, Count: 20, Start: start, End: start.Add(time.Hour)},
	}

	for _, rule := range rules {
		t.Run(rule.RRule(), func(t *testing.T) {
			result, err := engine.Expand(rule, ExpandOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, result.Instances)

			for i, inst := range result.Instances {
				assert.Equal(t, i, inst.Index)
				assert.True(t, inst.Start.Before(inst.End), "start must precede end at %d", i)
				if i > 0 {
					assert.True(t, result.Instances[i-1].Start.Before(inst.Start), "starts must increase at %d", i)
				}
			}
		})
	}
}

func TestEngine_DSTGapKeepsStartsIncreasing(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	// 2024-03-10 02:00 does not exist in New York
	start := time.Date(2024, 3, 10, 0, 0, 0, 0, ny)

	tests := []struct {
		name     string
		rule     Rule
		maxCount int
	}{
		{
			name:     "hourly",
			rule:     Rule{ID: "hourly", Frequency: Hourly, Count: 6, Start: start, End: start.Add(30 * time.Minute)},
			maxCount: 6,
		},
		{
			name:     "minutely",
			rule:     Rule{ID: "minutely", Frequency: Minutely, Interval: 30, Count: 8, Start: start, End: start.Add(10 * time.Minute)},
			maxCount: 8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngineWithConfig(DisabledCacheConfig)
			result, err := engine.Expand(tt.rule, ExpandOptions{})
			require.NoError(t, err)
			require.NotEmpty(t, result.Instances)
			assert.LessOrEqual(t, len(result.Instances), tt.maxCount)

			for i, inst := range result.Instances {
				assert.Equal(t, i, inst.Index, "indices stay dense")
				if i > 0 {
					prev := result.Instances[i-1].Start
					assert.True(t, inst.Start.After(prev), "instance %d at %s does not follow %s", i, inst.Start, prev)
				}
			}

			again, err := engine.Expand(tt.rule, ExpandOptions{})
			require.NoError(t, err)
			assert.Equal(t, result, again)
		})
	}

	engine := NewEngineWithConfig(DisabledCacheConfig)
	result, err := engine.Expand(tests[0].rule, ExpandOptions{})
	require.NoError(t, err)
	// 00:00 and 01:00 EST, then 03:00, 04:00 and 05:00 EDT
	assert.Len(t, result.Instances, 5)
	assert.Equal(t, time.Date(2024, 3, 10, 7, 0, 0, 0, time.UTC), result.Instances[2].Start.UTC())
}

func TestEngine_WeeklyByDay(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	rule := Rule{
		Frequency: Weekly,
		Count:     6,
		Start:     start,
		End:       start.Add(time.Hour),
		Params:    Params{ByDay: []rrule.Weekday{rrule.MO, rrule.WE, rrule.FR}},
	}

	result, err := engine.Expand(rule, ExpandOptions{})
	require.NoError(t, err)

	days := make([]int, 0, len(result.Instances))
	for _, inst := range result.Instances {
		days = append(days, inst.Start.Day())
	}
	assert.Equal(t, []int{1, 3, 5, 8, 10, 12}, days)
}

func TestEngine_Deterministic(t *testing.T) {
	for name, config := range map[string]EngineConfig{
		"cached":   DefaultEngineConfig,
		"uncached": DisabledCacheConfig,
	} {
		t.Run(name, func(t *testing.T) {
			engine := NewEngineWithConfig(config)
			defer engine.Close()

			rule := dailyMeeting()
			rule.Count = 0
			opts := ExpandOptions{Horizon: mo.Some(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))}

			first, err := engine.Expand(rule, opts)
			require.NoError(t, err)
			second, err := engine.Expand(rule, opts)
			require.NoError(t, err)
			assert.Equal(t, first, second)
		})
	}
}

func TestEngine_IndicesStableAcrossHorizons(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	rule := dailyMeeting()
	rule.Count = 0

	short, err := engine.Expand(rule, ExpandOptions{Horizon: mo.Some(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)
	long, err := engine.Expand(rule, ExpandOptions{Horizon: mo.Some(time.Date(2024, 2, 10, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	require.Greater(t, len(long.Instances), len(short.Instances))
	assert.Equal(t, short.Instances, long.Instances[:len(short.Instances)])
}

func TestEngine_ZeroLengthRule(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	rule := dailyMeeting()
	rule.End = rule.Start

	result, err := engine.Expand(rule, ExpandOptions{})
	require.NoError(t, err)
	for _, inst := range result.Instances {
		assert.Equal(t, time.Minute, inst.End.Sub(inst.Start))
	}
}

func TestEngine_InvalidRule(t *testing.T) {
	engine := NewEngineWithConfig(DisabledCacheConfig)
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rule Rule
	}{
		{name: "Missing frequency", rule: Rule{Start: start, End: start}},
		{name: "Unknown frequency", rule: Rule{Frequency: Frequency(42), Start: start, End: start}},
		{name: "Count and until", rule: Rule{Frequency: Daily, Count: 2, Until: start.AddDate(0, 0, 3), Start: start, End: start}},
		{name: "End before start", rule: Rule{Frequency: Daily, Count: 2, Start: start, End: start.Add(-time.Hour)}},
		{name: "Missing start", rule: Rule{Frequency: Daily, Count: 2}},
		{name: "Negative interval", rule: Rule{Frequency: Daily, Interval: -1, Start: start, End: start}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Expand(tt.rule, ExpandOptions{})
			require.Error(t, err)

			var invalid *InvalidRuleError
			assert.True(t, errors.As(err, &invalid))
		})
	}
}

func TestEngine_CachedResultIsACopy(t *testing.T) {
	engine := NewEngine()
	defer engine.Close()

	first, err := engine.Expand(dailyMeeting(), ExpandOptions{})
	require.NoError(t, err)
	first.Instances[0].Start = time.Time{}

	second, err := engine.Expand(dailyMeeting(), ExpandOptions{})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), second.Instances[0].Start)
}

func TestFrequency(t *testing.T) {
	for _, name := range []string{"DAILY", "weekly", "Monthly", "YEARLY", "HOURLY", "MINUTELY"} {
		f, err := ParseFrequency(name)
		require.NoError(t, err, name)
		assert.True(t, f.Valid())
	}

	_, err := ParseFrequency("SECONDLY")
	var invalid *InvalidRuleError
	assert.True(t, errors.As(err, &invalid))

	assert.True(t, Hourly.IntraDay())
	assert.True(t, Minutely.IntraDay())
	assert.False(t, Daily.IntraDay())
	assert.False(t, Frequency(0).Valid())
}

func TestRule_IsDailyRange(t *testing.T) {
	rule := dailyMeeting()
	assert.True(t, rule.IsDailyRange())

	unbounded := rule
	unbounded.Count = 0
	assert.False(t, unbounded.IsDailyRange())

	everyOther := rule
	everyOther.Interval = 2
	assert.False(t, everyOther.IsDailyRange())

	weekdays := rule
	weekdays.Params.ByDay = []rrule.Weekday{rrule.MO, rrule.TU}
	assert.False(t, weekdays.IsDailyRange())

	weekly := rule
	weekly.Frequency = Weekly
	assert.False(t, weekly.IsDailyRange())
}
