// Package storagetest is a conformance suite shared by the storage backends.
package storagetest

import (
	"context"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/storage"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) storage.Storage

// Run exercises every storage operation against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Rules", func(t *testing.T) { testRules(t, newStore(t)) })
	t.Run("Overrides", func(t *testing.T) { testOverrides(t, newStore(t)) })
	t.Run("Entities", func(t *testing.T) { testEntities(t, newStore(t)) })
	t.Run("Zones", func(t *testing.T) { testZones(t, newStore(t)) })
}

// SampleRule is a weekly rule with selectors, so round trips cover Params.
func SampleRule(id string) *recurrence.Rule {
	return &recurrence.Rule{
		ID:        id,
		EntityID:  "node/1",
		Field:     "field_when",
		Frequency: recurrence.Weekly,
		Interval:  2,
		Until:     time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
		Start:     time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:       time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC),
		Params:    recurrence.Params{ByDay: []rrule.Weekday{rrule.MO, rrule.TH}},
		Text:      "Every 2 weeks on Monday and Thursday",
	}
}

func testRules(t *testing.T, store storage.Storage) {
	ctx := context.Background()

	_, err := store.LoadRule(ctx, "missing")
	assert.True(t, storage.IsNotFound(err), "expected not found, got %v", err)

	rule := SampleRule("b")
	require.NoError(t, store.SaveRule(ctx, rule))
	require.NoError(t, store.SaveRule(ctx, SampleRule("a")))

	got, err := store.LoadRule(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
	assert.Equal(t, rule.EntityID, got.EntityID)
	assert.Equal(t, rule.Field, got.Field)
	assert.Equal(t, rule.Text, got.Text)
	assert.True(t, rule.SameDefinition(*got), "definition changed: %s vs %s", rule.RRule(), got.RRule())

	// Save replaces
	rule.Count = 4
	rule.Until = time.Time{}
	require.NoError(t, store.SaveRule(ctx, rule))
	got, err = store.LoadRule(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, 4, got.Count)
	assert.True(t, got.Until.IsZero())

	rules, err := store.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "a", rules[0].ID)
	assert.Equal(t, "b", rules[1].ID)

	require.NoError(t, store.DeleteRule(ctx, "a"))
	_, err = store.LoadRule(ctx, "a")
	assert.True(t, storage.IsNotFound(err))
	assert.True(t, storage.IsNotFound(store.DeleteRule(ctx, "a")))

	assert.True(t, storage.IsType(store.SaveRule(ctx, &recurrence.Rule{}), storage.ErrInvalidInput))
}

func testOverrides(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	require.NoError(t, store.SaveRule(ctx, SampleRule("r")))

	got, err := store.LoadOverrides(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, got)

	start := time.Date(2024, 1, 4, 15, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	cancel := override.Cancel("r", 1)
	require.NoError(t, store.SaveOverride(ctx, cancel))
	require.NoError(t, store.SaveOverride(ctx, override.Substitute("r", 3, "node/9")))

	got, err = store.LoadOverrides(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, cancel.ID, got[1].ID)
	assert.Equal(t, override.Cancelled, got[1].Kind())
	assert.Equal(t, override.Overridden, got[3].Kind())
	assert.Equal(t, "node/9", got[3].EntityID)

	// A second write to the same index replaces the first
	moved := override.Reschedule("r", 1, start, end)
	require.NoError(t, store.SaveOverride(ctx, moved))

	got, err = store.LoadOverrides(ctx, "r")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, moved.ID, got[1].ID)
	assert.Equal(t, override.Rescheduled, got[1].Kind())
	assert.True(t, start.Equal(*got[1].Start))
	assert.True(t, end.Equal(*got[1].End))

	// Delete is idempotent
	require.NoError(t, store.DeleteOverride(ctx, "r", 1))
	require.NoError(t, store.DeleteOverride(ctx, "r", 1))
	require.NoError(t, store.DeleteOverride(ctx, "other", 0))

	got, err = store.LoadOverrides(ctx, "r")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, store.DeleteOverrides(ctx, "r"))
	got, err = store.LoadOverrides(ctx, "r")
	require.NoError(t, err)
	assert.Empty(t, got)

	invalid := override.Override{RuleID: "r", Index: 2, Start: &start}
	assert.True(t, storage.IsType(store.SaveOverride(ctx, invalid), storage.ErrInvalidInput))
}

func testEntities(t *testing.T, store storage.Storage) {
	ctx := context.Background()

	_, err := store.LoadEntity(ctx, "node/1")
	assert.True(t, storage.IsNotFound(err))

	day := func(d int) time.Time { return time.Date(2024, 1, d, 9, 0, 0, 0, time.UTC) }
	entity := &storage.Entity{
		ID: "node/1",
		Values: []storage.FieldValue{
			{Start: day(1), End: day(1).Add(time.Hour), RuleID: "r", RuleIndex: 0},
			{Start: day(2), End: day(2).Add(time.Hour), RuleID: "r", RuleIndex: 1},
			{Start: day(20), End: day(20).Add(time.Hour)},
		},
	}
	require.NoError(t, store.SaveEntity(ctx, entity))

	got, err := store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	require.Len(t, got.Values, 3)
	for i, v := range got.Values {
		assert.True(t, entity.Values[i].Start.Equal(v.Start))
		assert.True(t, entity.Values[i].End.Equal(v.End))
		assert.Equal(t, entity.Values[i].RuleID, v.RuleID)
		assert.Equal(t, entity.Values[i].RuleIndex, v.RuleIndex)
	}

	// Save replaces all values
	entity.Values = entity.Values[2:]
	require.NoError(t, store.SaveEntity(ctx, entity))
	got, err = store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	require.Len(t, got.Values, 1)
	assert.Empty(t, got.Values[0].RuleID)

	entity.Values = nil
	require.NoError(t, store.SaveEntity(ctx, entity))
	got, err = store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	assert.Empty(t, got.Values)

	assert.True(t, storage.IsType(store.SaveEntity(ctx, &storage.Entity{}), storage.ErrInvalidInput))
}

func testZones(t *testing.T, store storage.Storage) {
	ctx := context.Background()
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name string
		loc  *time.Location
	}{
		{"named", berlin},
		{"unnamed fixed offset", time.FixedZone("", 5*3600+30*60)},
		{"named fixed offset", time.FixedZone("XYZ", -3*3600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := SampleRule("zone")
			rule.Start = time.Date(2024, 1, 1, 23, 30, 0, 0, tt.loc)
			rule.End = rule.Start.Add(time.Hour)
			rule.Params.WeekStart = rrule.SU
			require.NoError(t, store.SaveRule(ctx, rule))

			got, err := store.LoadRule(ctx, "zone")
			require.NoError(t, err)
			assert.True(t, rule.SameDefinition(*got), "definition changed: %s vs %s", rule.RRule(), got.RRule())
			assert.Equal(t, rule.Start.Format(time.RFC3339), got.Start.Format(time.RFC3339), "wall clock and offset survive")
			assert.Equal(t, rule.Start.Weekday(), got.Start.Weekday())
			assert.Equal(t, rrule.SU.Day(), got.Params.WeekStart.Day())
		})
	}
}
