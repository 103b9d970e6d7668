package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/storage"
	"github.com/cyp0633/smartdate/storage/memory"
	"github.com/cyp0633/smartdate/window"
)

var testNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, store storage.Storage) *Service {
	t.Helper()
	engine := recurrence.NewEngineWithConfig(recurrence.DisabledCacheConfig)
	t.Cleanup(engine.Close)
	return New(store, engine, Config{
		Window: window.DefaultOptions(),
		Now:    func() time.Time { return testNow },
	})
}

// dailyRule is five daily 09:00-10:00 instances starting 2024-01-01, owned by node/1.
func dailyRule() *recurrence.Rule {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return &recurrence.Rule{
		ID:        "daily",
		EntityID:  "node/1",
		Field:     "field_when",
		Frequency: recurrence.Daily,
		Count:     5,
		Start:     start,
		End:       start.Add(time.Hour),
	}
}

func weeklyRule(id string, count int) *recurrence.Rule {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return &recurrence.Rule{
		ID:        id,
		EntityID:  "node/1",
		Frequency: recurrence.Weekly,
		Count:     count,
		Start:     start,
		End:       start.Add(time.Hour),
		Params:    recurrence.Params{ByDay: []rrule.Weekday{rrule.MO}},
	}
}

func setup(t *testing.T, rules ...*recurrence.Rule) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	svc := newTestService(t, store)
	ctx := context.Background()
	for _, rule := range rules {
		require.NoError(t, svc.SaveRule(ctx, rule))
	}
	require.NoError(t, store.SaveEntity(ctx, &storage.Entity{ID: "node/1"}))
	return svc, store
}

func kinds(res override.Resolution) []override.Kind {
	out := make([]override.Kind, len(res.Instances))
	for i, inst := range res.Instances {
		out[i] = inst.Kind
	}
	return out
}

func TestService_CancelThenRestore(t *testing.T) {
	svc, _ := setup(t, dailyRule())
	ctx := context.Background()

	res, err := svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	require.Len(t, res.Instances, 5)
	original := res.Instances[2]

	_, err = svc.RemoveInstance(ctx, "daily", 2)
	require.NoError(t, err)

	res, err = svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, []override.Kind{
		override.None, override.None, override.Cancelled, override.None, override.None,
	}, kinds(res))
	assert.Equal(t, original.Start, res.Instances[2].Start)

	require.NoError(t, svc.RestoreDefault(ctx, "daily", 2))

	res, err = svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, original, res.Instances[2])
}

func TestService_SaveRule(t *testing.T) {
	svc, store := setup(t, dailyRule())
	ctx := context.Background()

	saved, err := store.LoadRule(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, "Every day, 5 times", saved.Text)

	_, err = svc.RemoveInstance(ctx, "daily", 1)
	require.NoError(t, err)

	// Text-only edits keep overrides
	edited := dailyRule()
	edited.Text = "Morning check-in"
	require.NoError(t, svc.SaveRule(ctx, edited))
	overrides, err := store.LoadOverrides(ctx, "daily")
	require.NoError(t, err)
	assert.Len(t, overrides, 1)

	// Definition changes drop them
	edited.Count = 3
	require.NoError(t, svc.SaveRule(ctx, edited))
	overrides, err = store.LoadOverrides(ctx, "daily")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	invalid := dailyRule()
	invalid.Frequency = 0
	var ruleErr *recurrence.InvalidRuleError
	assert.ErrorAs(t, svc.SaveRule(ctx, invalid), &ruleErr)
}

func TestService_OperatorActionsCheckIndex(t *testing.T) {
	svc, store := setup(t, dailyRule())
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		act  func() error
		want error
	}{
		{"remove past the end", func() error {
			_, err := svc.RemoveInstance(ctx, "daily", 5)
			return err
		}, ErrIndexOutOfRange},
		{"remove negative", func() error {
			_, err := svc.RemoveInstance(ctx, "daily", -1)
			return err
		}, ErrIndexOutOfRange},
		{"reschedule past the end", func() error {
			_, err := svc.Reschedule(ctx, "daily", 7, start, start.Add(time.Hour))
			return err
		}, ErrIndexOutOfRange},
		{"reschedule backwards", func() error {
			_, err := svc.Reschedule(ctx, "daily", 1, start, start.Add(-time.Hour))
			return err
		}, ErrInvalidOverride},
		{"substitute without entity", func() error {
			_, err := svc.OverrideWithEntity(ctx, "daily", 1, "")
			return err
		}, ErrInvalidOverride},
		{"substitute missing entity", func() error {
			_, err := svc.OverrideWithEntity(ctx, "daily", 1, "node/404")
			return err
		}, ErrInvalidOverride},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.act(), tt.want)
		})
	}

	overrides, err := store.LoadOverrides(ctx, "daily")
	require.NoError(t, err)
	assert.Empty(t, overrides, "rejected actions must not write")

	_, err = svc.RemoveInstance(ctx, "missing", 0)
	assert.True(t, storage.IsNotFound(err))
}

func TestService_RescheduleAndSubstitute(t *testing.T) {
	svc, store := setup(t, dailyRule())
	ctx := context.Background()
	require.NoError(t, store.SaveEntity(ctx, &storage.Entity{ID: "node/2"}))

	start := time.Date(2024, 1, 2, 14, 0, 0, 0, time.UTC)
	ov, err := svc.Reschedule(ctx, "daily", 1, start, start.Add(90*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, override.Rescheduled, ov.Kind())

	ov, err = svc.OverrideWithEntity(ctx, "daily", 3, "node/2")
	require.NoError(t, err)
	assert.Equal(t, override.Overridden, ov.Kind())

	res, err := svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, start, res.Instances[1].Start)
	assert.Equal(t, start.Add(90*time.Minute), res.Instances[1].End)
	assert.Equal(t, override.Overridden, res.Instances[3].Kind)
	assert.Equal(t, "node/2", res.Instances[3].Override.EntityID)

	// A second action on the same index replaces the first
	_, err = svc.RemoveInstance(ctx, "daily", 1)
	require.NoError(t, err)
	res, err = svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Equal(t, override.Cancelled, res.Instances[1].Kind)
}

func TestService_ListInstancesSkew(t *testing.T) {
	svc, store := setup(t, dailyRule(), weeklyRule("weekly", 0))
	ctx := context.Background()

	// Stale: the rule only generates five instances
	require.NoError(t, store.SaveOverride(ctx, override.Cancel("daily", 9)))
	res, err := svc.ListInstances(ctx, "daily", mo.None[time.Time]())
	require.NoError(t, err)
	require.Len(t, res.Skew, 1)
	assert.Equal(t, 9, res.Skew[0].Index)
	assert.Equal(t, 5, res.Skew[0].Generated)

	// Beyond the horizon of an unbounded rule: exists, just not generated this time
	require.NoError(t, store.SaveOverride(ctx, override.Cancel("weekly", 200)))
	res, err = svc.ListInstances(ctx, "weekly", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Len(t, res.Instances, 53)
	assert.Empty(t, res.Skew)

	horizon := time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)
	res, err = svc.ListInstances(ctx, "weekly", mo.Some(horizon))
	require.NoError(t, err)
	assert.Len(t, res.Instances, 5)
}

func TestService_Window(t *testing.T) {
	svc, store := setup(t, weeklyRule("weekly", 10))
	ctx := context.Background()
	require.NoError(t, store.SaveOverride(ctx, override.Cancel("weekly", 5)))

	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	d, err := svc.Window(ctx, "weekly", now)
	require.NoError(t, err)
	require.Len(t, d.Past, 2)
	require.Len(t, d.Upcoming, 2)
	assert.Equal(t, 3, d.Past[0].Instances[0].Index)
	assert.Equal(t, 4, d.Past[1].Instances[0].Index)
	assert.Equal(t, 5, d.Upcoming[0].Instances[0].Index)
	assert.Equal(t, override.Cancelled, d.Upcoming[0].Instances[0].Kind)
	assert.Equal(t, 6, d.Upcoming[1].Instances[0].Index)

	_, err = svc.Window(ctx, "missing", now)
	assert.True(t, storage.IsNotFound(err))
}

func TestService_WindowDailyRangeSkipsOverrides(t *testing.T) {
	store := &storage.MockStorage{}
	store.On("LoadRule", mock.Anything, "daily").Return(dailyRule(), nil)
	svc := newTestService(t, store)

	d, err := svc.Window(context.Background(), "daily", testNow)
	require.NoError(t, err)

	r, ok := d.Range.Get()
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), r.Start)
	assert.Equal(t, time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC), r.End)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "LoadOverrides", mock.Anything, mock.Anything)
}

func TestService_StorageErrorsPropagate(t *testing.T) {
	boom := errors.New("connection reset")
	store := &storage.MockStorage{}
	store.On("LoadRule", mock.Anything, "weekly").Return(weeklyRule("weekly", 10), nil)
	store.On("LoadOverrides", mock.Anything, "weekly").Return(nil, boom)
	svc := newTestService(t, store)

	_, err := svc.ListInstances(context.Background(), "weekly", mo.None[time.Time]())
	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
}

func TestService_SaveRuleKeepsOverridesWhenWriteFails(t *testing.T) {
	boom := errors.New("disk full")
	changed := weeklyRule("weekly", 6)

	store := &storage.MockStorage{}
	store.On("LoadRule", mock.Anything, "weekly").Return(weeklyRule("weekly", 10), nil)
	store.On("SaveRule", mock.Anything, changed).Return(boom)
	svc := newTestService(t, store)

	err := svc.SaveRule(context.Background(), changed)
	assert.ErrorIs(t, err, boom)
	store.AssertExpectations(t)
	store.AssertNotCalled(t, "DeleteOverrides", mock.Anything, mock.Anything)
}

func TestService_SaveRuleDropsOverridesAfterWrite(t *testing.T) {
	changed := weeklyRule("weekly", 6)

	var calls []string
	store := &storage.MockStorage{}
	store.On("LoadRule", mock.Anything, "weekly").Return(weeklyRule("weekly", 10), nil)
	store.On("SaveRule", mock.Anything, changed).Return(nil).
		Run(func(mock.Arguments) { calls = append(calls, "SaveRule") })
	store.On("DeleteOverrides", mock.Anything, "weekly").Return(nil).
		Run(func(mock.Arguments) { calls = append(calls, "DeleteOverrides") })
	svc := newTestService(t, store)

	require.NoError(t, svc.SaveRule(context.Background(), changed))
	assert.Equal(t, []string{"SaveRule", "DeleteOverrides"}, calls)
	store.AssertExpectations(t)
}

func TestService_ApplyChanges(t *testing.T) {
	svc, store := setup(t, dailyRule())
	ctx := context.Background()

	other := storage.FieldValue{
		Start: time.Date(2024, 1, 20, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 20, 10, 0, 0, 0, time.UTC),
	}
	stale := storage.FieldValue{Start: other.Start.AddDate(1, 0, 0), End: other.End.AddDate(1, 0, 0), RuleID: "daily", RuleIndex: 40}
	require.NoError(t, store.SaveEntity(ctx, &storage.Entity{ID: "node/1", Values: []storage.FieldValue{other, stale}}))
	require.NoError(t, store.SaveEntity(ctx, &storage.Entity{ID: "node/2"}))

	moved := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)
	_, err := svc.RemoveInstance(ctx, "daily", 1)
	require.NoError(t, err)
	_, err = svc.Reschedule(ctx, "daily", 3, moved, moved.Add(time.Hour))
	require.NoError(t, err)
	_, err = svc.OverrideWithEntity(ctx, "daily", 4, "node/2")
	require.NoError(t, err)

	written, err := svc.ApplyChanges(ctx, "daily")
	require.NoError(t, err)
	assert.Equal(t, 3, written)

	entity, err := store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	require.Len(t, entity.Values, 4)

	assert.Equal(t, 0, entity.Values[0].RuleIndex)
	assert.Equal(t, 2, entity.Values[1].RuleIndex)
	assert.Equal(t, 3, entity.Values[2].RuleIndex)
	assert.Equal(t, moved, entity.Values[2].Start)
	assert.Equal(t, other, entity.Values[3])

	// Applying again gives the same values
	_, err = svc.ApplyChanges(ctx, "daily")
	require.NoError(t, err)
	again, err := store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	assert.Equal(t, entity.Values, again.Values)
}

func TestService_ApplyChangesMissingEntity(t *testing.T) {
	orphan := dailyRule()
	orphan.ID = "orphan"
	orphan.EntityID = "node/404"
	unowned := dailyRule()
	unowned.ID = "unowned"
	unowned.EntityID = ""

	svc, _ := setup(t, orphan, unowned)
	ctx := context.Background()

	_, err := svc.ApplyChanges(ctx, "orphan")
	assert.ErrorIs(t, err, ErrMissingParentEntity)
	_, err = svc.ApplyChanges(ctx, "unowned")
	assert.ErrorIs(t, err, ErrMissingParentEntity)

	// Reads still work without the owner
	res, err := svc.ListInstances(ctx, "orphan", mo.None[time.Time]())
	require.NoError(t, err)
	assert.Len(t, res.Instances, 5)
}

func TestService_ApplyAll(t *testing.T) {
	orphan := dailyRule()
	orphan.ID = "orphan"
	orphan.EntityID = "node/404"

	svc, store := setup(t, dailyRule(), orphan)
	ctx := context.Background()

	err := svc.ApplyAll(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingParentEntity)
	assert.Contains(t, err.Error(), "rule orphan")

	entity, err := store.LoadEntity(ctx, "node/1")
	require.NoError(t, err)
	assert.Len(t, entity.Values, 5)
}

func TestService_DeleteRule(t *testing.T) {
	svc, store := setup(t, dailyRule())
	ctx := context.Background()

	_, err := svc.RemoveInstance(ctx, "daily", 0)
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRule(ctx, "daily"))

	_, err = svc.Rule(ctx, "daily")
	assert.True(t, storage.IsNotFound(err))
	overrides, err := store.LoadOverrides(ctx, "daily")
	require.NoError(t, err)
	assert.Empty(t, overrides)

	assert.True(t, storage.IsNotFound(svc.DeleteRule(ctx, "daily")))
}

const importICS = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//EN
BEGIN:VEVENT
UID:weekly-sync
DTSTAMP:20240101T000000Z
DTSTART:20240101T090000Z
DTEND:20240101T100000Z
SUMMARY:Weekly sync
RRULE:FREQ=WEEKLY;COUNT=4;BYDAY=MO
END:VEVENT
BEGIN:VEVENT
UID:one-off
DTSTAMP:20240101T000000Z
DTSTART:20240105T090000Z
DTEND:20240105T100000Z
SUMMARY:One-off
END:VEVENT
END:VCALENDAR
`

func TestService_ImportCalendar(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	ics := strings.ReplaceAll(importICS, "\n", "\r\n")
	rules, err := svc.ImportCalendar(ctx, "node/1", strings.NewReader(ics))
	require.NoError(t, err)
	require.Len(t, rules, 1)

	rule, err := svc.Rule(ctx, "weekly-sync")
	require.NoError(t, err)
	assert.Equal(t, "node/1", rule.EntityID)
	assert.Equal(t, "Weekly sync", rule.Field)
	assert.Equal(t, "Every week on Monday, 4 times", rule.Text)
	assert.Equal(t, "FREQ=WEEKLY;COUNT=4;BYDAY=MO", rule.RRule())

	_, err = svc.ImportCalendar(ctx, "node/1", strings.NewReader("BEGIN:VCALENDAR\r\nBROKEN"))
	assert.Error(t, err)
}

func TestService_ExportCalendar(t *testing.T) {
	svc, _ := setup(t, dailyRule())
	ctx := context.Background()

	_, err := svc.RemoveInstance(ctx, "daily", 2)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportCalendar(ctx, "daily", &buf))
	out := buf.String()

	assert.Contains(t, out, "RRULE:FREQ=DAILY;COUNT=5")
	assert.Equal(t, 5, strings.Count(out, "RECURRENCE-ID"))
	assert.Equal(t, 1, strings.Count(out, "STATUS:CANCELLED"))
	assert.Contains(t, out, "RECURRENCE-ID:20240103T090000Z")

	assert.True(t, storage.IsNotFound(svc.ExportCalendar(ctx, "missing", &buf)))
}
