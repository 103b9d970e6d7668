// Package service ties rule storage, expansion, override resolution and windowing together.
// It is the only place that reads or writes storage; the recurrence, override and window
// packages stay pure.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/samber/mo"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/storage"
	"github.com/cyp0633/smartdate/window"
)

var (
	// ErrMissingParentEntity is returned when the entity owning a rule cannot be loaded.
	ErrMissingParentEntity = errors.New("owning entity not found")
	// ErrIndexOutOfRange is returned by operator actions on an index the rule does not generate.
	ErrIndexOutOfRange = errors.New("instance index out of range")
	// ErrInvalidOverride is returned for malformed reschedule or substitute requests.
	ErrInvalidOverride = errors.New("invalid override")
	// ErrInvalidCalendar is returned when an imported iCalendar stream cannot be decoded.
	ErrInvalidCalendar = errors.New("invalid calendar")
)

// Config configures a Service
type Config struct {
	// HorizonMonths bounds unbounded rules, counted from now (or the rule start if later).
	HorizonMonths int
	Window        window.Options
	// Location is used for floating times on calendar import. Nil means UTC.
	Location *time.Location
	Logger   *slog.Logger
	// Now returns the reference instant. Nil means time.Now.
	Now func() time.Time
}

// Service runs the operations exposed to the HTTP layer, the CLI and the scheduler.
type Service struct {
	store         storage.Storage
	engine        *recurrence.Engine
	resolver      *override.Resolver
	selector      *window.Selector
	horizonMonths int
	location      *time.Location
	logger        *slog.Logger
	now           func() time.Time
}

// New creates a service on top of store and engine.
func New(store storage.Storage, engine *recurrence.Engine, config Config) *Service {
	if config.Logger == nil {
		config.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.HorizonMonths <= 0 {
		config.HorizonMonths = recurrence.DefaultHorizonMonths
	}
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Service{
		store:         store,
		engine:        engine,
		resolver:      override.NewResolver(config.Logger),
		selector:      window.NewSelector(config.Window),
		horizonMonths: config.HorizonMonths,
		location:      config.Location,
		logger:        config.Logger,
		now:           config.Now,
	}
}

// Rule loads a rule
func (s *Service) Rule(ctx context.Context, ruleID string) (*recurrence.Rule, error) {
	return s.store.LoadRule(ctx, ruleID)
}

// Rules lists every stored rule
func (s *Service) Rules(ctx context.Context) ([]*recurrence.Rule, error) {
	return s.store.ListRules(ctx)
}

// horizon is the expansion bound for rule. Bounded rules run to their own limit.
func (s *Service) horizon(rule *recurrence.Rule, now time.Time) mo.Option[time.Time] {
	if rule.Bounded() {
		return mo.None[time.Time]()
	}
	from := now
	if rule.Start.After(from) {
		from = rule.Start
	}
	return mo.Some(from.AddDate(0, s.horizonMonths, 0))
}

func (s *Service) expand(rule *recurrence.Rule, horizon mo.Option[time.Time]) (recurrence.Expansion, error) {
	if horizon.IsAbsent() {
		horizon = s.horizon(rule, s.now())
	}
	exp, err := s.engine.Expand(*rule, recurrence.ExpandOptions{Horizon: horizon})
	if err != nil {
		return recurrence.Expansion{}, fmt.Errorf("expand rule %s: %w", rule.ID, err)
	}
	return exp, nil
}

// resolve loads the overrides of rule and merges them into exp. Overrides past the end of a
// truncated expansion point at instances that exist but were not generated this time, so they
// are left out instead of being reported as skew.
func (s *Service) resolve(ctx context.Context, rule *recurrence.Rule, exp recurrence.Expansion) (override.Resolution, error) {
	overrides, err := s.store.LoadOverrides(ctx, rule.ID)
	if err != nil {
		return override.Resolution{}, fmt.Errorf("load overrides of %s: %w", rule.ID, err)
	}

	if exp.Truncated {
		for index := range overrides {
			if index >= len(exp.Instances) {
				delete(overrides, index)
			}
		}
	}
	return s.resolver.Resolve(rule.ID, exp.Instances, overrides), nil
}

// ListInstances returns the full effective sequence of a rule, cancelled instances included.
// An absent horizon means the configured default for unbounded rules.
func (s *Service) ListInstances(ctx context.Context, ruleID string, horizon mo.Option[time.Time]) (override.Resolution, error) {
	rule, err := s.store.LoadRule(ctx, ruleID)
	if err != nil {
		return override.Resolution{}, err
	}
	exp, err := s.expand(rule, horizon)
	if err != nil {
		return override.Resolution{}, err
	}
	return s.resolve(ctx, rule, exp)
}

// Window returns the display window of a rule relative to now. Collapsed daily ranges are not
// individually overridable, so their overrides are never loaded.
func (s *Service) Window(ctx context.Context, ruleID string, now time.Time) (window.Display, error) {
	rule, err := s.store.LoadRule(ctx, ruleID)
	if err != nil {
		return window.Display{}, err
	}
	exp, err := s.expand(rule, s.horizon(rule, now))
	if err != nil {
		return window.Display{}, err
	}

	var effective []override.EffectiveInstance
	if rule.IsDailyRange() && s.selector.Options().CollapseDailyRange {
		effective = override.Unresolved(exp.Instances)
	} else {
		res, err := s.resolve(ctx, rule, exp)
		if err != nil {
			return window.Display{}, err
		}
		effective = res.Instances
	}

	return s.selector.Select(*rule, effective, now), nil
}

// checkIndex makes sure index is generated by the current definition of the rule.
func (s *Service) checkIndex(ctx context.Context, ruleID string, index int) error {
	rule, err := s.store.LoadRule(ctx, ruleID)
	if err != nil {
		return err
	}
	exp, err := s.expand(rule, mo.None[time.Time]())
	if err != nil {
		return err
	}
	if index < 0 || index >= len(exp.Instances) {
		return fmt.Errorf("%w: rule %s has %d instances, got %d",
			ErrIndexOutOfRange, ruleID, len(exp.Instances), index)
	}
	return nil
}

func (s *Service) saveOverride(ctx context.Context, ov override.Override) (override.Override, error) {
	if err := s.store.SaveOverride(ctx, ov); err != nil {
		return override.Override{}, fmt.Errorf("save override %s/%d: %w", ov.RuleID, ov.Index, err)
	}
	s.logger.Info("override saved",
		"rule_id", ov.RuleID,
		"index", ov.Index,
		"kind", ov.Kind().String())
	return ov, nil
}

// RemoveInstance cancels one instance.
func (s *Service) RemoveInstance(ctx context.Context, ruleID string, index int) (override.Override, error) {
	if err := s.checkIndex(ctx, ruleID, index); err != nil {
		return override.Override{}, err
	}
	return s.saveOverride(ctx, override.Cancel(ruleID, index))
}

// Reschedule moves one instance to new times.
func (s *Service) Reschedule(ctx context.Context, ruleID string, index int, start, end time.Time) (override.Override, error) {
	ov := override.Reschedule(ruleID, index, start, end)
	if err := ov.Validate(); err != nil {
		return override.Override{}, fmt.Errorf("%w: %w", ErrInvalidOverride, err)
	}
	if err := s.checkIndex(ctx, ruleID, index); err != nil {
		return override.Override{}, err
	}
	return s.saveOverride(ctx, ov)
}

// OverrideWithEntity replaces one instance with another entity. The substitute must exist.
func (s *Service) OverrideWithEntity(ctx context.Context, ruleID string, index int, entityID string) (override.Override, error) {
	if entityID == "" {
		return override.Override{}, fmt.Errorf("%w: no substitute entity", ErrInvalidOverride)
	}
	if err := s.checkIndex(ctx, ruleID, index); err != nil {
		return override.Override{}, err
	}
	if _, err := s.store.LoadEntity(ctx, entityID); err != nil {
		if storage.IsNotFound(err) {
			return override.Override{}, fmt.Errorf("%w: substitute entity %s not found", ErrInvalidOverride, entityID)
		}
		return override.Override{}, err
	}
	return s.saveOverride(ctx, override.Substitute(ruleID, index, entityID))
}

// RestoreDefault deletes the override of one instance. Indices the rule no longer generates
// are accepted so that stale overrides can be cleaned up.
func (s *Service) RestoreDefault(ctx context.Context, ruleID string, index int) error {
	if _, err := s.store.LoadRule(ctx, ruleID); err != nil {
		return err
	}
	if err := s.store.DeleteOverride(ctx, ruleID, index); err != nil {
		return fmt.Errorf("delete override %s/%d: %w", ruleID, index, err)
	}
	s.logger.Info("override removed", "rule_id", ruleID, "index", index)
	return nil
}

// SaveRule validates and stores a rule. Text is generated when empty. When the definition of an
// existing rule changes, its overrides are dropped because their indices no longer line up.
func (s *Service) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	if rule.Text == "" {
		rule.Text = rule.Describe()
	}

	changed := false
	existing, err := s.store.LoadRule(ctx, rule.ID)
	switch {
	case err == nil:
		changed = !existing.SameDefinition(*rule)
	case storage.IsNotFound(err):
	default:
		return err
	}

	// The rule is written first: a failed save leaves the old rule with its overrides intact.
	// If dropping the overrides fails afterwards, the leftovers point at the new sequence and
	// are reported as skew or ignored until the save is retried.
	if err := s.store.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("save rule %s: %w", rule.ID, err)
	}
	s.logger.Debug("rule saved", "rule_id", rule.ID, "rrule", rule.RRule())

	if changed {
		s.engine.Invalidate(rule.ID)
		if err := s.store.DeleteOverrides(ctx, rule.ID); err != nil {
			return fmt.Errorf("drop overrides of %s: %w", rule.ID, err)
		}
		s.logger.Info("rule definition changed, overrides dropped", "rule_id", rule.ID)
	}
	return nil
}

// DeleteRule removes a rule and its overrides
func (s *Service) DeleteRule(ctx context.Context, ruleID string) error {
	if err := s.store.DeleteOverrides(ctx, ruleID); err != nil {
		return fmt.Errorf("drop overrides of %s: %w", ruleID, err)
	}
	if err := s.store.DeleteRule(ctx, ruleID); err != nil {
		return err
	}
	s.engine.Invalidate(ruleID)
	s.logger.Info("rule deleted", "rule_id", ruleID)
	return nil
}

// ApplyChanges rewrites the owning entity's values for one rule from its effective sequence.
// Cancelled instances and instances handed to another entity are left out. Values that belong
// to other rules are kept. The entity is saved once. It returns the number of values written
// for the rule.
func (s *Service) ApplyChanges(ctx context.Context, ruleID string) (int, error) {
	rule, err := s.store.LoadRule(ctx, ruleID)
	if err != nil {
		return 0, err
	}
	if rule.EntityID == "" {
		return 0, fmt.Errorf("%w: rule %s has no owner", ErrMissingParentEntity, ruleID)
	}
	entity, err := s.store.LoadEntity(ctx, rule.EntityID)
	if err != nil {
		if storage.IsNotFound(err) {
			return 0, fmt.Errorf("%w: %s", ErrMissingParentEntity, rule.EntityID)
		}
		return 0, err
	}

	exp, err := s.expand(rule, mo.None[time.Time]())
	if err != nil {
		return 0, err
	}
	res, err := s.resolve(ctx, rule, exp)
	if err != nil {
		return 0, err
	}

	values := slices.DeleteFunc(slices.Clone(entity.Values), func(v storage.FieldValue) bool {
		return v.RuleID == ruleID
	})
	written := 0
	for _, inst := range res.Instances {
		if !inst.Materialized() {
			continue
		}
		values = append(values, storage.FieldValue{
			Start:     inst.Start,
			End:       inst.End,
			RuleID:    ruleID,
			RuleIndex: inst.Index,
		})
		written++
	}
	slices.SortStableFunc(values, func(a, b storage.FieldValue) int {
		return a.Start.Compare(b.Start)
	})
	entity.Values = values

	if err := s.store.SaveEntity(ctx, entity); err != nil {
		return 0, fmt.Errorf("save entity %s: %w", entity.ID, err)
	}
	s.logger.Info("changes applied",
		"rule_id", ruleID,
		"entity_id", entity.ID,
		"values", written,
		"skew", len(res.Skew))
	return written, nil
}

// ApplyAll runs ApplyChanges for every stored rule. A failing rule does not stop the others;
// all failures are returned joined.
func (s *Service) ApplyAll(ctx context.Context) error {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	var errs []error
	for _, rule := range rules {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.ApplyChanges(ctx, rule.ID); err != nil {
			s.logger.Error("apply changes failed", "rule_id", rule.ID, "error", err)
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
		}
	}
	return errors.Join(errs...)
}
