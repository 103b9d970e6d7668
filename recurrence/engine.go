package recurrence

import (
	"time"

	"github.com/samber/mo"
	"github.com/teambition/rrule-go"
)

const (
	// DefaultHorizonMonths bounds unbounded rules when no horizon is given.
	DefaultHorizonMonths = 12
	// DefaultMaxInstances is the hard cap on instances produced by one expansion.
	DefaultMaxInstances = 5000

	// minInstanceLength keeps start < end for rules stored with a zero duration.
	minInstanceLength = time.Minute
)

// Engine expands recurrence rules into indexed instances
type Engine struct {
	cache  *ExpansionCache
	config EngineConfig
}

// NewEngine creates an engine with DefaultEngineConfig
func NewEngine() *Engine {
	return NewEngineWithConfig(DefaultEngineConfig)
}

// Expand enumerates the instances of rule in chronological order, indexed from 0.
//
// Expansion stops at the tighter of the rule's own limit and opts.Horizon. An unbounded
// rule without a horizon is cut off DefaultHorizonMonths (or the configured value) after
// its start. Indices depend only on the rule definition, so they stay valid as keys for
// overrides across calls with different horizons.
func (e *Engine) Expand(rule Rule, opts ExpandOptions) (Expansion, error) {
	if err := rule.Validate(); err != nil {
		return Expansion{}, err
	}

	opts = e.normalize(rule, opts)

	if e.cache != nil {
		if cached, ok := e.cache.Get(rule, opts); ok {
			return cached, nil
		}
	}

	result, err := e.expand(rule, opts)
	if err != nil {
		return Expansion{}, err
	}

	if e.cache != nil {
		e.cache.Set(rule, opts, result)
	}
	return result, nil
}

// Invalidate drops cached expansions of the given rule.
func (e *Engine) Invalidate(ruleID string) {
	if e.cache != nil {
		e.cache.Invalidate(ruleID)
	}
}

// Close releases the engine's cache.
func (e *Engine) Close() {
	if e.cache != nil {
		e.cache.Close()
	}
}

// normalize resolves defaults so that equal requests produce equal cache keys.
func (e *Engine) normalize(rule Rule, opts ExpandOptions) ExpandOptions {
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = e.config.MaxInstances
	}
	if opts.MaxInstances <= 0 {
		opts.MaxInstances = DefaultMaxInstances
	}
	if opts.Horizon.IsAbsent() && !rule.Bounded() {
		months := e.config.DefaultHorizonMonths
		if months <= 0 {
			months = DefaultHorizonMonths
		}
		opts.Horizon = mo.Some(rule.Start.AddDate(0, months, 0))
	}
	return opts
}

func (e *Engine) expand(rule Rule, opts ExpandOptions) (Expansion, error) {
	opt, err := rule.ROption()
	if err != nil {
		return Expansion{}, err
	}
	r, err := rrule.NewRRule(opt)
	if err != nil {
		return Expansion{}, &InvalidRuleError{RuleID: rule.ID, Reason: "cannot build rule", Err: err}
	}

	length := rule.Duration()
	if length < minInstanceLength {
		length = minInstanceLength
	}
	horizon, hasHorizon := opts.Horizon.Get()

	var result Expansion
	next := r.Iterator()
	for {
		start, ok := next()
		if !ok {
			break
		}
		// Wall-clock times inside a DST gap normalize onto an instant that was already
		// generated. Starts must strictly increase, so those are skipped before indexing.
		if n := len(result.Instances); n > 0 && !start.After(result.Instances[n-1].Start) {
			continue
		}
		if hasHorizon && start.After(horizon) {
			result.Truncated = true
			break
		}
		if len(result.Instances) == opts.MaxInstances {
			result.Truncated = true
			break
		}
		result.Instances = append(result.Instances, Instance{
			Index: len(result.Instances),
			Start: start,
			End:   start.Add(length),
		})
	}
	return result, nil
}
