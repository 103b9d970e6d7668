package override

import (
	"io"
	"log/slog"
	"maps"
	"slices"

	"github.com/cyp0633/smartdate/recurrence"
)

// Resolution is the effective sequence for a rule plus any overrides that were skipped.
type Resolution struct {
	Instances []EffectiveInstance `json:"instances"`
	Skew      []DataSkewWarning   `json:"skew,omitempty"`
}

// Resolver merges overrides into generated sequences.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards skew diagnostics.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{logger: logger}
}

// Resolve applies overrides to generated and returns one effective instance per generated
// instance, in the same order. Cancelled instances stay in the sequence. The map key is
// authoritative for the target index; overrides whose index was not generated are skipped
// and reported in Skew.
func (r *Resolver) Resolve(ruleID string, generated []recurrence.Instance, overrides map[int]Override) Resolution {
	res := Resolution{Instances: make([]EffectiveInstance, len(generated))}

	present := make(map[int]struct{}, len(generated))
	for i, inst := range generated {
		present[inst.Index] = struct{}{}

		eff := EffectiveInstance{
			Index: inst.Index,
			Start: inst.Start,
			End:   inst.End,
			Kind:  None,
		}
		if ov, ok := overrides[inst.Index]; ok {
			ov.Index = inst.Index
			eff.Kind = ov.Kind()
			eff.Override = &ov
			if eff.Kind == Rescheduled {
				eff.Start = *ov.Start
				eff.End = *ov.End
			}
		}
		res.Instances[i] = eff
	}

	for _, index := range slices.Sorted(maps.Keys(overrides)) {
		if _, ok := present[index]; ok {
			continue
		}
		warning := DataSkewWarning{RuleID: ruleID, Index: index, Generated: len(generated)}
		res.Skew = append(res.Skew, warning)
		r.logger.Warn("override references an instance that was not generated",
			"rule_id", ruleID,
			"index", index,
			"generated", len(generated))
	}

	return res
}

// Unresolved tags every generated instance as not overridden.
func Unresolved(generated []recurrence.Instance) []EffectiveInstance {
	out := make([]EffectiveInstance, len(generated))
	for i, inst := range generated {
		out[i] = EffectiveInstance{Index: inst.Index, Start: inst.Start, End: inst.End, Kind: None}
	}
	return out
}
