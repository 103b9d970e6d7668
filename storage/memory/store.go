// memory based implementation for testing and single-node deployments
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/storage"
)

// Store implements storage.Storage interface using in-memory maps.
// Values are copied on the way in and out, so callers never share state with the store.
type Store struct {
	mu        sync.RWMutex
	rules     map[string]recurrence.Rule
	overrides map[string]map[int]override.Override // key: rule ID, then index
	entities  map[string]storage.Entity
}

var _ storage.Storage = (*Store)(nil)

// New creates a new in-memory storage
func New() *Store {
	return &Store{
		rules:     make(map[string]recurrence.Rule),
		overrides: make(map[string]map[int]override.Override),
		entities:  make(map[string]storage.Entity),
	}
}

// Rule operations

func (s *Store) LoadRule(_ context.Context, id string) (*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.rules[id]
	if !ok {
		return nil, storage.NotFound("rule not found")
	}
	rule = cloneRule(rule)
	return &rule, nil
}

func (s *Store) SaveRule(_ context.Context, rule *recurrence.Rule) error {
	if rule == nil || rule.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "rule has no ID",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.rules[rule.ID] = cloneRule(*rule)
	return nil
}

func (s *Store) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return storage.NotFound("rule not found")
	}
	delete(s.rules, id)
	return nil
}

func (s *Store) ListRules(_ context.Context) ([]*recurrence.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*recurrence.Rule, 0, len(s.rules))
	for _, rule := range s.rules {
		rule = cloneRule(rule)
		rules = append(rules, &rule)
	}
	slices.SortFunc(rules, func(a, b *recurrence.Rule) int {
		return strings.Compare(a.ID, b.ID)
	})
	return rules, nil
}

// Override operations

func (s *Store) LoadOverrides(_ context.Context, ruleID string) (map[int]override.Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int]override.Override, len(s.overrides[ruleID]))
	for index, ov := range s.overrides[ruleID] {
		out[index] = cloneOverride(ov)
	}
	return out, nil
}

func (s *Store) SaveOverride(_ context.Context, ov override.Override) error {
	if err := ov.Validate(); err != nil {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "invalid override",
			Err:     err,
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byIndex, ok := s.overrides[ov.RuleID]
	if !ok {
		byIndex = make(map[int]override.Override)
		s.overrides[ov.RuleID] = byIndex
	}
	byIndex[ov.Index] = cloneOverride(ov)
	return nil
}

func (s *Store) DeleteOverride(_ context.Context, ruleID string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.overrides[ruleID], index)
	if len(s.overrides[ruleID]) == 0 {
		delete(s.overrides, ruleID)
	}
	return nil
}

func (s *Store) DeleteOverrides(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.overrides, ruleID)
	return nil
}

// Entity operations

func (s *Store) LoadEntity(_ context.Context, id string) (*storage.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entity, ok := s.entities[id]
	if !ok {
		return nil, storage.NotFound("entity not found")
	}
	entity.Values = slices.Clone(entity.Values)
	return &entity, nil
}

func (s *Store) SaveEntity(_ context.Context, entity *storage.Entity) error {
	if entity == nil || entity.ID == "" {
		return &storage.Error{
			Type:    storage.ErrInvalidInput,
			Message: "entity has no ID",
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[entity.ID] = storage.Entity{
		ID:     entity.ID,
		Values: slices.Clone(entity.Values),
	}
	return nil
}

func cloneRule(r recurrence.Rule) recurrence.Rule {
	r.Params.ByDay = slices.Clone(r.Params.ByDay)
	r.Params.ByMonthDay = slices.Clone(r.Params.ByMonthDay)
	r.Params.ByMonth = slices.Clone(r.Params.ByMonth)
	r.Params.BySetPos = slices.Clone(r.Params.BySetPos)
	return r
}

func cloneOverride(ov override.Override) override.Override {
	if ov.Start != nil {
		start := *ov.Start
		ov.Start = &start
	}
	if ov.End != nil {
		end := *ov.End
		ov.End = &end
	}
	return ov
}
