package storage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cyp0633/smartdate/override"
	"github.com/cyp0633/smartdate/recurrence"
)

// MockStorage implements the Storage interface for testing
type MockStorage struct {
	mock.Mock
}

var _ Storage = (*MockStorage)(nil)

func (m *MockStorage) LoadRule(ctx context.Context, id string) (*recurrence.Rule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*recurrence.Rule), args.Error(1)
}

func (m *MockStorage) SaveRule(ctx context.Context, rule *recurrence.Rule) error {
	args := m.Called(ctx, rule)
	return args.Error(0)
}

func (m *MockStorage) DeleteRule(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStorage) ListRules(ctx context.Context) ([]*recurrence.Rule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*recurrence.Rule), args.Error(1)
}

func (m *MockStorage) LoadOverrides(ctx context.Context, ruleID string) (map[int]override.Override, error) {
	args := m.Called(ctx, ruleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[int]override.Override), args.Error(1)
}

func (m *MockStorage) SaveOverride(ctx context.Context, ov override.Override) error {
	args := m.Called(ctx, ov)
	return args.Error(0)
}

func (m *MockStorage) DeleteOverride(ctx context.Context, ruleID string, index int) error {
	args := m.Called(ctx, ruleID, index)
	return args.Error(0)
}

func (m *MockStorage) DeleteOverrides(ctx context.Context, ruleID string) error {
	args := m.Called(ctx, ruleID)
	return args.Error(0)
}

func (m *MockStorage) LoadEntity(ctx context.Context, id string) (*Entity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Entity), args.Error(1)
}

func (m *MockStorage) SaveEntity(ctx context.Context, entity *Entity) error {
	args := m.Called(ctx, entity)
	return args.Error(0)
}

