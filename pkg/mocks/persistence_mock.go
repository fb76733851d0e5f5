package mocks

import (
	"context"

	"github.com/dukex/casework/pkg/models"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence interface.
// Transaction does not run its callback; the configured error is returned instead.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) CaseByID(ctx context.Context, id string) (*models.Case, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Case), args.Error(1)
}

func (m *MockPersistence) Cases(ctx context.Context, filter persistence.CaseFilter) ([]*models.Case, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Case), args.Error(1)
}

func (m *MockPersistence) WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.WorkItem), args.Error(1)
}

func (m *MockPersistence) WorkItemsByCase(ctx context.Context, caseID string) ([]*models.WorkItem, error) {
	args := m.Called(ctx, caseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.WorkItem), args.Error(1)
}

func (m *MockPersistence) DocumentByID(ctx context.Context, id string) (*models.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Document), args.Error(1)
}

func (m *MockPersistence) Transaction(ctx context.Context, _ func(ctx context.Context, tx persistence.Tx) error) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
