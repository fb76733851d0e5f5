package mocks

import (
	"context"

	"github.com/dukex/casework/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockDataSource is a mock implementation of validation.DataSource interface.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) Name() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockDataSource) Resolve(ctx context.Context, question *models.Question, value any, doc *models.Document, user *models.User) (string, bool, error) {
	args := m.Called(ctx, question, value, doc, user)

	return args.String(0), args.Bool(1), args.Error(2)
}

// MockFormatValidator is a mock implementation of validation.FormatValidator interface.
type MockFormatValidator struct {
	mock.Mock
}

func (m *MockFormatValidator) Slug() string {
	args := m.Called()

	return args.String(0)
}

func (m *MockFormatValidator) Validate(value string) []string {
	args := m.Called(value)
	if args.Get(0) == nil {
		return nil
	}

	return args.Get(0).([]string)
}
