package report

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of the Notifier interface for
// testing.
type MockNotifier struct {
	mock.Mock
}

// SendSummary is the mock implementation of the SendSummary method.
func (m *MockNotifier) SendSummary(ctx context.Context, summary Summary) error {
	args := m.Called(ctx, summary)
	return args.Error(0)
}

// SendAlert is the mock implementation of the SendAlert method.
func (m *MockNotifier) SendAlert(ctx context.Context, alert Alert) error {
	args := m.Called(ctx, alert)
	return args.Error(0)
}

// Close is the mock implementation of the Close method.
func (m *MockNotifier) Close() error {
	args := m.Called()
	return args.Error(0)
}
