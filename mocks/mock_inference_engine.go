package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"contaluz/internal/port"
)

// MockInferenceEngine is a mock implementation of port.InferenceEngine.
type MockInferenceEngine struct {
	mock.Mock
}

func (m *MockInferenceEngine) Infer(ctx context.Context, input port.InferInput) (string, error) {
	args := m.Called(ctx, input)
	return args.String(0), args.Error(1)
}

func (m *MockInferenceEngine) Available() bool {
	args := m.Called()
	return args.Bool(0)
}
