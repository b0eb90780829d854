package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"contaluz/internal/port"
)

// MockCropDetector is a mock implementation of port.CropDetector.
type MockCropDetector struct {
	mock.Mock
}

func (m *MockCropDetector) DetectAndCrop(ctx context.Context, imagePath string, target port.CropTarget) (string, error) {
	args := m.Called(ctx, imagePath, target)
	return args.String(0), args.Error(1)
}

func (m *MockCropDetector) Cleanup() {
	m.Called()
}

func (m *MockCropDetector) Available() bool {
	args := m.Called()
	return args.Bool(0)
}
