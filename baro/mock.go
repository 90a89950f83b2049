package baro

import (
	"context"
)

// SampleBehaviorFunc produces a barometer sample or an error.
type SampleBehaviorFunc func(ctx context.Context) (Sample, error)

// MockBarometer is a barometer driven by a behavior function, no hardware required.
//
// Example usage:
//
//	baro := NewMockBarometer(func(ctx context.Context) (Sample, error) {
//		return Sample{Temperature: 21.5, Pressure: 1013.25}, nil
//	})
type MockBarometer struct {
	behavior SampleBehaviorFunc
}

func NewMockBarometer(behavior SampleBehaviorFunc) *MockBarometer {
	return &MockBarometer{behavior: behavior}
}

func (m *MockBarometer) Read(ctx context.Context) (Sample, error) {
	return m.behavior(ctx)
}
