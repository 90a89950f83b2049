package imu

import (
	"context"
)

// SampleBehaviorFunc produces an IMU sample or an error.
type SampleBehaviorFunc func(ctx context.Context) (Sample, error)

// CalibrateBehaviorFunc produces a bias or an error.
type CalibrateBehaviorFunc func(ctx context.Context) (Bias, error)

// MockIMU is an IMU driven by behavior functions, no hardware required.
// A nil calibrate behavior returns a zero bias.
type MockIMU struct {
	sampleBehavior    SampleBehaviorFunc
	calibrateBehavior CalibrateBehaviorFunc
}

func NewMockIMU(sampleBehavior SampleBehaviorFunc, calibrateBehavior CalibrateBehaviorFunc) *MockIMU {
	return &MockIMU{
		sampleBehavior:    sampleBehavior,
		calibrateBehavior: calibrateBehavior,
	}
}

func (m *MockIMU) Read(ctx context.Context) (Sample, error) {
	return m.sampleBehavior(ctx)
}

func (m *MockIMU) Calibrate(ctx context.Context) (Bias, error) {
	if m.calibrateBehavior == nil {
		return Bias{}, nil
	}
	return m.calibrateBehavior(ctx)
}
