package imu

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/i2c"
)

// MockRegisterBus is a mock implementation of flightboard.RegisterBus using testify/mock
type MockRegisterBus struct {
	mock.Mock
}

func (m *MockRegisterBus) ReadRegister(ctx context.Context, address, reg byte) (byte, error) {
	args := m.Called(ctx, address, reg)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockRegisterBus) ReadRegisters(ctx context.Context, address, reg byte, buffer []byte) error {
	args := m.Called(ctx, address, reg, buffer)
	if data, ok := args.Get(0).([]byte); ok {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockRegisterBus) WriteRegister(ctx context.Context, address, reg, value byte) error {
	args := m.Called(ctx, address, reg, value)
	return args.Error(0)
}

func (m *MockRegisterBus) WriteRegisters(ctx context.Context, address, reg byte, data []byte) error {
	args := m.Called(ctx, address, reg, data)
	return args.Error(0)
}

func newSimMPU9250(t *testing.T, raw RawSample, opts ...MPU9250Opt) (*MPU9250, *i2c.RegisterFile) {
	t.Helper()
	sim := i2c.NewSimBus()
	dev := NewSimDevice(raw)
	sim.Attach(DefaultAddress, dev)
	opts = append([]MPU9250Opt{WithSampleDelay(0)}, opts...)
	return NewMPU9250(i2c.NewEngine(sim, i2c.WithTimeout(50*time.Millisecond)), opts...), dev
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawSample
		bias     Bias
		expected Sample
	}{
		{
			name:     "level board",
			raw:      LevelRaw,
			expected: Sample{Accel: Vector{Z: 1}, Temperature: 21},
		},
		{
			name: "full scale",
			raw:  RawSample{AccelX: -32768, GyroZ: 13100, Temp: 3339},
			expected: Sample{
				Accel:       Vector{X: -2},
				Gyro:        Vector{Z: 100},
				Temperature: 3339/333.87 + 21,
			},
		},
		{
			name: "bias subtracted",
			raw:  RawSample{AccelX: 1638, AccelZ: 16384, GyroX: 131},
			bias: Bias{Accel: Vector{X: 0.1, Z: 0.5}, Gyro: Vector{X: 1, Y: -2}},
			expected: Sample{
				Accel:       Vector{X: 1638.0/16384.0 - 0.1, Z: 0.5},
				Gyro:        Vector{X: 0, Y: 2},
				Temperature: 21,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Convert(tt.raw, tt.bias)
			assert.InDelta(t, tt.expected.Accel.X, s.Accel.X, 1e-9)
			assert.InDelta(t, tt.expected.Accel.Y, s.Accel.Y, 1e-9)
			assert.InDelta(t, tt.expected.Accel.Z, s.Accel.Z, 1e-9)
			assert.InDelta(t, tt.expected.Gyro.X, s.Gyro.X, 1e-9)
			assert.InDelta(t, tt.expected.Gyro.Y, s.Gyro.Y, 1e-9)
			assert.InDelta(t, tt.expected.Gyro.Z, s.Gyro.Z, 1e-9)
			assert.InDelta(t, tt.expected.Temperature, s.Temperature, 1e-9)
		})
	}
}

func TestDecodeRaw(t *testing.T) {
	buf := []byte{0x00, 0x10, 0xFF, 0xFF, 0x40, 0x00, 0x80, 0x00, 0x7F, 0xFF, 0x00, 0x00, 0xFF, 0x38}
	raw := decodeRaw(buf)
	assert.Equal(t, RawSample{AccelX: 16, AccelY: -1, AccelZ: 16384, Temp: -32768, GyroX: 32767, GyroY: 0, GyroZ: -200}, raw)
	assert.Equal(t, buf, encodeRaw(raw))
}

func TestMPU9250_Init(t *testing.T) {
	m, dev := newSimMPU9250(t, LevelRaw)
	require.NoError(t, m.Init(context.Background()))
	assert.Equal(t, []i2c.RegisterWrite{
		{Reg: 0x6B, Value: 0x00},
		{Reg: 0x19, Value: 0x07},
		{Reg: 0x1A, Value: 0x06},
		{Reg: 0x1B, Value: 0x00},
		{Reg: 0x1C, Value: 0x00},
	}, dev.Writes())
}

func TestMPU9250_InitWrongDevice(t *testing.T) {
	m, dev := newSimMPU9250(t, LevelRaw)
	// MPU6500 answers 0x70
	dev.Set(regWhoAmI, 0x70)

	ok, err := m.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	err = m.Init(context.Background())
	assert.ErrorIs(t, err, flightboard.ErrDeviceNotFound)
	assert.Empty(t, dev.Writes())
}

func TestMPU9250_InitAbsentDevice(t *testing.T) {
	m := NewMPU9250(i2c.NewEngine(i2c.NewSimBus()))
	err := m.Init(context.Background())
	assert.ErrorIs(t, err, flightboard.ErrNack)
}

func TestMPU9250_Read(t *testing.T) {
	m, dev := newSimMPU9250(t, LevelRaw)
	ctx := context.Background()

	s, err := m.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, s.Accel.Z, 1e-9)
	assert.InDelta(t, 21.0, s.Temperature, 1e-9)

	SetSimRaw(dev, RawSample{AccelX: 8192, GyroY: -262})
	s, err = m.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, s.Accel.X, 1e-9)
	assert.InDelta(t, -2.0, s.Gyro.Y, 1e-9)
}

func TestMPU9250_Calibrate(t *testing.T) {
	samples := []RawSample{
		{AccelX: 100, AccelY: -3, AccelZ: 16434, GyroX: 262, GyroY: 0, GyroZ: -131},
		{AccelX: 101, AccelY: -4, AccelZ: 16435, GyroX: 263, GyroY: 1, GyroZ: -130},
	}
	m, dev := newSimMPU9250(t, samples[0], WithCalibrationSamples(4))
	reads := 0
	dev.OnRead(func(reg byte) {
		if reg == regAccelXoutH {
			SetSimRaw(dev, samples[reads%2])
			reads++
		}
	})

	bias, err := m.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, reads)

	// means are not truncated to integers
	assert.InDelta(t, 100.5/16384.0, bias.Accel.X, 1e-12)
	assert.InDelta(t, -3.5/16384.0, bias.Accel.Y, 1e-12)
	assert.InDelta(t, 16434.5/16384.0-1.0, bias.Accel.Z, 1e-12)
	assert.InDelta(t, 262.5/131.0, bias.Gyro.X, 1e-12)
	assert.InDelta(t, 0.5/131.0, bias.Gyro.Y, 1e-12)
	assert.InDelta(t, -130.5/131.0, bias.Gyro.Z, 1e-12)
	assert.Equal(t, bias, m.Bias())

	// a level board now reads zero rates and exactly 1 g
	dev.OnRead(nil)
	SetSimRaw(dev, RawSample{AccelX: 100, AccelZ: 16434, GyroX: 262})
	s, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, -0.5/16384.0, s.Accel.X, 1e-12)
	assert.InDelta(t, 1.0-0.5/16384.0, s.Accel.Z, 1e-12)
	assert.InDelta(t, -0.5/131.0, s.Gyro.X, 1e-12)
}

func TestMPU9250_CalibrateFailureKeepsBias(t *testing.T) {
	ctx := context.Background()
	failure := errors.New("bus failure")
	bus := &MockRegisterBus{}
	bus.On("ReadRegisters", ctx, byte(DefaultAddress), byte(regAccelXoutH), mock.Anything).Return(encodeRaw(LevelRaw), nil).Times(3)
	bus.On("ReadRegisters", ctx, byte(DefaultAddress), byte(regAccelXoutH), mock.Anything).Return(nil, failure)

	m := NewMPU9250(bus, WithCalibrationSamples(10), WithSampleDelay(0))
	previous := Bias{Accel: Vector{X: 0.01}, Gyro: Vector{Z: -0.5}}
	m.SetBias(previous)

	_, err := m.Calibrate(ctx)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, previous, m.Bias())
	bus.AssertNumberOfCalls(t, "ReadRegisters", 4)
}

func TestMPU9250_CalibrateCancelled(t *testing.T) {
	m, _ := newSimMPU9250(t, LevelRaw, WithSampleDelay(time.Hour), WithCalibrationSamples(3))
	previous := Bias{Gyro: Vector{X: 1}}
	m.SetBias(previous)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := m.Calibrate(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, previous, m.Bias())
}

func TestMPU9250_CalibrateInvalidCount(t *testing.T) {
	m, _ := newSimMPU9250(t, LevelRaw, WithCalibrationSamples(0))
	_, err := m.Calibrate(context.Background())
	assert.Error(t, err)
}

func TestMPU9250_BiasSwapDuringReads(t *testing.T) {
	m, _ := newSimMPU9250(t, LevelRaw)
	ctx := context.Background()
	a := Bias{Accel: Vector{Z: 1}}
	b := Bias{Accel: Vector{Z: 2}}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			if i%2 == 0 {
				m.SetBias(a)
			} else {
				m.SetBias(b)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			s, err := m.Read(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			// every conversion sees one complete bias
			if s.Accel.Z != 0 && s.Accel.Z != -1 && s.Accel.Z != 1 {
				t.Errorf("torn bias: accel z %f", s.Accel.Z)
			}
		}
	}()
	wg.Wait()
}

func TestMockIMU(t *testing.T) {
	m := NewMockIMU(func(ctx context.Context) (Sample, error) {
		return Sample{Accel: Vector{Z: 1}}, nil
	}, nil)
	s, err := m.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, s.Accel.Z)
	bias, err := m.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Bias{}, bias)
}
