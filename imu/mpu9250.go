package imu

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mklimuk/flightboard"
)

type MPU9250Opts struct {
	Address            byte
	CalibrationSamples int
	SampleDelay        time.Duration
	Logger             *slog.Logger
}

type MPU9250Opt func(*MPU9250Opts)

func WithAddress(address byte) MPU9250Opt {
	return func(o *MPU9250Opts) {
		o.Address = address
	}
}

// WithCalibrationSamples sets the number of samples averaged by Calibrate.
func WithCalibrationSamples(n int) MPU9250Opt {
	return func(o *MPU9250Opts) {
		o.CalibrationSamples = n
	}
}

// WithSampleDelay sets the pause between calibration samples.
func WithSampleDelay(delay time.Duration) MPU9250Opt {
	return func(o *MPU9250Opts) {
		o.SampleDelay = delay
	}
}

func WithLogger(logger *slog.Logger) MPU9250Opt {
	return func(o *MPU9250Opts) {
		o.Logger = logger
	}
}

// MPU9250 is the InvenSense 9-axis motion tracking device; only the accelerometer,
// gyroscope and die temperature are used.
type MPU9250 struct {
	bus    flightboard.RegisterBus
	config MPU9250Opts
	bias   atomic.Pointer[Bias]
}

func NewMPU9250(bus flightboard.RegisterBus, opts ...MPU9250Opt) *MPU9250 {
	config := MPU9250Opts{
		Address:            DefaultAddress,
		CalibrationSamples: 100,
		SampleDelay:        10 * time.Millisecond,
		Logger:             slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	m := &MPU9250{bus: bus, config: config}
	m.bias.Store(&Bias{})
	return m
}

func (m *MPU9250) Probe(ctx context.Context) (bool, error) {
	id, err := m.bus.ReadRegister(ctx, m.config.Address, regWhoAmI)
	if err != nil {
		return false, fmt.Errorf("mpu9250: could not read who am i: %w", err)
	}
	return id == WhoAmI, nil
}

// Init probes the device, wakes it up and sets ±2 g / ±250 °/s ranges at 125 Hz.
func (m *MPU9250) Init(ctx context.Context) error {
	id, err := m.bus.ReadRegister(ctx, m.config.Address, regWhoAmI)
	if err != nil {
		return fmt.Errorf("mpu9250: could not read who am i: %w", err)
	}
	if id != WhoAmI {
		return fmt.Errorf("mpu9250: unexpected who am i %#x at %#x: %w", id, m.config.Address, flightboard.ErrDeviceNotFound)
	}
	for _, step := range initSequence {
		if err := m.bus.WriteRegister(ctx, m.config.Address, step.reg, step.value); err != nil {
			return fmt.Errorf("mpu9250: %s failed: %w", step.what, err)
		}
	}
	m.config.Logger.Debug("mpu9250 initialized", "addr", fmt.Sprintf("%#x", m.config.Address))
	return nil
}

func (m *MPU9250) ReadRaw(ctx context.Context) (RawSample, error) {
	buf := make([]byte, dataSize)
	if err := m.bus.ReadRegisters(ctx, m.config.Address, regAccelXoutH, buf); err != nil {
		return RawSample{}, fmt.Errorf("mpu9250: could not read data: %w", err)
	}
	return decodeRaw(buf), nil
}

// Read returns a converted sample corrected with the current bias.
func (m *MPU9250) Read(ctx context.Context) (Sample, error) {
	raw, err := m.ReadRaw(ctx)
	if err != nil {
		return Sample{}, err
	}
	return Convert(raw, *m.bias.Load()), nil
}

func (m *MPU9250) Bias() Bias {
	return *m.bias.Load()
}

func (m *MPU9250) SetBias(b Bias) {
	m.bias.Store(&b)
}

// Calibrate averages samples taken while the board rests level and installs the result as the new bias.
// On failure the previous bias stays in effect.
func (m *MPU9250) Calibrate(ctx context.Context) (Bias, error) {
	n := m.config.CalibrationSamples
	if n <= 0 {
		return Bias{}, fmt.Errorf("mpu9250: invalid calibration sample count %d", n)
	}
	var acc accumulator
	for i := 0; i < n; i++ {
		raw, err := m.ReadRaw(ctx)
		if err != nil {
			return Bias{}, fmt.Errorf("mpu9250: calibration sample %d: %w", i, err)
		}
		acc.add(raw)
		if i == n-1 {
			break
		}
		if err := sleep(ctx, m.config.SampleDelay); err != nil {
			return Bias{}, fmt.Errorf("mpu9250: calibration interrupted: %w", err)
		}
	}
	bias := acc.bias()
	m.bias.Store(&bias)
	m.config.Logger.Info("mpu9250 calibrated", "samples", n, "accel", bias.Accel.String(), "gyro", bias.Gyro.String())
	return bias, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
