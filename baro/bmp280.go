package baro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/flightboard"
)

var ErrNotCalibrated = errors.New("bmp280: calibration not loaded")

// RawSample holds the 20-bit uncompensated ADC values.
type RawSample struct {
	Pressure    int32
	Temperature int32
}

// Sample is a compensated measurement.
type Sample struct {
	// Temperature in °C
	Temperature float64
	// Pressure in hPa
	Pressure float64
	// Altitude in meters relative to the configured sea level pressure
	Altitude float64
}

type BMP280Opts struct {
	Address          byte
	SeaLevelPressure float64
	ResetDelay       time.Duration
	Logger           *slog.Logger
}

type BMP280Opt func(*BMP280Opts)

// WithAddress selects the device address (0x76 or 0x77 depending on SDO).
func WithAddress(address byte) BMP280Opt {
	return func(o *BMP280Opts) {
		o.Address = address
	}
}

// WithSeaLevelPressure sets the altitude reference in Pa.
func WithSeaLevelPressure(pa float64) BMP280Opt {
	return func(o *BMP280Opts) {
		o.SeaLevelPressure = pa
	}
}

func WithResetDelay(delay time.Duration) BMP280Opt {
	return func(o *BMP280Opts) {
		o.ResetDelay = delay
	}
}

func WithLogger(logger *slog.Logger) BMP280Opt {
	return func(o *BMP280Opts) {
		o.Logger = logger
	}
}

// BMP280 represents the Bosch BMP280 barometric pressure sensor.
// Typical usage:
//
//	b := NewBMP280(bus)
//	if err := b.Init(ctx); err != nil { ... }
//	s, err := b.Read(ctx)
type BMP280 struct {
	mx     sync.Mutex
	bus    flightboard.RegisterBus
	config BMP280Opts
	cal    *Calibration
}

func NewBMP280(bus flightboard.RegisterBus, opts ...BMP280Opt) *BMP280 {
	config := BMP280Opts{
		Address:          DefaultAddress,
		SeaLevelPressure: DefaultSeaLevelPressure,
		ResetDelay:       10 * time.Millisecond,
		Logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &BMP280{bus: bus, config: config}
}

// Probe reports whether the id register holds the BMP280 signature.
func (b *BMP280) Probe(ctx context.Context) (bool, error) {
	id, err := b.bus.ReadRegister(ctx, b.config.Address, regChipID)
	if err != nil {
		return false, fmt.Errorf("bmp280: could not read chip id: %w", err)
	}
	return id == ChipID, nil
}

// Init probes the device, loads its calibration, resets it and starts normal mode measurements.
func (b *BMP280) Init(ctx context.Context) error {
	id, err := b.bus.ReadRegister(ctx, b.config.Address, regChipID)
	if err != nil {
		return fmt.Errorf("bmp280: could not read chip id: %w", err)
	}
	if id != ChipID {
		return fmt.Errorf("bmp280: unexpected chip id %#x at %#x: %w", id, b.config.Address, flightboard.ErrDeviceNotFound)
	}
	if err := b.LoadCalibration(ctx); err != nil {
		return err
	}
	if err := b.bus.WriteRegister(ctx, b.config.Address, regReset, resetCommand); err != nil {
		return fmt.Errorf("bmp280: soft reset failed: %w", err)
	}
	if err := sleep(ctx, b.config.ResetDelay); err != nil {
		return err
	}
	if err := b.bus.WriteRegister(ctx, b.config.Address, regCtrlMeas, ctrlMeasNormal); err != nil {
		return fmt.Errorf("bmp280: could not set measurement control: %w", err)
	}
	if err := b.bus.WriteRegister(ctx, b.config.Address, regConfig, configFilter); err != nil {
		return fmt.Errorf("bmp280: could not set config: %w", err)
	}
	b.config.Logger.Debug("bmp280 initialized", "addr", fmt.Sprintf("%#x", b.config.Address))
	return nil
}

// LoadCalibration reads the trimming parameters. Init calls it; it is exported for re-reads.
func (b *BMP280) LoadCalibration(ctx context.Context) error {
	buf := make([]byte, calibrationSize)
	if err := b.bus.ReadRegisters(ctx, b.config.Address, regCalibration, buf); err != nil {
		return fmt.Errorf("bmp280: could not read calibration: %w", err)
	}
	cal, err := ParseCalibration(buf)
	if err != nil {
		return fmt.Errorf("bmp280: %w", err)
	}
	b.mx.Lock()
	b.cal = &cal
	b.mx.Unlock()
	return nil
}

// Calibration returns the loaded parameters, or false before LoadCalibration succeeded.
func (b *BMP280) Calibration() (Calibration, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.cal == nil {
		return Calibration{}, false
	}
	return *b.cal, true
}

// ReadRaw reads pressure and temperature ADC values in one burst.
func (b *BMP280) ReadRaw(ctx context.Context) (RawSample, error) {
	buf := make([]byte, dataSize)
	if err := b.bus.ReadRegisters(ctx, b.config.Address, regData, buf); err != nil {
		return RawSample{}, fmt.Errorf("bmp280: could not read data: %w", err)
	}
	return decodeRaw(buf), nil
}

// Read acquires and compensates one sample. Acquisitions are serialised per device.
func (b *BMP280) Read(ctx context.Context) (Sample, error) {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.cal == nil {
		return Sample{}, ErrNotCalibrated
	}
	raw, err := b.ReadRaw(ctx)
	if err != nil {
		return Sample{}, err
	}
	return b.compensate(*b.cal, raw), nil
}

func (b *BMP280) compensate(cal Calibration, raw RawSample) Sample {
	centi, fine := CompensateTemperature(cal, raw.Temperature)
	q := CompensatePressure(cal, raw.Pressure, fine)
	pa := float64(q) / 256.0
	return Sample{
		Temperature: float64(centi) / 100.0,
		Pressure:    pa / 100.0,
		Altitude:    Altitude(pa, b.config.SeaLevelPressure),
	}
}

func decodeRaw(buf []byte) RawSample {
	return RawSample{
		Pressure:    int32(buf[0])<<12 | int32(buf[1])<<4 | int32(buf[2])>>4,
		Temperature: int32(buf[3])<<12 | int32(buf[4])<<4 | int32(buf[5])>>4,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
