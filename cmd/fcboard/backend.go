package main

import (
	"context"
	"fmt"
	"log/slog"

	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/adapter"
	"github.com/mklimuk/flightboard/baro"
	"github.com/mklimuk/flightboard/i2c"
	"github.com/mklimuk/flightboard/imu"
	"github.com/mklimuk/flightboard/pkg/config"
)

// bus is an open register bus together with its cleanup.
type bus struct {
	flightboard.RegisterBus
	close func() error
}

func (b bus) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBus(cfg config.Config) (bus, error) {
	switch cfg.Bus.Backend {
	case config.BackendPeriph:
		pb, err := i2c.NewPeriphBus(cfg.Bus.Device)
		if err != nil {
			return bus{}, err
		}
		return bus{RegisterBus: pb, close: pb.Close}, nil
	case config.BackendGobot:
		npi := nanopi.NewNeoAdaptor()
		if err := npi.I2cBusAdaptor.Connect(); err != nil {
			return bus{}, fmt.Errorf("adaptor connect error: %w", err)
		}
		gb := i2c.NewGobotBus(npi, cfg.Bus.GobotBus)
		return bus{RegisterBus: gb, close: func() error {
			if err := gb.Close(); err != nil {
				slog.Warn("could not close gobot connections", "error", err)
			}
			return npi.I2cBusAdaptor.Finalize()
		}}, nil
	case config.BackendMCP2221:
		bridge := adapter.NewMCP2221(adapter.WithDeviceIndex(cfg.Bus.MCP2221Index))
		return bus{RegisterBus: i2c.NewRawBus(bridge), close: func() error {
			return bridge.Release(context.Background())
		}}, nil
	case config.BackendSim:
		sim, _, _ := newSimBus()
		return bus{RegisterBus: i2c.NewEngine(sim, i2c.WithName("sim"))}, nil
	}
	return bus{}, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
}

// newSimBus returns a simulated bus with a level, motionless board at sea level.
func newSimBus() (*i2c.SimBus, *i2c.RegisterFile, *i2c.RegisterFile) {
	sim := i2c.NewSimBus()
	b := baro.NewSimDevice(baro.ReferenceCalibration, baro.ReferenceRaw)
	m := imu.NewSimDevice(imu.LevelRaw)
	sim.Attach(baro.DefaultAddress, b)
	sim.Attach(imu.DefaultAddress, m)
	return sim, b, m
}

func newBarometer(rb flightboard.RegisterBus, cfg config.Config) *baro.BMP280 {
	return baro.NewBMP280(rb,
		baro.WithAddress(cfg.Baro.Address),
		baro.WithSeaLevelPressure(cfg.Baro.SeaLevelPressure),
		baro.WithResetDelay(cfg.Baro.ResetDelay),
	)
}

func newIMU(rb flightboard.RegisterBus, cfg config.Config) *imu.MPU9250 {
	return imu.NewMPU9250(rb,
		imu.WithAddress(cfg.IMU.Address),
		imu.WithCalibrationSamples(cfg.IMU.CalibrationSamples),
		imu.WithSampleDelay(cfg.IMU.SampleDelay),
	)
}
