package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mklimuk/flightboard/cmd/fcboard/console"
)

var sampleFlags = []cli.Flag{
	&cli.IntFlag{
		Name:    "count",
		Aliases: []string{"n"},
		Value:   1,
		Usage:   "number of samples to read",
	},
	&cli.DurationFlag{
		Name:  "interval",
		Value: 100 * time.Millisecond,
		Usage: "delay between samples",
	},
}

var baroCmd = cli.Command{
	Name:  "baro",
	Usage: "BMP280 barometer",
	Subcommands: cli.Commands{
		&baroReadCmd,
	},
}

var baroReadCmd = cli.Command{
	Name:  "read",
	Usage: "initialize the barometer and print compensated samples",
	Flags: sampleFlags,
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		rb, err := openBus(cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = rb.Close() }()

		s := newBarometer(rb, cfg)
		if err := s.Init(c.Context); err != nil {
			return console.Fail("barometer initialization error", err)
		}
		return repeat(c, func(ctx context.Context) error {
			sample, err := s.Read(ctx)
			if err != nil {
				return console.Fail("barometer read error", err)
			}
			console.PInfof(console.PictoThermometer, "%s °C", console.White(sample.Temperature))
			console.PInfof(console.PictoGauge, "%s hPa", console.White(sample.Pressure))
			console.PInfof(console.PictoMountain, "%s m", console.White(sample.Altitude))
			return nil
		})
	},
}

var imuCmd = cli.Command{
	Name:  "imu",
	Usage: "MPU9250 inertial measurement unit",
	Subcommands: cli.Commands{
		&imuReadCmd,
		&imuCalibrateCmd,
	},
}

var imuReadCmd = cli.Command{
	Name:  "read",
	Usage: "initialize the IMU and print converted samples",
	Flags: sampleFlags,
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		rb, err := openBus(cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = rb.Close() }()

		s := newIMU(rb, cfg)
		if err := s.Init(c.Context); err != nil {
			return console.Fail("imu initialization error", err)
		}
		return repeat(c, func(ctx context.Context) error {
			sample, err := s.Read(ctx)
			if err != nil {
				return console.Fail("imu read error", err)
			}
			console.Printf("accel %s g  gyro %s °/s  temp %s °C\n",
				console.White(sample.Accel), console.White(sample.Gyro), console.White(sample.Temperature))
			return nil
		})
	},
}

var imuCalibrateCmd = cli.Command{
	Name:  "calibrate",
	Usage: "compute the IMU bias; the board must lie level and still",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    "yes",
			Aliases: []string{"y"},
			Usage:   "do not ask for confirmation",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		if !c.Bool("yes") {
			ok, err := console.Confirm("Is the board level and motionless?")
			if err != nil {
				return console.Fail("prompt error", err)
			}
			if !ok {
				console.PInfof(console.PictoStop, "calibration cancelled")
				return nil
			}
		}
		rb, err := openBus(cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = rb.Close() }()

		s := newIMU(rb, cfg)
		if err := s.Init(c.Context); err != nil {
			return console.Fail("imu initialization error", err)
		}
		console.Infof("collecting %d samples", cfg.IMU.CalibrationSamples)
		bias, err := s.Calibrate(c.Context)
		if err != nil {
			return console.Fail("calibration error", err)
		}
		console.PInfof(console.PictoCompass, "accel bias %s g", console.Green(bias.Accel))
		console.PInfof(console.PictoCompass, "gyro bias %s °/s", console.Green(bias.Gyro))
		return nil
	},
}

// repeat calls read count times, interval apart.
func repeat(c *cli.Context, read func(ctx context.Context) error) error {
	count := c.Int("count")
	for i := 0; i < count; i++ {
		if i > 0 {
			select {
			case <-c.Context.Done():
				return nil
			case <-time.After(c.Duration("interval")):
			}
		}
		if err := read(c.Context); err != nil {
			return err
		}
	}
	return nil
}
