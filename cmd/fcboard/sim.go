package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/flightboard/baro"
	"github.com/mklimuk/flightboard/board"
	"github.com/mklimuk/flightboard/cmd/fcboard/console"
	"github.com/mklimuk/flightboard/i2c"
	"github.com/mklimuk/flightboard/link"
)

var simCmd = cli.Command{
	Name:  "sim",
	Usage: "run the board against simulated sensors and a loopback ground station",
	Flags: []cli.Flag{
		&cli.IntFlag{
			Name:    "samples",
			Aliases: []string{"n"},
			Value:   5,
			Usage:   "number of samples to print",
		},
		&cli.IntFlag{
			Name:  "climb",
			Value: 40,
			Usage: "raw pressure reading step per sample, positive values simulate a climb",
		},
		&cli.BoolFlag{
			Name:  "calibrate",
			Usage: "ask the board for an IMU calibration over the link",
		},
	},
	Action: func(c *cli.Context) error {
		cfg := configFrom(c)
		ctx, cancel := context.WithCancel(c.Context)
		defer cancel()

		sim, baroDev, _ := newSimBus()
		engine := i2c.NewEngine(sim, i2c.WithName("sim"))
		b, m, err := initSensors(ctx, engine, cfg)
		if err != nil {
			return console.Fail("sensor initialization error", err)
		}

		boardEnd, stationEnd := net.Pipe()
		brd := board.New(b, m, link.New(boardEnd),
			board.WithInterval(cfg.Board.Interval),
			board.WithQueueDepth(cfg.Board.QueueDepth),
		)
		station := link.New(stationEnd, link.WithHandoffDepth(4))

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return brd.Run(gctx)
		})
		g.Go(func() error {
			return station.Run(gctx)
		})

		err = func() error {
			defer cancel()
			if err := exchange(gctx, station, link.Packet{Type: board.TypePing, Payload: []byte("fcb")}); err != nil {
				return err
			}
			if c.Bool("calibrate") {
				if err := exchange(gctx, station, link.Packet{Type: board.TypeCalibrate}); err != nil {
					return err
				}
			}
			raw := baro.ReferenceRaw
			for i := 0; i < c.Int("samples"); i++ {
				select {
				case <-gctx.Done():
					return nil
				case s := <-brd.Samples():
					console.Printf("%s  %s hPa  %s m  accel %s\n", s.Time.Format(time.TimeOnly+".000"),
						console.White(fmt.Sprintf("%.2f", s.Baro.Pressure)),
						console.White(fmt.Sprintf("%.2f", s.Baro.Altitude)),
						console.White(s.IMU.Accel))
				}
				raw.Pressure += int32(c.Int("climb"))
				baro.SetSimRaw(baroDev, raw)
			}
			return nil
		}()
		if werr := g.Wait(); err == nil {
			err = werr
		}
		if err != nil {
			return console.Fail("simulation failed", err)
		}
		console.PInfof(console.PictoFinish, "simulation done")
		return nil
	},
}

// exchange sends a request from the ground station and prints the reply.
func exchange(ctx context.Context, station *link.Link, request link.Packet) error {
	if err := station.Send(ctx, request); err != nil {
		return fmt.Errorf("could not send %s: %w", request, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case reply := <-station.Inbound():
		console.PInfof(console.PictoSatellite, "%s -> %s", console.White(request), console.Green(reply))
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("no reply to %s", request)
	}
}
