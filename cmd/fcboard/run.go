package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/flightboard"
	"github.com/mklimuk/flightboard/board"
	"github.com/mklimuk/flightboard/cmd/fcboard/console"
	"github.com/mklimuk/flightboard/link"
	"github.com/mklimuk/flightboard/pkg/config"
)

var runCmd = cli.Command{
	Name:  "run",
	Usage: "run the sensor and radio command tasks until interrupted",
	Flags: append([]cli.Flag{
		&cli.StringFlag{
			Name:  "metrics",
			Usage: "listen address of the /metrics endpoint, overrides the configured one",
		},
		&cli.BoolFlag{
			Name:  "no-link",
			Usage: "run the sensor task only",
		},
	}, portFlags...),
	Action: func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		cfg := configFrom(c)

		rb, err := openBus(cfg)
		if err != nil {
			return console.Fail("bus initialization error", err)
		}
		defer func() { _ = rb.Close() }()

		b, m, err := initSensors(ctx, rb, cfg)
		if err != nil {
			return console.Fail("sensor initialization error", err)
		}

		reg := prometheus.NewRegistry()
		var l *link.Link
		if !c.Bool("no-link") {
			port, err := link.OpenSerial(serialConfig(c, cfg))
			if err != nil {
				return console.Fail("serial port error", err)
			}
			l = link.New(port, link.WithEOFIsIdle(), link.WithStats(link.NewStats(reg)))
		}
		brd := board.New(b, m, l,
			board.WithInterval(cfg.Board.Interval),
			board.WithQueueDepth(cfg.Board.QueueDepth),
			board.WithRegisterer(reg),
		)

		listen := cfg.Metrics.Listen
		if addr := c.String("metrics"); addr != "" {
			listen = addr
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return brd.Run(gctx)
		})
		g.Go(func() error {
			consumeSamples(gctx, brd.Samples())
			return nil
		})
		if listen != "" {
			g.Go(func() error {
				return serveMetrics(gctx, listen, reg)
			})
		}
		console.PInfof(console.PictoSatellite, "board running, press ctrl+c to stop")
		if err := g.Wait(); err != nil {
			return console.Fail("board stopped", err)
		}
		if l != nil {
			printLinkStats(l.Stats())
		}
		console.PInfof(console.PictoFinish, "board stopped")
		return nil
	},
}

// initSensors initializes both sensors. A sensor that fails is left out of the
// board; it is an error only when both fail.
func initSensors(ctx context.Context, rb flightboard.RegisterBus, cfg config.Config) (board.Barometer, board.IMU, error) {
	var b board.Barometer
	var m board.IMU
	bmp := newBarometer(rb, cfg)
	if err := bmp.Init(ctx); err != nil {
		slog.Warn("barometer unavailable", "error", err)
	} else {
		b = bmp
	}
	mpu := newIMU(rb, cfg)
	if err := mpu.Init(ctx); err != nil {
		slog.Warn("imu unavailable", "error", err)
	} else {
		m = mpu
	}
	if b == nil && m == nil {
		return nil, nil, errors.New("no sensor could be initialized")
	}
	return b, m, nil
}

// consumeSamples stands in for the stabilizer: it drains the queue and logs a
// summary once per second.
func consumeSamples(ctx context.Context, samples <-chan board.Sample) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var last board.Sample
	count := 0
	for {
		select {
		case <-ctx.Done():
			return
		case s := <-samples:
			last = s
			count++
		case <-ticker.C:
			if count == 0 {
				slog.Warn("no samples in the last second")
				continue
			}
			args := []any{"samples", count}
			if last.HasBaro {
				args = append(args, "pressure", last.Baro.Pressure, "altitude", last.Baro.Altitude)
			}
			if last.HasIMU {
				args = append(args, "accel", last.IMU.Accel.String(), "gyro", last.IMU.Gyro.String())
			}
			slog.Info("sensor summary", args...)
			count = 0
		}
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	slog.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func printLinkStats(stats *link.Stats) {
	c := stats.Counts()
	console.Infof("frames received %s, sent %s", console.White(c.Received), console.White(c.Sent))
	for _, reason := range []link.DropReason{link.DropChecksum, link.DropOversize, link.DropOverrun, link.DropResync} {
		if n := c.Dropped[reason]; n > 0 {
			console.Warnf("dropped (%s): %v", reason, n)
		}
	}
}
