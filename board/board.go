package board

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/mklimuk/flightboard/baro"
	"github.com/mklimuk/flightboard/imu"
	"github.com/mklimuk/flightboard/link"
)

// Packet types understood by the command task.
const (
	TypePing      byte = 0x01
	TypeCalibrate byte = 0x02
	TypePong      byte = 0x81
	TypeAck       byte = 0x82
)

// Acknowledgment status codes.
const (
	StatusOK       byte = 0x00
	StatusFailed   byte = 0x01
	// reply could not be framed
	StatusRejected byte = 0x02
)

type Barometer interface {
	Read(ctx context.Context) (baro.Sample, error)
}

type IMU interface {
	Read(ctx context.Context) (imu.Sample, error)
	Calibrate(ctx context.Context) (imu.Bias, error)
}

// Sample is one sensor task cycle. A sensor that failed in this cycle has its flag unset.
type Sample struct {
	Time    time.Time
	Baro    baro.Sample
	IMU     imu.Sample
	HasBaro bool
	HasIMU  bool
}

type BoardOpts struct {
	Interval   time.Duration
	QueueDepth int
	Registerer prometheus.Registerer
	Logger     *slog.Logger
}

type BoardOpt func(*BoardOpts)

// WithInterval sets the sensor task period.
func WithInterval(interval time.Duration) BoardOpt {
	return func(o *BoardOpts) {
		o.Interval = interval
	}
}

// WithQueueDepth sets how many samples wait for the consumer before the oldest is discarded.
func WithQueueDepth(depth int) BoardOpt {
	return func(o *BoardOpts) {
		o.QueueDepth = depth
	}
}

func WithRegisterer(reg prometheus.Registerer) BoardOpt {
	return func(o *BoardOpts) {
		o.Registerer = reg
	}
}

func WithLogger(logger *slog.Logger) BoardOpt {
	return func(o *BoardOpts) {
		o.Logger = logger
	}
}

// Board runs the sensor acquisition task and the radio command task.
type Board struct {
	baro       Barometer
	imu        IMU
	link       *link.Link
	samples    chan Sample
	readErrors *prometheus.CounterVec
	config     BoardOpts
}

// New composes a board. l may be nil when no radio link is attached.
func New(b Barometer, i IMU, l *link.Link, opts ...BoardOpt) *Board {
	config := BoardOpts{
		Interval:   10 * time.Millisecond,
		QueueDepth: 16,
		Logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.QueueDepth < 1 {
		config.QueueDepth = 1
	}
	readErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flightboard",
		Subsystem: "sensor",
		Name:      "read_errors_total",
		Help:      "Failed sensor reads in the sensor task.",
	}, []string{"sensor"})
	if config.Registerer != nil {
		config.Registerer.MustRegister(readErrors)
	}
	return &Board{
		baro:       b,
		imu:        i,
		link:       l,
		samples:    make(chan Sample, config.QueueDepth),
		readErrors: readErrors,
		config:     config,
	}
}

// Samples is the queue consumed by the stabilizer.
func (b *Board) Samples() <-chan Sample {
	return b.samples
}

// Run starts the link, sensor and command tasks and returns the first error.
func (b *Board) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return b.sensorTask(gctx)
	})
	if b.link != nil {
		g.Go(func() error {
			return b.link.Run(gctx)
		})
		g.Go(func() error {
			return b.commandTask(gctx)
		})
	}
	return g.Wait()
}

func (b *Board) sensorTask(ctx context.Context) error {
	ticker := time.NewTicker(b.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if s, ok := b.acquire(ctx); ok {
				b.publish(s)
			}
		}
	}
}

func (b *Board) acquire(ctx context.Context) (Sample, bool) {
	s := Sample{Time: time.Now()}
	if b.baro != nil {
		v, err := b.baro.Read(ctx)
		if err != nil {
			b.readErrors.WithLabelValues("baro").Inc()
			b.config.Logger.Warn("barometer read failed", "error", err)
		} else {
			s.Baro, s.HasBaro = v, true
		}
	}
	if b.imu != nil {
		v, err := b.imu.Read(ctx)
		if err != nil {
			b.readErrors.WithLabelValues("imu").Inc()
			b.config.Logger.Warn("imu read failed", "error", err)
		} else {
			s.IMU, s.HasIMU = v, true
		}
	}
	return s, s.HasBaro || s.HasIMU
}

// publish never blocks; when the queue is full the oldest sample makes room.
func (b *Board) publish(s Sample) {
	for {
		select {
		case b.samples <- s:
			return
		default:
		}
		select {
		case <-b.samples:
		default:
		}
	}
}

func (b *Board) commandTask(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-b.link.Inbound():
			b.handle(ctx, p)
		}
	}
}

func (b *Board) handle(ctx context.Context, p link.Packet) {
	var reply link.Packet
	switch p.Type {
	case TypePing:
		reply = link.Packet{Type: TypePong, Payload: p.Payload}
	case TypeCalibrate:
		status := StatusOK
		if b.imu == nil {
			status = StatusFailed
		} else if bias, err := b.imu.Calibrate(ctx); err != nil {
			b.config.Logger.Error("imu calibration failed", "error", err)
			status = StatusFailed
		} else {
			b.config.Logger.Info("imu calibrated over link", "accel", bias.Accel.String(), "gyro", bias.Gyro.String())
		}
		reply = link.Packet{Type: TypeAck, Payload: []byte{TypeCalibrate, status}}
	default:
		b.config.Logger.Debug("ignoring packet", "packet", p.String())
		return
	}
	if _, err := link.Encode(reply); errors.Is(err, link.ErrStartByteInFrame) {
		b.config.Logger.Warn("reply cannot be framed, rejecting request", "packet", p.String(), "error", err)
		reply = link.Packet{Type: TypeAck, Payload: []byte{p.Type, StatusRejected}}
	}
	if err := b.link.Send(ctx, reply); err != nil {
		b.config.Logger.Warn("could not send reply", "type", reply.Type, "error", err)
	}
}
