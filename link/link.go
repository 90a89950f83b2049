package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Handler processes verified inbound packets.
type Handler interface {
	HandlePacket(ctx context.Context, p Packet)
}

// HandlerFunc is a func implementing Handler.
type HandlerFunc func(ctx context.Context, p Packet)

func (f HandlerFunc) HandlePacket(ctx context.Context, p Packet) {
	f(ctx, p)
}

type LinkOpts struct {
	HandoffDepth  int
	OutboundDepth int
	InboundDepth  int
	Handler       Handler
	Stats         *Stats
	// EOFIsIdle treats io.EOF from the port as "no data yet" (serial read timeouts).
	EOFIsIdle bool
	Logger    *slog.Logger
}

type LinkOpt func(*LinkOpts)

// WithHandoffDepth sets how many completed frames may wait between reader and dispatcher.
func WithHandoffDepth(depth int) LinkOpt {
	return func(o *LinkOpts) {
		o.HandoffDepth = depth
	}
}

func WithOutboundDepth(depth int) LinkOpt {
	return func(o *LinkOpts) {
		o.OutboundDepth = depth
	}
}

func WithInboundDepth(depth int) LinkOpt {
	return func(o *LinkOpts) {
		o.InboundDepth = depth
	}
}

// WithHandler delivers inbound packets to h instead of the Inbound channel.
func WithHandler(h Handler) LinkOpt {
	return func(o *LinkOpts) {
		o.Handler = h
	}
}

func WithStats(stats *Stats) LinkOpt {
	return func(o *LinkOpts) {
		o.Stats = stats
	}
}

func WithEOFIsIdle() LinkOpt {
	return func(o *LinkOpts) {
		o.EOFIsIdle = true
	}
}

func WithLogger(logger *slog.Logger) LinkOpt {
	return func(o *LinkOpts) {
		o.Logger = logger
	}
}

// Link is a full duplex packet channel over a byte port.
type Link struct {
	port   io.ReadWriter
	rx     *Receiver
	out    chan Packet
	in     chan Packet
	config LinkOpts
}

func New(port io.ReadWriter, opts ...LinkOpt) *Link {
	config := LinkOpts{
		HandoffDepth:  1,
		OutboundDepth: 8,
		InboundDepth:  8,
		Logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Stats == nil {
		config.Stats = NewStats(nil)
	}
	return &Link{
		port:   port,
		rx:     NewReceiver(config.HandoffDepth, config.Stats),
		out:    make(chan Packet, config.OutboundDepth),
		in:     make(chan Packet, config.InboundDepth),
		config: config,
	}
}

func (l *Link) Stats() *Stats {
	return l.config.Stats
}

// Send validates p and queues it for transmission.
func (l *Link) Send(ctx context.Context, p Packet) error {
	if _, err := Encode(p); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case l.out <- p:
		return nil
	}
}

// Inbound yields verified packets when no Handler is configured.
func (l *Link) Inbound() <-chan Packet {
	return l.in
}

// Run moves bytes between the port and the queues until ctx is done or the port fails.
// The port is closed on return when it implements io.Closer.
func (l *Link) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.read(gctx)
	})
	g.Go(func() error {
		return l.dispatch(gctx)
	})
	g.Go(func() error {
		return l.transmit(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		if c, ok := l.port.(io.Closer); ok {
			if err := c.Close(); err != nil {
				l.config.Logger.Debug("could not close link port", "error", err)
			}
		}
		return nil
	})
	return g.Wait()
}

func (l *Link) read(ctx context.Context) error {
	buf := make([]byte, MaxPayload+frameOverhead)
	for {
		n, err := l.port.Read(buf)
		for _, b := range buf[:n] {
			// the port buffers behind a slow dispatcher, so frames wait instead of overrunning
			if ferr := l.rx.FeedContext(ctx, b); ferr != nil {
				return nil
			}
		}
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			continue
		}
		if errors.Is(err, io.EOF) && l.config.EOFIsIdle {
			continue
		}
		return fmt.Errorf("link read failed: %w", err)
	}
}

func (l *Link) dispatch(ctx context.Context) error {
	for {
		p, err := l.rx.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			l.config.Logger.Debug("inbound frame discarded", "error", err)
			continue
		}
		if l.config.Handler != nil {
			l.config.Handler.HandlePacket(ctx, p)
			continue
		}
		select {
		case <-ctx.Done():
			return nil
		case l.in <- p:
		}
	}
}

func (l *Link) transmit(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-l.out:
			if err := WriteFrame(l.port, p); err != nil {
				return fmt.Errorf("link write failed: %w", err)
			}
			l.config.Stats.Sent.Inc()
		}
	}
}
