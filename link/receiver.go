package link

import (
	"context"
)

// Receiver couples a Parser with a bounded handoff to the consumer.
// Feed is called by exactly one producer; Receive/TryReceive by exactly one consumer.
type Receiver struct {
	parser Parser
	frames chan Frame
	stats  *Stats
}

// NewReceiver creates a receiver holding at most depth completed frames (minimum 1).
// A nil stats gets a private, unregistered set of counters.
func NewReceiver(depth int, stats *Stats) *Receiver {
	if depth < 1 {
		depth = 1
	}
	if stats == nil {
		stats = NewStats(nil)
	}
	return &Receiver{
		frames: make(chan Frame, depth),
		stats:  stats,
	}
}

// Feed consumes one received byte without blocking, as an interrupt handler would.
// A frame completing while the handoff is full is dropped and counted as overrun.
func (r *Receiver) Feed(b byte) {
	pr := r.parser.Parse(b)
	if pr.Drop != "" {
		r.stats.drop(pr.Drop)
	}
	if pr.Frame == nil {
		return
	}
	select {
	case r.frames <- *pr.Frame:
	default:
		r.stats.drop(DropOverrun)
	}
}

// FeedContext consumes one received byte like Feed, but a completed frame waits
// for room in the handoff instead of being dropped. It fails only when ctx is done.
func (r *Receiver) FeedContext(ctx context.Context, b byte) error {
	pr := r.parser.Parse(b)
	if pr.Drop != "" {
		r.stats.drop(pr.Drop)
	}
	if pr.Frame == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r.frames <- *pr.Frame:
		return nil
	}
}

// Write feeds every byte of p; it never fails.
func (r *Receiver) Write(p []byte) (int, error) {
	for _, b := range p {
		r.Feed(b)
	}
	return len(p), nil
}

// Receive blocks until a frame is available and returns its packet,
// or ErrChecksum when the frame is corrupted.
func (r *Receiver) Receive(ctx context.Context) (Packet, error) {
	select {
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case f := <-r.frames:
		return r.verify(f)
	}
}

// TryReceive returns immediately; ok is false when no frame is pending.
func (r *Receiver) TryReceive() (p Packet, ok bool, err error) {
	select {
	case f := <-r.frames:
		p, err = r.verify(f)
		return p, true, err
	default:
		return Packet{}, false, nil
	}
}

func (r *Receiver) verify(f Frame) (Packet, error) {
	p, err := f.Verify()
	if err != nil {
		r.stats.drop(DropChecksum)
		return Packet{}, err
	}
	r.stats.Received.Inc()
	return p, nil
}
