package link

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Stats counts link traffic.
type Stats struct {
	Received prometheus.Counter
	Sent     prometheus.Counter
	Dropped  *prometheus.CounterVec
}

// NewStats creates the link counters and registers them with reg when it is not nil.
func NewStats(reg prometheus.Registerer) *Stats {
	s := &Stats{
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flightboard",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Frames received with a valid checksum.",
		}),
		Sent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flightboard",
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Frames written to the port.",
		}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flightboard",
			Subsystem: "link",
			Name:      "frames_dropped_total",
			Help:      "Frames discarded by the receiver.",
		}, []string{"reason"}),
	}
	for _, reason := range []DropReason{DropChecksum, DropOversize, DropOverrun, DropResync} {
		s.Dropped.WithLabelValues(string(reason))
	}
	if reg != nil {
		reg.MustRegister(s.Received, s.Sent, s.Dropped)
	}
	return s
}

func (s *Stats) drop(reason DropReason) {
	s.Dropped.WithLabelValues(string(reason)).Inc()
}

// Counts is a point-in-time copy of the counters.
type Counts struct {
	Received float64
	Sent     float64
	Dropped  map[DropReason]float64
}

func (s *Stats) Counts() Counts {
	c := Counts{
		Received: value(s.Received),
		Sent:     value(s.Sent),
		Dropped:  make(map[DropReason]float64, 4),
	}
	for _, reason := range []DropReason{DropChecksum, DropOversize, DropOverrun, DropResync} {
		c.Dropped[reason] = value(s.Dropped.WithLabelValues(string(reason)))
	}
	return c
}

func value(c prometheus.Counter) float64 {
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}
