// Package metrics counts the MRCP traffic of a client with Prometheus
// collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/luma/mrcp/protocol"
)

const namespace = "mrcp"

type Collector struct {
	Requests  *prometheus.CounterVec
	Responses *prometheus.CounterVec
	Events    *prometheus.CounterVec

	// RequestDuration is the time from sending a request to its first
	// response that is not PENDING
	RequestDuration *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "requests_total",
				Help:      "MRCP requests sent.",
			},
			[]string{"channel", "method"},
		),
		Responses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "responses_total",
				Help:      "MRCP responses received.",
			},
			[]string{"channel", "status", "state"},
		),
		Events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "events_total",
				Help:      "MRCP events received.",
			},
			[]string{"channel", "event", "state"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "client",
				Name:      "request_duration_seconds",
				Help:      "Time until an MRCP request is answered.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"channel", "method", "status"},
		),
	}
}

// Register registers every collector with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	return multierr.Combine(
		reg.Register(c.Requests),
		reg.Register(c.Responses),
		reg.Register(c.Events),
		reg.Register(c.RequestDuration),
	)
}

// Observe counts msg as traffic on channelID.
func (c *Collector) Observe(channelID string, msg protocol.Message) {
	switch m := msg.(type) {
	case *protocol.Request:
		c.Requests.WithLabelValues(channelID, string(m.Method)).Inc()

	case *protocol.Response:
		c.Responses.WithLabelValues(channelID, strconv.Itoa(m.StatusCode), string(m.State)).Inc()

	case *protocol.Event:
		c.Events.WithLabelValues(channelID, string(m.Name), string(m.State)).Inc()
	}
}

// ObserveDuration records how long method took to be answered with status.
// A status of 0 means no response arrived.
func (c *Collector) ObserveDuration(channelID string, method protocol.MethodName, status int, duration time.Duration) {
	c.RequestDuration.WithLabelValues(channelID, string(method), strconv.Itoa(status)).Observe(duration.Seconds())
}
