package monitoring

import (
	"time"

	"campusconnect/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusCollector records client-side realtime metrics. A nil collector
// is valid and records nothing.
type PrometheusCollector struct {
	connected         prometheus.Gauge
	reconnectAttempts prometheus.Counter
	framesEmitted     *prometheus.CounterVec
	framesReceived    *prometheus.CounterVec
	outboxDepth       prometheus.Gauge

	callTransitions *prometheus.CounterVec
	callDuration    prometheus.Histogram
}

func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	c := &PrometheusCollector{
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusconnect_socket_connected",
			Help: "1 when the realtime connection is up",
		}),

		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "campusconnect_socket_reconnect_attempts_total",
			Help: "Failed connection attempts that were retried",
		}),

		framesEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_socket_frames_emitted_total",
			Help: "Outgoing frames by event and delivery status",
		}, []string{"event", "status"}),

		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_socket_frames_received_total",
			Help: "Incoming frames by event and outcome",
		}, []string{"event", "outcome"}),

		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "campusconnect_outbox_depth",
			Help: "Frames waiting for redelivery",
		}),

		callTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campusconnect_call_transitions_total",
			Help: "Call phase transitions by target phase",
		}, []string{"phase"}),

		callDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campusconnect_call_duration_seconds",
			Help:    "Talk time of calls that reached the active phase",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
	}

	if reg != nil {
		reg.MustRegister(
			c.connected,
			c.reconnectAttempts,
			c.framesEmitted,
			c.framesReceived,
			c.outboxDepth,
			c.callTransitions,
			c.callDuration,
		)
	}

	return c
}

func (c *PrometheusCollector) SetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *PrometheusCollector) IncReconnectAttempts() {
	if c == nil {
		return
	}
	c.reconnectAttempts.Inc()
}

func (c *PrometheusCollector) RecordEmit(event domain.EventName, status domain.DeliveryStatus) {
	if c == nil {
		return
	}
	c.framesEmitted.WithLabelValues(string(event), string(status)).Inc()
}

func (c *PrometheusCollector) RecordReceive(event domain.EventName, outcome string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(string(event), outcome).Inc()
}

func (c *PrometheusCollector) SetOutboxDepth(n int) {
	if c == nil {
		return
	}
	c.outboxDepth.Set(float64(n))
}

func (c *PrometheusCollector) RecordCallTransition(phase domain.CallPhase) {
	if c == nil {
		return
	}
	c.callTransitions.WithLabelValues(string(phase)).Inc()
}

func (c *PrometheusCollector) RecordCallDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.callDuration.Observe(d.Seconds())
}
