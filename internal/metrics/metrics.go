// Package metrics exposes Prometheus counters for the event pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Delivery outcomes recorded by RecordDelivery.
const (
	OutcomeSent          = "sent"
	OutcomeFiltered      = "filtered"
	OutcomeIneligible    = "ineligible"
	OutcomeCheckFailed   = "check_failed"
	OutcomeDeliveryError = "delivery_error"
)

// Collector records pipeline metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	framesReceived   *prometheus.CounterVec
	deliveries       *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	reconnects       prometheus.Counter
	connected        prometheus.Gauge
}

// NewCollector creates a Collector and registers it with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mintviewer_frames_received_total",
			Help: "Upstream event frames received, by decoded kind.",
		}, []string{"kind"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mintviewer_deliveries_total",
			Help: "Per-recipient dispatch outcomes.",
		}, []string{"outcome"}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mintviewer_dispatch_duration_seconds",
			Help:    "Time spent fanning out one event.",
			Buckets: prometheus.DefBuckets,
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mintviewer_stream_reconnects_total",
			Help: "Failed upstream connection attempts or dropped sessions.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mintviewer_stream_connected",
			Help: "1 while the upstream session is established.",
		}),
	}

	reg.MustRegister(
		c.framesReceived,
		c.deliveries,
		c.dispatchDuration,
		c.reconnects,
		c.connected,
	)

	return c
}

func (c *Collector) RecordFrame(kind string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(kind).Inc()
}

func (c *Collector) RecordDelivery(outcome string) {
	if c == nil {
		return
	}
	c.deliveries.WithLabelValues(outcome).Inc()
}

func (c *Collector) RecordDispatchDuration(d time.Duration) {
	if c == nil {
		return
	}
	c.dispatchDuration.Observe(d.Seconds())
}

func (c *Collector) RecordReconnect() {
	if c == nil {
		return
	}
	c.reconnects.Inc()
}

func (c *Collector) SetConnected(up bool) {
	if c == nil {
		return
	}
	if up {
		c.connected.Set(1)
		return
	}
	c.connected.Set(0)
}

// DeliveryCounter returns the counter behind outcome.
func (c *Collector) DeliveryCounter(outcome string) prometheus.Counter {
	return c.deliveries.WithLabelValues(outcome)
}

// Handler returns the scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
