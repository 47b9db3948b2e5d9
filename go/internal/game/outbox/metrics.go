package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/pidr/go/internal/game"
	"github.com/mcdev12/pidr/go/internal/game/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects per-sink delivery metrics for committed snapshots.
type Metrics struct {
	delivered *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMetrics registers the snapshot metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pidr",
			Name:      "snapshots_delivered_total",
			Help:      "Committed snapshots handed to a sink, by outcome.",
		}, []string{"sink", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pidr",
			Name:      "snapshot_delivery_seconds",
			Help:      "Time spent delivering one snapshot to a sink.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"sink"}),
	}
	reg.MustRegister(m.delivered, m.duration)
	return m
}

func (m *Metrics) RecordDelivery(sink string, success bool, duration time.Duration) {
	status := "success"
	if !success {
		status = "failure"
	}
	m.delivered.WithLabelValues(sink, status).Inc()
	m.duration.WithLabelValues(sink).Observe(duration.Seconds())
}

// MetricBroadcaster wraps a Broadcaster with metrics collection
type MetricBroadcaster struct {
	sink    string
	next    orchestrator.Broadcaster
	metrics *Metrics
}

func NewMetricBroadcaster(sink string, next orchestrator.Broadcaster, metrics *Metrics) *MetricBroadcaster {
	return &MetricBroadcaster{sink: sink, next: next, metrics: metrics}
}

func (b *MetricBroadcaster) OnSnapshot(ctx context.Context, roomID uuid.UUID, version uint64, snap *game.Snapshot) error {
	start := time.Now()
	err := b.next.OnSnapshot(ctx, roomID, version, snap)
	b.metrics.RecordDelivery(b.sink, err == nil, time.Since(start))
	return err
}
