package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "auction_oracle"

// Metrics is safe to use as a nil pointer; every recorder is then a no-op.
type Metrics struct {
	scans           *prometheus.CounterVec
	scanDuration    prometheus.Histogram
	auctions        *prometheus.CounterVec
	registrations   *prometheus.CounterVec
	gateDecisions   *prometheus.CounterVec
	gatePassesSwept prometheus.Counter
	lastBlockHeight prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.scans = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "scan cycles by outcome",
		},
		[]string{"outcome"},
	)
	m.scanDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "scan_duration_seconds",
			Help:      "wall time of completed scan cycles",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)
	m.auctions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auctions_total",
			Help:      "auctions handled by the orchestrator by result",
		},
		[]string{"result"},
	)
	m.registrations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "meeting_registrations_total",
			Help:      "on-chain meeting registrations by result",
		},
		[]string{"result"},
	)
	m.gateDecisions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_decisions_total",
			Help:      "access gate decisions by reason",
		},
		[]string{"reason"},
	)
	m.gatePassesSwept = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_passes_swept_total",
			Help:      "expired unused gate passes deleted",
		},
	)
	m.lastBlockHeight = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_block_height",
			Help:      "masterchain height seen by the last scan",
		},
	)

	return m
}

func (m *Metrics) ScanFinished(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.scans.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.scanDuration.Observe(took.Seconds())
	}
}

func (m *Metrics) AuctionHandled(result string) {
	if m == nil {
		return
	}
	m.auctions.WithLabelValues(result).Inc()
}

func (m *Metrics) MeetingRegistration(result string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(result).Inc()
}

func (m *Metrics) GateDecision(reason string) {
	if m == nil {
		return
	}
	m.gateDecisions.WithLabelValues(reason).Inc()
}

func (m *Metrics) GatePassesSwept(count int64) {
	if m == nil {
		return
	}
	m.gatePassesSwept.Add(float64(count))
}

func (m *Metrics) BlockHeight(height uint64) {
	if m == nil {
		return
	}
	m.lastBlockHeight.Set(float64(height))
}
