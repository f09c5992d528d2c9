package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecord(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ScanFinished("ok", time.Second)
	m.ScanFinished("skipped", 0)
	m.AuctionHandled("processed")
	m.GateDecision("granted")
	m.GateDecision("granted")
	m.GatePassesSwept(3)
	m.BlockHeight(101)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auctions.WithLabelValues("processed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.gateDecisions.WithLabelValues("granted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.gatePassesSwept))
	assert.Equal(t, 101.0, testutil.ToFloat64(m.lastBlockHeight))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanFinished("ok", time.Second)
		m.AuctionHandled("failed")
		m.MeetingRegistration("ok")
		m.GateDecision("conflict")
		m.GatePassesSwept(1)
		m.BlockHeight(1)
	})
}
