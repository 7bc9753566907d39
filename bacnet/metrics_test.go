package bacnet

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter(t *testing.T) {
	var c Counter

	assert.Equal(t, int64(0), c.Value())
	c.Inc()
	c.Add(4)
	assert.Equal(t, int64(5), c.Value())
	c.Reset()
	assert.Equal(t, int64(0), c.Value())
}

func TestGauge(t *testing.T) {
	var g Gauge

	g.Set(10)
	g.Inc()
	g.Dec()
	g.Add(-3)
	assert.Equal(t, int64(7), g.Value())
}

func TestLatencyHistogramEmpty(t *testing.T) {
	h := NewLatencyHistogram()
	stats := h.Stats()

	assert.Equal(t, int64(0), stats.Count)
	assert.Equal(t, time.Duration(0), stats.Min)
	assert.Equal(t, time.Duration(0), stats.Max)
	assert.Equal(t, time.Duration(0), stats.Avg)
}

func TestLatencyHistogramRecord(t *testing.T) {
	h := NewLatencyHistogram()

	h.Record(500 * time.Microsecond)
	h.Record(7 * time.Millisecond)
	h.Record(2 * time.Second)

	stats := h.Stats()
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, 500*time.Microsecond, stats.Min)
	assert.Equal(t, 2*time.Second, stats.Max)

	require.Len(t, stats.Buckets, 10)
	assert.Equal(t, int64(1), stats.Buckets[0]) // <1ms
	assert.Equal(t, int64(1), stats.Buckets[2]) // <10ms
	assert.Equal(t, int64(1), stats.Buckets[9]) // >=1s

	h.Reset()
	assert.Equal(t, int64(0), h.Stats().Count)
}

func TestMetricsSnapshot(t *testing.T) {
	m := NewMetrics()

	m.TransactionsStarted.Inc()
	m.TransactionsStarted.Inc()
	m.TransactionsCompleted.Inc()
	m.Retransmissions.Add(3)
	m.ActiveTransactions.Set(1)
	m.TransactionLatency.Record(12 * time.Millisecond)
	m.RecordActivity()

	snap := m.Snapshot()
	assert.Equal(t, int64(2), snap.TransactionsStarted)
	assert.Equal(t, int64(1), snap.TransactionsCompleted)
	assert.Equal(t, int64(3), snap.Retransmissions)
	assert.Equal(t, int64(1), snap.ActiveTransactions)
	assert.Equal(t, int64(1), snap.LatencyStats.Count)
	assert.False(t, snap.LastActivity.IsZero())
	assert.GreaterOrEqual(t, snap.Uptime, time.Duration(0))

	m.Reset()
	snap = m.Snapshot()
	assert.Equal(t, int64(0), snap.TransactionsStarted)
	assert.Equal(t, int64(0), snap.ActiveTransactions)
	assert.Equal(t, int64(0), snap.LatencyStats.Count)
}

func TestMetricsLastActivityDefaultsToStart(t *testing.T) {
	m := NewMetrics()

	first := m.LastActivity()
	assert.False(t, first.IsZero())

	m.RecordActivity()
	assert.False(t, m.LastActivity().Before(first))
}
