package jobmetrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const scan = "inventory:low-stock-scan"

func TestRunRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	at := time.Date(2024, 3, 10, 6, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return at }

	require.NoError(t, m.Track(scan).End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track(scan).End(boom), boom)
	skipped := fmt.Errorf("bad payload: %w", asynq.SkipRetry)
	require.ErrorIs(t, m.Track(scan).End(skipped), asynq.SkipRetry)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(scan, OutcomeOK)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(scan, OutcomeError)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues(scan, OutcomeSkipped)))
	require.Equal(t, float64(at.Unix()), testutil.ToFloat64(m.lastSuccess.WithLabelValues(scan)))
}

func TestDomainCollectors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetLowStock(4)
	m.SetLowStock(2)
	m.AddOrphanCounts(3)
	m.AddOrphanCounts(0)
	m.AddPurgedKeys(7)
	m.AddPurgedKeys(-1)

	require.Equal(t, 2.0, testutil.ToFloat64(m.lowStock))
	require.Equal(t, 3.0, testutil.ToFloat64(m.orphans))
	require.Equal(t, 7.0, testutil.ToFloat64(m.purged))
}

func TestCollectorNames(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.SetLowStock(1)

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	require.Contains(t, names, "tutti_jobs_low_stock_items")
}

func TestUnregisteredAndNil(t *testing.T) {
	require.NotPanics(t, func() {
		NewMetrics(nil).Track(scan).End(nil)
	})
	var m *Metrics
	m.SetLowStock(1)
	m.AddOrphanCounts(1)
	require.NoError(t, m.Track("x").End(nil))
}
