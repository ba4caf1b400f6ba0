package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/linkpress/internal/models"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveFetch(models.StatusOk)
	m.ObserveFetch(models.StatusOk)
	m.ObserveFetch(models.StatusFailed)
	m.ObserveSummary(models.StatusDegraded)
	m.ObserveSynthesis(true)
	m.ObserveImageSearch(SearchDisabled)
	m.ObserveGeneration(3 * time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.fetches.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fetches.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.summaries.WithLabelValues("degraded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syntheses.WithLabelValues("fallback")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.syntheses.WithLabelValues("model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searches.WithLabelValues(SearchDisabled)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.generations))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveFetch(models.StatusOk)
		m.ObserveSummary(models.StatusOk)
		m.ObserveSynthesis(false)
		m.ObserveImageSearch(SearchHit)
		m.ObserveGeneration(time.Second)
	})
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveSynthesis(false)

	path := filepath.Join(t.TempDir(), "linkpress.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `linkpress_synthesis_total{path="model"} 1`)
}
