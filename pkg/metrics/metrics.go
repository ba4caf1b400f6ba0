package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/xhad/linkpress/internal/models"
)

const namespace = "linkpress"

// Search outcomes.
const (
	SearchDisabled = "disabled"
	SearchEmpty    = "empty"
	SearchHit      = "hit"
)

// Metrics counts stage outcomes of the generation pipeline. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	fetches     *prometheus.CounterVec
	summaries   *prometheus.CounterVec
	syntheses   *prometheus.CounterVec
	searches    *prometheus.CounterVec
	generations prometheus.Histogram
}

// New registers the pipeline collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Source fetches by resulting status.",
		}, []string{"status"}),
		summaries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "summaries_total",
			Help:      "Per-source summaries by resulting status.",
		}, []string{"status"}),
		syntheses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_total",
			Help:      "Article syntheses by path taken (model or fallback).",
		}, []string{"path"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_search_total",
			Help:      "Image searches by outcome.",
		}, []string{"outcome"}),
		generations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Wall time of a full generation request.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 90, 120, 180},
		}),
	}
}

func (m *Metrics) ObserveFetch(status models.Status) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveSummary(status models.Status) {
	if m == nil {
		return
	}
	m.summaries.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) ObserveSynthesis(fallback bool) {
	if m == nil {
		return
	}
	path := "model"
	if fallback {
		path = "fallback"
	}
	m.syntheses.WithLabelValues(path).Inc()
}

func (m *Metrics) ObserveImageSearch(outcome string) {
	if m == nil {
		return
	}
	m.searches.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGeneration(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.generations.Observe(elapsed.Seconds())
}

// WriteTextfile dumps everything gathered from g in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
