package pipeline

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/linkpress/internal/models"
	"github.com/xhad/linkpress/pkg/llm"
	"github.com/xhad/linkpress/pkg/metrics"
	"github.com/xhad/linkpress/pkg/processor"
)

type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]models.Source
	delays  map[string]time.Duration
	fetched []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, rawURL string) models.Source {
	if d := f.delays[rawURL]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, rawURL)
	f.mu.Unlock()

	src, ok := f.pages[rawURL]
	if !ok {
		return models.Source{RequestedURL: rawURL, CanonicalURL: rawURL, Title: rawURL, Status: models.StatusFailed}
	}
	src.RequestedURL = rawURL
	return src
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fetched)
}

type fakeSearcher struct {
	mu      sync.Mutex
	results []models.ImageCandidate
	queries []string
}

func (f *fakeSearcher) Search(ctx context.Context, query string) []models.ImageCandidate {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, query)
	return f.results
}

// recordingSynthesizer captures its input and renders the fallback article.
type recordingSynthesizer struct {
	inner *llm.Synthesizer
	input models.SynthesisInput
}

func (r *recordingSynthesizer) Synthesize(ctx context.Context, in models.SynthesisInput) models.Synthesis {
	r.input = in
	return r.inner.Synthesize(ctx, in)
}

func page(canonical, title, text string, images ...string) models.Source {
	src := models.Source{CanonicalURL: canonical, Title: title, CleanedText: text, Status: models.StatusOk}
	for _, u := range images {
		src.Images = append(src.Images, models.ImageRef{URL: u, Alt: title + " image"})
	}
	return src
}

func testPages() map[string]models.Source {
	return map[string]models.Source{
		"https://a.example/1": page("https://a.example/one", "Solar storage",
			"Solar batteries spread. Solar batteries get cheaper. Grid operators plan ahead.",
			"https://a.example/hero.jpg"),
		"https://b.example/2": page("https://b.example/2", "Wind power",
			"Offshore wind grows. Turbines get bigger.",
			"https://b.example/turbine.jpg", "https://a.example/hero.jpg"),
		"https://c.example/3": page("https://c.example/3", "Grid policy",
			"Regulators approve new interconnects."),
	}
}

type harness struct {
	fetcher     *fakeFetcher
	searcher    *fakeSearcher
	synthesizer *recordingSynthesizer
	pipeline    *Pipeline
}

func newHarness(m *metrics.Metrics, withSearch bool) *harness {
	text := processor.NewWithConfig(processor.ProcessorConfig{})
	h := &harness{
		fetcher: &fakeFetcher{
			pages:  testPages(),
			delays: map[string]time.Duration{"https://a.example/1": 50 * time.Millisecond},
		},
		searcher: &fakeSearcher{results: []models.ImageCandidate{
			{ThumbnailURL: "https://tse.example/t1.jpg", FullURL: "https://img.example/full1.jpg", Title: "Battery farm"},
		}},
		synthesizer: &recordingSynthesizer{inner: llm.NewSynthesizer(nil, text, time.Second)},
	}

	stages := Stages{
		Fetcher:     h.fetcher,
		Summarizer:  llm.NewSummarizer(nil, text, time.Second),
		Synthesizer: h.synthesizer,
	}
	if withSearch {
		stages.ImageSearcher = h.searcher
	}
	h.pipeline = New(PipelineConfig{}, stages, text, m)
	return h
}

func TestGenerate(t *testing.T) {
	h := newHarness(nil, true)

	result, err := h.pipeline.Generate(context.Background(), models.GenerationRequest{
		URLs:     []string{"https://a.example/1", " https://b.example/2 ", "https://c.example/3"},
		Model:    "llama3",
		MaxWords: 900,
	})
	require.NoError(t, err)

	// The slowest fetch is first in the request and stays first.
	assert.Equal(t, []string{"https://a.example/one", "https://b.example/2", "https://c.example/3"}, result.SourceURLs)
	assert.Equal(t, []string{"Solar storage", "Wind power", "Grid policy"}, result.SourceTitles)
	assert.Equal(t, []models.Status{models.StatusDegraded, models.StatusDegraded, models.StatusDegraded}, result.SourceStatuses)
	assert.Equal(t, "Solar batteries spread. Solar batteries get cheaper. Grid operators plan ahead.", result.SourceSummaries[0])
	assert.Equal(t, [][]string{
		{"https://a.example/hero.jpg"},
		{"https://b.example/turbine.jpg", "https://a.example/hero.jpg"},
		{},
	}, result.SourceImages)
	assert.Equal(t, "llama3", result.Model)
	assert.Equal(t, h.searcher.results, result.Images)
	assert.NotEmpty(t, result.PromptPreview)

	assert.Equal(t, 1, strings.Count(result.Markdown, "## References"))
	refs := result.Markdown[strings.Index(result.Markdown, "## References"):]
	assert.Equal(t, 3, strings.Count(refs, "\n- ["))
	assert.Contains(t, refs, "- [Solar storage](https://a.example/one)")
	assert.True(t, strings.HasSuffix(result.Markdown, "- [Grid policy](https://c.example/3)\n"))

	in := h.synthesizer.input
	assert.Equal(t, "Solar storage", in.Title)
	assert.Equal(t, 900, in.MaxWords)
	require.Len(t, in.Images, 3)
	assert.Equal(t, models.PoolImage{URL: "https://a.example/hero.jpg", Description: "Solar storage image", SourceIndex: 0}, in.Images[0])
	assert.Equal(t, 1, in.Images[1].SourceIndex)
	assert.Equal(t, models.PoolImage{URL: "https://img.example/full1.jpg", Description: "Battery farm", SourceIndex: -1}, in.Images[2])

	require.Len(t, h.searcher.queries, 1)
	assert.Equal(t, "Solar storage solar batteries spread", h.searcher.queries[0])
}

func TestGenerateRejectsInvalidRequests(t *testing.T) {
	tests := []struct {
		name string
		req  models.GenerationRequest
	}{
		{name: "no urls", req: models.GenerationRequest{Model: "llama3"}},
		{name: "blank url", req: models.GenerationRequest{URLs: []string{"https://a.example/1", "  "}, Model: "llama3"}},
		{name: "blank model", req: models.GenerationRequest{URLs: []string{"https://a.example/1"}, Model: " "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil, true)

			result, err := h.pipeline.Generate(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Nil(t, result)
			assert.Zero(t, h.fetcher.calls())
		})
	}
}

func TestGenerateLabelsOverrideTitles(t *testing.T) {
	h := newHarness(nil, false)

	result, err := h.pipeline.Generate(context.Background(), models.GenerationRequest{
		URLs:         []string{"https://a.example/1", "https://b.example/2"},
		Model:        "llama3",
		SourceLabels: []string{"", "Breezy"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Solar storage", "Breezy"}, result.SourceTitles)
	assert.Contains(t, result.Markdown, "- [Breezy](https://b.example/2)")
	assert.NotNil(t, result.Images)
	assert.Empty(t, result.Images)
	assert.Empty(t, h.searcher.queries)
}

func TestGenerateWithFailedSource(t *testing.T) {
	h := newHarness(nil, false)

	result, err := h.pipeline.Generate(context.Background(), models.GenerationRequest{
		URLs:  []string{"https://down.example/x", "https://b.example/2"},
		Model: "llama3",
	})
	require.NoError(t, err)

	assert.Equal(t, []models.Status{models.StatusFailed, models.StatusDegraded}, result.SourceStatuses)
	assert.Equal(t, "Source unavailable: https://down.example/x", result.SourceSummaries[0])
	assert.Equal(t, "Wind power", h.synthesizer.input.Title)
	assert.Equal(t, 2, strings.Count(result.Markdown[strings.Index(result.Markdown, "## References"):], "\n- ["))
}

func TestGenerateAllSourcesFailed(t *testing.T) {
	h := newHarness(nil, false)

	result, err := h.pipeline.Generate(context.Background(), models.GenerationRequest{
		URLs:  []string{"https://down.example/x"},
		Model: "llama3",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Markdown, "# Highlights from down.example\n"))
	assert.Equal(t, models.DefaultWords, h.synthesizer.input.MaxWords)
}

func TestGenerateRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	h := newHarness(metrics.New(reg), true)

	_, err := h.pipeline.Generate(context.Background(), models.GenerationRequest{
		URLs:  []string{"https://a.example/1", "https://b.example/2", "https://down.example/x"},
		Model: "llama3",
	})
	require.NoError(t, err)

	expected := `
# HELP linkpress_fetch_total Source fetches by resulting status.
# TYPE linkpress_fetch_total counter
linkpress_fetch_total{status="failed"} 1
linkpress_fetch_total{status="ok"} 2
# HELP linkpress_synthesis_total Article syntheses by path taken (model or fallback).
# TYPE linkpress_synthesis_total counter
linkpress_synthesis_total{path="fallback"} 1
# HELP linkpress_image_search_total Image searches by outcome.
# TYPE linkpress_image_search_total counter
linkpress_image_search_total{outcome="hit"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"linkpress_fetch_total", "linkpress_synthesis_total", "linkpress_image_search_total"))
	count, err := testutil.GatherAndCount(reg, "linkpress_generation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestBuildPoolCapsAndDedupes(t *testing.T) {
	sources := []models.Source{
		{Images: []models.ImageRef{{URL: "https://a/1.jpg"}, {URL: "https://a/2.jpg"}}},
		{Images: []models.ImageRef{{URL: "https://a/1.jpg"}, {URL: "https://b/3.jpg"}}},
	}
	candidates := []models.ImageCandidate{{FullURL: "https://s/4.jpg"}, {ThumbnailURL: "https://s/5.jpg"}}

	pool := buildPool(sources, candidates, 4)
	var urls []string
	for _, img := range pool {
		urls = append(urls, img.URL)
	}
	assert.Equal(t, []string{"https://a/1.jpg", "https://a/2.jpg", "https://b/3.jpg", "https://s/4.jpg"}, urls)
}
