package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/xhad/linkpress/internal/models"
	"github.com/xhad/linkpress/internal/types"
	"github.com/xhad/linkpress/pkg/metrics"
	"github.com/xhad/linkpress/pkg/processor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// ErrInvalidRequest marks requests rejected before any work starts.
var ErrInvalidRequest = errors.New("invalid generation request")

var tracer = otel.Tracer("linkpress/pipeline")

type PipelineConfig struct {
	MaxPoolItems  int // cap on the image manifest given to the synthesizer
	QueryKeywords int // keywords appended to the image search query
}

// Stages are the components a Pipeline drives. ImageSearcher may be nil.
type Stages struct {
	Fetcher       types.Fetcher
	Summarizer    types.Summarizer
	Synthesizer   types.Synthesizer
	ImageSearcher types.ImageSearcher
}

type Pipeline struct {
	config  PipelineConfig
	stages  Stages
	text    processor.Processor
	metrics *metrics.Metrics
}

func New(config PipelineConfig, stages Stages, text processor.Processor, m *metrics.Metrics) *Pipeline {
	if config.MaxPoolItems == 0 {
		config.MaxPoolItems = 24
	}
	if config.QueryKeywords == 0 {
		config.QueryKeywords = 3
	}
	return &Pipeline{config: config, stages: stages, text: text, metrics: m}
}

// Generate fetches, summarizes and synthesizes the requested URLs into one
// article. Only a malformed request returns an error: stage failures
// degrade the output instead.
func (p *Pipeline) Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := zerolog.Ctx(ctx).With().Str("request_id", uuid.NewString()).Logger()
	ctx = logger.WithContext(ctx)

	ctx, span := tracer.Start(ctx, "pipeline.generate")
	defer span.End()
	span.SetAttributes(
		attribute.Int("linkpress.sources", len(req.URLs)),
		attribute.String("linkpress.model", req.Model),
	)

	maxWords := models.ClampWords(req.MaxWords)
	logger.Info().Int("sources", len(req.URLs)).Str("model", req.Model).Int("max_words", maxWords).Msg("generation started")

	sources := p.fetchAll(ctx, req.URLs)
	applyLabels(sources, req.SourceLabels)

	title := primaryTitle(sources)
	query := p.searchQuery(title, sources)

	var candidates []models.ImageCandidate
	summaries := make([]string, len(sources))
	statuses := make([]models.Status, len(sources))

	summarizeCtx, summarizeSpan := tracer.Start(ctx, "pipeline.summarize")
	var g errgroup.Group
	g.Go(func() error {
		candidates = p.searchImages(summarizeCtx, query)
		return nil
	})
	hint := maxWords / len(sources)
	for i := range sources {
		i := i
		g.Go(func() error {
			summaries[i], statuses[i] = p.stages.Summarizer.Summarize(summarizeCtx, sources[i], req.Model, hint)
			return nil
		})
	}
	_ = g.Wait()
	summarizeSpan.End()

	for i := range sources {
		sources[i].Summary = summaries[i]
		sources[i].Status = statuses[i]
		p.metrics.ObserveSummary(statuses[i])
	}

	synthesizeCtx, synthesizeSpan := tracer.Start(ctx, "pipeline.synthesize")
	synthesis := p.stages.Synthesizer.Synthesize(synthesizeCtx, models.SynthesisInput{
		Model:        req.Model,
		Title:        title,
		Instructions: req.Instructions,
		MaxWords:     maxWords,
		Sources:      sources,
		Images:       buildPool(sources, candidates, p.config.MaxPoolItems),
	})
	synthesizeSpan.SetAttributes(attribute.Bool("linkpress.fallback", synthesis.Fallback))
	synthesizeSpan.End()
	p.metrics.ObserveSynthesis(synthesis.Fallback)

	result := assemble(req.Model, sources, candidates, synthesis)

	elapsed := time.Since(start)
	p.metrics.ObserveGeneration(elapsed)
	logger.Info().
		Dur("elapsed", elapsed).
		Bool("fallback", synthesis.Fallback).
		Int("images", len(candidates)).
		Msg("generation finished")

	return result, nil
}

func validate(req models.GenerationRequest) error {
	if len(req.URLs) == 0 {
		return fmt.Errorf("%w: at least one URL is required", ErrInvalidRequest)
	}
	for i, u := range req.URLs {
		if strings.TrimSpace(u) == "" {
			return fmt.Errorf("%w: URL %d is blank", ErrInvalidRequest, i+1)
		}
	}
	if strings.TrimSpace(req.Model) == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	return nil
}

// fetchAll fetches every URL concurrently. Each goroutine writes only its
// own index, so the output order is the input order.
func (p *Pipeline) fetchAll(ctx context.Context, urls []string) []models.Source {
	ctx, span := tracer.Start(ctx, "pipeline.fetch")
	defer span.End()

	sources := make([]models.Source, len(urls))
	var g errgroup.Group
	for i, u := range urls {
		i, u := i, strings.TrimSpace(u)
		g.Go(func() error {
			sources[i] = p.stages.Fetcher.Fetch(ctx, u)
			return nil
		})
	}
	_ = g.Wait()

	for _, src := range sources {
		p.metrics.ObserveFetch(src.Status)
	}
	return sources
}

func applyLabels(sources []models.Source, labels []string) {
	for i := range sources {
		if i < len(labels) {
			if label := strings.TrimSpace(labels[i]); label != "" {
				sources[i].Title = label
			}
		}
	}
}

// primaryTitle is the title of the first source that was fetched, or a
// generic heading naming the first host.
func primaryTitle(sources []models.Source) string {
	for _, src := range sources {
		if src.Status != models.StatusFailed && strings.TrimSpace(src.Title) != "" {
			return strings.TrimSpace(src.Title)
		}
	}
	host := sources[0].RequestedURL
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	return "Highlights from " + host
}

func (p *Pipeline) searchQuery(title string, sources []models.Source) string {
	for _, src := range sources {
		if src.CleanedText == "" {
			continue
		}
		if keywords := p.text.Keywords(src.CleanedText, p.config.QueryKeywords); len(keywords) > 0 {
			return title + " " + strings.Join(keywords, " ")
		}
		break
	}
	return title
}

// toggle is implemented by searchers that can be switched off.
type toggle interface {
	Enabled() bool
}

func (p *Pipeline) searchImages(ctx context.Context, query string) []models.ImageCandidate {
	searcher := p.stages.ImageSearcher
	if t, ok := searcher.(toggle); searcher == nil || (ok && !t.Enabled()) {
		p.metrics.ObserveImageSearch(metrics.SearchDisabled)
		return []models.ImageCandidate{}
	}

	candidates := p.stages.ImageSearcher.Search(ctx, query)
	if len(candidates) == 0 {
		p.metrics.ObserveImageSearch(metrics.SearchEmpty)
		return []models.ImageCandidate{}
	}
	p.metrics.ObserveImageSearch(metrics.SearchHit)
	return candidates
}

// buildPool lists source images in source order, then search candidates,
// without repeats and capped at limit.
func buildPool(sources []models.Source, candidates []models.ImageCandidate, limit int) []models.PoolImage {
	pool := make([]models.PoolImage, 0, limit)
	seen := make(map[string]struct{})
	add := func(img models.PoolImage) {
		if img.URL == "" || len(pool) >= limit {
			return
		}
		if _, dup := seen[img.URL]; dup {
			return
		}
		seen[img.URL] = struct{}{}
		pool = append(pool, img)
	}

	for i, src := range sources {
		for _, img := range src.Images {
			add(models.PoolImage{URL: img.URL, Description: img.Alt, SourceIndex: i})
		}
	}
	for _, c := range candidates {
		u := c.FullURL
		if u == "" {
			u = c.ThumbnailURL
		}
		add(models.PoolImage{URL: u, Description: c.Title, SourceIndex: -1})
	}
	return pool
}

func assemble(model string, sources []models.Source, candidates []models.ImageCandidate, synthesis models.Synthesis) *models.GenerationResult {
	result := &models.GenerationResult{
		Markdown:        synthesis.Markdown,
		Model:           model,
		Images:          candidates,
		SourceImages:    make([][]string, len(sources)),
		SourceTitles:    make([]string, len(sources)),
		SourceURLs:      make([]string, len(sources)),
		SourceSummaries: make([]string, len(sources)),
		SourceStatuses:  make([]models.Status, len(sources)),
		PromptPreview:   synthesis.Prompt,
	}
	if result.Images == nil {
		result.Images = []models.ImageCandidate{}
	}

	for i, src := range sources {
		images := make([]string, 0, len(src.Images))
		for _, img := range src.Images {
			images = append(images, img.URL)
		}
		result.SourceImages[i] = images
		result.SourceTitles[i] = src.Title
		result.SourceURLs[i] = src.CanonicalURL
		result.SourceSummaries[i] = src.Summary
		result.SourceStatuses[i] = src.Status
	}
	return result
}
