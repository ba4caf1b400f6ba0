package types

import (
	"context"

	"github.com/xhad/linkpress/internal/models"
)

// Core interfaces. The pipeline depends only on these, so every stage can
// be swapped for a fake in tests.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) models.Source
}

type Summarizer interface {
	Summarize(ctx context.Context, src models.Source, model string, maxWordsHint int) (string, models.Status)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, in models.SynthesisInput) models.Synthesis
}

type ImageSearcher interface {
	Search(ctx context.Context, query string) []models.ImageCandidate
}

// Completer issues a single prompt to a language model and returns its text.
// A maxTokens of zero leaves the output budget to the implementation.
type Completer interface {
	Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, error)
}
