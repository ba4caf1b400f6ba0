package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/xhad/linkpress/internal/models"
	"github.com/xhad/linkpress/internal/types"
	"github.com/xhad/linkpress/pkg/processor"
)

const (
	MinSummaryWords = 60
	MaxSummaryWords = 180
)

const summarySystemPrompt = "You condense web articles into short, neutral summaries. " +
	"Reply with the summary text only, without headings or preamble."

// Summarizer condenses one source at a time. With a nil completer every
// summary comes from the extractive fallback.
type Summarizer struct {
	completer types.Completer
	text      processor.Processor
	timeout   time.Duration
}

func NewSummarizer(completer types.Completer, text processor.Processor, timeout time.Duration) *Summarizer {
	if timeout == 0 {
		timeout = 25 * time.Second
	}
	return &Summarizer{completer: completer, text: text, timeout: timeout}
}

func (s *Summarizer) Summarize(ctx context.Context, src models.Source, model string, maxWordsHint int) (string, models.Status) {
	if strings.TrimSpace(src.CleanedText) == "" {
		return "Source unavailable: " + src.RequestedURL, models.StatusFailed
	}

	if s.completer != nil {
		summary, err := s.complete(ctx, src, model, maxWordsHint)
		if err == nil {
			return summary, models.StatusOk
		}
		zerolog.Ctx(ctx).Warn().Err(err).Str("url", src.RequestedURL).Msg("summary fell back to extract")
	}

	return s.text.Excerpt(src.CleanedText), models.StatusDegraded
}

func (s *Summarizer) complete(ctx context.Context, src models.Source, model string, maxWordsHint int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.completer.Complete(ctx, model, summarySystemPrompt, s.prompt(src, maxWordsHint), 0)
	if err != nil {
		return "", err
	}
	if summary := CleanResponse(reply); summary != "" {
		return summary, nil
	}
	return "", ErrEmptyResponse
}

func (s *Summarizer) prompt(src models.Source, maxWordsHint int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the following source in about %d words. Keep it factual, neutral and concise.\n", TargetWords(maxWordsHint))
	fmt.Fprintf(&b, "Title: %s\n", src.Title)
	fmt.Fprintf(&b, "URL: %s\n", src.CanonicalURL)
	b.WriteString("Text:\n")
	b.WriteString(s.text.Snippet(src.CleanedText))
	b.WriteString("\n")
	return b.String()
}

// TargetWords bounds a per-source word hint to a summary-sized length.
func TargetWords(hint int) int {
	switch {
	case hint < MinSummaryWords:
		return MinSummaryWords
	case hint > MaxSummaryWords:
		return MaxSummaryWords
	default:
		return hint
	}
}
