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

// DefaultDirective is used when the request carries no instructions.
const DefaultDirective = "Blend insights from every source, balance strengths and gaps, keep it concise and publish-ready."

const synthesisSystemPrompt = "You are an expert blog editor. You write clean Markdown articles that are ready to paste into a CMS."

// Synthesizer merges per-source summaries into one article. With a nil
// completer it always renders the fallback template.
type Synthesizer struct {
	completer types.Completer
	text      processor.Processor
	timeout   time.Duration
}

func NewSynthesizer(completer types.Completer, text processor.Processor, timeout time.Duration) *Synthesizer {
	if timeout == 0 {
		timeout = 90 * time.Second
	}
	return &Synthesizer{completer: completer, text: text, timeout: timeout}
}

// Synthesize always returns an article ending in a References section that
// lists every source once.
func (s *Synthesizer) Synthesize(ctx context.Context, in models.SynthesisInput) models.Synthesis {
	prompt := BuildPrompt(in)

	body, fallback := "", true
	if s.completer != nil {
		article, err := s.complete(ctx, in.Model, prompt, TokenBudget(in.MaxWords))
		if err == nil {
			body, fallback = article, false
		} else {
			zerolog.Ctx(ctx).Warn().Err(err).Str("model", in.Model).Msg("synthesis fell back to template")
		}
	}
	if fallback {
		body = s.Fallback(in)
	}

	return models.Synthesis{
		Markdown: strings.TrimRight(CloseFences(body), " \t\n") + "\n\n" + References(in.Sources),
		Prompt:   prompt,
		Fallback: fallback,
	}
}

func (s *Synthesizer) complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.completer.Complete(ctx, model, synthesisSystemPrompt, prompt, maxTokens)
	if err != nil {
		return "", err
	}
	article := StripTrailingReferences(CleanResponse(reply))
	if strings.TrimSpace(article) == "" {
		return "", ErrEmptyResponse
	}
	return article, nil
}

// TokenBudget is the output allowance for an article of maxWords words,
// with room for headings, image embeds and the occasional overrun.
func TokenBudget(maxWords int) int {
	return models.ClampWords(maxWords)*2 + 512
}

// BuildPrompt renders the synthesis prompt. Identical inputs give identical
// prompts.
func BuildPrompt(in models.SynthesisInput) string {
	order := strings.TrimSpace(in.Instructions)
	if order == "" {
		order = DefaultDirective
	}

	var b strings.Builder
	b.WriteString("Write a Markdown article that combines the sources below. Follow the user's order exactly.\n")
	if in.Title != "" {
		fmt.Fprintf(&b, "Working title: %s\n", in.Title)
	}

	b.WriteString("\nSources:\n")
	for i, src := range in.Sources {
		fmt.Fprintf(&b, "%d. %s\n", i+1, sourceTitle(src, i))
		fmt.Fprintf(&b, "   URL: %s\n", referenceURL(src))
		fmt.Fprintf(&b, "   Summary: %s\n", oneLine(src.Summary))
	}

	fmt.Fprintf(&b, "\nUser order: %s\n", order)
	fmt.Fprintf(&b, "Length: keep the article under %d words unless the order says otherwise.\n\n", models.ClampWords(in.MaxWords))
	if len(in.Images) == 0 {
		b.WriteString("Available images: none. Do not embed images.\n")
	} else {
		b.WriteString("Available images:\n")
		for k, img := range in.Images {
			fmt.Fprintf(&b, "[%d] %s %q (%s)\n", k+1, img.URL, oneLine(img.Description), imageOrigin(img, in.Sources))
		}
		b.WriteString("You may embed any subset of these images with Markdown syntax ![alt text](url) " +
			"where they fit the surrounding section. Only use URLs from this list.\n")
	}

	b.WriteString("\nRequirements:\n")
	b.WriteString("- Start with a single # title.\n")
	b.WriteString("- Use every source above, not only the first. If sources conflict, call it out.\n")
	b.WriteString("- Do not add facts beyond the source summaries.\n")
	b.WriteString("- Do not write a references or sources section. One is appended automatically.\n")
	return b.String()
}

// Fallback renders the article without a model: a heading, a lead line and
// one section per source.
func (s *Synthesizer) Fallback(in models.SynthesisInput) string {
	title := strings.TrimSpace(in.Title)
	if title == "" && len(in.Sources) > 0 {
		title = sourceTitle(in.Sources[0], 0)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "*A roundup of %d %s.*\n\n", len(in.Sources), plural(len(in.Sources), "source", "sources"))

	var texts []string
	for _, src := range in.Sources {
		texts = append(texts, src.CleanedText, src.Summary)
	}
	if themes := s.text.Keywords(strings.Join(texts, "\n"), 5); len(themes) > 0 {
		fmt.Fprintf(&b, "Key themes: %s\n\n", strings.Join(themes, ", "))
	}

	for i, src := range in.Sources {
		fmt.Fprintf(&b, "## %s\n\n", sourceTitle(src, i))
		if summary := strings.TrimSpace(src.Summary); summary != "" {
			fmt.Fprintf(&b, "%s\n\n", summary)
		}
		if img, ok := firstImageOf(in.Images, i); ok {
			fmt.Fprintf(&b, "![%s](%s)\n\n", linkText(imageAlt(img, src)), img.URL)
		}
		fmt.Fprintf(&b, "[Read the original](%s)\n\n", referenceURL(src))
	}
	return b.String()
}

func sourceTitle(src models.Source, i int) string {
	if t := strings.TrimSpace(src.Title); t != "" {
		return t
	}
	return fmt.Sprintf("Source %d", i+1)
}

func imageOrigin(img models.PoolImage, sources []models.Source) string {
	if img.SourceIndex >= 0 && img.SourceIndex < len(sources) {
		return "from " + sourceTitle(sources[img.SourceIndex], img.SourceIndex)
	}
	return "from image search"
}

func firstImageOf(images []models.PoolImage, sourceIndex int) (models.PoolImage, bool) {
	for _, img := range images {
		if img.SourceIndex == sourceIndex {
			return img, true
		}
	}
	return models.PoolImage{}, false
}

func imageAlt(img models.PoolImage, src models.Source) string {
	if d := strings.TrimSpace(img.Description); d != "" {
		return d
	}
	return src.Title
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
