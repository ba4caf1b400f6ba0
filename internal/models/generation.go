package models

const (
	MinWords     = 200
	MaxWords     = 4000
	DefaultWords = 2000
)

type GenerationRequest struct {
	URLs         []string `json:"urls"`
	Model        string   `json:"model"`
	Instructions string   `json:"instructions"`
	MaxWords     int      `json:"max_words"`
	SourceLabels []string `json:"source_labels,omitempty"`
}

// ClampWords bounds a requested article length to [MinWords, MaxWords].
// Zero selects DefaultWords.
func ClampWords(n int) int {
	if n == 0 {
		return DefaultWords
	}
	if n < MinWords {
		return MinWords
	}
	if n > MaxWords {
		return MaxWords
	}
	return n
}

type GenerationResult struct {
	Markdown        string           `json:"markdown"`
	Model           string           `json:"model"`
	Images          []ImageCandidate `json:"images"`
	SourceImages    [][]string       `json:"source_images"`
	SourceTitles    []string         `json:"source_titles"`
	SourceURLs      []string         `json:"source_urls"`
	SourceSummaries []string         `json:"source_summaries"`
	SourceStatuses  []Status         `json:"source_statuses"`
	PromptPreview   string           `json:"prompt_preview"`
}

// SynthesisInput is everything the synthesizer needs to write the article.
type SynthesisInput struct {
	Model        string
	Title        string
	Instructions string
	MaxWords     int
	Sources      []Source
	Images       []PoolImage
}

type Synthesis struct {
	Markdown string
	Prompt   string
	Fallback bool
}
