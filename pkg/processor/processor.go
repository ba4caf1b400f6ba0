package processor

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ProcessorConfig struct {
	InputChars        int // budget for text handed to the model
	FallbackSentences int
	FallbackChars     int
	CustomStopwords   []string
}

type Processor struct {
	config    ProcessorConfig
	stopwords map[string]struct{}
}

func NewWithConfig(config ProcessorConfig) Processor {
	if config.InputChars == 0 {
		config.InputChars = 6000
	}
	if config.FallbackSentences == 0 {
		config.FallbackSentences = 4
	}
	if config.FallbackChars == 0 {
		config.FallbackChars = 700
	}

	stopwords := make(map[string]struct{})
	for _, w := range getStopwords() {
		stopwords[w] = struct{}{}
	}
	for _, w := range config.CustomStopwords {
		stopwords[strings.ToLower(w)] = struct{}{}
	}

	return Processor{
		config:    config,
		stopwords: stopwords,
	}
}

// Snippet bounds text to the model input budget.
func (p *Processor) Snippet(text string) string {
	return Truncate(text, p.config.InputChars)
}

// Excerpt is the extractive stand-in for a model summary: the leading
// sentences of text within the configured budgets.
func (p *Processor) Excerpt(text string) string {
	return LeadSentences(text, p.config.FallbackSentences, p.config.FallbackChars)
}

// Keywords returns the most frequent non-stopword terms of at least four
// letters. Ties keep first-occurrence order.
func (p *Processor) Keywords(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	counts := make(map[string]int)
	var order []string
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := p.stopwords[word]; stop {
			continue
		}
		if counts[word] == 0 {
			order = append(order, word)
		}
		counts[word]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > limit {
		order = order[:limit]
	}
	return order
}

var wordPattern = regexp.MustCompile(`[a-z]{4,}`)

// SplitSentences breaks text on terminal punctuation followed by whitespace
// and on line breaks. Whitespace inside each sentence is collapsed.
func SplitSentences(text string) []string {
	var sentences []string
	current := strings.Builder{}

	flush := func() {
		if s := strings.Join(strings.Fields(current.String()), " "); s != "" {
			sentences = append(sentences, s)
		}
		current.Reset()
	}

	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			flush()
			continue
		}
		current.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()

	return sentences
}

// LeadSentences joins up to n leading sentences without exceeding maxChars.
// A first sentence longer than maxChars is truncated.
func LeadSentences(text string, n, maxChars int) string {
	sentences := SplitSentences(text)
	if len(sentences) == 0 {
		return ""
	}

	var picked []string
	size := 0
	for _, s := range sentences {
		if len(picked) == n {
			break
		}
		length := utf8.RuneCountInString(s)
		if len(picked) > 0 && size+1+length > maxChars {
			break
		}
		picked = append(picked, s)
		size += length + 1
	}

	out := strings.Join(picked, " ")
	if utf8.RuneCountInString(out) > maxChars {
		out = Truncate(out, maxChars)
	}
	return out
}

// Truncate cuts text to at most maxChars runes, backing off to the last
// word boundary when one exists in the second half of the cut.
func Truncate(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}

	cut := string([]rune(text)[:maxChars])
	if idx := strings.LastIndexFunc(cut, unicode.IsSpace); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut)
}

func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Common English stopwords
func getStopwords() []string {
	return []string{
		"about", "after", "against", "also", "been", "before", "between", "both",
		"could", "does", "during", "each", "from", "given", "have", "here", "into",
		"just", "like", "might", "more", "most", "much", "other", "over", "said",
		"should", "some", "such", "than", "that", "their", "them", "then", "there",
		"these", "they", "this", "those", "under", "very", "were", "what", "when",
		"where", "which", "while", "whose", "will", "with", "would", "your",
		"because",
	}
}
