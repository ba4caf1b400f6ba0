package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xhad/linkpress/internal/models"
)

var (
	thinkBlock   = regexp.MustCompile(`(?is)<think>.*?</think>`)
	wrappedFence = regexp.MustCompile("(?s)^```[a-zA-Z]*[ \t]*\n(.*?)\n?```$")
	fenceLine    = regexp.MustCompile("(?m)^[ \t]*```")
	sourcesHead  = regexp.MustCompile(`(?im)^(?:#{1,6}[ \t]*|\*\*)(?:references|sources)[ \t]*:?[ \t]*(?:\*\*)?:?[ \t]*$`)
	anyHeading   = regexp.MustCompile(`(?m)^#{1,6}[ \t]`)
)

// CleanResponse removes reasoning blocks and unwraps a reply that arrives
// inside a single fenced code block.
func CleanResponse(text string) string {
	text = thinkBlock.ReplaceAllString(text, "")
	// An unterminated reasoning block swallows the rest of the reply.
	if i := strings.Index(strings.ToLower(text), "<think>"); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)

	// A reply that opens with one code block and closes with another is
	// not wrapped.
	if m := wrappedFence.FindStringSubmatch(text); m != nil && !fenceLine.MatchString(m[1]) {
		text = strings.TrimSpace(m[1])
	}
	return text
}

// CloseFences terminates a code block left open by a truncated reply, so
// whatever follows renders as Markdown.
func CloseFences(markdown string) string {
	if len(fenceLine.FindAllStringIndex(markdown, -1))%2 == 0 {
		return markdown
	}
	return strings.TrimRight(markdown, " \t\n") + "\n```"
}

// StripTrailingReferences drops a references or sources section the model
// wrote at the end of the article.
func StripTrailingReferences(markdown string) string {
	locs := sourcesHead.FindAllStringIndex(markdown, -1)
	if len(locs) == 0 {
		return markdown
	}
	last := locs[len(locs)-1]
	if anyHeading.MatchString(markdown[last[1]:]) {
		return markdown
	}
	return strings.TrimRight(markdown[:last[0]], " \t\n")
}

// References renders one link per source, in source order.
func References(sources []models.Source) string {
	var b strings.Builder
	b.WriteString("## References\n\n")
	for _, src := range sources {
		fmt.Fprintf(&b, "- [%s](%s)\n", linkText(referenceTitle(src)), referenceURL(src))
	}
	return b.String()
}

func referenceTitle(src models.Source) string {
	if t := strings.TrimSpace(src.Title); t != "" {
		return t
	}
	return referenceURL(src)
}

func referenceURL(src models.Source) string {
	if src.CanonicalURL != "" {
		return src.CanonicalURL
	}
	return src.RequestedURL
}

var linkEscaper = strings.NewReplacer(`[`, `\[`, `]`, `\]`, "\n", " ")

func linkText(s string) string {
	return linkEscaper.Replace(s)
}
