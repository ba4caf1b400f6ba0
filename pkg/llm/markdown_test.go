package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xhad/linkpress/internal/models"
	"github.com/xhad/linkpress/pkg/llm"
)

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  # Title\n\nBody ", want: "# Title\n\nBody"},
		{name: "think block", in: "<think>\nreasoning\n</think>\n# Title", want: "# Title"},
		{name: "unterminated think", in: "# Title\n<think>never closed", want: "# Title"},
		{name: "fenced", in: "```markdown\n# Title\n\nBody\n```", want: "# Title\n\nBody"},
		{name: "inner fence kept", in: "# Title\n\n```go\nx := 1\n```\n\nEnd", want: "# Title\n\n```go\nx := 1\n```\n\nEnd"},
		{
			name: "code blocks at both ends",
			in:   "```go\nfmt.Println(1)\n```\n\nSome prose.\n\n```go\nfmt.Println(2)\n```",
			want: "```go\nfmt.Println(1)\n```\n\nSome prose.\n\n```go\nfmt.Println(2)\n```",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, llm.CleanResponse(tt.in))
		})
	}
}

func TestCloseFences(t *testing.T) {
	balanced := "# T\n\n```go\nx := 1\n```\n\nEnd"
	assert.Equal(t, balanced, llm.CloseFences(balanced))

	assert.Equal(t, "# T\n\n```go\nx := 1\n```", llm.CloseFences("# T\n\n```go\nx := 1\n"))
}

func TestStripTrailingReferences(t *testing.T) {
	assert.Equal(t, "# T\n\nBody", llm.StripTrailingReferences("# T\n\nBody\n\n## References\n- [a](b)\n"))
	assert.Equal(t, "# T\n\nBody", llm.StripTrailingReferences("# T\n\nBody\n\n**Sources:**\n1. a\n"))

	kept := "# T\n\n## Sources\n\nWhere the data came from.\n\n## Outlook\n\nMore."
	assert.Equal(t, kept, llm.StripTrailingReferences(kept))
}

func TestReferencesFallsBackToRequestedURL(t *testing.T) {
	refs := llm.References([]models.Source{{RequestedURL: "https://a.example/x"}})
	assert.Equal(t, "## References\n\n- [https://a.example/x](https://a.example/x)\n", refs)
}
