package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
)

// FallbackModels is served when the runtime cannot be asked.
var FallbackModels = []string{"llama3", "gemma2"}

// ModelLister queries the OpenAI-compatible model listing that Ollama
// exposes under /v1.
type ModelLister struct {
	client *openai.Client
}

func NewModelLister(baseURL string, httpClient *http.Client) *ModelLister {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	config := openai.DefaultConfig("ollama")
	config.BaseURL = strings.TrimRight(baseURL, "/") + "/v1"
	if httpClient != nil {
		config.HTTPClient = httpClient
	}
	return &ModelLister{client: openai.NewClientWithConfig(config)}
}

func (l *ModelLister) List(ctx context.Context) ([]string, error) {
	resp, err := l.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}

	ids := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids, nil
}

// ListWithFallback never fails: errors and empty listings yield
// FallbackModels.
func (l *ModelLister) ListWithFallback(ctx context.Context) []string {
	ids, err := l.List(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("model listing unavailable, using fallback list")
	}
	if len(ids) == 0 {
		return append([]string(nil), FallbackModels...)
	}
	return ids
}
