package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrEmptyResponse is returned when the model answers with no text.
var ErrEmptyResponse = errors.New("empty response from model")

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	BaseURL     string       // Ollama server URL
	HTTPClient  *http.Client // shared outbound client, optional
}

// ChatEngine sends single-turn completions to an LLM runtime.
type ChatEngine struct {
	config ChatConfig
	llm    llms.Model
}

// NewWithConfig creates a new ChatEngine backed by Ollama.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}

	opts := []ollama.Option{
		ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL),
	}
	if config.HTTPClient != nil {
		opts = append(opts, ollama.WithHTTPClient(config.HTTPClient))
	}

	llm, err := ollama.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config: config,
		llm:    llm,
	}, nil
}

// NewWithModel wraps an existing llms.Model.
func NewWithModel(config ChatConfig, model llms.Model) (*ChatEngine, error) {
	config, err := withDefaults(config)
	if err != nil {
		return nil, err
	}
	return &ChatEngine{config: config, llm: model}, nil
}

func withDefaults(config ChatConfig) (ChatConfig, error) {
	if config.Model == "" {
		config.Model = "llama3"
	}
	if config.Temperature < 0 || config.Temperature > 2 {
		return config, fmt.Errorf("temperature must be between 0 and 2")
	}
	if config.MaxTokens < 0 {
		return config, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 4096
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	return config, nil
}

// Complete runs one system+user exchange against model (the configured
// model when blank) and returns the trimmed reply. maxTokens overrides the
// configured output budget when positive.
func (ce *ChatEngine) Complete(ctx context.Context, model, system, prompt string, maxTokens int) (string, error) {
	if model == "" {
		model = ce.config.Model
	}
	if maxTokens <= 0 {
		maxTokens = ce.config.MaxTokens
	}

	ctx, span := otel.Tracer("linkpress/llm").Start(ctx, "llm.complete", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.Int("llm.prompt_chars", len(prompt)),
		attribute.Int("llm.max_tokens", maxTokens),
	)

	content := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	response, err := ce.llm.GenerateContent(ctx, content,
		llms.WithModel(model),
		llms.WithTemperature(ce.config.Temperature),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generate content")
		return "", fmt.Errorf("chat error: %w", err)
	}

	if response == nil {
		return "", ErrEmptyResponse
	}

	var b strings.Builder
	for _, choice := range response.Choices {
		if choice != nil && choice.Content != "" {
			b.WriteString(choice.Content)
		}
	}

	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
