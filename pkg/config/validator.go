package config

import (
	"fmt"
	"net/url"

	"github.com/rs/zerolog"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate LLM config
	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "Ollama base URL is required",
		})
	} else if !isHTTPURL(c.LLM.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid Ollama base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 32768",
		})
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	// Validate Fetcher config
	if c.Fetcher.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.timeout",
			Message: "timeout must be positive",
		})
	}

	if c.Fetcher.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Fetcher.MaxBodyBytes < 1024 {
		errors = append(errors, ValidationError{
			Field:   "fetcher.max_body_bytes",
			Message: "max_body_bytes must be at least 1024",
		})
	}

	// Validate image filter policy
	if c.Images.MinWidth < 0 || c.Images.MinHeight < 0 {
		errors = append(errors, ValidationError{
			Field:   "images.min_width",
			Message: "minimum dimensions cannot be negative",
		})
	}

	if c.Images.MaxImages < 1 {
		errors = append(errors, ValidationError{
			Field:   "images.max_images",
			Message: "max_images must be positive",
		})
	}

	// Validate Summary config
	if c.Summary.Timeout <= 0 || c.Synthesis.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "summary.timeout",
			Message: "LLM timeouts must be positive",
		})
	}

	if c.Summary.InputChars < 200 {
		errors = append(errors, ValidationError{
			Field:   "summary.input_chars",
			Message: "input_chars must be at least 200",
		})
	}

	if c.Summary.FallbackSentences < 1 || c.Summary.FallbackChars < 1 {
		errors = append(errors, ValidationError{
			Field:   "summary.fallback_sentences",
			Message: "fallback budgets must be positive",
		})
	}

	// Validate image search config
	if c.ImageSearch.Enabled && !isHTTPURL(c.ImageSearch.BaseURL) {
		errors = append(errors, ValidationError{
			Field:   "image_search.base_url",
			Message: "invalid image search base URL",
		})
	}

	if c.ImageSearch.MaxResults < 1 || c.ImageSearch.MaxResults > 8 {
		errors = append(errors, ValidationError{
			Field:   "image_search.max_results",
			Message: "max_results must be between 1 and 8",
		})
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errors = append(errors, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("unknown log level: %s", c.Log.Level),
		})
	}

	return errors
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
