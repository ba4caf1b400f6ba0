package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultOllamaURL = "http://localhost:11434"

type Config struct {
	LLM struct {
		BaseURL     string   `yaml:"base_url"`
		Model       string   `yaml:"model"`
		MaxTokens   int      `yaml:"max_tokens"`
		Temperature *float64 `yaml:"temperature"` // nil means unset
	} `yaml:"llm"`

	Fetcher struct {
		Timeout      time.Duration `yaml:"timeout"`
		RateLimit    float64       `yaml:"rate_limit"`
		Burst        int           `yaml:"burst"`
		UserAgent    string        `yaml:"user_agent"`
		MaxBodyBytes int64         `yaml:"max_body_bytes"`
	} `yaml:"fetcher"`

	Images struct {
		MinWidth     int      `yaml:"min_width"`
		MinHeight    int      `yaml:"min_height"`
		MaxImages    int      `yaml:"max_images"`
		DenyKeywords []string `yaml:"deny_keywords"`
	} `yaml:"images"`

	Summary struct {
		Timeout           time.Duration `yaml:"timeout"`
		InputChars        int           `yaml:"input_chars"`
		FallbackSentences int           `yaml:"fallback_sentences"`
		FallbackChars     int           `yaml:"fallback_chars"`
	} `yaml:"summary"`

	Synthesis struct {
		Timeout      time.Duration `yaml:"timeout"`
		MaxPoolItems int           `yaml:"max_pool_items"`
	} `yaml:"synthesis"`

	ImageSearch struct {
		Enabled    bool          `yaml:"enabled"`
		BaseURL    string        `yaml:"base_url"`
		MaxResults int           `yaml:"max_results"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"image_search"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"config.yaml",
			"config.yml",
			filepath.Join(os.Getenv("HOME"), ".config/linkpress/config.yaml"),
			"/etc/linkpress/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.LLM.BaseURL == "" {
		config.LLM.BaseURL = DefaultOllamaURL
	}
	if config.LLM.Model == "" {
		config.LLM.Model = "llama3"
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 4096
	}
	if config.LLM.Temperature == nil {
		temperature := 0.7
		config.LLM.Temperature = &temperature
	}

	if config.Fetcher.Timeout == 0 {
		config.Fetcher.Timeout = 10 * time.Second
	}
	if config.Fetcher.RateLimit == 0 {
		config.Fetcher.RateLimit = 4.0
	}
	if config.Fetcher.Burst == 0 {
		config.Fetcher.Burst = 4
	}
	if config.Fetcher.UserAgent == "" {
		config.Fetcher.UserAgent = "Mozilla/5.0 (compatible; linkpress/1.0)"
	}
	if config.Fetcher.MaxBodyBytes == 0 {
		config.Fetcher.MaxBodyBytes = 5 << 20
	}

	if config.Images.MinWidth == 0 {
		config.Images.MinWidth = 150
	}
	if config.Images.MinHeight == 0 {
		config.Images.MinHeight = 150
	}
	if config.Images.MaxImages == 0 {
		config.Images.MaxImages = 12
	}

	if config.Summary.Timeout == 0 {
		config.Summary.Timeout = 25 * time.Second
	}
	if config.Summary.InputChars == 0 {
		config.Summary.InputChars = 6000
	}
	if config.Summary.FallbackSentences == 0 {
		config.Summary.FallbackSentences = 4
	}
	if config.Summary.FallbackChars == 0 {
		config.Summary.FallbackChars = 700
	}

	if config.Synthesis.Timeout == 0 {
		config.Synthesis.Timeout = 90 * time.Second
	}
	if config.Synthesis.MaxPoolItems == 0 {
		config.Synthesis.MaxPoolItems = 24
	}

	if config.ImageSearch.BaseURL == "" {
		config.ImageSearch.BaseURL = "https://duckduckgo.com"
	}
	if config.ImageSearch.MaxResults == 0 {
		config.ImageSearch.MaxResults = 8
	}
	if config.ImageSearch.Timeout == 0 {
		config.ImageSearch.Timeout = 10 * time.Second
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("OLLAMA_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
		config.LLM.BaseURL = baseURL
	}
	if model := os.Getenv("LINKPRESS_MODEL"); model != "" {
		config.LLM.Model = model
	}
	if raw := os.Getenv("ENABLE_IMAGE_SEARCH"); raw != "" {
		if enabled, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			config.ImageSearch.Enabled = enabled
		}
	}
	if level := os.Getenv("LINKPRESS_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
}
