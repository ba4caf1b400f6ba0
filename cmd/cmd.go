package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/xhad/linkpress/internal/models"
	cfgPkg "github.com/xhad/linkpress/pkg/config"
	"github.com/xhad/linkpress/pkg/imagesearch"
	"github.com/xhad/linkpress/pkg/llm"
	"github.com/xhad/linkpress/pkg/metrics"
	"github.com/xhad/linkpress/pkg/pipeline"
	"github.com/xhad/linkpress/pkg/processor"
	"github.com/xhad/linkpress/pkg/scraper"
	"github.com/xhad/linkpress/pkg/transport"
)

type rootOptions struct {
	configPath string
	ollamaURL  string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "linkpress",
		Short:         "Turn a handful of links into one publish-ready Markdown article",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file")
	root.PersistentFlags().StringVar(&opts.ollamaURL, "ollama-url", "", "Ollama server URL")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	root.AddCommand(newGenerateCmd(opts), newModelsCmd(opts))
	return root
}

// load resolves configuration: .env, then the config file, then
// environment, then flags.
func (o *rootOptions) load() (*cfgPkg.Config, zerolog.Logger, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := cfgPkg.LoadConfig(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.ollamaURL != "" {
		cfg.LLM.BaseURL = o.ollamaURL
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		msgs := make([]string, 0, len(errs))
		for _, e := range errs {
			msgs = append(msgs, e.Error())
		}
		return nil, zerolog.Nop(), fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
	}

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().
		Timestamp().
		Logger()

	return cfg, logger, nil
}

type generateOptions struct {
	model        string
	instructions string
	maxWords     int
	labels       []string
	imageSearch  bool
	jsonOutput   bool
	outPath      string
	metricsPath  string
}

func newGenerateCmd(root *rootOptions) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <url>...",
		Short: "Fetch, summarize and synthesize the given URLs into one article",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("image-search") {
				cfg.ImageSearch.Enabled = opts.imageSearch
			}
			if opts.model == "" {
				opts.model = cfg.LLM.Model
			}

			reg := prometheus.NewRegistry()
			p, err := buildPipeline(cfg, metrics.New(reg))
			if err != nil {
				return err
			}

			ctx := logger.WithContext(cmd.Context())
			spinner := getSpinner(fmt.Sprintf("Generating article from %d sources...", len(args)))
			result, err := p.Generate(ctx, models.GenerationRequest{
				URLs:         args,
				Model:        opts.model,
				Instructions: opts.instructions,
				MaxWords:     opts.maxWords,
				SourceLabels: opts.labels,
			})
			spinner.Finish()
			if err != nil {
				return err
			}

			printStatuses(cmd.ErrOrStderr(), result)

			if err := writeResult(cmd.OutOrStdout(), opts, result); err != nil {
				return err
			}

			if opts.metricsPath != "" {
				if err := metrics.WriteTextfile(opts.metricsPath, reg); err != nil {
					return fmt.Errorf("failed to write metrics: %w", err)
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "LLM model to use (defaults to llm.model)")
	flags.StringVarP(&opts.instructions, "instructions", "i", "", "Editorial order for the article")
	flags.IntVarP(&opts.maxWords, "max-words", "w", 0, "Upper bound on article length (200-4000)")
	flags.StringArrayVarP(&opts.labels, "label", "l", nil, "Title override per URL, in URL order")
	flags.BoolVar(&opts.imageSearch, "image-search", false, "Add web image search results to the image pool")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print the full result as JSON")
	flags.StringVarP(&opts.outPath, "out", "o", "", "Write the output to a file instead of stdout")
	flags.StringVar(&opts.metricsPath, "metrics-out", "", "Write Prometheus metrics to a textfile")

	return cmd
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models available on the LLM runtime",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := root.load()
			if err != nil {
				return err
			}

			client := transport.NewClient(transport.ClientConfig{UserAgent: cfg.Fetcher.UserAgent})
			lister := llm.NewModelLister(cfg.LLM.BaseURL, client)

			ctx := logger.WithContext(cmd.Context())
			for _, id := range lister.ListWithFallback(ctx) {
				if id == cfg.LLM.Model {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", id, color.GreenString("(default)"))
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

// buildPipeline wires every stage to one shared outbound client.
func buildPipeline(cfg *cfgPkg.Config, m *metrics.Metrics) (*pipeline.Pipeline, error) {
	client := transport.NewClient(transport.ClientConfig{UserAgent: cfg.Fetcher.UserAgent})

	text := processor.NewWithConfig(processor.ProcessorConfig{
		InputChars:        cfg.Summary.InputChars,
		FallbackSentences: cfg.Summary.FallbackSentences,
		FallbackChars:     cfg.Summary.FallbackChars,
	})

	fetcher := scraper.NewWithConfig(scraper.ScraperConfig{
		Timeout:      cfg.Fetcher.Timeout,
		RateLimit:    cfg.Fetcher.RateLimit,
		Burst:        cfg.Fetcher.Burst,
		MaxBodyBytes: cfg.Fetcher.MaxBodyBytes,
		Images: scraper.ImagePolicy{
			MinWidth:     cfg.Images.MinWidth,
			MinHeight:    cfg.Images.MinHeight,
			MaxImages:    cfg.Images.MaxImages,
			DenyKeywords: cfg.Images.DenyKeywords,
		},
	}, client)

	chatEngine, err := llm.NewWithConfig(llm.ChatConfig{
		Model:       cfg.LLM.Model,
		Temperature: *cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		BaseURL:     cfg.LLM.BaseURL,
		HTTPClient:  client,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize chat engine: %w", err)
	}

	search := imagesearch.NewClient(imagesearch.ClientConfig{
		Enabled:    cfg.ImageSearch.Enabled,
		BaseURL:    cfg.ImageSearch.BaseURL,
		MaxResults: cfg.ImageSearch.MaxResults,
		Timeout:    cfg.ImageSearch.Timeout,
	}, client)

	return pipeline.New(pipeline.PipelineConfig{
		MaxPoolItems: cfg.Synthesis.MaxPoolItems,
	}, pipeline.Stages{
		Fetcher:       fetcher,
		Summarizer:    llm.NewSummarizer(chatEngine, text, cfg.Summary.Timeout),
		Synthesizer:   llm.NewSynthesizer(chatEngine, text, cfg.Synthesis.Timeout),
		ImageSearcher: search,
	}, text, m), nil
}

func printStatuses(w io.Writer, result *models.GenerationResult) {
	for i, status := range result.SourceStatuses {
		mark := color.GreenString("✓")
		switch status {
		case models.StatusDegraded:
			mark = color.YellowString("~")
		case models.StatusFailed:
			mark = color.RedString("✗")
		}
		fmt.Fprintf(w, "%s %s (%s)\n", mark, result.SourceTitles[i], result.SourceURLs[i])
	}
}

func writeResult(stdout io.Writer, opts *generateOptions, result *models.GenerationResult) error {
	out := []byte(result.Markdown)
	if opts.jsonOutput {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		out = append(data, '\n')
	}

	if opts.outPath == "" {
		_, err := stdout.Write(out)
		return err
	}

	if err := os.WriteFile(opts.outPath, out, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.outPath, err)
	}
	color.Green("✓ Wrote %s", opts.outPath)
	return nil
}
