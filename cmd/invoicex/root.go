package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"invoicex/internal/config"
	"invoicex/internal/logging"
	"invoicex/internal/output"
	"invoicex/internal/parser"
	_ "invoicex/internal/parser/claude"
	_ "invoicex/internal/parser/gemini"
	_ "invoicex/internal/parser/openrouter"
	"invoicex/internal/pdftext"
	"invoicex/internal/service"
	"invoicex/internal/storage"
)

type flags struct {
	outputDir  string
	formats    []string
	provider   string
	model      string
	logLevel   string
	logFormat  string
	maxRetries int
	retryDelay time.Duration
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "invoicex [file]",
		Short: "Extract structured invoice data from an image or PDF",
		Long: `invoicex sends an invoice image or PDF to a vision-capable LLM and writes
the extracted vendor, client, totals and line items as JSON.

Supported inputs: .jpg .jpeg .png .gif .webp .pdf`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyFlags(cmd, &f, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			path := cfg.Input.DefaultFile
			if len(args) == 1 {
				path = args[0]
			}
			return run(cmd.Context(), cfg, path, cmd.ErrOrStderr(), cmd.OutOrStdout())
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "directory for result files (default from config, \"output\")")
	fs.StringSliceVarP(&f.formats, "format", "f", nil, "extra output formats: csv, xlsx (JSON is always written)")
	fs.StringVarP(&f.provider, "provider", "p", "", "model provider: openrouter, gemini, claude")
	fs.StringVarP(&f.model, "model", "m", "", "model name for the primary provider")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: console or json")
	fs.IntVar(&f.maxRetries, "max-retries", 0, "retries after a rate-limited request")
	fs.DurationVar(&f.retryDelay, "retry-delay", 0, "wait between rate-limit retries")
	return cmd
}

// applyFlags overrides config values with flags the user set explicitly.
func applyFlags(cmd *cobra.Command, f *flags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("output-dir") {
		cfg.Output.Dir = f.outputDir
	}
	if changed("format") {
		cfg.Output.Formats = f.formats
	}
	if changed("provider") && f.provider != cfg.Parser.Primary.Provider {
		// endpoint and models from the previous provider do not carry over
		cfg.Parser.Primary.Provider = f.provider
		cfg.Parser.Primary.BaseURL = ""
		cfg.Parser.Primary.DefaultModel = ""
		cfg.Parser.Primary.ImageModel = ""
		cfg.Parser.Primary.ApplyProviderDefaults()
	}
	if changed("model") {
		cfg.Parser.Primary.DefaultModel = f.model
	}
	if changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
	if changed("max-retries") {
		cfg.Retry.MaxRetries = f.maxRetries
	}
	if changed("retry-delay") {
		cfg.Retry.DelayMs = int(f.retryDelay.Milliseconds())
	}
}

func run(ctx context.Context, cfg *config.Config, path string, logOut, out io.Writer) error {
	logger, err := logging.New(logOut, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	extractor, err := parser.NewFromConfig(&cfg.Parser, parser.RetryPolicy{
		MaxRetries: cfg.Retry.MaxRetries,
		Delay:      cfg.Retry.Delay(),
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize parser: %w", err)
	}

	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	writer, err := output.NewWriter(cfg.Output, store, cfg.Storage.Prefix, logger)
	if err != nil {
		return err
	}

	svc := service.NewExtractionService(extractor, pdftext.NewExtractor(cfg.PDF.MaxTextChars), writer, service.Options{
		MaxFileBytes: cfg.Input.MaxBytes(),
		Logger:       logger,
	})

	res, err := svc.Run(ctx, path)
	if err != nil {
		return err
	}

	if !res.Valid {
		fmt.Fprintf(out, "Warning: invoice is missing required fields: %v\n", res.Missing)
	}
	fmt.Fprintf(out, "Invoice data saved to %s\n", res.OutputPath)
	for _, extra := range res.Files[1:] {
		fmt.Fprintf(out, "Also written: %s\n", extra)
	}
	for _, up := range res.Uploads {
		fmt.Fprintf(out, "Uploaded: %s\n", up.Location)
	}
	return nil
}
