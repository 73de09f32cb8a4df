package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"invoicescan/constants"
	"invoicescan/internal/batch"
	"invoicescan/internal/common"
	"invoicescan/internal/export"
	"invoicescan/internal/ingest"
	"invoicescan/internal/llm/openai"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

func main() {
	var (
		dir    = flag.String("dir", "", "directory of invoice images to process (required)")
		out    = flag.String("out", "", "output file path (defaults next to --dir)")
		format = flag.String("format", "csv", "output format: csv, json, or xlsx")
	)
	flag.Parse()

	if *dir == "" {
		printError("Error: --dir is required\n")
		os.Exit(1)
	}
	switch *format {
	case "csv", "json", "xlsx":
	default:
		printError("Error: --format must be csv, json, or xlsx\n")
		os.Exit(1)
	}
	if *out == "" {
		*out = filepath.Join(filepath.Dir(*dir), "invoices."+*format)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	files, fileResults, _, err := ingest.NewLoader(logger).LoadDirectory(*dir)
	if err != nil {
		logger.Error("failed to read input directory", "dir", *dir, "error", err)
		os.Exit(1)
	}
	for _, r := range fileResults {
		if r.Err != "" {
			printError("  skipped %s: %s\n", r.Path, r.Err)
		}
	}
	if len(files) == 0 {
		printError("Error: no image files found under %s\n", *dir)
		os.Exit(1)
	}

	client := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	processor := batch.NewProcessor(client, logger,
		batch.WithInterRequestDelay(cfg.Batch.InterRequestDelay),
		batch.WithMaxAttempts(cfg.Batch.MaxAttempts),
		batch.WithBackoffBase(cfg.Batch.BackoffBase),
	)

	// Ctrl-C stops cleanly between files; completed results are kept.
	tok := batch.NewToken()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Warn("interrupt received, stopping after current file")
		tok.Stop()
	}()

	start := time.Now()
	results := processor.ProcessFiles(context.Background(), files, tok)

	bundle := export.ToExportBundle(results)
	var data []byte
	switch *format {
	case "csv":
		data = export.SerializeCSV(bundle)
	case "json":
		data, err = export.SerializeJSON(bundle)
	case "xlsx":
		data, err = export.SerializeXLSX(bundle)
	}
	if err != nil {
		logger.Error("failed to serialize export", "format", *format, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0644); err != nil {
		logger.Error("failed to write output file", "path", *out, "error", err)
		os.Exit(1)
	}

	succeeded, failed := 0, 0
	for _, r := range results {
		switch r.Status {
		case constants.FileStatusSuccess:
			succeeded++
		case constants.FileStatusError:
			failed++
			printError("  %s: %s\n", r.FileName, r.Error)
		}
		for _, w := range r.Warnings {
			printError("  warning: %s\n", w)
		}
	}

	logger.Info("batch complete",
		"files", len(files),
		"succeeded", succeeded,
		"failed", failed,
		"items", bundle.TotalItems,
		"output", *out,
		"elapsed_ms", time.Since(start).Milliseconds())

	fmt.Printf("Batch complete!\n")
	fmt.Printf("- Files processed: %d (%d failed)\n", len(files), failed)
	fmt.Printf("- Line items: %d\n", bundle.TotalItems)
	fmt.Printf("- Output: %s\n", *out)
}
