package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/gopnik-forensics/gopnik/pkg/processor"
)

// runBatch deidentifies every supported document in a directory.
func runBatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	profileName := fs.String("profile", "default", "redaction profile to apply")
	recursive := fs.Bool("recursive", false, "walk subdirectories too")
	continueOnError := fs.Bool("continue-on-error", false, "keep going past per-document failures")
	workers := fs.Int("workers", 0, "override the configured worker count")
	asJSON := fs.Bool("json", false, "print the full batch result as JSON")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: gopnik batch [flags] <directory>")
		return 2
	}
	dir := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if *workers > 0 {
		cfg.MaxWorkers = *workers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, stderr, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer p.close(context.Background())

	batch, err := p.processor.BatchProcess(ctx, dir, *profileName, processor.BatchOptions{
		ContinueOnError: *continueOnError,
		Recursive:       *recursive,
	})
	if errors.Is(err, context.Canceled) || (err != nil && ctx.Err() != nil) {
		fmt.Fprintln(stderr, "Interrupted")
		return 130
	}
	if batch == nil && err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(batch); encErr != nil {
			fmt.Fprintf(stderr, "Error: %v\n", encErr)
			return 1
		}
	} else {
		fmt.Fprintf(stdout, "Processed %d documents: %d succeeded, %d failed (%.0f%%)\n",
			batch.Total, batch.Succeeded, batch.Failed, batch.SuccessRate)
		for _, r := range batch.Results {
			if r == nil || r.Success {
				continue
			}
			fmt.Fprintf(stdout, "Failed: %s\n", firstOr(r.Errors, "unknown error"))
		}
	}

	if err != nil || batch.Failed > 0 {
		return 1
	}
	return 0
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
