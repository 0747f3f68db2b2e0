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
)

// runProcess deidentifies a single document.
func runProcess(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	profileName := fs.String("profile", "default", "redaction profile to apply")
	asJSON := fs.Bool("json", false, "print the full result as JSON")
	verbose := fs.Bool("verbose", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: gopnik process [flags] <document>")
		return 2
	}
	inputPath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p, err := buildPipeline(ctx, cfg, stderr, *verbose)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer p.close(context.Background())

	result, err := p.processor.ProcessDocument(ctx, inputPath, *profileName)
	if errors.Is(err, context.Canceled) || (err != nil && ctx.Err() != nil) {
		fmt.Fprintln(stderr, "Interrupted")
		return 130
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	fmt.Fprintf(stdout, "Redacted: %s\n", result.OutputPath)
	fmt.Fprintf(stdout, "Detections: %d across %d pages\n",
		result.Metrics.DetectionCount, result.Metrics.PagesProcessed)
	fmt.Fprintf(stdout, "Duration: %.2fs\n", result.Metrics.TotalTime)
	for _, w := range result.Warnings {
		fmt.Fprintf(stdout, "Warning: %s\n", w)
	}
	return 0
}
