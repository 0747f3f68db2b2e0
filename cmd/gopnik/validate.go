package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/integrity"
)

// runValidate checks a redacted document against its audit record.
func runValidate(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	asJSON := fs.Bool("json", false, "print the report as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: gopnik validate [flags] <redacted-document>")
		return 2
	}
	path := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	auditor, err := audit.NewLogger(cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = auditor.Close() }()

	record, err := findRedactionRecord(auditor, path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	if record == nil {
		fmt.Fprintf(stderr, "Error: no redaction audit record found for %s\n", filepath.Base(path))
		return 1
	}

	report := integrity.New(auditor.Signer(), log).Validate(path, "", record)
	if _, err := auditor.LogValidation(documentIDOf(record), report.Valid(), map[string]any{
		"result": report.OverallResult,
		"issues": len(report.Issues),
	}); err != nil {
		log.Warn("failed to audit validation", "error", err)
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
	} else {
		fmt.Fprintf(stdout, "Result: %s\n", report.OverallResult)
		for _, issue := range report.Issues {
			fmt.Fprintf(stdout, "[%s] %s: %s\n", issue.Severity, issue.Category, issue.Message)
		}
	}

	if !report.Valid() {
		return 1
	}
	return 0
}

// findRedactionRecord returns the most recent redaction log naming the file,
// or nil when none exists.
func findRedactionRecord(auditor *audit.Logger, path string) (*audit.Log, error) {
	logs, err := auditor.Query(audit.QueryParams{Operation: audit.OpDocumentRedaction})
	if err != nil {
		return nil, err
	}
	var latest *audit.Log
	for _, l := range logs {
		if len(l.FilePaths) == 0 || filepath.Base(l.FilePaths[0]) != filepath.Base(path) {
			continue
		}
		if latest == nil || l.Timestamp.After(latest.Timestamp) {
			latest = l
		}
	}
	return latest, nil
}

func documentIDOf(record *audit.Log) string {
	if record == nil {
		return ""
	}
	return record.DocumentID
}
