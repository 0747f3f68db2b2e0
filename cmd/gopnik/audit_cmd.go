package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
)

// runAudit queries, exports, verifies, and prunes the audit trail.
func runAudit(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("audit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	operation := fs.String("operation", "", "filter by operation")
	documentID := fs.String("document", "", "filter by document id")
	userID := fs.String("user", "", "filter by user id")
	limit := fs.Int("limit", 50, "maximum records to return (0 = all)")
	since := fs.Duration("since", 0, "only records newer than this age, e.g. 24h")
	export := fs.String("export", "", "export format: json or csv")
	out := fs.String("out", "", "export destination file (default stdout)")
	verify := fs.Bool("verify", false, "verify every stored signature")
	cleanup := fs.Bool("cleanup", false, "delete records older than the retention window")
	if err := fs.Parse(args); err != nil {
		return 2
	}

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

	if *verify {
		valid, invalid, issues, err := auditor.ValidateAll()
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Verified %d records: %d valid, %d invalid\n", valid+invalid, valid, invalid)
		for _, issue := range issues {
			fmt.Fprintf(stdout, "Issue: %s\n", issue)
		}
		if invalid > 0 {
			return 1
		}
		return 0
	}

	if *cleanup {
		removed, err := auditor.CleanupOld(cfg.RetentionDays)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintf(stdout, "Removed %d records older than %d days\n", removed, cfg.RetentionDays)
		return 0
	}

	params := audit.QueryParams{
		Operation:  audit.Operation(*operation),
		DocumentID: *documentID,
		UserID:     *userID,
		Limit:      *limit,
	}
	if *since > 0 {
		params.From = time.Now().UTC().Add(-*since)
	}

	if *export != "" {
		return exportAudit(auditor, params, *export, *out, stdout, stderr)
	}

	logs, err := auditor.Query(params)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, l := range logs {
		fmt.Fprintf(stdout, "%s  %-20s %-8s doc=%s\n",
			l.Timestamp.Format(time.RFC3339), l.Operation, l.Level, l.DocumentID)
	}
	fmt.Fprintf(stdout, "%d records\n", len(logs))
	return 0
}

func exportAudit(auditor *audit.Logger, params audit.QueryParams, format, out string, stdout, stderr io.Writer) int {
	w := stdout
	if out != "" {
		f, err := os.Create(out)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	var err error
	switch format {
	case "json":
		err = auditor.ExportJSON(w, params)
	case "csv":
		err = auditor.ExportCSV(w, params)
	default:
		fmt.Fprintf(stderr, "Unknown export format: %s\n", format)
		return 2
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
