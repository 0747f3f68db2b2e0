// Command gopnik deidentifies documents: it detects PII with the hybrid
// CV/NLP engine, redacts it in place-preserving fashion, and records every
// step in a signed audit trail.
package main

import (
	"fmt"
	"io"
	"os"
)

const version = "1.0.0"

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run dispatches to the subcommands. Exposed for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "process":
		return runProcess(args[2:], stdout, stderr)
	case "batch":
		return runBatch(args[2:], stdout, stderr)
	case "validate":
		return runValidate(args[2:], stdout, stderr)
	case "profile":
		return runProfile(args[2:], stdout, stderr)
	case "audit":
		return runAudit(args[2:], stdout, stderr)
	case "version", "--version", "-v":
		fmt.Fprintf(stdout, "gopnik %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "gopnik — forensic-grade document deidentification")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  gopnik <command> [flags]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "PROCESSING:")
	printCommand(w, "process", "Deidentify one document (--profile, --config, --json)")
	printCommand(w, "batch", "Deidentify a directory (--recursive, --continue-on-error)")
	printCommand(w, "validate", "Verify a redacted document against its audit record")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "MANAGEMENT:")
	printCommand(w, "profile", "Manage redaction profiles (list|show|validate)")
	printCommand(w, "audit", "Query and export the audit trail (--export, --cleanup)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "UTILITIES:")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
}

func printCommand(w io.Writer, name, description string) {
	fmt.Fprintf(w, "  %-12s %s\n", name, description)
}
