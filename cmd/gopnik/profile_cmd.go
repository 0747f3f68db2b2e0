package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

// runProfile manages redaction profiles.
func runProfile(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "Usage: gopnik profile <list|show|validate> [flags]")
		return 2
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("profile "+sub, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	manager := profile.NewManager([]string{cfg.ProfilesDir}, log)

	switch sub {
	case "list":
		return listProfiles(manager, stdout, stderr)
	case "show":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: gopnik profile show <name>")
			return 2
		}
		return showProfile(manager, fs.Arg(0), stdout, stderr)
	case "validate":
		if fs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: gopnik profile validate <name>")
			return 2
		}
		return validateProfile(manager, fs.Arg(0), stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown profile subcommand: %s\n", sub)
		return 2
	}
}

func listProfiles(manager *profile.Manager, stdout, _ io.Writer) int {
	names := manager.List()
	if len(names) == 0 {
		names = []string{"default"}
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintln(stdout, n)
	}
	return 0
}

func showProfile(manager *profile.Manager, name string, stdout, stderr io.Writer) int {
	p, err := manager.Load(name, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(p); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func validateProfile(manager *profile.Manager, name string, stdout, stderr io.Writer) int {
	p, err := manager.Load(name, true)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if issues := p.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintf(stdout, "Issue: %s\n", issue)
		}
		return 1
	}
	fmt.Fprintf(stdout, "Profile %s is valid\n", name)
	return 0
}
