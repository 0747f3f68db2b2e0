package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/gopnik-forensics/gopnik/pkg/analyzer"
	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/detect/cv"
	"github.com/gopnik-forensics/gopnik/pkg/detect/nlp"
	"github.com/gopnik-forensics/gopnik/pkg/integrity"
	"github.com/gopnik-forensics/gopnik/pkg/jobs"
	"github.com/gopnik-forensics/gopnik/pkg/observability"
	"github.com/gopnik-forensics/gopnik/pkg/processor"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
	"github.com/gopnik-forensics/gopnik/pkg/redact"
)

// pipeline is the composition root shared by the processing subcommands.
type pipeline struct {
	cfg       *config.Config
	processor *processor.Processor
	auditor   *audit.Logger
	profiles  *profile.Manager
	obs       *observability.Provider
	log       *slog.Logger
}

// loadConfig reads the config file when given, defaults otherwise.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildPipeline wires every pipeline stage from the configuration. Logs go
// to stderr so stdout stays machine-readable for --json output.
func buildPipeline(ctx context.Context, cfg *config.Config, stderr io.Writer, verbose bool) (*pipeline, error) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	auditor, err := audit.NewLogger(cfg, log)
	if err != nil {
		return nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.ServiceVersion = version
	if endpoint := os.Getenv("GOPNIK_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
		obsCfg.Enabled = true
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		_ = auditor.Close()
		return nil, err
	}

	detector := detect.NewHybrid(cfg, log, cv.New(log), nlp.New(log))
	profiles := profile.NewManager([]string{cfg.ProfilesDir}, log)
	proc := processor.New(
		cfg,
		analyzer.New(cfg, log),
		detector,
		redact.New(cfg, log),
		auditor,
		integrity.New(auditor.Signer(), log),
		profiles,
		obs,
		jobs.NewManager(log),
		log,
	)

	return &pipeline{
		cfg:       cfg,
		processor: proc,
		auditor:   auditor,
		profiles:  profiles,
		obs:       obs,
		log:       log,
	}, nil
}

func (p *pipeline) close(ctx context.Context) {
	if err := p.obs.Shutdown(ctx); err != nil {
		p.log.Warn("observability shutdown failed", "error", err)
	}
	if err := p.auditor.Close(); err != nil {
		p.log.Warn("audit close failed", "error", err)
	}
}
