// Package config defines the engine configuration. Options are enumerated
// explicitly; unknown keys in a config file are rejected at load time.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure in this package.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the core-relevant option set.
type Config struct {
	// Document intake.
	MaxFileSize      int64    `yaml:"max_file_size"`     // bytes; default 100 MiB
	SupportedFormats []string `yaml:"supported_formats"` // whitelisted extensions

	// Hybrid detection thresholds.
	MinConfidence        float64 `yaml:"min_confidence"`
	MergeIoU             float64 `yaml:"merge_iou"`
	CrossIoU             float64 `yaml:"cross_iou"`
	MaxDetectionsPerType int     `yaml:"max_detections_per_type"`
	ConfidenceBoost      float64 `yaml:"confidence_boost"`

	// Audit policy.
	RetentionDays  int  `yaml:"retention_days"`
	SigningEnabled bool `yaml:"signing_enabled"`
	AutoSign       bool `yaml:"auto_sign"`

	// Storage layout.
	StorageDir  string `yaml:"storage_dir"`
	ProfilesDir string `yaml:"profiles_dir"`

	// Batch processing.
	MaxWorkers   int           `yaml:"max_workers"`
	StageTimeout time.Duration `yaml:"stage_timeout"` // 0 disables deadlines
}

// Default returns the documented defaults.
func Default() *Config {
	return &Config{
		MaxFileSize:          100 << 20,
		SupportedFormats:     []string{".pdf", ".png", ".jpg", ".jpeg", ".tiff", ".bmp"},
		MinConfidence:        0.5,
		MergeIoU:             0.5,
		CrossIoU:             0.3,
		MaxDetectionsPerType: 10,
		ConfidenceBoost:      0.1,
		RetentionDays:        365,
		SigningEnabled:       true,
		AutoSign:             true,
		StorageDir:           "storage",
		ProfilesDir:          "storage/profiles",
		MaxWorkers:           4,
	}
}

// Load reads a YAML config file over the defaults. Unknown keys fail the
// load so typos never silently disable an option.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks option ranges.
func (c *Config) Validate() error {
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("%w: max_file_size must be positive", ErrInvalidConfig)
	}
	if len(c.SupportedFormats) == 0 {
		return fmt.Errorf("%w: supported_formats must not be empty", ErrInvalidConfig)
	}
	for _, ratio := range []struct {
		name  string
		value float64
	}{
		{"min_confidence", c.MinConfidence},
		{"merge_iou", c.MergeIoU},
		{"cross_iou", c.CrossIoU},
		{"confidence_boost", c.ConfidenceBoost},
	} {
		if ratio.value < 0 || ratio.value > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrInvalidConfig, ratio.name, ratio.value)
		}
	}
	if c.MaxDetectionsPerType <= 0 {
		return fmt.Errorf("%w: max_detections_per_type must be positive", ErrInvalidConfig)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("%w: retention_days must not be negative", ErrInvalidConfig)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("%w: max_workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// SupportsExtension reports whether ext (with leading dot, any case) is
// whitelisted.
func (c *Config) SupportsExtension(ext string) bool {
	for _, e := range c.SupportedFormats {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
