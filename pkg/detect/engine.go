// Package detect defines the detection engine contract and the hybrid
// orchestrator that runs computer-vision and NLP engines side by side,
// cross-validates their output, and produces one ranked detection set.
package detect

import (
	"context"
	"image"

	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Input is what an engine sees for one document. Render is a lazy page
// rasterizer; engines that only read text may ignore it, and it may be nil
// when no raster source is available.
type Input struct {
	Document *document.Document
	Render   func(page int) (image.Image, error)
}

// Engine is one detection backend.
type Engine interface {
	// DetectPII scans the document and returns all candidate detections.
	DetectPII(ctx context.Context, in Input) ([]pii.Detection, error)
	// SupportedTypes lists the PII categories this engine can produce.
	SupportedTypes() []pii.Type
	// Configure applies engine-specific options.
	Configure(opts map[string]any) error
	// ModelInfo describes the engine and its models for audit records.
	ModelInfo() map[string]any
}
