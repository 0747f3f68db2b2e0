// Package cv implements the computer-vision detection engine: face
// detection with a pigo cascade, QR and barcode decoding, and an
// ink-density heuristic for handwritten signatures.
package cv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"

	pigo "github.com/esimov/pigo/core"

	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// maxAnalysisDim caps the longer side of the raster handed to the
// detectors; coordinates are mapped back to the original page afterwards.
const maxAnalysisDim = 1024

// Engine is the CV backend. Face detection stays disabled until a cascade
// model is configured; code and signature detection always run.
type Engine struct {
	log *slog.Logger

	classifier   *pigo.Pigo
	minFaceSize  int
	maxFaceSize  int
	minSigArea   int
	faceQuality  float32
	detectCodes  bool
	detectSigned bool
}

// New builds a CV engine with detection defaults.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		log:          log,
		minFaceSize:  40,
		maxFaceSize:  800,
		minSigArea:   1500,
		faceQuality:  5.0,
		detectCodes:  true,
		detectSigned: true,
	}
}

// SupportedTypes lists the visual categories this engine produces.
func (e *Engine) SupportedTypes() []pii.Type {
	return []pii.Type{pii.TypeFace, pii.TypeSignature, pii.TypeBarcode, pii.TypeQRCode}
}

// Configure applies engine options. Recognized keys: cascade_path (string),
// min_face_size, max_face_size, min_signature_area (int), detect_codes,
// detect_signatures (bool).
func (e *Engine) Configure(opts map[string]any) error {
	if path, ok := opts["cascade_path"].(string); ok && path != "" {
		model, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("cv: read cascade %s: %w", path, err)
		}
		classifier, err := pigo.NewPigo().Unpack(model)
		if err != nil {
			return fmt.Errorf("cv: unpack cascade %s: %w", path, err)
		}
		e.classifier = classifier
	}
	if v, ok := opts["min_face_size"].(int); ok {
		e.minFaceSize = v
	}
	if v, ok := opts["max_face_size"].(int); ok {
		e.maxFaceSize = v
	}
	if v, ok := opts["min_signature_area"].(int); ok {
		e.minSigArea = v
	}
	if v, ok := opts["detect_codes"].(bool); ok {
		e.detectCodes = v
	}
	if v, ok := opts["detect_signatures"].(bool); ok {
		e.detectSigned = v
	}
	return nil
}

// ModelInfo describes the engine for audit records.
func (e *Engine) ModelInfo() map[string]any {
	return map[string]any{
		"engine":        "cv",
		"face_cascade":  e.classifier != nil,
		"code_decoding": e.detectCodes,
		"signatures":    e.detectSigned,
	}
}

// DetectPII scans every page raster. Pages that cannot be rendered are
// skipped; detection proceeds on the rest.
func (e *Engine) DetectPII(ctx context.Context, in detect.Input) ([]pii.Detection, error) {
	if in.Render == nil {
		return nil, fmt.Errorf("cv: no raster source for document %s", in.Document.ID)
	}

	var out []pii.Detection
	for _, page := range in.Document.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := in.Render(page.PageNumber)
		if err != nil {
			e.log.Warn("page render failed, skipping",
				"document_id", in.Document.ID, "page", page.PageNumber, "error", err)
			continue
		}
		dets, err := e.detectPage(img, page.PageNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, dets...)
	}
	return out, nil
}

func (e *Engine) detectPage(img image.Image, page int) ([]pii.Detection, error) {
	scaled, scale := downscale(img, maxAnalysisDim)

	var out []pii.Detection
	if e.classifier != nil {
		faces, err := e.detectFaces(scaled, page, scale)
		if err != nil {
			return nil, err
		}
		out = append(out, faces...)
	}
	if e.detectCodes {
		out = append(out, e.detectCodesOnPage(scaled, page, scale)...)
	}
	if e.detectSigned {
		sigs, err := e.detectSignatures(scaled, page, scale)
		if err != nil {
			return nil, err
		}
		out = append(out, sigs...)
	}
	return out, nil
}
