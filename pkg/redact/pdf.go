package redact

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/disintegration/imaging"

	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
	"github.com/gopnik-forensics/gopnik/pkg/secureio"
)

// pdfRenderDPI matches the DPI the analyzer records for PDF pages, so
// detection coordinates land directly on the rendered rasters.
const pdfRenderDPI = 150

// redactPDF rasterizes each page, repaints the redaction regions, and
// rebuilds a PDF from the page images. Intermediate rasters contain
// unredacted PII, so they live in a shredded scratch directory. Pages that
// fail to render are dropped from the output with a warning.
func (r *Redactor) redactPDF(ctx context.Context, doc *document.Document, detections []pii.Detection, style profile.Style, outputPath string) ([]string, error) {
	f, err := fitz.New(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("redact: open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	pageCount := f.NumPage()
	byPage := groupByPage(detections)

	scratch, err := secureio.NewTempDir("", "redact-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = scratch.Close() }()

	var (
		pageFiles []string
		warnings  []string
	)
	for page := 0; page < pageCount; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := f.ImageDPI(page, pdfRenderDPI)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: render failed, page dropped: %v", page, err))
			continue
		}

		canvas := imaging.Clone(img)
		for _, d := range byPage[page] {
			applyStyle(canvas, d.BoundingBox, style)
		}

		pagePath := filepath.Join(scratch.Path(), fmt.Sprintf("page-%04d.png", page))
		out, err := os.Create(pagePath)
		if err != nil {
			return nil, fmt.Errorf("redact: write page raster: %w", err)
		}
		if err := png.Encode(out, canvas); err != nil {
			_ = out.Close()
			return nil, fmt.Errorf("redact: encode page %d: %w", page, err)
		}
		if err := out.Close(); err != nil {
			return nil, fmt.Errorf("redact: close page raster: %w", err)
		}
		pageFiles = append(pageFiles, pagePath)
	}

	if len(pageFiles) == 0 {
		return warnings, fmt.Errorf("redact: no pages could be rendered")
	}

	if err := api.ImportImagesFile(pageFiles, outputPath, nil, nil); err != nil {
		return warnings, fmt.Errorf("redact: rebuild pdf: %w", err)
	}
	if err := api.ValidateFile(outputPath, nil); err != nil {
		return warnings, fmt.Errorf("redact: output pdf invalid: %w", err)
	}
	return warnings, nil
}
