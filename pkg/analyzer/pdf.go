package analyzer

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"

	"github.com/gopnik-forensics/gopnik/pkg/document"
)

// analyzePDF decodes every page of a PDF. Pages that fail to decode are
// reported as warnings; the remaining pages are renumbered 0..n-1 so the
// page sequence invariant holds even after a partial decode.
func (a *Analyzer) analyzePDF(doc *document.Document) ([]string, error) {
	f, err := fitz.New(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("analyzer: open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	var warnings []string
	textPages := 0
	for i := 0; i < f.NumPage(); i++ {
		bounds, err := f.Bound(i)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: bounds unreadable: %v", i, err))
			continue
		}
		text, err := f.Text(i)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: text extraction failed: %v", i, err))
			text = ""
		}
		if hasText(text) {
			textPages++
		}

		// Bounds are in points (72/in); scale to the render DPI so page
		// geometry matches the rasters handed to the CV engine.
		scale := float64(defaultPDFDPI) / 72.0
		doc.Pages = append(doc.Pages, document.Page{
			PageNumber: len(doc.Pages),
			Width:      int(float64(bounds.Dx())*scale + 0.5),
			Height:     int(float64(bounds.Dy())*scale + 0.5),
			DPI:        defaultPDFDPI,
			// MuPDF applies the /Rotate page transform before reporting
			// bounds or rendering, so recorded geometry is already upright
			// and the residual rotation is always zero.
			Rotation:    0,
			TextContent: text,
		})
	}

	for k, v := range f.Metadata() {
		if v != "" {
			doc.Metadata[k] = v
		}
	}
	doc.Metadata["text_pages"] = textPages
	return warnings, nil
}

// renderPDFPage rasterizes one page at the given DPI.
func renderPDFPage(path string, pageNumber int, dpi int) (image.Image, error) {
	f, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("analyzer: open pdf: %w", err)
	}
	defer func() { _ = f.Close() }()

	if pageNumber < 0 || pageNumber >= f.NumPage() {
		return nil, fmt.Errorf("analyzer: page %d out of range [0,%d)", pageNumber, f.NumPage())
	}
	img, err := f.ImageDPI(pageNumber, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("analyzer: render page %d: %w", pageNumber, err)
	}
	return img, nil
}
