// Package analyzer decodes input documents into the page model consumed by
// detection and redaction. PDFs are decoded with MuPDF (go-fitz); raster
// images are treated as single-page documents.
package analyzer

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/document"
)

// Typed validation failures. All are wrapped in a document.ProcessingError
// with stage "analyze".
var (
	ErrNotFound          = errors.New("analyzer: document does not exist")
	ErrEmptyFile         = errors.New("analyzer: document is empty")
	ErrTooLarge          = errors.New("analyzer: document exceeds max file size")
	ErrUnsupportedFormat = errors.New("analyzer: unsupported document format")
)

const (
	defaultPDFDPI   = 150
	defaultImageDPI = 72

	// Page dimensions within this relative tolerance count as consistent.
	pageSizeTolerance = 0.01
)

// Analyzer decodes and inspects documents.
type Analyzer struct {
	cfg *config.Config
	log *slog.Logger
}

// New builds an analyzer. A nil logger falls back to slog.Default().
func New(cfg *config.Config, log *slog.Logger) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{cfg: cfg, log: log}
}

// IsSupported reports whether the file extension is whitelisted.
func (a *Analyzer) IsSupported(path string) bool {
	return a.cfg.SupportsExtension(filepath.Ext(path))
}

// Analyze validates, decodes, and measures the document at path. Partial
// decodes (some pages unreadable) return the document together with
// warnings; a document with zero decodable pages is an error.
func (a *Analyzer) Analyze(path string) (*document.Document, []string, error) {
	if err := a.validate(path); err != nil {
		return nil, nil, document.NewProcessingError(document.StageAnalyze, path, err)
	}

	doc := document.New(path)
	var warnings []string
	var err error

	switch doc.Format {
	case document.FormatPDF:
		warnings, err = a.analyzePDF(doc)
	default:
		err = a.analyzeImage(doc)
	}
	if err != nil {
		return nil, nil, document.NewProcessingError(document.StageAnalyze, path, err)
	}
	if len(doc.Pages) == 0 {
		return nil, nil, document.NewProcessingError(document.StageAnalyze, path,
			fmt.Errorf("analyzer: no pages decoded"))
	}

	a.attachDocumentMetadata(doc)
	if _, err := doc.ComputeHash(); err != nil {
		warnings = append(warnings, fmt.Sprintf("hash failed: %v", err))
	}

	a.log.Info("document analyzed",
		"path", path, "format", string(doc.Format), "pages", doc.PageCount(),
		"warnings", len(warnings))
	return doc, warnings, nil
}

// ExtractPages decodes only the page structure.
func (a *Analyzer) ExtractPages(path string) ([]document.Page, error) {
	doc, _, err := a.Analyze(path)
	if err != nil {
		return nil, err
	}
	return doc.Pages, nil
}

// Metadata returns document-level metadata without retaining the page data.
func (a *Analyzer) Metadata(path string) (map[string]any, error) {
	doc, _, err := a.Analyze(path)
	if err != nil {
		return nil, err
	}
	return doc.Metadata, nil
}

// PageImage renders the raster of a single page for the CV detector.
func (a *Analyzer) PageImage(path string, pageNumber int) (image.Image, error) {
	if document.FormatFromPath(path) == document.FormatPDF {
		return renderPDFPage(path, pageNumber, defaultPDFDPI)
	}
	if pageNumber != 0 {
		return nil, fmt.Errorf("analyzer: image documents have a single page, got %d", pageNumber)
	}
	img, _, err := decodeImageFile(path)
	return img, err
}

func (a *Analyzer) validate(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return ErrNotFound
	}
	if info.Size() == 0 {
		return ErrEmptyFile
	}
	if info.Size() > a.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}
	if !a.IsSupported(path) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return nil
}

// attachDocumentMetadata records size-consistency and orientation across the
// decoded pages.
func (a *Analyzer) attachDocumentMetadata(doc *document.Document) {
	if doc.Metadata == nil {
		doc.Metadata = map[string]any{}
	}

	consistent := true
	first := doc.Pages[0]
	portrait, landscape := 0, 0
	for _, p := range doc.Pages {
		if !withinTolerance(p.Width, first.Width) || !withinTolerance(p.Height, first.Height) {
			consistent = false
		}
		if p.Height >= p.Width {
			portrait++
		} else {
			landscape++
		}
	}

	orientation := "mixed"
	switch {
	case portrait == len(doc.Pages):
		orientation = "portrait"
	case landscape == len(doc.Pages):
		orientation = "landscape"
	}

	doc.Metadata["consistent_page_sizes"] = consistent
	doc.Metadata["orientation"] = orientation
	doc.Metadata["page_count"] = doc.PageCount()
}

func withinTolerance(v, ref int) bool {
	if ref == 0 {
		return v == 0
	}
	diff := float64(v-ref) / float64(ref)
	if diff < 0 {
		diff = -diff
	}
	return diff <= pageSizeTolerance
}

func hasText(s string) bool { return strings.TrimSpace(s) != "" }
