// Package redact renders redactions into document pixels. Raster documents
// are repainted in place and re-encoded in their original format; PDFs are
// rasterized, repainted, and rebuilt page by page. Both paths produce
// irreversible output: no original bytes survive under a redaction box.
package redact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

// Statistics summarizes one redaction run.
type Statistics struct {
	TotalDetections    int              `json:"total_detections"`
	RedactedDetections int              `json:"redacted_detections"`
	SkippedDetections  int              `json:"skipped_detections"`
	ByType             map[pii.Type]int `json:"by_type"`
	ByPage             map[int]int      `json:"by_page"`
	Style              profile.Style    `json:"style"`
}

// Result is the outcome of a redaction run.
type Result struct {
	OutputPath string
	Statistics Statistics
	Warnings   []string
}

// Redactor applies profile-driven redactions to documents.
type Redactor struct {
	cfg *config.Config
	log *slog.Logger
}

// New builds a redactor.
func New(cfg *config.Config, log *slog.Logger) *Redactor {
	if log == nil {
		log = slog.Default()
	}
	return &Redactor{cfg: cfg, log: log}
}

// PreserveLayout reports that output documents keep the source geometry.
func (r *Redactor) PreserveLayout() bool { return true }

// Apply redacts the accepted detections into a new output document next to
// the input, named redacted_<original>. Per-page failures degrade to
// warnings; Apply fails only when no page could be redacted.
func (r *Redactor) Apply(ctx context.Context, doc *document.Document, detections []pii.Detection, prof *profile.Profile) (*Result, error) {
	style := prof.RedactionStyle
	if style == "" {
		style = profile.StyleSolidBlack
	}

	accepted, skipped := r.filter(detections, prof)

	// Detections pointing past the last page are skipped, not fatal.
	var warnings []string
	accepted, warnings = r.dropOffPage(accepted, doc.PageCount(), &skipped)

	stats := buildStats(accepted, len(skipped), style)

	outputPath := outputPathFor(doc.Path)

	// Nothing to redact: the output is a byte-for-byte copy of the input.
	if len(accepted) == 0 {
		if err := copyFile(doc.Path, outputPath); err != nil {
			return nil, document.NewProcessingError(document.StageRedact, doc.Path, err)
		}
		r.log.Info("no detections accepted, input copied",
			"document_id", doc.ID, "output", outputPath, "skipped", stats.SkippedDetections)
		return &Result{OutputPath: outputPath, Statistics: stats, Warnings: warnings}, nil
	}

	var err error
	switch doc.Format {
	case document.FormatPDF:
		var pdfWarnings []string
		pdfWarnings, err = r.redactPDF(ctx, doc, accepted, style, outputPath)
		warnings = append(warnings, pdfWarnings...)
	default:
		err = r.redactImage(doc, accepted, style, outputPath)
	}
	if err != nil {
		return nil, document.NewProcessingError(document.StageRedact, doc.Path, err)
	}

	r.log.Info("redaction applied",
		"document_id", doc.ID, "output", outputPath,
		"redacted", stats.RedactedDetections, "skipped", stats.SkippedDetections,
		"style", string(style))
	return &Result{OutputPath: outputPath, Statistics: stats, Warnings: warnings}, nil
}

// ReplaceText substitutes detected spans in extracted text with profile
// placeholders. Used when downstream consumers read text instead of pixels.
func (r *Redactor) ReplaceText(text string, detections []pii.Detection, prof *profile.Profile) string {
	accepted, _ := r.filter(detections, prof)
	return replaceSpans(text, accepted, prof)
}

// filter keeps detections whose type the profile enables and whose
// confidence clears the profile threshold.
func (r *Redactor) filter(detections []pii.Detection, prof *profile.Profile) (accepted, skipped []pii.Detection) {
	for _, d := range detections {
		if prof.IsEnabled(d.Type) && d.Confidence >= prof.ConfidenceThreshold {
			accepted = append(accepted, d)
		} else {
			skipped = append(skipped, d)
		}
	}
	return accepted, skipped
}

func buildStats(accepted []pii.Detection, skipped int, style profile.Style) Statistics {
	stats := Statistics{
		TotalDetections:    len(accepted) + skipped,
		RedactedDetections: len(accepted),
		SkippedDetections:  skipped,
		ByType:             map[pii.Type]int{},
		ByPage:             map[int]int{},
		Style:              style,
	}
	for _, d := range accepted {
		stats.ByType[d.Type]++
		stats.ByPage[d.PageNumber]++
	}
	return stats
}

// groupByPage buckets detections by page number.
func groupByPage(detections []pii.Detection) map[int][]pii.Detection {
	out := map[int][]pii.Detection{}
	for _, d := range detections {
		out[d.PageNumber] = append(out[d.PageNumber], d)
	}
	return out
}

// outputPathFor prefixes the file name so output lands beside the input.
func outputPathFor(inputPath string) string {
	dir, name := filepath.Split(inputPath)
	return filepath.Join(dir, "redacted_"+name)
}

// dropOffPage moves detections whose page exceeds the document onto the
// skipped list and reports one warning per dropped detection.
func (r *Redactor) dropOffPage(accepted []pii.Detection, pageCount int, skipped *[]pii.Detection) ([]pii.Detection, []string) {
	var (
		kept     []pii.Detection
		warnings []string
	)
	for _, d := range accepted {
		if d.PageNumber >= pageCount {
			*skipped = append(*skipped, d)
			w := fmt.Sprintf("detection %s on page %d skipped, document has %d pages",
				d.ID, d.PageNumber, pageCount)
			warnings = append(warnings, w)
			r.log.Warn("detection page out of range, skipping",
				"detection_id", d.ID, "page", d.PageNumber, "pages", pageCount)
			continue
		}
		kept = append(kept, d)
	}
	return kept, warnings
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
