// Package nlp implements the text detection engine: calibrated regex
// families for structured PII, statistical named-entity recognition for
// person names and addresses, and Indic-script heuristics. Detections carry
// synthesized page coordinates derived from line positions.
package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	prose "github.com/jdkato/prose/v2"

	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

const (
	// nerNameConfidence gates statistical entities; tags below it are noise.
	nerNameConfidence    = 0.70
	nerAddressConfidence = 0.65

	// proximityGap is the horizontal pixel gap under which two same-type
	// fragments on one line merge into a single detection.
	proximityGap = 40

	// duplicateIoU removes overlapping hits from different matchers.
	duplicateIoU = 0.5
)

// Engine is the NLP backend.
type Engine struct {
	log       *slog.Logger
	enableNER bool
}

// New builds an NLP engine with NER enabled.
func New(log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{log: log, enableNER: true}
}

// SupportedTypes lists the text categories this engine produces.
func (e *Engine) SupportedTypes() []pii.Type {
	return []pii.Type{
		pii.TypeName, pii.TypeEmail, pii.TypePhone, pii.TypeAddress,
		pii.TypeSSN, pii.TypeCreditCard, pii.TypeDateOfBirth, pii.TypeIPAddress,
	}
}

// Configure applies engine options. Recognized keys: enable_ner (bool).
func (e *Engine) Configure(opts map[string]any) error {
	if v, ok := opts["enable_ner"].(bool); ok {
		e.enableNER = v
	}
	return nil
}

// ModelInfo describes the engine for audit records.
func (e *Engine) ModelInfo() map[string]any {
	return map[string]any{
		"engine":   "nlp",
		"ner":      e.enableNER,
		"patterns": len(allMatchers),
	}
}

// DetectPII scans the extracted text of every page. Pages without text are
// skipped.
func (e *Engine) DetectPII(ctx context.Context, in detect.Input) ([]pii.Detection, error) {
	var out []pii.Detection
	for _, page := range in.Document.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if strings.TrimSpace(page.TextContent) == "" {
			continue
		}
		dets, err := e.detectPage(page)
		if err != nil {
			return nil, err
		}
		out = append(out, dets...)
	}
	return out, nil
}

func (e *Engine) detectPage(page document.Page) ([]pii.Detection, error) {
	lines := strings.Split(page.TextContent, "\n")

	var dets []pii.Detection
	for lineIdx, line := range lines {
		lineLen := len([]rune(line))
		for _, m := range allMatchers {
			for _, hit := range m(line) {
				det, err := e.toDetection(hit, page, len(lines), lineIdx, lineLen)
				if err != nil {
					continue
				}
				dets = append(dets, det)
			}
		}
	}

	if e.enableNER {
		nerDets, err := e.detectEntities(page, lines)
		if err != nil {
			e.log.Warn("ner failed, pattern results only",
				"page", page.PageNumber, "error", err)
		} else {
			dets = append(dets, nerDets...)
		}
	}

	dets = mergeAdjacent(dets)
	col := pii.NewCollection("", dets...).Deduplicate(duplicateIoU)
	return col.Detections, nil
}

func (e *Engine) toDetection(hit match, page document.Page, lineCount, lineIdx, lineLen int) (pii.Detection, error) {
	box := synthesizeBox(page.Width, page.Height, lineCount, lineIdx, lineLen, hit.start, hit.end)
	det, err := pii.NewDetection(hit.typ, box, clamp01(hit.confidence), page.PageNumber, pii.MethodNLP)
	if err != nil {
		return pii.Detection{}, err
	}
	det.TextContent = hit.text
	for k, v := range hit.metadata {
		det = det.WithMetadata(k, v)
	}
	return det.WithMetadata("source", "pattern"), nil
}

// detectEntities runs statistical NER over the page text and maps person
// and place entities back onto their lines.
func (e *Engine) detectEntities(page document.Page, lines []string) ([]pii.Detection, error) {
	doc, err := prose.NewDocument(page.TextContent)
	if err != nil {
		return nil, fmt.Errorf("nlp: tokenize page %d: %w", page.PageNumber, err)
	}

	var out []pii.Detection
	for _, ent := range doc.Entities() {
		var (
			typ  pii.Type
			conf float64
		)
		switch ent.Label {
		case "PERSON":
			typ, conf = pii.TypeName, nerNameConfidence
		case "GPE", "LOC", "FAC":
			typ, conf = pii.TypeAddress, nerAddressConfidence
		default:
			continue
		}

		for lineIdx, line := range lines {
			byteOff := strings.Index(line, ent.Text)
			if byteOff < 0 {
				continue
			}
			start := runeOffset(line, byteOff)
			end := start + len([]rune(ent.Text))
			box := synthesizeBox(page.Width, page.Height, len(lines), lineIdx, len([]rune(line)), start, end)

			det, err := pii.NewDetection(typ, box, conf, page.PageNumber, pii.MethodNLP)
			if err != nil {
				continue
			}
			det.TextContent = ent.Text
			out = append(out, det.
				WithMetadata("source", "ner").
				WithMetadata("entity_label", ent.Label))
			break
		}
	}
	return out, nil
}

// mergeAdjacent joins same-type detections separated by a small horizontal
// gap on the same line, concatenating their text left to right.
func mergeAdjacent(dets []pii.Detection) []pii.Detection {
	merged := true
	for merged {
		merged = false
		for i := 0; i < len(dets) && !merged; i++ {
			for j := i + 1; j < len(dets); j++ {
				if !adjacent(dets[i], dets[j]) {
					continue
				}
				left, right := dets[i], dets[j]
				if right.BoundingBox.X1 < left.BoundingBox.X1 {
					left, right = right, left
				}
				joined := left.MergeWith(right)
				joined.TextContent = strings.TrimSpace(left.TextContent + " " + right.TextContent)
				joined = joined.WithMetadata("proximity_merged", true)

				dets[i] = joined
				dets = append(dets[:j], dets[j+1:]...)
				merged = true
				break
			}
		}
	}
	return dets
}

func adjacent(a, b pii.Detection) bool {
	if a.Type != b.Type || a.PageNumber != b.PageNumber {
		return false
	}
	// Same line: vertical ranges overlap.
	if a.BoundingBox.Y1 >= b.BoundingBox.Y2 || b.BoundingBox.Y1 >= a.BoundingBox.Y2 {
		return false
	}
	gap := a.BoundingBox.X1 - b.BoundingBox.X2
	if g := b.BoundingBox.X1 - a.BoundingBox.X2; g > gap {
		gap = g
	}
	return gap >= 0 && gap <= proximityGap
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
