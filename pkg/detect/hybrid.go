package detect

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

// Ranking bonuses applied on top of raw confidence when trimming a type to
// its per-type cap.
const (
	sensitiveBonus = 0.10
	crossBonus     = 0.05
	mergedBonus    = 0.05
)

// compatibleTypes lists cross-engine type pairs whose spatial overlap counts
// as corroboration: a face or signature region overlapping a detected name.
var compatibleTypes = map[pii.Type]map[pii.Type]bool{
	pii.TypeFace:      {pii.TypeName: true},
	pii.TypeSignature: {pii.TypeName: true},
	pii.TypeName:      {pii.TypeFace: true, pii.TypeSignature: true},
}

// Hybrid runs its sub-engines in parallel and fuses their detections:
// cross-validation boosts corroborated detections, overlapping duplicates
// merge, the profile filters types and confidences, and each type keeps at
// most the configured number of top-ranked detections.
type Hybrid struct {
	cfg     *config.Config
	log     *slog.Logger
	engines []Engine
}

// NewHybrid builds the orchestrator over the given sub-engines.
func NewHybrid(cfg *config.Config, log *slog.Logger, engines ...Engine) *Hybrid {
	if log == nil {
		log = slog.Default()
	}
	return &Hybrid{cfg: cfg, log: log, engines: engines}
}

// Engines returns the configured sub-engines.
func (h *Hybrid) Engines() []Engine { return h.engines }

// ModelInfo aggregates the sub-engine descriptions.
func (h *Hybrid) ModelInfo() map[string]any {
	infos := make([]map[string]any, 0, len(h.engines))
	for _, e := range h.engines {
		infos = append(infos, e.ModelInfo())
	}
	return map[string]any{"engine": "hybrid", "sub_engines": infos}
}

// Detect runs the full fusion pipeline. Sub-engine failures are soft: their
// detections are lost but the run continues, and each failure is returned as
// a warning. Detect fails only when every engine fails or ctx is cancelled.
func (h *Hybrid) Detect(ctx context.Context, in Input, prof *profile.Profile) (*pii.Collection, []string, error) {
	type engineResult struct {
		detections []pii.Detection
		err        error
		name       string
	}

	results := make([]engineResult, len(h.engines))
	var wg sync.WaitGroup
	for i, eng := range h.engines {
		wg.Add(1)
		go func(i int, eng Engine) {
			defer wg.Done()
			dets, err := eng.DetectPII(ctx, in)
			results[i] = engineResult{detections: dets, err: err, name: engineName(eng)}
		}(i, eng)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var (
		all      []pii.Detection
		warnings []string
		failures int
	)
	for _, r := range results {
		if r.err != nil {
			failures++
			warnings = append(warnings, fmt.Sprintf("engine %s failed: %v", r.name, r.err))
			h.log.Warn("detection engine failed", "engine", r.name, "error", r.err)
			continue
		}
		for _, d := range r.detections {
			all = append(all, d.WithMetadata("engine", r.name))
		}
	}
	if len(h.engines) > 0 && failures == len(h.engines) {
		return nil, warnings, fmt.Errorf("detect: all %d engines failed", failures)
	}

	all = h.crossValidate(all)

	col := pii.NewCollection(in.Document.ID, all...)
	col = col.Deduplicate(h.cfg.MergeIoU)
	markMerged(col.Detections)

	filtered, filterWarnings := h.filter(col.Detections, prof)
	warnings = append(warnings, filterWarnings...)
	capped := h.capPerType(filtered)

	sort.SliceStable(capped, func(i, j int) bool {
		return rankScore(capped[i]) > rankScore(capped[j])
	})
	out := pii.NewCollection(in.Document.ID, capped...)
	h.log.Info("hybrid detection finished",
		"document_id", in.Document.ID, "raw", len(all), "kept", out.Len(),
		"engine_failures", failures)
	return out, warnings, nil
}

// crossValidate boosts detections corroborated by a different engine:
// overlapping regions of compatible types, or same-type detections whose
// text content matches.
func (h *Hybrid) crossValidate(dets []pii.Detection) []pii.Detection {
	boosted := make([]bool, len(dets))
	for i := range dets {
		for j := i + 1; j < len(dets); j++ {
			a, b := dets[i], dets[j]
			if a.Method == b.Method || a.PageNumber != b.PageNumber {
				continue
			}
			if a.BoundingBox.IoU(b.BoundingBox) < h.cfg.CrossIoU {
				continue
			}
			if !h.corroborates(a, b) {
				continue
			}
			boosted[i], boosted[j] = true, true
		}
	}

	out := make([]pii.Detection, len(dets))
	for i, d := range dets {
		if boosted[i] {
			d = d.WithConfidence(d.Confidence+h.cfg.ConfidenceBoost).
				WithMetadata("cross_validated", true)
		}
		out[i] = d
	}
	return out
}

func (h *Hybrid) corroborates(a, b pii.Detection) bool {
	if compatibleTypes[a.Type][b.Type] {
		return true
	}
	if a.Type == b.Type {
		at, bt := strings.TrimSpace(a.TextContent), strings.TrimSpace(b.TextContent)
		return at != "" && strings.EqualFold(at, bt)
	}
	return false
}

// filter keeps detections the profile enables, above the effective
// threshold, and passing any custom CEL condition. The effective threshold
// is the stricter of the engine minimum and the profile threshold.
func (h *Hybrid) filter(dets []pii.Detection, prof *profile.Profile) ([]pii.Detection, []string) {
	threshold := h.cfg.MinConfidence
	if prof.ConfidenceThreshold > threshold {
		threshold = prof.ConfidenceThreshold
	}

	var (
		out      []pii.Detection
		warnings []string
	)
	for _, d := range dets {
		if !prof.IsEnabled(d.Type) || d.Confidence < threshold {
			continue
		}
		prg, err := prof.ConditionFor(d.Type)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("condition for %s unusable: %v", d.Type, err))
		} else if prg != nil {
			keep, err := profile.EvaluateCondition(prg, d)
			if err != nil {
				warnings = append(warnings, fmt.Sprintf("condition for %s failed: %v", d.Type, err))
			} else if !keep {
				continue
			}
		}
		out = append(out, d)
	}
	return out, warnings
}

// capPerType keeps the top-ranked detections of each type.
func (h *Hybrid) capPerType(dets []pii.Detection) []pii.Detection {
	byType := map[pii.Type][]pii.Detection{}
	for _, d := range dets {
		byType[d.Type] = append(byType[d.Type], d)
	}

	var out []pii.Detection
	for _, group := range byType {
		sort.SliceStable(group, func(i, j int) bool {
			return rankScore(group[i]) > rankScore(group[j])
		})
		if len(group) > h.cfg.MaxDetectionsPerType {
			group = group[:h.cfg.MaxDetectionsPerType]
		}
		out = append(out, group...)
	}
	return out
}

// markMerged tags detections that deduplication fused out of several
// sources.
func markMerged(dets []pii.Detection) {
	for i, d := range dets {
		if _, ok := d.Metadata["merged_from"]; ok {
			dets[i] = d.WithMetadata("hybrid_merged", true)
		}
	}
}

// rankScore orders the final detection set and the per-type cap.
func rankScore(d pii.Detection) float64 {
	score := d.Confidence
	if d.Type.IsSensitive() {
		score += sensitiveBonus
	}
	if v, ok := d.Metadata["cross_validated"].(bool); ok && v {
		score += crossBonus
	}
	if _, ok := d.Metadata["merged_from"]; ok {
		score += mergedBonus
	}
	return score
}

func engineName(e Engine) string {
	if info := e.ModelInfo(); info != nil {
		if name, ok := info["engine"].(string); ok {
			return name
		}
	}
	return fmt.Sprintf("%T", e)
}
