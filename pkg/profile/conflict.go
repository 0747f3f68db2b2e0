package profile

import (
	"fmt"
	"math"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// thresholdConflictDelta is the smallest threshold difference reported as a
// conflict between independent profiles.
const thresholdConflictDelta = 0.1

// Strategy selects how conflicts between independent profiles are resolved.
type Strategy string

const (
	// StrategyStrict fails on any conflict.
	StrategyStrict Strategy = "strict"
	// StrategyPermissive ORs rule maps and takes the minimum threshold.
	StrategyPermissive Strategy = "permissive"
	// StrategyConservative ANDs rule maps and takes the maximum threshold.
	StrategyConservative Strategy = "conservative"
)

// Conflict describes one disagreement between two profiles.
type Conflict struct {
	Field string
	A     any
	B     any
}

func (c Conflict) String() string {
	return fmt.Sprintf("%s: %v vs %v", c.Field, c.A, c.B)
}

// DetectConflicts reports rule, style, and material threshold differences
// between two independent profiles.
func DetectConflicts(a, b *Profile) []Conflict {
	var out []Conflict
	out = append(out, ruleConflicts("visual_rules", a.VisualRules, b.VisualRules)...)
	out = append(out, ruleConflicts("text_rules", a.TextRules, b.TextRules)...)
	if a.RedactionStyle != "" && b.RedactionStyle != "" && a.RedactionStyle != b.RedactionStyle {
		out = append(out, Conflict{Field: "redaction_style", A: a.RedactionStyle, B: b.RedactionStyle})
	}
	if math.Abs(a.ConfidenceThreshold-b.ConfidenceThreshold) > thresholdConflictDelta {
		out = append(out, Conflict{Field: "confidence_threshold", A: a.ConfidenceThreshold, B: b.ConfidenceThreshold})
	}
	return out
}

func ruleConflicts(field string, a, b map[pii.Type]bool) []Conflict {
	var out []Conflict
	for _, t := range pii.AllTypes() {
		av, aok := a[t]
		bv, bok := b[t]
		if aok && bok && av != bv {
			out = append(out, Conflict{Field: fmt.Sprintf("%s.%s", field, t), A: av, B: bv})
		}
	}
	return out
}

// MergeWithStrategy combines two independent profiles under the given
// conflict strategy. Strict returns a ConflictError when any conflict
// exists; the other strategies resolve per field.
func MergeWithStrategy(a, b *Profile, strategy Strategy) (*Profile, error) {
	conflicts := DetectConflicts(a, b)
	if strategy == StrategyStrict && len(conflicts) > 0 {
		return nil, &ConflictError{Conflicts: conflicts}
	}

	out := a.Clone()
	out.InheritsFrom = nil

	switch strategy {
	case StrategyStrict, StrategyPermissive:
		out.VisualRules = combineRules(a.VisualRules, b.VisualRules, func(x, y bool) bool { return x || y })
		out.TextRules = combineRules(a.TextRules, b.TextRules, func(x, y bool) bool { return x || y })
		out.ConfidenceThreshold = math.Min(a.ConfidenceThreshold, b.ConfidenceThreshold)
	case StrategyConservative:
		out.VisualRules = combineRules(a.VisualRules, b.VisualRules, func(x, y bool) bool { return x && y })
		out.TextRules = combineRules(a.TextRules, b.TextRules, func(x, y bool) bool { return x && y })
		out.ConfidenceThreshold = math.Max(a.ConfidenceThreshold, b.ConfidenceThreshold)
	default:
		return nil, fmt.Errorf("profile: unknown merge strategy %q", strategy)
	}

	for _, lang := range b.MultilingualSupport {
		if !containsString(out.MultilingualSupport, lang) {
			out.MultilingualSupport = append(out.MultilingualSupport, lang)
		}
	}
	if out.RedactionStyle == "" {
		out.RedactionStyle = b.RedactionStyle
	}
	return out, nil
}

// combineRules applies op to keys present in both maps; keys present in only
// one side carry over unchanged.
func combineRules(a, b map[pii.Type]bool, op func(bool, bool) bool) map[pii.Type]bool {
	out := map[pii.Type]bool{}
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		if existing, ok := out[k]; ok {
			out[k] = op(existing, v)
		} else {
			out[k] = v
		}
	}
	return out
}
