// Package profile implements versioned, inheritable redaction rule sets.
// A profile selects which detection types get redacted, at what confidence,
// and in which visual style. Profiles may inherit from parents; resolution
// flattens the chain into a standalone rule set.
package profile

import (
	"github.com/Masterminds/semver/v3"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Style names a redaction rendering style.
type Style string

const (
	StyleSolidBlack Style = "solid_black"
	StyleSolidWhite Style = "solid_white"
	StylePixelated  Style = "pixelated"
	StyleBlurred    Style = "blurred"
	StylePattern    Style = "pattern"
)

// ValidStyles enumerates the accepted styles.
var ValidStyles = map[Style]bool{
	StyleSolidBlack: true,
	StyleSolidWhite: true,
	StylePixelated:  true,
	StyleBlurred:    true,
	StylePattern:    true,
}

// CustomRule refines handling of one detection type: an optional replacement
// placeholder for text output, and an optional CEL condition that must hold
// for a detection to be redacted.
type CustomRule struct {
	ReplacementText string `yaml:"replacement_text,omitempty" json:"replacement_text,omitempty"`
	Condition       string `yaml:"condition,omitempty" json:"condition,omitempty"`
}

// Profile is a redaction rule set. ConfidenceThreshold zero means "use the
// engine default"; an explicit threshold always wins over inherited ones.
type Profile struct {
	Name                string                `yaml:"name" json:"name"`
	Description         string                `yaml:"description,omitempty" json:"description,omitempty"`
	Version             string                `yaml:"version,omitempty" json:"version,omitempty"`
	VisualRules         map[pii.Type]bool     `yaml:"visual_rules,omitempty" json:"visual_rules,omitempty"`
	TextRules           map[pii.Type]bool     `yaml:"text_rules,omitempty" json:"text_rules,omitempty"`
	RedactionStyle      Style                 `yaml:"redaction_style,omitempty" json:"redaction_style,omitempty"`
	MultilingualSupport []string              `yaml:"multilingual_support,omitempty" json:"multilingual_support,omitempty"`
	ConfidenceThreshold float64               `yaml:"confidence_threshold,omitempty" json:"confidence_threshold,omitempty"`
	CustomRules         map[string]CustomRule `yaml:"custom_rules,omitempty" json:"custom_rules,omitempty"`
	InheritsFrom        []string              `yaml:"inherits_from,omitempty" json:"inherits_from,omitempty"`
	Metadata            map[string]any        `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// IsEnabled reports whether a detection type is redacted under this profile.
// Visual rules are consulted first, then text rules; unknown types are off.
func (p *Profile) IsEnabled(t pii.Type) bool {
	if v, ok := p.VisualRules[t]; ok {
		return v
	}
	if v, ok := p.TextRules[t]; ok {
		return v
	}
	return false
}

// EnabledTypes lists every type the profile turns on.
func (p *Profile) EnabledTypes() []pii.Type {
	var out []pii.Type
	for _, t := range pii.AllTypes() {
		if p.IsEnabled(t) {
			out = append(out, t)
		}
	}
	return out
}

// Validate returns the list of problems with the profile, empty when valid.
func (p *Profile) Validate() []string {
	var issues []string
	if p.Name == "" {
		issues = append(issues, "name must not be empty")
	}
	if p.ConfidenceThreshold < 0 || p.ConfidenceThreshold > 1 {
		issues = append(issues, "confidence_threshold outside [0,1]")
	}
	if p.RedactionStyle != "" && !ValidStyles[p.RedactionStyle] {
		issues = append(issues, "unknown redaction_style "+string(p.RedactionStyle))
	}
	if p.Version != "" {
		if _, err := semver.NewVersion(p.Version); err != nil {
			issues = append(issues, "version is not valid semver: "+p.Version)
		}
	}
	for _, parent := range p.InheritsFrom {
		if parent == p.Name {
			issues = append(issues, "profile inherits from itself")
		}
	}
	for name, rule := range p.CustomRules {
		if rule.Condition != "" {
			if _, err := CompileCondition(rule.Condition); err != nil {
				issues = append(issues, "custom rule "+name+": "+err.Error())
			}
		}
	}
	return issues
}

// Clone deep-copies the profile so cached instances stay immutable.
func (p *Profile) Clone() *Profile {
	c := *p
	c.VisualRules = cloneRules(p.VisualRules)
	c.TextRules = cloneRules(p.TextRules)
	c.MultilingualSupport = append([]string(nil), p.MultilingualSupport...)
	c.InheritsFrom = append([]string(nil), p.InheritsFrom...)
	if p.CustomRules != nil {
		c.CustomRules = make(map[string]CustomRule, len(p.CustomRules))
		for k, v := range p.CustomRules {
			c.CustomRules[k] = v
		}
	}
	if p.Metadata != nil {
		c.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

func cloneRules(m map[pii.Type]bool) map[pii.Type]bool {
	if m == nil {
		return nil
	}
	out := make(map[pii.Type]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// merge overlays child values onto p. Rule maps merge per key with the
// child winning; language lists union; an explicit child threshold, style,
// description, and version replace the parent's.
func (p *Profile) merge(child *Profile) {
	if p.VisualRules == nil {
		p.VisualRules = map[pii.Type]bool{}
	}
	for k, v := range child.VisualRules {
		p.VisualRules[k] = v
	}
	if p.TextRules == nil {
		p.TextRules = map[pii.Type]bool{}
	}
	for k, v := range child.TextRules {
		p.TextRules[k] = v
	}

	for _, lang := range child.MultilingualSupport {
		if !containsString(p.MultilingualSupport, lang) {
			p.MultilingualSupport = append(p.MultilingualSupport, lang)
		}
	}

	if child.ConfidenceThreshold > 0 {
		p.ConfidenceThreshold = child.ConfidenceThreshold
	}
	if child.RedactionStyle != "" {
		p.RedactionStyle = child.RedactionStyle
	}
	if child.Description != "" {
		p.Description = child.Description
	}
	if child.Version != "" {
		p.Version = child.Version
	}

	if p.CustomRules == nil {
		p.CustomRules = map[string]CustomRule{}
	}
	for k, v := range child.CustomRules {
		p.CustomRules[k] = v
	}
	if p.Metadata == nil {
		p.Metadata = map[string]any{}
	}
	for k, v := range child.Metadata {
		p.Metadata[k] = v
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
