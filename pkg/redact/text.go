package redact

import (
	"sort"
	"strings"

	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
)

// replaceSpans substitutes every occurrence of each detection's text with
// the profile placeholder for its type. Longer spans replace first so a
// short fragment never clobbers a longer detection containing it.
func replaceSpans(text string, detections []pii.Detection, prof *profile.Profile) string {
	spans := make([]pii.Detection, 0, len(detections))
	for _, d := range detections {
		if strings.TrimSpace(d.TextContent) != "" {
			spans = append(spans, d)
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return len(spans[i].TextContent) > len(spans[j].TextContent)
	})

	for _, d := range spans {
		text = strings.ReplaceAll(text, d.TextContent, prof.ReplacementFor(d.Type))
	}
	return text
}
