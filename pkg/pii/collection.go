package pii

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Collection is an ordered set of detections for one document.
type Collection struct {
	DocumentID string      `json:"document_id,omitempty"`
	Detections []Detection `json:"detections"`
}

// NewCollection creates a collection for a document.
func NewCollection(documentID string, detections ...Detection) *Collection {
	return &Collection{DocumentID: documentID, Detections: detections}
}

// Add appends a detection.
func (c *Collection) Add(d Detection) { c.Detections = append(c.Detections, d) }

// Len returns the number of detections.
func (c *Collection) Len() int { return len(c.Detections) }

// ByType returns detections of the given type.
func (c *Collection) ByType(t Type) []Detection {
	return c.filter(func(d Detection) bool { return d.Type == t })
}

// ByPage returns detections on the given page.
func (c *Collection) ByPage(page int) []Detection {
	return c.filter(func(d Detection) bool { return d.PageNumber == page })
}

// AboveConfidence returns detections with confidence >= threshold.
// A detection exactly at the threshold is kept.
func (c *Collection) AboveConfidence(threshold float64) []Detection {
	return c.filter(func(d Detection) bool { return d.Confidence >= threshold })
}

// Visual returns detections of visual types.
func (c *Collection) Visual() []Detection {
	return c.filter(func(d Detection) bool { return d.Type.IsVisual() })
}

// Text returns detections of text types.
func (c *Collection) Text() []Detection {
	return c.filter(func(d Detection) bool { return d.Type.IsText() })
}

// Sensitive returns detections of sensitive types.
func (c *Collection) Sensitive() []Detection {
	return c.filter(func(d Detection) bool { return d.Type.IsSensitive() })
}

func (c *Collection) filter(keep func(Detection) bool) []Detection {
	var out []Detection
	for _, d := range c.Detections {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

// SortByConfidence orders detections by descending confidence, stable.
func (c *Collection) SortByConfidence() {
	sort.SliceStable(c.Detections, func(i, j int) bool {
		return c.Detections[i].Confidence > c.Detections[j].Confidence
	})
}

// SortByArea orders detections by descending box area, stable.
func (c *Collection) SortByArea() {
	sort.SliceStable(c.Detections, func(i, j int) bool {
		return c.Detections[i].BoundingBox.Area() > c.Detections[j].BoundingBox.Area()
	})
}

// Deduplicate merges every duplicate cluster (same type, same page, IoU at
// or above threshold) into a single detection and returns a new collection.
// Merging is transitive within a cluster.
func (c *Collection) Deduplicate(iouThreshold float64) *Collection {
	out := NewCollection(c.DocumentID)
	used := make([]bool, len(c.Detections))

	for i, d := range c.Detections {
		if used[i] {
			continue
		}
		merged := d
		for j := i + 1; j < len(c.Detections); j++ {
			if used[j] {
				continue
			}
			if merged.IsDuplicateOf(c.Detections[j], iouThreshold) {
				merged = merged.MergeWith(c.Detections[j])
				used[j] = true
			}
		}
		out.Add(merged)
	}
	return out
}

// Statistics summarizes a collection.
type Statistics struct {
	Total         int                     `json:"total"`
	ByType        map[Type]int            `json:"by_type"`
	ByPage        map[int]int             `json:"by_page"`
	ByMethod      map[DetectionMethod]int `json:"by_method"`
	MinConfidence float64                 `json:"min_confidence"`
	MaxConfidence float64                 `json:"max_confidence"`
	AvgConfidence float64                 `json:"avg_confidence"`
}

// Stats computes counts and confidence aggregates.
func (c *Collection) Stats() Statistics {
	s := Statistics{
		Total:    len(c.Detections),
		ByType:   map[Type]int{},
		ByPage:   map[int]int{},
		ByMethod: map[DetectionMethod]int{},
	}
	if s.Total == 0 {
		return s
	}

	sum := 0.0
	s.MinConfidence = c.Detections[0].Confidence
	s.MaxConfidence = c.Detections[0].Confidence
	for _, d := range c.Detections {
		s.ByType[d.Type]++
		s.ByPage[d.PageNumber]++
		s.ByMethod[d.Method]++
		sum += d.Confidence
		if d.Confidence < s.MinConfidence {
			s.MinConfidence = d.Confidence
		}
		if d.Confidence > s.MaxConfidence {
			s.MaxConfidence = d.Confidence
		}
	}
	s.AvgConfidence = sum / float64(s.Total)
	return s
}

// MarshalJSON serializes the collection with derived box fields included.
func (c *Collection) MarshalJSON() ([]byte, error) {
	type alias Collection
	clone := alias{DocumentID: c.DocumentID, Detections: make([]Detection, len(c.Detections))}
	for i, d := range c.Detections {
		d.BoundingBox = d.BoundingBox.WithDerived()
		clone.Detections[i] = d
	}
	return json.Marshal(clone)
}

// WriteCSV exports the collection with a fixed column set.
func (c *Collection) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	header := []string{"ID", "Type", "Page", "X1", "Y1", "X2", "Y2", "Confidence", "Method", "Text"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("pii: csv header: %w", err)
	}
	for _, d := range c.Detections {
		row := []string{
			d.ID,
			string(d.Type),
			strconv.Itoa(d.PageNumber),
			strconv.Itoa(d.BoundingBox.X1),
			strconv.Itoa(d.BoundingBox.Y1),
			strconv.Itoa(d.BoundingBox.X2),
			strconv.Itoa(d.BoundingBox.Y2),
			strconv.FormatFloat(d.Confidence, 'f', 4, 64),
			string(d.Method),
			d.TextContent,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("pii: csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
