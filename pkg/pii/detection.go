package pii

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultDuplicateIoU is the overlap ratio above which two same-type,
// same-page detections are considered duplicates.
const DefaultDuplicateIoU = 0.5

// Detection is a typed, localized assertion that a region (and optional
// text) is PII. Treat instances as immutable; MergeWith returns new values.
type Detection struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	BoundingBox BoundingBox     `json:"bounding_box"`
	Confidence  float64         `json:"confidence"`
	PageNumber  int             `json:"page_number"`
	TextContent string          `json:"text_content,omitempty"`
	Method      DetectionMethod `json:"detection_method"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// NewDetection constructs a validated detection with a fresh id and UTC
// timestamp.
func NewDetection(t Type, box BoundingBox, confidence float64, page int, method DetectionMethod) (Detection, error) {
	d := Detection{
		ID:          uuid.New().String(),
		Type:        t,
		BoundingBox: box,
		Confidence:  confidence,
		PageNumber:  page,
		Method:      method,
		Metadata:    map[string]any{},
		Timestamp:   time.Now().UTC(),
	}
	if err := d.Validate(); err != nil {
		return Detection{}, err
	}
	return d, nil
}

// Validate checks the detection invariants.
func (d Detection) Validate() error {
	if !d.Type.IsValid() {
		return fmt.Errorf("pii: unknown type %q", d.Type)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("pii: confidence %v outside [0,1]", d.Confidence)
	}
	if d.PageNumber < 0 {
		return fmt.Errorf("pii: negative page number %d", d.PageNumber)
	}
	return d.BoundingBox.Validate()
}

// IsDuplicateOf reports whether other is a duplicate under the given IoU
// threshold: same type, same page, overlap at or above the threshold.
func (d Detection) IsDuplicateOf(other Detection, iouThreshold float64) bool {
	if d.Type != other.Type || d.PageNumber != other.PageNumber {
		return false
	}
	return d.BoundingBox.IoU(other.BoundingBox) >= iouThreshold
}

// MergeWith combines d with other into a single detection. The type comes
// from the higher-confidence side, the boxes are unioned, the confidence is
// the maximum, and provenance is recorded under metadata["merged_from"].
// When the sources came from different engines the method becomes hybrid.
func (d Detection) MergeWith(other Detection) Detection {
	primary, secondary := d, other
	if other.Confidence > d.Confidence {
		primary, secondary = other, d
	}

	merged := Detection{
		ID:          uuid.New().String(),
		Type:        primary.Type,
		BoundingBox: primary.BoundingBox.Union(secondary.BoundingBox),
		Confidence:  primary.Confidence,
		PageNumber:  primary.PageNumber,
		TextContent: primary.TextContent,
		Method:      primary.Method,
		Metadata:    map[string]any{},
		Timestamp:   time.Now().UTC(),
	}
	if merged.TextContent == "" {
		merged.TextContent = secondary.TextContent
	}
	if primary.Method != secondary.Method {
		merged.Method = MethodHybrid
	}

	for k, v := range primary.Metadata {
		merged.Metadata[k] = v
	}
	merged.Metadata["merged_from"] = []string{d.ID, other.ID}
	return merged
}

// WithMetadata returns a copy with an extra metadata entry set.
func (d Detection) WithMetadata(key string, value any) Detection {
	meta := make(map[string]any, len(d.Metadata)+1)
	for k, v := range d.Metadata {
		meta[k] = v
	}
	meta[key] = value
	d.Metadata = meta
	return d
}

// WithConfidence returns a copy with the confidence clamped to [0,1].
func (d Detection) WithConfidence(c float64) Detection {
	if c > 1 {
		c = 1
	}
	if c < 0 {
		c = 0
	}
	d.Confidence = c
	return d
}
