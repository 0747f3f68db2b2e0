package document

import "fmt"

// Stage names the pipeline stage where a processing error originated.
type Stage string

const (
	StageAnalyze Stage = "analyze"
	StageDetect  Stage = "detect"
	StageRedact  Stage = "redact"
	StageAudit   Stage = "audit"
)

// ProcessingError is the typed failure for decode/analyze/redact problems.
// It carries the stage and the original path so batch callers can report
// precisely which document failed where.
type ProcessingError struct {
	Stage Stage
	Path  string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("document: %s failed for %s: %v", e.Stage, e.Path, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NewProcessingError wraps err with stage and path context.
func NewProcessingError(stage Stage, path string, err error) *ProcessingError {
	return &ProcessingError{Stage: stage, Path: path, Err: err}
}
