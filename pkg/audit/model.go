// Package audit records every operation of the deidentification pipeline as
// signed, tamper-evident log entries persisted in SQLite. A log's content
// hash covers every field except the signature, so re-signing an unchanged
// record is a no-op and any mutation after signing is detectable.
package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gopnik-forensics/gopnik/pkg/crypto"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

// Operation classifies an audit entry.
type Operation string

const (
	OpDocumentUpload     Operation = "document_upload"
	OpPIIDetection       Operation = "pii_detection"
	OpDocumentRedaction  Operation = "document_redaction"
	OpDocumentValidation Operation = "document_validation"
	OpProfileLoad        Operation = "profile_load"
	OpBatchProcessing    Operation = "batch_processing"
	OpErrorOccurred      Operation = "error_occurred"
	OpSystemStartup      Operation = "system_startup"
	OpSystemShutdown     Operation = "system_shutdown"
	OpCleanup            Operation = "cleanup"
)

// Level grades the severity of an entry.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarning  Level = "warning"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Log is one audit record. Timestamps are UTC. ChainID groups the records
// of one logical processing run; ParentID points at the preceding record in
// that chain.
type Log struct {
	ID                string           `json:"id"`
	Operation         Operation        `json:"operation"`
	Timestamp         time.Time        `json:"timestamp"`
	Level             Level            `json:"level"`
	DocumentID        string           `json:"document_id,omitempty"`
	UserID            string           `json:"user_id,omitempty"`
	SessionID         string           `json:"session_id,omitempty"`
	ProfileName       string           `json:"profile_name,omitempty"`
	DetectionsSummary map[pii.Type]int `json:"detections_summary,omitempty"`
	InputHash         string           `json:"input_hash,omitempty"`
	OutputHash        string           `json:"output_hash,omitempty"`
	FilePaths         []string         `json:"file_paths,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	WarningMessages   []string         `json:"warning_messages,omitempty"`
	ProcessingTime    float64          `json:"processing_time,omitempty"` // seconds
	MemoryUsage       int64            `json:"memory_usage,omitempty"`    // bytes
	Signature         string           `json:"signature,omitempty"`
	ParentID          string           `json:"parent_id,omitempty"`
	ChainID           string           `json:"chain_id,omitempty"`
	SystemInfo        map[string]any   `json:"system_info,omitempty"`
	Details           map[string]any   `json:"details,omitempty"`
}

// NewLog creates an unsigned record with a fresh id and UTC timestamp.
func NewLog(op Operation, level Level) *Log {
	return &Log{
		ID:        uuid.New().String(),
		Operation: op,
		Timestamp: time.Now().UTC(),
		Level:     level,
	}
}

// ContentHash returns the canonical hash of every field except Signature.
func (l *Log) ContentHash() (string, error) {
	unsigned := *l
	unsigned.Signature = ""
	return crypto.CanonicalHash(&unsigned)
}

// Sign attaches a signature over the content hash. A record whose existing
// signature still verifies is left untouched, making Sign idempotent.
func (l *Log) Sign(signer *crypto.Signer) error {
	hash, err := l.ContentHash()
	if err != nil {
		return fmt.Errorf("audit: hash log %s: %w", l.ID, err)
	}
	if l.Signature != "" {
		if signer.VerifyHash(hash, l.Signature) == nil {
			return nil
		}
	}
	sig, err := signer.SignHash(hash)
	if err != nil {
		return fmt.Errorf("audit: sign log %s: %w", l.ID, err)
	}
	l.Signature = sig
	return nil
}

// Verify checks the signature against the current content.
func (l *Log) Verify(signer *crypto.Signer) error {
	if l.Signature == "" {
		return fmt.Errorf("audit: log %s is unsigned", l.ID)
	}
	hash, err := l.ContentHash()
	if err != nil {
		return fmt.Errorf("audit: hash log %s: %w", l.ID, err)
	}
	if err := signer.VerifyHash(hash, l.Signature); err != nil {
		return fmt.Errorf("audit: log %s: %w", l.ID, err)
	}
	return nil
}

// Child derives the next record in the same chain.
func (l *Log) Child(op Operation, level Level) *Log {
	child := NewLog(op, level)
	child.ChainID = l.ChainID
	child.ParentID = l.ID
	child.DocumentID = l.DocumentID
	child.SessionID = l.SessionID
	child.UserID = l.UserID
	child.ProfileName = l.ProfileName
	return child
}
