// Package integrity verifies that a processed document matches its audit
// record: the file exists, its hash equals the expected hash, the audit
// entry is well formed, and the signature holds.
package integrity

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/crypto"
)

// Severity grades a finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Overall verdicts, from clean to broken. When error issues span several
// categories the verdict is the most specific one in this order.
const (
	ResultValid             = "valid"
	ResultHashMismatch      = "hash_mismatch"
	ResultSignatureMismatch = "signature_mismatch"
	ResultAuditTrailInvalid = "audit_trail_invalid"
	ResultMissingData       = "missing_data"
	ResultCorrupted         = "corrupted"
)

// Timestamps this far in the future are clock skew, not tampering.
const timestampGrace = 5 * time.Minute

// largeFileWarning flags outputs that are suspiciously big.
const largeFileWarning = 100 << 20

// Issue is one validation finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Category string   `json:"category"`
	Message  string   `json:"message"`
}

// Report is the outcome of validating one document.
type Report struct {
	DocumentID      string    `json:"document_id,omitempty"`
	DocumentPath    string    `json:"document_path"`
	CheckedAt       time.Time `json:"validation_timestamp"`
	OverallResult   string    `json:"overall_result"`
	DocumentHash    string    `json:"document_hash,omitempty"`
	ExpectedHash    string    `json:"expected_hash,omitempty"`
	Signed          bool      `json:"signed"`
	SignatureValid  bool      `json:"signature_valid"`
	AuditTrailValid bool      `json:"audit_trail_valid"`
	Issues          []Issue   `json:"issues,omitempty"`
	ProcessingTime  float64   `json:"processing_time"`
}

// Valid reports whether the document passed.
func (r *Report) Valid() bool { return r.OverallResult == ResultValid }

func (r *Report) add(sev Severity, category, format string, args ...any) {
	r.Issues = append(r.Issues, Issue{
		Severity: sev,
		Category: category,
		Message:  fmt.Sprintf(format, args...),
	})
}

func (r *Report) errorCategories() map[string]bool {
	out := map[string]bool{}
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			out[i.Category] = true
		}
	}
	return out
}

// resolve picks the overall verdict from the error issues on the report.
func (r *Report) resolve() {
	cats := r.errorCategories()
	switch {
	case len(cats) == 0:
		r.OverallResult = ResultValid
	case cats["hash"]:
		r.OverallResult = ResultHashMismatch
	case cats["signature"]:
		r.OverallResult = ResultSignatureMismatch
	case cats["audit"]:
		r.OverallResult = ResultAuditTrailInvalid
	default:
		r.OverallResult = ResultCorrupted
	}
}

// Validator checks processed documents against their audit records.
type Validator struct {
	signer *crypto.Signer
	log    *slog.Logger
}

// New builds a validator. A nil signer skips signature checks.
func New(signer *crypto.Signer, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{signer: signer, log: log}
}

// Validate checks one document. A missing file short-circuits to
// missing_data. An empty expectedHash falls back to the audit record's
// output hash; a nil record skips the audit and signature checks.
func (v *Validator) Validate(path, expectedHash string, record *audit.Log) *Report {
	started := time.Now()
	report := &Report{DocumentPath: path, CheckedAt: started.UTC()}
	defer func() { report.ProcessingTime = time.Since(started).Seconds() }()

	if record != nil {
		report.DocumentID = record.DocumentID
	}

	info, err := os.Stat(path)
	if err != nil {
		report.add(SeverityError, "file", "document does not exist: %s", path)
		report.OverallResult = ResultMissingData
		return report
	}
	if info.Size() == 0 {
		report.add(SeverityWarning, "empty_file", "document is empty")
	} else if info.Size() > largeFileWarning {
		report.add(SeverityWarning, "large_file", "document is unusually large (%d bytes)", info.Size())
	}

	v.checkHash(report, path, expectedHash, record)
	if record == nil {
		report.add(SeverityInfo, "audit_record", "no audit record supplied, audit checks skipped")
	} else {
		v.checkRecord(report, path, record)
		report.AuditTrailValid = !report.errorCategories()["audit"]
		v.checkSignature(report, record)
	}

	report.resolve()
	v.log.Debug("integrity validation finished",
		"path", path, "result", report.OverallResult, "issues", len(report.Issues))
	return report
}

// ValidateWithAuditFile validates against an audit record stored as JSON.
// An unreadable or unparsable record degrades to a warning and validation
// continues without it.
func (v *Validator) ValidateWithAuditFile(path, expectedHash, auditPath string) *Report {
	var (
		record  *audit.Log
		loadErr error
	)
	if auditPath != "" {
		data, err := os.ReadFile(auditPath)
		if err != nil {
			loadErr = err
		} else {
			var l audit.Log
			if err := json.Unmarshal(data, &l); err != nil {
				loadErr = err
			} else {
				record = &l
			}
		}
	}

	report := v.Validate(path, expectedHash, record)
	if loadErr != nil {
		report.add(SeverityWarning, "audit_log_load_failed", "audit record %s unusable: %v", auditPath, loadErr)
	}
	return report
}

func (v *Validator) checkHash(report *Report, path, expectedHash string, record *audit.Log) {
	actual, err := crypto.HashFile(path)
	if err != nil {
		report.add(SeverityError, "file", "hashing failed: %v", err)
		return
	}
	report.DocumentHash = actual

	if expectedHash == "" && record != nil {
		expectedHash = record.OutputHash
	}
	if expectedHash == "" {
		report.add(SeverityWarning, "hash", "no expected hash to compare against")
		return
	}
	report.ExpectedHash = expectedHash
	if actual != expectedHash {
		report.add(SeverityError, "hash", "document hash %s does not match expected %s",
			actual[:12], expectedHash[:12])
	}
}

func (v *Validator) checkRecord(report *Report, path string, record *audit.Log) {
	if record.ID == "" {
		report.add(SeverityError, "audit", "audit record has no id")
	}
	if record.Operation == "" {
		report.add(SeverityError, "audit", "audit record has no operation")
	}
	if record.Timestamp.IsZero() {
		report.add(SeverityError, "audit", "audit record has no timestamp")
	} else if record.Timestamp.After(time.Now().UTC().Add(timestampGrace)) {
		report.add(SeverityError, "audit", "audit timestamp %s is in the future", record.Timestamp)
	}

	if len(record.FilePaths) == 0 {
		report.add(SeverityWarning, "audit", "audit record names no files")
	} else if filepath.Base(record.FilePaths[0]) != filepath.Base(path) {
		report.add(SeverityError, "audit", "audit record names %s, validating %s",
			filepath.Base(record.FilePaths[0]), filepath.Base(path))
	}
}

func (v *Validator) checkSignature(report *Report, record *audit.Log) {
	if record.Signature == "" {
		report.add(SeverityInfo, "signature", "audit record is unsigned")
		return
	}
	report.Signed = true
	if v.signer == nil {
		report.add(SeverityInfo, "signature", "signing disabled, signature not checked")
		return
	}
	if err := record.Verify(v.signer); err != nil {
		report.add(SeverityError, "signature", "%v", err)
		return
	}
	report.SignatureValid = true
}

// ValidateBatch validates every file in dir matching pattern (default "*").
// When auditDir is set, each document pairs with <auditDir>/<stem>.json.
func (v *Validator) ValidateBatch(dir, auditDir, pattern string) ([]*Report, error) {
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("integrity: bad pattern %q: %w", pattern, err)
	}

	var reports []*Report
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.IsDir() {
			continue
		}
		auditPath := ""
		if auditDir != "" {
			stem := strings.TrimSuffix(filepath.Base(m), filepath.Ext(m))
			candidate := filepath.Join(auditDir, stem+".json")
			if _, err := os.Stat(candidate); err == nil {
				auditPath = candidate
			}
		}
		reports = append(reports, v.ValidateWithAuditFile(m, "", auditPath))
	}
	return reports, nil
}

// Summary aggregates batch validation outcomes.
type Summary struct {
	Total             int            `json:"total"`
	Valid             int            `json:"valid"`
	ByResult          map[string]int `json:"by_result"`
	ByCategory        map[string]int `json:"issues_by_category"`
	AvgProcessingTime float64        `json:"avg_processing_time"`
	SignedRatio       float64        `json:"signed_ratio"`
}

// GenerateSummary rolls up a set of reports.
func GenerateSummary(reports []*Report) Summary {
	s := Summary{
		Total:      len(reports),
		ByResult:   map[string]int{},
		ByCategory: map[string]int{},
	}
	if len(reports) == 0 {
		return s
	}

	var totalTime float64
	var signed int
	for _, r := range reports {
		s.ByResult[r.OverallResult]++
		if r.OverallResult == ResultValid {
			s.Valid++
		}
		if r.Signed {
			signed++
		}
		totalTime += r.ProcessingTime
		for _, i := range r.Issues {
			if i.Severity != SeverityInfo {
				s.ByCategory[i.Category]++
			}
		}
	}
	s.AvgProcessingTime = totalTime / float64(len(reports))
	s.SignedRatio = float64(signed) / float64(len(reports))
	return s
}
