// Package processor orchestrates the deidentification pipeline: analyze a
// document, detect PII, redact it, and validate the output, with every stage
// recorded in a signed audit chain.
package processor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gopnik-forensics/gopnik/pkg/analyzer"
	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/crypto"
	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/document"
	"github.com/gopnik-forensics/gopnik/pkg/integrity"
	"github.com/gopnik-forensics/gopnik/pkg/jobs"
	"github.com/gopnik-forensics/gopnik/pkg/observability"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
	"github.com/gopnik-forensics/gopnik/pkg/redact"
)

// Status is the lifecycle state of one processing run.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Metrics are per-document timing and volume measurements. Times are in
// seconds to match the audit record layout.
type Metrics struct {
	TotalTime      float64 `json:"total_time"`
	DetectionTime  float64 `json:"detection_time"`
	RedactionTime  float64 `json:"redaction_time"`
	PagesProcessed int     `json:"pages_processed"`
	DetectionCount int     `json:"detection_count"`
	MemoryPeak     uint64  `json:"memory_peak"`
}

// ProcessingResult is the full outcome of one document run.
type ProcessingResult struct {
	ID            string             `json:"id"`
	DocumentID    string             `json:"document_id,omitempty"`
	InputDocument *document.Document `json:"input_document,omitempty"`
	Detections    *pii.Collection    `json:"detections,omitempty"`
	AuditLog      *audit.Log         `json:"audit_log,omitempty"`
	OutputPath    string             `json:"output_path,omitempty"`
	Status        Status             `json:"status"`
	Success       bool               `json:"success"`
	StartedAt     time.Time          `json:"started_at"`
	CompletedAt   time.Time          `json:"completed_at"`
	Errors        []string           `json:"errors,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
	ProfileName   string             `json:"profile_name"`
	Metrics       Metrics            `json:"metrics"`
}

// Statistics aggregates runs since start or the last reset.
type Statistics struct {
	Processed       int     `json:"processed"`
	Succeeded       int     `json:"succeeded"`
	Failed          int     `json:"failed"`
	TotalDetections int     `json:"total_detections"`
	TotalPages      int     `json:"total_pages"`
	TotalTime       float64 `json:"total_time"`
}

// Processor runs the analyze-detect-redact-validate pipeline.
type Processor struct {
	cfg       *config.Config
	analyzer  *analyzer.Analyzer
	detector  *detect.Hybrid
	redactor  *redact.Redactor
	auditor   *audit.Logger
	validator *integrity.Validator
	profiles  *profile.Manager
	obs       *observability.Provider
	jobsMgr   *jobs.Manager
	log       *slog.Logger

	mu            sync.Mutex
	stats         Statistics
	auditDegraded bool
}

// New wires a processor from its stage components. The observability
// provider and job manager may be nil.
func New(
	cfg *config.Config,
	an *analyzer.Analyzer,
	det *detect.Hybrid,
	red *redact.Redactor,
	auditor *audit.Logger,
	val *integrity.Validator,
	profiles *profile.Manager,
	obs *observability.Provider,
	jobsMgr *jobs.Manager,
	log *slog.Logger,
) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		cfg:       cfg,
		analyzer:  an,
		detector:  det,
		redactor:  red,
		auditor:   auditor,
		validator: val,
		profiles:  profiles,
		obs:       obs,
		jobsMgr:   jobsMgr,
		log:       log,
	}
}

// Jobs returns the job manager, nil when job tracking is disabled.
func (p *Processor) Jobs() *jobs.Manager { return p.jobsMgr }

// ProcessDocument runs the full pipeline on one file. The returned result
// is populated as far as the pipeline got, even on failure; the error is
// non-nil exactly when Success is false.
func (p *Processor) ProcessDocument(ctx context.Context, path, profileName string) (*ProcessingResult, error) {
	start := time.Now().UTC()
	result := &ProcessingResult{
		ID:          uuid.New().String(),
		Status:      StatusInProgress,
		StartedAt:   start,
		ProfileName: profileName,
	}

	var job *jobs.Job
	if p.jobsMgr != nil {
		job = p.jobsMgr.Create(jobs.KindDocument, path, profileName)
		if startErr := p.jobsMgr.Start(job.ID); startErr != nil {
			p.log.Warn("failed to start job", "job_id", job.ID, "error", startErr)
		}
	}

	err := p.run(ctx, path, profileName, result)

	result.CompletedAt = time.Now().UTC()
	result.Metrics.TotalTime = result.CompletedAt.Sub(start).Seconds()
	result.Metrics.MemoryPeak = memoryPeak()

	switch {
	case err == nil:
		result.Status = StatusCompleted
		result.Success = true
	case ctx.Err() != nil:
		result.Status = StatusCancelled
		result.Errors = append(result.Errors, ctx.Err().Error())
	default:
		result.Status = StatusFailed
		result.Errors = append(result.Errors, err.Error())
	}

	if job != nil {
		switch result.Status {
		case StatusCompleted:
			_ = p.jobsMgr.Complete(job.ID, result.OutputPath)
		case StatusCancelled:
			_, _ = p.jobsMgr.Cancel(job.ID)
		default:
			_ = p.jobsMgr.Fail(job.ID, err)
		}
	}

	p.record(result)
	if p.obs != nil && result.Success {
		spanCtx := context.WithoutCancel(ctx)
		p.obs.RecordDocument(spanCtx, result.CompletedAt.Sub(start))
		p.obs.RecordDetections(spanCtx, result.Metrics.DetectionCount)
	}

	p.log.Info("document processed",
		"path", path,
		"profile", profileName,
		"status", string(result.Status),
		"detections", result.Metrics.DetectionCount,
		"duration", result.Metrics.TotalTime)
	return result, err
}

func (p *Processor) run(ctx context.Context, path, profileName string, result *ProcessingResult) error {
	prof, err := p.profiles.Load(profileName, true)
	if err != nil {
		p.logFailure(nil, "", err)
		return fmt.Errorf("processor: load profile %q: %w", profileName, err)
	}

	// Analyze.
	doc, warnings, err := p.analyzer.Analyze(path)
	if err != nil {
		p.logFailure(nil, "", err)
		return err
	}
	result.DocumentID = doc.ID
	result.InputDocument = doc
	result.Warnings = append(result.Warnings, warnings...)
	result.Metrics.PagesProcessed = doc.PageCount()

	uploadLog, err := p.auditor.LogDocumentUpload(doc.ID, path, doc.FileHash, profileName)
	if err != nil {
		p.auditDegrade(ctx, result, "upload", err)
	}
	result.AuditLog = uploadLog

	// Detect.
	detectStart := time.Now()
	detections, detectWarnings, err := p.detect(ctx, doc, prof)
	result.Metrics.DetectionTime = time.Since(detectStart).Seconds()
	if err != nil {
		p.logFailure(uploadLog, doc.ID, err)
		return err
	}
	result.Detections = detections
	result.Warnings = append(result.Warnings, detectWarnings...)
	result.Metrics.DetectionCount = detections.Len()

	if _, err := p.auditor.LogDetection(uploadLog, detections.Stats().ByType,
		detectWarnings, result.Metrics.DetectionTime); err != nil {
		p.auditDegrade(ctx, result, "detection", err)
	}

	// Redact.
	redactStart := time.Now()
	redaction, err := p.redact(ctx, doc, detections.Detections, prof)
	result.Metrics.RedactionTime = time.Since(redactStart).Seconds()
	if err != nil {
		p.logFailure(uploadLog, doc.ID, err)
		return err
	}
	result.OutputPath = redaction.OutputPath
	result.Warnings = append(result.Warnings, redaction.Warnings...)

	outputHash, err := crypto.HashFile(redaction.OutputPath)
	if err != nil {
		p.logFailure(uploadLog, doc.ID, err)
		return fmt.Errorf("processor: hash output: %w", err)
	}
	redactionLog, err := p.auditor.LogRedaction(uploadLog, redaction.OutputPath,
		outputHash, result.Metrics.RedactionTime)
	if err != nil {
		p.auditDegrade(ctx, result, "redaction", err)
	}
	if p.obs != nil {
		p.obs.RecordRedactions(ctx, redaction.Statistics.RedactedDetections)
	}

	// Validate.
	report := p.validator.Validate(redaction.OutputPath, outputHash, redactionLog)
	if _, err := p.auditor.LogValidation(doc.ID, report.Valid(), map[string]any{
		"result": report.OverallResult,
		"issues": len(report.Issues),
	}); err != nil {
		p.auditDegrade(ctx, result, "validation", err)
	}
	if !report.Valid() {
		return fmt.Errorf("processor: output failed integrity validation (%s)", report.OverallResult)
	}
	return nil
}

func (p *Processor) detect(ctx context.Context, doc *document.Document, prof *profile.Profile) (*pii.Collection, []string, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	in := detect.Input{
		Document: doc,
		Render: func(page int) (image.Image, error) {
			return p.analyzer.PageImage(doc.Path, page)
		},
	}
	return p.detector.Detect(ctx, in, prof)
}

func (p *Processor) redact(ctx context.Context, doc *document.Document, detections []pii.Detection, prof *profile.Profile) (*redact.Result, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()
	return p.redactor.Apply(ctx, doc, detections, prof)
}

// stageContext applies the configured per-stage timeout when one is set.
func (p *Processor) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.cfg.StageTimeout > 0 {
		return context.WithTimeout(ctx, p.cfg.StageTimeout)
	}
	return context.WithCancel(ctx)
}

func (p *Processor) logFailure(parent *audit.Log, documentID string, procErr error) {
	if _, err := p.auditor.LogError(parent, audit.OpErrorOccurred, documentID, procErr); err != nil {
		p.log.Error("failed to audit pipeline error", "error", err, "cause", procErr)
	}
}

// auditDegrade records a failed audit write. Persistence failures degrade
// health and surface as a result warning; the in-memory record keeps the
// chain intact, so the document itself still completes.
func (p *Processor) auditDegrade(ctx context.Context, result *ProcessingResult, stage string, err error) {
	p.log.Warn("audit write failed, continuing degraded", "stage", stage, "error", err)
	result.Warnings = append(result.Warnings,
		fmt.Sprintf("audit record for %s stage not persisted: %v", stage, err))
	p.mu.Lock()
	p.auditDegraded = true
	p.mu.Unlock()
	if p.obs != nil {
		p.obs.RecordAuditFailure(context.WithoutCancel(ctx))
	}
}

func (p *Processor) record(result *ProcessingResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Processed++
	if result.Success {
		p.stats.Succeeded++
	} else {
		p.stats.Failed++
	}
	p.stats.TotalDetections += result.Metrics.DetectionCount
	p.stats.TotalPages += result.Metrics.PagesProcessed
	p.stats.TotalTime += result.Metrics.TotalTime
}

// GetProcessingStatistics returns a snapshot of the aggregate counters.
func (p *Processor) GetProcessingStatistics() Statistics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// ResetProcessingStatistics zeroes the aggregate counters.
func (p *Processor) ResetProcessingStatistics() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats = Statistics{}
}

// HealthCheck reports component health. A missing analyzer or redaction
// engine makes the processor unhealthy; a missing detection engine or audit
// system, a failed audit write, or an unreachable storage directory only
// degrade it.
func (p *Processor) HealthCheck() map[string]any {
	components := map[string]string{}
	unhealthy := false
	degraded := false

	if p.analyzer != nil {
		components["analyzer"] = "healthy"
	} else {
		components["analyzer"] = "unhealthy"
		unhealthy = true
	}
	if p.redactor != nil {
		components["redactor"] = "healthy"
	} else {
		components["redactor"] = "unhealthy"
		unhealthy = true
	}
	if p.detector != nil && len(p.detector.Engines()) > 0 {
		components["detector"] = "healthy"
	} else {
		components["detector"] = "degraded"
		degraded = true
	}
	switch {
	case p.auditor == nil:
		components["audit"] = "degraded"
		degraded = true
	case p.isAuditDegraded():
		components["audit"] = "degraded"
		degraded = true
	default:
		components["audit"] = "healthy"
	}
	if info, err := os.Stat(p.cfg.StorageDir); err == nil && info.IsDir() {
		components["storage"] = "healthy"
	} else {
		components["storage"] = "degraded"
		degraded = true
	}

	status := "healthy"
	switch {
	case unhealthy:
		status = "unhealthy"
	case degraded:
		status = "degraded"
	}
	return map[string]any{
		"status":            status,
		"components":        components,
		"supported_formats": p.cfg.SupportedFormats,
		"statistics":        p.GetProcessingStatistics(),
		"checked_at":        time.Now().UTC(),
	}
}

func (p *Processor) isAuditDegraded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auditDegraded
}

func memoryPeak() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapAlloc
}
