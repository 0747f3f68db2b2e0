package processor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/jobs"
)

// ErrNoDocuments is returned when a batch directory holds no supported files.
var ErrNoDocuments = errors.New("processor: no supported documents in directory")

// BatchOptions tunes a batch run.
type BatchOptions struct {
	// ContinueOnError keeps the batch going past per-document failures.
	// When false the first failure cancels the remaining work; documents
	// already in flight finish normally.
	ContinueOnError bool
	// Recursive walks subdirectories too.
	Recursive bool
}

// BatchResult is the outcome of a directory run. SuccessRate is the share
// of all enumerated documents that succeeded, as a percentage.
type BatchResult struct {
	ID          string              `json:"id"`
	Directory   string              `json:"directory"`
	ProfileName string              `json:"profile_name"`
	Total       int                 `json:"total"`
	Succeeded   int                 `json:"succeeded"`
	Failed      int                 `json:"failed"`
	SuccessRate float64             `json:"success_rate"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Results     []*ProcessingResult `json:"results"`
}

// BatchProcess runs the pipeline over every supported document in dir with
// up to MaxWorkers documents in flight. Per-document failures never abort
// documents already running; with ContinueOnError they do not abort queued
// ones either.
func (p *Processor) BatchProcess(ctx context.Context, dir, profileName string, opts BatchOptions) (*BatchResult, error) {
	files, err := p.collectFiles(dir, opts.Recursive)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocuments, dir)
	}

	batch := &BatchResult{
		ID:          uuid.New().String(),
		Directory:   dir,
		ProfileName: profileName,
		Total:       len(files),
		StartedAt:   time.Now().UTC(),
		Results:     make([]*ProcessingResult, len(files)),
	}
	p.log.Info("batch started",
		"batch_id", batch.ID, "directory", dir, "documents", len(files), "workers", p.cfg.MaxWorkers)

	var batchJob *jobs.Job
	if p.jobsMgr != nil {
		batchJob = p.jobsMgr.Create(jobs.KindBatch, dir, profileName)
		if startErr := p.jobsMgr.Start(batchJob.ID); startErr != nil {
			p.log.Warn("failed to start batch job", "job_id", batchJob.ID, "error", startErr)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.MaxWorkers)

	var (
		mu   sync.Mutex
		done int
	)
	for i, path := range files {
		g.Go(func() error {
			// Skip queued work once the batch is cancelled; in-flight
			// documents are not interrupted mid-stage.
			if gctx.Err() != nil {
				return nil
			}
			result, procErr := p.ProcessDocument(gctx, path, profileName)
			mu.Lock()
			batch.Results[i] = result
			done++
			progress := float64(done) / float64(len(files)) * 100
			mu.Unlock()

			if batchJob != nil {
				_ = p.jobsMgr.UpdateProgress(batchJob.ID, progress)
			}
			if procErr != nil && !opts.ContinueOnError {
				return fmt.Errorf("processor: %s: %w", path, procErr)
			}
			return nil
		})
	}
	batchErr := g.Wait()

	batch.CompletedAt = time.Now().UTC()
	for _, r := range batch.Results {
		if r == nil {
			continue
		}
		if r.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
	}
	batch.SuccessRate = float64(batch.Succeeded) / float64(batch.Total) * 100

	if batchJob != nil {
		switch {
		case ctx.Err() != nil:
			_, _ = p.jobsMgr.Cancel(batchJob.ID)
		case batchErr != nil:
			_ = p.jobsMgr.Fail(batchJob.ID, batchErr)
		default:
			_ = p.jobsMgr.Complete(batchJob.ID, map[string]any{
				"succeeded": batch.Succeeded,
				"failed":    batch.Failed,
			})
		}
	}

	p.logBatch(batch)
	p.log.Info("batch finished",
		"batch_id", batch.ID,
		"succeeded", batch.Succeeded,
		"failed", batch.Failed,
		"success_rate", batch.SuccessRate)
	return batch, batchErr
}

func (p *Processor) collectFiles(dir string, recursive bool) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("processor: stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("processor: %s is not a directory", dir)
	}

	var files []string
	walk := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !recursive && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if p.cfg.SupportsExtension(strings.ToLower(filepath.Ext(path))) {
			files = append(files, path)
		}
		return nil
	}
	if err := filepath.WalkDir(dir, walk); err != nil {
		return nil, fmt.Errorf("processor: walk %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

func (p *Processor) logBatch(batch *BatchResult) {
	l := audit.NewLog(audit.OpBatchProcessing, audit.LevelInfo)
	if batch.Failed > 0 {
		l.Level = audit.LevelWarning
	}
	l.ProfileName = batch.ProfileName
	l.FilePaths = []string{batch.Directory}
	l.ProcessingTime = batch.CompletedAt.Sub(batch.StartedAt).Seconds()
	l.Details = map[string]any{
		"batch_id":     batch.ID,
		"total":        batch.Total,
		"succeeded":    batch.Succeeded,
		"failed":       batch.Failed,
		"success_rate": batch.SuccessRate,
	}
	if err := p.auditor.Log(l); err != nil {
		p.log.Error("failed to audit batch", "batch_id", batch.ID, "error", err)
	}
}
