package processor_test

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/analyzer"
	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/detect"
	"github.com/gopnik-forensics/gopnik/pkg/integrity"
	"github.com/gopnik-forensics/gopnik/pkg/jobs"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
	"github.com/gopnik-forensics/gopnik/pkg/processor"
	"github.com/gopnik-forensics/gopnik/pkg/profile"
	"github.com/gopnik-forensics/gopnik/pkg/redact"
)

// fixedEngine reports one name detection on page 0 of every document.
type fixedEngine struct {
	fail bool
}

func (e *fixedEngine) DetectPII(ctx context.Context, in detect.Input) ([]pii.Detection, error) {
	if e.fail {
		return nil, context.DeadlineExceeded
	}
	box, err := pii.NewBoundingBox(40, 40, 160, 80)
	if err != nil {
		return nil, err
	}
	d, err := pii.NewDetection(pii.TypeName, box, 0.9, 0, pii.MethodNLP)
	if err != nil {
		return nil, err
	}
	d.TextContent = "Jane Doe"
	return []pii.Detection{d}, nil
}

func (e *fixedEngine) SupportedTypes() []pii.Type     { return []pii.Type{pii.TypeName} }
func (e *fixedEngine) Configure(map[string]any) error { return nil }
func (e *fixedEngine) ModelInfo() map[string]any      { return map[string]any{"engine": "fixed"} }

func writePNG(t *testing.T, dir, name string) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func newPipeline(t *testing.T, engine detect.Engine) (*processor.Processor, *audit.Logger, *config.Config) {
	t.Helper()
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()

	auditor, err := audit.NewLogger(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = auditor.Close() })

	proc := processor.New(
		cfg,
		analyzer.New(cfg, nil),
		detect.NewHybrid(cfg, nil, engine),
		redact.New(cfg, nil),
		auditor,
		integrity.New(auditor.Signer(), nil),
		profile.NewManager([]string{t.TempDir()}, nil),
		nil,
		jobs.NewManager(nil),
		nil,
	)
	return proc, auditor, cfg
}

func TestProcessDocument(t *testing.T) {
	proc, auditor, _ := newPipeline(t, &fixedEngine{})
	path := writePNG(t, t.TempDir(), "scan.png")

	result, err := proc.ProcessDocument(context.Background(), path, "default")
	require.NoError(t, err)
	assert.Equal(t, processor.StatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Metrics.DetectionCount)
	assert.Equal(t, 1, result.Metrics.PagesProcessed)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "redacted_scan.png"), result.OutputPath)

	_, err = os.Stat(result.OutputPath)
	require.NoError(t, err)

	// The audit chain carries upload, detection, redaction in order.
	require.NotNil(t, result.AuditLog)
	trail, err := auditor.GetChain(result.AuditLog.ChainID)
	require.NoError(t, err)
	require.Len(t, trail.Logs, 3)
	assert.Equal(t, audit.OpDocumentUpload, trail.Logs[0].Operation)
	assert.Equal(t, audit.OpPIIDetection, trail.Logs[1].Operation)
	assert.Equal(t, audit.OpDocumentRedaction, trail.Logs[2].Operation)
	assert.Empty(t, trail.CheckIntegrity(auditor.Signer()))

	stats := proc.GetProcessingStatistics()
	assert.Equal(t, 1, stats.Processed)
	assert.Equal(t, 1, stats.Succeeded)

	// The run is tracked as a completed document job.
	tracked := proc.Jobs().List(0, 0)
	require.Len(t, tracked, 1)
	assert.Equal(t, jobs.StatusCompleted, tracked[0].Status)
	assert.Equal(t, result.OutputPath, tracked[0].Result)
}

func TestProcessDocument_UnsupportedFormat(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	result, err := proc.ProcessDocument(context.Background(), path, "default")
	require.Error(t, err)
	assert.Equal(t, processor.StatusFailed, result.Status)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Errors)

	stats := proc.GetProcessingStatistics()
	assert.Equal(t, 1, stats.Failed)
}

func TestProcessDocument_Cancelled(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	path := writePNG(t, t.TempDir(), "scan.png")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := proc.ProcessDocument(ctx, path, "default")
	require.Error(t, err)
	assert.Equal(t, processor.StatusCancelled, result.Status)
}

func TestProcessDocument_AllEnginesFailed(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{fail: true})
	path := writePNG(t, t.TempDir(), "scan.png")

	result, err := proc.ProcessDocument(context.Background(), path, "default")
	require.Error(t, err)
	assert.Equal(t, processor.StatusFailed, result.Status)
}

func TestBatchProcess(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	writePNG(t, dir, "b.png")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o600))

	batch, err := proc.BatchProcess(context.Background(), dir, "default",
		processor.BatchOptions{ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 2, batch.Total)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 0, batch.Failed)
	assert.Equal(t, 100.0, batch.SuccessRate)
	require.Len(t, batch.Results, 2)

	var batchJobs int
	for _, j := range proc.Jobs().List(0, 0) {
		if j.Kind == jobs.KindBatch {
			batchJobs++
			assert.Equal(t, jobs.StatusCompleted, j.Status)
			assert.Equal(t, float64(100), j.Progress)
		}
	}
	assert.Equal(t, 1, batchJobs)
}

func TestBatchProcess_EmptyDir(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	_, err := proc.BatchProcess(context.Background(), t.TempDir(), "default", processor.BatchOptions{})
	assert.ErrorIs(t, err, processor.ErrNoDocuments)
}

func TestBatchProcess_ContinueOnError(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	dir := t.TempDir()
	writePNG(t, dir, "a.png")
	writePNG(t, dir, "b.png")
	writePNG(t, dir, "c.png")
	// A supported extension with bytes that do not decode.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o600))

	batch, err := proc.BatchProcess(context.Background(), dir, "default",
		processor.BatchOptions{ContinueOnError: true})
	require.NoError(t, err)
	assert.Equal(t, 4, batch.Total)
	assert.Equal(t, 3, batch.Succeeded)
	assert.Equal(t, 1, batch.Failed)
	assert.Equal(t, 75.0, batch.SuccessRate)
}

func TestHealthCheck(t *testing.T) {
	proc, _, cfg := newPipeline(t, &fixedEngine{})
	health := proc.HealthCheck()
	assert.Equal(t, "healthy", health["status"])

	components, ok := health["components"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "healthy", components["detector"])
	assert.Equal(t, "healthy", components["audit"])
	assert.Equal(t, cfg.SupportedFormats, health["supported_formats"])

	stats, ok := health["statistics"].(processor.Statistics)
	require.True(t, ok)
	assert.Zero(t, stats.Processed)
}

func TestHealthCheck_NoAuditIsDegraded(t *testing.T) {
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()
	proc := processor.New(cfg, analyzer.New(cfg, nil), nil, redact.New(cfg, nil),
		nil, integrity.New(nil, nil), profile.NewManager([]string{t.TempDir()}, nil),
		nil, nil, nil)

	health := proc.HealthCheck()
	assert.Equal(t, "degraded", health["status"])
	components := health["components"].(map[string]string)
	assert.Equal(t, "degraded", components["detector"])
	assert.Equal(t, "degraded", components["audit"])
	assert.Equal(t, "healthy", components["analyzer"])
}

func TestHealthCheck_NoRedactorIsUnhealthy(t *testing.T) {
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()
	proc := processor.New(cfg, analyzer.New(cfg, nil), nil, nil,
		nil, integrity.New(nil, nil), profile.NewManager([]string{t.TempDir()}, nil),
		nil, nil, nil)

	health := proc.HealthCheck()
	assert.Equal(t, "unhealthy", health["status"])
	components := health["components"].(map[string]string)
	assert.Equal(t, "unhealthy", components["redactor"])
}

func TestProcessDocument_AuditStoreDownDegrades(t *testing.T) {
	proc, auditor, _ := newPipeline(t, &fixedEngine{})
	path := writePNG(t, t.TempDir(), "scan.png")

	// Take the audit store down before processing. Records stay in memory,
	// persistence fails for every stage.
	require.NoError(t, auditor.Close())

	result, err := proc.ProcessDocument(context.Background(), path, "default")
	require.NoError(t, err, "a broken audit store must not fail the document")
	assert.Equal(t, processor.StatusCompleted, result.Status)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.Warnings)

	_, err = os.Stat(result.OutputPath)
	require.NoError(t, err)

	health := proc.HealthCheck()
	assert.Equal(t, "degraded", health["status"])
	components := health["components"].(map[string]string)
	assert.Equal(t, "degraded", components["audit"])
}

func TestResetProcessingStatistics(t *testing.T) {
	proc, _, _ := newPipeline(t, &fixedEngine{})
	path := writePNG(t, t.TempDir(), "scan.png")
	_, err := proc.ProcessDocument(context.Background(), path, "default")
	require.NoError(t, err)

	proc.ResetProcessingStatistics()
	assert.Equal(t, processor.Statistics{}, proc.GetProcessingStatistics())
}
