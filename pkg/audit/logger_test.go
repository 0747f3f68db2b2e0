package audit_test

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

func newTestLogger(t *testing.T) *audit.Logger {
	t.Helper()
	cfg := config.Default()
	cfg.StorageDir = t.TempDir()

	lg, err := audit.NewLogger(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lg.Close() })
	return lg
}

func TestChain_SharedChainID(t *testing.T) {
	lg := newTestLogger(t)

	upload, err := lg.LogDocumentUpload("doc-1", "/in/scan.pdf", "aaaa", "default")
	require.NoError(t, err)
	detection, err := lg.LogDetection(upload, map[pii.Type]int{pii.TypeEmail: 2}, nil, 0.8)
	require.NoError(t, err)
	redaction, err := lg.LogRedaction(detection, "/out/redacted_scan.pdf", "bbbb", 1.2)
	require.NoError(t, err)

	assert.Equal(t, upload.ID, upload.ChainID)
	assert.Equal(t, upload.ChainID, detection.ChainID)
	assert.Equal(t, upload.ChainID, redaction.ChainID)
	assert.Equal(t, detection.ID, redaction.ParentID)

	trail, err := lg.GetChain(upload.ChainID)
	require.NoError(t, err)
	require.Len(t, trail.Logs, 3)
	assert.Equal(t, audit.OpDocumentUpload, trail.Logs[0].Operation)
	assert.Equal(t, audit.OpDocumentRedaction, trail.Logs[2].Operation)
	assert.Empty(t, trail.CheckIntegrity(lg.Signer()))
}

func TestSign_Idempotent(t *testing.T) {
	lg := newTestLogger(t)

	l := audit.NewLog(audit.OpPIIDetection, audit.LevelInfo)
	l.DocumentID = "doc-2"
	require.NoError(t, l.Sign(lg.Signer()))
	first := l.Signature

	// Unchanged content keeps its signature.
	require.NoError(t, l.Sign(lg.Signer()))
	assert.Equal(t, first, l.Signature)

	// Changed content gets re-signed and the old signature no longer holds.
	l.ErrorMessage = "tampered"
	assert.Error(t, l.Verify(lg.Signer()))
	require.NoError(t, l.Sign(lg.Signer()))
	assert.NotEqual(t, first, l.Signature)
	assert.NoError(t, l.Verify(lg.Signer()))
}

func TestValidateAll_FlagsTampering(t *testing.T) {
	lg := newTestLogger(t)
	_, err := lg.LogDocumentUpload("doc-3", "/in/a.png", "cccc", "default")
	require.NoError(t, err)
	_, err = lg.LogValidation("doc-3", true, nil)
	require.NoError(t, err)

	valid, invalid, issues, err := lg.ValidateAll()
	require.NoError(t, err)
	assert.Equal(t, 2, valid)
	assert.Zero(t, invalid)
	assert.Empty(t, issues)
}

func TestQuery_FiltersCombineWithAND(t *testing.T) {
	lg := newTestLogger(t)
	_, err := lg.LogDocumentUpload("doc-a", "/in/a.png", "h1", "default")
	require.NoError(t, err)
	_, err = lg.LogDocumentUpload("doc-b", "/in/b.png", "h2", "default")
	require.NoError(t, err)
	_, err = lg.LogValidation("doc-a", true, nil)
	require.NoError(t, err)

	logs, err := lg.Query(audit.QueryParams{
		DocumentID: "doc-a",
		Operation:  audit.OpDocumentUpload,
	})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "doc-a", logs[0].DocumentID)

	// Round-tripped fields survive persistence.
	assert.Equal(t, []string{"/in/a.png"}, logs[0].FilePaths)
	assert.Equal(t, "h1", logs[0].InputHash)
	assert.NotEmpty(t, logs[0].Signature)

	all, err := lg.Query(audit.QueryParams{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	limited, err := lg.Query(audit.QueryParams{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestExportJSON_Shape(t *testing.T) {
	lg := newTestLogger(t)
	_, err := lg.LogDocumentUpload("doc-x", "/in/x.pdf", "hx", "default")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, lg.ExportJSON(&buf, audit.QueryParams{DocumentID: "doc-x"}))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Contains(t, doc, "export_timestamp")
	assert.Contains(t, doc, "query_params")
	assert.Equal(t, float64(1), doc["total_logs"])
	assert.Len(t, doc["logs"], 1)
}

func TestExportCSV_FixedColumns(t *testing.T) {
	lg := newTestLogger(t)
	_, err := lg.LogDocumentUpload("doc-y", "/in/y.pdf", "hy", "default")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, lg.ExportCSV(&buf, audit.QueryParams{}))

	rows, err := csv.NewReader(strings.NewReader(buf.String())).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ID", "Operation", "Timestamp", "Level", "Document ID",
		"User ID", "Profile", "Input Hash", "Output Hash", "Signed", "Error"}, rows[0])
	assert.Equal(t, "document_upload", rows[1][1])
	assert.Equal(t, "true", rows[1][9])
}

func TestCleanupOld(t *testing.T) {
	lg := newTestLogger(t)

	old := audit.NewLog(audit.OpCleanup, audit.LevelInfo)
	old.Timestamp = time.Now().UTC().AddDate(0, 0, -400)
	require.NoError(t, lg.Log(old))
	_, err := lg.LogValidation("doc-z", true, nil)
	require.NoError(t, err)

	removed, err := lg.CleanupOld(365)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	remaining, err := lg.Query(audit.QueryParams{})
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestTrail_SaveAndLoad(t *testing.T) {
	lg := newTestLogger(t)
	upload, err := lg.LogDocumentUpload("doc-t", "/in/t.pdf", "ht", "default")
	require.NoError(t, err)
	detection, err := lg.LogDetection(upload, nil, nil, 0.1)
	require.NoError(t, err)

	trail := audit.NewTrail("doc-t processing")
	trail.Metadata = map[string]any{"source": "batch-7"}
	trail.Append(upload)
	trail.Append(detection)
	require.NoError(t, lg.SaveTrail(trail))

	loaded, err := lg.GetTrail(trail.ID)
	require.NoError(t, err)
	assert.Equal(t, "doc-t processing", loaded.Name)
	require.Len(t, loaded.Logs, 2)
	assert.Equal(t, upload.ID, loaded.Logs[0].ID)
}

func TestTrail_IntegrityIssues(t *testing.T) {
	trail := audit.NewTrail("broken")
	a := audit.NewLog(audit.OpPIIDetection, audit.LevelInfo)
	b := audit.NewLog(audit.OpPIIDetection, audit.LevelInfo)
	b.ID = a.ID
	b.Timestamp = a.Timestamp.Add(-time.Minute)
	trail.Append(a)
	trail.Append(b)

	issues := trail.CheckIntegrity(nil)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "duplicate log id")
	assert.Contains(t, issues[1], "timestamp regression")
}
