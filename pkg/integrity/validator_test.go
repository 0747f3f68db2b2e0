package integrity_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/audit"
	"github.com/gopnik-forensics/gopnik/pkg/crypto"
	"github.com/gopnik-forensics/gopnik/pkg/integrity"
)

func testSigner(t *testing.T) *crypto.Signer {
	t.Helper()
	keyring, err := crypto.GenerateKeyring(crypto.KeyTypeRSA)
	require.NoError(t, err)
	return crypto.NewSigner(keyring)
}

// validPair writes a document and a signed audit record that matches it.
func validPair(t *testing.T, signer *crypto.Signer) (string, *audit.Log) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redacted_scan.png")
	require.NoError(t, os.WriteFile(path, []byte("redacted content"), 0o600))
	hash, err := crypto.HashFile(path)
	require.NoError(t, err)

	record := audit.NewLog(audit.OpDocumentRedaction, audit.LevelInfo)
	record.DocumentID = "doc-1"
	record.OutputHash = hash
	record.FilePaths = []string{path}
	require.NoError(t, record.Sign(signer))
	return path, record
}

func TestValidate_Valid(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)

	report := integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultValid, report.OverallResult)
	assert.True(t, report.Valid())
	assert.Equal(t, "doc-1", report.DocumentID)
	assert.Equal(t, record.OutputHash, report.DocumentHash)
	assert.Equal(t, record.OutputHash, report.ExpectedHash)
	assert.True(t, report.Signed)
	assert.True(t, report.SignatureValid)
	assert.True(t, report.AuditTrailValid)
}

func TestValidate_MissingFile(t *testing.T) {
	signer := testSigner(t)
	report := integrity.New(signer, nil).Validate("/nonexistent/out.png", "", nil)
	assert.Equal(t, integrity.ResultMissingData, report.OverallResult)
}

func TestValidate_HashMismatch(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)
	require.NoError(t, os.WriteFile(path, []byte("modified after audit"), 0o600))

	report := integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultHashMismatch, report.OverallResult)
	assert.False(t, report.Valid())
	assert.NotEqual(t, report.ExpectedHash, report.DocumentHash)
}

func TestValidate_ExplicitExpectedHash(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)

	// The explicit hash wins over the record's output hash.
	report := integrity.New(signer, nil).Validate(path, "deadbeef0000deadbeef", record)
	assert.Equal(t, integrity.ResultHashMismatch, report.OverallResult)
	assert.Equal(t, "deadbeef0000deadbeef", report.ExpectedHash)
}

func TestValidate_TamperedRecord(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)
	record.UserID = "injected"

	report := integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultSignatureMismatch, report.OverallResult)
	assert.True(t, report.Signed)
	assert.False(t, report.SignatureValid)
}

func TestValidate_FilenameMismatch(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)
	record.FilePaths = []string{"/somewhere/else.png"}
	require.NoError(t, record.Sign(signer))

	report := integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultAuditTrailInvalid, report.OverallResult)
	assert.False(t, report.AuditTrailValid)
}

func TestValidate_FutureTimestamp(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)
	record.Timestamp = time.Now().UTC().Add(time.Hour)
	require.NoError(t, record.Sign(signer))

	report := integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultAuditTrailInvalid, report.OverallResult)

	// Small skew within the grace window passes.
	record.Timestamp = time.Now().UTC().Add(time.Minute)
	require.NoError(t, record.Sign(signer))
	report = integrity.New(signer, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultValid, report.OverallResult)
}

func TestValidate_UnsignedRecord(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)
	record.Signature = ""

	report := integrity.New(nil, nil).Validate(path, "", record)
	assert.Equal(t, integrity.ResultValid, report.OverallResult)
	assert.False(t, report.Signed)
	assert.False(t, report.SignatureValid)
}

func TestValidateWithAuditFile(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)

	auditPath := filepath.Join(t.TempDir(), "record.json")
	data, err := json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(auditPath, data, 0o600))

	report := integrity.New(signer, nil).ValidateWithAuditFile(path, "", auditPath)
	assert.Equal(t, integrity.ResultValid, report.OverallResult)
	assert.True(t, report.SignatureValid)
}

func TestValidateWithAuditFile_Unparsable(t *testing.T) {
	signer := testSigner(t)
	path, record := validPair(t, signer)

	auditPath := filepath.Join(t.TempDir(), "record.json")
	require.NoError(t, os.WriteFile(auditPath, []byte("{not json"), 0o600))

	// A broken audit file degrades to a warning; the hash check still runs.
	report := integrity.New(signer, nil).ValidateWithAuditFile(path, record.OutputHash, auditPath)
	assert.Equal(t, integrity.ResultValid, report.OverallResult)

	var loadIssue bool
	for _, i := range report.Issues {
		if i.Category == "audit_log_load_failed" {
			loadIssue = true
			assert.Equal(t, integrity.SeverityWarning, i.Severity)
		}
	}
	assert.True(t, loadIssue)
}

func TestValidateBatch(t *testing.T) {
	signer := testSigner(t)
	docDir := t.TempDir()
	auditDir := t.TempDir()

	for _, tc := range []struct {
		name    string
		content []byte
		tamper  bool
	}{
		{"good.png", []byte("good output"), false},
		{"bad.png", []byte("bad output"), true},
	} {
		path := filepath.Join(docDir, tc.name)
		require.NoError(t, os.WriteFile(path, tc.content, 0o600))
		hash, err := crypto.HashFile(path)
		require.NoError(t, err)

		record := audit.NewLog(audit.OpDocumentRedaction, audit.LevelInfo)
		record.DocumentID = tc.name
		record.OutputHash = hash
		record.FilePaths = []string{path}
		require.NoError(t, record.Sign(signer))

		if tc.tamper {
			require.NoError(t, os.WriteFile(path, []byte("tampered"), 0o600))
		}
		data, err := json.Marshal(record)
		require.NoError(t, err)
		stem := tc.name[:len(tc.name)-len(filepath.Ext(tc.name))]
		require.NoError(t, os.WriteFile(filepath.Join(auditDir, stem+".json"), data, 0o600))
	}

	reports, err := integrity.New(signer, nil).ValidateBatch(docDir, auditDir, "*.png")
	require.NoError(t, err)
	require.Len(t, reports, 2)

	s := integrity.GenerateSummary(reports)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 1, s.ByResult[integrity.ResultHashMismatch])
	assert.NotZero(t, s.ByCategory["hash"])
	assert.Equal(t, 1.0, s.SignedRatio)
	assert.GreaterOrEqual(t, s.AvgProcessingTime, 0.0)
}

func TestValidateBatch_PatternFilter(t *testing.T) {
	signer := testSigner(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.txt"), []byte("y"), 0o600))

	reports, err := integrity.New(signer, nil).ValidateBatch(dir, "", "*.png")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, filepath.Join(dir, "a.png"), reports[0].DocumentPath)
}
