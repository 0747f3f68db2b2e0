package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gopnik-forensics/gopnik/pkg/config"
	"github.com/gopnik-forensics/gopnik/pkg/crypto"
	"github.com/gopnik-forensics/gopnik/pkg/pii"
)

const (
	dbFileName  = "audit.db"
	keySubdir   = "signing_keys"
	timeLayout  = time.RFC3339Nano
	insertRetry = 1
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id                 TEXT PRIMARY KEY,
	operation          TEXT NOT NULL,
	timestamp          TEXT NOT NULL,
	level              TEXT NOT NULL,
	document_id        TEXT,
	user_id            TEXT,
	session_id         TEXT,
	profile_name       TEXT,
	detections_summary TEXT,
	input_hash         TEXT,
	output_hash        TEXT,
	file_paths         TEXT,
	error_message      TEXT,
	warning_messages   TEXT,
	processing_time    REAL,
	memory_usage       INTEGER,
	signature          TEXT,
	parent_id          TEXT,
	chain_id           TEXT,
	system_info        TEXT,
	details            TEXT
);
CREATE TABLE IF NOT EXISTS audit_trails (
	id       TEXT PRIMARY KEY,
	name     TEXT NOT NULL,
	metadata TEXT,
	log_ids  TEXT
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_operation   ON audit_logs(operation);
CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp   ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_logs_document_id ON audit_logs(document_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_user_id     ON audit_logs(user_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_chain_id    ON audit_logs(chain_id);
`

// Logger persists signed audit records to SQLite. Writes are serialized;
// a failed insert is retried once before surfacing the error.
type Logger struct {
	mu       sync.Mutex
	db       *sql.DB
	signer   *crypto.Signer
	autoSign bool
	log      *slog.Logger
}

// NewLogger opens (or creates) the audit database under cfg.StorageDir and
// loads or generates the RSA signing keypair when signing is enabled.
func NewLogger(cfg *config.Config, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(cfg.StorageDir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create storage dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(cfg.StorageDir, dbFileName))
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: create schema: %w", err)
	}

	var signer *crypto.Signer
	if cfg.SigningEnabled {
		keyring, err := crypto.LoadOrGenerateKeyring(
			filepath.Join(cfg.StorageDir, keySubdir), crypto.KeyTypeRSA)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		signer = crypto.NewSigner(keyring)
	}

	return &Logger{
		db:       db,
		signer:   signer,
		autoSign: cfg.AutoSign && signer != nil,
		log:      log,
	}, nil
}

// NewLoggerWithDB wires a logger onto an existing database handle. The
// schema must already exist. Used by tests and embedders.
func NewLoggerWithDB(db *sql.DB, signer *crypto.Signer, autoSign bool, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}
	return &Logger{db: db, signer: signer, autoSign: autoSign && signer != nil, log: log}
}

// Signer exposes the signer for integrity validation. Nil when signing is
// disabled.
func (lg *Logger) Signer() *crypto.Signer { return lg.signer }

// Close releases the database handle.
func (lg *Logger) Close() error { return lg.db.Close() }

// Log signs (when auto-sign is on) and persists a record.
func (lg *Logger) Log(l *Log) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	if lg.autoSign {
		if err := l.Sign(lg.signer); err != nil {
			return err
		}
	}

	var err error
	for attempt := 0; attempt <= insertRetry; attempt++ {
		if err = lg.insert(l); err == nil {
			return nil
		}
		lg.log.Warn("audit insert failed", "log_id", l.ID, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("audit: insert log %s: %w", l.ID, err)
}

func (lg *Logger) insert(l *Log) error {
	_, err := lg.db.Exec(`INSERT INTO audit_logs (
		id, operation, timestamp, level, document_id, user_id, session_id,
		profile_name, detections_summary, input_hash, output_hash, file_paths,
		error_message, warning_messages, processing_time, memory_usage,
		signature, parent_id, chain_id, system_info, details
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		l.ID, string(l.Operation), l.Timestamp.UTC().Format(timeLayout), string(l.Level),
		l.DocumentID, l.UserID, l.SessionID, l.ProfileName,
		marshalJSON(l.DetectionsSummary), l.InputHash, l.OutputHash, marshalJSON(l.FilePaths),
		l.ErrorMessage, marshalJSON(l.WarningMessages), l.ProcessingTime, l.MemoryUsage,
		l.Signature, l.ParentID, l.ChainID, marshalJSON(l.SystemInfo), marshalJSON(l.Details))
	return err
}

// LogDocumentUpload opens a new chain for a document entering the pipeline.
func (lg *Logger) LogDocumentUpload(documentID, path, inputHash, profileName string) (*Log, error) {
	l := NewLog(OpDocumentUpload, LevelInfo)
	l.DocumentID = documentID
	l.ChainID = l.ID
	l.ProfileName = profileName
	l.InputHash = inputHash
	l.FilePaths = []string{path}
	l.SystemInfo = systemInfo()
	return l, lg.Log(l)
}

// LogDetection records a detection pass as a child of parent.
func (lg *Logger) LogDetection(parent *Log, summary map[pii.Type]int, warnings []string, processingTime float64) (*Log, error) {
	l := parent.Child(OpPIIDetection, LevelInfo)
	l.DetectionsSummary = summary
	l.WarningMessages = warnings
	l.ProcessingTime = processingTime
	return l, lg.Log(l)
}

// LogRedaction records a redaction pass as a child of parent.
func (lg *Logger) LogRedaction(parent *Log, outputPath, outputHash string, processingTime float64) (*Log, error) {
	l := parent.Child(OpDocumentRedaction, LevelInfo)
	l.OutputHash = outputHash
	l.FilePaths = []string{outputPath}
	l.ProcessingTime = processingTime
	return l, lg.Log(l)
}

// LogValidation records an integrity validation verdict.
func (lg *Logger) LogValidation(documentID string, valid bool, details map[string]any) (*Log, error) {
	level := LevelInfo
	if !valid {
		level = LevelWarning
	}
	l := NewLog(OpDocumentValidation, level)
	l.DocumentID = documentID
	l.Details = details
	return l, lg.Log(l)
}

// LogError records a failure, attached to a chain when parent is non-nil.
func (lg *Logger) LogError(parent *Log, op Operation, documentID string, procErr error) (*Log, error) {
	var l *Log
	if parent != nil {
		l = parent.Child(op, LevelError)
	} else {
		l = NewLog(op, LevelError)
		l.DocumentID = documentID
	}
	l.ErrorMessage = procErr.Error()
	return l, lg.Log(l)
}

// LogSystemStartup records engine start with environment details.
func (lg *Logger) LogSystemStartup(version string) (*Log, error) {
	l := NewLog(OpSystemStartup, LevelInfo)
	l.SystemInfo = systemInfo()
	l.Details = map[string]any{"version": version}
	return l, lg.Log(l)
}

func systemInfo() map[string]any {
	host, _ := os.Hostname()
	return map[string]any{
		"hostname":   host,
		"os":         runtime.GOOS,
		"arch":       runtime.GOARCH,
		"go_version": runtime.Version(),
	}
}

func marshalJSON(v any) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
