package audit

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

// QueryParams narrow a log query. Zero values mean "no constraint"; set
// constraints combine with AND.
type QueryParams struct {
	Operation  Operation `json:"operation,omitempty"`
	Level      Level     `json:"level,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	ChainID    string    `json:"chain_id,omitempty"`
	From       time.Time `json:"from,omitempty"`
	To         time.Time `json:"to,omitempty"`
	Limit      int       `json:"limit,omitempty"`
}

// Query returns matching logs ordered by timestamp ascending.
func (lg *Logger) Query(p QueryParams) ([]*Log, error) {
	query := `SELECT id, operation, timestamp, level, document_id, user_id,
		session_id, profile_name, detections_summary, input_hash, output_hash,
		file_paths, error_message, warning_messages, processing_time,
		memory_usage, signature, parent_id, chain_id, system_info, details
		FROM audit_logs WHERE 1=1`
	var args []any

	if p.Operation != "" {
		query += " AND operation = ?"
		args = append(args, string(p.Operation))
	}
	if p.Level != "" {
		query += " AND level = ?"
		args = append(args, string(p.Level))
	}
	if p.DocumentID != "" {
		query += " AND document_id = ?"
		args = append(args, p.DocumentID)
	}
	if p.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, p.UserID)
	}
	if p.ChainID != "" {
		query += " AND chain_id = ?"
		args = append(args, p.ChainID)
	}
	if !p.From.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, p.From.UTC().Format(timeLayout))
	}
	if !p.To.IsZero() {
		query += " AND timestamp < ?"
		args = append(args, p.To.UTC().Format(timeLayout))
	}
	query += " ORDER BY timestamp ASC"
	if p.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, p.Limit)
	}

	rows, err := lg.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// GetChain returns the full processing chain in order.
func (lg *Logger) GetChain(chainID string) (*Trail, error) {
	logs, err := lg.Query(QueryParams{ChainID: chainID})
	if err != nil {
		return nil, err
	}
	trail := NewTrail("chain " + chainID)
	trail.Logs = logs
	return trail, nil
}

// ValidateAll verifies the signature of every stored log. Unsigned logs
// count as invalid when signing is enabled.
func (lg *Logger) ValidateAll() (valid, invalid int, issues []string, err error) {
	if lg.signer == nil {
		return 0, 0, nil, fmt.Errorf("audit: signing disabled, nothing to validate")
	}
	logs, err := lg.Query(QueryParams{})
	if err != nil {
		return 0, 0, nil, err
	}
	for _, l := range logs {
		if verr := l.Verify(lg.signer); verr != nil {
			invalid++
			issues = append(issues, verr.Error())
			continue
		}
		valid++
	}
	return valid, invalid, issues, nil
}

// ExportJSON writes matching logs as a single JSON document with export
// metadata.
func (lg *Logger) ExportJSON(w io.Writer, p QueryParams) error {
	logs, err := lg.Query(p)
	if err != nil {
		return err
	}
	doc := map[string]any{
		"export_timestamp": time.Now().UTC().Format(timeLayout),
		"query_params":     p,
		"total_logs":       len(logs),
		"logs":             logs,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// ExportCSV writes matching logs with a fixed column set.
func (lg *Logger) ExportCSV(w io.Writer, p QueryParams) error {
	logs, err := lg.Query(p)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	header := []string{"ID", "Operation", "Timestamp", "Level", "Document ID",
		"User ID", "Profile", "Input Hash", "Output Hash", "Signed", "Error"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("audit: csv header: %w", err)
	}
	for _, l := range logs {
		row := []string{
			l.ID, string(l.Operation), l.Timestamp.Format(timeLayout), string(l.Level),
			l.DocumentID, l.UserID, l.ProfileName, l.InputHash, l.OutputHash,
			strconv.FormatBool(l.Signature != ""), l.ErrorMessage,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("audit: csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// CleanupOld deletes logs older than the retention window and returns the
// number removed.
func (lg *Logger) CleanupOld(retentionDays int) (int64, error) {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays).Format(timeLayout)
	res, err := lg.db.Exec(`DELETE FROM audit_logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit: cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		lg.log.Info("audit logs pruned", "removed", n, "retention_days", retentionDays)
	}
	return n, nil
}

// SaveTrail persists a trail's membership list.
func (lg *Logger) SaveTrail(t *Trail) error {
	lg.mu.Lock()
	defer lg.mu.Unlock()

	ids := make([]string, len(t.Logs))
	for i, l := range t.Logs {
		ids[i] = l.ID
	}
	_, err := lg.db.Exec(`INSERT OR REPLACE INTO audit_trails (id, name, metadata, log_ids)
		VALUES (?, ?, ?, ?)`,
		t.ID, t.Name, marshalJSON(t.Metadata), marshalJSON(ids))
	if err != nil {
		return fmt.Errorf("audit: save trail %s: %w", t.ID, err)
	}
	return nil
}

// GetTrail loads a saved trail and rehydrates its logs.
func (lg *Logger) GetTrail(id string) (*Trail, error) {
	row := lg.db.QueryRow(`SELECT id, name, metadata, log_ids FROM audit_trails WHERE id = ?`, id)

	var t Trail
	var metaRaw, idsRaw string
	if err := row.Scan(&t.ID, &t.Name, &metaRaw, &idsRaw); err != nil {
		return nil, fmt.Errorf("audit: load trail %s: %w", id, err)
	}
	unmarshalJSON(metaRaw, &t.Metadata)

	var ids []string
	unmarshalJSON(idsRaw, &ids)
	for _, logID := range ids {
		logs, err := lg.queryByID(logID)
		if err != nil {
			return nil, err
		}
		t.Logs = append(t.Logs, logs...)
	}
	return &t, nil
}

func (lg *Logger) queryByID(id string) ([]*Log, error) {
	rows, err := lg.db.Query(`SELECT id, operation, timestamp, level, document_id,
		user_id, session_id, profile_name, detections_summary, input_hash,
		output_hash, file_paths, error_message, warning_messages,
		processing_time, memory_usage, signature, parent_id, chain_id,
		system_info, details FROM audit_logs WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("audit: load log %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func scanLog(rows *sql.Rows) (*Log, error) {
	var (
		l                             Log
		ts, op, level                 string
		summaryRaw, pathsRaw, warnRaw string
		sysRaw, detailsRaw            string
	)
	err := rows.Scan(&l.ID, &op, &ts, &level, &l.DocumentID, &l.UserID,
		&l.SessionID, &l.ProfileName, &summaryRaw, &l.InputHash, &l.OutputHash,
		&pathsRaw, &l.ErrorMessage, &warnRaw, &l.ProcessingTime, &l.MemoryUsage,
		&l.Signature, &l.ParentID, &l.ChainID, &sysRaw, &detailsRaw)
	if err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}

	l.Operation = Operation(op)
	l.Level = Level(level)
	l.Timestamp, err = time.Parse(timeLayout, ts)
	if err != nil {
		return nil, fmt.Errorf("audit: parse timestamp %q: %w", ts, err)
	}
	unmarshalJSON(summaryRaw, &l.DetectionsSummary)
	unmarshalJSON(pathsRaw, &l.FilePaths)
	unmarshalJSON(warnRaw, &l.WarningMessages)
	unmarshalJSON(sysRaw, &l.SystemInfo)
	unmarshalJSON(detailsRaw, &l.Details)
	return &l, nil
}

func unmarshalJSON[T any](raw string, dst *T) {
	if raw == "" {
		return
	}
	_ = json.Unmarshal([]byte(raw), dst)
}
