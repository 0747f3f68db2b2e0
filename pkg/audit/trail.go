package audit

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gopnik-forensics/gopnik/pkg/crypto"
)

// Trail is an ordered group of logs for one logical unit, usually a
// document's processing chain.
type Trail struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Logs     []*Log         `json:"logs"`
}

// NewTrail creates an empty named trail.
func NewTrail(name string) *Trail {
	return &Trail{ID: uuid.New().String(), Name: name}
}

// Append adds a log to the trail.
func (t *Trail) Append(l *Log) { t.Logs = append(t.Logs, l) }

// InTimeframe returns logs with from <= timestamp < to.
func (t *Trail) InTimeframe(from, to time.Time) []*Log {
	return t.filter(func(l *Log) bool {
		return !l.Timestamp.Before(from) && l.Timestamp.Before(to)
	})
}

// ByOperation returns logs of one operation.
func (t *Trail) ByOperation(op Operation) []*Log {
	return t.filter(func(l *Log) bool { return l.Operation == op })
}

// ByChain returns logs belonging to one chain.
func (t *Trail) ByChain(chainID string) []*Log {
	return t.filter(func(l *Log) bool { return l.ChainID == chainID })
}

// ByDocument returns logs for one document.
func (t *Trail) ByDocument(documentID string) []*Log {
	return t.filter(func(l *Log) bool { return l.DocumentID == documentID })
}

// ByUser returns logs for one user.
func (t *Trail) ByUser(userID string) []*Log {
	return t.filter(func(l *Log) bool { return l.UserID == userID })
}

func (t *Trail) filter(keep func(*Log) bool) []*Log {
	var out []*Log
	for _, l := range t.Logs {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// CheckIntegrity verifies the trail as a whole: unique ids, non-decreasing
// timestamps, and (with a signer) a valid signature on every log. All
// problems are returned, not just the first.
func (t *Trail) CheckIntegrity(signer *crypto.Signer) []string {
	var issues []string

	seen := map[string]bool{}
	for _, l := range t.Logs {
		if seen[l.ID] {
			issues = append(issues, fmt.Sprintf("duplicate log id %s", l.ID))
		}
		seen[l.ID] = true
	}

	for i := 1; i < len(t.Logs); i++ {
		if t.Logs[i].Timestamp.Before(t.Logs[i-1].Timestamp) {
			issues = append(issues, fmt.Sprintf("timestamp regression at log %s", t.Logs[i].ID))
		}
	}

	if signer != nil {
		for _, l := range t.Logs {
			if err := l.Verify(signer); err != nil {
				issues = append(issues, err.Error())
			}
		}
	}
	return issues
}
