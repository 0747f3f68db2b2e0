// Package jobs tracks asynchronous processing requests through a small
// state machine: pending -> running -> completed | failed | cancelled.
// Terminal states are final.
package jobs

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is a job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Kind distinguishes single-document jobs from batch jobs.
type Kind string

const (
	KindDocument Kind = "document"
	KindBatch    Kind = "batch"
)

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("jobs: job not found")

// Job is one tracked request. Progress is a percentage in [0,100].
type Job struct {
	ID          string     `json:"id"`
	Kind        Kind       `json:"kind"`
	InputPath   string     `json:"input_path"`
	ProfileName string     `json:"profile_name,omitempty"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	Result      any        `json:"result,omitempty"`
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled
}

// Manager is an in-memory job registry safe for concurrent use.
type Manager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	log  *slog.Logger
}

// NewManager builds an empty registry.
func NewManager(log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{jobs: map[string]*Job{}, log: log}
}

// Create registers a pending job.
func (m *Manager) Create(kind Kind, inputPath, profileName string) *Job {
	j := &Job{
		ID:          uuid.New().String(),
		Kind:        kind,
		InputPath:   inputPath,
		ProfileName: profileName,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	m.mu.Lock()
	m.jobs[j.ID] = j
	m.mu.Unlock()

	m.log.Debug("job created", "job_id", j.ID, "kind", string(kind), "input", inputPath)
	return j
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (*Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snapshot := *j
	return &snapshot, nil
}

// List returns job snapshots newest first, sliced by offset and limit.
// A limit of zero means no limit.
func (m *Manager) List(limit, offset int) []*Job {
	m.mu.RLock()
	all := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		snapshot := *j
		all = append(all, &snapshot)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool { return all[i].CreatedAt.After(all[k].CreatedAt) })

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}

// Count returns the number of tracked jobs.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.jobs)
}

// Start moves a pending job to running.
func (m *Manager) Start(id string) error {
	return m.transition(id, func(j *Job) error {
		if j.Status != StatusPending {
			return fmt.Errorf("jobs: cannot start job in state %s", j.Status)
		}
		now := time.Now().UTC()
		j.Status = StatusRunning
		j.StartedAt = &now
		return nil
	})
}

// Complete finishes a running job with its result.
func (m *Manager) Complete(id string, result any) error {
	return m.transition(id, func(j *Job) error {
		if j.Status != StatusRunning {
			return fmt.Errorf("jobs: cannot complete job in state %s", j.Status)
		}
		now := time.Now().UTC()
		j.Status = StatusCompleted
		j.Progress = 100
		j.CompletedAt = &now
		j.Result = result
		return nil
	})
}

// Fail finishes a pending or running job with an error.
func (m *Manager) Fail(id string, jobErr error) error {
	return m.transition(id, func(j *Job) error {
		if j.Terminal() {
			return fmt.Errorf("jobs: cannot fail job in state %s", j.Status)
		}
		now := time.Now().UTC()
		j.Status = StatusFailed
		j.CompletedAt = &now
		if jobErr != nil {
			j.Error = jobErr.Error()
		}
		return nil
	})
}

// Cancel requests cancellation. It reports true when the job moved to
// cancelled; cancelling a terminal job is a no-op returning false.
func (m *Manager) Cancel(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if j.Terminal() {
		return false, nil
	}
	now := time.Now().UTC()
	j.Status = StatusCancelled
	j.CompletedAt = &now
	m.log.Info("job cancelled", "job_id", id)
	return true, nil
}

// UpdateProgress sets the progress percentage, clamped to [0,100].
func (m *Manager) UpdateProgress(id string, progress float64) error {
	return m.transition(id, func(j *Job) error {
		if j.Terminal() {
			return fmt.Errorf("jobs: cannot update job in state %s", j.Status)
		}
		if progress < 0 {
			progress = 0
		}
		if progress > 100 {
			progress = 100
		}
		j.Progress = progress
		return nil
	})
}

func (m *Manager) transition(id string, apply func(*Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return apply(j)
}
