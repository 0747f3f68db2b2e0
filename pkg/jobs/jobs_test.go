package jobs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopnik-forensics/gopnik/pkg/jobs"
)

func TestLifecycle(t *testing.T) {
	m := jobs.NewManager(nil)
	j := m.Create(jobs.KindDocument, "/in/scan.pdf", "default")
	assert.Equal(t, jobs.StatusPending, j.Status)

	require.NoError(t, m.Start(j.ID))
	require.NoError(t, m.UpdateProgress(j.ID, 40))
	require.NoError(t, m.Complete(j.ID, map[string]any{"output": "/out/redacted_scan.pdf"}))

	got, err := m.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusCompleted, got.Status)
	assert.Equal(t, float64(100), got.Progress)
	assert.NotNil(t, got.CompletedAt)
}

func TestInvalidTransitions(t *testing.T) {
	m := jobs.NewManager(nil)
	j := m.Create(jobs.KindDocument, "/in/a.png", "")

	// Cannot complete a job that never started.
	assert.Error(t, m.Complete(j.ID, nil))

	require.NoError(t, m.Start(j.ID))
	assert.Error(t, m.Start(j.ID))

	require.NoError(t, m.Fail(j.ID, errors.New("boom")))
	got, err := m.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusFailed, got.Status)
	assert.Equal(t, "boom", got.Error)

	// Terminal jobs reject further updates.
	assert.Error(t, m.UpdateProgress(j.ID, 10))
}

func TestCancel(t *testing.T) {
	m := jobs.NewManager(nil)
	j := m.Create(jobs.KindBatch, "/in/dir", "")

	ok, err := m.Cancel(j.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Cancelling again is a no-op.
	ok, err = m.Cancel(j.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	done := m.Create(jobs.KindDocument, "/in/b.png", "")
	require.NoError(t, m.Start(done.ID))
	require.NoError(t, m.Complete(done.ID, nil))
	ok, err = m.Cancel(done.ID)
	require.NoError(t, err)
	assert.False(t, ok, "completed jobs cannot be cancelled")
}

func TestProgressClamped(t *testing.T) {
	m := jobs.NewManager(nil)
	j := m.Create(jobs.KindDocument, "/in/a.png", "")
	require.NoError(t, m.Start(j.ID))

	require.NoError(t, m.UpdateProgress(j.ID, 180))
	got, _ := m.Get(j.ID)
	assert.Equal(t, float64(100), got.Progress)

	require.NoError(t, m.UpdateProgress(j.ID, -5))
	got, _ = m.Get(j.ID)
	assert.Equal(t, float64(0), got.Progress)
}

func TestList_ReverseChronological(t *testing.T) {
	m := jobs.NewManager(nil)
	first := m.Create(jobs.KindDocument, "/in/1.png", "")
	time.Sleep(2 * time.Millisecond)
	second := m.Create(jobs.KindDocument, "/in/2.png", "")
	time.Sleep(2 * time.Millisecond)
	third := m.Create(jobs.KindDocument, "/in/3.png", "")

	all := m.List(0, 0)
	require.Len(t, all, 3)
	assert.Equal(t, third.ID, all[0].ID)
	assert.Equal(t, first.ID, all[2].ID)

	page := m.List(1, 1)
	require.Len(t, page, 1)
	assert.Equal(t, second.ID, page[0].ID)

	assert.Empty(t, m.List(10, 5))
	assert.Equal(t, 3, m.Count())
}

func TestGet_Unknown(t *testing.T) {
	m := jobs.NewManager(nil)
	_, err := m.Get("nope")
	assert.ErrorIs(t, err, jobs.ErrNotFound)

	// Snapshots are copies; mutating one does not affect the registry.
	j := m.Create(jobs.KindDocument, "/in/a.png", "")
	snap, err := m.Get(j.ID)
	require.NoError(t, err)
	snap.Status = jobs.StatusCompleted

	again, err := m.Get(j.ID)
	require.NoError(t, err)
	assert.Equal(t, jobs.StatusPending, again.Status)
}
