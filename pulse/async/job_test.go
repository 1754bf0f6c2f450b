package async

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestJob(t *testing.T, handlerName, source string, totalOps int) *Job {
	t.Helper()
	payload, err := json.Marshal(map[string]string{"source": source})
	require.NoError(t, err)
	job, err := NewJob(handlerName, source, payload, totalOps)
	require.NoError(t, err)
	return job
}

func TestNewJob(t *testing.T) {
	t.Run("creates queued job", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)

		assert.NotEmpty(t, job.ID)
		assert.Equal(t, "sync.sdk", job.HandlerName)
		assert.Equal(t, "t1:123", job.Source)
		assert.Equal(t, JobStatusQueued, job.Status)
		assert.Equal(t, 0, job.Progress.Current)
		assert.Equal(t, 10, job.Progress.Total)
		assert.Nil(t, job.StartedAt)
	})

	t.Run("empty handler name rejected", func(t *testing.T) {
		_, err := NewJob("", "t1:123", nil, 0)
		require.Error(t, err)
	})

	t.Run("ids are unique", func(t *testing.T) {
		a := newTestJob(t, "sync.sdk", "t1:123", 0)
		b := newTestJob(t, "sync.sdk", "t1:123", 0)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("child job carries parent id", func(t *testing.T) {
		job, err := NewChildJob("sync.sdk", "t1:123", nil, 0, "job-parent")
		require.NoError(t, err)
		assert.Equal(t, "job-parent", job.ParentJobID)
	})
}

func TestJobTransitions(t *testing.T) {
	t.Run("start", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)
		job.Start()

		assert.Equal(t, JobStatusRunning, job.Status)
		require.NotNil(t, job.StartedAt)
		assert.True(t, job.Active())
	})

	t.Run("complete", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)
		job.Start()
		job.Complete()

		assert.Equal(t, JobStatusCompleted, job.Status)
		require.NotNil(t, job.CompletedAt)
		assert.False(t, job.Active())
	})

	t.Run("fail records error", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)
		job.Start()
		job.Fail(assert.AnError)

		assert.Equal(t, JobStatusFailed, job.Status)
		assert.Equal(t, assert.AnError.Error(), job.Error)
		require.NotNil(t, job.CompletedAt)
	})

	t.Run("cancel records reason", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)
		job.Cancel("parent job deleted")

		assert.Equal(t, JobStatusCancelled, job.Status)
		assert.Equal(t, "parent job deleted", job.Error)
	})

	t.Run("requeue counts the attempt", func(t *testing.T) {
		job := newTestJob(t, "sync.sdk", "t1:123", 10)
		job.Start()
		job.Requeue()

		assert.Equal(t, JobStatusQueued, job.Status)
		assert.Equal(t, 1, job.RetryCount)
		assert.Nil(t, job.StartedAt)
	})
}

func TestProgressPercentage(t *testing.T) {
	assert.Equal(t, 0.0, Progress{}.Percentage())
	assert.Equal(t, 50.0, Progress{Current: 5, Total: 10}.Percentage())
	assert.Equal(t, 100.0, Progress{Current: 10, Total: 10}.Percentage())
}

func TestIsValidStatus(t *testing.T) {
	for _, s := range []JobStatus{JobStatusQueued, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled} {
		assert.True(t, IsValidStatus(s), string(s))
	}
	assert.False(t, IsValidStatus("paused"))
	assert.False(t, IsValidStatus(""))
}
