package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJob(t *testing.T) {
	job := NewJob("sk-1", "whois", []any{"example.com"})

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "sk-1", job.SketchID)
	assert.Equal(t, "whois", job.Plugin)
	assert.Equal(t, StatusPending, job.Status)
	assert.False(t, job.CreatedAt.IsZero())
	assert.True(t, job.StartedAt.IsZero())

	// IDs are unique per job.
	other := NewJob("sk-1", "whois", nil)
	assert.NotEqual(t, job.ID, other.ID)
}

func TestTransition_HappyPath(t *testing.T) {
	job := NewJob("sk-1", "whois", nil)

	require.NoError(t, job.Transition(StatusRunning))
	assert.False(t, job.StartedAt.IsZero())

	require.NoError(t, job.Transition(StatusFinished))
	assert.False(t, job.FinishedAt.IsZero())
}

func TestTransition_Monotonic(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		ok   bool
	}{
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to error", StatusPending, StatusError, true},
		{"pending to finished skips running", StatusPending, StatusFinished, false},
		{"running to finished", StatusRunning, StatusFinished, true},
		{"running to error", StatusRunning, StatusError, true},
		{"running back to pending", StatusRunning, StatusPending, false},
		{"finished is terminal", StatusFinished, StatusRunning, false},
		{"finished to error", StatusFinished, StatusError, false},
		{"error is terminal", StatusError, StatusRunning, false},
		{"error to finished", StatusError, StatusFinished, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("sk-1", "whois", nil)
			job.Status = tt.from

			err := job.Transition(tt.to)
			if tt.ok {
				assert.NoError(t, err)
				assert.Equal(t, tt.to, job.Status)
			} else {
				assert.Error(t, err)
				// A rejected transition leaves the job unchanged.
				assert.Equal(t, tt.from, job.Status)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusFinished.Terminal())
	assert.True(t, StatusError.Terminal())
}

func TestFail(t *testing.T) {
	job := NewJob("sk-1", "whois", nil)
	require.NoError(t, job.Transition(StatusRunning))

	require.NoError(t, job.Fail("timeout", "upstream deadline exceeded"))

	assert.Equal(t, StatusError, job.Status)
	require.NotNil(t, job.Failure)
	assert.Equal(t, "timeout", job.Failure.Kind)
	assert.Equal(t, "upstream deadline exceeded", job.Failure.Message)

	// Terminal: no further failures can overwrite it.
	assert.Error(t, job.Fail("execution", "too late"))
}
