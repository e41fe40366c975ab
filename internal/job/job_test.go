// Copyright 2025 James Ross
package job

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeFailureWins(t *testing.T) {
	assert.Equal(t, StatusFailed, Merge(StatusSucceeded, StatusFailed))
	assert.Equal(t, StatusFailed, Merge(StatusFailed, StatusFailedToStart))
	assert.Equal(t, StatusFailedToStart, Merge(StatusError, StatusFailedToStart))
}

func TestMergePartiallySucceeded(t *testing.T) {
	assert.Equal(t, StatusPartiallySucceeded, Merge(StatusSucceeded, StatusIdle))
	assert.Equal(t, StatusPartiallySucceeded, Merge(StatusSucceeded, StatusPending))
	assert.Equal(t, StatusPartiallySucceeded, Merge(StatusSucceeded, StatusStarted))
}

func TestMergeAllSucceeded(t *testing.T) {
	assert.Equal(t, StatusSucceeded, Merge(StatusSucceeded, StatusSucceeded))
}

func TestMergeDefaultFinished(t *testing.T) {
	assert.Equal(t, StatusFinished, Merge(StatusIdle, StatusFinished))
}

func TestUpdateReentrancyGuard(t *testing.T) {
	j := New("blast", "run-1", "blast_job")
	calls := 0
	j.UpdateFn = func(inner *ServiceJob) error {
		calls++
		return inner.Update() // reentrant call must be a no-op
	}
	require.NoError(t, j.Update())
	assert.Equal(t, 1, calls)
}

func TestCalculateResultsInvokedOnceOnSuccess(t *testing.T) {
	j := New("blast", "run-1", "blast_job")
	j.Status = StatusSucceeded
	calls := 0
	j.CalculateResultsFn = func(inner *ServiceJob) (interface{}, error) {
		calls++
		return "computed", nil
	}
	require.NoError(t, j.Update())
	assert.Equal(t, "computed", j.Results)
	require.NoError(t, j.Update())
	assert.Equal(t, 1, calls)
}

func TestServiceJobSetOrderingAndLiveness(t *testing.T) {
	set := NewSet()
	j1 := New("blast", "j1", "blast_job")
	j1.Status = StatusStarted
	j2 := New("blast", "j2", "blast_job")
	j2.Status = StatusSucceeded
	set.Add(j1)
	set.Add(j2)

	jobs := set.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].Name)
	assert.True(t, set.IsLive())

	j1.Status = StatusSucceeded
	assert.False(t, set.IsLive())
}

func TestAsJSONShape(t *testing.T) {
	j := New("blast", "j1", "blast_job")
	j.Status = StatusSucceeded
	j.Results = map[string]string{"hit": "x"}
	raw, err := j.AsJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status_value":5`)
	assert.Contains(t, string(raw), `"status":"SUCCEEDED"`)
}
