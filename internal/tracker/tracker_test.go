package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mobius/internal/graph"
)

func makeTask(id, identifier string) graph.SubTask {
	return graph.SubTask{ID: id, Identifier: identifier, Title: "Task " + id, Status: graph.StatusReady}
}

func makeResult(taskID, identifier string, success bool) ExecutionResult {
	r := ExecutionResult{TaskID: taskID, Identifier: identifier, Success: success, DurationMS: 5000, PaneID: "%0"}
	if success {
		r.Status = StatusSubtaskComplete
	} else {
		r.Status = StatusVerificationFailed
		r.Error = "Tests failed"
	}
	return r
}

func TestNew_Defaults(t *testing.T) {
	tr := New(0, 0)
	assert.Equal(t, 2, tr.MaxRetries)
	assert.EqualValues(t, 5000, tr.VerificationTimeoutMS)
	assert.Empty(t, tr.Assignments)
}

func TestNew_Custom(t *testing.T) {
	tr := New(5, 10000)
	assert.Equal(t, 5, tr.MaxRetries)
	assert.EqualValues(t, 10000, tr.VerificationTimeoutMS)
}

func TestAssign_NewAndRetry(t *testing.T) {
	tr := New(0, 0)
	task := makeTask("1", "MOB-101")

	tr.Assign(task)
	require.Len(t, tr.Assignments, 1)
	assert.Equal(t, 1, tr.Assignments["1"].Attempts)

	tr.Assign(task)
	assert.Equal(t, 2, tr.Assignments["1"].Attempts)
}

func TestProcessResults_LocalTaskAutoVerified(t *testing.T) {
	tr := New(0, 0)
	task := makeTask("1", "LOC-001")
	tr.Assign(task)

	results := tr.ProcessResults([]ExecutionResult{makeResult("1", "LOC-001", true)})
	require.Len(t, results, 1)
	assert.True(t, results[0].BackendVerified)
	assert.Equal(t, "Done (local)", results[0].BackendStatus)
	assert.False(t, results[0].ShouldRetry)
}

func TestProcessResults_BackendTaskOptimisticallyAccepted(t *testing.T) {
	tr := New(0, 0)
	task := makeTask("1", "MOB-101")
	tr.Assign(task)

	results := tr.ProcessResults([]ExecutionResult{makeResult("1", "MOB-101", true)})
	require.Len(t, results, 1)
	assert.True(t, results[0].BackendVerified)
	assert.Equal(t, "Done (agent-reported)", results[0].BackendStatus)
}

func TestProcessResults_FailureRetryableWithinBudget(t *testing.T) {
	tr := New(2, 0)
	task := makeTask("1", "MOB-101")
	tr.Assign(task)

	results := tr.ProcessResults([]ExecutionResult{makeResult("1", "MOB-101", false)})
	require.Len(t, results, 1)
	assert.True(t, results[0].ShouldRetry)
}

func TestProcessResults_FailureExhaustedRetries(t *testing.T) {
	tr := New(1, 0)
	task := makeTask("1", "MOB-101")
	tr.Assign(task)
	tr.Assign(task)
	tr.Assign(task)

	results := tr.ProcessResults([]ExecutionResult{makeResult("1", "MOB-101", false)})
	require.Len(t, results, 1)
	assert.False(t, results[0].ShouldRetry)
}

func TestApplyBackendVerification_OverturnsOptimisticAccept(t *testing.T) {
	vr := VerifiedResult{Success: true, BackendVerified: true, BackendStatus: "Done (agent-reported)"}
	ApplyBackendVerification(&vr, false, "In Progress", 1, 2)

	assert.False(t, vr.Success)
	assert.False(t, vr.BackendVerified)
	assert.True(t, vr.ShouldRetry)
}

func TestGetRetryTasks(t *testing.T) {
	tasks := []graph.SubTask{makeTask("1", "A"), makeTask("2", "B")}
	results := []VerifiedResult{
		{TaskID: "1", ShouldRetry: true},
		{TaskID: "2", ShouldRetry: false},
	}
	retry := GetRetryTasks(results, tasks)
	require.Len(t, retry, 1)
	assert.Equal(t, "1", retry[0].ID)
}

func TestAllSucceeded_And_HasPermanentFailures(t *testing.T) {
	ok := []VerifiedResult{{Success: true, BackendVerified: true}}
	assert.True(t, AllSucceeded(ok))
	assert.False(t, HasPermanentFailures(ok))

	bad := []VerifiedResult{{Success: false, ShouldRetry: false}}
	assert.False(t, AllSucceeded(bad))
	assert.True(t, HasPermanentFailures(bad))
}

func TestReset(t *testing.T) {
	tr := New(0, 0)
	tr.Assign(makeTask("1", "A"))
	tr.Reset()
	assert.Empty(t, tr.Assignments)
}

func TestStats(t *testing.T) {
	tr := New(2, 0)
	tr.Assign(makeTask("1", "A"))
	tr.Assign(makeTask("1", "A"))
	tr.Assign(makeTask("2", "B"))

	s := tr.Stats()
	assert.Equal(t, 2, s.TotalAssigned)
	assert.Equal(t, 1, s.RetriedTasks)
}
