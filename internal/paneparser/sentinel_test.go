package paneparser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifySentinel_PaneNoise(t *testing.T) {
	noise := strings.Repeat("irrelevant scrollback line\n", 100)
	raw := noise + "### Error Summary\nType mismatch in foo\nSTATUS: VERIFICATION_FAILED\n"

	out, ok := ClassifySentinel(raw)
	assert.True(t, ok)
	assert.Equal(t, StatusVerificationFailed, out.Status)
	assert.False(t, out.Success)
	assert.Equal(t, "Type mismatch in foo", out.ErrorSummary)
}

func TestClassifySentinel_StillRunning(t *testing.T) {
	_, ok := ClassifySentinel("agent is still thinking...\n")
	assert.False(t, ok)
}

func TestClassifySentinel_SubtaskComplete(t *testing.T) {
	out, ok := ClassifySentinel("did the work\nSTATUS: SUBTASK_COMPLETE\n")
	assert.True(t, ok)
	assert.Equal(t, StatusSubtaskComplete, out.Status)
	assert.True(t, out.Success)
}

func TestClassifySentinel_ExecutionComplete(t *testing.T) {
	out, ok := ClassifySentinel("EXECUTION_COMPLETE: task-42\n")
	assert.True(t, ok)
	assert.Equal(t, StatusSubtaskComplete, out.Status)
	assert.True(t, out.Success)
}

func TestClassifySentinel_AllBlockedMessage(t *testing.T) {
	out, ok := ClassifySentinel("STATUS: ALL_BLOCKED\n")
	assert.True(t, ok)
	assert.Equal(t, "No actionable sub-tasks available", out.ErrorSummary)
}

func TestClassifySentinel_SubtaskPartialIsNotTerminal(t *testing.T) {
	_, ok := ClassifySentinel("got halfway there\nSTATUS: SUBTASK_PARTIAL\n")
	assert.False(t, ok, "partial progress means the agent is still mid-turn")
}

func TestClassifySentinel_FlexibleWhitespace(t *testing.T) {
	out, ok := ClassifySentinel("STATUS:  SUBTASK_COMPLETE\n")
	assert.True(t, ok, "extra whitespace after the colon still matches")
	assert.True(t, out.Success)

	out, ok = ClassifySentinel("EXECUTION_COMPLETE:task-001\n")
	assert.True(t, ok, "no whitespace after the colon still matches")
	assert.Equal(t, StatusSubtaskComplete, out.Status)
}

func TestClassifySentinel_PriorityOrder(t *testing.T) {
	raw := "STATUS: SUBTASK_COMPLETE\nSTATUS: VERIFICATION_FAILED\n"
	out, ok := ClassifySentinel(raw)
	assert.True(t, ok)
	assert.Equal(t, StatusSubtaskComplete, out.Status)
}
