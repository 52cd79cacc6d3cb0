package paneparser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_JSONFormat(t *testing.T) {
	input := `{
		"status": "SUBTASK_COMPLETE",
		"timestamp": "2026-01-28T16:45:00Z",
		"subtaskId": "MOB-177",
		"parentId": "MOB-161",
		"commitHash": "f2ccd9e",
		"filesModified": ["src/lib/feature.ts"],
		"verificationResults": {
			"typecheck": "PASS",
			"tests": "PASS",
			"lint": "PASS",
			"subtaskVerify": "PASS"
		}
	}`

	result, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, "MOB-177", result.SubtaskID)
	assert.Equal(t, "f2ccd9e", result.CommitHash)
	assert.Equal(t, []string{"src/lib/feature.ts"}, result.FilesModified)
}

func TestParse_YAMLFormat(t *testing.T) {
	input := `
status: SUBTASK_COMPLETE
timestamp: "2026-01-28T16:45:00Z"
subtaskId: MOB-177
parentId: MOB-161
commitHash: f2ccd9e
filesModified:
  - src/lib/feature.ts
verificationResults:
  typecheck: PASS
  tests: PASS
  lint: PASS
  subtaskVerify: PASS
`
	result, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, "MOB-177", result.SubtaskID)
	assert.Equal(t, "f2ccd9e", result.CommitHash)
}

func TestParse_JSONAndYAMLProduceSameResult(t *testing.T) {
	jsonInput := `{"status":"PASS","timestamp":"2026-01-28T16:45:00Z","details":"All good"}`
	yamlInput := "status: PASS\ntimestamp: \"2026-01-28T16:45:00Z\"\ndetails: All good\n"

	jsonResult, err := Parse(jsonInput)
	require.NoError(t, err)
	yamlResult, err := Parse(yamlInput)
	require.NoError(t, err)

	assert.Equal(t, jsonResult.Status, yamlResult.Status)
	assert.Equal(t, jsonResult.Details, yamlResult.Details)
	assert.Equal(t, jsonResult.Timestamp, yamlResult.Timestamp)
}

func TestExtractYAMLFrontMatter(t *testing.T) {
	raw := `
Some conversation output here...
Agent thinking about things...

---
status: PASS
timestamp: "2026-01-28T16:45:00Z"
---

More stuff after
`
	block, ok := extractStructuredBlock(raw)
	require.True(t, ok)
	assert.Contains(t, block, "status: PASS")
	assert.Contains(t, block, "timestamp:")
}

func TestExtractFencedYAML(t *testing.T) {
	raw := "Here is the result:\n\n```yaml\nstatus: ALL_COMPLETE\ntimestamp: \"2026-01-28T16:45:00Z\"\nparentId: MOB-161\ncompletedCount: 5\n```\n\nDone!\n"
	block, ok := extractStructuredBlock(raw)
	require.True(t, ok)
	assert.Contains(t, block, "status: ALL_COMPLETE")
	assert.Contains(t, block, "completedCount: 5")
}

func TestExtractFencedJSON(t *testing.T) {
	raw := "Here is the structured output:\n\n```json\n{\n  \"status\": \"FAIL\",\n  \"timestamp\": \"2026-01-28T16:45:00Z\",\n  \"reason\": \"Tests failed\"\n}\n```\n\nEnd of output.\n"
	block, ok := extractStructuredBlock(raw)
	require.True(t, ok)
	assert.Contains(t, block, `"status": "FAIL"`)
	assert.Contains(t, block, `"reason": "Tests failed"`)
}

func TestExtractRawJSONObject(t *testing.T) {
	raw := "Lots of conversation noise here...\nThe agent did some work.\nResult: {\"status\": \"PASS\", \"timestamp\": \"2026-01-28T16:45:00Z\"}\nMore noise after the JSON.\n"
	block, ok := extractStructuredBlock(raw)
	require.True(t, ok)
	assert.Contains(t, block, `"status": "PASS"`)
}

func TestValidate_SubtaskComplete(t *testing.T) {
	input := `{
		"status": "SUBTASK_COMPLETE",
		"timestamp": "2026-01-28T16:45:00Z",
		"subtaskId": "MOB-177",
		"commitHash": "abc123",
		"filesModified": ["src/file.ts"],
		"verificationResults": {"typecheck": "PASS", "tests": "PASS", "lint": "PASS", "subtaskVerify": "PASS"}
	}`
	_, err := Parse(input)
	assert.NoError(t, err)
}

func TestValidate_VerificationFailed(t *testing.T) {
	input := `{
		"status": "VERIFICATION_FAILED",
		"timestamp": "2026-01-28T16:45:00Z",
		"subtaskId": "MOB-177",
		"errorType": "tests",
		"errorOutput": "Test failed: expected 2 but got 3",
		"attemptedFixes": ["Updated expected value"],
		"uncommittedFiles": ["src/lib/feature.ts"]
	}`
	_, err := Parse(input)
	assert.NoError(t, err)
}

func TestValidate_NeedsWorkExecuteFormat(t *testing.T) {
	input := `{
		"status": "NEEDS_WORK",
		"timestamp": "2026-01-28T16:45:00Z",
		"subtaskId": "MOB-177",
		"issues": ["Missing error handling"],
		"suggestedFixes": ["Add try-catch block"]
	}`
	_, err := Parse(input)
	assert.NoError(t, err)
}

func TestValidate_NeedsWorkVerifyFormat(t *testing.T) {
	input := `{
		"status": "NEEDS_WORK",
		"timestamp": "2026-01-28T16:45:00Z",
		"failingSubtasks": [
			{"id": "uuid-123", "identifier": "MOB-178", "issues": [{"type": "logic_error", "description": "Missing null check"}]}
		],
		"verificationTaskId": "task-VG"
	}`
	_, err := Parse(input)
	assert.NoError(t, err)
}

func TestValidate_NeedsWorkMissingBothFormats(t *testing.T) {
	input := `{"status": "NEEDS_WORK", "timestamp": "2026-01-28T16:45:00Z"}`
	_, err := Parse(input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NEEDS_WORK requires either subtaskId")
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse("{ invalid json }")
	require.Error(t, err)
}

func TestParse_MissingRequiredFields(t *testing.T) {
	input := `{"status": "SUBTASK_COMPLETE", "timestamp": "2026-01-28T16:45:00Z"}`
	_, err := Parse(input)
	require.Error(t, err)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := Parse("")
	require.ErrorIs(t, err, ErrEmptyOutput)
}

func TestParse_NoStructuredBlockFound(t *testing.T) {
	_, err := Parse("Just some random conversation text with no structured output at all.")
	require.Error(t, err)
}

func TestIsTerminal(t *testing.T) {
	terminal := []Status{
		StatusSubtaskComplete, StatusAllComplete, StatusAllBlocked,
		StatusNoSubtasks, StatusVerificationFailed, StatusPass, StatusFail,
	}
	for _, s := range terminal {
		r := Result{Status: s}
		assert.True(t, r.IsTerminal(), "expected terminal for %s", s)
	}
	assert.False(t, t_r(StatusSubtaskPartial).IsTerminal())
	assert.False(t, t_r(StatusNeedsWork).IsTerminal())
}

func t_r(s Status) Result { return Result{Status: s} }

func TestIsSuccessIsFailure(t *testing.T) {
	assert.True(t, t_r(StatusPass).IsSuccess())
	assert.True(t, t_r(StatusSubtaskComplete).IsSuccess())
	assert.True(t, t_r(StatusAllComplete).IsSuccess())
	assert.False(t, t_r(StatusFail).IsSuccess())

	assert.True(t, t_r(StatusFail).IsFailure())
	assert.True(t, t_r(StatusVerificationFailed).IsFailure())
	assert.False(t, t_r(StatusPass).IsFailure())
}

func TestExtractStatus(t *testing.T) {
	status, ok := ExtractStatus(`{"status": "PASS", "timestamp": "T"}`)
	require.True(t, ok)
	assert.Equal(t, StatusPass, status)

	status, ok = ExtractStatus("---\nstatus: FAIL\ntimestamp: T\nreason: test\n---\n")
	require.True(t, ok)
	assert.Equal(t, StatusFail, status)

	_, ok = ExtractStatus("")
	assert.False(t, ok)
	_, ok = ExtractStatus("   ")
	assert.False(t, ok)

	_, ok = ExtractStatus(`{"foo": "bar"}`)
	assert.False(t, ok)
}

func TestExtractFromNoisyPaneContent(t *testing.T) {
	noise := ""
	for i := 0; i < 50; i++ {
		noise += "Agent is working...\nThinking about things...\n"
	}
	raw := noise + "```yaml\nstatus: PASS\ntimestamp: \"2026-01-28T16:45:00Z\"\n```\n" + noise

	result, err := Parse(raw)
	require.NoError(t, err)
	assert.True(t, result.IsSuccess())
}

func TestExtractLastBlockWhenMultiplePresent(t *testing.T) {
	raw := `
---
status: FAIL
timestamp: "2026-01-28T15:00:00Z"
reason: "First attempt failed"
---

Agent retrying...

---
status: PASS
timestamp: "2026-01-28T16:45:00Z"
---
`
	status, ok := ExtractStatus(raw)
	require.True(t, ok)
	assert.Equal(t, StatusPass, status)
}

func TestSubtaskPartialValidation(t *testing.T) {
	input := `{
		"status": "SUBTASK_PARTIAL",
		"timestamp": "2026-01-28T16:45:00Z",
		"subtaskId": "MOB-177",
		"progressMade": ["Implemented core function"],
		"remainingWork": ["Add unit tests"]
	}`
	result, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, "MOB-177", result.SubtaskID)
	assert.Equal(t, []string{"Implemented core function"}, result.ProgressMade)
	assert.Equal(t, []string{"Add unit tests"}, result.RemainingWork)
}
