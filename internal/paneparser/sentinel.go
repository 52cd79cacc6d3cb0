package paneparser

import "regexp"

// SentinelOutcome is the cheap, sentinel-literal classification of a pane's
// terminal state, independent of (and checked before) the structured JSON/
// YAML block extraction in parser.go. Agents emit both: a human-readable
// `STATUS: <TOKEN>` line for quick scrollback scanning, and a structured
// block for the fields the orchestrator needs.
type SentinelOutcome struct {
	Status       Status
	Success      bool
	ErrorSummary string
}

var (
	sentinelSubtaskComplete    = regexp.MustCompile(`STATUS:\s*SUBTASK_COMPLETE`)
	sentinelExecutionComplete  = regexp.MustCompile(`EXECUTION_COMPLETE:\s*[\w-]+`)
	sentinelVerificationFailed = regexp.MustCompile(`STATUS:\s*VERIFICATION_FAILED`)
	sentinelAllComplete        = regexp.MustCompile(`STATUS:\s*ALL_COMPLETE`)
	sentinelAllBlocked         = regexp.MustCompile(`STATUS:\s*ALL_BLOCKED`)
	sentinelNoSubtasks         = regexp.MustCompile(`STATUS:\s*NO_SUBTASKS`)
	errorSummaryRe             = regexp.MustCompile(`### Error Summary\n([^\n]+)`)
)

// ClassifySentinel scans raw pane scrollback for the first terminal
// sentinel literal, in a fixed priority order, and reports whether the
// turn is over. It returns ok=false when nothing terminal has appeared
// yet (the pane is still running).
func ClassifySentinel(rawOutput string) (SentinelOutcome, bool) {
	switch {
	case sentinelSubtaskComplete.MatchString(rawOutput):
		return SentinelOutcome{Status: StatusSubtaskComplete, Success: true}, true
	case sentinelExecutionComplete.MatchString(rawOutput):
		return SentinelOutcome{Status: StatusSubtaskComplete, Success: true}, true
	case sentinelVerificationFailed.MatchString(rawOutput):
		return SentinelOutcome{
			Status:       StatusVerificationFailed,
			Success:      false,
			ErrorSummary: extractErrorSummary(rawOutput),
		}, true
	case sentinelAllComplete.MatchString(rawOutput):
		return SentinelOutcome{Status: StatusAllComplete, Success: true}, true
	case sentinelAllBlocked.MatchString(rawOutput):
		return SentinelOutcome{Status: StatusAllBlocked, Success: false, ErrorSummary: "No actionable sub-tasks available"}, true
	case sentinelNoSubtasks.MatchString(rawOutput):
		return SentinelOutcome{Status: StatusNoSubtasks, Success: false, ErrorSummary: "No actionable sub-tasks available"}, true
	default:
		// SUBTASK_PARTIAL is deliberately absent: partial progress is not
		// terminal, the agent is still mid-turn and the pane keeps polling.
		return SentinelOutcome{}, false
	}
}

func extractErrorSummary(raw string) string {
	m := errorSummaryRe.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}
