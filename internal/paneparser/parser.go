package paneparser

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyOutput is returned when the raw pane content has no non-whitespace
// characters at all.
var ErrEmptyOutput = errors.New("pane output is empty")

var (
	yamlFrontMatterRe = regexp.MustCompile(`(?s)---\s*\n.*?\n---`)
	fencedYAMLRe      = regexp.MustCompile("(?s)```ya?ml\\s*\\n(.*?)\\n```")
	fencedJSONRe      = regexp.MustCompile("(?s)```json\\s*\\n(.*?)\\n```")
	rawJSONObjectRe   = regexp.MustCompile(`\{[^{}]*"status"\s*:\s*"[A-Z_]+"`)
)

// Parse extracts and decodes the most recent structured status block from
// raw tmux pane content, then validates status-specific required fields.
func Parse(rawOutput string) (Result, error) {
	trimmed := strings.TrimSpace(rawOutput)
	if trimmed == "" {
		return Result{}, ErrEmptyOutput
	}

	content := trimmed
	if block, ok := extractStructuredBlock(trimmed); ok {
		content = block
	}

	var result Result
	jsonErr := json.Unmarshal([]byte(content), &result)
	if jsonErr == nil {
		if err := validate(result); err != nil {
			return Result{}, err
		}
		return result, nil
	}

	yamlErr := yaml.Unmarshal([]byte(content), &result)
	if yamlErr != nil {
		return Result{}, fmt.Errorf("failed to parse skill output as JSON or YAML: %w. input: %s", yamlErr, truncate(content, 200))
	}
	if err := validate(result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// ExtractStatus is a cheap status-only peek that skips full decoding and
// validation, for callers that just need to know whether a pane is done.
func ExtractStatus(rawOutput string) (Status, bool) {
	trimmed := strings.TrimSpace(rawOutput)
	if trimmed == "" {
		return "", false
	}

	content := trimmed
	if block, ok := extractStructuredBlock(trimmed); ok {
		content = block
	}

	var probe struct {
		Status string `json:"status" yaml:"status"`
	}
	if err := json.Unmarshal([]byte(content), &probe); err == nil && probe.Status != "" {
		return Status(probe.Status), true
	}
	if err := yaml.Unmarshal([]byte(content), &probe); err == nil && probe.Status != "" {
		return Status(probe.Status), true
	}
	return "", false
}

// extractStructuredBlock tries, in order, YAML front matter, fenced YAML,
// fenced JSON, then brace-balanced raw JSON. Each strategy prefers the
// most recent (last) match in the pane content, since the structured
// block always appears at the end of an agent's turn.
func extractStructuredBlock(raw string) (string, bool) {
	if block, ok := extractYAMLFrontMatter(raw); ok {
		return block, true
	}
	if block, ok := extractFencedYAML(raw); ok {
		return block, true
	}
	if block, ok := extractFencedJSON(raw); ok {
		return block, true
	}
	if block, ok := extractRawJSONObject(raw); ok {
		return block, true
	}
	return "", false
}

func extractYAMLFrontMatter(raw string) (string, bool) {
	matches := yamlFrontMatterRe.FindAllString(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		content := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(matches[i], "---"), "---"))
		if strings.Contains(content, "status:") {
			return content, true
		}
	}
	return "", false
}

func extractFencedYAML(raw string) (string, bool) {
	matches := fencedYAMLRe.FindAllStringSubmatch(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		content := strings.TrimSpace(matches[i][1])
		if strings.Contains(content, "status:") {
			return content, true
		}
	}
	return "", false
}

func extractFencedJSON(raw string) (string, bool) {
	matches := fencedJSONRe.FindAllStringSubmatch(raw, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		content := strings.TrimSpace(matches[i][1])
		if strings.Contains(content, `"status"`) {
			return content, true
		}
	}
	return "", false
}

// extractRawJSONObject finds `{"status": "FOO"` anchors and brace-matches
// forward to the closing `}`, validating each candidate actually parses.
func extractRawJSONObject(raw string) (string, bool) {
	idxs := rawJSONObjectRe.FindAllStringIndex(raw, -1)
	for i := len(idxs) - 1; i >= 0; i-- {
		start := idxs[i][0]
		end := matchBrace(raw, start)
		if end < 0 {
			continue
		}
		candidate := raw[start:end]
		var probe map[string]any
		if err := json.Unmarshal([]byte(candidate), &probe); err != nil {
			continue
		}
		if _, ok := probe["status"]; ok {
			return candidate, true
		}
	}
	return "", false
}

func matchBrace(s string, start int) int {
	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// validate enforces the status-specific required-field constraints that a
// plain JSON/YAML decode into an all-optional Result cannot express. Each
// status here corresponds to one non-Option field set on the original
// implementation's tagged enum variant.
func validate(r Result) error {
	if r.Status == "" {
		return errors.New("skill output is missing a status field")
	}

	switch r.Status {
	case StatusSubtaskComplete:
		if r.SubtaskID == "" {
			return errors.New("SUBTASK_COMPLETE requires subtaskId")
		}
		if r.CommitHash == "" {
			return errors.New("SUBTASK_COMPLETE requires commitHash")
		}
		if r.VerificationResults == nil {
			return errors.New("SUBTASK_COMPLETE requires verificationResults")
		}
	case StatusSubtaskPartial:
		if r.SubtaskID == "" {
			return errors.New("SUBTASK_PARTIAL requires subtaskId")
		}
	case StatusAllComplete:
		if r.ParentID == "" {
			return errors.New("ALL_COMPLETE requires parentId")
		}
	case StatusAllBlocked:
		if r.ParentID == "" {
			return errors.New("ALL_BLOCKED requires parentId")
		}
	case StatusNoSubtasks:
		if r.ParentID == "" {
			return errors.New("NO_SUBTASKS requires parentId")
		}
	case StatusVerificationFailed:
		if r.SubtaskID == "" {
			return errors.New("VERIFICATION_FAILED requires subtaskId")
		}
		if r.ErrorType == "" {
			return errors.New("VERIFICATION_FAILED requires errorType")
		}
		if r.ErrorOutput == "" {
			return errors.New("VERIFICATION_FAILED requires errorOutput")
		}
	case StatusNeedsWork:
		hasExecuteFormat := r.SubtaskID != ""
		hasVerifyFormat := len(r.FailingSubtasks) > 0

		if !hasExecuteFormat && !hasVerifyFormat {
			return errors.New("NEEDS_WORK requires either subtaskId (string) or failingSubtasks (non-empty array)")
		}
		if hasExecuteFormat && !hasVerifyFormat {
			if len(r.Issues) == 0 {
				return errors.New("NEEDS_WORK with subtaskId requires issues (non-empty array)")
			}
			if len(r.SuggestedFixes) == 0 {
				return errors.New("NEEDS_WORK with subtaskId requires suggestedFixes (non-empty array)")
			}
		}
	case StatusFail:
		if r.Reason == "" {
			return errors.New("FAIL requires reason")
		}
	}
	return nil
}
