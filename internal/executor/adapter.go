package executor

import (
	"fmt"
	"strings"
)

// CommandSpec is everything a runtime adapter needs to build one agent
// invocation.
type CommandSpec struct {
	Model           string
	ThinkingLevel   string
	Skill           Skill
	Identifier      string
	TaskID          string
	Worktree        string
	ContextFile     string
	DisallowedTools []string
}

// RuntimeAdapter maps a CommandSpec onto the shell command for a concrete
// agent runtime. The executor core never assembles command strings itself,
// so swapping runtimes is a one-line wiring change.
type RuntimeAdapter interface {
	BuildCommand(spec CommandSpec) string
}

// ClaudeAdapter builds invocations for the claude CLI.
type ClaudeAdapter struct{}

func (ClaudeAdapter) BuildCommand(spec CommandSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cd %s && ", shellQuote(spec.Worktree))
	fmt.Fprintf(&b, "MOBIUS_CONTEXT_FILE=%s MOBIUS_TASK_ID=%s ", shellQuote(spec.ContextFile), shellQuote(spec.TaskID))
	b.WriteString("claude")
	if spec.Model != "" {
		fmt.Fprintf(&b, " --model %s", shellQuote(spec.Model))
	}
	if len(spec.DisallowedTools) > 0 {
		fmt.Fprintf(&b, " --disallowedTools %s", shellQuote(strings.Join(spec.DisallowedTools, ",")))
	}
	fmt.Fprintf(&b, " -p %s", shellQuote("/"+string(spec.Skill)+" "+spec.Identifier))
	b.WriteString(" --output-format stream-json --verbose")
	return b.String()
}

// OpencodeAdapter builds invocations for the opencode CLI.
type OpencodeAdapter struct{}

func (OpencodeAdapter) BuildCommand(spec CommandSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, "cd %s && ", shellQuote(spec.Worktree))
	fmt.Fprintf(&b, "MOBIUS_CONTEXT_FILE=%s MOBIUS_TASK_ID=%s ", shellQuote(spec.ContextFile), shellQuote(spec.TaskID))
	b.WriteString("opencode run")
	if spec.Model != "" {
		fmt.Fprintf(&b, " --model %s", shellQuote(spec.Model))
	}
	fmt.Fprintf(&b, " %s", shellQuote("/"+string(spec.Skill)+" "+spec.Identifier))
	return b.String()
}

// AdapterFor returns the adapter for a configured agent runtime name,
// defaulting to claude.
func AdapterFor(runtime string) RuntimeAdapter {
	if runtime == "opencode" {
		return OpencodeAdapter{}
	}
	return ClaudeAdapter{}
}

// shellQuote single-quotes a string for POSIX shells; safe for the paths
// and identifiers Mobius feeds through send-keys.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$&|;<>(){}*?#~`!") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
