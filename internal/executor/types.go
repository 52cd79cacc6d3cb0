// Package executor drives a batch of ready sub-tasks to completion: it
// spawns one agent per task inside a tmux pane, polls each pane's
// scrollback for a terminal sentinel, and classifies the outcome. Spawning
// is serial within a batch; waiting is concurrent.
package executor

import (
	"strings"
	"time"
)

// Skill names the agent skill invoked for a task.
type Skill string

const (
	SkillExecute Skill = "execute"
	SkillVerify  Skill = "verify"
)

// SelectSkill picks the verify skill for the verification-gate task
// (title contains both "verification" and "gate", case-insensitive) and
// the execute skill for everything else.
func SelectSkill(title string) Skill {
	lower := strings.ToLower(title)
	if strings.Contains(lower, "verification") && strings.Contains(lower, "gate") {
		return SkillVerify
	}
	return SkillExecute
}

// Config is the executor's tunable surface, resolved from internal/config.
type Config struct {
	MaxParallelAgents int
	AgentTimeout      time.Duration
	PollInterval      time.Duration
	CaptureLines      int
	Model             string
	DisallowedTools   []string
}

// withDefaults fills zero values with the loop's documented defaults.
func (c Config) withDefaults() Config {
	if c.MaxParallelAgents <= 0 {
		c.MaxParallelAgents = 3
	}
	if c.AgentTimeout <= 0 {
		c.AgentTimeout = 30 * time.Minute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.CaptureLines <= 0 {
		c.CaptureLines = 200
	}
	return c
}

// CalculateParallelism bounds a batch at the configured agent limit.
func CalculateParallelism(readyCount, maxParallelAgents int) int {
	if maxParallelAgents <= 0 {
		maxParallelAgents = 3
	}
	if readyCount < maxParallelAgents {
		return readyCount
	}
	return maxParallelAgents
}

// Task is one unit of agent work the executor runs.
type Task struct {
	ID           string
	Identifier   string
	Title        string
	WorktreePath string
	ContextFile  string
	// Model overrides Config.Model for this task (scoring-recommended).
	Model string
}

// BatchSummary aggregates one batch's results for logging and the status
// pane.
type BatchSummary struct {
	Total                int
	Succeeded            int
	Failed               int
	CompletedIdentifiers []string
	FailureDetails       []string
}
