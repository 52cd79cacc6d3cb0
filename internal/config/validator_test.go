package config

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name      string
		setup     func()
		wantError bool
		errMsg    string
	}{
		{
			name: "Valid Configuration",
			setup: func() {
				viper.Set("agent_timeout", "30m")
				viper.Set("max_parallel_agents", 3)
				viper.Set("max_iterations", 50)
				viper.Set("backend", "local")
			},
			wantError: false,
		},
		{
			name: "Negative Agent Timeout",
			setup: func() {
				viper.Set("agent_timeout", -5)
			},
			wantError: true,
			errMsg:    "agent_timeout must be positive",
		},
		{
			name: "Zero Parallel Agents",
			setup: func() {
				viper.Set("max_parallel_agents", 0)
			},
			wantError: true,
			errMsg:    "max_parallel_agents must be positive",
		},
		{
			name: "Poll Interval Too Large",
			setup: func() {
				viper.Set("poll_interval", "5m")
			},
			wantError: true,
			errMsg:    "poll_interval must be within",
		},
		{
			name: "Negative Max Retries",
			setup: func() {
				viper.Set("max_retries", -1)
			},
			wantError: true,
			errMsg:    "max_retries must not be negative",
		},
		{
			name: "Unknown Backend",
			setup: func() {
				viper.Set("backend", "github")
			},
			wantError: true,
			errMsg:    "backend must be one of",
		},
		{
			name: "Unknown Agent Runtime",
			setup: func() {
				viper.Set("agent_runtime", "cursor")
			},
			wantError: true,
			errMsg:    "agent_runtime must be claude or opencode",
		},
		{
			name: "Metrics Port Out Of Range",
			setup: func() {
				viper.Set("metrics_port", 70000)
			},
			wantError: true,
			errMsg:    "metrics_port",
		},
		{
			name: "Metrics Port Zero Means Disabled",
			setup: func() {
				viper.Set("metrics_port", 0)
			},
			wantError: false,
		},
		{
			name: "Multiple Errors Joined",
			setup: func() {
				viper.Set("max_parallel_agents", -1)
				viper.Set("max_iterations", 0)
			},
			wantError: true,
			errMsg:    "max_iterations must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Reset()
			tt.setup()
			defer viper.Reset()

			err := ValidateConfig()
			if tt.wantError {
				if err == nil {
					t.Fatalf("expected error containing %q, got nil", tt.errMsg)
				}
				if !strings.Contains(err.Error(), tt.errMsg) {
					t.Fatalf("expected error containing %q, got %q", tt.errMsg, err.Error())
				}
			} else if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
		})
	}
}
