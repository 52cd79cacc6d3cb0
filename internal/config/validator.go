package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// ValidateConfig validates configuration values and returns an error if any
// are invalid. Call after viper has loaded the configuration.
func ValidateConfig() error {
	var errors []string

	if viper.IsSet("agent_timeout") {
		if d := durationOrSeconds("agent_timeout"); d <= 0 {
			errors = append(errors, fmt.Sprintf("agent_timeout must be positive, got: %v", d))
		}
	}

	if viper.IsSet("poll_interval") {
		if d := durationOrSeconds("poll_interval"); d <= 0 || d > time.Minute {
			errors = append(errors, fmt.Sprintf("poll_interval must be within (0, 1m], got: %v", d))
		}
	}

	if viper.IsSet("max_parallel_agents") {
		if n := viper.GetInt("max_parallel_agents"); n <= 0 {
			errors = append(errors, fmt.Sprintf("max_parallel_agents must be positive, got: %d", n))
		}
	}

	if viper.IsSet("max_iterations") {
		if n := viper.GetInt("max_iterations"); n <= 0 {
			errors = append(errors, fmt.Sprintf("max_iterations must be positive, got: %d", n))
		}
	}

	if viper.IsSet("max_retries") {
		if n := viper.GetInt("max_retries"); n < 0 {
			errors = append(errors, fmt.Sprintf("max_retries must not be negative, got: %d", n))
		}
	}

	if viper.IsSet("verification_timeout_ms") {
		if n := viper.GetInt64("verification_timeout_ms"); n <= 0 {
			errors = append(errors, fmt.Sprintf("verification_timeout_ms must be positive, got: %d", n))
		}
	}

	if viper.IsSet("capture_lines") {
		if n := viper.GetInt("capture_lines"); n <= 0 {
			errors = append(errors, fmt.Sprintf("capture_lines must be positive, got: %d", n))
		}
	}

	if viper.IsSet("metrics_port") {
		if port := viper.GetInt("metrics_port"); port != 0 && (port < 1 || port > 65535) {
			errors = append(errors, fmt.Sprintf("metrics_port must be 0 (disabled) or between 1 and 65535, got: %d", port))
		}
	}

	switch backend := viper.GetString("backend"); backend {
	case "", "local", "linear", "jira":
	default:
		errors = append(errors, fmt.Sprintf("backend must be one of local, linear, jira, got: %q", backend))
	}

	switch runtime := viper.GetString("agent_runtime"); runtime {
	case "", "claude", "opencode":
	default:
		errors = append(errors, fmt.Sprintf("agent_runtime must be claude or opencode, got: %q", runtime))
	}

	if len(errors) > 0 {
		errorMsg := errors[0]
		for i := 1; i < len(errors); i++ {
			errorMsg += "\n  " + errors[i]
		}
		return fmt.Errorf("configuration validation failed:\n  %s", errorMsg)
	}

	return nil
}

// ValidateAndExit validates the configuration and exits non-zero on failure.
func ValidateAndExit() {
	if err := ValidateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
