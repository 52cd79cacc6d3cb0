package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load initializes the configuration from file and environment variables.
// Precedence: flags (bound by the CLI) > MOBIUS_* environment variables >
// config file > defaults.
func Load(cfgFile string) {
	// explicit .env loading, so LINEAR_API_KEY / JIRA_* in a project .env
	// are visible before any backend is constructed
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("mobius")
	}

	viper.SetEnvPrefix("MOBIUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Execution loop
	viper.SetDefault("backend", "")
	viper.SetDefault("model", "")
	viper.SetDefault("thinking_level", "")
	viper.SetDefault("agent_runtime", "claude")
	viper.SetDefault("max_parallel_agents", 3)
	viper.SetDefault("max_iterations", 50)
	viper.SetDefault("agent_timeout", 30*time.Minute)
	viper.SetDefault("poll_interval", 2*time.Second)
	viper.SetDefault("capture_lines", 200)

	// Retry / verification gate
	viper.SetDefault("max_retries", 2)
	viper.SetDefault("verification_timeout_ms", 5000)
	viper.SetDefault("max_vg_fast_retries", 3)

	// Git
	viper.SetDefault("base_branch", "")
	viper.SetDefault("remote", "origin")
	viper.SetDefault("cleanup_on_success", true)

	// Observability
	viper.SetDefault("metrics_port", 0)
	viper.SetDefault("verbose", false)
	viper.SetDefault("log_file", "")

	// Notification defaults: Slack auto-enables when a bot token is present
	viper.SetDefault("notifications.slack.enabled", os.Getenv("SLACK_BOT_USER_TOKEN") != "")
	viper.SetDefault("notifications.slack.channel", "#general")
	viper.SetDefault("notifications.discord.enabled", false)
	viper.SetDefault("notifications.events.on_start", true)
	viper.SetDefault("notifications.events.on_success", true)
	viper.SetDefault("notifications.events.on_failure", true)
	viper.SetDefault("notifications.events.on_task_failed", false)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	} else if cfgFile == "" {
		// Write the defaults out once so tunables are discoverable, but only
		// in the implicit-path case: a named file that failed to load is the
		// user's problem to fix, not ours to shadow.
		if _, statErr := os.Stat("mobius.yaml"); os.IsNotExist(statErr) {
			if writeErr := viper.WriteConfigAs("mobius.yaml"); writeErr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to create default config file: %v\n", writeErr)
			}
		}
	}
}

// Settings is the typed snapshot of everything the loop and its subsystems
// tune on, resolved once at command start so the rest of the code never
// reaches into viper directly.
type Settings struct {
	Backend           string
	Model             string
	ThinkingLevel     string
	AgentRuntime      string
	MaxParallelAgents int
	MaxIterations     int
	AgentTimeout      time.Duration
	PollInterval      time.Duration
	CaptureLines      int

	MaxRetries            int
	VerificationTimeoutMS int64
	MaxVGFastRetries      int

	BaseBranch       string
	Remote           string
	CleanupOnSuccess bool

	DisallowedTools []string

	MetricsPort int
	Verbose     bool
	LogFile     string
}

// Resolve reads the current viper state into a Settings value.
func Resolve() Settings {
	return Settings{
		Backend:           viper.GetString("backend"),
		Model:             viper.GetString("model"),
		ThinkingLevel:     viper.GetString("thinking_level"),
		AgentRuntime:      viper.GetString("agent_runtime"),
		MaxParallelAgents: viper.GetInt("max_parallel_agents"),
		MaxIterations:     viper.GetInt("max_iterations"),
		AgentTimeout:      durationOrSeconds("agent_timeout"),
		PollInterval:      durationOrSeconds("poll_interval"),
		CaptureLines:      viper.GetInt("capture_lines"),

		MaxRetries:            viper.GetInt("max_retries"),
		VerificationTimeoutMS: viper.GetInt64("verification_timeout_ms"),
		MaxVGFastRetries:      viper.GetInt("max_vg_fast_retries"),

		BaseBranch:       viper.GetString("base_branch"),
		Remote:           viper.GetString("remote"),
		CleanupOnSuccess: viper.GetBool("cleanup_on_success"),

		DisallowedTools: viper.GetStringSlice("disallowed_tools"),

		MetricsPort: viper.GetInt("metrics_port"),
		Verbose:     viper.GetBool("verbose"),
		LogFile:     viper.GetString("log_file"),
	}
}

// durationOrSeconds reads a key as a duration, accepting a bare integer as
// seconds for config files that write "agent_timeout: 1800".
func durationOrSeconds(key string) time.Duration {
	switch v := viper.Get(key).(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	case string:
		if s, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return time.Duration(s) * time.Second
		}
	}
	return viper.GetDuration(key)
}
