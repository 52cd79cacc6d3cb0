package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"mobius/internal/config"
	"mobius/internal/telemetry"
)

var exit = os.Exit
var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mobius",
	Short: "Mobius: parallel AI coding agents over an issue dependency graph",
	Long: `Mobius executes a parent issue's sub-tasks with parallel AI coding
agents. It builds a dependency graph from the tracker's sub-tasks, runs
ready tasks in isolated git worktrees inside tmux panes, verifies agent
results, retries transient failures, and cascades completion until the
parent is done.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./mobius.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(loopCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(doctorCmd)
}

func initConfig() {
	config.Load(cfgFile)
	config.ValidateAndExit()
	telemetry.InitLogger(viper.GetBool("verbose"), viper.GetString("log_file"))
}
