// Package cmd implements the tracelens command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/tracelens/internal/config"
	"github.com/telhawk-systems/tracelens/internal/logging"
	"github.com/telhawk-systems/tracelens/internal/scanner"
	"github.com/telhawk-systems/tracelens/pkg/output"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "0.1.0"

// Exit codes returned by the tracelens binary.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitNoInput = 2
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tracelens",
	Short: "Offline triage of Windows event log exports",
	Long: `tracelens scans Windows event log XML exports for intrusion signals.

It counts security-relevant events, detects failed-logon bursts, names the
most targeted account and source address, and rates the host with a single
risk score.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		output.New(rootCmd.OutOrStdout(), rootCmd.ErrOrStderr()).Error("%v", err)
	}
	return ExitCode(err)
}

// ExitCode maps a command error to a process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, scanner.ErrNoInput):
		return ExitNoInput
	default:
		return ExitFailure
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.tracelens/config.yaml)")
	rootCmd.PersistentFlags().String("output", "", "output format: text, json, yaml (default from config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error (default from config)")
	rootCmd.PersistentFlags().String("log-format", "", "log format: text, json (default from config)")
}

func initConfig() {
	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load config: %v\n", err)
		cfg = config.Default()
	}
}

// newLogger builds the command logger from config and the persistent flags.
func newLogger(cmd *cobra.Command) *logging.Logger {
	level := cfg.Logging.Level
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		level = v
	}
	format := cfg.Logging.Format
	if v, _ := cmd.Flags().GetString("log-format"); v != "" {
		format = v
	}

	logger := logging.NewWithWriter(cmd.ErrOrStderr(), logging.ParseLevel(level), format)
	logging.SetDefault(logger)
	return logger
}

func printer(cmd *cobra.Command) *output.Printer {
	return output.New(cmd.OutOrStdout(), cmd.ErrOrStderr())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the tracelens version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "tracelens %s\n", Version)
	},
}
