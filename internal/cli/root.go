// Package cli wires the inferload commands.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/inferload/inferload/internal/logging"
)

var version = "0.1.0"

// envPrefix namespaces environment overrides, e.g. INFERLOAD_API_KEY.
const envPrefix = "INFERLOAD"

// errThresholdsFailed is returned when a run completes but a threshold fails.
var errThresholdsFailed = errors.New("one or more thresholds failed")

// app is the state shared by every command of one invocation.
type app struct {
	v      *viper.Viper
	logger *zap.Logger
	stdout io.Writer
	stderr io.Writer
}

// newRootCmd builds the command tree. Each call returns an independent tree
// so tests can execute commands in isolation.
func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), stdout: os.Stdout, stderr: os.Stderr}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "inferload",
		Short:   "Concurrency-sweep load tester for embeddings and chat endpoints",
		Version: version,
		Long: `inferload drives an OpenAI-compatible embeddings or chat-completions
endpoint with a piecewise-linear schedule of virtual users and reports latency
percentiles, throughput and errors for every concurrency level it holds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.stdout = cmd.OutOrStdout()
			a.stderr = cmd.ErrOrStderr()
			if a.v.GetBool("no-color") {
				color.NoColor = true
			}
			logger, err := logging.New(logging.Options{
				Level:  a.v.GetString("log-level"),
				Format: a.v.GetString("log-format"),
				Output: a.stderr,
			})
			if err != nil {
				return err
			}
			a.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.String("log-level", "warn", "Log level: debug, info, warn, error")
	pf.String("log-format", "console", "Log format: console or json")
	pf.Bool("no-color", false, "Disable coloured output")
	for _, name := range []string{"log-level", "log-format", "no-color"} {
		_ = a.v.BindPFlag(name, pf.Lookup(name))
	}

	root.AddCommand(
		newRunCmd(a),
		newValidateCmd(a),
		newHistoryCmd(a),
		newMockCmd(a),
	)
	return root
}

// Execute runs the root command with os.Args.
func Execute() error {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errThresholdsFailed) {
			fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		}
		return err
	}
	return nil
}

// log returns the invocation logger, or a no-op before PersistentPreRunE.
func (a *app) log() *zap.Logger {
	return logging.OrNop(a.logger)
}
