package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infraguard/infraguard/pkg/config"
	"github.com/infraguard/infraguard/pkg/engine"
)

var (
	// Global flags
	policyPath string
	verbose    bool
	jsonOutput bool
)

// exitError carries an explicit process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit code %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, version, commit, buildDate string) int {
	rootCmd := newRootCommand(version, commit, buildDate)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			if exitErr.err != nil {
				log.Error().Err(exitErr.err).Msg("Command failed")
			}
			return exitErr.code
		}
		log.Error().Err(err).Msg("Command failed")
		return 1
	}
	return 0
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "infraguard",
		Short: "Infraguard - Infrastructure Policy Validator",
		Long: `Infraguard validates Terraform configuration directories against
security, cost and naming policy rules before they reach CI.

Features:
  - Structural parsing of configuration files (no tool invocation needed)
  - Builtin IAM, S3, KMS, tagging and cost rules
  - Custom rules in Rego or Starlark
  - External syntax and format checks via the terraform binary
  - CI-gateable exit codes: 0 pass, 1 blocking failure, 2 fatal`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&policyPath, "policy", "p", "", "policy file path (CUE); embedded defaults when empty")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newRulesCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newWatchCommand())

	return rootCmd
}

// loadPolicy loads the policy file named by --policy, or the embedded
// defaults.
func loadPolicy() (*config.Policy, error) {
	parser := config.NewParser()
	if policyPath == "" {
		return parser.Default()
	}
	return parser.LoadFile(policyPath)
}

// fatalExit wraps a run failure into the fatal exit code.
func fatalExit(err error) error {
	return &exitError{code: engine.ExitFatal, err: err}
}
