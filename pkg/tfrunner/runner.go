// Package tfrunner invokes the external infrastructure tool (terraform) as
// a subprocess behind a capability contract, so policy rules can consume
// its exit status and output without the engine ever spawning processes in
// tests.
package tfrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBinary is the external tool invoked for syntax and format checks.
const DefaultBinary = "terraform"

// Invocation describes one external tool call.
type Invocation struct {
	// Args are the tool arguments, e.g. ["validate"].
	Args []string

	// Dir is the working directory (the configuration directory).
	Dir string

	// Timeout bounds the call. Zero means no bound.
	Timeout time.Duration
}

// ExecResult is the structured outcome of an external tool call. A non-zero
// exit code is meaningful data for rules, never an error.
type ExecResult struct {
	// ExitCode is the process exit code; -1 when the process timed out.
	ExitCode int `json:"exit_code"`

	// Stdout is the captured standard output.
	Stdout string `json:"stdout"`

	// Stderr is the captured standard error.
	Stderr string `json:"stderr"`

	// Duration is the wall-clock call duration.
	Duration time.Duration `json:"duration"`

	// TimedOut marks calls cut off by the invocation timeout.
	TimedOut bool `json:"timed_out"`
}

// Success reports whether the call completed with exit code zero.
func (r *ExecResult) Success() bool {
	return r != nil && !r.TimedOut && r.ExitCode == 0
}

// SpawnError is the fatal adapter failure: the external tool could not be
// located or started at all.
type SpawnError struct {
	Binary string
	Err    error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("cannot spawn external validator %q: %v", e.Binary, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Runner is the capability contract for external tool execution. Tests
// substitute a fake implementation.
type Runner interface {
	Run(ctx context.Context, inv Invocation) (*ExecResult, error)
}

// ExecRunner runs the real binary via os/exec.
type ExecRunner struct {
	binary string
	logger zerolog.Logger
}

// NewExecRunner creates a runner for the given binary. An empty binary
// selects the default.
func NewExecRunner(binary string, logger zerolog.Logger) *ExecRunner {
	if binary == "" {
		binary = DefaultBinary
	}
	return &ExecRunner{
		binary: binary,
		logger: logger.With().Str("component", "tf-runner").Logger(),
	}
}

// Run executes the tool and captures its output. Non-zero exit codes are
// returned as data; only spawn failures are errors.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (*ExecResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if inv.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, r.binary, inv.Args...)
	if inv.Dir != "" {
		cmd.Dir = inv.Dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	result := &ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			result.ExitCode = -1
			result.TimedOut = true
			r.logger.Warn().
				Str("binary", r.binary).
				Strs("args", inv.Args).
				Dur("timeout", inv.Timeout).
				Msg("External validator timed out")
			return result, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			r.logger.Debug().
				Str("binary", r.binary).
				Strs("args", inv.Args).
				Int("exit_code", result.ExitCode).
				Msg("External validator reported failure")
			return result, nil
		}

		return nil, &SpawnError{Binary: r.binary, Err: err}
	}

	result.ExitCode = 0
	return result, nil
}
