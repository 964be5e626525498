package tfrunner

import (
	"context"
	"time"
)

// Checks bundles the external tool results that rules may consume.
type Checks struct {
	// Syntax is the result of the syntax/semantic validation mode.
	Syntax *ExecResult `json:"syntax,omitempty"`

	// Format is the result of the canonical-format check mode.
	Format *ExecResult `json:"format,omitempty"`
}

// SyntaxArgs is the argument list for the syntax check mode.
func SyntaxArgs() []string {
	return []string{"validate"}
}

// FormatArgs is the argument list for the format check mode.
func FormatArgs() []string {
	return []string{"fmt", "-check=true", "-diff=true"}
}

// RunChecks performs both external check modes against the configuration
// directory. A spawn failure aborts; tool-reported failures come back as
// data in Checks.
func RunChecks(ctx context.Context, runner Runner, dir string, timeout time.Duration) (*Checks, error) {
	syntax, err := runner.Run(ctx, Invocation{Args: SyntaxArgs(), Dir: dir, Timeout: timeout})
	if err != nil {
		return nil, err
	}

	format, err := runner.Run(ctx, Invocation{Args: FormatArgs(), Dir: dir, Timeout: timeout})
	if err != nil {
		return nil, err
	}

	return &Checks{Syntax: syntax, Format: format}, nil
}
