// Package policy defines the rule registry and the builtin compliance rules.
// Every rule is a pure function of the loaded configuration snapshot plus the
// external check results; rules never touch the filesystem or spawn
// processes, which keeps evaluation parallel-safe and reproducible.
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/infraguard/infraguard/pkg/tfconfig"
	"github.com/infraguard/infraguard/pkg/tfrunner"
)

// Severity represents the severity level of a rule violation.
type Severity string

const (
	// SeverityInfo is for informational findings.
	SeverityInfo Severity = "info"

	// SeverityWarning is for advisory findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for violations that block the gate.
	SeverityError Severity = "error"

	// SeverityCritical is for violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a failure at this severity fails the run.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// ParseSeverity validates a severity string from configuration.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(s), nil
	}
	return "", fmt.Errorf("unknown severity %q", s)
}

// Diagnostic is a single finding emitted by a rule.
type Diagnostic struct {
	// File is the configuration file the finding points at, when known.
	File string `json:"file,omitempty"`

	// Address is the dotted block address, e.g.
	// "resource.aws_iam_user.dev", when the finding targets a block.
	Address string `json:"address,omitempty"`

	// Message is the human-readable finding.
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	switch {
	case d.File != "" && d.Address != "":
		return fmt.Sprintf("%s: %s: %s", d.File, d.Address, d.Message)
	case d.File != "":
		return fmt.Sprintf("%s: %s", d.File, d.Message)
	default:
		return d.Message
	}
}

// RuleResult is the outcome of evaluating one rule.
type RuleResult struct {
	// RuleID is the rule identifier, e.g. "s3/bucket-naming".
	RuleID string `json:"rule_id"`

	// Description is the rule's one-line description.
	Description string `json:"description"`

	// Severity is the effective severity after configuration overrides.
	Severity Severity `json:"severity"`

	// Passed is true when the rule found no violations.
	Passed bool `json:"passed"`

	// Diagnostics lists the findings. Never empty when Passed is false.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`

	// Duration is the rule's evaluation time.
	Duration time.Duration `json:"duration"`
}

// Blocking reports whether this result fails the overall run.
func (r *RuleResult) Blocking() bool {
	return !r.Passed && r.Severity.Blocking()
}

// Input is the immutable evaluation input shared by all rules.
type Input struct {
	// Set is the loaded configuration snapshot.
	Set *tfconfig.Set

	// Checks holds the external tool results. Nil when external checks
	// were skipped; rules wrapping them then pass vacuously.
	Checks *tfrunner.Checks
}

// Rule is one named compliance check.
type Rule interface {
	// ID is the stable rule identifier, e.g. "iam/no-static-credentials".
	ID() string

	// Description is a one-line summary of what the rule checks.
	Description() string

	// Severity is the rule's default severity.
	Severity() Severity

	// Evaluate runs the rule. Evaluation problems (bad custom rule code,
	// timeouts) surface as failed results with diagnostics, never as
	// panics or aborts.
	Evaluate(ctx context.Context, in *Input) RuleResult
}

// ruleFunc adapts a plain check function into a Rule. The function returns
// the findings; an empty slice means pass.
type ruleFunc struct {
	id          string
	description string
	severity    Severity
	fn          func(in *Input) []Diagnostic
}

func (r *ruleFunc) ID() string          { return r.id }
func (r *ruleFunc) Description() string { return r.description }
func (r *ruleFunc) Severity() Severity  { return r.severity }

func (r *ruleFunc) Evaluate(ctx context.Context, in *Input) RuleResult {
	start := time.Now()
	diags := r.fn(in)
	return RuleResult{
		RuleID:      r.id,
		Description: r.description,
		Severity:    r.severity,
		Passed:      len(diags) == 0,
		Diagnostics: diags,
		Duration:    time.Since(start),
	}
}
