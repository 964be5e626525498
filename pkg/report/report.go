// Package report aggregates rule results into the CI-gateable validation
// report and renders it for humans and machines.
package report

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/infraguard/infraguard/pkg/policy"
)

// ValidationReport is the aggregate outcome of one validation run.
type ValidationReport struct {
	// ID is the unique identifier for this report.
	ID string `json:"id,omitempty"`

	// GeneratedAt is when the report was generated, in UTC.
	GeneratedAt time.Time `json:"generated_at,omitzero"`

	// Directory is the configuration directory that was validated.
	Directory string `json:"directory"`

	// PolicySource is the policy file in effect, or "embedded defaults".
	PolicySource string `json:"policy_source"`

	// Results are the rule results, sorted by rule ID.
	Results []policy.RuleResult `json:"results"`

	// Summary carries the aggregate counts.
	Summary Summary `json:"summary"`

	// Passed is true when no blocking rule failed. Advisory failures do
	// not affect it.
	Passed bool `json:"passed"`
}

// Summary provides aggregate statistics for a validation run.
type Summary struct {
	// TotalRules is the number of rules evaluated.
	TotalRules int `json:"total_rules"`

	// PassedRules is the number of rules that found no violations.
	PassedRules int `json:"passed_rules"`

	// FailedRules is the number of rules with findings, advisory included.
	FailedRules int `json:"failed_rules"`

	// BlockingFailures is the number of failed rules at blocking severity.
	BlockingFailures int `json:"blocking_failures"`

	// TotalDiagnostics is the number of findings across all rules.
	TotalDiagnostics int `json:"total_diagnostics"`

	// FailuresBySeverity breaks failed rules down by effective severity.
	FailuresBySeverity map[policy.Severity]int `json:"failures_by_severity,omitempty"`

	// Duration is the wall-clock duration of the whole run.
	Duration time.Duration `json:"duration,omitempty"`
}

// Build assembles a report from rule results. The results are copied and
// sorted by rule ID so the report is independent of evaluation order.
func Build(dir, policySource string, results []policy.RuleResult, duration time.Duration) *ValidationReport {
	if policySource == "" {
		policySource = "embedded defaults"
	}

	sorted := make([]policy.RuleResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RuleID < sorted[j].RuleID })

	summary := Summary{
		TotalRules:         len(sorted),
		FailuresBySeverity: make(map[policy.Severity]int),
		Duration:           duration,
	}
	passed := true
	for i := range sorted {
		res := &sorted[i]
		summary.TotalDiagnostics += len(res.Diagnostics)
		if res.Passed {
			summary.PassedRules++
			continue
		}
		summary.FailedRules++
		summary.FailuresBySeverity[res.Severity]++
		if res.Blocking() {
			summary.BlockingFailures++
			passed = false
		}
	}
	if len(summary.FailuresBySeverity) == 0 {
		summary.FailuresBySeverity = nil
	}

	return &ValidationReport{
		ID:           uuid.NewString(),
		GeneratedAt:  time.Now().UTC(),
		Directory:    dir,
		PolicySource: policySource,
		Results:      sorted,
		Summary:      summary,
		Passed:       passed,
	}
}

// Failures returns the failed results, advisory included.
func (r *ValidationReport) Failures() []policy.RuleResult {
	var out []policy.RuleResult
	for _, res := range r.Results {
		if !res.Passed {
			out = append(out, res)
		}
	}
	return out
}
