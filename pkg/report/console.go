package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/infraguard/infraguard/pkg/policy"
)

// RenderConsole writes the human-readable report. Verbose includes passing
// rules; otherwise only failures are listed.
func (r *ValidationReport) RenderConsole(w io.Writer, verbose bool) error {
	var b strings.Builder

	fmt.Fprintf(&b, "Validation report for %s (policy: %s)\n\n", r.Directory, r.PolicySource)

	for _, res := range r.Results {
		if res.Passed && !verbose {
			continue
		}
		fmt.Fprintf(&b, "  %s  %-28s %s\n", statusLabel(&res), res.RuleID, res.Description)
		for _, d := range res.Diagnostics {
			fmt.Fprintf(&b, "          - %s\n", d.String())
		}
	}

	s := r.Summary
	fmt.Fprintf(&b, "\n%d rules evaluated: %d passed, %d failed (%d blocking), %d finding(s)\n",
		s.TotalRules, s.PassedRules, s.FailedRules, s.BlockingFailures, s.TotalDiagnostics)

	if r.Passed {
		fmt.Fprintln(&b, "Result: PASS")
	} else {
		fmt.Fprintln(&b, "Result: FAIL")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func statusLabel(res *policy.RuleResult) string {
	switch {
	case res.Passed:
		return "PASS"
	case res.Blocking():
		return "FAIL"
	default:
		return "WARN"
	}
}
