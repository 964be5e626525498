package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/infraguard/infraguard/pkg/policy"
)

// RenderJSON writes the report as indented JSON. In deterministic mode the
// run-specific fields (ID, timestamp, durations) are stripped, so identical
// inputs produce byte-identical output.
func (r *ValidationReport) RenderJSON(w io.Writer, deterministic bool) error {
	out := r
	if deterministic {
		out = r.stripped()
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

// stripped returns a copy without run-specific fields.
func (r *ValidationReport) stripped() *ValidationReport {
	out := *r
	out.ID = ""
	out.GeneratedAt = time.Time{}
	out.Summary.Duration = 0

	out.Results = make([]policy.RuleResult, len(r.Results))
	copy(out.Results, r.Results)
	for i := range out.Results {
		out.Results[i].Duration = 0
	}
	return &out
}
