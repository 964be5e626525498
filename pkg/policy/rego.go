package policy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/rego"
)

// RegoRule is a custom rule backed by a Rego module. Violations come from
// the module's deny set; each entry is either a message string or an object
// with message/file/address keys.
type RegoRule struct {
	id          string
	description string
	severity    Severity
	source      string
	query       rego.PreparedEvalQuery
}

// NewRegoRule compiles a Rego module into a rule. The deny query is prepared
// once; evaluation only binds the input.
func NewRegoRule(ctx context.Context, id, description string, severity Severity, source string) (*RegoRule, error) {
	query := fmt.Sprintf("data.%s.deny", regoPackageName(source))

	prepared, err := rego.New(
		rego.Module(id, source),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile rego rule %s: %w", id, err)
	}

	return &RegoRule{
		id:          id,
		description: description,
		severity:    severity,
		source:      source,
		query:       prepared,
	}, nil
}

func (r *RegoRule) ID() string          { return r.id }
func (r *RegoRule) Description() string { return r.description }
func (r *RegoRule) Severity() Severity  { return r.severity }

// Evaluate runs the deny query against the input payload. Evaluation errors
// fail the rule with a diagnostic rather than aborting the run.
func (r *RegoRule) Evaluate(ctx context.Context, in *Input) RuleResult {
	start := time.Now()
	result := RuleResult{
		RuleID:      r.id,
		Description: r.description,
		Severity:    r.severity,
	}

	results, err := r.query.Eval(ctx, rego.EvalInput(in.Payload()))
	if err != nil {
		result.Diagnostics = []Diagnostic{{
			Message: fmt.Sprintf("rego evaluation failed: %v", err),
		}}
		result.Duration = time.Since(start)
		return result
	}

	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				result.Diagnostics = append(result.Diagnostics, regoDiagnostic(d))
			}
		}
	}

	result.Passed = len(result.Diagnostics) == 0
	result.Duration = time.Since(start)
	return result
}

// regoDiagnostic maps a deny set entry to a diagnostic.
func regoDiagnostic(entry interface{}) Diagnostic {
	switch v := entry.(type) {
	case string:
		return Diagnostic{Message: v}
	case map[string]interface{}:
		d := Diagnostic{}
		if msg, ok := v["message"].(string); ok {
			d.Message = msg
		}
		if file, ok := v["file"].(string); ok {
			d.File = file
		}
		if addr, ok := v["address"].(string); ok {
			d.Address = addr
		}
		if d.Message == "" {
			d.Message = fmt.Sprintf("%v", v)
		}
		return d
	default:
		return Diagnostic{Message: fmt.Sprintf("%v", entry)}
	}
}

// regoPackageName extracts the package name from Rego source.
func regoPackageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "infraguard.rules"
}
