package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/infraguard/infraguard/pkg/policy"
)

func sampleResults() []policy.RuleResult {
	return []policy.RuleResult{
		{
			RuleID:   "s3/bucket-naming",
			Severity: policy.SeverityError,
			Passed:   false,
			Diagnostics: []policy.Diagnostic{
				{File: "s3.tf", Address: "resource.aws_s3_bucket.raw", Message: "bucket name violates naming scheme"},
			},
			Duration: 3 * time.Millisecond,
		},
		{
			RuleID:   "iam/no-static-credentials",
			Severity: policy.SeverityError,
			Passed:   true,
			Duration: time.Millisecond,
		},
		{
			RuleID:   "terraform/fmt",
			Severity: policy.SeverityWarning,
			Passed:   false,
			Diagnostics: []policy.Diagnostic{
				{File: "kms.tf", Message: "file is not in canonical format"},
			},
			Duration: 40 * time.Millisecond,
		},
	}
}

func TestBuild(t *testing.T) {
	r := Build("/infra", "", sampleResults(), 120*time.Millisecond)

	if r.ID == "" {
		t.Error("Report should carry an ID")
	}
	if r.GeneratedAt.IsZero() {
		t.Error("Report should carry a timestamp")
	}
	if r.PolicySource != "embedded defaults" {
		t.Errorf("Empty policy source should default, got %q", r.PolicySource)
	}

	// Results sorted by rule ID regardless of input order.
	wantOrder := []string{"iam/no-static-credentials", "s3/bucket-naming", "terraform/fmt"}
	for i, want := range wantOrder {
		if r.Results[i].RuleID != want {
			t.Errorf("Result %d: got %s, want %s", i, r.Results[i].RuleID, want)
		}
	}

	if r.Passed {
		t.Error("Report with a blocking failure must not pass")
	}
	if r.Summary.TotalRules != 3 || r.Summary.PassedRules != 1 || r.Summary.FailedRules != 2 {
		t.Errorf("Unexpected summary counts: %+v", r.Summary)
	}
	if r.Summary.BlockingFailures != 1 {
		t.Errorf("Expected 1 blocking failure, got %d", r.Summary.BlockingFailures)
	}
	if r.Summary.FailuresBySeverity[policy.SeverityWarning] != 1 {
		t.Errorf("Severity breakdown wrong: %+v", r.Summary.FailuresBySeverity)
	}
	if r.Summary.TotalDiagnostics != 2 {
		t.Errorf("Expected 2 diagnostics, got %d", r.Summary.TotalDiagnostics)
	}
}

func TestBuild_AdvisoryOnlyPasses(t *testing.T) {
	results := []policy.RuleResult{
		{
			RuleID:      "terraform/fmt",
			Severity:    policy.SeverityWarning,
			Passed:      false,
			Diagnostics: []policy.Diagnostic{{Message: "needs formatting"}},
		},
	}

	r := Build("/infra", "policy.cue", results, time.Millisecond)
	if !r.Passed {
		t.Error("Advisory failures alone must not fail the report")
	}
	if r.Summary.BlockingFailures != 0 {
		t.Errorf("Expected no blocking failures, got %d", r.Summary.BlockingFailures)
	}
}

func TestBuild_OrderIndependence(t *testing.T) {
	results := sampleResults()
	reversed := make([]policy.RuleResult, len(results))
	for i, res := range results {
		reversed[len(results)-1-i] = res
	}

	a := Build("/infra", "", results, time.Second)
	b := Build("/infra", "", reversed, time.Second)

	var bufA, bufB bytes.Buffer
	if err := a.RenderJSON(&bufA, true); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	if err := b.RenderJSON(&bufB, true); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Error("Deterministic reports must not depend on result order")
	}
}

func TestRenderJSON_Deterministic(t *testing.T) {
	first := Build("/infra", "", sampleResults(), 120*time.Millisecond)
	time.Sleep(2 * time.Millisecond)
	second := Build("/infra", "", sampleResults(), 95*time.Millisecond)

	var bufA, bufB bytes.Buffer
	if err := first.RenderJSON(&bufA, true); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	if err := second.RenderJSON(&bufB, true); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	if !bytes.Equal(bufA.Bytes(), bufB.Bytes()) {
		t.Errorf("Deterministic renders differ:\n%s\n---\n%s", bufA.String(), bufB.String())
	}
	if strings.Contains(bufA.String(), first.ID) {
		t.Error("Deterministic render must not contain the report ID")
	}

	// Non-deterministic mode keeps the run identity.
	var bufC bytes.Buffer
	if err := first.RenderJSON(&bufC, false); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}
	if !strings.Contains(bufC.String(), first.ID) {
		t.Error("Full render should contain the report ID")
	}
}

func TestRenderJSON_DoesNotMutateReport(t *testing.T) {
	r := Build("/infra", "", sampleResults(), time.Second)

	var buf bytes.Buffer
	if err := r.RenderJSON(&buf, true); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	if r.ID == "" || r.GeneratedAt.IsZero() || r.Summary.Duration == 0 {
		t.Error("Deterministic render must not mutate the report")
	}
	for _, res := range r.Results {
		if res.RuleID == "s3/bucket-naming" && res.Duration == 0 {
			t.Error("Result durations must survive a deterministic render")
		}
	}
}

func TestRenderConsole(t *testing.T) {
	r := Build("/infra", "", sampleResults(), time.Second)

	var buf bytes.Buffer
	if err := r.RenderConsole(&buf, false); err != nil {
		t.Fatalf("RenderConsole failed: %v", err)
	}
	out := buf.String()

	if !strings.Contains(out, "FAIL") || !strings.Contains(out, "s3/bucket-naming") {
		t.Errorf("Console output should list the blocking failure:\n%s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "terraform/fmt") {
		t.Errorf("Console output should list the advisory failure:\n%s", out)
	}
	if strings.Contains(out, "iam/no-static-credentials") {
		t.Errorf("Non-verbose output should omit passing rules:\n%s", out)
	}
	if !strings.Contains(out, "Result: FAIL") {
		t.Errorf("Console output should state the overall result:\n%s", out)
	}

	buf.Reset()
	if err := r.RenderConsole(&buf, true); err != nil {
		t.Fatalf("RenderConsole failed: %v", err)
	}
	if !strings.Contains(buf.String(), "iam/no-static-credentials") {
		t.Errorf("Verbose output should include passing rules:\n%s", buf.String())
	}
}
