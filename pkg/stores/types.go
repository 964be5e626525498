package stores

import (
	"context"
	"time"

	"github.com/infraguard/infraguard/pkg/policy"
	"github.com/infraguard/infraguard/pkg/report"
)

// ReportRecord is a persisted validation report header. Per-rule outcomes
// live in RuleResultRecord rows keyed by ReportID.
type ReportRecord struct {
	ID               string        `json:"id"`
	GeneratedAt      time.Time     `json:"generated_at"`
	Directory        string        `json:"directory"`
	PolicySource     string        `json:"policy_source"`
	Passed           bool          `json:"passed"`
	TotalRules       int           `json:"total_rules"`
	PassedRules      int           `json:"passed_rules"`
	FailedRules      int           `json:"failed_rules"`
	BlockingFailures int           `json:"blocking_failures"`
	TotalDiagnostics int           `json:"total_diagnostics"`
	Duration         time.Duration `json:"duration"`
	CreatedAt        time.Time     `json:"created_at"`
}

// RuleResultRecord is one persisted rule outcome.
type RuleResultRecord struct {
	ID          int64               `json:"id"`
	ReportID    string              `json:"report_id"`
	RuleID      string              `json:"rule_id"`
	Description string              `json:"description"`
	Severity    policy.Severity     `json:"severity"`
	Passed      bool                `json:"passed"`
	Diagnostics []policy.Diagnostic `json:"diagnostics"`
	Duration    time.Duration       `json:"duration"`
}

// Store persists validation reports for history queries.
type Store interface {
	Init(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	SaveReport(ctx context.Context, rep *report.ValidationReport) error
	GetReport(ctx context.Context, id string) (*ReportRecord, []*RuleResultRecord, error)
	ListReports(ctx context.Context, limit, offset int) ([]*ReportRecord, error)
	DeleteReport(ctx context.Context, id string) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	HealthCheck(ctx context.Context) error
}

// recordFromReport flattens a report into its persisted header form.
func recordFromReport(rep *report.ValidationReport) *ReportRecord {
	return &ReportRecord{
		ID:               rep.ID,
		GeneratedAt:      rep.GeneratedAt,
		Directory:        rep.Directory,
		PolicySource:     rep.PolicySource,
		Passed:           rep.Passed,
		TotalRules:       rep.Summary.TotalRules,
		PassedRules:      rep.Summary.PassedRules,
		FailedRules:      rep.Summary.FailedRules,
		BlockingFailures: rep.Summary.BlockingFailures,
		TotalDiagnostics: rep.Summary.TotalDiagnostics,
		Duration:         rep.Summary.Duration,
	}
}
