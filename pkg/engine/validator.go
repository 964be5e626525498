package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/infraguard/infraguard/pkg/config"
	"github.com/infraguard/infraguard/pkg/policy"
	"github.com/infraguard/infraguard/pkg/report"
	"github.com/infraguard/infraguard/pkg/telemetry"
	"github.com/infraguard/infraguard/pkg/tfconfig"
	"github.com/infraguard/infraguard/pkg/tfrunner"
)

// Process exit codes for CI gating.
const (
	// ExitPass means every blocking rule passed.
	ExitPass = 0

	// ExitBlocked means at least one blocking rule failed.
	ExitBlocked = 1

	// ExitFatal means the run could not complete: unreadable directory,
	// unspawnable external tool, invalid policy.
	ExitFatal = 2
)

// ExitCode maps a run outcome to a process exit code.
func ExitCode(rep *report.ValidationReport, err error) int {
	if err != nil {
		return ExitFatal
	}
	if rep == nil || !rep.Passed {
		return ExitBlocked
	}
	return ExitPass
}

// Options configures a Validator beyond the policy itself.
type Options struct {
	// Runner executes external tool calls. Nil selects the real binary.
	Runner tfrunner.Runner

	// Binary overrides the external tool binary name when Runner is nil.
	Binary string

	// SkipExternal disables the external syntax and format checks. The
	// corresponding rules then pass vacuously.
	SkipExternal bool

	// Telemetry supplies tracing and metrics. Nil disables both.
	Telemetry *telemetry.Telemetry
}

// Validator orchestrates a validation run: load the configuration
// directory, run the external checks, evaluate every rule, and aggregate
// the results into a report.
type Validator struct {
	policy       *config.Policy
	engine       *policy.Engine
	loader       *tfconfig.Loader
	ruleLoader   *policy.Loader
	runner       tfrunner.Runner
	skipExternal bool
	logger       zerolog.Logger
	tracer       *telemetry.Tracer
	metrics      *telemetry.Metrics
}

// New creates a Validator for the given policy. Custom rules referenced by
// the policy are compiled here, so an invalid rule source fails fast
// instead of surfacing mid-run.
func New(ctx context.Context, pol *config.Policy, logger zerolog.Logger, opts Options) (*Validator, error) {
	eng, err := policy.NewEngine(pol, logger)
	if err != nil {
		return nil, NewConfigError("invalid policy", err).WithCode(ErrCodeInvalidPolicy)
	}

	ruleLoader := policy.NewLoader(logger, 0)
	if len(pol.RulePaths) > 0 {
		rules, err := ruleLoader.LoadFromPaths(ctx, pol.RulePaths)
		if err != nil {
			return nil, NewConfigError("cannot load custom rules", err).WithCode(ErrCodeInvalidRule)
		}
		if err := eng.ReplaceCustomRules(rules); err != nil {
			return nil, NewConfigError("cannot register custom rules", err).WithCode(ErrCodeInvalidRule)
		}
	}

	runner := opts.Runner
	if runner == nil {
		runner = tfrunner.NewExecRunner(opts.Binary, logger)
	}

	var tracer *telemetry.Tracer
	var metrics *telemetry.Metrics
	if opts.Telemetry != nil {
		tracer = opts.Telemetry.Tracer
		metrics = opts.Telemetry.Metrics
	} else {
		tracer, err = telemetry.NewTracer(telemetry.TracingConfig{Enabled: false}, "infraguard", "", "")
		if err != nil {
			return nil, NewInternalError("cannot initialize tracer", err)
		}
		metrics, err = telemetry.NewMetrics(telemetry.MetricsConfig{Enabled: false})
		if err != nil {
			return nil, NewInternalError("cannot initialize metrics", err)
		}
	}

	return &Validator{
		policy:       pol,
		engine:       eng,
		loader:       tfconfig.NewLoader(logger),
		ruleLoader:   ruleLoader,
		runner:       runner,
		skipExternal: opts.SkipExternal,
		logger:       logger.With().Str("component", "validator").Logger(),
		tracer:       tracer,
		metrics:      metrics,
	}, nil
}

// Engine exposes the rule engine, mainly for inspection commands.
func (v *Validator) Engine() *policy.Engine {
	return v.engine
}

// Run performs one validation of the given configuration directory.
// Blocking rule failures are reported in the result, not as an error; an
// error means the run itself could not complete.
func (v *Validator) Run(ctx context.Context, dir string) (*report.ValidationReport, error) {
	start := time.Now()
	runID := uuid.New().String()
	logger := v.logger.With().Str("run_id", runID).Str("dir", dir).Logger()

	ctx, runSpan := v.tracer.StartRunSpan(ctx, runID, dir)
	defer runSpan.End()
	v.metrics.RecordRunStarted()

	logger.Info().Msg("Validation run started")

	set, err := v.loadConfiguration(ctx, dir, logger)
	if err != nil {
		telemetry.RecordError(runSpan, err)
		v.metrics.RecordRunCompleted("fatal", time.Since(start))
		return nil, err
	}

	checks, err := v.runExternalChecks(ctx, dir, logger)
	if err != nil {
		telemetry.RecordError(runSpan, err)
		v.metrics.RecordRunCompleted("fatal", time.Since(start))
		return nil, err
	}

	evalCtx, evalSpan := v.tracer.StartEvaluateSpan(ctx, len(v.engine.Rules()))
	results, err := v.engine.EvaluateAll(evalCtx, &policy.Input{Set: set, Checks: checks})
	if err != nil {
		verr := NewInternalError("rule evaluation aborted", err).WithCode(ErrCodeEvaluationAborted)
		telemetry.RecordError(evalSpan, verr)
		evalSpan.End()
		telemetry.RecordError(runSpan, verr)
		v.metrics.RecordRunCompleted("fatal", time.Since(start))
		return nil, verr
	}
	telemetry.RecordSuccess(evalSpan)
	evalSpan.End()

	v.recordRuleMetrics(results)

	rep := report.Build(dir, v.policy.SourceFile, results, time.Since(start))

	outcome := "fail"
	if rep.Passed {
		outcome = "pass"
	}
	v.metrics.RecordRunCompleted(outcome, time.Since(start))
	runSpan.SetAttributes(telemetry.AttrPassed.Bool(rep.Passed))
	telemetry.RecordSuccess(runSpan)

	logger.Info().
		Bool("passed", rep.Passed).
		Int("failed_rules", rep.Summary.FailedRules).
		Int("blocking_failures", rep.Summary.BlockingFailures).
		Dur("duration", rep.Summary.Duration).
		Msg("Validation run completed")

	return rep, nil
}

// loadConfiguration structurally parses the configuration directory.
func (v *Validator) loadConfiguration(ctx context.Context, dir string, logger zerolog.Logger) (*tfconfig.Set, error) {
	loadCtx, span := v.tracer.StartLoadSpan(ctx, dir)
	defer span.End()

	set, err := v.loader.LoadDirectory(loadCtx, dir)
	if err != nil {
		verr := NewLoadError("cannot load configuration directory", err).
			WithPath(dir).
			WithCode(ErrCodeDirectoryUnreadable)
		telemetry.RecordError(span, verr)
		return nil, verr
	}

	unparsable := len(set.Unparsable())
	v.metrics.RecordDocumentsLoaded(len(set.Documents), unparsable)
	if unparsable > 0 {
		logger.Warn().
			Int("documents", len(set.Documents)).
			Int("unparsable", unparsable).
			Msg("Some documents failed structural parsing")
	}

	telemetry.RecordSuccess(span)
	return set, nil
}

// runExternalChecks invokes the external tool for syntax and format
// validation. A nil result means the checks were skipped.
func (v *Validator) runExternalChecks(ctx context.Context, dir string, logger zerolog.Logger) (*tfrunner.Checks, error) {
	if v.skipExternal {
		logger.Debug().Msg("External checks skipped")
		return nil, nil
	}

	checkCtx, span := v.tracer.StartCheckSpan(ctx, "syntax+format")
	defer span.End()

	checks, err := tfrunner.RunChecks(checkCtx, v.runner, dir, v.policy.ExternalTimeout)
	if err != nil {
		verr := NewExternalError("external validator unavailable", err).
			WithPath(dir).
			WithCode(ErrCodeSpawnFailed)
		telemetry.RecordError(span, verr)
		v.metrics.RecordExternalCall("syntax", "spawn_failed", 0)
		return nil, verr
	}

	v.metrics.RecordExternalCall("syntax", externalStatus(checks.Syntax), checks.Syntax.Duration)
	v.metrics.RecordExternalCall("format", externalStatus(checks.Format), checks.Format.Duration)

	telemetry.RecordSuccess(span)
	return checks, nil
}

// recordRuleMetrics emits per-rule evaluation and finding metrics.
func (v *Validator) recordRuleMetrics(results []policy.RuleResult) {
	for _, res := range results {
		outcome := "pass"
		if !res.Passed {
			outcome = "fail"
		}
		v.metrics.RecordRuleEvaluation(res.RuleID, outcome, res.Duration)
		if !res.Passed {
			v.metrics.RecordFindings(string(res.Severity), len(res.Diagnostics))
		}
	}
}

// WatchRules hot-reloads custom rules when their source files change. It
// returns immediately; reloads happen on the loader's watch goroutine.
func (v *Validator) WatchRules(ctx context.Context) error {
	if len(v.policy.RulePaths) == 0 {
		return nil
	}
	return v.ruleLoader.Watch(ctx, v.policy.RulePaths, func(rules []policy.Rule) error {
		return v.engine.ReplaceCustomRules(rules)
	})
}

// StopWatching stops the custom rule watcher, if running.
func (v *Validator) StopWatching() error {
	return v.ruleLoader.StopWatching()
}

func externalStatus(res *tfrunner.ExecResult) string {
	switch {
	case res == nil:
		return "skipped"
	case res.TimedOut:
		return "timeout"
	case res.ExitCode == 0:
		return "ok"
	default:
		return "failed"
	}
}
