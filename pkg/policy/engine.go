package policy

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/infraguard/infraguard/pkg/config"
	"github.com/rs/zerolog"
)

// Engine holds the rule registry and evaluates it against a configuration
// snapshot. Rules are independent, so evaluation fans out over a bounded
// worker pool; results come back sorted by rule ID regardless of completion
// order.
type Engine struct {
	mu      sync.RWMutex
	rules   map[string]Rule
	policy  *config.Policy
	logger  zerolog.Logger
	workers int
}

// NewEngine creates an engine with the builtin rules registered.
func NewEngine(pol *config.Policy, logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		rules:   make(map[string]Rule),
		policy:  pol,
		logger:  logger.With().Str("component", "policy-engine").Logger(),
		workers: defaultWorkers(),
	}

	for _, r := range BuiltinRules(pol) {
		if err := e.Register(r); err != nil {
			return nil, fmt.Errorf("failed to register builtin rule: %w", err)
		}
	}

	// Severity overrides are validated up front so a typo in the policy
	// file fails loudly instead of silently keeping the default.
	for id, sev := range pol.SeverityOverrides {
		if _, err := ParseSeverity(sev); err != nil {
			return nil, fmt.Errorf("invalid severity override for rule %s: %w", id, err)
		}
	}

	return e, nil
}

// Register adds a rule to the registry. Rule IDs are unique.
func (e *Engine) Register(r Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.rules[r.ID()]; exists {
		return fmt.Errorf("rule %s is already registered", r.ID())
	}
	e.rules[r.ID()] = r

	e.logger.Debug().Str("rule", r.ID()).Msg("Rule registered")
	return nil
}

// ReplaceCustomRules swaps the non-builtin rules for the given set. Used by
// watch mode when the rules directory changes.
func (e *Engine) ReplaceCustomRules(rules []Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	builtin := make(map[string]bool)
	for _, r := range BuiltinRules(e.policy) {
		builtin[r.ID()] = true
	}
	for id := range e.rules {
		if !builtin[id] {
			delete(e.rules, id)
		}
	}
	for _, r := range rules {
		if _, exists := e.rules[r.ID()]; exists {
			return fmt.Errorf("rule %s is already registered", r.ID())
		}
		e.rules[r.ID()] = r
	}

	e.logger.Info().Int("count", len(rules)).Msg("Custom rules replaced")
	return nil
}

// Rules returns the registered rules sorted by ID, disabled ones included.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for _, r := range e.rules {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// EvaluateAll runs every enabled rule against the input and returns the
// results sorted by rule ID. A cancelled context discards partial results
// and returns the context error.
func (e *Engine) EvaluateAll(ctx context.Context, in *Input) ([]RuleResult, error) {
	enabled := e.enabledRules()

	jobs := make(chan Rule)
	out := make(chan RuleResult, len(enabled))

	var wg sync.WaitGroup
	workers := e.workers
	if workers > len(enabled) {
		workers = len(enabled)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range jobs {
				out <- e.evaluateOne(ctx, r, in)
			}
		}()
	}

feed:
	for _, r := range enabled {
		select {
		case jobs <- r:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(out)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := make([]RuleResult, 0, len(enabled))
	for res := range out {
		results = append(results, res)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].RuleID < results[j].RuleID })
	return results, nil
}

// evaluateOne runs a single rule and normalizes its result.
func (e *Engine) evaluateOne(ctx context.Context, r Rule, in *Input) RuleResult {
	res := r.Evaluate(ctx, in)
	res.RuleID = r.ID()
	if res.Description == "" {
		res.Description = r.Description()
	}
	if res.Severity == "" {
		res.Severity = r.Severity()
	}
	if override, ok := e.policy.SeverityOverrides[r.ID()]; ok {
		if sev, err := ParseSeverity(override); err == nil {
			res.Severity = sev
		}
	}

	// A failure with no findings would be unactionable; guarantee at
	// least one diagnostic.
	if !res.Passed && len(res.Diagnostics) == 0 {
		res.Diagnostics = []Diagnostic{{
			Message: "rule reported failure without diagnostics",
		}}
	}

	e.logger.Debug().
		Str("rule", res.RuleID).
		Bool("passed", res.Passed).
		Int("diagnostics", len(res.Diagnostics)).
		Dur("duration", res.Duration).
		Msg("Rule evaluated")

	return res
}

// enabledRules snapshots the registry minus the disabled rules.
func (e *Engine) enabledRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, 0, len(e.rules))
	for id, r := range e.rules {
		if e.policy.RuleDisabled(id) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func defaultWorkers() int {
	n := runtime.NumCPU()
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}
