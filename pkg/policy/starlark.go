package policy

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
)

// defaultStarlarkTimeout bounds custom script execution when no timeout is
// configured.
const defaultStarlarkTimeout = 30 * time.Second

// StarlarkRule is a custom rule backed by a Starlark script. The script must
// define check(input) returning a list of findings, each either a message
// string or a dict with message/file/address keys.
type StarlarkRule struct {
	id          string
	description string
	severity    Severity
	script      string
	filename    string
	timeout     time.Duration
}

// NewStarlarkRule wraps a script as a rule. The script is parsed lazily at
// evaluation time; parse errors fail the rule, not the run.
func NewStarlarkRule(id, description string, severity Severity, filename, script string, timeout time.Duration) *StarlarkRule {
	if timeout == 0 {
		timeout = defaultStarlarkTimeout
	}
	return &StarlarkRule{
		id:          id,
		description: description,
		severity:    severity,
		script:      script,
		filename:    filename,
		timeout:     timeout,
	}
}

func (r *StarlarkRule) ID() string          { return r.id }
func (r *StarlarkRule) Description() string { return r.description }
func (r *StarlarkRule) Severity() Severity  { return r.severity }

// Evaluate executes check(input) under the rule's timeout.
func (r *StarlarkRule) Evaluate(ctx context.Context, in *Input) RuleResult {
	start := time.Now()
	result := RuleResult{
		RuleID:      r.id,
		Description: r.description,
		Severity:    r.severity,
	}

	fail := func(msg string) RuleResult {
		result.Diagnostics = []Diagnostic{{Message: msg}}
		result.Duration = time.Since(start)
		return result
	}

	evalCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name: r.id,
		Print: func(_ *starlark.Thread, msg string) {
			// Script output is not a reporting channel.
		},
	}

	type evalOutcome struct {
		value starlark.Value
		err   error
	}
	done := make(chan evalOutcome, 1)

	go func() {
		globals, err := starlark.ExecFile(thread, r.filename, r.script, nil)
		if err != nil {
			done <- evalOutcome{err: err}
			return
		}
		checkFn, ok := globals["check"]
		if !ok {
			done <- evalOutcome{err: fmt.Errorf("script does not define check(input)")}
			return
		}
		input, err := toStarlark(in.Payload())
		if err != nil {
			done <- evalOutcome{err: fmt.Errorf("failed to build script input: %w", err)}
			return
		}
		value, err := starlark.Call(thread, checkFn, starlark.Tuple{input}, nil)
		done <- evalOutcome{value: value, err: err}
	}()

	var outcome evalOutcome
	select {
	case <-evalCtx.Done():
		thread.Cancel("timeout")
		return fail(fmt.Sprintf("starlark execution timed out after %v", r.timeout))
	case outcome = <-done:
	}
	if outcome.err != nil {
		return fail(fmt.Sprintf("starlark execution failed: %v", outcome.err))
	}

	diags, err := starlarkDiagnostics(outcome.value)
	if err != nil {
		return fail(err.Error())
	}

	result.Diagnostics = diags
	result.Passed = len(diags) == 0
	result.Duration = time.Since(start)
	return result
}

// starlarkDiagnostics converts the check() return value to diagnostics.
// None and the empty list both mean pass.
func starlarkDiagnostics(v starlark.Value) ([]Diagnostic, error) {
	if v == nil || v == starlark.None {
		return nil, nil
	}
	list, ok := v.(*starlark.List)
	if !ok {
		return nil, fmt.Errorf("check(input) must return a list, got %s", v.Type())
	}

	var diags []Diagnostic
	for i := 0; i < list.Len(); i++ {
		switch item := list.Index(i).(type) {
		case starlark.String:
			diags = append(diags, Diagnostic{Message: string(item)})
		case *starlark.Dict:
			d := Diagnostic{}
			d.Message = starlarkDictString(item, "message")
			d.File = starlarkDictString(item, "file")
			d.Address = starlarkDictString(item, "address")
			if d.Message == "" {
				d.Message = item.String()
			}
			diags = append(diags, d)
		default:
			return nil, fmt.Errorf("check(input) findings must be strings or dicts, got %s", item.Type())
		}
	}
	return diags, nil
}

func starlarkDictString(d *starlark.Dict, key string) string {
	v, found, err := d.Get(starlark.String(key))
	if err != nil || !found {
		return ""
	}
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	return ""
}

// toStarlark converts a payload value into a Starlark value.
func toStarlark(v interface{}) (starlark.Value, error) {
	switch val := v.(type) {
	case nil:
		return starlark.None, nil
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []interface{}:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]interface{}:
		dict := starlark.NewDict(len(val))
		for k, item := range val {
			sv, err := toStarlark(item)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}
