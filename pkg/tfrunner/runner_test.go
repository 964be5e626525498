package tfrunner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

// fakeRunner records invocations and plays back canned results.
type fakeRunner struct {
	results map[string]*ExecResult
	err     error
	calls   []Invocation
}

func (f *fakeRunner) Run(ctx context.Context, inv Invocation) (*ExecResult, error) {
	f.calls = append(f.calls, inv)
	if f.err != nil {
		return nil, f.err
	}
	if len(inv.Args) > 0 {
		if res, ok := f.results[inv.Args[0]]; ok {
			return res, nil
		}
	}
	return &ExecResult{ExitCode: 0}, nil
}

func TestExecRunner_Success(t *testing.T) {
	runner := NewExecRunner("sh", testLogger())

	res, err := runner.Run(context.Background(), Invocation{
		Args:    []string{"-c", "echo ok; echo warn >&2"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !res.Success() {
		t.Errorf("Expected success, got exit code %d", res.ExitCode)
	}
	if res.Stdout != "ok\n" {
		t.Errorf("Unexpected stdout: %q", res.Stdout)
	}
	if res.Stderr != "warn\n" {
		t.Errorf("Unexpected stderr: %q", res.Stderr)
	}
}

func TestExecRunner_NonZeroExitIsData(t *testing.T) {
	runner := NewExecRunner("sh", testLogger())

	res, err := runner.Run(context.Background(), Invocation{
		Args:    []string{"-c", "echo broken >&2; exit 3"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Non-zero exit must not be an error: %v", err)
	}

	if res.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %d", res.ExitCode)
	}
	if res.Success() {
		t.Error("Result should not report success")
	}
	if res.Stderr != "broken\n" {
		t.Errorf("Stderr not captured: %q", res.Stderr)
	}
}

func TestExecRunner_SpawnFailure(t *testing.T) {
	runner := NewExecRunner("definitely-not-a-real-binary-xyz", testLogger())

	_, err := runner.Run(context.Background(), Invocation{Args: []string{"validate"}})
	if err == nil {
		t.Fatal("Expected spawn error for missing binary")
	}

	var spawnErr *SpawnError
	if !errors.As(err, &spawnErr) {
		t.Fatalf("Expected *SpawnError, got %T: %v", err, err)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	runner := NewExecRunner("sh", testLogger())

	res, err := runner.Run(context.Background(), Invocation{
		Args:    []string{"-c", "sleep 5"},
		Timeout: 50 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Timeout must be data, not an error: %v", err)
	}

	if !res.TimedOut {
		t.Error("Result should be marked timed out")
	}
	if res.ExitCode != -1 {
		t.Errorf("Expected exit code -1 on timeout, got %d", res.ExitCode)
	}
}

func TestRunChecks(t *testing.T) {
	fake := &fakeRunner{
		results: map[string]*ExecResult{
			"validate": {ExitCode: 0, Stdout: "Success! The configuration is valid."},
			"fmt":      {ExitCode: 3, Stdout: "main.tf"},
		},
	}

	checks, err := RunChecks(context.Background(), fake, "/infra", 30*time.Second)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}

	if !checks.Syntax.Success() {
		t.Error("Syntax check should pass")
	}
	if checks.Format.Success() {
		t.Error("Format check should fail")
	}

	if len(fake.calls) != 2 {
		t.Fatalf("Expected 2 invocations, got %d", len(fake.calls))
	}
	if fake.calls[0].Dir != "/infra" || fake.calls[1].Dir != "/infra" {
		t.Error("Invocations should run in the configuration directory")
	}
	if got := fake.calls[1].Args[1]; got != "-check=true" {
		t.Errorf("Format mode should be a check, got %v", fake.calls[1].Args)
	}
}

func TestRunChecks_SpawnFailureAborts(t *testing.T) {
	fake := &fakeRunner{err: &SpawnError{Binary: "terraform", Err: errors.New("not found")}}

	if _, err := RunChecks(context.Background(), fake, "/infra", time.Second); err == nil {
		t.Fatal("Spawn failure must abort RunChecks")
	}
}
