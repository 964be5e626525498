// Package engine orchestrates a validation run end to end: structural load
// of the configuration directory, external syntax and format checks, rule
// evaluation, and report aggregation. Run failures are classified so the
// CLI can map them to exit codes: blocking rule failures are report data
// (exit 1), while load and spawn failures are fatal errors (exit 2).
package engine
