package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for policy validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("policy", builtinPolicySchema)
	return sr
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateValue validates a CUE value against a named schema.
func (sr *SchemaRegistry) ValidateValue(schemaName string, val cue.Value) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// The schema was compiled in the registry's own context; recompile the
	// candidate there so unification is legal.
	data, err := valueSyntax(val)
	if err != nil {
		return err
	}
	candidate := sr.ctx.CompileBytes(data)
	if err := candidate.Err(); err != nil {
		return fmt.Errorf("failed to re-encode value for schema check: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Policy"))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no #Policy definition", schemaName)
	}

	unified := def.Unify(candidate)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("schema validation failed: %v", summarizeCUEErrors(err))
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// valueSyntax renders a CUE value back to source for cross-context reuse.
func valueSyntax(val cue.Value) ([]byte, error) {
	data, err := val.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize value: %w", err)
	}
	return data, nil
}

// builtinPolicySchema constrains the policy table shape.
const builtinPolicySchema = `
#Policy: {
	project:     string & !=""
	environment: string & !=""

	iam_users_file:     string & !=""
	sso_reference_text: string & !=""

	permission_set_name:       string & !=""
	session_duration_variable: string & !=""
	sso_enable_variable:       string & !=""

	legacy_variables:    [...string]
	forbidden_resources: [...string]
	secret_tokens:       [...string]
	required_tags:       [...string]
	broad_actions:       [...string]

	budget_minimum: number & >=0

	budget_alert_thresholds: [...int & >0 & <=100]

	lifecycle_tiers: [...{
		days:          int & >0
		storage_class: string & !=""
	}]

	kms_min_deletion_window_days: int & >=7

	severity_overrides: {[string]: "info" | "warning" | "error" | "critical"}
	disabled_rules: [...string]
	rule_paths: [...string]

	external_timeout_seconds: int & >0
}
`
