// Package config loads the validator's declarative policy table from CUE
// files. The embedded defaults describe the compliance targets; a user file
// unifies over them so a deployment only states what differs.
package config

import (
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"
)

// defaultPolicyCUE holds the embedded policy defaults. The values mirror
// the compliance baseline of the edge MLOps project this validator was
// built for; any of them can be overridden from a user policy file.
const defaultPolicyCUE = `
project:     "slm-edge"
environment: "dev"

iam_users_file:     "iam-users-groups.tf"
sso_reference_text: "SSO"

permission_set_name:       "MLEdgeDevelopers"
session_duration_variable: "sso_session_duration"
sso_enable_variable:       "enable_sso_permission_sets"

legacy_variables: ["create_dev_user", "create_access_keys"]

forbidden_resources: [
	"aws_iam_user",
	"aws_iam_access_key",
	"aws_iam_group_membership",
]

secret_tokens: ["password", "secret", "access_key", "secret_key", "token"]

required_tags: ["Project", "Environment", "Owner", "CostCenter"]

broad_actions: ["*", "s3:*", "iam:*"]

budget_minimum: 10.0

budget_alert_thresholds: [80, 100]

lifecycle_tiers: [
	{days: 30, storage_class: "STANDARD_IA"},
	{days: 90, storage_class: "GLACIER"},
	{days: 365, storage_class: "DEEP_ARCHIVE"},
]

kms_min_deletion_window_days: 7

severity_overrides: {}
disabled_rules: []
rule_paths: []

external_timeout_seconds: 60
`

// Parser parses and validates policy configuration files.
type Parser struct {
	ctx            *cue.Context
	schemaRegistry *SchemaRegistry
	validator      *validator.Validate
}

// NewParser creates a new policy parser.
func NewParser() *Parser {
	return &Parser{
		ctx:            cuecontext.New(),
		schemaRegistry: NewSchemaRegistry(),
		validator:      validator.New(),
	}
}

// Default returns the embedded default policy table.
func (p *Parser) Default() (*Policy, error) {
	return p.decode(p.compileDefaults(), "")
}

// LoadFile loads a policy file and unifies it over the embedded defaults.
func (p *Parser) LoadFile(path string) (*Policy, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	val := p.ctx.CompileString(string(content), cue.Filename(path))
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %v",
			path, summarizeCUEErrors(err))
	}

	merged := p.compileDefaults().Unify(val)
	if err := merged.Err(); err != nil {
		return nil, fmt.Errorf("policy file %s conflicts with defaults: %v",
			path, summarizeCUEErrors(err))
	}

	return p.decode(merged, path)
}

// LoadInline parses inline CUE content over the defaults. Used by tests and
// by callers that assemble policy programmatically.
func (p *Parser) LoadInline(content string) (*Policy, error) {
	val := p.ctx.CompileString(content)
	if err := val.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse inline policy: %v", summarizeCUEErrors(err))
	}

	merged := p.compileDefaults().Unify(val)
	if err := merged.Err(); err != nil {
		return nil, fmt.Errorf("inline policy conflicts with defaults: %v",
			summarizeCUEErrors(err))
	}

	return p.decode(merged, "")
}

func (p *Parser) compileDefaults() cue.Value {
	return p.ctx.CompileString(defaultPolicyCUE)
}

func (p *Parser) decode(val cue.Value, sourceFile string) (*Policy, error) {
	if err := val.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("policy is not concrete: %v", summarizeCUEErrors(err))
	}

	if err := p.schemaRegistry.ValidateValue("policy", val); err != nil {
		return nil, err
	}

	var policy Policy
	if err := val.Decode(&policy); err != nil {
		return nil, fmt.Errorf("failed to decode policy: %w", err)
	}
	policy.SourceFile = sourceFile
	policy.ExternalTimeout = time.Duration(policy.ExternalTimeoutSeconds) * time.Second

	if err := p.validator.Struct(&policy); err != nil {
		return nil, fmt.Errorf("policy validation failed: %w", err)
	}

	return &policy, nil
}

// summarizeCUEErrors flattens CUE errors into located messages.
func summarizeCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range errors.Errors(err) {
		ve := ValidationError{Message: errors.Details(e, nil)}
		if pos := errors.Positions(e); len(pos) > 0 {
			ve.File = pos[0].Filename()
			ve.Line = pos[0].Line()
			ve.Column = pos[0].Column()
		}
		out = append(out, ve)
	}
	return out
}
