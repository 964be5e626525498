package config

import (
	"time"
)

// LifecycleTier is one storage-class transition expected on bucket
// lifecycle configurations.
type LifecycleTier struct {
	// Days is the minimum age in days for the transition.
	Days int `json:"days" validate:"required,gt=0"`

	// StorageClass is the target storage class (e.g., "GLACIER").
	StorageClass string `json:"storage_class" validate:"required"`
}

// Policy is the declarative rule table loaded at startup. Every expected
// pattern and threshold the builtin rules check against comes from here, so
// new compliance targets are configuration changes, not code changes.
type Policy struct {
	// Project is the resource name prefix, e.g. "slm-edge".
	Project string `json:"project" validate:"required"`

	// Environment is the deployment environment segment, e.g. "dev".
	Environment string `json:"environment" validate:"required"`

	// IAMUsersFile is the file that must document the SSO-only approach.
	IAMUsersFile string `json:"iam_users_file" validate:"required"`

	// SSOReferenceText is the text the IAM users file must reference.
	SSOReferenceText string `json:"sso_reference_text" validate:"required"`

	// PermissionSetName is the expected SSO permission set name.
	PermissionSetName string `json:"permission_set_name" validate:"required"`

	// SessionDurationVariable is the input variable the permission set's
	// session_duration must be sourced from.
	SessionDurationVariable string `json:"session_duration_variable" validate:"required"`

	// SSOEnableVariable is the variable that must be declared to gate SSO
	// permission set creation.
	SSOEnableVariable string `json:"sso_enable_variable" validate:"required"`

	// LegacyVariables are variable names that must not be declared.
	LegacyVariables []string `json:"legacy_variables"`

	// ForbiddenResources are resource types that must not appear anywhere.
	ForbiddenResources []string `json:"forbidden_resources" validate:"min=1"`

	// SecretTokens are substrings that mark an attribute as sensitive.
	SecretTokens []string `json:"secret_tokens" validate:"min=1"`

	// RequiredTags are tag keys every taggable resource must carry.
	RequiredTags []string `json:"required_tags"`

	// BroadActions are IAM actions considered overly permissive.
	BroadActions []string `json:"broad_actions"`

	// BudgetMinimum is the minimum monthly budget limit that must be
	// configured, in account currency.
	BudgetMinimum float64 `json:"budget_minimum" validate:"gte=0"`

	// BudgetAlertThresholds are the percentage thresholds budget
	// notifications must cover.
	BudgetAlertThresholds []int `json:"budget_alert_thresholds" validate:"dive,gt=0,lte=100"`

	// LifecycleTiers are the expected cost-optimization transitions.
	LifecycleTiers []LifecycleTier `json:"lifecycle_tiers" validate:"dive"`

	// KMSMinDeletionWindowDays is the minimum KMS key deletion window.
	KMSMinDeletionWindowDays int `json:"kms_min_deletion_window_days" validate:"gte=7"`

	// SeverityOverrides maps rule ID to a severity replacing the builtin
	// default (info, warning, error, critical).
	SeverityOverrides map[string]string `json:"severity_overrides"`

	// DisabledRules lists rule IDs excluded from evaluation.
	DisabledRules []string `json:"disabled_rules"`

	// RulePaths are directories with custom rule files (.rego, .star,
	// .yaml manifests).
	RulePaths []string `json:"rule_paths"`

	// ExternalTimeout bounds each external tool invocation.
	ExternalTimeout time.Duration `json:"-"`

	// ExternalTimeoutSeconds is the CUE-facing form of ExternalTimeout.
	ExternalTimeoutSeconds int `json:"external_timeout_seconds" validate:"gt=0"`

	// SourceFile is the file the policy was loaded from, or "" for the
	// embedded defaults.
	SourceFile string `json:"-"`
}

// RuleDisabled reports whether the rule ID is on the disable list.
func (p *Policy) RuleDisabled(id string) bool {
	for _, d := range p.DisabledRules {
		if d == id {
			return true
		}
	}
	return false
}

// BucketPrefix is the required bucket name prefix,
// "{project}-{environment}-".
func (p *Policy) BucketPrefix() string {
	return p.Project + "-" + p.Environment + "-"
}

// ValidationError is a policy file problem with source location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}
