package policy

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/infraguard/infraguard/pkg/config"
	"github.com/infraguard/infraguard/pkg/tfconfig"
)

// BuiltinRules returns the builtin rule table, parameterized by the policy
// configuration. Rule order here is irrelevant; the engine sorts results by
// rule ID.
func BuiltinRules(pol *config.Policy) []Rule {
	return []Rule{
		parseIntegrityRule(),
		noStaticCredentialsRule(pol),
		ssoReferenceRule(pol),
		permissionSetRule(pol),
		noLegacyVariablesRule(pol),
		noSecretLiteralsRule(pol),
		bucketNamingRule(pol),
		bucketVersioningRule(),
		bucketEncryptionRule(),
		publicAccessBlockRule(),
		lifecycleTiersRule(pol),
		kmsKeyRotationRule(pol),
		requiredTagsRule(pol),
		leastPrivilegeRule(pol),
		budgetRule(pol),
		syntaxCheckRule(),
		formatCheckRule(),
	}
}

// parseIntegrityRule fails for every document that could not be parsed
// structurally. A broken file is skipped by the structural rules, so letting
// it through silently would hide whatever it declares; the failure is
// blocking for that reason.
func parseIntegrityRule() Rule {
	return &ruleFunc{
		id:          "tfconfig/parse-integrity",
		description: "Every configuration file must parse structurally",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			var diags []Diagnostic
			for _, doc := range in.Set.Unparsable() {
				msg := "file could not be parsed"
				if len(doc.Diagnostics) > 0 {
					msg = fmt.Sprintf("file could not be parsed: %s", doc.Diagnostics[0])
				}
				diags = append(diags, Diagnostic{
					File:    doc.Name,
					Message: msg,
				})
			}
			return diags
		},
	}
}

// noStaticCredentialsRule forbids long-lived IAM credential resources
// anywhere in the configuration.
func noStaticCredentialsRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "iam/no-static-credentials",
		description: "Static IAM user and access key resources must not be declared",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			var diags []Diagnostic
			for _, ref := range in.Set.ResourcesOfType(pol.ForbiddenResources...) {
				diags = append(diags, Diagnostic{
					File:    ref.Doc.Name,
					Address: ref.Block.Address(),
					Message: fmt.Sprintf("forbidden resource type %q declared", ref.Block.FirstLabel()),
				})
			}
			return diags
		},
	}
}

// ssoReferenceRule requires the designated IAM users file to exist and to
// document the SSO-only approach.
func ssoReferenceRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "iam/sso-reference",
		description: "The IAM users file must exist and reference the SSO approach",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			doc := in.Set.Document(pol.IAMUsersFile)
			if doc == nil {
				return []Diagnostic{{
					Message: fmt.Sprintf("file %q not found in configuration directory", pol.IAMUsersFile),
				}}
			}
			if !doc.ContainsText(pol.SSOReferenceText) {
				return []Diagnostic{{
					File:    doc.Name,
					Message: fmt.Sprintf("file does not mention %q", pol.SSOReferenceText),
				}}
			}
			return nil
		},
	}
}

// permissionSetRule requires the SSO permission set resource with the
// configured name and a variable-sourced session duration.
func permissionSetRule(pol *config.Policy) Rule {
	wantRef := "var." + pol.SessionDurationVariable
	return &ruleFunc{
		id:          "sso/permission-set",
		description: "An SSO permission set with the expected name and variable-sourced session duration must exist",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			refs := in.Set.ResourcesOfType("aws_ssoadmin_permission_set")
			if len(refs) == 0 {
				return []Diagnostic{{
					Message: "no aws_ssoadmin_permission_set resource declared",
				}}
			}

			var diags []Diagnostic
			nameFound := false
			for _, ref := range refs {
				if name, ok := ref.Block.Attr("name"); ok {
					if lit, ok := name.StringLiteral(); ok && lit == pol.PermissionSetName {
						nameFound = true
					}
				}

				dur, ok := ref.Block.Attr("session_duration")
				switch {
				case !ok:
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: "session_duration is not set",
					})
				case !dur.IsVariableRef():
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: fmt.Sprintf("session_duration must reference %s, got %s", wantRef, dur.RawText),
					})
				}
			}
			if !nameFound {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("no permission set named %q", pol.PermissionSetName),
				})
			}
			return diags
		},
	}
}

// noLegacyVariablesRule forbids the legacy user/key creation variables and
// requires the SSO enable variable.
func noLegacyVariablesRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "vars/no-legacy-iam",
		description: "Legacy IAM creation variables must be removed and the SSO enable variable declared",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			vars := in.Set.Variables()

			var diags []Diagnostic
			for _, legacy := range pol.LegacyVariables {
				if ref, ok := vars[legacy]; ok {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: fmt.Sprintf("legacy variable %q must not be declared", legacy),
					})
				}
			}
			if _, ok := vars[pol.SSOEnableVariable]; !ok {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("required variable %q is not declared", pol.SSOEnableVariable),
				})
			}
			return diags
		},
	}
}

// noSecretLiteralsRule is a heuristic: attributes whose name or literal
// string value carries a sensitive token must be sourced from variables.
func noSecretLiteralsRule(pol *config.Policy) Rule {
	tokens := make([]string, len(pol.SecretTokens))
	for i, t := range pol.SecretTokens {
		tokens[i] = strings.ToLower(t)
	}
	hasToken := func(s string) bool {
		s = strings.ToLower(s)
		for _, t := range tokens {
			if strings.Contains(s, t) {
				return true
			}
		}
		return false
	}

	return &ruleFunc{
		id:          "secrets/no-literals",
		description: "Sensitive-looking attributes must be sourced from variables, never hard-coded",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			var diags []Diagnostic
			for _, doc := range in.Set.Documents {
				if !doc.Parsed() {
					diags = append(diags, scanSecretsText(doc, hasToken)...)
					continue
				}
				for _, b := range doc.AllBlocks() {
					for name, attr := range b.Attributes {
						// Prose fields are excused from value scanning.
						if name == "description" {
							continue
						}
						if hasToken(name) && !attr.IsVariableRef() {
							diags = append(diags, Diagnostic{
								File:    doc.Name,
								Address: b.Address(),
								Message: fmt.Sprintf("sensitive attribute %q is not a variable reference", name),
							})
							continue
						}
						if lit, ok := attr.StringLiteral(); ok && lit != "" && hasToken(lit) {
							diags = append(diags, Diagnostic{
								File:    doc.Name,
								Address: b.Address(),
								Message: fmt.Sprintf("attribute %q holds a sensitive-looking literal", name),
							})
						}
					}
				}
			}
			return diags
		},
	}
}

// assignmentLine matches a single-line attribute assignment in raw source.
var assignmentLine = regexp.MustCompile(`^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*(\S.*?)\s*$`)

// scanSecretsText is the text fallback for documents that failed structural
// parsing: raw lines that assign a sensitive-looking attribute to anything
// other than a var reference are flagged.
func scanSecretsText(doc *tfconfig.Document, hasToken func(string) bool) []Diagnostic {
	var diags []Diagnostic
	for i, line := range strings.Split(string(doc.Source), "\n") {
		m := assignmentLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name, value := m[1], m[2]
		if name == "description" {
			continue
		}
		if hasToken(name) && !strings.HasPrefix(value, "var.") {
			diags = append(diags, Diagnostic{
				File:    doc.Name,
				Message: fmt.Sprintf("sensitive attribute %q on line %d is not a variable reference", name, i+1),
			})
			continue
		}
		if strings.HasPrefix(value, `"`) && hasToken(value) {
			diags = append(diags, Diagnostic{
				File:    doc.Name,
				Message: fmt.Sprintf("attribute %q on line %d holds a sensitive-looking literal", name, i+1),
			})
		}
	}
	return diags
}

// bucketNameConstraint matches the S3 character rules: lowercase letters,
// digits, dots and hyphens, no leading or trailing hyphen or dot.
var bucketNameConstraint = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]*[a-z0-9]$`)

// bucketNamingRule checks literal bucket names against the project naming
// scheme and the S3 constraints. Interpolated names are skipped; nothing can
// be verified statically about them.
func bucketNamingRule(pol *config.Policy) Rule {
	prefix := pol.BucketPrefix()
	return &ruleFunc{
		id:          "s3/bucket-naming",
		description: "Bucket names must follow {project}-{environment}-{purpose} and S3 naming constraints",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			var diags []Diagnostic
			for _, ref := range in.Set.ResourcesOfType("aws_s3_bucket") {
				attr, ok := ref.Block.Attr("bucket")
				if !ok {
					continue
				}
				name, ok := attr.StringLiteral()
				if !ok {
					continue
				}

				fail := func(msg string) {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: msg,
					})
				}

				if len(name) < 3 || len(name) > 63 {
					fail(fmt.Sprintf("bucket name %q is %d characters, must be 3-63", name, len(name)))
					continue
				}
				if !bucketNameConstraint.MatchString(name) {
					fail(fmt.Sprintf("bucket name %q violates S3 naming constraints", name))
					continue
				}
				if !strings.HasPrefix(name, prefix) || len(name) == len(prefix) {
					fail(fmt.Sprintf("bucket name %q does not follow %s{purpose}", name, prefix))
				}
			}
			return diags
		},
	}
}

// bucketVersioningRule requires a versioning configuration with status
// Enabled for the declared buckets.
func bucketVersioningRule() Rule {
	return &ruleFunc{
		id:          "s3/versioning",
		description: "Buckets must have versioning enabled",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			buckets := in.Set.ResourcesOfType("aws_s3_bucket")
			if len(buckets) == 0 {
				return nil
			}

			var diags []Diagnostic
			versioning := in.Set.ResourcesOfType("aws_s3_bucket_versioning")
			if len(versioning) < len(buckets) {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("%d bucket(s) but only %d versioning configuration(s)",
						len(buckets), len(versioning)),
				})
			}
			for _, ref := range versioning {
				enabled := false
				for _, vc := range ref.Block.NestedOfType("versioning_configuration") {
					if status, ok := vc.Attr("status"); ok {
						if lit, ok := status.StringLiteral(); ok && lit == "Enabled" {
							enabled = true
						}
					}
				}
				if !enabled {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: "versioning status is not \"Enabled\"",
					})
				}
			}
			return diags
		},
	}
}

// bucketEncryptionRule requires KMS server-side encryption for the declared
// buckets.
func bucketEncryptionRule() Rule {
	return &ruleFunc{
		id:          "s3/encryption-at-rest",
		description: "Buckets must use KMS server-side encryption",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			buckets := in.Set.ResourcesOfType("aws_s3_bucket")
			if len(buckets) == 0 {
				return nil
			}

			var diags []Diagnostic
			sse := in.Set.ResourcesOfType("aws_s3_bucket_server_side_encryption_configuration")
			if len(sse) < len(buckets) {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("%d bucket(s) but only %d encryption configuration(s)",
						len(buckets), len(sse)),
				})
			}
			for _, ref := range sse {
				usesKMS := false
				for _, d := range ref.Block.NestedOfType("apply_server_side_encryption_by_default") {
					if alg, ok := d.Attr("sse_algorithm"); ok {
						if lit, ok := alg.StringLiteral(); ok && lit == "aws:kms" {
							usesKMS = true
						}
					}
				}
				if !usesKMS {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: "sse_algorithm is not \"aws:kms\"",
					})
				}
			}
			return diags
		},
	}
}

// publicAccessBlockRule requires all four public access block switches to be
// literal true for the declared buckets.
func publicAccessBlockRule() Rule {
	switches := []string{
		"block_public_acls",
		"block_public_policy",
		"ignore_public_acls",
		"restrict_public_buckets",
	}
	return &ruleFunc{
		id:          "s3/public-access-block",
		description: "Buckets must block all public access",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			buckets := in.Set.ResourcesOfType("aws_s3_bucket")
			if len(buckets) == 0 {
				return nil
			}

			var diags []Diagnostic
			pabs := in.Set.ResourcesOfType("aws_s3_bucket_public_access_block")
			if len(pabs) < len(buckets) {
				diags = append(diags, Diagnostic{
					Message: fmt.Sprintf("%d bucket(s) but only %d public access block(s)",
						len(buckets), len(pabs)),
				})
			}
			for _, ref := range pabs {
				for _, name := range switches {
					attr, ok := ref.Block.Attr(name)
					if !ok {
						diags = append(diags, Diagnostic{
							File:    ref.Doc.Name,
							Address: ref.Block.Address(),
							Message: fmt.Sprintf("%s is not set", name),
						})
						continue
					}
					if v, ok := attr.BoolLiteral(); !ok || !v {
						diags = append(diags, Diagnostic{
							File:    ref.Doc.Name,
							Address: ref.Block.Address(),
							Message: fmt.Sprintf("%s must be true", name),
						})
					}
				}
			}
			return diags
		},
	}
}

// lifecycleTiersRule checks that the cost-optimization storage transitions
// are configured somewhere in the set.
func lifecycleTiersRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "s3/lifecycle-tiers",
		description: "Lifecycle configurations should cover the cost-optimization storage tiers",
		severity:    SeverityWarning,
		fn: func(in *Input) []Diagnostic {
			buckets := in.Set.ResourcesOfType("aws_s3_bucket")
			if len(buckets) == 0 {
				return nil
			}

			lifecycles := in.Set.ResourcesOfType("aws_s3_bucket_lifecycle_configuration")
			if len(lifecycles) == 0 {
				return []Diagnostic{{
					Message: "no lifecycle configuration declared for any bucket",
				}}
			}

			// Collect every declared transition across the set.
			type transition struct {
				days  float64
				class string
			}
			var seen []transition
			for _, ref := range lifecycles {
				for _, tr := range ref.Block.NestedOfType("transition") {
					var t transition
					if days, ok := tr.Attr("days"); ok {
						t.days, _ = days.NumberLiteral()
					}
					if sc, ok := tr.Attr("storage_class"); ok {
						t.class, _ = sc.StringLiteral()
					}
					seen = append(seen, t)
				}
			}

			var diags []Diagnostic
			for _, tier := range pol.LifecycleTiers {
				found := false
				for _, t := range seen {
					if int(t.days) == tier.Days && t.class == tier.StorageClass {
						found = true
						break
					}
				}
				if !found {
					diags = append(diags, Diagnostic{
						Message: fmt.Sprintf("no transition to %s after %d days", tier.StorageClass, tier.Days),
					})
				}
			}
			return diags
		},
	}
}

// kmsKeyRotationRule requires a KMS key with rotation enabled and a sane
// deletion window.
func kmsKeyRotationRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "kms/key-rotation",
		description: "KMS keys must have rotation enabled and a deletion window of at least the configured floor",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			keys := in.Set.ResourcesOfType("aws_kms_key")
			if len(keys) == 0 {
				return []Diagnostic{{
					Message: "no aws_kms_key resource declared",
				}}
			}

			var diags []Diagnostic
			for _, ref := range keys {
				rot, ok := ref.Block.Attr("enable_key_rotation")
				if v, lit := rot.BoolLiteral(); !ok || !lit || !v {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: "enable_key_rotation must be true",
					})
				}
				if win, ok := ref.Block.Attr("deletion_window_in_days"); ok {
					if days, lit := win.NumberLiteral(); lit && int(days) < pol.KMSMinDeletionWindowDays {
						diags = append(diags, Diagnostic{
							File:    ref.Doc.Name,
							Address: ref.Block.Address(),
							Message: fmt.Sprintf("deletion_window_in_days is %d, minimum is %d",
								int(days), pol.KMSMinDeletionWindowDays),
						})
					}
				}
			}
			return diags
		},
	}
}

// requiredTagsRule checks literal tags objects for the mandated keys.
// Resources without a literal tags attribute are skipped; whether they are
// taggable at all is provider knowledge this validator does not carry.
func requiredTagsRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "tags/required",
		description: "Tagged resources should carry the mandated cost-attribution tags",
		severity:    SeverityWarning,
		fn: func(in *Input) []Diagnostic {
			var diags []Diagnostic
			for _, ref := range in.Set.BlocksOfType("resource") {
				attr, ok := ref.Block.Attr("tags")
				if !ok {
					continue
				}
				keys, ok := attr.ObjectKeys()
				if !ok {
					continue
				}
				present := make(map[string]bool, len(keys))
				for _, k := range keys {
					present[k] = true
				}
				var missing []string
				for _, want := range pol.RequiredTags {
					if !present[want] {
						missing = append(missing, want)
					}
				}
				if len(missing) > 0 {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: fmt.Sprintf("missing required tags: %s", strings.Join(missing, ", ")),
					})
				}
			}
			return diags
		},
	}
}

// leastPrivilegeRule is a heuristic scan for overly broad IAM actions in
// policy documents and inline policy JSON.
func leastPrivilegeRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "iam/least-privilege",
		description: "IAM policies should not grant overly broad actions",
		severity:    SeverityWarning,
		fn: func(in *Input) []Diagnostic {
			broad := make(map[string]bool, len(pol.BroadActions))
			for _, a := range pol.BroadActions {
				broad[a] = true
			}

			var diags []Diagnostic
			flag := func(ref tfconfig.BlockRef, action string) {
				diags = append(diags, Diagnostic{
					File:    ref.Doc.Name,
					Address: ref.Block.Address(),
					Message: fmt.Sprintf("grants overly broad action %q", action),
				})
			}

			// Structured policy documents expose actions as string lists.
			for _, ref := range in.Set.BlocksOfType("data") {
				if ref.Block.FirstLabel() != "aws_iam_policy_document" {
					continue
				}
				for _, stmt := range ref.Block.NestedOfType("statement") {
					actions, ok := stmt.Attr("actions")
					if !ok {
						continue
					}
					if list, ok := actions.StringList(); ok {
						for _, a := range list {
							if broad[a] {
								flag(ref, a)
							}
						}
					}
				}
			}

			// Inline JSON policies are opaque expressions; fall back to a
			// text scan of the policy attribute source.
			inlineTypes := map[string]bool{
				"aws_iam_policy":      true,
				"aws_iam_role_policy": true,
			}
			for _, ref := range in.Set.BlocksOfType("resource") {
				if !inlineTypes[ref.Block.FirstLabel()] {
					continue
				}
				attr, ok := ref.Block.Attr("policy")
				if !ok {
					continue
				}
				for action := range broad {
					if strings.Contains(attr.RawText, fmt.Sprintf("%q", action)) {
						flag(ref, action)
					}
				}
			}
			return diags
		},
	}
}

// budgetRule requires a monthly budget at or above the configured floor,
// with notifications covering the configured alert thresholds.
func budgetRule(pol *config.Policy) Rule {
	return &ruleFunc{
		id:          "cost/budget",
		description: "A cost budget at or above the configured minimum should be declared",
		severity:    SeverityWarning,
		fn: func(in *Input) []Diagnostic {
			budgets := in.Set.ResourcesOfType("aws_budgets_budget")
			if len(budgets) == 0 {
				return []Diagnostic{{
					Message: "no aws_budgets_budget resource declared",
				}}
			}

			var diags []Diagnostic
			for _, ref := range budgets {
				attr, ok := ref.Block.Attr("limit_amount")
				if !ok {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: "limit_amount is not set",
					})
					continue
				}

				// The provider takes the amount as a string; accept a
				// numeric literal too.
				amount, known := attr.NumberLiteral()
				if !known {
					if lit, ok := attr.StringLiteral(); ok {
						if f, err := strconv.ParseFloat(lit, 64); err == nil {
							amount, known = f, true
						}
					}
				}
				if known && amount < pol.BudgetMinimum {
					diags = append(diags, Diagnostic{
						File:    ref.Doc.Name,
						Address: ref.Block.Address(),
						Message: fmt.Sprintf("budget limit %.2f is below the minimum %.2f",
							amount, pol.BudgetMinimum),
					})
				}

				covered := make(map[int]bool)
				for _, n := range ref.Block.NestedOfType("notification") {
					if th, ok := n.Attr("threshold"); ok {
						if f, lit := th.NumberLiteral(); lit {
							covered[int(f)] = true
						}
					}
				}
				for _, want := range pol.BudgetAlertThresholds {
					if !covered[want] {
						diags = append(diags, Diagnostic{
							File:    ref.Doc.Name,
							Address: ref.Block.Address(),
							Message: fmt.Sprintf("no notification at the %d%% threshold", want),
						})
					}
				}
			}
			return diags
		},
	}
}

// syntaxCheckRule wraps the external syntax validation result.
func syntaxCheckRule() Rule {
	return &ruleFunc{
		id:          "terraform/syntax",
		description: "The configuration must pass terraform validate",
		severity:    SeverityError,
		fn: func(in *Input) []Diagnostic {
			if in.Checks == nil || in.Checks.Syntax == nil {
				return nil
			}
			res := in.Checks.Syntax
			if res.TimedOut {
				return []Diagnostic{{
					Message: fmt.Sprintf("terraform validate timed out after %v", res.Duration.Round(1e6)),
				}}
			}
			if !res.Success() {
				return []Diagnostic{{
					Message: fmt.Sprintf("terraform validate failed (exit %d): %s",
						res.ExitCode, firstLine(res.Stderr, res.Stdout)),
				}}
			}
			return nil
		},
	}
}

// formatCheckRule wraps the external canonical-format check result.
func formatCheckRule() Rule {
	return &ruleFunc{
		id:          "terraform/fmt",
		description: "The configuration should be in canonical format",
		severity:    SeverityWarning,
		fn: func(in *Input) []Diagnostic {
			if in.Checks == nil || in.Checks.Format == nil {
				return nil
			}
			res := in.Checks.Format
			if res.TimedOut {
				return []Diagnostic{{
					Message: fmt.Sprintf("terraform fmt timed out after %v", res.Duration.Round(1e6)),
				}}
			}
			if !res.Success() {
				var diags []Diagnostic
				for _, f := range needsFormatting(res.Stdout) {
					diags = append(diags, Diagnostic{
						File:    f,
						Message: "file is not in canonical format",
					})
				}
				if len(diags) == 0 {
					diags = append(diags, Diagnostic{
						Message: fmt.Sprintf("terraform fmt reported differences (exit %d)", res.ExitCode),
					})
				}
				return diags
			}
			return nil
		},
	}
}

// firstLine picks the first non-empty line out of the given outputs.
func firstLine(outputs ...string) string {
	for _, out := range outputs {
		for _, line := range strings.Split(out, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				return trimmed
			}
		}
	}
	return "no output"
}

// needsFormatting extracts the file names from terraform fmt -check output.
// The diff lines are skipped; bare lines name the offending files.
func needsFormatting(stdout string) []string {
	var files []string
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.ContainsAny(line, " \t") || strings.HasPrefix(line, "-") || strings.HasPrefix(line, "+") {
			continue
		}
		if strings.HasSuffix(line, ".tf") {
			files = append(files, line)
		}
	}
	return files
}
