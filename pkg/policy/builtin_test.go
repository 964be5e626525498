package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/infraguard/infraguard/pkg/config"
	"github.com/infraguard/infraguard/pkg/tfconfig"
	"github.com/infraguard/infraguard/pkg/tfrunner"
	"github.com/rs/zerolog"
)

func testLogger() zerolog.Logger {
	return zerolog.New(nil).Level(zerolog.Disabled)
}

func defaultPolicy(t *testing.T) *config.Policy {
	t.Helper()
	pol, err := config.NewParser().Default()
	if err != nil {
		t.Fatalf("Failed to load default policy: %v", err)
	}
	return pol
}

func loadSet(t *testing.T, files map[string]string) *tfconfig.Set {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("Failed to write fixture %s: %v", name, err)
		}
	}
	set, err := tfconfig.NewLoader(testLogger()).LoadDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("Failed to load fixture directory: %v", err)
	}
	return set
}

// compliantFiles is a fixture that passes every builtin rule under the
// default policy table.
func compliantFiles() map[string]string {
	return map[string]string{
		"iam-users-groups.tf": `
# IAM users are managed exclusively through AWS SSO (Identity Center).
# No long-lived credentials are created here.
`,
		"sso.tf": `
resource "aws_ssoadmin_permission_set" "developers" {
  name             = "MLEdgeDevelopers"
  session_duration = var.sso_session_duration
}
`,
		"variables.tf": `
variable "enable_sso_permission_sets" {
  type    = bool
  default = true
}

variable "sso_session_duration" {
  type    = string
  default = "PT8H"
}
`,
		"s3.tf": `
resource "aws_s3_bucket" "raw" {
  bucket = "slm-edge-dev-intents-raw"

  tags = {
    Project     = "slm-edge"
    Environment = "dev"
    Owner       = "ml-platform"
    CostCenter  = "ml-001"
  }
}

resource "aws_s3_bucket_versioning" "raw" {
  bucket = aws_s3_bucket.raw.id

  versioning_configuration {
    status = "Enabled"
  }
}

resource "aws_s3_bucket_server_side_encryption_configuration" "raw" {
  bucket = aws_s3_bucket.raw.id

  rule {
    apply_server_side_encryption_by_default {
      sse_algorithm     = "aws:kms"
      kms_master_key_id = aws_kms_key.data.arn
    }
  }
}

resource "aws_s3_bucket_public_access_block" "raw" {
  bucket                  = aws_s3_bucket.raw.id
  block_public_acls       = true
  block_public_policy     = true
  ignore_public_acls      = true
  restrict_public_buckets = true
}

resource "aws_s3_bucket_lifecycle_configuration" "raw" {
  bucket = aws_s3_bucket.raw.id

  rule {
    id     = "tiering"
    status = "Enabled"

    transition {
      days          = 30
      storage_class = "STANDARD_IA"
    }

    transition {
      days          = 90
      storage_class = "GLACIER"
    }

    transition {
      days          = 365
      storage_class = "DEEP_ARCHIVE"
    }
  }
}
`,
		"kms.tf": `
resource "aws_kms_key" "data" {
  description             = "Data encryption key"
  enable_key_rotation     = true
  deletion_window_in_days = 14
}
`,
		"budget.tf": `
resource "aws_budgets_budget" "monthly" {
  name         = "slm-edge-dev-monthly"
  budget_type  = "COST"
  limit_amount = "25.0"
  limit_unit   = "USD"
  time_unit    = "MONTHLY"

  notification {
    comparison_operator        = "GREATER_THAN"
    threshold                  = 80
    threshold_type             = "PERCENTAGE"
    notification_type          = "ACTUAL"
    subscriber_email_addresses = ["ops@example.com"]
  }

  notification {
    comparison_operator        = "GREATER_THAN"
    threshold                  = 100
    threshold_type             = "PERCENTAGE"
    notification_type          = "FORECASTED"
    subscriber_email_addresses = ["ops@example.com"]
  }
}
`,
	}
}

func withFile(files map[string]string, name, content string) map[string]string {
	out := make(map[string]string, len(files)+1)
	for k, v := range files {
		out[k] = v
	}
	out[name] = content
	return out
}

func withoutFile(files map[string]string, name string) map[string]string {
	out := make(map[string]string, len(files))
	for k, v := range files {
		if k != name {
			out[k] = v
		}
	}
	return out
}

func evalRule(t *testing.T, pol *config.Policy, id string, in *Input) RuleResult {
	t.Helper()
	for _, r := range BuiltinRules(pol) {
		if r.ID() == id {
			return r.Evaluate(context.Background(), in)
		}
	}
	t.Fatalf("No builtin rule with ID %s", id)
	return RuleResult{}
}

func passingChecks() *tfrunner.Checks {
	return &tfrunner.Checks{
		Syntax: &tfrunner.ExecResult{ExitCode: 0},
		Format: &tfrunner.ExecResult{ExitCode: 0},
	}
}

func TestBuiltinRules_CompliantConfiguration(t *testing.T) {
	pol := defaultPolicy(t)
	in := &Input{Set: loadSet(t, compliantFiles()), Checks: passingChecks()}

	for _, rule := range BuiltinRules(pol) {
		res := rule.Evaluate(context.Background(), in)
		if !res.Passed {
			t.Errorf("Rule %s failed on compliant fixture: %v", rule.ID(), res.Diagnostics)
		}
	}
}

func TestParseIntegrity(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("all files parse", func(t *testing.T) {
		res := evalRule(t, pol, "tfconfig/parse-integrity", &Input{Set: loadSet(t, compliantFiles())})
		if !res.Passed {
			t.Fatalf("Rule should pass when every file parses: %v", res.Diagnostics)
		}
	})

	t.Run("broken file is surfaced", func(t *testing.T) {
		// The unterminated block makes the file unparsable, so the IAM
		// user it declares is invisible to the structural rules. The
		// parse failure itself must block the run.
		files := withFile(compliantFiles(), "users.tf", `
resource "aws_iam_user" "dev" {
  name = "developer"
`)
		in := &Input{Set: loadSet(t, files)}

		res := evalRule(t, pol, "tfconfig/parse-integrity", in)
		if res.Passed {
			t.Fatal("Rule should fail when a file cannot be parsed")
		}
		if res.Severity != SeverityError {
			t.Errorf("Parse failures must be blocking, got %s", res.Severity)
		}
		if res.Diagnostics[0].File != "users.tf" {
			t.Errorf("Diagnostic should name the broken file, got %q", res.Diagnostics[0].File)
		}
		if !strings.Contains(res.Diagnostics[0].Message, "could not be parsed") {
			t.Errorf("Diagnostic should report the parse failure: %v", res.Diagnostics[0])
		}
	})
}

func TestNoStaticCredentials(t *testing.T) {
	pol := defaultPolicy(t)
	files := withFile(compliantFiles(), "users.tf", `
resource "aws_iam_user" "dev" {
  name = "developer"
}

resource "aws_iam_access_key" "dev" {
  user = aws_iam_user.dev.name
}
`)
	res := evalRule(t, pol, "iam/no-static-credentials", &Input{Set: loadSet(t, files)})

	if res.Passed {
		t.Fatal("Rule should fail when IAM user resources are declared")
	}
	if len(res.Diagnostics) != 2 {
		t.Fatalf("Expected 2 diagnostics, got %d: %v", len(res.Diagnostics), res.Diagnostics)
	}
	if res.Diagnostics[0].File != "users.tf" {
		t.Errorf("Diagnostic should name the file, got %q", res.Diagnostics[0].File)
	}
	if !strings.Contains(res.Diagnostics[0].Address, "aws_iam_user.dev") {
		t.Errorf("Diagnostic should carry the block address, got %q", res.Diagnostics[0].Address)
	}
}

func TestSSOReference(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("missing file", func(t *testing.T) {
		files := withoutFile(compliantFiles(), "iam-users-groups.tf")
		res := evalRule(t, pol, "iam/sso-reference", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when the IAM users file is missing")
		}
	})

	t.Run("missing reference", func(t *testing.T) {
		files := withFile(compliantFiles(), "iam-users-groups.tf", "# Nothing to see here.\n")
		res := evalRule(t, pol, "iam/sso-reference", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when the file does not mention SSO")
		}
	})
}

func TestPermissionSet(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("hard-coded session duration", func(t *testing.T) {
		files := withFile(compliantFiles(), "sso.tf", `
resource "aws_ssoadmin_permission_set" "developers" {
  name             = "MLEdgeDevelopers"
  session_duration = "PT8H"
}
`)
		res := evalRule(t, pol, "sso/permission-set", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail on a hard-coded session duration")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "var.sso_session_duration") {
			t.Errorf("Diagnostic should name the expected variable: %v", res.Diagnostics[0])
		}
	})

	t.Run("wrong name", func(t *testing.T) {
		files := withFile(compliantFiles(), "sso.tf", `
resource "aws_ssoadmin_permission_set" "developers" {
  name             = "SomethingElse"
  session_duration = var.sso_session_duration
}
`)
		res := evalRule(t, pol, "sso/permission-set", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when no permission set carries the expected name")
		}
	})

	t.Run("no permission set", func(t *testing.T) {
		files := withoutFile(compliantFiles(), "sso.tf")
		res := evalRule(t, pol, "sso/permission-set", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when no permission set is declared")
		}
	})
}

func TestNoLegacyVariables(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("legacy variable declared", func(t *testing.T) {
		files := withFile(compliantFiles(), "legacy.tf", `
variable "create_dev_user" {
  type    = bool
  default = false
}
`)
		res := evalRule(t, pol, "vars/no-legacy-iam", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when a legacy variable is declared")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "create_dev_user") {
			t.Errorf("Diagnostic should name the legacy variable: %v", res.Diagnostics[0])
		}
	})

	t.Run("sso enable variable missing", func(t *testing.T) {
		files := withFile(compliantFiles(), "variables.tf", `
variable "sso_session_duration" {
  type    = string
  default = "PT8H"
}
`)
		res := evalRule(t, pol, "vars/no-legacy-iam", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when the SSO enable variable is missing")
		}
	})
}

func TestNoSecretLiterals(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("hard-coded secret", func(t *testing.T) {
		files := withFile(compliantFiles(), "db.tf", `
resource "aws_db_instance" "main" {
  password = "hunter2"
}
`)
		res := evalRule(t, pol, "secrets/no-literals", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail on a hard-coded password")
		}
	})

	t.Run("variable-sourced secret", func(t *testing.T) {
		files := withFile(compliantFiles(), "db.tf", `
resource "aws_db_instance" "main" {
  password = var.db_password
}
`)
		res := evalRule(t, pol, "secrets/no-literals", &Input{Set: loadSet(t, files)})
		if !res.Passed {
			t.Fatalf("Variable-sourced secret should pass: %v", res.Diagnostics)
		}
	})

	t.Run("unparsable file falls back to text scan", func(t *testing.T) {
		files := withFile(compliantFiles(), "db.tf", `
resource "aws_db_instance" "main" {
  password = "hunter2"
`)
		res := evalRule(t, pol, "secrets/no-literals", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should flag a hard-coded secret even when the file is unparsable")
		}
		if res.Diagnostics[0].File != "db.tf" {
			t.Errorf("Diagnostic should name the file, got %q", res.Diagnostics[0].File)
		}
		if !strings.Contains(res.Diagnostics[0].Message, "password") {
			t.Errorf("Diagnostic should name the attribute: %v", res.Diagnostics[0])
		}
	})

	t.Run("unparsable file with variable-sourced secret passes", func(t *testing.T) {
		files := withFile(compliantFiles(), "db.tf", `
resource "aws_db_instance" "main" {
  password = var.db_password
`)
		res := evalRule(t, pol, "secrets/no-literals", &Input{Set: loadSet(t, files)})
		if !res.Passed {
			t.Fatalf("Variable-sourced secret should pass the text scan: %v", res.Diagnostics)
		}
	})
}

func TestBucketNaming(t *testing.T) {
	pol := defaultPolicy(t)
	prefix := pol.BucketPrefix()

	tests := []struct {
		name   string
		bucket string
		passed bool
	}{
		{"compliant", prefix + "intents-raw", true},
		{"63 characters", prefix + strings.Repeat("a", 63-len(prefix)), true},
		{"64 characters", prefix + strings.Repeat("a", 64-len(prefix)), false},
		{"uppercase", prefix + "Intents", false},
		{"wrong prefix", "other-team-dev-data", false},
		{"trailing hyphen", prefix + "data-", false},
		{"prefix only", strings.TrimSuffix(prefix, "-") + "-", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := withFile(compliantFiles(), "s3.tf", `
resource "aws_s3_bucket" "raw" {
  bucket = "`+tt.bucket+`"
}
`)
			res := evalRule(t, pol, "s3/bucket-naming", &Input{Set: loadSet(t, files)})
			if res.Passed != tt.passed {
				t.Errorf("Bucket %q: passed=%v, want %v (%v)", tt.bucket, res.Passed, tt.passed, res.Diagnostics)
			}
		})
	}
}

func TestBucketVersioning(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("suspended", func(t *testing.T) {
		files := withFile(compliantFiles(), "versioning.tf", `
resource "aws_s3_bucket" "extra" {
  bucket = "slm-edge-dev-extra"
}

resource "aws_s3_bucket_versioning" "extra" {
  bucket = aws_s3_bucket.extra.id

  versioning_configuration {
    status = "Suspended"
  }
}
`)
		res := evalRule(t, pol, "s3/versioning", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail on suspended versioning")
		}
	})

	t.Run("missing configuration", func(t *testing.T) {
		files := withFile(compliantFiles(), "versioning.tf", `
resource "aws_s3_bucket" "extra" {
  bucket = "slm-edge-dev-extra"
}
`)
		res := evalRule(t, pol, "s3/versioning", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when a bucket has no versioning configuration")
		}
	})
}

func TestBucketEncryption(t *testing.T) {
	pol := defaultPolicy(t)
	files := compliantFiles()
	files["s3.tf"] = strings.Replace(files["s3.tf"], `"aws:kms"`, `"AES256"`, 1)

	res := evalRule(t, pol, "s3/encryption-at-rest", &Input{Set: loadSet(t, files)})
	if res.Passed {
		t.Fatal("Rule should fail when encryption is not KMS-backed")
	}
}

func TestPublicAccessBlock(t *testing.T) {
	pol := defaultPolicy(t)
	files := compliantFiles()
	files["s3.tf"] = strings.Replace(files["s3.tf"],
		"restrict_public_buckets = true",
		"restrict_public_buckets = false", 1)

	res := evalRule(t, pol, "s3/public-access-block", &Input{Set: loadSet(t, files)})
	if res.Passed {
		t.Fatal("Rule should fail when a public access switch is false")
	}
	if !strings.Contains(res.Diagnostics[0].Message, "restrict_public_buckets") {
		t.Errorf("Diagnostic should name the offending switch: %v", res.Diagnostics[0])
	}
}

func TestLifecycleTiers(t *testing.T) {
	pol := defaultPolicy(t)
	files := compliantFiles()
	files["s3.tf"] = strings.Replace(files["s3.tf"], `
    transition {
      days          = 365
      storage_class = "DEEP_ARCHIVE"
    }
`, "", 1)

	res := evalRule(t, pol, "s3/lifecycle-tiers", &Input{Set: loadSet(t, files)})
	if res.Passed {
		t.Fatal("Rule should fail when a tier transition is missing")
	}
	if !strings.Contains(res.Diagnostics[0].Message, "DEEP_ARCHIVE") {
		t.Errorf("Diagnostic should name the missing tier: %v", res.Diagnostics[0])
	}
	if res.Severity != SeverityWarning {
		t.Errorf("Lifecycle rule should be advisory, got %s", res.Severity)
	}
}

func TestKMSKeyRotation(t *testing.T) {
	pol := defaultPolicy(t)

	tests := []struct {
		name    string
		kms     string
		passed  bool
		message string
	}{
		{
			name: "rotation disabled",
			kms: `
resource "aws_kms_key" "data" {
  enable_key_rotation     = false
  deletion_window_in_days = 14
}
`,
			message: "enable_key_rotation",
		},
		{
			name: "deletion window below floor",
			kms: `
resource "aws_kms_key" "data" {
  enable_key_rotation     = true
  deletion_window_in_days = 3
}
`,
			message: "deletion_window_in_days",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			files := withFile(compliantFiles(), "kms.tf", tt.kms)
			res := evalRule(t, pol, "kms/key-rotation", &Input{Set: loadSet(t, files)})
			if res.Passed {
				t.Fatal("Rule should fail")
			}
			if !strings.Contains(res.Diagnostics[0].Message, tt.message) {
				t.Errorf("Diagnostic %v should mention %s", res.Diagnostics[0], tt.message)
			}
		})
	}

	t.Run("no key declared", func(t *testing.T) {
		files := withoutFile(compliantFiles(), "kms.tf")
		res := evalRule(t, pol, "kms/key-rotation", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when no KMS key is declared")
		}
	})
}

func TestRequiredTags(t *testing.T) {
	pol := defaultPolicy(t)
	files := compliantFiles()
	files["s3.tf"] = strings.Replace(files["s3.tf"], `    CostCenter  = "ml-001"
`, "", 1)

	res := evalRule(t, pol, "tags/required", &Input{Set: loadSet(t, files)})
	if res.Passed {
		t.Fatal("Rule should fail when a required tag is missing")
	}
	if !strings.Contains(res.Diagnostics[0].Message, "CostCenter") {
		t.Errorf("Diagnostic should name the missing tag: %v", res.Diagnostics[0])
	}
}

func TestLeastPrivilege(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("policy document actions", func(t *testing.T) {
		files := withFile(compliantFiles(), "iam.tf", `
data "aws_iam_policy_document" "dev" {
  statement {
    actions   = ["s3:*"]
    resources = ["arn:aws:s3:::slm-edge-dev-intents-raw"]
  }
}
`)
		res := evalRule(t, pol, "iam/least-privilege", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should flag broad actions in policy documents")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "s3:*") {
			t.Errorf("Diagnostic should name the action: %v", res.Diagnostics[0])
		}
	})

	t.Run("inline policy json", func(t *testing.T) {
		files := withFile(compliantFiles(), "iam.tf", `
resource "aws_iam_policy" "dev" {
  name = "dev-policy"
  policy = jsonencode({
    Version = "2012-10-17"
    Statement = [{
      Effect   = "Allow"
      Action   = "iam:*"
      Resource = "*"
    }]
  })
}
`)
		res := evalRule(t, pol, "iam/least-privilege", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should flag broad actions in inline policies")
		}
	})

	t.Run("scoped actions", func(t *testing.T) {
		files := withFile(compliantFiles(), "iam.tf", `
data "aws_iam_policy_document" "dev" {
  statement {
    actions   = ["s3:GetObject", "s3:PutObject"]
    resources = ["arn:aws:s3:::slm-edge-dev-intents-raw/*"]
  }
}
`)
		res := evalRule(t, pol, "iam/least-privilege", &Input{Set: loadSet(t, files)})
		if !res.Passed {
			t.Fatalf("Scoped actions should pass: %v", res.Diagnostics)
		}
	})
}

func TestBudget(t *testing.T) {
	pol := defaultPolicy(t)

	t.Run("below minimum", func(t *testing.T) {
		files := compliantFiles()
		files["budget.tf"] = strings.Replace(files["budget.tf"], `"25.0"`, `"5.0"`, 1)
		res := evalRule(t, pol, "cost/budget", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when the budget is below the minimum")
		}
	})

	t.Run("no budget", func(t *testing.T) {
		files := withoutFile(compliantFiles(), "budget.tf")
		res := evalRule(t, pol, "cost/budget", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when no budget is declared")
		}
	})

	t.Run("missing alert threshold", func(t *testing.T) {
		files := compliantFiles()
		files["budget.tf"] = strings.Replace(files["budget.tf"], "threshold                  = 100", "threshold                  = 90", 1)
		res := evalRule(t, pol, "cost/budget", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when an alert threshold is not covered")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "100%") {
			t.Errorf("Diagnostic should name the missing threshold: %v", res.Diagnostics[0])
		}
	})

	t.Run("no notifications at all", func(t *testing.T) {
		files := withFile(compliantFiles(), "budget.tf", `
resource "aws_budgets_budget" "monthly" {
  name         = "slm-edge-dev-monthly"
  budget_type  = "COST"
  limit_amount = "25.0"
  limit_unit   = "USD"
  time_unit    = "MONTHLY"
}
`)
		res := evalRule(t, pol, "cost/budget", &Input{Set: loadSet(t, files)})
		if res.Passed {
			t.Fatal("Rule should fail when the budget has no notifications")
		}
		if len(res.Diagnostics) != 2 {
			t.Errorf("Expected one diagnostic per configured threshold, got %v", res.Diagnostics)
		}
	})
}

func TestExternalCheckRules(t *testing.T) {
	pol := defaultPolicy(t)
	set := loadSet(t, compliantFiles())

	t.Run("syntax failure", func(t *testing.T) {
		in := &Input{Set: set, Checks: &tfrunner.Checks{
			Syntax: &tfrunner.ExecResult{ExitCode: 1, Stderr: "Error: Unsupported block type"},
		}}
		res := evalRule(t, pol, "terraform/syntax", in)
		if res.Passed {
			t.Fatal("Rule should fail when terraform validate fails")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "Unsupported block type") {
			t.Errorf("Diagnostic should carry the tool output: %v", res.Diagnostics[0])
		}
	})

	t.Run("syntax timeout", func(t *testing.T) {
		in := &Input{Set: set, Checks: &tfrunner.Checks{
			Syntax: &tfrunner.ExecResult{ExitCode: -1, TimedOut: true},
		}}
		res := evalRule(t, pol, "terraform/syntax", in)
		if res.Passed {
			t.Fatal("Rule should fail on a timed out check")
		}
		if !strings.Contains(res.Diagnostics[0].Message, "timed out") {
			t.Errorf("Timeout should be a distinct diagnostic: %v", res.Diagnostics[0])
		}
	})

	t.Run("format differences", func(t *testing.T) {
		in := &Input{Set: set, Checks: &tfrunner.Checks{
			Format: &tfrunner.ExecResult{ExitCode: 3, Stdout: "s3.tf\n--- old\n+++ new\n"},
		}}
		res := evalRule(t, pol, "terraform/fmt", in)
		if res.Passed {
			t.Fatal("Rule should fail when files need formatting")
		}
		if res.Diagnostics[0].File != "s3.tf" {
			t.Errorf("Diagnostic should name the unformatted file: %v", res.Diagnostics[0])
		}
		if res.Severity != SeverityWarning {
			t.Errorf("Format rule should be advisory, got %s", res.Severity)
		}
	})

	t.Run("checks skipped", func(t *testing.T) {
		in := &Input{Set: set}
		if res := evalRule(t, pol, "terraform/syntax", in); !res.Passed {
			t.Error("Syntax rule should pass vacuously when checks were skipped")
		}
		if res := evalRule(t, pol, "terraform/fmt", in); !res.Passed {
			t.Error("Format rule should pass vacuously when checks were skipped")
		}
	})
}
