package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infraguard/infraguard/pkg/policy"
)

func newRulesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect the policy rule set",
	}

	cmd.AddCommand(newRulesListCommand())

	return cmd
}

func newRulesListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the rules the current policy enables",
		Long: `List every rule that would run under the current policy: the builtin
rules minus the disabled ones, plus any custom rules from the policy's
rule paths. Severity overrides from the policy are reflected.`,
		Example: `  # List rules under the embedded default policy
  infraguard rules list

  # List rules for a policy file, as JSON
  infraguard rules list --policy policy.cue --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			pol, err := loadPolicy()
			if err != nil {
				return err
			}

			eng, err := policy.NewEngine(pol, log.Logger)
			if err != nil {
				return err
			}

			if len(pol.RulePaths) > 0 {
				loader := policy.NewLoader(log.Logger, 0)
				custom, err := loader.LoadFromPaths(cmd.Context(), pol.RulePaths)
				if err != nil {
					return err
				}
				if err := eng.ReplaceCustomRules(custom); err != nil {
					return err
				}
			}

			rules := eng.Rules()

			if jsonOutput {
				return renderRulesJSON(rules, pol.SeverityOverrides)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RULE\tSEVERITY\tBLOCKING\tDESCRIPTION")
			for _, r := range rules {
				severity := effectiveSeverity(pol.SeverityOverrides, r)
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", r.ID(), severity, severity.Blocking(), r.Description())
			}
			return w.Flush()
		},
	}

	return cmd
}

type ruleInfo struct {
	ID          string `json:"id"`
	Severity    string `json:"severity"`
	Blocking    bool   `json:"blocking"`
	Description string `json:"description"`
}

func renderRulesJSON(rules []policy.Rule, overrides map[string]string) error {
	infos := make([]ruleInfo, 0, len(rules))
	for _, r := range rules {
		severity := effectiveSeverity(overrides, r)
		infos = append(infos, ruleInfo{
			ID:          r.ID(),
			Severity:    string(severity),
			Blocking:    severity.Blocking(),
			Description: r.Description(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(infos)
}

// effectiveSeverity applies the policy's severity override for a rule.
func effectiveSeverity(overrides map[string]string, r policy.Rule) policy.Severity {
	if raw, ok := overrides[r.ID()]; ok {
		if sev, err := policy.ParseSeverity(raw); err == nil {
			return sev
		}
	}
	return r.Severity()
}
