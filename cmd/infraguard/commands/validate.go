package commands

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infraguard/infraguard/pkg/engine"
	"github.com/infraguard/infraguard/pkg/report"
	"github.com/infraguard/infraguard/pkg/stores"
	"github.com/infraguard/infraguard/pkg/transports/ssh"
)

func newValidateCommand() *cobra.Command {
	var (
		skipExternal  bool
		binary        string
		remoteTarget  string
		remoteKey     string
		remotePort    int
		deterministic bool
		savePath      string
	)

	cmd := &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate a configuration directory against the policy",
		Long: `Validate a Terraform configuration directory.

The directory is parsed structurally, checked with the external terraform
binary (syntax and format), and evaluated against every enabled policy
rule. The process exits 0 when all blocking rules pass, 1 when a blocking
rule fails, and 2 when the run itself cannot complete.`,
		Example: `  # Validate the current directory with the embedded default policy
  infraguard validate

  # Validate a specific directory with a policy file
  infraguard validate --policy policy.cue ./envs/dev

  # CI mode: JSON report, reproducible output
  infraguard validate --json --deterministic ./envs/dev

  # Validate without invoking the terraform binary
  infraguard validate --skip-external ./envs/dev

  # Fetch and validate a remote directory over SSH
  infraguard validate --remote deploy@infra.example.com:/srv/terraform/envs/dev

  # Record the report for later comparison
  infraguard validate --save ~/.infraguard/history.db ./envs/dev`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			pol, err := loadPolicy()
			if err != nil {
				return fatalExit(err)
			}

			if remoteTarget != "" {
				localDir, cleanup, err := fetchRemote(cmd, remoteTarget, remoteKey, remotePort)
				if err != nil {
					return fatalExit(err)
				}
				defer cleanup()
				dir = localDir
			}

			validator, err := engine.New(ctx, pol, log.Logger, engine.Options{
				Binary:       binary,
				SkipExternal: skipExternal,
			})
			if err != nil {
				return fatalExit(err)
			}

			rep, err := validator.Run(ctx, dir)
			if err != nil {
				return fatalExit(err)
			}

			if jsonOutput {
				if err := rep.RenderJSON(os.Stdout, deterministic); err != nil {
					return fatalExit(err)
				}
			} else {
				if err := rep.RenderConsole(os.Stdout, verbose); err != nil {
					return fatalExit(err)
				}
			}

			if savePath != "" {
				if err := saveReport(cmd, savePath, rep); err != nil {
					return fatalExit(err)
				}
			}

			if !rep.Passed {
				return &exitError{code: engine.ExitBlocked}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipExternal, "skip-external", false, "skip the external syntax and format checks")
	cmd.Flags().StringVar(&binary, "binary", "", "external tool binary (default: terraform)")
	cmd.Flags().StringVar(&remoteTarget, "remote", "", "fetch the directory over SSH (user@host:/path)")
	cmd.Flags().StringVar(&remoteKey, "remote-key", "", "private key for the remote fetch")
	cmd.Flags().IntVar(&remotePort, "remote-port", 22, "SSH port for the remote fetch")
	cmd.Flags().BoolVar(&deterministic, "deterministic", false, "strip run identity from JSON output for byte-stable reports")
	cmd.Flags().StringVar(&savePath, "save", "", "record the report in the given SQLite database")

	return cmd
}

// fetchRemote downloads a remote configuration directory to a local temp
// directory. The returned cleanup removes the temp directory and closes
// the connection.
func fetchRemote(cmd *cobra.Command, target, keyPath string, port int) (string, func(), error) {
	cfg, remotePath, err := ssh.ParseTarget(target)
	if err != nil {
		return "", nil, err
	}
	cfg.Port = port
	if keyPath != "" {
		cfg.PrivateKeyPath = keyPath
	}

	client, err := ssh.NewSSHClient(cfg)
	if err != nil {
		return "", nil, err
	}

	ctx := cmd.Context()
	if err := client.Connect(ctx); err != nil {
		return "", nil, err
	}

	localDir, err := client.FetchDirectory(ctx, remotePath)
	if err != nil {
		_ = client.Disconnect()
		return "", nil, err
	}

	cleanup := func() {
		_ = os.RemoveAll(localDir)
		_ = client.Disconnect()
	}
	return localDir, cleanup, nil
}

// saveReport appends the report to the history database, creating and
// migrating it if needed.
func saveReport(cmd *cobra.Command, path string, rep *report.ValidationReport) error {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return err
	}

	if err := store.SaveReport(ctx, rep); err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Report %s saved to %s\n", rep.ID, path)
	return nil
}
