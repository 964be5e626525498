package commands

import (
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/infraguard/infraguard/pkg/engine"
	"github.com/infraguard/infraguard/pkg/telemetry"
)

// watchDebounce collapses editor save bursts into one re-validation.
const watchDebounce = 500 * time.Millisecond

func newWatchCommand() *cobra.Command {
	var (
		skipExternal bool
		binary       string
		metricsAddr  string
	)

	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-validate on every configuration change",
		Long: `Watch a configuration directory and re-run the validation whenever a
configuration file changes. Custom rule sources are hot-reloaded too.
Prometheus metrics are served while watching.`,
		Example: `  # Watch the current directory
  infraguard watch

  # Watch a directory without external checks
  infraguard watch --skip-external ./envs/dev`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}

			pol, err := loadPolicy()
			if err != nil {
				return err
			}

			telCfg := telemetry.DefaultConfig()
			telCfg.Metrics.ListenAddress = metricsAddr
			tel, err := telemetry.NewTelemetry(telCfg)
			if err != nil {
				return err
			}
			defer func() { _ = tel.Shutdown(ctx) }()

			if err := tel.StartMetricsServer(); err != nil {
				return err
			}

			validator, err := engine.New(ctx, pol, log.Logger, engine.Options{
				Binary:       binary,
				SkipExternal: skipExternal,
				Telemetry:    tel,
			})
			if err != nil {
				return err
			}

			if err := validator.WatchRules(ctx); err != nil {
				return err
			}
			defer func() { _ = validator.StopWatching() }()

			runOnce := func() {
				rep, err := validator.Run(ctx, dir)
				if err != nil {
					log.Error().Err(err).Msg("Validation run failed")
					return
				}
				if err := rep.RenderConsole(os.Stdout, verbose); err != nil {
					log.Error().Err(err).Msg("Failed to render report")
				}
			}

			runOnce()

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return err
			}
			defer watcher.Close()

			if err := watcher.Add(dir); err != nil {
				return err
			}

			log.Info().Str("dir", dir).Msg("Watching for changes")

			var debounce *time.Timer
			debounceC := make(chan struct{}, 1)

			for {
				select {
				case <-ctx.Done():
					return nil

				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !strings.HasSuffix(event.Name, ".tf") {
						continue
					}
					if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
						continue
					}
					if debounce != nil {
						debounce.Stop()
					}
					debounce = time.AfterFunc(watchDebounce, func() {
						select {
						case debounceC <- struct{}{}:
						default:
						}
					})

				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					log.Warn().Err(err).Msg("Watcher error")

				case <-debounceC:
					log.Info().Str("dir", dir).Msg("Configuration changed, re-validating")
					runOnce()
				}
			}
		},
	}

	cmd.Flags().BoolVar(&skipExternal, "skip-external", false, "skip the external syntax and format checks")
	cmd.Flags().StringVar(&binary, "binary", "", "external tool binary (default: terraform)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")

	return cmd
}
