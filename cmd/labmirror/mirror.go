// SPDX-License-Identifier: MIT
package labmirror

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/skaphos/labmirror/internal/cleanup"
	"github.com/skaphos/labmirror/internal/cliio"
	"github.com/skaphos/labmirror/internal/config"
	"github.com/skaphos/labmirror/internal/forge"
	"github.com/skaphos/labmirror/internal/reconcile"
	"github.com/skaphos/labmirror/internal/report"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/strutil"
	"github.com/skaphos/labmirror/internal/throttle"
	"github.com/skaphos/labmirror/internal/walk"
	"github.com/spf13/cobra"
)

const historyRewritePrompt = "History rewrite permanently deletes matching files from every commit " +
	"and force-pushes all branches. Continue?"

var mirrorCmd = &cobra.Command{
	Use:   "mirror <group>",
	Short: "Clone or update every repository under a group hierarchy",
	Long: "Walks the group and all of its subgroups breadth-first, recreates the " +
		"hierarchy as local directories, clones missing repositories, and brings " +
		"every remote branch of existing ones up to date. The branch that was " +
		"checked out before the run is checked out again afterwards.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		debugf(cmd, "starting mirror")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, cfgPath, err := loadConfig(cwd)
		if err != nil {
			return err
		}
		debugf(cmd, "using config %s", cfgPath)

		hostURL, token, err := resolveHost(cmd, cfg)
		if err != nil {
			return err
		}
		dest, _ := cmd.Flags().GetString("dest")
		if dest == "" {
			dest = cfg.DefaultDestination
		}
		if dest == "" {
			return fmt.Errorf("no destination directory (use --dest or default_destination in config)")
		}

		useSSH, _ := cmd.Flags().GetBool("use-ssh")
		shortPaths, _ := cmd.Flags().GetBool("short-paths")
		maxPathLength, _ := cmd.Flags().GetInt("max-path-length")
		skipExisting, _ := cmd.Flags().GetBool("skip-existing")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		yes, _ := cmd.Flags().GetBool("yes")
		if maxPathLength == 0 {
			maxPathLength = cfg.MaxPathLength
		}
		if concurrency == 0 {
			concurrency = cfg.ConcurrentClones
		}

		cleanupOpts, cleanupEnabled := mirrorCleanupOptions(cmd, cfg.Cleanup)
		if cleanupEnabled && cleanupOpts.History && !cleanupOpts.DryRun && !yes {
			confirmed, err := cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), historyRewritePrompt)
			if err != nil {
				return err
			}
			if !confirmed {
				infof(cmd, "mirror cancelled")
				return nil
			}
		}

		log := report.NewLogger(cmd.ErrOrStderr(), flagVerbose, flagQuiet)
		client, err := forge.NewGitLab(hostURL, token, forge.Options{
			APITimeout: cfg.APITimeout(),
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelay(),
		})
		if err != nil {
			return err
		}
		user, err := client.Authenticate(ctx)
		if err != nil {
			return err
		}
		infof(cmd, "authenticated as %s", user)

		tracker := stats.NewTracker()
		pacer := throttle.NewPacer(throttle.DefaultInterval)
		walker := walk.New(client, pacer, tracker, walk.Options{
			ShortPaths:    shortPaths || cfg.ShortPaths,
			MaxPathLength: maxPathLength,
		}, log)
		tasks, err := walker.Walk(ctx, args[0], dest)
		if err != nil {
			return err
		}
		infof(cmd, "found %d repositories under %s", len(tasks), args[0])

		var cleaner *cleanup.Engine
		if cleanupEnabled {
			cleaner = cleanup.NewEngine(nil, cleanupOpts, log)
		}
		rec := reconcile.New(nil, cleaner, pacer, tracker, reconcile.Options{
			SkipExisting: skipExisting || cfg.SkipExisting,
			UseSSH:       useSSH || cfg.UseSSH,
			CloneTimeout: cfg.CloneTimeout(),
			MaxRetries:   cfg.MaxRetries,
			RetryDelay:   cfg.RetryDelay(),
			Concurrency:  concurrency,
		}, log)
		results := rec.ReconcileAll(ctx, tasks)

		setColorOutputMode(cmd)
		writeMirrorTable(cmd, results)
		sum := tracker.Snapshot()
		writeRunSummary(cmd, sum)
		writeErrorRecords(cmd, sum.Errors)
		if err := ctx.Err(); err != nil {
			return err
		}
		infof(cmd, "mirror completed: %d repositories", len(results))
		return nil
	},
}

func init() {
	mirrorCmd.Flags().String("dest", "", "destination directory for the mirrored tree (default from config)")
	addHostFlags(mirrorCmd)
	mirrorCmd.Flags().Bool("short-paths", false, "shorten long directory names with a hash suffix")
	mirrorCmd.Flags().Int("max-path-length", 0, "warn when a target path exceeds this length (default from config)")
	mirrorCmd.Flags().Bool("skip-existing", false, "leave repositories that already exist on disk untouched")
	mirrorCmd.Flags().Bool("cleanup", false, "run the cleanup pipeline on every reconciled branch")
	mirrorCmd.Flags().Bool("cleanup-dry-run", false, "report what cleanup would change without touching files")
	mirrorCmd.Flags().Bool("cleanup-auto-commit", false, "commit and push cleanup changes per branch")
	mirrorCmd.Flags().Bool("cleanup-history", false, "purge matching files from history and force-push (destructive)")
	mirrorCmd.Flags().StringArray("cleanup-pattern", nil, "removal glob pattern (repeatable, comma-separated)")
	mirrorCmd.Flags().StringArray("cleanup-keep", nil, "keep glob pattern vetoing removal (repeatable, comma-separated)")
	mirrorCmd.Flags().String("cleanup-message", "", "commit message for cleanup auto-commits")
	mirrorCmd.Flags().Bool("yes", false, "skip the history rewrite confirmation prompt")

	rootCmd.AddCommand(mirrorCmd)
}

// mirrorCleanupOptions overlays the --cleanup-* flags on the config
// cleanup block. Flags enable, never disable, so a config-enabled
// pipeline stays on.
func mirrorCleanupOptions(cmd *cobra.Command, base config.Cleanup) (cleanup.Options, bool) {
	enabled, _ := cmd.Flags().GetBool("cleanup")
	dryRun, _ := cmd.Flags().GetBool("cleanup-dry-run")
	autoCommit, _ := cmd.Flags().GetBool("cleanup-auto-commit")
	history, _ := cmd.Flags().GetBool("cleanup-history")
	patterns, _ := cmd.Flags().GetStringArray("cleanup-pattern")
	keep, _ := cmd.Flags().GetStringArray("cleanup-keep")
	message, _ := cmd.Flags().GetString("cleanup-message")

	opts := cleanup.Options{
		DryRun:        dryRun || base.DryRun,
		AutoCommit:    autoCommit || base.AutoCommit,
		History:       history || base.History,
		Patterns:      base.Patterns,
		KeepPatterns:  base.KeepPatterns,
		CommitMessage: base.CommitMessage,
	}
	if flat := strutil.SplitCSVs(patterns); len(flat) > 0 {
		opts.Patterns = flat
	}
	if flat := strutil.SplitCSVs(keep); len(flat) > 0 {
		opts.KeepPatterns = flat
	}
	if message != "" {
		opts.CommitMessage = message
	}
	return opts, enabled || base.Enabled
}
