package labmirror

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/skaphos/labmirror/internal/cleanup"
	"github.com/skaphos/labmirror/internal/cliio"
	"github.com/skaphos/labmirror/internal/discovery"
	"github.com/skaphos/labmirror/internal/gitx"
	"github.com/skaphos/labmirror/internal/report"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/strutil"
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup [path]",
	Short: "Strip unwanted artifacts from repositories under a directory",
	Long: "Runs the cleanup pipeline against every repository found under the " +
		"given directory (default current directory) without contacting a host: " +
		"removes matching working tree entries, keeps .gitignore in step, untracks " +
		"committed artifacts, and optionally rewrites history.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		debugf(cmd, "starting cleanup")

		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		cfg, cfgPath, err := loadConfig(cwd)
		if err != nil {
			return err
		}
		debugf(cmd, "using config %s", cfgPath)

		root := cwd
		if len(args) == 1 {
			root = args[0]
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		autoCommit, _ := cmd.Flags().GetBool("auto-commit")
		history, _ := cmd.Flags().GetBool("history")
		patterns, _ := cmd.Flags().GetStringArray("pattern")
		keep, _ := cmd.Flags().GetStringArray("keep")
		message, _ := cmd.Flags().GetString("message")
		exclude, _ := cmd.Flags().GetStringArray("exclude")
		yes, _ := cmd.Flags().GetBool("yes")

		opts := cleanup.Options{
			DryRun:        dryRun || cfg.Cleanup.DryRun,
			AutoCommit:    autoCommit || cfg.Cleanup.AutoCommit,
			History:       history || cfg.Cleanup.History,
			Patterns:      cfg.Cleanup.Patterns,
			KeepPatterns:  cfg.Cleanup.KeepPatterns,
			CommitMessage: cfg.Cleanup.CommitMessage,
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

		if opts.History && !opts.DryRun && !yes {
			confirmed, err := cliio.PromptYesNo(cmd.ErrOrStderr(), cmd.InOrStdin(), historyRewritePrompt)
			if err != nil {
				return err
			}
			if !confirmed {
				infof(cmd, "cleanup cancelled")
				return nil
			}
		}

		repos, err := discovery.Scan(ctx, discovery.Options{
			Root:    root,
			Exclude: strutil.SplitCSVs(exclude),
		})
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			infof(cmd, "no repositories under %s", root)
			return nil
		}

		log := report.NewLogger(cmd.ErrOrStderr(), flagVerbose, flagQuiet)
		eng := cleanup.NewEngine(nil, opts, log)
		runner := &gitx.GitRunner{}
		tracker := stats.NewTracker()
		cleaned := 0
		for _, repo := range repos {
			if err := ctx.Err(); err != nil {
				return err
			}
			if repo.Bare {
				log.Warn("skipping bare repository", "path", repo.Path)
				continue
			}
			// The branch name is only consumed by auto-commit, which
			// dry-run skips, so dry runs stay free of git invocations.
			branch := ""
			if !opts.DryRun {
				head, err := gitx.Head(ctx, runner, repo.Path)
				if err != nil {
					tracker.Errorf(repo.RelPath, "", "resolve current branch: %s", err)
					continue
				}
				branch = head.Branch
			}
			if err := eng.CleanBranch(ctx, repo.Path, branch); err != nil {
				tracker.Errorf(repo.RelPath, branch, "cleanup: %s", err)
				continue
			}
			if err := eng.CleanHistory(ctx, repo.Path); err != nil {
				tracker.Errorf(repo.RelPath, branch, "history cleanup: %s", err)
				continue
			}
			cleaned++
		}

		sum := tracker.Snapshot()
		writeErrorRecords(cmd, sum.Errors)
		infof(cmd, "cleanup completed: %d of %d repositories", cleaned, len(repos))
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "report what would change without touching files")
	cleanupCmd.Flags().Bool("auto-commit", false, "commit and push cleanup changes")
	cleanupCmd.Flags().Bool("history", false, "purge matching files from history and force-push (destructive)")
	cleanupCmd.Flags().StringArray("pattern", nil, "removal glob pattern (repeatable, comma-separated)")
	cleanupCmd.Flags().StringArray("keep", nil, "keep glob pattern vetoing removal (repeatable, comma-separated)")
	cleanupCmd.Flags().String("message", "", "commit message for cleanup auto-commits")
	cleanupCmd.Flags().StringArray("exclude", nil, "glob pattern for directories to skip (repeatable, comma-separated)")
	cleanupCmd.Flags().Bool("yes", false, "skip the history rewrite confirmation prompt")

	rootCmd.AddCommand(cleanupCmd)
}
