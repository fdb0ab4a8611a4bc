package labmirror

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/skaphos/labmirror/internal/forge"
	"github.com/skaphos/labmirror/internal/publish"
	"github.com/skaphos/labmirror/internal/report"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/strutil"
	"github.com/skaphos/labmirror/internal/throttle"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish <group>",
	Short: "Publish a local repository tree to a group hierarchy",
	Long: "Scans a local directory tree for repositories and recreates it under " +
		"the target group: one subgroup per intermediate directory, one project " +
		"per repository, every local branch pushed. The target group must already " +
		"exist; groups and projects below it are created as needed and never " +
		"deleted.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		debugf(cmd, "starting publish")

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
		source, _ := cmd.Flags().GetString("source")
		if source == "" {
			source = cwd
		}
		exclude, _ := cmd.Flags().GetStringArray("exclude")
		useSSH, _ := cmd.Flags().GetBool("use-ssh")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		if concurrency == 0 {
			concurrency = cfg.ConcurrentClones
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
		pub := publish.New(client, nil, pacer, tracker, publish.Options{
			Token:       token,
			UseSSH:      useSSH || cfg.UseSSH,
			Exclude:     strutil.SplitCSVs(exclude),
			Concurrency: concurrency,
		}, log)
		results, err := pub.PublishTree(ctx, source, args[0])
		if err != nil {
			return err
		}

		setColorOutputMode(cmd)
		writePublishTable(cmd, results)
		sum := tracker.Snapshot()
		writeRunSummary(cmd, sum)
		writeErrorRecords(cmd, sum.Errors)
		if err := ctx.Err(); err != nil {
			return err
		}
		infof(cmd, "publish completed: %d repositories", len(results))
		return nil
	},
}

func init() {
	publishCmd.Flags().String("source", "", "local directory tree to publish (default current directory)")
	addHostFlags(publishCmd)
	publishCmd.Flags().StringArray("exclude", nil, "glob pattern for directories to skip (repeatable, comma-separated)")

	rootCmd.AddCommand(publishCmd)
}
