// SPDX-License-Identifier: MIT
package labmirror

import (
	"fmt"
	"strconv"

	"github.com/skaphos/labmirror/internal/cliio"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/sortutil"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/tableutil"
	"github.com/skaphos/labmirror/internal/termstyle"
	"github.com/spf13/cobra"
)

// writeRunSummary prints the run counters as a single-row table.
func writeRunSummary(cmd *cobra.Command, sum stats.Summary) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_ = tableutil.PrintHeaders(w, false, "GROUPS", "CREATED", "UPDATED", "SKIPPED", "BRANCHES_PUSHED", "PATH_WARNINGS", "ERRORS")
	_, _ = fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
		sum.GroupsProcessed,
		sum.ReposCreated,
		sum.ReposUpdated,
		sum.ReposSkipped,
		sum.BranchesPushed,
		countCell(sum.PathWarnings, termstyle.Warn),
		countCell(len(sum.Errors), termstyle.Error))
	_ = w.Flush()
}

// countCell renders a counter, highlighting nonzero values.
func countCell(n int, color string) string {
	if n == 0 {
		return "0"
	}
	return termstyle.Colorize(colorOutputEnabled, strconv.Itoa(n), color)
}

// writeErrorRecords lists per-entity failures on stderr, sorted for
// stable output. Messages are truncated; the full text is in the logs.
func writeErrorRecords(cmd *cobra.Command, records []stats.Record) {
	if len(records) == 0 {
		return
	}
	sortutil.SortRecords(records)
	_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "Errors:")
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		branch := rec.Branch
		if branch == "" {
			branch = "-"
		}
		rows = append(rows, []string{rec.Entity, branch, truncateASCII(rec.Message, 96)})
	}
	_ = cliio.WriteTable(cmd.ErrOrStderr(), false, false, []string{"ENTITY", "BRANCH", "ERROR"}, rows)
}

func writeMirrorTable(cmd *cobra.Command, results []model.RepoResult) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_ = tableutil.PrintHeaders(w, false, "PATH", "OUTCOME", "BRANCHES", "OK", "ERROR")
	for _, res := range results {
		ok := "yes"
		if !res.OK {
			ok = "no"
		}
		branches := fmt.Sprintf("%d/%d", res.BranchesSynced, res.BranchesSynced+res.BranchesFailed)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			res.Path,
			outcomeCell(res.Outcome),
			branches,
			okCell(ok, res.OK),
			truncateASCII(res.Error, 60))
	}
	_ = w.Flush()
}

func writePublishTable(cmd *cobra.Command, results []model.PublishResult) {
	w := tableutil.New(cmd.OutOrStdout(), true)
	_ = tableutil.PrintHeaders(w, false, "PATH", "PROJECT", "BRANCHES", "OK", "ERROR")
	for _, res := range results {
		ok := "yes"
		if !res.OK {
			ok = "no"
		}
		branches := fmt.Sprintf("%d/%d", res.BranchesPushed, res.BranchesPushed+res.BranchesFailed)
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			res.RepoPath,
			res.ProjectPath,
			branches,
			okCell(ok, res.OK),
			truncateASCII(res.Error, 60))
	}
	_ = w.Flush()
}

func outcomeCell(outcome model.RepoOutcome) string {
	switch outcome {
	case model.OutcomeCreated:
		return termstyle.Colorize(colorOutputEnabled, string(outcome), termstyle.Healthy)
	case model.OutcomeUpdated:
		return termstyle.Colorize(colorOutputEnabled, string(outcome), termstyle.Info)
	case model.OutcomeFailed:
		return termstyle.Colorize(colorOutputEnabled, string(outcome), termstyle.Error)
	default:
		return string(outcome)
	}
}

func okCell(label string, ok bool) string {
	if ok {
		return termstyle.Colorize(colorOutputEnabled, label, termstyle.Healthy)
	}
	return termstyle.Colorize(colorOutputEnabled, label, termstyle.Error)
}

func truncateASCII(value string, max int) string {
	if len(value) <= max {
		return value
	}
	if max <= 3 {
		return value[:max]
	}
	return value[:max-3] + "..."
}
