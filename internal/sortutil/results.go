package sortutil

import (
	"sort"

	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/stats"
)

// LessEntityBranch provides deterministic ordering for error records by
// entity first, then by branch for records scoped to the same entity.
func LessEntityBranch(entityI, branchI, entityJ, branchJ string) bool {
	if entityI == entityJ {
		return branchI < branchJ
	}
	return entityI < entityJ
}

// SortRepoResults orders reconcile results by local path.
func SortRepoResults(results []model.RepoResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Path < results[j].Path
	})
}

// SortPublishResults orders publish results by local repository path.
func SortPublishResults(results []model.PublishResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RepoPath < results[j].RepoPath
	})
}

// SortRecords orders error records by entity, then branch.
func SortRecords(records []stats.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return LessEntityBranch(records[i].Entity, records[i].Branch, records[j].Entity, records[j].Branch)
	})
}
