package walk_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/labmirror/internal/forge"
	"github.com/skaphos/labmirror/internal/model"
	"github.com/skaphos/labmirror/internal/report"
	"github.com/skaphos/labmirror/internal/stats"
	"github.com/skaphos/labmirror/internal/walk"
)

// fakeClient is an in-memory forge.Client backed by static hierarchy maps.
type fakeClient struct {
	byRef        map[string]model.Group
	subgroups    map[int][]model.Group
	projects     map[int][]model.Project
	projectErrs  map[int]error
	subgroupErrs map[int]error

	// onListProjects runs before each project listing, letting specs
	// cancel or fail mid-walk.
	onListProjects func(groupID int)
}

func (f *fakeClient) Authenticate(context.Context) (string, error) { return "mirror-bot", nil }

func (f *fakeClient) GroupByIDOrPath(_ context.Context, ref string) (model.Group, error) {
	g, ok := f.byRef[ref]
	if !ok {
		return model.Group{}, fmt.Errorf("group %q: %w", ref, forge.ErrNotFound)
	}
	return g, nil
}

func (f *fakeClient) ListSubgroups(_ context.Context, groupID int) ([]model.Group, error) {
	if err := f.subgroupErrs[groupID]; err != nil {
		return nil, err
	}
	return f.subgroups[groupID], nil
}

func (f *fakeClient) ListProjects(_ context.Context, groupID int) ([]model.Project, error) {
	if f.onListProjects != nil {
		f.onListProjects(groupID)
	}
	if err := f.projectErrs[groupID]; err != nil {
		return nil, err
	}
	return f.projects[groupID], nil
}

func (f *fakeClient) CreateGroup(context.Context, string, string, int) (model.Group, error) {
	return model.Group{}, errors.New("not supported")
}

func (f *fakeClient) CreateProject(context.Context, string, string, int) (model.Project, error) {
	return model.Project{}, errors.New("not supported")
}

// platformTree builds a three-group hierarchy: Platform holds project
// alpha plus the subgroups Team A (project beta) and Ops: Tools (empty).
func platformTree() *fakeClient {
	return &fakeClient{
		byRef: map[string]model.Group{
			"platform": {ID: 1, Name: "Platform", Path: "platform"},
		},
		subgroups: map[int][]model.Group{
			1: {
				{ID: 2, Name: "Team A", Path: "team-a", ParentID: 1},
				{ID: 3, Name: "Ops: Tools", Path: "ops-tools", ParentID: 1},
			},
		},
		projects: map[int][]model.Project{
			1: {{ID: 10, Name: "alpha", Path: "alpha", HTTPURL: "https://gitlab.example.com/platform/alpha.git"}},
			2: {{ID: 11, Name: "beta", Path: "beta", HTTPURL: "https://gitlab.example.com/platform/team-a/beta.git"}},
		},
		projectErrs:  map[int]error{},
		subgroupErrs: map[int]error{},
	}
}

var _ = Describe("Walker", func() {
	var (
		dest    string
		tracker *stats.Tracker
	)

	BeforeEach(func() {
		dest = filepath.Join(GinkgoT().TempDir(), "mirror")
		tracker = stats.NewTracker()
	})

	It("maps the hierarchy onto the destination breadth-first", func() {
		w := walk.New(platformTree(), nil, tracker, walk.Options{}, report.Nop())

		tasks, err := w.Walk(context.Background(), "platform", dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(HaveLen(2))
		Expect(tasks[0].Project.Name).To(Equal("alpha"))
		Expect(tasks[0].TargetPath).To(Equal(filepath.Join(dest, "alpha")))
		Expect(tasks[1].Project.Name).To(Equal("beta"))
		Expect(tasks[1].TargetPath).To(Equal(filepath.Join(dest, "Team A", "beta")))

		Expect(filepath.Join(dest, "Team A")).To(BeADirectory())
		Expect(filepath.Join(dest, "Ops_ Tools")).To(BeADirectory())
		Expect(tracker.Snapshot().GroupsProcessed).To(Equal(3))
	})

	It("shortens long segments when configured", func() {
		client := platformTree()
		long := strings.Repeat("a", 60)
		client.projects[1] = []model.Project{{ID: 10, Name: long, Path: "longhorn"}}
		w := walk.New(client, nil, tracker, walk.Options{ShortPaths: true}, report.Nop())

		tasks, err := w.Walk(context.Background(), "platform", dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(filepath.Base(tasks[0].TargetPath)).To(HaveLen(50))
		Expect(filepath.Base(tasks[0].TargetPath)).To(HavePrefix(strings.Repeat("a", 45)))
	})

	It("records a listing failure and continues with the queue", func() {
		client := platformTree()
		client.projectErrs[2] = errors.New("boom")
		client.projects[3] = []model.Project{{ID: 12, Name: "gamma", Path: "gamma"}}
		w := walk.New(client, nil, tracker, walk.Options{}, report.Nop())

		tasks, err := w.Walk(context.Background(), "platform", dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(HaveLen(2))
		Expect(tasks[1].Project.Name).To(Equal("gamma"))

		snap := tracker.Snapshot()
		Expect(snap.GroupsProcessed).To(Equal(3))
		Expect(snap.Errors).To(HaveLen(1))
		Expect(snap.Errors[0].Entity).To(Equal("Team A"))
	})

	It("does not descend below a group whose projects cannot be listed", func() {
		client := platformTree()
		client.projectErrs[1] = errors.New("boom")
		w := walk.New(client, nil, tracker, walk.Options{}, report.Nop())

		tasks, err := w.Walk(context.Background(), "platform", dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(tasks).To(BeEmpty())

		snap := tracker.Snapshot()
		Expect(snap.GroupsProcessed).To(Equal(1))
		Expect(snap.Errors).To(HaveLen(1))
	})

	It("counts warnings for paths beyond the configured maximum", func() {
		w := walk.New(platformTree(), nil, tracker, walk.Options{MaxPathLength: 10}, report.Nop())

		_, err := w.Walk(context.Background(), "platform", dest)
		Expect(err).NotTo(HaveOccurred())
		Expect(tracker.Snapshot().PathWarnings).To(BeNumerically(">", 0))
	})

	It("fails when the root group cannot be resolved", func() {
		w := walk.New(&fakeClient{byRef: map[string]model.Group{}}, nil, tracker, walk.Options{}, report.Nop())

		tasks, err := w.Walk(context.Background(), "missing", dest)
		Expect(err).To(MatchError(forge.ErrNotFound))
		Expect(tasks).To(BeNil())
	})

	It("returns the tasks collected before a cancellation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		client := platformTree()
		client.onListProjects = func(groupID int) {
			if groupID == 1 {
				cancel()
			}
		}
		w := walk.New(client, nil, tracker, walk.Options{}, report.Nop())

		tasks, err := w.Walk(ctx, "platform", dest)
		Expect(err).To(MatchError(context.Canceled))
		Expect(tasks).To(HaveLen(1))
		Expect(tracker.Snapshot().GroupsProcessed).To(Equal(1))
	})
})
