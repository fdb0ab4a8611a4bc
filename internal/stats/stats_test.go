package stats_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/skaphos/labmirror/internal/stats"
)

var _ = Describe("Tracker", func() {
	It("accumulates counters", func() {
		t := stats.NewTracker()
		t.GroupProcessed()
		t.GroupProcessed()
		t.RepoCreated()
		t.RepoUpdated()
		t.RepoUpdated()
		t.RepoSkipped()
		t.BranchesPushed(3)
		t.PathWarning()

		s := t.Snapshot()
		Expect(s.GroupsProcessed).To(Equal(2))
		Expect(s.ReposCreated).To(Equal(1))
		Expect(s.ReposUpdated).To(Equal(2))
		Expect(s.ReposSkipped).To(Equal(1))
		Expect(s.BranchesPushed).To(Equal(3))
		Expect(s.PathWarnings).To(Equal(1))
		Expect(s.Errors).To(BeEmpty())
	})

	It("records formatted errors with optional branch scope", func() {
		t := stats.NewTracker()
		t.Errorf("team/app", "", "listing children failed: %s", "503")
		t.Errorf("team/app", "release-1.2", "pull failed")

		s := t.Snapshot()
		Expect(s.Errors).To(HaveLen(2))
		Expect(s.Errors[0].Entity).To(Equal("team/app"))
		Expect(s.Errors[0].Branch).To(BeEmpty())
		Expect(s.Errors[0].Message).To(Equal("listing children failed: 503"))
		Expect(s.Errors[1].Branch).To(Equal("release-1.2"))
	})

	It("snapshots a copy of the records", func() {
		t := stats.NewTracker()
		t.Errorf("a", "", "one")
		s := t.Snapshot()
		t.Errorf("b", "", "two")
		Expect(s.Errors).To(HaveLen(1))
		Expect(t.Snapshot().Errors).To(HaveLen(2))
	})

	It("is safe for concurrent use", func() {
		t := stats.NewTracker()
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				t.GroupProcessed()
				t.RepoCreated()
				t.BranchesPushed(2)
				t.Errorf("repo", "", "boom")
			}()
		}
		wg.Wait()

		s := t.Snapshot()
		Expect(s.GroupsProcessed).To(Equal(50))
		Expect(s.ReposCreated).To(Equal(50))
		Expect(s.BranchesPushed).To(Equal(100))
		Expect(s.Errors).To(HaveLen(50))
	})
})
