/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package assign_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/confops/rostrum/pkg/assign"
	apierrors "github.com/confops/rostrum/pkg/errors"
)

func pool(names ...string) []assign.Reviewer {
	return lo.Map(names, func(name string, _ int) assign.Reviewer {
		return assign.Reviewer{Name: name, Email: name + "@example.org", Preferences: []string{"ML"}}
	})
}

var _ = Describe("Assign", func() {
	It("should spread proposals across all preference-matching reviewers", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 2},
			{Code: "P2", Track: "ML", TargetReviews: 2},
		}
		result, err := assign.Assign(ctx, proposals, pool("r1", "r2"), assign.WithBuffer(0))
		Expect(err).ToNot(HaveOccurred())

		Expect(result).To(HaveLen(2))
		for _, entry := range result {
			Expect(entry.Proposals).To(ConsistOf("P1", "P2"))
		}
	})
	It("should append every proposal to wants-all reviewers without disturbing the pool", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 2},
			{Code: "P2", Track: "ML", TargetReviews: 2},
		}
		reviewers := append(pool("r1", "r2"), assign.Reviewer{Name: "r3", Email: "r3@example.org", WantsAll: true})
		result, err := assign.Assign(ctx, proposals, reviewers, assign.WithBuffer(0))
		Expect(err).ToNot(HaveOccurred())

		Expect(result[0].Proposals).To(ConsistOf("P1", "P2"))
		Expect(result[1].Proposals).To(ConsistOf("P1", "P2"))
		Expect(result[2].Proposals).To(Equal([]string{"P1", "P2"}))
	})
	It("should skip proposals whose completed reviews reach the target", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 2, CompletedReviews: 2},
			{Code: "P2", Track: "ML", TargetReviews: 2},
		}
		result, err := assign.Assign(ctx, proposals, pool("r1", "r2"), assign.WithBuffer(0))
		Expect(err).ToNot(HaveOccurred())
		for _, entry := range result {
			Expect(entry.Proposals).ToNot(ContainElement("P1"))
		}
	})
	It("should never assign a reviewer a proposal they already hold", func() {
		proposals := []assign.Proposal{{Code: "P1", Track: "ML", TargetReviews: 3}}
		reviewers := pool("r1", "r2")
		reviewers[0].Assigned = []string{"P1"}

		result, err := assign.Assign(ctx, proposals, reviewers, assign.WithBuffer(0))
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.Count(result[0].Proposals, "P1")).To(Equal(1))
	})
	It("should keep the buffer on partially-assigned proposals", func() {
		proposals := []assign.Proposal{{Code: "P1", Track: "ML", TargetReviews: 2}}
		reviewers := pool("r1", "r2", "r3")
		reviewers[0].Assigned = []string{"P1"}

		result, err := assign.Assign(ctx, proposals, reviewers, assign.WithBuffer(1))
		Expect(err).ToNot(HaveOccurred())

		// demand is target + buffer - holders = 2 + 1 - 1, so two more reviewers
		holders := lo.CountBy(result, func(entry assign.ReviewerAssignment) bool {
			return lo.Contains(entry.Proposals, "P1")
		})
		Expect(holders).To(Equal(3))
	})
	It("should give every proposal at least min(target-completed, pool size) reviewers", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 5},
			{Code: "P2", Track: "ML", TargetReviews: 3, CompletedReviews: 1},
		}
		reviewers := pool("r1", "r2", "r3")
		result, err := assign.Assign(ctx, proposals, reviewers, assign.WithBuffer(0))
		Expect(err).ToNot(HaveOccurred())

		holders := func(code string) int {
			return lo.CountBy(result, func(entry assign.ReviewerAssignment) bool {
				return lo.Contains(entry.Proposals, code)
			})
		}
		Expect(holders("P1")).To(BeNumerically(">=", 3))
		Expect(holders("P2")).To(BeNumerically(">=", 2))
	})
	It("should land everything on a single reviewer up to target plus buffer", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 1},
			{Code: "P2", Track: "ML", TargetReviews: 1},
			{Code: "P3", Track: "ML", TargetReviews: 1},
		}
		result, err := assign.Assign(ctx, proposals, pool("solo"), assign.WithBuffer(2))
		Expect(err).ToNot(HaveOccurred())
		Expect(result[0].Proposals).To(ConsistOf("P1", "P2", "P3"))
	})
	It("should be deterministic across runs", func() {
		proposals := lo.Map(lo.Range(20), func(i int, _ int) assign.Proposal {
			return assign.Proposal{Code: string(rune('A' + i)), Track: "ML", TargetReviews: 3}
		})
		reviewers := pool("r1", "r2", "r3", "r4")

		first, err := assign.Assign(ctx, proposals, reviewers)
		Expect(err).ToNot(HaveOccurred())
		second, err := assign.Assign(ctx, proposals, reviewers)
		Expect(err).ToNot(HaveOccurred())
		Expect(second).To(Equal(first))
	})
	It("should return an empty assignment for an empty proposal set", func() {
		result, err := assign.Assign(ctx, nil, pool("r1"), assign.WithoutCoverageCheck())
		Expect(err).ToNot(HaveOccurred())
		Expect(result).To(HaveLen(1))
		Expect(result[0].Proposals).To(BeEmpty())
	})
	It("should fail the coverage precondition on taxonomy drift", func() {
		proposals := []assign.Proposal{{Code: "P1", Track: "Quantum"}}
		_, err := assign.Assign(ctx, proposals, pool("r1"))

		Expect(apierrors.IsTrackMismatch(err)).To(BeTrue())
		mismatch := &apierrors.TrackMismatchError{}
		Expect(errors.As(err, &mismatch)).To(BeTrue())
		Expect(mismatch.OnlyInSubmissions).To(Equal([]string{"Quantum"}))
		Expect(mismatch.OnlyInReviewers).To(Equal([]string{"ML"}))
	})
	It("should bridge taxonomy drift through the alias table", func() {
		proposals := []assign.Proposal{{Code: "P1", Track: "Quantum", TargetReviews: 1}}
		result, err := assign.Assign(ctx, proposals, pool("r1"),
			assign.WithBuffer(0), assign.WithAliases(map[string]string{"Quantum": "ML"}))
		Expect(err).ToNot(HaveOccurred())
		Expect(result[0].Proposals).To(Equal([]string{"P1"}))
	})
	It("should fall back to the least-loaded reviewer for uncovered tracks when lenient", func() {
		proposals := []assign.Proposal{
			{Code: "P1", Track: "ML", TargetReviews: 1},
			{Code: "P2", Track: "Quantum", TargetReviews: 1},
		}
		result, err := assign.Assign(ctx, proposals, pool("r1", "r2"),
			assign.WithBuffer(0), assign.WithoutCoverageCheck())
		Expect(err).ToNot(HaveOccurred())

		all := lo.Flatten(lo.Map(result, func(entry assign.ReviewerAssignment, _ int) []string { return entry.Proposals }))
		Expect(all).To(ConsistOf("P1", "P2"))
	})
})

var _ = Describe("Aliases", func() {
	It("should parse the sectioned alias file", func() {
		aliases, err := assign.ParseAliases([]byte("aliases:\n  Quantum: ML\n  \"PyData: NLP\": \"PyData\"\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(aliases).To(Equal(map[string]string{"Quantum": "ML", "PyData: NLP": "PyData"}))
	})
	It("should parse a bare mapping", func() {
		aliases, err := assign.ParseAliases([]byte("Quantum: ML\n"))
		Expect(err).ToNot(HaveOccurred())
		Expect(aliases).To(Equal(map[string]string{"Quantum": "ML"}))
	})
	It("should reject malformed alias files", func() {
		_, err := assign.ParseAliases([]byte("- just\n- a\n- list\n"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Export", func() {
	It("should round-trip the upload document", func() {
		assignments := []assign.ReviewerAssignment{
			{Email: "r1@example.org", Proposals: []string{"P1", "P2"}},
			{Email: "r2@example.org", Proposals: []string{"P2"}},
		}
		raw, err := assign.Marshal(assignments)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(raw)).To(MatchJSON(`[
			{"email": "r1@example.org", "proposals": ["P1", "P2"]},
			{"email": "r2@example.org", "proposals": ["P2"]}
		]`))

		parsed, err := assign.Unmarshal(raw)
		Expect(err).ToNot(HaveOccurred())
		Expect(parsed).To(Equal(assignments))
	})
	It("should name artifacts by day", func() {
		Expect(assign.Filename(time.Date(2026, 3, 14, 15, 9, 0, 0, time.UTC))).To(Equal("assignments_20260314.json"))
	})
	It("should save and load through the dated artifact", func() {
		dir := GinkgoT().TempDir()
		assignments := []assign.ReviewerAssignment{{Email: "r1@example.org", Proposals: []string{"P1"}}}
		path, err := assign.Save(dir, assignments, time.Now())
		Expect(err).ToNot(HaveOccurred())

		loaded, err := assign.Load(path)
		Expect(err).ToNot(HaveOccurred())
		Expect(loaded).To(Equal(assignments))
	})
})
