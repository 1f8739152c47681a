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

package frames_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"

	"github.com/confops/rostrum/pkg/apis/wire"
	"github.com/confops/rostrum/pkg/frames"
)

var _ = Describe("Projections", func() {
	It("should split tracks on the first colon only", func() {
		main, sub := frames.SplitTrack("PyData: Machine Learning: Applied")
		Expect(main).To(Equal("PyData"))
		Expect(sub).To(Equal("Machine Learning: Applied"))

		main, sub = frames.SplitTrack("General")
		Expect(main).To(Equal("General"))
		Expect(sub).To(Equal(""))
	})
	It("should flatten expanded submissions to proposal rows", func() {
		subs := []wire.Submission{{
			Code:           "AAA",
			Title:          "Go in Production",
			SubmissionType: wire.SubmissionTypeRef{ID: 1, Name: wire.MultiLingualString{"en": "Talk"}},
			Track:          &wire.TrackRef{ID: 7, Name: wire.MultiLingualString{"en": "PyData: Machine Learning"}},
			State:          wire.StateAccepted,
			Duration:       30,
			Speakers: []wire.SpeakerRef{
				{Code: "SPK1", Name: "Ada"},
				{Code: "SPK2", Name: "Grace"},
			},
		}}
		rows := frames.FromSubmissions(subs)
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].Code).To(Equal("AAA"))
		Expect(rows[0].Track).To(Equal("PyData: Machine Learning"))
		Expect(rows[0].MainTrack).To(Equal("PyData"))
		Expect(rows[0].SubTrack).To(Equal("Machine Learning"))
		Expect(rows[0].SubmissionType).To(Equal("Talk"))
		Expect(rows[0].SpeakerCodes).To(Equal([]string{"SPK1", "SPK2"}))
		Expect(rows[0].SpeakerNames).To(Equal([]string{"Ada", "Grace"}))
	})
	It("should leave track columns empty for untracked proposals", func() {
		rows := frames.FromSubmissions([]wire.Submission{{Code: "AAA", State: wire.StateSubmitted}})
		Expect(rows[0].Track).To(BeEmpty())
		Expect(rows[0].MainTrack).To(BeEmpty())
	})
	It("should explode to one row per speaker and implode back", func() {
		rows := frames.FromSubmissions([]wire.Submission{
			{Code: "AAA", Speakers: []wire.SpeakerRef{{Code: "SPK1", Name: "Ada"}, {Code: "SPK2", Name: "Grace"}}},
			{Code: "BBB", Speakers: []wire.SpeakerRef{{Code: "SPK1", Name: "Ada"}}},
			{Code: "CCC"},
		})
		exploded := frames.Explode(rows)
		Expect(lo.Map(exploded, func(r frames.ProposalSpeakerRow, _ int) string { return r.Code + "/" + r.SpeakerCode })).
			To(Equal([]string{"AAA/SPK1", "AAA/SPK2", "BBB/SPK1", "CCC/"}))

		Expect(frames.Implode(exploded)).To(Equal(rows))
	})
})

var _ = Describe("Scores", func() {
	It("should debias scores against each reviewer's personal mean", func() {
		rows := []frames.ReviewRow{
			{Proposal: "AAA", Reviewer: "harsh", Score: lo.ToPtr(1.0)},
			{Proposal: "BBB", Reviewer: "harsh", Score: lo.ToPtr(3.0)},
			{Proposal: "AAA", Reviewer: "kind", Score: lo.ToPtr(4.0)},
			{Proposal: "BBB", Reviewer: "kind", Score: lo.ToPtr(6.0)},
			{Proposal: "CCC", Reviewer: "kind"},
		}
		debiased := frames.Debias(rows)
		Expect(debiased).To(HaveLen(4))
		// harsh averages 2, kind averages 5; both gave AAA one point below their mean
		Expect(debiased[0].Debiased).To(Equal(-1.0))
		Expect(debiased[2].Debiased).To(Equal(-1.0))

		scores := frames.AggregateScores(debiased)
		Expect(scores["AAA"]).To(Equal(-1.0))
		Expect(scores["BBB"]).To(Equal(1.0))
	})
	It("should keep only scored rows when counting completed reviews", func() {
		rows := []frames.ReviewRow{
			{Proposal: "AAA", Reviewer: "harsh", Score: lo.ToPtr(1.0)},
			{Proposal: "AAA", Reviewer: "silent"},
			{Proposal: "BBB", Reviewer: "kind", Score: lo.ToPtr(4.0)},
		}
		scored := frames.Scored(rows)
		Expect(scored).To(HaveLen(2))
		Expect(lo.Map(scored, func(r frames.ReviewRow, _ int) string { return r.Proposal })).
			To(Equal([]string{"AAA", "BBB"}))
	})
	It("should drop reviewers without scored reviews from the means", func() {
		means := frames.ReviewerMeans([]frames.ReviewRow{{Proposal: "AAA", Reviewer: "silent"}})
		Expect(means).To(BeEmpty())
	})
	It("should fold public votes discarding indifference and normalizing twos", func() {
		Expect(frames.VoteScore([]int{1, 1, 1})).To(Equal(0))
		Expect(frames.VoteScore([]int{2, 2})).To(Equal(2))
		Expect(frames.VoteScore([]int{1, 2, 3, 4})).To(Equal(8))
		Expect(frames.VoteScore(nil)).To(Equal(0))
	})
})
