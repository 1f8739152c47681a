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

package frames

import (
	"github.com/samber/lo"
)

// ScoredReview is a review row annotated with its bias-corrected score.
type ScoredReview struct {
	ReviewRow
	Debiased float64
}

// Scored returns only the rows carrying a score. A submitted but unscored review does not
// count toward a proposal's completed reviews.
func Scored(rows []ReviewRow) []ReviewRow {
	return lo.Filter(rows, func(row ReviewRow, _ int) bool { return row.Score != nil })
}

// ReviewerMeans computes each reviewer's personal mean score over their scored reviews.
// Reviewers with no scored reviews are absent.
func ReviewerMeans(rows []ReviewRow) map[string]float64 {
	sums := map[string]float64{}
	counts := map[string]int{}
	for _, row := range rows {
		if row.Score == nil {
			continue
		}
		sums[row.Reviewer] += *row.Score
		counts[row.Reviewer]++
	}
	means := make(map[string]float64, len(sums))
	for reviewer, sum := range sums {
		means[reviewer] = sum / float64(counts[reviewer])
	}
	return means
}

// Debias subtracts each reviewer's personal mean from their raw scores. Reviews without a
// score are dropped, a review that was never scored carries no signal.
func Debias(rows []ReviewRow) []ScoredReview {
	means := ReviewerMeans(rows)
	return lo.FilterMap(rows, func(row ReviewRow, _ int) (ScoredReview, bool) {
		if row.Score == nil {
			return ScoredReview{}, false
		}
		return ScoredReview{ReviewRow: row, Debiased: *row.Score - means[row.Reviewer]}, true
	})
}

// AggregateScores computes the mean debiased score per proposal.
func AggregateScores(rows []ScoredReview) map[string]float64 {
	grouped := lo.GroupBy(rows, func(row ScoredReview) string { return row.Proposal })
	scores := make(map[string]float64, len(grouped))
	for proposal, reviews := range grouped {
		scores[proposal] = lo.SumBy(reviews, func(r ScoredReview) float64 { return r.Debiased }) / float64(len(reviews))
	}
	return scores
}

// VoteScore folds public-vote values into a single popularity signal. A value of 1 means
// indifferent and is discarded; a value of 2 is normalized to 1 so that higher categories
// dominate; higher values are kept as is.
func VoteScore(values []int) int {
	return lo.SumBy(values, func(v int) int {
		switch {
		case v <= 1:
			return 0
		case v == 2:
			return 1
		default:
			return v
		}
	})
}
