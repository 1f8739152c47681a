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

// Package assign distributes proposals to reviewers with a deterministic greedy
// allocator. Given identical inputs the output is byte-identical; every tie-break is
// fixed by input order.
package assign

import (
	"context"
	"sort"

	"github.com/samber/lo"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

const (
	// DefaultBuffer is the number of extra reviewers assigned beyond the target to
	// tolerate reviewer no-shows.
	DefaultBuffer = 2
	// DefaultTargetReviews is the desired number of reviews per proposal.
	DefaultTargetReviews = 3
)

// Proposal is one allocatable unit of review work.
type Proposal struct {
	Code             string
	Track            string
	TargetReviews    int
	CompletedReviews int
}

// Reviewer is one member of the review pool. Preferences holds track names in preference
// order; Assigned holds proposal codes the reviewer already reviewed or was already
// given.
type Reviewer struct {
	Name        string
	Email       string
	Preferences []string
	Assigned    []string
	WantsAll    bool
}

// ReviewerAssignment is the per-reviewer output: the codes newly and previously assigned,
// in assignment order.
type ReviewerAssignment struct {
	Email     string   `json:"email"`
	Proposals []string `json:"proposals"`
}

type Options struct {
	Buffer            int
	Aliases           map[string]string
	SkipCoverageCheck bool
}

type Option func(*Options)

// WithBuffer overrides the no-show buffer.
func WithBuffer(b int) Option {
	return func(o *Options) { o.Buffer = b }
}

// WithAliases maps submission track names onto reviewer preference track names before
// matching and coverage validation.
func WithAliases(aliases map[string]string) Option {
	return func(o *Options) { o.Aliases = aliases }
}

// WithoutCoverageCheck skips the track coverage precondition. Uncovered proposals then
// fall back to the least-loaded reviewer with a warning instead of failing the run.
func WithoutCoverageCheck() Option {
	return func(o *Options) { o.SkipCoverageCheck = true }
}

// Assign computes the reviewer to proposals mapping. Proposals whose completed reviews
// already reach the target receive no new assignments. The result carries one entry per
// reviewer in input order.
func Assign(ctx context.Context, proposals []Proposal, reviewers []Reviewer, opts ...Option) ([]ReviewerAssignment, error) {
	options := &Options{Buffer: DefaultBuffer}
	for _, opt := range opts {
		opt(options)
	}
	if !options.SkipCoverageCheck {
		if err := ValidateCoverage(proposals, reviewers, options.Aliases); err != nil {
			return nil, err
		}
	}

	current := lo.Map(reviewers, func(r Reviewer, _ int) []string {
		return append([]string{}, r.Assigned...)
	})
	assignedTo := map[string]map[int]bool{}
	for i, codes := range current {
		for _, code := range codes {
			if assignedTo[code] == nil {
				assignedTo[code] = map[int]bool{}
			}
			assignedTo[code][i] = true
		}
	}

	// remaining = clip(target - completed, 0); positive demand additionally gets the
	// no-show buffer, minus the reviewers already holding the proposal.
	remaining := make([]int, len(proposals))
	for i, p := range proposals {
		target := p.TargetReviews
		if target == 0 {
			target = DefaultTargetReviews
		}
		r := target - p.CompletedReviews
		if r < 0 {
			r = 0
		}
		if r > 0 {
			r += options.Buffer - len(assignedTo[p.Code])
			if r < 0 {
				r = 0
			}
		}
		remaining[i] = r
	}

	order := lo.Range(len(proposals))
	sort.SliceStable(order, func(a, b int) bool { return remaining[order[a]] > remaining[order[b]] })

	for {
		progressed := false
		for _, pi := range order {
			if remaining[pi] == 0 {
				continue
			}
			p := proposals[pi]
			ri, ok := pickReviewer(ctx, p, reviewers, current, assignedTo[p.Code], options.Aliases)
			if !ok {
				// Pool exhausted for this proposal, nothing more to hand out.
				log.FromContext(ctx).Warnw("no reviewer left for proposal", "proposal", p.Code)
				remaining[pi] = 0
				continue
			}
			current[ri] = append(current[ri], p.Code)
			if assignedTo[p.Code] == nil {
				assignedTo[p.Code] = map[int]bool{}
			}
			assignedTo[p.Code][ri] = true
			remaining[pi]--
			progressed = true
		}
		if !progressed || lo.EveryBy(remaining, func(r int) bool { return r == 0 }) {
			break
		}
	}

	for ri, reviewer := range reviewers {
		if !reviewer.WantsAll {
			continue
		}
		held := lo.SliceToMap(current[ri], func(code string) (string, bool) { return code, true })
		for _, p := range proposals {
			if !held[p.Code] {
				current[ri] = append(current[ri], p.Code)
			}
		}
	}

	return lo.Map(reviewers, func(r Reviewer, i int) ReviewerAssignment {
		return ReviewerAssignment{Email: r.Email, Proposals: current[i]}
	}), nil
}

// pickReviewer selects the least-loaded reviewer whose preferences cover the proposal's
// track, excluding reviewers already holding the proposal. Without a preference match it
// falls back to the least-loaded non-excluded reviewer and warns. Ties break by reviewer
// input order.
func pickReviewer(ctx context.Context, p Proposal, reviewers []Reviewer, current [][]string, excluded map[int]bool, aliases map[string]string) (int, bool) {
	track := resolveAlias(p.Track, aliases)
	best, bestLoad := -1, 0
	for i, r := range reviewers {
		if excluded[i] || !lo.Contains(r.Preferences, track) {
			continue
		}
		if best == -1 || len(current[i]) < bestLoad {
			best, bestLoad = i, len(current[i])
		}
	}
	if best != -1 {
		return best, true
	}
	for i := range reviewers {
		if excluded[i] {
			continue
		}
		if best == -1 || len(current[i]) < bestLoad {
			best, bestLoad = i, len(current[i])
		}
	}
	if best == -1 {
		return 0, false
	}
	log.FromContext(ctx).Warnw("no preference match for proposal, assigning to least-loaded reviewer",
		"proposal", p.Code, "track", p.Track, "reviewer", reviewers[best].Email)
	return best, true
}

// ValidateCoverage checks that, after aliasing, every distinct submission track appears
// in some reviewer's preferences and every preference track appears on some submission.
func ValidateCoverage(proposals []Proposal, reviewers []Reviewer, aliases map[string]string) error {
	submissionTracks := lo.Uniq(lo.FilterMap(proposals, func(p Proposal, _ int) (string, bool) {
		return resolveAlias(p.Track, aliases), p.Track != ""
	}))
	preferenceTracks := lo.Uniq(lo.FlatMap(reviewers, func(r Reviewer, _ int) []string { return r.Preferences }))

	onlyInSubmissions, onlyInReviewers := lo.Difference(submissionTracks, preferenceTracks)
	if len(onlyInSubmissions) > 0 || len(onlyInReviewers) > 0 {
		return &apierrors.TrackMismatchError{
			OnlyInSubmissions: onlyInSubmissions,
			OnlyInReviewers:   onlyInReviewers,
		}
	}
	return nil
}

func resolveAlias(track string, aliases map[string]string) string {
	if alias, ok := aliases[track]; ok {
		return alias
	}
	return track
}
