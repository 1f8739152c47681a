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

// Package frames projects wire records into flat row tables, the common input shape of
// the assignment and scheduling engines. All transformations are pure and preserve input
// order.
package frames

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/confops/rostrum/pkg/apis/wire"
)

// ProposalRow is one proposal flattened to scalar columns plus its speaker lists.
type ProposalRow struct {
	Code           string
	Title          string
	Track          string
	MainTrack      string
	SubTrack       string
	SubmissionType string
	State          wire.State
	Duration       int
	Created        time.Time
	SpeakerCodes   []string
	SpeakerNames   []string
}

// ProposalSpeakerRow is a ProposalRow exploded to one speaker per row.
type ProposalSpeakerRow struct {
	ProposalRow
	SpeakerCode string
	SpeakerName string
}

// SpeakerRow is one speaker flattened to scalar columns.
type SpeakerRow struct {
	Code      string
	Name      string
	Proposals []string
}

// ReviewRow is one review flattened to scalar columns. Score is nil for reviews that were
// started but never scored.
type ReviewRow struct {
	ID       int
	Proposal string
	Reviewer string
	Score    *float64
	Created  time.Time
	Updated  time.Time
}

// SplitTrack splits a track name into main and sub track on the first colon. A name
// without a colon is all main track.
func SplitTrack(name string) (main, sub string) {
	main, sub, found := strings.Cut(name, ":")
	if !found {
		return strings.TrimSpace(name), ""
	}
	return strings.TrimSpace(main), strings.TrimSpace(sub)
}

// FromSubmissions projects expanded submissions onto proposal rows.
func FromSubmissions(subs []wire.Submission) []ProposalRow {
	return lo.Map(subs, func(sub wire.Submission, _ int) ProposalRow {
		row := ProposalRow{
			Code:           sub.Code,
			Title:          sub.Title,
			SubmissionType: sub.SubmissionType.Name.String(),
			State:          sub.State,
			Duration:       sub.Duration,
			Created:        sub.Created,
			SpeakerCodes:   lo.Map(sub.Speakers, func(s wire.SpeakerRef, _ int) string { return s.Code }),
			SpeakerNames:   lo.Map(sub.Speakers, func(s wire.SpeakerRef, _ int) string { return s.Name }),
		}
		if sub.Track != nil {
			row.Track = sub.Track.Name.String()
			row.MainTrack, row.SubTrack = SplitTrack(row.Track)
		}
		return row
	})
}

// FromSpeakers projects speakers onto speaker rows.
func FromSpeakers(speakers []wire.Speaker) []SpeakerRow {
	return lo.Map(speakers, func(speaker wire.Speaker, _ int) SpeakerRow {
		return SpeakerRow{
			Code:      speaker.Code,
			Name:      speaker.Name,
			Proposals: speaker.Submissions,
		}
	})
}

// FromReviews projects reviews onto review rows.
func FromReviews(reviews []wire.Review) []ReviewRow {
	return lo.Map(reviews, func(review wire.Review, _ int) ReviewRow {
		row := ReviewRow{
			ID:       review.ID,
			Proposal: review.Submission,
			Reviewer: review.User,
			Created:  review.Created,
			Updated:  review.Updated,
		}
		if review.Score != nil {
			row.Score = lo.ToPtr(float64(*review.Score))
		}
		return row
	})
}

// Explode expands each proposal row to one row per speaker. Proposals without speakers
// yield a single row with empty speaker columns.
func Explode(rows []ProposalRow) []ProposalSpeakerRow {
	return lo.FlatMap(rows, func(row ProposalRow, _ int) []ProposalSpeakerRow {
		if len(row.SpeakerCodes) == 0 {
			return []ProposalSpeakerRow{{ProposalRow: row}}
		}
		return lo.Map(row.SpeakerCodes, func(code string, i int) ProposalSpeakerRow {
			exploded := ProposalSpeakerRow{ProposalRow: row, SpeakerCode: code}
			if i < len(row.SpeakerNames) {
				exploded.SpeakerName = row.SpeakerNames[i]
			}
			return exploded
		})
	})
}

// Implode groups exploded rows back to one row per proposal, preserving first-seen order.
// It is the inverse of Explode for well-formed input.
func Implode(rows []ProposalSpeakerRow) []ProposalRow {
	grouped := map[string]*ProposalRow{}
	var order []string
	for _, row := range rows {
		existing, ok := grouped[row.Code]
		if !ok {
			merged := row.ProposalRow
			merged.SpeakerCodes = []string{}
			merged.SpeakerNames = []string{}
			grouped[row.Code] = &merged
			order = append(order, row.Code)
			existing = &merged
		}
		if row.SpeakerCode != "" {
			existing.SpeakerCodes = append(existing.SpeakerCodes, row.SpeakerCode)
			existing.SpeakerNames = append(existing.SpeakerNames, row.SpeakerName)
		}
	}
	return lo.Map(order, func(code string, _ int) ProposalRow { return *grouped[code] })
}
