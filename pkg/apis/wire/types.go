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

// Package wire contains the value objects exchanged with the upstream conference-management
// service. Entities are immutable within a session; newer wire versions replace nested
// objects by identifier references, modeled here with the Ref types.
package wire

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// MultiLingualString maps a language tag to a display string. By convention the "en" key
// is always present.
type MultiLingualString map[string]string

// String returns the english rendering, falling back to any present language.
func (m MultiLingualString) String() string {
	if s, ok := m["en"]; ok {
		return s
	}
	for _, s := range m {
		return s
	}
	return ""
}

// UnmarshalJSON accepts both the mapping form and the bare-string shorthand some
// endpoints emit for single-language events.
func (m *MultiLingualString) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*m = MultiLingualString{"en": s}
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = raw
	return nil
}

// State is the lifecycle state of a proposal.
type State string

const (
	StateSubmitted State = "submitted"
	StateAccepted  State = "accepted"
	StateConfirmed State = "confirmed"
	StateRejected  State = "rejected"
	StateWithdrawn State = "withdrawn"
	StateCanceled  State = "canceled"
	StateDeleted   State = "deleted"
)

var knownStates = map[State]struct{}{
	StateSubmitted: {}, StateAccepted: {}, StateConfirmed: {}, StateRejected: {},
	StateWithdrawn: {}, StateCanceled: {}, StateDeleted: {},
}

func (s *State) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := knownStates[State(raw)]; !ok {
		return fmt.Errorf("unknown proposal state %q", raw)
	}
	*s = State(raw)
	return nil
}

// Score is a numeric review score. The upstream serializes it either as a JSON number or
// as a decimal string.
type Score float64

func (s *Score) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("parsing score %q: %w", raw, err)
		}
		*s = Score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*s = Score(f)
	return nil
}

// Availability is a window during which a speaker or room is available.
type Availability struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// URLs carries the upstream's canonical links for a proposal.
type URLs struct {
	Base   string `json:"base,omitempty"`
	Edit   string `json:"edit,omitempty"`
	Review string `json:"review,omitempty"`
}

// Submission is a talk proposal in any lifecycle state.
type Submission struct {
	Code           string             `json:"code"`
	Title          string             `json:"title"`
	Abstract       string             `json:"abstract,omitempty"`
	Description    string             `json:"description,omitempty"`
	SubmissionType SubmissionTypeRef  `json:"submission_type"`
	Track          *TrackRef          `json:"track,omitempty"`
	State          State              `json:"state"`
	PendingState   *State             `json:"pending_state,omitempty"`
	Duration       int                `json:"duration"`
	Speakers       []SpeakerRef       `json:"speakers,omitempty"`
	Answers        []AnswerRef        `json:"answers,omitempty"`
	Created        time.Time          `json:"created"`
	URLs           *URLs              `json:"urls,omitempty"`
}

// Talk is a submission in an accepted or confirmed state, served by the talks alias
// endpoint on instances that still have it.
type Talk = Submission

// Speaker is a person attached to one or more submissions.
type Speaker struct {
	Code           string         `json:"code"`
	Name           string         `json:"name"`
	Biography      string         `json:"biography,omitempty"`
	Avatar         string         `json:"avatar,omitempty"`
	Submissions    []string       `json:"submissions,omitempty"`
	Answers        []AnswerRef    `json:"answers,omitempty"`
	Availabilities []Availability `json:"availabilities,omitempty"`
}

// Review is a single reviewer's verdict on a submission. Score is nil for reviews that
// were started but not scored.
type Review struct {
	ID         int       `json:"id"`
	Submission string    `json:"submission"`
	User       string    `json:"user"`
	Score      *Score    `json:"score,omitempty"`
	Text       string    `json:"text,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`
}

// Room is a physical room talks are scheduled into.
type Room struct {
	ID             int                `json:"id"`
	Name           MultiLingualString `json:"name"`
	Capacity       int                `json:"capacity"`
	Availabilities []Availability     `json:"availabilities,omitempty"`
}

// Track is the taxonomic grouping of submissions. The main track is the prefix of the
// name before the first colon, the sub track the remainder.
type Track struct {
	ID   int                `json:"id"`
	Name MultiLingualString `json:"name"`
}

// SubmissionType distinguishes talk formats (talk, tutorial, sponsored, ...).
type SubmissionType struct {
	ID   int                `json:"id"`
	Name MultiLingualString `json:"name"`
}

// Question is a custom form question targeting submissions, speakers or reviews.
type Question struct {
	ID       int                `json:"id"`
	Question MultiLingualString `json:"question"`
	Target   string             `json:"target,omitempty"`
	Options  []Option           `json:"options,omitempty"`
}

// Option is one choice of a closed-set question.
type Option struct {
	ID     int                `json:"id"`
	Answer MultiLingualString `json:"answer"`
}

// Answer binds a question to a target with a value and optional option references.
type Answer struct {
	ID         int         `json:"id"`
	Question   QuestionRef `json:"question"`
	Answer     string      `json:"answer"`
	Submission string      `json:"submission,omitempty"`
	Person     string      `json:"person,omitempty"`
	Review     *int        `json:"review,omitempty"`
	Options    []int       `json:"options,omitempty"`
}

// Event is a single conference edition.
type Event struct {
	Slug     string             `json:"slug"`
	Name     MultiLingualString `json:"name"`
	DateFrom string             `json:"date_from"`
	DateTo   string             `json:"date_to"`
	Timezone string             `json:"timezone,omitempty"`
}

// Me is the authenticated user profile returned by the me endpoint.
type Me struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Locale string `json:"locale,omitempty"`
}

// Tag is a free-form label on submissions.
type Tag struct {
	ID          int                `json:"id"`
	Tag         string             `json:"tag"`
	Description MultiLingualString `json:"description,omitempty"`
	Color       string             `json:"color,omitempty"`
}
