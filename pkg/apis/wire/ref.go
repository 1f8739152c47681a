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

package wire

import (
	"encoding/json"
)

// The upstream replaced nested objects by identifier references across a wire version
// boundary. Each Ref type decodes both forms: a bare identifier (v2) or the nested object
// (v1 and expanded responses). Marshaling always writes the identifier reference; the
// expanded form is never written back.

// TrackRef references a track by id, optionally expanded with its name.
type TrackRef struct {
	ID   int
	Name MultiLingualString
}

// Expanded reports whether the nested form has been materialized.
func (r *TrackRef) Expanded() bool { return r.Name != nil }

func (r *TrackRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		// either a full track record or the legacy bare-name mapping
		var full Track
		if err := json.Unmarshal(data, &full); err == nil && full.Name != nil {
			r.ID, r.Name = full.ID, full.Name
			return nil
		}
		var name MultiLingualString
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		r.Name = name
		return nil
	}
	return json.Unmarshal(data, &r.ID)
}

func (r TrackRef) MarshalJSON() ([]byte, error) {
	if r.ID == 0 && r.Name != nil {
		return json.Marshal(r.Name)
	}
	return json.Marshal(r.ID)
}

// SubmissionTypeRef references a submission type by id, optionally expanded with its name.
type SubmissionTypeRef struct {
	ID   int
	Name MultiLingualString
}

func (r *SubmissionTypeRef) Expanded() bool { return r.Name != nil }

func (r *SubmissionTypeRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var full SubmissionType
		if err := json.Unmarshal(data, &full); err == nil && full.Name != nil {
			r.ID, r.Name = full.ID, full.Name
			return nil
		}
		var name MultiLingualString
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		r.Name = name
		return nil
	}
	return json.Unmarshal(data, &r.ID)
}

func (r SubmissionTypeRef) MarshalJSON() ([]byte, error) {
	if r.ID == 0 && r.Name != nil {
		return json.Marshal(r.Name)
	}
	return json.Marshal(r.ID)
}

// SpeakerRef references a speaker by code, optionally expanded with the display name.
type SpeakerRef struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

func (r *SpeakerRef) Expanded() bool { return r.Name != "" }

func (r *SpeakerRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.Code)
	}
	type alias SpeakerRef
	return json.Unmarshal(data, (*alias)(r))
}

func (r SpeakerRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Code)
}

// QuestionRef references a question by id, optionally expanded with its prompt.
type QuestionRef struct {
	ID       int                `json:"id"`
	Question MultiLingualString `json:"question,omitempty"`
}

func (r *QuestionRef) Expanded() bool { return r.Question != nil }

func (r *QuestionRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		type alias QuestionRef
		return json.Unmarshal(data, (*alias)(r))
	}
	return json.Unmarshal(data, &r.ID)
}

func (r QuestionRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}

// AnswerRef references an answer by id, optionally expanded with the full record.
type AnswerRef struct {
	ID   int
	Full *Answer
}

func (r *AnswerRef) Expanded() bool { return r.Full != nil }

func (r *AnswerRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '{' {
		var full Answer
		if err := json.Unmarshal(data, &full); err != nil {
			return err
		}
		r.ID, r.Full = full.ID, &full
		return nil
	}
	return json.Unmarshal(data, &r.ID)
}

func (r AnswerRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.ID)
}
