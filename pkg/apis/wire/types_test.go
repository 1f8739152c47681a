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

package wire_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/confops/rostrum/pkg/apis/wire"
)

var _ = Describe("MultiLingualString", func() {
	It("should decode the mapping form", func() {
		var m wire.MultiLingualString
		Expect(json.Unmarshal([]byte(`{"en":"Machine Learning","de":"Maschinelles Lernen"}`), &m)).To(Succeed())
		Expect(m.String()).To(Equal("Machine Learning"))
	})
	It("should decode the bare-string shorthand under the en key", func() {
		var m wire.MultiLingualString
		Expect(json.Unmarshal([]byte(`"Main Hall"`), &m)).To(Succeed())
		Expect(m).To(Equal(wire.MultiLingualString{"en": "Main Hall"}))
	})
	It("should compare structurally", func() {
		var a, b wire.MultiLingualString
		Expect(json.Unmarshal([]byte(`{"en":"X"}`), &a)).To(Succeed())
		Expect(json.Unmarshal([]byte(`{"en":"X"}`), &b)).To(Succeed())
		Expect(a).To(Equal(b))
	})
})

var _ = Describe("State", func() {
	It("should reject unknown discriminator values", func() {
		var s wire.State
		Expect(json.Unmarshal([]byte(`"pondering"`), &s)).ToNot(Succeed())
	})
	It("should accept every lifecycle state", func() {
		for _, raw := range []string{"submitted", "accepted", "confirmed", "rejected", "withdrawn", "canceled", "deleted"} {
			var s wire.State
			Expect(json.Unmarshal([]byte(`"`+raw+`"`), &s)).To(Succeed())
			Expect(string(s)).To(Equal(raw))
		}
	})
})

var _ = Describe("Score", func() {
	It("should decode numbers", func() {
		var s wire.Score
		Expect(json.Unmarshal([]byte(`2.5`), &s)).To(Succeed())
		Expect(float64(s)).To(Equal(2.5))
	})
	It("should decode decimal strings", func() {
		var s wire.Score
		Expect(json.Unmarshal([]byte(`"2.50"`), &s)).To(Succeed())
		Expect(float64(s)).To(Equal(2.5))
	})
})

var _ = Describe("Refs", func() {
	It("should decode identifier references", func() {
		var sub wire.Submission
		raw := `{
			"code": "ABCDEF",
			"title": "Probabilistic Programming",
			"submission_type": 3,
			"track": 7,
			"state": "submitted",
			"duration": 30,
			"speakers": ["SPKR01", "SPKR02"],
			"answers": [11, 12],
			"created": "2026-01-15T10:00:00Z"
		}`
		Expect(json.Unmarshal([]byte(raw), &sub)).To(Succeed())
		Expect(sub.Track.ID).To(Equal(7))
		Expect(sub.Track.Expanded()).To(BeFalse())
		Expect(sub.SubmissionType.ID).To(Equal(3))
		Expect(sub.Speakers).To(HaveLen(2))
		Expect(sub.Speakers[0].Code).To(Equal("SPKR01"))
		Expect(sub.Answers[1].ID).To(Equal(12))
	})
	It("should decode nested objects", func() {
		var sub wire.Submission
		raw := `{
			"code": "ABCDEF",
			"title": "Probabilistic Programming",
			"submission_type": {"id": 3, "name": {"en": "Talk"}},
			"track": {"id": 7, "name": {"en": "PyData: ML"}},
			"state": "accepted",
			"duration": 45,
			"speakers": [{"code": "SPKR01", "name": "Ada"}],
			"created": "2026-01-15T10:00:00Z"
		}`
		Expect(json.Unmarshal([]byte(raw), &sub)).To(Succeed())
		Expect(sub.Track.Expanded()).To(BeTrue())
		Expect(sub.Track.Name.String()).To(Equal("PyData: ML"))
		Expect(sub.SubmissionType.Name.String()).To(Equal("Talk"))
		Expect(sub.Speakers[0].Name).To(Equal("Ada"))
	})
	It("should decode the legacy bare-name track form", func() {
		var ref wire.TrackRef
		Expect(json.Unmarshal([]byte(`{"en":"PyCon: Web"}`), &ref)).To(Succeed())
		Expect(ref.ID).To(Equal(0))
		Expect(ref.Name.String()).To(Equal("PyCon: Web"))
	})
	It("should write identifier references back", func() {
		ref := wire.TrackRef{ID: 7, Name: wire.MultiLingualString{"en": "PyData: ML"}}
		out, err := json.Marshal(ref)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(out)).To(Equal("7"))

		speakers, err := json.Marshal([]wire.SpeakerRef{{Code: "SPKR01", Name: "Ada"}})
		Expect(err).ToNot(HaveOccurred())
		Expect(string(speakers)).To(Equal(`["SPKR01"]`))
	})
	It("should expand answer refs with the full record", func() {
		var ref wire.AnswerRef
		Expect(json.Unmarshal([]byte(`{"id": 11, "question": {"id": 4, "question": {"en": "Level?"}}, "answer": "advanced"}`), &ref)).To(Succeed())
		Expect(ref.ID).To(Equal(11))
		Expect(ref.Full).ToNot(BeNil())
		Expect(ref.Full.Question.Question.String()).To(Equal("Level?"))
	})
})
