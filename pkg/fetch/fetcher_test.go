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

package fetch_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/samber/lo"
	"golang.org/x/time/rate"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/fetch"
)

type record struct {
	Code     string `json:"code"`
	Duration int    `json:"duration"`
}

var _ = Describe("Fetcher", func() {
	It("should send auth, version and accept headers on every request", func() {
		upstream.SetDetail("/api/me/", map[string]string{"name": "chair", "email": "chair@example.org"})
		_, err := fetcher.GetRaw(ctx, "/api/me/", nil)
		Expect(err).ToNot(HaveOccurred())

		headers := upstream.Headers()
		Expect(headers).To(HaveLen(1))
		Expect(headers[0].Get("Authorization")).To(Equal("Token test-token"))
		Expect(headers[0].Get(fetch.VersionHeader)).To(Equal("v1"))
		Expect(headers[0].Get("Accept")).To(Equal("application/json"))
	})
	It("should preserve the version header across trailing-slash redirects", func() {
		upstream.SetDetail("/api/me/", map[string]string{"name": "chair"})
		_, err := fetcher.GetRaw(ctx, "/api/me", nil)
		Expect(err).ToNot(HaveOccurred())

		headers := upstream.Headers()
		Expect(headers).To(HaveLen(2))
		Expect(headers[1].Get("Authorization")).To(Equal("Token test-token"))
		Expect(headers[1].Get(fetch.VersionHeader)).To(Equal("v1"))
	})
	It("should retry 5xx responses and eventually succeed", func() {
		upstream.SetDetail("/api/me/", map[string]string{"name": "chair"})
		upstream.FailTimes("/api/me/", http.StatusInternalServerError, 2)
		_, err := fetcher.GetRaw(ctx, "/api/me/", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(upstream.RequestCount("/api/me/")).To(Equal(3))
	})
	It("should surface UpstreamUnavailable on persistent 5xx", func() {
		upstream.SetStatus("/api/me/", http.StatusBadGateway)
		_, err := fetcher.GetRaw(ctx, "/api/me/", nil)
		Expect(apierrors.IsUnavailable(err)).To(BeTrue())
		Expect(upstream.RequestCount("/api/me/")).To(Equal(3))
	})
	It("should retry 429 responses", func() {
		upstream.SetDetail("/api/me/", map[string]string{"name": "chair"})
		upstream.FailTimes("/api/me/", http.StatusTooManyRequests, 1)
		_, err := fetcher.GetRaw(ctx, "/api/me/", nil)
		Expect(err).ToNot(HaveOccurred())
		Expect(upstream.RequestCount("/api/me/")).To(Equal(2))
	})
	It("should take a token bucket slot for every attempt, retries included", func() {
		upstream.SetDetail("/api/me/", map[string]string{"name": "chair"})
		upstream.FailTimes("/api/me/", http.StatusBadGateway, 2)
		limited, err := fetch.New(upstream.Server.URL, "test-token",
			fetch.WithRateLimit(rate.Every(time.Hour), 2))
		Expect(err).ToNot(HaveOccurred())

		// two tokens cover two attempts; the third would have to wait an hour, which
		// the deadline cannot absorb
		bounded, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, err = limited.GetRaw(bounded, "/api/me/", nil)
		Expect(apierrors.IsCancelled(err)).To(BeTrue())
		Expect(upstream.RequestCount("/api/me/")).To(Equal(2))
	})
	It("should fail immediately on non-retryable 4xx", func() {
		upstream.SetStatus("/api/events/ev/reviews/", http.StatusForbidden)
		_, err := fetcher.GetRaw(ctx, "/api/events/ev/reviews/", nil)
		Expect(apierrors.IsUnauthorized(err)).To(BeTrue())
		Expect(upstream.RequestCount("/api/events/ev/reviews/")).To(Equal(1))
	})
	It("should classify 404 on a detail endpoint as NotFound", func() {
		_, err := fetcher.GetRaw(ctx, "/api/events/ev/submissions/NOPE/", nil)
		Expect(apierrors.IsNotFound(err)).To(BeTrue())
	})
})

var _ = Describe("Pagination", func() {
	It("should issue a single request when next is null on the first page", func() {
		upstream.SetList("/api/events/ev/submissions/",
			record{Code: "A", Duration: 30},
			record{Code: "B", Duration: 45},
		)
		count, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(2))

		items, err := cursor.Materialize(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(items).To(Equal([]record{{Code: "A", Duration: 30}, {Code: "B", Duration: 45}}))
		Expect(upstream.RequestCount("/api/events/ev/submissions/")).To(Equal(1))
	})
	It("should yield exactly count records across ceil(count/page_size) requests in upstream order", func() {
		items := lo.Times(7, func(i int) any { return record{Code: string(rune('A' + i)), Duration: 30} })
		upstream.SetPageSize(3)
		upstream.SetList("/api/events/ev/submissions/", items...)

		count, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(7))

		got, err := cursor.Materialize(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.Map(got, func(r record, _ int) string { return r.Code })).To(Equal([]string{"A", "B", "C", "D", "E", "F", "G"}))
		Expect(upstream.RequestCount("/api/events/ev/submissions/")).To(Equal(3))
	})
	It("should only fetch the next page when the cursor is advanced past the buffer", func() {
		items := lo.Times(4, func(i int) any { return record{Code: string(rune('A' + i))} })
		upstream.SetPageSize(2)
		upstream.SetList("/api/events/ev/submissions/", items...)

		_, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(upstream.RequestCount("/api/events/ev/submissions/")).To(Equal(1))

		_, ok, err := cursor.Next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		_, ok, err = cursor.Next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(upstream.RequestCount("/api/events/ev/submissions/")).To(Equal(1))

		_, ok, err = cursor.Next(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(upstream.RequestCount("/api/events/ev/submissions/")).To(Equal(2))
	})
	It("should surface a truncated cursor chain", func() {
		upstream.SetList("/api/events/ev/submissions/", record{Code: "A"})
		upstream.SetCountOverride("/api/events/ev/submissions/", 5)

		count, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())
		Expect(count).To(Equal(5))

		_, err = cursor.Materialize(ctx)
		truncated := &fetch.TruncatedError{}
		Expect(errors.As(err, &truncated)).To(BeTrue())
		Expect(truncated.Expected).To(Equal(5))
		Expect(truncated.Yielded).To(Equal(1))
	})
	It("should terminate the cursor on a malformed element in strict mode", func() {
		upstream.SetList("/api/events/ev/submissions/",
			record{Code: "A"},
			map[string]any{"code": "B", "duration": "not-a-number"},
		)
		_, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())

		_, ok, err := cursor.Next(ctx)
		Expect(ok).To(BeTrue())
		Expect(err).ToNot(HaveOccurred())
		_, ok, err = cursor.Next(ctx)
		Expect(ok).To(BeFalse())
		Expect(apierrors.IsWireError(err)).To(BeTrue())
	})
	It("should drop malformed elements in lenient mode", func() {
		upstream.SetList("/api/events/ev/submissions/",
			record{Code: "A"},
			map[string]any{"code": "B", "duration": "not-a-number"},
			record{Code: "C"},
		)
		_, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, true)
		Expect(err).ToNot(HaveOccurred())

		items, err := cursor.Materialize(ctx)
		Expect(err).ToNot(HaveOccurred())
		Expect(lo.Map(items, func(r record, _ int) string { return r.Code })).To(Equal([]string{"A", "C"}))
	})
	It("should still surface upstream truncation when lenient mode drops records", func() {
		upstream.SetList("/api/events/ev/submissions/",
			record{Code: "A"},
			map[string]any{"code": "B", "duration": "not-a-number"},
			record{Code: "C"},
		)
		upstream.SetCountOverride("/api/events/ev/submissions/", 4)

		_, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, true)
		Expect(err).ToNot(HaveOccurred())

		_, err = cursor.Materialize(ctx)
		truncated := &fetch.TruncatedError{}
		Expect(errors.As(err, &truncated)).To(BeTrue())
		Expect(truncated.Expected).To(Equal(4))
		Expect(truncated.Yielded).To(Equal(2))
	})
	It("should check cancellation before yielding each element", func() {
		upstream.SetList("/api/events/ev/submissions/", record{Code: "A"}, record{Code: "B"})
		_, cursor, err := fetch.GetPaged[record](ctx, fetcher, "/api/events/ev/submissions/", nil, false)
		Expect(err).ToNot(HaveOccurred())

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, ok, err := cursor.Next(cancelled)
		Expect(ok).To(BeFalse())
		Expect(apierrors.IsCancelled(err)).To(BeTrue())
	})
})
