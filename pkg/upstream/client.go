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

// Package upstream is the endpoint-level facade over the fetcher and the expansion
// caches. It mirrors the upstream API surface and transparently reconstructs the nested
// object view that newer wire versions replaced with identifier references.
package upstream

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/confops/rostrum/pkg/apis/wire"
	"github.com/confops/rostrum/pkg/cache"
	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/fetch"
	"github.com/confops/rostrum/pkg/utils/log"
)

const (
	// Queries bounded below this many records skip cache pre-population; a handful of
	// detail fetches is cheaper than three full list requests.
	defaultPrepopulateMin = 10
)

// Client exposes one list and one detail method per upstream resource. Query parameters
// are passed through verbatim so callers can use server-side filters such as
// state=accepted or questions=all.
type Client struct {
	fetcher        *fetch.Fetcher
	store          *cache.Store
	lenient        bool
	prepopulateMin int

	mu             sync.Mutex
	talksAlias     bool
	noAnswerAccess bool
}

type Option func(*Client)

// WithLenient makes list cursors drop malformed records with a warning instead of
// terminating with a WireError.
func WithLenient() Option {
	return func(c *Client) { c.lenient = true }
}

// WithStore supplies a shared expansion cache store.
func WithStore(store *cache.Store) Option {
	return func(c *Client) { c.store = store }
}

// WithPrepopulateMin overrides the bounded-query threshold of the pre-population
// heuristic.
func WithPrepopulateMin(n int) Option {
	return func(c *Client) { c.prepopulateMin = n }
}

func NewClient(fetcher *fetch.Fetcher, opts ...Option) *Client {
	c := &Client{
		fetcher:        fetcher,
		prepopulateMin: defaultPrepopulateMin,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = cache.NewStore()
	}
	return c
}

// Store returns the expansion cache store backing this client.
func (c *Client) Store() *cache.Store { return c.store }

// TalksAliased reports whether the talks endpoint 404ed and was served through the
// submissions fallback.
func (c *Client) TalksAliased() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.talksAlias
}

func (c *Client) recordTalksAlias() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.talksAlias = true
}

func listPath(event, resource string) string {
	return fmt.Sprintf("/api/events/%s/%s/", event, resource)
}

func detailPath(event, resource string, id string) string {
	return fmt.Sprintf("/api/events/%s/%s/%s/", event, resource, id)
}

func list[T any](ctx context.Context, c *Client, event, resource string, params url.Values) (int, *fetch.Cursor[T], error) {
	return fetch.GetPaged[T](ctx, c.fetcher, listPath(event, resource), params, c.lenient)
}

func detail[T any](ctx context.Context, c *Client, event, resource, id string, params url.Values) (T, error) {
	return fetch.GetOne[T](ctx, c.fetcher, detailPath(event, resource, id), params)
}

// Me returns the authenticated user profile.
func (c *Client) Me(ctx context.Context) (wire.Me, error) {
	return fetch.GetOne[wire.Me](ctx, c.fetcher, "/api/me/", nil)
}

// Events lists all events visible to the credential.
func (c *Client) Events(ctx context.Context, params url.Values) (int, *fetch.Cursor[wire.Event], error) {
	return fetch.GetPaged[wire.Event](ctx, c.fetcher, "/api/events/", params, c.lenient)
}

// Event returns a single event.
func (c *Client) Event(ctx context.Context, slug string, params url.Values) (wire.Event, error) {
	return fetch.GetOne[wire.Event](ctx, c.fetcher, fmt.Sprintf("/api/events/%s/", slug), params)
}

// Submissions lists all submissions with transparent reference expansion.
func (c *Client) Submissions(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Submission], error) {
	count, cursor, err := list[wire.Submission](ctx, c, event, "submissions", params)
	if err != nil {
		return 0, nil, err
	}
	cursor.SetTransform(func(ctx context.Context, sub *wire.Submission) error {
		c.maybePrepopulate(ctx, event, submissionHasAnswerRefs(sub), params)
		return c.expandSubmission(ctx, event, sub)
	})
	return count, cursor, nil
}

// Submission returns a single submission with transparent reference expansion.
func (c *Client) Submission(ctx context.Context, event, code string, params url.Values) (wire.Submission, error) {
	sub, err := detail[wire.Submission](ctx, c, event, "submissions", code, params)
	if err != nil {
		return wire.Submission{}, err
	}
	if err := c.expandSubmission(ctx, event, &sub); err != nil {
		return wire.Submission{}, err
	}
	return sub, nil
}

// Talks lists accepted and confirmed submissions. The historical talks endpoint is
// attempted first; on 404 the client falls back to submissions with an equivalent state
// filter and records the alias.
func (c *Client) Talks(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Talk], error) {
	count, cursor, err := list[wire.Talk](ctx, c, event, "talks", params)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return 0, nil, err
		}
		log.FromContext(ctx).Infow("talks endpoint not available, using submissions endpoint", "event", event)
		c.recordTalksAlias()
		count, cursor, err = list[wire.Talk](ctx, c, event, "submissions", withStateFilter(params))
		if err != nil {
			return 0, nil, err
		}
	}
	cursor.SetTransform(func(ctx context.Context, talk *wire.Talk) error {
		c.maybePrepopulate(ctx, event, submissionHasAnswerRefs(talk), params)
		return c.expandSubmission(ctx, event, talk)
	})
	return count, cursor, nil
}

// Talk returns a single talk, falling back to the submissions endpoint on 404.
func (c *Client) Talk(ctx context.Context, event, code string, params url.Values) (wire.Talk, error) {
	talk, err := detail[wire.Talk](ctx, c, event, "talks", code, params)
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return wire.Talk{}, err
		}
		log.FromContext(ctx).Infow("talk endpoint not available, using submission endpoint", "event", event, "code", code)
		c.recordTalksAlias()
		talk, err = detail[wire.Talk](ctx, c, event, "submissions", code, params)
		if err != nil {
			return wire.Talk{}, err
		}
	}
	if err := c.expandSubmission(ctx, event, &talk); err != nil {
		return wire.Talk{}, err
	}
	return talk, nil
}

// Speakers lists all speakers with transparent answer expansion.
func (c *Client) Speakers(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Speaker], error) {
	count, cursor, err := list[wire.Speaker](ctx, c, event, "speakers", params)
	if err != nil {
		return 0, nil, err
	}
	cursor.SetTransform(func(ctx context.Context, speaker *wire.Speaker) error {
		return c.expandSpeaker(ctx, event, speaker)
	})
	return count, cursor, nil
}

// Speaker returns a single speaker with transparent answer expansion.
func (c *Client) Speaker(ctx context.Context, event, code string, params url.Values) (wire.Speaker, error) {
	speaker, err := detail[wire.Speaker](ctx, c, event, "speakers", code, params)
	if err != nil {
		return wire.Speaker{}, err
	}
	if err := c.expandSpeaker(ctx, event, &speaker); err != nil {
		return wire.Speaker{}, err
	}
	return speaker, nil
}

// Reviews lists all reviews. Requires privileged credentials.
func (c *Client) Reviews(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Review], error) {
	return list[wire.Review](ctx, c, event, "reviews", params)
}

// Review returns a single review.
func (c *Client) Review(ctx context.Context, event string, id int, params url.Values) (wire.Review, error) {
	return detail[wire.Review](ctx, c, event, "reviews", strconv.Itoa(id), params)
}

// Rooms lists all rooms.
func (c *Client) Rooms(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Room], error) {
	return list[wire.Room](ctx, c, event, "rooms", params)
}

// Room returns a single room, write-through cached.
func (c *Client) Room(ctx context.Context, event string, id int, params url.Values) (wire.Room, error) {
	room, err := detail[wire.Room](ctx, c, event, "rooms", strconv.Itoa(id), params)
	if err != nil {
		return wire.Room{}, err
	}
	c.store.Put(cache.KindRoom, strconv.Itoa(room.ID), room)
	return room, nil
}

// Questions lists all questions.
func (c *Client) Questions(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Question], error) {
	return list[wire.Question](ctx, c, event, "questions", params)
}

// Question returns a single question, write-through cached.
func (c *Client) Question(ctx context.Context, event string, id int, params url.Values) (wire.Question, error) {
	question, err := detail[wire.Question](ctx, c, event, "questions", strconv.Itoa(id), params)
	if err != nil {
		return wire.Question{}, err
	}
	c.store.Put(cache.KindQuestion, strconv.Itoa(question.ID), question)
	return question, nil
}

// Answers lists all answers. Requires privileged credentials.
func (c *Client) Answers(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Answer], error) {
	return list[wire.Answer](ctx, c, event, "answers", params)
}

// Answer returns a single answer.
func (c *Client) Answer(ctx context.Context, event string, id int, params url.Values) (wire.Answer, error) {
	return detail[wire.Answer](ctx, c, event, "answers", strconv.Itoa(id), params)
}

// Tags lists all tags.
func (c *Client) Tags(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Tag], error) {
	return list[wire.Tag](ctx, c, event, "tags", params)
}

// Tag returns a single tag.
func (c *Client) Tag(ctx context.Context, event, tag string, params url.Values) (wire.Tag, error) {
	return detail[wire.Tag](ctx, c, event, "tags", tag, params)
}

// SubmissionTypes lists all submission types.
func (c *Client) SubmissionTypes(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.SubmissionType], error) {
	return list[wire.SubmissionType](ctx, c, event, "submission-types", params)
}

// SubmissionType returns a single submission type.
func (c *Client) SubmissionType(ctx context.Context, event string, id int, params url.Values) (wire.SubmissionType, error) {
	return detail[wire.SubmissionType](ctx, c, event, "submission-types", strconv.Itoa(id), params)
}

// Tracks lists all tracks.
func (c *Client) Tracks(ctx context.Context, event string, params url.Values) (int, *fetch.Cursor[wire.Track], error) {
	return list[wire.Track](ctx, c, event, "tracks", params)
}

// Track returns a single track.
func (c *Client) Track(ctx context.Context, event string, id int, params url.Values) (wire.Track, error) {
	return detail[wire.Track](ctx, c, event, "tracks", strconv.Itoa(id), params)
}

// UploadAssignments posts the reviewer assignment document verbatim to the bulk
// assignment endpoint.
func (c *Client) UploadAssignments(ctx context.Context, event string, doc any) error {
	return c.fetcher.PostJSON(ctx, listPath(event, "assign-reviews"), doc)
}

func withStateFilter(params url.Values) url.Values {
	merged := url.Values{}
	for k, vs := range params {
		merged[k] = append([]string{}, vs...)
	}
	merged["state"] = []string{string(wire.StateAccepted), string(wire.StateConfirmed)}
	return merged
}

func submissionHasAnswerRefs(sub *wire.Submission) bool {
	return len(sub.Answers) > 0 && !sub.Answers[0].Expanded()
}
