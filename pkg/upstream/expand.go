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

package upstream

import (
	"context"
	"net/url"
	"strconv"
	"sync"

	"go.uber.org/multierr"

	"github.com/confops/rostrum/pkg/apis/wire"
	"github.com/confops/rostrum/pkg/cache"
	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

// expandSubmission materializes every identifier reference on a submission from the
// caches, falling back to a single detail fetch per miss.
func (c *Client) expandSubmission(ctx context.Context, event string, sub *wire.Submission) error {
	if sub.Track != nil && !sub.Track.Expanded() {
		track, err := c.resolveTrack(ctx, event, sub.Track.ID)
		if err != nil {
			return err
		}
		sub.Track.Name = track.Name
	}
	if sub.SubmissionType.ID != 0 && !sub.SubmissionType.Expanded() {
		st, err := c.resolveSubmissionType(ctx, event, sub.SubmissionType.ID)
		if err != nil {
			return err
		}
		sub.SubmissionType.Name = st.Name
	}
	for i := range sub.Speakers {
		if sub.Speakers[i].Expanded() {
			continue
		}
		speaker, err := c.resolveSpeaker(ctx, event, sub.Speakers[i].Code)
		if err != nil {
			return err
		}
		sub.Speakers[i].Name = speaker.Name
	}
	return c.expandAnswers(ctx, event, sub.Answers)
}

// expandSpeaker materializes answer references on a speaker record.
func (c *Client) expandSpeaker(ctx context.Context, event string, speaker *wire.Speaker) error {
	return c.expandAnswers(ctx, event, speaker.Answers)
}

func (c *Client) resolveTrack(ctx context.Context, event string, id int) (wire.Track, error) {
	key := strconv.Itoa(id)
	if track, ok := cache.Lookup[wire.Track](c.store, cache.KindTrack, key); ok {
		return track, nil
	}
	track, err := c.Track(ctx, event, id, nil)
	if err != nil {
		return wire.Track{}, err
	}
	c.store.Put(cache.KindTrack, key, track)
	return track, nil
}

func (c *Client) resolveSubmissionType(ctx context.Context, event string, id int) (wire.SubmissionType, error) {
	key := strconv.Itoa(id)
	if st, ok := cache.Lookup[wire.SubmissionType](c.store, cache.KindSubmissionType, key); ok {
		return st, nil
	}
	st, err := c.SubmissionType(ctx, event, id, nil)
	if err != nil {
		return wire.SubmissionType{}, err
	}
	c.store.Put(cache.KindSubmissionType, key, st)
	return st, nil
}

func (c *Client) resolveSpeaker(ctx context.Context, event, code string) (wire.Speaker, error) {
	if speaker, ok := cache.Lookup[wire.Speaker](c.store, cache.KindSpeaker, code); ok {
		return speaker, nil
	}
	speaker, err := detail[wire.Speaker](ctx, c, event, "speakers", code, nil)
	if err != nil {
		return wire.Speaker{}, err
	}
	c.store.Put(cache.KindSpeaker, code, speaker)
	return speaker, nil
}

// expandAnswers resolves answer references in place. Answer details require privileged
// credentials; the first authorization failure disables further answer expansion for the
// session instead of failing every record.
func (c *Client) expandAnswers(ctx context.Context, event string, refs []wire.AnswerRef) error {
	for i := range refs {
		if refs[i].Expanded() || c.answersDenied() {
			continue
		}
		key := strconv.Itoa(refs[i].ID)
		if answer, ok := cache.Lookup[wire.Answer](c.store, cache.KindAnswer, key); ok {
			refs[i].Full = &answer
			continue
		}
		answer, err := c.Answer(ctx, event, refs[i].ID, nil)
		if err != nil {
			if apierrors.IsUnauthorized(err) {
				c.denyAnswers(ctx)
				continue
			}
			return err
		}
		c.store.Put(cache.KindAnswer, key, answer)
		refs[i].Full = &answer
	}
	return nil
}

func (c *Client) answersDenied() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.noAnswerAccess
}

func (c *Client) denyAnswers(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.noAnswerAccess {
		log.FromContext(ctx).Warnw("credential lacks access to answers, skipping answer expansion for this session")
		c.noAnswerAccess = true
	}
}

// maybePrepopulate bulk-fills the speaker, submission-type and track caches in parallel
// before the first record of an event is expanded. One list request per kind replaces a
// detail request per distinct reference. Answers are included when the first record shows
// unexpanded answer references. Bounded queries skip the bulk fill since a handful of
// detail fetches is cheaper.
func (c *Client) maybePrepopulate(ctx context.Context, event string, withAnswers bool, params url.Values) {
	if !c.store.PrepopulationEnabled() || c.store.Prepopulated(event) {
		return
	}
	if bounded(params, c.prepopulateMin) {
		return
	}
	// Mark first so the bulk list fetches below do not recurse into another fill.
	c.store.MarkPrepopulated(event)

	fills := []struct {
		kind cache.Kind
		fill func(context.Context) (int, error)
	}{
		{cache.KindSpeaker, func(ctx context.Context) (int, error) { return c.fillSpeakers(ctx, event) }},
		{cache.KindSubmissionType, func(ctx context.Context) (int, error) { return c.fillSubmissionTypes(ctx, event) }},
		{cache.KindTrack, func(ctx context.Context) (int, error) { return c.fillTracks(ctx, event) }},
	}
	if withAnswers && !c.answersDenied() {
		fills = append(fills, struct {
			kind cache.Kind
			fill func(context.Context) (int, error)
		}{cache.KindAnswer, func(ctx context.Context) (int, error) { return c.fillAnswers(ctx, event) }})
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var errs error
	counts := map[cache.Kind]int{}
	for _, f := range fills {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := f.fill(ctx)
			mu.Lock()
			defer mu.Unlock()
			counts[f.kind] = n
			errs = multierr.Append(errs, err)
		}()
	}
	wg.Wait()

	if errs != nil {
		// A failed fill is not fatal, misses fall back to detail fetches.
		log.FromContext(ctx).Warnw("pre-populating expansion caches failed, falling back to detail fetches", "event", event, "error", errs)
	}
	if c.store.Changed(cache.KindSpeaker) || c.store.Changed(cache.KindTrack) {
		log.FromContext(ctx).Infow("pre-populated expansion caches", "event", event,
			"speakers", counts[cache.KindSpeaker], "submission-types", counts[cache.KindSubmissionType],
			"tracks", counts[cache.KindTrack], "answers", counts[cache.KindAnswer])
	}
}

func (c *Client) fillSpeakers(ctx context.Context, event string) (int, error) {
	_, cursor, err := list[wire.Speaker](ctx, c, event, "speakers", nil)
	if err != nil {
		return 0, err
	}
	speakers, err := cursor.Materialize(ctx)
	if err != nil {
		return 0, err
	}
	for _, speaker := range speakers {
		c.store.Put(cache.KindSpeaker, speaker.Code, speaker)
	}
	return len(speakers), nil
}

func (c *Client) fillSubmissionTypes(ctx context.Context, event string) (int, error) {
	_, cursor, err := list[wire.SubmissionType](ctx, c, event, "submission-types", nil)
	if err != nil {
		return 0, err
	}
	types, err := cursor.Materialize(ctx)
	if err != nil {
		return 0, err
	}
	for _, st := range types {
		c.store.Put(cache.KindSubmissionType, strconv.Itoa(st.ID), st)
	}
	return len(types), nil
}

func (c *Client) fillTracks(ctx context.Context, event string) (int, error) {
	_, cursor, err := list[wire.Track](ctx, c, event, "tracks", nil)
	if err != nil {
		return 0, err
	}
	tracks, err := cursor.Materialize(ctx)
	if err != nil {
		return 0, err
	}
	for _, track := range tracks {
		c.store.Put(cache.KindTrack, strconv.Itoa(track.ID), track)
	}
	return len(tracks), nil
}

func (c *Client) fillAnswers(ctx context.Context, event string) (int, error) {
	_, cursor, err := list[wire.Answer](ctx, c, event, "answers", nil)
	if err != nil {
		if apierrors.IsUnauthorized(err) {
			c.denyAnswers(ctx)
			return 0, nil
		}
		return 0, err
	}
	answers, err := cursor.Materialize(ctx)
	if err != nil {
		return 0, err
	}
	for _, answer := range answers {
		c.store.Put(cache.KindAnswer, strconv.Itoa(answer.ID), answer)
	}
	return len(answers), nil
}

// bounded reports whether the query carries an explicit record bound below the
// pre-population threshold.
func bounded(params url.Values, min int) bool {
	for _, key := range []string{"limit", "page_size"} {
		if v := params.Get(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n < min {
				return true
			}
		}
	}
	return false
}
