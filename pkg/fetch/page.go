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

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

// page is the upstream's pagination envelope for list endpoints.
type page struct {
	Count    int               `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []json.RawMessage `json:"results"`
}

// TruncatedError reports that the upstream advertised more records than the cursor chain
// actually yielded.
type TruncatedError struct {
	Expected int
	Yielded  int
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("upstream truncated list: yielded %d of %d records", e.Yielded, e.Expected)
}

// Cursor is a lazy, pull-based iterator over a paginated list. Advancing it may issue
// further requests; elements are yielded in upstream order and each element is fully
// parsed before the consumer observes it. Restartability is weak: only the current
// in-memory page can be replayed.
type Cursor[T any] struct {
	fetcher   *Fetcher
	path      string
	count     int
	buffer    []json.RawMessage
	pos       int
	next      *string
	yielded   int
	dropped   int
	lenient   bool
	transform func(ctx context.Context, item *T) error
	done      bool
	err       error
}

// Count returns the total number of records the upstream advertised for the query.
func (c *Cursor[T]) Count() int { return c.count }

// SetTransform installs a hook applied to every element after parsing and before it is
// yielded. The upstream client uses this for reference expansion.
func (c *Cursor[T]) SetTransform(fn func(ctx context.Context, item *T) error) {
	c.transform = fn
}

// Next yields the next element. It returns ok=false when the cursor is exhausted or has
// failed; the terminal error, if any, is returned alongside and from Err.
func (c *Cursor[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if c.done {
		return zero, false, c.err
	}
	if err := ctx.Err(); err != nil {
		c.fail(fmt.Errorf("%w: %v", apierrors.ErrCancelled, err))
		return zero, false, c.err
	}
	for {
		for c.pos < len(c.buffer) {
			raw := c.buffer[c.pos]
			c.pos++
			var item T
			if err := json.Unmarshal(raw, &item); err != nil {
				wireErr := &apierrors.WireError{Path: fmt.Sprintf("%s#%d", c.path, c.yielded), Cause: err}
				if c.lenient {
					log.FromContext(ctx).Warnw("dropping malformed record", "path", c.path, "error", wireErr)
					c.dropped++
					continue
				}
				c.fail(wireErr)
				return zero, false, c.err
			}
			if c.transform != nil {
				if err := c.transform(ctx, &item); err != nil {
					c.fail(err)
					return zero, false, c.err
				}
			}
			c.yielded++
			return item, true, nil
		}
		if c.next == nil {
			c.done = true
			// lenient drops count toward the advertised total, upstream truncation
			// does not
			if c.yielded+c.dropped < c.count {
				c.err = &TruncatedError{Expected: c.count, Yielded: c.yielded}
			}
			return zero, false, c.err
		}
		raw, err := c.fetcher.GetURL(ctx, *c.next)
		if err != nil {
			c.fail(err)
			return zero, false, c.err
		}
		var pg page
		if err := json.Unmarshal(raw, &pg); err != nil {
			c.fail(&apierrors.WireError{Path: c.path, Cause: err})
			return zero, false, c.err
		}
		c.buffer, c.pos, c.next = pg.Results, 0, pg.Next
	}
}

// Err returns the terminal error of an exhausted cursor, if any.
func (c *Cursor[T]) Err() error { return c.err }

// Materialize drains the cursor and returns all remaining elements.
func (c *Cursor[T]) Materialize(ctx context.Context) ([]T, error) {
	var out []T
	for {
		item, ok, err := c.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, item)
	}
}

func (c *Cursor[T]) fail(err error) {
	c.done = true
	c.err = err
}

// GetPaged issues the first request of a list query and returns the advertised count
// together with a lazy cursor over all pages. Endpoints that answer with a bare JSON
// array instead of the pagination envelope are normalized to a single-page cursor.
func GetPaged[T any](ctx context.Context, f *Fetcher, path string, params url.Values, lenient bool) (int, *Cursor[T], error) {
	raw, err := f.GetRaw(ctx, path, params)
	if err != nil {
		return 0, nil, err
	}
	cursor := &Cursor[T]{fetcher: f, path: path, lenient: lenient}
	if len(raw) > 0 && raw[0] == '[' {
		var results []json.RawMessage
		if err := json.Unmarshal(raw, &results); err != nil {
			return 0, nil, &apierrors.WireError{Path: path, Cause: err}
		}
		cursor.count, cursor.buffer = len(results), results
		return cursor.count, cursor, nil
	}
	var pg page
	if err := json.Unmarshal(raw, &pg); err != nil {
		return 0, nil, &apierrors.WireError{Path: path, Cause: err}
	}
	cursor.count, cursor.buffer, cursor.next = pg.Count, pg.Results, pg.Next
	return pg.Count, cursor, nil
}

// GetOne issues a detail request and parses the response as a single resource.
func GetOne[T any](ctx context.Context, f *Fetcher, path string, params url.Values) (T, error) {
	var out T
	raw, err := f.GetRaw(ctx, path, params)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, &apierrors.WireError{Path: path, Cause: err}
	}
	return out, nil
}
