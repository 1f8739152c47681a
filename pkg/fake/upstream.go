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

// Package fake provides an in-process upstream API double with the real pagination
// envelope, usable from any suite without network access.
package fake

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
)

// Upstream is a configurable fake of the conference-management API. Register list and
// detail payloads per path, then point a Fetcher at Server.URL.
type Upstream struct {
	Server *httptest.Server

	mu        sync.Mutex
	pageSize  int
	lists     map[string][]json.RawMessage
	details   map[string]json.RawMessage
	statuses  map[string]int
	transient map[string]*transientFailure
	counts    map[string]int
	requests  []string
	headers   []http.Header
	posts     map[string]json.RawMessage
}

type transientFailure struct {
	code      int
	remaining int
}

func NewUpstream() *Upstream {
	u := &Upstream{
		pageSize:  50,
		lists:     map[string][]json.RawMessage{},
		details:   map[string]json.RawMessage{},
		statuses:  map[string]int{},
		transient: map[string]*transientFailure{},
		counts:    map[string]int{},
		posts:     map[string]json.RawMessage{},
	}
	u.Server = httptest.NewServer(http.HandlerFunc(u.handle))
	return u
}

func (u *Upstream) Close() { u.Server.Close() }

// SetPageSize controls how many results each list page carries.
func (u *Upstream) SetPageSize(n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.pageSize = n
}

// SetList registers the full result set served by a list path, e.g.
// "/api/events/ev/submissions/".
func (u *Upstream) SetList(path string, items ...any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	raw := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		raw = append(raw, mustMarshal(item))
	}
	u.lists[path] = raw
}

// SetDetail registers a single resource served by a detail path.
func (u *Upstream) SetDetail(path string, item any) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.details[path] = mustMarshal(item)
}

// SetStatus forces a status code for a path, overriding any registered payload.
func (u *Upstream) SetStatus(path string, code int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statuses[path] = code
}

// FailTimes forces a status code for the next n requests to a path, then serves the
// registered payload again. Used to exercise retry behavior.
func (u *Upstream) FailTimes(path string, code int, n int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.transient[path] = &transientFailure{code: code, remaining: n}
}

// SetCountOverride forces the advertised count of a list path, regardless of how many
// results are actually served.
func (u *Upstream) SetCountOverride(path string, count int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.counts[path] = count
}

// Headers returns the request headers observed, aligned with Requests.
func (u *Upstream) Headers() []http.Header {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]http.Header{}, u.headers...)
}

// Requests returns the log of observed requests as "METHOD path".
func (u *Upstream) Requests() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string{}, u.requests...)
}

// RequestCount counts observed requests whose path starts with the given prefix.
func (u *Upstream) RequestCount(prefix string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	count := 0
	for _, r := range u.requests {
		if strings.HasPrefix(strings.TrimPrefix(r, "GET "), prefix) || strings.HasPrefix(strings.TrimPrefix(r, "POST "), prefix) {
			count++
		}
	}
	return count
}

// LastPost returns the body of the last POST observed on a path.
func (u *Upstream) LastPost(path string) json.RawMessage {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.posts[path]
}

// Reset clears all registered payloads and the request log.
func (u *Upstream) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.lists = map[string][]json.RawMessage{}
	u.details = map[string]json.RawMessage{}
	u.statuses = map[string]int{}
	u.transient = map[string]*transientFailure{}
	u.counts = map[string]int{}
	u.posts = map[string]json.RawMessage{}
	u.requests = nil
	u.headers = nil
}

func (u *Upstream) handle(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.requests = append(u.requests, r.Method+" "+r.URL.Path)
	u.headers = append(u.headers, r.Header.Clone())

	if failure, ok := u.transient[r.URL.Path]; ok && failure.remaining > 0 {
		failure.remaining--
		w.WriteHeader(failure.code)
		fmt.Fprintf(w, `{"detail": "transient status %d"}`, failure.code)
		return
	}
	if code, ok := u.statuses[r.URL.Path]; ok {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"detail": "forced status %d"}`, code)
		return
	}
	if r.Method == http.MethodPost {
		body := json.RawMessage{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		u.posts[r.URL.Path] = body
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
		return
	}
	if detail, ok := u.details[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(detail)
		return
	}
	if items, ok := u.lists[r.URL.Path]; ok {
		u.writePage(w, r, items)
		return
	}
	// trailing-slash redirect, as the real upstream does
	if !strings.HasSuffix(r.URL.Path, "/") {
		redirected := r.URL.Path + "/"
		if _, ok := u.details[redirected]; ok {
			http.Redirect(w, r, redirected, http.StatusMovedPermanently)
			return
		}
		if _, ok := u.lists[redirected]; ok {
			http.Redirect(w, r, redirected+"?"+r.URL.RawQuery, http.StatusMovedPermanently)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
	fmt.Fprint(w, `{"detail": "not found"}`)
}

func (u *Upstream) writePage(w http.ResponseWriter, r *http.Request, items []json.RawMessage) {
	pageNum := 1
	if p := r.URL.Query().Get("page"); p != "" {
		if n, err := strconv.Atoi(p); err == nil && n > 0 {
			pageNum = n
		}
	}
	start := (pageNum - 1) * u.pageSize
	end := start + u.pageSize
	if start > len(items) {
		start = len(items)
	}
	if end > len(items) {
		end = len(items)
	}
	var next *string
	if end < len(items) {
		q := r.URL.Query()
		q.Set("page", strconv.Itoa(pageNum+1))
		nextURL := u.Server.URL + r.URL.Path + "?" + q.Encode()
		next = &nextURL
	}
	count := len(items)
	if override, ok := u.counts[r.URL.Path]; ok {
		count = override
	}
	envelope := map[string]any{
		"count":    count,
		"next":     next,
		"previous": nil,
		"results":  items[start:end],
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(envelope)
}

func mustMarshal(item any) json.RawMessage {
	raw, err := json.Marshal(item)
	if err != nil {
		panic(err)
	}
	return raw
}

