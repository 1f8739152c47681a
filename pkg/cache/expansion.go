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

// Package cache holds the session-local expansion caches that back reference expansion in
// the upstream client. Wire data is immutable within a session, so entries never expire;
// they live until the process ends or the caller clears them.
package cache

import (
	"sync"

	"github.com/patrickmn/go-cache"

	"github.com/confops/rostrum/pkg/utils/pretty"
)

// Kind identifies one auxiliary entity cache.
type Kind string

const (
	KindTrack          Kind = "track"
	KindSubmissionType Kind = "submission-type"
	KindSpeaker        Kind = "speaker"
	KindAnswer         Kind = "answer"
	KindQuestion       Kind = "question"
	KindRoom           Kind = "room"
)

// Kinds lists every cache kind in a stable order.
var Kinds = []Kind{KindTrack, KindSubmissionType, KindSpeaker, KindAnswer, KindQuestion, KindRoom}

// Store is a write-through map per entity kind. Puts are exclusive, gets are shared, and
// puts of the same key are idempotent because wire data is immutable within a session.
type Store struct {
	mu           sync.RWMutex
	caches       map[Kind]*cache.Cache
	insertions   map[Kind][]string
	maxEntries   int
	prepopulate  bool
	prepopulated map[string]bool
	cm           *pretty.ChangeMonitor
}

type StoreOption func(*Store)

// WithMaxEntries sets a soft per-kind upper bound. On overflow the least-recently-inserted
// entries are dropped. Zero means unbounded.
func WithMaxEntries(n int) StoreOption {
	return func(s *Store) { s.maxEntries = n }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		caches:       map[Kind]*cache.Cache{},
		insertions:   map[Kind][]string{},
		prepopulate:  true,
		prepopulated: map[string]bool{},
		cm:           pretty.NewChangeMonitor(),
	}
	for _, kind := range Kinds {
		s.caches[kind] = cache.New(cache.NoExpiration, 0)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the cached entity for (kind, key), if present.
func (s *Store) Get(kind Kind, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caches[kind].Get(key)
}

// Put stores an entity under (kind, key). Concurrent puts of the same key converge: the
// last writer wins and all values are equivalent by the immutability invariant.
func (s *Store) Put(kind Kind, key string, entity any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.caches[kind]
	if _, exists := c.Get(key); !exists {
		s.insertions[kind] = append(s.insertions[kind], key)
		if s.maxEntries > 0 && len(s.insertions[kind]) > s.maxEntries {
			oldest := s.insertions[kind][0]
			s.insertions[kind] = s.insertions[kind][1:]
			c.Delete(oldest)
		}
	}
	c.SetDefault(key, entity)
}

// Len returns the number of entries cached for a kind.
func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caches[kind].ItemCount()
}

// Clear drops every entry of the given kind.
func (s *Store) Clear(kind Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.caches[kind].Flush()
	s.insertions[kind] = nil
}

// ClearAll drops every entry of every kind and forgets which events were pre-populated.
func (s *Store) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, kind := range Kinds {
		s.caches[kind].Flush()
		s.insertions[kind] = nil
	}
	s.prepopulated = map[string]bool{}
}

// SetPrepopulation enables or disables the bulk-fetch heuristic. Disable it when only a
// few records will be expanded.
func (s *Store) SetPrepopulation(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepopulate = enabled
}

// PrepopulationEnabled reports whether the bulk-fetch heuristic is active.
func (s *Store) PrepopulationEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prepopulate
}

// Prepopulated reports whether the caches were already bulk-filled for an event.
func (s *Store) Prepopulated(event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prepopulated[event]
}

// MarkPrepopulated records that the caches were bulk-filled for an event.
func (s *Store) MarkPrepopulated(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepopulated[event] = true
}

// Changed reports whether the entry count of a kind changed since the last call, used to
// keep bulk-fill logging quiet on refreshes that found nothing new.
func (s *Store) Changed(kind Kind) bool {
	return s.cm.HasChanged(string(kind), s.Len(kind))
}

// Lookup fetches and type-asserts a cached entity.
func Lookup[T any](s *Store, kind Kind, key string) (T, bool) {
	var zero T
	v, ok := s.Get(kind, key)
	if !ok {
		return zero, false
	}
	typed, ok := v.(T)
	if !ok {
		return zero, false
	}
	return typed, true
}
