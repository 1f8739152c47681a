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

package cache_test

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/confops/rostrum/pkg/apis/wire"
	"github.com/confops/rostrum/pkg/cache"
)

var store *cache.Store

var _ = BeforeEach(func() {
	store = cache.NewStore()
})

var _ = Describe("Store", func() {
	It("should be idempotent under repeated puts", func() {
		track := wire.Track{ID: 7, Name: wire.MultiLingualString{"en": "PyData: ML"}}
		store.Put(cache.KindTrack, "7", track)
		store.Put(cache.KindTrack, "7", track)

		got, ok := cache.Lookup[wire.Track](store, cache.KindTrack, "7")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(track))
		again, ok := cache.Lookup[wire.Track](store, cache.KindTrack, "7")
		Expect(ok).To(BeTrue())
		Expect(again).To(Equal(got))
		Expect(store.Len(cache.KindTrack)).To(Equal(1))
	})
	It("should miss on unknown keys and kinds", func() {
		_, ok := store.Get(cache.KindTrack, "999")
		Expect(ok).To(BeFalse())
		store.Put(cache.KindTrack, "7", wire.Track{ID: 7})
		_, ok = store.Get(cache.KindSubmissionType, "7")
		Expect(ok).To(BeFalse())
	})
	It("should clear a single kind without touching others", func() {
		store.Put(cache.KindTrack, "7", wire.Track{ID: 7})
		store.Put(cache.KindSpeaker, "SPKR01", wire.Speaker{Code: "SPKR01"})
		store.Clear(cache.KindTrack)

		Expect(store.Len(cache.KindTrack)).To(Equal(0))
		Expect(store.Len(cache.KindSpeaker)).To(Equal(1))
	})
	It("should forget pre-population marks on ClearAll", func() {
		store.MarkPrepopulated("ev")
		store.Put(cache.KindTrack, "7", wire.Track{ID: 7})
		store.ClearAll()

		Expect(store.Prepopulated("ev")).To(BeFalse())
		Expect(store.Len(cache.KindTrack)).To(Equal(0))
	})
	It("should drop least-recently-inserted entries past the soft cap", func() {
		capped := cache.NewStore(cache.WithMaxEntries(3))
		for i := 1; i <= 5; i++ {
			capped.Put(cache.KindAnswer, fmt.Sprint(i), wire.Answer{ID: i})
		}
		Expect(capped.Len(cache.KindAnswer)).To(Equal(3))
		_, ok := capped.Get(cache.KindAnswer, "1")
		Expect(ok).To(BeFalse())
		_, ok = capped.Get(cache.KindAnswer, "5")
		Expect(ok).To(BeTrue())
	})
	It("should converge under concurrent puts of the same key", func() {
		track := wire.Track{ID: 7, Name: wire.MultiLingualString{"en": "PyData: ML"}}
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				store.Put(cache.KindTrack, "7", track)
			}()
		}
		wg.Wait()
		got, ok := cache.Lookup[wire.Track](store, cache.KindTrack, "7")
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(track))
		Expect(store.Len(cache.KindTrack)).To(Equal(1))
	})
	It("should toggle the pre-population heuristic", func() {
		Expect(store.PrepopulationEnabled()).To(BeTrue())
		store.SetPrepopulation(false)
		Expect(store.PrepopulationEnabled()).To(BeFalse())
	})
})
