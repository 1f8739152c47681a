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

package pretty

import (
	"sync"

	"github.com/mitchellh/hashstructure/v2"
)

// ChangeMonitor is used to reduce logging noise by detecting whether some keyed value has
// changed since it was last observed.
type ChangeMonitor struct {
	mu     sync.Mutex
	hashes map[string]uint64
}

func NewChangeMonitor() *ChangeMonitor {
	return &ChangeMonitor{
		hashes: map[string]uint64{},
	}
}

// HasChanged hashes the value and compares it against the hash recorded under key, replacing
// it. It returns true on the first observation of a key.
func (c *ChangeMonitor) HasChanged(key string, value interface{}) bool {
	hash, err := hashstructure.Hash(value, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	if err != nil {
		// hashing only fails on unsupported kinds, treat it as changed
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	previous, ok := c.hashes[key]
	c.hashes[key] = hash
	return !ok || previous != hash
}
