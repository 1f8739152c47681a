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

package schedule

import (
	"sort"

	"github.com/samber/lo"
)

const (
	// popularityLevels discretizes normalized popularity so that near-equal talks
	// produce identical coefficients and the lexicographic weight gaps hold.
	popularityLevels = 50
	// coocLevels discretizes the co-vote counts before squaring.
	coocLevels = 20
	// sponsoredCoocFloor is injected for sponsored-talk pairs so they never run in
	// parallel with each other.
	sponsoredCoocFloor = 1.0
)

// Quantize snaps a normalized value onto a fixed number of levels.
func Quantize(v float64, levels int) float64 {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	return float64(int(v*float64(levels)+0.5)) / float64(levels)
}

// fitMatrix computes fit[t][r], quantized popularity times normalized room capacity.
// Putting popular talks into large rooms maximizes this tier.
func fitMatrix(inst Instance) [][]float64 {
	maxCapacity := lo.MaxBy(inst.Grid.Rooms, func(a, b Room) bool { return a.Capacity > b.Capacity }).Capacity
	fit := make([][]float64, len(inst.Talks))
	for t, talk := range inst.Talks {
		fit[t] = make([]float64, len(inst.Grid.Rooms))
		for r, room := range inst.Grid.Rooms {
			if maxCapacity == 0 {
				continue
			}
			fit[t][r] = Quantize(talk.Popularity, popularityLevels) * float64(room.Capacity) / float64(maxCapacity)
		}
	}
	return fit
}

// coocMatrix normalizes the raw co-vote counts, discretizes them, squares each level to
// emphasize strong pairs, zeroes the diagonal and injects the sponsored-pair floor.
func coocMatrix(inst Instance) [][]float64 {
	n := len(inst.Talks)
	cooc := make([][]float64, n)
	for i := range cooc {
		cooc[i] = make([]float64, n)
	}
	var max float64
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && inst.Covotes != nil && inst.Covotes[i][j] > max {
				max = inst.Covotes[i][j]
			}
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			if inst.Covotes != nil && max > 0 {
				level := Quantize(inst.Covotes[i][j]/max, coocLevels)
				cooc[i][j] = level * level
			}
			if inst.Talks[i].Sponsored && inst.Talks[j].Sponsored && cooc[i][j] < sponsoredCoocFloor {
				cooc[i][j] = sponsoredCoocFloor
			}
		}
	}
	return cooc
}

type prefEntry struct {
	Key   PrefKey
	Value int
}

// sortedPrefs orders the sparse preference map deterministically so the emitted model is
// byte-identical across runs.
func sortedPrefs(prefs map[PrefKey]int) []prefEntry {
	entries := make([]prefEntry, 0, len(prefs))
	for key, value := range prefs {
		if value != 0 {
			entries = append(entries, prefEntry{Key: key, Value: value})
		}
	}
	sort.Slice(entries, func(a, b int) bool {
		ka, kb := entries[a].Key, entries[b].Key
		if ka.Talk != kb.Talk {
			return ka.Talk < kb.Talk
		}
		if ka.Day != kb.Day {
			return ka.Day < kb.Day
		}
		if ka.Session != kb.Session {
			return ka.Session < kb.Session
		}
		if ka.Position != kb.Position {
			return ka.Position < kb.Position
		}
		return ka.Room < kb.Room
	})
	return entries
}
