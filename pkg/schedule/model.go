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

// Package schedule lays accepted talks out across days, sessions, slots and rooms by
// building a mixed-integer program, handing it to an external solver and reconstructing
// a timetable from the solution.
package schedule

import (
	"fmt"

	"github.com/samber/lo"
)

// Objective tier weights. The gaps are large enough to enforce lexicographic priority
// given the parameter discretization: preferences dominate capacity fit, which dominates
// co-vote dispersion, which dominates main-track and then sub-track cohesion.
const (
	weightPref = 1e8
	weightFit  = 1e6
	weightCooc = -1e4
	weightMain = -1e2
	weightSub  = -1
)

// Talk is one accepted proposal to place.
type Talk struct {
	Code       string
	Duration   int
	MainTrack  string
	SubTrack   string
	Popularity float64
	Sponsored  bool
	// PairedWith names the code of a talk that must directly follow this one in the
	// same room and session, used for multi-part tutorials.
	PairedWith string
}

// Room is a physical room with its audience capacity.
type Room struct {
	Name     string
	Capacity int
}

// Grid is the slot structure of the conference: days times sessions times positions
// times rooms. Lengths carries the slot duration in minutes, zero marks a slot that does
// not exist.
type Grid struct {
	Days      int
	Sessions  int
	Positions int
	Rooms     []Room
	Lengths   [][][][]int // [day][session][position][room]
}

// Length returns the slot duration, zero for slots outside the grid.
func (g Grid) Length(d, s, l, r int) int {
	if d < 0 || s < 0 || l < 0 || r < 0 {
		return 0
	}
	if d >= len(g.Lengths) || s >= len(g.Lengths[d]) || l >= len(g.Lengths[d][s]) || r >= len(g.Lengths[d][s][l]) {
		return 0
	}
	return g.Lengths[d][s][l][r]
}

// PrefKey addresses one (talk, slot) eligibility preference.
type PrefKey struct {
	Talk, Day, Session, Position, Room int
}

// Instance is the full optimizer input.
type Instance struct {
	Talks []Talk
	Grid  Grid
	// Prefs maps (talk, slot) to -1 (discouraged), +1 (preferred); absent keys are
	// neutral. Used for sponsored-room restrictions, keynote placement and buffer
	// slots.
	Prefs map[PrefKey]int
	// Covotes is the symmetric raw count of voters interested in both talks, indexed
	// like Talks. Nil disables the dispersion tier.
	Covotes [][]float64
}

// Variable name constructors. Names are stable; the solution loader parses them back.

func XVar(t, d, s, l, r int) string      { return fmt.Sprintf("x_t%d_d%d_s%d_l%d_r%d", t, d, s, l, r) }
func XRoomVar(t, r int) string           { return fmt.Sprintf("xroom_t%d_r%d", t, r) }
func XParVar(t, d, s, l int) string      { return fmt.Sprintf("xpar_t%d_d%d_s%d_l%d", t, d, s, l) }
func XSessVar(t, d, s, r int) string     { return fmt.Sprintf("xsess_t%d_d%d_s%d_r%d", t, d, s, r) }
func CoVar(t1, t2 int) string            { return fmt.Sprintf("co_t%d_t%d", t1, t2) }
func MainTrackVar(d, s, r, m int) string { return fmt.Sprintf("mt_d%d_s%d_r%d_m%d", d, s, r, m) }
func SubTrackVar(d, s, r, b int) string  { return fmt.Sprintf("st_d%d_s%d_r%d_b%d", d, s, r, b) }

// Build constructs the full model for an instance.
func Build(instance Instance) (*Model, error) {
	b := &builder{Model: NewModel("schedule"), instance: instance}
	if err := b.build(); err != nil {
		return nil, err
	}
	return b.Model, nil
}

type builder struct {
	*Model
	instance Instance
}

func (b *builder) build() error {
	inst := b.instance
	grid := inst.Grid
	for _, talk := range inst.Talks {
		if talk.Duration <= 0 {
			return fmt.Errorf("talk %s has non-positive duration %d", talk.Code, talk.Duration)
		}
	}

	fit := fitMatrix(inst)
	cooc := coocMatrix(inst)
	mains := lo.Uniq(lo.Map(inst.Talks, func(t Talk, _ int) string { return t.MainTrack }))
	subs := lo.Uniq(lo.Map(inst.Talks, func(t Talk, _ int) string { return t.SubTrack }))

	b.eachSlot(func(d, s, l, r int) {
		for t := range inst.Talks {
			b.Binary(XVar(t, d, s, l, r))
		}
	})

	// Aux variable definitions as equalities.
	for t := range inst.Talks {
		for r := range grid.Rooms {
			terms := []Term{{Coef: 1, Var: b.Binary(XRoomVar(t, r))}}
			b.eachSlotIn(r, func(d, s, l int) {
				terms = append(terms, Term{Coef: -1, Var: XVar(t, d, s, l, r)})
			})
			b.AddConstraint(fmt.Sprintf("def_xroom_t%d_r%d", t, r), terms, Equal, 0)
		}
	}
	for t := range inst.Talks {
		b.eachParallelGroup(func(d, s, l int) {
			terms := []Term{{Coef: 1, Var: b.Binary(XParVar(t, d, s, l))}}
			for r := range grid.Rooms {
				if grid.Length(d, s, l, r) > 0 {
					terms = append(terms, Term{Coef: -1, Var: XVar(t, d, s, l, r)})
				}
			}
			b.AddConstraint(fmt.Sprintf("def_xpar_t%d_d%d_s%d_l%d", t, d, s, l), terms, Equal, 0)
		})
	}
	for t := range inst.Talks {
		b.eachSession(func(d, s, r int) {
			terms := []Term{{Coef: 1, Var: b.Binary(XSessVar(t, d, s, r))}}
			for l := 0; l < grid.Positions; l++ {
				if grid.Length(d, s, l, r) > 0 {
					terms = append(terms, Term{Coef: -1, Var: XVar(t, d, s, l, r)})
				}
			}
			b.AddConstraint(fmt.Sprintf("def_xsess_t%d_d%d_s%d_r%d", t, d, s, r), terms, Equal, 0)
		})
	}

	// Constraint 1: the chosen slots' lengths sum to the talk length.
	for t, talk := range inst.Talks {
		var terms []Term
		b.eachSlot(func(d, s, l, r int) {
			terms = append(terms, Term{Coef: float64(grid.Length(d, s, l, r)), Var: XVar(t, d, s, l, r)})
		})
		b.AddConstraint(fmt.Sprintf("length_t%d", t), terms, Equal, float64(talk.Duration))
	}

	// Constraint 2: at most one talk per slot.
	b.eachSlot(func(d, s, l, r int) {
		terms := lo.Map(lo.Range(len(inst.Talks)), func(t int, _ int) Term {
			return Term{Coef: 1, Var: XVar(t, d, s, l, r)}
		})
		b.AddConstraint(fmt.Sprintf("slot_d%d_s%d_l%d_r%d", d, s, l, r), terms, LessEqual, 1)
	})

	// Constraint 3: each talk is scheduled exactly once.
	for t := range inst.Talks {
		var terms []Term
		b.eachSlot(func(d, s, l, r int) {
			terms = append(terms, Term{Coef: 1, Var: XVar(t, d, s, l, r)})
		})
		b.AddConstraint(fmt.Sprintf("once_t%d", t), terms, Equal, 1)
	}

	// Co-occurrence linearization: co + 1 >= xpar(t1) + xpar(t2) per parallel group.
	for t1 := range inst.Talks {
		for t2 := t1 + 1; t2 < len(inst.Talks); t2++ {
			if cooc[t1][t2] == 0 {
				continue
			}
			co := b.Binary(CoVar(t1, t2))
			b.eachParallelGroup(func(d, s, l int) {
				b.AddConstraint(fmt.Sprintf("cooc_t%d_t%d_d%d_s%d_l%d", t1, t2, d, s, l), []Term{
					{Coef: 1, Var: XParVar(t1, d, s, l)},
					{Coef: 1, Var: XParVar(t2, d, s, l)},
					{Coef: -1, Var: co},
				}, LessEqual, 1)
			})
		}
	}

	// Track cohesion linearization: |L|*mt >= sum of the track's session placements.
	b.eachSession(func(d, s, r int) {
		for m, main := range mains {
			mt := b.Binary(MainTrackVar(d, s, r, m))
			terms := []Term{{Coef: -float64(grid.Positions), Var: mt}}
			for t, talk := range inst.Talks {
				if talk.MainTrack == main {
					terms = append(terms, Term{Coef: 1, Var: XSessVar(t, d, s, r)})
				}
			}
			b.AddConstraint(fmt.Sprintf("main_d%d_s%d_r%d_m%d", d, s, r, m), terms, LessEqual, 0)
		}
		for sb, sub := range subs {
			st := b.Binary(SubTrackVar(d, s, r, sb))
			terms := []Term{{Coef: -float64(grid.Positions), Var: st}}
			for t, talk := range inst.Talks {
				if talk.SubTrack == sub {
					terms = append(terms, Term{Coef: 1, Var: XSessVar(t, d, s, r)})
				}
			}
			b.AddConstraint(fmt.Sprintf("sub_d%d_s%d_r%d_b%d", d, s, r, sb), terms, LessEqual, 0)
		}
	})

	// Constraint 4: paired talks share room and session and run in consecutive
	// positions.
	index := lo.SliceToMap(lo.Range(len(inst.Talks)), func(t int) (string, int) { return inst.Talks[t].Code, t })
	for t1, talk := range inst.Talks {
		if talk.PairedWith == "" {
			continue
		}
		t2, ok := index[talk.PairedWith]
		if !ok {
			return fmt.Errorf("talk %s is paired with unknown talk %s", talk.Code, talk.PairedWith)
		}
		b.eachSession(func(d, s, r int) {
			b.AddConstraint(fmt.Sprintf("pair_sess_t%d_t%d_d%d_s%d_r%d", t1, t2, d, s, r), []Term{
				{Coef: 1, Var: XSessVar(t1, d, s, r)},
				{Coef: -1, Var: XSessVar(t2, d, s, r)},
			}, Equal, 0)
			for l := 0; l < grid.Positions; l++ {
				if grid.Length(d, s, l, r) == 0 {
					continue
				}
				terms := []Term{{Coef: 1, Var: XVar(t1, d, s, l, r)}}
				rel := LessEqual
				if grid.Length(d, s, l+1, r) > 0 {
					terms = append(terms, Term{Coef: -1, Var: XVar(t2, d, s, l+1, r)})
				} else {
					// last position of a session cannot start a pair
					rel = Equal
				}
				b.AddConstraint(fmt.Sprintf("pair_next_t%d_t%d_d%d_s%d_l%d_r%d", t1, t2, d, s, l, r), terms, rel, 0)
			}
		})
	}

	// Objective: preferences, then capacity fit, then dispersion, then cohesion.
	for _, kv := range sortedPrefs(inst.Prefs) {
		if inst.Grid.Length(kv.Key.Day, kv.Key.Session, kv.Key.Position, kv.Key.Room) == 0 {
			continue
		}
		b.AddObjective(weightPref*float64(kv.Value), XVar(kv.Key.Talk, kv.Key.Day, kv.Key.Session, kv.Key.Position, kv.Key.Room))
	}
	for t := range inst.Talks {
		for r := range grid.Rooms {
			if fit[t][r] != 0 {
				b.AddObjective(weightFit*fit[t][r], XRoomVar(t, r))
			}
		}
	}
	for t1 := range inst.Talks {
		for t2 := t1 + 1; t2 < len(inst.Talks); t2++ {
			if cooc[t1][t2] != 0 {
				b.AddObjective(weightCooc*cooc[t1][t2], CoVar(t1, t2))
			}
		}
	}
	b.eachSession(func(d, s, r int) {
		for m := range mains {
			b.AddObjective(weightMain, MainTrackVar(d, s, r, m))
		}
		for sb := range subs {
			b.AddObjective(weightSub, SubTrackVar(d, s, r, sb))
		}
	})
	return nil
}

func (b *builder) eachSlot(fn func(d, s, l, r int)) {
	grid := b.instance.Grid
	for d := 0; d < grid.Days; d++ {
		for s := 0; s < grid.Sessions; s++ {
			for l := 0; l < grid.Positions; l++ {
				for r := range grid.Rooms {
					if grid.Length(d, s, l, r) > 0 {
						fn(d, s, l, r)
					}
				}
			}
		}
	}
}

func (b *builder) eachSlotIn(r int, fn func(d, s, l int)) {
	grid := b.instance.Grid
	for d := 0; d < grid.Days; d++ {
		for s := 0; s < grid.Sessions; s++ {
			for l := 0; l < grid.Positions; l++ {
				if grid.Length(d, s, l, r) > 0 {
					fn(d, s, l)
				}
			}
		}
	}
}

func (b *builder) eachParallelGroup(fn func(d, s, l int)) {
	grid := b.instance.Grid
	for d := 0; d < grid.Days; d++ {
		for s := 0; s < grid.Sessions; s++ {
			for l := 0; l < grid.Positions; l++ {
				if lo.SomeBy(lo.Range(len(grid.Rooms)), func(r int) bool { return grid.Length(d, s, l, r) > 0 }) {
					fn(d, s, l)
				}
			}
		}
	}
}

func (b *builder) eachSession(fn func(d, s, r int)) {
	grid := b.instance.Grid
	for d := 0; d < grid.Days; d++ {
		for s := 0; s < grid.Sessions; s++ {
			for r := range grid.Rooms {
				if lo.SomeBy(lo.Range(grid.Positions), func(l int) bool { return grid.Length(d, s, l, r) > 0 }) {
					fn(d, s, r)
				}
			}
		}
	}
}
