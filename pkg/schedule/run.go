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
	"context"
	"fmt"
	"sort"
	"sync"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

// Stage is the lifecycle stage of a scheduling run.
type Stage string

const (
	StageCollecting Stage = "Collecting"
	StageBuilding   Stage = "Building"
	StageWriting    Stage = "Writing"
	StageSolving    Stage = "Solving"
	StageLoading    Stage = "Loading"
	StageEmitting   Stage = "Emitting"
	StageEmitted    Stage = "Emitted"
	StageFailed     Stage = "Failed"
)

// Placement is one scheduled talk in the resulting timetable.
type Placement struct {
	Code     string
	Day      int
	Session  int
	Position int
	Room     string
	Duration int
}

// Timetable is the complete layout, sorted by (day, session, position, room).
type Timetable []Placement

// Run drives one scheduling run through its stages. A run is single-use.
type Run struct {
	solver *Solver

	mu    sync.Mutex
	stage Stage
}

func NewRun(solver *Solver) *Run {
	return &Run{solver: solver, stage: StageCollecting}
}

// Stage returns the current lifecycle stage.
func (r *Run) Stage() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stage
}

func (r *Run) transition(ctx context.Context, stage Stage) {
	r.mu.Lock()
	r.stage = stage
	r.mu.Unlock()
	log.FromContext(ctx).Debugw("scheduling run stage", "stage", stage)
}

func (r *Run) fail(ctx context.Context, err error) error {
	r.transition(ctx, StageFailed)
	runsTotal.WithLabelValues(string(StageFailed)).Inc()
	return err
}

// Execute runs the full pipeline for an instance and returns the timetable. An empty
// talk set yields an empty timetable without invoking the solver.
func (r *Run) Execute(ctx context.Context, instance Instance) (Timetable, error) {
	if len(instance.Talks) == 0 {
		r.transition(ctx, StageEmitted)
		runsTotal.WithLabelValues(string(StageEmitted)).Inc()
		return Timetable{}, nil
	}

	r.transition(ctx, StageBuilding)
	model, err := Build(instance)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.transition(ctx, StageWriting)
	runDir, err := r.solver.WriteRun(model)
	if err != nil {
		return nil, r.fail(ctx, err)
	}

	r.transition(ctx, StageSolving)
	if err := r.solver.Invoke(ctx, runDir); err != nil {
		if apierrors.IsCancelled(err) {
			r.solver.Cleanup(ctx, runDir)
		} else {
			log.FromContext(ctx).Warnw("solver run failed, preserving run directory", "dir", runDir)
		}
		return nil, r.fail(ctx, err)
	}

	r.transition(ctx, StageLoading)
	solution, err := r.solver.Load(runDir)
	if err != nil {
		log.FromContext(ctx).Warnw("loading solution failed, preserving run directory", "dir", runDir)
		return nil, r.fail(ctx, err)
	}

	r.transition(ctx, StageEmitting)
	timetable, err := Reconstruct(instance, solution)
	if err != nil {
		log.FromContext(ctx).Warnw("reconstructing timetable failed, preserving run directory", "dir", runDir)
		return nil, r.fail(ctx, err)
	}
	r.solver.Cleanup(ctx, runDir)

	r.transition(ctx, StageEmitted)
	runsTotal.WithLabelValues(string(StageEmitted)).Inc()
	return timetable, nil
}

// Reconstruct maps set placement variables back onto the grid and validates the result:
// every talk placed exactly once in a slot matching its duration, no slot double-booked.
func Reconstruct(instance Instance, solution Solution) (Timetable, error) {
	var timetable Timetable
	placed := map[string]bool{}
	occupied := map[[4]int]string{}

	for variable := range solution {
		if !solution.Set(variable) {
			continue
		}
		var t, d, s, l, r int
		if n, err := fmt.Sscanf(variable, "x_t%d_d%d_s%d_l%d_r%d", &t, &d, &s, &l, &r); n != 5 || err != nil {
			continue
		}
		if t < 0 || t >= len(instance.Talks) || d < 0 || s < 0 || l < 0 || r < 0 || r >= len(instance.Grid.Rooms) {
			return nil, fmt.Errorf("solution variable %s is out of range", variable)
		}
		talk := instance.Talks[t]
		length := instance.Grid.Length(d, s, l, r)
		if length != talk.Duration {
			return nil, fmt.Errorf("talk %s placed in a %d minute slot but lasts %d minutes", talk.Code, length, talk.Duration)
		}
		if placed[talk.Code] {
			return nil, fmt.Errorf("talk %s placed more than once", talk.Code)
		}
		placed[talk.Code] = true
		slot := [4]int{d, s, l, r}
		if other, ok := occupied[slot]; ok {
			return nil, fmt.Errorf("talks %s and %s share slot d%d s%d l%d r%d", other, talk.Code, d, s, l, r)
		}
		occupied[slot] = talk.Code
		timetable = append(timetable, Placement{
			Code:     talk.Code,
			Day:      d,
			Session:  s,
			Position: l,
			Room:     instance.Grid.Rooms[r].Name,
			Duration: length,
		})
	}
	for _, talk := range instance.Talks {
		if !placed[talk.Code] {
			return nil, fmt.Errorf("talk %s is missing from the solution", talk.Code)
		}
	}
	sort.Slice(timetable, func(a, b int) bool {
		pa, pb := timetable[a], timetable[b]
		if pa.Day != pb.Day {
			return pa.Day < pb.Day
		}
		if pa.Session != pb.Session {
			return pa.Session < pb.Session
		}
		if pa.Position != pb.Position {
			return pa.Position < pb.Position
		}
		return pa.Room < pb.Room
	})
	return timetable, nil
}
