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

package schedule_test

import (
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/schedule"
)

var _ = Describe("Run", func() {
	It("should place a talk in the slot matching its duration", func() {
		dir := GinkgoT().TempDir()
		instance := schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 45}},
			Grid:  singleRoomGrid(30, 45),
		}
		solver := fakeSolver(dir, schedule.XVar(0, 0, 0, 1, 0)+" 1")
		run := schedule.NewRun(solver)

		timetable, err := run.Execute(ctx, instance)
		Expect(err).ToNot(HaveOccurred())
		Expect(run.Stage()).To(Equal(schedule.StageEmitted))

		Expect(timetable).To(Equal(schedule.Timetable{{
			Code: "AAA", Day: 0, Session: 0, Position: 1, Room: "Main", Duration: 45,
		}}))
	})
	It("should surface a talk placed in a slot of the wrong length", func() {
		dir := GinkgoT().TempDir()
		instance := schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 45}},
			Grid:  singleRoomGrid(30, 45),
		}
		solver := fakeSolver(dir, schedule.XVar(0, 0, 0, 0, 0)+" 1")
		run := schedule.NewRun(solver)

		_, err := run.Execute(ctx, instance)
		Expect(err).To(MatchError(ContainSubstring("30 minute slot")))
		Expect(run.Stage()).To(Equal(schedule.StageFailed))
	})
	It("should keep the real talk out of the discouraged slot", func() {
		dir := GinkgoT().TempDir()
		instance := schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 30}},
			Grid:  singleRoomGrid(30, 30),
			Prefs: map[schedule.PrefKey]int{
				{Talk: 0, Day: 0, Session: 0, Position: 0, Room: 0}: -1,
			},
		}
		solver := fakeSolver(dir, schedule.XVar(0, 0, 0, 1, 0)+" 1")
		run := schedule.NewRun(solver)

		timetable, err := run.Execute(ctx, instance)
		Expect(err).ToNot(HaveOccurred())
		Expect(timetable[0].Position).To(Equal(1))
	})
	It("should reject a solution variable with a negative slot index", func() {
		dir := GinkgoT().TempDir()
		instance := schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 30}},
			Grid:  singleRoomGrid(30),
		}
		solver := fakeSolver(dir, "x_t0_d-1_s0_l0_r0 1")
		run := schedule.NewRun(solver)

		_, err := run.Execute(ctx, instance)
		Expect(err).To(MatchError(ContainSubstring("out of range")))
		Expect(run.Stage()).To(Equal(schedule.StageFailed))
	})
	It("should emit an empty timetable for an empty talk set without a solver", func() {
		run := schedule.NewRun(schedule.NewSolver("/does/not/exist"))
		timetable, err := run.Execute(ctx, schedule.Instance{})
		Expect(err).ToNot(HaveOccurred())
		Expect(timetable).To(BeEmpty())
		Expect(run.Stage()).To(Equal(schedule.StageEmitted))
	})
	It("should fail with NoSchedule on an infeasible model", func() {
		dir := GinkgoT().TempDir()
		instance := schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 45}},
			Grid:  singleRoomGrid(30),
		}
		solver := fakeSolver(dir, "Infeasible - objective value 0")
		run := schedule.NewRun(solver)

		_, err := run.Execute(ctx, instance)
		Expect(apierrors.IsNoSchedule(err)).To(BeTrue())
		Expect(run.Stage()).To(Equal(schedule.StageFailed))
	})
	It("should preserve the run directory when the solver exits non-zero", func() {
		dir := GinkgoT().TempDir()
		script := filepath.Join(dir, "failsolver.sh")
		Expect(os.WriteFile(script, []byte("#!/bin/sh\nexit 3\n"), 0o755)).To(Succeed())
		solver := schedule.NewSolver(script,
			schedule.WithArgs("{model}", "{solution}"),
			schedule.WithWorkDir(dir),
		)
		run := schedule.NewRun(solver)

		_, err := run.Execute(ctx, schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 30}},
			Grid:  singleRoomGrid(30),
		})
		Expect(err).To(HaveOccurred())
		Expect(run.Stage()).To(Equal(schedule.StageFailed))

		entries, readErr := os.ReadDir(dir)
		Expect(readErr).ToNot(HaveOccurred())
		var runDirs []string
		for _, entry := range entries {
			if entry.IsDir() && strings.HasPrefix(entry.Name(), "rostrum-solve-") {
				runDirs = append(runDirs, entry.Name())
			}
		}
		Expect(runDirs).To(HaveLen(1))
		model, statErr := os.Stat(filepath.Join(dir, runDirs[0], "model.lp"))
		Expect(statErr).ToNot(HaveOccurred())
		Expect(model.Size()).To(BeNumerically(">", 0))
	})
	It("should delete the run directory on success", func() {
		dir := GinkgoT().TempDir()
		solver := fakeSolver(dir, schedule.XVar(0, 0, 0, 0, 0)+" 1")
		run := schedule.NewRun(solver)

		_, err := run.Execute(ctx, schedule.Instance{
			Talks: []schedule.Talk{{Code: "AAA", Duration: 30}},
			Grid:  singleRoomGrid(30),
		})
		Expect(err).ToNot(HaveOccurred())

		entries, readErr := os.ReadDir(dir)
		Expect(readErr).ToNot(HaveOccurred())
		for _, entry := range entries {
			Expect(entry.IsDir()).To(BeFalse())
		}
	})
})
