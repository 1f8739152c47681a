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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	apierrors "github.com/confops/rostrum/pkg/errors"
	"github.com/confops/rostrum/pkg/utils/log"
)

const (
	// DefaultTimeLimit bounds the solver wall clock. Schedule quality keeps improving
	// for hours on real instances, so the default is generous.
	DefaultTimeLimit = 4 * time.Hour

	modelFile    = "model.lp"
	solutionFile = "solution.txt"
)

// DefaultArgs is the CBC invocation template. The placeholders {model}, {solution} and
// {seconds} are substituted per run.
var DefaultArgs = []string{"{model}", "sec", "{seconds}", "solve", "solu", "{solution}"}

// Solver invokes an external MIP solver binary on a per-run scratch directory. The
// directory is deleted on success and preserved for inspection on failure.
type Solver struct {
	binary    string
	args      []string
	timeLimit time.Duration
	workDir   string
}

type SolverOption func(*Solver)

// WithArgs overrides the invocation template for solvers with a different CLI.
func WithArgs(args ...string) SolverOption {
	return func(s *Solver) { s.args = args }
}

// WithTimeLimit bounds the solver wall clock.
func WithTimeLimit(d time.Duration) SolverOption {
	return func(s *Solver) { s.timeLimit = d }
}

// WithWorkDir places per-run scratch directories under dir instead of the system temp
// directory.
func WithWorkDir(dir string) SolverOption {
	return func(s *Solver) { s.workDir = dir }
}

func NewSolver(binary string, opts ...SolverOption) *Solver {
	s := &Solver{
		binary:    binary,
		args:      DefaultArgs,
		timeLimit: DefaultTimeLimit,
		workDir:   os.TempDir(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WriteRun creates the per-run scratch directory and writes the model file into it.
func (s *Solver) WriteRun(model *Model) (string, error) {
	runDir := filepath.Join(s.workDir, "rostrum-solve-"+uuid.NewString())
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating solver run directory: %w", err)
	}
	f, err := os.Create(filepath.Join(runDir, modelFile))
	if err != nil {
		return "", fmt.Errorf("creating model file: %w", err)
	}
	defer f.Close()
	if err := model.WriteLP(f); err != nil {
		return "", fmt.Errorf("writing model file: %w", err)
	}
	return runDir, nil
}

// Invoke runs the solver on a prepared run directory, honoring the time limit. On
// cancellation the child process receives SIGTERM and the run fails with Cancelled.
func (s *Solver) Invoke(ctx context.Context, runDir string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeLimit)
	defer cancel()

	args := lo.Map(s.args, func(arg string, _ int) string {
		arg = strings.ReplaceAll(arg, "{model}", filepath.Join(runDir, modelFile))
		arg = strings.ReplaceAll(arg, "{solution}", filepath.Join(runDir, solutionFile))
		arg = strings.ReplaceAll(arg, "{seconds}", strconv.Itoa(int(s.timeLimit.Seconds())))
		return arg
	})

	cmd := exec.CommandContext(ctx, s.binary, args...)
	cmd.Dir = runDir
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 10 * time.Second

	start := time.Now()
	out, err := cmd.CombinedOutput()
	solverDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			return &apierrors.NoScheduleError{Reason: fmt.Sprintf("solver exceeded the %s time limit", s.timeLimit)}
		case ctx.Err() != nil:
			return fmt.Errorf("solver run cancelled: %w", apierrors.ErrCancelled)
		default:
			return fmt.Errorf("solver %s failed: %w, output: %s", s.binary, err, firstLines(string(out), 5))
		}
	}
	return nil
}

// Load parses the solution file of a completed run.
func (s *Solver) Load(runDir string) (Solution, error) {
	f, err := os.Open(filepath.Join(runDir, solutionFile))
	if err != nil {
		return nil, fmt.Errorf("opening solution file: %w", err)
	}
	defer f.Close()
	return ParseSolution(f)
}

// Cleanup removes a run directory. Call it only on success; failed runs keep their
// directory for inspection.
func (s *Solver) Cleanup(ctx context.Context, runDir string) {
	if err := os.RemoveAll(runDir); err != nil {
		log.FromContext(ctx).Warnw("removing solver run directory", "dir", runDir, "error", err)
	}
}

// Solve runs the full write-invoke-load sequence.
func (s *Solver) Solve(ctx context.Context, model *Model) (Solution, error) {
	runDir, err := s.WriteRun(model)
	if err != nil {
		return nil, err
	}
	if err := s.Invoke(ctx, runDir); err != nil {
		if apierrors.IsCancelled(err) {
			s.Cleanup(ctx, runDir)
		} else {
			log.FromContext(ctx).Warnw("solver run failed, preserving run directory", "dir", runDir)
		}
		return nil, err
	}
	solution, err := s.Load(runDir)
	if err != nil {
		log.FromContext(ctx).Warnw("loading solution failed, preserving run directory", "dir", runDir)
		return nil, err
	}
	s.Cleanup(ctx, runDir)
	return solution, nil
}

func firstLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, " | ")
}
