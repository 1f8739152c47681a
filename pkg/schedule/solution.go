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
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	apierrors "github.com/confops/rostrum/pkg/errors"
)

// Solution maps variable names to solved values. Unlisted variables are zero.
type Solution map[string]float64

// Value returns the solved value of a variable, zero when unlisted.
func (s Solution) Value(variable string) float64 { return s[variable] }

// Set reports whether a binary variable is set in the solution.
func (s Solution) Set(variable string) bool { return s[variable] > 0.5 }

// ParseSolution reads a solver solution file. Two row dialects are accepted: bare
// "name value" pairs and the CBC form "index name value [reduced-cost]". A status line
// reporting infeasibility fails with NoSchedule.
func ParseSolution(r io.Reader) (Solution, error) {
	solution := Solution{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(lower, "infeasible") {
			return nil, &apierrors.NoScheduleError{Reason: line}
		}
		// CBC and other solvers prepend a status line, e.g. "Optimal - objective
		// value 42". Skip it rather than parse it as a row.
		if first && (strings.Contains(lower, "objective") || strings.Contains(lower, "optimal") || strings.Contains(lower, "stopped")) {
			first = false
			continue
		}
		first = false
		name, value, err := parseSolutionRow(line)
		if err != nil {
			return nil, err
		}
		solution[name] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return solution, nil
}

func parseSolutionRow(line string) (string, float64, error) {
	fields := strings.Fields(line)
	switch len(fields) {
	case 2:
		value, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return "", 0, fmt.Errorf("malformed solution row %q: %w", line, err)
		}
		return fields[0], value, nil
	case 3, 4:
		// leading column is the variable index
		if _, err := strconv.Atoi(fields[0]); err != nil {
			return "", 0, fmt.Errorf("malformed solution row %q: %w", line, err)
		}
		value, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return "", 0, fmt.Errorf("malformed solution row %q: %w", line, err)
		}
		return fields[1], value, nil
	default:
		return "", 0, fmt.Errorf("malformed solution row %q", line)
	}
}
