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
)

// Relation is a constraint comparison operator.
type Relation string

const (
	LessEqual    Relation = "<="
	GreaterEqual Relation = ">="
	Equal        Relation = "="
)

// Term is one coefficient-variable product.
type Term struct {
	Coef float64
	Var  string
}

// Constraint is a named linear constraint.
type Constraint struct {
	Name     string
	Terms    []Term
	Relation Relation
	RHS      float64
}

// Model is a mixed-integer program over binary variables, kept solver-agnostic and
// serialized to the CPLEX LP exchange format.
type Model struct {
	Name string

	objOrder    []string
	objective   map[string]float64
	constraints []Constraint
	binaries    []string
	binarySet   map[string]bool
}

func NewModel(name string) *Model {
	return &Model{
		Name:      name,
		objective: map[string]float64{},
		binarySet: map[string]bool{},
	}
}

// Binary registers a binary variable and returns its name. Registering twice is a no-op.
func (m *Model) Binary(name string) string {
	if !m.binarySet[name] {
		m.binarySet[name] = true
		m.binaries = append(m.binaries, name)
	}
	return name
}

// AddObjective accumulates a coefficient onto a variable's objective entry.
func (m *Model) AddObjective(coef float64, variable string) {
	if _, ok := m.objective[variable]; !ok {
		m.objOrder = append(m.objOrder, variable)
	}
	m.objective[variable] += coef
}

// AddConstraint appends a named constraint.
func (m *Model) AddConstraint(name string, terms []Term, rel Relation, rhs float64) {
	m.constraints = append(m.constraints, Constraint{Name: name, Terms: terms, Relation: rel, RHS: rhs})
}

// Objective returns the objective vector in insertion order.
func (m *Model) Objective() []Term {
	terms := make([]Term, 0, len(m.objOrder))
	for _, variable := range m.objOrder {
		terms = append(terms, Term{Coef: m.objective[variable], Var: variable})
	}
	return terms
}

// Constraints returns the constraint matrix in insertion order.
func (m *Model) Constraints() []Constraint { return m.constraints }

// Binaries returns the binary variables in registration order.
func (m *Model) Binaries() []string { return m.binaries }

// WriteLP serializes the model (maximization sense) to the CPLEX LP format.
func (m *Model) WriteLP(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "\\ %s\n", m.Name)
	fmt.Fprintln(bw, "Maximize")
	fmt.Fprintf(bw, " obj:%s\n", formatTerms(m.Objective()))
	fmt.Fprintln(bw, "Subject To")
	for _, c := range m.constraints {
		fmt.Fprintf(bw, " %s:%s %s %s\n", c.Name, formatTerms(c.Terms), c.Relation, formatNumber(c.RHS))
	}
	fmt.Fprintln(bw, "Binary")
	for _, variable := range m.binaries {
		fmt.Fprintf(bw, " %s\n", variable)
	}
	fmt.Fprintln(bw, "End")
	return bw.Flush()
}

func formatTerms(terms []Term) string {
	var sb strings.Builder
	for _, term := range terms {
		coef := term.Coef
		sign := "+"
		if coef < 0 {
			sign = "-"
			coef = -coef
		}
		fmt.Fprintf(&sb, " %s %s %s", sign, formatNumber(coef), term.Var)
	}
	return sb.String()
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// ParseLP reads a model back from the CPLEX LP format. It understands the subset WriteLP
// emits, which is enough to verify that emitted files carry the intended coefficient
// matrix.
func ParseLP(r io.Reader) (*Model, error) {
	model := NewModel("")
	section := ""
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "\\") {
			if model.Name == "" {
				model.Name = strings.TrimSpace(strings.TrimPrefix(line, "\\"))
			}
			continue
		}
		switch strings.ToLower(line) {
		case "maximize", "minimize":
			section = "objective"
			continue
		case "subject to", "st", "s.t.":
			section = "constraints"
			continue
		case "binary", "binaries":
			section = "binary"
			continue
		case "end":
			section = ""
			continue
		}
		switch section {
		case "objective":
			_, terms, err := parseRow(line)
			if err != nil {
				return nil, err
			}
			for _, term := range terms {
				model.AddObjective(term.Coef, term.Var)
			}
		case "constraints":
			name, rest, found := strings.Cut(line, ":")
			if !found {
				return nil, fmt.Errorf("constraint row %q has no label", line)
			}
			relation, terms, rhs, err := parseConstraintRow(rest)
			if err != nil {
				return nil, fmt.Errorf("constraint %s: %w", name, err)
			}
			model.AddConstraint(strings.TrimSpace(name), terms, relation, rhs)
		case "binary":
			for _, field := range strings.Fields(line) {
				model.Binary(field)
			}
		default:
			return nil, fmt.Errorf("unexpected row outside any section: %q", line)
		}
	}
	return model, scanner.Err()
}

func parseRow(line string) (string, []Term, error) {
	label, rest, found := strings.Cut(line, ":")
	if !found {
		return "", nil, fmt.Errorf("row %q has no label", line)
	}
	terms, err := parseTerms(strings.Fields(rest))
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(label), terms, nil
}

func parseConstraintRow(rest string) (Relation, []Term, float64, error) {
	fields := strings.Fields(rest)
	relIdx := -1
	var relation Relation
	for i, field := range fields {
		switch field {
		case "<=", "=<":
			relIdx, relation = i, LessEqual
		case ">=", "=>":
			relIdx, relation = i, GreaterEqual
		case "=":
			relIdx, relation = i, Equal
		}
	}
	if relIdx == -1 || relIdx != len(fields)-2 {
		return "", nil, 0, fmt.Errorf("missing relation in %q", rest)
	}
	rhs, err := strconv.ParseFloat(fields[len(fields)-1], 64)
	if err != nil {
		return "", nil, 0, fmt.Errorf("parsing right-hand side: %w", err)
	}
	terms, err := parseTerms(fields[:relIdx])
	if err != nil {
		return "", nil, 0, err
	}
	return relation, terms, rhs, nil
}

func parseTerms(fields []string) ([]Term, error) {
	var terms []Term
	sign := 1.0
	coef := 1.0
	haveCoef := false
	for _, field := range fields {
		switch field {
		case "+":
			sign, coef, haveCoef = 1, 1, false
			continue
		case "-":
			sign, coef, haveCoef = -1, 1, false
			continue
		}
		if f, err := strconv.ParseFloat(field, 64); err == nil && !haveCoef {
			coef, haveCoef = f, true
			continue
		}
		terms = append(terms, Term{Coef: sign * coef, Var: field})
		sign, coef, haveCoef = 1, 1, false
	}
	if haveCoef {
		return nil, fmt.Errorf("dangling coefficient in %q", strings.Join(fields, " "))
	}
	return terms, nil
}
