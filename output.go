/*
Copyright © 2019 the mlheat authors.
This file is part of mlheat.

mlheat is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mlheat is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mlheat.  If not, see <http://www.gnu.org/licenses/>.
*/

package mlheat

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/mlheat/internal/flatrec"
)

// DayWriter receives the budget of each day in order.
type DayWriter interface {
	WriteDay(b *Budget) error
	Close() error
}

// Output creates the DayWriter for one year on a (ny, nx) grid.
type Output interface {
	Create(year, ny, nx int) (DayWriter, error)
}

// StorePrefixes maps budget field names to the file name prefixes of the
// stores they are written to. Store file names are <prefix><year>.data.
var StorePrefixes = map[string]string{
	"Tm":           "T_ML",
	"Tb":           "Tb",
	"T0":           "T0",
	"Um":           "U_ML",
	"Vm":           "V_ML",
	"MLD":          "MLD",
	"TenForward":   "ten",
	"TenCentered":  "ten_cen",
	"ADV":          "advNF",
	"QNET":         "qnet",
	"ENT":          "ent",
	"DIFF":         "diff",
	"DIFFV":        "diffv",
	"ClosForward":  "clos_d2_ten",
	"ClosCentered": "clos_d2_ten_cen",
	"We":           "we",
}

// StorePath returns the path of the store for prefix and year in dir.
func StorePath(dir, prefix string, year int) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.data", prefix, year))
}

// Outputter writes budget fields to per-field, per-year record stores.
// In addition to the budget fields, it can write derived fields
// calculated from user-specified expressions.
//
// outputVariables maps derived field names to expressions of budget
// field names and other derived field names, for example
// "QNETkpd": "kpd(QNET)". Derived fields are written to stores named
// after the field.
//
// Functions are defined in the outputFunctions variable.
type Outputter struct {
	dir             string
	saveWe          bool
	outputVariables map[string]string
	outputFunctions map[string]govaluate.ExpressionFunction

	// order holds the derived field names in evaluation order.
	order []string
}

// NewOutputter initializes a new Outputter writing to dir and adds a set of
// default output functions. Default functions include:
//
// 'exp(x)' which applies the exponential function e^x.
//
// 'abs(x)' which returns the absolute value of x.
//
// 'kpd(x)' which converts a rate from per second to per day.
func NewOutputter(dir string, saveWe bool, outputVariables map[string]string, outputFunctions map[string]govaluate.ExpressionFunction) (*Outputter, error) {
	defaultOutputFuncs := map[string]govaluate.ExpressionFunction{
		"exp": oneArg("exp", math.Exp),
		"abs": oneArg("abs", math.Abs),
		"kpd": oneArg("kpd", func(x float64) float64 { return x * dt }),
	}
	for key, val := range outputFunctions {
		defaultOutputFuncs[key] = val
	}

	o := &Outputter{
		dir:             dir,
		saveWe:          saveWe,
		outputVariables: make(map[string]string, len(outputVariables)),
		outputFunctions: defaultOutputFuncs,
	}
	for k, v := range outputVariables {
		o.outputVariables[k] = v
	}
	if err := checkOutputNames(o.outputVariables); err != nil {
		return nil, err
	}
	order, err := o.evaluationOrder()
	if err != nil {
		return nil, err
	}
	o.order = order
	return o, nil
}

func oneArg(name string, f func(float64) float64) govaluate.ExpressionFunction {
	return func(arg ...interface{}) (interface{}, error) {
		if len(arg) != 1 {
			return nil, fmt.Errorf("mlheat: got %d arguments for function '%s', but needs 1", len(arg), name)
		}
		x, ok := arg[0].(float64)
		if !ok {
			return nil, fmt.Errorf("mlheat: function '%s' needs a number but got %T", name, arg[0])
		}
		return f(x), nil
	}
}

// checkOutputNames checks that derived field names can be used as store
// names and do not shadow budget fields.
func checkOutputNames(o map[string]string) error {
	valid := regexp.MustCompile(`^[A-Za-z]\w*$`)
	for key := range o {
		if !valid.MatchString(key) {
			return fmt.Errorf("mlheat: output variable name '%s' includes unsupported characters", key)
		}
		if _, ok := StorePrefixes[key]; ok {
			return fmt.Errorf("mlheat: output variable name '%s' is already a budget field", key)
		}
		for _, p := range StorePrefixes {
			if key == p {
				return fmt.Errorf("mlheat: output variable name '%s' is already used by a budget store", key)
			}
		}
	}
	return nil
}

// evaluationOrder returns the derived field names ordered so that every
// field comes after the derived fields its expression uses. It also checks
// that every variable an expression uses exists.
func (o *Outputter) evaluationOrder() ([]string, error) {
	deps := make(map[string][]string, len(o.outputVariables))
	for name, expr := range o.outputVariables {
		e, err := govaluate.NewEvaluableExpressionWithFunctions(expr, o.outputFunctions)
		if err != nil {
			return nil, fmt.Errorf("mlheat: output variable %s: %v", name, err)
		}
		for _, v := range removeDuplicates(e.Vars()) {
			if _, ok := StorePrefixes[v]; ok {
				continue
			}
			if _, ok := o.outputVariables[v]; ok {
				deps[name] = append(deps[name], v)
				continue
			}
			return nil, fmt.Errorf("mlheat: output variable %s: undefined variable name '%s'", name, v)
		}
	}

	names := make([]string, 0, len(o.outputVariables))
	for name := range o.outputVariables {
		names = append(names, name)
	}
	sort.Strings(names)

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var order []string
	var visit func(string) error
	visit = func(n string) error {
		switch state[n] {
		case visiting:
			return fmt.Errorf("mlheat: output variable %s is defined in terms of itself", n)
		case done:
			return nil
		}
		state[n] = visiting
		for _, d := range deps[n] {
			if err := visit(d); err != nil {
				return err
			}
		}
		state[n] = done
		order = append(order, n)
		return nil
	}
	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// removeDuplicates removes all duplicated strings from a slice, returning a
// slice that contains only unique strings.
func removeDuplicates(s []string) []string {
	result := make([]string, 0, len(s))
	seen := make(map[string]bool)
	for _, val := range s {
		if !seen[val] {
			result = append(result, val)
			seen[val] = true
		}
	}
	return result
}

// Create creates, or truncates, all of the stores for year.
func (o *Outputter) Create(year, ny, nx int) (DayWriter, error) {
	if err := os.MkdirAll(o.dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("mlheat: creating output directory: %v", err)
	}
	w := &yearStores{
		ny:          ny,
		nx:          nx,
		stores:      make(map[string]*flatrec.Writer),
		expressions: make(map[string]*govaluate.EvaluableExpression),
		order:       o.order,
	}
	for field, prefix := range StorePrefixes {
		if field == "We" && !o.saveWe {
			continue
		}
		if err := w.create(field, StorePath(o.dir, prefix, year)); err != nil {
			return nil, err
		}
	}
	for _, name := range o.order {
		if err := w.create(name, StorePath(o.dir, name, year)); err != nil {
			return nil, err
		}
		e, err := govaluate.NewEvaluableExpressionWithFunctions(o.outputVariables[name], o.outputFunctions)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("mlheat: output variable %s: %v", name, err)
		}
		w.expressions[name] = e
		w.vars = append(w.vars, removeDuplicates(e.Vars())...)
	}
	w.vars = removeDuplicates(w.vars)
	return w, nil
}

// yearStores holds the open stores of one year. It is owned by a single
// year's sequence.
type yearStores struct {
	ny, nx      int
	stores      map[string]*flatrec.Writer
	expressions map[string]*govaluate.EvaluableExpression
	order       []string
	vars        []string
}

func (w *yearStores) create(name, path string) error {
	s, err := flatrec.Create(path, w.ny, w.nx)
	if err != nil {
		w.Close()
		return fmt.Errorf("mlheat: %v", err)
	}
	w.stores[name] = s
	return nil
}

// WriteDay appends the day's budget fields and derived fields to the stores.
func (w *yearStores) WriteDay(b *Budget) error {
	if w.stores == nil {
		return fmt.Errorf("mlheat: writing day %d to closed output", b.Day)
	}
	fields := b.Fields()
	for name, s := range w.stores {
		f, ok := fields[name]
		if !ok {
			continue
		}
		if err := s.Append(f); err != nil {
			return fmt.Errorf("mlheat: day %d: %v", b.Day, err)
		}
	}
	if len(w.order) == 0 {
		return nil
	}
	derived, err := w.evaluate(fields)
	if err != nil {
		return fmt.Errorf("mlheat: day %d: %v", b.Day, err)
	}
	for _, name := range w.order {
		if err := w.stores[name].Append(derived[name]); err != nil {
			return fmt.Errorf("mlheat: day %d: %v", b.Day, err)
		}
	}
	return nil
}

// evaluate calculates the derived fields cell by cell.
func (w *yearStores) evaluate(fields map[string]*sparse.DenseArray) (map[string]*sparse.DenseArray, error) {
	out := make(map[string]*sparse.DenseArray, len(w.order))
	for _, name := range w.order {
		out[name] = sparse.ZerosDense(w.ny, w.nx)
	}
	params := make(map[string]interface{}, len(w.vars))
	for c := 0; c < w.ny*w.nx; c++ {
		for _, v := range w.vars {
			if f, ok := fields[v]; ok && f != nil {
				params[v] = f.Elements[c]
			}
		}
		for _, name := range w.order {
			r, err := w.expressions[name].Evaluate(params)
			if err != nil {
				return nil, fmt.Errorf("evaluating output variable %s: %v", name, err)
			}
			val, ok := r.(float64)
			if !ok {
				return nil, fmt.Errorf("output variable %s evaluates to %T, not a number", name, r)
			}
			out[name].Elements[c] = val
			params[name] = val
		}
	}
	return out, nil
}

// Close closes all of the stores. Closing again does nothing.
func (w *yearStores) Close() error {
	var first error
	for _, s := range w.stores {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	w.stores = nil
	return first
}
