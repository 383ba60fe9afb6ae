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
	"strings"
	"testing"

	"github.com/Knetic/govaluate"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/mlheat/internal/flatrec"
)

// uniformBudget returns a budget whose fields are uniform, with the
// value of each field given by vals. Fields not in vals are zero.
func uniformBudget(day, ny, nx int, vals map[string]float64) *Budget {
	f := func(name string) *sparse.DenseArray { return constField(ny, nx, vals[name]) }
	return &Budget{
		Day: day,
		Tm:  f("Tm"), Tb: f("Tb"), T0: f("T0"), Um: f("Um"), Vm: f("Vm"), MLD: f("MLD"),
		TenForward: f("TenForward"), TenCentered: f("TenCentered"),
		QNET: f("QNET"), ADV: f("ADV"), ENT: f("ENT"), DIFF: f("DIFF"), DIFFV: f("DIFFV"),
		ClosForward: f("ClosForward"), ClosCentered: f("ClosCentered"),
		We: f("We"),
	}
}

func TestStorePath(t *testing.T) {
	if p := StorePath("out", "clos_d2_ten_cen", 1999); p != "out/clos_d2_ten_cen1999.data" {
		t.Errorf("have %s", p)
	}
}

func TestOutputterStores(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOutputter(dir, false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	const ny, nx = 2, 3
	w, err := o.Create(2003, ny, nx)
	if err != nil {
		t.Fatal(err)
	}
	for d := 0; d < 3; d++ {
		b := uniformBudget(d, ny, nx, map[string]float64{"Tm": 20 + float64(d), "QNET": 1.5e-6, "We": 1e-5})
		if err := w.WriteDay(b); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	for field, prefix := range StorePrefixes {
		path := StorePath(dir, prefix, 2003)
		n, err := flatrec.Count(path, ny, nx)
		if field == "We" {
			if err == nil {
				t.Errorf("entrainment velocity store should not exist")
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", field, err)
		}
		if n != 3 {
			t.Errorf("%s: have %d records, want 3", field, n)
		}
	}
	tm, err := flatrec.ReadFile(StorePath(dir, "T_ML", 2003), 2, ny, nx)
	if err != nil {
		t.Fatal(err)
	}
	if tm.Get(1, 2) != 22 {
		t.Errorf("T_ML day 2: have %g, want 22", tm.Get(1, 2))
	}
	q, err := flatrec.ReadFile(StorePath(dir, "qnet", 2003), 0, ny, nx)
	if err != nil {
		t.Fatal(err)
	}
	if different(q.Get(0, 0), 1.5e-6, 1e-6) {
		t.Errorf("qnet: have %g, want 1.5e-6", q.Get(0, 0))
	}
}

func TestOutputterTruncates(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOutputter(dir, true, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	for run, days := range []int{4, 2} {
		w, err := o.Create(2010, 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		for d := 0; d < days; d++ {
			if err := w.WriteDay(uniformBudget(d, 1, 1, nil)); err != nil {
				t.Fatal(err)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
		n, err := flatrec.Count(StorePath(dir, "we", 2010), 1, 1)
		if err != nil {
			t.Fatal(err)
		}
		if n != days {
			t.Errorf("run %d: have %d records, want %d", run, n, days)
		}
	}
}

func TestOutputterDerived(t *testing.T) {
	dir := t.TempDir()
	o, err := NewOutputter(dir, false, map[string]string{
		"total":   "QNETkpd + absADV",
		"QNETkpd": "kpd(QNET)",
		"absADV":  "abs(ADV)",
		"scaled":  "double(Tm)",
	}, map[string]govaluate.ExpressionFunction{
		"double": func(args ...interface{}) (interface{}, error) {
			return args[0].(float64) * 2, nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(o.order) != 4 || o.order[len(o.order)-1] != "total" {
		t.Errorf("evaluation order: %v", o.order)
	}
	w, err := o.Create(2001, 2, 2)
	if err != nil {
		t.Fatal(err)
	}
	b := uniformBudget(0, 2, 2, map[string]float64{"QNET": 1e-6, "ADV": -2e-6, "Tm": 12})
	b.QNET.Set(math.NaN(), 0, 1)
	if err := w.WriteDay(b); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	read := func(name string) *sparse.DenseArray {
		d, err := flatrec.ReadFile(StorePath(dir, name, 2001), 0, 2, 2)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}
	want := map[string]float64{
		"QNETkpd": 1e-6 * dt,
		"absADV":  2e-6,
		"total":   1e-6*dt + 2e-6,
		"scaled":  24,
	}
	for name, v := range want {
		if have := read(name).Get(1, 1); different(have, v, 1e-6) {
			t.Errorf("%s: have %g, want %g", name, have, v)
		}
	}
	if v := read("total").Get(0, 1); !math.IsNaN(v) {
		t.Errorf("missing value should propagate, have %g", v)
	}
}

func TestOutputterErrors(t *testing.T) {
	for _, test := range []struct {
		vars map[string]string
		want string
	}{
		{map[string]string{"a": "Tm + b"}, "undefined variable name 'b'"},
		{map[string]string{"a": "b", "b": "a * 2"}, "in terms of itself"},
		{map[string]string{"1a": "Tm"}, "unsupported characters"},
		{map[string]string{"a-b": "Tm"}, "unsupported characters"},
		{map[string]string{"QNET": "Tm"}, "already a budget field"},
		{map[string]string{"qnet": "Tm"}, "already used by a budget store"},
		{map[string]string{"a": "Tm +"}, "output variable a"},
	} {
		t.Run(fmt.Sprint(test.vars), func(t *testing.T) {
			_, err := NewOutputter(t.TempDir(), false, test.vars, nil)
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("have error %v, want %q", err, test.want)
			}
		})
	}
}

func TestOutputterCreateDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/out"
	o, err := NewOutputter(dir, false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := o.Create(2000, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	w.Close()
	if _, err := os.Stat(StorePath(dir, "MLD", 2000)); err != nil {
		t.Error(err)
	}
}

func TestOutputterCloseTwice(t *testing.T) {
	o, err := NewOutputter(t.TempDir(), false, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	w, err := o.Create(2004, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := w.WriteDay(uniformBudget(0, 1, 1, nil)); err == nil {
		t.Error("expected an error writing to closed output")
	}
}
