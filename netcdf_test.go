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
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/mlheat/internal/flatrec"
)

type ncVar struct {
	name  string
	dims  []string
	data  interface{}
	attrs map[string]interface{}
}

// writeNC writes a netCDF file with the given dimensions and variables.
func writeNC(t *testing.T, path string, dims []string, lengths []int, vars []ncVar) {
	h := cdf.NewHeader(dims, lengths)
	for _, v := range vars {
		h.AddVariable(v.name, v.dims, v.data)
		for a, val := range v.attrs {
			h.AddAttribute(v.name, a, val)
		}
	}
	h.Define()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	ff, err := cdf.Create(f, h)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range vars {
		// Write reports io.EOF once the variable is complete.
		if _, err := ff.Writer(v.name, nil, nil).Write(v.data); err != nil && err != io.EOF {
			t.Fatalf("writing %s: %v", v.name, err)
		}
	}
}

const ncNz, ncNy, ncNx = 2, 3, 4

func ncTemp(k, j, i, day int) float64 {
	return 10 + float64(k) + 0.5*float64(j) + 0.25*float64(i) + float64(day)
}

// writeDailyFile writes a regular-grid daily file. Zonal velocity is
// stored as (time, longitude, latitude, depth) and the mixed-layer depth
// is packed into int16.
func writeDailyFile(t *testing.T, path string, day int) {
	temp := make([]float32, ncNz*ncNy*ncNx)
	uo := make([]float64, ncNz*ncNy*ncNx)
	vo := make([]float32, ncNz*ncNy*ncNx)
	mld := make([]int16, ncNy*ncNx)
	for k := 0; k < ncNz; k++ {
		for j := 0; j < ncNy; j++ {
			for i := 0; i < ncNx; i++ {
				temp[k*ncNy*ncNx+j*ncNx+i] = float32(ncTemp(k, j, i, day))
				uo[i*ncNy*ncNz+j*ncNz+k] = float64(i) + 0.125*float64(k)
				vo[k*ncNy*ncNx+j*ncNx+i] = -0.5 * float32(j)
			}
		}
	}
	temp[1*ncNy*ncNx] = -999
	for c := range mld {
		mld[c] = 38
	}
	mld[ncNx-1] = -32767

	writeNC(t, path,
		[]string{"time", "depth", "latitude", "longitude"},
		[]int{1, ncNz, ncNy, ncNx},
		[]ncVar{
			{name: "depth", dims: []string{"depth"}, data: []float32{5, 15}},
			{name: "latitude", dims: []string{"latitude"}, data: []float32{-1, 0, 1}},
			{name: "longitude", dims: []string{"longitude"}, data: []float32{0, 1, 2, 3}},
			{name: "thetao", dims: []string{"time", "depth", "latitude", "longitude"}, data: temp,
				attrs: map[string]interface{}{"_FillValue": []float32{-999}}},
			{name: "uo", dims: []string{"time", "longitude", "latitude", "depth"}, data: uo},
			{name: "vo", dims: []string{"time", "depth", "latitude", "longitude"}, data: vo},
			{name: "mlotst", dims: []string{"time", "latitude", "longitude"}, data: mld,
				attrs: map[string]interface{}{
					"_FillValue":   []int16{-32767},
					"scale_factor": []float32{0.5},
					"add_offset":   []float32{1},
				}},
		})
}

func TestInputFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"day_20050102.nc", "day_20050101.nc", "day_20060101.nc", "other_20050101.nc"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := InputFiles(dir, "day_[YEAR]*.nc", 2005)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(dir, "day_20050101.nc"), filepath.Join(dir, "day_20050102.nc")}
	if len(files) != 2 || files[0] != want[0] || files[1] != want[1] {
		t.Errorf("have %v, want %v", files, want)
	}
}

func TestNetCDFDays(t *testing.T) {
	dir := t.TempDir()
	for d := 0; d < 2; d++ {
		writeDailyFile(t, filepath.Join(dir, "day"+string(rune('0'+d))+".nc"), d)
	}
	files, err := InputFiles(dir, "day*.nc", 0)
	if err != nil {
		t.Fatal(err)
	}
	n := &NetCDFDays{Files: files}
	if n.NumDays() != 2 {
		t.Fatalf("have %d days, want 2", n.NumDays())
	}
	depth, err := n.Depth()
	if err != nil {
		t.Fatal(err)
	}
	if len(depth) != 2 || depth[0] != 5 || depth[1] != 15 {
		t.Errorf("depth: have %v", depth)
	}
	lat, err := n.Latitude()
	if err != nil {
		t.Fatal(err)
	}
	if len(lat) != 3 || lat[0] != -1 || lat[2] != 1 {
		t.Errorf("latitude: have %v", lat)
	}

	d, err := n.Day(1)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range []*sparse.DenseArray{d.T, d.U, d.V} {
		if !sameShape(a.Shape, []int{ncNz, ncNy, ncNx}) {
			t.Fatalf("shape: have %v", a.Shape)
		}
	}
	if !sameShape(d.H.Shape, []int{ncNy, ncNx}) {
		t.Fatalf("mixed-layer depth shape: have %v", d.H.Shape)
	}
	for k := 0; k < ncNz; k++ {
		for j := 0; j < ncNy; j++ {
			for i := 0; i < ncNx; i++ {
				if k == 1 && j == 0 && i == 0 {
					if v := d.T.Get(k, j, i); !math.IsNaN(v) {
						t.Errorf("fill value: have %g, want NaN", v)
					}
				} else if v := d.T.Get(k, j, i); v != ncTemp(k, j, i, 1) {
					t.Errorf("T (%d, %d, %d): have %g, want %g", k, j, i, v, ncTemp(k, j, i, 1))
				}
				if v, want := d.U.Get(k, j, i), float64(i)+0.125*float64(k); v != want {
					t.Errorf("U (%d, %d, %d): have %g, want %g", k, j, i, v, want)
				}
				if v := d.V.Get(k, j, i); v != -0.5*float64(j) {
					t.Errorf("V (%d, %d, %d): have %g", k, j, i, v)
				}
			}
		}
	}
	if v := d.H.Get(1, 1); v != 20 {
		t.Errorf("unpacked mixed-layer depth: have %g, want 20", v)
	}
	if v := d.H.Get(0, ncNx-1); !math.IsNaN(v) {
		t.Errorf("packed fill value: have %g, want NaN", v)
	}

	if _, err := n.Day(2); err == nil {
		t.Error("expected an out of range error")
	}
}

func TestNetCDFDaysCurvilinear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nemo.nc")
	size := ncNz * ncNy * ncNx
	lat := make([]float32, ncNy*ncNx)
	for j := 0; j < ncNy; j++ {
		for i := 0; i < ncNx; i++ {
			lat[j*ncNx+i] = float32(20+j) + 0.125*float32(i)
		}
	}
	dims := []string{"deptht", "y", "x"}
	writeNC(t, path, dims, []int{ncNz, ncNy, ncNx}, []ncVar{
		{name: "nav_lat", dims: []string{"y", "x"}, data: lat},
		{name: "votemper", dims: dims, data: make([]float32, size)},
		{name: "vozocrtx", dims: dims, data: make([]float32, size)},
		{name: "vomecrty", dims: dims, data: make([]float32, size)},
		{name: "mld", dims: []string{"y", "x"}, data: make([]float32, ncNy*ncNx)},
	})
	n := &NetCDFDays{Files: []string{path}}
	l, err := n.Latitude()
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != ncNy || l[0] != 20 || l[2] != 22 {
		t.Errorf("latitude: have %v", l)
	}
	depth, err := n.Depth()
	if err != nil {
		t.Fatal(err)
	}
	if len(depth) != ncNz || depth[0] != 0 || depth[1] != 1 {
		t.Errorf("level indices: have %v", depth)
	}
	if _, err := n.Day(0); err != nil {
		t.Error(err)
	}
}

func TestNetCDFDaysMissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "partial.nc")
	dims := []string{"depth", "lat", "lon"}
	writeNC(t, path, dims, []int{1, 2, 2}, []ncVar{
		{name: "thetao", dims: dims, data: make([]float32, 4)},
		{name: "uo", dims: dims, data: make([]float32, 4)},
	})
	n := &NetCDFDays{Files: []string{path}}
	_, err := n.Day(0)
	if err == nil || !strings.Contains(err.Error(), path) {
		t.Errorf("have error %v, want one naming %s", err, path)
	}
	if _, err := n.Latitude(); err == nil {
		t.Error("expected a missing latitude error")
	}
}

func TestPermute(t *testing.T) {
	a := sparse.ZerosDense(2, 3)
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			a.Set(float64(10*j+i), j, i)
		}
	}
	b := permute(a, []int{1, 0})
	if !sameShape(b.Shape, []int{3, 2}) {
		t.Fatalf("shape: have %v", b.Shape)
	}
	for j := 0; j < 2; j++ {
		for i := 0; i < 3; i++ {
			if b.Get(i, j) != a.Get(j, i) {
				t.Errorf("(%d, %d): have %g, want %g", i, j, b.Get(i, j), a.Get(j, i))
			}
		}
	}
}

func TestYearRunNetCDF(t *testing.T) {
	in, out, fluxDir := t.TempDir(), t.TempDir(), t.TempDir()
	for d := 0; d < 3; d++ {
		writeDailyFile(t, filepath.Join(in, "glorys_2005010"+string(rune('1'+d))+".nc"), d)
	}
	writeFluxStores(t, fluxDir, DefaultFluxFiles, 8, ncNy, ncNx)

	files, err := InputFiles(in, "glorys_[YEAR]*.nc", 2005)
	if err != nil {
		t.Fatal(err)
	}
	flux, err := NewFluxRecords(fluxDir, DefaultFluxFiles, 2005, 2004, 4)
	if err != nil {
		t.Fatal(err)
	}
	o, err := NewOutputter(out, true, map[string]string{"QNETkpd": "kpd(QNET)"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	r := &YearRun{
		Year:       2005,
		Config:     &cfg,
		Resolution: DefaultResolution,
		Input:      &NetCDFDays{Files: files},
		Flux:       flux,
		Output:     o,
	}
	if err := r.Run(); err != nil {
		t.Fatal(err)
	}

	for _, prefix := range []string{"T_ML", "ten", "qnet", "we", "QNETkpd"} {
		n, err := flatrec.Count(StorePath(out, prefix, 2005), ncNy, ncNx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 2 {
			t.Errorf("%s: have %d records, want 2", prefix, n)
		}
	}
	tm, err := flatrec.ReadFile(StorePath(out, "T_ML", 2005), 1, ncNy, ncNx)
	if err != nil {
		t.Fatal(err)
	}
	// Both levels lie within the 20 m mixed layer; the deeper one is
	// clipped at 15 m.
	want := (ncTemp(0, 1, 2, 1)*10 + ncTemp(1, 1, 2, 1)*5) / 15
	if v := tm.Get(1, 2); different(v, want, 1e-6) {
		t.Errorf("T_ML: have %g, want %g", v, want)
	}
	ten, err := flatrec.ReadFile(StorePath(out, "ten", 2005), 1, ncNy, ncNx)
	if err != nil {
		t.Fatal(err)
	}
	if v := ten.Get(1, 2); different(v, 1/dt, 1e-5) {
		t.Errorf("tendency: have %g, want %g", v, 1/dt)
	}
}

func TestYearRunShortFlux(t *testing.T) {
	in, fluxDir := t.TempDir(), t.TempDir()
	for d := 0; d < 3; d++ {
		writeDailyFile(t, filepath.Join(in, "d"+string(rune('0'+d))+".nc"), d)
	}
	// One record only, so the second transition day is missing.
	writeFluxStores(t, fluxDir, DefaultFluxFiles, 1, ncNy, ncNx)
	files, err := InputFiles(in, "d*.nc", 1999)
	if err != nil {
		t.Fatal(err)
	}
	flux, err := NewFluxRecords(fluxDir, DefaultFluxFiles, 1999, 1999, 365)
	if err != nil {
		t.Fatal(err)
	}
	out := &memOutput{}
	cfg := DefaultConfig()
	r := &YearRun{Year: 1999, Config: &cfg, Resolution: DefaultResolution,
		Input: &NetCDFDays{Files: files}, Flux: flux, Output: out}
	if err := r.Run(); !errors.Is(err, flatrec.ErrShortRecord) {
		t.Errorf("have error %v, want ErrShortRecord", err)
	}
	if len(out.budgets) != 1 {
		t.Errorf("have %d days written, want 1", len(out.budgets))
	}
}
