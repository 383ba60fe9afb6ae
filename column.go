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
	"math"
	"sort"

	"github.com/ctessum/sparse"
)

// DayState holds one day of ocean state.
// T, U and V are (z, y, x) arrays of temperature [°C or K], zonal
// velocity [m/s] and meridional velocity [m/s]; H is the (y, x) mixed-layer
// depth [m]. NaN marks land or invalid cells. The core only reads it.
type DayState struct {
	T, U, V *sparse.DenseArray
	H       *sparse.DenseArray
}

// Column is the vertical profile of one grid column.
type Column struct {
	T, U, V []float64

	// H is the mixed-layer depth [m].
	H float64

	// Bottom is the number of valid levels.
	Bottom int
}

// ColumnDiagnostics are the mixed-layer properties of one column.
type ColumnDiagnostics struct {
	// Tm, Um and Vm are mixed-layer averaged temperature and velocities.
	Tm, Um, Vm float64

	// Tb is the temperature at the mixed-layer base.
	Tb float64

	// TzH is the vertical temperature gradient at the mixed-layer
	// base, with z positive downward [K/m].
	TzH float64

	// T0 is the temperature extrapolated to the surface.
	T0 float64
}

// missingColumn is returned for land and invalid-depth columns.
var missingColumn = ColumnDiagnostics{
	Tm: math.NaN(), Um: math.NaN(), Vm: math.NaN(),
	Tb: math.NaN(), TzH: math.NaN(), T0: math.NaN(),
}

// Diagnose calculates the mixed-layer diagnostics of column c, given level
// center depths and the matching half-level boundaries (see HalfLevels).
//
// Mixed-layer means weight each level by the length of its overlap with
// [0, h], so partial levels are counted exactly once. The base temperature
// and gradient come from linear interpolation between the two levels
// bracketing h; columns too shallow for that get a neutral base
// (Tb = Tm, TzH = 0). Land columns and columns with a non-finite or
// non-positive h get NaN everywhere.
func Diagnose(c Column, depth, zhalf []float64) ColumnDiagnostics {
	kbot := c.Bottom
	h := c.H
	if kbot <= 0 || !finite(h) || h <= 0 {
		return missingColumn
	}
	if kbot > len(depth) {
		kbot = len(depth)
	}
	if hmax := depth[kbot-1]; h > hmax {
		h = hmax
	}

	var d ColumnDiagnostics
	d.T0 = surfaceTemperature(c.T, depth, kbot)

	var ts, us, vs float64
	for k := 0; k < kbot; k++ {
		zl, zh := zhalf[k], zhalf[k+1]
		if h <= zl {
			break
		}
		if w := math.Min(h, zh) - zl; w > 0 {
			ts += c.T[k] * w
			us += c.U[k] * w
			vs += c.V[k] * w
		}
	}
	d.Tm = ts / h
	d.Um = us / h
	d.Vm = vs / h

	d.Tb, d.TzH = d.Tm, 0
	if kbot < 2 {
		return d
	}
	// Largest valid level whose center is not below h.
	valid := depth[:kbot]
	pos := sort.Search(len(valid), func(k int) bool { return valid[k] > h }) - 1
	if pos < 0 {
		pos = 0
	}
	if pos > kbot-2 {
		pos = kbot - 2
	}
	zlo, zhi := depth[pos], depth[pos+1]
	tlo, thi := c.T[pos], c.T[pos+1]
	if zhi > zlo && finite(tlo) && finite(thi) {
		alpha := (h - zlo) / (zhi - zlo)
		d.Tb = tlo + alpha*(thi-tlo)
		d.TzH = (thi - tlo) / (zhi - zlo)
	}
	return d
}

// surfaceTemperature linearly extrapolates the top two levels to z=0,
// falling back to the top level value.
func surfaceTemperature(t, depth []float64, kbot int) float64 {
	if kbot >= 2 && finite(t[0]) && finite(t[1]) && depth[1] > depth[0] {
		m := (t[1] - t[0]) / (depth[1] - depth[0])
		return t[0] - m*depth[0]
	}
	return t[0]
}

// Diagnostics holds (y, x) fields of mixed-layer diagnostics for one day.
type Diagnostics struct {
	Tm, Um, Vm, Tb, TzH, T0 *sparse.DenseArray
}

// Diagnose calculates mixed-layer diagnostics for every column of day d.
// Each column is processed independently; a failed column only affects
// its own outputs.
func (g *Grid) Diagnose(d *DayState) *Diagnostics {
	out := &Diagnostics{
		Tm:  nanField(g.Ny, g.Nx),
		Um:  nanField(g.Ny, g.Nx),
		Vm:  nanField(g.Ny, g.Nx),
		Tb:  nanField(g.Ny, g.Nx),
		TzH: nanField(g.Ny, g.Nx),
		T0:  nanField(g.Ny, g.Nx),
	}
	c := Column{
		T: make([]float64, g.Nz),
		U: make([]float64, g.Nz),
		V: make([]float64, g.Nz),
	}
	for j := 0; j < g.Ny; j++ {
		for i := 0; i < g.Nx; i++ {
			c.Bottom = g.Bottom[j*g.Nx+i]
			if c.Bottom <= 0 {
				continue
			}
			c.H = d.H.Get(j, i)
			for k := 0; k < c.Bottom; k++ {
				c.T[k] = d.T.Get(k, j, i)
				c.U[k] = d.U.Get(k, j, i)
				c.V[k] = d.V.Get(k, j, i)
			}
			cd := Diagnose(c, g.Depth, g.ZHalf)
			set2(out.Tm, cd.Tm, j, i)
			set2(out.Um, cd.Um, j, i)
			set2(out.Vm, cd.Vm, j, i)
			set2(out.Tb, cd.Tb, j, i)
			set2(out.TzH, cd.TzH, j, i)
			set2(out.T0, cd.T0, j, i)
		}
	}
	return out
}
