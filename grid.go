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

// Package mlheat calculates daily, grid-resolved ocean mixed-layer heat budgets.
//
// The time rate of change of mixed-layer averaged temperature is split into
// net surface heat flux (QNET), non-flux horizontal advection (ADV),
// entrainment (ENT), lateral diffusion (DIFF) and vertical diffusion (DIFFV),
// which sum to the observed tendency up to a closure residual.
package mlheat

import (
	"fmt"
	"math"

	"github.com/ctessum/sparse"
)

// Version gives the version number.
const Version = "0.1.0"

// physical constants
const (
	earthRadius = 6378000.0 // m
	rho         = 1026.0    // kg/m3, reference sea water density
	cp          = 4000.0    // J/(kg K), specific heat of sea water
	dt          = 86400.0   // s, one day

	// Two-band shortwave transmittance (Paulson and Simpson, 1977, type I water).
	swPartition = 0.77
	swGamma1    = 1.5  // m
	swGamma2    = 14.0 // m
)

// DefaultResolution is the nominal horizontal grid resolution [degrees]
// of the 1/12° reanalysis products this package is usually run on.
const DefaultResolution = 1.0 / 12.0

// Grid holds the horizontal and vertical layout of the model domain.
// It is read-only after construction and may be shared between years.
type Grid struct {
	Nx, Ny, Nz int

	// Depth holds level center depths [m], positive downward,
	// strictly increasing with level 0 nearest the surface.
	Depth []float64

	// ZHalf holds the Nz+1 half-level boundaries [m].
	ZHalf []float64

	// Bottom holds, for each column (index j*Nx+i), the number of
	// valid vertical levels. Zero marks land.
	Bottom []int

	// Dy is the meridional grid spacing [m].
	Dy float64

	// DxRow is the zonal grid spacing [m] for each row.
	DxRow []float64
}

// NewGrid creates a grid from level depths [m], row latitudes [degrees],
// the nominal grid resolution [degrees] and the per-column bottom index.
// len(bottom) must equal len(lat)*nx.
func NewGrid(depth, lat []float64, resolution float64, nx int, bottom []int) (*Grid, error) {
	if len(depth) == 0 {
		return nil, fmt.Errorf("mlheat: grid has no vertical levels")
	}
	for k := 1; k < len(depth); k++ {
		if !(depth[k] > depth[k-1]) {
			return nil, fmt.Errorf("mlheat: level depths must be strictly increasing; depth[%d]=%g, depth[%d]=%g",
				k-1, depth[k-1], k, depth[k])
		}
	}
	if !(resolution > 0) {
		return nil, fmt.Errorf("mlheat: grid resolution=%g but should be >0", resolution)
	}
	if len(bottom) != len(lat)*nx {
		return nil, fmt.Errorf("mlheat: bottom index has %d columns but grid has %d", len(bottom), len(lat)*nx)
	}
	for c, kb := range bottom {
		if kb < 0 || kb > len(depth) {
			return nil, fmt.Errorf("mlheat: bottom index %d at column %d is outside [0, %d]", kb, c, len(depth))
		}
	}
	g := &Grid{
		Nx:     nx,
		Ny:     len(lat),
		Nz:     len(depth),
		Depth:  depth,
		ZHalf:  HalfLevels(depth),
		Bottom: bottom,
	}
	g.Dy, g.DxRow = Metrics(lat, resolution)
	return g, nil
}

// Metrics returns the meridional spacing dy and the zonal spacing of each
// row [m] for a regular latitude-longitude grid with the given resolution
// [degrees] and row latitudes [degrees].
func Metrics(lat []float64, resolution float64) (dy float64, dxRow []float64) {
	dy = 2 * math.Pi * earthRadius * resolution / 360
	dxRow = make([]float64, len(lat))
	for j, l := range lat {
		dxRow[j] = dy * math.Cos(l*math.Pi/180)
	}
	return dy, dxRow
}

// HalfLevels returns the half-level boundaries for the given level
// center depths. The top boundary is the surface, interior boundaries are
// midway between centers, and the bottom boundary is extrapolated half a
// level below the deepest center (or 1 m for a single level).
func HalfLevels(depth []float64) []float64 {
	nz := len(depth)
	zhalf := make([]float64, nz+1)
	for k := 0; k < nz-1; k++ {
		zhalf[k+1] = 0.5 * (depth[k] + depth[k+1])
	}
	if nz >= 2 {
		zhalf[nz] = depth[nz-1] + 0.5*(depth[nz-1]-depth[nz-2])
	} else {
		zhalf[nz] = depth[nz-1] + 1
	}
	return zhalf
}

// BottomIndex returns, for each column of the (z, y, x) array t, the index of
// the first non-finite level, or the number of levels if the whole column
// is finite.
func BottomIndex(t *sparse.DenseArray) []int {
	nz, ny, nx := t.Shape[0], t.Shape[1], t.Shape[2]
	bottom := make([]int, ny*nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			kb := nz
			for k := 0; k < nz; k++ {
				if !finite(t.Get(k, j, i)) {
					kb = k
					break
				}
			}
			bottom[j*nx+i] = kb
		}
	}
	return bottom
}

// Land returns whether column (j, i) holds no valid levels.
func (g *Grid) Land(j, i int) bool { return g.Bottom[j*g.Nx+i] <= 0 }

// nanField returns a (ny, nx) array filled with NaN.
func nanField(ny, nx int) *sparse.DenseArray {
	a := sparse.ZerosDense(ny, nx)
	for i := range a.Elements {
		a.Elements[i] = math.NaN()
	}
	return a
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// set2 stores v at (j, i) of the (y, x) array a. sparse.DenseArray.Set
// ignores zero values, which would leave NaN-filled cells untouched.
func set2(a *sparse.DenseArray, v float64, j, i int) {
	a.Elements[j*a.Shape[1]+i] = v
}

// undefined reports whether column (j, i) is land or has no valid
// mixed-layer depth in h.
func (g *Grid) undefined(h *sparse.DenseArray, j, i int) bool {
	return g.Land(j, i) || !(h.Get(j, i) > 0)
}
