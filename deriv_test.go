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
	"testing"

	"github.com/ctessum/sparse"
)

func TestCenteredDerivatives(t *testing.T) {
	const ny, nx = 4, 5
	const ax, ay = 0.3, -1.2
	f := sparse.ZerosDense(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			f.Set(ax*float64(i)+ay*float64(j)+7, j, i)
		}
	}
	dxRow := []float64{2, 4, 8, 16}
	const dy = 3.

	ddx := DdxCentered(f, dxRow)
	ddy := DdyCentered(f, dy)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			vx := ddx.Get(j, i)
			if i == 0 || i == nx-1 {
				if !math.IsNaN(vx) {
					t.Errorf("ddx (%d, %d): have %g, want NaN", j, i, vx)
				}
			} else if absDifferent(vx, ax/dxRow[j], testTolerance) {
				t.Errorf("ddx (%d, %d): have %g, want %g", j, i, vx, ax/dxRow[j])
			}

			vy := ddy.Get(j, i)
			if j == 0 || j == ny-1 {
				if !math.IsNaN(vy) {
					t.Errorf("ddy (%d, %d): have %g, want NaN", j, i, vy)
				}
			} else if absDifferent(vy, ay/dy, testTolerance) {
				t.Errorf("ddy (%d, %d): have %g, want %g", j, i, vy, ay/dy)
			}
		}
	}
}

func TestCenteredDerivativesNaNNeighbor(t *testing.T) {
	f := constField(3, 3, 1)
	f.Set(math.NaN(), 1, 2)
	ddx := DdxCentered(f, []float64{1, 1, 1})
	if !math.IsNaN(ddx.Get(1, 1)) {
		t.Errorf("have %g, want NaN next to a land cell", ddx.Get(1, 1))
	}
	if ddx.Get(0, 1) != 0 {
		t.Errorf("have %g, want 0 away from the land cell", ddx.Get(0, 1))
	}
}

func TestCenteredDerivativesUniform(t *testing.T) {
	f := constField(4, 4, 3)
	ddx := DdxCentered(f, []float64{1, 2, 3, 4})
	ddy := DdyCentered(f, 5)
	for j := 1; j < 3; j++ {
		for i := 1; i < 3; i++ {
			if ddx.Get(j, i) != 0 || ddy.Get(j, i) != 0 {
				t.Errorf("(%d, %d): have ddx=%g ddy=%g, want 0", j, i, ddx.Get(j, i), ddy.Get(j, i))
			}
		}
	}
}
