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

import "github.com/ctessum/sparse"

// DdxCentered returns the centered zonal derivative of the (y, x) field f,
// where dxRow holds the zonal spacing of each row. The first and last
// columns are NaN.
func DdxCentered(f *sparse.DenseArray, dxRow []float64) *sparse.DenseArray {
	ny, nx := f.Shape[0], f.Shape[1]
	out := nanField(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 1; i < nx-1; i++ {
			set2(out, (f.Get(j, i+1)-f.Get(j, i-1))/(2*dxRow[j]), j, i)
		}
	}
	return out
}

// DdyCentered returns the centered meridional derivative of the (y, x)
// field f with row spacing dy. The first and last rows are NaN.
func DdyCentered(f *sparse.DenseArray, dy float64) *sparse.DenseArray {
	ny, nx := f.Shape[0], f.Shape[1]
	out := nanField(ny, nx)
	for j := 1; j < ny-1; j++ {
		for i := 0; i < nx; i++ {
			set2(out, (f.Get(j+1, i)-f.Get(j-1, i))/(2*dy), j, i)
		}
	}
	return out
}
