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
	"sort"
	"strconv"
	"strings"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// DailyInput supplies one year of daily ocean states.
type DailyInput interface {
	// NumDays returns the number of daily records available.
	NumDays() int

	// Depth returns the level center depths [m].
	Depth() ([]float64, error)

	// Latitude returns the latitude of each grid row [degrees].
	Latitude() ([]float64, error)

	// Day returns the ocean state for day i.
	Day(i int) (*DayState, error)
}

// Keywords used to locate variables and dimensions in daily files.
var (
	TemperatureNames = []string{"thetao", "votemper", "temp", "temperature"}
	UVelocityNames   = []string{"uo", "vozocrtx", "u"}
	VVelocityNames   = []string{"vo", "vomecrty", "v"}
	MLDNames         = []string{"mlotst", "mld", "ml_depth"}

	depthDims = []string{"depth", "deptht", "nav_lev", "lev", "z"}
	latDims   = []string{"latitude", "nav_lat", "lat", "y", "j"}
	lonDims   = []string{"longitude", "nav_lon", "lon", "x", "i"}
)

// InputFiles returns the sorted daily files matching pattern in dir, where
// the [YEAR] wildcard in pattern is replaced by year.
func InputFiles(dir, pattern string, year int) ([]string, error) {
	p := strings.Replace(pattern, "[YEAR]", strconv.Itoa(year), -1)
	files, err := filepath.Glob(filepath.Join(dir, p))
	if err != nil {
		return nil, fmt.Errorf("mlheat: input file pattern %s: %v", p, err)
	}
	sort.Strings(files)
	return files, nil
}

// NetCDFDays reads daily ocean states from a sorted list of netCDF files
// holding one day each. Variables and dimensions are located by keyword.
type NetCDFDays struct {
	Files []string
}

// NumDays returns the number of files.
func (n *NetCDFDays) NumDays() int { return len(n.Files) }

// Depth returns the depth coordinate of the first file. If there is none,
// level indices are returned instead.
func (n *NetCDFDays) Depth() ([]float64, error) {
	var depth []float64
	err := n.withFile(0, func(ff *cdf.File) error {
		for _, k := range depthDims {
			if v := varByName(ff, k); v != "" && len(ff.Header.Lengths(v)) == 1 {
				d, err := readVar(ff, v)
				if err != nil {
					return err
				}
				depth = d.Elements
				return nil
			}
		}
		tName, err := pickVar(ff, TemperatureNames)
		if err != nil {
			return err
		}
		zdim, _, err := zyxDims(ff, tName)
		if err != nil {
			return err
		}
		if v := varByName(ff, zdim); v != "" && len(ff.Header.Lengths(v)) == 1 {
			d, err := readVar(ff, v)
			if err != nil {
				return err
			}
			depth = d.Elements
			return nil
		}
		nz := dimLengths(ff, tName)[indexOf(ff.Header.Dimensions(tName), zdim)]
		depth = make([]float64, nz)
		for k := range depth {
			depth[k] = float64(k)
		}
		return nil
	})
	return depth, err
}

// Latitude returns the latitude of each row from the first file. A 2-D
// latitude coordinate contributes its first column.
func (n *NetCDFDays) Latitude() ([]float64, error) {
	var lat []float64
	err := n.withFile(0, func(ff *cdf.File) error {
		for _, k := range latDims {
			v := varByName(ff, k)
			if v == "" {
				continue
			}
			nd := len(ff.Header.Lengths(v))
			if nd != 1 && nd != 2 {
				continue
			}
			d, err := readVar(ff, v)
			if err != nil {
				return err
			}
			if nd == 1 {
				lat = d.Elements
				return nil
			}
			lat = make([]float64, d.Shape[0])
			for j := range lat {
				lat[j] = d.Get(j, 0)
			}
			return nil
		}
		return fmt.Errorf("mlheat: latitude coordinate not found in %s", n.Files[0])
	})
	return lat, err
}

// Day reads the ocean state from file i.
func (n *NetCDFDays) Day(i int) (*DayState, error) {
	d := new(DayState)
	err := n.withFile(i, func(ff *cdf.File) error {
		var err error
		dst := []**sparse.DenseArray{&d.T, &d.U, &d.V}
		for k, keys := range [][]string{TemperatureNames, UVelocityNames, VVelocityNames} {
			if *dst[k], err = read3D(ff, keys); err != nil {
				return err
			}
		}
		if d.H, err = read2D(ff, MLDNames); err != nil {
			return err
		}
		for _, a := range []*sparse.DenseArray{d.U, d.V} {
			if !sameShape(a.Shape, d.T.Shape) {
				return fmt.Errorf("mlheat: velocity shape %v does not match temperature shape %v", a.Shape, d.T.Shape)
			}
		}
		if !sameShape(d.H.Shape, d.T.Shape[1:]) {
			return fmt.Errorf("mlheat: mixed-layer depth shape %v does not match grid %v", d.H.Shape, d.T.Shape[1:])
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (n *NetCDFDays) withFile(i int, fn func(*cdf.File) error) error {
	if i < 0 || i >= len(n.Files) {
		return fmt.Errorf("mlheat: day %d out of range [0, %d)", i, len(n.Files))
	}
	f, err := os.Open(n.Files[i])
	if err != nil {
		return fmt.Errorf("mlheat: opening daily file: %v", err)
	}
	defer f.Close()
	ff, err := cdf.Open(f)
	if err != nil {
		return fmt.Errorf("mlheat: reading daily file %s: %v", n.Files[i], err)
	}
	if err := fn(ff); err != nil {
		return fmt.Errorf("%v (%s)", err, n.Files[i])
	}
	return nil
}

// pickVar returns the variable whose name equals one of keys, ignoring case.
// Failing that, it returns the first data variable, and then the first
// variable of any kind, whose lower-case name contains one of keys.
func pickVar(ff *cdf.File, keys []string) (string, error) {
	vars := ff.Header.Variables()
	for _, k := range keys {
		for _, v := range vars {
			if strings.ToLower(v) == k {
				return v, nil
			}
		}
	}
	dims := make(map[string]bool)
	for _, d := range ff.Header.Dimensions("") {
		dims[d] = true
	}
	for _, dataOnly := range []bool{true, false} {
		for _, v := range vars {
			if dataOnly && dims[v] {
				continue
			}
			lv := strings.ToLower(v)
			for _, k := range keys {
				if strings.Contains(lv, k) {
					return v, nil
				}
			}
		}
	}
	return "", fmt.Errorf("mlheat: no variable found for keys %v", keys)
}

// varByName returns the variable named name, ignoring case, or "".
func varByName(ff *cdf.File, name string) string {
	for _, v := range ff.Header.Variables() {
		if strings.ToLower(v) == name {
			return v
		}
	}
	return ""
}

// findDim returns the first dimension in dims matching one of keys,
// trying keys in order. Dimensions in skip are ignored.
func findDim(dims []string, keys []string, skip ...string) string {
	for _, k := range keys {
		for _, d := range dims {
			if indexOf(skip, d) >= 0 {
				continue
			}
			ld := strings.ToLower(d)
			if ld == k || strings.Contains(ld, k) {
				return d
			}
		}
	}
	return ""
}

// dimLengths returns the dimension lengths of v, with a record dimension
// counted as a single record.
func dimLengths(ff *cdf.File, v string) []int {
	l := append([]int(nil), ff.Header.Lengths(v)...)
	if len(l) > 0 && l[0] == 0 {
		l[0] = 1
	}
	return l
}

// squeezable returns the dimensions of v other than keep, which must all
// be singletons.
func squeezable(ff *cdf.File, v string, keep ...string) error {
	dims := ff.Header.Dimensions(v)
	lengths := dimLengths(ff, v)
	for i, d := range dims {
		if indexOf(keep, d) < 0 && lengths[i] != 1 {
			return fmt.Errorf("mlheat: variable %s has extra dimension %s of length %d", v, d, lengths[i])
		}
	}
	return nil
}

// zyxDims returns the vertical dimension of v and its horizontal dimensions.
func zyxDims(ff *cdf.File, v string) (zdim string, yx [2]string, err error) {
	dims := squeezeTime(ff, v)
	zdim = findDim(dims, depthDims)
	yx[0] = findDim(dims, latDims, zdim)
	yx[1] = findDim(dims, lonDims, zdim, yx[0])
	if zdim == "" || yx[0] == "" || yx[1] == "" {
		return "", yx, fmt.Errorf("mlheat: cannot infer (z, y, x) from dimensions %v of %s", dims, v)
	}
	return zdim, yx, nil
}

// squeezeTime returns the dimensions of v without singleton time dimensions.
func squeezeTime(ff *cdf.File, v string) []string {
	dims := ff.Header.Dimensions(v)
	lengths := dimLengths(ff, v)
	var out []string
	for i, d := range dims {
		if strings.Contains(strings.ToLower(d), "time") && lengths[i] == 1 {
			continue
		}
		out = append(out, d)
	}
	return out
}

// read3D reads the variable matching keys as a (z, y, x) array.
func read3D(ff *cdf.File, keys []string) (*sparse.DenseArray, error) {
	v, err := pickVar(ff, keys)
	if err != nil {
		return nil, err
	}
	zdim, yx, err := zyxDims(ff, v)
	if err != nil {
		return nil, err
	}
	return readOrdered(ff, v, zdim, yx[0], yx[1])
}

// read2D reads the variable matching keys as a (y, x) array. If the
// horizontal dimensions cannot be identified, the last two are used.
func read2D(ff *cdf.File, keys []string) (*sparse.DenseArray, error) {
	v, err := pickVar(ff, keys)
	if err != nil {
		return nil, err
	}
	dims := squeezeTime(ff, v)
	ydim := findDim(dims, latDims)
	xdim := findDim(dims, lonDims, ydim)
	if ydim == "" || xdim == "" {
		if len(dims) < 2 {
			return nil, fmt.Errorf("mlheat: cannot infer (y, x) from dimensions %v of %s", dims, v)
		}
		ydim, xdim = dims[len(dims)-2], dims[len(dims)-1]
	}
	return readOrdered(ff, v, ydim, xdim)
}

// readOrdered reads v and transposes it so its dimensions are in the
// given order. All other dimensions must be singletons.
func readOrdered(ff *cdf.File, v string, order ...string) (*sparse.DenseArray, error) {
	if err := squeezable(ff, v, order...); err != nil {
		return nil, err
	}
	data, err := readVar(ff, v)
	if err != nil {
		return nil, err
	}
	dims := ff.Header.Dimensions(v)
	perm := make([]int, len(order))
	for i, d := range order {
		perm[i] = indexOf(dims, d)
	}
	return permute(data, perm), nil
}

// readVar reads the first record of v, applying _FillValue, missing_value,
// scale_factor and add_offset.
func readVar(ff *cdf.File, v string) (*sparse.DenseArray, error) {
	dims := dimLengths(ff, v)
	n := 1
	for _, l := range dims {
		n *= l
	}
	r := ff.Reader(v, nil, nil)
	if r == nil {
		return nil, fmt.Errorf("mlheat: variable %s not in file", v)
	}
	buf := r.Zero(n)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("mlheat: read netcdf variable %s: %v", v, err)
	}
	raw, err := toFloat64(buf)
	if err != nil {
		return nil, fmt.Errorf("mlheat: variable %s: %v", v, err)
	}

	var fills []float64
	for _, a := range []string{"_FillValue", "missing_value"} {
		if f, ok := attrFloat(ff, v, a); ok {
			fills = append(fills, f)
		}
	}
	scale, ok := attrFloat(ff, v, "scale_factor")
	if !ok {
		scale = 1
	}
	offset, _ := attrFloat(ff, v, "add_offset")

	data := sparse.ZerosDense(dims...)
	for i, val := range raw {
		masked := false
		for _, f := range fills {
			if val == f {
				masked = true
				break
			}
		}
		if masked {
			data.Elements[i] = math.NaN()
		} else {
			data.Elements[i] = val*scale + offset
		}
	}
	return data, nil
}

// attrFloat returns the first value of numeric attribute a of v.
func attrFloat(ff *cdf.File, v, a string) (float64, bool) {
	vals, err := toFloat64(ff.Header.GetAttribute(v, a))
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

func toFloat64(buf interface{}) ([]float64, error) {
	var out []float64
	switch b := buf.(type) {
	case []float32:
		out = make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
	case []float64:
		out = append(out, b...)
	case []int16:
		out = make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
	case []int32:
		out = make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
	case []uint8:
		out = make([]float64, len(b))
		for i, v := range b {
			out[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
	return out, nil
}

// permute returns a copy of a with its dimensions reordered so that
// dimension i of the result is dimension perm[i] of a. Dimensions of a not
// in perm must be singletons.
func permute(a *sparse.DenseArray, perm []int) *sparse.DenseArray {
	shape := make([]int, len(perm))
	srcStride := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = a.Shape[p]
		s := 1
		for k := p + 1; k < len(a.Shape); k++ {
			s *= a.Shape[k]
		}
		srcStride[i] = s
	}
	out := sparse.ZerosDense(shape...)
	idx := make([]int, len(shape))
	for n := range out.Elements {
		src := 0
		for i, v := range idx {
			src += v * srcStride[i]
		}
		out.Elements[n] = a.Elements[src]
		for i := len(idx) - 1; i >= 0; i-- {
			idx[i]++
			if idx[i] < shape[i] {
				break
			}
			idx[i] = 0
		}
	}
	return out
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
