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

// Package flatrec reads and writes headerless stores of fixed-size
// records, each holding ny*nx little-endian float32 values in row-major
// order. One record is written per simulated day.
package flatrec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/sparse"
)

const itemSize = 4 // bytes per float32

// ErrShortRecord is returned when a record cannot be read completely.
var ErrShortRecord = errors.New("flatrec: short record")

// Writer appends records to a store.
type Writer struct {
	f      *os.File
	ny, nx int
	buf    []byte
	n      int
}

// Create creates the store at path, truncating any existing store.
func Create(path string, ny, nx int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("flatrec: creating store: %v", err)
	}
	return &Writer{f: f, ny: ny, nx: nx, buf: make([]byte, ny*nx*itemSize)}, nil
}

// Append writes a (ny, nx) field as the next record.
func (w *Writer) Append(field *sparse.DenseArray) error {
	if len(field.Elements) != w.ny*w.nx {
		return fmt.Errorf("flatrec: %s: field has %d elements but records hold %d", w.f.Name(), len(field.Elements), w.ny*w.nx)
	}
	for i, v := range field.Elements {
		binary.LittleEndian.PutUint32(w.buf[i*itemSize:], math.Float32bits(float32(v)))
	}
	if _, err := w.f.Write(w.buf); err != nil {
		return fmt.Errorf("flatrec: writing record %d to %s: %v", w.n, w.f.Name(), err)
	}
	w.n++
	return nil
}

// Records returns the number of records written so far.
func (w *Writer) Records() int { return w.n }

// Close closes the store.
func (w *Writer) Close() error { return w.f.Close() }

// ReadRecord reads record idx of a (ny, nx) store from r.
func ReadRecord(r io.ReaderAt, idx, ny, nx int) (*sparse.DenseArray, error) {
	size := ny * nx * itemSize
	buf := make([]byte, size)
	n, err := r.ReadAt(buf, int64(idx)*int64(size))
	if n != size {
		if err == nil || err == io.EOF {
			err = ErrShortRecord
		}
		return nil, fmt.Errorf("flatrec: cannot read record %d: %w", idx, err)
	}
	out := sparse.ZerosDense(ny, nx)
	for i := range out.Elements {
		out.Elements[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[i*itemSize:])))
	}
	return out, nil
}

// ReadFile reads record idx of the (ny, nx) store at path.
func ReadFile(path string, idx, ny, nx int) (*sparse.DenseArray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flatrec: %v", err)
	}
	defer f.Close()
	d, err := ReadRecord(f, idx, ny, nx)
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	return d, nil
}

// Count returns the number of complete (ny, nx) records in the store at path.
func Count(path string, ny, nx int) (int, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("flatrec: %v", err)
	}
	return int(fi.Size() / int64(ny*nx*itemSize)), nil
}
