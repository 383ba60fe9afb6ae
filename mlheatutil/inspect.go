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

package mlheatutil

import (
	"fmt"
	"math"

	"github.com/GaryBoone/GoStats/stats"
	"github.com/spatialmodel/mlheat/internal/flatrec"
	"gonum.org/v1/gonum/floats"
)

// RecordStats summarizes the finite values of one record.
type RecordStats struct {
	Finite         int
	Min, Max, Mean float64

	// Std is the population standard deviation.
	Std float64
}

func (s RecordStats) String() string {
	return fmt.Sprintf("finite=%d min=%g max=%g mean=%g std=%g", s.Finite, s.Min, s.Max, s.Mean, s.Std)
}

// Inspect returns statistics for record idx of the (ny, nx) store at path.
func Inspect(path string, ny, nx, idx int) (RecordStats, error) {
	if ny <= 0 || nx <= 0 || idx < 0 {
		return RecordStats{}, fmt.Errorf("mlheat: invalid record shape (%d, %d) or index %d", ny, nx, idx)
	}
	d, err := flatrec.ReadFile(path, idx, ny, nx)
	if err != nil {
		return RecordStats{}, err
	}
	return Stats(d.Elements), nil
}

// Stats returns statistics of the finite values in v. The statistics
// are NaN if there are none.
func Stats(v []float64) RecordStats {
	vals := make([]float64, 0, len(v))
	for _, x := range v {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return RecordStats{Min: math.NaN(), Max: math.NaN(), Mean: math.NaN(), Std: math.NaN()}
	}
	return RecordStats{
		Finite: len(vals),
		Min:    floats.Min(vals),
		Max:    floats.Max(vals),
		Mean:   floats.Sum(vals) / float64(len(vals)),
		Std:    stats.StatsPopulationStandardDeviation(vals),
	}
}
