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
	"path/filepath"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/mlheat/internal/flatrec"
)

// FluxInput supplies surface heat fluxes. day is the zero-based index of
// the transition day within the year.
type FluxInput interface {
	Flux(day, ny, nx int) (*SurfaceFlux, error)
}

// FluxFiles holds the file names of the four surface flux stores.
type FluxFiles struct {
	Shortwave, Longwave, Latent, Sensible string
}

// DefaultFluxFiles are the flux store names written by the reanalysis
// flux extraction.
var DefaultFluxFiles = FluxFiles{
	Shortwave: "sw_GLORYS.data",
	Longwave:  "lw_GLORYS.data",
	Latent:    "lhf_GLORYS.data",
	Sensible:  "shf_GLORYS.data",
}

// FluxRecords reads daily surface fluxes from multi-year record stores
// where every year occupies the same number of records.
type FluxRecords struct {
	Dir   string
	Files FluxFiles

	// Offset is the record index of day 0 of the year being processed.
	Offset int
}

// NewFluxRecords returns a reader for the given year of flux stores that
// start at baseYear and hold daysPerYear records per year.
func NewFluxRecords(dir string, files FluxFiles, year, baseYear, daysPerYear int) (*FluxRecords, error) {
	if year < baseYear {
		return nil, fmt.Errorf("mlheat: year %d is before flux base year %d", year, baseYear)
	}
	if daysPerYear <= 0 {
		return nil, fmt.Errorf("mlheat: flux days per year=%d but should be >0", daysPerYear)
	}
	return &FluxRecords{
		Dir:    dir,
		Files:  files,
		Offset: (year - baseYear) * daysPerYear,
	}, nil
}

// Flux reads the four flux components for the given day.
func (f *FluxRecords) Flux(day, ny, nx int) (*SurfaceFlux, error) {
	idx := f.Offset + day
	names := []string{f.Files.Shortwave, f.Files.Longwave, f.Files.Latent, f.Files.Sensible}
	var out SurfaceFlux
	dst := []**sparse.DenseArray{&out.Shortwave, &out.Longwave, &out.Latent, &out.Sensible}
	for i, name := range names {
		d, err := flatrec.ReadFile(filepath.Join(f.Dir, name), idx, ny, nx)
		if err != nil {
			return nil, fmt.Errorf("mlheat: reading surface flux: %w", err)
		}
		*dst[i] = d
	}
	return &out, nil
}
