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

	"github.com/ctessum/sparse"
)

// SurfaceFlux holds (y, x) surface heat flux components [W/m2],
// positive into the ocean.
type SurfaceFlux struct {
	Shortwave, Longwave, Latent, Sensible *sparse.DenseArray
}

// Net returns the net surface heat flux at (j, i).
func (f *SurfaceFlux) Net(j, i int) float64 {
	return f.Shortwave.Get(j, i) + f.Longwave.Get(j, i) + f.Latent.Get(j, i) + f.Sensible.Get(j, i)
}

// Terms holds the (y, x) forcing terms of the mixed-layer heat budget
// [K/s] and the entrainment velocity used to calculate them [m/s].
type Terms struct {
	QNET, ADV, ENT, DIFF, DIFFV *sparse.DenseArray
	We                          *sparse.DenseArray
}

// ShortwaveTransmittance returns the fraction of surface shortwave
// radiation that penetrates below depth h [m].
func ShortwaveTransmittance(h float64) float64 {
	return swPartition*math.Exp(-h/swGamma1) + (1-swPartition)*math.Exp(-h/swGamma2)
}

// Assemble calculates the forcing terms for one day from that day's
// mixed-layer diagnostics, its mixed-layer depth h, the next day's depth
// hNext, the previous day's depth hPrev (nil if unavailable) and the surface
// fluxes over the day.
func (g *Grid) Assemble(cfg *Config, diag *Diagnostics, h, hNext, hPrev *sparse.DenseArray, flux *SurfaceFlux) (*Terms, error) {
	if err := g.checkInputs(diag, h, hNext, hPrev, flux); err != nil {
		return nil, err
	}
	ny, nx := g.Ny, g.Nx

	hden := nanField(ny, nx)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if g.undefined(h, j, i) {
				continue
			}
			hc := floorTo(h.Get(j, i), cfg.HMin)
			if cfg.UseHBarDenom {
				hc = 0.5 * (hc + floorTo(hNext.Get(j, i), cfg.HMin))
			}
			set2(hden, hc, j, i)
		}
	}

	t := &Terms{
		QNET:  nanField(ny, nx),
		ADV:   nanField(ny, nx),
		ENT:   nanField(ny, nx),
		DIFFV: nanField(ny, nx),
	}

	dTmdx := DdxCentered(diag.Tm, g.DxRow)
	dTmdy := DdyCentered(diag.Tm, g.Dy)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if g.undefined(h, j, i) {
				continue
			}
			hd := hden.Get(j, i)
			sw := flux.Shortwave.Get(j, i)
			penetrative := sw * ShortwaveTransmittance(h.Get(j, i))
			set2(t.QNET, (flux.Net(j, i)-penetrative)/(rho*cp*hd), j, i)

			set2(t.ADV, -(diag.Um.Get(j, i)*dTmdx.Get(j, i)+diag.Vm.Get(j, i)*dTmdy.Get(j, i)), j, i)

			set2(t.DIFFV, -(cfg.Kv*diag.TzH.Get(j, i))/hd, j, i)
		}
	}

	t.We = g.entrainmentVelocity(cfg, diag, h, hNext, hPrev)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if g.undefined(h, j, i) {
				continue
			}
			set2(t.ENT, entrainment(cfg, t.We.Get(j, i), hden.Get(j, i),
				diag.Tm.Get(j, i)-diag.Tb.Get(j, i)), j, i)
		}
	}

	t.DIFF = g.lateralDiffusion(cfg.Ah, diag, h, hden)
	return t, nil
}

func (g *Grid) checkInputs(diag *Diagnostics, h, hNext, hPrev *sparse.DenseArray, flux *SurfaceFlux) error {
	if diag == nil {
		return fmt.Errorf("mlheat: missing mixed-layer diagnostics")
	}
	if flux == nil || flux.Shortwave == nil || flux.Longwave == nil || flux.Latent == nil || flux.Sensible == nil {
		return fmt.Errorf("mlheat: missing surface flux component")
	}
	fields := []*sparse.DenseArray{h, hNext, flux.Shortwave, flux.Longwave, flux.Latent, flux.Sensible,
		diag.Tm, diag.Um, diag.Vm, diag.Tb, diag.TzH}
	names := []string{"h", "hNext", "shortwave", "longwave", "latent", "sensible",
		"Tm", "Um", "Vm", "Tb", "TzH"}
	if hPrev != nil {
		fields = append(fields, hPrev)
		names = append(names, "hPrev")
	}
	for i, f := range fields {
		if f == nil {
			return fmt.Errorf("mlheat: missing field %s", names[i])
		}
		if len(f.Shape) != 2 || f.Shape[0] != g.Ny || f.Shape[1] != g.Nx {
			return fmt.Errorf("mlheat: field %s has shape %v but grid is [%d %d]", names[i], f.Shape, g.Ny, g.Nx)
		}
	}
	return nil
}

// entrainmentVelocity returns w_e [m/s] according to cfg.WeMode, capped
// by cfg.WeCapMD. Land and undefined-depth columns are NaN.
func (g *Grid) entrainmentVelocity(cfg *Config, diag *Diagnostics, h, hNext, hPrev *sparse.DenseArray) *sparse.DenseArray {
	ny, nx := g.Ny, g.Nx
	we := sparse.ZerosDense(ny, nx)
	centered := cfg.WeMode == Centered && hPrev != nil
	for idx := range we.Elements {
		if centered {
			we.Elements[idx] = (hNext.Elements[idx] - hPrev.Elements[idx]) / (2 * dt)
		} else {
			we.Elements[idx] = (hNext.Elements[idx] - h.Elements[idx]) / dt
		}
	}

	if cfg.WeMode == Deepening || cfg.WeMode == Full {
		hu := sparse.ZerosDense(ny, nx)
		hv := sparse.ZerosDense(ny, nx)
		for idx, hval := range h.Elements {
			hu.Elements[idx] = hval * diag.Um.Elements[idx]
			hv.Elements[idx] = hval * diag.Vm.Elements[idx]
		}
		dhudx := DdxCentered(hu, g.DxRow)
		dhvdy := DdyCentered(hv, g.Dy)
		for idx := range we.Elements {
			s := we.Elements[idx] + dhudx.Elements[idx] + dhvdy.Elements[idx]
			if cfg.WeMode == Full {
				we.Elements[idx] = s
			} else if s > 0 {
				we.Elements[idx] = s
			} else {
				// Includes NaN divergence at the domain edges.
				we.Elements[idx] = 0
			}
		}
	}

	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			if g.undefined(h, j, i) {
				set2(we, math.NaN(), j, i)
			}
		}
	}

	if cfg.WeCapMD != nil {
		c := *cfg.WeCapMD / dt
		for idx, v := range we.Elements {
			we.Elements[idx] = clamp(v, -c, c)
		}
	}
	return we
}

// entrainment returns the entrainment term for one cell given the
// entrainment velocity we, the denominator thickness hden and the
// temperature jump dT = Tm - Tb.
func entrainment(cfg *Config, we, hden, dT float64) float64 {
	if cfg.DTCap != nil {
		c := math.Abs(*cfg.DTCap)
		dT = clamp(dT, -c, c)
	}
	ent := -(we / hden) * dT
	if cfg.EntOnlyCooling && ent > 0 {
		ent = 0
	}
	if cfg.EntCapKPD != nil {
		c := *cfg.EntCapKPD / dt
		hi := c
		if cfg.EntOnlyCooling {
			hi = 0
		}
		ent = clamp(ent, -c, hi)
	}
	return ent
}

// lateralDiffusion returns the flux-form horizontal diffusion term.
// div1 is the divergence of h∇Tm and div2 the divergence of ΔT∇h, with
// ΔT = Tm - Tb; the term is Ah (div1 - div2) / hden at interior cells.
func (g *Grid) lateralDiffusion(ah float64, diag *Diagnostics, h, hden *sparse.DenseArray) *sparse.DenseArray {
	ny, nx := g.Ny, g.Nx
	diff := nanField(ny, nx)
	tm := diag.Tm
	dT := sparse.ZerosDense(ny, nx)
	for idx := range dT.Elements {
		dT.Elements[idx] = tm.Elements[idx] - diag.Tb.Elements[idx]
	}
	dy := g.Dy
	for j := 1; j < ny-1; j++ {
		dx := g.DxRow[j]
		for i := 1; i < nx-1; i++ {
			if g.undefined(h, j, i) || !finite(tm.Get(j, i)) || !finite(h.Get(j, i)) {
				continue
			}
			hTxE := h.Get(j, i+1) * (tm.Get(j, i+1) - tm.Get(j, i)) / dx
			hTxW := h.Get(j, i) * (tm.Get(j, i) - tm.Get(j, i-1)) / dx
			dThxE := dT.Get(j, i+1) * (h.Get(j, i+1) - h.Get(j, i)) / dx
			dThxW := dT.Get(j, i) * (h.Get(j, i) - h.Get(j, i-1)) / dx
			hTyN := h.Get(j+1, i) * (tm.Get(j+1, i) - tm.Get(j, i)) / dy
			hTyS := h.Get(j, i) * (tm.Get(j, i) - tm.Get(j-1, i)) / dy
			dThyN := dT.Get(j+1, i) * (h.Get(j+1, i) - h.Get(j, i)) / dy
			dThyS := dT.Get(j, i) * (h.Get(j, i) - h.Get(j-1, i)) / dy

			div1 := (hTxE-hTxW)/dx + (hTyN-hTyS)/dy
			div2 := (dThxE-dThxW)/dx + (dThyN-dThyS)/dy
			set2(diff, (ah/hden.Get(j, i))*(div1-div2), j, i)
		}
	}
	return diff
}

// floorTo returns min if v < min, else v. NaN is returned unchanged.
func floorTo(v, min float64) float64 {
	if v < min {
		return min
	}
	return v
}

// clamp limits v to [lo, hi]. NaN is returned unchanged.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}
