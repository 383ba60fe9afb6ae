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

	"github.com/ctessum/sparse"
)

// WindowState describes how much history a Window holds.
type WindowState int

const (
	// ColdStart means no previous day is available.
	ColdStart WindowState = iota
	// Warm1 means one previous day is available.
	Warm1
	// Warm2 means two previous days are available.
	Warm2
)

func (s WindowState) String() string {
	switch s {
	case ColdStart:
		return "COLD_START"
	case Warm1:
		return "WARM_1"
	case Warm2:
		return "WARM_2"
	default:
		return fmt.Sprintf("WindowState(%d)", int(s))
	}
}

// Window is the rolling history carried from one day to the next.
// The zero value is an empty window at the start of a year.
type Window struct {
	// TmPrev and TmPrevPrev are the mixed-layer temperatures of the
	// previous day and the day before that.
	TmPrev, TmPrevPrev *sparse.DenseArray

	// HPrev is the previous day's mixed-layer depth.
	HPrev *sparse.DenseArray
}

// State returns the window's position in the warm-up sequence.
func (w Window) State() WindowState {
	switch {
	case w.TmPrev == nil:
		return ColdStart
	case w.TmPrevPrev == nil:
		return Warm1
	default:
		return Warm2
	}
}

// advance returns the window after a day with mixed-layer temperature tm
// and depth h. Older history is dropped.
func (w Window) advance(tm, h *sparse.DenseArray) Window {
	return Window{TmPrev: tm, TmPrevPrev: w.TmPrev, HPrev: h}
}

// Budget holds the (y, x) budget fields for one day.
// Tendencies and forcing terms are in K/s.
type Budget struct {
	// Day is the zero-based day index within the year.
	Day int

	Tm, Tb, T0, Um, Vm, MLD *sparse.DenseArray

	// TenForward is (Tm(t) - Tm(t-1)) / Δt and TenCentered is
	// (Tm(t+1) - Tm(t-1)) / 2Δt. Both are NaN until a previous day exists.
	TenForward, TenCentered *sparse.DenseArray

	QNET, ADV, ENT, DIFF, DIFFV *sparse.DenseArray

	// ClosForward and ClosCentered are the tendencies minus the sum
	// of the forcing terms.
	ClosForward, ClosCentered *sparse.DenseArray

	// We is the entrainment velocity [m/s].
	We *sparse.DenseArray
}

// Fields returns the budget fields by name.
func (b *Budget) Fields() map[string]*sparse.DenseArray {
	return map[string]*sparse.DenseArray{
		"Tm":           b.Tm,
		"Tb":           b.Tb,
		"T0":           b.T0,
		"Um":           b.Um,
		"Vm":           b.Vm,
		"MLD":          b.MLD,
		"TenForward":   b.TenForward,
		"TenCentered":  b.TenCentered,
		"QNET":         b.QNET,
		"ADV":          b.ADV,
		"ENT":          b.ENT,
		"DIFF":         b.DIFF,
		"DIFFV":        b.DIFFV,
		"ClosForward":  b.ClosForward,
		"ClosCentered": b.ClosCentered,
		"We":           b.We,
	}
}

// Step calculates the budget for one day. today holds the day's full
// state and tomorrow the next day's; flux holds the surface fluxes for the
// transition between them. It returns the budget and the window to use for
// the following day. w is not modified.
func (g *Grid) Step(cfg *Config, w Window, day int, today, tomorrow *DayState, flux *SurfaceFlux) (*Budget, Window, error) {
	if today == nil || tomorrow == nil {
		return nil, w, fmt.Errorf("mlheat: day %d: missing ocean state", day)
	}
	diag := g.Diagnose(today)
	terms, err := g.Assemble(cfg, diag, today.H, tomorrow.H, w.HPrev, flux)
	if err != nil {
		return nil, w, fmt.Errorf("mlheat: day %d: %v", day, err)
	}

	b := &Budget{
		Day:   day,
		Tm:    diag.Tm,
		Tb:    diag.Tb,
		T0:    diag.T0,
		Um:    diag.Um,
		Vm:    diag.Vm,
		MLD:   today.H,
		QNET:  terms.QNET,
		ADV:   terms.ADV,
		ENT:   terms.ENT,
		DIFF:  terms.DIFF,
		DIFFV: terms.DIFFV,
		We:    terms.We,
	}

	b.TenForward = nanField(g.Ny, g.Nx)
	b.TenCentered = nanField(g.Ny, g.Nx)
	if w.State() != ColdStart {
		next := g.Diagnose(tomorrow)
		for idx, tm := range diag.Tm.Elements {
			prev := w.TmPrev.Elements[idx]
			b.TenForward.Elements[idx] = (tm - prev) / dt
			b.TenCentered.Elements[idx] = (next.Tm.Elements[idx] - prev) / (2 * dt)
		}
	}

	b.ClosForward = residual(b.TenForward, b.QNET, b.ADV, b.ENT, b.DIFF, b.DIFFV)
	b.ClosCentered = residual(b.TenCentered, b.QNET, b.ADV, b.ENT, b.DIFF, b.DIFFV)

	return b, w.advance(diag.Tm, today.H), nil
}

// residual returns ten minus the sum of terms.
func residual(ten *sparse.DenseArray, terms ...*sparse.DenseArray) *sparse.DenseArray {
	out := ten.Copy()
	for _, t := range terms {
		for idx, v := range t.Elements {
			out.Elements[idx] -= v
		}
	}
	return out
}
