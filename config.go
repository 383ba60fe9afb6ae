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
	"strings"
)

// EntrainmentMode selects how the entrainment velocity w_e is estimated.
type EntrainmentMode string

const (
	// DhDt uses the forward time difference of mixed-layer depth.
	DhDt EntrainmentMode = "dhdt"
	// Centered uses the time-centered difference of mixed-layer depth
	// when the previous day's depth is available, else DhDt.
	Centered EntrainmentMode = "centered"
	// Deepening uses the positive part of dh/dt + ∇·(h u), so entrainment
	// only happens while the layer deepens.
	Deepening EntrainmentMode = "deepening"
	// Full uses dh/dt + ∇·(h u) without a sign condition.
	Full EntrainmentMode = "full"
)

// ParseEntrainmentMode returns the mode named by s.
func ParseEntrainmentMode(s string) (EntrainmentMode, error) {
	switch m := EntrainmentMode(strings.ToLower(strings.TrimSpace(s))); m {
	case DhDt, Centered, Deepening, Full:
		return m, nil
	default:
		return "", fmt.Errorf("mlheat: entrainment mode '%s' is invalid; valid options are dhdt, centered, deepening and full", s)
	}
}

// Config holds the physical settings of a budget calculation.
// Build it once per run and do not modify it afterwards.
type Config struct {
	// Ah is the horizontal eddy diffusivity [m2/s].
	Ah float64

	// Kv is the vertical diffusivity at the mixed-layer base [m2/s].
	Kv float64

	// HMin is the minimum thickness used in denominators [m].
	HMin float64

	// UseHBarDenom selects the average of today's and tomorrow's
	// thickness as the denominator instead of today's thickness.
	UseHBarDenom bool

	// WeMode selects the entrainment velocity estimate.
	WeMode EntrainmentMode

	// WeCapMD, if not nil, caps abs(w_e) [m/day].
	WeCapMD *float64

	// EntOnlyCooling forces ENT <= 0.
	EntOnlyCooling bool

	// DTCap, if not nil, caps abs(Tm - Tb) used for entrainment [K].
	DTCap *float64

	// EntCapKPD, if not nil, caps abs(ENT) [K/day].
	EntCapKPD *float64
}

// DefaultConfig returns the conservative default settings.
func DefaultConfig() Config {
	return Config{
		Ah:             100,
		Kv:             1.0e-4,
		HMin:           10,
		WeMode:         DhDt,
		EntOnlyCooling: true,
	}
}

// Validate checks that the configuration can be used.
func (c *Config) Validate() error {
	if _, err := ParseEntrainmentMode(string(c.WeMode)); err != nil {
		return err
	}
	vars := []float64{c.Ah, c.Kv, c.HMin}
	varNames := []string{"Ah", "Kv", "HMin"}
	for i, v := range vars {
		if !(v >= 0) {
			return fmt.Errorf("mlheat: configuration %s=%g but should be >=0", varNames[i], v)
		}
	}
	caps := []*float64{c.WeCapMD, c.DTCap, c.EntCapKPD}
	capNames := []string{"WeCapMD", "DTCap", "EntCapKPD"}
	for i, v := range caps {
		if v != nil && !(*v >= 0) {
			return fmt.Errorf("mlheat: configuration %s=%g but should be >=0", capNames[i], *v)
		}
	}
	return nil
}

func (c *Config) String() string {
	denom := "h"
	if c.UseHBarDenom {
		denom = "hbar"
	}
	weCap := "none"
	if c.WeCapMD != nil {
		weCap = fmt.Sprintf("%g m/day", *c.WeCapMD)
	}
	return fmt.Sprintf("Ah=%g, Kv=%g, denom=%s, hmin=%g, we_mode=%s, cap=%s",
		c.Ah, c.Kv, denom, c.HMin, c.WeMode, weCap)
}

// Float returns a pointer to v, for setting optional caps.
func Float(v float64) *float64 { return &v }
