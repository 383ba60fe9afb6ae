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
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrTooFewDays is returned when a year has fewer than three daily records.
var ErrTooFewDays = errors.New("mlheat: need at least 3 daily records")

// progressInterval is how often, in days, progress is logged.
const progressInterval = 10

// YearRun holds everything needed to calculate the budget for one year.
type YearRun struct {
	Year int

	// Config holds the physical settings. It is shared read-only.
	Config *Config

	// Resolution is the nominal horizontal grid resolution [degrees].
	Resolution float64

	Input  DailyInput
	Flux   FluxInput
	Output Output

	Log logrus.FieldLogger
}

// Run calculates the budget for every day of the year that has a following
// day, writing each day's budget as it goes. Any error aborts the
// remainder of the year.
func (r *YearRun) Run() error {
	log := r.Log
	if log == nil {
		l := logrus.New()
		l.Out = io.Discard
		log = l
	}
	log = log.WithField("year", r.Year)
	if err := r.Config.Validate(); err != nil {
		return err
	}
	log.Infof("starting (%s)", r.Config)
	startTime := time.Now()

	n := r.Input.NumDays()
	if n < 3 {
		return fmt.Errorf("%w for year %d but found %d", ErrTooFewDays, r.Year, n)
	}

	today, err := r.Input.Day(0)
	if err != nil {
		return fmt.Errorf("mlheat: reading day 0: %v", err)
	}
	depth, err := r.Input.Depth()
	if err != nil {
		return err
	}
	lat, err := r.Input.Latitude()
	if err != nil {
		return err
	}
	if len(today.T.Shape) != 3 {
		return fmt.Errorf("mlheat: temperature has %d dimensions but should have 3", len(today.T.Shape))
	}
	nz, ny, nx := today.T.Shape[0], today.T.Shape[1], today.T.Shape[2]
	if len(depth) != nz {
		return fmt.Errorf("mlheat: %d depth levels but temperature has %d", len(depth), nz)
	}
	if len(lat) != ny {
		return fmt.Errorf("mlheat: %d latitudes but temperature has %d rows", len(lat), ny)
	}
	g, err := NewGrid(depth, lat, r.Resolution, nx, BottomIndex(today.T))
	if err != nil {
		return err
	}

	out, err := r.Output.Create(r.Year, ny, nx)
	if err != nil {
		return err
	}
	closed := false
	defer func() {
		if !closed {
			out.Close()
		}
	}()

	var w Window
	stepTime := time.Now()
	for ti := 1; ti < n; ti++ {
		tomorrow, err := r.Input.Day(ti)
		if err != nil {
			return fmt.Errorf("mlheat: reading day %d: %w", ti, err)
		}
		flux, err := r.Flux.Flux(ti-1, ny, nx)
		if err != nil {
			return fmt.Errorf("mlheat: day %d: %w", ti-1, err)
		}
		var b *Budget
		b, w, err = g.Step(r.Config, w, ti-1, today, tomorrow, flux)
		if err != nil {
			return err
		}
		if err := out.WriteDay(b); err != nil {
			return err
		}
		if ti == 1 || ti%progressInterval == 0 {
			log.WithFields(logrus.Fields{
				"day":       ti,
				"window":    w.State(),
				"walltime":  time.Since(startTime).Round(time.Millisecond),
				"Δwalltime": time.Since(stepTime).Round(time.Millisecond),
			}).Info("day done")
		}
		stepTime = time.Now()
		today = tomorrow
	}
	closed = true
	if err := out.Close(); err != nil {
		return fmt.Errorf("mlheat: closing output: %v", err)
	}
	log.WithField("walltime", time.Since(startTime).Round(time.Millisecond)).Infof("done, %d days", n-1)
	return nil
}
