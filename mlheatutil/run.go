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
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// YearError records the failure of one year.
type YearError struct {
	Year int
	Err  error
}

func (e YearError) Error() string { return fmt.Sprintf("year %d: %v", e.Year, e.Err) }

func (e YearError) Unwrap() error { return e.Err }

// RunError is returned by RunYears when one or more years fail.
type RunError struct {
	Failed []YearError
}

func (e *RunError) Error() string {
	msgs := make([]string, len(e.Failed))
	for i, f := range e.Failed {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("mlheat: %d year(s) failed: %s", len(e.Failed), strings.Join(msgs, "; "))
}

// RunYears calls runYear for each year, with at most workers years running
// at once. Years are independent: a failed year is logged and the others
// continue. After all years finish, a *RunError listing every failed year is
// returned if any failed. Years that have not started when ctx is
// canceled are recorded as failed with the context's error.
func RunYears(ctx context.Context, years []int, workers int, runYear func(year int) error, log logrus.FieldLogger) error {
	if workers < 1 {
		workers = 1
	}
	var (
		mu     sync.Mutex
		failed []YearError
	)
	addError := func(year int, err error) {
		if log != nil {
			log.WithField("year", year).WithError(err).Error("year failed")
		}
		mu.Lock()
		failed = append(failed, YearError{Year: year, Err: err})
		mu.Unlock()
	}

	var eg errgroup.Group
	eg.SetLimit(workers)
	for _, year := range years {
		year := year
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				addError(year, err)
				return nil
			}
			if err := runYear(year); err != nil {
				addError(year, err)
			}
			return nil
		})
	}
	eg.Wait()

	if len(failed) == 0 {
		return nil
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].Year < failed[j].Year })
	return &RunError{Failed: failed}
}
