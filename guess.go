/*
Copyright © 2026 the GUESS authors.
This file is part of GUESS.

GUESS is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

GUESS is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with GUESS.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package guess is a process-based dynamic vegetation model. It
// simulates the establishment, growth, competition and harvest of plant
// individuals on a hierarchy of gridcells, stands and patches, driven by
// daily climate observations.
package guess

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
)

// Version gives the version number.
const Version = "1.0.0"

// DaysPerYear is the length of the model calendar. Leap days are not
// simulated.
const DaysPerYear = 365

// GUESS holds the current state of the model.
type GUESS struct {
	// Gridcells are the simulated gridcells, in setup order.
	Gridcells []*Gridcell

	// PFTs is the read-only plant functional type table shared by
	// all gridcells.
	PFTs *PFTSet

	// Climate supplies daily observations for each gridcell.
	Climate ClimateSource

	// Assimilator computes potential daily carbon assimilation.
	// If it is nil, LUEAssimilator is used.
	Assimilator Assimilator

	// Diagnostics receives warnings reported by the model components.
	// If it is nil, warnings are discarded.
	Diagnostics Diagnostics

	// Metrics counts model events. It may be nil.
	Metrics *Metrics

	// Year and Day give the date of the next day to be simulated.
	// Day is the zero-based day of the year.
	Year, Day int

	// FirstYear is the first simulated year and NYears is the number
	// of years to simulate.
	FirstYear, NYears int

	// DisturbanceProbability is the annual probability that a natural
	// patch is destroyed by disturbance.
	DisturbanceProbability float64

	// InitFuncs are functions to be called in the given order
	// at the beginning of the simulation.
	InitFuncs []DomainManipulator

	// RunFuncs are functions to be called in the given order repeatedly
	// until "Done" is true. Each call advances the simulation by one day.
	RunFuncs []DomainManipulator

	// CleanupFuncs are functions to be called in the given order
	// after the simulation has completed.
	CleanupFuncs []DomainManipulator

	// Done specifies whether the simulation is finished.
	Done bool
}

// DomainManipulator is a class of functions that operate on the entire model
// domain.
type DomainManipulator func(d *GUESS) error

// GridcellManipulator is a class of functions that operate on a single
// gridcell. It must not touch any other gridcell.
type GridcellManipulator func(g *Gridcell, d *GUESS) error

// Init initializes the simulation by running d.InitFuncs.
func (d *GUESS) Init() error {
	for _, f := range d.InitFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// Run carries out the simulation by running d.RunFuncs until d.Done is true.
func (d *GUESS) Run() error {
	for !d.Done {
		for _, f := range d.RunFuncs {
			if err := f(d); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cleanup finishes the simulation by running d.CleanupFuncs.
func (d *GUESS) Cleanup() error {
	for _, f := range d.CleanupFuncs {
		if err := f(d); err != nil {
			return err
		}
	}
	return nil
}

// LastDayOfYear returns whether the day about to be simulated is the
// last day of the year.
func (d *GUESS) LastDayOfYear() bool { return d.Day == DaysPerYear-1 }

// YearBoundary returns whether a full year has just been completed, i.e.
// whether the next day to simulate is the first day of a year after
// the first simulated year.
func (d *GUESS) YearBoundary() bool { return d.Day == 0 && d.Year > d.FirstYear }

func (d *GUESS) assimilator() Assimilator {
	if d.Assimilator == nil {
		return LUEAssimilator{}
	}
	return d.Assimilator
}

func (d *GUESS) diagnostics() Diagnostics {
	if d.Diagnostics == nil {
		return discardDiagnostics{}
	}
	return d.Diagnostics
}

// Calculations returns a function that concurrently runs a series of
// calculations on all of the model gridcells. Each gridcell is handled by a
// single goroutine, which runs all of the calculators on it in order.
// The returned function waits for every gridcell to finish before returning,
// so state saved afterwards never contains a partially updated day.
//
// A gridcell whose calculators return an error is disabled and skipped from
// then on, and the others carry on. A contract violation or other panic in
// a calculator is recovered and aborts the simulation, as does the failure
// of the last enabled gridcell. When more than one gridcell fails the first
// failing gridcell in setup order is reported.
func Calculations(calculators ...GridcellManipulator) DomainManipulator {
	return func(d *GUESS) error {
		nprocs := runtime.GOMAXPROCS(0) // number of processors
		errs := make([]error, len(d.Gridcells))
		fatal := make([]bool, len(d.Gridcells))
		var wg sync.WaitGroup
		wg.Add(nprocs)
		for pp := 0; pp < nprocs; pp++ {
			go func(pp int) {
				defer wg.Done()
				for ii := pp; ii < len(d.Gridcells); ii += nprocs {
					g := d.Gridcells[ii]
					if g.Disabled {
						continue
					}
					fatal[ii], errs[ii] = runGridcell(g, d, calculators)
				}
			}(pp)
		}
		wg.Wait()

		var first error
		var firstFields logrus.Fields
		for ii, err := range errs {
			if err == nil {
				continue
			}
			g := d.Gridcells[ii]
			fields := logrus.Fields{"gridcell": g.ID, "year": d.Year, "day": d.Day}
			if fatal[ii] {
				return d.diagnostics().Abort(fields, err)
			}
			if first == nil {
				first, firstFields = err, fields
			}
			g.Disabled = true
			d.Metrics.addGridcellFailure()
			d.diagnostics().Warn(fields, "gridcell disabled: %v", err)
		}
		if first == nil {
			return nil
		}
		for _, g := range d.Gridcells {
			if !g.Disabled {
				return nil
			}
		}
		return d.diagnostics().Abort(firstFields, fmt.Errorf("guess: every gridcell has failed: %w", first))
	}
}

// runGridcell runs the calculators on g. Panics are converted to errors
// and reported as fatal.
func runGridcell(g *Gridcell, d *GUESS, calculators []GridcellManipulator) (fatal bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fatal = true
			if cv, ok := r.(*ContractViolation); ok {
				err = fmt.Errorf("guess: gridcell %d, year %d, day %d: %w", g.ID, d.Year, d.Day, cv)
				return
			}
			err = fmt.Errorf("guess: gridcell %d, year %d, day %d: panic: %v", g.ID, d.Year, d.Day, r)
		}
	}()
	for _, f := range calculators {
		if err := f(g, d); err != nil {
			return false, fmt.Errorf("guess: gridcell %d, year %d, day %d: %w", g.ID, d.Year, d.Day, err)
		}
	}
	return false, nil
}
