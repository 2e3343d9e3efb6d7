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

package guess

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// DailyClimate reads today's observation for g from the climate source and
// adds it to the gridcell's climate history. Invalid observations are
// reported as warnings.
func DailyClimate(g *Gridcell, d *GUESS) error {
	obs, err := d.Climate.NextDailyObservation(g.ID)
	if err != nil {
		return fmt.Errorf("reading climate: %w", err)
	}
	if obs.Year != d.Year || obs.Day != d.Day {
		return fmt.Errorf("climate source returned %d-%03d but the model is at %d-%03d",
			obs.Year, obs.Day, d.Year, d.Day)
	}
	res, err := UpdateGridcellClimateHistory(g, obs)
	if err != nil {
		return err
	}
	if res == ClimateGapFilled || res == ClimateSkipped {
		d.Metrics.addClimateGap()
		d.diagnostics().Warn(logrus.Fields{"gridcell": g.ID, "year": obs.Year, "day": obs.Day},
			"invalid climate observation (T=%g, P=%g): %s", obs.Temp, obs.Prec, res)
	}
	return nil
}

// DailySowing advances the crop calendar of every cropland patch in g.
// On the first day of the year it also clears the harvest of the previous
// year, so a harvest on that day is kept.
func DailySowing(g *Gridcell, d *GUESS) error {
	return g.walk(func(s *Stand, p *Patch) error {
		if d.Day == 0 {
			p.HarvestC = 0
		}
		if s.LandUse != Cropland {
			return nil
		}
		before, missed := p.Sowing.State, p.Sowing.MissedYears
		after, err := UpdatePatchSowingState(p, g)
		if err != nil {
			return err
		}
		nMissed := p.Sowing.MissedYears - missed
		d.Metrics.addSowing(before, after, nMissed)
		if nMissed > 0 {
			warnMissedSowing(g, s, p, d, nMissed)
		}
		return nil
	})
}

func warnMissedSowing(g *Gridcell, s *Stand, p *Patch, d *GUESS, n int) {
	d.diagnostics().Warn(logrus.Fields{"gridcell": g.ID, "crop": s.CropPFT, "patch": p.Index, "year": d.Year},
		"%d year(s) ended without sowing", n)
}

// DailyGrowth carries out one day of soil processes and growth in every
// patch of g using the latest observation in its climate history.
// Gridcells without any climate yet are left alone.
func DailyGrowth(g *Gridcell, d *GUESS) error {
	obs, ok := g.Climate.Latest()
	if !ok {
		return nil
	}
	a := d.assimilator()
	return g.walk(func(s *Stand, p *Patch) error {
		UpdateSoil(p, obs, g.NDeposition)
		return AdvanceGrowth(p, obs, a)
	})
}

// Daily returns the manipulator that simulates one day in every gridcell:
// climate, crop calendar and growth, in that order.
func Daily() DomainManipulator {
	return Calculations(DailyClimate, DailySowing, DailyGrowth)
}

// EndOfYear returns a manipulator that carries out the end-of-year update of
// every patch on the last day of the year. Cropland patches that were not
// sown during the year are counted as missed sowings.
func EndOfYear() DomainManipulator {
	yearly := Calculations(func(g *Gridcell, d *GUESS) error {
		for i, s := range g.Stands {
			for _, p := range s.Patches {
				if CloseSowingYear(p, d.Year) {
					d.Metrics.addSowing(p.Sowing.State, p.Sowing.State, 1)
					warnMissedSowing(g, s, p, d, 1)
				}
				d.Metrics.addYearly(EndOfYearPatch(p, g, i, d.Year, d.PFTs, d.DisturbanceProbability))
			}
		}
		return nil
	})
	return func(d *GUESS) error {
		if !d.LastDayOfYear() {
			return nil
		}
		return yearly(d)
	}
}

// AdvanceDay moves the model clock to the next day and sets d.Done once the
// last simulation year is complete.
func AdvanceDay() DomainManipulator {
	return func(d *GUESS) error {
		endOfYear := d.LastDayOfYear()
		d.Metrics.addDay(endOfYear)
		d.Day++
		if d.Day == DaysPerYear {
			d.Day = 0
			d.Year++
		}
		if d.Year >= d.FirstYear+d.NYears {
			d.Done = true
		}
		return nil
	}
}

// DefaultRunFuncs returns the daily simulation sequence. Output and
// checkpoint manipulators can be added after it.
func DefaultRunFuncs() []DomainManipulator {
	return []DomainManipulator{Daily(), EndOfYear(), AdvanceDay()}
}

// Log returns a manipulator that writes a summary of the simulated
// vegetation to log on the last day of every year. It should be placed
// after EndOfYear.
func Log(log logrus.FieldLogger) DomainManipulator {
	startTime := time.Now()
	yearTime := time.Now()
	return func(d *GUESS) error {
		if !d.LastDayOfYear() {
			return nil
		}
		var vegC, harvest, lai float64
		var n int
		for _, g := range d.Gridcells {
			if g.Disabled {
				continue
			}
			vegC += g.standMean(patchVegC)
			harvest += g.standMean(func(p *Patch) float64 { return p.HarvestC })
			lai += g.standMean(patchLAI)
			n++
		}
		if n > 0 {
			vegC /= float64(n)
			harvest /= float64(n)
			lai /= float64(n)
		}
		log.WithFields(logrus.Fields{
			"year":      d.Year,
			"gridcells": n,
			"vegC":      fmt.Sprintf("%.4g", vegC),
			"harvestC":  fmt.Sprintf("%.4g", harvest),
			"lai":       fmt.Sprintf("%.3g", lai),
			"walltime":  time.Since(startTime).Round(time.Millisecond),
			"Δwalltime": time.Since(yearTime).Round(time.Millisecond),
		}).Info("year complete")
		yearTime = time.Now()
		return nil
	}
}

// standMean returns the area-weighted mean over the stands of g of the
// patch mean of f.
func (g *Gridcell) standMean(f func(p *Patch) float64) float64 {
	var sum float64
	for _, s := range g.Stands {
		if len(s.Patches) == 0 {
			continue
		}
		var ps float64
		for _, p := range s.Patches {
			ps += f(p)
		}
		sum += s.Fraction * ps / float64(len(s.Patches))
	}
	return sum
}

func patchVegC(p *Patch) float64 {
	var c float64
	for _, ind := range p.Individuals {
		if ind.Alive {
			c += ind.TotalCMass()
		}
	}
	return c
}

func patchLAI(p *Patch) float64 {
	var lai float64
	for _, ind := range p.Individuals {
		if ind.Alive {
			lai += ind.lai
		}
	}
	return lai
}
