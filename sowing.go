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
	"math"
)

// SowingState is the crop calendar state of a cropland patch.
type SowingState int

// Sowing states. A patch moves through them in order and returns to
// Unsown on the day after harvest.
const (
	Unsown SowingState = iota
	Sown
	Growing
	Harvested
)

func (s SowingState) String() string {
	switch s {
	case Unsown:
		return "unsown"
	case Sown:
		return "sown"
	case Growing:
		return "growing"
	case Harvested:
		return "harvested"
	default:
		return fmt.Sprintf("SowingState(%d)", int(s))
	}
}

// SowingRecord holds the crop calendar of a patch.
type SowingRecord struct {
	State SowingState

	// Year is the calendar year of the last update.
	Year int
	// LastUpdate is the day number of the last update, or -1.
	LastUpdate int

	// SowYear and SowDay give the date of the most recent sowing.
	// SowYear is -1 if the patch has never been sown.
	SowYear, SowDay int
	// HarvestYear and HarvestDay give the date of the most recent harvest.
	HarvestYear, HarvestDay int

	// HeatUnits is the thermal time accumulated since emergence [°C day].
	HeatUnits float64
	// DaysGrown is the number of days since emergence.
	DaysGrown int

	// MissedYears counts the calendar years that ended without sowing.
	MissedYears int
	// CheckedYear is the last year counted in MissedYears, or -1.
	CheckedYear int
}

func newSowingRecord() SowingRecord {
	return SowingRecord{
		Year:        -1,
		LastUpdate:  -1,
		SowYear:     -1,
		SowDay:      -1,
		HarvestYear: -1,
		HarvestDay:  -1,
		CheckedYear: -1,
	}
}

// HeatUnitFraction returns the fraction of the heat units to maturity
// accumulated by the crop.
func (r SowingRecord) HeatUnitFraction(crop *PFT) float64 {
	if crop == nil || crop.PHU <= 0 {
		return 0
	}
	return math.Min(1, r.HeatUnits/crop.PHU)
}

// UpdatePatchSowingState advances the crop calendar of patch p by one day
// using the latest observation in the climate history of gridcell g, and
// returns the new state.
//
//   - Unsown → Sown when the crop's sowing window is open and the patch has
//     not been sown yet this year. A new crop individual is established and
//     the growth accumulators are reset.
//   - Sown → Growing on the following day.
//   - Growing → Harvested when the accumulated heat units reach the crop's
//     requirement or the maximum growing period has elapsed. The harvestable
//     organ is removed and the rest of the crop goes to litter.
//   - Harvested → Unsown on the following day. The patch can be sown again
//     in the next sowing window, but at most once per calendar year.
//
// A calendar year without sowing increments MissedYears; it is not an
// error. Years are normally closed by CloseSowingYear at the end of the
// year; years left open, e.g. by a gap in the climate, are closed here when
// a later year begins. Repeated calls for the same day change nothing.
// Patches in natural stands are left Unsown.
func UpdatePatchSowingState(p *Patch, g *Gridcell) (SowingState, error) {
	rec := &p.Sowing
	crop := p.stand.crop
	if crop == nil {
		return rec.State, nil
	}
	today, ok := g.Climate.Latest()
	if !ok {
		return rec.State, nil
	}
	dn := today.dayNumber()
	if dn == rec.LastUpdate {
		return rec.State, nil
	}
	if dn < rec.LastUpdate {
		return rec.State, fmt.Errorf("%w: sowing state of patch %d last updated on day %d, got %s",
			ErrStaleObservation, p.Index, rec.LastUpdate, today)
	}
	rec.LastUpdate = dn

	if today.Year != rec.Year {
		if rec.Year >= 0 {
			for y := rec.Year; y < today.Year; y++ {
				closeYear(rec, y)
			}
		}
		rec.Year = today.Year
	}

	switch rec.State {
	case Harvested:
		rec.State = Unsown
	case Unsown:
		w, ok := g.Climate.Window(crop.Name)
		if ok && w.Open && rec.SowYear != today.Year {
			sow(p, crop, today)
		}
	case Sown:
		rec.State = Growing
	case Growing:
		rec.HeatUnits += math.Max(0, today.Temp-crop.TBase)
		rec.DaysGrown++
		if rec.HeatUnits >= crop.PHU || rec.DaysGrown >= crop.MaxGrowDays {
			harvest(p, today)
		}
	}
	return rec.State, nil
}

// CloseSowingYear counts year as missed in the crop calendar of p if p is
// a cropland patch that was updated in year and not sown in it. It returns
// whether the year was missed. A year is counted at most once.
func CloseSowingYear(p *Patch, year int) bool {
	rec := &p.Sowing
	if p.stand == nil || p.stand.crop == nil || rec.Year != year {
		return false
	}
	return closeYear(rec, year)
}

func closeYear(rec *SowingRecord, year int) bool {
	if year <= rec.CheckedYear {
		return false
	}
	rec.CheckedYear = year
	if rec.SowYear == year {
		return false
	}
	rec.MissedYears++
	return true
}

// sow establishes a new crop individual in p.
func sow(p *Patch, crop *PFT, today Observation) {
	if old := p.crop(); old != nil {
		p.RemoveIndividual(old)
	}
	rec := &p.Sowing
	rec.State = Sown
	rec.SowYear, rec.SowDay = today.Year, today.Day
	rec.HeatUnits = 0
	rec.DaysGrown = 0
	p.AddIndividual(crop, crop.EstablishC)
}

// harvest removes the harvestable organ of the crop in p into the patch
// harvest and returns the rest of the crop to the litter.
func harvest(p *Patch, today Observation) {
	rec := &p.Sowing
	rec.State = Harvested
	rec.HarvestYear, rec.HarvestDay = today.Year, today.Day
	ind := p.crop()
	if ind == nil {
		return
	}
	total := ind.TotalCMass()
	ho := ind.CMassHO + ind.YCMassHO
	p.HarvestC += ho
	if total > 0 {
		// Nitrogen leaves with the harvest in proportion to carbon.
		ind.NMass *= 1 - ho/total
	}
	ind.CMassHO, ind.YCMassHO = 0, 0
	p.RemoveIndividual(ind)
}
