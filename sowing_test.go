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
	"errors"
	"testing"
)

// stepSowing adds obs to the climate history of g and advances the crop
// calendar of p.
func stepSowing(t *testing.T, g *Gridcell, p *Patch, obs Observation) SowingState {
	if _, err := UpdateGridcellClimateHistory(g, obs); err != nil {
		t.Fatal(err)
	}
	s, err := UpdatePatchSowingState(p, g)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSowingStateMachine(t *testing.T) {
	g := cropGridcell(t, 0, "TeSW")
	p := g.Stands[0].Patches[0]

	transitions := make(map[int]SowingState)
	last := p.Sowing.State
	for day := 0; day < DaysPerYear; day++ {
		s := stepSowing(t, g, p, Observation{Year: 2000, Day: day, Temp: 20, Prec: 1})
		if s != last {
			transitions[day] = s
			last = s
		}
	}
	// Sown on the first day of the window, growing the next day, and
	// harvested once 80 days at 20 °C have given 1600 heat units.
	want := map[int]SowingState{59: Sown, 60: Growing, 140: Harvested, 141: Unsown}
	if len(transitions) != len(want) {
		t.Fatalf("transitions %v, want %v", transitions, want)
	}
	for day, s := range want {
		if transitions[day] != s {
			t.Errorf("day %d: have %s, want %s", day, transitions[day], s)
		}
	}
	rec := p.Sowing
	if rec.SowYear != 2000 || rec.SowDay != 59 || rec.HarvestYear != 2000 || rec.HarvestDay != 140 {
		t.Errorf("record %+v", rec)
	}
	if rec.HeatUnits != 1600 || rec.DaysGrown != 80 {
		t.Errorf("heat units %g after %d days", rec.HeatUnits, rec.DaysGrown)
	}
	if len(p.Individuals) != 0 {
		t.Errorf("%d individuals left after harvest", len(p.Individuals))
	}
	if p.Soil.LitterC <= 0 {
		t.Error("crop residue should go to litter")
	}

	// The next year the crop is sown again on the same day.
	for day := 0; day <= 59; day++ {
		stepSowing(t, g, p, Observation{Year: 2001, Day: day, Temp: 20, Prec: 1})
	}
	if p.Sowing.State != Sown || p.Sowing.SowYear != 2001 || p.Sowing.MissedYears != 0 {
		t.Errorf("second year record %+v", p.Sowing)
	}
	if p.crop() == nil {
		t.Error("no crop individual after sowing")
	}
}

func TestSowingIdempotent(t *testing.T) {
	g := cropGridcell(t, 0, "TeSW")
	p := g.Stands[0].Patches[0]
	for day := 0; day < 70; day++ {
		stepSowing(t, g, p, Observation{Year: 2000, Day: day, Temp: 20, Prec: 1})
	}
	before := p.Sowing
	for i := 0; i < 3; i++ {
		if _, err := UpdatePatchSowingState(p, g); err != nil {
			t.Fatal(err)
		}
	}
	if p.Sowing != before {
		t.Errorf("repeated update changed the record: %+v != %+v", p.Sowing, before)
	}

	p.Sowing.LastUpdate += 10
	if _, err := UpdatePatchSowingState(p, g); !errors.Is(err, ErrStaleObservation) {
		t.Errorf("error %v should be ErrStaleObservation", err)
	}
}

func TestSowingMissedYears(t *testing.T) {
	g := cropGridcell(t, 0, "TeSW")
	p := g.Stands[0].Patches[0]
	for year := 2000; year < 2002; year++ {
		for day := 0; day < DaysPerYear; day++ {
			if s := stepSowing(t, g, p, Observation{Year: year, Day: day, Temp: 0, Prec: 1}); s != Unsown {
				t.Fatalf("%d-%d: state %s in a cold climate", year, day, s)
			}
		}
	}
	stepSowing(t, g, p, Observation{Year: 2002, Day: 0, Temp: 0, Prec: 1})
	if p.Sowing.MissedYears != 2 {
		t.Errorf("missed years %d, want 2", p.Sowing.MissedYears)
	}
}

// Winter wheat is sown in autumn and harvested the following year.
func TestSowingWinterCrop(t *testing.T) {
	g := cropGridcell(t, 0, "TeWW")
	p := g.Stands[0].Patches[0]
	temp := func(day int) float64 {
		if day >= 250 {
			return 8
		}
		return 16
	}
	for day := 0; day < DaysPerYear; day++ {
		stepSowing(t, g, p, Observation{Year: 2000, Day: day, Temp: temp(day), Prec: 1})
	}
	if p.Sowing.SowYear != 2000 || p.Sowing.SowDay != 254 {
		t.Fatalf("sowing record %+v", p.Sowing)
	}
	if p.Sowing.State != Growing {
		t.Fatalf("state %s at the end of the sowing year", p.Sowing.State)
	}
	for day := 0; day < DaysPerYear && p.Sowing.State == Growing; day++ {
		stepSowing(t, g, p, Observation{Year: 2001, Day: day, Temp: 15, Prec: 1})
	}
	if p.Sowing.State != Harvested || p.Sowing.HarvestYear != 2001 {
		t.Errorf("record %+v", p.Sowing)
	}
	if p.Sowing.MissedYears != 0 {
		t.Errorf("missed years %d", p.Sowing.MissedYears)
	}
}

func TestSowingNaturalStand(t *testing.T) {
	g := NewGridcell(0, 0, 0, 0)
	s, err := g.AddStand(Natural, nil, 1)
	if err != nil {
		t.Fatal(err)
	}
	p := s.AddPatch(Soil{})
	if st := stepSowing(t, g, p, Observation{Year: 2000, Day: 100, Temp: 20, Prec: 1}); st != Unsown {
		t.Errorf("natural patch state %s", st)
	}
}
