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

package demo

import (
	"math"
	"testing"

	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/input"
)

func testConfig() input.Config {
	return input.Config{
		FirstYear: 1990,
		Lon:       []float64{10, 150},
		Lat:       []float64{45, -35},
	}
}

func TestDeterministic(t *testing.T) {
	a, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	b, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 400; i++ {
		for id := 0; id < 2; id++ {
			oa, err := a.NextDailyObservation(id)
			if err != nil {
				t.Fatal(err)
			}
			ob, _ := b.NextDailyObservation(id)
			if oa != ob {
				t.Fatalf("day %d gridcell %d: %v != %v", i, id, oa, ob)
			}
			if wantYear, wantDay := 1990+i/guess.DaysPerYear, i%guess.DaysPerYear; oa.Year != wantYear || oa.Day != wantDay {
				t.Fatalf("date %d-%d, want %d-%d", oa.Year, oa.Day, wantYear, wantDay)
			}
		}
	}
}

func TestSeasons(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	meanTemp := func(id, from, to int) float64 {
		var sum float64
		for day := from; day < to; day++ {
			sum += s.Observation(id, 2000, day).Temp
		}
		return sum / float64(to-from)
	}
	// Northern gridcell: July warmer than January.
	if jan, jul := meanTemp(0, 0, 31), meanTemp(0, 181, 212); jul-jan < 20 {
		t.Errorf("north: January %.1f, July %.1f", jan, jul)
	}
	// Southern gridcell: the reverse.
	if jan, jul := meanTemp(1, 0, 31), meanTemp(1, 181, 212); jan-jul < 10 {
		t.Errorf("south: January %.1f, July %.1f", jan, jul)
	}
}

func TestPrecipitation(t *testing.T) {
	cfg := testConfig()
	cfg.Options = map[string]string{"prec_mean": "3", "wet_fraction": "0.5"}
	s, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	var wet, n int
	for year := 2000; year < 2010; year++ {
		for day := 0; day < guess.DaysPerYear; day++ {
			p := s.Observation(0, year, day).Prec
			if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
				t.Fatalf("%d-%d: precipitation %g", year, day, p)
			}
			if p > 0 {
				wet++
			}
			sum += p
			n++
		}
	}
	if mean := sum / float64(n); math.Abs(mean-3) > 0.5 {
		t.Errorf("mean precipitation %g, want about 3", mean)
	}
	if f := float64(wet) / float64(n); math.Abs(f-0.5) > 0.05 {
		t.Errorf("wet day fraction %g, want about 0.5", f)
	}
}

func TestSeek(t *testing.T) {
	s, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		s.NextDailyObservation(0)
	}
	var _ guess.Seeker = s
	if err := s.Seek(1995, 100); err != nil {
		t.Fatal(err)
	}
	for id := 0; id < 2; id++ {
		o, err := s.NextDailyObservation(id)
		if err != nil {
			t.Fatal(err)
		}
		if o.Year != 1995 || o.Day != 100 {
			t.Errorf("gridcell %d: date %d-%d after seek", id, o.Year, o.Day)
		}
	}
	if err := s.Seek(1995, guess.DaysPerYear); err == nil {
		t.Error("seeking outside of the year should fail")
	}
	if _, err := s.NextDailyObservation(2); err == nil {
		t.Error("unknown gridcell should fail")
	}
}

func TestOptions(t *testing.T) {
	for _, opts := range []map[string]string{
		{"prec_mean": "lots"},
		{"prec_mean": "-1"},
		{"wet_fraction": "0"},
		{"humidity": "1"},
	} {
		cfg := testConfig()
		cfg.Options = opts
		if _, err := New(cfg); err == nil {
			t.Errorf("options %v: no error", opts)
		}
	}
}

func TestRegister(t *testing.T) {
	r := input.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	src, err := r.New(Name, testConfig())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(*Source); !ok {
		t.Errorf("source is %T", src)
	}
}

// The source drives a full simulation.
func TestSimulation(t *testing.T) {
	cfg := testConfig()
	src, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	d := &guess.GUESS{
		PFTs:      guess.DefaultPFTs(),
		Climate:   src,
		FirstYear: cfg.FirstYear,
		NYears:    1,
		InitFuncs: []guess.DomainManipulator{guess.SetupGridcells(&guess.GridConfig{
			Lon:          cfg.Lon,
			Lat:          cfg.Lat,
			NPatches:     1,
			Crops:        []string{"TeSW"},
			CropFraction: 0.3,
			NDeposition:  2e-6,
			SoilNInit:    0.005,
		})},
		RunFuncs: guess.DefaultRunFuncs(),
	}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	for _, r := range guess.PatchRecords(d) {
		if r.LandUse == guess.Natural.String() && r.VegC <= 0 {
			t.Errorf("gridcell %d: no vegetation carbon", r.Gridcell)
		}
	}
}
