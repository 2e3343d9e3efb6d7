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
	"fmt"
	"math"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/kr/pretty"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testFirstYear = 2000

// testClimate is a deterministic climate source.
type testClimate struct {
	mu    sync.Mutex
	start int         // day number of the first observation
	next  map[int]int // day number of the next observation by gridcell
	f     func(id, year, day int) (temp, prec float64)
}

func newTestClimate(firstYear int, f func(id, year, day int) (temp, prec float64)) *testClimate {
	return &testClimate{
		start: firstYear * DaysPerYear,
		next:  make(map[int]int),
		f:     f,
	}
}

func (c *testClimate) NextDailyObservation(id int) (Observation, error) {
	c.mu.Lock()
	n, ok := c.next[id]
	if !ok {
		n = c.start
	}
	c.next[id] = n + 1
	c.mu.Unlock()
	year, day := n/DaysPerYear, n%DaysPerYear
	temp, prec := c.f(id, year, day)
	return Observation{Year: year, Day: day, Temp: temp, Prec: prec}, nil
}

func (c *testClimate) Seek(year, day int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = year*DaysPerYear + day
	c.next = make(map[int]int)
	return nil
}

// seasonal is a temperate climate with a minimum temperature in mid
// January, slightly different for each gridcell.
func seasonal(id, year, day int) (float64, float64) {
	temp := 10 + float64(id) - 15*math.Cos(2*math.Pi*float64(day-14)/DaysPerYear)
	prec := 2 + math.Sin(float64(day+year))
	return temp, prec
}

func newTestModel(nYears int, crops ...string) *GUESS {
	cfg := &GridConfig{
		Lon:         []float64{10, 12, -90},
		Lat:         []float64{45, 50, 35},
		NPatches:    2,
		Crops:       crops,
		NDeposition: 2e-6,
		SoilNInit:   0.005,
	}
	if len(crops) > 0 {
		cfg.CropFraction = 0.5
	}
	return &GUESS{
		PFTs:                   DefaultPFTs(),
		Climate:                newTestClimate(testFirstYear, seasonal),
		FirstYear:              testFirstYear,
		NYears:                 nYears,
		DisturbanceProbability: 0.01,
		InitFuncs:              []DomainManipulator{SetupGridcells(cfg)},
		RunFuncs:               DefaultRunFuncs(),
	}
}

// collectYearly returns run functions that append the yearly patch records
// to recs.
func collectYearly(recs *[]PatchRecord) []DomainManipulator {
	return []DomainManipulator{
		Daily(),
		EndOfYear(),
		func(d *GUESS) error {
			if d.LastDayOfYear() {
				*recs = append(*recs, PatchRecords(d)...)
			}
			return nil
		},
		AdvanceDay(),
	}
}

func TestAdvanceDay(t *testing.T) {
	d := &GUESS{FirstYear: 2000, NYears: 2, Year: 2000, Day: 363}
	f := AdvanceDay()
	want := []struct{ year, day int }{{2000, 364}, {2001, 0}, {2001, 1}}
	for i, w := range want {
		if err := f(d); err != nil {
			t.Fatal(err)
		}
		if d.Year != w.year || d.Day != w.day {
			t.Errorf("step %d: have %d-%d, want %d-%d", i, d.Year, d.Day, w.year, w.day)
		}
		if d.Done {
			t.Errorf("step %d: finished too early", i)
		}
	}
	d.Day = 364
	if !d.LastDayOfYear() {
		t.Error("day 364 should be the last day of the year")
	}
	if err := f(d); err != nil {
		t.Fatal(err)
	}
	if !d.Done {
		t.Error("simulation should be finished after the last year")
	}
	if !d.YearBoundary() {
		t.Error("should be at a year boundary")
	}
}

func TestRun(t *testing.T) {
	d := newTestModel(2, "TeSW", "TeWW", "TeCo")
	d.Metrics = NewMetrics()
	var recs []PatchRecord
	d.RunFuncs = collectYearly(&recs)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	if d.Year != testFirstYear+2 || d.Day != 0 {
		t.Errorf("final date %d-%d", d.Year, d.Day)
	}
	if v := testutil.ToFloat64(d.Metrics.Days); v != 2*DaysPerYear {
		t.Errorf("days: have %g, want %d", v, 2*DaysPerYear)
	}
	if v := testutil.ToFloat64(d.Metrics.Years); v != 2 {
		t.Errorf("years: have %g, want 2", v)
	}
	if testutil.ToFloat64(d.Metrics.Sowings) == 0 {
		t.Error("no crops were sown")
	}
	if testutil.ToFloat64(d.Metrics.Harvests) == 0 {
		t.Error("no crops were harvested")
	}

	var harvest, vegC float64
	for _, r := range recs {
		if r.LandUse == Cropland.String() {
			harvest += r.HarvestC
		} else {
			vegC += r.VegC
		}
		if r.SoilN < 0 || r.LitterC < 0 || r.VegC < 0 {
			t.Errorf("invalid record %+v", r)
		}
	}
	if harvest <= 0 {
		t.Error("no carbon was harvested")
	}
	if vegC <= 0 {
		t.Error("natural vegetation has no carbon")
	}
}

// Running the gridcells on one goroutine or on several must give the same
// results.
func TestConcurrentEqualsSequential(t *testing.T) {
	run := func(procs int) []PatchRecord {
		old := runtime.GOMAXPROCS(procs)
		defer runtime.GOMAXPROCS(old)
		d := newTestModel(2, "TeSW", "TeCo")
		var recs []PatchRecord
		d.RunFuncs = collectYearly(&recs)
		if err := d.Init(); err != nil {
			t.Fatal(err)
		}
		if err := d.Run(); err != nil {
			t.Fatal(err)
		}
		return recs
	}
	seq := run(1)
	conc := run(4)
	if diff := pretty.Diff(seq, conc); len(diff) > 0 {
		t.Errorf("concurrent run differs from sequential run:\n%v", strings.Join(diff, "\n"))
	}
}

func TestCalculationsError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := newTestModel(1)
	d.Diagnostics = NewDiagnostics(logger)
	d.Metrics = NewMetrics()
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	f := Calculations(func(g *Gridcell, d *GUESS) error {
		if g.ID == 1 {
			return fmt.Errorf("broken")
		}
		return nil
	})
	if err := f(d); err != nil {
		t.Fatalf("one failing gridcell should not stop the others: %v", err)
	}
	if d.Gridcells[0].Disabled || !d.Gridcells[1].Disabled || d.Gridcells[2].Disabled {
		t.Error("only gridcell 1 should be disabled")
	}
	if v := testutil.ToFloat64(d.Metrics.GridcellFailures); v != 1 {
		t.Errorf("%g gridcell failures recorded", v)
	}
	e := hook.LastEntry()
	if e == nil || e.Level != logrus.WarnLevel || e.Data["gridcell"] != 1 ||
		!strings.Contains(e.Message, "broken") {
		t.Errorf("entry %+v", e)
	}

	// The last enabled gridcells failing stops the simulation.
	f = Calculations(func(g *Gridcell, d *GUESS) error {
		return fmt.Errorf("broken %d", g.ID)
	})
	err := f(d)
	if err == nil || !strings.Contains(err.Error(), "gridcell 0") {
		t.Errorf("unexpected error %v", err)
	}
	if v := testutil.ToFloat64(d.Metrics.GridcellFailures); v != 3 {
		t.Errorf("%g gridcell failures recorded", v)
	}
	e = hook.LastEntry()
	if e == nil || e.Level != logrus.ErrorLevel || e.Data["gridcell"] != 0 {
		t.Errorf("entry %+v", e)
	}
}

func TestCalculationsContractViolation(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := newTestModel(1)
	d.Diagnostics = NewDiagnostics(logger)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	d.Day = 17
	f := Calculations(func(g *Gridcell, d *GUESS) error {
		if g.ID == 2 {
			NCompete([]NCompetingIndividual{{NDemand: -1}}, 1)
		}
		return nil
	})
	err := f(d)
	var cv *ContractViolation
	if !errors.As(err, &cv) {
		t.Fatalf("error %v should wrap a contract violation", err)
	}
	if cv.Op != "NCompete" {
		t.Errorf("operation: have %s, want NCompete", cv.Op)
	}
	if d.Gridcells[2].Disabled {
		t.Error("a contract violation should abort, not disable the gridcell")
	}
	e := hook.LastEntry()
	if e == nil || e.Level != logrus.ErrorLevel {
		t.Fatalf("entry %+v", e)
	}
	if e.Data["gridcell"] != 2 || e.Data["year"] != testFirstYear || e.Data["day"] != 17 {
		t.Errorf("abort fields %v", e.Data)
	}
	if logged, ok := e.Data[logrus.ErrorKey].(error); !ok || !errors.As(logged, &cv) {
		t.Errorf("logged error %v should wrap the contract violation", e.Data[logrus.ErrorKey])
	}
}

// failingClimate is a testClimate whose source for one gridcell fails on
// one day.
type failingClimate struct {
	*testClimate
	id, year, day int
}

func (c failingClimate) NextDailyObservation(id int) (Observation, error) {
	obs, err := c.testClimate.NextDailyObservation(id)
	if err == nil && id == c.id && obs.Year == c.year && obs.Day == c.day {
		return Observation{}, errors.New("climate file truncated")
	}
	return obs, err
}

func TestRunGridcellFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := newTestModel(2, "TeSW")
	d.Diagnostics = NewDiagnostics(logger)
	d.Metrics = NewMetrics()
	d.Climate = failingClimate{
		testClimate: newTestClimate(testFirstYear, seasonal),
		id:          1, year: testFirstYear, day: 100,
	}
	var recs []PatchRecord
	d.RunFuncs = collectYearly(&recs)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	if !d.Gridcells[1].Disabled || d.Gridcells[0].Disabled || d.Gridcells[2].Disabled {
		t.Error("only gridcell 1 should be disabled")
	}
	if v := testutil.ToFloat64(d.Metrics.GridcellFailures); v != 1 {
		t.Errorf("%g gridcell failures recorded", v)
	}
	var disabled int
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "gridcell disabled") {
			disabled++
			if e.Data["gridcell"] != 1 || e.Data["day"] != 100 {
				t.Errorf("warning fields %v", e.Data)
			}
		}
	}
	if disabled != 1 {
		t.Errorf("%d disabled warnings, want 1", disabled)
	}
	if d.Gridcells[1].Climate.Len() == 0 {
		t.Fatal("gridcell 1 should keep the climate read before it failed")
	}
	if last, _ := d.Gridcells[1].Climate.Latest(); last.Year != testFirstYear || last.Day != 99 {
		t.Errorf("gridcell 1 was simulated after it failed: last climate %d-%03d", last.Year, last.Day)
	}
	if last, _ := d.Gridcells[0].Climate.Latest(); last.Year != testFirstYear+1 || last.Day != DaysPerYear-1 {
		t.Errorf("gridcell 0 stopped at %d-%03d", last.Year, last.Day)
	}
}

// A cropland patch in a climate too cold for sowing misses every year of
// the simulation, including the last one.
func TestRunMissedSowings(t *testing.T) {
	logger, hook := test.NewNullLogger()
	d := newTestModel(2, "TeSW")
	d.Diagnostics = NewDiagnostics(logger)
	d.Metrics = NewMetrics()
	d.Climate = newTestClimate(testFirstYear, func(id, year, day int) (float64, float64) {
		return -5, 1
	})
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	if err := d.Run(); err != nil {
		t.Fatal(err)
	}
	// 3 gridcells with 2 cropland patches each, for 2 years.
	const want = 12
	var missed int
	for _, g := range d.Gridcells {
		for _, s := range g.Stands {
			for _, p := range s.Patches {
				if s.LandUse == Cropland {
					missed += p.Sowing.MissedYears
				}
			}
		}
	}
	if missed != want {
		t.Errorf("missed years %d, want %d", missed, want)
	}
	if v := testutil.ToFloat64(d.Metrics.MissedSowings); v != want {
		t.Errorf("missed sowing metric %g, want %d", v, want)
	}
	var warnings int
	for _, e := range hook.AllEntries() {
		if strings.Contains(e.Message, "without sowing") {
			warnings++
		}
	}
	if warnings != want {
		t.Errorf("%d missed sowing warnings, want %d", warnings, want)
	}
}

// A crop harvested on the first day of the year is reported for that year.
func TestDailyHarvestOnFirstDay(t *testing.T) {
	d := newTestModel(2, "TeSW")
	d.Climate = newTestClimate(testFirstYear, func(id, year, day int) (float64, float64) {
		return 20, 1
	})
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	d.Year, d.Day = testFirstYear+1, 0
	var patches []*Patch
	for _, g := range d.Gridcells {
		for _, s := range g.Stands {
			if s.LandUse != Cropland {
				continue
			}
			for _, p := range s.Patches {
				ind := p.AddIndividual(s.Crop(), s.Crop().EstablishC)
				ind.CMassHO = 0.1
				p.Sowing.State = Growing
				p.Sowing.Year = testFirstYear
				p.Sowing.SowYear = testFirstYear
				p.Sowing.SowDay = 300
				p.Sowing.HeatUnits = s.Crop().PHU - 1
				p.HarvestC = 0.5
				patches = append(patches, p)
			}
		}
		if _, err := UpdateGridcellClimateHistory(g, Observation{Year: testFirstYear, Day: DaysPerYear - 1, Temp: 20, Prec: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := d.Climate.(*testClimate).Seek(testFirstYear+1, 0); err != nil {
		t.Fatal(err)
	}
	if err := Daily()(d); err != nil {
		t.Fatal(err)
	}
	for _, p := range patches {
		if p.Sowing.State != Harvested || p.Sowing.HarvestDay != 0 {
			t.Fatalf("patch not harvested on the first day: %+v", p.Sowing)
		}
		if p.HarvestC < 0.1 {
			t.Errorf("harvest %g lost on the first day of the year", p.HarvestC)
		}
		if p.HarvestC >= 0.5 {
			t.Errorf("harvest %g of the previous year not cleared", p.HarvestC)
		}
	}
}

func TestCalculationsSkipsDisabled(t *testing.T) {
	d := newTestModel(1)
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	d.Gridcells[0].Disabled = true
	var mu sync.Mutex
	visited := make(map[int]bool)
	f := Calculations(func(g *Gridcell, d *GUESS) error {
		mu.Lock()
		visited[g.ID] = true
		mu.Unlock()
		return nil
	})
	if err := f(d); err != nil {
		t.Fatal(err)
	}
	if visited[0] || !visited[1] || !visited[2] {
		t.Errorf("visited gridcells %v", visited)
	}
}

type wrongDateClimate struct{}

func (wrongDateClimate) NextDailyObservation(id int) (Observation, error) {
	return Observation{Year: 1900, Day: 0, Temp: 10, Prec: 1}, nil
}

func TestDailyClimateDateMismatch(t *testing.T) {
	d := newTestModel(1)
	d.Climate = wrongDateClimate{}
	if err := d.Init(); err != nil {
		t.Fatal(err)
	}
	err := d.Run()
	if err == nil || !strings.Contains(err.Error(), "1900-000") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestStandMean(t *testing.T) {
	g := NewGridcell(0, 0, 0, 0)
	s1, _ := g.AddStand(Natural, nil, 0.25)
	s1.AddPatch(Soil{NMineral: 1})
	s1.AddPatch(Soil{NMineral: 3})
	s2, _ := g.AddStand(Natural, nil, 0.75)
	s2.AddPatch(Soil{NMineral: 4})
	have := g.standMean(func(p *Patch) float64 { return p.Soil.NMineral })
	want := 0.25*2 + 0.75*4
	if math.Abs(have-want) > 1e-12 {
		t.Errorf("have %g, want %g", have, want)
	}
}
