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

package cfinput

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/sparse"
	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/input"
)

const (
	testFirstYear = 1980
	testYears     = 2
	testGridcells = 3
)

func testTemp(t, g int) float64 { return float64(g*10) + float64(t%guess.DaysPerYear)/10 }
func testPrec(t, g int) float64 { return float64((t + g) % 5) }

// writeTestFile writes two years of climate for three gridcells.
func writeTestFile(t *testing.T) string {
	nt := testYears * guess.DaysPerYear
	tas := sparse.ZerosDense(nt, testGridcells)
	pr := sparse.ZerosDense(nt, testGridcells)
	for i := 0; i < nt; i++ {
		for g := 0; g < testGridcells; g++ {
			tas.Set(testTemp(i, g), i, g)
			pr.Set(testPrec(i, g), i, g)
		}
	}
	tas.Set(math.NaN(), 5, 1)
	name := filepath.Join(t.TempDir(), "climate.nc")
	f, err := os.Create(name)
	if err != nil {
		t.Fatal(err)
	}
	if err := Write(f, testFirstYear, tas, pr); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return name
}

func testConfig(file string, firstYear int) input.Config {
	return input.Config{
		FirstYear: firstYear,
		File:      file,
		Lon:       []float64{0, 1, 2},
		Lat:       []float64{40, 41, 42},
	}
}

func TestRead(t *testing.T) {
	file := writeTestFile(t)
	s, err := Open(testConfig(file, testFirstYear))
	if err != nil {
		t.Fatal(err)
	}
	if s.Days() != testYears*guess.DaysPerYear {
		t.Errorf("%d days", s.Days())
	}
	for i := 0; i < s.Days(); i++ {
		for g := 0; g < testGridcells; g++ {
			o, err := s.NextDailyObservation(g)
			if err != nil {
				t.Fatal(err)
			}
			if o.Year != testFirstYear+i/guess.DaysPerYear || o.Day != i%guess.DaysPerYear {
				t.Fatalf("date %d-%d at step %d", o.Year, o.Day, i)
			}
			if i == 5 && g == 1 {
				if !math.IsNaN(o.Temp) {
					t.Errorf("missing value read as %g", o.Temp)
				}
				continue
			}
			// Values are stored in single precision.
			if math.Abs(o.Temp-testTemp(i, g)) > 1e-4 || o.Prec != testPrec(i, g) {
				t.Fatalf("step %d gridcell %d: %v", i, g, o)
			}
		}
	}
	if _, err := s.NextDailyObservation(0); err == nil {
		t.Error("reading past the end of the data should fail")
	}
}

func TestSeek(t *testing.T) {
	file := writeTestFile(t)
	s, err := Open(testConfig(file, testFirstYear+1))
	if err != nil {
		t.Fatal(err)
	}
	o, err := s.NextDailyObservation(2)
	if err != nil {
		t.Fatal(err)
	}
	if o.Year != testFirstYear+1 || o.Day != 0 || math.Abs(o.Temp-testTemp(guess.DaysPerYear, 2)) > 1e-4 {
		t.Errorf("first observation %v", o)
	}
	if err := s.Seek(testFirstYear, 200); err != nil {
		t.Fatal(err)
	}
	o, err = s.NextDailyObservation(2)
	if err != nil {
		t.Fatal(err)
	}
	if o.Year != testFirstYear || o.Day != 200 || math.Abs(o.Temp-testTemp(200, 2)) > 1e-4 {
		t.Errorf("observation after seek %v", o)
	}
}

func TestOpenErrors(t *testing.T) {
	file := writeTestFile(t)
	tests := []struct {
		name string
		cfg  input.Config
	}{
		{"no file", testConfig("", testFirstYear)},
		{"missing file", testConfig(file+".missing", testFirstYear)},
		{"early", testConfig(file, testFirstYear-1)},
		{"gridcells", input.Config{FirstYear: testFirstYear, File: file, Lon: []float64{0}, Lat: []float64{0}}},
		{"variable", func() input.Config {
			c := testConfig(file, testFirstYear)
			c.Options = map[string]string{"tas": "tasmax"}
			return c
		}()},
		{"option", func() input.Config {
			c := testConfig(file, testFirstYear)
			c.Options = map[string]string{"wind": "sfcWind"}
			return c
		}()},
	}
	for _, test := range tests {
		if _, err := Open(test.cfg); err == nil {
			t.Errorf("%s: no error", test.name)
		}
	}
}

func TestUnits(t *testing.T) {
	k, ok := tasUnits("K")
	if !ok || math.Abs(k(273.15)) > 1e-12 {
		t.Error("kelvin conversion")
	}
	flux, ok := prUnits("kg m-2 s-1")
	if !ok || math.Abs(flux(1.0/86400)-1) > 1e-12 {
		t.Error("precipitation flux conversion")
	}
	if _, ok := prUnits("inches"); ok {
		t.Error("unknown units should not convert")
	}
}

func TestRegister(t *testing.T) {
	file := writeTestFile(t)
	r := input.NewRegistry()
	if err := Register(r); err != nil {
		t.Fatal(err)
	}
	src, err := r.New(Name, testConfig(file, testFirstYear))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := src.(guess.Seeker); !ok {
		t.Error("source should implement guess.Seeker")
	}
}
