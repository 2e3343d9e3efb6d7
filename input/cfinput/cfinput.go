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

// Package cfinput reads daily climate from a NetCDF file.
//
// The file holds the variables "tas" (air temperature) and "pr"
// (precipitation), both with dimensions [time, gridcell], where time counts
// days from the first day of the year given by the global attribute
// "first_year". Temperatures in K and precipitation fluxes in kg m-2 s-1
// are converted to °C and mm/day according to the "units" attribute
// of each variable.
package cfinput

import (
	"fmt"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/input"
)

// Name is the registry name of the source.
const Name = "cf"

// Register adds the source to r.
func Register(r *input.Registry) error {
	return r.Register(Name, func(cfg input.Config) (guess.ClimateSource, error) {
		return Open(cfg)
	})
}

// Source serves observations from climate data held in memory.
type Source struct {
	clock     *input.Clock
	firstYear int
	tas, pr   *sparse.DenseArray
}

// Open reads cfg.File. The options "tas" and "pr" override the names of
// the temperature and precipitation variables.
func Open(cfg input.Config) (*Source, error) {
	if cfg.File == "" {
		return nil, fmt.Errorf("cfinput: no input file")
	}
	names := map[string]string{"tas": "tas", "pr": "pr"}
	for key, val := range cfg.Options {
		if _, ok := names[key]; !ok {
			return nil, fmt.Errorf("cfinput: unknown option %q", key)
		}
		names[key] = val
	}
	rw, err := os.Open(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("cfinput: %v", err)
	}
	defer rw.Close()
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, fmt.Errorf("cfinput: opening %s: %v", cfg.File, err)
	}
	s := &Source{clock: input.NewClock(cfg.FirstYear, cfg.NGridcells())}
	fy, ok := f.Header.GetAttribute("", "first_year").([]int32)
	if !ok || len(fy) != 1 {
		return nil, fmt.Errorf("cfinput: %s: missing integer attribute first_year", cfg.File)
	}
	s.firstYear = int(fy[0])
	if cfg.FirstYear < s.firstYear {
		return nil, fmt.Errorf("cfinput: %s starts in %d, after the first simulation year %d", cfg.File, s.firstYear, cfg.FirstYear)
	}

	if s.tas, err = readVar(f, names["tas"], tasUnits); err != nil {
		return nil, fmt.Errorf("cfinput: %s: %v", cfg.File, err)
	}
	if s.pr, err = readVar(f, names["pr"], prUnits); err != nil {
		return nil, fmt.Errorf("cfinput: %s: %v", cfg.File, err)
	}
	if s.tas.Shape[0] != s.pr.Shape[0] || s.tas.Shape[1] != s.pr.Shape[1] {
		return nil, fmt.Errorf("cfinput: %s: %s has shape %v but %s has shape %v",
			cfg.File, names["tas"], s.tas.Shape, names["pr"], s.pr.Shape)
	}
	if n := s.tas.Shape[1]; n != cfg.NGridcells() {
		return nil, fmt.Errorf("cfinput: %s holds %d gridcells but %d are configured", cfg.File, n, cfg.NGridcells())
	}
	return s, nil
}

// unitConversion returns the function that converts values in the given
// units to model units.
type unitConversion func(units string) (func(float64) float64, bool)

func identity(v float64) float64 { return v }

func tasUnits(units string) (func(float64) float64, bool) {
	switch units {
	case "degC", "C", "celsius":
		return identity, true
	case "K":
		return func(v float64) float64 { return v - 273.15 }, true
	}
	return nil, false
}

func prUnits(units string) (func(float64) float64, bool) {
	switch units {
	case "mm", "mm/day", "mm day-1", "kg m-2 d-1", "kg m-2 day-1":
		return identity, true
	case "kg m-2 s-1", "kg/m2/s":
		return func(v float64) float64 { return v * 86400 }, true
	}
	return nil, false
}

// readVar reads a [time, gridcell] variable, converting it to model units
// and replacing fill values with NaN.
func readVar(f *cdf.File, name string, units unitConversion) (*sparse.DenseArray, error) {
	dims := f.Header.Lengths(name)
	if len(dims) != 2 {
		return nil, fmt.Errorf("variable %s: want dimensions [time, gridcell], have %v", name, f.Header.Dimensions(name))
	}
	convert := identity
	if u, ok := f.Header.GetAttribute(name, "units").(string); ok {
		c, ok := units(u)
		if !ok {
			return nil, fmt.Errorf("variable %s: unsupported units %q", name, u)
		}
		convert = c
	}
	fill := math.NaN()
	if fv, ok := f.Header.GetAttribute(name, "_FillValue").([]float32); ok && len(fv) == 1 {
		fill = float64(fv[0])
	}

	r := f.Reader(name, nil, nil)
	buf := r.Zero(-1)
	if _, err := r.Read(buf); err != nil {
		return nil, fmt.Errorf("reading variable %s: %v", name, err)
	}
	vals, ok := buf.([]float32)
	if !ok {
		return nil, fmt.Errorf("variable %s: want float32 data, have %T", name, buf)
	}
	data := sparse.ZerosDense(dims...)
	if len(vals) != len(data.Elements) {
		return nil, fmt.Errorf("variable %s: dims are %v but array length is %d", name, dims, len(vals))
	}
	for i, v := range vals {
		if float64(v) == fill {
			data.Elements[i] = math.NaN()
			continue
		}
		data.Elements[i] = convert(float64(v))
	}
	return data, nil
}

// NextDailyObservation implements guess.ClimateSource.
func (s *Source) NextDailyObservation(gridcellID int) (guess.Observation, error) {
	year, day, err := s.clock.Next(gridcellID)
	if err != nil {
		return guess.Observation{}, err
	}
	t := (year-s.firstYear)*guess.DaysPerYear + day
	if t < 0 || t >= s.tas.Shape[0] {
		return guess.Observation{}, fmt.Errorf("cfinput: no data for %d-%03d", year, day)
	}
	return guess.Observation{
		Year: year,
		Day:  day,
		Temp: s.tas.Get(t, gridcellID),
		Prec: s.pr.Get(t, gridcellID),
	}, nil
}

// Seek implements guess.Seeker.
func (s *Source) Seek(year, day int) error { return s.clock.Seek(year, day) }

// Days returns the number of days of data in the file.
func (s *Source) Days() int { return s.tas.Shape[0] }

// Write writes temperature [°C] and precipitation [mm/day] arrays of shape
// [time, gridcell] to w in the format read by Open.
func Write(w *os.File, firstYear int, tas, pr *sparse.DenseArray) error {
	if len(tas.Shape) != 2 || len(pr.Shape) != 2 || tas.Shape[0] != pr.Shape[0] || tas.Shape[1] != pr.Shape[1] {
		return fmt.Errorf("cfinput: incompatible shapes %v and %v", tas.Shape, pr.Shape)
	}
	h := cdf.NewHeader([]string{"time", "gridcell"}, []int{tas.Shape[0], tas.Shape[1]})
	h.AddAttribute("", "comment", "GUESS daily climate input")
	h.AddAttribute("", "first_year", []int32{int32(firstYear)})
	vars := []struct {
		name, units, desc string
		data              *sparse.DenseArray
	}{
		{"tas", "degC", "Daily mean near-surface air temperature", tas},
		{"pr", "mm/day", "Daily precipitation", pr},
	}
	for _, v := range vars {
		h.AddVariable(v.name, []string{"time", "gridcell"}, []float32{0})
		h.AddAttribute(v.name, "units", v.units)
		h.AddAttribute(v.name, "long_name", v.desc)
	}
	h.Define()

	f, err := cdf.Create(w, h) // writes the header to w
	if err != nil {
		return fmt.Errorf("cfinput: %v", err)
	}
	for _, v := range vars {
		data32 := make([]float32, len(v.data.Elements))
		for i, e := range v.data.Elements {
			data32[i] = float32(e)
		}
		end := f.Header.Lengths(v.name)
		start := make([]int, len(end))
		if _, err := f.Writer(v.name, start, end).Write(data32); err != nil {
			return fmt.Errorf("cfinput: writing %s: %v", v.name, err)
		}
	}
	return cdf.UpdateNumRecs(w)
}
