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

// Package demo is a synthetic climate source. It needs no input files and
// gives the same weather every time it is run, which makes it useful for
// trying out the model and for tests.
package demo

import (
	"fmt"
	"math"

	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/input"
	"github.com/spatialmodel/guess/internal/hash"
	"github.com/spf13/cast"
)

// Name is the registry name of the source.
const Name = "demo"

// Register adds the source to r.
func Register(r *input.Registry) error {
	return r.Register(Name, func(cfg input.Config) (guess.ClimateSource, error) {
		return New(cfg)
	})
}

// Source is a deterministic seasonal climate. Temperature follows a cosine
// whose mean and amplitude depend on latitude; precipitation falls on
// pseudo-random wet days.
type Source struct {
	clock *input.Clock
	lat   []float64

	tempOffset  float64 // added to every temperature [°C]
	precMean    float64 // mean precipitation [mm/day]
	wetFraction float64 // fraction of days with rain
}

// New returns a demo source for the gridcells of cfg. Recognized options
// are "temp_offset" [°C], "prec_mean" [mm/day] and "wet_fraction".
func New(cfg input.Config) (*Source, error) {
	s := &Source{
		clock:       input.NewClock(cfg.FirstYear, cfg.NGridcells()),
		lat:         cfg.Lat,
		precMean:    2.5,
		wetFraction: 0.4,
	}
	for key, val := range cfg.Options {
		v, err := cast.ToFloat64E(val)
		if err != nil {
			return nil, fmt.Errorf("demo: option %s: %v", key, err)
		}
		switch key {
		case "temp_offset":
			s.tempOffset = v
		case "prec_mean":
			if v < 0 {
				return nil, fmt.Errorf("demo: negative prec_mean %g", v)
			}
			s.precMean = v
		case "wet_fraction":
			if v <= 0 || v > 1 {
				return nil, fmt.Errorf("demo: wet_fraction %g outside of (0, 1]", v)
			}
			s.wetFraction = v
		default:
			return nil, fmt.Errorf("demo: unknown option %q", key)
		}
	}
	return s, nil
}

// draw identifies one pseudo-random number.
type draw struct {
	Gridcell, Year, Day, Stream int
}

// NextDailyObservation implements guess.ClimateSource.
func (s *Source) NextDailyObservation(gridcellID int) (guess.Observation, error) {
	year, day, err := s.clock.Next(gridcellID)
	if err != nil {
		return guess.Observation{}, err
	}
	return s.Observation(gridcellID, year, day), nil
}

// Observation returns the weather of a gridcell on the given day.
func (s *Source) Observation(gridcellID, year, day int) guess.Observation {
	lat := s.lat[gridcellID]
	absLat := math.Abs(lat)
	mean := 28 - 0.45*absLat
	amplitude := 2 + 0.35*absLat
	// The coldest day is in mid January in the north and mid July in
	// the south.
	coldest := 14.0
	if lat < 0 {
		coldest += guess.DaysPerYear / 2
	}
	seasonal := -math.Cos(2 * math.Pi * (float64(day) - coldest) / guess.DaysPerYear)
	noise := 4 * (hash.Uniform(draw{gridcellID, year, day, 0}) - 0.5)
	temp := mean + amplitude*seasonal + noise + s.tempOffset

	var prec float64
	if hash.Uniform(draw{gridcellID, year, day, 1}) < s.wetFraction {
		u := hash.Uniform(draw{gridcellID, year, day, 2})
		prec = -math.Log(1-u) * s.precMean / s.wetFraction
	}
	return guess.Observation{Year: year, Day: day, Temp: temp, Prec: prec}
}

// Seek implements guess.Seeker.
func (s *Source) Seek(year, day int) error { return s.clock.Seek(year, day) }
