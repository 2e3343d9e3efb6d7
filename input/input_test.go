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

package input

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/spatialmodel/guess"
)

type constSource struct{ temp float64 }

func (c constSource) NextDailyObservation(id int) (guess.Observation, error) {
	return guess.Observation{Temp: c.temp}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"warm", "cold"} {
		temp := 20.0
		if name == "cold" {
			temp = -20
		}
		if err := r.Register(name, func(Config) (guess.ClimateSource, error) {
			return constSource{temp: temp}, nil
		}); err != nil {
			t.Fatal(err)
		}
	}
	if names := r.Names(); !reflect.DeepEqual(names, []string{"cold", "warm"}) {
		t.Errorf("names %v", names)
	}
	src, err := r.New("cold", Config{})
	if err != nil {
		t.Fatal(err)
	}
	if obs, _ := src.NextDailyObservation(0); obs.Temp != -20 {
		t.Errorf("temperature %g", obs.Temp)
	}
	if err := r.Register("warm", func(Config) (guess.ClimateSource, error) { return nil, nil }); err == nil {
		t.Error("duplicate registration should fail")
	}
	if err := r.Register("", nil); err == nil {
		t.Error("empty registration should fail")
	}
}

func TestRegistryUnknown(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"demo", "cf"} {
		if err := r.Register(name, func(Config) (guess.ClimateSource, error) { return constSource{}, nil }); err != nil {
			t.Fatal(err)
		}
	}
	_, err := r.New("era5", Config{})
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("error %v should be ErrUnknownSource", err)
	}
	want := `input: unknown data source "era5"; registered sources are [cf, demo]`
	if err.Error() != want {
		t.Errorf("error %q, want %q", err, want)
	}
}

func TestRegistryFactoryError(t *testing.T) {
	r := NewRegistry()
	broken := fmt.Errorf("no such file")
	if err := r.Register("file", func(Config) (guess.ClimateSource, error) { return nil, broken }); err != nil {
		t.Fatal(err)
	}
	if _, err := r.New("file", Config{}); !errors.Is(err, broken) {
		t.Errorf("error %v should wrap the factory error", err)
	}
	if _, err := r.New("file", Config{Lon: []float64{1}}); err == nil {
		t.Error("mismatched coordinates should fail")
	}
}
