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

package guessutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/guess"
	"github.com/spatialmodel/guess/input"
	"github.com/spatialmodel/guess/input/cfinput"
	"github.com/spatialmodel/guess/input/demo"
	"github.com/spf13/cast"
)

// RunConfig holds the settings of a simulation.
type RunConfig struct {
	LogFile        string
	MetricsAddress string

	// Source is the name of the climate input module and Input its settings.
	Source string
	Input  input.Config

	PFTFile string

	FirstYear, NYears      int
	DisturbanceProbability float64

	Grid guess.GridConfig

	CheckpointURL      string
	CheckpointInterval int
	CheckpointRank     int
	Restore            bool

	OutputFile      string
	OutputVariables map[string]string
	PatchFile       string
}

// Sources returns a registry holding every climate input module.
func Sources() *input.Registry {
	r := input.NewRegistry()
	for _, register := range []func(*input.Registry) error{demo.Register, cfinput.Register} {
		if err := register(r); err != nil {
			panic(err)
		}
	}
	return r
}

// runConfig reads the simulation settings from cfg.
func runConfig(cfg *viper.Viper) (*RunConfig, error) {
	c := &RunConfig{
		LogFile:                expand(cfg.GetString("LogFile")),
		MetricsAddress:         cfg.GetString("MetricsAddress"),
		Source:                 cfg.GetString("Input.Source"),
		PFTFile:                expand(cfg.GetString("PFTFile")),
		FirstYear:              cfg.GetInt("FirstYear"),
		NYears:                 cfg.GetInt("NYears"),
		DisturbanceProbability: cfg.GetFloat64("DisturbanceProbability"),
		CheckpointURL:          expand(cfg.GetString("Checkpoint.URL")),
		CheckpointInterval:     cfg.GetInt("Checkpoint.Interval"),
		CheckpointRank:         cfg.GetInt("Checkpoint.Rank"),
		Restore:                cfg.GetBool("Checkpoint.Restore"),
		PatchFile:              expand(cfg.GetString("PatchFile")),
	}
	if c.NYears < 1 {
		return nil, fmt.Errorf("guess: NYears must be at least 1 but is %d", c.NYears)
	}
	if c.DisturbanceProbability < 0 || c.DisturbanceProbability > 1 {
		return nil, fmt.Errorf("guess: DisturbanceProbability %g is outside of [0, 1]", c.DisturbanceProbability)
	}
	if c.CheckpointInterval < 1 {
		return nil, fmt.Errorf("guess: Checkpoint.Interval must be at least 1 but is %d", c.CheckpointInterval)
	}
	if c.Restore && c.CheckpointURL == "" {
		return nil, fmt.Errorf("guess: Checkpoint.Restore is set but Checkpoint.URL is empty")
	}

	var err error
	if c.Grid.Lon, err = toFloat64SliceE(cfg.Get("Grid.Lon")); err != nil {
		return nil, fmt.Errorf("guess: invalid Grid.Lon: %v", err)
	}
	if c.Grid.Lat, err = toFloat64SliceE(cfg.Get("Grid.Lat")); err != nil {
		return nil, fmt.Errorf("guess: invalid Grid.Lat: %v", err)
	}
	c.Grid.GridProj = cfg.GetString("Grid.Proj")
	c.Grid.NPatches = cfg.GetInt("Grid.NPatches")
	c.Grid.Crops = cfg.GetStringSlice("Grid.Crops")
	c.Grid.CropFraction = cfg.GetFloat64("Grid.CropFraction")
	c.Grid.NDeposition = cfg.GetFloat64("Grid.NDeposition")
	c.Grid.SoilNInit = cfg.GetFloat64("Grid.SoilNInit")
	c.Grid.ClimateRetention = cfg.GetInt("Grid.ClimateRetention")

	opts, err := getStringMapString("Input.Options", cfg)
	if err != nil {
		return nil, err
	}
	c.Input = input.Config{
		FirstYear: c.FirstYear,
		File:      expand(cfg.GetString("Input.File")),
		Lon:       c.Grid.Lon,
		Lat:       c.Grid.Lat,
		Options:   opts,
	}

	if f := cfg.GetString("OutputFile"); f != "" {
		if c.OutputFile, err = checkOutputFile(f); err != nil {
			return nil, err
		}
		vars, err := getStringMapString("OutputVariables", cfg)
		if err != nil {
			return nil, err
		}
		if c.OutputVariables, err = checkOutputVars(vars); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// expand expands environment variables in s.
func expand(s string) string { return os.ExpandEnv(s) }

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) (map[string]string, error) {
	if len(vars) == 0 {
		return nil, fmt.Errorf("guess: there are no variables specified for output. Please fill in " +
			"the OutputVariables configuration and try again")
	}
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o, nil
}

// checkOutputFile makes sure that the directory of the output file exists,
// and expands any environment variables.
func checkOutputFile(f string) (string, error) {
	f = os.ExpandEnv(f)
	if filepath.Ext(f) != ".shp" {
		return f, fmt.Errorf("guess: OutputFile %q should end in .shp", f)
	}
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return f, fmt.Errorf("guess: the OutputFile directory doesn't exist: %v", err)
	}
	return f, nil
}

// getStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func getStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
	i := cfg.Get(varName)
	switch v := i.(type) {
	case nil:
		return map[string]string{}, nil
	case map[string]string:
		return v, nil
	case map[string]interface{}:
		return cast.ToStringMapStringE(v)
	case string:
		o := make(map[string]string)
		if strings.TrimSpace(v) == "" {
			return o, nil
		}
		d := json.NewDecoder(bytes.NewBufferString(v))
		if err := d.Decode(&o); err != nil {
			return nil, fmt.Errorf("guess: %s is not a JSON object of strings: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("guess: invalid type for %s: %#v", varName, i)
	}
}

// toFloat64SliceE converts a list of coordinates given in a configuration
// file, as flags or as a comma-separated environment variable.
func toFloat64SliceE(i interface{}) ([]float64, error) {
	var items []interface{}
	switch v := i.(type) {
	case []float64:
		return v, nil
	case []interface{}:
		items = v
	case []string:
		for _, s := range v {
			items = append(items, strings.TrimSpace(s))
		}
	case string:
		for _, s := range strings.Split(strings.Trim(v, "[]"), ",") {
			if s = strings.TrimSpace(s); s != "" {
				items = append(items, s)
			}
		}
	default:
		return nil, fmt.Errorf("unable to convert %#v to []float64", i)
	}
	o := make([]float64, len(items))
	for j, item := range items {
		f, err := cast.ToFloat64E(item)
		if err != nil {
			return nil, err
		}
		o[j] = f
	}
	return o, nil
}
