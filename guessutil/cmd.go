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

// Package guessutil contains the command-line interface of the GUESS
// vegetation model.
package guessutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/guess"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Cfg holds configuration information.
var Cfg *viper.Viper

var options []struct {
	name, usage, shorthand string
	defaultVal             interface{}
	flagsets               []*pflag.FlagSet
}

func init() {
	// Options are the configuration options available to GUESS.
	options = []struct {
		name, usage, shorthand string
		defaultVal             interface{}
		flagsets               []*pflag.FlagSet
	}{
		{
			name: "config",
			usage: `
              config specifies the configuration file location.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to a file that log messages are written to in
              addition to standard output. It can include environment variables.
              If it is empty, messages are only written to standard output.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MetricsAddress",
			usage: `
              MetricsAddress is the network address (for example ':9090') where
              the run metrics are served in the Prometheus format at /metrics
              while a simulation is running. If it is empty, metrics are not served.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Input.Source",
			usage: `
              Input.Source is the name of the climate input module. Use the
              'sources' command to list the available modules.`,
			shorthand:  "i",
			defaultVal: "demo",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.File",
			usage: `
              Input.File is the path to the climate input file, for input modules
              that read one. It can include environment variables.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Input.Options",
			usage: `
              Input.Options are settings specific to the input module, as a
              JSON object of strings (for example '{"temp_offset": "2"}').`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PFTFile",
			usage: `
              PFTFile is the path to a TOML (.toml) or YAML (.yaml, .yml) file
              holding the plant functional type table. If it is empty, the
              built-in table is used.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags(), pftsCmd.Flags()},
		},
		{
			name: "PFTFormat",
			usage: `
              PFTFormat is the format the 'pfts' command writes the table in:
              'toml' or 'yaml'.`,
			defaultVal: "toml",
			flagsets:   []*pflag.FlagSet{pftsCmd.Flags()},
		},
		{
			name: "FirstYear",
			usage: `
              FirstYear is the first calendar year of the simulation.`,
			defaultVal: 1901,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "NYears",
			usage: `
              NYears is the number of years to simulate.`,
			shorthand:  "n",
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "DisturbanceProbability",
			usage: `
              DisturbanceProbability is the annual probability that a patch of
              natural vegetation is destroyed by disturbance.`,
			defaultVal: 0.01,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.Lon",
			usage: `
              Grid.Lon gives the longitudes of the simulated gridcells in degrees.`,
			defaultVal: []string{"13.2"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.Lat",
			usage: `
              Grid.Lat gives the latitudes of the simulated gridcells in degrees.
              It must have as many entries as Grid.Lon.`,
			defaultVal: []string{"55.7"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.Proj",
			usage: `
              Grid.Proj gives the projection of the output grid in Proj4 or WKT
              format. If it is empty, output is in geographic coordinates.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.NPatches",
			usage: `
              Grid.NPatches is the number of replicate patches in each stand.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.Crops",
			usage: `
              Grid.Crops are the names of the crop PFTs grown in every gridcell.
              Each crop gets its own stand.`,
			defaultVal: []string{"TeSW", "TeWW", "TeCo"},
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.CropFraction",
			usage: `
              Grid.CropFraction is the fraction of every gridcell under cropland.
              It is shared equally among the crops.`,
			defaultVal: 0.3,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.NDeposition",
			usage: `
              Grid.NDeposition is the nitrogen deposition rate in kgN/m²/day.`,
			defaultVal: 2e-6,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.SoilNInit",
			usage: `
              Grid.SoilNInit is the initial soil mineral nitrogen in kgN/m².`,
			defaultVal: 0.005,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Grid.ClimateRetention",
			usage: `
              Grid.ClimateRetention is the number of days of climate kept for
              each gridcell. If it is less than 1, one year is kept.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Checkpoint.URL",
			usage: `
              Checkpoint.URL is the location where the simulation state is saved,
              in the format 'provider://bucket/directory'. Providers are 'file',
              'mem', 'gs' and 's3'. If it is empty, no checkpoints are written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Checkpoint.Interval",
			usage: `
              Checkpoint.Interval is the number of simulated years between
              checkpoints. A checkpoint is always written at the end of the run.`,
			defaultVal: 10,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Checkpoint.Rank",
			usage: `
              Checkpoint.Rank identifies this process among the processes of a
              distributed simulation. Its checkpoint is stored as '<rank>.state'.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "Checkpoint.Restore",
			usage: `
              If Checkpoint.Restore is true, the simulation resumes from the
              checkpoint at Checkpoint.URL. A new simulation is started if
              there is no checkpoint yet.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputFile",
			usage: `
              OutputFile is the path to the output shapefile. One file is written
              per year, with the year appended to the name. It can include
              environment variables. If it is empty, no shapefiles are written.`,
			shorthand:  "o",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables maps the names of output fields to expressions of
              the model variables listed by the 'outputs' command.`,
			defaultVal: map[string]string{
				"VegC":     "VegC",
				"LAI":      "LAI",
				"HarvestC": "HarvestC",
			},
			flagsets: []*pflag.FlagSet{runCmd.Flags()},
		},
		{
			name: "PatchFile",
			usage: `
              PatchFile is the path to a CSV file receiving the state of every
              patch at the end of each year. It can include environment
              variables. If it is empty, no patch file is written.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{runCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("GUESS")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch v := option.defaultVal.(type) {
			case string:
				set.StringP(option.name, option.shorthand, v, option.usage)
			case []string:
				set.StringSliceP(option.name, option.shorthand, v, option.usage)
			case bool:
				set.BoolP(option.name, option.shorthand, v, option.usage)
			case int:
				set.IntP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(v)
				set.StringP(option.name, option.shorthand, strings.TrimSpace(b.String()), option.usage)
			default:
				panic("invalid argument type")
			}
		}
	}
	for _, option := range options {
		Cfg.BindPFlag(option.name, option.flagsets[0].Lookup(option.name))
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(pftsCmd)
	Root.AddCommand(sourcesCmd)
	Root.AddCommand(outputsCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("guess: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "guess",
	Short: "A dynamic vegetation model.",
	Long: `GUESS simulates the growth of natural vegetation and crops in a set of
gridcells driven by daily climate. Use the subcommands specified below to
access the model functionality.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'GUESS_var' where 'var' is the
name of the variable to be set, with dots replaced by underscores
(for example GUESS_GRID_NPATCHES).
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of GUESS.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("GUESS v%s\n", guess.Version)
	},
	DisableAutoGenTag: true,
}

// runCmd runs a simulation.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation.",
	Long: `run simulates the configured gridcells from the first year for the
configured number of years. The state of the simulation can be saved to
checkpoints, from which a later run can resume.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := runConfig(Cfg)
		if err != nil {
			return err
		}
		return Run(context.Background(), cmd.OutOrStdout(), cfg)
	},
	DisableAutoGenTag: true,
}

// pftsCmd prints the PFT table.
var pftsCmd = &cobra.Command{
	Use:   "pfts",
	Short: "Print the plant functional type table.",
	Long: `pfts prints the table of plant functional types in the format read by
the PFTFile option. Without PFTFile it prints the built-in table, which
makes a starting point for a custom one.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		pfts, err := guess.ReadPFTFile(expand(Cfg.GetString("PFTFile")))
		if err != nil {
			return err
		}
		return guess.WritePFTs(cmd.OutOrStdout(), pfts, Cfg.GetString("PFTFormat"))
	},
	DisableAutoGenTag: true,
}

// sourcesCmd lists the climate input modules.
var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the climate input modules.",
	Long:  "sources lists the names of the climate input modules that can be used as Input.Source.",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range Sources().Names() {
			cmd.Println(name)
		}
	},
	DisableAutoGenTag: true,
}

// outputsCmd lists the model variables available to output expressions.
var outputsCmd = &cobra.Command{
	Use:   "outputs",
	Short: "List the model output variables.",
	Long: `outputs lists the model variables that can be used in the expressions
of the OutputVariables option, with their descriptions and units.`,
	Run: func(cmd *cobra.Command, args []string) {
		names, descriptions, units := guess.OutputOptions()
		for i, n := range names {
			cmd.Printf("%-10s %s [%s]\n", n, descriptions[i], units[i])
		}
	},
	DisableAutoGenTag: true,
}
