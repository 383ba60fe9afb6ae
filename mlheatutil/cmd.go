/*
Copyright © 2019 the mlheat authors.
This file is part of mlheat.

mlheat is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

mlheat is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with mlheat.  If not, see <http://www.gnu.org/licenses/>.
*/

// Package mlheatutil contains the command-line interface and configuration
// handling for the mlheat mixed-layer heat budget calculator.
package mlheatutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/mlheat"
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
	// Options are the configuration options available to mlheat.
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
			name: "LogLevel",
			usage: `
              LogLevel sets the minimum level of log messages to print.
              Valid values are panic, fatal, error, warn, info and debug.`,
			defaultVal: "info",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "InputDir",
			usage: `
              InputDir is the directory holding the daily ocean state files.
              It can include environment variables.`,
			shorthand:  "i",
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "InputPattern",
			usage: `
              InputPattern is the file name pattern of one year of daily
              ocean state netCDF files within InputDir. The wildcard [YEAR]
              is replaced by the year being processed. Files are processed
              in lexical order, one day per file.`,
			defaultVal: "GLO_PHY_MY_[YEAR]*.nc",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "OutputDir",
			usage: `
              OutputDir is the directory to write the per-year budget record
              stores to. It can include environment variables.`,
			shorthand:  "o",
			defaultVal: "output",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "FluxDir",
			usage: `
              FluxDir is the directory holding the surface heat flux record
              stores. It can include environment variables.`,
			defaultVal: ".",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.Shortwave",
			usage: `
              Flux.Shortwave is the file name of the net shortwave radiation
              store [W/m2, positive into the ocean].`,
			defaultVal: mlheat.DefaultFluxFiles.Shortwave,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.Longwave",
			usage: `
              Flux.Longwave is the file name of the net longwave radiation
              store [W/m2, positive into the ocean].`,
			defaultVal: mlheat.DefaultFluxFiles.Longwave,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.Latent",
			usage: `
              Flux.Latent is the file name of the latent heat flux
              store [W/m2, positive into the ocean].`,
			defaultVal: mlheat.DefaultFluxFiles.Latent,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.Sensible",
			usage: `
              Flux.Sensible is the file name of the sensible heat flux
              store [W/m2, positive into the ocean].`,
			defaultVal: mlheat.DefaultFluxFiles.Sensible,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.BaseYear",
			usage: `
              Flux.BaseYear is the first year held in the flux stores.`,
			defaultVal: 1993,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Flux.DaysPerYear",
			usage: `
              Flux.DaysPerYear is the number of records each year occupies
              in the flux stores.`,
			defaultVal: 365,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Years",
			usage: `
              Years specifies the years to process, either as an inclusive
              range such as 1993:2022 or as a list such as 1993,1997,2001.`,
			shorthand:  "y",
			defaultVal: "1993:2022",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of years to process in parallel. 'auto'
              uses one less than the number of processors.`,
			defaultVal: "auto",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Resolution",
			usage: `
              Resolution is the nominal horizontal grid resolution in degrees.`,
			defaultVal: mlheat.DefaultResolution,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Ah",
			usage: `
              Ah is the horizontal eddy diffusivity [m2/s].`,
			defaultVal: 100.0,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "Kv",
			usage: `
              Kv is the vertical diffusivity at the mixed-layer base [m2/s].`,
			defaultVal: 1.0e-4,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "HMin",
			usage: `
              HMin is the minimum mixed-layer thickness used in denominators [m].`,
			defaultVal: 10.0,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "UseHBarDenom",
			usage: `
              UseHBarDenom specifies whether to use the average of the current
              and next day's thickness in denominators.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "WeMode",
			usage: `
              WeMode selects how the entrainment velocity is estimated. Options
              are dhdt, centered, deepening and full.`,
			defaultVal: string(mlheat.DhDt),
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "WeCapMD",
			usage: `
              WeCapMD caps the magnitude of the entrainment velocity [m/day].
              Leave empty for no cap.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "EntOnlyCooling",
			usage: `
              EntOnlyCooling specifies whether to set positive entrainment
              terms to zero.`,
			defaultVal: true,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "DTCap",
			usage: `
              DTCap caps the magnitude of the temperature jump at the mixed-layer
              base used for entrainment [K]. Leave empty for no cap.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "EntCapKPD",
			usage: `
              EntCapKPD caps the magnitude of the entrainment term [K/day].
              Leave empty for no cap.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "SaveWe",
			usage: `
              SaveWe specifies whether to also write the entrainment velocity.`,
			defaultVal: false,
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
		{
			name: "OutputVariables",
			usage: `
              OutputVariables specifies additional fields to write, as a map of
              {field name: expression}. Expressions can use the budget fields
              Tm, Tb, T0, Um, Vm, MLD, TenForward, TenCentered, QNET, ADV, ENT,
              DIFF, DIFFV, ClosForward, ClosCentered and We, other output
              variables, and the functions exp(x), abs(x) and kpd(x), where
              kpd converts a rate per second to a rate per day.`,
			defaultVal: map[string]string{},
			flagsets:   []*pflag.FlagSet{budgetCmd.Flags(), configCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("MLHEAT")
	Cfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	Cfg.AutomaticEnv()

	for _, option := range options {
		for i, set := range option.flagsets {
			if i != 0 { // We don't want to create the same flag twice.
				set.AddFlag(option.flagsets[0].Lookup(option.name))
				continue
			}
			switch option.defaultVal.(type) {
			case string:
				if option.shorthand == "" {
					set.String(option.name, option.defaultVal.(string), option.usage)
				} else {
					set.StringP(option.name, option.shorthand, option.defaultVal.(string), option.usage)
				}
			case bool:
				if option.shorthand == "" {
					set.Bool(option.name, option.defaultVal.(bool), option.usage)
				} else {
					set.BoolP(option.name, option.shorthand, option.defaultVal.(bool), option.usage)
				}
			case int:
				if option.shorthand == "" {
					set.Int(option.name, option.defaultVal.(int), option.usage)
				} else {
					set.IntP(option.name, option.shorthand, option.defaultVal.(int), option.usage)
				}
			case float64:
				if option.shorthand == "" {
					set.Float64(option.name, option.defaultVal.(float64), option.usage)
				} else {
					set.Float64P(option.name, option.shorthand, option.defaultVal.(float64), option.usage)
				}
			case map[string]string:
				b := bytes.NewBuffer(nil)
				e := json.NewEncoder(b)
				e.Encode(option.defaultVal)
				s := strings.TrimSpace(b.String())
				if option.shorthand == "" {
					set.String(option.name, s, option.usage)
				} else {
					set.StringP(option.name, option.shorthand, s, option.usage)
				}
			default:
				panic("invalid argument type")
			}
			Cfg.BindPFlag(option.name, set.Lookup(option.name))
		}
	}
}

func init() {
	// Link the commands together.
	Root.AddCommand(versionCmd)
	Root.AddCommand(budgetCmd)
	Root.AddCommand(inspectCmd)
	Root.AddCommand(configCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("mlheat: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "mlheat",
	Short: "A daily ocean mixed-layer heat budget calculator.",
	Long: `mlheat calculates daily, grid-resolved ocean mixed-layer heat budgets from
daily ocean reanalysis fields and surface heat fluxes. The mixed-layer
temperature tendency is split into net surface heat flux, horizontal advection,
entrainment, lateral diffusion and vertical diffusion terms, plus a closure
residual. Use the subcommands specified below to access the functionality.

Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
or by setting environment variables in the format 'MLHEAT_var' where 'var' is the
name of the variable to be set, with '.' replaced by '_'. Directory settings
are allowed to contain environment variables within them.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of mlheat.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("mlheat v%s\n", mlheat.Version)
	},
	DisableAutoGenTag: true,
}

// budgetCmd calculates the heat budget for each requested year.
var budgetCmd = &cobra.Command{
	Use:   "budget",
	Short: "Calculate mixed-layer heat budgets.",
	Long: `budget calculates the daily mixed-layer heat budget for each of the requested
years and writes one record store per budget field per year to OutputDir.
Years are processed in parallel; a failed year does not stop the others.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := NewLogger(Cfg.GetString("LogLevel"), cmd.OutOrStderr())
		if err != nil {
			return err
		}
		years, err := ParseYears(Cfg.GetString("Years"))
		if err != nil {
			return err
		}
		workers, err := ParseWorkers(Cfg.GetString("Workers"))
		if err != nil {
			return err
		}
		runYear, err := YearRunner(Cfg, log)
		if err != nil {
			return err
		}
		return RunYears(context.Background(), years, workers, runYear, log)
	},
	DisableAutoGenTag: true,
}

// configCmd prints the configuration budget would use.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the configuration in TOML format.",
	Long: `config prints the configuration that budget would use, after applying the
configuration file, environment variables and command-line flags. The output
can be saved and passed back to budget with the --config flag.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return WriteConfig(Cfg, cmd.OutOrStdout())
	},
	DisableAutoGenTag: true,
}

// inspectCmd prints summary statistics of one record of a store.
var inspectCmd = &cobra.Command{
	Use:   "inspect store ny nx record",
	Short: "Summarize one record of a budget store.",
	Long: `inspect reads the given zero-based record of a store of (ny, nx) records
and prints the number of finite cells and their minimum, maximum and mean.`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		dims := make([]int, 3)
		for i, a := range args[1:] {
			v, err := strconv.Atoi(a)
			if err != nil {
				return fmt.Errorf("mlheat: invalid argument '%s': %v", a, err)
			}
			dims[i] = v
		}
		s, err := Inspect(args[0], dims[0], dims[1], dims[2])
		if err != nil {
			return err
		}
		cmd.Printf("%v\n", s)
		return nil
	},
	DisableAutoGenTag: true,
}
