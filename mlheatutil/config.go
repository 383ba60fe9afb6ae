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

package mlheatutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/mlheat"
	"github.com/spf13/cast"
)

// BudgetConfig returns the physical configuration held in cfg.
func BudgetConfig(cfg *viper.Viper) (*mlheat.Config, error) {
	mode, err := mlheat.ParseEntrainmentMode(cfg.GetString("WeMode"))
	if err != nil {
		return nil, err
	}
	c := &mlheat.Config{
		Ah:             cfg.GetFloat64("Ah"),
		Kv:             cfg.GetFloat64("Kv"),
		HMin:           cfg.GetFloat64("HMin"),
		UseHBarDenom:   cfg.GetBool("UseHBarDenom"),
		WeMode:         mode,
		EntOnlyCooling: cfg.GetBool("EntOnlyCooling"),
	}
	caps := []**float64{&c.WeCapMD, &c.DTCap, &c.EntCapKPD}
	for i, name := range []string{"WeCapMD", "DTCap", "EntCapKPD"} {
		if *caps[i], err = optionalFloat(cfg.Get(name)); err != nil {
			return nil, fmt.Errorf("mlheat: configuration %s: %v", name, err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// optionalFloat returns nil for an unset value and the parsed value
// otherwise.
func optionalFloat(v interface{}) (*float64, error) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, err
	}
	return mlheat.Float(f), nil
}

// ParseYears parses an inclusive range of years such as "1993:2022" or a
// comma-separated list such as "1993,1997".
func ParseYears(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if parts := strings.Split(s, ":"); len(parts) == 2 {
		a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, fmt.Errorf("mlheat: invalid year range '%s': %v", s, err)
		}
		b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("mlheat: invalid year range '%s': %v", s, err)
		}
		if b < a {
			return nil, fmt.Errorf("mlheat: invalid year range '%s': end is before start", s)
		}
		years := make([]int, 0, b-a+1)
		for y := a; y <= b; y++ {
			years = append(years, y)
		}
		return years, nil
	}
	var years []int
	for _, p := range strings.Split(s, ",") {
		y, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("mlheat: invalid year list '%s': %v", s, err)
		}
		years = append(years, y)
	}
	return years, nil
}

// ParseWorkers returns the number of parallel workers. "auto" means one
// less than the number of processors.
func ParseWorkers(s string) (int, error) {
	if strings.ToLower(strings.TrimSpace(s)) == "auto" {
		n := runtime.NumCPU() - 1
		if n < 1 {
			n = 1
		}
		return n, nil
	}
	n, err := cast.ToIntE(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("mlheat: invalid number of workers '%s': %v", s, err)
	}
	if n < 1 {
		n = 1
	}
	return n, nil
}

// GetStringMapString returns a map[string]string from a viper configuration,
// accounting for the fact that it might be a json object if it was set
// from a command line argument.
func GetStringMapString(varName string, cfg *viper.Viper) (map[string]string, error) {
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
			return nil, fmt.Errorf("mlheat: configuration %s: %v", varName, err)
		}
		return o, nil
	default:
		return nil, fmt.Errorf("mlheat: invalid type for configuration %s: %#v", varName, i)
	}
}

// checkOutputVars removes end lines and expands environment
// variables in the output variables.
func checkOutputVars(vars map[string]string) map[string]string {
	o := make(map[string]string, len(vars))
	for k, v := range vars {
		v = strings.Replace(v, "\r\n", " ", -1)
		v = strings.Replace(v, "\n", " ", -1)
		o[os.ExpandEnv(k)] = os.ExpandEnv(v)
	}
	return o
}

// NewLogger returns a logger writing to w at the given level.
func NewLogger(level string, w io.Writer) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("mlheat: %v", err)
	}
	log := logrus.New()
	log.Out = w
	log.Level = lvl
	log.Formatter = &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339Nano,
		DisableSorting:  true,
	}
	return log, nil
}

// YearRunner returns a function that calculates the budget for one year
// using the settings in cfg. The returned function may be called
// concurrently for different years.
func YearRunner(cfg *viper.Viper, log logrus.FieldLogger) (func(year int) error, error) {
	c, err := BudgetConfig(cfg)
	if err != nil {
		return nil, err
	}
	outputVars, err := GetStringMapString("OutputVariables", cfg)
	if err != nil {
		return nil, err
	}
	outputter, err := mlheat.NewOutputter(os.ExpandEnv(cfg.GetString("OutputDir")),
		cfg.GetBool("SaveWe"), checkOutputVars(outputVars), nil)
	if err != nil {
		return nil, err
	}
	resolution := cfg.GetFloat64("Resolution")
	inputDir := os.ExpandEnv(cfg.GetString("InputDir"))
	pattern := cfg.GetString("InputPattern")
	fluxDir := os.ExpandEnv(cfg.GetString("FluxDir"))
	fluxFiles := mlheat.FluxFiles{
		Shortwave: cfg.GetString("Flux.Shortwave"),
		Longwave:  cfg.GetString("Flux.Longwave"),
		Latent:    cfg.GetString("Flux.Latent"),
		Sensible:  cfg.GetString("Flux.Sensible"),
	}
	baseYear := cfg.GetInt("Flux.BaseYear")
	daysPerYear := cfg.GetInt("Flux.DaysPerYear")

	return func(year int) error {
		files, err := mlheat.InputFiles(inputDir, pattern, year)
		if err != nil {
			return err
		}
		flux, err := mlheat.NewFluxRecords(fluxDir, fluxFiles, year, baseYear, daysPerYear)
		if err != nil {
			return err
		}
		r := &mlheat.YearRun{
			Year:       year,
			Config:     c,
			Resolution: resolution,
			Input:      &mlheat.NetCDFDays{Files: files},
			Flux:       flux,
			Output:     outputter,
			Log:        log,
		}
		return r.Run()
	}, nil
}

// WriteConfig writes the settings held in cfg to w in TOML format, in a form
// that can be read back with the --config flag. Dotted option names become
// tables.
func WriteConfig(cfg *viper.Viper, w io.Writer) error {
	out := make(map[string]interface{})
	for _, o := range options {
		if o.name == "config" {
			continue
		}
		var val interface{}
		switch o.defaultVal.(type) {
		case string:
			val = cfg.GetString(o.name)
		case bool:
			val = cfg.GetBool(o.name)
		case int:
			val = cfg.GetInt(o.name)
		case float64:
			val = cfg.GetFloat64(o.name)
		case map[string]string:
			m, err := GetStringMapString(o.name, cfg)
			if err != nil {
				return err
			}
			val = m
		default:
			return fmt.Errorf("mlheat: invalid type for configuration %s: %T", o.name, o.defaultVal)
		}
		dst := out
		parts := strings.Split(o.name, ".")
		for _, p := range parts[:len(parts)-1] {
			sub, ok := dst[p].(map[string]interface{})
			if !ok {
				sub = make(map[string]interface{})
				dst[p] = sub
			}
			dst = sub
		}
		dst[parts[len(parts)-1]] = val
	}
	if err := toml.NewEncoder(w).Encode(out); err != nil {
		return fmt.Errorf("mlheat: writing configuration: %v", err)
	}
	return nil
}
