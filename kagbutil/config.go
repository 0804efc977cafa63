/*
Copyright © 2018 the K-AGB authors.
This file is part of K-AGB.

K-AGB is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

K-AGB is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with K-AGB.  If not, see <http://www.gnu.org/licenses/>.
*/

package kagbutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ctessum/geom/proj"
	"github.com/lnashier/viper"
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/downscale"
	"github.com/spf13/cast"
)

// Path template wildcards.
const (
	yearWildcard = "[YEAR]"
	varWildcard  = "[VAR]"
)

// Config holds the settings of a biomass project. It is created once by
// LoadConfig and is not modified afterwards.
type Config struct {
	Name string

	// Grid is the coarse grid of the spatial simulations.
	Grid kagb.GridSpec

	// Years are the years with land cover data.
	Years []int

	// Categories are the land cover category names. The land cover code
	// of Categories[i] is i+1.
	Categories []string

	SGSIMRealizations int
	MCRealizations    int

	// Scheme is the regression scheme used for downscaling.
	Scheme downscale.Scheme

	// Variables are the names of the downscaling covariates.
	Variables []string

	// ReferenceYear is the year whose land cover conditions the
	// probability functions.
	ReferenceYear int

	MaxBiomass float64
	FilterSize int

	// Seed is the Monte Carlo seed. It is only used if Seeded is true.
	Seed   int64
	Seeded bool

	Workers      int
	CacheEntries int

	SecondaryBiomass string
	TrainingData     string
	Variogram        string
	CoarseBiomass    string
	Covariates       string
	Downscaled       string
	HistoryLandcover string
	CPFFile          string
	CPFWorkbook      string
	CPFPlot          string
	Landcover        string
	SimulationOutput string
	GridShapefile    string
	LogFile          string
}

// LoadConfig creates a Config from the settings in cfg. If the
// ParameterFile setting is not empty, the basic project parameters are
// read from that file and override any other source.
func LoadConfig(cfg *viper.Viper) (*Config, error) {
	if pf := os.ExpandEnv(cfg.GetString("ParameterFile")); pf != "" {
		f, err := os.Open(pf)
		if err != nil {
			return nil, kagb.Errorf(kagb.IOError, "config", "opening parameter file: %v", err)
		}
		p, err := ReadParameterFile(f)
		f.Close()
		if err != nil {
			return nil, err
		}
		p.Apply(cfg)
	}

	years, err := toIntSliceE(cfg.Get("Years"))
	if err != nil {
		return nil, kagb.Errorf(kagb.ConfigError, "config", "Years: %v", err)
	}
	scheme, err := downscale.ParseScheme(cfg.GetInt("DownID"))
	if err != nil {
		return nil, err
	}
	c := &Config{
		Name: cfg.GetString("Name"),
		Grid: kagb.GridSpec{
			Rows:    cfg.GetInt("Grid.Rows"),
			Columns: cfg.GetInt("Grid.Columns"),
			Res:     cfg.GetFloat64("Grid.Res"),
			MinX:    cfg.GetFloat64("Grid.MinX"),
			MinY:    cfg.GetFloat64("Grid.MinY"),
			EPSG:    cfg.GetInt("Grid.EPSG"),
			Proj:    os.ExpandEnv(cfg.GetString("Grid.Proj")),
		},
		Years:             years,
		Categories:        expandStringSlice(cfg.GetStringSlice("Categories")),
		SGSIMRealizations: cfg.GetInt("SGSIMRealizations"),
		MCRealizations:    cfg.GetInt("MCRealizations"),
		Scheme:            scheme,
		Variables:         expandStringSlice(cfg.GetStringSlice("Variables")),
		ReferenceYear:     cfg.GetInt("ReferenceYear"),
		MaxBiomass:        cfg.GetFloat64("MaxBiomass"),
		FilterSize:        cfg.GetInt("FilterSize"),
		Workers:           cfg.GetInt("Workers"),
		CacheEntries:      cfg.GetInt("CacheEntries"),

		SecondaryBiomass: os.ExpandEnv(cfg.GetString("SecondaryBiomass")),
		TrainingData:     os.ExpandEnv(cfg.GetString("TrainingData")),
		Variogram:        os.ExpandEnv(cfg.GetString("Variogram")),
		CoarseBiomass:    os.ExpandEnv(cfg.GetString("CoarseBiomass")),
		Covariates:       os.ExpandEnv(cfg.GetString("Covariates")),
		Downscaled:       os.ExpandEnv(cfg.GetString("Downscaled")),
		HistoryLandcover: os.ExpandEnv(cfg.GetString("HistoryLandcover")),
		CPFFile:          os.ExpandEnv(cfg.GetString("CPFFile")),
		CPFWorkbook:      os.ExpandEnv(cfg.GetString("CPFWorkbook")),
		CPFPlot:          os.ExpandEnv(cfg.GetString("CPFPlot")),
		Landcover:        os.ExpandEnv(cfg.GetString("Landcover")),
		SimulationOutput: os.ExpandEnv(cfg.GetString("SimulationOutput")),
		GridShapefile:    os.ExpandEnv(cfg.GetString("GridShapefile")),
		LogFile:          os.ExpandEnv(cfg.GetString("LogFile")),
	}
	if seed := cfg.GetString("Seed"); seed != "" {
		c.Seed, err = cast.ToInt64E(seed)
		if err != nil {
			return nil, kagb.Errorf(kagb.ConfigError, "config", "Seed: %v", err)
		}
		c.Seeded = true
	}
	if c.ReferenceYear == 0 && len(c.Years) > 0 {
		c.ReferenceYear = c.Years[0]
	}
	if err = c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if err := c.Grid.Validate(); err != nil {
		return kagb.Errorf(kagb.ConfigError, "config", "parsing grid configuration: %v", err)
	}
	if c.Grid.Proj != "" {
		if _, err := proj.Parse(c.Grid.Proj); err != nil {
			return kagb.Errorf(kagb.ConfigError, "config", "parsing Grid.Proj: %v", err)
		}
	}
	ints := []int{c.SGSIMRealizations, c.MCRealizations}
	intNames := []string{"SGSIMRealizations", "MCRealizations"}
	for i, v := range ints {
		if v < 1 {
			return kagb.Errorf(kagb.ConfigError, "config", "%s=%d but should be >0", intNames[i], v)
		}
	}
	lists := []int{len(c.Years), len(c.Categories), len(c.Variables)}
	listNames := []string{"Years", "Categories", "Variables"}
	for i, n := range lists {
		if n == 0 {
			return kagb.Errorf(kagb.ConfigError, "config", "%s is not specified", listNames[i])
		}
	}
	if !c.hasYear(c.ReferenceYear) {
		return kagb.Errorf(kagb.ConfigError, "config", "ReferenceYear=%d is not one of the Years %v", c.ReferenceYear, c.Years)
	}
	if c.MaxBiomass < 0 {
		return kagb.Errorf(kagb.ConfigError, "config", "MaxBiomass=%g but should be ≥0", c.MaxBiomass)
	}
	if c.FilterSize < 0 || (c.FilterSize > 0 && c.FilterSize%2 == 0) {
		return kagb.Errorf(kagb.ConfigError, "config", "FilterSize=%d but should be a positive odd number", c.FilterSize)
	}
	seen := make(map[string]bool)
	for _, name := range c.Categories {
		if seen[name] {
			return kagb.Errorf(kagb.ConfigError, "config", "duplicate category %q", name)
		}
		seen[name] = true
	}
	return nil
}

func (c *Config) hasYear(year int) bool {
	for _, y := range c.Years {
		if y == year {
			return true
		}
	}
	return false
}

// CovariatePath returns the location of the fine-resolution raster of
// covariate v.
func (c *Config) CovariatePath(v string) string {
	return strings.Replace(c.Covariates, varWildcard, v, -1)
}

// HistoryLandcoverPath returns the location of the land cover raster
// used to estimate the probability functions for the given year.
func (c *Config) HistoryLandcoverPath(year int) string {
	return yearPath(c.HistoryLandcover, year)
}

// LandcoverPath returns the location of the land cover raster that
// conditions the Monte Carlo simulations of the given year.
func (c *Config) LandcoverPath(year int) string {
	return yearPath(c.Landcover, year)
}

// SimulationPath returns the output location of the simulated biomass
// of the given year.
func (c *Config) SimulationPath(year int) string {
	return yearPath(c.SimulationOutput, year)
}

func yearPath(template string, year int) string {
	return strings.Replace(template, yearWildcard, strconv.Itoa(year), -1)
}

// checkOutputFile makes sure that the output file is specified and, for
// local files, that its directory exists.
func checkOutputFile(name, f string) error {
	if f == "" {
		return kagb.Errorf(kagb.ConfigError, "config", "you need to specify an output file in the %s configuration variable", name)
	}
	if IsBlob(f) {
		return nil
	}
	if _, err := os.Stat(filepath.Dir(f)); err != nil {
		return kagb.Errorf(kagb.ConfigError, "config", "the %s directory doesn't exist: %v", name, err)
	}
	return nil
}

// expandStringSlice expands the environment variables in a slice of strings.
func expandStringSlice(s []string) []string {
	for i := 0; i < len(s); i++ {
		s[i] = os.ExpandEnv(s[i])
	}
	return s
}

// toIntSliceE converts a configuration value to an int slice. Values set
// from the command line arrive as JSON-formatted strings.
func toIntSliceE(s interface{}) ([]int, error) {
	if str, ok := s.(string); ok {
		var o []int
		if err := json.Unmarshal([]byte(str), &o); err != nil {
			return nil, fmt.Errorf("parsing %q: %v", str, err)
		}
		return o, nil
	}
	return cast.ToIntSliceE(s)
}
