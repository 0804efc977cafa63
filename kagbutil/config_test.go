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
	"os"
	"reflect"
	"testing"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/kagb"
)

func testViper() *viper.Viper {
	cfg := viper.New()
	cfg.Set("Name", "test")
	cfg.Set("Grid.Rows", 4)
	cfg.Set("Grid.Columns", 4)
	cfg.Set("Grid.Res", 1000.0)
	cfg.Set("Grid.MinX", 0.0)
	cfg.Set("Grid.MinY", 0.0)
	cfg.Set("Grid.EPSG", 3116)
	cfg.Set("Years", "[2000,2010]")
	cfg.Set("Categories", []string{"forest", "pasture"})
	cfg.Set("SGSIMRealizations", 2)
	cfg.Set("MCRealizations", 3)
	cfg.Set("DownID", 1)
	cfg.Set("Variables", []string{"ndvi"})
	cfg.Set("MaxBiomass", 150.0)
	cfg.Set("FilterSize", 3)
	return cfg
}

func TestLoadConfig(t *testing.T) {
	os.Setenv("KAGB_TEST_DIR", "/data")
	defer os.Unsetenv("KAGB_TEST_DIR")
	cfg := testViper()
	cfg.Set("Covariates", "${KAGB_TEST_DIR}/[VAR]_original.nc")
	cfg.Set("Landcover", "${KAGB_TEST_DIR}/landcover_[YEAR].nc")
	cfg.Set("HistoryLandcover", "history/landcover_[YEAR].nc")
	cfg.Set("SimulationOutput", "out/Biomass_sim_[YEAR].nc")
	cfg.Set("Seed", 42)
	c, err := LoadConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(c.Years, []int{2000, 2010}) {
		t.Errorf("years: have %v", c.Years)
	}
	if c.ReferenceYear != 2000 {
		t.Errorf("reference year: have %d, want 2000", c.ReferenceYear)
	}
	if !c.Seeded || c.Seed != 42 {
		t.Errorf("seed: have %d (%v), want 42", c.Seed, c.Seeded)
	}
	for _, tt := range []struct{ have, want string }{
		{c.CovariatePath("ndvi"), "/data/ndvi_original.nc"},
		{c.LandcoverPath(2010), "/data/landcover_2010.nc"},
		{c.HistoryLandcoverPath(2000), "history/landcover_2000.nc"},
		{c.SimulationPath(2010), "out/Biomass_sim_2010.nc"},
	} {
		if tt.have != tt.want {
			t.Errorf("have %s, want %s", tt.have, tt.want)
		}
	}
}

func TestLoadConfigUnseeded(t *testing.T) {
	c, err := LoadConfig(testViper())
	if err != nil {
		t.Fatal(err)
	}
	if c.Seeded {
		t.Error("configuration without a seed should be unseeded")
	}
}

func TestLoadConfigInvalid(t *testing.T) {
	for _, tt := range []struct {
		name  string
		key   string
		value interface{}
	}{
		{name: "rows", key: "Grid.Rows", value: 0},
		{name: "resolution", key: "Grid.Res", value: -1.0},
		{name: "scheme", key: "DownID", value: 4},
		{name: "sgsim realizations", key: "SGSIMRealizations", value: 0},
		{name: "mc realizations", key: "MCRealizations", value: -2},
		{name: "years", key: "Years", value: "[]"},
		{name: "years syntax", key: "Years", value: "[2000,"},
		{name: "categories", key: "Categories", value: []string{}},
		{name: "duplicate category", key: "Categories", value: []string{"forest", "forest"}},
		{name: "variables", key: "Variables", value: []string{}},
		{name: "reference year", key: "ReferenceYear", value: 1999},
		{name: "max biomass", key: "MaxBiomass", value: -1.0},
		{name: "filter size", key: "FilterSize", value: 4},
		{name: "seed", key: "Seed", value: "abc"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testViper()
			cfg.Set(tt.key, tt.value)
			if _, err := LoadConfig(cfg); !kagb.IsKind(err, kagb.ConfigError) {
				t.Errorf("have %v, want configuration error", err)
			}
		})
	}
}

func TestLoadConfigParameterFile(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		cfg := testViper()
		cfg.Set("ParameterFile", "does_not_exist.dat")
		if _, err := LoadConfig(cfg); !kagb.IsKind(err, kagb.IOError) {
			t.Errorf("have %v, want i/o error", err)
		}
	})
	t.Run("override", func(t *testing.T) {
		f, err := os.Create("tmp_config_kagb.dat")
		if err != nil {
			t.Fatal(err)
		}
		defer os.Remove("tmp_config_kagb.dat")
		f.WriteString(testParameterFile)
		f.Close()
		cfg := testViper()
		cfg.Set("ParameterFile", "tmp_config_kagb.dat")
		c, err := LoadConfig(cfg)
		if err != nil {
			t.Fatal(err)
		}
		if c.Name != "Caqueta" || c.Grid.Rows != 120 || len(c.Years) != 3 {
			t.Errorf("parameter file values were not applied: %+v", c)
		}
		if c.FilterSize != 3 {
			t.Errorf("settings not in the parameter file should be kept: filter size %d", c.FilterSize)
		}
	})
}

func TestToIntSliceE(t *testing.T) {
	for _, tt := range []struct {
		in   interface{}
		want []int
	}{
		{in: "[1,2,3]", want: []int{1, 2, 3}},
		{in: []interface{}{int64(4), int64(5)}, want: []int{4, 5}},
		{in: []int{6}, want: []int{6}},
	} {
		have, err := toIntSliceE(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(have, tt.want) {
			t.Errorf("%v: have %v, want %v", tt.in, have, tt.want)
		}
	}
}
