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

// Package kagbutil holds the configuration, data transfer and command-line
// interface of the K-AGB biomass pipeline.
package kagbutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lnashier/viper"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
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
	// Options are the configuration options available to K-AGB.
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
			name: "ParameterFile",
			usage: `
              ParameterFile is the path to a fixed-format project parameter file
              (config_kagb.dat). If set, the project name, grid, years, categories,
              realization counts, regression scheme and covariates are read from it
              and override all other configuration sources.`,
			shorthand:  "p",
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Name",
			usage: `
              Name is the name of the project.`,
			defaultVal: "kagb",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.Rows",
			usage: `
              Grid.Rows is the number of rows of the coarse simulation grid.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.Columns",
			usage: `
              Grid.Columns is the number of columns of the coarse simulation grid.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.Res",
			usage: `
              Grid.Res is the cell edge length of the coarse simulation grid,
              in the units of the grid projection.`,
			defaultVal: 1000.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.MinX",
			usage: `
              Grid.MinX is the most western coordinate of the coarse simulation grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.MinY",
			usage: `
              Grid.MinY is the most southern coordinate of the coarse simulation grid.`,
			defaultVal: 0.0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.EPSG",
			usage: `
              Grid.EPSG is the EPSG code of the grid projection. Rasters with
              a different EPSG code are rejected.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Grid.Proj",
			usage: `
              Grid.Proj optionally gives the grid projection in Proj4 format.
              It is stored in output files.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Years",
			usage: `
              Years are the years with land cover data.`,
			defaultVal: []int{},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Categories",
			usage: `
              Categories are the names of the land cover categories. The category
              in position i (starting at 1) has land cover code i.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SGSIMRealizations",
			usage: `
              SGSIMRealizations is the number of coarse biomass realizations
              produced by the spatial simulator.`,
			defaultVal: 200,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "MCRealizations",
			usage: `
              MCRealizations is the number of Monte Carlo realizations simulated
              for each year.`,
			defaultVal: 100,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "DownID",
			usage: `
              DownID selects the downscaling regression: 1 for linear, 2 for
              exponential and 3 for power regression.`,
			defaultVal: 1,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Variables",
			usage: `
              Variables are the names of the downscaling covariates. Each name
              replaces the [VAR] wildcard in the Covariates path.`,
			defaultVal: []string{},
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "Workers",
			usage: `
              Workers is the number of realizations or categories processed
              concurrently. If < 1, the number of processors is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "LogFile",
			usage: `
              LogFile is the path to the desired log file location. It can
              include environment variables and blob storage locations.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{Root.PersistentFlags()},
		},
		{
			name: "SecondaryBiomass",
			usage: `
              SecondaryBiomass is the path to the single-band secondary biomass
              raster on the coarse grid.`,
			defaultVal: "data/sgsim/sbiomass.nc",
			flagsets:   []*pflag.FlagSet{sgsimPrepCmd.Flags()},
		},
		{
			name: "TrainingData",
			usage: `
              TrainingData is the output path of the spatial simulator
              conditioning data (CSV with columns East, North and Value).`,
			defaultVal: "data/sgsim/training.csv",
			flagsets:   []*pflag.FlagSet{sgsimPrepCmd.Flags()},
		},
		{
			name: "Variogram",
			usage: `
              Variogram is the path to a TOML variogram model to validate.
              It is ignored if empty.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{sgsimPrepCmd.Flags()},
		},
		{
			name: "CoarseBiomass",
			usage: `
              CoarseBiomass is the path to the multi-band raster of coarse biomass
              realizations, one band per realization.`,
			defaultVal: "data/downscaling/sgsim_biosim.nc",
			flagsets:   []*pflag.FlagSet{downscaleCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Covariates",
			usage: `
              Covariates is the path template of the fine-resolution covariate
              rasters. [VAR] is replaced by each of the Variables.`,
			defaultVal: "data/downscaling/[VAR]_original.nc",
			flagsets:   []*pflag.FlagSet{downscaleCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "MaxBiomass",
			usage: `
              MaxBiomass caps the coarse biomass before fitting the downscaling
              regression. Zero disables the cap.`,
			defaultVal: 150.0,
			flagsets:   []*pflag.FlagSet{downscaleCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "CacheEntries",
			usage: `
              CacheEntries is the number of resampled covariates held in memory.
              If < 1, the number of Variables is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{downscaleCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Downscaled",
			usage: `
              Downscaled is the path of the downscaled biomass ensemble.`,
			defaultVal: "data/fdas/biosim_down.nc",
			flagsets:   []*pflag.FlagSet{downscaleCmd.Flags(), cpfCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "ReferenceYear",
			usage: `
              ReferenceYear is the year whose land cover is used to estimate the
              biomass probability functions. If 0, the first of the Years is used.`,
			defaultVal: 0,
			flagsets:   []*pflag.FlagSet{cpfCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "HistoryLandcover",
			usage: `
              HistoryLandcover is the path template of the land cover rasters used
              to estimate the probability functions. [YEAR] is replaced by the
              ReferenceYear.`,
			defaultVal: "data/fdas/history_landcover/landcover_[YEAR].nc",
			flagsets:   []*pflag.FlagSet{cpfCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "CPFFile",
			usage: `
              CPFFile is the path of the biomass probability table. Files ending
              in .xlsx are read as Excel workbooks; others as CSV.`,
			defaultVal: "data/montecarlo/Biomass_cpf_cond.csv",
			flagsets:   []*pflag.FlagSet{cpfCmd.Flags(), montecarloCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "CPFWorkbook",
			usage: `
              CPFWorkbook is an optional path to also write the probability table
              to as an Excel workbook.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cpfCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "CPFPlot",
			usage: `
              CPFPlot is an optional path to write a chart of the probability
              functions to. The format is determined by the file extension.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{cpfCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Landcover",
			usage: `
              Landcover is the path template of the land cover rasters that
              condition the Monte Carlo simulations. [YEAR] is replaced by
              each of the Years.`,
			defaultVal: "data/montecarlo/landcover/landcover_[YEAR].nc",
			flagsets:   []*pflag.FlagSet{montecarloCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "SimulationOutput",
			usage: `
              SimulationOutput is the path template of the simulated biomass.
              [YEAR] is replaced by each of the Years.`,
			defaultVal: "data/montecarlo/Biomass_sim_[YEAR].nc",
			flagsets:   []*pflag.FlagSet{montecarloCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "FilterSize",
			usage: `
              FilterSize is the width, in cells, of the median filter applied to
              each Monte Carlo realization. It must be odd; 1 disables the filter.`,
			defaultVal: 5,
			flagsets:   []*pflag.FlagSet{montecarloCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "Seed",
			usage: `
              Seed is the Monte Carlo random seed. If empty, a seed is chosen
              from the clock and logged.`,
			defaultVal: "",
			flagsets:   []*pflag.FlagSet{montecarloCmd.Flags(), runCmd.Flags()},
		},
		{
			name: "GridShapefile",
			usage: `
              GridShapefile is the output path of the grid shapefile.`,
			defaultVal: "grid.shp",
			flagsets:   []*pflag.FlagSet{gridCmd.Flags()},
		},
	}

	Cfg = viper.New()

	// Set the prefix for configuration environment variables.
	Cfg.SetEnvPrefix("KAGB")
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
			case []int:
				set.IntSliceP(option.name, option.shorthand, v, option.usage)
			case float64:
				set.Float64P(option.name, option.shorthand, v, option.usage)
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
	Root.AddCommand(sgsimPrepCmd)
	Root.AddCommand(downscaleCmd)
	Root.AddCommand(cpfCmd)
	Root.AddCommand(montecarloCmd)
	Root.AddCommand(runCmd)
	Root.AddCommand(gridCmd)
}

// setConfig finds and reads in the configuration file, if there is one.
func setConfig() error {
	if cfgpath := Cfg.GetString("config"); cfgpath != "" {
		Cfg.SetConfigFile(cfgpath)
		if err := Cfg.ReadInConfig(); err != nil {
			return fmt.Errorf("kagb: problem reading configuration file: %v", err)
		}
	}
	return nil
}

// Root is the main command.
var Root = &cobra.Command{
	Use:   "kagb",
	Short: "Above-ground biomass uncertainty propagation.",
	Long: `K-AGB propagates the uncertainty of coarse above-ground biomass (AGB)
simulations to fine-resolution biomass maps conditioned on land cover.
Use the subcommands specified below to run each stage of the workflow.

Refer to the subcommand documentation for configuration options and default settings.
Configuration can be changed by using a configuration file (and providing the
path to the file using the --config flag), by using command-line arguments,
by setting environment variables in the format 'KAGB_var' where 'var' is the
name of the variable to be set, or by providing a fixed-format parameter file
with the --ParameterFile flag. Paths can contain environment variables and
can refer to blob storage (gs://, s3://, file://) or web locations.
Refer to https://github.com/spf13/viper for additional configuration information.`,
	DisableAutoGenTag: true,
	PersistentPreRunE: func(*cobra.Command, []string) error { return setConfig() },
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Long:  "version prints the version number of this version of K-AGB.",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("K-AGB v%s\n", kagb.Version)
	},
	DisableAutoGenTag: true,
}

var sgsimPrepCmd = &cobra.Command{
	Use:   "sgsim-prep",
	Short: "Prepare the spatial simulator inputs",
	Long: `sgsim-prep checks the secondary biomass raster against the project grid
and writes its defined cells as conditioning data for the sequential Gaussian
simulator. If a variogram model is configured, it is validated.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).TrainingSet)
	},
	DisableAutoGenTag: true,
}

var downscaleCmd = &cobra.Command{
	Use:   "downscale",
	Short: "Downscale coarse biomass realizations",
	Long: `downscale refines each coarse biomass realization to the resolution of the
covariates by regression, with correction of the regression residuals.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).Downscale)
	},
	DisableAutoGenTag: true,
}

var cpfCmd = &cobra.Command{
	Use:   "cpf",
	Short: "Estimate biomass probability functions",
	Long: `cpf estimates the empirical cumulative probability function of biomass for
each land cover category from the downscaled ensemble and writes them as a table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).CPF)
	},
	DisableAutoGenTag: true,
}

var montecarloCmd = &cobra.Command{
	Use:   "montecarlo",
	Short: "Simulate biomass from land cover",
	Long: `montecarlo simulates biomass realizations for each year by sampling the
probability function of the land cover category of each cell, and smooths them
with a median filter.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).MonteCarlo)
	},
	DisableAutoGenTag: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full workflow",
	Long:  `run runs the downscale, cpf and montecarlo stages in order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).Run)
	},
	DisableAutoGenTag: true,
}

var gridCmd = &cobra.Command{
	Use:   "grid",
	Short: "Write the project grid",
	Long:  `grid writes the cells of the coarse simulation grid to a shapefile.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStage(cmd, (*Pipeline).WriteGrid)
	},
	DisableAutoGenTag: true,
}

// runStage loads the configuration, sets up logging to the command output
// and the log file, and runs stage.
func runStage(cmd *cobra.Command, stage func(*Pipeline, context.Context) error) error {
	c, err := LoadConfig(Cfg)
	if err != nil {
		return err
	}
	ctx := context.Background()

	log := logrus.New()
	log.Out = cmd.OutOrStdout()
	var logUpload uploader
	var logFile *os.File
	if c.LogFile != "" {
		if err = checkOutputFile("LogFile", c.LogFile); err != nil {
			return err
		}
		logFile, err = os.Create(logUpload.maybeUpload(c.LogFile))
		if err != nil {
			return kagb.Errorf(kagb.IOError, "config", "creating log file: %v", err)
		}
		log.Out = io.MultiWriter(cmd.OutOrStdout(), logFile)
	}
	log.WithFields(logrus.Fields{
		"version": kagb.Version,
		"command": cmd.Name(),
		"project": c.Name,
		"grid":    c.Grid.String(),
	}).Info("starting")

	err = stage(NewPipeline(c, log), ctx)
	if err != nil {
		log.WithError(err).Error("failed")
	} else {
		log.Info("finished")
	}
	if logFile != nil {
		log.Out = cmd.OutOrStdout()
		logFile.Close()
		if uerr := logUpload.uploadOutput(ctx, log); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}
