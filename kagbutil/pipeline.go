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
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/cpf"
	"github.com/spatialmodel/kagb/downscale"
	"github.com/spatialmodel/kagb/geostats"
	"github.com/spatialmodel/kagb/montecarlo"
	"github.com/spatialmodel/kagb/resample"
)

// Pipeline runs the stages of the biomass workflow with the settings of
// a project.
type Pipeline struct {
	*Config
	Log logrus.FieldLogger

	// Simulator, if set, is used by TrainingSet to produce the coarse
	// biomass realizations. Otherwise they are produced by an external
	// simulator from the training data.
	Simulator geostats.Simulator

	cache  *resample.Cache
	upload uploader
}

// NewPipeline returns a pipeline for the project configured in c.
func NewPipeline(c *Config, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	n := c.CacheEntries
	if n < 1 {
		n = len(c.Variables)
	}
	return &Pipeline{
		Config: c,
		Log:    log,
		cache:  resample.NewCache(n),
	}
}

// input returns a local path for the input file at path, downloading it
// if necessary.
func (p *Pipeline) input(ctx context.Context, name, path string) (string, error) {
	if path == "" {
		return "", kagb.Errorf(kagb.ConfigError, "config", "you need to specify an input file in the %s configuration variable", name)
	}
	return maybeDownload(ctx, path, p.Log)
}

// output checks the output location at path and returns the local path
// that the output should be written to.
func (p *Pipeline) output(name, path string) (string, error) {
	if err := checkOutputFile(name, path); err != nil {
		return "", err
	}
	return p.upload.maybeUpload(path), nil
}

// readField reads a single-band raster, converting non-positive values
// to no-data.
func (p *Pipeline) readField(ctx context.Context, name, path string) (kagb.Field, error) {
	local, err := p.input(ctx, name, path)
	if err != nil {
		return kagb.Field{}, err
	}
	f, err := kagb.ReadField(local)
	if err != nil {
		return kagb.Field{}, err
	}
	return f.NormalizeNoData(), nil
}

// readEnsemble reads the first n bands of a multi-band raster,
// converting non-positive values to no-data.
func (p *Pipeline) readEnsemble(ctx context.Context, name, path string, n int) (*kagb.Ensemble, error) {
	local, err := p.input(ctx, name, path)
	if err != nil {
		return nil, err
	}
	e, err := kagb.ReadEnsemble(local)
	if err != nil {
		return nil, err
	}
	if e.Len() < n {
		return nil, kagb.Errorf(kagb.ConfigError, "config", "%s has %d bands but %d realizations are required", path, e.Len(), n)
	}
	if e.Len() > n {
		p.Log.WithFields(logrus.Fields{"file": path, "bands": e.Len(), "used": n}).Warn("ignoring extra bands")
		o := kagb.NewEnsemble(e.Grid, n)
		copy(o.Data.Elements, e.Data.Elements[:len(o.Data.Elements)])
		e = o
	}
	for i, v := range e.Data.Elements {
		if !kagb.Defined(v) || v <= 0 {
			e.Data.Elements[i] = math.NaN()
		}
	}
	return e, nil
}

func (p *Pipeline) comment(stage string) string {
	return fmt.Sprintf("%s %s, %s", p.Name, stage, time.Now().Format(time.RFC3339))
}

// TrainingSet checks the secondary biomass raster against the project
// grid and writes the conditioning data for the spatial simulator. If a
// variogram is configured, it is validated. If the pipeline has a
// Simulator, it then simulates the coarse biomass realizations that the
// Downscale stage reads.
func (p *Pipeline) TrainingSet(ctx context.Context) error {
	log := p.Log.WithField("stage", "sgsim-prep")
	f, err := p.readField(ctx, "SecondaryBiomass", p.SecondaryBiomass)
	if err != nil {
		return err
	}
	if err = p.Grid.Check(f.Grid); err != nil {
		return kagb.Wrap(kagb.ConfigError, "sgsim-prep", fmt.Errorf("secondary biomass: %v", err))
	}
	data := geostats.TrainingSet(f)
	if len(data) == 0 {
		return kagb.Errorf(kagb.ConfigError, "sgsim-prep", "secondary biomass has no defined cells")
	}
	out, err := p.output("TrainingData", p.TrainingData)
	if err != nil {
		return err
	}
	err = kagb.WriteFile(out, func(w io.Writer) error {
		return geostats.WriteTrainingSet(w, data)
	})
	if err != nil {
		return kagb.Wrap(kagb.IOError, "sgsim-prep", fmt.Errorf("writing training data: %v", err))
	}
	log.WithFields(logrus.Fields{"points": len(data), "file": p.TrainingData}).Info("wrote training data")

	if p.Variogram == "" {
		if p.Simulator != nil {
			return kagb.Errorf(kagb.ConfigError, "sgsim-prep", "a variogram is required to simulate coarse biomass")
		}
		return p.upload.uploadOutput(ctx, log)
	}
	local, err := p.input(ctx, "Variogram", p.Variogram)
	if err != nil {
		return err
	}
	r, err := os.Open(local)
	if err != nil {
		return kagb.Errorf(kagb.IOError, "sgsim-prep", "%v", err)
	}
	v, err := geostats.ReadVariogram(r)
	r.Close()
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"nugget": v.Nugget, "structures": len(v.Structures), "sill": v.Sill()}).Info("variogram is valid")

	if p.Simulator != nil {
		e, err := geostats.Realize(ctx, p.Simulator, data, v, f.Grid, p.SGSIMRealizations, p.Seed, log)
		if err != nil {
			return err
		}
		out, err := p.output("CoarseBiomass", p.CoarseBiomass)
		if err != nil {
			return err
		}
		if err = kagb.WriteEnsemble(out, e, kagb.Float64, p.comment("coarse biomass simulation")); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"realizations": e.Len(), "file": p.CoarseBiomass}).Info("wrote coarse biomass realizations")
	}
	return p.upload.uploadOutput(ctx, log)
}

// Downscale refines the coarse biomass realizations to the resolution of
// the covariates and writes the downscaled ensemble.
func (p *Pipeline) Downscale(ctx context.Context) error {
	log := p.Log.WithField("stage", "downscale")
	start := time.Now()
	coarse, err := p.readEnsemble(ctx, "CoarseBiomass", p.CoarseBiomass, p.SGSIMRealizations)
	if err != nil {
		return err
	}
	if err = p.Grid.Check(coarse.Grid); err != nil {
		return kagb.Wrap(kagb.ConfigError, "downscale", fmt.Errorf("coarse biomass: %v", err))
	}

	fineCov := make([]kagb.Field, len(p.Variables))
	coarseCov := make([]kagb.Field, len(p.Variables))
	for i, v := range p.Variables {
		if fineCov[i], err = p.readField(ctx, v, p.CovariatePath(v)); err != nil {
			return err
		}
		coarseCov[i], err = p.cache.Resample(ctx, v, fineCov[i], coarse.Grid, resample.Continuous)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"variable": v, "grid": fineCov[i].Grid.String()}).Info("read covariate")
	}

	d := downscale.Downscaler{
		MaxBiomass: p.MaxBiomass,
		Workers:    p.Workers,
		Log:        log,
	}
	fine, err := d.Downscale(ctx, coarse, fineCov, coarseCov, p.Scheme)
	if err != nil {
		return err
	}

	out, err := p.output("Downscaled", p.Downscaled)
	if err != nil {
		return err
	}
	comment := p.comment(fmt.Sprintf("%s downscaling with %s", p.Scheme, strings.Join(p.Variables, ", ")))
	if err = kagb.WriteEnsemble(out, fine, kagb.Float64, comment); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"realizations": fine.Len(),
		"file":         p.Downscaled,
		"duration":     time.Since(start),
	}).Info("wrote downscaled biomass")
	return p.upload.uploadOutput(ctx, log)
}

// CPF estimates the biomass probability functions of the land cover
// categories from the downscaled ensemble and the land cover of the
// reference year, and writes them as a table.
func (p *Pipeline) CPF(ctx context.Context) error {
	log := p.Log.WithField("stage", "cpf")
	ens, err := p.readEnsemble(ctx, "Downscaled", p.Downscaled, p.SGSIMRealizations)
	if err != nil {
		return err
	}
	lc, err := p.readField(ctx, "HistoryLandcover", p.HistoryLandcoverPath(p.ReferenceYear))
	if err != nil {
		return err
	}
	e := cpf.Estimator{Workers: p.Workers, Log: log}
	t, err := e.Estimate(ctx, ens, lc, p.Categories)
	if err != nil {
		return err
	}

	out, err := p.output("CPFFile", p.CPFFile)
	if err != nil {
		return err
	}
	if err = kagb.WriteFile(out, t.WriteCSV); err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"year": p.ReferenceYear, "file": p.CPFFile}).Info("wrote probability table")

	if p.CPFWorkbook != "" {
		out, err := p.output("CPFWorkbook", p.CPFWorkbook)
		if err != nil {
			return err
		}
		if err = t.WriteXLSX(out); err != nil {
			return err
		}
	}
	if p.CPFPlot != "" {
		out, err := p.output("CPFPlot", p.CPFPlot)
		if err != nil {
			return err
		}
		if err = t.Plot(out); err != nil {
			return err
		}
	}
	return p.upload.uploadOutput(ctx, log)
}

// readTable reads the probability table and returns its inverse CPFs in
// the order of the configured categories.
func (p *Pipeline) readTable(ctx context.Context) ([]montecarlo.Interpolator, error) {
	local, err := p.input(ctx, "CPFFile", p.CPFFile)
	if err != nil {
		return nil, err
	}
	var t *cpf.Table
	if strings.EqualFold(filepath.Ext(local), ".xlsx") {
		t, err = cpf.ReadXLSX(local)
	} else {
		r, err2 := os.Open(local)
		if err2 != nil {
			return nil, kagb.Errorf(kagb.IOError, "montecarlo", "%v", err2)
		}
		t, err = cpf.ReadCSV(r)
		r.Close()
	}
	if err != nil {
		return nil, err
	}
	t, err = selectCategories(t, p.Categories)
	if err != nil {
		return nil, err
	}
	return montecarlo.FromTable(t)
}

// selectCategories returns the columns of t for the given categories, in
// order.
func selectCategories(t *cpf.Table, names []string) (*cpf.Table, error) {
	o := &cpf.Table{
		Probability: t.Probability,
		Categories:  names,
		Values:      make([][]float64, len(names)),
	}
	for i, name := range names {
		j := t.Category(name)
		if j < 0 {
			return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "probability table has no column for category %q", name).InCategory(name)
		}
		o.Values[i] = t.Values[j]
	}
	return o, nil
}

// MonteCarlo simulates biomass for each configured year, conditioned on
// that year's land cover, and writes one file per year.
func (p *Pipeline) MonteCarlo(ctx context.Context) error {
	inv, err := p.readTable(ctx)
	if err != nil {
		return err
	}
	for _, year := range p.Years {
		log := p.Log.WithFields(logrus.Fields{"stage": "montecarlo", "year": year})
		start := time.Now()
		lc, err := p.readField(ctx, "Landcover", p.LandcoverPath(year))
		if err != nil {
			return err
		}
		s := montecarlo.Sampler{
			Seed:       p.Seed + int64(year),
			Seeded:     p.Seeded,
			FilterSize: p.FilterSize,
			Workers:    p.Workers,
			Log:        log,
		}
		e, err := s.Simulate(ctx, inv, lc, p.MCRealizations)
		if err != nil {
			return err
		}
		out, err := p.output("SimulationOutput", p.SimulationPath(year))
		if err != nil {
			return err
		}
		if err = kagb.WriteEnsemble(out, e, kagb.Float32, p.comment(fmt.Sprintf("biomass simulation for %d", year))); err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"realizations": e.Len(),
			"file":         p.SimulationPath(year),
			"duration":     time.Since(start),
		}).Info("wrote simulated biomass")
		if err = p.upload.uploadOutput(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

// Run runs the downscaling, probability estimation and Monte Carlo stages
// in order.
func (p *Pipeline) Run(ctx context.Context) error {
	for _, stage := range []func(context.Context) error{p.Downscale, p.CPF, p.MonteCarlo} {
		if err := stage(ctx); err != nil {
			return err
		}
	}
	return nil
}

// WriteGrid writes the cells of the project grid to a shapefile.
func (p *Pipeline) WriteGrid(ctx context.Context) error {
	out, err := p.output("GridShapefile", p.GridShapefile)
	if err != nil {
		return err
	}
	if err = p.Grid.WriteToShp(out, nil); err != nil {
		return err
	}
	p.Log.WithFields(logrus.Fields{"stage": "grid", "file": p.GridShapefile}).Info("wrote grid shapefile")
	return p.upload.uploadOutput(ctx, p.Log)
}
