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

// Package downscale refines coarse-resolution biomass realizations to a
// fine resolution by regression on covariates, with residual correction.
package downscale

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/resample"
)

// DefaultMaxBiomass is the default cap applied to coarse biomass values
// before fitting, in Mg/ha.
const DefaultMaxBiomass = 150

// Downscaler holds the settings for downscaling biomass ensembles.
type Downscaler struct {
	// Fitter fits the regression models. OLS is used if nil.
	Fitter Fitter

	// Resample resamples residuals from the coarse grid to the fine grid.
	// Cubic B-spline resampling is used if nil.
	Resample func(src kagb.Field, target kagb.GridSpec) (kagb.Field, error)

	// MaxBiomass caps coarse biomass values before fitting. Zero
	// disables the cap.
	MaxBiomass float64

	// Workers is the number of realizations processed concurrently.
	// GOMAXPROCS is used if Workers < 1.
	Workers int

	Log logrus.FieldLogger
}

func (d *Downscaler) fitter() Fitter {
	if d.Fitter == nil {
		return OLS{}
	}
	return d.Fitter
}

func (d *Downscaler) resample(src kagb.Field, target kagb.GridSpec) (kagb.Field, error) {
	if d.Resample == nil {
		return resample.Resample(src, target, resample.Continuous)
	}
	return d.Resample(src, target)
}

func (d *Downscaler) log() logrus.FieldLogger {
	if d.Log == nil {
		return logrus.StandardLogger()
	}
	return d.Log
}

// Downscale refines each realization in coarse to the grid of fineCov.
// fineCov and coarseCov hold the same covariates in the same order, on
// the fine grid and on the grid of coarse, respectively. The output has
// the same number of realizations as coarse, in the same order. If any
// realization fails, no output is returned.
func (d *Downscaler) Downscale(ctx context.Context, coarse *kagb.Ensemble, fineCov, coarseCov []kagb.Field, scheme Scheme) (*kagb.Ensemble, error) {
	if _, err := ParseScheme(int(scheme)); err != nil {
		return nil, err
	}
	if len(fineCov) == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "downscale", "at least one covariate is required")
	}
	if len(fineCov) != len(coarseCov) {
		return nil, kagb.Errorf(kagb.ConfigError, "downscale",
			"%d fine covariates but %d coarse covariates", len(fineCov), len(coarseCov))
	}
	fine := fineCov[0].Grid
	for i := range fineCov {
		if err := fine.Check(fineCov[i].Grid); err != nil {
			return nil, kagb.Wrap(kagb.ConfigError, "downscale", fmt.Errorf("fine covariate %d: %v", i, err))
		}
		if err := coarse.Grid.Check(coarseCov[i].Grid); err != nil {
			return nil, kagb.Wrap(kagb.ConfigError, "downscale", fmt.Errorf("coarse covariate %d: %v", i, err))
		}
	}

	xCoarse, err := covariateMatrix(coarseCov, scheme)
	if err != nil {
		return nil, err
	}
	xFine, err := covariateMatrix(fineCov, scheme)
	if err != nil {
		return nil, err
	}

	o := kagb.NewEnsemble(fine, coarse.Len())
	err = kagb.Parallel(coarse.Len(), d.Workers, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out, err := d.realization(coarse.Slice(i), coarse.Grid, xCoarse, xFine, fine, scheme, i)
		if err != nil {
			return kagb.AtRealization(err, kagb.NumericError, "downscale", i)
		}
		copy(o.Slice(i), out)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return o, nil
}

// covariateMatrix returns the covariates in regression space with one
// row per grid cell. Rows with any undefined covariate are nil.
func covariateMatrix(cov []kagb.Field, scheme Scheme) ([][]float64, error) {
	n := cov[0].Grid.Len()
	x := make([][]float64, n)
	for c := 0; c < n; c++ {
		row := make([]float64, len(cov))
		for j, f := range cov {
			v, err := scheme.covariate(f.Values()[c])
			if err != nil {
				return nil, kagb.Errorf(kagb.NumericError, "downscale", "covariate %d: %v", j, err)
			}
			if !kagb.Defined(v) {
				row = nil
				break
			}
			row[j] = v
		}
		x[c] = row
	}
	return x, nil
}

// realization downscales one coarse realization y.
func (d *Downscaler) realization(y []float64, coarse kagb.GridSpec, xCoarse, xFine [][]float64, fine kagb.GridSpec, scheme Scheme, i int) ([]float64, error) {
	// Fit.
	var xs [][]float64
	var ys []float64
	var idx []int
	for c, v := range y {
		if !kagb.Defined(v) || xCoarse[c] == nil {
			continue
		}
		if d.MaxBiomass > 0 && v > d.MaxBiomass {
			v = d.MaxBiomass
		}
		tv, err := scheme.target(v)
		if err != nil {
			return nil, kagb.Errorf(kagb.NumericError, "downscale", "%v", err)
		}
		xs = append(xs, xCoarse[c])
		ys = append(ys, tv)
		idx = append(idx, c)
	}
	if len(ys) == 0 {
		return nil, kagb.Errorf(kagb.NumericError, "downscale", "no coarse cells with defined biomass and covariates")
	}
	m, err := d.fitter().Fit(xs, ys)
	if err != nil {
		return nil, err
	}
	if len(m.Slopes) != len(xCoarse[idx[0]]) {
		return nil, kagb.Errorf(kagb.NumericError, "downscale",
			"model has %d slopes but there are %d covariates", len(m.Slopes), len(xCoarse[idx[0]]))
	}
	d.log().WithFields(logrus.Fields{
		"realization": i + 1,
		"scheme":      scheme.String(),
		"intercept":   m.Intercept,
		"slopes":      m.Slopes,
		"r2":          m.RSquared(xs, ys),
		"samples":     len(ys),
	}).Info("fitted regression model")

	// Residuals on the coarse grid.
	residual := kagb.NewNoDataField(coarse)
	for k, c := range idx {
		residual.Values()[c] = ys[k] - m.Predict(xs[k])
	}
	fineResidual, err := d.resample(residual, fine)
	if err != nil {
		return nil, err
	}
	if err = fine.Check(fineResidual.Grid); err != nil {
		return nil, err
	}

	// Fine prediction with residual correction.
	out := make([]float64, fine.Len())
	for c := range out {
		r := fineResidual.Values()[c]
		if xFine[c] == nil || !kagb.Defined(r) {
			out[c] = math.NaN()
			continue
		}
		out[c] = scheme.inverse(m.Predict(xFine[c]) + r)
	}
	return out, nil
}
