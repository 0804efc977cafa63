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

package downscale

import (
	"context"
	"fmt"
	"io/ioutil"
	"math"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

var (
	coarseGrid = kagb.GridSpec{Rows: 4, Columns: 4, Res: 1000, EPSG: 3116}
	fineGrid   = kagb.GridSpec{Rows: 8, Columns: 8, Res: 500, EPSG: 3116}
)

// covariates returns three covariates on grid g that are not collinear.
func covariates(g kagb.GridSpec) []kagb.Field {
	o := []kagb.Field{kagb.NewField(g), kagb.NewField(g), kagb.NewField(g)}
	for r := 0; r < g.Rows; r++ {
		for c := 0; c < g.Columns; c++ {
			o[0].Set(float64(r+1), r, c)
			o[1].Set(float64(c+2), r, c)
			o[2].Set(float64((r*c)%5+1), r, c)
		}
	}
	return o
}

// coarseEnsemble returns n realizations of f applied to the covariates.
func coarseEnsemble(n int, cov []kagb.Field, f func(x1, x2, x3 float64) float64) *kagb.Ensemble {
	e := kagb.NewEnsemble(coarseGrid, n)
	for i := 0; i < n; i++ {
		s := e.Slice(i)
		for c := range s {
			s[c] = f(cov[0].Values()[c], cov[1].Values()[c], cov[2].Values()[c])
		}
	}
	return e
}

func TestDownscaleExact(t *testing.T) {
	for _, tt := range []struct {
		scheme Scheme
		f      func(x1, x2, x3 float64) float64
	}{
		{
			scheme: Linear,
			f:      func(x1, x2, x3 float64) float64 { return 2 + x1 + x2 + x3 },
		},
		{
			scheme: Exponential,
			f: func(x1, x2, x3 float64) float64 {
				return math.Pow(10, 0.5+0.1*x1+0.05*x2-0.02*x3)
			},
		},
		{
			scheme: Power,
			f: func(x1, x2, x3 float64) float64 {
				return math.Pow(10, 1) * math.Pow(x1, 0.3) * math.Pow(x2, 0.2) * math.Pow(x3, -0.1)
			},
		},
	} {
		t.Run(tt.scheme.String(), func(t *testing.T) {
			coarseCov := covariates(coarseGrid)
			fineCov := covariates(fineGrid)
			d := &Downscaler{Log: testLogger(), Workers: 2}
			have, err := d.Downscale(context.Background(), coarseEnsemble(3, coarseCov, tt.f), fineCov, coarseCov, tt.scheme)
			if err != nil {
				t.Fatal(err)
			}
			if have.Len() != 3 {
				t.Fatalf("realizations: have %d, want 3", have.Len())
			}
			if !have.Grid.Equal(fineGrid) {
				t.Errorf("grid: have %v, want %v", have.Grid, fineGrid)
			}
			for i := 0; i < have.Len(); i++ {
				for c, v := range have.Slice(i) {
					want := tt.f(fineCov[0].Values()[c], fineCov[1].Values()[c], fineCov[2].Values()[c])
					if math.Abs(v-want) > 1e-8*math.Max(1, want) {
						t.Errorf("realization %d cell %d: have %g, want %g", i, c, v, want)
					}
				}
			}
		})
	}
}

// TestDownscaleResidual checks that the residual correction restores the
// coarse values when the fine grid is the coarse grid.
func TestDownscaleResidual(t *testing.T) {
	cov := covariates(coarseGrid)
	e := coarseEnsemble(1, cov, func(x1, x2, x3 float64) float64 { return 10 + x1*x2 })
	d := &Downscaler{
		Log: testLogger(),
		Resample: func(src kagb.Field, _ kagb.GridSpec) (kagb.Field, error) {
			return src, nil
		},
	}
	have, err := d.Downscale(context.Background(), e, cov, cov, Linear)
	if err != nil {
		t.Fatal(err)
	}
	for c, v := range have.Slice(0) {
		if want := e.Slice(0)[c]; math.Abs(v-want) > 1e-9 {
			t.Errorf("cell %d: have %g, want %g", c, v, want)
		}
	}
}

// TestDownscaleResampledResidual runs the residual correction through the
// default resampler. The coarse residual varies by row and is orthogonal
// to the covariate, so the fitted model is exact and the correction adds
// the B-spline interpolation of the residual rows on the fine grid.
func TestDownscaleResampledResidual(t *testing.T) {
	residual := []float64{3, 3, -3, -3}
	coarseCov := kagb.NewField(coarseGrid)
	e := kagb.NewEnsemble(coarseGrid, 1)
	for r := 0; r < coarseGrid.Rows; r++ {
		for c := 0; c < coarseGrid.Columns; c++ {
			x := float64(c + 1)
			coarseCov.Set(x, r, c)
			e.Slice(0)[r*coarseGrid.Columns+c] = 2 + x + residual[r]
		}
	}
	fineCov := kagb.NewField(fineGrid)
	for r := 0; r < fineGrid.Rows; r++ {
		for c := 0; c < fineGrid.Columns; c++ {
			fineCov.Set(float64(c)/2+1, r, c)
		}
	}

	d := &Downscaler{Log: testLogger()}
	have, err := d.Downscale(context.Background(), e, []kagb.Field{fineCov}, []kagb.Field{coarseCov}, Linear)
	if err != nil {
		t.Fatal(err)
	}
	fineResidual := []float64{3, 355.0 / 119, 2.5770234986945173, 1.09375, -1.09375, -2.5770234986945173, -355.0 / 119, -3}
	for r := 0; r < fineGrid.Rows; r++ {
		for c := 0; c < fineGrid.Columns; c++ {
			want := 2 + fineCov.At(r, c) + fineResidual[r]
			if v := have.Realization(0).At(r, c); math.Abs(v-want) > 1e-9 {
				t.Errorf("(%d, %d): have %g, want %g", r, c, v, want)
			}
		}
	}
}

func TestDownscaleCap(t *testing.T) {
	cov := covariates(coarseGrid)
	e := coarseEnsemble(1, cov, func(x1, x2, x3 float64) float64 { return 1000 })
	d := &Downscaler{
		Log:        testLogger(),
		MaxBiomass: DefaultMaxBiomass,
		Resample: func(src kagb.Field, _ kagb.GridSpec) (kagb.Field, error) {
			return src, nil
		},
	}
	have, err := d.Downscale(context.Background(), e, cov, cov, Linear)
	if err != nil {
		t.Fatal(err)
	}
	for c, v := range have.Slice(0) {
		if math.Abs(v-DefaultMaxBiomass) > 1e-9 {
			t.Errorf("cell %d: have %g, want %d", c, v, DefaultMaxBiomass)
		}
	}
}

func TestDownscaleNoData(t *testing.T) {
	coarseCov := covariates(coarseGrid)
	fineCov := covariates(fineGrid)
	fineCov[1].Set(math.NaN(), 7, 7)
	e := coarseEnsemble(1, coarseCov, func(x1, x2, x3 float64) float64 { return 2 + x1 + x2 + x3 })
	d := &Downscaler{Log: testLogger()}
	have, err := d.Downscale(context.Background(), e, fineCov, coarseCov, Linear)
	if err != nil {
		t.Fatal(err)
	}
	if v := have.Realization(0).At(7, 7); !math.IsNaN(v) {
		t.Errorf("have %g, want NaN", v)
	}
	if v := have.Realization(0).At(0, 0); math.IsNaN(v) {
		t.Errorf("defined cell became undefined")
	}
}

func TestDownscaleErrors(t *testing.T) {
	coarseCov := covariates(coarseGrid)
	fineCov := covariates(fineGrid)
	linear := func(x1, x2, x3 float64) float64 { return 2 + x1 + x2 + x3 }

	for _, tt := range []struct {
		name      string
		scheme    Scheme
		coarse    *kagb.Ensemble
		fine      []kagb.Field
		coarseCov []kagb.Field
		kind      kagb.ErrorKind
	}{
		{
			name:      "unknown scheme",
			scheme:    Scheme(4),
			coarse:    coarseEnsemble(1, coarseCov, linear),
			fine:      fineCov,
			coarseCov: coarseCov,
			kind:      kagb.ConfigError,
		},
		{
			name:      "covariate count",
			scheme:    Linear,
			coarse:    coarseEnsemble(1, coarseCov, linear),
			fine:      fineCov[:2],
			coarseCov: coarseCov,
			kind:      kagb.ConfigError,
		},
		{
			name:      "coarse grid",
			scheme:    Linear,
			coarse:    coarseEnsemble(1, coarseCov, linear),
			fine:      fineCov,
			coarseCov: fineCov,
			kind:      kagb.ConfigError,
		},
		{
			name:   "non-positive biomass",
			scheme: Exponential,
			coarse: coarseEnsemble(2, coarseCov, func(x1, x2, x3 float64) float64 {
				return x1 - 2
			}),
			fine:      fineCov,
			coarseCov: coarseCov,
			kind:      kagb.NumericError,
		},
		{
			name:      "singular",
			scheme:    Linear,
			coarse:    coarseEnsemble(1, coarseCov, linear),
			fine:      []kagb.Field{fineCov[0], kagb.NewField(fineGrid)},
			coarseCov: []kagb.Field{coarseCov[0], kagb.NewField(coarseGrid)},
			kind:      kagb.NumericError,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			d := &Downscaler{Log: testLogger()}
			o, err := d.Downscale(context.Background(), tt.coarse, tt.fine, tt.coarseCov, tt.scheme)
			if !kagb.IsKind(err, tt.kind) {
				t.Errorf("have %v, want %v", err, tt.kind)
			}
			if o != nil {
				t.Errorf("partial output returned")
			}
		})
	}
}

func TestDownscalePowerCovariate(t *testing.T) {
	coarseCov := covariates(coarseGrid)
	fineCov := covariates(fineGrid)
	coarseCov[0].Set(-1, 0, 0)
	e := coarseEnsemble(1, coarseCov, func(x1, x2, x3 float64) float64 { return 5 })
	d := &Downscaler{Log: testLogger()}
	_, err := d.Downscale(context.Background(), e, fineCov, coarseCov, Power)
	if !kagb.IsKind(err, kagb.NumericError) {
		t.Errorf("have %v, want numeric error", err)
	}
}

func TestParseScheme(t *testing.T) {
	for id := -1; id < 6; id++ {
		t.Run(fmt.Sprint(id), func(t *testing.T) {
			s, err := ParseScheme(id)
			if id >= 1 && id <= 3 {
				if err != nil || int(s) != id {
					t.Errorf("have %v %v, want %d", s, err, id)
				}
			} else if !kagb.IsKind(err, kagb.ConfigError) {
				t.Errorf("have %v, want configuration error", err)
			}
		})
	}
}

func TestOLS(t *testing.T) {
	x := [][]float64{{1, 0}, {2, 1}, {3, 5}, {4, 2}, {5, 7}}
	y := make([]float64, len(x))
	for i, r := range x {
		y[i] = -1 + 3*r[0] + 0.5*r[1]
	}
	m, err := OLS{}.Fit(x, y)
	if err != nil {
		t.Fatal(err)
	}
	want := Model{Intercept: -1, Slopes: []float64{3, 0.5}}
	if math.Abs(m.Intercept-want.Intercept) > 1e-10 ||
		math.Abs(m.Slopes[0]-want.Slopes[0]) > 1e-10 ||
		math.Abs(m.Slopes[1]-want.Slopes[1]) > 1e-10 {
		t.Errorf("have %v, want %v", m, want)
	}
	if r2 := m.RSquared(x, y); math.Abs(r2-1) > 1e-10 {
		t.Errorf("r2: have %g, want 1", r2)
	}
	if _, err := (OLS{}).Fit(x[:2], y[:2]); !kagb.IsKind(err, kagb.NumericError) {
		t.Errorf("too few samples: have %v, want numeric error", err)
	}
}

func TestDownscaleCanceled(t *testing.T) {
	coarseCov := covariates(coarseGrid)
	fineCov := covariates(fineGrid)
	e := coarseEnsemble(2, coarseCov, func(x1, x2, x3 float64) float64 { return 2 + x1 + x2 + x3 })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := &Downscaler{Log: testLogger()}
	have, err := d.Downscale(ctx, e, fineCov, coarseCov, Linear)
	if err != context.Canceled || have != nil {
		t.Errorf("have %v, want %v and no output", err, context.Canceled)
	}
}
