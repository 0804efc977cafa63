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

// Package cpf estimates the empirical cumulative probability function of
// biomass for each land cover category.
package cpf

import (
	"context"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/resample"
	"gonum.org/v1/gonum/stat"
)

// NumProbabilities is the number of evenly spaced probabilities, from 0 to
// 100 percent, at which each CPF is tabulated.
const NumProbabilities = 101

// Estimator estimates biomass CPFs from downscaled ensembles.
type Estimator struct {
	// Workers is the number of categories processed concurrently.
	Workers int

	Log logrus.FieldLogger
}

func (e *Estimator) log() logrus.FieldLogger {
	if e.Log == nil {
		return logrus.StandardLogger()
	}
	return e.Log
}

// Estimate pools the biomass values of every realization in ens that fall
// in each land cover category and returns their CPFs. Percentiles are
// taken of log10 biomass and converted back to biomass.
// Category names[i] has the land cover code i+1. Cells are used where the
// land cover is defined and biomass is > 0. If landcover is not on the
// grid of ens, it is resampled to it by nearest neighbour.
func (e *Estimator) Estimate(ctx context.Context, ens *kagb.Ensemble, landcover kagb.Field, names []string) (*Table, error) {
	if len(names) == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "cpf", "no land cover categories")
	}
	if ens.Len() == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "cpf", "ensemble has no realizations")
	}
	if !ens.Grid.Equal(landcover.Grid) {
		e.log().WithFields(logrus.Fields{
			"from": landcover.Grid.String(),
			"to":   ens.Grid.String(),
		}).Info("resampling land cover to biomass grid")
		var err error
		landcover, err = resample.Resample(landcover, ens.Grid, resample.Categorical)
		if err != nil {
			return nil, err
		}
	}

	// Indices of the cells of each category; the mask is the same for
	// all realizations.
	cells := make([][]int, len(names))
	for c, v := range landcover.Values() {
		if !kagb.Defined(v) {
			continue
		}
		code := int(v)
		if float64(code) != v || code < 1 || code > len(names) {
			continue
		}
		cells[code-1] = append(cells[code-1], c)
	}

	t := &Table{
		Probability: Probabilities(),
		Categories:  append([]string(nil), names...),
		Values:      make([][]float64, len(names)),
	}
	err := kagb.Parallel(len(names), e.Workers, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var data []float64
		for r := 0; r < ens.Len(); r++ {
			s := ens.Slice(r)
			for _, c := range cells[i] {
				if v := s[c]; kagb.Defined(v) && v > 0 {
					data = append(data, math.Log10(v))
				}
			}
		}
		if len(data) == 0 {
			return kagb.Errorf(kagb.ConfigError, "cpf", "no cells with positive biomass").InCategory(names[i])
		}
		sort.Float64s(data)
		t.Values[i] = Percentiles(data, t.Probability)
		for k, v := range t.Values[i] {
			t.Values[i][k] = math.Pow(10, v)
		}

		mean := stat.Mean(data, nil)
		var std float64
		if n := float64(len(data)); n > 1 {
			std = math.Sqrt(stat.Variance(data, nil) * (n - 1) / n)
		}
		e.log().WithFields(logrus.Fields{
			"category": names[i],
			"samples":  len(data),
			"log_mean": mean,
			"mean":     math.Pow(10, mean),
			"log_std":  std,
		}).Info("estimated cumulative probability function")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Probabilities returns the NumProbabilities probabilities, in percent,
// at which CPFs are tabulated.
func Probabilities() []float64 {
	p := make([]float64, NumProbabilities)
	for i := range p {
		p[i] = 100 * float64(i) / float64(NumProbabilities-1)
	}
	return p
}

// Percentiles returns the percentiles p (in percent) of sorted, using
// linear interpolation between the closest ranks.
func Percentiles(sorted []float64, p []float64) []float64 {
	o := make([]float64, len(p))
	n := len(sorted)
	for i, q := range p {
		pos := q / 100 * float64(n-1)
		lo := int(math.Floor(pos))
		if lo < 0 {
			lo = 0
		}
		if lo >= n-1 {
			o[i] = sorted[n-1]
			continue
		}
		frac := pos - float64(lo)
		o[i] = sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
	}
	return o
}
