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
	"fmt"
	"strings"

	"github.com/spatialmodel/kagb"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Model is a fitted linear model in regression space.
type Model struct {
	Intercept float64
	Slopes    []float64
}

// Predict returns the model prediction for covariate values x.
func (m Model) Predict(x []float64) float64 {
	v := m.Intercept
	for i, s := range m.Slopes {
		v += s * x[i]
	}
	return v
}

// RSquared returns the coefficient of determination of m over the
// samples x and y.
func (m Model) RSquared(x [][]float64, y []float64) float64 {
	var mean float64
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var ssRes, ssTot float64
	for i, v := range y {
		r := v - m.Predict(x[i])
		ssRes += r * r
		ssTot += (v - mean) * (v - mean)
	}
	if ssTot == 0 {
		return 1
	}
	return 1 - ssRes/ssTot
}

func (m Model) String() string {
	s := make([]string, len(m.Slopes))
	for i, v := range m.Slopes {
		s[i] = fmt.Sprintf("%.6g", v)
	}
	return fmt.Sprintf("intercept=%.6g slopes=[%s]", m.Intercept, strings.Join(s, " "))
}

// Fitter fits a model to samples x (one row per sample, one column per
// covariate) and targets y.
type Fitter interface {
	Fit(x [][]float64, y []float64) (Model, error)
}

// OLS is an ordinary least squares Fitter.
type OLS struct{}

// Fit implements Fitter.
func (OLS) Fit(x [][]float64, y []float64) (Model, error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return Model{}, kagb.Errorf(kagb.NumericError, "downscale", "no training samples")
	}
	k := len(x[0]) + 1
	if n < k {
		return Model{}, kagb.Errorf(kagb.NumericError, "downscale",
			"%d training samples are not enough to fit %d coefficients", n, k)
	}
	a := mat.NewDense(n, k, nil)
	for i, row := range x {
		a.Set(i, 0, 1)
		for j, v := range row {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewDense(n, 1, append([]float64(nil), y...))
	var beta mat.Dense
	if err := beta.Solve(a, b); err != nil {
		return Model{}, kagb.Errorf(kagb.NumericError, "downscale", "singular regression: %v", err)
	}
	m := Model{Intercept: beta.At(0, 0), Slopes: make([]float64, k-1)}
	for j := range m.Slopes {
		m.Slopes[j] = beta.At(j+1, 0)
	}
	if !kagb.Defined(m.Intercept) || !kagb.Defined(floats.Sum(m.Slopes)) {
		return Model{}, kagb.Errorf(kagb.NumericError, "downscale", "regression coefficients are not finite: %v", m)
	}
	return m, nil
}
