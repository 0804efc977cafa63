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

// Package resample regrids raster fields between grids that cover the
// same region at different resolutions.
package resample

import (
	"fmt"
	"math"

	"github.com/spatialmodel/kagb"
)

// Policy specifies how source values are combined into target cells.
type Policy int

const (
	// Continuous resampling uses a cubic B-spline kernel. It is used for
	// covariates, biomass and regression residuals.
	Continuous Policy = iota
	// Categorical resampling uses the nearest source cell. It is used for
	// land cover maps, whose values are category codes.
	Categorical
)

func (p Policy) String() string {
	switch p {
	case Continuous:
		return "cubicspline"
	case Categorical:
		return "nearest"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Resample returns src resampled onto the target grid. Target cells whose
// centres fall outside of the source grid are undefined.
//
// Continuous resampling weights source cells with a cubic B-spline. When
// target cells are larger than source cells the kernel is widened by the
// ratio of the resolutions, so each target value aggregates the source
// cells it covers instead of sampling the few nearest to its centre.
// Source cells beyond the grid edge are left out and the remaining
// weights renormalized. A target cell is undefined if any source cell
// with a non-zero kernel weight is undefined.
func Resample(src kagb.Field, target kagb.GridSpec, policy Policy) (kagb.Field, error) {
	if err := target.Validate(); err != nil {
		return kagb.Field{}, err
	}
	if err := src.Grid.Validate(); err != nil {
		return kagb.Field{}, err
	}
	if src.Grid.EPSG != 0 && target.EPSG != 0 && src.Grid.EPSG != target.EPSG {
		return kagb.Field{}, kagb.Errorf(kagb.ConfigError, "resample",
			"source grid EPSG:%d does not match target grid EPSG:%d", src.Grid.EPSG, target.EPSG)
	}
	if policy != Continuous && policy != Categorical {
		return kagb.Field{}, kagb.Errorf(kagb.ConfigError, "resample", "invalid policy %v", policy)
	}

	// Fractional source indices of the target cell centres, with source
	// cell centres at whole numbers.
	xs := make([]float64, target.Columns)
	for col := range xs {
		xs[col] = (target.CellCenter(0, col).X-src.Grid.MinX)/src.Grid.Res - 0.5
	}
	ys := make([]float64, target.Rows)
	for row := range ys {
		ys[row] = (src.Grid.MaxY()-target.CellCenter(row, 0).Y)/src.Grid.Res - 0.5
	}
	inside := func(v float64, n int) bool { return v >= -0.5 && v <= float64(n)-0.5 }

	o := kagb.NewField(target)
	if policy == Categorical {
		for row, y := range ys {
			for col, x := range xs {
				if !inside(x, src.Grid.Columns) || !inside(y, src.Grid.Rows) {
					o.Set(math.NaN(), row, col)
					continue
				}
				o.Set(nearest(src, x, y), row, col)
			}
		}
		return o, nil
	}

	scale := math.Max(1, target.Res/src.Grid.Res)
	kx := make([]weights, len(xs))
	for col, x := range xs {
		if inside(x, src.Grid.Columns) {
			kx[col] = kernel(x, scale, src.Grid.Columns)
		}
	}
	for row, y := range ys {
		if !inside(y, src.Grid.Rows) {
			for col := range xs {
				o.Set(math.NaN(), row, col)
			}
			continue
		}
		ky := kernel(y, scale, src.Grid.Rows)
		for col := range xs {
			if kx[col].index == nil {
				o.Set(math.NaN(), row, col)
				continue
			}
			o.Set(convolve(src, kx[col], ky), row, col)
		}
	}
	return o, nil
}

func nearest(src kagb.Field, x, y float64) float64 {
	col := clamp(int(math.Floor(x+0.5)), src.Grid.Columns)
	row := clamp(int(math.Floor(y+0.5)), src.Grid.Rows)
	return src.At(row, col)
}

// weights holds the source indices along one axis that contribute to a
// target cell, and their normalized weights.
type weights struct {
	index  []int
	weight []float64
}

// kernel returns the B-spline weights around fractional index v on an
// axis of n source cells, with the kernel stretched by scale.
func kernel(v, scale float64, n int) weights {
	lo := int(math.Ceil(v - 2*scale))
	hi := int(math.Floor(v + 2*scale))
	if lo < 0 {
		lo = 0
	}
	if hi > n-1 {
		hi = n - 1
	}
	var k weights
	var sum float64
	for i := lo; i <= hi; i++ {
		w := bspline((v - float64(i)) / scale)
		if w == 0 {
			continue
		}
		k.index = append(k.index, i)
		k.weight = append(k.weight, w)
		sum += w
	}
	for i := range k.weight {
		k.weight[i] /= sum
	}
	return k
}

func convolve(src kagb.Field, kx, ky weights) float64 {
	var sum float64
	for j, row := range ky.index {
		for i, col := range kx.index {
			v := src.At(row, col)
			if !kagb.Defined(v) {
				return math.NaN()
			}
			sum += kx.weight[i] * ky.weight[j] * v
		}
	}
	return sum
}

// bspline is the cubic B-spline kernel. Its weights are non-negative and
// sum to one, so constant fields are preserved.
func bspline(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t < 1:
		return (4 - 6*t*t + 3*t*t*t) / 6
	case t < 2:
		u := 2 - t
		return u * u * u / 6
	default:
		return 0
	}
}

func clamp(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
