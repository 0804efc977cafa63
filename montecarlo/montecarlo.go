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

// Package montecarlo simulates biomass maps by drawing, for each cell,
// a value from the cumulative probability function of the cell's land
// cover category.
package montecarlo

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

// DefaultFilterSize is the default width of the median filter window.
const DefaultFilterSize = 5

// Uniform is a source of uniformly distributed random numbers in [0, 1).
// *rand.Rand satisfies this interface.
type Uniform interface {
	Float64() float64
}

// Sampler holds the settings for Monte Carlo biomass simulation.
type Sampler struct {
	// Seed is the top-level random seed. It is only used if Seeded is
	// true; otherwise a seed is derived from the clock and logged.
	Seed   int64
	Seeded bool

	// FilterSize is the width, in cells, of the square median filter
	// window. It must be odd. A value of 1 disables the filter, and
	// zero means DefaultFilterSize.
	FilterSize int

	// Workers is the number of realizations processed concurrently.
	// GOMAXPROCS is used if Workers < 1.
	Workers int

	// NewSource returns the random number source for the given seed.
	// If nil, math/rand sources are used.
	NewSource func(seed int64) Uniform

	Log logrus.FieldLogger
}

func (s *Sampler) log() logrus.FieldLogger {
	if s.Log == nil {
		return logrus.StandardLogger()
	}
	return s.Log
}

func (s *Sampler) source(seed int64) Uniform {
	if s.NewSource == nil {
		return rand.New(rand.NewSource(seed))
	}
	return s.NewSource(seed)
}

func (s *Sampler) filterSize() int {
	if s.FilterSize == 0 {
		return DefaultFilterSize
	}
	return s.FilterSize
}

// seed returns the top-level seed for a run.
func (s *Sampler) seed() int64 {
	if s.Seeded {
		return s.Seed
	}
	seed := time.Now().UnixNano()
	s.log().WithField("seed", seed).Info("using random seed")
	return seed
}

// Simulate returns n realizations of biomass on the grid of landcover,
// smoothed with a median filter. inv[i] is the inverse CPF of land cover
// code i+1.
func (s *Sampler) Simulate(ctx context.Context, inv []Interpolator, landcover kagb.Field, n int) (*kagb.Ensemble, error) {
	size := s.filterSize()
	if size < 1 || size%2 == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "median filter size %d must be odd and positive", size)
	}
	e, err := s.Sample(ctx, inv, landcover, n)
	if err != nil {
		return nil, err
	}
	err = kagb.Parallel(n, s.Workers, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		copy(e.Slice(i), MedianFilter(e.Slice(i), e.Grid, size))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Sample returns n unsmoothed realizations of biomass on the grid of
// landcover. Cells whose land cover is undefined or not one of the codes
// 1..len(inv) are undefined in every realization.
func (s *Sampler) Sample(ctx context.Context, inv []Interpolator, landcover kagb.Field, n int) (*kagb.Ensemble, error) {
	if len(inv) == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "no land cover categories")
	}
	if n < 1 {
		return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "number of realizations must be >0; have %d", n)
	}
	if err := landcover.Grid.Validate(); err != nil {
		return nil, err
	}

	// Cells of each category, in raster order.
	cells := make([][]int, len(inv))
	var unknown int
	for c, v := range landcover.Values() {
		if !kagb.Defined(v) {
			continue
		}
		code := int(v)
		if float64(code) != v || code < 1 || code > len(inv) {
			unknown++
			continue
		}
		cells[code-1] = append(cells[code-1], c)
	}
	if unknown > 0 {
		s.log().WithField("cells", unknown).Warn("land cover codes outside of the configured categories are treated as no-data")
	}

	seed := s.seed()
	e := kagb.NewEnsemble(landcover.Grid, n)
	for i := range e.Data.Elements {
		e.Data.Elements[i] = math.NaN()
	}
	err := kagb.Parallel(n, s.Workers, func(r int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		out := e.Slice(r)
		for c, f := range inv {
			src := s.source(kagb.SubSeed(seed, r, c))
			for _, cell := range cells[c] {
				out[cell] = f.At(src.Float64())
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log().WithFields(logrus.Fields{
		"realizations": n,
		"categories":   len(inv),
	}).Info("sampled biomass")
	return e, nil
}
