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

package montecarlo

import (
	"github.com/spatialmodel/kagb"
	"github.com/spatialmodel/kagb/cpf"
)

// Interpolator maps a probability in [0, 1] to a biomass value.
type Interpolator interface {
	At(p float64) float64
}

// InverseCPF is a piecewise linear inverse cumulative probability
// function. Probabilities outside of the anchor range are extrapolated
// linearly from the two outermost anchors at each end.
type InverseCPF struct {
	p, v []float64
}

// NewInverseCPF returns an inverse CPF through the anchors (p[i], v[i]).
// p must be strictly increasing and v must be non-decreasing.
func NewInverseCPF(p, v []float64) (*InverseCPF, error) {
	if len(p) != len(v) {
		return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "%d probabilities but %d values", len(p), len(v))
	}
	if len(p) < 2 {
		return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "at least 2 anchors are required; have %d", len(p))
	}
	for i := range p {
		if !kagb.Defined(p[i]) || !kagb.Defined(v[i]) {
			return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "undefined anchor %d: (%g, %g)", i, p[i], v[i])
		}
		if i > 0 && !(p[i] > p[i-1]) {
			return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "probabilities are not increasing at anchor %d", i)
		}
		if i > 0 && v[i] < v[i-1] {
			return nil, kagb.Errorf(kagb.ConfigError, "montecarlo", "values decrease at anchor %d", i)
		}
	}
	return &InverseCPF{
		p: append([]float64(nil), p...),
		v: append([]float64(nil), v...),
	}, nil
}

// At implements Interpolator.
func (f *InverseCPF) At(x float64) float64 {
	n := len(f.p)
	// Index of the segment that x falls in, clamped to the end segments
	// for extrapolation.
	i := searchSegment(f.p, x)
	if i < 0 {
		i = 0
	} else if i > n-2 {
		i = n - 2
	}
	p0, p1 := f.p[i], f.p[i+1]
	v0, v1 := f.v[i], f.v[i+1]
	return v0 + (x-p0)*(v1-v0)/(p1-p0)
}

// searchSegment returns the largest i such that p[i] <= x, or -1.
func searchSegment(p []float64, x float64) int {
	lo, hi := 0, len(p)
	for lo < hi {
		m := int(uint(lo+hi) >> 1)
		if p[m] <= x {
			lo = m + 1
		} else {
			hi = m
		}
	}
	return lo - 1
}

// FromTable returns one inverse CPF per category of t, in category
// order. Probabilities are converted from percent to fractions.
func FromTable(t *cpf.Table) ([]Interpolator, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	p := make([]float64, len(t.Probability))
	for i, v := range t.Probability {
		p[i] = v / 100
	}
	o := make([]Interpolator, len(t.Categories))
	for j, name := range t.Categories {
		f, err := NewInverseCPF(p, t.Values[j])
		if err != nil {
			return nil, kagb.AtCategory(err, kagb.ConfigError, "montecarlo", name)
		}
		o[j] = f
	}
	return o, nil
}
