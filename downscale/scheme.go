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
	"math"

	"github.com/spatialmodel/kagb"
)

// Scheme is the functional form of the relationship between biomass and
// the covariates.
type Scheme int

const (
	// Linear is y = b0 + Σ bi·xi.
	Linear Scheme = 1
	// Exponential is log10(y) = b0 + Σ bi·xi.
	Exponential Scheme = 2
	// Power is log10(y) = b0 + Σ bi·log10(xi).
	Power Scheme = 3
)

// ParseScheme returns the scheme with the given numeric identifier.
func ParseScheme(id int) (Scheme, error) {
	switch s := Scheme(id); s {
	case Linear, Exponential, Power:
		return s, nil
	default:
		return 0, kagb.Errorf(kagb.ConfigError, "downscale", "invalid regression scheme %d; valid schemes are 1 (linear), 2 (exponential) and 3 (power)", id)
	}
}

func (s Scheme) String() string {
	switch s {
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	case Power:
		return "power"
	default:
		return fmt.Sprintf("Scheme(%d)", int(s))
	}
}

// logTarget reports whether biomass is regressed in log10 space.
func (s Scheme) logTarget() bool { return s == Exponential || s == Power }

// logCovariates reports whether covariates are regressed in log10 space.
func (s Scheme) logCovariates() bool { return s == Power }

// target transforms a biomass value into regression space.
func (s Scheme) target(v float64) (float64, error) {
	if !s.logTarget() || !kagb.Defined(v) {
		return v, nil
	}
	if v <= 0 {
		return math.NaN(), fmt.Errorf("biomass value %g must be >0 for the %v scheme", v, s)
	}
	return math.Log10(v), nil
}

// covariate transforms a covariate value into regression space.
func (s Scheme) covariate(v float64) (float64, error) {
	if !s.logCovariates() || !kagb.Defined(v) {
		return v, nil
	}
	if v <= 0 {
		return math.NaN(), fmt.Errorf("covariate value %g must be >0 for the %v scheme", v, s)
	}
	return math.Log10(v), nil
}

// inverse transforms a value in regression space back into biomass.
func (s Scheme) inverse(v float64) float64 {
	if s.logTarget() {
		return math.Pow(10, v)
	}
	return v
}
