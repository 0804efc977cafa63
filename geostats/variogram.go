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

// Package geostats holds the interface between the biomass pipeline and
// the external spatial simulator that produces coarse biomass
// realizations, along with the variogram model that parameterizes it.
package geostats

import (
	"fmt"
	"io"
	"math"

	"github.com/BurntSushi/toml"
	"github.com/spatialmodel/kagb"
)

// StructureType is a variogram structure type, numbered as in GSLIB.
type StructureType int

// Variogram structure types.
const (
	Spherical   StructureType = 1
	Exponential StructureType = 2
	Gaussian    StructureType = 3
)

func (t StructureType) String() string {
	switch t {
	case Spherical:
		return "spherical"
	case Exponential:
		return "exponential"
	case Gaussian:
		return "gaussian"
	default:
		return fmt.Sprintf("StructureType(%d)", int(t))
	}
}

// Structure is one nested structure of a variogram model.
type Structure struct {
	Type StructureType

	// Contribution is the sill contribution of the structure.
	Contribution float64

	// Azimuth is the direction of maximum continuity, in degrees
	// clockwise from north.
	Azimuth float64

	// HMax and HMin are the ranges in the directions of maximum and
	// minimum continuity.
	HMax, HMin float64
}

// Variogram is a nested variogram model of a normal-score variable.
type Variogram struct {
	Nugget     float64
	Structures []Structure
}

// Validate checks that the variogram is usable by the spatial simulator.
func (v Variogram) Validate() error {
	if n := len(v.Structures); n < 1 || n > 2 {
		return kagb.Errorf(kagb.ConfigError, "geostats", "variogram must have 1 or 2 structures; have %d", n)
	}
	if v.Nugget < 0 {
		return kagb.Errorf(kagb.ConfigError, "geostats", "nugget=%g but should be ≥0", v.Nugget)
	}
	for i, s := range v.Structures {
		switch {
		case s.Type < Spherical || s.Type > Gaussian:
			return kagb.Errorf(kagb.ConfigError, "geostats", "structure %d: invalid type %d", i+1, int(s.Type))
		case s.Contribution < 0:
			return kagb.Errorf(kagb.ConfigError, "geostats", "structure %d: contribution=%g but should be ≥0", i+1, s.Contribution)
		case !(s.HMin > 0) || s.HMax < s.HMin:
			return kagb.Errorf(kagb.ConfigError, "geostats", "structure %d: ranges (%g, %g) must satisfy 0 < HMin ≤ HMax", i+1, s.HMax, s.HMin)
		}
	}
	return nil
}

// Sill returns the total sill of the variogram.
func (v Variogram) Sill() float64 {
	s := v.Nugget
	for _, st := range v.Structures {
		s += st.Contribution
	}
	return s
}

// Gamma returns the variogram value for the separation vector (dx, dy),
// where y points north.
func (v Variogram) Gamma(dx, dy float64) float64 {
	if dx == 0 && dy == 0 {
		return 0
	}
	g := v.Nugget
	for _, s := range v.Structures {
		az := s.Azimuth * math.Pi / 180
		// Components along the major and minor axes.
		major := dx*math.Sin(az) + dy*math.Cos(az)
		minor := dx*math.Cos(az) - dy*math.Sin(az)
		h := math.Hypot(major/s.HMax, minor/s.HMin)
		switch s.Type {
		case Spherical:
			if h < 1 {
				g += s.Contribution * (1.5*h - 0.5*h*h*h)
			} else {
				g += s.Contribution
			}
		case Exponential:
			g += s.Contribution * (1 - math.Exp(-3*h))
		case Gaussian:
			g += s.Contribution * (1 - math.Exp(-3*h*h))
		}
	}
	return g
}

// ReadVariogram reads a TOML-formatted variogram from r.
func ReadVariogram(r io.Reader) (Variogram, error) {
	var v Variogram
	if _, err := toml.DecodeReader(r, &v); err != nil {
		return Variogram{}, kagb.Errorf(kagb.ConfigError, "geostats", "reading variogram: %v", err)
	}
	if err := v.Validate(); err != nil {
		return Variogram{}, err
	}
	return v, nil
}

// Write writes v to w in TOML format.
func (v Variogram) Write(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(v); err != nil {
		return kagb.Errorf(kagb.IOError, "geostats", "writing variogram: %v", err)
	}
	return nil
}
