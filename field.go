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

package kagb

import (
	"math"

	"github.com/ctessum/sparse"
)

// Field is a single raster layer over a GridSpec. Undefined (no-data)
// cells hold NaN.
type Field struct {
	Grid GridSpec

	// Data has shape [Rows, Columns].
	Data *sparse.DenseArray
}

// NewField returns a zero-valued field on grid g.
func NewField(g GridSpec) Field {
	return Field{Grid: g, Data: sparse.ZerosDense(g.Rows, g.Columns)}
}

// NewNoDataField returns a field on grid g where all cells are undefined.
func NewNoDataField(g GridSpec) Field {
	f := NewField(g)
	for i := range f.Data.Elements {
		f.Data.Elements[i] = math.NaN()
	}
	return f
}

// FieldFromSlice wraps v, which must have length g.Len(), in a Field.
func FieldFromSlice(g GridSpec, v []float64) Field {
	if len(v) != g.Len() {
		panic("kagb: slice length does not match grid")
	}
	f := NewField(g)
	copy(f.Data.Elements, v)
	return f
}

// At returns the value at the given row and column.
func (f Field) At(row, col int) float64 {
	return f.Data.Elements[row*f.Grid.Columns+col]
}

// Set sets the value at the given row and column.
func (f Field) Set(v float64, row, col int) {
	f.Data.Elements[row*f.Grid.Columns+col] = v
}

// Values returns the underlying cell values in row-major order.
func (f Field) Values() []float64 { return f.Data.Elements }

// Copy returns a deep copy of f.
func (f Field) Copy() Field {
	return Field{Grid: f.Grid, Data: f.Data.Copy()}
}

// NormalizeNoData marks all values ≤ 0 or non-finite as undefined. This
// is the policy used for all covariate, biomass and land cover rasters
// when they are read.
func (f Field) NormalizeNoData() Field {
	for i, v := range f.Data.Elements {
		if !Defined(v) || v <= 0 {
			f.Data.Elements[i] = math.NaN()
		}
	}
	return f
}

// CountDefined returns the number of defined cells in f.
func (f Field) CountDefined() int {
	var n int
	for _, v := range f.Data.Elements {
		if Defined(v) {
			n++
		}
	}
	return n
}

// Defined returns whether v is a valid (not no-data) value.
func Defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
