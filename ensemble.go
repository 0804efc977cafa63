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
	"github.com/ctessum/sparse"
)

// Ensemble is an ordered set of realizations sharing one grid.
type Ensemble struct {
	Grid GridSpec

	// Data has shape [realizations, Rows, Columns].
	Data *sparse.DenseArray
}

// NewEnsemble returns an ensemble of n zero-valued realizations on grid g.
func NewEnsemble(g GridSpec, n int) *Ensemble {
	return &Ensemble{Grid: g, Data: sparse.ZerosDense(n, g.Rows, g.Columns)}
}

// Len returns the number of realizations in e.
func (e *Ensemble) Len() int { return e.Data.Shape[0] }

// Slice returns the values of realization i in row-major order. The
// returned slice shares memory with e.
func (e *Ensemble) Slice(i int) []float64 {
	n := e.Grid.Len()
	return e.Data.Elements[i*n : (i+1)*n]
}

// Realization returns a copy of realization i.
func (e *Ensemble) Realization(i int) Field {
	return FieldFromSlice(e.Grid, e.Slice(i))
}

// SetRealization copies f into slot i of e.
func (e *Ensemble) SetRealization(i int, f Field) error {
	if err := e.Grid.Check(f.Grid); err != nil {
		return err
	}
	copy(e.Slice(i), f.Data.Elements)
	return nil
}
