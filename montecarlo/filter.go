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
	"math"
	"sort"

	"github.com/spatialmodel/kagb"
)

// MedianFilter returns the values v on grid g smoothed with a size×size
// median filter. Undefined cells stay undefined and are not used as
// neighbours. At the grid edges the window is truncated to the cells
// inside the grid. When a window holds an even number of defined values
// the mean of the two middle values is used.
func MedianFilter(v []float64, g kagb.GridSpec, size int) []float64 {
	o := make([]float64, len(v))
	if size <= 1 {
		copy(o, v)
		return o
	}
	h := size / 2
	buf := make([]float64, 0, size*size)
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Columns; col++ {
			i := row*g.Columns + col
			if !kagb.Defined(v[i]) {
				o[i] = math.NaN()
				continue
			}
			buf = buf[:0]
			for r := max(row-h, 0); r <= min(row+h, g.Rows-1); r++ {
				for c := max(col-h, 0); c <= min(col+h, g.Columns-1); c++ {
					if x := v[r*g.Columns+c]; kagb.Defined(x) {
						buf = append(buf, x)
					}
				}
			}
			sort.Float64s(buf)
			n := len(buf)
			if n%2 == 1 {
				o[i] = buf[n/2]
			} else {
				o[i] = (buf[n/2-1] + buf[n/2]) / 2
			}
		}
	}
	return o
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
