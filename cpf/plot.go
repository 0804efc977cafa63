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

package cpf

import (
	"io"
	"math"
	"path/filepath"
	"strings"

	"github.com/spatialmodel/kagb"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot draws the CPF of each category, with biomass on a log10 axis, and
// saves it to path. Non-positive values are left out. The image format is
// determined by the file extension (e.g. png, svg, pdf).
func (t *Table) Plot(path string) error {
	p, err := plot.New()
	if err != nil {
		return kagb.Errorf(kagb.IOError, "cpf", "%v", err)
	}
	p.Title.Text = "Biomass cumulative probability"
	p.X.Label.Text = "log10(AGB) (Mg/ha)"
	p.Y.Label.Text = "Probability (%)"
	p.Y.Min = 0
	p.Y.Max = 100

	lines := make([]interface{}, 0, 2*len(t.Categories))
	for j, name := range t.Categories {
		xy := make(plotter.XYs, 0, len(t.Probability))
		for i, prob := range t.Probability {
			if v := t.Values[j][i]; v > 0 {
				xy = append(xy, struct{ X, Y float64 }{X: math.Log10(v), Y: prob})
			}
		}
		lines = append(lines, name, xy)
	}
	if err = plotutil.AddLines(p, lines...); err != nil {
		return kagb.Errorf(kagb.IOError, "cpf", "%v", err)
	}
	w := math.Max(4, 2+0.3*float64(len(t.Categories)))
	c, err := p.WriterTo(vg.Length(w)*vg.Inch, 3*vg.Inch, strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	if err != nil {
		return kagb.Errorf(kagb.ConfigError, "cpf", "plot %s: %v", path, err)
	}
	return kagb.WriteFile(path, func(out io.Writer) error {
		_, err := c.WriteTo(out)
		return err
	})
}
