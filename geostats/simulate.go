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

package geostats

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"

	"github.com/ctessum/geom"
	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

// Datum is a conditioning data point for spatial simulation.
type Datum struct {
	geom.Point
	Value float64
}

// TrainingSet returns the defined cells of f as conditioning data located
// at the cell centres, in raster order.
func TrainingSet(f kagb.Field) []Datum {
	var o []Datum
	for row := 0; row < f.Grid.Rows; row++ {
		for col := 0; col < f.Grid.Columns; col++ {
			if v := f.At(row, col); kagb.Defined(v) {
				o = append(o, Datum{Point: f.Grid.CellCenter(row, col), Value: v})
			}
		}
	}
	return o
}

// WriteTrainingSet writes data to w as CSV with columns East, North
// and Value.
func WriteTrainingSet(w io.Writer, data []Datum) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"East", "North", "Value"}); err != nil {
		return err
	}
	for _, d := range data {
		err := cw.Write([]string{
			strconv.FormatFloat(d.X, 'g', -1, 64),
			strconv.FormatFloat(d.Y, 'g', -1, 64),
			strconv.FormatFloat(d.Value, 'g', -1, 64),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Simulator produces one realization of a spatial random field on grid g
// conditioned to data.
type Simulator interface {
	Simulate(ctx context.Context, data []Datum, v Variogram, g kagb.GridSpec, seed int64) (kagb.Field, error)
}

// Realize calls sim n times with independent seeds derived from seed and
// returns the realizations in order. If any realization fails, no output
// is returned.
func Realize(ctx context.Context, sim Simulator, data []Datum, v Variogram, g kagb.GridSpec, n int, seed int64, log logrus.FieldLogger) (*kagb.Ensemble, error) {
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, kagb.Errorf(kagb.ConfigError, "geostats", "number of realizations must be >0; have %d", n)
	}
	if len(data) == 0 {
		return nil, kagb.Errorf(kagb.ConfigError, "geostats", "no conditioning data")
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	e := kagb.NewEnsemble(g, n)
	err := kagb.Parallel(n, 0, func(i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, err := sim.Simulate(ctx, data, v, g, kagb.SubSeed(seed, i, 0))
		if err != nil {
			return kagb.AtRealization(err, kagb.NumericError, "geostats", i)
		}
		if err = e.SetRealization(i, f); err != nil {
			return kagb.AtRealization(err, kagb.ConfigError, "geostats", i)
		}
		log.WithField("realization", i+1).Debug("simulated coarse biomass")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}
