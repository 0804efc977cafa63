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
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/ctessum/geom/proj"
	goshp "github.com/jonas-p/go-shp"
)

// GridTolerance is the largest allowed difference between the coordinates
// or resolutions of two grids that are considered equal.
const GridTolerance = 1.0e-3

// GridSpec specifies a regular raster grid. Row 0 is the northern-most
// row, as in most raster formats.
type GridSpec struct {
	Rows, Columns int

	// Res is the edge length of the square grid cells, in the units of
	// the grid projection.
	Res float64

	// MinX and MinY are the coordinates of the lower-left corner
	// of the grid.
	MinX, MinY float64

	// EPSG is the EPSG code of the grid projection, or 0 if unknown.
	EPSG int

	// Proj optionally holds the grid projection in Proj4 or WKT format.
	Proj string
}

// Len returns the number of cells in the grid.
func (g GridSpec) Len() int { return g.Rows * g.Columns }

// MaxX returns the x coordinate of the eastern edge of the grid.
func (g GridSpec) MaxX() float64 { return g.MinX + g.Res*float64(g.Columns) }

// MaxY returns the y coordinate of the northern edge of the grid.
func (g GridSpec) MaxY() float64 { return g.MinY + g.Res*float64(g.Rows) }

// CellCenter returns the center point of the cell at the given row and column.
func (g GridSpec) CellCenter(row, col int) geom.Point {
	return geom.Point{
		X: g.MinX + (float64(col)+0.5)*g.Res,
		Y: g.MaxY() - (float64(row)+0.5)*g.Res,
	}
}

// Cell returns the polygon covered by the cell at the given row and column.
func (g GridSpec) Cell(row, col int) geom.Polygon {
	x := g.MinX + float64(col)*g.Res
	y := g.MaxY() - float64(row+1)*g.Res
	return geom.Polygon([]geom.Path{{
		{X: x, Y: y}, {X: x + g.Res, Y: y},
		{X: x + g.Res, Y: y + g.Res}, {X: x, Y: y + g.Res}, {X: x, Y: y}}})
}

// Validate checks that the grid has a positive size and resolution.
func (g GridSpec) Validate() error {
	if g.Rows <= 0 || g.Columns <= 0 {
		return Errorf(ConfigError, "grid", "grid must have at least one row and column; have %d×%d", g.Rows, g.Columns)
	}
	if !(g.Res > 0) {
		return Errorf(ConfigError, "grid", "resolution=%g but should be >0", g.Res)
	}
	return nil
}

// Check returns a configuration error naming the first attribute in which
// g and o differ by more than GridTolerance.
func (g GridSpec) Check(o GridSpec) error {
	switch {
	case g.Columns != o.Columns:
		return Errorf(ConfigError, "grid", "invalid number of columns: %d != %d", o.Columns, g.Columns)
	case g.Rows != o.Rows:
		return Errorf(ConfigError, "grid", "invalid number of rows: %d != %d", o.Rows, g.Rows)
	case math.Abs(g.MinX-o.MinX) > GridTolerance:
		return Errorf(ConfigError, "grid", "invalid most western coordinate: %g != %g", o.MinX, g.MinX)
	case math.Abs(g.MinY-o.MinY) > GridTolerance:
		return Errorf(ConfigError, "grid", "invalid most southern coordinate: %g != %g", o.MinY, g.MinY)
	case math.Abs(g.Res-o.Res) > GridTolerance:
		return Errorf(ConfigError, "grid", "invalid resolution: %g != %g", o.Res, g.Res)
	case g.EPSG != 0 && o.EPSG != 0 && g.EPSG != o.EPSG:
		return Errorf(ConfigError, "grid", "invalid coordinate system: EPSG:%d != EPSG:%d", o.EPSG, g.EPSG)
	}
	return nil
}

// Equal returns whether g and o describe the same grid within GridTolerance.
func (g GridSpec) Equal(o GridSpec) bool { return g.Check(o) == nil }

// SpatialRef parses the Proj field. It returns nil if Proj is empty.
func (g GridSpec) SpatialRef() (*proj.SR, error) {
	if strings.TrimSpace(g.Proj) == "" {
		return nil, nil
	}
	sr, err := proj.Parse(g.Proj)
	if err != nil {
		return nil, Errorf(ConfigError, "grid", "parsing grid projection: %v", err)
	}
	return sr, nil
}

func (g GridSpec) String() string {
	return fmt.Sprintf("%d×%d cells of %g at (%g, %g) EPSG:%d", g.Rows, g.Columns, g.Res, g.MinX, g.MinY, g.EPSG)
}

// WriteToShp writes the grid cells to a shapefile at path, with the row and
// column of each cell and, if values is not nil, the value of each cell.
func (g GridSpec) WriteToShp(path string, values *Field) error {
	if values != nil {
		if err := g.Check(values.Grid); err != nil {
			return err
		}
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	for _, ext := range []string{".shp", ".prj", ".dbf", ".shx"} {
		os.Remove(base + ext)
	}
	fields := []goshp.Field{
		goshp.NumberField("row", 10),
		goshp.NumberField("col", 10),
	}
	if values != nil {
		fields = append(fields, goshp.FloatField("value", 16, 6))
	}
	e, err := shp.NewEncoderFromFields(base+".shp", goshp.POLYGON, fields...)
	if err != nil {
		return Errorf(IOError, "grid", "creating shapefile: %v", err)
	}
	defer e.Close()
	for row := 0; row < g.Rows; row++ {
		for col := 0; col < g.Columns; col++ {
			data := []interface{}{row, col}
			if values != nil {
				data = append(data, values.At(row, col))
			}
			if err = e.EncodeFields(g.Cell(row, col), data...); err != nil {
				return Errorf(IOError, "grid", "writing shapefile: %v", err)
			}
		}
	}
	return nil
}
