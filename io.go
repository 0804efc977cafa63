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
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/ctessum/sparse"
)

// DataVersion is the version of the raster file format written by this
// package. Files with a different version are rejected when read.
const DataVersion = "1.0.0"

// DefaultVariable is the name of the netCDF variable holding raster values.
const DefaultVariable = "biomass"

// DataType is the on-disk floating point precision of a raster file.
type DataType int

const (
	// Float64 is used for downscaled biomass ensembles.
	Float64 DataType = iota
	// Float32 is used for simulated biomass maps.
	Float32
)

// WriteEnsemble writes e to a netCDF file at path with one band per
// realization, in realization order. The file is first written to a
// temporary file in the same directory and then moved into place, so a
// failed write never leaves a partial file at path.
func WriteEnsemble(path string, e *Ensemble, t DataType, comment string) error {
	return writeAtomic(path, func(w *os.File) error {
		return writeNetCDF(w, e, t, comment)
	})
}

// WriteField writes f to a single-band netCDF file at path.
func WriteField(path string, f Field, t DataType, comment string) error {
	e := &Ensemble{Grid: f.Grid, Data: &sparse.DenseArray{
		Shape:    []int{1, f.Grid.Rows, f.Grid.Columns},
		Elements: f.Data.Elements,
	}}
	return WriteEnsemble(path, e, t, comment)
}

// WriteFile creates the file at path from the output of write. As with
// WriteEnsemble, nothing is left at path if write fails.
func WriteFile(path string, write func(io.Writer) error) error {
	return writeAtomic(path, func(w *os.File) error {
		return write(w)
	})
}

func writeAtomic(path string, write func(*os.File) error) error {
	w, err := ioutil.TempFile(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return Errorf(IOError, "write", "%v", err)
	}
	tmp := w.Name()
	if err = w.Chmod(0644); err == nil {
		err = write(w)
	}
	if err != nil {
		w.Close()
		os.Remove(tmp)
		return Wrap(IOError, "write", fmt.Errorf("writing %s: %v", path, err))
	}
	if err = w.Close(); err != nil {
		os.Remove(tmp)
		return Errorf(IOError, "write", "closing %s: %v", path, err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return Errorf(IOError, "write", "%v", err)
	}
	return nil
}

func writeNetCDF(w *os.File, e *Ensemble, t DataType, comment string) error {
	g := e.Grid
	h := cdf.NewHeader([]string{"band", "y", "x"}, []int{e.Len(), g.Rows, g.Columns})
	h.AddAttribute("", "comment", comment)
	h.AddAttribute("", "x0", []float64{g.MinX})
	h.AddAttribute("", "y0", []float64{g.MinY})
	h.AddAttribute("", "dx", []float64{g.Res})
	h.AddAttribute("", "nx", []int32{int32(g.Columns)})
	h.AddAttribute("", "ny", []int32{int32(g.Rows)})
	h.AddAttribute("", "epsg", []int32{int32(g.EPSG)})
	if g.Proj != "" {
		h.AddAttribute("", "proj4", g.Proj)
	}
	h.AddAttribute("", "data_version", DataVersion)

	h.AddVariable("band", []string{"band"}, []int32{0})
	h.AddAttribute("band", "description", "Band number (1-based)")
	switch t {
	case Float32:
		h.AddVariable(DefaultVariable, []string{"band", "y", "x"}, []float32{0})
	case Float64:
		h.AddVariable(DefaultVariable, []string{"band", "y", "x"}, []float64{0})
	default:
		return fmt.Errorf("invalid data type %d", t)
	}
	h.AddAttribute(DefaultVariable, "description", "Row 0 is the northern edge of the grid")
	h.Define()

	f, err := cdf.Create(w, h)
	if err != nil {
		return err
	}
	bands := make([]int32, e.Len())
	for i := range bands {
		bands[i] = int32(i + 1)
	}
	start, end := extent(f, "band")
	if _, err = f.Writer("band", start, end).Write(bands); err != nil {
		return fmt.Errorf("writing band numbers: %v", err)
	}

	var data interface{}
	switch t {
	case Float32:
		d := make([]float32, len(e.Data.Elements))
		for i, v := range e.Data.Elements {
			d[i] = float32(v)
		}
		data = d
	case Float64:
		data = e.Data.Elements
	}
	start, end = extent(f, DefaultVariable)
	if _, err = f.Writer(DefaultVariable, start, end).Write(data); err != nil {
		return fmt.Errorf("writing variable %s: %v", DefaultVariable, err)
	}
	return cdf.UpdateNumRecs(w)
}

// extent returns the start and end corners spanning all of variable v.
// A nil end makes a complete transfer of a fixed-size variable report
// io.EOF.
func extent(f *cdf.File, v string) (start, end []int) {
	end = f.Header.Lengths(v)
	start = make([]int, len(end))
	return start, end
}

// ReadEnsemble reads all bands of the netCDF raster at path. No-data
// normalization is not applied.
func ReadEnsemble(path string) (*Ensemble, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, Errorf(IOError, "read", "%v", err)
	}
	defer r.Close()
	e, err := readNetCDF(r)
	if err != nil {
		return nil, Wrap(IOError, "read", fmt.Errorf("reading %s: %v", path, err))
	}
	return e, nil
}

// ReadField reads the first band of the netCDF raster at path.
func ReadField(path string) (Field, error) {
	e, err := ReadEnsemble(path)
	if err != nil {
		return Field{}, err
	}
	if e.Len() < 1 {
		return Field{}, Errorf(IOError, "read", "%s has no bands", path)
	}
	return e.Realization(0), nil
}

// ReadGrid reads only the grid specification of the netCDF raster at path.
func ReadGrid(path string) (GridSpec, error) {
	r, err := os.Open(path)
	if err != nil {
		return GridSpec{}, Errorf(IOError, "read", "%v", err)
	}
	defer r.Close()
	f, err := cdf.Open(r)
	if err != nil {
		return GridSpec{}, Errorf(IOError, "read", "reading %s: %v", path, err)
	}
	g, err := gridFromHeader(f.Header)
	if err != nil {
		return GridSpec{}, Errorf(IOError, "read", "reading %s: %v", path, err)
	}
	return g, nil
}

func gridFromHeader(h *cdf.Header) (GridSpec, error) {
	if v, ok := h.GetAttribute("", "data_version").(string); !ok || v != DataVersion {
		return GridSpec{}, fmt.Errorf("data version %q is incompatible with the required version %s", v, DataVersion)
	}
	var g GridSpec
	var err error
	float := func(name string) float64 {
		v, ok := h.GetAttribute("", name).([]float64)
		if !ok || len(v) == 0 {
			if err == nil {
				err = fmt.Errorf("missing attribute %s", name)
			}
			return math.NaN()
		}
		return v[0]
	}
	integer := func(name string) int {
		v, ok := h.GetAttribute("", name).([]int32)
		if !ok || len(v) == 0 {
			if err == nil {
				err = fmt.Errorf("missing attribute %s", name)
			}
			return 0
		}
		return int(v[0])
	}
	g.MinX = float("x0")
	g.MinY = float("y0")
	g.Res = float("dx")
	g.Columns = integer("nx")
	g.Rows = integer("ny")
	g.EPSG = integer("epsg")
	if p, ok := h.GetAttribute("", "proj4").(string); ok {
		g.Proj = p
	}
	return g, err
}

func readNetCDF(rw cdf.ReaderWriterAt) (*Ensemble, error) {
	f, err := cdf.Open(rw)
	if err != nil {
		return nil, err
	}
	g, err := gridFromHeader(f.Header)
	if err != nil {
		return nil, err
	}
	dims := f.Header.Lengths(DefaultVariable)
	if len(dims) != 3 {
		return nil, fmt.Errorf("variable %s has %d dimensions; want 3", DefaultVariable, len(dims))
	}
	if dims[1] != g.Rows || dims[2] != g.Columns {
		return nil, fmt.Errorf("variable %s has shape %v but grid is %d×%d", DefaultVariable, dims, g.Rows, g.Columns)
	}
	e := NewEnsemble(g, dims[0])
	start, end := extent(f, DefaultVariable)
	r := f.Reader(DefaultVariable, start, end)
	buf := r.Zero(len(e.Data.Elements))
	if _, err = r.Read(buf); err != nil {
		return nil, err
	}
	switch d := buf.(type) {
	case []float64:
		copy(e.Data.Elements, d)
	case []float32:
		for i, v := range d {
			e.Data.Elements[i] = float64(v)
		}
	case []int32:
		for i, v := range d {
			e.Data.Elements[i] = float64(v)
		}
	case []int16:
		for i, v := range d {
			e.Data.Elements[i] = float64(v)
		}
	case []uint8:
		for i, v := range d {
			e.Data.Elements[i] = float64(v)
		}
	default:
		return nil, fmt.Errorf("unsupported data type %T", buf)
	}
	return e, nil
}
