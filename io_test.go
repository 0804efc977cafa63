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
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ctessum/cdf"
)

func testGrid() GridSpec {
	return GridSpec{Rows: 3, Columns: 4, Res: 1000, MinX: 500000, MinY: 1000000, EPSG: 3116}
}

func TestEnsembleRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	g := testGrid()
	e := NewEnsemble(g, 3)
	for i := range e.Data.Elements {
		e.Data.Elements[i] = float64(i) + 0.25
	}
	e.Data.Elements[5] = math.NaN()

	for _, tt := range []struct {
		name string
		t    DataType
	}{
		{name: "float64", t: Float64},
		{name: "float32", t: Float32},
	} {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".nc")
			if err := WriteEnsemble(path, e, tt.t, "test"); err != nil {
				t.Fatal(err)
			}
			have, err := ReadEnsemble(path)
			if err != nil {
				t.Fatal(err)
			}
			if !have.Grid.Equal(g) {
				t.Errorf("grid: have %v, want %v", have.Grid, g)
			}
			if have.Len() != 3 {
				t.Fatalf("bands: have %d, want 3", have.Len())
			}
			for i, want := range e.Data.Elements {
				v := have.Data.Elements[i]
				if math.IsNaN(want) {
					if !math.IsNaN(v) {
						t.Errorf("element %d: have %g, want NaN", i, v)
					}
					continue
				}
				if math.Abs(v-want) > 1e-6*want {
					t.Errorf("element %d: have %g, want %g", i, v, want)
				}
			}
			// Band order is realization order.
			if have.Realization(2).At(0, 0) != 24.25 {
				t.Errorf("band 3: have %g, want 24.25", have.Realization(2).At(0, 0))
			}
		})
	}
}

func TestWriteBandNumbers(t *testing.T) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "e.nc")
	e := NewEnsemble(GridSpec{Rows: 4, Columns: 4, Res: 1}, 2)
	for i := range e.Data.Elements {
		e.Data.Elements[i] = float64(i)
	}
	if err := WriteEnsemble(path, e, Float64, ""); err != nil {
		t.Fatal(err)
	}
	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	f, err := cdf.Open(r)
	if err != nil {
		t.Fatal(err)
	}
	start, end := extent(f, "band")
	br := f.Reader("band", start, end)
	buf := br.Zero(2)
	if _, err := br.Read(buf); err != nil {
		t.Fatal(err)
	}
	if want := []int32{1, 2}; !reflect.DeepEqual(buf, want) {
		t.Errorf("band numbers: have %v, want %v", buf, want)
	}

	have, err := ReadEnsemble(path)
	if err != nil {
		t.Fatal(err)
	}
	if v := have.Realization(1).At(3, 3); v != 31 {
		t.Errorf("last element: have %g, want 31", v)
	}
}

func TestReadGrid(t *testing.T) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	g := testGrid()
	g.Proj = "+proj=longlat +units=degrees"
	path := filepath.Join(dir, "f.nc")
	if err := WriteField(path, NewField(g), Float32, ""); err != nil {
		t.Fatal(err)
	}
	have, err := ReadGrid(path)
	if err != nil {
		t.Fatal(err)
	}
	if have != g {
		t.Errorf("have %+v, want %+v", have, g)
	}
}

func TestReadMissing(t *testing.T) {
	_, err := ReadField(filepath.Join(os.TempDir(), "kagb_does_not_exist.nc"))
	if !IsKind(err, IOError) {
		t.Errorf("have %v, want i/o error", err)
	}
}

func TestWriteAtomic(t *testing.T) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "f.nc")
	if err := ioutil.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	e := NewEnsemble(testGrid(), 1)
	if err := WriteEnsemble(path, e, DataType(99), ""); err == nil {
		t.Fatal("expected an error for an invalid data type")
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "old" {
		t.Errorf("failed write modified existing file")
	}
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("temporary files left behind: have %d files, want 1", len(files))
	}
}

func TestWriteFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "kagb")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "table.csv")
	if err := WriteFile(path, func(w io.Writer) error {
		_, err := fmt.Fprint(w, "a,b\n1,2\n")
		return err
	}); err != nil {
		t.Fatal(err)
	}
	err = WriteFile(path, func(w io.Writer) error {
		fmt.Fprint(w, "a,b\n")
		return errors.New("disk full")
	})
	if !IsKind(err, IOError) {
		t.Errorf("have %v, want i/o error", err)
	}
	b, err := ioutil.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "a,b\n1,2\n" {
		t.Errorf("failed write changed the table: have %q", b)
	}
	files, err := ioutil.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Errorf("temporary files left behind: have %d files, want 1", len(files))
	}

	err = WriteFile(filepath.Join(dir, "new.csv"), func(w io.Writer) error {
		fmt.Fprint(w, "a")
		return errors.New("disk full")
	})
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(filepath.Join(dir, "new.csv")); !os.IsNotExist(err) {
		t.Errorf("partial file exists after failed write: %v", err)
	}
}
