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
	"bytes"
	"context"
	"io/ioutil"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spatialmodel/kagb"
)

func testLogger() logrus.FieldLogger {
	l := logrus.New()
	l.Out = ioutil.Discard
	return l
}

var grid = kagb.GridSpec{Rows: 2, Columns: 3, Res: 250, EPSG: 3116}

func TestPercentiles(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5}
	for _, tt := range []struct {
		p, want float64
	}{
		{0, 1}, {100, 5}, {50, 3}, {25, 2}, {10, 1.4}, {90, 4.6},
	} {
		have := Percentiles(data, []float64{tt.p})[0]
		if math.Abs(have-tt.want) > 1e-12 {
			t.Errorf("%g: have %g, want %g", tt.p, have, tt.want)
		}
	}
	if have := Percentiles([]float64{7}, []float64{0, 50, 100}); have[0] != 7 || have[2] != 7 {
		t.Errorf("single value: have %v, want [7 7 7]", have)
	}
}

func TestEstimate(t *testing.T) {
	lc := kagb.FieldFromSlice(grid, []float64{1, 1, 2, 2, math.NaN(), 1})
	ens := kagb.NewEnsemble(grid, 2)
	copy(ens.Slice(0), []float64{10, 100, 5, 50, 1000, -1})
	copy(ens.Slice(1), []float64{1000, math.NaN(), 5, 5, 1000, 0})

	e := &Estimator{Log: testLogger()}
	tbl, err := e.Estimate(context.Background(), ens, lc, []string{"forest", "pasture"})
	if err != nil {
		t.Fatal(err)
	}
	if err := tbl.Validate(); err != nil {
		t.Fatal(err)
	}
	if len(tbl.Probability) != NumProbabilities {
		t.Fatalf("have %d probabilities, want %d", len(tbl.Probability), NumProbabilities)
	}
	// forest samples are 10, 100 and 1000; the cell with undefined land
	// cover and the non-positive values are excluded.
	forest := tbl.Values[tbl.Category("forest")]
	for _, tt := range []struct {
		i    int
		want float64
	}{
		{0, 10}, {50, 100}, {100, 1000}, {25, math.Pow(10, 1.5)},
	} {
		if math.Abs(forest[tt.i]-tt.want) > 1e-12*tt.want {
			t.Errorf("forest %d: have %g, want %g", tt.i, forest[tt.i], tt.want)
		}
	}
	pasture := tbl.Values[1]
	if math.Abs(pasture[0]-5) > 1e-12 || math.Abs(pasture[100]-50) > 1e-12 {
		t.Errorf("pasture: have [%g ... %g], want [5 ... 50]", pasture[0], pasture[100])
	}
}

func TestEstimateEmptyCategory(t *testing.T) {
	lc := kagb.FieldFromSlice(grid, []float64{1, 1, 1, 1, 1, 1})
	ens := kagb.NewEnsemble(grid, 1)
	for i := range ens.Data.Elements {
		ens.Data.Elements[i] = 10
	}
	e := &Estimator{Log: testLogger()}
	_, err := e.Estimate(context.Background(), ens, lc, []string{"forest", "urban"})
	if !kagb.IsKind(err, kagb.ConfigError) {
		t.Fatalf("have %v, want configuration error", err)
	}
	if !strings.Contains(err.Error(), "urban") {
		t.Errorf("error %q should name the empty category", err)
	}
}

func TestEstimateResamplesLandCover(t *testing.T) {
	fine := kagb.GridSpec{Rows: 4, Columns: 6, Res: 125, EPSG: 3116}
	lc := kagb.NewField(fine)
	for i := range lc.Values() {
		lc.Values()[i] = 1
	}
	ens := kagb.NewEnsemble(grid, 1)
	for i := range ens.Data.Elements {
		ens.Data.Elements[i] = float64(i + 1)
	}
	e := &Estimator{Log: testLogger()}
	tbl, err := e.Estimate(context.Background(), ens, lc, []string{"forest"})
	if err != nil {
		t.Fatal(err)
	}
	if have, want := tbl.Values[0][100], 6.0; math.Abs(have-want) > 1e-12 {
		t.Errorf("have %g, want %g", have, want)
	}
}

func testTable() *Table {
	p := Probabilities()
	t := &Table{Probability: p, Categories: []string{"forest", "pasture"}}
	t.Values = make([][]float64, 2)
	for j := range t.Values {
		t.Values[j] = make([]float64, len(p))
		for i, pp := range p {
			t.Values[j][i] = float64(j) + pp/50
		}
	}
	return t
}

func checkTable(t *testing.T, have, want *Table) {
	if len(have.Categories) != len(want.Categories) {
		t.Fatalf("categories: have %v, want %v", have.Categories, want.Categories)
	}
	for j, c := range want.Categories {
		if have.Categories[j] != c {
			t.Errorf("category %d: have %s, want %s", j, have.Categories[j], c)
		}
		for i := range want.Probability {
			if have.Probability[i] != want.Probability[i] {
				t.Errorf("probability %d: have %g, want %g", i, have.Probability[i], want.Probability[i])
			}
			if math.Abs(have.Values[j][i]-want.Values[j][i]) > 1e-12 {
				t.Errorf("%s %d: have %g, want %g", c, i, have.Values[j][i], want.Values[j][i])
			}
		}
	}
}

func TestCSV(t *testing.T) {
	want := testTable()
	var b bytes.Buffer
	if err := want.WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	if h := strings.SplitN(b.String(), "\n", 2)[0]; h != ",forest,pasture,Prob." {
		t.Errorf("header: have %q, want %q", h, ",forest,pasture,Prob.")
	}
	have, err := ReadCSV(&b)
	if err != nil {
		t.Fatal(err)
	}
	checkTable(t, have, want)
}

func TestReadCSVInvalid(t *testing.T) {
	for _, tt := range []struct {
		name, csv string
	}{
		{name: "no probability", csv: ",a,b\n0,1,2\n1,2,3\n"},
		{name: "decreasing", csv: ",a,Prob.\n0,2,0\n1,1,50\n2,3,100\n"},
		{name: "not a number", csv: ",a,Prob.\n0,x,0\n1,1,50\n2,3,100\n"},
		{name: "undefined", csv: ",a,Prob.\n0,NaN,0\n1,1,50\n2,3,100\n"},
		{name: "short row", csv: ",a,Prob.\n0,1\n1,1,50\n2,3,100\n"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.csv)); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

// A table with zero biomass, as written for sparsely vegetated
// categories, is read back unchanged.
func TestReadCSVZero(t *testing.T) {
	const in = ",Forest,Prob.\n0,0,0\n1,10,50\n2,20,100\n"
	tbl, err := ReadCSV(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{0, 10, 20}
	for i, v := range tbl.Values[0] {
		if v != want[i] {
			t.Errorf("row %d: have %g, want %g", i, v, want[i])
		}
	}
	var b bytes.Buffer
	if err := tbl.WriteCSV(&b); err != nil {
		t.Fatal(err)
	}
	if have := b.String(); have != in {
		t.Errorf("have %q, want %q", have, in)
	}
}

func TestXLSX(t *testing.T) {
	dir, err := ioutil.TempDir("", "cpf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	want := testTable()
	path := filepath.Join(dir, "cpf.xlsx")
	if err := want.WriteXLSX(path); err != nil {
		t.Fatal(err)
	}
	have, err := ReadXLSX(path)
	if err != nil {
		t.Fatal(err)
	}
	checkTable(t, have, want)
}

func TestPlot(t *testing.T) {
	dir, err := ioutil.TempDir("", "cpf")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "cpf.png")
	if err := testTable().Plot(path); err != nil {
		t.Fatal(err)
	}
	if fi, err := os.Stat(path); err != nil || fi.Size() == 0 {
		t.Errorf("plot was not written: %v", err)
	}
}
