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
	"encoding/csv"
	"io"
	"strconv"

	"github.com/spatialmodel/kagb"
)

// ProbabilityColumn is the name of the probability column in CPF tables.
const ProbabilityColumn = "Prob."

// Table holds the CPF of each land cover category.
type Table struct {
	// Probability holds the tabulated probabilities in percent, in
	// increasing order.
	Probability []float64

	// Categories holds the land cover category names.
	Categories []string

	// Values holds, for each category, the biomass at each probability.
	Values [][]float64
}

// Category returns the index of the named category, or -1.
func (t *Table) Category(name string) int {
	for i, c := range t.Categories {
		if c == name {
			return i
		}
	}
	return -1
}

// Validate checks that t is complete and that every CPF is
// non-decreasing.
func (t *Table) Validate() error {
	if len(t.Probability) < 2 {
		return kagb.Errorf(kagb.ConfigError, "cpf", "table must have at least 2 probabilities")
	}
	if len(t.Values) != len(t.Categories) {
		return kagb.Errorf(kagb.ConfigError, "cpf", "table has %d categories but %d value columns", len(t.Categories), len(t.Values))
	}
	for i := 1; i < len(t.Probability); i++ {
		if !(t.Probability[i] > t.Probability[i-1]) {
			return kagb.Errorf(kagb.ConfigError, "cpf", "probabilities are not increasing at row %d", i)
		}
	}
	for j, v := range t.Values {
		if len(v) != len(t.Probability) {
			return kagb.Errorf(kagb.ConfigError, "cpf", "have %d values, want %d", len(v), len(t.Probability)).InCategory(t.Categories[j])
		}
		for i := range v {
			if !kagb.Defined(v[i]) {
				return kagb.Errorf(kagb.ConfigError, "cpf", "undefined value at row %d", i).InCategory(t.Categories[j])
			}
			if i > 0 && v[i] < v[i-1] {
				return kagb.Errorf(kagb.ConfigError, "cpf", "values decrease at row %d", i).InCategory(t.Categories[j])
			}
		}
	}
	return nil
}

// header returns the column headings used when t is written as a table.
func (t *Table) header() []string {
	h := make([]string, 0, len(t.Categories)+2)
	h = append(h, "")
	h = append(h, t.Categories...)
	return append(h, ProbabilityColumn)
}

// WriteCSV writes t to w with one row per probability. The first column
// is the row index, followed by one column per category holding biomass,
// and a final column holding the probability.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header()); err != nil {
		return err
	}
	row := make([]string, len(t.Categories)+2)
	for i, p := range t.Probability {
		row[0] = strconv.Itoa(i)
		for j := range t.Categories {
			row[j+1] = strconv.FormatFloat(t.Values[j][i], 'g', -1, 64)
		}
		row[len(row)-1] = strconv.FormatFloat(p, 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV reads a table in the format written by WriteCSV.
func ReadCSV(r io.Reader) (*Table, error) {
	recs, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, kagb.Errorf(kagb.IOError, "cpf", "reading CPF table: %v", err)
	}
	t, err := tableFromRecords(recs)
	if err != nil {
		return nil, err
	}
	if err = t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

func tableFromRecords(recs [][]string) (*Table, error) {
	if len(recs) < 3 {
		return nil, kagb.Errorf(kagb.ConfigError, "cpf", "CPF table has %d rows; want at least 3", len(recs))
	}
	h := recs[0]
	if len(h) < 3 || h[len(h)-1] != ProbabilityColumn {
		return nil, kagb.Errorf(kagb.ConfigError, "cpf", "CPF table header %q must end with column %q", h, ProbabilityColumn)
	}
	t := &Table{
		Categories: append([]string(nil), h[1:len(h)-1]...),
	}
	t.Values = make([][]float64, len(t.Categories))
	for i, rec := range recs[1:] {
		if len(rec) != len(h) {
			return nil, kagb.Errorf(kagb.ConfigError, "cpf", "CPF table row %d has %d columns; want %d", i+1, len(rec), len(h))
		}
		p, err := strconv.ParseFloat(rec[len(rec)-1], 64)
		if err != nil {
			return nil, kagb.Errorf(kagb.ConfigError, "cpf", "CPF table row %d: %v", i+1, err)
		}
		t.Probability = append(t.Probability, p)
		for j := range t.Categories {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, kagb.Errorf(kagb.ConfigError, "cpf", "CPF table row %d: %v", i+1, err).InCategory(t.Categories[j])
			}
			t.Values[j] = append(t.Values[j], v)
		}
	}
	return t, nil
}
