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
	"strings"

	"github.com/spatialmodel/kagb"
	"github.com/tealeg/xlsx"
)

// SheetName is the name of the worksheet that CPF tables are written to.
const SheetName = "CPF"

// WriteXLSX writes t to an Excel file at path, using the same layout as
// WriteCSV.
func (t *Table) WriteXLSX(path string) error {
	f := xlsx.NewFile()
	s, err := f.AddSheet(SheetName)
	if err != nil {
		return kagb.Errorf(kagb.IOError, "cpf", "creating worksheet: %v", err)
	}
	row := s.AddRow()
	for _, h := range t.header() {
		row.AddCell().SetString(h)
	}
	for i, p := range t.Probability {
		row = s.AddRow()
		row.AddCell().SetInt(i)
		for j := range t.Categories {
			row.AddCell().SetFloat(t.Values[j][i])
		}
		row.AddCell().SetFloat(p)
	}
	if err := kagb.WriteFile(path, f.Write); err != nil {
		return kagb.Errorf(kagb.IOError, "cpf", "saving %s: %v", path, err)
	}
	return nil
}

// ReadXLSX reads a table written by WriteXLSX.
func ReadXLSX(path string) (*Table, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, kagb.Errorf(kagb.IOError, "cpf", "opening %s: %v", path, err)
	}
	s, ok := f.Sheet[SheetName]
	if !ok {
		return nil, kagb.Errorf(kagb.ConfigError, "cpf", "%s has no %s worksheet", path, SheetName)
	}
	recs := make([][]string, 0, len(s.Rows))
	for _, row := range s.Rows {
		rec := make([]string, len(row.Cells))
		for i, c := range row.Cells {
			rec[i] = strings.TrimSpace(c.Value)
		}
		recs = append(recs, rec)
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
