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

package kagbutil

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/lnashier/viper"
	"github.com/spatialmodel/kagb"
)

// Parameters are the basic project parameters stored in a fixed-format
// parameter file.
type Parameters struct {
	Name              string
	EPSG              int
	MinX, MinY, Res   float64
	Rows, Columns     int
	Years             []int
	Categories        []string
	SGSIMRealizations int
	MCRealizations    int
	DownID            int
	Variables         []string
}

// ReadParameterFile reads a fixed-format parameter file. Every value
// follows a fixed number of comment lines:
//
//	# comment
//	<name>
//	# comment
//	# comment
//	EPSG:<code>
//	# comment
//	# comment
//	minX <value>
//	minY <value>
//	res <value>
//	rows <value>
//	columns <value>
//	# comment
//	# comment
//	n_years <value>
//	n_categories <value>
//	# comment
//	# comment
//	<year>           (n_years lines)
//	# comment
//	# comment
//	<category>       (n_categories lines)
//	# comment
//	# comment
//	<sgsim realizations>
//	# comment
//	# comment
//	<monte carlo realizations>
//	# comment
//	# comment
//	<regression scheme>
//	# comment
//	# comment
//	<number of variables>
//	# comment
//	# comment
//	<variable>       (number of variables lines)
func ReadParameterFile(r io.Reader) (*Parameters, error) {
	p := &parameterReader{s: bufio.NewScanner(r)}
	o := new(Parameters)

	p.skip(1)
	o.Name = p.field(0)

	p.skip(2)
	o.EPSG = p.epsg(p.field(0))

	p.skip(2)
	o.MinX = p.float(p.field(1))
	o.MinY = p.float(p.field(1))
	o.Res = p.float(p.field(1))
	o.Rows = p.int(p.field(1))
	o.Columns = p.int(p.field(1))

	p.skip(2)
	nYears := p.int(p.field(1))
	nCategories := p.int(p.field(1))

	p.skip(2)
	for i := 0; i < nYears && p.err == nil; i++ {
		o.Years = append(o.Years, p.int(p.field(0)))
	}
	p.skip(2)
	for i := 0; i < nCategories && p.err == nil; i++ {
		o.Categories = append(o.Categories, p.field(0))
	}

	p.skip(2)
	o.SGSIMRealizations = p.int(p.field(0))
	p.skip(2)
	o.MCRealizations = p.int(p.field(0))
	p.skip(2)
	o.DownID = p.int(p.field(0))
	p.skip(2)
	nVariables := p.int(p.field(0))
	p.skip(2)
	for i := 0; i < nVariables && p.err == nil; i++ {
		o.Variables = append(o.Variables, p.field(0))
	}

	if p.err != nil {
		return nil, kagb.Errorf(kagb.ConfigError, "config", "reading parameter file: %v", p.err)
	}
	return o, nil
}

// Apply sets the parameters in cfg, overriding any values from other
// configuration sources.
func (p *Parameters) Apply(cfg *viper.Viper) {
	cfg.Set("Name", p.Name)
	cfg.Set("Grid.EPSG", p.EPSG)
	cfg.Set("Grid.MinX", p.MinX)
	cfg.Set("Grid.MinY", p.MinY)
	cfg.Set("Grid.Res", p.Res)
	cfg.Set("Grid.Rows", p.Rows)
	cfg.Set("Grid.Columns", p.Columns)
	cfg.Set("Years", p.Years)
	cfg.Set("Categories", p.Categories)
	cfg.Set("SGSIMRealizations", p.SGSIMRealizations)
	cfg.Set("MCRealizations", p.MCRealizations)
	cfg.Set("DownID", p.DownID)
	cfg.Set("Variables", p.Variables)
}

// parameterReader reads whitespace-separated fields from a line-oriented
// file, remembering the first error.
type parameterReader struct {
	s    *bufio.Scanner
	line int
	err  error
}

func (p *parameterReader) next() bool {
	if p.err != nil {
		return false
	}
	if !p.s.Scan() {
		p.err = p.s.Err()
		if p.err == nil {
			p.err = fmt.Errorf("unexpected end of file after line %d", p.line)
		}
		return false
	}
	p.line++
	return true
}

func (p *parameterReader) skip(n int) {
	for i := 0; i < n; i++ {
		p.next()
	}
}

// field returns field i of the next line.
func (p *parameterReader) field(i int) string {
	if !p.next() {
		return ""
	}
	f := strings.Fields(p.s.Text())
	if len(f) <= i {
		p.err = fmt.Errorf("line %d: want at least %d fields, have %d", p.line, i+1, len(f))
		return ""
	}
	return f[i]
}

func (p *parameterReader) int(s string) int {
	if p.err != nil {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = fmt.Errorf("line %d: %v", p.line, err)
	}
	return v
}

func (p *parameterReader) float(s string) float64 {
	if p.err != nil {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = fmt.Errorf("line %d: %v", p.line, err)
	}
	return v
}

// epsg parses a coordinate system given as "EPSG:<code>" or "<code>".
func (p *parameterReader) epsg(s string) int {
	return p.int(strings.TrimPrefix(strings.ToUpper(s), "EPSG:"))
}
