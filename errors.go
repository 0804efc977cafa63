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
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies the failures that can stop a pipeline stage.
type ErrorKind int

const (
	// ConfigError is returned for inconsistent inputs or settings, such as
	// mismatched grids, unknown regression schemes or empty land cover
	// categories. It is always detected before any output is written.
	ConfigError ErrorKind = iota + 1

	// NumericError is returned when a realization cannot be computed, for
	// example because of a singular regression or the logarithm of a
	// non-positive value.
	NumericError

	// IOError is returned when a raster or table cannot be read or written.
	IOError
)

func (k ErrorKind) String() string {
	switch k {
	case ConfigError:
		return "configuration error"
	case NumericError:
		return "numeric error"
	case IOError:
		return "i/o error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the error type returned by all of the stages in this module.
// It identifies the stage that failed and, where applicable, the
// realization and land cover category being processed.
type Error struct {
	Kind  ErrorKind
	Stage string

	// Realization is the zero-based realization index, or -1.
	Realization int

	// Category is the land cover category name, if any.
	Category string

	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("kagb: ")
	b.WriteString(e.Stage)
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Realization >= 0 {
		fmt.Fprintf(&b, ": realization %d", e.Realization+1)
	}
	if e.Category != "" {
		fmt.Fprintf(&b, ": category %s", e.Category)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// Errorf creates a new error of the given kind for the given stage.
func Errorf(kind ErrorKind, stage, format string, args ...interface{}) *Error {
	return &Error{
		Kind:        kind,
		Stage:       stage,
		Realization: -1,
		Err:         fmt.Errorf(format, args...),
	}
}

// Wrap wraps err as an error of the given kind. If err is already an
// *Error it is returned unchanged.
func Wrap(kind ErrorKind, stage string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Kind: kind, Stage: stage, Realization: -1, Err: err}
}

// InRealization returns a copy of e tagged with realization i.
func (e *Error) InRealization(i int) *Error {
	o := *e
	o.Realization = i
	return &o
}

// InCategory returns a copy of e tagged with category c.
func (e *Error) InCategory(c string) *Error {
	o := *e
	o.Category = c
	return &o
}

// IsKind reports whether err is an *Error of kind k.
func IsKind(err error, k ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}

// AtRealization returns err tagged with realization i. If err is not
// already an *Error it is wrapped as one of the given kind and stage.
// Cancellation errors from a context are returned unchanged.
func AtRealization(err error, kind ErrorKind, stage string, i int) error {
	if canceled(err) {
		return err
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: kind, Stage: stage, Err: err}
	}
	return e.InRealization(i)
}

// AtCategory returns err tagged with category c. If err is not already an
// *Error it is wrapped as one of the given kind and stage. Cancellation
// errors from a context are returned unchanged.
func AtCategory(err error, kind ErrorKind, stage, c string) error {
	if canceled(err) {
		return err
	}
	var e *Error
	if !errors.As(err, &e) {
		e = &Error{Kind: kind, Stage: stage, Realization: -1, Err: err}
	}
	return e.InCategory(c)
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
