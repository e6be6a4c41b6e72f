/*
 * interfaces.go, part of protfun.
 *
 * Copyright 2024 The protfun authors.
 *
 * This program is free software; you can redistribute it and/or modify
 * it under the terms of the GNU Lesser General Public License as
 * published by the Free Software Foundation; either version 2.1 of the
 * License, or (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU Lesser General
 * Public License along with this program.  If not, see
 * <http://www.gnu.org/licenses/>.
 *
 */

package protfun

import (
	"errors"
	"fmt"
)

//Errors

// ErrorInt is the interface for errors that all packages in this library implement. The Decorate method allows to add and retrieve info from the
// error, without changing it's type or wrapping it around something else.
type ErrorInt interface {
	Error() string
	Decorate(string) []string
	Critical() bool
}

// The kinds of errors returned by the library. Use errors.Is to check for them.
var (
	// ErrShapeMismatch is returned when the arrays describing a molecule or a batch have inconsistent lengths.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidGridConfig is returned for non-positive grid sizes or extents.
	ErrInvalidGridConfig = errors.New("invalid grid configuration")
	// ErrNotCompiled is returned when a classifier is used before being compiled.
	ErrNotCompiled = errors.New("classifier not compiled")
)

// Error is the general error type of protfun. It carries the kind of error
// (one of the Err* values, or nil), a message, and a "decoration" with the
// names of the functions the error went through.
type Error struct {
	kind     error
	message  string
	deco     []string
	critical bool
}

// NewError returns an Error of the given kind, created by the function caller.
func NewError(kind error, caller, message string) Error {
	return Error{kind: kind, message: message, deco: []string{caller}, critical: true}
}

// Error returns a string with an error message.
func (err Error) Error() string {
	if err.kind == nil {
		return fmt.Sprintf("protfun/%s: %s", err.caller(), err.message)
	}
	return fmt.Sprintf("protfun/%s: %s: %s", err.caller(), err.kind, err.message)
}

func (err Error) caller() string {
	if len(err.deco) == 0 {
		return "?"
	}
	return err.deco[0]
}

// Decorate will add the dec string to the decoration slice of strings of the error,
// and return the resulting slice. An empty string just returns the current slice.
func (err Error) Decorate(dec string) []string {
	if dec != "" {
		err.deco = append(err.deco, dec)
	}
	return err.deco
}

// Critical returns whether the error is critical or it can be ignored
func (err Error) Critical() bool { return err.critical }

// Unwrap returns the kind of the error, so errors.Is works with the Err* values.
func (err Error) Unwrap() error { return err.kind }

// DegenerateMoleculeWarning reports a molecule without atoms. It is not
// fatal: the molecule gets an all-zero grid.
type DegenerateMoleculeWarning struct {
	Index int //position in the batch
	ID    string
}

func (w DegenerateMoleculeWarning) Error() string {
	return fmt.Sprintf("protfun: molecule %d (%s) has no atoms, its grid will be empty", w.Index, w.ID)
}

// Critical is always false for a warning.
func (w DegenerateMoleculeWarning) Critical() bool { return false }

// Decorate does nothing for a warning, it just returns the index of the
// molecule as a string.
func (w DegenerateMoleculeWarning) Decorate(string) []string {
	return []string{fmt.Sprintf("molecule %d", w.Index)}
}

// errDecorate adds the caller's name to the decoration of err, if err
// is an Error, and returns it.
func errDecorate(err error, caller string) error {
	e, ok := err.(Error)
	if !ok {
		return err
	}
	e.deco = append(e.deco[:len(e.deco):len(e.deco)], caller)
	return e
}
