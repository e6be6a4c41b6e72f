/*
 * input.go, part of protfun.
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

package classifier

import (
	"fmt"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/grid"
)

// Input is the input of a training or evaluation step. It is either a
// MoleculeInput, mapped to grids on the fly, or a GridInput with precomputed grids.
type Input interface {
	// Len returns the number of molecules.
	Len() int
	input()
}

// MoleculeInput is a batch of molecules.
type MoleculeInput struct {
	Batch *protfun.Batch
}

// Len returns the number of molecules in the batch, 0 if there is no batch.
func (m MoleculeInput) Len() int {
	if m.Batch == nil {
		return 0
	}
	return m.Batch.Len()
}

func (MoleculeInput) input() {}

// GridInput is a batch of precomputed grids.
type GridInput struct {
	Grid *grid.Grid
}

// Len returns the number of molecules in the grid, 0 if there is no grid.
func (g GridInput) Len() int {
	if g.Grid == nil {
		return 0
	}
	return g.Grid.B
}

func (GridInput) input() {}

// ToGrid returns the grids for in. Molecules are mapped with m, which can be nil
// for a GridInput.
func ToGrid(in Input, m *grid.Mapper) (*grid.Grid, error) {
	switch v := in.(type) {
	case MoleculeInput:
		if v.Batch == nil {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "classifier.ToGrid", "nil batch")
		}
		if m == nil {
			return nil, protfun.NewError(nil, "classifier.ToGrid", "a mapper is needed for molecule inputs")
		}
		return m.Compute(v.Batch)
	case GridInput:
		if v.Grid == nil {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "classifier.ToGrid", "nil grid")
		}
		return v.Grid, nil
	}
	return nil, protfun.NewError(nil, "classifier.ToGrid", fmt.Sprintf("unknown input type %T", in))
}
