/*
 * record.go, part of protfun.
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
	"fmt"
	"math"

	"github.com/rmera/protfun/v3"
)

// MoleculeRecord contains the atoms of one molecule: their coordinates (one row per
// atom, in A), partial charges and van der Waals radii. All three share
// the leading dimension, AtomsCount.
type MoleculeRecord struct {
	ID         string
	AtomsCount int
	Coords     *v3.Matrix
	Charges    []float64
	VdwRadii   []float64
}

// NewMoleculeRecord builds a record from flat coordinates (x1,y1,z1,x2...) and the
// per-atom charges and radii. The slices are used, not copied. It returns an
// error of kind ErrShapeMismatch if the lengths are inconsistent.
func NewMoleculeRecord(id string, coords, charges, radii []float64) (*MoleculeRecord, error) {
	if len(coords)%3 != 0 {
		return nil, NewError(ErrShapeMismatch, "NewMoleculeRecord", fmt.Sprintf("%s: %d coordinates is not a multiple of 3", id, len(coords)))
	}
	c, err := v3.NewMatrix(coords)
	if err != nil {
		return nil, NewError(ErrShapeMismatch, "NewMoleculeRecord", err.Error())
	}
	r := &MoleculeRecord{ID: id, AtomsCount: len(coords) / 3, Coords: c, Charges: charges, VdwRadii: radii}
	if err := r.Validate(); err != nil {
		return nil, errDecorate(err, "NewMoleculeRecord")
	}
	return r, nil
}

// Validate checks that all the arrays of the record have AtomsCount elements,
// and that radii are positive and everything is finite.
func (M *MoleculeRecord) Validate() error {
	if M.Coords.NVecs() != M.AtomsCount || len(M.Charges) != M.AtomsCount || len(M.VdwRadii) != M.AtomsCount {
		return NewError(ErrShapeMismatch, "MoleculeRecord.Validate", fmt.Sprintf("%s: %d atoms but %d coordinates, %d charges and %d radii",
			M.ID, M.AtomsCount, M.Coords.NVecs(), len(M.Charges), len(M.VdwRadii)))
	}
	for i, v := range M.Coords.RawData() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return NewError(nil, "MoleculeRecord.Validate", fmt.Sprintf("%s: non-finite coordinate for atom %d", M.ID, i/3))
		}
	}
	for i := 0; i < M.AtomsCount; i++ {
		if r := M.VdwRadii[i]; !(r > 0) || math.IsInf(r, 0) {
			return NewError(nil, "MoleculeRecord.Validate", fmt.Sprintf("%s: invalid radius %g for atom %d", M.ID, r, i))
		}
		if q := M.Charges[i]; math.IsNaN(q) || math.IsInf(q, 0) {
			return NewError(nil, "MoleculeRecord.Validate", fmt.Sprintf("%s: non-finite charge for atom %d", M.ID, i))
		}
	}
	return nil
}

// Center translates the molecule so its centroid is at the origin. Records
// without atoms are left as they are.
func (M *MoleculeRecord) Center() {
	c, err := M.Coords.Centroid()
	if err != nil {
		return
	}
	M.Coords.SubVec(M.Coords, c)
}

// Centered returns true if the centroid of the molecule is at the origin
// within tol A. Empty molecules are considered centered.
func (M *MoleculeRecord) Centered(tol float64) bool {
	c, err := M.Coords.Centroid()
	if err != nil {
		return true
	}
	for _, v := range c.RawRowView(0) {
		if math.Abs(v) > tol {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the record.
func (M *MoleculeRecord) Clone() *MoleculeRecord {
	return &MoleculeRecord{
		ID:         M.ID,
		AtomsCount: M.AtomsCount,
		Coords:     M.Coords.Clone(),
		Charges:    append([]float64(nil), M.Charges...),
		VdwRadii:   append([]float64(nil), M.VdwRadii...),
	}
}
