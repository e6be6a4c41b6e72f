/*
 * batch.go, part of protfun.
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

	"github.com/rmera/protfun/v3"
)

// PaddingRadius is the van der Waals radius given to padding atoms. It is never
// used to compute anything, but it keeps the radii array free of zeros.
const PaddingRadius = 1.0

// Batch is a set of molecules padded to the same number of atoms, Amax.
// The arrays are flat and row-major: Coords is [B][Amax][3], the others
// are [B][Amax]. AtomMask is 1 for real atoms and 0 for padding, and
// AtomMask[b*Amax+i]==1 iff i<NAtoms[b].
type Batch struct {
	B        int
	Amax     int
	IDs      []string
	Coords   []float64
	Charges  []float64
	VdwRadii []float64
	AtomMask []float64
	NAtoms   []int
}

// Len returns the number of molecules in the batch.
func (b *Batch) Len() int {
	return b.B
}

// Coord returns a slice with the coordinates of atom i in molecule m. The slice
// shares storage with the batch.
func (b *Batch) Coord(m, i int) []float64 {
	b.check(m, i)
	s := (m*b.Amax + i) * 3
	return b.Coords[s : s+3 : s+3]
}

// Charge returns the charge of atom i in molecule m.
func (b *Batch) Charge(m, i int) float64 {
	b.check(m, i)
	return b.Charges[m*b.Amax+i]
}

// Radius returns the van der Waals radius of atom i in molecule m.
func (b *Batch) Radius(m, i int) float64 {
	b.check(m, i)
	return b.VdwRadii[m*b.Amax+i]
}

// Mask returns true if atom i of molecule m is a real atom.
func (b *Batch) Mask(m, i int) bool {
	b.check(m, i)
	return b.AtomMask[m*b.Amax+i] != 0
}

func (b *Batch) check(m, i int) {
	if m < 0 || m >= b.B || i < 0 || i >= b.Amax {
		panic(fmt.Sprintf("protfun: atom (%d,%d) out of range for a batch of %dx%d", m, i, b.B, b.Amax))
	}
}

// Molecule returns a new record with the real (unmasked) atoms of molecule m.
func (b *Batch) Molecule(m int) *MoleculeRecord {
	if m < 0 || m >= b.B {
		panic(fmt.Sprintf("protfun: molecule %d out of range for a batch of %d", m, b.B))
	}
	n := 0
	for i := 0; i < b.Amax; i++ {
		if b.Mask(m, i) {
			n++
		}
	}
	coords := make([]float64, 0, 3*n)
	charges := make([]float64, 0, n)
	radii := make([]float64, 0, n)
	for i := 0; i < b.Amax; i++ {
		if !b.Mask(m, i) {
			continue
		}
		coords = append(coords, b.Coord(m, i)...)
		charges = append(charges, b.Charge(m, i))
		radii = append(radii, b.Radius(m, i))
	}
	c, _ := v3.NewMatrix(coords) //can't fail, the length is a multiple of 3
	id := ""
	if m < len(b.IDs) {
		id = b.IDs[m]
	}
	return &MoleculeRecord{ID: id, AtomsCount: n, Coords: c, Charges: charges, VdwRadii: radii}
}

// Clone returns a deep copy of the batch.
func (b *Batch) Clone() *Batch {
	return &Batch{
		B:        b.B,
		Amax:     b.Amax,
		IDs:      append([]string(nil), b.IDs...),
		Coords:   append([]float64(nil), b.Coords...),
		Charges:  append([]float64(nil), b.Charges...),
		VdwRadii: append([]float64(nil), b.VdwRadii...),
		AtomMask: append([]float64(nil), b.AtomMask...),
		NAtoms:   append([]int(nil), b.NAtoms...),
	}
}

// AssemblerOptions contains the options for an Assembler.
type AssemblerOptions struct {
	//MaxAtoms is the global number of atoms every molecule is padded to. If 0,
	//each batch is padded to its largest molecule.
	MaxAtoms int
}

// DefaultAssemblerOptions returns the default options, which pad each batch to its
// largest molecule.
func DefaultAssemblerOptions() *AssemblerOptions {
	return &AssemblerOptions{}
}

// Assembler builds fixed-shape batches from molecules with different numbers of atoms.
type Assembler struct {
	o AssemblerOptions
}

// NewAssembler returns an Assembler with the given options. A nil o means the default options.
func NewAssembler(o *AssemblerOptions) *Assembler {
	if o == nil {
		o = DefaultAssemblerOptions()
	}
	return &Assembler{o: *o}
}

// MaxAtoms returns the global atom count the assembler pads to, 0 if it
// pads each batch to its largest molecule.
func (A *Assembler) MaxAtoms() int {
	return A.o.MaxAtoms
}

// Assemble copies the real atoms of each record into a padded Batch. Coordinates
// and charges of padding atoms are 0, radii are PaddingRadius. It returns an
// error of kind ErrShapeMismatch if a record has inconsistent arrays or
// more atoms than the configured MaxAtoms. The records are not modified.
func (A *Assembler) Assemble(recs []*MoleculeRecord) (*Batch, error) {
	amax := A.o.MaxAtoms
	for i, r := range recs {
		if r == nil {
			return nil, NewError(ErrShapeMismatch, "Assembler.Assemble", fmt.Sprintf("record %d is nil", i))
		}
		if err := r.Validate(); err != nil {
			return nil, errDecorate(err, "Assembler.Assemble")
		}
		if A.o.MaxAtoms > 0 && r.AtomsCount > A.o.MaxAtoms {
			return nil, NewError(ErrShapeMismatch, "Assembler.Assemble", fmt.Sprintf("%s: %d atoms, more than the maximum %d", r.ID, r.AtomsCount, A.o.MaxAtoms))
		}
		if A.o.MaxAtoms <= 0 && r.AtomsCount > amax {
			amax = r.AtomsCount
		}
	}
	B := len(recs)
	b := &Batch{
		B:        B,
		Amax:     amax,
		IDs:      make([]string, B),
		Coords:   make([]float64, B*amax*3),
		Charges:  make([]float64, B*amax),
		VdwRadii: make([]float64, B*amax),
		AtomMask: make([]float64, B*amax),
		NAtoms:   make([]int, B),
	}
	for i := range b.VdwRadii {
		b.VdwRadii[i] = PaddingRadius
	}
	for m, r := range recs {
		b.IDs[m] = r.ID
		b.NAtoms[m] = r.AtomsCount
		off := m * amax
		copy(b.Coords[off*3:], r.Coords.RawData())
		copy(b.Charges[off:], r.Charges)
		copy(b.VdwRadii[off:], r.VdwRadii)
		for i := 0; i < r.AtomsCount; i++ {
			b.AtomMask[off+i] = 1
		}
	}
	return b, nil
}
