/*
 * dataset.go, part of protfun.
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

// Package dataset stores the molecules and labels a classifier is trained on,
// splits them and serves them in minibatches.
package dataset

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/archive"
	"gonum.org/v1/gonum/mat"
)

// Source is a read-only set of labeled molecules.
type Source interface {
	Len() int
	Molecule(i int) *protfun.MoleculeRecord
	Labels(i int) []float64 //multi-hot, one value per class
	MaxAtoms() int          //atom count every molecule is padded to
	Classes() []string
}

// Memory is a Source kept in memory.
type Memory struct {
	records  []*protfun.MoleculeRecord
	labels   [][]float64
	classes  []string
	maxAtoms int
}

// NewMemory returns an empty dataset for the given classes.
func NewMemory(classes []string) *Memory {
	return &Memory{classes: append([]string(nil), classes...)}
}

// Add appends a molecule with its labels. The labels must have one value per class.
func (m *Memory) Add(r *protfun.MoleculeRecord, labels []float64) error {
	if r == nil {
		return protfun.NewError(protfun.ErrShapeMismatch, "dataset.Memory.Add", "nil record")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if len(labels) != len(m.classes) {
		return protfun.NewError(protfun.ErrShapeMismatch, "dataset.Memory.Add", fmt.Sprintf("%s: %d labels for %d classes", r.ID, len(labels), len(m.classes)))
	}
	if strings.ContainsAny(r.ID, ",\n") {
		return protfun.NewError(nil, "dataset.Memory.Add", fmt.Sprintf("invalid molecule id %q", r.ID))
	}
	m.records = append(m.records, r)
	m.labels = append(m.labels, append([]float64(nil), labels...))
	return nil
}

// SetMaxAtoms fixes the atom count molecules are padded to. 0 means the size of the
// largest molecule in the set.
func (m *Memory) SetMaxAtoms(n int) { m.maxAtoms = n }

func (m *Memory) Len() int                               { return len(m.records) }
func (m *Memory) Molecule(i int) *protfun.MoleculeRecord { return m.records[i] }
func (m *Memory) Labels(i int) []float64                 { return m.labels[i] }
func (m *Memory) Classes() []string                      { return m.classes }

func (m *Memory) MaxAtoms() int {
	if m.maxAtoms > 0 {
		return m.maxAtoms
	}
	n := 0
	for _, r := range m.records {
		if r.AtomsCount > n {
			n = r.AtomsCount
		}
	}
	return n
}

// Names of the arrays and metadata of a dataset file.
const (
	arrCoords   = "coords"
	arrCharges  = "charges"
	arrRadii    = "vdwradii"
	arrMask     = "atom_mask"
	arrNAtoms   = "n_atoms"
	arrLabels   = "labels"
	arrMaxAtoms = "max_atoms"
	keyClasses  = "classes"
	keyIDs      = "ids"
	keyCount    = "molecules"
)

// Write saves src into the archive file name, with all molecules padded to
// src.MaxAtoms().
func Write(name string, src Source) error {
	N, C := src.Len(), len(src.Classes())
	recs := make([]*protfun.MoleculeRecord, N)
	labels := make([]float64, 0, N*C)
	for i := range recs {
		recs[i] = src.Molecule(i)
		l := src.Labels(i)
		if len(l) != C {
			return protfun.NewError(protfun.ErrShapeMismatch, "dataset.Write", fmt.Sprintf("molecule %d: %d labels for %d classes", i, len(l), C))
		}
		labels = append(labels, l...)
	}
	b, err := protfun.NewAssembler(&protfun.AssemblerOptions{MaxAtoms: src.MaxAtoms()}).Assemble(recs)
	if err != nil {
		return err
	}
	if b.Amax == 0 {
		b.Amax = src.MaxAtoms()
	}
	natoms := make([]float64, N)
	for i, v := range b.NAtoms {
		natoms[i] = float64(v)
	}
	arrays := []archive.Array{
		{Name: arrCoords, Shape: []int{N, b.Amax, 3}, Data: b.Coords},
		{Name: arrCharges, Shape: []int{N, b.Amax}, Data: b.Charges},
		{Name: arrRadii, Shape: []int{N, b.Amax}, Data: b.VdwRadii},
		{Name: arrMask, Shape: []int{N, b.Amax}, Data: b.AtomMask},
		{Name: arrNAtoms, Shape: []int{N}, Data: natoms},
		{Name: arrLabels, Shape: []int{N, C}, Data: labels},
		{Name: arrMaxAtoms, Shape: []int{1}, Data: []float64{float64(src.MaxAtoms())}},
	}
	meta := map[string]string{
		keyClasses: strings.Join(src.Classes(), ","),
		keyIDs:     strings.Join(b.IDs, ","),
		keyCount:   strconv.Itoa(N),
	}
	if err := archive.Write(name, meta, arrays); err != nil {
		return protfun.NewError(nil, "dataset.Write", err.Error())
	}
	return nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// Open reads a dataset written by Write.
func Open(name string) (*Memory, error) {
	meta, arrays, err := archive.Read(name)
	if err != nil {
		return nil, protfun.NewError(nil, "dataset.Open", err.Error())
	}
	get := func(n string, rank int) (archive.Array, error) {
		a, ok := archive.Find(arrays, n)
		if !ok {
			return a, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Open", fmt.Sprintf("%s: no %s array", name, n))
		}
		if len(a.Shape) != rank {
			return a, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Open", fmt.Sprintf("%s: array %s has shape %v", name, n, a.Shape))
		}
		return a, nil
	}
	var a [7]archive.Array
	for i, n := range []string{arrCoords, arrCharges, arrRadii, arrMask, arrNAtoms, arrLabels, arrMaxAtoms} {
		rank := 2
		switch n {
		case arrCoords:
			rank = 3
		case arrNAtoms, arrMaxAtoms:
			rank = 1
		}
		if a[i], err = get(n, rank); err != nil {
			return nil, err
		}
	}
	coords, charges, radii, mask, natoms, labels, maxat := a[0], a[1], a[2], a[3], a[4], a[5], a[6]
	N, amax := coords.Shape[0], coords.Shape[1]
	classes := splitList(meta[keyClasses])
	var ids []string
	if N > 0 {
		ids = strings.Split(meta[keyIDs], ",")
	}
	C := len(classes)
	for _, v := range []archive.Array{charges, radii, mask} {
		if v.Shape[0] != N || v.Shape[1] != amax {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Open", fmt.Sprintf("%s: array %s has shape %v, expected [%d %d]", name, v.Name, v.Shape, N, amax))
		}
	}
	if natoms.Shape[0] != N || labels.Shape[0] != N || labels.Shape[1] != C || len(ids) != N || maxat.Shape[0] != 1 {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Open", fmt.Sprintf("%s: inconsistent molecule or class counts", name))
	}
	b := &protfun.Batch{
		B:        N,
		Amax:     amax,
		IDs:      ids,
		Coords:   coords.Data,
		Charges:  charges.Data,
		VdwRadii: radii.Data,
		AtomMask: mask.Data,
		NAtoms:   make([]int, N),
	}
	for i, v := range natoms.Data {
		b.NAtoms[i] = int(v)
	}
	m := NewMemory(classes)
	m.maxAtoms = int(maxat.Data[0])
	for i := 0; i < N; i++ {
		r := b.Molecule(i)
		if r.AtomsCount != b.NAtoms[i] {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Open", fmt.Sprintf("%s: molecule %s has %d masked atoms, %d expected", name, r.ID, r.AtomsCount, b.NAtoms[i]))
		}
		if err := m.Add(r, labels.Data[i*C:(i+1)*C]); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Load assembles the molecules ids of src into a batch, and returns it with a
// len(ids)xNClasses matrix of targets.
func Load(src Source, ids []int, a *protfun.Assembler) (*protfun.Batch, *mat.Dense, error) {
	if len(ids) == 0 || len(src.Classes()) == 0 {
		return nil, nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Load", "no molecules or no classes to load")
	}
	recs := make([]*protfun.MoleculeRecord, len(ids))
	targets := mat.NewDense(len(ids), len(src.Classes()), nil)
	for i, id := range ids {
		if id < 0 || id >= src.Len() {
			return nil, nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.Load", fmt.Sprintf("molecule %d out of range for %d molecules", id, src.Len()))
		}
		recs[i] = src.Molecule(id)
		targets.SetRow(i, src.Labels(id))
	}
	b, err := a.Assemble(recs)
	if err != nil {
		return nil, nil, err
	}
	return b, targets, nil
}
