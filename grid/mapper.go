/*
 * mapper.go, part of protfun.
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

package grid

import (
	"fmt"
	"math"
	"runtime"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/internal/workers"
	"go.uber.org/zap"
)

// Kappa is the exponent of the Gaussian used for atomic densities, exp(-Kappa d^2/r^2),
// from Grant and Pickup, J. Phys. Chem. 1995, 99, 3503.
const Kappa = 2.3442

// Options contains the options for a Mapper.
type Options struct {
	Size            int     //voxels per side
	Extent          float64 //side of the grid cube, in A
	UseESP          bool    //compute the electrostatic potential channel. Otherwise it is left in zeros.
	DensityCutoff   float64 //atomic densities are truncated at DensityCutoff times the vdW radius
	MinDistance     float64 //distances below this are taken as MinDistance for the potential, in A
	ScreeningLength float64 //Debye screening length in A, 0 for plain Coulomb
	Cpus            int     //gorutines to use, 0 means runtime.NumCPU()
	OnWarning       func(error)
	Logger          *zap.Logger
}

// DefaultOptions returns the default mapping options: 64 voxels of 1 A per side,
// with the electrostatic potential channel.
func DefaultOptions() *Options {
	return &Options{
		Size:          64,
		Extent:        64,
		UseESP:        true,
		DensityCutoff: 2.5,
		MinDistance:   0.5,
		Cpus:          runtime.NumCPU(),
	}
}

// Validate returns an error of kind protfun.ErrInvalidGridConfig if the options can't
// be used to build a grid.
func (o *Options) Validate() error {
	switch {
	case o.Size <= 0:
		return protfun.NewError(protfun.ErrInvalidGridConfig, "grid.Options.Validate", fmt.Sprintf("grid size must be positive, got %d", o.Size))
	case !(o.Extent > 0) || math.IsInf(o.Extent, 0):
		return protfun.NewError(protfun.ErrInvalidGridConfig, "grid.Options.Validate", fmt.Sprintf("grid extent must be positive, got %g", o.Extent))
	case !(o.DensityCutoff > 0):
		return protfun.NewError(protfun.ErrInvalidGridConfig, "grid.Options.Validate", fmt.Sprintf("density cutoff must be positive, got %g", o.DensityCutoff))
	case !(o.MinDistance > 0):
		return protfun.NewError(protfun.ErrInvalidGridConfig, "grid.Options.Validate", fmt.Sprintf("minimum distance must be positive, got %g", o.MinDistance))
	case o.ScreeningLength < 0 || math.IsNaN(o.ScreeningLength):
		return protfun.NewError(protfun.ErrInvalidGridConfig, "grid.Options.Validate", fmt.Sprintf("screening length can't be negative, got %g", o.ScreeningLength))
	}
	return nil
}

// Mapper computes the density and potential grids of batches of molecules.
// A Mapper is not modified by Compute, so it can be shared.
type Mapper struct {
	o   Options
	log *zap.Logger
}

// NewMapper returns a Mapper with the given options. A nil o means the default options.
func NewMapper(o *Options) (*Mapper, error) {
	if o == nil {
		o = DefaultOptions()
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	m := &Mapper{o: *o, log: o.Logger}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	return m, nil
}

// Options returns a copy of the options of the mapper.
func (m *Mapper) Options() Options {
	return m.o
}

// Compute is a shortcut to build a Mapper with the default options, except for the
// given ones, and use it on batch.
func Compute(batch *protfun.Batch, size int, extent float64, useESP bool) (*Grid, error) {
	o := DefaultOptions()
	o.Size = size
	o.Extent = extent
	o.UseESP = useESP
	m, err := NewMapper(o)
	if err != nil {
		return nil, err
	}
	return m.Compute(batch)
}

// atom is a real atom of a molecule, as used by the mapper.
type atom struct {
	x, y, z float64
	q       float64
	r       float64
}

// realAtoms returns the unmasked atoms of molecule b. The mask is read first, so
// the radii of padding atoms are never read.
func realAtoms(batch *protfun.Batch, b int) ([]atom, error) {
	ret := make([]atom, 0, batch.Amax)
	for i := 0; i < batch.Amax; i++ {
		if !batch.Mask(b, i) {
			continue
		}
		c := batch.Coord(b, i)
		a := atom{x: c[0], y: c[1], z: c[2], q: batch.Charge(b, i), r: batch.Radius(b, i)}
		if !finite(a.x, a.y, a.z, a.q) || !(a.r > 0) || math.IsInf(a.r, 0) {
			return nil, fmt.Errorf("atom %d of molecule %d has non-finite data or a non-positive radius", i, b)
		}
		ret = append(ret, a)
	}
	return ret, nil
}

func finite(v ...float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

func checkBatch(batch *protfun.Batch) error {
	if batch == nil {
		return fmt.Errorf("nil batch")
	}
	B, A := batch.B, batch.Amax
	if B < 0 || A < 0 || len(batch.Coords) != B*A*3 || len(batch.Charges) != B*A || len(batch.VdwRadii) != B*A ||
		len(batch.AtomMask) != B*A || len(batch.NAtoms) != B {
		return fmt.Errorf("batch arrays don't match its %dx%d shape", B, A)
	}
	return nil
}

// Compute returns the grids for all the molecules in the batch. Channel Density
// contains, for each voxel center, the sum of exp(-Kappa d^2/r^2) over the
// atoms closer than DensityCutoff*r. Channel Potential contains the sum of
// q*exp(-d/ScreeningLength)/max(d,MinDistance) over all atoms, or zeros if UseESP
// is false. Masked atoms contribute nothing. Molecules without atoms get
// all-zero grids and are reported through the OnWarning function, or logged.
func (m *Mapper) Compute(batch *protfun.Batch) (*Grid, error) {
	if err := checkBatch(batch); err != nil {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "grid.Mapper.Compute", err.Error())
	}
	atoms := make([][]atom, batch.B)
	var err error
	for b := range atoms {
		atoms[b], err = realAtoms(batch, b)
		if err != nil {
			return nil, protfun.NewError(nil, "grid.Mapper.Compute", err.Error())
		}
	}
	G := m.o.Size
	g := New(batch.B, NChannels, G, m.o.Extent)
	//one unit of work is one slab (fixed i) of one molecule, so no two
	//units write to the same voxel.
	workers.Parallel(batch.B*G, m.o.Cpus, func(u int) {
		b, i := u/G, u%G
		m.densitySlab(g, b, i, atoms[b])
		if m.o.UseESP {
			m.potentialSlab(g, b, i, atoms[b])
		}
	})
	for b := range atoms {
		if len(atoms[b]) == 0 {
			w := protfun.DegenerateMoleculeWarning{Index: b}
			if b < len(batch.IDs) {
				w.ID = batch.IDs[b]
			}
			m.warn(w)
		}
	}
	return g, nil
}

func (m *Mapper) warn(err error) {
	if m.o.OnWarning != nil {
		m.o.OnWarning(err)
		return
	}
	m.log.Warn("degenerate molecule", zap.Error(err))
}

// voxelRange returns the indexes of the first and last voxel centers within
// [c-rc, c+rc], clamped to the grid. first>last means no voxel is in range.
func (m *Mapper) voxelRange(c, rc float64) (int, int) {
	G := m.o.Size
	h := m.o.Extent / float64(G)
	half := m.o.Extent / 2
	first := int(math.Ceil((c-rc+half)/h - 0.5))
	last := int(math.Floor((c+rc+half)/h - 0.5))
	if first < 0 {
		first = 0
	}
	if last > G-1 {
		last = G - 1
	}
	return first, last
}

func (m *Mapper) densitySlab(g *Grid, b, i int, atoms []atom) {
	G := m.o.Size
	x := voxelCenter(i, G, m.o.Extent)
	ch := g.Channel(b, Density)
	for _, a := range atoms {
		rc := m.o.DensityCutoff * a.r
		dx := x - a.x
		if math.Abs(dx) > rc {
			continue
		}
		rc2 := rc * rc
		inv := Kappa / (a.r * a.r)
		j0, j1 := m.voxelRange(a.y, rc)
		k0, k1 := m.voxelRange(a.z, rc)
		for j := j0; j <= j1; j++ {
			dy := voxelCenter(j, G, m.o.Extent) - a.y
			for k := k0; k <= k1; k++ {
				dz := voxelCenter(k, G, m.o.Extent) - a.z
				d2 := dx*dx + dy*dy + dz*dz
				if d2 > rc2 {
					continue
				}
				ch[(i*G+j)*G+k] += math.Exp(-inv * d2)
			}
		}
	}
}

func (m *Mapper) potentialSlab(g *Grid, b, i int, atoms []atom) {
	G := m.o.Size
	x := voxelCenter(i, G, m.o.Extent)
	ch := g.Channel(b, Potential)
	floor := m.o.MinDistance
	lambda := m.o.ScreeningLength
	for _, a := range atoms {
		if a.q == 0 {
			continue
		}
		dx := x - a.x
		for j := 0; j < G; j++ {
			dy := voxelCenter(j, G, m.o.Extent) - a.y
			for k := 0; k < G; k++ {
				dz := voxelCenter(k, G, m.o.Extent) - a.z
				d := math.Sqrt(dx*dx + dy*dy + dz*dz)
				v := a.q / math.Max(d, floor)
				if lambda > 0 {
					v *= math.Exp(-d / lambda)
				}
				ch[(i*G+j)*G+k] += v
			}
		}
	}
}
