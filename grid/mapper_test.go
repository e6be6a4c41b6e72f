/*
 * mapper_test.go, part of protfun.
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
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/rmera/protfun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(Te *testing.T, id string, coords, charges, radii []float64) *protfun.MoleculeRecord {
	r, err := protfun.NewMoleculeRecord(id, coords, charges, radii)
	require.NoError(Te, err)
	return r
}

// randomRecord returns a molecule with n atoms within maxr A of the origin.
func randomRecord(Te *testing.T, id string, n int, maxr, radius float64, rng *rand.Rand) *protfun.MoleculeRecord {
	coords := make([]float64, 0, 3*n)
	charges := make([]float64, n)
	radii := make([]float64, n)
	for len(coords) < 3*n {
		x, y, z := (2*rng.Float64()-1)*maxr, (2*rng.Float64()-1)*maxr, (2*rng.Float64()-1)*maxr
		if x*x+y*y+z*z > maxr*maxr {
			continue
		}
		coords = append(coords, x, y, z)
	}
	for i := range charges {
		charges[i] = rng.Float64() - 0.5
		radii[i] = radius
	}
	return record(Te, id, coords, charges, radii)
}

func assemble(Te *testing.T, o *protfun.AssemblerOptions, recs ...*protfun.MoleculeRecord) *protfun.Batch {
	b, err := protfun.NewAssembler(o).Assemble(recs)
	require.NoError(Te, err)
	return b
}

func mapper(Te *testing.T, size int, extent float64, esp bool) *Mapper {
	o := DefaultOptions()
	o.Size, o.Extent, o.UseESP = size, extent, esp
	m, err := NewMapper(o)
	require.NoError(Te, err)
	return m
}

func TestInvalidConfig(Te *testing.T) {
	rng := rand.New(rand.NewSource(1))
	batch := assemble(Te, nil, randomRecord(Te, "a", 5, 2, 1.5, rng))
	for _, c := range []struct {
		size   int
		extent float64
	}{{0, 10}, {-3, 10}, {8, 0}, {8, -1}, {8, math.NaN()}} {
		_, err := Compute(batch, c.size, c.extent, true)
		require.Error(Te, err)
		assert.True(Te, errors.Is(err, protfun.ErrInvalidGridConfig), "%v", c)
	}
	o := DefaultOptions()
	o.MinDistance = 0
	_, err := NewMapper(o)
	assert.True(Te, errors.Is(err, protfun.ErrInvalidGridConfig))
}

func TestComputeShape(Te *testing.T) {
	rng := rand.New(rand.NewSource(2))
	batch := assemble(Te, nil, randomRecord(Te, "a", 30, 5, 1.7, rng), randomRecord(Te, "b", 12, 5, 1.5, rng))
	g, err := mapper(Te, 12, 16, true).Compute(batch)
	require.NoError(Te, err)
	assert.Equal(Te, []int{2, 2, 12, 12, 12}, g.Shape())
	assert.Len(Te, g.Data, 2*2*12*12*12)
	assert.True(Te, g.Finite())
	assert.Greater(Te, g.MoleculeSum(0, Density), g.MoleculeSum(1, Density))
	assert.InDelta(Te, g.Sum(Density), g.MoleculeSum(0, Density)+g.MoleculeSum(1, Density), 1e-9)

	//an atom sitting on a voxel center must not produce infinities
	on := record(Te, "on", []float64{g.Center(3), g.Center(4), g.Center(5)}, []float64{2}, []float64{1})
	g2, err := mapper(Te, 12, 16, true).Compute(assemble(Te, nil, on))
	require.NoError(Te, err)
	assert.True(Te, g2.Finite())
	assert.InDelta(Te, 1.0, g2.At(0, Density, 3, 4, 5), 1e-12)
	assert.InDelta(Te, 2/0.5, g2.At(0, Potential, 3, 4, 5), 1e-12)

	_, err = mapper(Te, 12, 16, true).Compute(&protfun.Batch{B: 1, Amax: 2})
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))
}

func TestNoESP(Te *testing.T) {
	rng := rand.New(rand.NewSource(3))
	batch := assemble(Te, nil, randomRecord(Te, "a", 10, 3, 1.5, rng))
	g, err := mapper(Te, 8, 12, false).Compute(batch)
	require.NoError(Te, err)
	for _, v := range g.Channel(0, Potential) {
		require.Equal(Te, 0.0, v)
	}
	assert.Greater(Te, g.MoleculeSum(0, Density), 0.0)
}

func TestDeterministic(Te *testing.T) {
	rng := rand.New(rand.NewSource(4))
	batch := assemble(Te, nil, randomRecord(Te, "a", 40, 6, 1.7, rng), randomRecord(Te, "b", 25, 6, 1.5, rng))
	o := DefaultOptions()
	o.Size, o.Extent, o.Cpus = 10, 16, 1
	serial, err := NewMapper(o)
	require.NoError(Te, err)
	o.Cpus = 4
	conc, err := NewMapper(o)
	require.NoError(Te, err)
	g1, err := serial.Compute(batch)
	require.NoError(Te, err)
	g2, err := conc.Compute(batch)
	require.NoError(Te, err)
	assert.Equal(Te, g1.Data, g2.Data)
}

func TestMaskedAtomsIgnored(Te *testing.T) {
	rng := rand.New(rand.NewSource(5))
	a := randomRecord(Te, "a", 8, 3, 1.5, rng)
	b := randomRecord(Te, "b", 3, 3, 1.2, rng)
	m := mapper(Te, 10, 12, true)
	small, err := m.Compute(assemble(Te, nil, a, b))
	require.NoError(Te, err)
	padded := assemble(Te, &protfun.AssemblerOptions{MaxAtoms: 20}, a, b)
	//garbage in the padding, it must never be read
	for mol := 0; mol < padded.B; mol++ {
		for i := padded.NAtoms[mol]; i < padded.Amax; i++ {
			c := padded.Coord(mol, i)
			c[0], c[1], c[2] = 0.1, 0.2, 0.3
			padded.Charges[mol*padded.Amax+i] = 5
			padded.VdwRadii[mol*padded.Amax+i] = 0
		}
	}
	big, err := m.Compute(padded)
	require.NoError(Te, err)
	assert.Equal(Te, small.Data, big.Data)
}

func TestZeroAtoms(Te *testing.T) {
	rng := rand.New(rand.NewSource(6))
	empty := record(Te, "empty", nil, nil, nil)
	var warnings []error
	o := DefaultOptions()
	o.Size, o.Extent = 8, 10
	o.OnWarning = func(err error) { warnings = append(warnings, err) }
	m, err := NewMapper(o)
	require.NoError(Te, err)
	g, err := m.Compute(assemble(Te, nil, randomRecord(Te, "a", 4, 2, 1.5, rng), empty))
	require.NoError(Te, err)
	for _, c := range []int{Density, Potential} {
		for _, v := range g.Channel(1, c) {
			require.Equal(Te, 0.0, v)
		}
	}
	assert.Greater(Te, g.MoleculeSum(0, Density), 0.0)
	require.Len(Te, warnings, 1)
	var w protfun.DegenerateMoleculeWarning
	require.True(Te, errors.As(warnings[0], &w))
	assert.Equal(Te, 1, w.Index)
	assert.Equal(Te, "empty", w.ID)

	//a batch where nothing has atoms
	g, err = m.Compute(assemble(Te, nil, empty))
	require.NoError(Te, err)
	assert.Equal(Te, 0.0, g.Sum(Density))
}

// voxelOf returns the index of the voxel that contains the coordinate x.
func voxelOf(g *Grid, x float64) int {
	return int(math.Floor((x + g.Extent/2) / g.Spacing()))
}

// isLocalMax checks that voxel (i,j,k) of channel c is not smaller than any of its 26 neighbors.
func isLocalMax(g *Grid, c, i, j, k int) bool {
	v := g.At(0, c, i, j, k)
	for di := -1; di <= 1; di++ {
		for dj := -1; dj <= 1; dj++ {
			for dk := -1; dk <= 1; dk++ {
				a, b, d := i+di, j+dj, k+dk
				if a < 0 || b < 0 || d < 0 || a >= g.G || b >= g.G || d >= g.G {
					continue
				}
				if g.At(0, c, a, b, d) > v+1e-12 {
					return false
				}
			}
		}
	}
	return true
}

func TestTwoAtoms(Te *testing.T) {
	coords := []float64{0, 0, 0, 1, 0, 0}
	m := mapper(Te, 8, 4, true)
	g, err := m.Compute(assemble(Te, nil, record(Te, "pair", coords, []float64{1, -1}, []float64{1, 1})))
	require.NoError(Te, err)
	require.True(Te, g.Finite())

	//voxel centers are at -1.75,-1.25...1.75. Each atom is surrounded by 8 voxels, the
	//density maximum must be one of those, and a local maximum of the grid.
	for _, x := range []float64{0, 1} {
		best, bi, bj, bk := -1.0, 0, 0, 0
		for _, i := range []int{voxelOf(g, x-0.25), voxelOf(g, x+0.25)} {
			for _, j := range []int{3, 4} {
				for _, k := range []int{3, 4} {
					if v := g.At(0, Density, i, j, k); v > best {
						best, bi, bj, bk = v, i, j, k
					}
				}
			}
		}
		assert.True(Te, isLocalMax(g, Density, bi, bj, bk), "atom at x=%g", x)
		assert.InDelta(Te, x, g.Center(bi), g.Spacing())
	}

	//potential: positive around the first atom, negative around the second one
	for _, j := range []int{3, 4} {
		for _, k := range []int{3, 4} {
			assert.Greater(Te, g.At(0, Potential, 3, j, k), 0.0)
			assert.Greater(Te, g.At(0, Potential, 4, j, k), 0.0)
			assert.Less(Te, g.At(0, Potential, 5, j, k), 0.0)
			assert.Less(Te, g.At(0, Potential, 6, j, k), 0.0)
		}
	}
	//and decaying away from each atom
	for i := 3; i > 0; i-- {
		assert.Greater(Te, g.At(0, Potential, i, 4, 4), g.At(0, Potential, i-1, 4, 4))
	}
	for i := 6; i < 7; i++ {
		assert.Less(Te, g.At(0, Potential, i, 4, 4), g.At(0, Potential, i+1, 4, 4))
	}

	//swapping the charges flips the sign of the potential and leaves the density alone
	sw, err := m.Compute(assemble(Te, nil, record(Te, "swapped", coords, []float64{-1, 1}, []float64{1, 1})))
	require.NoError(Te, err)
	for i, v := range g.Channel(0, Potential) {
		require.InDelta(Te, -v, sw.Channel(0, Potential)[i], 1e-12)
	}
	assert.Equal(Te, g.Channel(0, Density), sw.Channel(0, Density))
}

func TestScreening(Te *testing.T) {
	rec := record(Te, "ion", []float64{0, 0, 0}, []float64{1}, []float64{1.5})
	o := DefaultOptions()
	o.Size, o.Extent = 8, 8
	plain, err := NewMapper(o)
	require.NoError(Te, err)
	o.ScreeningLength = 2
	screened, err := NewMapper(o)
	require.NoError(Te, err)
	b := assemble(Te, nil, rec)
	gp, err := plain.Compute(b)
	require.NoError(Te, err)
	gs, err := screened.Compute(b)
	require.NoError(Te, err)
	for i, v := range gp.Channel(0, Potential) {
		s := gs.Channel(0, Potential)[i]
		assert.Greater(Te, s, 0.0)
		assert.Less(Te, s, v)
	}
}
