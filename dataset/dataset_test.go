/*
 * dataset_test.go, part of protfun.
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

package dataset

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func molecule(Te *testing.T, id string, n int, rng *rand.Rand) *protfun.MoleculeRecord {
	coords := make([]float64, 3*n)
	charges := make([]float64, n)
	radii := make([]float64, n)
	for i := range coords {
		coords[i] = 6 * (rng.Float64() - 0.5)
	}
	for i := range charges {
		charges[i] = rng.Float64() - 0.5
		radii[i] = 1.2 + rng.Float64()
	}
	r, err := protfun.NewMoleculeRecord(id, coords, charges, radii)
	require.NoError(Te, err)
	return r
}

func testSet(Te *testing.T) *Memory {
	rng := rand.New(rand.NewSource(3))
	m := NewMemory([]string{"GO:0004252", "GO:0004222"})
	for i, n := range []int{3, 7, 1, 5, 0} {
		labels := []float64{float64(i % 2), float64((i + 1) % 2)}
		require.NoError(Te, m.Add(molecule(Te, string(rune('A'+i))+"xyz", n, rng), labels))
	}
	return m
}

func TestMemory(Te *testing.T) {
	m := testSet(Te)
	assert.Equal(Te, 5, m.Len())
	assert.Equal(Te, 7, m.MaxAtoms())
	m.SetMaxAtoms(10)
	assert.Equal(Te, 10, m.MaxAtoms())
	assert.Equal(Te, []float64{0, 1}, m.Labels(0))

	rng := rand.New(rand.NewSource(1))
	err := m.Add(molecule(Te, "x", 2, rng), []float64{1})
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))
	assert.Error(Te, m.Add(molecule(Te, "a,b", 2, rng), []float64{1, 0}))
	assert.Error(Te, m.Add(nil, []float64{1, 0}))
}

func TestWriteOpen(Te *testing.T) {
	m := testSet(Te)
	m.SetMaxAtoms(9)
	name := filepath.Join(Te.TempDir(), "set.zst")
	require.NoError(Te, Write(name, m))
	r, err := Open(name)
	require.NoError(Te, err)
	assert.Equal(Te, m.Classes(), r.Classes())
	assert.Equal(Te, 9, r.MaxAtoms())
	require.Equal(Te, m.Len(), r.Len())
	for i := 0; i < m.Len(); i++ {
		a, b := m.Molecule(i), r.Molecule(i)
		assert.Equal(Te, a.ID, b.ID)
		assert.Equal(Te, a.AtomsCount, b.AtomsCount)
		if a.AtomsCount > 0 {
			assert.Equal(Te, a.Coords.RawData(), b.Coords.RawData())
			assert.Equal(Te, a.Charges, b.Charges)
			assert.Equal(Te, a.VdwRadii, b.VdwRadii)
		}
		assert.Equal(Te, m.Labels(i), r.Labels(i))
	}

	empty := filepath.Join(Te.TempDir(), "empty.gz")
	require.NoError(Te, Write(empty, NewMemory([]string{"a"})))
	e, err := Open(empty)
	require.NoError(Te, err)
	assert.Equal(Te, 0, e.Len())
	assert.Equal(Te, []string{"a"}, e.Classes())
}

func TestWriteTooLarge(Te *testing.T) {
	m := testSet(Te)
	m.SetMaxAtoms(4)
	err := Write(filepath.Join(Te.TempDir(), "x.zst"), m)
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))
}

func TestSplit(Te *testing.T) {
	s, err := Split(100, 0.1, 0.2, 7)
	require.NoError(Te, err)
	assert.Len(Te, s.Test, 10)
	assert.Len(Te, s.Val, 20)
	assert.Len(Te, s.Train, 70)
	all := append(append(append([]int{}, s.Train...), s.Val...), s.Test...)
	sort.Ints(all)
	for i, v := range all {
		require.Equal(Te, i, v)
	}
	s2, err := Split(100, 0.1, 0.2, 7)
	require.NoError(Te, err)
	assert.Equal(Te, s, s2)

	_, err = Split(10, 0.6, 0.6, 1)
	assert.Error(Te, err)
	_, err = Split(10, -0.1, 0, 1)
	assert.Error(Te, err)
	s, err = Split(0, 0.1, 0.1, 1)
	require.NoError(Te, err)
	assert.Empty(Te, s.Train)
}

func TestBatches(Te *testing.T) {
	ids := []int{0, 1, 2, 3, 4, 5, 6}
	b := Batches(ids, 3, nil)
	assert.Equal(Te, [][]int{{0, 1, 2}, {3, 4, 5}, {6}}, b)
	assert.Equal(Te, [][]int{ids}, Batches(ids, 0, nil))
	assert.Nil(Te, Batches(nil, 3, nil))

	sh := Batches(ids, 2, rand.New(rand.NewSource(4)))
	require.Len(Te, sh, 4)
	var all []int
	for _, v := range sh {
		all = append(all, v...)
	}
	sort.Ints(all)
	assert.Equal(Te, ids, all)
	assert.Equal(Te, []int{0, 1, 2, 3, 4, 5, 6}, ids)
}

func TestLoad(Te *testing.T) {
	m := testSet(Te)
	b, targets, err := Load(m, []int{1, 3}, protfun.NewAssembler(nil))
	require.NoError(Te, err)
	assert.Equal(Te, 2, b.Len())
	assert.Equal(Te, 7, b.Amax)
	assert.Equal(Te, []int{7, 5}, b.NAtoms)
	assert.Equal(Te, m.Labels(3), targets.RawRowView(1))
	_, _, err = Load(m, []int{9}, protfun.NewAssembler(nil))
	assert.Error(Te, err)
	_, _, err = Load(m, nil, protfun.NewAssembler(nil))
	assert.Error(Te, err)
}

func TestDescribe(Te *testing.T) {
	m := testSet(Te)
	s := Describe(m, nil)
	assert.Equal(Te, 5, s.Molecules)
	assert.InDelta(Te, 16.0/5, s.MeanAtoms, 1e-12)
	assert.Equal(Te, 0, s.MinAtoms)
	assert.Equal(Te, 7, s.MaxAtoms)
	assert.InDeltaSlice(Te, []float64{0.4, 0.6}, s.Positives, 1e-12)
	assert.Len(Te, s.Fields(), 6)

	one := Describe(m, []int{1})
	assert.Equal(Te, 0.0, one.StdAtoms)
	assert.Equal(Te, 0, Describe(m, []int{}).Molecules)
}

func TestGridCache(Te *testing.T) {
	m := testSet(Te)
	o := grid.DefaultOptions()
	o.Size = 6
	o.Extent = 12
	o.Cpus = 2
	o.OnWarning = func(error) {}
	mapper, err := grid.NewMapper(o)
	require.NoError(Te, err)
	dir := Te.TempDir()
	c, err := NewGridCache(dir, mapper, nil)
	require.NoError(Te, err)

	ids := []int{2, 0, 4}
	g, err := c.Grids(m, ids)
	require.NoError(Te, err)
	assert.Equal(Te, 0, c.Hits)
	b, _, err := Load(m, ids, protfun.NewAssembler(nil))
	require.NoError(Te, err)
	direct, err := mapper.Compute(b)
	require.NoError(Te, err)
	assert.InDeltaSlice(Te, direct.Data, g.Data, 1e-12)

	again, err := c.Grids(m, []int{0, 2})
	require.NoError(Te, err)
	assert.Equal(Te, 2, c.Hits)
	assert.Equal(Te, g.Molecules([]int{1, 0}).Data, again.Data)

	//other options don't reuse the files
	o.Extent = 16
	other, err := grid.NewMapper(o)
	require.NoError(Te, err)
	c2, err := NewGridCache(dir, other, nil)
	require.NoError(Te, err)
	_, err = c2.Grids(m, []int{0})
	require.NoError(Te, err)
	assert.Equal(Te, 0, c2.Hits)

	_, err = NewGridCache(dir, nil, nil)
	assert.True(Te, errors.Is(err, protfun.ErrInvalidGridConfig))
}

func TestGridCacheStale(Te *testing.T) {
	m := testSet(Te)
	o := grid.DefaultOptions()
	o.Size = 6
	o.Extent = 12
	o.Cpus = 2
	o.OnWarning = func(error) {}
	mapper, err := grid.NewMapper(o)
	require.NoError(Te, err)
	c, err := NewGridCache(Te.TempDir(), mapper, nil)
	require.NoError(Te, err)
	_, err = c.Grids(m, []int{0, 1})
	require.NoError(Te, err)

	//same IDs, other atoms
	rng := rand.New(rand.NewSource(11))
	m2 := NewMemory(m.Classes())
	for i, n := range []int{3, 8} {
		require.NoError(Te, m2.Add(molecule(Te, m.Molecule(i).ID, n, rng), m.Labels(i)))
	}
	g, err := c.Grids(m2, []int{0, 1})
	require.NoError(Te, err)
	assert.Equal(Te, 0, c.Hits)
	b, _, err := Load(m2, []int{0, 1}, protfun.NewAssembler(nil))
	require.NoError(Te, err)
	direct, err := mapper.Compute(b)
	require.NoError(Te, err)
	assert.InDeltaSlice(Te, direct.Data, g.Data, 1e-12)
	_, err = c.Grids(m2, []int{1})
	require.NoError(Te, err)
	assert.Equal(Te, 1, c.Hits)

	//a damaged file is recomputed, not fatal
	require.NoError(Te, os.WriteFile(c.path(m2, 0), []byte("** 1\n# grid 2 4611686018427387904 3\n"), 0o644))
	var again *grid.Grid
	require.NotPanics(Te, func() { again, err = c.Grids(m2, []int{0}) })
	require.NoError(Te, err)
	assert.Equal(Te, 1, c.Hits)
	assert.Equal(Te, g.Molecules([]int{0}).Data, again.Data)
}
