/*
 * train_test.go, part of protfun.
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

package train

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/checkpoint"
	"github.com/rmera/protfun/classifier"
	"github.com/rmera/protfun/dataset"
	"github.com/rmera/protfun/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// testSet returns n molecules of 2 to 5 atoms, labeled by the sign of their first
// atom's x and y coordinates.
func testSet(Te *testing.T, n int) *dataset.Memory {
	rng := rand.New(rand.NewSource(11))
	m := dataset.NewMemory([]string{"GO:1", "GO:2"})
	for i := 0; i < n; i++ {
		na := 2 + rng.Intn(4)
		coords := make([]float64, 3*na)
		charges := make([]float64, na)
		radii := make([]float64, na)
		for j := range coords {
			coords[j] = 4 * (rng.Float64() - 0.5)
		}
		for j := range charges {
			charges[j] = rng.Float64() - 0.5
			radii[j] = 1.5
		}
		r, err := protfun.NewMoleculeRecord(string(rune('a'+i)), coords, charges, radii)
		require.NoError(Te, err)
		labels := []float64{0, 0}
		if coords[0] > 0 {
			labels[0] = 1
		}
		if coords[1] > 0 {
			labels[1] = 1
		}
		require.NoError(Te, m.Add(r, labels))
	}
	return m
}

func testMapper(Te *testing.T) *grid.Mapper {
	o := grid.DefaultOptions()
	o.Size, o.Extent, o.UseESP, o.Cpus = 6, 12, false, 2
	m, err := grid.NewMapper(o)
	require.NoError(Te, err)
	return m
}

func compiled(Te *testing.T, m *grid.Mapper) *classifier.Classifier {
	o := classifier.DefaultOptions()
	o.Mapper = m
	o.LearningRate = 1e-3
	c, err := classifier.New(o)
	require.NoError(Te, err)
	require.NoError(Te, c.Compile(classifier.LinearNet, []int{2, 6, 6, 6}))
	return c
}

func trainer(Te *testing.T, o *Options, splits dataset.Splits) (*Trainer, *checkpoint.Store, *classifier.Classifier) {
	store, err := checkpoint.NewStore(Te.TempDir(), "test", nil)
	require.NoError(Te, err)
	c := compiled(Te, testMapper(Te))
	t, err := New(c, testSet(Te, 8), splits, NewMonitor(store, nil), o)
	require.NoError(Te, err)
	return t, store, c
}

func TestRun(Te *testing.T) {
	o := DefaultOptions()
	o.Epochs, o.BatchSize = 3, 3
	t, store, c := trainer(Te, o, dataset.Splits{Train: []int{0, 1, 2, 3, 4}, Val: []int{5, 6}, Test: []int{7}})
	h, err := t.Run(context.Background())
	require.NoError(Te, err)
	require.Len(Te, h.Epochs, 3)
	assert.Equal(Te, 3, c.Epochs())
	assert.Equal(Te, classifier.Trained, c.State())
	for i, e := range h.Epochs {
		assert.Equal(Te, i+1, e.Epoch)
		assert.True(Te, e.HasValidation)
		assert.False(Te, math.IsNaN(e.TrainLoss) || math.IsNaN(e.ValLoss))
		assert.Len(Te, e.ValLosses, 2)
		assert.GreaterOrEqual(Te, e.ValAccuracy, 0.0)
		assert.LessOrEqual(Te, e.ValAccuracy, 1.0)
	}
	//the first epoch always improves on nothing
	assert.NotEmpty(Te, h.Epochs[0].Checkpoint)
	assert.FileExists(Te, h.Epochs[0].Checkpoint)
	assert.GreaterOrEqual(Te, h.BestEpoch, 1)

	read, err := ReadHistory(filepath.Join(store.Path(), "history.json"))
	require.NoError(Te, err)
	assert.Equal(Te, h.BestEpoch, read.BestEpoch)
	assert.Equal(Te, store.Run.String(), read.Run)
	assert.Len(Te, read.Epochs, 3)

	latest, err := store.Latest()
	require.NoError(Te, err)
	assert.Equal(Te, h.Epochs[h.BestEpoch-1].Checkpoint, latest)
}

func TestRunCancelled(Te *testing.T) {
	o := DefaultOptions()
	o.Epochs = 5
	t, store, _ := trainer(Te, o, dataset.Splits{Train: []int{0, 1, 2}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h, err := t.Run(ctx)
	assert.ErrorIs(Te, err, context.Canceled)
	assert.Empty(Te, h.Epochs)
	assert.Equal(Te, filepath.Join(store.Path(), "params_0ep_interrupted.zst"), h.Interrupted)
	assert.FileExists(Te, h.Interrupted)
	_, err = os.Stat(filepath.Join(store.Path(), "history.json"))
	assert.NoError(Te, err)
}

func TestNoValidation(Te *testing.T) {
	o := DefaultOptions()
	o.Epochs = 1
	t, _, _ := trainer(Te, o, dataset.Splits{Train: []int{0, 1, 2}})
	h, err := t.Run(context.Background())
	require.NoError(Te, err)
	require.Len(Te, h.Epochs, 1)
	assert.False(Te, h.Epochs[0].HasValidation)
	assert.Equal(Te, h.Epochs[0].TrainLoss, h.BestLoss)
}

func TestTest(Te *testing.T) {
	o := DefaultOptions()
	o.BatchSize = 2
	t, _, _ := trainer(Te, o, dataset.Splits{Train: []int{0, 1}, Test: []int{7, 3, 5}})
	ev, err := t.Test(context.Background())
	require.NoError(Te, err)
	assert.Equal(Te, []int{7, 3, 5}, ev.IDs)
	r, c := ev.Predictions.Dims()
	assert.Equal(Te, 3, r)
	assert.Equal(Te, 2, c)
	for i, id := range ev.IDs {
		assert.Equal(Te, t.src.Labels(id), ev.Targets.RawRowView(i))
		for _, p := range ev.Predictions.RawRowView(i) {
			assert.True(Te, p > 0 && p < 1)
		}
	}
	assert.Len(Te, ev.Losses, 2)
	assert.False(Te, math.IsNaN(ev.MeanLoss()))
	assert.Equal(Te, []string{"GO:1", "GO:2"}, ev.Classes)
	assert.Equal(Te, "protfun", ev.Model)

	name := filepath.Join(Te.TempDir(), "test.zst")
	require.NoError(Te, ev.Write(name))
	read, err := ReadEvaluation(name)
	require.NoError(Te, err)
	assert.Equal(Te, ev.IDs, read.IDs)
	assert.Equal(Te, ev.Classes, read.Classes)
	assert.Equal(Te, ev.Model, read.Model)
	assert.True(Te, mat.Equal(ev.Targets, read.Targets))
	assert.True(Te, mat.Equal(ev.Predictions, read.Predictions))
	assert.Equal(Te, ev.Losses, read.Losses)

	_, err = ReadEvaluation(filepath.Join(Te.TempDir(), "missing.zst"))
	assert.Error(Te, err)

	t.splits.Test = nil
	_, err = t.Test(context.Background())
	assert.Error(Te, err)
}

func TestRunWithCache(Te *testing.T) {
	m := testMapper(Te)
	cache, err := dataset.NewGridCache(Te.TempDir(), m, nil)
	require.NoError(Te, err)
	o := DefaultOptions()
	o.Epochs, o.BatchSize, o.Cache = 2, 2, cache
	t, _, _ := trainer(Te, o, dataset.Splits{Train: []int{0, 1, 2, 3}, Val: []int{4}})
	_, err = t.Run(context.Background())
	require.NoError(Te, err)
	assert.Equal(Te, 10, cache.Calls)
	assert.Equal(Te, 5, cache.Hits) //the second epoch reads everything from disk
}

func TestNewErrors(Te *testing.T) {
	store, err := checkpoint.NewStore(Te.TempDir(), "x", nil)
	require.NoError(Te, err)
	mon := NewMonitor(store, nil)
	src := testSet(Te, 4)
	splits := dataset.Splits{Train: []int{0, 1}}

	c, err := classifier.New(nil)
	require.NoError(Te, err)
	_, err = New(c, src, splits, mon, nil)
	assert.True(Te, errors.Is(err, protfun.ErrNotCompiled))

	o := classifier.DefaultOptions()
	o.NClasses = 3
	o.Mapper = testMapper(Te)
	c3, err := classifier.New(o)
	require.NoError(Te, err)
	require.NoError(Te, c3.Compile(classifier.LinearNet, []int{2, 6, 6, 6}))
	_, err = New(c3, src, splits, mon, nil)
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))

	c2 := compiled(Te, testMapper(Te))
	_, err = New(c2, src, dataset.Splits{}, mon, nil)
	assert.Error(Te, err)

	go8 := grid.DefaultOptions()
	go8.Size = 8
	m8, err := grid.NewMapper(go8)
	require.NoError(Te, err)
	cache, err := dataset.NewGridCache(Te.TempDir(), m8, nil)
	require.NoError(Te, err)
	_, err = New(c2, src, splits, mon, &Options{Epochs: 1, BatchSize: 1, Cache: cache})
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))
}

func TestMonitor(Te *testing.T) {
	store, err := checkpoint.NewStore(Te.TempDir(), "mon", nil)
	require.NoError(Te, err)
	m := NewMonitor(store, nil)
	c := compiled(Te, testMapper(Te))
	for i, loss := range []float64{1, 2, 0.5, 0.5} {
		improved, err := m.Record(c, Epoch{Epoch: i + 1, ValLoss: loss, HasValidation: true})
		require.NoError(Te, err)
		assert.Equal(Te, i == 0 || i == 2, improved, "epoch %d", i+1)
	}
	h := m.History()
	assert.Equal(Te, 3, h.BestEpoch)
	assert.Equal(Te, 0.5, h.BestLoss)
	entries, err := store.List()
	require.NoError(Te, err)
	assert.Len(Te, entries, 2)

	//the returned history is a copy
	h.Epochs[0].Epoch = 100
	assert.Equal(Te, 1, m.History().Epochs[0].Epoch)
}
