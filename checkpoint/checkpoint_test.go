/*
 * checkpoint_test.go, part of protfun.
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

package checkpoint

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/rmera/protfun"
	"github.com/rmera/protfun/classifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compiled(Te *testing.T, seed int64) *classifier.Classifier {
	o := classifier.DefaultOptions()
	o.Seed = seed
	c, err := classifier.New(o)
	require.NoError(Te, err)
	require.NoError(Te, c.Compile(classifier.ConvNet([]int{2}, 3, 0), []int{2, 4, 4, 4}))
	return c
}

func TestFileName(Te *testing.T) {
	assert.Equal(Te, "params.zst", FileName(-1, ""))
	assert.Equal(Te, "params_12ep.zst", FileName(12, ""))
	assert.Equal(Te, "params_3ep_best.zst", FileName(3, "best"))
	assert.Equal(Te, "params_interrupted.zst", FileName(-1, "interrupted"))
	for _, tc := range []struct {
		epoch int
		tag   string
	}{{-1, ""}, {12, ""}, {3, "best"}, {-1, "interrupted"}, {7, "a_b"}} {
		e, ok := parseName(FileName(tc.epoch, tc.tag))
		require.True(Te, ok)
		assert.Equal(Te, tc.epoch, e.Epoch)
		assert.Equal(Te, tc.tag, e.Tag)
	}
	_, ok := parseName("params_3ep.npz")
	assert.False(Te, ok)
	_, ok = parseName("weights_3ep.zst")
	assert.False(Te, ok)
}

func TestSaveRestore(Te *testing.T) {
	s, err := NewStore(Te.TempDir(), "test", nil)
	require.NoError(Te, err)
	c := compiled(Te, 1)
	path, err := s.Save(c.Params(), 5, "")
	require.NoError(Te, err)
	assert.Equal(Te, filepath.Join(s.Path(), "params_5ep.zst"), path)

	c2 := compiled(Te, 2)
	require.NotEqual(Te, c.ParamValues(), c2.ParamValues())
	meta, err := Restore(c2, path)
	require.NoError(Te, err)
	assert.Equal(Te, c.ParamValues(), c2.ParamValues())
	assert.Equal(Te, "5", meta[KeyEpoch])
	assert.Equal(Te, "test", meta[KeyModel])
	_, err = uuid.Parse(meta[KeyRun])
	assert.NoError(Te, err)
	assert.Equal(Te, s.Run.String(), meta[KeyRun])

	arrays, _, err := Load(path)
	require.NoError(Te, err)
	for i, p := range c.Params() {
		assert.Equal(Te, p.Name, arrays[i].Name)
		assert.Equal(Te, p.Shape, arrays[i].Shape)
	}
}

func TestRestoreErrors(Te *testing.T) {
	dir := Te.TempDir()
	_, _, err := Load(filepath.Join(dir, "params.npz"))
	assert.Error(Te, err)

	s, err := NewStore(dir, "m", nil)
	require.NoError(Te, err)
	path, err := s.Save(compiled(Te, 1).Params(), 1, "")
	require.NoError(Te, err)

	c, err := classifier.New(nil)
	require.NoError(Te, err)
	_, err = Restore(c, path)
	assert.True(Te, errors.Is(err, protfun.ErrNotCompiled))

	other, err := classifier.New(nil)
	require.NoError(Te, err)
	require.NoError(Te, other.Compile(classifier.LinearNet, []int{2, 4, 4, 4}))
	_, err = Restore(other, path)
	assert.True(Te, errors.Is(err, protfun.ErrShapeMismatch))
}

func TestLatest(Te *testing.T) {
	s, err := NewStore(Te.TempDir(), "", nil)
	require.NoError(Te, err)
	assert.Equal(Te, "model", s.Name)
	_, err = s.Latest()
	assert.Error(Te, err)

	params := compiled(Te, 1).Params()
	for _, ep := range []int{2, 10, 9} {
		_, err := s.Save(params, ep, "")
		require.NoError(Te, err)
	}
	_, err = s.Save(params, 11, "interrupted")
	require.NoError(Te, err)
	require.NoError(Te, os.WriteFile(filepath.Join(s.Path(), "notes.txt"), []byte("x"), 0o644))

	entries, err := s.List()
	require.NoError(Te, err)
	require.Len(Te, entries, 4)
	assert.Equal(Te, 2, entries[0].Epoch)
	latest, err := s.Latest()
	require.NoError(Te, err)
	assert.Equal(Te, filepath.Join(s.Path(), "params_10ep.zst"), latest)
}
