/*
 * config_test.go, part of protfun.
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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/grid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testYAML = `
cpus: 2
data:
  dir: /tmp/protfun
  classes: ["GO:0004252", "GO:0004222"]
  max_atoms: 5000
  test_fraction: 0.2
grid:
  size: 16
  extent: 32
  use_esp: false
model:
  name: enzymes
  network: conv
  filters: [4, 8]
  kernel_size: 5
  sampling: euler
training:
  epochs: 7
  batch_size: 4
ontology:
  timeout: 5s
  max_retries: 1
  cache_db: ""
log:
  level: debug
`

func writeConfig(Te *testing.T, text string) string {
	name := filepath.Join(Te.TempDir(), "protfun.yaml")
	require.NoError(Te, os.WriteFile(name, []byte(text), 0o644))
	return name
}

func TestDefaults(Te *testing.T) {
	c, err := Load("")
	require.NoError(Te, err)
	g := grid.DefaultOptions()
	assert.Equal(Te, g.Size, c.Grid.Size)
	assert.Equal(Te, g.Extent, c.Grid.Extent)
	assert.True(Te, c.Grid.UseESP)
	assert.Equal(Te, "small_conv", c.Model.Network)
	assert.Equal(Te, []int{16, 32, 64}, c.Model.Filters)
	assert.Equal(Te, 30*time.Second, c.Ontology.Timeout)
	assert.Equal(Te, "info", c.Log.Level)
	assert.Equal(Te, filepath.Join(".", "dataset.zst"), c.Path(c.Data.Dataset))
	assert.Equal(Te, "/abs/x", c.Path("/abs/x"))
	assert.Equal(Te, "", c.Path(""))
}

func TestLoadFile(Te *testing.T) {
	c, err := Load(writeConfig(Te, testYAML))
	require.NoError(Te, err)
	assert.Equal(Te, 2, c.Cpus)
	assert.Equal(Te, []string{"GO:0004252", "GO:0004222"}, c.Data.Classes)
	assert.Equal(Te, 0.2, c.Data.TestFraction)
	assert.Equal(Te, 0.1, c.Data.ValFraction) //default
	assert.Equal(Te, "/tmp/protfun/dataset.zst", c.Path(c.Data.Dataset))
	assert.Equal(Te, 5*time.Second, c.Ontology.Timeout)
	assert.Equal(Te, uint64(1), c.Ontology.MaxRetries)
	assert.Empty(Te, c.Ontology.CacheDB)

	g := c.GridOptions(nil)
	assert.Equal(Te, 16, g.Size)
	assert.Equal(Te, 32.0, g.Extent)
	assert.False(Te, g.UseESP)
	assert.Equal(Te, 2, g.Cpus)
	assert.Equal(Te, []int{2, 16, 16, 16}, c.InShape())

	m, err := grid.NewMapper(g)
	require.NoError(Te, err)
	co := c.ClassifierOptions(2, m, nil)
	assert.Equal(Te, "enzymes", co.Name)
	assert.Equal(Te, 2, co.NClasses)
	assert.Same(Te, m, co.Mapper)
	assert.NotNil(Te, co.Rotator)
	assert.NotNil(Te, c.Builder())

	t := c.TrainOptions(nil)
	assert.Equal(Te, 7, t.Epochs)
	assert.Equal(Te, 4, t.BatchSize)

	o := c.ClientOptions(zap.NewNop())
	assert.Equal(Te, 5*time.Second, o.Timeout)
	assert.Equal(Te, uint64(1), o.MaxRetries)
	assert.NotNil(Te, o.Logger)

	p := c.PrepOptions(nil)
	assert.Equal(Te, 5000, p.MaxAtoms)
	assert.True(Te, p.PDB.SkipWater)
	assert.Equal(Te, 2, p.Cpus)

	l, err := c.Level()
	require.NoError(Te, err)
	assert.Equal(Te, zap.DebugLevel, l.Level())
}

func TestEnv(Te *testing.T) {
	Te.Setenv("PROTFUN_GRID_SIZE", "12")
	Te.Setenv("PROTFUN_TRAINING_EPOCHS", "3")
	Te.Setenv("PROTFUN_ONTOLOGY_TIMEOUT", "1m")
	c, err := Load(writeConfig(Te, testYAML))
	require.NoError(Te, err)
	assert.Equal(Te, 12, c.Grid.Size)
	assert.Equal(Te, 3, c.Training.Epochs)
	assert.Equal(Te, time.Minute, c.Ontology.Timeout)
	assert.Equal(Te, 4, c.Training.BatchSize)
}

func TestValidate(Te *testing.T) {
	_, err := Load(filepath.Join(Te.TempDir(), "missing.yaml"))
	assert.Error(Te, err)

	bad := map[string]string{
		"grid":     "grid:\n  size: 0\n",
		"fraction": "data:\n  test_fraction: 0.5\n  val_fraction: 0.5\n",
		"network":  "model:\n  network: transformer\n",
		"conv":     "model:\n  network: conv\n  filters: []\n",
		"sampling": "model:\n  sampling: spiral\n",
		"name":     "model:\n  name: a/b\n",
		"epochs":   "training:\n  epochs: 0\n",
		"level":    "log:\n  level: loud\n",
		"cpus":     "cpus: -1\n",
		"dropout":  "model:\n  dropout: 1\n",
	}
	for name, text := range bad {
		_, err := Load(writeConfig(Te, text))
		assert.Error(Te, err, name)
	}
	_, err = Load(writeConfig(Te, bad["grid"]))
	assert.True(Te, errors.Is(err, protfun.ErrInvalidGridConfig))
}
