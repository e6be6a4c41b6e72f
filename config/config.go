/*
 * config.go, part of protfun.
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

// Package config loads the settings of the protfun programs from a YAML file,
// with environment overrides, and turns them into the options of each package.
package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/classifier"
	"github.com/rmera/protfun/grid"
	"github.com/rmera/protfun/ontology"
	"github.com/rmera/protfun/prep"
	"github.com/rmera/protfun/train"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EnvPrefix is the prefix of the environment variables that override the file.
// The key grid.size, for instance, is overridden by PROTFUN_GRID_SIZE.
const EnvPrefix = "PROTFUN"

// Data contains the settings for building and splitting a dataset.
type Data struct {
	Dir           string   `mapstructure:"dir"`     //where the data are written
	Dataset       string   `mapstructure:"dataset"` //archive with the prepared molecules, relative to Dir
	Classes       []string `mapstructure:"classes"` //GO ids. Empty means all the ids found.
	MaxAtoms      int      `mapstructure:"max_atoms"`
	SkipUnlabeled bool     `mapstructure:"skip_unlabeled"`
	SkipWater     bool     `mapstructure:"skip_water"`
	SkipHydrogen  bool     `mapstructure:"skip_hydrogen"`
	SkipHetero    bool     `mapstructure:"skip_hetero"`
	TestFraction  float64  `mapstructure:"test_fraction"`
	ValFraction   float64  `mapstructure:"val_fraction"`
	SplitSeed     int64    `mapstructure:"split_seed"`
	GridCache     string   `mapstructure:"grid_cache"` //directory for precomputed grids. Empty means no cache.
}

// Grid contains the mapping settings.
type Grid struct {
	Size            int     `mapstructure:"size"`
	Extent          float64 `mapstructure:"extent"`
	UseESP          bool    `mapstructure:"use_esp"`
	DensityCutoff   float64 `mapstructure:"density_cutoff"`
	MinDistance     float64 `mapstructure:"min_distance"`
	ScreeningLength float64 `mapstructure:"screening_length"`
}

// Model contains the settings of the classifier.
type Model struct {
	Name         string  `mapstructure:"name"`
	Network      string  `mapstructure:"network"` //linear, small_conv or conv
	Filters      []int   `mapstructure:"filters"`
	KernelSize   int     `mapstructure:"kernel_size"`
	Dropout      float64 `mapstructure:"dropout"`
	LearningRate float64 `mapstructure:"learning_rate"`
	Rotate       bool    `mapstructure:"rotate"`
	PerMolecule  bool    `mapstructure:"per_molecule"` //a rotation for each molecule of a batch
	Sampling     string  `mapstructure:"sampling"`     //quaternion or euler
	Seed         int64   `mapstructure:"seed"`
	Checkpoints  string  `mapstructure:"checkpoints"` //directory for the checkpoints, relative to Data.Dir
}

// Training contains the settings of a training run.
type Training struct {
	Epochs    int   `mapstructure:"epochs"`
	BatchSize int   `mapstructure:"batch_size"`
	Seed      int64 `mapstructure:"seed"`
}

// Ontology contains the settings of the GO annotation lookups.
type Ontology struct {
	BaseURL        string        `mapstructure:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxRetries     uint64        `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	CacheSize      int           `mapstructure:"cache_size"`
	CacheDB        string        `mapstructure:"cache_db"` //SQLite file with past lookups, relative to Data.Dir. Empty means none.
}

// Log contains the logging settings.
type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Config contains all the settings.
type Config struct {
	Cpus     int      `mapstructure:"cpus"` //0 means runtime.NumCPU()
	Data     Data     `mapstructure:"data"`
	Grid     Grid     `mapstructure:"grid"`
	Model    Model    `mapstructure:"model"`
	Training Training `mapstructure:"training"`
	Ontology Ontology `mapstructure:"ontology"`
	Log      Log      `mapstructure:"log"`
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// setDefaults registers every key, which also makes every key reachable from
// the environment.
func setDefaults(v *viper.Viper) {
	g := grid.DefaultOptions()
	c := classifier.DefaultOptions()
	t := train.DefaultOptions()
	o := ontology.DefaultClientOptions()
	p := protfun.DefaultPDBOptions()
	defaults := map[string]any{
		"cpus":                     0,
		"data.dir":                 ".",
		"data.dataset":             "dataset.zst",
		"data.classes":             []string{},
		"data.max_atoms":           0,
		"data.skip_unlabeled":      false,
		"data.skip_water":          p.SkipWater,
		"data.skip_hydrogen":       p.SkipHydrogen,
		"data.skip_hetero":         p.SkipHetero,
		"data.test_fraction":       0.1,
		"data.val_fraction":        0.1,
		"data.split_seed":          1,
		"data.grid_cache":          "",
		"grid.size":                g.Size,
		"grid.extent":              g.Extent,
		"grid.use_esp":             g.UseESP,
		"grid.density_cutoff":      g.DensityCutoff,
		"grid.min_distance":        g.MinDistance,
		"grid.screening_length":    g.ScreeningLength,
		"model.name":               c.Name,
		"model.network":            "small_conv",
		"model.filters":            []int{16, 32, 64},
		"model.kernel_size":        3,
		"model.dropout":            0.5,
		"model.learning_rate":      c.LearningRate,
		"model.rotate":             c.Rotate,
		"model.per_molecule":       true,
		"model.sampling":           grid.Quaternion.String(),
		"model.seed":               c.Seed,
		"model.checkpoints":        "checkpoints",
		"training.epochs":          t.Epochs,
		"training.batch_size":      t.BatchSize,
		"training.seed":            t.Seed,
		"ontology.base_url":        o.BaseURL,
		"ontology.timeout":         o.Timeout,
		"ontology.max_retries":     o.MaxRetries,
		"ontology.initial_backoff": o.InitialBackoff,
		"ontology.max_backoff":     o.MaxBackoff,
		"ontology.cache_size":      1024,
		"ontology.cache_db":        "annotations.db",
		"log.level":                "info",
		"log.development":          false,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// Load reads the YAML file name, applies the PROTFUN_ environment overrides and
// the defaults, and validates the result. An empty name means defaults and
// environment only.
func Load(name string) (*Config, error) {
	v := newViper()
	if name != "" {
		v.SetConfigFile(name)
		if err := v.ReadInConfig(); err != nil {
			return nil, protfun.NewError(nil, "config.Load", fmt.Sprintf("can't read %s: %v", name, err))
		}
	}
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, protfun.NewError(nil, "config.Load", err.Error())
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Path returns name inside the data directory, unless it is absolute or empty.
func (c *Config) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.Data.Dir, name)
}

func invalid(kind error, format string, a ...any) error {
	return protfun.NewError(kind, "config.Config.Validate", fmt.Sprintf(format, a...))
}

// Validate returns an error if the configuration can't be used.
func (c *Config) Validate() error {
	if c.Cpus < 0 {
		return invalid(nil, "cpus can't be negative, got %d", c.Cpus)
	}
	if err := c.GridOptions(nil).Validate(); err != nil {
		return err
	}
	d := c.Data
	switch {
	case d.Dataset == "":
		return invalid(nil, "no dataset file")
	case d.MaxAtoms < 0:
		return invalid(nil, "max_atoms can't be negative, got %d", d.MaxAtoms)
	case d.TestFraction < 0 || d.ValFraction < 0 || d.TestFraction+d.ValFraction >= 1:
		return invalid(nil, "invalid test and validation fractions %g and %g", d.TestFraction, d.ValFraction)
	}
	m := c.Model
	switch {
	case m.Name == "" || strings.ContainsAny(m.Name, `/\`):
		return invalid(nil, "invalid model name %q", m.Name)
	case !(m.LearningRate > 0):
		return invalid(nil, "learning rate must be positive, got %g", m.LearningRate)
	case m.Dropout < 0 || m.Dropout >= 1:
		return invalid(nil, "dropout must be in [0,1), got %g", m.Dropout)
	}
	if _, err := c.sampling(); err != nil {
		return err
	}
	switch m.Network {
	case "linear", "small_conv":
	case "conv":
		if len(m.Filters) == 0 || m.KernelSize <= 0 {
			return invalid(nil, "a conv network needs filters and a positive kernel size")
		}
	default:
		return invalid(nil, "unknown network %q", m.Network)
	}
	t := c.Training
	if t.Epochs <= 0 || t.BatchSize <= 0 {
		return invalid(nil, "epochs and batch size must be positive, got %d and %d", t.Epochs, t.BatchSize)
	}
	if c.Ontology.CacheSize <= 0 {
		return invalid(nil, "the ontology cache size must be positive, got %d", c.Ontology.CacheSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c *Config) cpus() int {
	if c.Cpus == 0 {
		return runtime.NumCPU()
	}
	return c.Cpus
}

func (c *Config) sampling() (grid.Sampling, error) {
	switch strings.ToLower(c.Model.Sampling) {
	case grid.Quaternion.String():
		return grid.Quaternion, nil
	case grid.Euler.String():
		return grid.Euler, nil
	}
	return 0, invalid(nil, "unknown rotation sampling %q", c.Model.Sampling)
}

// Level returns the log level.
func (c *Config) Level() (zap.AtomicLevel, error) {
	l, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return l, invalid(nil, "invalid log level %q", c.Log.Level)
	}
	return l, nil
}

// GridOptions returns the options for a grid.Mapper.
func (c *Config) GridOptions(log *zap.Logger) *grid.Options {
	o := grid.DefaultOptions()
	g := c.Grid
	o.Size, o.Extent, o.UseESP = g.Size, g.Extent, g.UseESP
	o.DensityCutoff, o.MinDistance, o.ScreeningLength = g.DensityCutoff, g.MinDistance, g.ScreeningLength
	o.Cpus = c.cpus()
	o.Logger = log
	return o
}

// Builder returns the network builder for the model.
func (c *Config) Builder() classifier.NetworkBuilder {
	switch c.Model.Network {
	case "linear":
		return classifier.LinearNet
	case "conv":
		return classifier.ConvNet(c.Model.Filters, c.Model.KernelSize, c.Model.Dropout)
	}
	return classifier.SmallConvNet
}

// ClassifierOptions returns the options for a classifier with nclasses outputs
// that maps its molecule inputs with m.
func (c *Config) ClassifierOptions(nclasses int, m *grid.Mapper, log *zap.Logger) *classifier.Options {
	o := classifier.DefaultOptions()
	mo := c.Model
	o.Name, o.NClasses, o.LearningRate, o.Rotate, o.Seed = mo.Name, nclasses, mo.LearningRate, mo.Rotate, mo.Seed
	o.Mapper = m
	s, _ := c.sampling()
	o.Rotator = grid.NewRotator(&grid.RotatorOptions{PerMolecule: mo.PerMolecule, Sampling: s, Cpus: c.cpus()})
	o.Logger = log
	return o
}

// InShape returns the input shape of the classifier.
func (c *Config) InShape() []int {
	return []int{grid.NChannels, c.Grid.Size, c.Grid.Size, c.Grid.Size}
}

// TrainOptions returns the options for a train.Trainer. The grid cache, if any,
// is set by the caller.
func (c *Config) TrainOptions(log *zap.Logger) *train.Options {
	o := train.DefaultOptions()
	o.Epochs, o.BatchSize, o.Seed = c.Training.Epochs, c.Training.BatchSize, c.Training.Seed
	o.Logger = log
	return o
}

// ClientOptions returns the options for the QuickGO client.
func (c *Config) ClientOptions(log *zap.Logger) *ontology.ClientOptions {
	o := ontology.DefaultClientOptions()
	on := c.Ontology
	o.BaseURL, o.Timeout, o.MaxRetries = on.BaseURL, on.Timeout, on.MaxRetries
	o.InitialBackoff, o.MaxBackoff = on.InitialBackoff, on.MaxBackoff
	o.Logger = log
	return o
}

// PrepOptions returns the options for a prep.Preparer.
func (c *Config) PrepOptions(log *zap.Logger) *prep.Options {
	o := prep.DefaultOptions()
	d := c.Data
	o.PDB = &protfun.PDBOptions{SkipWater: d.SkipWater, SkipHydrogen: d.SkipHydrogen, SkipHetero: d.SkipHetero}
	o.MaxAtoms, o.SkipUnlabeled = d.MaxAtoms, d.SkipUnlabeled
	o.Cpus = c.cpus()
	o.Logger = log
	return o
}
