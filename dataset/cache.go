/*
 * cache.go, part of protfun.
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
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/rmera/protfun"
	"github.com/rmera/protfun/archive"
	"github.com/rmera/protfun/grid"
	"go.uber.org/zap"
)

// GridCache keeps the grids of single molecules on disk, so they are computed only
// once. Each file records the mapping options and a fingerprint of the molecule
// it was computed from. Grids computed with other options, or from a molecule
// that has since changed, are recomputed.
type GridCache struct {
	dir   string
	m     *grid.Mapper
	a     *protfun.Assembler
	log   *zap.Logger
	Hits  int
	Calls int
}

// NewGridCache returns a cache in dir that computes missing grids with m. dir is
// created if needed. A nil logger means no logging.
func NewGridCache(dir string, m *grid.Mapper, log *zap.Logger) (*GridCache, error) {
	if m == nil {
		return nil, protfun.NewError(protfun.ErrInvalidGridConfig, "dataset.NewGridCache", "nil mapper")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, protfun.NewError(nil, "dataset.NewGridCache", err.Error())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GridCache{dir: dir, m: m, a: protfun.NewAssembler(nil), log: log}, nil
}

// Mapper returns the mapper used by the cache.
func (c *GridCache) Mapper() *grid.Mapper { return c.m }

func (c *GridCache) path(src Source, i int) string {
	id := src.Molecule(i).ID
	if id == "" || strings.ContainsAny(id, `/\`) {
		id = "mol" + strconv.Itoa(i)
	}
	return filepath.Join(c.dir, id+".zst")
}

func (c *GridCache) meta() map[string]string {
	o := c.m.Options()
	return map[string]string{
		"size":      strconv.Itoa(o.Size),
		"extent":    strconv.FormatFloat(o.Extent, 'g', -1, 64),
		"esp":       strconv.FormatBool(o.UseESP),
		"cutoff":    strconv.FormatFloat(o.DensityCutoff, 'g', -1, 64),
		"mindist":   strconv.FormatFloat(o.MinDistance, 'g', -1, 64),
		"screening": strconv.FormatFloat(o.ScreeningLength, 'g', -1, 64),
	}
}

// fingerprint returns the atom count and a checksum of the coordinates, charges
// and radii of rec.
func fingerprint(rec *protfun.MoleculeRecord) (string, string) {
	h := xxhash.New()
	var b [8]byte
	put := func(v float64) {
		binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
		h.Write(b[:])
	}
	for i := 0; i < rec.AtomsCount; i++ {
		put(rec.Coords.At(i, 0))
		put(rec.Coords.At(i, 1))
		put(rec.Coords.At(i, 2))
		put(rec.Charges[i])
		put(rec.VdwRadii[i])
	}
	return strconv.Itoa(rec.AtomsCount), strconv.FormatUint(h.Sum64(), 16)
}

// want returns the metadata a valid cache file for rec must carry.
func (c *GridCache) want(rec *protfun.MoleculeRecord) map[string]string {
	m := c.meta()
	m["atoms"], m["checksum"] = fingerprint(rec)
	return m
}

// read returns the cached channels of one molecule, or nil if there is no
// usable cache file.
func (c *GridCache) read(name string, want map[string]string, n int) []float64 {
	if _, err := os.Stat(name); err != nil {
		return nil
	}
	meta, arrays, err := archive.Read(name)
	if err != nil {
		c.log.Warn("unreadable grid cache file", zap.String("file", name), zap.Error(err))
		return nil
	}
	for k, v := range want {
		if meta[k] != v {
			return nil
		}
	}
	if len(arrays) != 1 || len(arrays[0].Data) != n {
		return nil
	}
	return arrays[0].Data
}

// Grids returns the grids of the molecules ids of src, in that order, computing
// and storing those not in the cache.
func (c *GridCache) Grids(src Source, ids []int) (*grid.Grid, error) {
	o := c.m.Options()
	G := o.Size
	n := grid.NChannels * G * G * G
	ret := grid.New(len(ids), grid.NChannels, G, o.Extent)
	var missing []int //positions in ids
	for p, id := range ids {
		if id < 0 || id >= src.Len() {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "dataset.GridCache.Grids", fmt.Sprintf("molecule %d out of range for %d molecules", id, src.Len()))
		}
		c.Calls++
		if d := c.read(c.path(src, id), c.want(src.Molecule(id)), n); d != nil {
			copy(ret.Data[p*n:(p+1)*n], d)
			c.Hits++
			continue
		}
		missing = append(missing, p)
	}
	if len(missing) == 0 {
		return ret, nil
	}
	recs := make([]*protfun.MoleculeRecord, len(missing))
	for i, p := range missing {
		recs[i] = src.Molecule(ids[p])
	}
	b, err := c.a.Assemble(recs)
	if err != nil {
		return nil, err
	}
	g, err := c.m.Compute(b)
	if err != nil {
		return nil, err
	}
	for i, p := range missing {
		data := g.Data[i*n : (i+1)*n]
		copy(ret.Data[p*n:(p+1)*n], data)
		a := archive.Array{Name: "grid", Shape: []int{grid.NChannels, G, G, G}, Data: data}
		name := c.path(src, ids[p])
		if err := archive.Write(name, c.want(recs[i]), []archive.Array{a}); err != nil {
			//a cache that can't be written is not fatal.
			c.log.Warn("can't write grid cache file", zap.String("file", name), zap.Error(err))
		}
	}
	c.log.Debug("computed grids", zap.Int("computed", len(missing)), zap.Int("cached", len(ids)-len(missing)))
	return ret, nil
}
