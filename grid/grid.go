/*
 * grid.go, part of protfun.
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

// Package grid maps batches of molecules into 3D grids of electron density and
// electrostatic potential, and rotates those grids randomly for data augmentation.
package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// The channels of a Grid.
const (
	Density   = 0
	Potential = 1
	NChannels = 2
)

// Grid is a batch of B molecule grids, each with C channels of GxGxG voxels
// covering a cube of side Extent (A) centered at the origin. Data is
// row-major [B][C][G][G][G], i.e. the last index (z) runs fastest.
type Grid struct {
	B      int
	C      int
	G      int
	Extent float64
	Data   []float64
}

// New returns a zero-filled grid. It panics if any dimension is not positive
// (except b, which can be 0).
func New(b, c, g int, extent float64) *Grid {
	if b < 0 || c <= 0 || g <= 0 || !(extent > 0) {
		panic(fmt.Sprintf("grid: invalid dimensions %dx%dx%d^3, extent %g", b, c, g, extent))
	}
	return &Grid{B: b, C: c, G: g, Extent: extent, Data: make([]float64, b*c*g*g*g)}
}

// Shape returns the dimensions of the grid, [B,C,G,G,G].
func (g *Grid) Shape() []int {
	return []int{g.B, g.C, g.G, g.G, g.G}
}

// Spacing returns the side of a voxel, in A.
func (g *Grid) Spacing() float64 {
	return g.Extent / float64(g.G)
}

// Center returns the coordinate of the center of the voxels with index i
// along any axis.
func (g *Grid) Center(i int) float64 {
	return voxelCenter(i, g.G, g.Extent)
}

func voxelCenter(i, G int, extent float64) float64 {
	return -extent/2 + (float64(i)+0.5)*extent/float64(G)
}

// Index returns the position in Data of the voxel i,j,k of channel c of molecule b.
// It panics if any index is out of range.
func (g *Grid) Index(b, c, i, j, k int) int {
	G := g.G
	if b < 0 || b >= g.B || c < 0 || c >= g.C || i < 0 || i >= G || j < 0 || j >= G || k < 0 || k >= G {
		panic(fmt.Sprintf("grid: index (%d,%d,%d,%d,%d) out of range for shape %v", b, c, i, j, k, g.Shape()))
	}
	return (((b*g.C+c)*G+i)*G+j)*G + k
}

// At returns the value of voxel i,j,k in channel c of molecule b.
func (g *Grid) At(b, c, i, j, k int) float64 {
	return g.Data[g.Index(b, c, i, j, k)]
}

// Set sets the value of voxel i,j,k in channel c of molecule b.
func (g *Grid) Set(b, c, i, j, k int, v float64) {
	g.Data[g.Index(b, c, i, j, k)] = v
}

// Channel returns the G^3 values of channel c of molecule b. The slice
// shares storage with the grid.
func (g *Grid) Channel(b, c int) []float64 {
	n := g.G * g.G * g.G
	s := g.Index(b, c, 0, 0, 0)
	return g.Data[s : s+n : s+n]
}

// MoleculeSum returns the sum of all the voxels in channel c of molecule b.
func (g *Grid) MoleculeSum(b, c int) float64 {
	return floats.Sum(g.Channel(b, c))
}

// Sum returns the sum of channel c over all the molecules of the batch.
func (g *Grid) Sum(c int) float64 {
	var s float64
	for b := 0; b < g.B; b++ {
		s += g.MoleculeSum(b, c)
	}
	return s
}

// Clone returns a deep copy of the grid.
func (g *Grid) Clone() *Grid {
	r := *g
	r.Data = append([]float64(nil), g.Data...)
	return &r
}

// SameShape returns true if g and h have the same dimensions and extent.
func (g *Grid) SameShape(h *Grid) bool {
	return g.B == h.B && g.C == h.C && g.G == h.G && g.Extent == h.Extent
}

// Finite returns true if no voxel is NaN or infinite.
func (g *Grid) Finite() bool {
	for _, v := range g.Data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Slice returns, as a GxG matrix, the plane k perpendicular to axis (0 for x,
// 1 for y, 2 for z) of channel c of molecule b. The matrix is a copy.
func (g *Grid) Slice(b, c, axis, k int) *mat.Dense {
	G := g.G
	ret := mat.NewDense(G, G, nil)
	for u := 0; u < G; u++ {
		for v := 0; v < G; v++ {
			var val float64
			switch axis {
			case 0:
				val = g.At(b, c, k, u, v)
			case 1:
				val = g.At(b, c, u, k, v)
			case 2:
				val = g.At(b, c, u, v, k)
			default:
				panic(fmt.Sprintf("grid: invalid axis %d", axis))
			}
			ret.Set(u, v, val)
		}
	}
	return ret
}

// Molecules returns a new grid with the molecules of g with the given indexes,
// in that order.
func (g *Grid) Molecules(idx []int) *Grid {
	r := New(len(idx), g.C, g.G, g.Extent)
	n := g.C * g.G * g.G * g.G
	for i, b := range idx {
		copy(r.Data[i*n:(i+1)*n], g.Data[g.Index(b, 0, 0, 0, 0):][:n])
	}
	return r
}
