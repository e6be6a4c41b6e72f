/*
 * rotator.go, part of protfun.
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
	"math/rand"
	"runtime"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/internal/workers"
	"github.com/rmera/protfun/v3"
	"gonum.org/v1/gonum/mat"
)

// Sampling is the way random rotations are drawn.
type Sampling int

const (
	//Quaternion draws rotations uniformly over SO(3).
	Quaternion Sampling = iota
	//Euler draws three uniform Euler angles, which is not uniform over SO(3).
	Euler
)

func (s Sampling) String() string {
	switch s {
	case Quaternion:
		return "quaternion"
	case Euler:
		return "euler"
	}
	return fmt.Sprintf("Sampling(%d)", int(s))
}

// RotatorOptions contains the options for a Rotator.
type RotatorOptions struct {
	PerMolecule bool //a different rotation for each molecule, otherwise one for the whole batch
	Sampling    Sampling
	Cpus        int
}

// DefaultRotatorOptions returns the default options: one uniformly sampled rotation per molecule.
func DefaultRotatorOptions() *RotatorOptions {
	return &RotatorOptions{PerMolecule: true, Sampling: Quaternion, Cpus: runtime.NumCPU()}
}

// Rotator applies random rotations to grids and batches.
type Rotator struct {
	o RotatorOptions
}

// NewRotator returns a Rotator with the given options. A nil o means the default options.
func NewRotator(o *RotatorOptions) *Rotator {
	if o == nil {
		o = DefaultRotatorOptions()
	}
	return &Rotator{o: *o}
}

// Sample draws the rotations for a batch of b molecules. If the Rotator is not
// PerMolecule, all of them are the same.
func (r *Rotator) Sample(b int, rng *rand.Rand) []Rotation {
	draw := RandomRotation
	if r.o.Sampling == Euler {
		draw = EulerRotation
	}
	ret := make([]Rotation, b)
	if b == 0 {
		return ret
	}
	if !r.o.PerMolecule {
		q := draw(rng)
		for i := range ret {
			ret[i] = q
		}
		return ret
	}
	for i := range ret {
		ret[i] = draw(rng)
	}
	return ret
}

// Rotate returns a new grid where each molecule of g is rotated by a random
// rotation around the center of the grid. Both channels of a molecule get the
// same rotation. The rotations are drawn from rng before any work starts,
// so the result only depends on the state of rng.
func (r *Rotator) Rotate(g *Grid, rng *rand.Rand) *Grid {
	ret, err := r.RotateWith(g, r.Sample(g.B, rng))
	if err != nil {
		panic(err.Error()) //can't happen, Sample returns g.B rotations.
	}
	return ret
}

// RotateWith returns a new grid where molecule b of g is rotated by rots[b], or
// by rots[0] if only one rotation is given. Values are resampled with trilinear
// interpolation. Points that come from outside the grid are 0.
func (r *Rotator) RotateWith(g *Grid, rots []Rotation) (*Grid, error) {
	if len(rots) != g.B && len(rots) != 1 {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "grid.Rotator.RotateWith", fmt.Sprintf("%d rotations for %d molecules", len(rots), g.B))
	}
	mats := make([]*mat.Dense, g.B)
	for b := range mats {
		q := rots[0]
		if len(rots) > 1 {
			q = rots[b]
		}
		mats[b] = q.Matrix()
	}
	G := g.G
	ret := New(g.B, g.C, G, g.Extent)
	c := float64(G-1) / 2
	workers.Parallel(g.B*G, r.o.Cpus, func(u int) {
		b, i := u/G, u%G
		R := mats[b]
		//source = R^T (p - c) + c
		pi := float64(i) - c
		for j := 0; j < G; j++ {
			pj := float64(j) - c
			for k := 0; k < G; k++ {
				pk := float64(k) - c
				sx := R.At(0, 0)*pi + R.At(1, 0)*pj + R.At(2, 0)*pk + c
				sy := R.At(0, 1)*pi + R.At(1, 1)*pj + R.At(2, 1)*pk + c
				sz := R.At(0, 2)*pi + R.At(1, 2)*pj + R.At(2, 2)*pk + c
				for ch := 0; ch < g.C; ch++ {
					ret.Data[ret.Index(b, ch, i, j, k)] = trilinear(g.Channel(b, ch), G, sx, sy, sz)
				}
			}
		}
	})
	return ret, nil
}

// trilinear interpolates the GxGxG array d at the fractional index (x,y,z).
// Voxels outside the array count as 0.
func trilinear(d []float64, G int, x, y, z float64) float64 {
	fx, fy, fz := math.Floor(x), math.Floor(y), math.Floor(z)
	i0, j0, k0 := int(fx), int(fy), int(fz)
	if i0 < -1 || j0 < -1 || k0 < -1 || i0 >= G || j0 >= G || k0 >= G {
		return 0
	}
	tx, ty, tz := x-fx, y-fy, z-fz
	var ret float64
	for di := 0; di < 2; di++ {
		wi := 1 - tx
		if di == 1 {
			wi = tx
		}
		i := i0 + di
		if wi == 0 || i < 0 || i >= G {
			continue
		}
		for dj := 0; dj < 2; dj++ {
			wj := 1 - ty
			if dj == 1 {
				wj = ty
			}
			j := j0 + dj
			if wj == 0 || j < 0 || j >= G {
				continue
			}
			for dk := 0; dk < 2; dk++ {
				wk := 1 - tz
				if dk == 1 {
					wk = tz
				}
				k := k0 + dk
				if wk == 0 || k < 0 || k >= G {
					continue
				}
				ret += wi * wj * wk * d[(i*G+j)*G+k]
			}
		}
	}
	return ret
}

// RotateBatch returns a copy of batch where the coordinates of each molecule are
// rotated around the origin by a random rotation, and the rotations used.
// Since the molecules are centered, mapping the rotated batch gives an exact
// rotated grid, at the cost of recomputing it.
func (r *Rotator) RotateBatch(batch *protfun.Batch, rng *rand.Rand) (*protfun.Batch, []Rotation) {
	rots := r.Sample(batch.B, rng)
	ret, _ := RotateBatchWith(batch, rots) //can't fail
	return ret, rots
}

// RotateBatchWith returns a copy of batch where the coordinates of molecule b are
// rotated around the origin by rots[b], or by rots[0] if only one rotation is given.
func RotateBatchWith(batch *protfun.Batch, rots []Rotation) (*protfun.Batch, error) {
	if len(rots) != batch.B && len(rots) != 1 {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "grid.RotateBatchWith", fmt.Sprintf("%d rotations for %d molecules", len(rots), batch.B))
	}
	ret := batch.Clone()
	if ret.Amax == 0 {
		return ret, nil
	}
	n := ret.Amax * 3
	for b := 0; b < ret.B; b++ {
		q := rots[0]
		if len(rots) > 1 {
			q = rots[b]
		}
		X, _ := v3.NewMatrix(ret.Coords[b*n : (b+1)*n]) //can't fail, n is a multiple of 3
		X.Rotate(X, q.Matrix())
	}
	return ret, nil
}
