/*
 * rotation.go, part of protfun.
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
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Rotation is a 3D rotation, stored as a unit quaternion W + Xi + Yj + Zk.
type Rotation struct {
	W, X, Y, Z float64
}

// Identity returns the rotation that does nothing.
func Identity() Rotation {
	return Rotation{W: 1}
}

// AxisAngle returns the rotation of angle radians around axis. The axis
// doesn't need to be normalized, but it must not be zero.
func AxisAngle(axis [3]float64, angle float64) Rotation {
	n := math.Sqrt(axis[0]*axis[0] + axis[1]*axis[1] + axis[2]*axis[2])
	s := math.Sin(angle/2) / n
	return Rotation{W: math.Cos(angle / 2), X: axis[0] * s, Y: axis[1] * s, Z: axis[2] * s}
}

// RandomRotation returns a rotation drawn uniformly from SO(3), using the
// method of Shoemake (Graphics Gems III, 1992).
func RandomRotation(rng *rand.Rand) Rotation {
	u1, u2, u3 := rng.Float64(), rng.Float64(), rng.Float64()
	a, b := math.Sqrt(1-u1), math.Sqrt(u1)
	t2, t3 := 2*math.Pi*u2, 2*math.Pi*u3
	return Rotation{X: a * math.Sin(t2), Y: a * math.Cos(t2), Z: b * math.Sin(t3), W: b * math.Cos(t3)}
}

// EulerRotation returns the rotation Rz(a)Ry(b)Rz(c) with the three angles drawn
// uniformly from [0,2pi). The resulting rotations are NOT uniform over
// SO(3): they cluster around the poles. Use RandomRotation unless you
// need to reproduce that sampling.
func EulerRotation(rng *rand.Rand) Rotation {
	a, b, c := 2*math.Pi*rng.Float64(), 2*math.Pi*rng.Float64(), 2*math.Pi*rng.Float64()
	z := [3]float64{0, 0, 1}
	y := [3]float64{0, 1, 0}
	return AxisAngle(z, a).Mul(AxisAngle(y, b)).Mul(AxisAngle(z, c))
}

// Mul returns the composition q*p, i.e. the rotation p followed by q.
func (q Rotation) Mul(p Rotation) Rotation {
	return Rotation{
		W: q.W*p.W - q.X*p.X - q.Y*p.Y - q.Z*p.Z,
		X: q.W*p.X + q.X*p.W + q.Y*p.Z - q.Z*p.Y,
		Y: q.W*p.Y - q.X*p.Z + q.Y*p.W + q.Z*p.X,
		Z: q.W*p.Z + q.X*p.Y - q.Y*p.X + q.Z*p.W,
	}
}

// Inverse returns the inverse rotation.
func (q Rotation) Inverse() Rotation {
	return Rotation{W: q.W, X: -q.X, Y: -q.Y, Z: -q.Z}
}

// Matrix returns the 3x3 rotation matrix R such that a column vector v
// is rotated as Rv.
func (q Rotation) Matrix() *mat.Dense {
	w, x, y, z := q.W, q.X, q.Y, q.Z
	return mat.NewDense(3, 3, []float64{
		1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w),
		2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w),
		2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y),
	})
}
