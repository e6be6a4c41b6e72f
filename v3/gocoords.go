/*
 * gocoords.go, part of protfun.
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

package v3

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Zeros returns a zero-filled Matrix with vecs vectors and 3 in the other dimension.
func Zeros(vecs int) *Matrix {
	const cols int = 3
	if vecs == 0 {
		return &Matrix{}
	}
	f := make([]float64, cols*vecs)
	return &Matrix{mat.NewDense(vecs, cols, f)}
}

// NVecs returns the number of vecs in F. Nil and empty matrices have 0 vecs.
func (F *Matrix) NVecs() int {
	if F == nil || F.Dense == nil {
		return 0
	}
	r, c := F.Dims()
	if c != 3 {
		panic(ErrNotXx3Matrix)
	}
	return r
}

// Len is the same as NVecs.
func (F *Matrix) Len() int {
	return F.NVecs()
}

// Clone returns a deep copy of F.
func (F *Matrix) Clone() *Matrix {
	n := F.NVecs()
	ret := Zeros(n)
	if n > 0 {
		ret.Copy(F.Dense)
	}
	return ret
}

// SubVec subtracts the vector vec from each vector of the matrix A, putting
// the result on the receiver. Panics if matrices are mismatched.
func (F *Matrix) SubVec(A, vec *Matrix) {
	ar := A.NVecs()
	if vec.NVecs() != 1 || ar != F.NVecs() {
		panic(ErrShape)
	}
	v := vec.RawRowView(0)
	for i := 0; i < ar; i++ {
		f := F.RawRowView(i)
		a := A.RawRowView(i)
		floats.SubTo(f, a, v)
	}
}

// Centroid returns the geometric center of the vectors in F,
// as a Matrix with one vector. Returns an error for an empty matrix.
func (F *Matrix) Centroid() (*Matrix, error) {
	n := F.NVecs()
	if n == 0 {
		return nil, Error{"Can't obtain the centroid of an empty set of vectors", []string{"Centroid"}, false}
	}
	ret := Zeros(1)
	c := ret.RawRowView(0)
	for i := 0; i < n; i++ {
		floats.Add(c, F.RawRowView(i))
	}
	floats.Scale(1/float64(n), c)
	return ret, nil
}

// Rotate puts in the receiver the vectors of A rotated by the 3x3 rotation matrix R,
// i.e. each row a of A becomes (R a)^T. F and A can be the same matrix.
func (F *Matrix) Rotate(A *Matrix, R mat.Matrix) {
	if r, c := R.Dims(); r != 3 || c != 3 {
		panic(ErrNotRotation)
	}
	if A.NVecs() != F.NVecs() {
		panic(ErrShape)
	}
	if A.NVecs() == 0 {
		return
	}
	//Dense.Mul handles the case where the receiver aliases an operand.
	F.Dense.Mul(A.Dense, R.T())
}

// String returns a neat string representation of a Matrix
func (F *Matrix) String() string {
	r := F.NVecs()
	if r == 0 {
		return "[ ]"
	}
	v := make([]string, 0, r+2)
	v = append(v, "\n[")
	for i := 0; i < r; i++ {
		row := F.RawRowView(i)
		v = append(v, fmt.Sprintf(" %6.2f %6.2f %6.2f", row[0], row[1], row[2]))
	}
	v = append(v, " ]")
	return strings.Join(v, "\n")
}
