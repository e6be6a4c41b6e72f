/*
 * tensor.go, part of protfun.
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

package classifier

import (
	"fmt"
	"math"
	"math/rand"
)

// Tensor is a dense, row-major array of float64 with an arbitrary shape. The
// first dimension is always the batch.
type Tensor struct {
	Shape []int
	Data  []float64
}

// NewTensor returns a zero-filled tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float64, prod(shape))}
}

// Batch returns the size of the first dimension.
func (t *Tensor) Batch() int {
	return t.Shape[0]
}

// Sample returns the number of elements per batch item.
func (t *Tensor) Sample() int {
	return prod(t.Shape[1:])
}

func prod(s []int) int {
	p := 1
	for _, v := range s {
		p *= v
	}
	return p
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Param is a trainable parameter of a network, with its gradient.
type Param struct {
	Name  string
	Shape []int
	Data  []float64
	Grad  []float64
}

func newParam(name string, shape ...int) *Param {
	n := prod(shape)
	return &Param{Name: name, Shape: shape, Data: make([]float64, n), Grad: make([]float64, n)}
}

// heInit fills p with normal values of variance 2/fanIn.
func (p *Param) heInit(fanIn int, rng *rand.Rand) {
	s := math.Sqrt(2 / float64(fanIn))
	for i := range p.Data {
		p.Data[i] = rng.NormFloat64() * s
	}
}

// ZeroGrad sets the gradient to zero.
func (p *Param) ZeroGrad() {
	for i := range p.Grad {
		p.Grad[i] = 0
	}
}

func (p *Param) String() string {
	return fmt.Sprintf("%s%v", p.Name, p.Shape)
}
