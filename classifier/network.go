/*
 * network.go, part of protfun.
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
	"math/rand"
)

// Network maps a batch of inputs to one logit per class. Backward propagates
// the gradient of the loss with respect to the logits of the last Forward call
// into the gradients of Params.
type Network interface {
	Forward(x *Tensor, train bool) (*Tensor, error)
	Backward(grad *Tensor)
	Params() []*Param
}

// NetworkBuilder builds a network for inputs of shape inShape (without the batch
// dimension) and nOut outputs.
type NetworkBuilder func(inShape []int, nOut int, rng *rand.Rand) (Network, error)

// Sequential is a network made of layers applied one after the other.
type Sequential struct {
	Layers []Layer
}

func (s *Sequential) Forward(x *Tensor, train bool) (*Tensor, error) {
	var err error
	for _, l := range s.Layers {
		x, err = l.Forward(x, train)
		if err != nil {
			return nil, err
		}
	}
	return x, nil
}

func (s *Sequential) Backward(g *Tensor) {
	for i := len(s.Layers) - 1; i >= 0; i-- {
		g = s.Layers[i].Backward(g)
	}
}

func (s *Sequential) Params() []*Param {
	var ret []*Param
	for _, l := range s.Layers {
		ret = append(ret, l.Params()...)
	}
	return ret
}

func checkInShape(inShape []int, nOut int) error {
	if len(inShape) != 4 || nOut <= 0 {
		return shapeError("classifier.NetworkBuilder", "expected input shape [C,D,H,W] and positive outputs, got %v and %d", inShape, nOut)
	}
	for _, v := range inShape {
		if v <= 0 {
			return shapeError("classifier.NetworkBuilder", "non-positive dimension in input shape %v", inShape)
		}
	}
	return nil
}

// ConvNet returns a builder for networks with one 3D convolution (kernel of side
// kernel) plus ReLU per element of filters, each followed by a 2x2x2 max pooling while
// the grid is large enough. The result is averaged over space and passed through
// dropout and a dense layer.
func ConvNet(filters []int, kernel int, dropout float64) NetworkBuilder {
	return func(inShape []int, nOut int, rng *rand.Rand) (Network, error) {
		if err := checkInShape(inShape, nOut); err != nil {
			return nil, err
		}
		c, side := inShape[0], inShape[1]
		for _, v := range inShape[2:] {
			if v < side {
				side = v
			}
		}
		net := &Sequential{}
		for i, f := range filters {
			net.Layers = append(net.Layers, NewConv3D(fmt.Sprintf("conv%d", i), c, f, kernel, rng), &ReLU{})
			if side >= 4 {
				net.Layers = append(net.Layers, &MaxPool3D{Size: 2})
				side /= 2
			}
			c = f
		}
		net.Layers = append(net.Layers, &GlobalAvgPool{})
		if dropout > 0 {
			net.Layers = append(net.Layers, NewDropout(dropout, rng))
		}
		net.Layers = append(net.Layers, NewDense("out", c, nOut, rng))
		return net, nil
	}
}

// SmallConvNet builds the default network: two convolutions of 16 and 32 filters
// of side 3, and 50% dropout before the output layer.
func SmallConvNet(inShape []int, nOut int, rng *rand.Rand) (Network, error) {
	return ConvNet([]int{16, 32}, 3, 0.5)(inShape, nOut, rng)
}

// LinearNet builds a single dense layer over the flattened input, i.e. a
// logistic regression per class.
func LinearNet(inShape []int, nOut int, rng *rand.Rand) (Network, error) {
	if err := checkInShape(inShape, nOut); err != nil {
		return nil, err
	}
	d := NewDense("linear", prod(inShape), nOut, rng)
	//He initialization is too large for thousands of inputs
	for i := range d.W.Data {
		d.W.Data[i] *= 0.01
	}
	return &Sequential{Layers: []Layer{d}}, nil
}
