/*
 * layers.go, part of protfun.
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

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/internal/workers"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Layer is one step of a network. Backward must be called after Forward, with the gradient
// of the loss with respect to the output of that Forward call. It adds to the
// gradients of the layer's parameters and returns the gradient with respect to the input.
type Layer interface {
	Forward(x *Tensor, train bool) (*Tensor, error)
	Backward(grad *Tensor) *Tensor
	Params() []*Param
}

func shapeError(caller string, format string, v ...interface{}) error {
	return protfun.NewError(protfun.ErrShapeMismatch, caller, fmt.Sprintf(format, v...))
}

// Conv3D is a 3D convolution with stride 1 and "same" zero padding, over
// inputs of shape [B, In, D, H, W].
type Conv3D struct {
	In, Out, K int
	W          *Param //[Out][In][K][K][K]
	B          *Param //[Out]
	Cpus       int
	x          *Tensor
}

// NewConv3D returns a convolution with He-initialized weights. k must be odd.
func NewConv3D(name string, in, out, k int, rng *rand.Rand) *Conv3D {
	if k%2 != 1 {
		panic(fmt.Sprintf("classifier: convolution kernel size must be odd, got %d", k))
	}
	c := &Conv3D{In: in, Out: out, K: k, W: newParam(name+".W", out, in, k, k, k), B: newParam(name+".b", out)}
	c.W.heInit(in*k*k*k, rng)
	return c
}

func (c *Conv3D) Params() []*Param { return []*Param{c.W, c.B} }

// validRange returns the output positions [lo,hi) for which position+off-p is
// inside [0,n).
func validRange(n, off, p int) (int, int) {
	lo, hi := p-off, n+p-off
	if lo < 0 {
		lo = 0
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}

func (c *Conv3D) Forward(x *Tensor, train bool) (*Tensor, error) {
	if len(x.Shape) != 5 || x.Shape[1] != c.In {
		return nil, shapeError("classifier.Conv3D.Forward", "expected input [B,%d,D,H,W], got %v", c.In, x.Shape)
	}
	B, D, H, W := x.Shape[0], x.Shape[2], x.Shape[3], x.Shape[4]
	K, p := c.K, c.K/2
	vol := D * H * W
	y := NewTensor(B, c.Out, D, H, W)
	workers.Parallel(B*c.Out, c.Cpus, func(u int) {
		b, o := u/c.Out, u%c.Out
		out := y.Data[(b*c.Out+o)*vol : (b*c.Out+o+1)*vol]
		for i := range out {
			out[i] = c.B.Data[o]
		}
		for i := 0; i < c.In; i++ {
			in := x.Data[(b*c.In+i)*vol : (b*c.In+i+1)*vol]
			for kd := 0; kd < K; kd++ {
				d0, d1 := validRange(D, kd, p)
				for kh := 0; kh < K; kh++ {
					h0, h1 := validRange(H, kh, p)
					for kw := 0; kw < K; kw++ {
						w0, w1 := validRange(W, kw, p)
						if w0 >= w1 {
							continue
						}
						wt := c.W.Data[(((o*c.In+i)*K+kd)*K+kh)*K+kw]
						for d := d0; d < d1; d++ {
							for h := h0; h < h1; h++ {
								src := ((d+kd-p)*H+h+kh-p)*W - p + kw
								dst := (d*H + h) * W
								floats.AddScaledTo(out[dst+w0:dst+w1], out[dst+w0:dst+w1], wt, in[src+w0:src+w1])
							}
						}
					}
				}
			}
		}
	})
	c.x = x
	return y, nil
}

func (c *Conv3D) Backward(g *Tensor) *Tensor {
	x := c.x
	B, D, H, W := x.Shape[0], x.Shape[2], x.Shape[3], x.Shape[4]
	K, p := c.K, c.K/2
	vol := D * H * W
	//parameter gradients, one output channel per unit
	workers.Parallel(c.Out, c.Cpus, func(o int) {
		for b := 0; b < B; b++ {
			gout := g.Data[(b*c.Out+o)*vol : (b*c.Out+o+1)*vol]
			c.B.Grad[o] += floats.Sum(gout)
			for i := 0; i < c.In; i++ {
				in := x.Data[(b*c.In+i)*vol : (b*c.In+i+1)*vol]
				for kd := 0; kd < K; kd++ {
					d0, d1 := validRange(D, kd, p)
					for kh := 0; kh < K; kh++ {
						h0, h1 := validRange(H, kh, p)
						for kw := 0; kw < K; kw++ {
							w0, w1 := validRange(W, kw, p)
							if w0 >= w1 {
								continue
							}
							var s float64
							for d := d0; d < d1; d++ {
								for h := h0; h < h1; h++ {
									src := ((d+kd-p)*H+h+kh-p)*W - p + kw
									dst := (d*H + h) * W
									s += floats.Dot(gout[dst+w0:dst+w1], in[src+w0:src+w1])
								}
							}
							c.W.Grad[(((o*c.In+i)*K+kd)*K+kh)*K+kw] += s
						}
					}
				}
			}
		}
	})
	//input gradient, one (molecule, input channel) per unit
	dx := NewTensor(x.Shape...)
	workers.Parallel(B*c.In, c.Cpus, func(u int) {
		b, i := u/c.In, u%c.In
		din := dx.Data[(b*c.In+i)*vol : (b*c.In+i+1)*vol]
		for o := 0; o < c.Out; o++ {
			gout := g.Data[(b*c.Out+o)*vol : (b*c.Out+o+1)*vol]
			for kd := 0; kd < K; kd++ {
				d0, d1 := validRange(D, kd, p)
				for kh := 0; kh < K; kh++ {
					h0, h1 := validRange(H, kh, p)
					for kw := 0; kw < K; kw++ {
						w0, w1 := validRange(W, kw, p)
						if w0 >= w1 {
							continue
						}
						wt := c.W.Data[(((o*c.In+i)*K+kd)*K+kh)*K+kw]
						for d := d0; d < d1; d++ {
							for h := h0; h < h1; h++ {
								src := ((d+kd-p)*H+h+kh-p)*W - p + kw
								dst := (d*H + h) * W
								floats.AddScaledTo(din[src+w0:src+w1], din[src+w0:src+w1], wt, gout[dst+w0:dst+w1])
							}
						}
					}
				}
			}
		}
	})
	return dx
}

// ReLU is the rectified linear unit, max(x,0).
type ReLU struct {
	mask []bool
}

func (r *ReLU) Params() []*Param { return nil }

func (r *ReLU) Forward(x *Tensor, train bool) (*Tensor, error) {
	y := &Tensor{Shape: append([]int(nil), x.Shape...), Data: make([]float64, len(x.Data))}
	r.mask = make([]bool, len(x.Data))
	for i, v := range x.Data {
		if v > 0 {
			y.Data[i] = v
			r.mask[i] = true
		}
	}
	return y, nil
}

func (r *ReLU) Backward(g *Tensor) *Tensor {
	dx := NewTensor(g.Shape...)
	for i, v := range g.Data {
		if r.mask[i] {
			dx.Data[i] = v
		}
	}
	return dx
}

// MaxPool3D takes the maximum over non-overlapping cubes of side Size. Trailing
// positions that don't fill a cube are dropped.
type MaxPool3D struct {
	Size    int
	inShape []int
	argmax  []int
}

func (m *MaxPool3D) Params() []*Param { return nil }

func (m *MaxPool3D) Forward(x *Tensor, train bool) (*Tensor, error) {
	S := m.Size
	if len(x.Shape) != 5 || x.Shape[2] < S || x.Shape[3] < S || x.Shape[4] < S {
		return nil, shapeError("classifier.MaxPool3D.Forward", "can't pool %v with size %d", x.Shape, S)
	}
	B, C, D, H, W := x.Shape[0], x.Shape[1], x.Shape[2], x.Shape[3], x.Shape[4]
	od, oh, ow := D/S, H/S, W/S
	y := NewTensor(B, C, od, oh, ow)
	m.argmax = make([]int, len(y.Data))
	m.inShape = append([]int(nil), x.Shape...)
	n := 0
	for bc := 0; bc < B*C; bc++ {
		base := bc * D * H * W
		for d := 0; d < od; d++ {
			for h := 0; h < oh; h++ {
				for w := 0; w < ow; w++ {
					best := -1
					for a := 0; a < S; a++ {
						for b := 0; b < S; b++ {
							for c := 0; c < S; c++ {
								idx := base + ((d*S+a)*H+h*S+b)*W + w*S + c
								if best < 0 || x.Data[idx] > x.Data[best] {
									best = idx
								}
							}
						}
					}
					y.Data[n] = x.Data[best]
					m.argmax[n] = best
					n++
				}
			}
		}
	}
	return y, nil
}

func (m *MaxPool3D) Backward(g *Tensor) *Tensor {
	dx := NewTensor(m.inShape...)
	for i, v := range g.Data {
		dx.Data[m.argmax[i]] += v
	}
	return dx
}

// GlobalAvgPool averages each channel over all the spatial positions, [B,C,...] -> [B,C].
type GlobalAvgPool struct {
	inShape []int
}

func (p *GlobalAvgPool) Params() []*Param { return nil }

func (p *GlobalAvgPool) Forward(x *Tensor, train bool) (*Tensor, error) {
	if len(x.Shape) < 3 {
		return nil, shapeError("classifier.GlobalAvgPool.Forward", "expected at least one spatial dimension, got %v", x.Shape)
	}
	B, C := x.Shape[0], x.Shape[1]
	vol := prod(x.Shape[2:])
	y := NewTensor(B, C)
	for i := range y.Data {
		y.Data[i] = floats.Sum(x.Data[i*vol:(i+1)*vol]) / float64(vol)
	}
	p.inShape = append([]int(nil), x.Shape...)
	return y, nil
}

func (p *GlobalAvgPool) Backward(g *Tensor) *Tensor {
	dx := NewTensor(p.inShape...)
	vol := prod(p.inShape[2:])
	for i, v := range g.Data {
		s := dx.Data[i*vol : (i+1)*vol]
		for j := range s {
			s[j] = v / float64(vol)
		}
	}
	return dx
}

// Dense is a fully connected layer. Inputs with more than 2 dimensions are flattened.
type Dense struct {
	In, Out int
	W       *Param //[Out][In]
	B       *Param //[Out]
	x       *Tensor
}

// NewDense returns a dense layer with He-initialized weights.
func NewDense(name string, in, out int, rng *rand.Rand) *Dense {
	d := &Dense{In: in, Out: out, W: newParam(name+".W", out, in), B: newParam(name+".b", out)}
	d.W.heInit(in, rng)
	return d
}

func (d *Dense) Params() []*Param { return []*Param{d.W, d.B} }

func (d *Dense) Forward(x *Tensor, train bool) (*Tensor, error) {
	if len(x.Shape) < 2 || x.Sample() != d.In {
		return nil, shapeError("classifier.Dense.Forward", "expected %d features per sample, got shape %v", d.In, x.Shape)
	}
	B := x.Batch()
	y := NewTensor(B, d.Out)
	X := mat.NewDense(B, d.In, x.Data)
	Wm := mat.NewDense(d.Out, d.In, d.W.Data)
	Y := mat.NewDense(B, d.Out, y.Data)
	Y.Mul(X, Wm.T())
	for b := 0; b < B; b++ {
		floats.Add(Y.RawRowView(b), d.B.Data)
	}
	d.x = x
	return y, nil
}

func (d *Dense) Backward(g *Tensor) *Tensor {
	B := d.x.Batch()
	G := mat.NewDense(B, d.Out, g.Data)
	X := mat.NewDense(B, d.In, d.x.Data)
	var dW mat.Dense
	dW.Mul(G.T(), X)
	floats.Add(d.W.Grad, dW.RawMatrix().Data)
	for b := 0; b < B; b++ {
		floats.Add(d.B.Grad, G.RawRowView(b))
	}
	dx := NewTensor(d.x.Shape...)
	DX := mat.NewDense(B, d.In, dx.Data)
	DX.Mul(G, mat.NewDense(d.Out, d.In, d.W.Data))
	return dx
}

// Dropout sets each input to zero with probability Rate during training, scaling
// the rest by 1/(1-Rate). It does nothing in evaluation mode.
type Dropout struct {
	Rate  float64
	rng   *rand.Rand
	scale []float64
}

// NewDropout returns a Dropout layer that draws its masks from rng.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	if rate < 0 || rate >= 1 {
		panic(fmt.Sprintf("classifier: dropout rate must be in [0,1), got %g", rate))
	}
	return &Dropout{Rate: rate, rng: rng}
}

func (d *Dropout) Params() []*Param { return nil }

func (d *Dropout) Forward(x *Tensor, train bool) (*Tensor, error) {
	y := &Tensor{Shape: append([]int(nil), x.Shape...), Data: append([]float64(nil), x.Data...)}
	if !train || d.Rate == 0 {
		d.scale = nil
		return y, nil
	}
	d.scale = make([]float64, len(x.Data))
	keep := 1 / (1 - d.Rate)
	for i := range d.scale {
		if d.rng.Float64() >= d.Rate {
			d.scale[i] = keep
		}
	}
	floats.Mul(y.Data, d.scale)
	return y, nil
}

func (d *Dropout) Backward(g *Tensor) *Tensor {
	dx := &Tensor{Shape: append([]int(nil), g.Shape...), Data: append([]float64(nil), g.Data...)}
	if d.scale != nil {
		floats.Mul(dx.Data, d.scale)
	}
	return dx
}
