/*
 * layers_test.go, part of protfun.
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
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func randomTensor(rng *rand.Rand, shape ...int) *Tensor {
	t := NewTensor(shape...)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64()
	}
	return t
}

// weightedSum runs net on x and returns sum(w*out).
func weightedSum(Te *testing.T, net Network, x *Tensor, w []float64) float64 {
	out, err := net.Forward(x, true)
	require.NoError(Te, err)
	return floats.Dot(out.Data, w)
}

// Compares the analytical gradients of every parameter with central finite differences.
func TestGradients(Te *testing.T) {
	rng := rand.New(rand.NewSource(1))
	builders := map[string]NetworkBuilder{
		"conv":   ConvNet([]int{3, 2}, 3, 0),
		"linear": LinearNet,
	}
	for name, builder := range builders {
		net, err := builder([]int{2, 4, 4, 4}, 2, rng)
		require.NoError(Te, err)
		x := randomTensor(rng, 3, 2, 4, 4, 4)
		w := []float64{0.3, -1.2, 0.7, 0.1, -0.5, 2}
		weightedSum(Te, net, x, w)
		for _, p := range net.Params() {
			p.ZeroGrad()
		}
		net.Backward(&Tensor{Shape: []int{3, 2}, Data: w})
		const eps = 1e-6
		for _, p := range net.Params() {
			for j := 0; j < len(p.Data); j += 1 + len(p.Data)/25 {
				orig := p.Data[j]
				p.Data[j] = orig + eps
				plus := weightedSum(Te, net, x, w)
				p.Data[j] = orig - eps
				minus := weightedSum(Te, net, x, w)
				p.Data[j] = orig
				num := (plus - minus) / (2 * eps)
				assert.InDelta(Te, num, p.Grad[j], 1e-5*math.Max(1, math.Abs(num)), "%s: %s[%d]", name, p.Name, j)
			}
		}
	}
}

func TestConvInputGradient(Te *testing.T) {
	rng := rand.New(rand.NewSource(2))
	conv := NewConv3D("c", 2, 3, 3, rng)
	x := randomTensor(rng, 2, 2, 3, 4, 5)
	y, err := conv.Forward(x, true)
	require.NoError(Te, err)
	assert.Equal(Te, []int{2, 3, 3, 4, 5}, y.Shape)
	g := randomTensor(rng, y.Shape...)
	dx := conv.Backward(g)
	const eps = 1e-6
	for j := 0; j < len(x.Data); j += 7 {
		orig := x.Data[j]
		x.Data[j] = orig + eps
		yp, _ := conv.Forward(x, true)
		x.Data[j] = orig - eps
		ym, _ := conv.Forward(x, true)
		x.Data[j] = orig
		num := (floats.Dot(yp.Data, g.Data) - floats.Dot(ym.Data, g.Data)) / (2 * eps)
		assert.InDelta(Te, num, dx.Data[j], 1e-5)
	}
	_, err = conv.Forward(randomTensor(rng, 1, 3, 2, 2, 2), true)
	assert.Error(Te, err)
}

// A 1x1x1 convolution with unit weight is the identity, and a centered 3x3x3 kernel
// with a single 1 is too, padding included.
func TestConvIdentity(Te *testing.T) {
	rng := rand.New(rand.NewSource(3))
	conv := NewConv3D("c", 1, 1, 3, rng)
	for i := range conv.W.Data {
		conv.W.Data[i] = 0
	}
	conv.W.Data[13] = 1
	conv.B.Data[0] = 0.5
	x := randomTensor(rng, 1, 1, 3, 3, 3)
	y, err := conv.Forward(x, false)
	require.NoError(Te, err)
	for i := range x.Data {
		assert.InDelta(Te, x.Data[i]+0.5, y.Data[i], 1e-12)
	}
}

func TestPoolingAndDropout(Te *testing.T) {
	x := NewTensor(1, 1, 2, 2, 2)
	copy(x.Data, []float64{1, 5, 2, 3, -1, 0, 4, 2})
	mp := &MaxPool3D{Size: 2}
	y, err := mp.Forward(x, true)
	require.NoError(Te, err)
	assert.Equal(Te, []float64{5}, y.Data)
	dx := mp.Backward(&Tensor{Shape: []int{1, 1, 1, 1, 1}, Data: []float64{2}})
	assert.Equal(Te, []float64{0, 2, 0, 0, 0, 0, 0, 0}, dx.Data)
	_, err = mp.Forward(NewTensor(1, 1, 1, 2, 2), true)
	assert.Error(Te, err)

	gap := &GlobalAvgPool{}
	y, err = gap.Forward(x, true)
	require.NoError(Te, err)
	assert.Equal(Te, []int{1, 1}, y.Shape)
	assert.InDelta(Te, 2.0, y.Data[0], 1e-12)

	d := NewDropout(0.5, rand.New(rand.NewSource(4)))
	big := NewTensor(1, 10000)
	for i := range big.Data {
		big.Data[i] = 1
	}
	ev, _ := d.Forward(big, false)
	assert.Equal(Te, big.Data, ev.Data)
	tr, _ := d.Forward(big, true)
	zeros := 0
	for _, v := range tr.Data {
		if v == 0 {
			zeros++
		} else {
			require.Equal(Te, 2.0, v)
		}
	}
	assert.InDelta(Te, 5000, zeros, 300)
	assert.InDelta(Te, 1.0, floats.Sum(tr.Data)/10000, 0.06)
	back := d.Backward(big)
	assert.Equal(Te, tr.Data, back.Data)
}

func TestDense(Te *testing.T) {
	rng := rand.New(rand.NewSource(5))
	d := NewDense("d", 3, 2, rng)
	copy(d.W.Data, []float64{1, 2, 3, -1, 0, 1})
	copy(d.B.Data, []float64{0.5, -0.5})
	x := &Tensor{Shape: []int{2, 3}, Data: []float64{1, 1, 1, 0, 1, 2}}
	y, err := d.Forward(x, false)
	require.NoError(Te, err)
	assert.Equal(Te, []float64{6.5, -0.5, 8.5, 1.5}, y.Data)
	_, err = d.Forward(NewTensor(2, 4), false)
	assert.Error(Te, err)
	//flattened inputs
	d2 := NewDense("d2", 8, 1, rng)
	y, err = d2.Forward(NewTensor(3, 2, 2, 2), false)
	require.NoError(Te, err)
	assert.Equal(Te, []int{3, 1}, y.Shape)
}

func TestLoss(Te *testing.T) {
	logits := mat.NewDense(2, 2, []float64{1000, -1000, 0, 2})
	targets := mat.NewDense(2, 2, []float64{1, 1, 0, 1})
	losses, probs, grad := BCEWithLogits(logits, targets)
	require.Len(Te, losses, 2)
	assert.InDelta(Te, math.Log(2)/2, losses[0], 1e-12)
	assert.InDelta(Te, (1000+math.Log1p(math.Exp(-2)))/2, losses[1], 1e-9)
	assert.Equal(Te, 1.0, probs.At(0, 0))
	assert.InDelta(Te, 0.5, probs.At(1, 0), 1e-15)
	assert.InDelta(Te, (0.5-0)/4, grad.At(1, 0), 1e-15)
	assert.InDelta(Te, -1.0/4, grad.At(0, 1), 1e-12)
	for _, v := range grad.RawMatrix().Data {
		assert.False(Te, math.IsNaN(v))
	}
	acc := Accuracies(probs, targets)
	//(1000 -> 1, ok) (0 -> 0.5 is not >0.5 -> 0, ok); (-1000 -> 0, wrong) (2 -> 1, ok)
	assert.Equal(Te, []float64{1, 0.5}, acc)
	assert.InDelta(Te, 0.5, Sigmoid(0), 1e-15)
	assert.InDelta(Te, 1, Sigmoid(40)+Sigmoid(-40), 1e-15)
}

func TestAdam(Te *testing.T) {
	p := newParam("x", 2)
	p.Data[0], p.Data[1] = -2, 10
	opt := NewAdam(0.05)
	for i := 0; i < 2000; i++ {
		p.Grad[0] = 2 * (p.Data[0] - 3)
		p.Grad[1] = 2 * (p.Data[1] + 1)
		opt.Step([]*Param{p})
	}
	assert.InDelta(Te, 3, p.Data[0], 0.05)
	assert.InDelta(Te, -1, p.Data[1], 0.05)
	assert.Equal(Te, 2000, opt.Steps())
}
