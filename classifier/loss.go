/*
 * loss.go, part of protfun.
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

	"gonum.org/v1/gonum/mat"
)

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// bceWithLogits returns the binary cross entropy of sigmoid(z) against t, computed
// without overflow for large |z|.
func bceWithLogits(z, t float64) float64 {
	return math.Max(z, 0) - z*t + math.Log1p(math.Exp(-math.Abs(z)))
}

// BCEWithLogits computes, for logits and multi-hot targets of shape BxN, the binary
// cross entropy of each class averaged over the batch, the probabilities
// sigmoid(logits), and the gradient of the mean of the per-class losses with
// respect to the logits.
func BCEWithLogits(logits, targets *mat.Dense) (losses []float64, probs, grad *mat.Dense) {
	B, N := logits.Dims()
	losses = make([]float64, N)
	probs = mat.NewDense(B, N, nil)
	grad = mat.NewDense(B, N, nil)
	scale := 1 / float64(B*N)
	for b := 0; b < B; b++ {
		for n := 0; n < N; n++ {
			z, t := logits.At(b, n), targets.At(b, n)
			p := Sigmoid(z)
			losses[n] += bceWithLogits(z, t) / float64(B)
			probs.Set(b, n, p)
			grad.Set(b, n, (p-t)*scale)
		}
	}
	return losses, probs, grad
}

// Accuracies returns, for each class, the fraction of the batch where thresholding
// the probability at 0.5 gives the target.
func Accuracies(probs, targets *mat.Dense) []float64 {
	B, N := probs.Dims()
	ret := make([]float64, N)
	for n := 0; n < N; n++ {
		for b := 0; b < B; b++ {
			pred := 0.0
			if probs.At(b, n) > 0.5 {
				pred = 1
			}
			if pred == targets.At(b, n) {
				ret[n]++
			}
		}
		ret[n] /= float64(B)
	}
	return ret
}
