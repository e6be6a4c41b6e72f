/*
 * roc.go, part of protfun.
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

// Package perf analyses the performance of a trained classifier and produces
// figures of its results and inputs.
package perf

import (
	"fmt"
	"math"
	"sort"

	"github.com/rmera/protfun"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Curve is a receiver operating characteristic curve. FPR and TPR are
// non-decreasing and go from (0,0) to (1,1). A curve for labels that are all
// positive or all negative is undefined: it has no points and a NaN AUC.
type Curve struct {
	FPR        []float64
	TPR        []float64
	Thresholds []float64 //decreasing, the first one is +Inf
	AUC        float64
}

// Defined returns true if the curve has points.
func (c Curve) Defined() bool { return len(c.FPR) > 1 && !math.IsNaN(c.AUC) }

// ROCResult contains the curves for each class, and the micro and macro averages.
// The micro average pools the decisions of all classes, the macro average is the
// mean of the per-class curves, leaving out the undefined ones.
type ROCResult struct {
	Classes []Curve
	Micro   Curve
	Macro   Curve
	Labels  []string //optional class names for the figures
}

// curve returns the ROC curve of the scores, with truth>0.5 as the positive class.
func curve(truth, scores []float64) Curve {
	y := append([]float64(nil), scores...)
	classes := make([]bool, len(truth))
	var pos int
	for i, v := range truth {
		classes[i] = v > 0.5
		if classes[i] {
			pos++
		}
	}
	if pos == 0 || pos == len(truth) {
		return Curve{AUC: math.NaN()}
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, thresh := stat.ROC(nil, y, classes, nil)
	return Curve{FPR: fpr, TPR: tpr, Thresholds: thresh, AUC: integrate.Trapezoidal(fpr, tpr)}
}

// ROC computes the ROC curves of the predictions yScore against the targets
// yTrue. Both are NxC, one row per molecule, one column per class.
func ROC(yTrue, yScore *mat.Dense) (*ROCResult, error) {
	r, c := yTrue.Dims()
	rs, cs := yScore.Dims()
	if r != rs || c != cs {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "perf.ROC", fmt.Sprintf("targets are %dx%d, predictions %dx%d", r, c, rs, cs))
	}
	ret := &ROCResult{Classes: make([]Curve, c)}
	truth := make([]float64, r)
	scores := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(truth, j, yTrue)
		mat.Col(scores, j, yScore)
		ret.Classes[j] = curve(truth, scores)
	}
	flatT := make([]float64, 0, r*c)
	flatS := make([]float64, 0, r*c)
	for i := 0; i < r; i++ {
		flatT = append(flatT, yTrue.RawRowView(i)...)
		flatS = append(flatS, yScore.RawRowView(i)...)
	}
	ret.Micro = curve(flatT, flatS)
	ret.Macro = macro(ret.Classes)
	return ret, nil
}

// macro averages the defined curves on the union of their false positive rates.
func macro(curves []Curve) Curve {
	var fits []*interp.PiecewiseLinear
	var all []float64
	for _, c := range curves {
		if !c.Defined() {
			continue
		}
		x, y := steps(c.FPR, c.TPR)
		pl := new(interp.PiecewiseLinear)
		if err := pl.Fit(x, y); err != nil {
			continue
		}
		fits = append(fits, pl)
		all = append(all, x...)
	}
	if len(fits) == 0 {
		return Curve{AUC: math.NaN()}
	}
	all = unique(all)
	tpr := make([]float64, len(all))
	for i, x := range all {
		for _, pl := range fits {
			tpr[i] += pl.Predict(x)
		}
		tpr[i] /= float64(len(fits))
	}
	return Curve{FPR: all, TPR: tpr, AUC: integrate.Trapezoidal(all, tpr)}
}

// steps keeps, for each distinct false positive rate, the highest true positive
// rate, so the result can be fitted.
func steps(fpr, tpr []float64) (x, y []float64) {
	for i, f := range fpr {
		if n := len(x); n > 0 && x[n-1] == f {
			y[n-1] = tpr[i]
			continue
		}
		x = append(x, f)
		y = append(y, tpr[i])
	}
	return x, y
}

// unique sorts v and removes repeated values, in place.
func unique(v []float64) []float64 {
	if len(v) == 0 {
		return v
	}
	sort.Float64s(v)
	ret := v[:1]
	for _, f := range v[1:] {
		if f != ret[len(ret)-1] {
			ret = append(ret, f)
		}
	}
	return ret
}
