/*
 * evaluation.go, part of protfun.
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

package train

import (
	"fmt"
	"strings"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/archive"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Evaluation contains the results of a classifier on the test set.
type Evaluation struct {
	Model       string
	Classes     []string
	IDs         []int      //dataset indexes, in the order of the rows
	Targets     *mat.Dense //len(IDs)xNClasses
	Predictions *mat.Dense //probabilities, len(IDs)xNClasses
	Losses      []float64  //per class
	Accuracies  []float64  //per class
}

// MeanLoss returns the mean over classes of the test losses.
func (e *Evaluation) MeanLoss() float64 { return stat.Mean(e.Losses, nil) }

// MeanAccuracy returns the mean over classes of the test accuracies.
func (e *Evaluation) MeanAccuracy() float64 { return stat.Mean(e.Accuracies, nil) }

// Write saves the evaluation to the archive name.
func (e *Evaluation) Write(name string) error {
	n, c := e.Targets.Dims()
	ids := make([]float64, len(e.IDs))
	for i, v := range e.IDs {
		ids[i] = float64(v)
	}
	meta := map[string]string{"model": e.Model, "classes": strings.Join(e.Classes, ",")}
	arrays := []archive.Array{
		{Name: "ids", Shape: []int{n}, Data: ids},
		{Name: "targets", Shape: []int{n, c}, Data: e.Targets.RawMatrix().Data},
		{Name: "predictions", Shape: []int{n, c}, Data: e.Predictions.RawMatrix().Data},
		{Name: "losses", Shape: []int{c}, Data: e.Losses},
		{Name: "accuracies", Shape: []int{c}, Data: e.Accuracies},
	}
	return archive.Write(name, meta, arrays)
}

// ReadEvaluation reads an evaluation saved with Write.
func ReadEvaluation(name string) (*Evaluation, error) {
	meta, arrays, err := archive.Read(name)
	if err != nil {
		return nil, err
	}
	get := func(aname string, rank int) (archive.Array, error) {
		a, ok := archive.Find(arrays, aname)
		if !ok || len(a.Shape) != rank {
			return a, protfun.NewError(protfun.ErrShapeMismatch, "train.ReadEvaluation", fmt.Sprintf("%s: missing or malformed array %q", name, aname))
		}
		return a, nil
	}
	var a [5]archive.Array
	for i, v := range []string{"ids", "targets", "predictions", "losses", "accuracies"} {
		rank := 1
		if i == 1 || i == 2 {
			rank = 2
		}
		if a[i], err = get(v, rank); err != nil {
			return nil, err
		}
	}
	n, c := a[1].Shape[0], a[1].Shape[1]
	if a[0].Shape[0] != n || a[2].Shape[0] != n || a[2].Shape[1] != c || a[3].Shape[0] != c || a[4].Shape[0] != c || n == 0 || c == 0 {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "train.ReadEvaluation", fmt.Sprintf("%s: inconsistent array shapes", name))
	}
	e := &Evaluation{
		Model:       meta["model"],
		IDs:         make([]int, n),
		Targets:     mat.NewDense(n, c, a[1].Data),
		Predictions: mat.NewDense(n, c, a[2].Data),
		Losses:      a[3].Data,
		Accuracies:  a[4].Data,
	}
	if meta["classes"] != "" {
		e.Classes = strings.Split(meta["classes"], ",")
	}
	for i, v := range a[0].Data {
		e.IDs[i] = int(v)
	}
	return e, nil
}
