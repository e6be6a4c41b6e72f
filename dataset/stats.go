/*
 * stats.go, part of protfun.
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

package dataset

import (
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a dataset.
type Stats struct {
	Molecules int
	MeanAtoms float64
	StdAtoms  float64
	MinAtoms  int
	MaxAtoms  int
	Positives []float64 //fraction of molecules in each class
}

// Describe returns the statistics of the molecules ids of src, or of all its
// molecules if ids is nil.
func Describe(src Source, ids []int) Stats {
	if ids == nil {
		ids = make([]int, src.Len())
		for i := range ids {
			ids[i] = i
		}
	}
	s := Stats{Molecules: len(ids), Positives: make([]float64, len(src.Classes()))}
	if len(ids) == 0 {
		return s
	}
	counts := make([]float64, len(ids))
	for i, id := range ids {
		counts[i] = float64(src.Molecule(id).AtomsCount)
		floats.Add(s.Positives, src.Labels(id))
	}
	floats.Scale(1/float64(len(ids)), s.Positives)
	s.MeanAtoms, s.StdAtoms = stat.MeanStdDev(counts, nil)
	if len(ids) == 1 {
		s.StdAtoms = 0
	}
	s.MinAtoms = int(floats.Min(counts))
	s.MaxAtoms = int(floats.Max(counts))
	return s
}

// Fields returns the statistics as log fields.
func (s Stats) Fields() []zap.Field {
	return []zap.Field{
		zap.Int("molecules", s.Molecules),
		zap.Float64("mean_atoms", s.MeanAtoms),
		zap.Float64("std_atoms", s.StdAtoms),
		zap.Int("min_atoms", s.MinAtoms),
		zap.Int("max_atoms", s.MaxAtoms),
		zap.Float64s("positives", s.Positives),
	}
}
