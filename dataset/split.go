/*
 * split.go, part of protfun.
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
	"fmt"
	"math"
	"math/rand"

	"github.com/rmera/protfun"
)

// Splits holds disjoint lists of molecule indexes for training, validation
// and testing.
type Splits struct {
	Train []int
	Val   []int
	Test  []int
}

// Split randomly assigns the indexes 0..n-1 to the test, validation and training
// sets. The test and validation sets get round(testFrac*n) and round(valFrac*n)
// molecules, the training set gets the rest. The same seed always gives the same
// split.
func Split(n int, testFrac, valFrac float64, seed int64) (Splits, error) {
	if n < 0 || !(testFrac >= 0) || !(valFrac >= 0) || testFrac+valFrac > 1 {
		return Splits{}, protfun.NewError(nil, "dataset.Split", fmt.Sprintf("invalid split of %d molecules: test %g, validation %g", n, testFrac, valFrac))
	}
	ntest := int(math.Round(testFrac * float64(n)))
	nval := int(math.Round(valFrac * float64(n)))
	if ntest+nval > n {
		nval = n - ntest
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n)
	s := Splits{
		Test:  append([]int{}, perm[:ntest]...),
		Val:   append([]int{}, perm[ntest:ntest+nval]...),
		Train: append([]int{}, perm[ntest+nval:]...),
	}
	return s, nil
}

// Batches splits ids into minibatches of size molecules, after shuffling them with rng.
// The last minibatch can be smaller. If rng is nil the order of ids is kept, and
// a non-positive size puts all the ids in one minibatch. ids is not modified.
func Batches(ids []int, size int, rng *rand.Rand) [][]int {
	if len(ids) == 0 {
		return nil
	}
	order := append([]int(nil), ids...)
	if rng != nil {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	}
	if size <= 0 {
		size = len(order)
	}
	ret := make([][]int, 0, (len(order)+size-1)/size)
	for i := 0; i < len(order); i += size {
		end := i + size
		if end > len(order) {
			end = len(order)
		}
		ret = append(ret, order[i:end:end])
	}
	return ret
}
