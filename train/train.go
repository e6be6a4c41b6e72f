/*
 * train.go, part of protfun.
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

// Package train runs the training and testing of a classifier over a dataset,
// keeping track of its performance and saving checkpoints.
package train

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/classifier"
	"github.com/rmera/protfun/dataset"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Options contains the options for a Trainer.
type Options struct {
	Epochs    int
	BatchSize int
	Seed      int64              //for the order of the minibatches
	Cache     *dataset.GridCache //if not nil, grids are read from the cache instead of computed in each step
	Logger    *zap.Logger
}

// DefaultOptions returns the default options: 100 epochs of minibatches of 1 molecule.
func DefaultOptions() *Options {
	return &Options{Epochs: 100, BatchSize: 1, Seed: 1}
}

// Trainer trains a compiled classifier on the training split of a dataset,
// validating after each epoch.
type Trainer struct {
	c      *classifier.Classifier
	src    dataset.Source
	splits dataset.Splits
	a      *protfun.Assembler
	mon    *Monitor
	o      Options
	log    *zap.Logger
	rng    *rand.Rand
}

// New returns a Trainer. c must be compiled for src's classes. A nil o means the
// default options.
func New(c *classifier.Classifier, src dataset.Source, splits dataset.Splits, mon *Monitor, o *Options) (*Trainer, error) {
	if o == nil {
		o = DefaultOptions()
	}
	if c.State() == classifier.Uninitialized {
		return nil, protfun.NewError(protfun.ErrNotCompiled, "train.New", "the classifier must be compiled before training")
	}
	if c.NClasses() != len(src.Classes()) {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "train.New", fmt.Sprintf("the classifier has %d classes, the dataset %d", c.NClasses(), len(src.Classes())))
	}
	if len(splits.Train) == 0 {
		return nil, protfun.NewError(nil, "train.New", "no molecules to train on")
	}
	if o.Cache != nil {
		if g := o.Cache.Mapper().Options().Size; g != c.InShape()[1] {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "train.New", fmt.Sprintf("the grid cache has grids of side %d, the classifier takes %d", g, c.InShape()[1]))
		}
	}
	t := &Trainer{
		c:      c,
		src:    src,
		splits: splits,
		a:      protfun.NewAssembler(&protfun.AssemblerOptions{MaxAtoms: src.MaxAtoms()}),
		mon:    mon,
		o:      *o,
		log:    o.Logger,
		rng:    rand.New(rand.NewSource(o.Seed)),
	}
	if t.log == nil {
		t.log = zap.NewNop()
	}
	return t, nil
}

// input returns the input and targets of a classifier step for the molecules ids.
func (t *Trainer) input(ids []int) (classifier.Input, *mat.Dense, error) {
	b, targets, err := dataset.Load(t.src, ids, t.a)
	if err != nil {
		return nil, nil, err
	}
	if t.o.Cache == nil {
		return classifier.MoleculeInput{Batch: b}, targets, nil
	}
	g, err := t.o.Cache.Grids(t.src, ids)
	if err != nil {
		return nil, nil, err
	}
	return classifier.GridInput{Grid: g}, targets, nil
}

// accumulator sums per-class losses and accuracies weighted by batch size.
type accumulator struct {
	losses, accs []float64
	n            float64
}

func newAccumulator(nclasses int) *accumulator {
	return &accumulator{losses: make([]float64, nclasses), accs: make([]float64, nclasses)}
}

func (a *accumulator) add(r *classifier.StepResult, size int) {
	floats.AddScaled(a.losses, float64(size), r.Losses)
	floats.AddScaled(a.accs, float64(size), r.Accuracies)
	a.n += float64(size)
}

// means returns the per-class means.
func (a *accumulator) means() ([]float64, []float64) {
	l, c := append([]float64(nil), a.losses...), append([]float64(nil), a.accs...)
	if a.n > 0 {
		floats.Scale(1/a.n, l)
		floats.Scale(1/a.n, c)
	}
	return l, c
}

// epoch trains on all the training minibatches and then evaluates on the validation set.
func (t *Trainer) epoch() (Epoch, error) {
	start := time.Now()
	e := Epoch{Epoch: t.c.Epochs() + 1, HasValidation: len(t.splits.Val) > 0}
	tr := newAccumulator(t.c.NClasses())
	for _, ids := range dataset.Batches(t.splits.Train, t.o.BatchSize, t.rng) {
		in, targets, err := t.input(ids)
		if err != nil {
			return e, err
		}
		r, err := t.c.TrainStep(in, targets)
		if err != nil {
			return e, err
		}
		tr.add(r, len(ids))
	}
	l, a := tr.means()
	e.TrainLoss, e.TrainAccuracy = stat.Mean(l, nil), stat.Mean(a, nil)
	if e.HasValidation {
		va := newAccumulator(t.c.NClasses())
		for _, ids := range dataset.Batches(t.splits.Val, t.o.BatchSize, nil) {
			in, targets, err := t.input(ids)
			if err != nil {
				return e, err
			}
			r, err := t.c.EvalStep(in, targets)
			if err != nil {
				return e, err
			}
			va.add(r, len(ids))
		}
		e.ValLosses, e.ValAccuracies = va.means()
		e.ValLoss, e.ValAccuracy = stat.Mean(e.ValLosses, nil), stat.Mean(e.ValAccuracies, nil)
	}
	if err := t.c.EndEpoch(); err != nil {
		return e, err
	}
	e.Duration = time.Since(start)
	return e, nil
}

// Run trains for the configured number of epochs. ctx is checked only between
// epochs: if it is cancelled, the current parameters are dumped with the
// "interrupted" tag, and Run returns the history so far with ctx's error.
// The history is written next to the checkpoints in any case.
func (t *Trainer) Run(ctx context.Context) (*History, error) {
	t.log.Info("training", append(dataset.Describe(t.src, t.splits.Train).Fields(), zap.Int("epochs", t.o.Epochs), zap.Int("batch_size", t.o.BatchSize))...)
	defer func() {
		if _, err := t.mon.WriteHistory(); err != nil {
			t.log.Warn("can't write the training history", zap.Error(err))
		}
	}()
	for i := 0; i < t.o.Epochs; i++ {
		if err := ctx.Err(); err != nil {
			if _, derr := t.mon.Interrupted(t.c); derr != nil {
				t.log.Error("can't dump the parameters", zap.Error(derr))
			}
			return t.mon.History(), err
		}
		e, err := t.epoch()
		if err != nil {
			return t.mon.History(), err
		}
		if _, err := t.mon.Record(t.c, e); err != nil {
			return t.mon.History(), err
		}
	}
	return t.mon.History(), nil
}

// Test evaluates the classifier on the test split. ctx is checked between minibatches.
func (t *Trainer) Test(ctx context.Context) (*Evaluation, error) {
	ids := t.splits.Test
	if len(ids) == 0 {
		return nil, protfun.NewError(nil, "train.Trainer.Test", "no molecules to test on")
	}
	N := t.c.NClasses()
	ev := &Evaluation{IDs: append([]int(nil), ids...), Classes: append([]string(nil), t.src.Classes()...), Model: t.c.Name()}
	acc := newAccumulator(N)
	targets := make([]float64, 0, len(ids)*N)
	preds := make([]float64, 0, len(ids)*N)
	for _, b := range dataset.Batches(ids, t.o.BatchSize, nil) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		in, y, err := t.input(b)
		if err != nil {
			return nil, err
		}
		r, err := t.c.EvalStep(in, y)
		if err != nil {
			return nil, err
		}
		acc.add(r, len(b))
		for i := range b {
			targets = append(targets, y.RawRowView(i)...)
			preds = append(preds, r.Predictions.RawRowView(i)...)
		}
	}
	ev.Targets = mat.NewDense(len(ids), N, targets)
	ev.Predictions = mat.NewDense(len(ids), N, preds)
	ev.Losses, ev.Accuracies = acc.means()
	t.log.Info("test finished", zap.Int("molecules", len(ids)), zap.Float64("loss", ev.MeanLoss()), zap.Float64("accuracy", ev.MeanAccuracy()))
	return ev, nil
}
