/*
 * classifier.go, part of protfun.
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

// Package classifier implements a multi-label ("disjoint class") convolutional
// classifier over molecule grids: the network layers, the binary cross
// entropy objective, the Adam optimizer, and the train/eval steps.
package classifier

import (
	"fmt"
	"math/rand"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/grid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// State is the lifecycle state of a Classifier.
type State int

const (
	Uninitialized State = iota
	Compiled
	Trained //at least one epoch finished
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Compiled:
		return "compiled"
	case Trained:
		return "trained"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Options contains the options for a Classifier.
type Options struct {
	Name         string //used to name checkpoints
	NClasses     int
	LearningRate float64
	Rotate       bool          //randomly rotate the inputs in training steps
	Mapper       *grid.Mapper  //maps MoleculeInputs. If nil, a default one matching the input shape is used.
	Rotator      *grid.Rotator //nil means grid.NewRotator(nil)
	Seed         int64         //for weight initialization, dropout and rotations
	Logger       *zap.Logger
}

// DefaultOptions returns the default options: 2 classes, learning rate 1e-4 and
// rotated training inputs.
func DefaultOptions() *Options {
	return &Options{Name: "protfun", NClasses: 2, LearningRate: 1e-4, Rotate: true, Seed: 1}
}

// StepResult contains the outputs of a training or evaluation step.
type StepResult struct {
	Losses      []float64  //per class, averaged over the batch
	Accuracies  []float64  //per class, averaged over the batch
	Predictions *mat.Dense //BxNClasses probabilities
}

// MeanLoss returns the mean of the per-class losses, which is the quantity minimized
// in training.
func (s *StepResult) MeanLoss() float64 {
	return stat.Mean(s.Losses, nil)
}

// MeanAccuracy returns the mean of the per-class accuracies.
func (s *StepResult) MeanAccuracy() float64 {
	return stat.Mean(s.Accuracies, nil)
}

// Classifier is a network trained to predict NClasses independent binary labels
// for each molecule. It must be compiled before it can be used.
// A Classifier is not safe for concurrent use.
type Classifier struct {
	o       Options
	log     *zap.Logger
	state   State
	epochs  int
	inShape []int
	net     Network
	opt     *Adam
	rng     *rand.Rand
}

// New returns an uninitialized Classifier. A nil o means the default options.
func New(o *Options) (*Classifier, error) {
	if o == nil {
		o = DefaultOptions()
	}
	if o.NClasses <= 0 {
		return nil, protfun.NewError(nil, "classifier.New", fmt.Sprintf("the number of classes must be positive, got %d", o.NClasses))
	}
	if !(o.LearningRate > 0) {
		return nil, protfun.NewError(nil, "classifier.New", fmt.Sprintf("the learning rate must be positive, got %g", o.LearningRate))
	}
	c := &Classifier{o: *o, log: o.Logger}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c, nil
}

func (c *Classifier) Name() string         { return c.o.Name }
func (c *Classifier) NClasses() int        { return c.o.NClasses }
func (c *Classifier) State() State         { return c.state }
func (c *Classifier) Epochs() int          { return c.epochs }
func (c *Classifier) InShape() []int       { return append([]int(nil), c.inShape...) }
func (c *Classifier) Mapper() *grid.Mapper { return c.o.Mapper }

// Compile builds the network for inputs of shape inShape, [C,G,G,G], with the
// given builder (SmallConvNet if nil) and resets the optimizer and the epoch count.
func (c *Classifier) Compile(builder NetworkBuilder, inShape []int) error {
	if builder == nil {
		builder = SmallConvNet
	}
	if len(inShape) != 4 || inShape[0] != grid.NChannels || inShape[1] != inShape[2] || inShape[1] != inShape[3] {
		return protfun.NewError(protfun.ErrShapeMismatch, "classifier.Compile", fmt.Sprintf("input shape must be [%d,G,G,G], got %v", grid.NChannels, inShape))
	}
	if c.o.Mapper == nil {
		o := grid.DefaultOptions()
		o.Size = inShape[1]
		o.Logger = c.log
		m, err := grid.NewMapper(o)
		if err != nil {
			return protfun.NewError(protfun.ErrInvalidGridConfig, "classifier.Compile", err.Error())
		}
		c.o.Mapper = m
	} else if s := c.o.Mapper.Options().Size; s != inShape[1] {
		return protfun.NewError(protfun.ErrShapeMismatch, "classifier.Compile", fmt.Sprintf("the mapper produces grids of size %d, the input shape is %v", s, inShape))
	}
	if c.o.Rotator == nil {
		c.o.Rotator = grid.NewRotator(nil)
	}
	c.rng = rand.New(rand.NewSource(c.o.Seed))
	net, err := builder(inShape, c.o.NClasses, c.rng)
	if err != nil {
		return err
	}
	c.net = net
	c.inShape = append([]int(nil), inShape...)
	c.opt = NewAdam(c.o.LearningRate)
	c.state = Compiled
	c.epochs = 0
	c.log.Debug("classifier compiled", zap.String("name", c.o.Name), zap.Ints("input", inShape), zap.Int("params", len(c.ParamValues())))
	return nil
}

func (c *Classifier) notCompiled(caller string) error {
	return protfun.NewError(protfun.ErrNotCompiled, caller, fmt.Sprintf("classifier %s is %s", c.o.Name, c.state))
}

// prepare checks the input and targets and turns the input into a tensor,
// rotating it if train is true and the options ask for it.
func (c *Classifier) prepare(caller string, in Input, targets *mat.Dense, train bool) (*Tensor, error) {
	if c.state == Uninitialized {
		return nil, c.notCompiled(caller)
	}
	if in == nil || in.Len() == 0 {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, caller, "empty input")
	}
	if targets != nil {
		if r, n := targets.Dims(); r != in.Len() || n != c.o.NClasses {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, caller, fmt.Sprintf("targets are %dx%d, expected %dx%d", r, n, in.Len(), c.o.NClasses))
		}
	}
	if train && c.o.Rotate {
		switch v := in.(type) {
		case MoleculeInput:
			b, _ := c.o.Rotator.RotateBatch(v.Batch, c.rng)
			in = MoleculeInput{Batch: b}
		case GridInput:
			in = GridInput{Grid: c.o.Rotator.Rotate(v.Grid, c.rng)}
		}
	}
	g, err := ToGrid(in, c.o.Mapper)
	if err != nil {
		return nil, err
	}
	if g.C != c.inShape[0] || g.G != c.inShape[1] {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, caller, fmt.Sprintf("grids are %v, the classifier was compiled for %v", g.Shape()[1:], c.inShape))
	}
	return &Tensor{Shape: g.Shape(), Data: g.Data}, nil
}

func (c *Classifier) forward(x *Tensor, train bool) (*mat.Dense, error) {
	out, err := c.net.Forward(x, train)
	if err != nil {
		return nil, err
	}
	if len(out.Shape) != 2 || out.Shape[1] != c.o.NClasses {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "classifier.forward", fmt.Sprintf("the network returned %v, expected [B,%d]", out.Shape, c.o.NClasses))
	}
	return mat.NewDense(out.Shape[0], out.Shape[1], out.Data), nil
}

// TrainStep runs the network in training mode on in, and updates its parameters
// with one Adam step on the mean binary cross entropy against targets (BxNClasses).
// The results are computed before the update.
func (c *Classifier) TrainStep(in Input, targets *mat.Dense) (*StepResult, error) {
	x, err := c.prepare("classifier.TrainStep", in, targets, true)
	if err != nil {
		return nil, err
	}
	logits, err := c.forward(x, true)
	if err != nil {
		return nil, err
	}
	losses, probs, grad := BCEWithLogits(logits, targets)
	params := c.net.Params()
	for _, p := range params {
		p.ZeroGrad()
	}
	B, N := grad.Dims()
	c.net.Backward(&Tensor{Shape: []int{B, N}, Data: grad.RawMatrix().Data})
	c.opt.Step(params)
	res := &StepResult{Losses: losses, Accuracies: Accuracies(probs, targets), Predictions: probs}
	c.log.Debug("train step", zap.Int("step", c.opt.Steps()), zap.Float64("loss", res.MeanLoss()), zap.Float64("accuracy", res.MeanAccuracy()))
	return res, nil
}

// EvalStep runs the network in evaluation mode on in, and returns the losses,
// accuracies and predictions against targets. Parameters are not changed.
func (c *Classifier) EvalStep(in Input, targets *mat.Dense) (*StepResult, error) {
	x, err := c.prepare("classifier.EvalStep", in, targets, false)
	if err != nil {
		return nil, err
	}
	logits, err := c.forward(x, false)
	if err != nil {
		return nil, err
	}
	losses, probs, _ := BCEWithLogits(logits, targets)
	return &StepResult{Losses: losses, Accuracies: Accuracies(probs, targets), Predictions: probs}, nil
}

// Predict returns the BxNClasses probabilities for in, in evaluation mode.
func (c *Classifier) Predict(in Input) (*mat.Dense, error) {
	x, err := c.prepare("classifier.Predict", in, nil, false)
	if err != nil {
		return nil, err
	}
	logits, err := c.forward(x, false)
	if err != nil {
		return nil, err
	}
	B, N := logits.Dims()
	probs := mat.NewDense(B, N, nil)
	probs.Apply(func(_, _ int, z float64) float64 { return Sigmoid(z) }, logits)
	return probs, nil
}

// EndEpoch marks the end of a training epoch.
func (c *Classifier) EndEpoch() error {
	if c.state == Uninitialized {
		return c.notCompiled("classifier.EndEpoch")
	}
	c.epochs++
	c.state = Trained
	return nil
}

// Params returns the parameters of the network, in a fixed order. Nil if the
// classifier is not compiled.
func (c *Classifier) Params() []*Param {
	if c.net == nil {
		return nil
	}
	return c.net.Params()
}

// ParamValues returns a copy of the values of the parameters, in the order of Params.
func (c *Classifier) ParamValues() [][]float64 {
	params := c.Params()
	ret := make([][]float64, len(params))
	for i, p := range params {
		ret[i] = append([]float64(nil), p.Data...)
	}
	return ret
}

// SetParams replaces the values of the parameters with values, which must match
// the number and sizes of Params. The optimizer state is reset.
func (c *Classifier) SetParams(values [][]float64) error {
	if c.state == Uninitialized {
		return c.notCompiled("classifier.SetParams")
	}
	params := c.Params()
	if len(values) != len(params) {
		return protfun.NewError(protfun.ErrShapeMismatch, "classifier.SetParams", fmt.Sprintf("%d arrays for %d parameters", len(values), len(params)))
	}
	for i, p := range params {
		if len(values[i]) != len(p.Data) {
			return protfun.NewError(protfun.ErrShapeMismatch, "classifier.SetParams", fmt.Sprintf("parameter %s has %d values, got %d", p, len(p.Data), len(values[i])))
		}
	}
	for i, p := range params {
		copy(p.Data, values[i])
	}
	c.opt = NewAdam(c.o.LearningRate)
	return nil
}
