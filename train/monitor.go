/*
 * monitor.go, part of protfun.
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
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/checkpoint"
	"github.com/rmera/protfun/classifier"
	"go.uber.org/zap"
)

// Epoch contains the results of one training epoch. Losses and accuracies are
// means over the molecules of each split, per class and over all classes.
type Epoch struct {
	Epoch         int           `json:"epoch"`
	TrainLoss     float64       `json:"train_loss"`
	TrainAccuracy float64       `json:"train_accuracy"`
	ValLoss       float64       `json:"val_loss"`
	ValAccuracy   float64       `json:"val_accuracy"`
	ValLosses     []float64     `json:"val_losses,omitempty"`
	ValAccuracies []float64     `json:"val_accuracies,omitempty"`
	Duration      time.Duration `json:"duration_ns"`
	Checkpoint    string        `json:"checkpoint,omitempty"`
	HasValidation bool          `json:"has_validation"`
}

// monitored returns the loss that decides whether the model improved.
func (e Epoch) monitored() float64 {
	if e.HasValidation {
		return e.ValLoss
	}
	return e.TrainLoss
}

// History is the record of a training run.
type History struct {
	Model       string  `json:"model"`
	Run         string  `json:"run"`
	Epochs      []Epoch `json:"epochs"`
	BestEpoch   int     `json:"best_epoch"` //-1 if no epoch has finished
	BestLoss    float64 `json:"best_loss"`
	Interrupted string  `json:"interrupted,omitempty"` //checkpoint dumped on cancellation
}

// Monitor keeps the history of a training run, and saves a checkpoint whenever
// the mean validation loss improves.
type Monitor struct {
	store *checkpoint.Store
	log   *zap.Logger
	h     History
}

// NewMonitor returns a monitor that saves checkpoints in store. A nil logger
// means no logging.
func NewMonitor(store *checkpoint.Store, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		store: store,
		log:   log,
		h:     History{Model: store.Name, Run: store.Run.String(), BestEpoch: -1, BestLoss: math.MaxFloat64},
	}
}

// Record adds e to the history. If the monitored loss is the best so far, the
// parameters of c are saved and Record returns true.
func (m *Monitor) Record(c *classifier.Classifier, e Epoch) (bool, error) {
	improved := e.monitored() < m.h.BestLoss
	if improved {
		path, err := m.store.Save(c.Params(), e.Epoch, "")
		if err != nil {
			m.h.Epochs = append(m.h.Epochs, e)
			return false, err
		}
		e.Checkpoint = path
		m.h.BestEpoch = e.Epoch
		m.h.BestLoss = e.monitored()
	}
	m.h.Epochs = append(m.h.Epochs, e)
	m.log.Info("epoch finished",
		zap.Int("epoch", e.Epoch),
		zap.Float64("train_loss", e.TrainLoss),
		zap.Float64("train_accuracy", e.TrainAccuracy),
		zap.Float64("val_loss", e.ValLoss),
		zap.Float64("val_accuracy", e.ValAccuracy),
		zap.Duration("took", e.Duration),
		zap.Bool("improved", improved))
	return improved, nil
}

// Interrupted saves the current parameters of c with the "interrupted" tag.
func (m *Monitor) Interrupted(c *classifier.Classifier) (string, error) {
	path, err := m.store.Save(c.Params(), c.Epochs(), "interrupted")
	if err != nil {
		return "", err
	}
	m.h.Interrupted = path
	m.log.Warn("training interrupted, parameters dumped", zap.String("path", path))
	return path, nil
}

// History returns a copy of the history so far.
func (m *Monitor) History() *History {
	h := m.h
	h.Epochs = append([]Epoch(nil), m.h.Epochs...)
	return &h
}

// WriteHistory writes the history as JSON to history.json, next to the checkpoints,
// and returns the file name.
func (m *Monitor) WriteHistory() (string, error) {
	h := m.History()
	if h.BestEpoch < 0 {
		h.BestLoss = 0 //MaxFloat64 is valid JSON, but meaningless
	}
	b, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return "", protfun.NewError(nil, "train.Monitor.WriteHistory", err.Error())
	}
	name := filepath.Join(m.store.Path(), "history.json")
	if err := os.WriteFile(name, b, 0o644); err != nil {
		return "", protfun.NewError(nil, "train.Monitor.WriteHistory", err.Error())
	}
	return name, nil
}

// ReadHistory reads a history written by WriteHistory.
func ReadHistory(name string) (*History, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return nil, protfun.NewError(nil, "train.ReadHistory", err.Error())
	}
	h := new(History)
	if err := json.Unmarshal(b, h); err != nil {
		return nil, protfun.NewError(nil, "train.ReadHistory", err.Error())
	}
	return h, nil
}
