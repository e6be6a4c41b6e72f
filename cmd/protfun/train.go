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

package main

import (
	"path/filepath"

	"github.com/rmera/protfun/checkpoint"
	"github.com/rmera/protfun/classifier"
	"github.com/rmera/protfun/dataset"
	"github.com/rmera/protfun/grid"
	"github.com/rmera/protfun/train"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const evaluationFile = "test.zst"

// data opens the dataset and splits it.
func (a *app) data() (*dataset.Memory, dataset.Splits, error) {
	d := a.cfg.Data
	set, err := dataset.Open(a.cfg.Path(d.Dataset))
	if err != nil {
		return nil, dataset.Splits{}, err
	}
	splits, err := dataset.Split(set.Len(), d.TestFraction, d.ValFraction, d.SplitSeed)
	if err != nil {
		return nil, dataset.Splits{}, err
	}
	a.log.Debug("dataset split", zap.Int("train", len(splits.Train)), zap.Int("validation", len(splits.Val)), zap.Int("test", len(splits.Test)))
	return set, splits, nil
}

// classifier returns a compiled classifier for the classes of src.
func (a *app) classifier(src dataset.Source) (*classifier.Classifier, error) {
	m, err := grid.NewMapper(a.cfg.GridOptions(a.log))
	if err != nil {
		return nil, err
	}
	c, err := classifier.New(a.cfg.ClassifierOptions(len(src.Classes()), m, a.log))
	if err != nil {
		return nil, err
	}
	if err := c.Compile(a.cfg.Builder(), a.cfg.InShape()); err != nil {
		return nil, err
	}
	return c, nil
}

func (a *app) store() (*checkpoint.Store, error) {
	return checkpoint.NewStore(a.cfg.Path(a.cfg.Model.Checkpoints), a.cfg.Model.Name, a.log)
}

// restore loads the checkpoint path into c. "latest" means the most recent
// checkpoint of the store.
func (a *app) restore(c *classifier.Classifier, s *checkpoint.Store, path string) error {
	if path == "latest" {
		var err error
		if path, err = s.Latest(); err != nil {
			return err
		}
	}
	meta, err := checkpoint.Restore(c, path)
	if err != nil {
		return err
	}
	a.log.Info("parameters restored", zap.String("file", path), zap.String("epoch", meta[checkpoint.KeyEpoch]), zap.String("run", meta[checkpoint.KeyRun]))
	return nil
}

func (a *app) trainer(c *classifier.Classifier, src dataset.Source, splits dataset.Splits, s *checkpoint.Store) (*train.Trainer, error) {
	o := a.cfg.TrainOptions(a.log)
	if dir := a.cfg.Path(a.cfg.Data.GridCache); dir != "" {
		cache, err := dataset.NewGridCache(dir, c.Mapper(), a.log)
		if err != nil {
			return nil, err
		}
		o.Cache = cache
	}
	return train.New(c, src, splits, train.NewMonitor(s, a.log), o)
}

func trainCmd(a *app) *cobra.Command {
	var resume string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a classifier on the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, splits, err := a.data()
			if err != nil {
				return err
			}
			c, err := a.classifier(set)
			if err != nil {
				return err
			}
			s, err := a.store()
			if err != nil {
				return err
			}
			if resume != "" {
				if err := a.restore(c, s, resume); err != nil {
					return err
				}
			}
			t, err := a.trainer(c, set, splits, s)
			if err != nil {
				return err
			}
			h, err := t.Run(cmd.Context())
			if h != nil {
				a.log.Info("training finished", zap.Int("epochs", len(h.Epochs)), zap.Int("best_epoch", h.BestEpoch), zap.String("run", h.Run))
			}
			return err
		},
	}
	cmd.Flags().StringVar(&resume, "resume", "", `checkpoint to start from, or "latest"`)
	return cmd
}

func testCmd(a *app) *cobra.Command {
	var from, out string
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Evaluate a trained classifier on the test split",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, splits, err := a.data()
			if err != nil {
				return err
			}
			c, err := a.classifier(set)
			if err != nil {
				return err
			}
			s, err := a.store()
			if err != nil {
				return err
			}
			if err := a.restore(c, s, from); err != nil {
				return err
			}
			t, err := a.trainer(c, set, splits, s)
			if err != nil {
				return err
			}
			ev, err := t.Test(cmd.Context())
			if err != nil {
				return err
			}
			if out == "" {
				out = filepath.Join(s.Path(), evaluationFile)
			}
			if err := ev.Write(out); err != nil {
				return err
			}
			a.log.Info("test results written", zap.String("file", out), zap.Float64s("losses", ev.Losses), zap.Float64s("accuracies", ev.Accuracies))
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "checkpoint", "latest", "checkpoint with the parameters to test")
	cmd.Flags().StringVarP(&out, "out", "o", "", "file for the predictions (default: test.zst next to the checkpoints)")
	return cmd
}
