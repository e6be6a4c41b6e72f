/*
 * view.go, part of protfun.
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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/dataset"
	"github.com/rmera/protfun/grid"
	"github.com/rmera/protfun/perf"
	"github.com/rmera/protfun/train"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// figure returns the path of a figure in the figures directory of the data,
// creating the directory.
func (a *app) figure(name string) (string, error) {
	dir := a.cfg.Path("figures")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func rocCmd(a *app) *cobra.Command {
	var in, out string
	cmd := &cobra.Command{
		Use:   "roc",
		Short: "Plot the ROC curves of the test predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if in == "" {
				s, err := a.store()
				if err != nil {
					return err
				}
				in = filepath.Join(s.Path(), evaluationFile)
			}
			ev, err := train.ReadEvaluation(in)
			if err != nil {
				return err
			}
			r, err := perf.ROC(ev.Targets, ev.Predictions)
			if err != nil {
				return err
			}
			r.Labels = ev.Classes
			if out == "" {
				if out, err = a.figure(ev.Model + "_ROC.png"); err != nil {
					return err
				}
			}
			if err := r.Plot(out); err != nil {
				return err
			}
			aucs := make([]float64, len(r.Classes))
			for i, c := range r.Classes {
				aucs[i] = c.AUC
			}
			a.log.Info("ROC curves plotted", zap.String("file", out), zap.Float64("micro_auc", r.Micro.AUC), zap.Float64("macro_auc", r.Macro.AUC), zap.Float64s("auc", aucs))
			return nil
		},
	}
	cmd.Flags().StringVarP(&in, "predictions", "p", "", "test predictions (default: test.zst next to the checkpoints)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "figure file (default: figures/<model>_ROC.png in the data directory)")
	return cmd
}

var channelNames = [grid.NChannels]string{grid.Density: "density", grid.Potential: "potential"}

func parseChannel(s string) (int, error) {
	switch strings.ToLower(s) {
	case "density":
		return grid.Density, nil
	case "potential", "esp":
		return grid.Potential, nil
	}
	return 0, protfun.NewError(nil, "view", fmt.Sprintf("unknown channel %q", s))
}

func parseAxis(s string) (int, error) {
	i := strings.Index("xyz", strings.ToLower(s))
	if len(s) != 1 || i < 0 {
		return 0, protfun.NewError(nil, "view", fmt.Sprintf("unknown axis %q", s))
	}
	return i, nil
}

func viewCmd(a *app) *cobra.Command {
	var (
		mol                int
		channel, axis, out string
		plane              int
	)
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Plot a plane of the density or potential grid of a molecule of the dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := parseChannel(channel)
			if err != nil {
				return err
			}
			ax, err := parseAxis(axis)
			if err != nil {
				return err
			}
			set, err := dataset.Open(a.cfg.Path(a.cfg.Data.Dataset))
			if err != nil {
				return err
			}
			if mol < 0 || mol >= set.Len() {
				return protfun.NewError(protfun.ErrShapeMismatch, "view", fmt.Sprintf("molecule %d out of range for %d molecules", mol, set.Len()))
			}
			m, err := grid.NewMapper(a.cfg.GridOptions(a.log))
			if err != nil {
				return err
			}
			var g *grid.Grid
			if dir := a.cfg.Path(a.cfg.Data.GridCache); dir != "" {
				cache, err := dataset.NewGridCache(dir, m, a.log)
				if err != nil {
					return err
				}
				g, err = cache.Grids(set, []int{mol})
				if err != nil {
					return err
				}
			} else {
				b, _, err := dataset.Load(set, []int{mol}, protfun.NewAssembler(nil))
				if err != nil {
					return err
				}
				if g, err = m.Compute(b); err != nil {
					return err
				}
			}
			if plane < 0 {
				plane = g.G / 2
			}
			if out == "" {
				name := fmt.Sprintf("%s_%s_%s%d.png", set.Molecule(mol).ID, channelNames[c], strings.ToLower(axis), plane)
				if out, err = a.figure(name); err != nil {
					return err
				}
			}
			if err := perf.DensitySlice(g, 0, c, ax, plane, out); err != nil {
				return err
			}
			a.log.Info("grid plane plotted", zap.String("file", out), zap.String("molecule", set.Molecule(mol).ID), zap.Float64("density", g.MoleculeSum(0, grid.Density)))
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVarP(&mol, "molecule", "m", 0, "index of the molecule in the dataset")
	f.StringVar(&channel, "channel", "density", "density or potential")
	f.StringVar(&axis, "axis", "z", "axis perpendicular to the plane: x, y or z")
	f.IntVar(&plane, "plane", -1, "index of the plane along the axis (default: the middle one)")
	f.StringVarP(&out, "out", "o", "", "figure file (default: in the figures directory of the data)")
	return cmd
}
