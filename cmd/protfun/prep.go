/*
 * prep.go, part of protfun.
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
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/dataset"
	"github.com/rmera/protfun/ontology"
	"github.com/rmera/protfun/prep"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// isPDB returns true for names ending in .pdb or .ent, possibly followed by .gz or .zst.
func isPDB(name string) bool {
	name = strings.TrimSuffix(strings.TrimSuffix(strings.ToLower(name), ".gz"), ".zst")
	ext := filepath.Ext(name)
	return ext == ".pdb" || ext == ".ent"
}

// pdbFiles returns the given files, and the PDB files under the given directories.
func pdbFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		fi, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !fi.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && isPDB(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// fetcher returns the GO annotation source, and a function to release it.
func (a *app) fetcher() (ontology.Fetcher, func(), error) {
	q := ontology.NewQuickGO(a.cfg.ClientOptions(a.log))
	var store ontology.Store
	release := func() {}
	if db := a.cfg.Path(a.cfg.Ontology.CacheDB); db != "" {
		s, err := ontology.OpenSQLiteStore(db, a.log)
		if err != nil {
			return nil, nil, err
		}
		store = s
		release = func() {
			if err := s.Close(); err != nil {
				a.log.Warn("can't close the annotation database", zap.Error(err))
			}
		}
	}
	c, err := ontology.NewCached(q, a.cfg.Ontology.CacheSize, store, a.log)
	if err != nil {
		release()
		return nil, nil, err
	}
	return c, release, nil
}

func prepCmd(a *app) *cobra.Command {
	var annotations string
	cmd := &cobra.Command{
		Use:   "prep [PDB files or directories]",
		Short: "Build a dataset from PDB files, labeled with their GO annotations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := pdbFiles(args)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(a.cfg.Data.Dir, 0o755); err != nil {
				return err
			}
			f, release, err := a.fetcher()
			if err != nil {
				return err
			}
			defer release()
			var labels *ontology.LabelSet
			if len(a.cfg.Data.Classes) > 0 {
				labels = ontology.NewLabelSet(a.cfg.Data.Classes)
			}
			a.log.Info("preparing dataset", zap.Int("files", len(files)))
			set, rep, err := prep.New(f, labels, a.cfg.PrepOptions(a.log)).Process(cmd.Context(), files)
			if err != nil {
				return err
			}
			if set.Len() == 0 {
				return protfun.NewError(nil, "prep", "none of the files could be used")
			}
			name := a.cfg.Path(a.cfg.Data.Dataset)
			if err := dataset.Write(name, set); err != nil {
				return err
			}
			if annotations != "" {
				ids := make([]string, set.Len())
				for i := range ids {
					ids[i] = set.Molecule(i).ID
				}
				out, err := os.Create(a.cfg.Path(annotations))
				if err != nil {
					return err
				}
				if err := rep.WriteAnnotations(out, ids); err != nil {
					out.Close()
					return err
				}
				if err := out.Close(); err != nil {
					return err
				}
			}
			a.log.Info("dataset written", append(dataset.Describe(set, nil).Fields(), zap.String("file", name), zap.Strings("classes", set.Classes()))...)
			return nil
		},
	}
	cmd.Flags().StringVar(&annotations, "annotations", "annotations.csv", "CSV file for the GO ids of each molecule, in the data directory. Empty for none.")
	return cmd
}
