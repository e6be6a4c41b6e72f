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

// Package prep builds datasets from PDB files, labeling each molecule with the
// Gene Ontology terms of the UniProt entries it references.
package prep

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/rmera/protfun"
	"github.com/rmera/protfun/dataset"
	"github.com/rmera/protfun/internal/workers"
	"github.com/rmera/protfun/ontology"
	"go.uber.org/zap"
)

// Options contains the options for a Preparer.
type Options struct {
	PDB           *protfun.PDBOptions //nil means protfun.DefaultPDBOptions()
	MaxAtoms      int                 //larger molecules are skipped. 0 means no limit.
	SkipUnlabeled bool                //skip molecules with none of the classes
	Cpus          int                 //files parsed at the same time, 0 means runtime.NumCPU()
	Logger        *zap.Logger
}

// DefaultOptions returns the default options.
func DefaultOptions() *Options {
	return &Options{PDB: protfun.DefaultPDBOptions()}
}

// Skipped is a file that didn't make it into the dataset, and why.
type Skipped struct {
	File   string
	Reason string
}

// Report describes what Process did with each file.
type Report struct {
	Kept        []string            //files in the dataset, in dataset order
	Skipped     []Skipped
	Annotations map[string][]string //GO ids of each kept molecule, by molecule id
}

// Fields returns a summary of the report as log fields.
func (r *Report) Fields() []zap.Field {
	return []zap.Field{zap.Int("kept", len(r.Kept)), zap.Int("skipped", len(r.Skipped))}
}

// WriteAnnotations writes one CSV line per kept molecule: its id followed by its GO ids.
func (r *Report) WriteAnnotations(w io.Writer, ids []string) error {
	cw := csv.NewWriter(w)
	for _, id := range ids {
		if err := cw.Write(append([]string{id}, r.Annotations[id]...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Preparer turns PDB files into a labeled dataset.
type Preparer struct {
	f      ontology.Fetcher
	labels *ontology.LabelSet
	o      Options
	log    *zap.Logger
}

// New returns a Preparer that looks up GO terms with f. If labels is nil,
// the classes are all the GO ids found in the processed files. A nil o means
// the default options.
func New(f ontology.Fetcher, labels *ontology.LabelSet, o *Options) *Preparer {
	if o == nil {
		o = DefaultOptions()
	}
	p := &Preparer{f: f, labels: labels, o: *o, log: o.Logger}
	if p.o.PDB == nil {
		p.o.PDB = protfun.DefaultPDBOptions()
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

type parsed struct {
	rec     *protfun.MoleculeRecord
	uniprot []string
	unknown int
	err     error
}

func (p *Preparer) parse(name string) parsed {
	pdb, err := protfun.PDBFileRead(name)
	if err != nil {
		return parsed{err: err}
	}
	rec, unknown, err := pdb.Record(p.o.PDB)
	return parsed{rec: rec, uniprot: pdb.UniProt, unknown: unknown, err: err}
}

// Process reads files and returns the dataset of the molecules that could be read
// and labeled, with a report. Files that can't be used are skipped and logged.
// Process only fails if ctx is cancelled.
func (p *Preparer) Process(ctx context.Context, files []string) (*dataset.Memory, *Report, error) {
	mols := make([]parsed, len(files))
	workers.Parallel(len(files), p.o.Cpus, func(i int) {
		mols[i] = p.parse(files[i])
	})
	rep := &Report{Annotations: make(map[string][]string)}
	skip := func(file, reason string, fields ...zap.Field) {
		rep.Skipped = append(rep.Skipped, Skipped{File: file, Reason: reason})
		p.log.Info("skipping PDB file", append([]zap.Field{zap.String("file", file), zap.String("reason", reason)}, fields...)...)
	}
	var kept []int
	var annotations [][]string
	for i, m := range mols {
		if err := ctx.Err(); err != nil {
			return nil, rep, err
		}
		switch {
		case m.err != nil:
			skip(files[i], "invalid molecule", zap.Error(m.err))
			continue
		case m.rec.AtomsCount == 0:
			skip(files[i], "no atoms")
			continue
		case p.o.MaxAtoms > 0 && m.rec.AtomsCount > p.o.MaxAtoms:
			skip(files[i], fmt.Sprintf("%d atoms, more than %d", m.rec.AtomsCount, p.o.MaxAtoms))
			continue
		case len(m.uniprot) == 0:
			skip(files[i], "no gene ontologies: no UniProt references")
			continue
		}
		if m.unknown > 0 {
			p.log.Warn("atoms of unknown elements got the default radius", zap.String("file", files[i]), zap.Int("atoms", m.unknown))
		}
		ids, err := ontology.FetchAll(ctx, p.f, m.uniprot)
		if err != nil {
			if ctx.Err() != nil {
				return nil, rep, ctx.Err()
			}
			skip(files[i], "GO lookup failed", zap.Error(err))
			continue
		}
		if len(ids) == 0 {
			skip(files[i], "no gene ontologies")
			continue
		}
		kept = append(kept, i)
		annotations = append(annotations, ids)
	}
	labels := p.labels
	if labels == nil {
		labels = ontology.LabelSetFrom(annotations)
	}
	set := dataset.NewMemory(labels.IDs())
	for j, i := range kept {
		rec := mols[i].rec
		target := labels.MultiHot(annotations[j])
		if p.o.SkipUnlabeled && !labeled(target) {
			skip(files[i], "none of the classes")
			continue
		}
		if _, dup := rep.Annotations[rec.ID]; dup {
			rec.ID = fmt.Sprintf("%s_%d", rec.ID, i)
		}
		if err := set.Add(rec, target); err != nil {
			skip(files[i], "invalid molecule", zap.Error(err))
			continue
		}
		rep.Kept = append(rep.Kept, files[i])
		rep.Annotations[rec.ID] = annotations[j]
	}
	if p.o.MaxAtoms > 0 {
		set.SetMaxAtoms(p.o.MaxAtoms)
	}
	p.log.Info("dataset prepared", append(rep.Fields(), zap.Int("classes", labels.Len()))...)
	return set, rep, nil
}

func labeled(v []float64) bool {
	for _, x := range v {
		if x != 0 {
			return true
		}
	}
	return false
}
