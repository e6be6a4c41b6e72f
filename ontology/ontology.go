/*
 * ontology.go, part of protfun.
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

// Package ontology looks up the Gene Ontology (GO) terms annotated to UniProt
// accessions, and turns them into the multi-hot targets of a classifier.
package ontology

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"sort"
	"sync/atomic"

	"github.com/rmera/protfun"
)

// Unknown is the only term returned for proteins without GO annotations.
const Unknown = "unknown"

// Fetcher returns the GO ids annotated to a UniProt accession.
type Fetcher interface {
	Fetch(ctx context.Context, uniprotID string) ([]string, error)
}

// ParseTSV reads a QuickGO annotation table and returns the GO ids in its 7th
// column, without repetitions and in order of appearance. The first line is a
// header and is skipped. If there are no annotations, it returns []string{Unknown}.
func ParseTSV(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	var ret []string
	seen := make(map[string]bool)
	header := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, protfun.NewError(nil, "ontology.ParseTSV", err.Error())
		}
		if header {
			header = false
			continue
		}
		if len(rec) < 7 || rec[6] == "" || seen[rec[6]] {
			continue
		}
		seen[rec[6]] = true
		ret = append(ret, rec[6])
	}
	if len(ret) == 0 {
		return []string{Unknown}, nil
	}
	return ret, nil
}

// FetchAll fetches the GO ids of all the accessions with f, and returns their union,
// in order of appearance.
func FetchAll(ctx context.Context, f Fetcher, accessions []string) ([]string, error) {
	var ret []string
	seen := make(map[string]bool)
	for _, acc := range accessions {
		ids, err := f.Fetch(ctx, acc)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				ret = append(ret, id)
			}
		}
	}
	return ret, nil
}

// Static is a Fetcher that serves fixed annotations. Accessions it doesn't know
// get []string{Unknown}. It is safe for concurrent use as long as Data is not modified.
type Static struct {
	Data  map[string][]string
	calls atomic.Int64
}

// NewStatic returns a Static fetcher with the given annotations.
func NewStatic(data map[string][]string) *Static {
	return &Static{Data: data}
}

func (s *Static) Fetch(ctx context.Context, uniprotID string) ([]string, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ids, ok := s.Data[uniprotID]
	if !ok || len(ids) == 0 {
		return []string{Unknown}, nil
	}
	return append([]string(nil), ids...), nil
}

// Calls returns the number of times Fetch has been called.
func (s *Static) Calls() int { return int(s.calls.Load()) }

// LabelSet is an ordered set of GO ids, the classes of a classifier.
type LabelSet struct {
	ids   []string
	index map[string]int
}

// NewLabelSet returns a LabelSet with ids, in that order. Repeated ids are ignored.
func NewLabelSet(ids []string) *LabelSet {
	l := &LabelSet{index: make(map[string]int, len(ids))}
	for _, id := range ids {
		if _, ok := l.index[id]; ok {
			continue
		}
		l.index[id] = len(l.ids)
		l.ids = append(l.ids, id)
	}
	return l
}

// LabelSetFrom returns a LabelSet with all the ids in annotations except Unknown,
// sorted.
func LabelSetFrom(annotations [][]string) *LabelSet {
	seen := make(map[string]bool)
	var ids []string
	for _, a := range annotations {
		for _, id := range a {
			if id != Unknown && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return NewLabelSet(ids)
}

func (l *LabelSet) Len() int      { return len(l.ids) }
func (l *LabelSet) IDs() []string { return append([]string(nil), l.ids...) }

// Index returns the position of id in the set, and whether it is in the set.
func (l *LabelSet) Index(id string) (int, bool) {
	i, ok := l.index[id]
	return i, ok
}

// MultiHot returns a vector with a 1 in the position of every id of goIDs that
// is in the set, and 0 elsewhere. Ids not in the set are ignored.
func (l *LabelSet) MultiHot(goIDs []string) []float64 {
	ret := make([]float64, len(l.ids))
	for _, id := range goIDs {
		if i, ok := l.index[id]; ok {
			ret[i] = 1
		}
	}
	return ret
}
