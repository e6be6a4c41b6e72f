/*
 * checkpoint.go, part of protfun.
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

// Package checkpoint saves and restores the parameters of a classifier.
//
// Checkpoints are archive files called params[_Nep][_tag].zst, kept in a directory
// named after the model.
package checkpoint

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rmera/protfun"
	"github.com/rmera/protfun/archive"
	"github.com/rmera/protfun/classifier"
	"go.uber.org/zap"
)

// Suffix is the file suffix used for new checkpoints.
const Suffix = ".zst"

// Metadata keys written with every checkpoint.
const (
	KeyRun    = "run"
	KeyModel  = "model"
	KeyEpoch  = "epoch"
	KeyTag    = "tag"
	KeySaved  = "saved"
	KeyParams = "nparams"
)

// Store keeps the checkpoints of one model under Dir/Name. All the checkpoints
// written by a Store carry the same run identifier.
type Store struct {
	Dir  string
	Name string
	Run  uuid.UUID
	log  *zap.Logger
}

// NewStore returns a Store for the model name under dir, creating the directory
// if needed. A nil logger means no logging.
func NewStore(dir, name string, log *zap.Logger) (*Store, error) {
	if name == "" {
		name = "model"
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{Dir: dir, Name: name, Run: uuid.New(), log: log}
	if err := os.MkdirAll(s.Path(), 0o755); err != nil {
		return nil, protfun.NewError(nil, "checkpoint.NewStore", err.Error())
	}
	return s, nil
}

// Path returns the directory where the checkpoints are stored.
func (s *Store) Path() string { return filepath.Join(s.Dir, s.Name) }

// FileName returns the name, without directory, of the checkpoint for the given
// epoch and tag. A negative epoch or an empty tag are left out of the name.
func FileName(epoch int, tag string) string {
	name := "params"
	if epoch >= 0 {
		name += fmt.Sprintf("_%dep", epoch)
	}
	if tag != "" {
		name += "_" + tag
	}
	return name + Suffix
}

// Save writes params into a new checkpoint and returns its path.
func (s *Store) Save(params []*classifier.Param, epoch int, tag string) (string, error) {
	arrays := make([]archive.Array, 0, len(params))
	total := 0
	for _, p := range params {
		a, err := archive.NewArray(p.Name, p.Data, p.Shape...)
		if err != nil {
			return "", protfun.NewError(protfun.ErrShapeMismatch, "checkpoint.Save", err.Error())
		}
		arrays = append(arrays, a)
		total += len(p.Data)
	}
	meta := map[string]string{
		KeyRun:    s.Run.String(),
		KeyModel:  s.Name,
		KeyEpoch:  strconv.Itoa(epoch),
		KeyTag:    tag,
		KeySaved:  time.Now().UTC().Format(time.RFC3339),
		KeyParams: strconv.Itoa(total),
	}
	path := filepath.Join(s.Path(), FileName(epoch, tag))
	if err := archive.Write(path, meta, arrays); err != nil {
		return "", protfun.NewError(nil, "checkpoint.Save", err.Error())
	}
	s.log.Info("saved model parameters", zap.String("path", path), zap.Int("params", total), zap.Int("epoch", epoch))
	return path, nil
}

// Load reads the checkpoint in path. Files without a known archive suffix are refused.
func Load(path string) ([]archive.Array, map[string]string, error) {
	if !archive.Known(path) {
		return nil, nil, protfun.NewError(nil, "checkpoint.Load", fmt.Sprintf("%s is not a checkpoint file", path))
	}
	meta, arrays, err := archive.Read(path)
	if err != nil {
		return nil, nil, protfun.NewError(nil, "checkpoint.Load", err.Error())
	}
	return arrays, meta, nil
}

// Restore loads the checkpoint in path into the compiled classifier c.
// The names and sizes of the saved arrays must match c's parameters.
func Restore(c *classifier.Classifier, path string) (map[string]string, error) {
	if c.State() == classifier.Uninitialized {
		return nil, protfun.NewError(protfun.ErrNotCompiled, "checkpoint.Restore", "can't restore parameters into an uncompiled classifier")
	}
	arrays, meta, err := Load(path)
	if err != nil {
		return nil, err
	}
	params := c.Params()
	if len(params) != len(arrays) {
		return nil, protfun.NewError(protfun.ErrShapeMismatch, "checkpoint.Restore", fmt.Sprintf("%s holds %d arrays, the classifier has %d parameters", path, len(arrays), len(params)))
	}
	values := make([][]float64, len(arrays))
	for i, a := range arrays {
		if a.Name != params[i].Name {
			return nil, protfun.NewError(protfun.ErrShapeMismatch, "checkpoint.Restore", fmt.Sprintf("array %d is %s, expected %s", i, a.Name, params[i].Name))
		}
		values[i] = a.Data
	}
	if err := c.SetParams(values); err != nil {
		return nil, err
	}
	return meta, nil
}

// Entry describes a checkpoint file in a Store.
type Entry struct {
	Path  string
	Epoch int //-1 if the name carries no epoch
	Tag   string
}

// parseName is the inverse of FileName.
func parseName(name string) (Entry, bool) {
	if !strings.HasPrefix(name, "params") || !strings.HasSuffix(name, Suffix) {
		return Entry{}, false
	}
	e := Entry{Epoch: -1}
	rest := strings.TrimSuffix(strings.TrimPrefix(name, "params"), Suffix)
	if rest == "" {
		return e, true
	}
	if rest[0] != '_' {
		return Entry{}, false
	}
	rest = rest[1:]
	first, tag, _ := strings.Cut(rest, "_")
	if strings.HasSuffix(first, "ep") {
		if n, err := strconv.Atoi(strings.TrimSuffix(first, "ep")); err == nil && n >= 0 {
			e.Epoch = n
			e.Tag = tag
			return e, true
		}
	}
	e.Tag = rest
	return e, true
}

// List returns the checkpoints in the store, sorted by epoch and then by name.
func (s *Store) List() ([]Entry, error) {
	files, err := os.ReadDir(s.Path())
	if err != nil {
		return nil, protfun.NewError(nil, "checkpoint.List", err.Error())
	}
	var ret []Entry
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		e, ok := parseName(f.Name())
		if !ok {
			continue
		}
		e.Path = filepath.Join(s.Path(), f.Name())
		ret = append(ret, e)
	}
	sort.SliceStable(ret, func(i, j int) bool {
		if ret[i].Epoch != ret[j].Epoch {
			return ret[i].Epoch < ret[j].Epoch
		}
		return ret[i].Path < ret[j].Path
	})
	return ret, nil
}

// Latest returns the path of the checkpoint with the highest epoch. Checkpoints
// tagged "interrupted" are only returned if there is nothing else.
func (s *Store) Latest() (string, error) {
	entries, err := s.List()
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", protfun.NewError(nil, "checkpoint.Latest", fmt.Sprintf("no checkpoints in %s", s.Path()))
	}
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Tag != "interrupted" {
			return entries[i].Path, nil
		}
	}
	return entries[len(entries)-1].Path, nil
}
