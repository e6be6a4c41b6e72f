/*
 * cache.go, part of protfun.
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

package ontology

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rmera/protfun"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store keeps annotations between runs.
type Store interface {
	Get(ctx context.Context, uniprotID string) ([]string, bool, error)
	Put(ctx context.Context, uniprotID string, goIDs []string) error
}

// Cached is a Fetcher that keeps the most recently used annotations in memory,
// and optionally all the annotations it fetches in a Store. It is safe for
// concurrent use if its Fetcher and Store are.
type Cached struct {
	f     Fetcher
	cache *lru.Cache[string, []string]
	store Store
	log   *zap.Logger
}

// NewCached returns a Cached fetcher in front of f, keeping up to size annotations in
// memory. store can be nil. A nil logger means no logging.
func NewCached(f Fetcher, size int, store Store, log *zap.Logger) (*Cached, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, []string](size)
	if err != nil {
		return nil, protfun.NewError(nil, "ontology.NewCached", err.Error())
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Cached{f: f, cache: c, store: store, log: log}, nil
}

func (c *Cached) Fetch(ctx context.Context, uniprotID string) ([]string, error) {
	if ids, ok := c.cache.Get(uniprotID); ok {
		return append([]string(nil), ids...), nil
	}
	if c.store != nil {
		ids, ok, err := c.store.Get(ctx, uniprotID)
		if err != nil {
			c.log.Warn("can't read the annotation store", zap.String("uniprot", uniprotID), zap.Error(err))
		} else if ok {
			c.cache.Add(uniprotID, ids)
			return append([]string(nil), ids...), nil
		}
	}
	ids, err := c.f.Fetch(ctx, uniprotID)
	if err != nil {
		return nil, err
	}
	c.cache.Add(uniprotID, ids)
	if c.store != nil {
		if err := c.store.Put(ctx, uniprotID, ids); err != nil {
			c.log.Warn("can't write to the annotation store", zap.String("uniprot", uniprotID), zap.Error(err))
		}
	}
	return append([]string(nil), ids...), nil
}

// Len returns the number of annotations in memory.
func (c *Cached) Len() int { return c.cache.Len() }

// SQLiteStore is a Store in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	log *zap.Logger
}

// OpenSQLiteStore opens, or creates, the database in path. ":memory:" gives a
// database that lives as long as the store.
func OpenSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, protfun.NewError(nil, "ontology.OpenSQLiteStore", err.Error())
	}
	//every connection to :memory: is a different database
	db.SetMaxOpenConns(1)
	s := &SQLiteStore{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, protfun.NewError(nil, "ontology.OpenSQLiteStore", err.Error())
	}
	log.Debug("annotation store ready", zap.String("path", path))
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS annotations (
		uniprot TEXT PRIMARY KEY,
		go_ids TEXT NOT NULL,
		fetched_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Get(ctx context.Context, uniprotID string) ([]string, bool, error) {
	var ids string
	err := s.db.QueryRowContext(ctx, "SELECT go_ids FROM annotations WHERE uniprot = ?", uniprotID).Scan(&ids)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, protfun.NewError(nil, "ontology.SQLiteStore.Get", err.Error())
	}
	if ids == "" {
		return []string{}, true, nil
	}
	return strings.Split(ids, ","), true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, uniprotID string, goIDs []string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO annotations (uniprot, go_ids, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(uniprot) DO UPDATE SET go_ids = excluded.go_ids, fetched_at = excluded.fetched_at`,
		uniprotID, strings.Join(goIDs, ","), time.Now().UTC())
	if err != nil {
		return protfun.NewError(nil, "ontology.SQLiteStore.Put", err.Error())
	}
	return nil
}

// Count returns the number of accessions in the store.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM annotations").Scan(&n); err != nil {
		return 0, protfun.NewError(nil, "ontology.SQLiteStore.Count", err.Error())
	}
	return n, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
