// Copyright 2020-2021 The OS-NVR Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; version 2.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package log

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	logBucket      = "logs"
	defaultMaxKeys = 100000
)

// Store persists recent log events to a bbolt database so diagnostics
// survive a worker restart. It is a ring buffer: once maxKeys is reached
// the oldest entry is evicted before each insert.
type Store struct {
	dbPath  string
	maxKeys int

	db     *bolt.DB
	wg     *sync.WaitGroup
	saveWG *sync.WaitGroup
}

// NewStore returns an unopened Store.
func NewStore(dbPath string, wg *sync.WaitGroup) *Store {
	return &Store{
		dbPath:  dbPath,
		maxKeys: defaultMaxKeys,
		wg:      wg,
		saveWG:  &sync.WaitGroup{},
	}
}

// Init opens (creating if necessary) the underlying database and arranges
// for it to be closed once ctx is cancelled and any in-flight save
// completes.
func (s *Store) Init(ctx context.Context) error {
	db, err := bolt.Open(s.dbPath, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open log database: %w: %v", err, s.dbPath)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(logBucket))
		return err
	})
	if err != nil {
		db.Close()
		return fmt.Errorf("create log bucket: %w", err)
	}

	s.db = db

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-ctx.Done()
		s.saveWG.Wait()
		db.Close()
	}()

	return nil
}

// Run subscribes to logger and persists every event until ctx is cancelled.
func (s *Store) Run(ctx context.Context, logger *Logger) {
	feed, cancel := logger.Subscribe()
	defer cancel()

	s.saveWG.Add(1)
	defer s.saveWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-feed:
			if !ok {
				return
			}
			if err := s.save(entry); err != nil {
				logger.Error().Src("log").Msgf("persist log entry: %v", err)
			}
		}
	}
}

func (s *Store) save(entry Log) error {
	key := encodeKey(uint64(entry.Time))
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(logBucket))
		if b.Stats().KeyN >= s.maxKeys {
			if err := deleteOldest(b); err != nil {
				return fmt.Errorf("evict oldest log entry: %w", err)
			}
		}
		return b.Put(key, value)
	})
}

func deleteOldest(b *bolt.Bucket) error {
	k, _ := b.Cursor().First()
	if k == nil {
		return nil
	}
	return b.Delete(k)
}

// Query describes a Store.Query filter.
type Query struct {
	Levels []Level
	Srcs   []string
	Clips  []string
	Since  UnixMicro
	Limit  int
}

// Query returns the most recent matching entries, newest first.
func (s *Store) Query(q Query) ([]Log, error) {
	var out []Log

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(logBucket))
		c := b.Cursor()

		limit := q.Limit
		if limit == 0 {
			limit = defaultMaxKeys
		}

		var k, v []byte
		if q.Since == 0 {
			k, v = c.Last()
		} else {
			k, v = c.Seek(encodeKey(uint64(q.Since)))
		}

		for k != nil && len(out) < limit {
			var entry Log
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal log entry: %w", err)
			}
			if matches(entry, q) {
				out = append(out, entry)
			}
			k, v = c.Prev()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func matches(entry Log, q Query) bool {
	return levelIn(entry.Level, q.Levels) &&
		stringIn(entry.Src, q.Srcs) &&
		stringIn(entry.Clip, q.Clips)
}

func levelIn(level Level, levels []Level) bool {
	if levels == nil {
		return true
	}
	for _, l := range levels {
		if l == level {
			return true
		}
	}
	return false
}

func stringIn(s string, set []string) bool {
	if set == nil {
		return true
	}
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

func encodeKey(key uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, key)
	return out
}
