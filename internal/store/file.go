// Package store holds the day partition store backends.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/i474232898/ambient-history-cache/internal/common"
	"github.com/i474232898/ambient-history-cache/internal/weather"
)

// FileStore keeps the whole cache in one indented JSON document:
//
//	{"readings": {"2024-01-01": [...]}, "lastUpdated": 1704067200000}
//
// Every mutation rewrites the file through a temp file and a rename.
type FileStore struct {
	mu   sync.Mutex
	path string
	now  func() time.Time
}

// NewFileStore creates a FileStore at path. The file is created lazily.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the cache file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cache file. A missing file is replaced by a freshly
// persisted empty cache.
func (s *FileStore) Load(ctx context.Context) (*weather.Cache, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save writes cache atomically.
func (s *FileStore) Save(ctx context.Context, cache *weather.Cache) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(cache)
}

// Insert loads, merges and saves in one step.
func (s *FileStore) Insert(ctx context.Context, readings []weather.Reading) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, err := s.load()
	if err != nil {
		return 0, err
	}
	added := cache.Merge(readings, s.now())
	if err := s.save(cache); err != nil {
		return 0, err
	}
	return added, nil
}

func (s *FileStore) load() (*weather.Cache, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", s.path).Msg("cache file not found, creating empty cache")
		cache := weather.NewCache(s.now())
		if err := s.save(cache); err != nil {
			return nil, err
		}
		return cache, nil
	}
	if err != nil {
		return nil, &weather.StorageError{Op: "read", Path: s.path, Err: err}
	}

	var cache weather.Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, &weather.StorageError{Op: "decode", Path: s.path, Err: err}
	}
	return &cache, nil
}

func (s *FileStore) save(cache *weather.Cache) error {
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return &weather.StorageError{Op: "encode", Path: s.path, Err: err}
	}
	if err := common.WriteFileAtomic(s.path, data); err != nil {
		return &weather.StorageError{Op: "write", Path: s.path, Err: err}
	}
	return nil
}
