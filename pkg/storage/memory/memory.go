// Package memory provides an in-process storage.Store.
//
// It is useful for single-process deployments that want render-by-id to
// survive cache eviction, and for tests. Failures can be injected with
// SetFailure to exercise degradation paths.
package memory

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// Store keeps configs and images in maps keyed by their storage path.
type Store struct {
	mu      sync.RWMutex
	configs map[string][]byte
	images  map[string]storage.Image
	fail    error

	reads  atomic.Int64
	writes atomic.Int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		configs: make(map[string][]byte),
		images:  make(map[string]storage.Image),
	}
}

// SetFailure makes every subsequent operation return err. Pass nil to recover.
func (s *Store) SetFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Reads returns the number of Get calls served.
func (s *Store) Reads() int64 { return s.reads.Load() }

// Writes returns the number of Save calls served.
func (s *Store) Writes() int64 { return s.writes.Load() }

// Len returns the number of stored configs and images.
func (s *Store) Len() (configs, images int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.configs), len(s.images)
}

func (s *Store) SaveConfig(ctx context.Context, id string, req *chart.Request) error {
	s.writes.Add(1)
	if err := storage.CheckID(id); err != nil {
		return err
	}
	data, err := json.Marshal(req)
	if err != nil {
		return storage.Wrap(err, "encode", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return storage.Wrap(s.fail, "save config", id)
	}
	s.configs[storage.ConfigPath(id)] = data
	return nil
}

func (s *Store) GetConfig(ctx context.Context, id string) (*chart.Request, bool, error) {
	s.reads.Add(1)
	if err := storage.CheckID(id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	data, ok := s.configs[storage.ConfigPath(id)]
	fail := s.fail
	s.mu.RUnlock()

	if fail != nil {
		return nil, false, storage.Wrap(fail, "get config", id)
	}
	if !ok {
		return nil, false, nil
	}
	var req chart.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, storage.Wrap(err, "decode", id)
	}
	return &req, true, nil
}

func (s *Store) SaveImage(ctx context.Context, id, key string, data []byte, contentType string) error {
	s.writes.Add(1)
	if err := storage.CheckImage(id, key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return storage.Wrap(s.fail, "save image", id)
	}
	s.images[storage.ImagePath(id, key)] = storage.Image{
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
	}
	return nil
}

func (s *Store) GetImage(ctx context.Context, id, key string) (*storage.Image, bool, error) {
	s.reads.Add(1)
	if err := storage.CheckImage(id, key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	img, ok := s.images[storage.ImagePath(id, key)]
	fail := s.fail
	s.mu.RUnlock()

	if fail != nil {
		return nil, false, storage.Wrap(fail, "get image", id)
	}
	if !ok {
		return nil, false, nil
	}
	return &storage.Image{Data: append([]byte(nil), img.Data...), ContentType: img.ContentType}, true, nil
}

// Close does nothing for the memory store.
func (s *Store) Close() error {
	return nil
}

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
