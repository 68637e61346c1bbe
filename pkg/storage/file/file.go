// Package file implements storage.Store on the local filesystem.
//
// Objects are laid out exactly as their storage keys describe, below a root
// directory:
//
//	<root>/configs/ab/<id>/config.json
//	<root>/images/cd/<id>/<key>
//	<root>/images/cd/<id>/<key>.meta
//
// The .meta sidecar holds the content type of an image. Writes go to a
// temporary file first and are renamed into place, so readers never observe
// partial objects.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/storage"
)

const metaSuffix = ".meta"

// Store is a file-based storage.Store.
type Store struct {
	mu  sync.RWMutex
	dir string
}

// New creates a file store rooted at dir.
// If dir is empty, defaults to ~/.cache/chartcn/store/
func New(dir string) (*Store, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// DefaultDir returns the default store directory.
func DefaultDir() (string, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("get cache dir: %w", err)
	}
	return filepath.Join(base, "chartcn", "store"), nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) SaveConfig(ctx context.Context, id string, req *chart.Request) error {
	if err := storage.CheckID(id); err != nil {
		return err
	}
	data, err := json.MarshalIndent(req, "", "  ")
	if err != nil {
		return storage.Wrap(err, "encode", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return storage.Wrap(s.write(s.path(storage.ConfigPath(id)), data), "save config", id)
}

func (s *Store) GetConfig(ctx context.Context, id string) (*chart.Request, bool, error) {
	if err := storage.CheckID(id); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.path(storage.ConfigPath(id)))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap(err, "get config", id)
	}

	var req chart.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, false, storage.Wrap(err, "decode", id)
	}
	return &req, true, nil
}

func (s *Store) SaveImage(ctx context.Context, id, key string, data []byte, contentType string) error {
	if err := storage.CheckImage(id, key); err != nil {
		return err
	}
	meta, err := json.Marshal(storage.Image{ContentType: contentType})
	if err != nil {
		return storage.Wrap(err, "encode", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.path(storage.ImagePath(id, key))
	if err := s.write(p+metaSuffix, meta); err != nil {
		return storage.Wrap(err, "save image", id)
	}
	return storage.Wrap(s.write(p, data), "save image", id)
}

func (s *Store) GetImage(ctx context.Context, id, key string) (*storage.Image, bool, error) {
	if err := storage.CheckImage(id, key); err != nil {
		return nil, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p := s.path(storage.ImagePath(id, key))
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.Wrap(err, "get image", id)
	}

	img := &storage.Image{Data: data}
	meta, err := os.ReadFile(p + metaSuffix)
	if err == nil {
		// A corrupt sidecar only loses the content type.
		_ = json.Unmarshal(meta, img)
		img.Data = data
	}
	return img, true, nil
}

// Clear removes every stored object.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, kind := range []string{storage.KindConfig, storage.KindImage} {
		if err := os.RemoveAll(filepath.Join(s.dir, kind)); err != nil {
			return fmt.Errorf("remove %s: %w", kind, err)
		}
	}
	return nil
}

// Close does nothing for the file store.
func (s *Store) Close() error {
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func (s *Store) write(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

// Ensure Store implements storage.Store.
var _ storage.Store = (*Store)(nil)
