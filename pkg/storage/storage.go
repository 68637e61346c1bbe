// Package storage defines the durable tier shared by the artifact cache and
// the config store.
//
// A Store persists two kinds of objects:
//
//   - saved chart configurations, keyed by their opaque id
//   - binary images (rendered artifacts), keyed by an owner id plus a name
//
// Lookups follow the (value, found, err) convention: a missing object is
// (nil, false, nil), never an error. Errors mean the backend itself failed;
// callers in this module treat them as misses and keep serving from memory.
//
// # Key Layout
//
// Every backend addresses objects with the same slash-separated keys:
//
//	configs/<p>/<id>/config.json
//	images/<p>/<id>/<key>
//
// where <p> is the first two hex characters of sha256(id). The prefix spreads
// objects across directories (or key-space partitions) evenly.
//
// # Backends
//
//   - [github.com/matzehuels/chartcn/pkg/storage/file]: local directory tree
//   - [github.com/matzehuels/chartcn/pkg/storage/redis]: Redis strings and hashes
//   - [github.com/matzehuels/chartcn/pkg/storage/mongo]: MongoDB collections
//   - [github.com/matzehuels/chartcn/pkg/storage/memory]: in-process maps
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"path"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
)

// Object kinds used in keys and logs.
const (
	KindConfig = "configs"
	KindImage  = "images"

	// ConfigFile is the object name of a saved configuration.
	ConfigFile = "config.json"

	// ArtifactKey is the image key under which rendered artifacts are saved,
	// with the fingerprint as owner id.
	ArtifactKey = "artifact"
)

// Store is a durable key/value store for configs and images.
// Implementations must be safe for concurrent use.
type Store interface {
	SaveConfig(ctx context.Context, id string, req *chart.Request) error
	GetConfig(ctx context.Context, id string) (*chart.Request, bool, error)
	SaveImage(ctx context.Context, id, key string, data []byte, contentType string) error
	GetImage(ctx context.Context, id, key string) (*Image, bool, error)
	Close() error
}

// Image is a stored binary object.
type Image struct {
	Data        []byte `json:"-"`
	ContentType string `json:"content_type"`
}

// Prefix returns the two-character partition of id.
func Prefix(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:1])
}

// ConfigPath returns the key of a saved configuration.
func ConfigPath(id string) string {
	return path.Join(KindConfig, Prefix(id), id, ConfigFile)
}

// ImagePath returns the key of an image.
func ImagePath(id, key string) string {
	return path.Join(KindImage, Prefix(id), id, key)
}

// CheckID validates an owner id before it becomes part of a key.
func CheckID(id string) error {
	return errors.ValidateID(id)
}

// CheckImage validates an owner id and image key.
func CheckImage(id, key string) error {
	if err := errors.ValidateID(id); err != nil {
		return err
	}
	return errors.ValidateStoreKey(key)
}

// Wrap converts a backend failure into a STORE error.
func Wrap(err error, op, key string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(errors.ErrCodeStore, err, "%s %s", op, key)
}
