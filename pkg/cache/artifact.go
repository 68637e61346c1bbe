package cache

import (
	"context"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// KindArtifact names artifact entries in logs and hooks.
const KindArtifact = "artifact"

// ArtifactCache maps fingerprints to rendered artifacts.
type ArtifactCache struct {
	*TwoTier[*chart.Artifact]
}

// NewArtifactCache creates an artifact cache. Artifacts are persisted in
// opts.Store, when set, as images keyed by fingerprint.
func NewArtifactCache(opts Options) (*ArtifactCache, error) {
	var durable Durable[*chart.Artifact]
	if opts.Store != nil {
		durable = artifactStore{opts.Store}
	}
	t, err := NewTwoTier[*chart.Artifact](KindArtifact, durable, opts)
	if err != nil {
		return nil, err
	}
	return &ArtifactCache{t}, nil
}

// Put caches art under its fingerprint.
func (c *ArtifactCache) Put(ctx context.Context, art *chart.Artifact) {
	c.TwoTier.Put(ctx, art.Fingerprint, art)
}

type artifactStore struct {
	store storage.Store
}

func (s artifactStore) Load(ctx context.Context, fp string) (*chart.Artifact, bool, error) {
	img, ok, err := s.store.GetImage(ctx, fp, storage.ArtifactKey)
	if err != nil || !ok {
		return nil, false, err
	}
	return &chart.Artifact{Data: img.Data, ContentType: img.ContentType, Fingerprint: fp}, true, nil
}

func (s artifactStore) Save(ctx context.Context, fp string, art *chart.Artifact) error {
	return s.store.SaveImage(ctx, fp, storage.ArtifactKey, art.Data, art.ContentType)
}
