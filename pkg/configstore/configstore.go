// Package configstore saves chart configurations for render-by-reference.
//
// A saved configuration is a validated request stored under a fresh opaque
// id. Callers later render it by id, optionally overriding format and size.
// Entries live in the same two-tier arrangement as rendered artifacts: an
// LRU+TTL memory tier and, when configured, a durable store that outlives
// eviction and restarts.
package configstore

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/matzehuels/chartcn/pkg/cache"
	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/errors"
	"github.com/matzehuels/chartcn/pkg/storage"
)

// KindConfig names config entries in logs and hooks.
const KindConfig = "config"

// IDLength is the length of generated ids.
const IDLength = 14

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SavedConfig is a stored configuration.
type SavedConfig struct {
	ID        string         `json:"id"`
	Request   *chart.Request `json:"request"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *SavedConfig) copy() *SavedConfig {
	return &SavedConfig{ID: s.ID, Request: s.Request.Clone(), CreatedAt: s.CreatedAt}
}

// ExpiresAt returns when the memory-only entry stops being retrievable.
func (s *SavedConfig) ExpiresAt(ttl time.Duration) time.Time {
	return s.CreatedAt.Add(ttl)
}

// Store is the two-tier config store.
type Store struct {
	tier *cache.TwoTier[*SavedConfig]
	ttl  time.Duration
	now  func() time.Time
}

// New creates a config store. opts follows cache.Options; a nil opts.Store
// gives memory-only operation.
func New(opts cache.Options) (*Store, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	var durable cache.Durable[*SavedConfig]
	s := &Store{ttl: opts.TTL, now: time.Now}
	if opts.Store != nil {
		durable = configDurable{store: opts.Store, now: s.clock}
	}
	tier, err := cache.NewTwoTier[*SavedConfig](KindConfig, durable, opts)
	if err != nil {
		return nil, err
	}
	s.tier = tier
	return s, nil
}

// Save validates req and stores a copy under a new id. The memory write is
// synchronous; the durable write happens in the background.
func (s *Store) Save(ctx context.Context, req *chart.Request) (*SavedConfig, error) {
	if req == nil {
		return nil, errors.New(errors.ErrCodeValidation, "request is required")
	}
	c := req.Clone()
	if err := c.ValidateAndSetDefaults(); err != nil {
		return nil, err
	}
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	saved := &SavedConfig{ID: id, Request: c, CreatedAt: s.clock()}
	s.tier.Put(ctx, id, saved)
	return saved.copy(), nil
}

// Load returns a copy of the configuration saved under id. Ids that are
// malformed or unknown to both tiers report false.
func (s *Store) Load(ctx context.Context, id string) (*SavedConfig, bool) {
	if storage.CheckID(id) != nil {
		return nil, false
	}
	saved, ok := s.tier.Get(ctx, id)
	if !ok {
		return nil, false
	}
	return saved.copy(), true
}

func (s *Store) clock() time.Time {
	return s.now().UTC()
}

// Persistent reports whether a durable tier is configured.
func (s *Store) Persistent() bool {
	return s.tier.Persistent()
}

// TTL returns the memory tier lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Stats returns memory tier counters.
func (s *Store) Stats() cache.Stats {
	return s.tier.Stats()
}

// NewID returns a random id of IDLength characters from [0-9A-Za-z].
func NewID() (string, error) {
	b := make([]byte, IDLength)
	buf := make([]byte, IDLength*2)
	n := 0
	for n < IDLength {
		if _, err := rand.Read(buf); err != nil {
			return "", errors.Wrap(errors.ErrCodeInternal, err, "generate id")
		}
		for _, r := range buf {
			// Reject bytes past the largest multiple of 62 to avoid bias.
			if r >= 248 {
				continue
			}
			b[n] = alphabet[int(r)%len(alphabet)]
			n++
			if n == IDLength {
				break
			}
		}
	}
	return string(b), nil
}

type configDurable struct {
	store storage.Store
	now   func() time.Time
}

func (d configDurable) Load(ctx context.Context, id string) (*SavedConfig, bool, error) {
	req, ok, err := d.store.GetConfig(ctx, id)
	if err != nil || !ok {
		return nil, false, err
	}
	// Durable copies are re-validated: the store may predate current rules.
	if err := req.ValidateAndSetDefaults(); err != nil {
		return nil, false, err
	}
	// The durable tier keeps only the request. CreatedAt marks the backfill
	// into memory, which is where the memory TTL starts counting.
	return &SavedConfig{ID: id, Request: req, CreatedAt: d.now()}, true, nil
}

func (d configDurable) Save(ctx context.Context, id string, c *SavedConfig) error {
	return d.store.SaveConfig(ctx, id, c.Request)
}
