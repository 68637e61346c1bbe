package cache

import (
	"bytes"
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/chartcn/pkg/chart"
	"github.com/matzehuels/chartcn/pkg/observability"
	"github.com/matzehuels/chartcn/pkg/storage"
	"github.com/matzehuels/chartcn/pkg/storage/memory"
	"github.com/matzehuels/chartcn/pkg/writeback"
)

func newQueue(t *testing.T) *writeback.Queue {
	t.Helper()
	q, err := writeback.New(writeback.Options{Workers: 1})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { q.Close(context.Background()) })
	return q
}

func flush(t *testing.T, q *writeback.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := q.Close(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func artifact(fp, body string) *chart.Artifact {
	return &chart.Artifact{Data: []byte(body), ContentType: "image/png", Fingerprint: fp}
}

func TestArtifactCacheMemoryOnly(t *testing.T) {
	c, err := NewArtifactCache(Options{MaxEntries: 2})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if c.Persistent() {
		t.Error("cache without store should not be persistent")
	}
	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Fatal("empty cache should miss")
	}

	c.Put(ctx, artifact("fp1", "one"))
	got, ok := c.Get(ctx, "fp1")
	if !ok || !bytes.Equal(got.Data, []byte("one")) || got.ContentType != "image/png" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}

	c.Put(ctx, artifact("fp2", "two"))
	c.Put(ctx, artifact("fp3", "three"))
	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Error("fp1 should have been evicted at capacity 2")
	}
}

func TestArtifactCacheWritesBehind(t *testing.T) {
	store := memory.New()
	q := newQueue(t)
	c, err := NewArtifactCache(Options{Store: store, Queue: q})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	c.Put(ctx, artifact("fp1", "one"))

	// Visible in memory immediately.
	if _, ok := c.Get(ctx, "fp1"); !ok {
		t.Fatal("Put should be visible immediately")
	}

	flush(t, q)
	img, ok, err := store.GetImage(ctx, "fp1", storage.ArtifactKey)
	if err != nil || !ok || string(img.Data) != "one" || img.ContentType != "image/png" {
		t.Fatalf("durable copy = %+v, %v, %v", img, ok, err)
	}
}

func TestArtifactCacheDurableFallbackBackfills(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	if err := store.SaveImage(ctx, "fp1", storage.ArtifactKey, []byte("durable"), "image/svg+xml"); err != nil {
		t.Fatal(err)
	}

	c, _ := NewArtifactCache(Options{Store: store, Queue: newQueue(t)})

	got, ok := c.Get(ctx, "fp1")
	if !ok || string(got.Data) != "durable" || got.Fingerprint != "fp1" {
		t.Fatalf("Get() = %+v, %v", got, ok)
	}
	if !c.Memory().Contains("fp1") {
		t.Error("durable hit should backfill memory")
	}

	reads := store.Reads()
	if _, ok := c.Get(ctx, "fp1"); !ok {
		t.Fatal("second Get should hit")
	}
	if store.Reads() != reads {
		t.Error("second Get should be served from memory")
	}
}

func TestArtifactCacheDurableFailureIsMiss(t *testing.T) {
	observability.Reset()
	defer observability.Reset()
	hooks := &recordingStoreHooks{}
	observability.SetStoreHooks(hooks)

	store := memory.New()
	store.SetFailure(stderrors.New("connection refused"))
	q := newQueue(t)
	c, _ := NewArtifactCache(Options{Store: store, Queue: q})
	ctx := context.Background()

	if _, ok := c.Get(ctx, "fp1"); ok {
		t.Fatal("failing durable tier should read as a miss")
	}

	// Writes still succeed in memory; the durable failure only gets reported.
	c.Put(ctx, artifact("fp1", "one"))
	if _, ok := c.Get(ctx, "fp1"); !ok {
		t.Fatal("memory tier should serve despite durable failure")
	}
	flush(t, q)

	select {
	case err := <-q.Errors():
		if err == nil {
			t.Error("expected a reported write failure")
		}
	default:
		t.Error("durable write failure should be reported on the queue")
	}
	if ops := hooks.ops(); len(ops) != 2 {
		t.Errorf("store errors reported = %v, want load and save", ops)
	}
}

func TestArtifactCacheRequiresQueueWithStore(t *testing.T) {
	if _, err := NewArtifactCache(Options{Store: memory.New()}); err == nil {
		t.Error("durable store without queue should be rejected")
	}
	if _, err := NewArtifactCache(Options{MaxEntries: -1}); err == nil {
		t.Error("negative capacity should be rejected")
	}
}

type recordingStoreHooks struct {
	mu  sync.Mutex
	got []string
}

func (h *recordingStoreHooks) OnStoreError(_ context.Context, op string, _ error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.got = append(h.got, op)
}

func (h *recordingStoreHooks) ops() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.got...)
}
