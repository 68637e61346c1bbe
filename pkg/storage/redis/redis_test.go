package redis

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// unreachable returns a store whose client cannot connect.
func unreachable(t *testing.T) *Store {
	t.Helper()
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	s := NewWithClient(client, Config{})
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeyPrefix(t *testing.T) {
	s := NewWithClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), Config{})
	defer s.Close()

	if got := s.key("configs/ab/x/config.json"); got != "chartcn:configs/ab/x/config.json" {
		t.Errorf("key() = %q", got)
	}

	s2 := NewWithClient(goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"}), Config{Prefix: "t:"})
	defer s2.Close()
	if got := s2.key("images/ab/x/artifact"); got != "t:images/ab/x/artifact" {
		t.Errorf("key() = %q", got)
	}
}

func TestBackendFailureIsStoreError(t *testing.T) {
	s := unreachable(t)
	ctx := context.Background()

	if _, _, err := s.GetImage(ctx, "abc", "artifact"); !errors.Is(err, errors.ErrCodeStore) {
		t.Errorf("GetImage error = %v, want STORE", err)
	}
	if _, _, err := s.GetConfig(ctx, "abc"); !errors.Is(err, errors.ErrCodeStore) {
		t.Errorf("GetConfig error = %v, want STORE", err)
	}
	if err := s.SaveImage(ctx, "abc", "artifact", []byte("x"), "image/png"); !errors.Is(err, errors.ErrCodeStore) {
		t.Errorf("SaveImage error = %v, want STORE", err)
	}
}

func TestInvalidKeysRejectedBeforeIO(t *testing.T) {
	s := unreachable(t)
	ctx := context.Background()

	if _, _, err := s.GetConfig(ctx, "../etc"); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("GetConfig error = %v, want VALIDATION", err)
	}
	if err := s.SaveImage(ctx, "abc", "a/b", nil, ""); !errors.Is(err, errors.ErrCodeValidation) {
		t.Errorf("SaveImage error = %v, want VALIDATION", err)
	}
}

func TestNewRequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("New without address should fail")
	}
}
