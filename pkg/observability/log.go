package observability

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

// LogHooks implements every hook interface by writing debug-level
// structured log lines. Errors are logged at warn level.
type LogHooks struct {
	Logger *log.Logger
}

// NewLogHooks returns hooks that log to logger.
func NewLogHooks(logger *log.Logger) *LogHooks {
	return &LogHooks{Logger: logger}
}

// Install registers h for every event category.
func (h *LogHooks) Install() {
	SetRenderHooks(h)
	SetCacheHooks(h)
	SetPoolHooks(h)
	SetStoreHooks(h)
}

func (h *LogHooks) OnRenderStart(_ context.Context, fp, format string) {
	h.Logger.Debug("render start", "fingerprint", short(fp), "format", format)
}

func (h *LogHooks) OnRenderComplete(_ context.Context, fp, format string, hit bool, d time.Duration, err error) {
	if err != nil {
		h.Logger.Warn("render failed", "fingerprint", short(fp), "format", format, "duration", d, "err", err)
		return
	}
	h.Logger.Debug("render complete", "fingerprint", short(fp), "format", format, "cache_hit", hit, "duration", d)
}

func (h *LogHooks) OnCacheHit(_ context.Context, kind, tier string) {
	h.Logger.Debug("cache hit", "kind", kind, "tier", tier)
}

func (h *LogHooks) OnCacheMiss(_ context.Context, kind string) {
	h.Logger.Debug("cache miss", "kind", kind)
}

func (h *LogHooks) OnCacheSet(_ context.Context, kind string, size int) {
	h.Logger.Debug("cache set", "kind", kind, "size", size)
}

func (h *LogHooks) OnAcquire(_ context.Context, wait time.Duration) {
	h.Logger.Debug("pool acquire", "wait", wait)
}

func (h *LogHooks) OnTimeout(_ context.Context, wait time.Duration) {
	h.Logger.Warn("pool acquire timed out", "wait", wait)
}

func (h *LogHooks) OnCreate(_ context.Context, d time.Duration, err error) {
	if err != nil {
		h.Logger.Warn("pool create failed", "duration", d, "err", err)
		return
	}
	h.Logger.Debug("pool create", "duration", d)
}

func (h *LogHooks) OnDestroy(_ context.Context, reason string) {
	h.Logger.Debug("pool destroy", "reason", reason)
}

func (h *LogHooks) OnStoreError(_ context.Context, op string, err error) {
	h.Logger.Warn("durable store error", "op", op, "err", err)
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
