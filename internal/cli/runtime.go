package cli

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/cache"
	"github.com/matzehuels/chartcn/pkg/config"
	"github.com/matzehuels/chartcn/pkg/configstore"
	"github.com/matzehuels/chartcn/pkg/engine"
	"github.com/matzehuels/chartcn/pkg/pipeline"
	"github.com/matzehuels/chartcn/pkg/pool"
	"github.com/matzehuels/chartcn/pkg/retry"
	"github.com/matzehuels/chartcn/pkg/storage"
	"github.com/matzehuels/chartcn/pkg/storage/file"
	"github.com/matzehuels/chartcn/pkg/storage/memory"
	"github.com/matzehuels/chartcn/pkg/storage/mongo"
	"github.com/matzehuels/chartcn/pkg/storage/redis"
	"github.com/matzehuels/chartcn/pkg/writeback"
)

// Connection attempts for network stores.
const (
	connectAttempts = 3
	connectDelay    = 500 * time.Millisecond
)

// =============================================================================
// Runtime - Wired Render Core
// =============================================================================

// runtimeOptions selects how the render core is assembled.
type runtimeOptions struct {
	// oneShot builds a core for a single CLI invocation: one page, Chromium
	// started on the first render, and the file store as durable tier when
	// none is configured.
	oneShot bool

	// noStore disables the durable tier.
	noStore bool
}

// runtime owns every component behind a pipeline.Runner.
type runtime struct {
	cfg     *config.Config
	store   storage.Store
	queue   *writeback.Queue
	browser engine.Browser
	runner  *pipeline.Runner
	logger  *log.Logger
}

// newRuntime wires storage, caches, the browser and the page pool.
// The returned runtime must be closed.
func (c *CLI) newRuntime(ctx context.Context, cfg *config.Config, ro runtimeOptions) (_ *runtime, err error) {
	logger := c.Logger
	rt := &runtime{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			if rt.queue != nil {
				_ = rt.queue.Close(context.Background())
			}
			_ = rt.closeResources()
		}
	}()

	if !ro.noStore {
		sc := cfg.Storage
		if ro.oneShot && !cfg.Persistent() {
			sc.Driver = config.DriverFile
		}
		if rt.store, err = openStore(ctx, sc, logger); err != nil {
			return nil, err
		}
	}

	rt.queue, err = writeback.New(writeback.Options{
		Workers:   cfg.Writeback.Workers,
		QueueSize: cfg.Writeback.QueueSize,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	cacheOpts := cache.Options{
		MaxEntries:   cfg.Cache.MaxEntries,
		TTL:          cfg.Cache.TTL,
		Store:        rt.store,
		StoreTimeout: cfg.Storage.Timeout,
		Queue:        rt.queue,
		Logger:       logger,
	}
	artifacts, err := cache.NewArtifactCache(cacheOpts)
	if err != nil {
		return nil, err
	}
	configs, err := configstore.New(cacheOpts)
	if err != nil {
		return nil, err
	}

	// Chromium is bound to ctx for its whole life, not to the context of
	// the render that happens to start it.
	open := func(context.Context) (engine.Browser, error) {
		return engine.NewChromium(ctx, chromiumOptions(cfg, logger))
	}
	poolCfg := pool.Config{
		Min:            cfg.Pool.Min,
		Max:            cfg.Pool.Max,
		AcquireTimeout: cfg.Render.Timeout,
		IdleTimeout:    cfg.Pool.IdleTimeout,
		Logger:         logger,
	}
	if ro.oneShot {
		rt.browser = engine.NewLazy(open)
		poolCfg.Min, poolCfg.Max = 0, 1
	} else if rt.browser, err = open(ctx); err != nil {
		return nil, err
	}

	pages, err := pool.New[engine.Page](ctx, engine.NewPageFactory(rt.browser), poolCfg)
	if err != nil {
		return nil, err
	}

	rt.runner, err = pipeline.NewRunner(pipeline.Options{
		Artifacts: artifacts,
		Configs:   configs,
		Pool:      pages,
		Queue:     rt.queue,
		Timeout:   cfg.Render.Timeout,
		Logger:    logger,
	})
	if err != nil {
		_ = pages.Drain(context.Background())
		return nil, err
	}
	return rt, nil
}

// Close drains the runner (pending renders and durable writes), then shuts
// down the browser and the store.
func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.runner != nil {
		errs = append(errs, rt.runner.Close(ctx))
	}
	errs = append(errs, rt.closeResources())
	return errors.Join(errs...)
}

func (rt *runtime) closeResources() error {
	var errs []error
	if rt.browser != nil {
		errs = append(errs, rt.browser.Close())
	}
	if rt.store != nil {
		errs = append(errs, rt.store.Close())
	}
	return errors.Join(errs...)
}

// closeTimeout bounds Close at the end of a command.
func (rt *runtime) closeTimeout() time.Duration {
	return rt.cfg.Server.ShutdownTimeout
}

func chromiumOptions(cfg *config.Config, logger *log.Logger) engine.ChromiumOptions {
	return engine.ChromiumOptions{
		BinPath:      cfg.Chromium.Path,
		RemoteURL:    cfg.Chromium.RemoteURL,
		BundlePath:   cfg.Chromium.BundlePath,
		ReadyTimeout: cfg.Render.ReadyTimeout,
		Settle:       cfg.Render.Settle,
		DeviceScale:  cfg.Render.DeviceScale,
		Logger:       logger,
	}
}

// =============================================================================
// Storage
// =============================================================================

// openStore opens the durable tier for sc.Driver. It returns nil for the
// "none" driver. Network stores are retried with backoff.
func openStore(ctx context.Context, sc config.StorageConfig, logger *log.Logger) (storage.Store, error) {
	switch sc.Driver {
	case config.DriverMemory:
		return memory.New(), nil

	case config.DriverFile:
		s, err := file.New(sc.Dir)
		if err != nil {
			return nil, err
		}
		logger.Debug("using file store", "dir", s.Dir())
		return s, nil

	case config.DriverRedis:
		var s *redis.Store
		err := connect(ctx, logger, "redis", func() (err error) {
			s, err = redis.New(ctx, redis.Config{
				Addr:     sc.Redis.Addr,
				Password: sc.Redis.Password,
				DB:       sc.Redis.DB,
				Prefix:   sc.Redis.Prefix,
				TTL:      sc.Redis.TTL,
			})
			return err
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.DriverMongo:
		var s *mongo.Store
		err := connect(ctx, logger, "mongo", func() (err error) {
			s, err = mongo.New(ctx, mongo.Config{URI: sc.Mongo.URI, Database: sc.Mongo.Database})
			return err
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, nil
}

// connect runs dial with retries, treating every failure as transient.
func connect(ctx context.Context, logger *log.Logger, name string, dial func() error) error {
	attempt := 0
	return retry.Do(ctx, connectAttempts, connectDelay, func() error {
		attempt++
		if err := dial(); err != nil {
			logger.Warn("store connection failed", "driver", name, "attempt", attempt, "err", err)
			return &retry.Error{Err: err}
		}
		return nil
	})
}
