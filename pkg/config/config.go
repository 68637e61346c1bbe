// Package config loads chartcn configuration.
//
// Values are resolved in order, later sources winning:
//
//  1. built-in defaults ([Default])
//  2. an optional TOML file
//  3. environment variables
//
// The result is checked by [Config.Validate]. A minimal file looks like:
//
//	log_level = "info"
//
//	[server]
//	port = 3000
//
//	[pool]
//	max = 10
//
//	[storage]
//	driver = "file"
//	dir = "/var/lib/chartcn"
package config

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/matzehuels/chartcn/pkg/errors"
)

// Storage drivers.
const (
	DriverNone   = "none"
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
)

// ValidDrivers is the set of supported storage drivers.
var ValidDrivers = map[string]bool{
	DriverNone:   true,
	DriverMemory: true,
	DriverFile:   true,
	DriverRedis:  true,
	DriverMongo:  true,
}

// Config is the complete configuration.
type Config struct {
	LogLevel  string          `toml:"log_level"`
	Server    ServerConfig    `toml:"server"`
	Cache     CacheConfig     `toml:"cache"`
	Pool      PoolConfig      `toml:"pool"`
	Render    RenderConfig    `toml:"render"`
	Storage   StorageConfig   `toml:"storage"`
	Chromium  ChromiumConfig  `toml:"chromium"`
	Writeback WritebackConfig `toml:"writeback"`
}

// ServerConfig configures the HTTP transport.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`

	// BaseURL prefixes the render URL returned on save. Empty means
	// relative URLs.
	BaseURL string `toml:"base_url"`

	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// CacheConfig sizes the memory tiers of the artifact cache and config store.
type CacheConfig struct {
	MaxEntries int           `toml:"max_entries"`
	TTL        time.Duration `toml:"ttl"`
}

// PoolConfig bounds the rendering pages.
type PoolConfig struct {
	Min         int           `toml:"min"`
	Max         int           `toml:"max"`
	IdleTimeout time.Duration `toml:"idle_timeout"`
}

// RenderConfig tunes a single render.
type RenderConfig struct {
	Timeout      time.Duration `toml:"timeout"`
	ReadyTimeout time.Duration `toml:"ready_timeout"`
	Settle       time.Duration `toml:"settle"`
	DeviceScale  float64       `toml:"device_scale"`
}

// StorageConfig selects the durable tier.
type StorageConfig struct {
	Driver  string        `toml:"driver"`
	Dir     string        `toml:"dir"`
	Timeout time.Duration `toml:"timeout"`
	Redis   RedisConfig   `toml:"redis"`
	Mongo   MongoConfig   `toml:"mongo"`
}

// RedisConfig configures the redis driver.
type RedisConfig struct {
	Addr     string        `toml:"addr"`
	Password string        `toml:"password"`
	DB       int           `toml:"db"`
	Prefix   string        `toml:"prefix"`
	TTL      time.Duration `toml:"ttl"`
}

// MongoConfig configures the mongo driver.
type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

// ChromiumConfig locates the browser and the client bundle.
type ChromiumConfig struct {
	Path       string `toml:"path"`
	RemoteURL  string `toml:"remote_url"`
	BundlePath string `toml:"bundle_path"`
}

// WritebackConfig sizes the background writer for the durable tier.
type WritebackConfig struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			ShutdownTimeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			MaxEntries: 500,
			TTL:        time.Hour,
		},
		Pool: PoolConfig{
			Min:         1,
			Max:         10,
			IdleTimeout: 30 * time.Second,
		},
		Render: RenderConfig{
			Timeout:      10 * time.Second,
			ReadyTimeout: 8 * time.Second,
			Settle:       100 * time.Millisecond,
			DeviceScale:  2,
		},
		Storage: StorageConfig{
			Driver:  DriverNone,
			Timeout: 2 * time.Second,
			Redis:   RedisConfig{Prefix: "chartcn:"},
			Mongo:   MongoConfig{Database: "chartcn"},
		},
		Writeback: WritebackConfig{
			Workers:   4,
			QueueSize: 256,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// not empty) and the process environment, and validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges the TOML file at path into c. Unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return errors.Wrap(errors.ErrCodeValidation, err, "read config %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return errors.New(errors.ErrCodeValidation, "unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

// LookupFunc reads an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv applies environment overrides read through lookup.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	e.str("LOG_LEVEL", &c.LogLevel)
	e.str("HOST", &c.Server.Host)
	e.int("PORT", &c.Server.Port)
	e.int("CACHE_MAX_SIZE", &c.Cache.MaxEntries)
	e.duration("CACHE_TTL_SECONDS", time.Second, &c.Cache.TTL)
	e.int("MAX_CONCURRENT_RENDERS", &c.Pool.Max)
	e.duration("RENDER_TIMEOUT_MS", time.Millisecond, &c.Render.Timeout)
	e.str("CHROMIUM_PATH", &c.Chromium.Path)

	e.str("CHARTCN_BASE_URL", &c.Server.BaseURL)
	e.str("CHARTCN_STORAGE", &c.Storage.Driver)
	e.str("CHARTCN_STORAGE_DIR", &c.Storage.Dir)
	e.str("CHARTCN_REDIS_ADDR", &c.Storage.Redis.Addr)
	e.str("CHARTCN_REDIS_PASSWORD", &c.Storage.Redis.Password)
	e.str("CHARTCN_MONGO_URI", &c.Storage.Mongo.URI)
	e.str("CHARTCN_BUNDLE_PATH", &c.Chromium.BundlePath)
	e.str("CHARTCN_CHROMIUM_REMOTE_URL", &c.Chromium.RemoteURL)

	return e.err
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.New(errors.ErrCodeValidation, "invalid log_level: %q (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return errors.New(errors.ErrCodeValidation, "invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Cache.MaxEntries < 1 {
		return errors.New(errors.ErrCodeValidation, "invalid cache.max_entries: %d (must be positive)", c.Cache.MaxEntries)
	}
	if c.Cache.TTL <= 0 {
		return errors.New(errors.ErrCodeValidation, "invalid cache.ttl: %s (must be positive)", c.Cache.TTL)
	}
	if c.Pool.Max < 1 {
		return errors.New(errors.ErrCodeValidation, "invalid pool.max: %d (must be positive)", c.Pool.Max)
	}
	if c.Pool.Min < 0 || c.Pool.Min > c.Pool.Max {
		return errors.New(errors.ErrCodeValidation, "invalid pool.min: %d (must be 0-%d)", c.Pool.Min, c.Pool.Max)
	}
	if c.Pool.IdleTimeout < 0 {
		return errors.New(errors.ErrCodeValidation, "invalid pool.idle_timeout: %s", c.Pool.IdleTimeout)
	}
	if c.Render.Timeout <= 0 {
		return errors.New(errors.ErrCodeValidation, "invalid render.timeout: %s (must be positive)", c.Render.Timeout)
	}
	if c.Render.ReadyTimeout < 0 || c.Render.Settle < 0 {
		return errors.New(errors.ErrCodeValidation, "render durations must not be negative")
	}
	if c.Render.DeviceScale < 0 {
		return errors.New(errors.ErrCodeValidation, "invalid render.device_scale: %g", c.Render.DeviceScale)
	}
	if c.Writeback.Workers < 1 || c.Writeback.QueueSize < 1 {
		return errors.New(errors.ErrCodeValidation, "writeback workers and queue_size must be positive")
	}
	return c.Storage.validate()
}

func (s *StorageConfig) validate() error {
	if s.Driver == "" {
		s.Driver = DriverNone
	}
	if !ValidDrivers[s.Driver] {
		return errors.New(errors.ErrCodeValidation, "invalid storage.driver: %q (must be one of: none, memory, file, redis, mongo)", s.Driver)
	}
	if s.Timeout <= 0 {
		return errors.New(errors.ErrCodeValidation, "invalid storage.timeout: %s (must be positive)", s.Timeout)
	}
	switch s.Driver {
	case DriverRedis:
		if s.Redis.Addr == "" {
			return errors.New(errors.ErrCodeValidation, "storage.redis.addr is required for the redis driver")
		}
	case DriverMongo:
		if s.Mongo.URI == "" {
			return errors.New(errors.ErrCodeValidation, "storage.mongo.uri is required for the mongo driver")
		}
	}
	return nil
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// Level returns the parsed log level. Invalid levels fall back to info.
func (c *Config) Level() log.Level {
	lvl, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// Persistent reports whether a durable tier is configured.
func (c *Config) Persistent() bool {
	return c.Storage.Driver != DriverNone && c.Storage.Driver != ""
}

// envReader applies variables and keeps the first parse error.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) get(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func (e *envReader) str(key string, dst *string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e *envReader) int(key string, dst *int) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

// duration reads an integer count of unit.
func (e *envReader) duration(key string, unit time.Duration, dst *time.Duration) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = time.Duration(n) * unit
}

func (e *envReader) fail(key, value string, err error) {
	if e.err == nil {
		e.err = errors.Wrap(errors.ErrCodeValidation, err, "invalid %s: %q", key, value)
	}
}

// String returns a one-line summary for logs. Secrets are omitted.
func (c *Config) String() string {
	return fmt.Sprintf("addr=%s storage=%s pool=%d-%d cache=%d/%s timeout=%s",
		c.Addr(), c.Storage.Driver, c.Pool.Min, c.Pool.Max, c.Cache.MaxEntries, c.Cache.TTL, c.Render.Timeout)
}
