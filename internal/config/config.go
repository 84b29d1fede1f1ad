// Package config loads ytjsc settings: built-in defaults, then an optional
// TOML file, then YTJSC_* environment variables. Command-line flags are
// applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"

	"github.com/ytget/ytjsc/internal/logger"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "YTJSC"

// Solver modes
const (
	ModeAuto   = "auto"
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// Config holds all ytjsc configuration. Environment names derive from field
// names (YTJSC_CACHE_DIR); unset variables keep the file or default value.
type Config struct {
	Mode            string       `toml:"mode"`
	Engine          string       `toml:"engine"`
	AssetsDir       string       `toml:"assets_dir" split_words:"true"`
	ParserFile      string       `toml:"parser_file" split_words:"true"`
	RegeneratorFile string       `toml:"regenerator_file" split_words:"true"`
	SolverFile      string       `toml:"solver_file" split_words:"true"`
	Timeout         string       `toml:"timeout"`
	RuntimeTTL      string       `toml:"runtime_ttl" split_words:"true"`
	RemoteURL       string       `toml:"remote_url" split_words:"true"`
	Cache           CacheConfig  `toml:"cache"`
	Server          ServerConfig `toml:"server"`
	Log             LogConfig    `toml:"log"`
}

// CacheConfig configures the preprocessed player cache. An empty Dir keeps
// entries in memory.
type CacheConfig struct {
	Dir string `toml:"dir"`
	TTL string `toml:"ttl"`
}

// ServerConfig configures the HTTP solve service.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	Development     bool     `toml:"development"`
	ShutdownTimeout string   `toml:"shutdown_timeout" split_words:"true"`
	RateLimitRPS    int      `toml:"rate_limit_rps" split_words:"true"`
	RateLimitBurst  int      `toml:"rate_limit_burst" split_words:"true"`
	CORSOrigins     []string `toml:"cors_origins" split_words:"true"`
}

// LogConfig mirrors logger.LogConfig with a value-typed rotation section.
type LogConfig struct {
	Level      string                `toml:"level"`
	Format     string                `toml:"format"`
	Output     string                `toml:"output"`
	Components map[string]bool       `toml:"components"`
	ShowCaller bool                  `toml:"show_caller" split_words:"true"`
	Timestamp  bool                  `toml:"timestamp"`
	Rotation   logger.RotationConfig `toml:"rotation"`
}

// Durations holds the parsed duration settings.
type Durations struct {
	Timeout         time.Duration
	RuntimeTTL      time.Duration
	CacheTTL        time.Duration
	ShutdownTimeout time.Duration
}

// Default returns the built-in configuration.
func Default() *Config {
	lc := logger.DefaultLogConfig()
	return &Config{
		Mode:       ModeAuto,
		Timeout:    "10s",
		RuntimeTTL: "30m",
		Cache: CacheConfig{
			TTL: "24h",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8787",
			ShutdownTimeout: "10s",
			RateLimitBurst:  20,
		},
		Log: LogConfig{
			Level:      lc.Level,
			Format:     lc.Format,
			Output:     lc.Output,
			Components: lc.Components,
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path (if
// path is not empty) and the environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if ext := filepath.Ext(path); ext != ".toml" {
		return fmt.Errorf("unsupported config format: %s, only .toml is supported", ext)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	return c.Parse(data)
}

// Parse overlays TOML data on c. Unknown keys are rejected.
func (c *Config) Parse(data []byte) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(c); err != nil {
		var sme *toml.StrictMissingError
		if errors.As(err, &sme) {
			return fmt.Errorf("parse config: %s", sme.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks enums and durations.
func (c *Config) Validate() error {
	var problems []error

	switch c.Mode {
	case ModeAuto, ModeLocal, ModeRemote:
	default:
		problems = append(problems, fmt.Errorf("mode must be one of auto, local, remote: %q", c.Mode))
	}
	switch c.Engine {
	case "", "goja", "otto":
	default:
		problems = append(problems, fmt.Errorf("unknown engine %q", c.Engine))
	}
	if c.Mode == ModeRemote && c.RemoteURL == "" {
		problems = append(problems, errors.New("remote mode needs remote_url"))
	}
	if c.Mode == ModeLocal && c.AssetsDir == "" {
		problems = append(problems, errors.New("local mode needs assets_dir"))
	}
	if c.RemoteURL != "" && !strings.HasPrefix(c.RemoteURL, "http://") && !strings.HasPrefix(c.RemoteURL, "https://") {
		problems = append(problems, fmt.Errorf("remote_url must be http or https: %q", c.RemoteURL))
	}
	if c.Server.RateLimitRPS < 0 || c.Server.RateLimitBurst < 0 {
		problems = append(problems, errors.New("rate limits must be non-negative"))
	}
	if _, err := c.Durations(); err != nil {
		problems = append(problems, err)
	}
	if err := c.Logger().ValidateConfig(); err != nil {
		problems = append(problems, fmt.Errorf("log: %w", err))
	}
	return errors.Join(problems...)
}

// Durations parses the duration settings. Empty values are zero.
func (c *Config) Durations() (Durations, error) {
	var d Durations
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"timeout", c.Timeout, &d.Timeout},
		{"runtime_ttl", c.RuntimeTTL, &d.RuntimeTTL},
		{"cache.ttl", c.Cache.TTL, &d.CacheTTL},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout, &d.ShutdownTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := time.ParseDuration(f.raw)
		if err != nil {
			return Durations{}, fmt.Errorf("%s: %w", f.name, err)
		}
		if v < 0 {
			return Durations{}, fmt.Errorf("%s must be non-negative: %s", f.name, f.raw)
		}
		*f.dst = v
	}
	return d, nil
}

// Logger returns the logging section in the logger package's form.
func (c *Config) Logger() *logger.LogConfig {
	lc := &logger.LogConfig{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		Output:     c.Log.Output,
		Components: c.Log.Components,
		ShowCaller: c.Log.ShowCaller,
		Timestamp:  c.Log.Timestamp,
	}
	if r := c.Log.Rotation; r.MaxSize != "" || r.MaxAge != "" {
		lc.Rotation = &r
	}
	return lc
}
