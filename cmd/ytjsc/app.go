package main

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/ytget/ytjsc"
	"github.com/ytget/ytjsc/internal/config"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/internal/ppcache"
	"github.com/ytget/ytjsc/internal/server"
	"github.com/ytget/ytjsc/youtube/jsc"
	"github.com/ytget/ytjsc/youtube/jsc/assets"
)

// loadConfig reads the config file and environment, then applies the
// command-line flags that were set explicitly.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}

	strFlags := []struct {
		name string
		dst  *string
	}{
		{"mode", &cfg.Mode},
		{"engine", &cfg.Engine},
		{"assets", &cfg.AssetsDir},
		{"remote", &cfg.RemoteURL},
		{"timeout", &cfg.Timeout},
		{"cache-dir", &cfg.Cache.Dir},
		{"log-level", &cfg.Log.Level},
		{"log-format", &cfg.Log.Format},
		{"addr", &cfg.Server.Addr},
	}
	for _, f := range strFlags {
		if cmd.IsSet(f.name) {
			*f.dst = cmd.String(f.name)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logger.Logger, error) {
	l, err := logger.CreateLoggerFromConfig(cfg.Logger())
	if err != nil {
		return nil, err
	}
	logger.SetGlobalLogger(l)
	return l, nil
}

func newStack(cfg *config.Config) jsc.StackLoader {
	if cfg.AssetsDir == "" {
		return nil
	}
	return assets.Dir(cfg.AssetsDir, assets.WithNames(assets.Names{
		Parser:      cfg.ParserFile,
		Regenerator: cfg.RegeneratorFile,
		Solver:      cfg.SolverFile,
	}))
}

func newSolver(cfg *config.Config, log *logger.Logger) (*ytjsc.Solver, error) {
	d, err := cfg.Durations()
	if err != nil {
		return nil, err
	}
	s := ytjsc.New().
		WithMode(cfg.Mode).
		WithEngine(cfg.Engine).
		WithRemote(cfg.RemoteURL).
		WithTimeout(d.Timeout).
		WithRuntimeTTL(d.RuntimeTTL).
		WithLogger(log)
	if stack := newStack(cfg); stack != nil {
		s.WithAssets(stack)
	}
	if cfg.Cache.Dir != "" {
		fc, err := ppcache.NewFileCache(cfg.Cache.Dir)
		if err != nil {
			return nil, fmt.Errorf("open preprocessed cache: %w", err)
		}
		s.WithPreprocessedCache(fc, d.CacheTTL)
	}
	return s, nil
}

// newServer builds the HTTP solve service over a local runtime pool.
func newServer(cfg *config.Config, log *logger.Logger) (*server.Server, *jsc.Pool, error) {
	if !jsc.LocalAvailable() {
		return nil, nil, fmt.Errorf("serve needs a script engine; this build has none")
	}
	stack := newStack(cfg)
	if stack == nil {
		return nil, nil, fmt.Errorf("serve needs assets_dir")
	}
	d, err := cfg.Durations()
	if err != nil {
		return nil, nil, err
	}

	metrics := jsc.NewMetrics()
	pool := jsc.NewPool(d.RuntimeTTL,
		jsc.WithEngine(cfg.Engine),
		jsc.WithStack(stack),
		jsc.WithTimeout(d.Timeout),
		jsc.WithLogger(log),
		jsc.WithMetrics(metrics),
	)

	sc := server.DefaultConfig()
	sc.Addr = cfg.Server.Addr
	sc.Development = cfg.Server.Development
	sc.ShutdownTimeout = d.ShutdownTimeout
	sc.RateLimit = server.RateLimitConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		Burst:             cfg.Server.RateLimitBurst,
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		cors := server.DefaultCORSConfig()
		cors.AllowOrigins = cfg.Server.CORSOrigins
		sc.CORS = &cors
	}
	srv := server.New(sc, pool, server.WithLogger(log), server.WithMetrics(metrics))
	return srv, pool, nil
}
