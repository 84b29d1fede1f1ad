// Package server exposes the challenge solver as an HTTP service speaking the
// sandbox envelope protocol. Remote solvers in builds without a script engine
// talk to it.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/internal/ppcache"
	"github.com/ytget/ytjsc/youtube/jsc"
)

// Routes
const (
	SolvePath   = "/v1/solve"
	HealthPath  = "/healthz"
	MetricsPath = "/metrics"
)

// Defaults
const (
	DefaultAddr            = "127.0.0.1:8787"
	DefaultMaxBodyBytes    = 32 << 20
	DefaultShutdownTimeout = 10 * time.Second
)

// Backend runs envelopes on pooled runtimes. *jsc.Pool implements it.
type Backend interface {
	Exchange(ctx context.Context, key string, env *jsc.Envelope) (*jsc.Response, error)
	Len() int
}

// Config holds server settings.
type Config struct {
	Addr            string
	Development     bool
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration
	RateLimit       RateLimitConfig
	CORS            *CORSConfig
}

// DefaultConfig returns a loopback server without rate limiting or CORS.
func DefaultConfig() Config {
	return Config{
		Addr:            DefaultAddr,
		MaxBodyBytes:    DefaultMaxBodyBytes,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}

// Server wraps the HTTP server and its backend.
type Server struct {
	cfg     Config
	backend Backend
	metrics *jsc.Metrics
	log     *logger.ComponentLogger
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on MetricsPath.
func WithMetrics(m *jsc.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l.WithComponent(logger.ComponentServer) }
}

// New creates a server for backend.
func New(cfg Config, backend Backend, opts ...Option) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	s := &Server{
		cfg:     cfg,
		backend: backend,
		log:     logger.WithComponent(logger.ComponentServer),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	if !s.cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(RequestID())
	router.Use(AccessLog(s.log))
	router.Use(Metrics(s.metrics))
	if s.cfg.CORS != nil {
		router.Use(CORS(*s.cfg.CORS))
	}
	if s.cfg.RateLimit.RequestsPerSecond > 0 {
		s.log.Info("rate limiting enabled", map[string]interface{}{
			"rps":   s.cfg.RateLimit.RequestsPerSecond,
			"burst": s.cfg.RateLimit.Burst,
		})
		router.Use(RateLimit(s.cfg.RateLimit))
	}

	router.POST(SolvePath, s.solve)
	router.GET(HealthPath, s.health)
	router.GET(MetricsPath, gin.WrapH(s.metrics.Handler()))
	return router
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", map[string]interface{}{"addr": s.cfg.Addr})
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func errorBody(msg string) gin.H {
	return gin.H{"type": "error", "error": msg}
}

func (s *Server) solve(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorBody("request body too large"))
			return
		}
		c.JSON(http.StatusBadRequest, errorBody("read request body: "+err.Error()))
		return
	}

	env, err := jsc.DecodeRequest(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	player := env.Player
	if player == "" {
		player = env.PreprocessedPlayer
	}
	key := ppcache.KeyForPlayer("", player)

	resp, err := s.backend.Exchange(c.Request.Context(), key, env)
	if err != nil {
		_ = c.Error(err)
		var je *jsc.Error
		code := ""
		if errors.As(err, &je) {
			code = je.Code
		}
		c.JSON(statusFor(err), gin.H{"type": "error", "error": err.Error(), "code": code})
		return
	}

	body, err := jsc.EncodeResponse(resp)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", body)
}

// statusFor maps solver errors to HTTP statuses. Deterministic failures use
// 4xx so clients do not retry them.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errs.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, errs.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, errs.ErrRuntimeClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, errs.ErrDecode), errors.Is(err, errs.ErrEvaluation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) health(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if !jsc.LocalAvailable() {
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":         status,
		"local":          jsc.LocalAvailable(),
		"engines":        jsc.Engines(),
		"default_engine": jsc.DefaultEngine(),
		"runtimes":       s.backend.Len(),
	})
}
