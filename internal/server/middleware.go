package server

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/youtube/jsc"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// DefaultRateLimitIdle is how long a client's limiter is kept after its last
// request.
const DefaultRateLimitIdle = 10 * time.Minute

// RateLimitConfig defines per-client rate limiting. A zero RequestsPerSecond
// disables it. Limiters idle for longer than Idle are pruned; zero means
// DefaultRateLimitIdle.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	Idle              time.Duration
}

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// DefaultCORSConfig allows any origin to post envelopes.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		MaxAge:       12 * time.Hour,
	}
}

// RequestID tags every request with an identifier, reusing the caller's.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog writes one entry per request on the server component.
func AccessLog(log *logger.ComponentLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := map[string]interface{}{
			"request_id": c.GetString(requestIDKey),
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"bytes":      c.Writer.Size(),
			"client":     c.ClientIP(),
			"duration":   time.Since(start).String(),
		}
		if len(c.Errors) > 0 {
			fields["error"] = c.Errors.String()
		}
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			log.Warn("request failed", fields)
		default:
			log.Info("request", fields)
		}
	}
}

// Metrics records request counts and latency by route template.
func Metrics(m *jsc.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

type rateClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateClients holds one limiter per client IP and prunes idle ones at most
// once per idle period.
type rateClients struct {
	cfg RateLimitConfig

	mu        sync.Mutex
	clients   map[string]*rateClient
	lastPrune time.Time
}

func newRateClients(cfg RateLimitConfig) *rateClients {
	if cfg.Idle <= 0 {
		cfg.Idle = DefaultRateLimitIdle
	}
	return &rateClients{cfg: cfg, clients: make(map[string]*rateClient)}
}

func (rc *rateClients) allow(ip string, now time.Time) bool {
	rc.mu.Lock()
	if now.Sub(rc.lastPrune) >= rc.cfg.Idle {
		for k, cl := range rc.clients {
			if now.Sub(cl.lastSeen) >= rc.cfg.Idle {
				delete(rc.clients, k)
			}
		}
		rc.lastPrune = now
	}
	cl, ok := rc.clients[ip]
	if !ok {
		cl = &rateClient{limiter: rate.NewLimiter(rate.Limit(rc.cfg.RequestsPerSecond), rc.cfg.Burst)}
		rc.clients[ip] = cl
	}
	cl.lastSeen = now
	rc.mu.Unlock()

	return cl.limiter.AllowN(now, 1)
}

func (rc *rateClients) len() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.clients)
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	clients := newRateClients(cfg)

	return func(c *gin.Context) {
		if !clients.allow(c.ClientIP(), time.Now()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody("rate limit exceeded"))
			return
		}
		c.Next()
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  cfg.AllowOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Content-Length", "Accept-Encoding", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        cfg.MaxAge,
	})
}
