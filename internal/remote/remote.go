// Package remote solves challenges through an HTTP solve service that speaks
// the same envelope protocol as the local sandbox. It backs builds without a
// script engine.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/pkg/client"
	"github.com/ytget/ytjsc/types"
	"github.com/ytget/ytjsc/youtube/jsc"
)

// ErrCodeRemote is the error code of failures of the solve service.
const ErrCodeRemote = "REMOTE_FAILED"

// SolvePath is the endpoint path of the solve service.
const SolvePath = "/v1/solve"

// maxErrorBody bounds how much of an error response is quoted in errors.
const maxErrorBody = 512

// Solver posts envelopes to a solve service.
type Solver struct {
	endpoint string
	http     *client.Client
	log      *logger.ComponentLogger
	codec    jsc.Decoder
}

// Option configures a Solver.
type Option func(*Solver)

// WithClient sets the HTTP client.
func WithClient(c *client.Client) Option {
	return func(s *Solver) { s.http = c }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Solver) {
		s.log = l.WithComponent(logger.ComponentRemote)
		s.codec = jsc.NewDecoder(l)
	}
}

// New creates a solver for baseURL. A URL without a path gets SolvePath.
func New(baseURL string, opts ...Option) (*Solver, error) {
	endpoint, err := endpointFor(baseURL)
	if err != nil {
		return nil, err
	}
	s := &Solver{
		endpoint: endpoint,
		http:     client.New(),
		log:      logger.WithComponent(logger.ComponentRemote),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func endpointFor(baseURL string) (string, error) {
	u := strings.TrimSpace(baseURL)
	if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
		return "", jsc.NewError(ErrCodeRemote, fmt.Sprintf("remote URL %q must be http or https", baseURL), errs.ErrRemote)
	}
	rest := u[strings.Index(u, "//")+2:]
	if !strings.Contains(strings.TrimRight(rest, "/"), "/") {
		u = strings.TrimRight(u, "/") + SolvePath
	}
	return u, nil
}

// Endpoint returns the URL requests are posted to.
func (s *Solver) Endpoint() string { return s.endpoint }

// Solve sends req as one envelope and demultiplexes the answer exactly like
// the local runtime.
func (s *Solver) Solve(ctx context.Context, req types.SolveRequest) (*types.SolveResponse, error) {
	env, err := jsc.NewEnvelope(req)
	if err != nil {
		return nil, err
	}
	resp, err := s.Exchange(ctx, env)
	if err != nil {
		return nil, err
	}
	return s.codec.Collect(env.Requests, resp)
}

// Exchange posts env and decodes the response envelope.
func (s *Solver) Exchange(ctx context.Context, env *jsc.Envelope) (*jsc.Response, error) {
	body, err := jsc.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.http.Post(ctx, s.endpoint, "application/json", body)
	if err != nil {
		s.log.Warn("solve request failed", map[string]interface{}{
			"endpoint": s.endpoint,
			"error":    err,
		})
		return nil, jsc.NewError(ErrCodeRemote, "post envelope", fmt.Errorf("%w: %w", errs.ErrRemote, err))
	}
	raw, err := client.ReadBody(resp)
	if err != nil {
		return nil, jsc.NewError(ErrCodeRemote, "read response", fmt.Errorf("%w: %w", errs.ErrRemote, err))
	}
	s.log.Debug("solve request done", map[string]interface{}{
		"endpoint": s.endpoint,
		"status":   resp.StatusCode,
		"bytes":    len(raw),
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, jsc.NewError(ErrCodeRemote, fmt.Sprintf("solve service returned %d", resp.StatusCode), errs.ErrRemote,
			map[string]any{"body": truncate(string(raw), maxErrorBody)})
	}
	return s.codec.DecodeResponse(string(raw), len(env.Requests))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ types.Solver = (*Solver)(nil)
