package ytjsc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/internal/ppcache"
	"github.com/ytget/ytjsc/internal/remote"
	"github.com/ytget/ytjsc/pkg/client"
	"github.com/ytget/ytjsc/types"
	"github.com/ytget/ytjsc/youtube/jsc"
)

// Solver modes
const (
	ModeAuto   = "auto"
	ModeLocal  = "local"
	ModeRemote = "remote"
)

// DefaultPreprocessedTTL is how long a cached preprocessed player is reused.
const DefaultPreprocessedTTL = 24 * time.Hour

// Options contains the configuration of a Solver.
//
// Use chainable setters on Solver to populate these options.
type Options struct {
	Mode       string
	Engine     string
	Stack      jsc.StackLoader
	RemoteURL  string
	HTTPClient *client.Client
	Cache      ppcache.Cache
	CacheTTL   time.Duration
	Timeout    time.Duration
	RuntimeTTL time.Duration
	Logger     *logger.Logger
	Metrics    *jsc.Metrics
}

// Solver resolves "n" and "sig" challenges against player scripts. It solves
// locally when a script engine is compiled in and a library stack is set, and
// falls back to a remote solve service otherwise.
type Solver struct {
	options Options

	once    sync.Once
	mode    string
	backend types.Solver
	pool    *jsc.Pool
	err     error
}

// New creates a Solver with default options.
func New() *Solver {
	return &Solver{options: Options{
		Mode:       ModeAuto,
		CacheTTL:   DefaultPreprocessedTTL,
		RuntimeTTL: jsc.DefaultRuntimeTTL,
	}}
}

// WithMode forces local or remote solving. ModeAuto picks local when possible.
func (s *Solver) WithMode(mode string) *Solver {
	s.options.Mode = mode
	return s
}

// WithEngine selects the script engine by name ("goja", "otto").
func (s *Solver) WithEngine(name string) *Solver {
	s.options.Engine = name
	return s
}

// WithAssets sets the parser, regenerator and helper library stack.
func (s *Solver) WithAssets(stack jsc.StackLoader) *Solver {
	s.options.Stack = stack
	return s
}

// WithRemote sets the URL of a solve service.
func (s *Solver) WithRemote(url string) *Solver {
	s.options.RemoteURL = url
	return s
}

// WithHTTPClient sets the client used to reach the solve service.
func (s *Solver) WithHTTPClient(c *client.Client) *Solver {
	s.options.HTTPClient = c
	return s
}

// WithPreprocessedCache stores preprocessed players in c for ttl. Later
// batches for a cached player skip the analysis step.
func (s *Solver) WithPreprocessedCache(c ppcache.Cache, ttl time.Duration) *Solver {
	s.options.Cache = c
	s.options.CacheTTL = ttl
	return s
}

// WithTimeout bounds every sandbox evaluation.
func (s *Solver) WithTimeout(d time.Duration) *Solver {
	s.options.Timeout = d
	return s
}

// WithRuntimeTTL sets how long an idle runtime is kept per player.
func (s *Solver) WithRuntimeTTL(d time.Duration) *Solver {
	s.options.RuntimeTTL = d
	return s
}

// WithLogger sets the logger used by every layer.
func (s *Solver) WithLogger(l *logger.Logger) *Solver {
	s.options.Logger = l
	return s
}

// WithMetrics records runtime and solve metrics.
func (s *Solver) WithMetrics(m *jsc.Metrics) *Solver {
	s.options.Metrics = m
	return s
}

func (s *Solver) log() *logger.ComponentLogger {
	if s.options.Logger != nil {
		return s.options.Logger.WithComponent(logger.ComponentApp)
	}
	return logger.WithComponent(logger.ComponentApp)
}

// Mode resolves and returns the solving mode in use.
func (s *Solver) Mode() (string, error) {
	s.once.Do(s.init)
	return s.mode, s.err
}

func (s *Solver) init() {
	o := s.options
	local := jsc.LocalAvailable() && o.Stack != nil

	switch o.Mode {
	case ModeLocal:
		if !jsc.LocalAvailable() {
			s.err = jsc.NewError(jsc.ErrCodeEngineUnavailable, "local mode requested but no engine is compiled in", errs.ErrEngineUnavailable)
			return
		}
		if o.Stack == nil {
			s.err = jsc.NewError(jsc.ErrCodeResourceMissing, "local mode requested without a script stack", errs.ErrResourceMissing)
			return
		}
		s.initLocal()
	case ModeRemote:
		s.initRemote()
	case ModeAuto, "":
		switch {
		case local:
			s.initLocal()
		case o.RemoteURL != "":
			s.initRemote()
		default:
			s.err = fmt.Errorf("%w: local available=%t, stack set=%t, no remote URL",
				errs.ErrNoSolver, jsc.LocalAvailable(), o.Stack != nil)
		}
	default:
		s.err = fmt.Errorf("%w: unknown mode %q", errs.ErrNoSolver, o.Mode)
	}

	if s.err != nil {
		s.log().Error("no solver", map[string]interface{}{"error": s.err})
		return
	}
	s.log().Info("solver ready", map[string]interface{}{
		"mode":   s.mode,
		"engine": o.Engine,
		"remote": o.RemoteURL,
	})
}

func (s *Solver) initLocal() {
	o := s.options
	opts := []jsc.Option{
		jsc.WithEngine(o.Engine),
		jsc.WithStack(o.Stack),
		jsc.WithTimeout(o.Timeout),
		jsc.WithMetrics(o.Metrics),
	}
	if o.Logger != nil {
		opts = append(opts, jsc.WithLogger(o.Logger))
	}
	s.pool = jsc.NewPool(o.RuntimeTTL, opts...)
	s.backend = s.pool
	s.mode = ModeLocal
}

func (s *Solver) initRemote() {
	o := s.options
	if o.RemoteURL == "" {
		s.err = fmt.Errorf("%w: remote mode requested without a URL", errs.ErrNoSolver)
		return
	}
	var opts []remote.Option
	if o.HTTPClient != nil {
		opts = append(opts, remote.WithClient(o.HTTPClient))
	}
	if o.Logger != nil {
		opts = append(opts, remote.WithLogger(o.Logger))
	}
	r, err := remote.New(o.RemoteURL, opts...)
	if err != nil {
		s.err = err
		return
	}
	s.backend = r
	s.mode = ModeRemote
}

// Solve resolves one batch. On a per-kind failure the response still holds
// every kind that succeeded and the error names the failed kinds.
func (s *Solver) Solve(ctx context.Context, req types.SolveRequest) (*types.SolveResponse, error) {
	if _, err := s.Mode(); err != nil {
		return nil, err
	}
	if s.options.Cache == nil || req.Player == "" {
		return s.backend.Solve(ctx, req)
	}

	key := ppcache.KeyForPlayer(req.PlayerID, req.Player)
	wantPreprocessed := req.OutputPreprocessed
	req.PlayerID = key

	if e, ok := s.options.Cache.Get(key); ok {
		hit := req
		hit.Player, hit.Preprocessed = "", e.Preprocessed
		hit.OutputPreprocessed = false
		resp, err := s.backend.Solve(ctx, hit)
		if !stalePreprocessed(err) {
			if resp != nil && wantPreprocessed {
				resp.Preprocessed = e.Preprocessed
			}
			return resp, err
		}
		s.log().Warn("dropping cached preprocessed player", map[string]interface{}{
			"key":   key,
			"error": err,
		})
		s.options.Cache.Delete(key)
	}

	req.OutputPreprocessed = true
	resp, err := s.backend.Solve(ctx, req)
	if resp != nil && resp.Preprocessed != "" {
		entry := ppcache.Entry{Preprocessed: resp.Preprocessed}
		if s.options.CacheTTL > 0 {
			entry.ExpiresAt = time.Now().Add(s.options.CacheTTL)
		}
		s.options.Cache.Set(key, entry)
		if !wantPreprocessed {
			resp.Preprocessed = ""
		}
	}
	return resp, err
}

// stalePreprocessed reports whether err means the cached preprocessed form
// itself is unusable, as opposed to a per-kind or transient failure.
func stalePreprocessed(err error) bool {
	return jsc.IsDecode(err) || errors.Is(err, errs.ErrEvaluation)
}

// SolveChallenges solves n and sig tokens against a raw player script.
func (s *Solver) SolveChallenges(ctx context.Context, player string, n, sig []string) (*types.SolveResponse, error) {
	return s.Solve(ctx, types.SolveRequest{Player: player, N: n, Sig: sig})
}

// Close releases every pooled runtime.
func (s *Solver) Close() error {
	if s.pool != nil {
		return s.pool.Close()
	}
	return nil
}

var _ types.Solver = (*Solver)(nil)
