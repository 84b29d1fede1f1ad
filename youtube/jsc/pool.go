package jsc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/internal/ppcache"
	"github.com/ytget/ytjsc/types"
)

// Pool lookup results.
const (
	lookupHit      = "hit"
	lookupMiss     = "miss"
	lookupReplaced = "replaced"
)

// DefaultRuntimeTTL is how long an idle runtime stays pooled.
const DefaultRuntimeTTL = 30 * time.Minute

// DefaultBootstrapTimeout bounds a shared bootstrap when no evaluation
// timeout is configured.
const DefaultBootstrapTimeout = 2 * time.Minute

// Pool keeps one runtime per player version. Runtimes idle for longer than
// the TTL are evicted and closed; broken runtimes are replaced on next use.
// Different players solve in parallel, calls for one player are serialized by
// its runtime.
type Pool struct {
	opts        []Option
	metrics     *Metrics
	log         *logger.ComponentLogger
	bootTimeout time.Duration

	runtimes *gocache.Cache

	group singleflight.Group

	mu     sync.Mutex
	closed bool
}

// NewPool creates a pool whose runtimes are built with opts. A ttl of zero or
// less keeps runtimes until Close.
func NewPool(ttl time.Duration, opts ...Option) *Pool {
	o := buildOptions(opts)
	p := &Pool{
		opts:    opts,
		metrics: o.metrics,
		log:     o.componentLogger(logger.ComponentPool),
	}
	if o.timeout <= 0 {
		p.bootTimeout = DefaultBootstrapTimeout
	}
	if ttl > 0 {
		p.runtimes = gocache.New(ttl, ttl)
	} else {
		p.runtimes = gocache.New(gocache.NoExpiration, 0)
	}
	p.runtimes.OnEvicted(p.evicted)
	return p
}

func (p *Pool) evicted(key string, v interface{}) {
	rt, ok := v.(*Runtime)
	if !ok {
		return
	}
	if rt.pooled.CompareAndSwap(true, false) {
		p.metrics.AddPoolRuntimes(-1)
	}
	p.log.Debug("evicting runtime", map[string]interface{}{
		"key":     key,
		"runtime": rt.ID(),
	})
	_ = rt.Close()
}

// KeyFor returns the pool key of req.
func KeyFor(req types.SolveRequest) string {
	player := req.Player
	if player == "" {
		player = req.Preprocessed
	}
	return ppcache.KeyForPlayer(req.PlayerID, player)
}

// Len returns the number of pooled runtimes.
func (p *Pool) Len() int { return p.runtimes.ItemCount() }

// Runtime returns the runtime for key, bootstrapping one if needed. Concurrent
// callers for the same key share a single bootstrap. The bootstrap does not
// inherit the caller's cancellation; a caller whose ctx ends stops waiting
// while the others keep theirs.
func (p *Pool) Runtime(ctx context.Context, key string) (*Runtime, error) {
	if rt, ok := p.lookup(key); ok {
		p.metrics.RecordPoolLookup(lookupHit)
		return rt, nil
	}
	if p.isClosed() {
		return nil, NewError(ErrCodeRuntimeClosed, "pool closed", errs.ErrRuntimeClosed)
	}

	ch := p.group.DoChan(key, func() (interface{}, error) {
		if rt, ok := p.lookup(key); ok {
			p.metrics.RecordPoolLookup(lookupHit)
			return rt, nil
		}
		bootCtx := context.WithoutCancel(ctx)
		if p.bootTimeout > 0 {
			var cancel context.CancelFunc
			bootCtx, cancel = context.WithTimeout(bootCtx, p.bootTimeout)
			defer cancel()
		}
		return p.bootstrap(bootCtx, key)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Runtime), nil
	case <-ctx.Done():
		return nil, NewError(ErrCodeTimeout, "waiting for runtime bootstrap", fmt.Errorf("%w: %w", errs.ErrTimeout, ctx.Err()))
	}
}

// bootstrap creates the runtime for key and pools it, unless the pool was
// closed in the meantime.
func (p *Pool) bootstrap(ctx context.Context, key string) (*Runtime, error) {
	p.metrics.RecordPoolLookup(lookupMiss)
	rt, err := NewRuntime(ctx, p.opts...)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = rt.Close()
		return nil, NewError(ErrCodeRuntimeClosed, "pool closed", errs.ErrRuntimeClosed)
	}
	rt.pooled.Store(true)
	p.runtimes.SetDefault(key, rt)
	p.metrics.AddPoolRuntimes(1)
	p.log.Debug("pooled runtime", map[string]interface{}{
		"key":     key,
		"runtime": rt.ID(),
	})
	return rt, nil
}

// lookup returns a usable pooled runtime and slides its TTL. A pooled runtime
// that is no longer usable is evicted.
func (p *Pool) lookup(key string) (*Runtime, bool) {
	v, ok := p.runtimes.Get(key)
	if !ok {
		return nil, false
	}
	rt := v.(*Runtime)
	if !rt.Usable() {
		p.metrics.RecordPoolLookup(lookupReplaced)
		p.discard(key, rt)
		return nil, false
	}
	p.runtimes.SetDefault(key, rt)
	// An eviction between Get and SetDefault closes rt; drop the stale entry.
	if !rt.Usable() {
		p.discard(key, rt)
		return nil, false
	}
	return rt, true
}

// discard evicts rt if it is still the runtime pooled under key.
func (p *Pool) discard(key string, rt *Runtime) {
	if v, ok := p.runtimes.Get(key); ok && v.(*Runtime) == rt {
		p.runtimes.Delete(key)
		return
	}
	_ = rt.Close()
}

// Solve solves req on the runtime of its player.
func (p *Pool) Solve(ctx context.Context, req types.SolveRequest) (*types.SolveResponse, error) {
	if _, err := NewEnvelope(req); err != nil {
		return nil, err
	}
	var out *types.SolveResponse
	err := p.with(ctx, KeyFor(req), func(rt *Runtime) error {
		var err error
		out, err = rt.Solve(ctx, req)
		return err
	})
	return out, err
}

// Exchange sends env through the runtime pooled under key.
func (p *Pool) Exchange(ctx context.Context, key string, env *Envelope) (*Response, error) {
	var out *Response
	err := p.with(ctx, key, func(rt *Runtime) error {
		var err error
		out, err = rt.Exchange(ctx, env)
		return err
	})
	return out, err
}

// with runs fn on the runtime for key. A runtime closed underneath the caller
// by eviction is retried once on a fresh one; a runtime left broken by fn is
// discarded.
func (p *Pool) with(ctx context.Context, key string, fn func(*Runtime) error) error {
	for attempt := 0; ; attempt++ {
		rt, err := p.Runtime(ctx, key)
		if err != nil {
			return err
		}
		err = fn(rt)
		if err == nil {
			return nil
		}
		if errors.Is(err, errs.ErrRuntimeClosed) && attempt == 0 && !p.isClosed() {
			p.log.Debug("runtime closed during use, retrying", map[string]interface{}{
				"key":     key,
				"runtime": rt.ID(),
			})
			continue
		}
		if !rt.Usable() {
			p.discard(key, rt)
		}
		return err
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close evicts and closes every pooled runtime. Later calls fail with
// RUNTIME_CLOSED.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	for key := range p.runtimes.Items() {
		p.runtimes.Delete(key)
	}
	return nil
}

var _ types.Solver = (*Pool)(nil)
