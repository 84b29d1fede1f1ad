package jsc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/types"
	"github.com/ytget/ytjsc/youtube/jsc/assets"
)

// countingStack counts how often the stack is handed to a bootstrap.
type countingStack struct {
	mu    sync.Mutex
	n     int
	inner StackLoader
}

func (c *countingStack) Stack() ([]assets.Script, error) {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
	return c.inner.Stack()
}

func (c *countingStack) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

func newTestPool(t *testing.T, ttl time.Duration, opts ...Option) (*Pool, *countingStack) {
	t.Helper()
	cs := &countingStack{inner: testStack(nil)}
	all := append([]Option{WithStack(cs), WithLogger(logger.Nop())}, opts...)
	p := NewPool(ttl, all...)
	t.Cleanup(func() { _ = p.Close() })
	return p, cs
}

func TestPoolReusesRuntimePerPlayer(t *testing.T) {
	p, cs := newTestPool(t, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		resp, err := p.Solve(ctx, types.SolveRequest{Player: goodPlayer, N: []string{"abc"}})
		require.NoError(t, err)
		assert.Equal(t, "cba", resp.N["abc"])
	}
	assert.Equal(t, 1, cs.count())
	assert.Equal(t, 1, p.Len())

	_, err := p.Solve(ctx, types.SolveRequest{Player: goodPlayer + "\n// v2", N: []string{"abc"}})
	require.NoError(t, err)
	assert.Equal(t, 2, cs.count())
	assert.Equal(t, 2, p.Len())
}

func TestPoolKeyPrefersPlayerID(t *testing.T) {
	a := KeyFor(types.SolveRequest{PlayerID: "abcd1234", Player: "x"})
	b := KeyFor(types.SolveRequest{PlayerID: "abcd1234", Preprocessed: "y"})
	assert.Equal(t, a, b)
	assert.NotEqual(t, KeyFor(types.SolveRequest{Player: "x"}), KeyFor(types.SolveRequest{Player: "y"}))
}

func TestPoolSharesConcurrentBootstrap(t *testing.T) {
	p, cs := newTestPool(t, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Solve(context.Background(), types.SolveRequest{Player: goodPlayer, Sig: []string{"s"}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, cs.count())
}

func TestPoolReplacesBrokenRuntime(t *testing.T) {
	p, _ := newTestPool(t, time.Minute)
	ctx := context.Background()
	key := KeyFor(types.SolveRequest{Player: goodPlayer})

	rt, err := p.Runtime(ctx, key)
	require.NoError(t, err)

	// break it the way a timed out evaluation would
	rt.mu.Lock()
	rt.brokenErr = errs.ErrTimeout
	rt.state.Store(int32(stateBroken))
	rt.mu.Unlock()

	resp, err := p.Solve(ctx, types.SolveRequest{Player: goodPlayer, N: []string{"ab"}})
	require.NoError(t, err)
	assert.Equal(t, "ba", resp.N["ab"])

	fresh, err := p.Runtime(ctx, key)
	require.NoError(t, err)
	assert.NotEqual(t, rt.ID(), fresh.ID())
}

func TestPoolDiscardsRuntimeBrokenBySolve(t *testing.T) {
	p := NewPool(time.Minute,
		WithStack(testStack(map[string]string{assets.DefaultSolver: `function jsc(input) { for (;;) {} }`})),
		WithTimeout(testTimeout),
		WithLogger(logger.Nop()),
	)
	defer p.Close()

	_, err := p.Solve(context.Background(), types.SolveRequest{Player: goodPlayer})
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 0, p.Len())
}

func TestPoolRetriesRuntimeClosedUnderneath(t *testing.T) {
	p, cs := newTestPool(t, time.Minute)
	ctx := context.Background()
	key := KeyFor(types.SolveRequest{Player: goodPlayer})

	var seen []*Runtime
	err := p.with(ctx, key, func(r *Runtime) error {
		seen = append(seen, r)
		if len(seen) == 1 {
			// closed as if by an eviction racing with this caller
			require.NoError(t, r.Close())
		}
		_, err := r.Solve(ctx, types.SolveRequest{Player: goodPlayer, N: []string{"ab"}})
		return err
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0].ID(), seen[1].ID())
	assert.Equal(t, 2, cs.count())
}

func TestPoolEvictionClosesRuntime(t *testing.T) {
	m := NewMetrics()
	p, _ := newTestPool(t, 50*time.Millisecond, WithMetrics(m))
	key := KeyFor(types.SolveRequest{Player: goodPlayer})

	rt, err := p.Runtime(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, m, "ytjsc_pool_runtimes", nil))

	require.Eventually(t, func() bool { return !rt.Usable() }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, p.Len())
	assert.Equal(t, 0.0, counterValue(t, m, "ytjsc_pool_runtimes", nil))
}

func TestPoolBootstrapFailureNotPooled(t *testing.T) {
	p := NewPool(time.Minute,
		WithStack(testStack(map[string]string{assets.DefaultSolver: ""})),
		WithLogger(logger.Nop()),
	)
	defer p.Close()

	_, err := p.Solve(context.Background(), types.SolveRequest{Player: goodPlayer})
	require.Error(t, err)
	assert.True(t, IsBootstrap(err))
	assert.Equal(t, 0, p.Len())
}

func TestPoolClose(t *testing.T) {
	p, _ := newTestPool(t, time.Minute)
	key := KeyFor(types.SolveRequest{Player: goodPlayer})
	rt, err := p.Runtime(context.Background(), key)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.False(t, rt.Usable())
	assert.Equal(t, 0, p.Len())

	_, err = p.Solve(context.Background(), types.SolveRequest{Player: goodPlayer})
	assert.True(t, errors.Is(err, errs.ErrRuntimeClosed))
}

func TestPoolLookupMetrics(t *testing.T) {
	m := NewMetrics()
	p, _ := newTestPool(t, time.Minute, WithMetrics(m))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := p.Solve(ctx, types.SolveRequest{Player: goodPlayer})
		require.NoError(t, err)
	}
	assert.Equal(t, 1.0, counterValue(t, m, "ytjsc_pool_lookups_total", map[string]string{"result": lookupMiss}))
	assert.Equal(t, 2.0, counterValue(t, m, "ytjsc_pool_lookups_total", map[string]string{"result": lookupHit}))
}

// slowStack delays every stack load.
type slowStack struct {
	delay time.Duration
	inner StackLoader
}

func (s slowStack) Stack() ([]assets.Script, error) {
	time.Sleep(s.delay)
	return s.inner.Stack()
}

func TestPoolBootstrapOutlivesImpatientCaller(t *testing.T) {
	p := NewPool(time.Minute,
		WithStack(slowStack{delay: 300 * time.Millisecond, inner: testStack(nil)}),
		WithLogger(logger.Nop()),
	)
	defer p.Close()
	key := KeyFor(types.SolveRequest{Player: goodPlayer})

	impatient := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := p.Runtime(ctx, key)
		impatient <- err
	}()
	// let the impatient caller start the shared bootstrap
	time.Sleep(10 * time.Millisecond)

	rt, err := p.Runtime(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, rt.Usable())

	err = <-impatient
	require.Error(t, err)
	assert.True(t, IsTimeout(err))
	assert.Equal(t, 1, p.Len())
}

func TestPoolGaugeCountsEvictionOnce(t *testing.T) {
	m := NewMetrics()
	p, _ := newTestPool(t, time.Minute, WithMetrics(m))
	key := KeyFor(types.SolveRequest{Player: goodPlayer})

	rt, err := p.Runtime(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, 1.0, counterValue(t, m, "ytjsc_pool_runtimes", nil))

	// an entry reinserted after eviction is evicted a second time
	p.evicted(key, rt)
	p.evicted(key, rt)
	assert.Equal(t, 0.0, counterValue(t, m, "ytjsc_pool_runtimes", nil))

	// the stale entry is dropped on lookup and replaced
	fresh, err := p.Runtime(context.Background(), key)
	require.NoError(t, err)
	assert.NotEqual(t, rt.ID(), fresh.ID())
	assert.Equal(t, 1.0, counterValue(t, m, "ytjsc_pool_runtimes", nil))
}
