package jsc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/internal/logger"
	"github.com/ytget/ytjsc/youtube/jsc/assets"
)

// StackLoader supplies the ordered library stack of a runtime.
// *assets.Bundle implements it.
type StackLoader interface {
	Stack() ([]assets.Script, error)
}

type runtimeState int32

const (
	stateReady runtimeState = iota
	stateBroken
	stateClosed
)

func (s runtimeState) String() string {
	switch s {
	case stateReady:
		return "ready"
	case stateBroken:
		return "broken"
	case stateClosed:
		return "closed"
	}
	return "unknown"
}

const (
	inputGlobal = "__jscInput"
	solveScript = "JSON.stringify(jsc(JSON.parse(" + inputGlobal + ")))"
	solveName   = "solve.js"
)

type options struct {
	engine  string
	stack   StackLoader
	timeout time.Duration
	log     *logger.Logger
	metrics *Metrics
}

// Option configures a Runtime or a Pool.
type Option func(*options)

// WithEngine selects the engine by name ("goja", "otto"); empty selects the
// default.
func WithEngine(name string) Option {
	return func(o *options) { o.engine = name }
}

// WithStack sets the library stack.
func WithStack(s StackLoader) Option {
	return func(o *options) { o.stack = s }
}

// WithTimeout bounds every evaluation. Zero means only the caller's context
// applies.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger sets the logger; the global logger is used otherwise.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) componentLogger(c logger.Component) *logger.ComponentLogger {
	if o.log != nil {
		return o.log.WithComponent(c)
	}
	return logger.WithComponent(c)
}

// Runtime is one bootstrapped sandbox: an engine with the shim and the
// library stack loaded. It runs one evaluation at a time; concurrent callers
// are serialized. A Runtime whose evaluation was interrupted or threw is
// marked broken and refuses further work.
type Runtime struct {
	id      string
	engine  string
	timeout time.Duration
	log     *logger.ComponentLogger
	codec   Decoder
	metrics *Metrics

	mu        sync.Mutex
	eng       Engine
	state     atomic.Int32
	brokenErr error

	// pooled is set while the runtime is counted in a pool's gauge.
	pooled atomic.Bool
}

// NewRuntime creates and bootstraps a runtime. The stack is loaded before the
// engine is created; any failure is fatal and no runtime is returned.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := buildOptions(opts)
	log := o.componentLogger(logger.ComponentRuntime)
	start := time.Now()

	engineName := o.engine
	if engineName == "" {
		engineName = DefaultEngine()
	}
	fail := func(err error) (*Runtime, error) {
		o.metrics.RecordBootstrap(engineName, OutcomeError, time.Since(start))
		return nil, err
	}

	if o.stack == nil {
		log.Error("no script stack configured")
		return fail(NewError(ErrCodeResourceMissing, "no script stack configured", errs.ErrResourceMissing))
	}
	stack, err := o.stack.Stack()
	if err != nil {
		if !errors.Is(err, errs.ErrResourceMissing) {
			err = fmt.Errorf("%w: %w", errs.ErrResourceMissing, err)
		}
		log.Error("load script stack", map[string]interface{}{"error": err})
		return fail(NewError(ErrCodeResourceMissing, "load script stack", err))
	}

	eng, err := NewEngine(o.engine)
	if err != nil {
		log.Error("create engine", map[string]interface{}{"engine": engineName, "error": err})
		return fail(err)
	}

	r := &Runtime{
		id:      uuid.NewString(),
		engine:  eng.Name(),
		timeout: o.timeout,
		log:     log,
		codec:   NewDecoder(o.log),
		metrics: o.metrics,
		eng:     eng,
	}

	if _, err := r.run(ctx, shimScriptName, shimSource()); err != nil {
		_ = eng.Close()
		return fail(r.bootstrapFailure(shimScriptName, "shim", err))
	}
	for _, s := range stack {
		if _, err := r.run(ctx, s.Name, s.Source); err != nil {
			_ = eng.Close()
			return fail(r.bootstrapFailure(s.Name, string(s.Role), err))
		}
	}

	o.metrics.RecordBootstrap(r.engine, OutcomeOK, time.Since(start))
	log.Debug("runtime ready", map[string]interface{}{
		"runtime":  r.id,
		"engine":   r.engine,
		"duration": time.Since(start).String(),
	})
	return r, nil
}

// bootstrapFailure logs a library evaluation error with the engine's full
// diagnostic text and wraps it as BOOTSTRAP_SCRIPT_FAILED.
func (r *Runtime) bootstrapFailure(script, role string, err error) error {
	fields := map[string]interface{}{
		"runtime": r.id,
		"engine":  r.engine,
		"script":  script,
		"role":    role,
		"error":   err,
	}
	var se *ScriptError
	if errors.As(err, &se) {
		fields["detail"] = se.Detail
	}
	r.log.Error("bootstrap script failed", fields)

	code := ErrCodeBootstrapScript
	if errors.Is(err, errs.ErrTimeout) {
		code = ErrCodeTimeout
	}
	return NewError(code, fmt.Sprintf("evaluate %s %q", role, script), fmt.Errorf("%w: %w", errs.ErrBootstrap, err))
}

// ID returns the unique runtime identifier used in logs.
func (r *Runtime) ID() string { return r.id }

// Engine returns the name of the underlying engine.
func (r *Runtime) Engine() string { return r.engine }

// Usable reports whether the runtime accepts further evaluations. It does not
// block on an evaluation in flight.
func (r *Runtime) Usable() bool {
	return runtimeState(r.state.Load()) == stateReady
}

// Close waits for the evaluation in flight, if any, and releases the engine.
// It is safe to call more than once.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if runtimeState(r.state.Load()) == stateClosed {
		return nil
	}
	r.state.Store(int32(stateClosed))
	err := r.eng.Close()
	r.eng = nil
	r.log.Debug("runtime closed", map[string]interface{}{"runtime": r.id})
	return err
}

// Eval hands input to the analysis helper and returns its raw output.
func (r *Runtime) Eval(ctx context.Context, input string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch runtimeState(r.state.Load()) {
	case stateClosed:
		return "", NewError(ErrCodeRuntimeClosed, "runtime closed", errs.ErrRuntimeClosed)
	case stateBroken:
		return "", NewError(ErrCodeRuntimeUnusable, "runtime discarded after failed evaluation",
			fmt.Errorf("%w: %v", errs.ErrRuntimeBroken, r.brokenErr))
	}

	// A context that is already done never reaches the engine, so the
	// runtime stays usable.
	if err := ctx.Err(); err != nil {
		return "", NewError(ErrCodeTimeout, "context done before evaluation", fmt.Errorf("%w: %w", errs.ErrTimeout, err))
	}
	if err := r.eng.SetString(inputGlobal, input); err != nil {
		return "", NewError(ErrCodeEvaluation, "bind input", fmt.Errorf("%w: %v", errs.ErrEvaluation, err))
	}
	out, err := r.run(ctx, solveName, solveScript)
	_ = r.eng.SetString(inputGlobal, "")
	if err != nil {
		return "", r.evalFailure(err)
	}
	return out, nil
}

func (r *Runtime) evalFailure(err error) error {
	r.brokenErr = err
	r.state.Store(int32(stateBroken))

	if errors.Is(err, errs.ErrTimeout) {
		r.log.Warn("evaluation interrupted", map[string]interface{}{
			"runtime": r.id,
			"engine":  r.engine,
			"error":   err,
		})
		return NewError(ErrCodeTimeout, "evaluation interrupted", err)
	}

	fields := map[string]interface{}{
		"runtime": r.id,
		"engine":  r.engine,
		"error":   err,
	}
	var se *ScriptError
	if errors.As(err, &se) {
		fields["detail"] = se.Detail
	}
	r.log.Error("evaluation failed", fields)
	return NewError(ErrCodeEvaluation, "evaluation failed", fmt.Errorf("%w: %w", errs.ErrEvaluation, err))
}

// run evaluates src and interrupts the engine when ctx or the runtime timeout
// expires. The watcher goroutine is joined before returning so no interrupt
// outlives the evaluation it was meant for.
func (r *Runtime) run(ctx context.Context, name, src string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", errs.ErrTimeout, err)
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-ctx.Done():
			r.eng.Interrupt(ctx.Err().Error())
		case <-done:
		}
	}()

	out, err := r.eng.Run(name, src)
	close(done)
	wg.Wait()

	if err != nil && errors.Is(err, errs.ErrTimeout) && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", err, ctx.Err())
	}
	return out, err
}
