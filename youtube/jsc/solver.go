package jsc

import (
	"context"
	"errors"
	"time"

	"github.com/ytget/ytjsc/errs"
	"github.com/ytget/ytjsc/types"
)

// Solve runs one batch: the n group and the sig group, in that order, in a
// single evaluation. On a per-kind failure the returned response still holds
// every kind that succeeded and the error is a *SolveError.
func (r *Runtime) Solve(ctx context.Context, req types.SolveRequest) (*types.SolveResponse, error) {
	env, err := NewEnvelope(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := r.Exchange(ctx, env)
	if err != nil {
		r.metrics.RecordSolve(r.engine, time.Since(start), outcomesFor(env, err))
		return nil, err
	}
	out, err := r.codec.Collect(env.Requests, resp)
	r.metrics.RecordSolve(r.engine, time.Since(start), outcomesFor(env, err))
	if err != nil {
		r.log.Debug("batch partially failed", map[string]interface{}{
			"runtime": r.id,
			"error":   err,
		})
	}
	return out, err
}

// Exchange sends an arbitrary envelope through the helper and returns the
// decoded response. Items are positional with env.Requests.
func (r *Runtime) Exchange(ctx context.Context, env *Envelope) (*Response, error) {
	input, err := EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}
	raw, err := r.Eval(ctx, string(input))
	if err != nil {
		return nil, err
	}
	return r.codec.DecodeResponse(raw, len(env.Requests))
}

func outcomesFor(env *Envelope, err error) map[types.Kind]string {
	out := make(map[types.Kind]string, len(env.Requests))
	for _, g := range env.Requests {
		switch {
		case err == nil:
			out[g.Type] = OutcomeOK
		case errors.Is(err, errs.ErrTimeout):
			out[g.Type] = OutcomeTimeout
		case KindFailed(err, g.Type):
			out[g.Type] = OutcomeError
		case errors.Is(err, errs.ErrSolver):
			out[g.Type] = OutcomeOK
		default:
			out[g.Type] = OutcomeError
		}
	}
	return out
}

var _ types.Solver = (*Runtime)(nil)
