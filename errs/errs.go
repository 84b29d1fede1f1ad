package errs

import (
	"errors"
)

var (
	// ErrEngineUnavailable indicates that no script engine could be created.
	ErrEngineUnavailable = errors.New("script engine unavailable")
	// ErrResourceMissing indicates that a bundled script resource is missing or unreadable.
	ErrResourceMissing = errors.New("bundled resource missing")
	// ErrBootstrap indicates that a bundled script failed to evaluate during runtime setup.
	ErrBootstrap = errors.New("runtime bootstrap failed")
	// ErrEvaluation indicates that the sandbox produced no usable output for a solve call.
	ErrEvaluation = errors.New("evaluation failed")
	// ErrTimeout indicates that a solve call was interrupted by its deadline or cancellation.
	ErrTimeout = errors.New("evaluation interrupted")
	// ErrDecode indicates that sandbox output did not match the wire schema.
	ErrDecode = errors.New("malformed solver output")
	// ErrSolver indicates that one challenge group failed to resolve.
	ErrSolver = errors.New("challenge solving failed")
	// ErrRuntimeBroken indicates that a runtime was left in an unknown state and must be discarded.
	ErrRuntimeBroken = errors.New("runtime unusable")
	// ErrRuntimeClosed indicates use of a runtime after Close.
	ErrRuntimeClosed = errors.New("runtime closed")
	// ErrRemote indicates failure of the remote solving service.
	ErrRemote = errors.New("remote solver failed")
	// ErrNoSolver indicates that neither a local engine nor a remote solver is available.
	ErrNoSolver = errors.New("no solver available")
	// ErrInvalidRequest indicates a request that cannot be encoded.
	ErrInvalidRequest = errors.New("invalid solve request")
)
