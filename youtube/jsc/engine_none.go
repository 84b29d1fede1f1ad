//go:build nojsc

package jsc

// Builds tagged nojsc register no engine: LocalAvailable reports false and
// NewRuntime fails with ErrCodeEngineUnavailable, so callers fall back to a
// remote solver behind the same types.Solver contract.
