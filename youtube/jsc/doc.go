/*
Package jsc solves YouTube "n" and "sig" challenges by running the player's own
script inside an embedded JavaScript sandbox.

The deciphering logic is not implemented in Go. It lives in the versioned
player script and in an analysis helper that locates and calls the
transformation routines inside it. This package builds the sandbox, feeds it
batches of challenges and turns its answers into two token maps.

# Architecture

1. Engine
  - goja (default) or otto, selected by name
  - both are compiled out by the nojsc build tag; LocalAvailable reports
    whether local solving is possible in the current build

2. Runtime
  - one engine per runtime, never shared
  - bootstrap order: shim, parser library, regenerator library, helper
  - a missing resource or a throwing library is fatal for that runtime and
    is logged with the engine's full diagnostic text

3. Protocol
  - JSON envelope {type, player|preprocessed_player, requests, output_preprocessed}
  - JSON response {type, responses, preprocessed_player}
  - response items are a result/error union; any other tag is a decode error
  - responses are positional: item i answers request group i

4. Pool
  - one runtime per player version, idle runtimes expire after a TTL
  - broken runtimes are closed and replaced on next use

# Usage

Basic usage:

	rt, err := jsc.NewRuntime(ctx, jsc.WithStack(assets.Dir("/usr/share/ytjsc")))
	if err != nil {
		return err
	}
	defer rt.Close()

	resp, err := rt.Solve(ctx, types.SolveRequest{
		Player: playerJS,
		N:      []string{"n1", "n2"},
		Sig:    []string{"s1"},
	})

Error handling:

	if err != nil {
		switch {
		case jsc.KindFailed(err, types.KindSig):
			// resp.N is still usable
		case jsc.IsTimeout(err):
			// the runtime is discarded
		case jsc.IsDecode(err):
			// the raw helper output is in the error
		default:
			// Handle other errors
		}
	}

# Error Codes

- BOOTSTRAP_ENGINE_UNAVAILABLE: no engine compiled in, or unknown engine name
- BOOTSTRAP_RESOURCE_MISSING: a bundled script could not be read
- BOOTSTRAP_SCRIPT_FAILED: a bundled script threw during evaluation
- EVALUATION_FAILED: the helper produced no usable output
- EVALUATION_TIMEOUT: the evaluation was interrupted by its deadline
- DECODE_FAILED: helper output did not match the wire schema
- RUNTIME_UNUSABLE: the runtime was discarded after a failed evaluation
- RUNTIME_CLOSED: the runtime or pool was closed
- INVALID_REQUEST: the request could not be encoded

# Thread Safety

A Runtime runs one evaluation at a time and serializes concurrent callers.
Runtimes share nothing but the read-only library text, so different runtimes
run in parallel. Pool and Metrics are safe for concurrent use.
*/
package jsc
