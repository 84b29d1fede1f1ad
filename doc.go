// Package ytjsc resolves YouTube "n" and "sig" challenges by running the
// player's own script in an embedded JavaScript sandbox.
//
// Features:
//   - Batched solving: every n and sig token of a player in one evaluation
//   - Per-kind failure isolation with partial results
//   - Runtime reuse per player version and a preprocessed player cache
//   - Remote solve service fallback for builds without a script engine
package ytjsc
