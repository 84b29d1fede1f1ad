// Package ppcache stores the preprocessed form of player scripts so that later
// batches for the same player skip the analysis step inside the sandbox.
package ppcache

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is one cached preprocessed player.
type Entry struct {
	Preprocessed string
	ExpiresAt    time.Time
}

// Expired reports whether the entry is past its expiry. A zero ExpiresAt never
// expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Cache stores preprocessed players keyed by KeyForPlayer.
type Cache interface {
	Get(key string) (Entry, bool)
	Set(key string, value Entry)
	Delete(key string)
}

// KeyForPlayer derives a cache key. A caller-supplied player ID wins;
// otherwise the key is the SHA-256 of the player text.
func KeyForPlayer(playerID, player string) string {
	if playerID != "" {
		return "id:" + playerID
	}
	sum := sha256.Sum256([]byte(player))
	return "sha256:" + hex.EncodeToString(sum[:])
}
