// Package cache stores rendered artifacts between CLI runs.
//
// Rendering SVG goes through a WebAssembly build of Graphviz and dominates
// the run time of "aggtree graph" on larger graphs. Renders are keyed by a
// hash of the DOT source, so an unchanged graph is served from disk.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Cache is a byte store with optional expiry.
type Cache interface {
	// Get returns the value for key. A missing or expired entry is a miss,
	// not an error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Hash returns the hex SHA-256 of data.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ArtifactKey is the key of a rendering of source in format.
func ArtifactKey(format string, source []byte) string {
	return "artifact:" + format + ":" + Hash(source)
}
