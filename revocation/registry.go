// Package revocation tracks access-token identifiers that must be
// rejected before their natural expiry. Entries carry a TTL bounded by
// the token's remaining lifetime, so the registry's size is bounded by
// the access-token TTL no matter how many logouts happen.
package revocation

import (
	"context"
	"time"
)

// Registry is the blacklist consulted on every token validation.
type Registry interface {
	// Add blacklists tokenID for ttl. A non-positive ttl is a no-op:
	// the token is already expired and rejects itself.
	Add(ctx context.Context, tokenID string, ttl time.Duration) error
	// Contains reports whether tokenID is currently blacklisted.
	// Expired entries vanish without any cleanup call.
	Contains(ctx context.Context, tokenID string) (bool, error)
}
