// Package cache implements the KV position cache from spec §6: "Persisted
// state" — position:{queue}:{user_identifier} -> int with TTL. The cache
// invariant is enforced by callers in internal/engine: on every
// waiting-set mutation, affected positions are updated or evicted.
package cache

import (
	"context"
	"fmt"
	"time"
)

// DefaultTTL is the position cache entry lifetime callers use when a
// waiting-set mutation refreshes (rather than evicts) a session's cached
// position.
const DefaultTTL = 5 * time.Minute

// PositionCache is the contract; Set/Get/Evict operate on a single
// (queueID, userIdentifier) pair.
type PositionCache interface {
	Set(ctx context.Context, queueID, userIdentifier string, position int, ttl time.Duration) error
	Get(ctx context.Context, queueID, userIdentifier string) (position int, ok bool, err error)
	Evict(ctx context.Context, queueID, userIdentifier string) error
}

func key(queueID, userIdentifier string) string {
	return fmt.Sprintf("position:%s:%s", queueID, userIdentifier)
}
