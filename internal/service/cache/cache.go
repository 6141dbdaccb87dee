package cache

import (
	"time"

	drepo "KlineStream/internal/domain/repository"
)

// BytesCache is a minimal cache API storing raw bytes with TTL.
type BytesCache = drepo.SnapshotStore

var (
	_ BytesCache = (*TTLCache)(nil)
	_ BytesCache = (*RedisCache)(nil)
)

// ttlOrZero treats negative TTLs as "no expiry".
func ttlOrZero(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}
