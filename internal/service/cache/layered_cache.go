package cache

import "time"

// LayeredCache is a two-level snapshot store (L1: memory, L2: Redis). Writes go
// through to Redis first so a restarted process still finds the last records.
type LayeredCache struct {
	mem   *TTLCache
	redis *RedisCache
	l1TTL time.Duration
}

// NewLayeredCache wraps redisCache with an in-process layer. l1TTL bounds how
// long an L2 hit is served from memory; zero uses the write TTL.
func NewLayeredCache(redisCache *RedisCache, l1TTL time.Duration) *LayeredCache {
	return &LayeredCache{mem: NewTTLCache(), redis: redisCache, l1TTL: l1TTL}
}

var _ BytesCache = (*LayeredCache)(nil)

func (lc *LayeredCache) GetBytes(key string) ([]byte, bool, error) {
	if b, ok, _ := lc.mem.GetBytes(key); ok {
		return b, true, nil
	}

	b, ok, err := lc.redis.GetBytes(key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = lc.mem.SetBytes(key, b, lc.l1TTL)
	return b, true, nil
}

func (lc *LayeredCache) SetBytes(key string, value []byte, ttl time.Duration) error {
	if err := lc.redis.SetBytes(key, value, ttl); err != nil {
		return err
	}
	l1 := ttl
	if lc.l1TTL > 0 && (l1 <= 0 || lc.l1TTL < l1) {
		l1 = lc.l1TTL
	}
	return lc.mem.SetBytes(key, value, l1)
}
