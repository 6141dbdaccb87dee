package cache

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableRedis fails every command quickly.
func unreachableRedis(t *testing.T) *RedisCache {
	t.Helper()
	cli := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = cli.Close() })
	return NewRedisCache(cli, "kline:latest:")
}

func TestLayeredCache_ServesL1WithoutRedis(t *testing.T) {
	lc := NewLayeredCache(unreachableRedis(t), time.Minute)
	require.NoError(t, lc.mem.SetBytes("key_60", []byte("v"), 0))

	b, ok, err := lc.GetBytes("key_60")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), b)
}

func TestLayeredCache_WriteFailsWhenRedisDown(t *testing.T) {
	lc := NewLayeredCache(unreachableRedis(t), time.Minute)

	assert.Error(t, lc.SetBytes("key_60", []byte("v"), time.Hour))
	assert.Zero(t, lc.mem.Len(), "L1 is only filled after L2 accepts the write")

	_, ok, err := lc.GetBytes("key_60")
	assert.Error(t, err)
	assert.False(t, ok)
}
