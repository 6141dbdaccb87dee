package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCache_SetGet(t *testing.T) {
	c := NewTTLCache()

	_, ok, err := c.GetBytes("key_60")
	require.NoError(t, err)
	assert.False(t, ok)

	src := []byte("abc")
	require.NoError(t, c.SetBytes("key_60", src, 0))
	src[0] = 'x'

	got, ok, err := c.GetBytes("key_60")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("abc"), got)
}

func TestTTLCache_Expires(t *testing.T) {
	c := NewTTLCache()
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	require.NoError(t, c.SetBytes("key_1", []byte("v"), time.Minute))

	now = now.Add(59 * time.Second)
	_, ok, _ := c.GetBytes("key_1")
	assert.True(t, ok)

	now = now.Add(2 * time.Second)
	_, ok, _ = c.GetBytes("key_1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCache_ExpiredReadKeepsConcurrentWrite(t *testing.T) {
	c := NewTTLCache()
	base := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return base }
	require.NoError(t, c.SetBytes("key_60", []byte("stale"), time.Second))

	// the write lands after GetBytes saw the stale entry and before it evicts
	written := false
	c.now = func() time.Time {
		if !written {
			written = true
			require.NoError(t, c.SetBytes("key_60", []byte("fresh"), time.Minute))
		}
		return base.Add(2 * time.Second)
	}

	got, ok, err := c.GetBytes("key_60")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)
	assert.Equal(t, 1, c.Len())

	got, ok, _ = c.GetBytes("key_60")
	assert.True(t, ok)
	assert.Equal(t, []byte("fresh"), got)
}
