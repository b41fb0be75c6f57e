package pathcache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetMissesWhenNeverStored(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	_, ok := c.Get("bucket", "k/a.mcap")
	assert.False(t, ok)
}

func TestSetThenGet(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	c.Set("bucket", "k/yes.mcap", true)
	c.Set("bucket", "k/no.mcap", false)

	exists, ok := c.Get("bucket", "k/yes.mcap")
	assert.True(t, ok)
	assert.True(t, exists)

	exists, ok = c.Get("bucket", "k/no.mcap")
	assert.True(t, ok)
	assert.False(t, exists, "a cached negative is an answer, not a miss")
}

func TestKeysAreScopedByBucket(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	c.Set("bucket-a", "k/a.mcap", true)

	_, ok := c.Get("bucket-b", "k/a.mcap")
	assert.False(t, ok)
}

func TestExpiredEntriesMissAndEvict(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("bucket", "k/a.mcap", true)
	clock = clock.Add(2 * time.Minute)

	_, ok := c.Get("bucket", "k/a.mcap")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry is evicted on lookup")
}

func TestSetRestartsTTL(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("bucket", "k/a.mcap", true)
	clock = clock.Add(45 * time.Second)
	c.Set("bucket", "k/a.mcap", true)
	clock = clock.Add(45 * time.Second)

	_, ok := c.Get("bucket", "k/a.mcap")
	assert.True(t, ok, "refreshed entry outlives the original window")
}

func TestInvalidateAndClear(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	c.Set("bucket", "k/a.mcap", true)
	c.Set("bucket", "k/b.mcap", true)

	c.Invalidate("bucket", "k/a.mcap")
	_, ok := c.Get("bucket", "k/a.mcap")
	assert.False(t, ok)
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestPurge(t *testing.T) {
	t.Parallel()
	c := New(time.Minute)

	clock := time.Now()
	c.now = func() time.Time { return clock }

	c.Set("bucket", "k/old.mcap", true)
	clock = clock.Add(2 * time.Minute)
	c.Set("bucket", "k/new.mcap", true)

	dropped := c.Purge()
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get("bucket", "k/new.mcap")
	assert.True(t, ok)
}
