package sprite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewCache(250)
	var evicted []string
	c.OnEvict = func(id string) { evicted = append(evicted, id) }

	c.Put(&Sheet{ID: "a", SizeBytes: 100})
	c.Put(&Sheet{ID: "b", SizeBytes: 100})
	_, _ = c.Get("a") // bump a's recency above b's
	c.Put(&Sheet{ID: "c", SizeBytes: 100})

	require.Equal(t, []string{"b"}, evicted)
	require.LessOrEqual(t, c.UsedBytes(), int64(250))
	_, ok := c.Get("a")
	require.True(t, ok)
	_, ok = c.Get("c")
	require.True(t, ok)
}

func TestCacheGetBumpsRecency(t *testing.T) {
	c := NewCache(1 << 20)
	c.Put(&Sheet{ID: "a", SizeBytes: 10})
	sheet, ok := c.Get("a")
	require.True(t, ok)
	require.Equal(t, "a", sheet.ID)
}
