package sprite

import "sync"

// Cache is the sprite-sheet LRU cache: budget is
// tier-adaptive (internal/config.Config.SpriteCacheBudget), eviction is by
// last_access, and eviction closes the evicted sheet's bitmap and revokes
// any surface URL the host registered for it.
type Cache struct {
	mu          sync.Mutex
	budgetBytes int64
	usedBytes   int64
	clock       int64
	sheets      map[string]*Sheet

	// OnEvict, if set, is called (outside the lock) for every sheet the
	// cache evicts, so a host can revoke a createObjectURL-style handle.
	OnEvict func(sheetID string)
}

// NewCache returns an empty Cache with the given byte budget.
func NewCache(budgetBytes int64) *Cache {
	return &Cache{budgetBytes: budgetBytes, sheets: map[string]*Sheet{}}
}

// Put inserts or replaces sheet, evicting least-recently-used sheets until
// the budget is respected (invariant 9: sum(size_bytes) <= budget_bytes).
func (c *Cache) Put(sheet *Sheet) {
	c.mu.Lock()
	var evicted []string

	if old, ok := c.sheets[sheet.ID]; ok {
		c.usedBytes -= old.SizeBytes
	}
	c.clock++
	sheet.lastAccess = c.clock
	c.sheets[sheet.ID] = sheet
	c.usedBytes += sheet.SizeBytes

	for c.usedBytes > c.budgetBytes && len(c.sheets) > 1 {
		victim := c.lruLocked(sheet.ID)
		if victim == "" {
			break
		}
		c.usedBytes -= c.sheets[victim].SizeBytes
		c.sheets[victim].Bitmap = nil
		delete(c.sheets, victim)
		evicted = append(evicted, victim)
	}
	c.mu.Unlock()

	if c.OnEvict != nil {
		for _, id := range evicted {
			c.OnEvict(id)
		}
	}
}

// lruLocked returns the ID of the least-recently-accessed sheet other than
// keep, assuming c.mu is held.
func (c *Cache) lruLocked(keep string) string {
	var victim string
	var oldest int64 = -1
	for id, s := range c.sheets {
		if id == keep {
			continue
		}
		if oldest == -1 || s.lastAccess < oldest {
			oldest = s.lastAccess
			victim = id
		}
	}
	return victim
}

// Get returns the sheet with id, bumping its LRU recency.
func (c *Cache) Get(id string) (*Sheet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sheets[id]
	if !ok {
		return nil, false
	}
	c.clock++
	s.lastAccess = c.clock
	return s, true
}

// UsedBytes reports the cache's current byte usage.
func (c *Cache) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// Len reports the number of cached sheets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sheets)
}
