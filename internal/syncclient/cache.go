package syncclient

import (
	"sync"
	"time"
)

// Entry is one cached fetch result.
type Entry struct {
	Value     any
	FetchedAt time.Time
}

// Cache holds the last good value per resource key. It is owned by whoever
// builds the Coordinator, so two coordinators never share state by accident.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]Entry), now: time.Now}
}

func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	return entry, ok
}

// Fresh returns the entry only if it is younger than maxAge.
func (c *Cache) Fresh(key string, maxAge time.Duration) (Entry, bool) {
	entry, ok := c.Get(key)
	if !ok || maxAge <= 0 {
		return Entry{}, false
	}
	if c.now().Sub(entry.FetchedAt) >= maxAge {
		return Entry{}, false
	}
	return entry, true
}

// Set stores value stamped with the current time and returns the entry.
func (c *Cache) Set(key string, value any) Entry {
	entry := Entry{Value: value, FetchedAt: c.now()}
	c.mu.Lock()
	c.entries[key] = entry
	c.mu.Unlock()
	return entry
}

func (c *Cache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]Entry)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
