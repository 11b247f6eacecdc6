package tiles

import "sync"

// Cache holds the state of every requested region of the current selection.
type Cache struct {
	mu      sync.RWMutex
	entries map[Region]State
}

func NewCache() *Cache {
	return &Cache{entries: make(map[Region]State)}
}

// Get returns the state of r; ok is false when r is absent.
func (c *Cache) Get(r Region) (State, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.entries[r]
	return s, ok
}

// Reserve stores Loading for r unless r already has an entry. It reports
// whether the entry was created.
func (c *Cache) Reserve(r Region) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[r]; ok {
		return false
	}
	c.entries[r] = Loading{}
	return true
}

func (c *Cache) Set(r Region, s State) {
	c.mu.Lock()
	c.entries[r] = s
	c.mu.Unlock()
}

// Release deletes r only while it is still Loading.
func (c *Cache) Release(r Region) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[r].(Loading); !ok {
		return false
	}
	delete(c.entries, r)
	return true
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Counts returns the number of entries per state.
func (c *Cache) Counts() (loading, ready, failed int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.entries {
		switch s.(type) {
		case Loading:
			loading++
		case Ready:
			ready++
		case Failed:
			failed++
		}
	}
	return
}

func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[Region]State)
	c.mu.Unlock()
}
