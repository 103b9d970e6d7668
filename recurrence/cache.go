package recurrence

import (
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"
	"sync"
	"time"
)

// cacheEntry is one cached expansion
type cacheEntry struct {
	ruleID     string
	result     Expansion
	expiresAt  time.Time
	accessedAt time.Time
}

// ExpansionCache memoizes rule expansions. Keys cover the full rule definition and
// the normalized options, so an edited rule never hits a stale entry.
type ExpansionCache struct {
	entries         map[string]*cacheEntry
	mutex           sync.Mutex
	ttl             time.Duration
	maxEntries      int
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	now             func() time.Time
}

// CacheConfig holds configuration for the expansion cache
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before eviction
	CleanupInterval time.Duration // How often to run cleanup
}

// DefaultCacheConfig provides sensible defaults for expansion caching
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

// NewExpansionCache creates a new cache and starts its cleanup goroutine
func NewExpansionCache(config CacheConfig) *ExpansionCache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	cache := &ExpansionCache{
		entries:         make(map[string]*cacheEntry),
		ttl:             config.TTL,
		maxEntries:      config.MaxEntries,
		cleanupInterval: config.CleanupInterval,
		stopCleanup:     make(chan struct{}),
		now:             time.Now,
	}

	go cache.cleanupLoop()

	return cache
}

// cacheKey hashes everything that influences the expansion result
func cacheKey(rule Rule, opts ExpandOptions) string {
	hasher := sha256.New()
	hasher.Write([]byte(rule.RRule()))
	hasher.Write([]byte{0})
	hasher.Write([]byte(rule.Start.Format(time.RFC3339Nano)))
	hasher.Write([]byte(rule.Start.Location().String()))
	hasher.Write([]byte(rule.End.Format(time.RFC3339Nano)))
	hasher.Write([]byte{0})
	if horizon, ok := opts.Horizon.Get(); ok {
		hasher.Write([]byte(horizon.Format(time.RFC3339Nano)))
	}
	hasher.Write([]byte{0})
	hasher.Write([]byte(strconv.Itoa(opts.MaxInstances)))

	return hex.EncodeToString(hasher.Sum(nil))
}

// Get returns a copy of a cached expansion if present and not expired
func (c *ExpansionCache) Get(rule Rule, opts ExpandOptions) (Expansion, bool) {
	key := cacheKey(rule, opts)
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Expansion{}, false
	}
	if now.After(entry.expiresAt) {
		delete(c.entries, key)
		return Expansion{}, false
	}
	entry.accessedAt = now

	return copyExpansion(entry.result), true
}

// Set stores a copy of an expansion
func (c *ExpansionCache) Set(rule Rule, opts ExpandOptions, result Expansion) {
	key := cacheKey(rule, opts)
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[key] = &cacheEntry{
		ruleID:     rule.ID,
		result:     copyExpansion(result),
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}

	if len(c.entries) > c.maxEntries {
		c.cleanup(now)
	}
}

// Invalidate removes every entry stored for ruleID
func (c *ExpansionCache) Invalidate(ruleID string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	for key, entry := range c.entries {
		if entry.ruleID == ruleID {
			delete(c.entries, key)
		}
	}
}

// cleanup removes expired entries, then the least recently used ones while over the limit.
// Caller must hold the mutex.
func (c *ExpansionCache) cleanup(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	slices.SortFunc(keys, func(a, b string) int {
		return c.entries[a].accessedAt.Compare(c.entries[b].accessedAt)
	})

	for _, key := range keys[:len(c.entries)-c.maxEntries] {
		delete(c.entries, key)
	}
}

func (c *ExpansionCache) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mutex.Lock()
			c.cleanup(c.now())
			c.mutex.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup goroutine and clears the cache
func (c *ExpansionCache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
	})
	c.mutex.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mutex.Unlock()
}

// Stats returns cache statistics
func (c *ExpansionCache) Stats() CacheStats {
	now := c.now()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	expired := 0
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			expired++
		}
	}

	return CacheStats{
		TotalEntries:   len(c.entries),
		ExpiredEntries: expired,
		ActiveEntries:  len(c.entries) - expired,
	}
}

// CacheStats provides information about cache contents
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
}

func copyExpansion(e Expansion) Expansion {
	return Expansion{
		Instances: slices.Clone(e.Instances),
		Truncated: e.Truncated,
	}
}
