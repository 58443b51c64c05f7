package catalog

import (
	"sync"
	"time"

	"github.com/ZebulonRouseFrantzich/rtpkg/internal/release"
)

// DefaultCacheTTL is used by NewCache when ttl is not positive.
const DefaultCacheTTL = 5 * time.Minute

type cacheKey struct {
	family  release.Family
	perPage int
}

type cacheEntry struct {
	versions []release.VersionInfo
	expires  time.Time
}

// Cache holds normalized catalog pages for a limited time. It is safe for
// concurrent use. The zero value is not usable; call NewCache.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[cacheKey]cacheEntry
}

// NewCache creates a cache whose entries expire after ttl.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[cacheKey]cacheEntry),
	}
}

// Get returns a copy of the cached page for family and perPage.
func (c *Cache) Get(family release.Family, perPage int) ([]release.VersionInfo, bool) {
	if c == nil {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{family: family, perPage: perPage}
	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}

	return append([]release.VersionInfo(nil), entry.versions...), true
}

// Put stores a copy of versions for family and perPage.
func (c *Cache) Put(family release.Family, perPage int, versions []release.VersionInfo) {
	if c == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[cacheKey{family: family, perPage: perPage}] = cacheEntry{
		versions: append([]release.VersionInfo(nil), versions...),
		expires:  c.now().Add(c.ttl),
	}
}
