package market

import (
	"context"
	"sync"
	"time"
)

type cacheKey struct {
	account string
	symbol  string
}

type cachedQuote struct {
	price float64
	at    time.Time
}

// Cache collapses concurrent price lookups for the same (account, symbol)
// into a single upstream fetch.
//
// Reads first consult the quote map under a short-held cache-wide lock. On a
// miss the caller takes a per-key fetch lock, re-checks the map (another
// goroutine may have filled it while this one waited), and only then calls
// upstream. Misses for different symbols never block each other, and a failed
// fetch leaves the cache untouched so the next caller retries.
type Cache struct {
	source QuoteSource
	ttl    time.Duration

	mu     sync.Mutex
	quotes map[cacheKey]cachedQuote

	fetchMu sync.Mutex
	fetch   map[cacheKey]*sync.Mutex

	now func() time.Time // test hook
}

// NewCache wraps source with a TTL cache. A ttl of zero means quotes never
// expire within the process lifetime.
func NewCache(source QuoteSource, ttl time.Duration) *Cache {
	return &Cache{
		source: source,
		ttl:    ttl,
		quotes: make(map[cacheKey]cachedQuote),
		fetch:  make(map[cacheKey]*sync.Mutex),
		now:    time.Now,
	}
}

// Price returns the current price for symbol under the given account,
// fetching from the upstream source at most once per cache miss regardless of
// how many goroutines ask concurrently.
func (c *Cache) Price(ctx context.Context, account, symbol string) (float64, error) {
	k := cacheKey{account: account, symbol: symbol}

	if p, ok := c.lookup(k); ok {
		return p, nil
	}

	lock := c.fetchLock(k)
	lock.Lock()
	defer lock.Unlock()

	// Another goroutine may have completed the fetch while we waited.
	if p, ok := c.lookup(k); ok {
		return p, nil
	}

	price, err := c.source.CurrentPrice(ctx, symbol)
	if err != nil {
		// Do not cache failures; the next caller retries.
		return 0, err
	}

	c.mu.Lock()
	c.quotes[k] = cachedQuote{price: price, at: c.now()}
	c.mu.Unlock()

	return price, nil
}

// Invalidate drops any cached quote for (account, symbol).
func (c *Cache) Invalidate(account, symbol string) {
	c.mu.Lock()
	delete(c.quotes, cacheKey{account: account, symbol: symbol})
	c.mu.Unlock()
}

func (c *Cache) lookup(k cacheKey) (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q, ok := c.quotes[k]
	if !ok {
		return 0, false
	}
	if c.ttl > 0 && c.now().Sub(q.at) > c.ttl {
		delete(c.quotes, k)
		return 0, false
	}
	return q.price, true
}

func (c *Cache) fetchLock(k cacheKey) *sync.Mutex {
	c.fetchMu.Lock()
	defer c.fetchMu.Unlock()

	lock, ok := c.fetch[k]
	if !ok {
		lock = &sync.Mutex{}
		c.fetch[k] = lock
	}
	return lock
}
