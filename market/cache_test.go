package market

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource counts upstream fetches per symbol and can be told to fail.
type countingSource struct {
	mu     sync.Mutex
	counts map[string]int
	prices map[string]float64
	fail   map[string]error

	// block, when set, holds every fetch until released so the test can
	// line up concurrent callers behind a single miss.
	block chan struct{}
}

func newCountingSource() *countingSource {
	return &countingSource{
		counts: make(map[string]int),
		prices: make(map[string]float64),
		fail:   make(map[string]error),
	}
}

func (s *countingSource) CurrentPrice(_ context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	s.counts[symbol]++
	block := s.block
	err := s.fail[symbol]
	price := s.prices[symbol]
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return 0, err
	}
	return price, nil
}

func (s *countingSource) count(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[symbol]
}

func TestCacheCollapsesConcurrentFetches(t *testing.T) {
	t.Parallel()

	src := newCountingSource()
	src.prices["AAPL"] = 254.84
	src.block = make(chan struct{})

	cache := NewCache(src, time.Minute)

	const callers = 16
	var wg sync.WaitGroup
	var mismatches atomic.Int32
	results := make([]float64, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			p, err := cache.Price(context.Background(), "live", "AAPL")
			if err != nil {
				mismatches.Add(1)
				return
			}
			results[n] = p
		}(i)
	}

	// Give the goroutines a moment to pile up behind the fetch lock, then
	// let the single upstream call complete.
	time.Sleep(20 * time.Millisecond)
	close(src.block)
	wg.Wait()

	assert.Zero(t, mismatches.Load())
	assert.Equal(t, 1, src.count("AAPL"), "all callers must share one upstream fetch")
	for _, p := range results {
		assert.Equal(t, 254.84, p)
	}
}

func TestCacheDistinctSymbolsFetchIndependently(t *testing.T) {
	t.Parallel()

	src := newCountingSource()
	src.prices["AAPL"] = 254.84
	src.prices["MSFT"] = 410.50

	cache := NewCache(src, time.Minute)

	p, err := cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 254.84, p)

	p, err = cache.Price(context.Background(), "live", "MSFT")
	require.NoError(t, err)
	assert.Equal(t, 410.50, p)

	assert.Equal(t, 1, src.count("AAPL"))
	assert.Equal(t, 1, src.count("MSFT"))
}

func TestCacheDoesNotCacheFailures(t *testing.T) {
	t.Parallel()

	src := newCountingSource()
	src.fail["AAPL"] = errors.New("feed down")

	cache := NewCache(src, time.Minute)

	_, err := cache.Price(context.Background(), "live", "AAPL")
	require.Error(t, err)

	// Feed recovers; the next caller must go upstream again instead of
	// replaying the failure or a stale zero.
	src.mu.Lock()
	delete(src.fail, "AAPL")
	src.prices["AAPL"] = 254.84
	src.mu.Unlock()

	p, err := cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 254.84, p)
	assert.Equal(t, 2, src.count("AAPL"))
}

func TestCacheTTLExpiry(t *testing.T) {
	t.Parallel()

	src := newCountingSource()
	src.prices["AAPL"] = 254.84

	cache := NewCache(src, time.Minute)

	clock := time.Date(2026, 8, 28, 9, 30, 0, 0, time.UTC)
	cache.now = func() time.Time { return clock }

	_, err := cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)

	// Within the TTL the cached quote is served.
	clock = clock.Add(30 * time.Second)
	_, err = cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 1, src.count("AAPL"))

	// Past the TTL the quote is refetched.
	clock = clock.Add(2 * time.Minute)
	src.mu.Lock()
	src.prices["AAPL"] = 256.10
	src.mu.Unlock()

	p, err := cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 256.10, p)
	assert.Equal(t, 2, src.count("AAPL"))
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	src := newCountingSource()
	src.prices["AAPL"] = 254.84

	cache := NewCache(src, 0)

	_, err := cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)

	cache.Invalidate("live", "AAPL")

	_, err = cache.Price(context.Background(), "live", "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 2, src.count("AAPL"))
}
