package searchcache

import (
	"fmt"
	"testing"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

func testResults(n int) []shared.SearchResult {
	results := make([]shared.SearchResult, n)
	for i := range results {
		results[i] = shared.SearchResult{
			Record: shared.NewRecord(fmt.Sprintf("result %d", i), shared.TierInteract),
			Score:  1 - float64(i)*0.01,
		}
	}
	return results
}

func newTestCache(cfg Config) (*Cache, *time.Time) {
	current := time.Now()
	cfg.Clock = func() time.Time { return current }
	c := New(cfg)
	return c, &current
}

func TestKeyDependsOnAllParts(t *testing.T) {
	base := Key("query", shared.TierInteract, shared.SearchOptions{TopK: 10})
	variants := []string{
		Key("other", shared.TierInteract, shared.SearchOptions{TopK: 10}),
		Key("query", shared.TierInsights, shared.SearchOptions{TopK: 10}),
		Key("query", shared.TierInteract, shared.SearchOptions{TopK: 20}),
		Key("query", shared.TierInteract, shared.SearchOptions{TopK: 10, Project: "p"}),
		Key("query", shared.TierInteract, shared.SearchOptions{TopK: 10, Tags: []string{"a"}}),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d produced identical key", i)
		}
	}
	if again := Key("query", shared.TierInteract, shared.SearchOptions{TopK: 10}); again != base {
		t.Error("identical inputs produced different keys")
	}
}

func TestBaseTTLPerTier(t *testing.T) {
	tests := []struct {
		tier     shared.Tier
		expected time.Duration
	}{
		{shared.TierInteract, 3 * time.Minute},
		{shared.TierInsights, 10 * time.Minute},
		{shared.TierAssets, 30 * time.Minute},
	}
	for _, tt := range tests {
		if got := BaseTTL(tt.tier); got != tt.expected {
			t.Errorf("BaseTTL(%s) = %v, expected %v", tt.tier, got, tt.expected)
		}
	}
}

func TestGetHitWithinTTL(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	key := Key("q", shared.TierInteract, shared.SearchOptions{TopK: 5})
	c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(5))

	got, ok := c.Get(key)
	if !ok {
		t.Fatal("expected hit")
	}
	if len(got) != 5 {
		t.Fatalf("len = %d, expected 5", len(got))
	}

	// Mutating the returned set must not corrupt the cached copy.
	got[0].Record.Content = "mutated"
	again, _ := c.Get(key)
	if again[0].Record.Content == "mutated" {
		t.Error("cache handed out shared record pointers")
	}
}

func TestGetMissAfterExpiry(t *testing.T) {
	c, current := newTestCache(DefaultConfig())
	key := Key("q", shared.TierInteract, shared.SearchOptions{TopK: 25})
	c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 25}, testResults(25))

	*current = current.Add(3*time.Minute + time.Second)
	if _, ok := c.Get(key); ok {
		t.Error("expected expiry after base TTL for a large result set")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, expected expired entry removed", c.Len())
	}
}

func TestSmallResultSetTTLBoost(t *testing.T) {
	c, current := newTestCache(Config{Capacity: 10, SmallResultThreshold: 20, SmallResultBoost: 1.5})
	key := Key("q", shared.TierInteract, shared.SearchOptions{TopK: 5})
	c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(5))

	// 4 minutes is past the 3-minute base TTL but inside the boosted 4.5.
	*current = current.Add(4 * time.Minute)
	if _, ok := c.Get(key); !ok {
		t.Error("small result set should survive past the base TTL")
	}
	*current = current.Add(time.Minute)
	if _, ok := c.Get(key); ok {
		t.Error("small result set should expire after the boosted TTL")
	}
}

func TestFIFOEvictionDropsOldestTenth(t *testing.T) {
	c, _ := newTestCache(Config{Capacity: 20, Adaptive: false, SmallResultThreshold: 20, SmallResultBoost: 1.5})
	for i := 0; i < 20; i++ {
		key := Key(fmt.Sprintf("q%d", i), shared.TierInteract, shared.SearchOptions{TopK: 5})
		c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(3))
	}

	c.Put(Key("overflow", shared.TierInteract, shared.SearchOptions{TopK: 5}),
		shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(3))

	if _, ok := c.Get(Key("q0", shared.TierInteract, shared.SearchOptions{TopK: 5})); ok {
		t.Error("oldest entry should have been evicted first")
	}
	if _, ok := c.Get(Key("q19", shared.TierInteract, shared.SearchOptions{TopK: 5})); !ok {
		t.Error("newest entry should survive FIFO eviction")
	}
}

func TestAdaptiveEvictionDropsLowestScored(t *testing.T) {
	c, _ := newTestCache(Config{Capacity: 4, Adaptive: true, SmallResultThreshold: 20, SmallResultBoost: 1.5})

	// One high-value entry (large results, durable tier) and three
	// low-value ones.
	keep := Key("keep", shared.TierAssets, shared.SearchOptions{TopK: 30})
	c.Put(keep, shared.TierAssets, shared.SearchOptions{TopK: 30}, testResults(30))
	for i := 0; i < 3; i++ {
		key := Key(fmt.Sprintf("cheap%d", i), shared.TierInteract, shared.SearchOptions{TopK: 1})
		c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 1}, testResults(1))
	}

	c.Put(Key("overflow", shared.TierInteract, shared.SearchOptions{TopK: 1}),
		shared.TierInteract, shared.SearchOptions{TopK: 1}, testResults(1))

	if _, ok := c.Get(keep); !ok {
		t.Error("high-importance entry was evicted")
	}
	if c.Len() > 4 {
		t.Errorf("Len = %d, expected capacity respected", c.Len())
	}
}

func TestExpiredEntriesEvictedBeforeLiveOnes(t *testing.T) {
	c, current := newTestCache(Config{Capacity: 3, Adaptive: true, SmallResultThreshold: 20, SmallResultBoost: 1.5})

	dead := Key("dead", shared.TierInteract, shared.SearchOptions{TopK: 5})
	c.Put(dead, shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(3))
	*current = current.Add(10 * time.Minute)

	live1 := Key("live1", shared.TierAssets, shared.SearchOptions{TopK: 5})
	live2 := Key("live2", shared.TierAssets, shared.SearchOptions{TopK: 5})
	c.Put(live1, shared.TierAssets, shared.SearchOptions{TopK: 5}, testResults(3))
	c.Put(live2, shared.TierAssets, shared.SearchOptions{TopK: 5}, testResults(3))

	c.Put(Key("new", shared.TierInteract, shared.SearchOptions{TopK: 5}),
		shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(3))

	if _, ok := c.Get(live1); !ok {
		t.Error("live entry evicted while an expired one existed")
	}
	if _, ok := c.Get(live2); !ok {
		t.Error("live entry evicted while an expired one existed")
	}
}

func TestStatsCounters(t *testing.T) {
	c, _ := newTestCache(DefaultConfig())
	key := Key("q", shared.TierInteract, shared.SearchOptions{TopK: 5})

	c.Get(key)
	c.Put(key, shared.TierInteract, shared.SearchOptions{TopK: 5}, testResults(2))
	c.Get(key)
	c.Get(key)

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats() = (%d, %d), expected (2, 1)", hits, misses)
	}
}
