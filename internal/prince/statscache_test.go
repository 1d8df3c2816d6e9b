package prince_test

import (
	"path/filepath"
	"testing"

	"github.com/princepp/princepp/internal/prince"
)

func Test_StatsCache_StoreThenLookup(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()
	for _, w := range []string{"a", "b", "c"} {
		_ = table.Add([]byte(w))
	}

	path := filepath.Join(t.TempDir(), "stats.slc1")

	cache, err := prince.OpenStatsCache(path, table, 2, 2, 64)
	if err != nil {
		t.Fatalf("OpenStatsCache: %v", err)
	}
	defer cache.Close()

	if _, hit, err := cache.Lookup([]int{1, 1}); err != nil || hit {
		t.Fatalf("expected miss before any store, got hit=%v err=%v", hit, err)
	}

	w, err := cache.Writer()
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}

	if err := cache.Store(w, []int{1, 1}, prince.IntFromUint64(9)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	ks, hit, err := cache.Lookup([]int{1, 1})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}

	if !hit {
		t.Fatal("expected hit after store+commit")
	}

	if ks.CmpUint64(9) != 0 {
		t.Fatalf("ks = %s, want 9", ks.String())
	}
}

func Test_StatsCache_ListAndCount_ReflectStoredEntries(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()
	for _, w := range []string{"a", "b", "c"} {
		_ = table.Add([]byte(w))
	}

	path := filepath.Join(t.TempDir(), "stats.slc1")

	cache, err := prince.OpenStatsCache(path, table, 2, 2, 64)
	if err != nil {
		t.Fatalf("OpenStatsCache: %v", err)
	}
	defer cache.Close()

	if n, err := cache.Count(); err != nil || n != 0 {
		t.Fatalf("Count before any store = %d, %v; want 0, nil", n, err)
	}

	w, err := cache.Writer()
	if err != nil {
		t.Fatalf("Writer: %v", err)
	}

	if err := cache.Store(w, []int{2, 1}, prince.IntFromUint64(9)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := cache.Store(w, []int{1, 1}, prince.IntFromUint64(1)); err != nil {
		t.Fatalf("Store: %v", err)
	}

	if err := w.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	n, err := cache.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}

	if n != 2 {
		t.Fatalf("Count = %d, want 2", n)
	}

	chains, err := cache.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(chains) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(chains))
	}

	byKs := map[uint64]prince.CachedChain{}
	for _, c := range chains {
		u, ok := c.KsCnt.Uint64Capped()
		if !ok {
			t.Fatalf("unexpected overflowed keyspace in %+v", c)
		}

		byKs[u] = c
	}

	if got, ok := byKs[9]; !ok || len(got.Parts) != 2 || got.Parts[0] != 1 || got.Parts[1] != 2 {
		t.Fatalf("chain [1,2] (stored as [2,1]) decoded as %+v", got)
	}

	if got, ok := byKs[1]; !ok || len(got.Parts) != 2 || got.Parts[0] != 1 || got.Parts[1] != 1 {
		t.Fatalf("chain [1,1] decoded as %+v", got)
	}
}

func Test_Engine_BuildsIdenticalResultsWithAndWithoutCache(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()
	for _, w := range []string{"a", "b", "c"} {
		_ = table.Add([]byte(w))
	}

	path := filepath.Join(t.TempDir(), "stats.slc1")

	cache, err := prince.OpenStatsCache(path, table, 2, 2, 64)
	if err != nil {
		t.Fatalf("OpenStatsCache: %v", err)
	}
	defer cache.Close()

	cfgPlain := prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8}
	cfgCached := prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8, StatsCache: cache}

	ePlain, err := prince.NewEngine(table, cfgPlain)
	if err != nil {
		t.Fatalf("NewEngine (plain): %v", err)
	}

	eCached, err := prince.NewEngine(table, cfgCached)
	if err != nil {
		t.Fatalf("NewEngine (cached): %v", err)
	}

	if ePlain.TotalKeyspace().Cmp(eCached.TotalKeyspace()) != 0 {
		t.Fatalf("total keyspace mismatch: plain=%s cached=%s", ePlain.TotalKeyspace().String(), eCached.TotalKeyspace().String())
	}

	// A second engine built against the now-populated cache should also
	// agree, confirming the memoized values round-trip correctly.
	eCachedAgain, err := prince.NewEngine(table, cfgCached)
	if err != nil {
		t.Fatalf("NewEngine (cached again): %v", err)
	}

	if eCached.TotalKeyspace().Cmp(eCachedAgain.TotalKeyspace()) != 0 {
		t.Fatalf("total keyspace mismatch across cached runs: %s vs %s", eCached.TotalKeyspace().String(), eCachedAgain.TotalKeyspace().String())
	}
}
