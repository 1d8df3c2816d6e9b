package prince

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/princepp/princepp/pkg/slotcache"
)

// maxChainKeyParts bounds how many part-lengths a chain signature key can
// hold. ELEM_CNT_MAX in pp.c is 8, so chains longer than this never occur
// under the default configuration; a caller raising --elem-cnt-max beyond
// that gets ErrChainTooLong instead of a silently truncated key.
const maxChainKeyParts = 8

const statsCacheIndexSize = 9 // 1 overflow flag byte + 8 uint64 bytes

// StatsCache memoizes chain signature -> keyspace count pairs across runs,
// so re-running the same wordlist and pw-max with a different
// pw-min/skip/limit window does not redo the product-of-bucket-sizes arithmetic for every
// chain. It is an optional accelerator: a cache miss or disabled cache just
// falls back to computing the keyspace directly.
//
// Built on pkg/slotcache's fixed-key-size cache, keyed by chain signature
// (a sorted, zero-padded multiset of part-lengths — keyspace is a product
// over parts, so order doesn't affect it, and keying on the sorted
// multiset lets e.g. chains [2,3] and [3,2] share one entry).
type StatsCache struct {
	cache *slotcache.Cache
}

// WordlistFingerprint returns an FNV-1a hash over every bucketed word of
// length [LenMin, pwMax] (every bucket a chain of length <= pwMax can draw
// parts from; pwMin does not affect the result), used as the cache's
// UserVersion so a stats cache built from one wordlist is rejected
// (ErrIncompatible) if reused against another.
func WordlistFingerprint(table *BucketTable, pwMin, pwMax int) uint64 {
	h := fnv.New64a()

	for n := LenMin; n <= pwMax; n++ {
		b := table.Bucket(n)

		for i := 0; i < b.Len(); i++ {
			_, _ = h.Write(b.At(i))
			_, _ = h.Write([]byte{0})
		}

		_, _ = h.Write([]byte{0xFF})
	}

	return h.Sum64()
}

// OpenStatsCache opens or creates the memoization cache file at path.
//
// slotCapacity should be an upper bound on the number of distinct chain
// signatures the run can produce (at most 2^(pwMax-1) per length, summed
// over [pwMin, pwMax]).
func OpenStatsCache(path string, table *BucketTable, pwMin, pwMax int, slotCapacity uint64) (*StatsCache, error) {
	cache, err := slotcache.Open(slotcache.Options{
		Path:         path,
		KeySize:      maxChainKeyParts,
		IndexSize:    statsCacheIndexSize,
		UserVersion:  WordlistFingerprint(table, pwMin, pwMax),
		SlotCapacity: slotCapacity,
		Writeback:    slotcache.WritebackNone,
	})
	if err != nil {
		return nil, fmt.Errorf("open stats cache %q: %w", path, err)
	}

	return &StatsCache{cache: cache}, nil
}

// Close releases the underlying cache file.
func (s *StatsCache) Close() error {
	return s.cache.Close()
}

// CachedChain is one memoized entry, decoded back into sorted part-lengths
// and its cached keyspace.
type CachedChain struct {
	Parts []int
	KsCnt Int
}

// Count returns the number of memoized chain signatures currently stored.
func (s *StatsCache) Count() (int, error) {
	n, err := s.cache.Len()
	if err != nil {
		return 0, fmt.Errorf("stats cache len: %w", err)
	}

	return n, nil
}

// List decodes every live entry in the cache back into a CachedChain, in
// the cache's insertion order. Entries whose keyspace overflowed a uint64
// at Store time (and so were never written) do not appear here.
func (s *StatsCache) List() ([]CachedChain, error) {
	entries, err := s.cache.Scan(slotcache.ScanOptions{})
	if err != nil {
		return nil, fmt.Errorf("stats cache scan: %w", err)
	}

	out := make([]CachedChain, 0, len(entries))

	for _, e := range entries {
		if len(e.Index) == 0 || e.Index[0] != 0 {
			continue
		}

		out = append(out, CachedChain{Parts: decodeChainKey(e.Key), KsCnt: decodeKeyspace(e.Index)})
	}

	return out, nil
}

// decodeChainKey strips the zero padding chainKey adds after the sorted
// part-lengths; a 0 byte can only be padding since no bucket holds the
// empty-length word.
func decodeChainKey(key []byte) []int {
	parts := make([]int, 0, len(key))

	for _, b := range key {
		if b == 0 {
			break
		}

		parts = append(parts, int(b))
	}

	return parts
}

// chainKey encodes parts as a sorted, zero-padded, fixed-size key.
func chainKey(parts []int) ([maxChainKeyParts]byte, error) {
	var key [maxChainKeyParts]byte

	if len(parts) > maxChainKeyParts {
		return key, fmt.Errorf("chain has %d parts, max %d: %w", len(parts), maxChainKeyParts, ErrChainTooLong)
	}

	sorted := make([]int, len(parts))
	copy(sorted, parts)
	sort.Ints(sorted)

	for i, p := range sorted {
		key[i] = byte(p)
	}

	return key, nil
}

// encodeKeyspace packs ks into the cache's fixed-size index format,
// returning ok=false if ks does not fit in a uint64 (in which case the
// caller should not bother caching it).
func encodeKeyspace(ks Int) (index [statsCacheIndexSize]byte, ok bool) {
	u, fits := ks.Uint64Capped()
	if !fits {
		return index, false
	}

	index[0] = 0

	for i := 0; i < 8; i++ {
		index[1+i] = byte(u >> (8 * uint(i)))
	}

	return index, true
}

func decodeKeyspace(index []byte) Int {
	var u uint64

	for i := 0; i < 8; i++ {
		u |= uint64(index[1+i]) << (8 * uint(i))
	}

	return IntFromUint64(u)
}

// Lookup returns the memoized keyspace for the chain signature formed by
// parts, if present.
func (s *StatsCache) Lookup(parts []int) (Int, bool, error) {
	key, err := chainKey(parts)
	if err != nil {
		return Int{}, false, err
	}

	entry, found, err := s.cache.Get(key[:])
	if err != nil {
		return Int{}, false, fmt.Errorf("stats cache lookup: %w", err)
	}

	if !found || entry.Index[0] != 0 {
		return Int{}, false, nil
	}

	return decodeKeyspace(entry.Index), true, nil
}

// Store memoizes ks for the chain signature formed by parts, using w to
// commit the write. A keyspace too large to fit the fixed-size index is
// silently skipped rather than rejected.
func (s *StatsCache) Store(w *slotcache.Writer, parts []int, ks Int) error {
	key, err := chainKey(parts)
	if err != nil {
		return err
	}

	index, ok := encodeKeyspace(ks)
	if !ok {
		return nil
	}

	if err := w.Put(key[:], 0, index[:]); err != nil {
		return fmt.Errorf("stats cache store: %w", err)
	}

	return nil
}

// Writer opens a writer for batched Store calls; the caller must Commit (or
// Close to discard) when done.
func (s *StatsCache) Writer() (*slotcache.Writer, error) {
	return s.cache.Writer()
}

// buildChainsCached behaves like buildChains, but consults cache for each
// composition's keyspace before computing the product of bucket sizes
// directly, and records newly computed keyspaces back to w.
func buildChainsCached(n int, table *BucketTable, elemCntMin, elemCntMax int, cache *StatsCache, w *slotcache.Writer) ([]*Chain, error) {
	comps := generateCompositions(n)

	chains := make([]*Chain, 0, len(comps))

	for _, parts := range comps {
		if !chainValid(parts, table, elemCntMin, elemCntMax) {
			continue
		}

		ks, hit, err := cache.Lookup(parts)
		if err != nil {
			return nil, err
		}

		if !hit {
			ks = chainKeyspace(parts, table)

			if w != nil {
				if err := cache.Store(w, parts, ks); err != nil {
					return nil, err
				}
			}
		}

		chains = append(chains, &Chain{Parts: parts, KsCnt: ks})
	}

	return chains, nil
}
