package prince

import "sort"

// lengthSlot tracks the chains for one output length and the index of the
// chain currently being consumed. Mirrors pp.c's db_entry_t, trimmed to the
// fields the enumeration loop needs once words are loaded and chains built.
type lengthSlot struct {
	length   int
	chains   []*Chain
	elemsPos int
}

// buildLengthSlots builds and keyspace-sorts the chains for every length in
// [pwMin, pwMax], dropping lengths with no valid chain.
func buildLengthSlots(table *BucketTable, pwMin, pwMax, elemCntMin, elemCntMax int) []*lengthSlot {
	slots := make([]*lengthSlot, 0, pwMax-pwMin+1)

	for n := pwMin; n <= pwMax; n++ {
		chains := buildChains(n, table, elemCntMin, elemCntMax)
		if len(chains) == 0 {
			continue
		}

		sortChainsByKeyspace(chains)

		slots = append(slots, &lengthSlot{length: n, chains: chains})
	}

	return slots
}

// buildLengthSlotsCached behaves like buildLengthSlots, but memoizes each
// chain's keyspace through cache instead of always recomputing the product
// of bucket sizes. Pass a nil cache to fall back to plain buildLengthSlots.
func buildLengthSlotsCached(table *BucketTable, pwMin, pwMax, elemCntMin, elemCntMax int, cache *StatsCache) ([]*lengthSlot, error) {
	if cache == nil {
		return buildLengthSlots(table, pwMin, pwMax, elemCntMin, elemCntMax), nil
	}

	w, err := cache.Writer()
	if err != nil {
		return nil, err
	}

	slots := make([]*lengthSlot, 0, pwMax-pwMin+1)

	for n := pwMin; n <= pwMax; n++ {
		chains, err := buildChainsCached(n, table, elemCntMin, elemCntMax, cache, w)
		if err != nil {
			_ = w.Close()

			return nil, err
		}

		if len(chains) == 0 {
			continue
		}

		sortChainsByKeyspace(chains)

		slots = append(slots, &lengthSlot{length: n, chains: chains})
	}

	if err := w.Commit(); err != nil {
		return nil, err
	}

	return slots, nil
}

// sortChainsByKeyspace sorts chains ascending by keyspace, matching pp.c's
// sort_by_ks (a proper three-way mpz_cmp comparator, unlike the buggy
// boolean sort_by_cnt used for length ordering). The sort is stable so ties
// keep their generation order.
func sortChainsByKeyspace(chains []*Chain) {
	sort.SliceStable(chains, func(i, j int) bool {
		return chains[i].KsCnt.Cmp(chains[j].KsCnt) < 0
	})
}

// totalKeyspace sums every slot's chain keyspaces, matching the
// total_ks_cnt accumulation in pp.c's main().
func totalKeyspace(slots []*lengthSlot) Int {
	total := IntFromUint64(0)

	for _, slot := range slots {
		for _, c := range slot.chains {
			total = total.Add(c.KsCnt)
		}
	}

	return total
}

// totalWordsCount sums table.Count(n) for every length in [pwMin, pwMax],
// matching pp.c's total_words_cnt.
func totalWordsCount(table *BucketTable, pwMin, pwMax int) uint64 {
	var total uint64

	for n := pwMin; n <= pwMax; n++ {
		total += uint64(table.Count(n))
	}

	return total
}
