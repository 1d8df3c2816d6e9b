package prince

// Chain is one composition of an output length into part-lengths, each part
// indexing a word bucket of that length. It is pp.c's elem_t, generalized
// from a fixed-size C array to a slice.
type Chain struct {
	// Parts are the part-lengths, in the order they are materialized.
	Parts []int

	// KsCnt is the chain's keyspace: the product of bucket sizes for each part.
	KsCnt Int

	// KsPos is the chain's cursor into its own keyspace, advanced as
	// candidates are emitted. Reset to 0 once it reaches KsCnt.
	KsPos Int
}

// generateCompositions returns every composition of n into positive parts,
// in pp.c's elem_gen_with_idx bitmask order: for m = n-1 bit positions, a
// set bit closes the current running part and starts a new one at 1.
func generateCompositions(n int) [][]int {
	if n < 1 {
		return nil
	}

	m := n - 1
	count := 1 << uint(m)

	out := make([][]int, 0, count)

	for idx := 0; idx < count; idx++ {
		out = append(out, decodeComposition(m, idx))
	}

	return out
}

func decodeComposition(m, idx int) []int {
	parts := make([]int, 0, m+1)

	current := 1

	for shr := 0; shr < m; shr++ {
		if (idx>>uint(shr))&1 == 1 {
			parts = append(parts, current)
			current = 1
		} else {
			current++
		}
	}

	parts = append(parts, current)

	return parts
}

// chainValid reports whether parts is usable: every part-length must have
// at least one word, and the part count must fall within
// [elemCntMin, elemCntMax]. Mirrors elem_valid_with_db,
// elem_valid_with_cnt_min, and elem_valid_with_cnt_max.
func chainValid(parts []int, table *BucketTable, elemCntMin, elemCntMax int) bool {
	if len(parts) < elemCntMin || len(parts) > elemCntMax {
		return false
	}

	for _, p := range parts {
		if table.Count(p) == 0 {
			return false
		}
	}

	return true
}

// buildChains returns every valid chain for output length n, ordered by
// generation index (the same order pp.c fills db_entry->elems_buf before
// sorting by keyspace).
func buildChains(n int, table *BucketTable, elemCntMin, elemCntMax int) []*Chain {
	comps := generateCompositions(n)

	chains := make([]*Chain, 0, len(comps))

	for _, parts := range comps {
		if !chainValid(parts, table, elemCntMin, elemCntMax) {
			continue
		}

		chains = append(chains, &Chain{
			Parts: parts,
			KsCnt: chainKeyspace(parts, table),
		})
	}

	return chains
}

// chainKeyspace computes the product of bucket sizes for parts, matching
// elem_ks.
func chainKeyspace(parts []int, table *BucketTable) Int {
	ks := IntFromUint64(1)

	for _, p := range parts {
		ks = ks.MulUint64(uint64(table.Count(p)))
	}

	return ks
}
