package prince

import "sort"

// defaultWordlenDist is pp.c's DEF_WORDLEN_DIST: a word-length distribution
// measured from the first 1,000,000 entries of rockyou.txt, used to cap how
// many candidates of a given output length are emitted per round when
// --wl-dist-len is not set.
var defaultWordlenDist = [25]uint64{
	0,
	15,
	56,
	350,
	3315,
	43721,
	276252,
	201748,
	226412,
	119885,
	75075,
	26323,
	13373,
	6353,
	3540,
	1877,
	972,
	311,
	151,
	81,
	66,
	21,
	16,
	13,
	13,
}

// lengthPriority returns the per-round candidate cap for output length n.
//
// With wlDistLen, the cap is the number of loaded words of that length
// (--wl-dist-len asks PRINCE to bias rounds by the wordlist's own shape
// instead of the reference distribution). Otherwise it is
// defaultWordlenDist[n], or 1 for n beyond the table (pp.c's fallback for
// PW_MAX values above DEF_WORDLEN_DIST_CNT).
func lengthPriority(n int, table *BucketTable, wlDistLen bool) uint64 {
	if wlDistLen {
		return uint64(table.Count(n))
	}

	if n < len(defaultWordlenDist) {
		return defaultWordlenDist[n]
	}

	return 1
}

// lengthOrder describes where one length sits in the round-robin schedule.
type lengthOrder struct {
	length   int
	priority uint64
	gen      int // position in the unsorted [pwMin, pwMax] sweep, for a stable tie-break
}

// buildLengthOrder returns the lengths present in slots, ordered ascending
// by lengthPriority — the same table that bounds each length's per-round
// emission quota, so a length visited earlier is also capped lower per
// round.
//
// pp.c instead orders by each length's actual loaded word count
// (db_entry->words_cnt) and only uses the priority table for the per-round
// quota; this unifies both onto one table, which is simpler and matches
// what a wl-dist-len-aware schedule should mean: short, high-prior
// lengths go first and in smaller batches. The order is produced with an
// explicit three-way comparison plus a generation-index tie-break, rather
// than pp.c's qsort with a boolean comparator (sort_by_cnt returns
// o1->cnt < o2->cnt, never 0), which is not a strict weak ordering and
// leaves ties implementation-defined.
func buildLengthOrder(slots []*lengthSlot, table *BucketTable, wlDistLen bool) []int {
	orders := make([]lengthOrder, len(slots))

	for i, slot := range slots {
		orders[i] = lengthOrder{
			length:   slot.length,
			priority: lengthPriority(slot.length, table, wlDistLen),
			gen:      i,
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		if orders[i].priority != orders[j].priority {
			return orders[i].priority < orders[j].priority
		}

		return orders[i].gen < orders[j].gen
	})

	lengths := make([]int, len(orders))
	for i, o := range orders {
		lengths[i] = o.length
	}

	return lengths
}
