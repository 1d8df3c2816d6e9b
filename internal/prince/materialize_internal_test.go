package prince

import "testing"

// Mixed-radix round-trip: materializing every position in a chain's keyspace
// and decoding the concatenation back against the bucket tables recovers
// that position.
func Test_Materialize_MixedRadixRoundTrip(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()
	for _, w := range []string{"aa", "bb", "cc"} {
		_ = table.Add([]byte(w))
	}
	for _, w := range []string{"x", "y"} {
		_ = table.Add([]byte(w))
	}

	chain := &Chain{Parts: []int{2, 1}, KsCnt: chainKeyspace([]int{2, 1}, table)}

	ksCnt, ok := chain.KsCnt.Uint64Capped()
	if !ok {
		t.Fatalf("unexpectedly large keyspace: %s", chain.KsCnt.String())
	}

	seen := make(map[string]bool)

	for p := uint64(0); p < ksCnt; p++ {
		buf := make([]byte, CandidateLen(chain))

		n := Materialize(chain, table, IntFromUint64(p), buf)
		if n != len(buf) {
			t.Fatalf("position %d: wrote %d bytes, want %d", p, n, len(buf))
		}

		decoded := decodeCandidate(t, chain, table, buf)

		if decoded != p {
			t.Fatalf("position %d materialized then decoded to %d", p, decoded)
		}

		if seen[string(buf)] {
			t.Fatalf("position %d produced duplicate candidate %q", p, buf)
		}

		seen[string(buf)] = true
	}
}

// decodeCandidate recovers the mixed-radix position a candidate was
// materialized from, by locating each part's word in its bucket.
func decodeCandidate(t *testing.T, chain *Chain, table *BucketTable, buf []byte) uint64 {
	t.Helper()

	var pos uint64
	var radix uint64 = 1

	off := 0

	for _, partLen := range chain.Parts {
		bucket := table.Bucket(partLen)

		word := buf[off : off+partLen]
		off += partLen

		idx := -1
		for i := 0; i < bucket.Len(); i++ {
			if string(bucket.At(i)) == string(word) {
				idx = i
				break
			}
		}

		if idx == -1 {
			t.Fatalf("word %q not found in bucket(%d)", word, partLen)
		}

		pos += uint64(idx) * radix
		radix *= uint64(bucket.Len())
	}

	return pos
}
