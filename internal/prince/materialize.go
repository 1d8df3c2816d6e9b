package prince

// Materialize writes the candidate at position ksPos within chain's keyspace
// into dst, returning the number of bytes written (the sum of chain.Parts).
//
// Mirrors pp.c's elem_set_pwbuf: a mixed-radix decode where each part
// contributes ksPos mod (bucket size), then ksPos is divided by that same
// bucket size before moving to the next part.
func Materialize(chain *Chain, table *BucketTable, ksPos Int, dst []byte) int {
	pos := ksPos

	off := 0

	for _, partLen := range chain.Parts {
		bucket := table.Bucket(partLen)

		wordsCnt := uint64(bucket.Len())

		wordIdx := pos.ModUint64(wordsCnt)

		word := bucket.At(int(wordIdx))

		off += copy(dst[off:], word)

		pos = pos.DivUint64(wordsCnt)
	}

	return off
}

// CandidateLen returns the number of bytes Materialize writes for chain.
func CandidateLen(chain *Chain) int {
	n := 0
	for _, p := range chain.Parts {
		n += p
	}

	return n
}
