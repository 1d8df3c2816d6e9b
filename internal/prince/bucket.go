package prince

import "fmt"

// LenMin and LenMax bound the length of both input words and generated
// candidates, matching pp.c's IN_LEN_MIN/IN_LEN_MAX.
const (
	LenMin = 1
	LenMax = 16
)

// Bucket holds every input word of one fixed length, in load order.
//
// pp.c grows this with a manually-doubled realloc (check_realloc_words);
// append does the same job idiomatically.
type Bucket struct {
	words [][]byte
}

// Add appends a copy of word to the bucket.
func (b *Bucket) Add(word []byte) {
	cp := make([]byte, len(word))
	copy(cp, word)
	b.words = append(b.words, cp)
}

// Len returns the number of words in the bucket.
func (b *Bucket) Len() int {
	return len(b.words)
}

// At returns the word at index i. i must be in [0, Len()).
func (b *Bucket) At(i int) []byte {
	return b.words[i]
}

// BucketTable partitions loaded words by length, one [Bucket] per length
// from LenMin to LenMax.
type BucketTable struct {
	buckets [LenMax + 1]Bucket
}

// NewBucketTable returns an empty table.
func NewBucketTable() *BucketTable {
	return &BucketTable{}
}

// Add validates word's length and files it into the matching bucket.
func (t *BucketTable) Add(word []byte) error {
	n := len(word)

	if n < LenMin {
		return fmt.Errorf("length %d: %w", n, ErrWordTooShort)
	}

	if n > LenMax {
		return fmt.Errorf("length %d: %w", n, ErrWordTooLong)
	}

	t.buckets[n].Add(word)

	return nil
}

// Bucket returns the bucket for length n. n must be in [LenMin, LenMax].
func (t *BucketTable) Bucket(n int) *Bucket {
	return &t.buckets[n]
}

// Count returns the number of words of length n.
func (t *BucketTable) Count(n int) int {
	if n < LenMin || n > LenMax {
		return 0
	}

	return t.buckets[n].Len()
}
