package prince

import (
	"errors"
	"testing"
)

func Test_ChainKey_SortsPartsAscending(t *testing.T) {
	t.Parallel()

	k1, err := chainKey([]int{3, 1, 2})
	if err != nil {
		t.Fatalf("chainKey: %v", err)
	}

	k2, err := chainKey([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("chainKey: %v", err)
	}

	if k1 != k2 {
		t.Fatalf("expected permutations of the same multiset to share a key: %v != %v", k1, k2)
	}

	k3, err := chainKey([]int{1, 1, 4})
	if err != nil {
		t.Fatalf("chainKey: %v", err)
	}

	if k1 == k3 {
		t.Fatalf("expected distinct multisets to produce distinct keys")
	}
}

func Test_ChainKey_RejectsTooManyParts(t *testing.T) {
	t.Parallel()

	parts := make([]int, maxChainKeyParts+1)
	for i := range parts {
		parts[i] = 1
	}

	_, err := chainKey(parts)
	if !errors.Is(err, ErrChainTooLong) {
		t.Fatalf("got %v, want ErrChainTooLong", err)
	}
}

func Test_EncodeDecodeKeyspace_RoundTrips(t *testing.T) {
	t.Parallel()

	ks := IntFromUint64(123456789)

	index, ok := encodeKeyspace(ks)
	if !ok {
		t.Fatal("expected ks to fit in a uint64")
	}

	decoded := decodeKeyspace(index[:])

	if decoded.Cmp(ks) != 0 {
		t.Fatalf("decoded %s, want %s", decoded.String(), ks.String())
	}
}

func Test_EncodeKeyspace_ReportsOverflow(t *testing.T) {
	t.Parallel()

	huge, err := ParseInt("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("ParseInt: %v", err)
	}

	if _, ok := encodeKeyspace(huge); ok {
		t.Fatal("expected overflow to be reported")
	}
}

func Test_WordlistFingerprint_DiffersWhenWordsDiffer(t *testing.T) {
	t.Parallel()

	a := NewBucketTable()
	_ = a.Add([]byte("ab"))
	_ = a.Add([]byte("cd"))

	b := NewBucketTable()
	_ = b.Add([]byte("ab"))
	_ = b.Add([]byte("ef"))

	if WordlistFingerprint(a, 1, 2) == WordlistFingerprint(b, 1, 2) {
		t.Fatal("expected different wordlists to fingerprint differently")
	}

	c := NewBucketTable()
	_ = c.Add([]byte("ab"))
	_ = c.Add([]byte("cd"))

	if WordlistFingerprint(a, 1, 2) != WordlistFingerprint(c, 1, 2) {
		t.Fatal("expected identical wordlists to fingerprint identically")
	}
}
