package prince

import "testing"

func Test_GenerateCompositions_ReturnsEveryComposition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		n    int
		want [][]int
	}{
		{1, [][]int{{1}}},
		{2, [][]int{{2}, {1, 1}}},
		{3, [][]int{{3}, {1, 2}, {2, 1}, {1, 1, 1}}},
	}

	for _, tc := range tests {
		got := generateCompositions(tc.n)

		if len(got) != len(tc.want) {
			t.Fatalf("n=%d: got %d compositions, want %d: %v", tc.n, len(got), len(tc.want), got)
		}

		for i, parts := range got {
			if !intsEqual(parts, tc.want[i]) {
				t.Fatalf("n=%d idx=%d: got %v, want %v", tc.n, i, parts, tc.want[i])
			}
		}
	}
}

func Test_ChainValid_EnforcesBucketPresenceAndElemBounds(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()
	_ = table.Add([]byte("a"))
	_ = table.Add([]byte("bc"))

	if !chainValid([]int{1, 2}, table, 1, 8) {
		t.Fatal("expected (1,2) valid: both buckets populated")
	}

	if chainValid([]int{1, 1, 1}, table, 1, 2) {
		t.Fatal("expected (1,1,1) invalid: exceeds elem-cnt-max")
	}

	if chainValid([]int{3}, table, 1, 8) {
		t.Fatal("expected (3) invalid: bucket 3 empty")
	}
}

func Test_BuildChains_SkipsInvalidCompositions(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()
	_ = table.Add([]byte("a"))
	_ = table.Add([]byte("bc"))

	chains := buildChains(3, table, 1, 2)

	if len(chains) != 2 {
		t.Fatalf("got %d chains, want 2: %v", len(chains), chains)
	}

	if !intsEqual(chains[0].Parts, []int{1, 2}) || !intsEqual(chains[1].Parts, []int{2, 1}) {
		t.Fatalf("unexpected chain order: %v, %v", chains[0].Parts, chains[1].Parts)
	}

	for _, c := range chains {
		if c.KsCnt.CmpUint64(1) != 0 {
			t.Fatalf("chain %v: ks_cnt = %s, want 1", c.Parts, c.KsCnt.String())
		}
	}
}

func Test_ChainKeyspace_IsProductOfBucketSizes(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()
	for _, w := range []string{"a", "b", "c"} {
		_ = table.Add([]byte(w))
	}

	ks := chainKeyspace([]int{1, 1}, table)

	if ks.CmpUint64(9) != 0 {
		t.Fatalf("ks_cnt = %s, want 9", ks.String())
	}
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
