package prince

import "testing"

func Test_LengthPriority_DefaultTable(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()

	if got := lengthPriority(1, table, false); got != 15 {
		t.Fatalf("priority(1) = %d, want 15", got)
	}

	if got := lengthPriority(2, table, false); got != 56 {
		t.Fatalf("priority(2) = %d, want 56", got)
	}

	if got := lengthPriority(30, table, false); got != 1 {
		t.Fatalf("priority(30) = %d, want 1 (beyond table)", got)
	}
}

func Test_LengthPriority_WlDistLenUsesLoadedCounts(t *testing.T) {
	t.Parallel()

	table := NewBucketTable()
	_ = table.Add([]byte("a"))
	_ = table.Add([]byte("b"))

	if got := lengthPriority(1, table, true); got != 2 {
		t.Fatalf("priority(1) with wl-dist-len = %d, want 2", got)
	}
}

func Test_BuildLengthOrder_SortsAscendingByPriority(t *testing.T) {
	t.Parallel()

	// Scenario 6: |B_1|=2, |B_2|=1000, default priority table (15, 56).
	table := NewBucketTable()
	_ = table.Add([]byte("a"))
	_ = table.Add([]byte("b"))

	for i := 0; i < 1000; i++ {
		_ = table.Add([]byte{byte('a' + i%26), byte('a' + (i/26)%26)})
	}

	slots := buildLengthSlots(table, 1, 2, 1, 8)

	order := buildLengthOrder(slots, table, false)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
}
