package prince_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/princepp/princepp/internal/prince"
)

func newTable(t *testing.T, words ...string) *prince.BucketTable {
	t.Helper()

	table := prince.NewBucketTable()

	for _, w := range words {
		if err := table.Add([]byte(w)); err != nil {
			t.Fatalf("Add(%q): %v", w, err)
		}
	}

	return table
}

func runEngine(t *testing.T, table *prince.BucketTable, cfg prince.Config) string {
	t.Helper()

	e, err := prince.NewEngine(table, cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	var buf bytes.Buffer

	w := prince.NewWriter(&buf)
	if err := e.Run(w); err != nil {
		t.Fatalf("Run: %v", err)
	}

	return buf.String()
}

// Scenario 1: trivial single word.
func Test_Engine_Scenario1_TrivialSingleWord(t *testing.T) {
	t.Parallel()

	table := newTable(t, "a")

	e, err := prince.NewEngine(table, prince.Config{PwMin: 1, PwMax: 1, ElemCntMin: 1, ElemCntMax: 8})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if got := e.TotalKeyspace(); got.CmpUint64(1) != 0 {
		t.Fatalf("total keyspace = %s, want 1", got.String())
	}

	var buf bytes.Buffer
	if err := e.Run(prince.NewWriter(&buf)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := buf.String(); got != "a\n" {
		t.Fatalf("output = %q, want %q", got, "a\n")
	}
}

// Scenario 2: single-length product, mixed-radix little-endian order.
func Test_Engine_Scenario2_SingleLengthProduct(t *testing.T) {
	t.Parallel()

	table := newTable(t, "a", "b", "c")

	out := runEngine(t, table, prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8})

	want := "aa\nba\nca\nab\nbb\ncb\nac\nbc\ncc\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

// Scenario 3: keyspace query. The (1,1) composition is pruned because bucket
// 1 is empty, leaving only chain (2) with ks_cnt=2.
func Test_Engine_Scenario3_KeyspaceQuery(t *testing.T) {
	t.Parallel()

	table := newTable(t, "ab", "cd")

	e, err := prince.NewEngine(table, prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if got := e.TotalKeyspace(); got.CmpUint64(2) != 0 {
		t.Fatalf("total keyspace = %s, want 2", got.String())
	}
}

// Scenario 4: mixed lengths with elem-cnt bounds excluding the 3-part chain.
func Test_Engine_Scenario4_MixedLengthsElemBounds(t *testing.T) {
	t.Parallel()

	table := newTable(t, "a", "bc")

	out := runEngine(t, table, prince.Config{PwMin: 3, PwMax: 3, ElemCntMin: 2, ElemCntMax: 2})

	want := "abc\nbca\n"
	if out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
}

// Scenario 5: skip/limit composition and shard composability.
func Test_Engine_Scenario5_SkipLimitComposition(t *testing.T) {
	t.Parallel()

	table := newTable(t, "a", "b", "c")

	full := runEngine(t, table, prince.Config{PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8})

	shard := runEngine(t, table, prince.Config{
		PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8,
		Skip: prince.IntFromUint64(3), Limit: prince.IntFromUint64(3), LimitSet: true,
	})

	wantShard := "ab\nbb\ncb\n"
	if shard != wantShard {
		t.Fatalf("shard = %q, want %q", shard, wantShard)
	}

	shardA := runEngine(t, table, prince.Config{
		PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8,
		Skip: prince.IntFromUint64(0), Limit: prince.IntFromUint64(3), LimitSet: true,
	})

	shardB := runEngine(t, table, prince.Config{
		PwMin: 2, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8,
		Skip: prince.IntFromUint64(3), Limit: prince.IntFromUint64(6), LimitSet: true,
	})

	if shardA+shardB != full {
		t.Fatalf("concatenated shards = %q, want %q", shardA+shardB, full)
	}
}

// Scenario 6: length-priority interleaving. With |B_1|=2 and |B_2|=1000 and
// the default priority table (15, 56), length 1 is visited first each round
// and fully drains (its own keyspace is only 2) well before length 2's
// first batch of 56 is exhausted.
func Test_Engine_Scenario6_LengthPriorityInterleaving(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()
	_ = table.Add([]byte("a"))
	_ = table.Add([]byte("b"))

	for i := 0; i < 1000; i++ {
		_ = table.Add([]byte{byte('a' + i%26), byte('a' + (i/26)%26)})
	}

	out := runEngine(t, table, prince.Config{PwMin: 1, PwMax: 2, ElemCntMin: 1, ElemCntMax: 8})

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	firstLen2 := -1
	len1Before := 0

	for i, line := range lines {
		if len(line) == 2 {
			firstLen2 = i
			break
		}

		len1Before++
	}

	if firstLen2 == -1 {
		t.Fatal("expected at least one length-2 candidate")
	}

	if len1Before < 2 {
		t.Fatalf("expected >= 2 length-1 candidates before the first length-2 candidate, got %d", len1Before)
	}
}
