package prince_test

import (
	"errors"
	"testing"

	"github.com/princepp/princepp/internal/prince"
)

func Test_BucketTable_Add_FilesWordsByLength(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	for _, w := range []string{"a", "bc", "d", "ef"} {
		if err := table.Add([]byte(w)); err != nil {
			t.Fatalf("Add(%q): %v", w, err)
		}
	}

	if got := table.Count(1); got != 2 {
		t.Fatalf("Count(1) = %d, want 2", got)
	}

	if got := table.Count(2); got != 2 {
		t.Fatalf("Count(2) = %d, want 2", got)
	}

	if got := table.Count(3); got != 0 {
		t.Fatalf("Count(3) = %d, want 0", got)
	}

	if got := string(table.Bucket(1).At(0)); got != "a" {
		t.Fatalf("Bucket(1).At(0) = %q, want %q", got, "a")
	}
}

func Test_BucketTable_Add_RejectsOutOfRangeLengths(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	if err := table.Add(nil); !errors.Is(err, prince.ErrWordTooShort) {
		t.Fatalf("empty word: got %v, want ErrWordTooShort", err)
	}

	long := make([]byte, prince.LenMax+1)

	if err := table.Add(long); !errors.Is(err, prince.ErrWordTooLong) {
		t.Fatalf("overlong word: got %v, want ErrWordTooLong", err)
	}
}

func Test_BucketTable_Add_CopiesInput(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	word := []byte("abc")
	if err := table.Add(word); err != nil {
		t.Fatalf("Add: %v", err)
	}

	word[0] = 'z'

	if got := string(table.Bucket(3).At(0)); got != "abc" {
		t.Fatalf("bucket word mutated via caller's slice: got %q", got)
	}
}
