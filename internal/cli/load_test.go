package cli_test

import (
	"strings"
	"testing"

	"github.com/princepp/princepp/internal/cli"
	"github.com/princepp/princepp/internal/prince"
)

func Test_LoadWords_AddsEverySurvivingLine(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	n, err := cli.LoadWords(strings.NewReader("abc\ndef\nghi\n"), table)
	if err != nil {
		t.Fatalf("LoadWords: %v", err)
	}

	if n != 3 {
		t.Fatalf("n = %d, want 3", n)
	}

	if table.Count(3) != 3 {
		t.Fatalf("bucket[3] count = %d, want 3", table.Count(3))
	}
}

func Test_LoadWords_StripsCarriageReturn(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	if _, err := cli.LoadWords(strings.NewReader("abc\r\n"), table); err != nil {
		t.Fatalf("LoadWords: %v", err)
	}

	if table.Count(3) != 1 {
		t.Fatalf("bucket[3] count = %d, want 1 (want trailing \\r stripped)", table.Count(3))
	}
}

func Test_LoadWords_SkipsEmptyLines(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	n, err := cli.LoadWords(strings.NewReader("abc\n\ndef\n"), table)
	if err != nil {
		t.Fatalf("LoadWords: %v", err)
	}

	if n != 2 {
		t.Fatalf("n = %d, want 2", n)
	}
}

func Test_LoadWords_DiscardsOutOfRangeLengthsSilently(t *testing.T) {
	t.Parallel()

	table := prince.NewBucketTable()

	tooLong := strings.Repeat("x", prince.LenMax+1)

	n, err := cli.LoadWords(strings.NewReader("ok\n"+tooLong+"\nalsofine\n"), table)
	if err != nil {
		t.Fatalf("LoadWords: %v", err)
	}

	if n != 2 {
		t.Fatalf("n = %d, want 2 (long word discarded, not fatal)", n)
	}
}
