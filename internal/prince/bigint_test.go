package prince_test

import (
	"testing"

	"github.com/princepp/princepp/internal/prince"
)

func Test_Int_Arithmetic_RoundTrips(t *testing.T) {
	t.Parallel()

	a := prince.IntFromUint64(1000)
	b := prince.IntFromUint64(7)

	sum := a.Add(b)
	if sum.String() != "1007" {
		t.Fatalf("Add: got %q", sum.String())
	}

	diff := sum.Sub(b)
	if diff.Cmp(a) != 0 {
		t.Fatalf("Sub: got %q, want %q", diff.String(), a.String())
	}

	prod := a.MulUint64(3)
	if prod.String() != "3000" {
		t.Fatalf("MulUint64: got %q", prod.String())
	}

	if got := prod.DivUint64(1000).String(); got != "3" {
		t.Fatalf("DivUint64: got %q", got)
	}

	if got := a.ModUint64(300); got != 100 {
		t.Fatalf("ModUint64: got %d, want 100", got)
	}
}

func Test_Int_Cmp_OrdersCorrectly(t *testing.T) {
	t.Parallel()

	small := prince.IntFromUint64(5)
	big := prince.IntFromUint64(9)

	if small.Cmp(big) >= 0 {
		t.Fatalf("expected 5 < 9")
	}

	if big.Cmp(small) <= 0 {
		t.Fatalf("expected 9 > 5")
	}

	if small.Cmp(small) != 0 {
		t.Fatalf("expected 5 == 5")
	}

	if small.CmpUint64(5) != 0 {
		t.Fatalf("expected CmpUint64(5) == 0")
	}
}

func Test_Int_ParseInt_RejectsNegative(t *testing.T) {
	t.Parallel()

	if _, err := prince.ParseInt("-1"); err == nil {
		t.Fatal("expected error for negative input")
	}

	v, err := prince.ParseInt("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("ParseInt: %v", err)
	}

	if v.String() != "123456789012345678901234567890" {
		t.Fatalf("round-trip mismatch: got %q", v.String())
	}
}

func Test_Int_Uint64Capped_ReportsOverflow(t *testing.T) {
	t.Parallel()

	huge, err := prince.ParseInt("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("ParseInt: %v", err)
	}

	if _, ok := huge.Uint64Capped(); ok {
		t.Fatal("expected overflow to be reported")
	}

	small := prince.IntFromUint64(42)

	v, ok := small.Uint64Capped()
	if !ok || v != 42 {
		t.Fatalf("got (%d, %v), want (42, true)", v, ok)
	}
}

func Test_Int_BytesRoundTrip(t *testing.T) {
	t.Parallel()

	original := prince.IntFromUint64(9999999999)

	restored := prince.IntFromBytes(original.Bytes())

	if restored.Cmp(original) != 0 {
		t.Fatalf("round-trip mismatch: got %q, want %q", restored.String(), original.String())
	}
}

func Test_MinInt_ReturnsSmaller(t *testing.T) {
	t.Parallel()

	a := prince.IntFromUint64(3)
	b := prince.IntFromUint64(8)

	if got := prince.MinInt(a, b); got.Cmp(a) != 0 {
		t.Fatalf("MinInt(3, 8) = %q, want 3", got.String())
	}

	if got := prince.MinInt(b, a); got.Cmp(a) != 0 {
		t.Fatalf("MinInt(8, 3) = %q, want 3", got.String())
	}
}
