package prince

import (
	"errors"
	"testing"
)

func Test_NewCursor_RejectsSkipBeyondKeyspace(t *testing.T) {
	t.Parallel()

	_, err := NewCursor(IntFromUint64(10), IntFromUint64(0), false, IntFromUint64(9))
	if !errors.Is(err, ErrSkipExceedsKeyspace) {
		t.Fatalf("got %v, want ErrSkipExceedsKeyspace", err)
	}
}

func Test_NewCursor_RejectsLimitBeyondKeyspace(t *testing.T) {
	t.Parallel()

	_, err := NewCursor(IntFromUint64(0), IntFromUint64(10), true, IntFromUint64(9))
	if !errors.Is(err, ErrLimitExceedsKeyspace) {
		t.Fatalf("got %v, want ErrLimitExceedsKeyspace", err)
	}
}

func Test_NewCursor_RejectsSkipPlusLimitBeyondKeyspace(t *testing.T) {
	t.Parallel()

	_, err := NewCursor(IntFromUint64(5), IntFromUint64(5), true, IntFromUint64(9))
	if !errors.Is(err, ErrSkipLimitExceedsKeyspace) {
		t.Fatalf("got %v, want ErrSkipLimitExceedsKeyspace", err)
	}
}

func Test_NewCursor_AcceptsSkipPlusLimitExactlyEqualToKeyspace(t *testing.T) {
	t.Parallel()

	// Inclusive boundary (REDESIGN FLAG): skip + limit == total is a legal
	// window ending at the last candidate, not an error.
	c, err := NewCursor(IntFromUint64(6), IntFromUint64(3), true, IntFromUint64(9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if c.TotalKsCnt.CmpUint64(9) != 0 {
		t.Fatalf("TotalKsCnt = %s, want 9", c.TotalKsCnt.String())
	}
}

func Test_Cursor_DoneAndShouldEmit(t *testing.T) {
	t.Parallel()

	c, err := NewCursor(IntFromUint64(2), IntFromUint64(0), false, IntFromUint64(5))
	if err != nil {
		t.Fatalf("NewCursor: %v", err)
	}

	if c.Done() {
		t.Fatal("expected not done at start")
	}

	if c.ShouldEmit() {
		t.Fatal("expected ShouldEmit false before skip reached")
	}

	c.Advance(2)

	if !c.ShouldEmit() {
		t.Fatal("expected ShouldEmit true once skip reached")
	}

	c.Advance(3)

	if !c.Done() {
		t.Fatal("expected done once total reached")
	}
}
