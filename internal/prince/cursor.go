package prince

import "fmt"

// Cursor tracks global progress through the full keyspace and enforces the
// skip/limit window, matching pp.c's skip/limit/total_ks_pos/total_ks_cnt
// bookkeeping.
type Cursor struct {
	// Skip is the number of leading candidates to discard before emitting.
	Skip Int

	// TotalKsCnt is the total keyspace, clamped to Skip+Limit when a limit
	// is set.
	TotalKsCnt Int

	// TotalKsPos is the number of candidates visited so far, across every
	// length and chain.
	TotalKsPos Int
}

// NewCursor validates skip and limit against the true total keyspace and
// returns a Cursor ready to drive enumeration.
//
// pp.c rejects skip or limit strictly greater than the total keyspace, and
// rejects skip+limit strictly greater than the total keyspace — so
// skip+limit == total keyspace is accepted (a window of limit candidates
// that ends exactly at the last one). That boundary is kept here
// deliberately: it is a real, useful case (a final shard running to the end
// of the keyspace) and pp.c's own comparison already treats it as legal.
func NewCursor(skip Int, limit Int, limitSet bool, trueTotalKsCnt Int) (*Cursor, error) {
	if !skip.IsZero() && skip.Cmp(trueTotalKsCnt) > 0 {
		return nil, fmt.Errorf("skip=%s, total keyspace=%s: %w", skip, trueTotalKsCnt, ErrSkipExceedsKeyspace)
	}

	totalKsCnt := trueTotalKsCnt

	if limitSet && !limit.IsZero() {
		if limit.Cmp(trueTotalKsCnt) > 0 {
			return nil, fmt.Errorf("limit=%s, total keyspace=%s: %w", limit, trueTotalKsCnt, ErrLimitExceedsKeyspace)
		}

		sum := skip.Add(limit)

		if sum.Cmp(trueTotalKsCnt) > 0 {
			return nil, fmt.Errorf("skip=%s, limit=%s, total keyspace=%s: %w", skip, limit, trueTotalKsCnt, ErrSkipLimitExceedsKeyspace)
		}

		totalKsCnt = sum
	}

	return &Cursor{
		Skip:       skip,
		TotalKsCnt: totalKsCnt,
		TotalKsPos: IntFromUint64(0),
	}, nil
}

// Done reports whether every candidate in the (possibly limited) keyspace
// has been visited.
func (c *Cursor) Done() bool {
	return c.TotalKsPos.Cmp(c.TotalKsCnt) >= 0
}

// Remaining returns TotalKsCnt - TotalKsPos.
func (c *Cursor) Remaining() Int {
	return c.TotalKsCnt.Sub(c.TotalKsPos)
}

// ShouldEmit reports whether the candidate at the current TotalKsPos falls
// at or after Skip, i.e. is inside the emission window.
func (c *Cursor) ShouldEmit() bool {
	return c.TotalKsPos.Cmp(c.Skip) >= 0
}

// Advance moves the global cursor forward by n visited candidates.
func (c *Cursor) Advance(n uint64) {
	c.TotalKsPos = c.TotalKsPos.AddUint64(n)
}
