package prince

import (
	"context"
	"fmt"
)

// Config bounds one enumeration run: the output length range, the
// composition part-count range, and whether per-round quotas follow the
// loaded wordlist's own length distribution.
type Config struct {
	PwMin      int
	PwMax      int
	ElemCntMin int
	ElemCntMax int
	WlDistLen  bool
	Skip       Int
	Limit      Int
	LimitSet   bool

	// StatsCache, if non-nil, memoizes chain keyspaces across runs. Optional.
	StatsCache *StatsCache
}

// Engine drives PRINCE enumeration: it owns the per-length chain slots, the
// round-robin visitation order, and the global cursor, and emits candidates
// through a Writer. Mirrors pp.c's db_entries/pw_orders/main loop trio.
type Engine struct {
	table    *BucketTable
	cfg      Config
	byLength map[int]*lengthSlot
	order    []int
	cursor   *Cursor
	buf      []byte
}

// NewEngine validates cfg against table and builds the chain slots, order,
// and cursor needed to enumerate.
func NewEngine(table *BucketTable, cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	slots, err := buildLengthSlotsCached(table, cfg.PwMin, cfg.PwMax, cfg.ElemCntMin, cfg.ElemCntMax, cfg.StatsCache)
	if err != nil {
		return nil, err
	}

	if len(slots) == 0 {
		return nil, ErrNoCandidateLengths
	}

	total := totalKeyspace(slots)

	cursor, err := NewCursor(cfg.Skip, cfg.Limit, cfg.LimitSet, total)
	if err != nil {
		return nil, err
	}

	byLength := make(map[int]*lengthSlot, len(slots))
	for _, s := range slots {
		byLength[s.length] = s
	}

	return &Engine{
		table:    table,
		cfg:      cfg,
		byLength: byLength,
		order:    buildLengthOrder(slots, table, cfg.WlDistLen),
		cursor:   cursor,
		buf:      make([]byte, cfg.PwMax),
	}, nil
}

func validateConfig(cfg Config) error {
	if cfg.PwMin < LenMin || cfg.PwMin > LenMax {
		return fmt.Errorf("pw-min=%d: %w", cfg.PwMin, ErrPwMinInvalid)
	}

	if cfg.PwMax < LenMin || cfg.PwMax > LenMax {
		return fmt.Errorf("pw-max=%d: %w", cfg.PwMax, ErrPwMaxInvalid)
	}

	if cfg.PwMin > cfg.PwMax {
		return fmt.Errorf("pw-min=%d, pw-max=%d: %w", cfg.PwMin, cfg.PwMax, ErrPwRangeInverted)
	}

	if cfg.ElemCntMin < 1 {
		return fmt.Errorf("elem-cnt-min=%d: %w", cfg.ElemCntMin, ErrElemCntMinInvalid)
	}

	if cfg.ElemCntMin > cfg.ElemCntMax {
		return fmt.Errorf("elem-cnt-min=%d, elem-cnt-max=%d: %w", cfg.ElemCntMin, cfg.ElemCntMax, ErrElemCntRangeInverted)
	}

	return nil
}

// TotalKeyspace returns the (unclamped by skip/limit) total number of
// candidates this configuration can produce.
func (e *Engine) TotalKeyspace() Int {
	total := IntFromUint64(0)

	for _, s := range e.byLength {
		for _, c := range s.chains {
			total = total.Add(c.KsCnt)
		}
	}

	return total
}

// Lengths returns the output lengths this engine will visit, in the same
// round-robin order Run follows.
func (e *Engine) Lengths() []int {
	lengths := make([]int, len(e.order))
	copy(lengths, e.order)

	return lengths
}

// Chains returns the chains built for output length n, in the order Run
// consumes them (ascending keyspace). Returns nil if n has no chains.
func (e *Engine) Chains(n int) []*Chain {
	slot, ok := e.byLength[n]
	if !ok {
		return nil
	}

	return slot.chains
}

// Table returns the bucket table this engine was built against.
func (e *Engine) Table() *BucketTable {
	return e.table
}

// Run drives the full round-robin enumeration loop to completion, writing
// every candidate inside the [skip, skip+limit) window to w and flushing
// after every length visited.
//
// Mirrors pp.c's main loop: repeatedly sweep the length order; for each
// length, consume up to its per-round quota (lengthPriority) from its
// current lowest-keyspace chain, advancing that chain's own cursor and, once
// exhausted, moving on to its next chain; stop the instant the global cursor
// reaches the (possibly skip+limit-clamped) total.
func (e *Engine) Run(w *Writer) error {
	return e.RunContext(context.Background(), w)
}

// RunContext is [Engine.Run] with a cancellation point between each
// per-length batch, so an in-flight enumeration can be interrupted without
// losing any output already flushed to w.
func (e *Engine) RunContext(ctx context.Context, w *Writer) error {
	for !e.cursor.Done() {
		progressed := false

		for _, length := range e.order {
			if e.cursor.Done() {
				break
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			slot := e.byLength[length]

			if slot.elemsPos == len(slot.chains) {
				continue
			}

			progressed = true

			chain := slot.chains[slot.elemsPos]

			iterMax := chain.KsCnt.Sub(chain.KsPos)

			// A zero quota (possible with --wl-dist-len when no loaded word
			// has this exact output length, even though shorter parts
			// compose into it) would stall this slot forever; treat it as
			// uncapped instead of silently deadlocking.
			if quota := lengthPriority(length, e.table, e.cfg.WlDistLen); quota > 0 && iterMax.CmpUint64(quota) > 0 {
				iterMax = IntFromUint64(quota)
			}

			remaining := e.cursor.Remaining()
			if remaining.Cmp(iterMax) < 0 {
				iterMax = remaining
			}

			iterMaxU64, ok := iterMax.Uint64Capped()
			if !ok {
				return fmt.Errorf("chain iteration batch too large to materialize in one round")
			}

			dst := e.buf[:length]

			for i := uint64(0); i < iterMaxU64; i++ {
				ksPos := chain.KsPos.AddUint64(i)

				if e.cursor.ShouldEmit() {
					Materialize(chain, e.table, ksPos, dst)

					if err := w.WriteCandidate(dst); err != nil {
						return err
					}
				}

				e.cursor.Advance(1)
			}

			if err := w.Flush(); err != nil {
				return err
			}

			chain.KsPos = chain.KsPos.Add(iterMax)

			if chain.KsPos.Cmp(chain.KsCnt) == 0 {
				chain.KsPos = IntFromUint64(0)
				slot.elemsPos++
			}
		}

		if !progressed {
			break
		}
	}

	return nil
}
